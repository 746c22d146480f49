package parser

import "strings"

// NormalizePrice turns locale formatted currency text such as "1 234 ₽" into
// a plain digit string. It splits on whitespace, drops the trailing currency
// token and joins the rest. No numeric parsing happens here.
func NormalizePrice(text string) string {
	tokens := strings.Fields(text)
	if len(tokens) < 2 {
		return ""
	}
	return strings.Join(tokens[:len(tokens)-1], "")
}
