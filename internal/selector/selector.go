package selector

import (
	"fmt"
	"strings"
)

// Kind names the attribute a Selector matches on.
type Kind string

const (
	KindClass Kind = "class"
	KindID    Kind = "id"
	KindCSS   Kind = "css"
)

// Selector is one way of locating a page element. A slice of Selectors is a
// priority list: the first one that matches wins.
type Selector struct {
	Kind  Kind
	Value string
	// Tag optionally restricts class and id selectors to one element name.
	Tag string
}

func Class(value string) Selector {
	return Selector{Kind: KindClass, Value: value}
}

func ID(value string) Selector {
	return Selector{Kind: KindID, Value: value}
}

func CSS(value string) Selector {
	return Selector{Kind: KindCSS, Value: value}
}

// In returns a copy of s restricted to elements named tag.
func (s Selector) In(tag string) Selector {
	s.Tag = tag
	return s
}

// IsZero reports whether s matches nothing. A zero Selector is used to
// disable optional lookups such as the absence marker.
func (s Selector) IsZero() bool {
	return s.Value == ""
}

// CSS renders s as a CSS selector understood by goquery, playwright and rod.
func (s Selector) CSS() string {
	switch s.Kind {
	case KindClass:
		return s.Tag + "." + s.Value
	case KindID:
		return s.Tag + "#" + s.Value
	default:
		return s.Value
	}
}

// String renders s in the form accepted by Parse.
func (s Selector) String() string {
	if s.IsZero() {
		return ""
	}
	if s.Tag != "" && s.Kind != KindCSS {
		return fmt.Sprintf("%s:%s=%s", s.Tag, s.Kind, s.Value)
	}
	return fmt.Sprintf("%s=%s", s.Kind, s.Value)
}

// Parse reads "kind=value" or "tag:kind=value", for example
// "class=seller-details__title" or "span:id=productNmId". A bare value with no
// "=" is taken as a raw CSS selector. An empty string yields the zero Selector.
func Parse(raw string) (Selector, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return Selector{}, nil
	}

	key, value, ok := strings.Cut(raw, "=")
	if !ok {
		return CSS(raw), nil
	}

	var tag string
	if t, k, found := strings.Cut(key, ":"); found {
		tag, key = strings.TrimSpace(t), k
	}

	value = strings.TrimSpace(value)
	if value == "" {
		return Selector{}, fmt.Errorf("selector %q has no value", raw)
	}

	switch kind := Kind(strings.ToLower(strings.TrimSpace(key))); kind {
	case KindClass, KindID:
		if strings.ContainsAny(value, " \t.#") {
			return Selector{}, fmt.Errorf("selector %q: %s value must be a single identifier", raw, kind)
		}
		return Selector{Kind: kind, Value: value, Tag: tag}, nil
	case KindCSS:
		return CSS(value), nil
	default:
		return Selector{}, fmt.Errorf("selector %q: unknown kind %q", raw, key)
	}
}

// ParseList parses a comma separated priority list, skipping empty entries.
func ParseList(raw string) ([]Selector, error) {
	var out []Selector
	for _, part := range strings.Split(raw, ",") {
		if strings.TrimSpace(part) == "" {
			continue
		}
		s, err := Parse(part)
		if err != nil {
			return nil, err
		}
		out = append(out, s)
	}
	return out, nil
}

// Strings renders list for logging.
func Strings(list []Selector) []string {
	out := make([]string, len(list))
	for i, s := range list {
		out[i] = s.String()
	}
	return out
}
