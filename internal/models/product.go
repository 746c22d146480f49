package models

import (
	"time"
)

// ProductRecord is the extracted product card. It is built once by the
// extractor and handed to sinks by value.
type ProductRecord struct {
	Brand         string `json:"product_brand"`
	Name          string `json:"product_name"`
	VendorCode    string `json:"product_vendor_code"`
	Price         string `json:"product_price"`
	PriceWithSale string `json:"product_price_with_sale"`
	Provider      string `json:"provider"`
}

// HasDiscount reports whether the page rendered a separate old price.
func (p ProductRecord) HasDiscount() bool {
	return p.Price != p.PriceWithSale
}

// Validate lists violated record invariants. An empty result means the record
// is complete.
func (p ProductRecord) Validate() []string {
	var errors []string

	if p.PriceWithSale == "" {
		errors = append(errors, "price with sale is required")
	}

	if p.Price == "" {
		errors = append(errors, "price is required")
	}

	if p.Brand == "" || p.Name == "" {
		errors = append(errors, "brand and name are required")
	}

	if p.VendorCode == "" {
		errors = append(errors, "vendor code is required")
	}

	if p.Provider == "" {
		errors = append(errors, "provider is required")
	}

	return errors
}

// ScrapeResult is the outcome of one extraction as reported to callers.
type ScrapeResult struct {
	URL     string         `json:"url"`
	Product *ProductRecord `json:"product,omitempty"`
	Error   *Error         `json:"error,omitempty"`
	Success bool           `json:"success"`
}

type Error struct {
	Code    string    `json:"code"`
	Message string    `json:"message"`
	Field   string    `json:"field,omitempty"`
	Time    time.Time `json:"time"`
	URL     string    `json:"url,omitempty"`
}

func NewSuccess(url string, product ProductRecord) *ScrapeResult {
	return &ScrapeResult{
		URL:     url,
		Product: &product,
		Success: true,
	}
}

func NewFailure(url, code, field string, err error) *ScrapeResult {
	return &ScrapeResult{
		URL: url,
		Error: &Error{
			Code:    code,
			Message: err.Error(),
			Field:   field,
			Time:    time.Now(),
			URL:     url,
		},
	}
}
