package parser

import (
	"errors"
	"fmt"
	"strings"

	"github.com/PuerkitoBio/goquery"
	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/maltedev/product-card-scraper/internal/selector"
)

const (
	FieldPriceWithSale = "price_with_sale"
	FieldPrice         = "price"
	FieldBrand         = "brand"
	FieldName          = "name"
	FieldVendorCode    = "vendor_code"
	FieldProvider      = "provider"
)

var (
	ErrMissingField     = errors.New("missing field")
	ErrIncompleteRecord = errors.New("incomplete record")
)

// MissingFieldError names the required field that could not be located. It
// usually means the page markup drifted away from the configured selectors.
type MissingFieldError struct {
	Field string
}

func (e *MissingFieldError) Error() string {
	return fmt.Sprintf("missing field: %s", e.Field)
}

func (e *MissingFieldError) Is(target error) bool {
	return target == ErrMissingField
}

func missing(field string) error {
	return &MissingFieldError{Field: field}
}

// Fields holds the selectors the extractor reads a product card with.
type Fields struct {
	FinalPrice selector.Selector
	OldPrice   selector.Selector
	Header     selector.Selector
	VendorCode selector.Selector
	Providers  []selector.Selector
}

func DefaultFields() Fields {
	return Fields{
		FinalPrice: selector.Class("price-block__final-price").In("span"),
		OldPrice:   selector.Class("price-block__old-price").In("del"),
		Header:     selector.Class("same-part-kt__header").In("h1"),
		VendorCode: selector.ID("productNmId").In("span"),
		Providers: []selector.Selector{
			selector.Class("seller-details__title"),
			selector.Class("seller-info__name"),
		},
	}
}

type Extractor struct {
	fields Fields
}

func NewExtractor(fields Fields) *Extractor {
	return &Extractor{fields: fields}
}

// Extract reads the full record from scoped. providerHint, when non-empty,
// is the seller text already captured while waiting for readiness and takes
// precedence over a lookup. Any missing required field fails the whole
// record.
func (e *Extractor) Extract(scoped *ScopedDocument, providerHint string) (models.ProductRecord, error) {
	priceWithSale, err := e.FinalPrice(scoped)
	if err != nil {
		return models.ProductRecord{}, err
	}

	price, ok := e.OldPrice(scoped)
	if !ok {
		price = priceWithSale
	}

	brand, name, err := e.BrandAndName(scoped)
	if err != nil {
		return models.ProductRecord{}, err
	}

	vendorCode, err := e.VendorCode(scoped)
	if err != nil {
		return models.ProductRecord{}, err
	}

	provider := strings.TrimSpace(providerHint)
	if provider == "" {
		if provider, err = e.Provider(scoped); err != nil {
			return models.ProductRecord{}, err
		}
	}

	record := models.ProductRecord{
		Brand:         brand,
		Name:          name,
		VendorCode:    vendorCode,
		Price:         price,
		PriceWithSale: priceWithSale,
		Provider:      provider,
	}
	if problems := record.Validate(); len(problems) > 0 {
		return models.ProductRecord{}, fmt.Errorf("%w: %s", ErrIncompleteRecord, strings.Join(problems, "; "))
	}
	return record, nil
}

// FinalPrice is the price the buyer pays. An element that normalizes to an
// empty string counts as missing.
func (e *Extractor) FinalPrice(scoped *ScopedDocument) (string, error) {
	el := scoped.Find(e.fields.FinalPrice).First()
	if el.Length() == 0 {
		return "", missing(FieldPriceWithSale)
	}
	price := NormalizePrice(el.Text())
	if price == "" {
		return "", missing(FieldPriceWithSale)
	}
	return price, nil
}

// OldPrice is only rendered when a discount exists.
func (e *Extractor) OldPrice(scoped *ScopedDocument) (string, bool) {
	el := scoped.Find(e.fields.OldPrice).First()
	if el.Length() == 0 {
		return "", false
	}
	price := NormalizePrice(el.Text())
	return price, price != ""
}

// BrandAndName reads the header, which must hold exactly two label spans:
// brand first, name second.
func (e *Extractor) BrandAndName(scoped *ScopedDocument) (string, string, error) {
	header := scoped.Find(e.fields.Header).First()
	if header.Length() == 0 {
		return "", "", missing(FieldBrand)
	}

	spans := header.ChildrenFiltered("span")
	switch spans.Length() {
	case 0:
		return "", "", missing(FieldBrand)
	case 1:
		return "", "", missing(FieldName)
	case 2:
	default:
		return "", "", fmt.Errorf("header has %d labels: %w", spans.Length(), missing(FieldBrand))
	}

	brand := strings.TrimSpace(spans.Eq(0).Text())
	if brand == "" {
		return "", "", missing(FieldBrand)
	}
	name := strings.TrimSpace(spans.Eq(1).Text())
	if name == "" {
		return "", "", missing(FieldName)
	}
	return brand, name, nil
}

func (e *Extractor) VendorCode(scoped *ScopedDocument) (string, error) {
	code := firstText(scoped.Find(e.fields.VendorCode))
	if code == "" {
		return "", missing(FieldVendorCode)
	}
	return code, nil
}

// Provider walks the candidate list in order and returns the first non-empty
// seller name.
func (e *Extractor) Provider(scoped *ScopedDocument) (string, error) {
	for _, candidate := range e.fields.Providers {
		if text := firstText(scoped.Find(candidate)); text != "" {
			return text, nil
		}
	}
	return "", missing(FieldProvider)
}

func firstText(sel *goquery.Selection) string {
	return strings.TrimSpace(sel.First().Text())
}
