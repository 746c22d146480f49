package scraper

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"strings"

	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/maltedev/product-card-scraper/internal/parser"
	"github.com/maltedev/product-card-scraper/internal/readiness"
)

var (
	ErrInvalidInput = errors.New("invalid input")
	ErrUnreachable  = errors.New("page unreachable")
	ErrNotFound     = errors.New("page not found")
	ErrTimedOut     = errors.New("timed out waiting for page")
)

const (
	CodeInvalidInput = "invalid_input"
	CodeUnreachable  = "unreachable"
	CodeNotFound     = "not_found"
	CodeTimedOut     = "timed_out"
	CodeMissingField = "missing_field"
	CodeInternal     = "internal"
)

// Source opens a document for a product URL: a rendering browser or the
// static HTTP fetcher.
type Source interface {
	Open(ctx context.Context, url string) (readiness.Document, error)
}

// Code classifies err into one of the stable failure codes.
func Code(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrInvalidInput):
		return CodeInvalidInput
	case errors.Is(err, ErrUnreachable):
		return CodeUnreachable
	case errors.Is(err, ErrNotFound):
		return CodeNotFound
	case errors.Is(err, ErrTimedOut):
		return CodeTimedOut
	case errors.Is(err, parser.ErrMissingField):
		return CodeMissingField
	default:
		return CodeInternal
	}
}

// MissingField returns the field name carried by a MissingFieldError in
// err's chain, or "".
func MissingField(err error) string {
	var mfe *parser.MissingFieldError
	if errors.As(err, &mfe) {
		return mfe.Field
	}
	return ""
}

// NewResult classifies the outcome of one extraction.
func NewResult(url string, record models.ProductRecord, err error) *models.ScrapeResult {
	if err != nil {
		return models.NewFailure(url, Code(err), MissingField(err), err)
	}
	return models.NewSuccess(url, record)
}

// Retriable reports whether a caller may reasonably try err's URL again.
func Retriable(err error) bool {
	return errors.Is(err, ErrTimedOut)
}

// ValidateURL accepts absolute http(s) URLs only.
func ValidateURL(raw string) (*url.URL, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return nil, fmt.Errorf("%w: empty url", ErrInvalidInput)
	}

	u, err := url.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidInput, err)
	}

	if u.Scheme != "http" && u.Scheme != "https" {
		return nil, fmt.Errorf("%w: unsupported scheme %q", ErrInvalidInput, u.Scheme)
	}

	if u.Host == "" {
		return nil, fmt.Errorf("%w: missing host in %q", ErrInvalidInput, raw)
	}

	return u, nil
}
