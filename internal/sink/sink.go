package sink

import (
	"context"
	"errors"

	"github.com/maltedev/product-card-scraper/internal/models"
)

// Sink receives every successfully extracted record.
type Sink interface {
	Write(ctx context.Context, record models.ProductRecord) error
	Close() error
}

// Multi fans each record out to all sinks. A failing sink does not stop the
// others; their errors are joined.
type Multi []Sink

func (m Multi) Write(ctx context.Context, record models.ProductRecord) error {
	var errs []error
	for _, s := range m {
		if err := s.Write(ctx, record); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (m Multi) Close() error {
	var errs []error
	for _, s := range m {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
