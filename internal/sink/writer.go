package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sync"

	"github.com/maltedev/product-card-scraper/internal/models"
)

// Writer prints one JSON object per record, the single-URL CLI output.
type Writer struct {
	mu  sync.Mutex
	enc *json.Encoder
}

func NewWriter(w io.Writer) *Writer {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	return &Writer{enc: enc}
}

func (w *Writer) Write(_ context.Context, record models.ProductRecord) error {
	w.mu.Lock()
	defer w.mu.Unlock()

	if err := w.enc.Encode(record); err != nil {
		return fmt.Errorf("failed to print record: %w", err)
	}
	return nil
}

func (w *Writer) Close() error {
	return nil
}
