package sink

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/maltedev/product-card-scraper/internal/models"
)

const DefaultFilename = "products.json"

// File keeps every record written so far and rewrites the whole JSON array
// on each write, so the file is always a complete document.
type File struct {
	mu       sync.Mutex
	records  []models.ProductRecord
	filename string
}

func NewFile(filename string) *File {
	if filename == "" {
		filename = DefaultFilename
	}
	return &File{filename: filename}
}

func (f *File) Filename() string {
	return f.filename
}

func (f *File) Write(_ context.Context, record models.ProductRecord) error {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.records = append(f.records, record)
	return f.save()
}

func (f *File) Records() []models.ProductRecord {
	f.mu.Lock()
	defer f.mu.Unlock()

	out := make([]models.ProductRecord, len(f.records))
	copy(out, f.records)
	return out
}

func (f *File) Close() error {
	return nil
}

func (f *File) save() error {
	var buf bytes.Buffer
	if err := encodeRecords(&buf, f.records); err != nil {
		return err
	}

	// Write to temp file first for atomicity
	tmpFile := f.filename + ".tmp"
	if err := os.WriteFile(tmpFile, buf.Bytes(), 0644); err != nil {
		return fmt.Errorf("failed to write %s: %w", tmpFile, err)
	}

	if err := os.Rename(tmpFile, f.filename); err != nil {
		return fmt.Errorf("failed to replace %s: %w", f.filename, err)
	}
	return nil
}

// encodeRecords writes records as a 4-space indented array. Currency signs
// and quotes stay unescaped.
func encodeRecords(w io.Writer, records []models.ProductRecord) error {
	if records == nil {
		records = []models.ProductRecord{}
	}
	enc := json.NewEncoder(w)
	enc.SetIndent("", "    ")
	enc.SetEscapeHTML(false)
	if err := enc.Encode(records); err != nil {
		return fmt.Errorf("failed to encode records: %w", err)
	}
	return nil
}
