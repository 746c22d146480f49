package sink

import (
	"context"
	"io"
	"sync"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/maltedev/product-card-scraper/internal/models"
)

// Table collects records and renders them as a text table on Close.
type Table struct {
	mu   sync.Mutex
	out  io.Writer
	rows []table.Row
}

func NewTable(out io.Writer) *Table {
	return &Table{out: out}
}

func (t *Table) Write(_ context.Context, record models.ProductRecord) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	sale := ""
	if record.HasDiscount() {
		sale = "yes"
	}

	t.rows = append(t.rows, table.Row{
		record.VendorCode,
		record.Brand,
		record.Name,
		record.PriceWithSale,
		record.Price,
		sale,
		record.Provider,
	})
	return nil
}

func (t *Table) Close() error {
	t.mu.Lock()
	defer t.mu.Unlock()

	if len(t.rows) == 0 {
		return nil
	}

	w := table.NewWriter()
	w.SetOutputMirror(t.out)
	w.AppendHeader(table.Row{"Vendor code", "Brand", "Name", "Price", "Old price", "Sale", "Provider"})
	w.AppendRows(t.rows)
	w.AppendFooter(table.Row{"", "", "", "", "", "Total", len(t.rows)})
	w.SetStyle(table.StyleRounded)
	w.Render()

	t.rows = nil
	return nil
}
