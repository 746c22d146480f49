package scraper

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/maltedev/product-card-scraper/internal/fetcher"
	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/maltedev/product-card-scraper/internal/parser"
	"github.com/maltedev/product-card-scraper/internal/readiness"
	"github.com/maltedev/product-card-scraper/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const productURL = "https://www.wildberries.ru/catalog/77001/detail.aspx"

const renderedPage = `<html><body>
	<div class="product-detail">
		<h1 class="same-part-kt__header"><span>Acme</span><span>Widget</span></h1>
		<span id="productNmId">77001</span>
		<span class="price-block__final-price">1 234 ₽</span>
		<del class="price-block__old-price">1 500 ₽</del>
		<a class="seller-details__title">Acme Store</a>
	</div>
</body></html>`

// liveDocument pretends to be a rendering page: present holds the elements
// currently in the DOM, html is what Content returns.
type liveDocument struct {
	mu      sync.Mutex
	present map[selector.Selector]string
	hang    map[selector.Selector]bool
	html    string
	closed  int
	lookups int
}

func (d *liveDocument) Lookup(ctx context.Context, sel selector.Selector) (string, bool, error) {
	d.mu.Lock()
	d.lookups++
	text, ok := d.present[sel]
	hang := d.hang[sel]
	d.mu.Unlock()

	if hang {
		<-ctx.Done()
		return "", false, ctx.Err()
	}
	return text, ok, nil
}

func (d *liveDocument) Content(context.Context) (string, error) {
	return d.html, nil
}

func (d *liveDocument) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.closed++
	return nil
}

type fakeSource struct {
	doc   *liveDocument
	err   error
	calls int
}

func (s *fakeSource) Open(context.Context, string) (readiness.Document, error) {
	s.calls++
	if s.err != nil {
		return nil, s.err
	}
	return s.doc, nil
}

func testConfig() Config {
	cfg := DefaultConfig()
	cfg.Deadline = 150 * time.Millisecond
	cfg.PollInterval = 10 * time.Millisecond
	return cfg
}

func newTestEngine(t *testing.T, cfg Config, source Source) *Engine {
	t.Helper()
	engine, err := NewEngine(cfg, source, nil)
	require.NoError(t, err)
	return engine
}

func TestEngineExtract(t *testing.T) {
	doc := &liveDocument{
		present: map[selector.Selector]string{selector.Class("seller-details__title"): "Acme Store"},
		html:    renderedPage,
	}
	source := &fakeSource{doc: doc}

	record, err := newTestEngine(t, testConfig(), source).Extract(context.Background(), productURL)
	require.NoError(t, err)

	assert.Equal(t, models.ProductRecord{
		Brand:         "Acme",
		Name:          "Widget",
		VendorCode:    "77001",
		Price:         "1500",
		PriceWithSale: "1234",
		Provider:      "Acme Store",
	}, record)
	assert.Equal(t, 1, doc.closed)
}

func TestEngineInvalidInputSkipsFetcher(t *testing.T) {
	for _, raw := range []string{"", "   ", "not a url", "ftp://example.com/p/1", "https://", "/catalog/1"} {
		t.Run(raw, func(t *testing.T) {
			source := &fakeSource{doc: &liveDocument{}}
			_, err := newTestEngine(t, testConfig(), source).Extract(context.Background(), raw)

			assert.ErrorIs(t, err, ErrInvalidInput)
			assert.Equal(t, CodeInvalidInput, Code(err))
			assert.Zero(t, source.calls)
		})
	}
}

func TestEngineUnreachable(t *testing.T) {
	source := &fakeSource{err: errors.New("net::ERR_NAME_NOT_RESOLVED")}
	_, err := newTestEngine(t, testConfig(), source).Extract(context.Background(), productURL)

	assert.ErrorIs(t, err, ErrUnreachable)
	assert.Equal(t, CodeUnreachable, Code(err))
	assert.Contains(t, err.Error(), "ERR_NAME_NOT_RESOLVED")
}

func TestEngineNotFound(t *testing.T) {
	doc := &liveDocument{
		present: map[selector.Selector]string{selector.Class("content404"): "Страница не найдена"},
	}

	start := time.Now()
	_, err := newTestEngine(t, testConfig(), &fakeSource{doc: doc}).Extract(context.Background(), productURL)

	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, CodeNotFound, Code(err))
	assert.Less(t, time.Since(start), 100*time.Millisecond)
	assert.Equal(t, 1, doc.closed)
	assert.Equal(t, 1, doc.lookups, "only the absence marker is queried")
}

func TestEngineTimedOut(t *testing.T) {
	doc := &liveDocument{present: map[selector.Selector]string{}}
	cfg := testConfig()

	start := time.Now()
	_, err := newTestEngine(t, cfg, &fakeSource{doc: doc}).Extract(context.Background(), productURL)

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.True(t, Retriable(err))
	assert.GreaterOrEqual(t, time.Since(start), cfg.Deadline)
	assert.Equal(t, 1, doc.closed)
}

func TestEngineHungLookupIsTimedOut(t *testing.T) {
	doc := &liveDocument{
		present: map[selector.Selector]string{},
		hang:    map[selector.Selector]bool{selector.Class("seller-details__title"): true},
	}
	cfg := testConfig()

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	start := time.Now()
	_, err := newTestEngine(t, cfg, &fakeSource{doc: doc}).Extract(ctx, productURL)

	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Equal(t, CodeTimedOut, Code(err))
	assert.Less(t, time.Since(start), cfg.Deadline+200*time.Millisecond)
	assert.Equal(t, 1, doc.closed)
}

func TestEngineMissingField(t *testing.T) {
	doc := &liveDocument{
		present: map[selector.Selector]string{selector.Class("seller-details__title"): "Acme Store"},
		html:    `<html><body><div class="other">nothing</div></body></html>`,
	}

	_, err := newTestEngine(t, testConfig(), &fakeSource{doc: doc}).Extract(context.Background(), productURL)

	assert.ErrorIs(t, err, parser.ErrMissingField)
	assert.Equal(t, CodeMissingField, Code(err))
	assert.Equal(t, parser.FieldPriceWithSale, MissingField(err))
	assert.Equal(t, 1, doc.closed)
}

func TestEngineCapturesProviderFromSecondCandidate(t *testing.T) {
	page := `<html><body><div class="product-detail">
		<h1 class="same-part-kt__header"><span>Acme</span><span>Widget</span></h1>
		<span id="productNmId">77001</span>
		<span class="price-block__final-price">1 234 ₽</span>
	</div></body></html>`

	doc := &liveDocument{
		present: map[selector.Selector]string{selector.Class("seller-info__name"): "Variant Seller"},
		html:    page,
	}

	record, err := newTestEngine(t, testConfig(), &fakeSource{doc: doc}).Extract(context.Background(), productURL)
	require.NoError(t, err)
	assert.Equal(t, "Variant Seller", record.Provider)
	assert.Equal(t, record.PriceWithSale, record.Price)
}

func TestEngineLazyProviderLookup(t *testing.T) {
	doc := &liveDocument{
		present: map[selector.Selector]string{selector.Class("seller-details__title"): "Seen While Waiting"},
		html:    renderedPage,
	}
	cfg := testConfig()
	cfg.CaptureProvider = false

	record, err := newTestEngine(t, cfg, &fakeSource{doc: doc}).Extract(context.Background(), productURL)
	require.NoError(t, err)
	assert.Equal(t, "Acme Store", record.Provider)
}

func TestEngineAbsenceCheckDisabled(t *testing.T) {
	doc := &liveDocument{
		present: map[selector.Selector]string{
			selector.Class("content404"):            "gone",
			selector.Class("seller-details__title"): "Acme Store",
		},
		html: renderedPage,
	}
	cfg := testConfig()
	cfg.AbsenceMarker = selector.Selector{}

	_, err := newTestEngine(t, cfg, &fakeSource{doc: doc}).Extract(context.Background(), productURL)
	assert.NoError(t, err)
}

func TestEngineContextCancelled(t *testing.T) {
	doc := &liveDocument{present: map[selector.Selector]string{}}
	cfg := testConfig()
	cfg.Deadline = 5 * time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	_, err := newTestEngine(t, cfg, &fakeSource{doc: doc}).Extract(ctx, productURL)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Equal(t, CodeInternal, Code(err))
	assert.Equal(t, 1, doc.closed)
}

func TestEngineStaticMode(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/missing":
			w.WriteHeader(http.StatusNotFound)
			w.Write([]byte(`<div class="content404">Нет такой страницы</div>`))
		case "/empty":
			w.Write([]byte(`<div class="product-detail">loading...</div>`))
		default:
			w.Write([]byte(renderedPage))
		}
	}))
	defer server.Close()

	cfg := testConfig()
	cfg.Mode = ModeStatic
	cfg.Deadline = time.Hour
	engine := newTestEngine(t, cfg, fetcher.NewStatic(nil, nil))

	record, err := engine.Extract(context.Background(), server.URL+"/catalog/77001")
	require.NoError(t, err)
	assert.Equal(t, "77001", record.VendorCode)

	_, err = engine.Extract(context.Background(), server.URL+"/missing")
	assert.ErrorIs(t, err, ErrNotFound)

	start := time.Now()
	_, err = engine.Extract(context.Background(), server.URL+"/empty")
	assert.ErrorIs(t, err, ErrTimedOut)
	assert.Less(t, time.Since(start), time.Second, "static snapshots are checked once")
}

func TestEngineScrape(t *testing.T) {
	doc := &liveDocument{
		present: map[selector.Selector]string{selector.Class("seller-details__title"): "Acme Store"},
		html:    `<div class="product-detail"></div>`,
	}
	result := newTestEngine(t, testConfig(), &fakeSource{doc: doc}).Scrape(context.Background(), productURL)

	assert.False(t, result.Success)
	require.NotNil(t, result.Error)
	assert.Equal(t, CodeMissingField, result.Error.Code)
	assert.Equal(t, parser.FieldPriceWithSale, result.Error.Field)
}

func TestNewEngineValidatesConfig(t *testing.T) {
	cfg := DefaultConfig()
	cfg.ProviderSelectors = nil
	_, err := NewEngine(cfg, &fakeSource{}, nil)
	assert.Error(t, err)

	cfg = DefaultConfig()
	cfg.Deadline = 0
	_, err = NewEngine(cfg, &fakeSource{}, nil)
	assert.Error(t, err)

	cfg.Mode = ModeStatic
	_, err = NewEngine(cfg, &fakeSource{}, nil)
	assert.NoError(t, err)
}

func TestParseFetchMode(t *testing.T) {
	mode, err := ParseFetchMode("STATIC")
	require.NoError(t, err)
	assert.Equal(t, ModeStatic, mode)

	mode, err = ParseFetchMode("")
	require.NoError(t, err)
	assert.Equal(t, ModeRendered, mode)

	_, err = ParseFetchMode("selenium")
	assert.Error(t, err)
}
