package runner

import (
	"context"
	"fmt"
	"path/filepath"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/maltedev/product-card-scraper/internal/parser"
	"github.com/maltedev/product-card-scraper/internal/scraper"
	"github.com/maltedev/product-card-scraper/internal/sink"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// scriptedScraper returns the queued errors for a URL in order, then
// succeeds.
type scriptedScraper struct {
	mu     sync.Mutex
	script map[string][]error
	calls  map[string]int
	active atomic.Int32
	peak   atomic.Int32
	delay  time.Duration
}

func newScripted(script map[string][]error) *scriptedScraper {
	return &scriptedScraper{script: script, calls: make(map[string]int)}
}

func (s *scriptedScraper) Scrape(ctx context.Context, url string) *models.ScrapeResult {
	record, err := s.extract(ctx, url)
	return scraper.NewResult(url, record, err)
}

func (s *scriptedScraper) extract(ctx context.Context, url string) (models.ProductRecord, error) {
	n := s.active.Add(1)
	defer s.active.Add(-1)
	for {
		peak := s.peak.Load()
		if n <= peak || s.peak.CompareAndSwap(peak, n) {
			break
		}
	}

	if s.delay > 0 {
		select {
		case <-ctx.Done():
			return models.ProductRecord{}, ctx.Err()
		case <-time.After(s.delay):
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	attempt := s.calls[url]
	s.calls[url]++
	if errs := s.script[url]; attempt < len(errs) {
		return models.ProductRecord{}, errs[attempt]
	}
	return models.ProductRecord{VendorCode: url, PriceWithSale: "10", Price: "10"}, nil
}

func (s *scriptedScraper) callsFor(url string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls[url]
}

func fastOptions() Options {
	return Options{Workers: 2, MaxRetries: 1, RetryDelay: time.Millisecond}
}

func TestRunAllSucceed(t *testing.T) {
	file := sink.NewFile(filepath.Join(t.TempDir(), "products.json"))
	urls := []string{"u1", "u2", "u3", "u4", "u5"}

	summary, err := New(newScripted(nil), file, fastOptions(), nil).Run(context.Background(), urls)
	require.NoError(t, err)

	assert.Equal(t, 5, summary.Total)
	assert.Equal(t, 5, summary.Succeeded)
	assert.Zero(t, summary.Failed())
	assert.Equal(t, 5, summary.ByCode["ok"])
	assert.Len(t, file.Records(), 5)
	assert.ElementsMatch(t, file.Records(), summary.Products)
}

func TestRunRetriesTimedOutOnly(t *testing.T) {
	timedOut := fmt.Errorf("%w: slow page", scraper.ErrTimedOut)
	notFound := fmt.Errorf("%w: gone", scraper.ErrNotFound)
	missing := fmt.Errorf("extracting: %w", &parser.MissingFieldError{Field: parser.FieldBrand})

	ex := newScripted(map[string][]error{
		"slow-once":   {timedOut},
		"always-slow": {timedOut, timedOut, timedOut},
		"gone":        {notFound},
		"broken":      {missing},
	})

	summary, err := New(ex, nil, fastOptions(), nil).Run(context.Background(),
		[]string{"fine", "slow-once", "always-slow", "gone", "broken"})
	require.NoError(t, err)

	assert.Equal(t, 2, ex.callsFor("slow-once"))
	assert.Equal(t, 2, ex.callsFor("always-slow"))
	assert.Equal(t, 1, ex.callsFor("gone"))
	assert.Equal(t, 1, ex.callsFor("broken"))

	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 2, summary.Retried)
	require.Len(t, summary.Products, 2)
	codes := []string{summary.Products[0].VendorCode, summary.Products[1].VendorCode}
	assert.ElementsMatch(t, []string{"fine", "slow-once"}, codes)
	assert.Equal(t, 3, summary.Failed())
	assert.Equal(t, map[string]int{
		"ok":                     2,
		scraper.CodeTimedOut:     1,
		scraper.CodeNotFound:     1,
		scraper.CodeMissingField: 1,
	}, summary.ByCode)

	for _, f := range summary.Failures {
		if f.URL == "broken" {
			assert.Equal(t, parser.FieldBrand, f.Error.Field)
		}
	}
}

func TestRunNoRetries(t *testing.T) {
	ex := newScripted(map[string][]error{"slow": {scraper.ErrTimedOut}})
	opts := fastOptions()
	opts.MaxRetries = 0

	summary, err := New(ex, nil, opts, nil).Run(context.Background(), []string{"slow"})
	require.NoError(t, err)
	assert.Equal(t, 1, ex.callsFor("slow"))
	assert.Equal(t, 1, summary.ByCode[scraper.CodeTimedOut])
}

func TestRunBoundsConcurrency(t *testing.T) {
	ex := newScripted(nil)
	ex.delay = 10 * time.Millisecond

	opts := fastOptions()
	opts.Workers = 3
	urls := make([]string, 12)
	for i := range urls {
		urls[i] = fmt.Sprintf("u%d", i)
	}

	summary, err := New(ex, nil, opts, nil).Run(context.Background(), urls)
	require.NoError(t, err)
	assert.Equal(t, 12, summary.Succeeded)
	assert.LessOrEqual(t, ex.peak.Load(), int32(3))
}

func TestRunCancelled(t *testing.T) {
	ex := newScripted(nil)
	ex.delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Millisecond)
	defer cancel()

	start := time.Now()
	_, err := New(ex, nil, fastOptions(), nil).Run(ctx, []string{"a", "b", "c", "d"})
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.Less(t, time.Since(start), 500*time.Millisecond)
}

func TestRunWithoutSinkKeepsProducts(t *testing.T) {
	summary, err := New(newScripted(nil), nil, fastOptions(), nil).Run(context.Background(), []string{"a", "b"})
	require.NoError(t, err)
	require.Len(t, summary.Products, 2)
	assert.ElementsMatch(t, []string{"a", "b"}, []string{summary.Products[0].VendorCode, summary.Products[1].VendorCode})
}

func TestRunEmpty(t *testing.T) {
	summary, err := New(newScripted(nil), nil, fastOptions(), nil).Run(context.Background(), nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Total)
}

type brokenSink struct{}

func (brokenSink) Write(context.Context, models.ProductRecord) error { return fmt.Errorf("disk full") }
func (brokenSink) Close() error                                     { return nil }

func TestRunSinkFailureStopsBatch(t *testing.T) {
	_, err := New(newScripted(nil), brokenSink{}, fastOptions(), nil).Run(context.Background(), []string{"a", "b"})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "disk full")
}
