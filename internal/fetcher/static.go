package fetcher

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-resty/resty/v2"
	"github.com/maltedev/product-card-scraper/internal/readiness"
	"github.com/maltedev/product-card-scraper/internal/selector"
)

var ErrServerError = errors.New("server error")

type Options struct {
	Timeout      time.Duration
	UserAgent    string
	ExtraHeaders map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Timeout:   15 * time.Second,
		UserAgent: "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ExtraHeaders: map[string]string{
			"Accept":          "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8",
			"Accept-Language": "ru-RU,ru;q=0.9,en;q=0.8",
		},
	}
}

// Static fetches pages with a plain HTTP GET. Nothing on the page is
// executed, so only server-rendered markup is visible.
type Static struct {
	client *resty.Client
	logger *slog.Logger
}

func NewStatic(opts *Options, logger *slog.Logger) *Static {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	client := resty.New().
		SetTimeout(opts.Timeout).
		SetHeader("User-Agent", opts.UserAgent).
		SetHeaders(opts.ExtraHeaders)

	return &Static{
		client: client,
		logger: logger.With("component", "static_fetcher"),
	}
}

// Fetch downloads url. Client error statuses still return a document because
// not-found pages carry the markers the readiness check looks for; transport
// failures and 5xx responses are errors.
func (s *Static) Fetch(ctx context.Context, url string) (*Document, error) {
	start := time.Now()

	resp, err := s.client.R().SetContext(ctx).Get(url)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", url, err)
	}

	if resp.StatusCode() >= http.StatusInternalServerError {
		return nil, fmt.Errorf("%w: %s returned %d", ErrServerError, url, resp.StatusCode())
	}

	s.logger.Debug("page fetched",
		"url", url,
		"status", resp.StatusCode(),
		"bytes", len(resp.Body()),
		"elapsed", time.Since(start),
	)

	return NewDocument(resp.String(), resp.StatusCode())
}

// Open lets Static serve as the engine's document source.
func (s *Static) Open(ctx context.Context, url string) (readiness.Document, error) {
	doc, err := s.Fetch(ctx, url)
	if err != nil {
		return nil, err
	}
	return doc, nil
}

// Document is an immutable snapshot that satisfies readiness.Document, so
// the static path runs through the same readiness policy as rendered pages.
type Document struct {
	raw    string
	status int
	doc    *goquery.Document
}

func NewDocument(raw string, status int) (*Document, error) {
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}
	return &Document{raw: raw, status: status, doc: doc}, nil
}

func (d *Document) Status() int {
	return d.status
}

func (d *Document) Lookup(_ context.Context, sel selector.Selector) (string, bool, error) {
	match := d.doc.Find(sel.CSS()).First()
	if match.Length() == 0 {
		return "", false, nil
	}
	return strings.TrimSpace(match.Text()), true, nil
}

func (d *Document) Content(context.Context) (string, error) {
	return d.raw, nil
}

func (d *Document) Close() error {
	return nil
}
