package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/product-card-scraper/internal/readiness"
)

type Backend string

const (
	BackendPlaywright Backend = "playwright"
	BackendRod        Backend = "rod"
)

func ParseBackend(s string) (Backend, error) {
	switch b := Backend(strings.ToLower(strings.TrimSpace(s))); b {
	case BackendPlaywright, BackendRod:
		return b, nil
	case "":
		return BackendPlaywright, nil
	default:
		return "", fmt.Errorf("unknown browser backend %q", s)
	}
}

// Renderer opens product pages in a real browser. Every Open gets its own
// isolated browser context which is released by closing the document.
type Renderer interface {
	Open(ctx context.Context, url string) (readiness.Document, error)
	Close() error
}

type Options struct {
	Backend        Backend
	Headless       bool
	Timeout        time.Duration
	UserAgent      string
	ViewportWidth  int
	ViewportHeight int
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	ProxyServer    string
	ExtraHeaders   map[string]string
}

func DefaultOptions() *Options {
	return &Options{
		Backend:        BackendPlaywright,
		Headless:       true,
		Timeout:        30 * time.Second,
		UserAgent:      "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/120.0.0.0 Safari/537.36",
		ViewportWidth:  1920,
		ViewportHeight: 1080,
		AcceptLanguage: "ru-RU,ru;q=0.9,en;q=0.8",
		TimezoneID:     "Europe/Moscow",
		Locale:         "ru-RU",
		ExtraHeaders: map[string]string{
			"Accept": "text/html,application/xhtml+xml,application/xml;q=0.9,image/webp,*/*;q=0.8",
			"DNT":    "1",
		},
	}
}

// launchArgs hides the automation flag the way the headless driver setup
// always has.
func launchArgs(opts *Options) []string {
	return []string{
		"--disable-blink-features=AutomationControlled",
		"--disable-dev-shm-usage",
		"--no-sandbox",
		fmt.Sprintf("--window-size=%d,%d", opts.ViewportWidth, opts.ViewportHeight),
	}
}

// New starts the renderer selected by opts.Backend.
func New(opts *Options, logger *slog.Logger) (Renderer, error) {
	if opts == nil {
		opts = DefaultOptions()
	}
	if logger == nil {
		logger = slog.Default()
	}

	switch opts.Backend {
	case BackendRod:
		return NewRod(opts, logger)
	case BackendPlaywright, "":
		return NewPlaywright(opts, logger)
	default:
		return nil, fmt.Errorf("unknown browser backend %q", opts.Backend)
	}
}
