package scraper

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/maltedev/product-card-scraper/internal/parser"
	"github.com/maltedev/product-card-scraper/internal/readiness"
	"github.com/maltedev/product-card-scraper/internal/selector"
)

type FetchMode string

const (
	ModeRendered FetchMode = "rendered"
	ModeStatic   FetchMode = "static"
)

func ParseFetchMode(s string) (FetchMode, error) {
	switch m := FetchMode(strings.ToLower(strings.TrimSpace(s))); m {
	case ModeRendered, ModeStatic:
		return m, nil
	case "":
		return ModeRendered, nil
	default:
		return "", fmt.Errorf("unknown fetch mode %q", s)
	}
}

// Config selects the page variant the engine expects. Selectors default to
// the known product card markup.
type Config struct {
	Mode         FetchMode
	Deadline     time.Duration
	PollInterval time.Duration

	// Container restricts extraction to the product panel.
	Container selector.Selector
	// ProviderSelectors are both the readiness markers and the seller lookup
	// chain, in priority order.
	ProviderSelectors []selector.Selector
	// AbsenceMarker identifies a "page not found" document. Zero disables
	// the check.
	AbsenceMarker selector.Selector
	// CaptureProvider takes the seller from the text seen at readiness time
	// instead of looking it up again in the snapshot.
	CaptureProvider bool

	Fields parser.Fields
}

func DefaultConfig() Config {
	fields := parser.DefaultFields()
	return Config{
		Mode:              ModeRendered,
		Deadline:          readiness.DefaultDeadline,
		PollInterval:      readiness.DefaultPollInterval,
		Container:         selector.Class("product-detail"),
		ProviderSelectors: fields.Providers,
		AbsenceMarker:     selector.Class("content404"),
		CaptureProvider:   true,
		Fields:            fields,
	}
}

func (c Config) Validate() error {
	if len(c.ProviderSelectors) == 0 {
		return fmt.Errorf("at least one provider selector is required")
	}
	if c.Fields.FinalPrice.IsZero() || c.Fields.Header.IsZero() || c.Fields.VendorCode.IsZero() {
		return fmt.Errorf("final price, header and vendor code selectors are required")
	}
	if c.Mode == ModeRendered && c.Deadline <= 0 {
		return fmt.Errorf("readiness deadline must be positive")
	}
	if c.PollInterval <= 0 {
		return fmt.Errorf("poll interval must be positive")
	}
	return nil
}

// Engine runs one extraction per call: validate, open, wait for readiness,
// snapshot, scope and extract. Engines hold no per-call state and may be used
// from several goroutines as long as the Source opens independent sessions.
type Engine struct {
	cfg       Config
	source    Source
	waiter    *readiness.Waiter
	extractor *parser.Extractor
	logger    *slog.Logger
}

func NewEngine(cfg Config, source Source, logger *slog.Logger) (*Engine, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid engine config: %w", err)
	}
	if logger == nil {
		logger = slog.Default()
	}

	// A static snapshot never changes, so one pass decides readiness.
	deadline := cfg.Deadline
	if cfg.Mode == ModeStatic {
		deadline = 0
	}

	fields := cfg.Fields
	fields.Providers = cfg.ProviderSelectors

	return &Engine{
		cfg:       cfg,
		source:    source,
		waiter:    readiness.NewWaiter(deadline, cfg.PollInterval, logger),
		extractor: parser.NewExtractor(fields),
		logger:    logger.With("component", "engine"),
	}, nil
}

// Extract returns the product record for rawURL or a failure classified by
// Code. The document session is closed on every path.
func (e *Engine) Extract(ctx context.Context, rawURL string) (models.ProductRecord, error) {
	u, err := ValidateURL(rawURL)
	if err != nil {
		return models.ProductRecord{}, err
	}
	target := u.String()
	start := time.Now()

	doc, err := e.source.Open(ctx, target)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("%w: %w", ErrUnreachable, err)
	}
	defer func() {
		if closeErr := doc.Close(); closeErr != nil {
			e.logger.Warn("failed to close document", "url", target, "error", closeErr)
		}
	}()

	outcome, err := e.waiter.Wait(ctx, doc, e.cfg.ProviderSelectors, e.cfg.AbsenceMarker)
	if err != nil {
		return models.ProductRecord{}, err
	}

	e.logger.Debug("readiness decided",
		"url", target,
		"state", outcome.State.String(),
		"selector", outcome.Matched.String(),
		"attempts", outcome.Attempts,
		"elapsed", outcome.Elapsed,
	)

	switch outcome.State {
	case readiness.NotFound:
		return models.ProductRecord{}, fmt.Errorf("%w: %s", ErrNotFound, target)
	case readiness.TimedOut:
		return models.ProductRecord{}, fmt.Errorf("%w: %s after %s", ErrTimedOut, target, outcome.Elapsed.Round(time.Millisecond))
	}

	html, err := doc.Content(ctx)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("failed to snapshot %s: %w", target, err)
	}

	scoped, err := parser.Scope(html, e.cfg.Container)
	if err != nil {
		return models.ProductRecord{}, err
	}
	if scoped.Empty() {
		e.logger.Warn("product container missing", "url", target, "container", e.cfg.Container.String())
	}

	var hint string
	if e.cfg.CaptureProvider {
		hint = outcome.Text
	}

	record, err := e.extractor.Extract(scoped, hint)
	if err != nil {
		return models.ProductRecord{}, fmt.Errorf("extracting %s: %w", target, err)
	}

	e.logger.Info("product extracted",
		"url", target,
		"vendor_code", record.VendorCode,
		"discount", record.HasDiscount(),
		"elapsed", time.Since(start),
	)

	return record, nil
}

// Scrape wraps Extract into a ScrapeResult for the runner and API responses.
func (e *Engine) Scrape(ctx context.Context, rawURL string) *models.ScrapeResult {
	record, err := e.Extract(ctx, rawURL)
	return NewResult(rawURL, record, err)
}
