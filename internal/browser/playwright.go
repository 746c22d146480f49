package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/maltedev/product-card-scraper/internal/readiness"
	"github.com/maltedev/product-card-scraper/internal/selector"
	"github.com/playwright-community/playwright-go"
)

type Playwright struct {
	pw      *playwright.Playwright
	browser playwright.Browser
	opts    *Options
	logger  *slog.Logger
}

func NewPlaywright(opts *Options, logger *slog.Logger) (*Playwright, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to start playwright: %w", err)
	}

	launchOpts := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(opts.Headless),
		Args:     append(launchArgs(opts), "--user-agent="+opts.UserAgent),
	}

	if opts.ProxyServer != "" {
		launchOpts.Proxy = &playwright.Proxy{
			Server: opts.ProxyServer,
		}
	}

	browser, err := pw.Chromium.Launch(launchOpts)
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &Playwright{
		pw:      pw,
		browser: browser,
		opts:    opts,
		logger:  logger.With("component", "browser", "backend", BackendPlaywright),
	}, nil
}

// Open creates a fresh browser context, navigates to url and returns the
// live page. The context is closed on any failure here and otherwise by the
// returned document's Close.
func (b *Playwright) Open(_ context.Context, url string) (readiness.Document, error) {
	headers := make(map[string]string, len(b.opts.ExtraHeaders)+1)
	for k, v := range b.opts.ExtraHeaders {
		headers[k] = v
	}
	if b.opts.AcceptLanguage != "" {
		headers["Accept-Language"] = b.opts.AcceptLanguage
	}

	bctx, err := b.browser.NewContext(playwright.BrowserNewContextOptions{
		UserAgent:         playwright.String(b.opts.UserAgent),
		AcceptDownloads:   playwright.Bool(false),
		JavaScriptEnabled: playwright.Bool(true),
		Locale:            playwright.String(b.opts.Locale),
		TimezoneId:        playwright.String(b.opts.TimezoneID),
		Viewport: &playwright.Size{
			Width:  b.opts.ViewportWidth,
			Height: b.opts.ViewportHeight,
		},
		ExtraHttpHeaders: headers,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := bctx.NewPage()
	if err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}
	page.SetDefaultTimeout(float64(b.opts.Timeout.Milliseconds()))

	if _, err := page.Goto(url, playwright.PageGotoOptions{
		WaitUntil: playwright.WaitUntilStateDomcontentloaded,
		Timeout:   playwright.Float(float64(b.opts.Timeout.Milliseconds())),
	}); err != nil {
		bctx.Close()
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	b.logger.Debug("page opened", "url", url)

	return &playwrightDocument{context: bctx, page: page}, nil
}

func (b *Playwright) Close() error {
	var errs []error

	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}

	if b.pw != nil {
		if err := b.pw.Stop(); err != nil {
			errs = append(errs, fmt.Errorf("failed to stop playwright: %w", err))
		}
	}

	return errors.Join(errs...)
}

type playwrightDocument struct {
	context playwright.BrowserContext
	page    playwright.Page
}

type lookupResult struct {
	text  string
	found bool
	err   error
}

// Lookup queries the current DOM once without auto-waiting. Only visible
// elements count as rendered. Element calls block on the driver, so the
// query runs aside and ctx ending abandons it.
func (d *playwrightDocument) Lookup(ctx context.Context, sel selector.Selector) (string, bool, error) {
	done := make(chan lookupResult, 1)
	go func() {
		text, found, err := d.query(sel)
		done <- lookupResult{text: text, found: found, err: err}
	}()

	select {
	case <-ctx.Done():
		return "", false, ctx.Err()
	case r := <-done:
		return r.text, r.found, r.err
	}
}

func (d *playwrightDocument) query(sel selector.Selector) (string, bool, error) {
	el, err := d.page.QuerySelector(sel.CSS())
	if err != nil {
		return "", false, err
	}
	if el == nil {
		return "", false, nil
	}
	defer el.Dispose()

	visible, err := el.IsVisible()
	if err != nil {
		return "", false, err
	}
	if !visible {
		return "", false, nil
	}

	text, err := el.TextContent()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(text), true, nil
}

func (d *playwrightDocument) Content(context.Context) (string, error) {
	html, err := d.page.Content()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func (d *playwrightDocument) Close() error {
	if err := d.context.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}
