package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/maltedev/product-card-scraper/internal/readiness"
	"github.com/maltedev/product-card-scraper/internal/selector"
)

type Rod struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	opts     *Options
	logger   *slog.Logger
}

func NewRod(opts *Options, logger *slog.Logger) (*Rod, error) {
	l := launcher.New().
		Headless(opts.Headless).
		Set("disable-blink-features", "AutomationControlled").
		Set("disable-dev-shm-usage").
		Set("window-size", fmt.Sprintf("%d,%d", opts.ViewportWidth, opts.ViewportHeight))

	if opts.ProxyServer != "" {
		l = l.Proxy(opts.ProxyServer)
	}

	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	browser := rod.New().ControlURL(controlURL)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}

	return &Rod{
		browser:  browser,
		launcher: l,
		opts:     opts,
		logger:   logger.With("component", "browser", "backend", BackendRod),
	}, nil
}

// Open navigates an incognito context to url. Closing the returned document
// disposes of the context.
func (b *Rod) Open(ctx context.Context, url string) (readiness.Document, error) {
	incognito, err := b.browser.Incognito()
	if err != nil {
		return nil, fmt.Errorf("failed to create browser context: %w", err)
	}

	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		incognito.Close()
		return nil, fmt.Errorf("failed to create new page: %w", err)
	}

	if err := page.SetUserAgent(&proto.NetworkSetUserAgentOverride{
		UserAgent:      b.opts.UserAgent,
		AcceptLanguage: b.opts.AcceptLanguage,
	}); err != nil {
		incognito.Close()
		return nil, fmt.Errorf("failed to set user agent: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             b.opts.ViewportWidth,
		Height:            b.opts.ViewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		incognito.Close()
		return nil, fmt.Errorf("failed to set viewport: %w", err)
	}

	if err := page.Context(ctx).Timeout(b.opts.Timeout).Navigate(url); err != nil {
		incognito.Close()
		return nil, fmt.Errorf("failed to navigate: %w", err)
	}

	b.logger.Debug("page opened", "url", url)

	return &rodDocument{incognito: incognito, page: page}, nil
}

func (b *Rod) Close() error {
	var errs []error
	if b.browser != nil {
		if err := b.browser.Close(); err != nil {
			errs = append(errs, fmt.Errorf("failed to close browser: %w", err))
		}
	}
	if b.launcher != nil {
		b.launcher.Kill()
	}
	return errors.Join(errs...)
}

type rodDocument struct {
	incognito *rod.Browser
	page      *rod.Page
}

// Lookup uses Has, which queries once instead of retrying until the element
// shows up.
func (d *rodDocument) Lookup(ctx context.Context, sel selector.Selector) (string, bool, error) {
	has, el, err := d.page.Context(ctx).Has(sel.CSS())
	if err != nil {
		return "", false, err
	}
	if !has {
		return "", false, nil
	}

	visible, err := el.Visible()
	if err != nil {
		return "", false, err
	}
	if !visible {
		return "", false, nil
	}

	text, err := el.Text()
	if err != nil {
		return "", false, err
	}
	return strings.TrimSpace(text), true, nil
}

func (d *rodDocument) Content(ctx context.Context) (string, error) {
	html, err := d.page.Context(ctx).HTML()
	if err != nil {
		return "", fmt.Errorf("failed to get page content: %w", err)
	}
	return html, nil
}

func (d *rodDocument) Close() error {
	if err := d.incognito.Close(); err != nil {
		return fmt.Errorf("failed to close context: %w", err)
	}
	return nil
}
