package config

import (
	"testing"
	"time"

	"github.com/maltedev/product-card-scraper/internal/browser"
	"github.com/maltedev/product-card-scraper/internal/scraper"
	"github.com/maltedev/product-card-scraper/internal/selector"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadDefaults(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	assert.Equal(t, "rendered", cfg.Engine.FetchMode)
	assert.Equal(t, 5*time.Second, cfg.Engine.Deadline)
	assert.Equal(t, 50*time.Millisecond, cfg.Engine.PollInterval)
	assert.Equal(t, "class=product-detail", cfg.Engine.Container)
	assert.Equal(t, []string{"class=seller-details__title", "class=seller-info__name"}, cfg.Engine.ProviderSelectors)
	assert.Equal(t, "class=content404", cfg.Engine.AbsenceMarker)
	assert.True(t, cfg.Engine.CaptureProvider)
	assert.Equal(t, "products.json", cfg.Output.File)
	assert.Equal(t, "8080", cfg.Server.Port)

	sc, err := cfg.ScraperConfig()
	require.NoError(t, err)
	assert.Equal(t, scraper.DefaultConfig().ProviderSelectors, sc.ProviderSelectors)
	assert.Equal(t, selector.Class("content404"), sc.AbsenceMarker)
}

func TestLoadFromEnvironment(t *testing.T) {
	t.Setenv("FETCH_MODE", "static")
	t.Setenv("READINESS_DEADLINE", "2s")
	t.Setenv("POLL_INTERVAL", "25ms")
	t.Setenv("CONTAINER_SELECTOR", "id=card")
	t.Setenv("PROVIDER_SELECTORS", "class=seller-info__name, div:class=seller")
	t.Setenv("CAPTURE_PROVIDER", "false")
	t.Setenv("BROWSER_BACKEND", "rod")
	t.Setenv("BROWSER_USER_AGENT", "test-agent")
	t.Setenv("RUNNER_WORKERS", "4")
	t.Setenv("OUTPUT_FORMAT", "table")

	cfg, err := Load()
	require.NoError(t, err)
	require.NoError(t, cfg.Validate())

	sc, err := cfg.ScraperConfig()
	require.NoError(t, err)
	assert.Equal(t, scraper.ModeStatic, sc.Mode)
	assert.Equal(t, 2*time.Second, sc.Deadline)
	assert.Equal(t, 25*time.Millisecond, sc.PollInterval)
	assert.Equal(t, selector.ID("card"), sc.Container)
	assert.Equal(t, []selector.Selector{
		selector.Class("seller-info__name"),
		selector.Class("seller").In("div"),
	}, sc.ProviderSelectors)
	assert.False(t, sc.CaptureProvider)

	opts := cfg.BrowserOptions()
	assert.Equal(t, browser.BackendRod, opts.Backend)
	assert.Equal(t, "test-agent", opts.UserAgent)
	assert.Equal(t, 4, cfg.Runner.Workers)
}

func TestEmptyAbsenceMarkerDisablesCheck(t *testing.T) {
	t.Setenv("ABSENCE_MARKER_SELECTOR", "")

	cfg, err := Load()
	require.NoError(t, err)

	sc, err := cfg.ScraperConfig()
	require.NoError(t, err)
	assert.True(t, sc.AbsenceMarker.IsZero())
}

func TestInvalidValuesFallBack(t *testing.T) {
	t.Setenv("READINESS_DEADLINE", "soon")
	t.Setenv("RUNNER_WORKERS", "many")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, 5*time.Second, cfg.Engine.Deadline)
	assert.Equal(t, 2, cfg.Runner.Workers)
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		key    string
		value  string
		errMsg string
	}{
		{"unknown fetch mode", "FETCH_MODE", "ftp", "FETCH_MODE"},
		{"bad container", "CONTAINER_SELECTOR", "class=two words", "CONTAINER_SELECTOR"},
		{"bad provider kind", "PROVIDER_SELECTORS", "xpath=//div", "PROVIDER_SELECTORS"},
		{"unknown backend", "BROWSER_BACKEND", "selenium", "BROWSER_BACKEND"},
		{"no workers", "RUNNER_WORKERS", "0", "RUNNER_WORKERS"},
		{"negative retries", "RUNNER_MAX_RETRIES", "-1", "RUNNER_MAX_RETRIES"},
		{"unknown output", "OUTPUT_FORMAT", "xml", "OUTPUT_FORMAT"},
		{"zero deadline", "READINESS_DEADLINE", "0s", "deadline"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Setenv(tt.key, tt.value)

			cfg, err := Load()
			require.NoError(t, err)

			err = cfg.Validate()
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestStaticOptions(t *testing.T) {
	t.Setenv("STATIC_TIMEOUT", "3s")

	cfg, err := Load()
	require.NoError(t, err)
	opts := cfg.StaticOptions()
	assert.Equal(t, 3*time.Second, opts.Timeout)
	assert.NotEmpty(t, opts.UserAgent)
}
