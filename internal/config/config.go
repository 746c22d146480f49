package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/maltedev/product-card-scraper/internal/browser"
	"github.com/maltedev/product-card-scraper/internal/fetcher"
	"github.com/maltedev/product-card-scraper/internal/readiness"
	"github.com/maltedev/product-card-scraper/internal/scraper"
	"github.com/maltedev/product-card-scraper/internal/selector"
)

type Config struct {
	Engine  EngineConfig
	Browser BrowserConfig
	Static  StaticConfig
	Server  ServerConfig
	Runner  RunnerConfig
	Output  OutputConfig
	Redis   RedisConfig
	Logging LoggingConfig
}

type EngineConfig struct {
	FetchMode         string
	Deadline          time.Duration
	PollInterval      time.Duration
	Container         string
	ProviderSelectors []string
	AbsenceMarker     string
	CaptureProvider   bool
}

type BrowserConfig struct {
	Backend        string
	Headless       bool
	Timeout        time.Duration
	ViewportWidth  int
	ViewportHeight int
	UserAgent      string
	AcceptLanguage string
	TimezoneID     string
	Locale         string
	Proxy          string
}

type StaticConfig struct {
	Timeout   time.Duration
	UserAgent string
}

type ServerConfig struct {
	Port            string
	Host            string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	ShutdownTimeout time.Duration
	AllowedOrigins  []string
}

type RunnerConfig struct {
	Workers    int
	MaxRetries int
	RetryDelay time.Duration
}

type OutputConfig struct {
	File        string
	Format      string
	RedisStream string
	StreamLen   int64
}

type RedisConfig struct {
	Addr     string
	Password string
	DB       int
}

type LoggingConfig struct {
	Level  string
	Format string
}

// Load reads the configuration from the environment. Variables in an
// optional .env file are applied first without overriding ones already set.
func Load() (*Config, error) {
	if err := godotenv.Load(); err != nil && !os.IsNotExist(err) {
		return nil, fmt.Errorf("failed to load .env: %w", err)
	}

	defaults := scraper.DefaultConfig()

	cfg := &Config{
		Engine: EngineConfig{
			FetchMode:         getEnvOrDefault("FETCH_MODE", string(scraper.ModeRendered)),
			Deadline:          getDurationOrDefault("READINESS_DEADLINE", readiness.DefaultDeadline),
			PollInterval:      getDurationOrDefault("POLL_INTERVAL", readiness.DefaultPollInterval),
			Container:         getEnvOrDefault("CONTAINER_SELECTOR", defaults.Container.String()),
			ProviderSelectors: getStringSliceOrDefault("PROVIDER_SELECTORS", selector.Strings(defaults.ProviderSelectors)),
			AbsenceMarker:     getSetOrDefault("ABSENCE_MARKER_SELECTOR", defaults.AbsenceMarker.String()),
			CaptureProvider:   getBoolOrDefault("CAPTURE_PROVIDER", defaults.CaptureProvider),
		},
		Browser: BrowserConfig{
			Backend:        getEnvOrDefault("BROWSER_BACKEND", string(browser.BackendPlaywright)),
			Headless:       getBoolOrDefault("BROWSER_HEADLESS", true),
			Timeout:        getDurationOrDefault("BROWSER_TIMEOUT", 30*time.Second),
			ViewportWidth:  getIntOrDefault("BROWSER_VIEWPORT_WIDTH", 1920),
			ViewportHeight: getIntOrDefault("BROWSER_VIEWPORT_HEIGHT", 1080),
			UserAgent:      getEnvOrDefault("BROWSER_USER_AGENT", ""),
			AcceptLanguage: getEnvOrDefault("BROWSER_ACCEPT_LANGUAGE", "ru-RU,ru;q=0.9,en;q=0.8"),
			TimezoneID:     getEnvOrDefault("BROWSER_TIMEZONE", "Europe/Moscow"),
			Locale:         getEnvOrDefault("BROWSER_LOCALE", "ru-RU"),
			Proxy:          getEnvOrDefault("BROWSER_PROXY", ""),
		},
		Static: StaticConfig{
			Timeout:   getDurationOrDefault("STATIC_TIMEOUT", 15*time.Second),
			UserAgent: getEnvOrDefault("STATIC_USER_AGENT", ""),
		},
		Server: ServerConfig{
			Port:            getEnvOrDefault("SERVER_PORT", "8080"),
			Host:            getEnvOrDefault("SERVER_HOST", "0.0.0.0"),
			ReadTimeout:     getDurationOrDefault("SERVER_READ_TIMEOUT", 15*time.Second),
			WriteTimeout:    getDurationOrDefault("SERVER_WRITE_TIMEOUT", 60*time.Second),
			ShutdownTimeout: getDurationOrDefault("SERVER_SHUTDOWN_TIMEOUT", 30*time.Second),
			AllowedOrigins:  getStringSliceOrDefault("SERVER_ALLOWED_ORIGINS", []string{"http://localhost:*", "https://localhost:*"}),
		},
		Runner: RunnerConfig{
			Workers:    getIntOrDefault("RUNNER_WORKERS", 2),
			MaxRetries: getIntOrDefault("RUNNER_MAX_RETRIES", 1),
			RetryDelay: getDurationOrDefault("RUNNER_RETRY_DELAY", time.Second),
		},
		Output: OutputConfig{
			File:        getEnvOrDefault("OUTPUT_FILE", "products.json"),
			Format:      getEnvOrDefault("OUTPUT_FORMAT", "json"),
			RedisStream: getEnvOrDefault("OUTPUT_REDIS_STREAM", ""),
			StreamLen:   int64(getIntOrDefault("OUTPUT_REDIS_STREAM_MAXLEN", 10000)),
		},
		Redis: RedisConfig{
			Addr:     getEnvOrDefault("REDIS_ADDR", "localhost:6379"),
			Password: getEnvOrDefault("REDIS_PASSWORD", ""),
			DB:       getIntOrDefault("REDIS_DB", 0),
		},
		Logging: LoggingConfig{
			Level:  getEnvOrDefault("LOG_LEVEL", "info"),
			Format: getEnvOrDefault("LOG_FORMAT", "json"),
		},
	}

	return cfg, nil
}

func (c *Config) Validate() error {
	if _, err := c.ScraperConfig(); err != nil {
		return err
	}

	if _, err := browser.ParseBackend(c.Browser.Backend); err != nil {
		return fmt.Errorf("BROWSER_BACKEND: %w", err)
	}

	if c.Runner.Workers < 1 {
		return fmt.Errorf("RUNNER_WORKERS must be at least 1")
	}

	if c.Runner.MaxRetries < 0 {
		return fmt.Errorf("RUNNER_MAX_RETRIES cannot be negative")
	}

	switch c.Output.Format {
	case "json", "table":
	default:
		return fmt.Errorf("OUTPUT_FORMAT must be json or table, got %q", c.Output.Format)
	}

	return nil
}

// ScraperConfig converts the engine section into the engine's own config,
// parsing every selector.
func (c *Config) ScraperConfig() (scraper.Config, error) {
	out := scraper.DefaultConfig()

	mode, err := scraper.ParseFetchMode(c.Engine.FetchMode)
	if err != nil {
		return out, fmt.Errorf("FETCH_MODE: %w", err)
	}
	out.Mode = mode

	if out.Container, err = selector.Parse(c.Engine.Container); err != nil {
		return out, fmt.Errorf("CONTAINER_SELECTOR: %w", err)
	}

	if out.ProviderSelectors, err = selector.ParseList(strings.Join(c.Engine.ProviderSelectors, ",")); err != nil {
		return out, fmt.Errorf("PROVIDER_SELECTORS: %w", err)
	}

	if out.AbsenceMarker, err = selector.Parse(c.Engine.AbsenceMarker); err != nil {
		return out, fmt.Errorf("ABSENCE_MARKER_SELECTOR: %w", err)
	}

	out.Deadline = c.Engine.Deadline
	out.PollInterval = c.Engine.PollInterval
	out.CaptureProvider = c.Engine.CaptureProvider

	if err := out.Validate(); err != nil {
		return out, err
	}
	return out, nil
}

func (c *Config) BrowserOptions() *browser.Options {
	opts := browser.DefaultOptions()
	opts.Backend = browser.Backend(strings.ToLower(c.Browser.Backend))
	opts.Headless = c.Browser.Headless
	opts.Timeout = c.Browser.Timeout
	opts.ViewportWidth = c.Browser.ViewportWidth
	opts.ViewportHeight = c.Browser.ViewportHeight
	opts.AcceptLanguage = c.Browser.AcceptLanguage
	opts.TimezoneID = c.Browser.TimezoneID
	opts.Locale = c.Browser.Locale
	opts.ProxyServer = c.Browser.Proxy
	if c.Browser.UserAgent != "" {
		opts.UserAgent = c.Browser.UserAgent
	}
	return opts
}

func (c *Config) StaticOptions() *fetcher.Options {
	opts := fetcher.DefaultOptions()
	opts.Timeout = c.Static.Timeout
	if c.Static.UserAgent != "" {
		opts.UserAgent = c.Static.UserAgent
	}
	return opts
}

func getEnvOrDefault(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getSetOrDefault treats a variable that is set to "" as an explicit value.
func getSetOrDefault(key, defaultValue string) string {
	if value, ok := os.LookupEnv(key); ok {
		return strings.TrimSpace(value)
	}
	return defaultValue
}

func getIntOrDefault(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if i, err := strconv.Atoi(value); err == nil {
			return i
		}
	}
	return defaultValue
}

func getBoolOrDefault(key string, defaultValue bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return defaultValue
}

func getDurationOrDefault(key string, defaultValue time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return defaultValue
}

func getStringSliceOrDefault(key string, defaultValue []string) []string {
	if value := os.Getenv(key); value != "" {
		parts := strings.Split(value, ",")
		out := make([]string, 0, len(parts))
		for _, p := range parts {
			if p = strings.TrimSpace(p); p != "" {
				out = append(out, p)
			}
		}
		return out
	}
	return defaultValue
}
