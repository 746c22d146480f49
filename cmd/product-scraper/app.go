package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/maltedev/product-card-scraper/internal/browser"
	"github.com/maltedev/product-card-scraper/internal/config"
	"github.com/maltedev/product-card-scraper/internal/fetcher"
	"github.com/maltedev/product-card-scraper/internal/scraper"
	"github.com/maltedev/product-card-scraper/internal/sink"
	"github.com/maltedev/product-card-scraper/pkg/logger"
	"github.com/redis/go-redis/v9"
	"github.com/spf13/cobra"
)

// app holds everything a subcommand needs. close releases it in reverse
// order of construction.
type app struct {
	cfg     *config.Config
	logger  *slog.Logger
	engine  *scraper.Engine
	closers []func() error
}

func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, err
	}
	applyFlags(cmd, cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

// applyFlags lets explicitly set flags win over the environment.
func applyFlags(cmd *cobra.Command, cfg *config.Config) {
	flags := cmd.Flags()
	if flags.Changed("log-level") {
		cfg.Logging.Level = logLevel
	}
	if flags.Changed("log-format") {
		cfg.Logging.Format = logFormat
	}
	if flags.Changed("mode") {
		cfg.Engine.FetchMode = fetchMode
	}
	if flags.Changed("backend") {
		cfg.Browser.Backend = backend
	}
	if flags.Changed("showui") {
		cfg.Browser.Headless = !showUI
	}
	if flags.Changed("deadline") {
		cfg.Engine.Deadline = deadline
	}
	if flags.Changed("proxy") {
		cfg.Browser.Proxy = proxyURL
	}
	if noAbsence {
		cfg.Engine.AbsenceMarker = ""
	}
	if lazyProvider {
		cfg.Engine.CaptureProvider = false
	}
}

// newApp wires the engine. Logs go to logOut so that commands printing
// results on stdout can keep the two streams apart.
func newApp(cmd *cobra.Command, logOut io.Writer) (*app, error) {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return nil, err
	}

	log := logger.NewWithWriter(logOut, cfg.Logging.Level, cfg.Logging.Format)
	slog.SetDefault(log)

	engineCfg, err := cfg.ScraperConfig()
	if err != nil {
		return nil, err
	}

	a := &app{cfg: cfg, logger: log}

	var source scraper.Source
	if engineCfg.Mode == scraper.ModeStatic {
		source = fetcher.NewStatic(cfg.StaticOptions(), log)
	} else {
		renderer, err := browser.New(cfg.BrowserOptions(), log)
		if err != nil {
			return nil, fmt.Errorf("failed to initialize browser: %w", err)
		}
		a.closers = append(a.closers, renderer.Close)
		source = renderer
	}

	a.engine, err = scraper.NewEngine(engineCfg, source, log)
	if err != nil {
		a.close()
		return nil, err
	}

	log.Info("engine ready",
		"mode", engineCfg.Mode,
		"backend", cfg.Browser.Backend,
		"deadline", engineCfg.Deadline,
		"absence_check", !engineCfg.AbsenceMarker.IsZero(),
		"capture_provider", engineCfg.CaptureProvider,
	)
	return a, nil
}

// redisSink connects to Redis when an output stream is configured.
func (a *app) redisSink(ctx context.Context) (sink.Sink, error) {
	if a.cfg.Output.RedisStream == "" {
		return nil, nil
	}

	client := redis.NewClient(&redis.Options{
		Addr:     a.cfg.Redis.Addr,
		Password: a.cfg.Redis.Password,
		DB:       a.cfg.Redis.DB,
	})

	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	return sink.NewRedisStream(client, a.cfg.Output.RedisStream, a.cfg.Output.StreamLen, a.logger), nil
}

func (a *app) close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("cleanup failed", "error", err)
		}
	}
	a.closers = nil
}
