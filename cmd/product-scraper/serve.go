package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/maltedev/product-card-scraper/internal/api"
	"github.com/maltedev/product-card-scraper/internal/runner"
	"github.com/maltedev/product-card-scraper/internal/sink"
	"github.com/spf13/cobra"
)

var (
	listenPort string
	storeFile  bool
)

func newServeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Serve extraction over HTTP",
		Example: `  # POST {"url": "..."} to /api/v1/products
  product-scraper serve --port 8080`,
		RunE: runServe,
	}

	cmd.Flags().StringVar(&listenPort, "port", "", "Listen port; overrides SERVER_PORT")
	cmd.Flags().BoolVar(&storeFile, "store", false, "Also append extracted records to OUTPUT_FILE")

	return cmd
}

func runServe(cmd *cobra.Command, _ []string) error {
	a, err := newApp(cmd, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer a.close()

	if cmd.Flags().Changed("port") {
		a.cfg.Server.Port = listenPort
	}

	// Setup context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var out sink.Multi
	if storeFile {
		out = append(out, sink.NewFile(a.cfg.Output.File))
	}
	rs, err := a.redisSink(ctx)
	if err != nil {
		return err
	}
	if rs != nil {
		out = append(out, rs)
	}
	defer out.Close()

	var records sink.Sink
	if len(out) > 0 {
		records = out
	}

	batch := runner.New(a.engine, records, runner.Options{
		Workers:    a.cfg.Runner.Workers,
		MaxRetries: a.cfg.Runner.MaxRetries,
		RetryDelay: a.cfg.Runner.RetryDelay,
	}, a.logger)

	handlers := api.NewHandlers(a.engine, batch, records, a.logger)

	server := &http.Server{
		Addr: fmt.Sprintf("%s:%s", a.cfg.Server.Host, a.cfg.Server.Port),
		Handler: handlers.Routes(api.RouterOptions{
			AllowedOrigins: a.cfg.Server.AllowedOrigins,
			RequestTimeout: a.cfg.Server.WriteTimeout,
		}),
		ReadTimeout:  a.cfg.Server.ReadTimeout,
		WriteTimeout: a.cfg.Server.WriteTimeout,
		IdleTimeout:  60 * time.Second,
	}

	// Graceful shutdown
	shutdownDone := make(chan struct{})
	go func() {
		defer close(shutdownDone)
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
		select {
		case <-sigChan:
		case <-ctx.Done():
			return
		}

		a.logger.Info("shutting down server...")
		cancel()

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), a.cfg.Server.ShutdownTimeout)
		defer shutdownCancel()

		if err := server.Shutdown(shutdownCtx); err != nil {
			a.logger.Error("server shutdown failed", "error", err)
		}
	}()

	a.logger.Info("server starting", "addr", server.Addr)
	if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("server failed: %w", err)
	}
	<-shutdownDone

	a.logger.Info("server stopped")
	return nil
}
