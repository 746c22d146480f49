package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/maltedev/product-card-scraper/internal/runner"
	"github.com/maltedev/product-card-scraper/internal/scraper"
	"github.com/maltedev/product-card-scraper/internal/sink"
	"github.com/spf13/cobra"
)

var (
	urlFile      string
	outputFile   string
	outputFormat string
	workers      int
	maxRetries   int
	quiet        bool
)

// errExtractionFailed makes the process exit non-zero after the failure
// was already reported on stderr.
var errExtractionFailed = errors.New("extraction failed")

func newScrapeCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "scrape [URL...]",
		Short: "Extract one or more product pages",
		Example: `  # Extract a single product card into products.json
  product-scraper scrape https://www.wildberries.ru/catalog/77001/detail.aspx

  # Use the static fetcher and print a table
  product-scraper scrape -m static -f table https://www.wildberries.ru/catalog/77001/detail.aspx

  # Run a batch from a file, one URL per line
  product-scraper scrape --file urls.txt -w 4 -o batch.json`,
		RunE: runScrape,
	}

	cmd.Flags().StringVar(&urlFile, "file", "", "Read URLs from file, one per line (# starts a comment)")
	cmd.Flags().StringVarP(&outputFile, "output", "o", "", "Output file; overrides OUTPUT_FILE")
	cmd.Flags().StringVarP(&outputFormat, "format", "f", "", "Terminal output (json, table); overrides OUTPUT_FORMAT")
	cmd.Flags().IntVarP(&workers, "workers", "w", 0, "Concurrent browser sessions; overrides RUNNER_WORKERS")
	cmd.Flags().IntVar(&maxRetries, "retries", -1, "Retries for timed out pages; overrides RUNNER_MAX_RETRIES")
	cmd.Flags().BoolVarP(&quiet, "quiet", "q", false, "Only write the output file")

	return cmd
}

func runScrape(cmd *cobra.Command, args []string) error {
	urls := args
	if urlFile != "" {
		f, err := os.Open(urlFile)
		if err != nil {
			return fmt.Errorf("failed to open url file: %w", err)
		}
		fromFile, err := readURLs(f)
		f.Close()
		if err != nil {
			return err
		}
		urls = append(urls, fromFile...)
	}
	if len(urls) == 0 {
		return fmt.Errorf("no URLs given")
	}
	if err := validateURLs(urls); err != nil {
		return err
	}

	a, err := newApp(cmd, cmd.ErrOrStderr())
	if err != nil {
		return err
	}
	defer a.close()

	if cmd.Flags().Changed("output") {
		a.cfg.Output.File = outputFile
	}
	if cmd.Flags().Changed("format") {
		a.cfg.Output.Format = outputFormat
	}
	if cmd.Flags().Changed("workers") && workers > 0 {
		a.cfg.Runner.Workers = workers
	}
	if maxRetries >= 0 {
		a.cfg.Runner.MaxRetries = maxRetries
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	out, err := a.sinks(ctx, cmd.OutOrStdout())
	if err != nil {
		return err
	}
	defer func() {
		if err := out.Close(); err != nil {
			a.logger.Warn("failed to close output", "error", err)
		}
	}()

	if len(urls) == 1 {
		return scrapeOne(ctx, a, out, urls[0], cmd.ErrOrStderr())
	}

	r := runner.New(a.engine, out, runner.Options{
		Workers:    a.cfg.Runner.Workers,
		MaxRetries: a.cfg.Runner.MaxRetries,
		RetryDelay: a.cfg.Runner.RetryDelay,
	}, a.logger)

	summary, err := r.Run(ctx, urls)
	if err != nil {
		return err
	}

	for _, failure := range summary.Failures {
		if err := printFailure(cmd.ErrOrStderr(), failure); err != nil {
			return err
		}
	}
	if summary.Failed() > 0 {
		return fmt.Errorf("%w: %d of %d urls", errExtractionFailed, summary.Failed(), summary.Total)
	}
	return nil
}

func scrapeOne(ctx context.Context, a *app, out sink.Sink, url string, stderr io.Writer) error {
	result := a.engine.Scrape(ctx, url)
	if !result.Success {
		if err := printFailure(stderr, result); err != nil {
			return err
		}
		return errExtractionFailed
	}
	return out.Write(ctx, *result.Product)
}

// validateURLs rejects the whole invocation before any browser is started.
func validateURLs(urls []string) error {
	for i, raw := range urls {
		if _, err := scraper.ValidateURL(raw); err != nil {
			return fmt.Errorf("url %d: %w", i+1, err)
		}
	}
	return nil
}

// sinks builds the output chain: the JSON file, terminal output unless
// quiet, and the Redis stream when configured.
func (a *app) sinks(ctx context.Context, stdout io.Writer) (sink.Multi, error) {
	out := sink.Multi{sink.NewFile(a.cfg.Output.File)}

	if !quiet {
		if a.cfg.Output.Format == "table" {
			out = append(out, sink.NewTable(stdout))
		} else {
			out = append(out, sink.NewWriter(stdout))
		}
	}

	rs, err := a.redisSink(ctx)
	if err != nil {
		return nil, err
	}
	if rs != nil {
		out = append(out, rs)
	}
	return out, nil
}

func printFailure(w io.Writer, failure *models.ScrapeResult) error {
	enc := json.NewEncoder(w)
	enc.SetEscapeHTML(false)
	return enc.Encode(failure)
}

// readURLs reads one URL per line, skipping blanks and # comments.
func readURLs(r io.Reader) ([]string, error) {
	var urls []string
	scanner := bufio.NewScanner(r)
	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		urls = append(urls, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("failed to read urls: %w", err)
	}
	return urls, nil
}
