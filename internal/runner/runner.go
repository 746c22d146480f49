package runner

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/maltedev/product-card-scraper/internal/models"
	"github.com/maltedev/product-card-scraper/internal/queue"
	"github.com/maltedev/product-card-scraper/internal/scraper"
	"github.com/maltedev/product-card-scraper/internal/sink"
	"golang.org/x/sync/errgroup"
)

// Scraper is satisfied by *scraper.Engine.
type Scraper interface {
	Scrape(ctx context.Context, url string) *models.ScrapeResult
}

type Options struct {
	Workers    int
	MaxRetries int
	// RetryDelay is waited before a timed out URL is handed out again.
	RetryDelay time.Duration
}

func DefaultOptions() Options {
	return Options{
		Workers:    2,
		MaxRetries: 1,
		RetryDelay: time.Second,
	}
}

// Summary counts outcomes of a batch. Products holds every extracted record
// in completion order; Failures keeps the final failure per URL.
type Summary struct {
	Total     int                    `json:"total"`
	Succeeded int                    `json:"succeeded"`
	Retried   int                    `json:"retried"`
	ByCode    map[string]int         `json:"by_code"`
	Products  []models.ProductRecord `json:"products"`
	Failures  []*models.ScrapeResult `json:"failures"`
	Elapsed   time.Duration          `json:"elapsed_ns"`
}

func (s *Summary) Failed() int {
	return len(s.Failures)
}

// Runner drives a batch of URLs through a scraper with a bounded number
// of concurrent sessions. Only timed out URLs are retried; every other
// failure is final.
type Runner struct {
	scraper   Scraper
	sink      sink.Sink
	opts      Options
	logger    *slog.Logger
}

func New(s Scraper, out sink.Sink, opts Options, logger *slog.Logger) *Runner {
	if opts.Workers <= 0 {
		opts.Workers = 1
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Runner{
		scraper:   s,
		sink:      out,
		opts:      opts,
		logger:    logger.With("component", "runner"),
	}
}

// Run extracts every URL and returns once all of them have a final outcome.
// The returned error is non-nil only when ctx ends or the sink fails.
func (r *Runner) Run(ctx context.Context, urls []string) (*Summary, error) {
	start := time.Now()
	summary := &Summary{
		Total:    len(urls),
		ByCode:   make(map[string]int),
		Products: []models.ProductRecord{},
	}
	if len(urls) == 0 {
		return summary, nil
	}

	q := queue.NewInMemoryQueue()
	for _, u := range urls {
		if err := q.Push(queue.NewTask(u, 0)); err != nil {
			return nil, err
		}
	}

	var mu sync.Mutex
	g, gctx := errgroup.WithContext(ctx)

	for i := 0; i < r.opts.Workers; i++ {
		i := i
		g.Go(func() error {
			for {
				if err := gctx.Err(); err != nil {
					return err
				}
				task, err := q.Pop(gctx)
				if err != nil {
					if errors.Is(err, queue.ErrQueueClosed) {
						return nil
					}
					return err
				}

				result, retry := r.process(gctx, i, task)
				if retry != nil {
					if err := q.Push(retry); err != nil {
						q.Done(task)
						return err
					}
					mu.Lock()
					summary.Retried++
					mu.Unlock()
					q.Done(task)
					continue
				}

				mu.Lock()
				summary.ByCode[resultCode(result)]++
				if result.Success {
					summary.Succeeded++
					summary.Products = append(summary.Products, *result.Product)
				} else {
					summary.Failures = append(summary.Failures, result)
				}
				mu.Unlock()

				if result.Success && r.sink != nil {
					if err := r.sink.Write(gctx, *result.Product); err != nil {
						q.Done(task)
						return fmt.Errorf("failed to write %s: %w", task.URL, err)
					}
				}
				q.Done(task)
			}
		})
	}

	err := g.Wait()
	summary.Elapsed = time.Since(start)

	r.logger.Info("batch finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed(),
		"retried", summary.Retried,
		"elapsed", summary.Elapsed,
	)

	return summary, err
}

// process runs one attempt. A non-nil retry task means the outcome is not
// final yet.
func (r *Runner) process(ctx context.Context, worker int, task *queue.Task) (*models.ScrapeResult, *queue.Task) {
	result := r.scraper.Scrape(ctx, task.URL)
	if result.Success {
		return result, nil
	}

	code := result.Error.Code
	if code == scraper.CodeTimedOut && task.Retries < r.opts.MaxRetries && ctx.Err() == nil {
		r.logger.Warn("retrying url",
			"worker", worker,
			"url", task.URL,
			"code", code,
			"attempt", task.Retries+1,
		)
		if !sleep(ctx, r.opts.RetryDelay) {
			return models.NewFailure(task.URL, scraper.CodeInternal, "", ctx.Err()), nil
		}
		return nil, task.Retry()
	}

	r.logger.Warn("extraction failed",
		"worker", worker,
		"url", task.URL,
		"code", code,
		"error", result.Error.Message,
	)
	return result, nil
}

func resultCode(result *models.ScrapeResult) string {
	if result.Success {
		return "ok"
	}
	return result.Error.Code
}

func sleep(ctx context.Context, d time.Duration) bool {
	if d <= 0 {
		return true
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-t.C:
		return true
	}
}
