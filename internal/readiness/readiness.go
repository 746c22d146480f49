package readiness

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/maltedev/product-card-scraper/internal/selector"
)

const (
	DefaultDeadline     = 5 * time.Second
	DefaultPollInterval = 50 * time.Millisecond
)

var ErrNoCandidates = errors.New("no readiness candidates configured")

// Document is a handle on a page that may still be mutating. Implementations
// must not wait inside Lookup: the Waiter owns the polling policy.
type Document interface {
	// Lookup reports whether sel currently locates a rendered element and, if
	// so, returns its trimmed text.
	Lookup(ctx context.Context, sel selector.Selector) (text string, found bool, err error)
	// Content returns a snapshot of the current markup.
	Content(ctx context.Context) (string, error)
	// Close releases the session behind the document.
	Close() error
}

type State int

const (
	TimedOut State = iota
	Ready
	NotFound
)

func (s State) String() string {
	switch s {
	case Ready:
		return "ready"
	case NotFound:
		return "not_found"
	default:
		return "timed_out"
	}
}

// Outcome is the result of waiting on a Document. Matched and Text are only
// set when State is Ready; Text is captured at match time so later DOM changes
// cannot invalidate it.
type Outcome struct {
	State    State
	Matched  selector.Selector
	Text     string
	Attempts int
	Elapsed  time.Duration
}

type Waiter struct {
	deadline time.Duration
	interval time.Duration
	logger   *slog.Logger
}

// NewWaiter returns a Waiter with the given budget. A zero or negative
// deadline still performs one full pass over the candidates.
func NewWaiter(deadline, interval time.Duration, logger *slog.Logger) *Waiter {
	if interval <= 0 {
		interval = DefaultPollInterval
	}
	if deadline < 0 {
		deadline = 0
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Waiter{
		deadline: deadline,
		interval: interval,
		logger:   logger.With("component", "readiness"),
	}
}

// Wait checks absence once and then polls candidates in priority order until
// one matches or the deadline passes. Lookups run under the deadline too, so
// a query stuck on the page ends as TimedOut rather than overrunning it. The
// returned error is non-nil only for misconfiguration or cancellation of ctx;
// page states are reported through Outcome.
func (w *Waiter) Wait(ctx context.Context, doc Document, candidates []selector.Selector, absence selector.Selector) (Outcome, error) {
	if len(candidates) == 0 {
		return Outcome{}, ErrNoCandidates
	}

	start := time.Now()
	deadline := start.Add(w.deadline)

	// A zero deadline still gets one full pass; lookups on it are bounded by
	// a single poll interval.
	lookupDeadline := deadline
	if w.deadline == 0 {
		lookupDeadline = start.Add(w.interval)
	}
	lctx, cancel := context.WithDeadline(ctx, lookupDeadline)
	defer cancel()

	timedOut := func(attempts int) Outcome {
		return Outcome{State: TimedOut, Attempts: attempts, Elapsed: time.Since(start)}
	}

	// Absence is assumed stable once rendering has started, so it is only
	// checked up front.
	if !absence.IsZero() {
		_, found, err := doc.Lookup(lctx, absence)
		if err != nil {
			if ctx.Err() != nil {
				return Outcome{}, fmt.Errorf("checking absence marker: %w", ctx.Err())
			}
			if lctx.Err() != nil {
				return timedOut(0), nil
			}
		}
		if err == nil && found {
			w.logger.Debug("absence marker present", "selector", absence.String())
			return Outcome{State: NotFound, Elapsed: time.Since(start)}, nil
		}
	}

	timer := time.NewTimer(w.interval)
	defer timer.Stop()

	for attempt := 1; ; attempt++ {
		for _, candidate := range candidates {
			text, found, err := doc.Lookup(lctx, candidate)
			if err != nil {
				if ctx.Err() != nil {
					return Outcome{}, fmt.Errorf("waiting for readiness: %w", ctx.Err())
				}
				if lctx.Err() != nil {
					w.logger.Debug("lookup overran deadline", "selector", candidate.String(), "attempt", attempt)
					return timedOut(attempt), nil
				}
				// The element may have been detached between query and read.
				w.logger.Debug("transient lookup error", "selector", candidate.String(), "attempt", attempt, "error", err)
				continue
			}
			if found {
				return Outcome{
					State:    Ready,
					Matched:  candidate,
					Text:     text,
					Attempts: attempt,
					Elapsed:  time.Since(start),
				}, nil
			}
		}

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return timedOut(attempt), nil
		}

		timer.Reset(min(w.interval, remaining))
		select {
		case <-ctx.Done():
			return Outcome{}, fmt.Errorf("waiting for readiness: %w", ctx.Err())
		case <-timer.C:
		}
	}
}
