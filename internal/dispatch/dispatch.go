package dispatch

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
)

// ErrCancelled marks pages that were not completed when the request-level
// timeout fired. It is terminal and never retried.
var ErrCancelled = errors.New("page processing cancelled")

// Config holds the retry/timeout policy. The worker pool itself is sized
// separately at process start.
type Config struct {
	// PageTimeout bounds each recognition attempt. Exceeding it is a
	// transient failure for the attempt, not a terminal page error.
	PageTimeout time.Duration
	// MaxAttempts is the attempt budget on the primary engine (first try
	// included) before the fallback pass.
	MaxAttempts int
	// BackoffBase is the first retry delay; it doubles per retry.
	BackoffBase time.Duration
	// MaxPageTimeout and MaxAttemptsCap clamp per-request overrides.
	MaxPageTimeout time.Duration
	MaxAttemptsCap int
}

// DefaultConfig returns the default dispatch policy.
func DefaultConfig() Config {
	return Config{
		PageTimeout:    30 * time.Second,
		MaxAttempts:    3,
		BackoffBase:    200 * time.Millisecond,
		MaxPageTimeout: 5 * time.Minute,
		MaxAttemptsCap: 5,
	}
}

// PageResult is the outcome of processing one page. Failed pages carry a
// terminal error and are never omitted, so callers can always reconstruct
// the full page-to-outcome mapping.
type PageResult struct {
	Index      int           `json:"index"`
	SourcePage int           `json:"source_page"`
	Lines      []engine.Line `json:"lines,omitempty"`
	// Confidence is nil when the engine does not supply one.
	Confidence *float64      `json:"confidence,omitempty"`
	Engine     string        `json:"engine,omitempty"`
	Attempts   int           `json:"attempts"`
	Elapsed    time.Duration `json:"elapsed_ns"`
	State      string        `json:"state"`
	Err        error         `json:"-"`
	Error      string        `json:"error,omitempty"`
}

// Succeeded reports whether the page produced a usable recognition.
func (r PageResult) Succeeded() bool { return r.Err == nil }

// Overrides are per-request policy adjustments, clamped to the configured
// maxima so a single request cannot consume unbounded resources.
type Overrides struct {
	PageTimeout time.Duration
	MaxAttempts int
}

// Dispatcher fans pages out to the shared worker pool and applies the
// retry/fallback policy per page.
type Dispatcher struct {
	pool *Pool
	reg  *engine.Registry
	cfg  Config
	log  *slog.Logger
}

// NewDispatcher creates a dispatcher over the shared pool and registry.
func NewDispatcher(pool *Pool, reg *engine.Registry, cfg Config, log *slog.Logger) *Dispatcher {
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = DefaultConfig().PageTimeout
	}
	if cfg.MaxAttempts <= 0 {
		cfg.MaxAttempts = DefaultConfig().MaxAttempts
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = DefaultConfig().BackoffBase
	}
	if log == nil {
		log = slog.Default()
	}
	return &Dispatcher{pool: pool, reg: reg, cfg: cfg, log: log}
}

// Dispatch processes all pages on the primary engine with the optional
// fallback, returning one PageResult per input page in page order
// regardless of completion order. A page failure never aborts the batch.
// onPage, when non-nil, is invoked as each page reaches a terminal state
// (from worker goroutines, in completion order).
func (d *Dispatcher) Dispatch(
	ctx context.Context,
	pages []document.Page,
	primary engine.Descriptor,
	fallback *engine.Descriptor,
	ov Overrides,
	onPage func(PageResult),
) []PageResult {
	results := make([]PageResult, len(pages))
	if len(pages) == 0 {
		return results
	}

	pageTimeout, maxAttempts := d.effectivePolicy(ov)

	done := make(chan int, len(pages))
	submitted := 0
	for i := range pages {
		page := pages[i]
		slot := &results[i]
		err := d.pool.Submit(ctx, func(workerID int) {
			*slot = d.runPage(ctx, workerID, page, primary, fallback, pageTimeout, maxAttempts)
			if onPage != nil {
				onPage(*slot)
			}
			done <- page.Index
		})
		if err != nil {
			// Request ended before the page could even be queued.
			*slot = cancelledResult(page, primary.Name)
			if onPage != nil {
				onPage(*slot)
			}
			continue
		}
		submitted++
	}

	for range submitted {
		<-done
	}
	return results
}

func (d *Dispatcher) effectivePolicy(ov Overrides) (time.Duration, int) {
	pageTimeout := d.cfg.PageTimeout
	if ov.PageTimeout > 0 {
		pageTimeout = ov.PageTimeout
		if d.cfg.MaxPageTimeout > 0 && pageTimeout > d.cfg.MaxPageTimeout {
			pageTimeout = d.cfg.MaxPageTimeout
		}
	}
	maxAttempts := d.cfg.MaxAttempts
	if ov.MaxAttempts > 0 {
		maxAttempts = ov.MaxAttempts
		if d.cfg.MaxAttemptsCap > 0 && maxAttempts > d.cfg.MaxAttemptsCap {
			maxAttempts = d.cfg.MaxAttemptsCap
		}
	}
	return pageTimeout, maxAttempts
}

// runPage drives one page through the state machine until terminal.
func (d *Dispatcher) runPage(
	ctx context.Context,
	workerID int,
	page document.Page,
	primary engine.Descriptor,
	fallback *engine.Descriptor,
	pageTimeout time.Duration,
	maxAttempts int,
) PageResult {
	start := time.Now()
	m := newMachine(maxAttempts, fallback != nil)
	current := primary

	var rec *engine.Recognition
	var lastErr error
	retries := 0

	for !m.state.Terminal() {
		if m.state == StateFallback && current.Name != fallback.Name {
			current = *fallback
		}

		if err := ctx.Err(); err != nil {
			m.onBackoffCancel()
			break
		}

		attemptRec, err := d.attempt(ctx, workerID, current.Name, page, pageTimeout)
		switch classify(ctx, err) {
		case evSucceeded:
			rec = attemptRec
			m.onAttempt(evSucceeded)
		case evCancelled:
			lastErr = ErrCancelled
			m.onAttempt(evCancelled)
		case evTransient:
			lastErr = err
			prev := m.state
			if m.onAttempt(evTransient) == StateRetrying {
				d.log.Debug("page attempt failed, retrying",
					"page", page.Index, "engine", current.Name,
					"attempt", m.attempts, "error", err)
				if m.backoffWait(ctx, d.cfg.BackoffBase, retries) == StateCancelled {
					lastErr = ErrCancelled
				}
				retries++
			} else if prev != StateFallback && m.state == StateFallback {
				d.log.Debug("primary engine exhausted, trying fallback",
					"page", page.Index, "primary", primary.Name, "fallback", fallback.Name)
			}
		case evFatal:
			lastErr = err
			if m.onAttempt(evFatal) == StateFallback {
				d.log.Debug("primary engine failed fatally, trying fallback",
					"page", page.Index, "primary", primary.Name, "fallback", fallback.Name)
			}
		}
	}

	res := PageResult{
		Index:      page.Index,
		SourcePage: page.SourcePage,
		Engine:     current.Name,
		Attempts:   m.attempts,
		Elapsed:    time.Since(start),
		State:      m.state.String(),
	}
	switch m.state {
	case StateSucceeded:
		res.Lines = rec.Lines
		if rec.Scored {
			c := rec.Confidence
			res.Confidence = &c
		}
	case StateCancelled:
		res.Err = ErrCancelled
		res.Error = ErrCancelled.Error()
	default:
		if lastErr == nil {
			lastErr = fmt.Errorf("page %d failed", page.Index)
		}
		res.Err = lastErr
		res.Error = lastErr.Error()
	}
	return res
}

// attempt runs one bounded recognition attempt on the engine instance bound
// to the worker slot.
func (d *Dispatcher) attempt(
	ctx context.Context,
	workerID int,
	name string,
	page document.Page,
	timeout time.Duration,
) (*engine.Recognition, error) {
	inst, err := d.reg.Instance(name, workerID)
	if err != nil {
		return nil, err
	}
	attemptCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()
	return inst.Recognize(attemptCtx, page.Image)
}

// backoffWait sleeps the exponential backoff for the given retry ordinal,
// aborting when the request context ends.
func (m *machine) backoffWait(ctx context.Context, base time.Duration, retry int) State {
	delay := base << retry
	select {
	case <-time.After(delay):
		return m.onBackoffDone()
	case <-ctx.Done():
		return m.onBackoffCancel()
	}
}

// classify maps an attempt error to a state machine event. A deadline on
// the attempt context is transient (per-page timeout); the parent request
// ending is a cancellation.
func classify(reqCtx context.Context, err error) event {
	switch {
	case err == nil:
		return evSucceeded
	case reqCtx.Err() != nil:
		return evCancelled
	case engine.IsTransient(err):
		return evTransient
	default:
		return evFatal
	}
}

func cancelledResult(page document.Page, engineName string) PageResult {
	return PageResult{
		Index:      page.Index,
		SourcePage: page.SourcePage,
		Engine:     engineName,
		State:      StateCancelled.String(),
		Err:        ErrCancelled,
		Error:      ErrCancelled.Error(),
	}
}
