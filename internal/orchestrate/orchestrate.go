// Package orchestrate is the entry point the API layer calls: it composes
// document normalization, engine selection, concurrent page dispatch and
// result aggregation behind a single Process operation.
package orchestrate

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/pagelift/pagelift/internal/dispatch"
	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
)

// normalizer is the slice of the document package the service needs.
type normalizer interface {
	Normalize(ctx context.Context, doc document.Document, dpiOverride int) ([]document.Page, error)
}

// Options carries per-request adjustments. All overrides are optional and
// bounded by configured maxima.
type Options struct {
	// Engine names a specific engine, or "auto" (default) for automatic
	// selection.
	Engine string
	// DPI overrides the PDF render resolution.
	DPI int
	// PageTimeout and MaxAttempts override the dispatch policy.
	PageTimeout time.Duration
	MaxAttempts int
	// Timeout bounds the whole request; pages not completed when it fires
	// carry a cancelled error in the Result.
	Timeout time.Duration
	// OnPage, when set, receives each page result as it reaches a terminal
	// state (invoked from worker goroutines, completion order).
	OnPage func(dispatch.PageResult)
}

// Config holds facade-level settings.
type Config struct {
	// MaxRequestTimeout clamps per-request timeouts; zero disables the
	// clamp and per-request timeouts apply as given.
	MaxRequestTimeout time.Duration
}

// DefaultConfig returns the default facade configuration.
func DefaultConfig() Config {
	return Config{MaxRequestTimeout: 5 * time.Minute}
}

// Service is the orchestration facade. It owns no engine resources itself;
// the registry, pool and their lifecycles belong to the caller that wired
// them at process start.
type Service struct {
	cfg      Config
	norm     normalizer
	selector *engine.Selector
	disp     *dispatch.Dispatcher
	log      *slog.Logger
}

// New wires the facade. It fails when not a single engine variant is
// available, the only configuration state that prevents start-up.
func New(
	cfg Config,
	norm normalizer,
	reg *engine.Registry,
	selector *engine.Selector,
	disp *dispatch.Dispatcher,
	log *slog.Logger,
) (*Service, error) {
	if err := reg.CheckStartup(); err != nil {
		return nil, err
	}
	if log == nil {
		log = slog.Default()
	}
	return &Service{
		cfg:      cfg,
		norm:     norm,
		selector: selector,
		disp:     disp,
		log:      log,
	}, nil
}

// Process runs the full orchestration for one document: normalize, select,
// dispatch, aggregate. Request-level failures (unsupported format, corrupt
// document, unavailable engine) return an error before any page work runs;
// page-level failures are embedded in the Result.
func (s *Service) Process(ctx context.Context, doc document.Document, opts Options) (*Result, error) {
	start := time.Now()

	if opts.Timeout > 0 {
		timeout := opts.Timeout
		if s.cfg.MaxRequestTimeout > 0 && timeout > s.cfg.MaxRequestTimeout {
			timeout = s.cfg.MaxRequestTimeout
		}
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, timeout)
		defer cancel()
	}

	pages, err := s.norm.Normalize(ctx, doc, opts.DPI)
	if err != nil {
		return nil, fmt.Errorf("normalize document: %w", err)
	}

	desc, err := s.selector.Select(len(pages), opts.Engine)
	if err != nil {
		return nil, err
	}

	var fallback *engine.Descriptor
	if fb, ok := s.selector.Fallback(desc.Name); ok {
		fallback = &fb
	}

	s.log.Info("processing document",
		"document", doc.Name,
		"media", string(doc.Media),
		"pages", len(pages),
		"engine", desc.Name)

	results := s.disp.Dispatch(ctx, pages, desc, fallback, dispatch.Overrides{
		PageTimeout: opts.PageTimeout,
		MaxAttempts: opts.MaxAttempts,
	}, opts.OnPage)

	res := aggregate(results, desc.Name, start)

	s.log.Info("document processed",
		"document", doc.Name,
		"pages", len(res.Pages),
		"partial", res.PartialSuccess,
		"elapsed", res.Elapsed)
	return res, nil
}
