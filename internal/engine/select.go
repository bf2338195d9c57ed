package engine

import (
	"fmt"
)

// AutoName is the engine name that requests automatic selection.
const AutoName = "auto"

// SelectorConfig holds the deterministic selection policy.
type SelectorConfig struct {
	// Default engine used when a request names neither an engine nor auto.
	Default string
	// Fallback engine for the dispatcher's single fallback pass; empty
	// disables fallback.
	Fallback string
	// AutoPageThreshold splits small jobs (quality first) from large jobs
	// (throughput first) during automatic selection.
	AutoPageThreshold int
}

// DefaultSelectorConfig returns the default selection policy.
func DefaultSelectorConfig() SelectorConfig {
	return SelectorConfig{
		Default:           AutoName,
		AutoPageThreshold: 5,
	}
}

// Selector chooses the engine variant for a request. Selection is pure:
// the same registry state, configuration and inputs always give the same
// answer.
type Selector struct {
	reg *Registry
	cfg SelectorConfig
}

// NewSelector creates a selector over the given registry.
func NewSelector(reg *Registry, cfg SelectorConfig) *Selector {
	if cfg.Default == "" {
		cfg.Default = AutoName
	}
	if cfg.AutoPageThreshold <= 0 {
		cfg.AutoPageThreshold = DefaultSelectorConfig().AutoPageThreshold
	}
	return &Selector{reg: reg, cfg: cfg}
}

// Select picks the engine for a job of pageCount pages. A non-empty
// requested name other than "auto" is honored exactly or fails with
// ErrUnavailable. Automatic selection prefers the highest-accuracy
// available engine for jobs at or below the configured page threshold and
// the fastest available engine above it, with the configured priority
// order as a deterministic tie-break.
func (s *Selector) Select(pageCount int, requested string) (Descriptor, error) {
	name := requested
	if name == "" {
		name = s.cfg.Default
	}
	if name != AutoName {
		desc, ok := s.reg.Lookup(name)
		if !ok {
			return Descriptor{}, fmt.Errorf("%w: %q is not registered", ErrUnavailable, name)
		}
		if !desc.Available {
			return Descriptor{}, fmt.Errorf("%w: %q: %s", ErrUnavailable, name, desc.Detail)
		}
		return desc, nil
	}
	return s.selectAuto(pageCount)
}

func (s *Selector) selectAuto(pageCount int) (Descriptor, error) {
	candidates := s.reg.Available()
	if len(candidates) == 0 {
		return Descriptor{}, fmt.Errorf("%w: no engine initialized", ErrUnavailable)
	}

	best := candidates[0]
	if pageCount <= s.cfg.AutoPageThreshold {
		// Small job: favor quality. Candidates are priority-sorted, so the
		// first engine of the highest class wins ties deterministically.
		for _, d := range candidates[1:] {
			if d.Class > best.Class {
				best = d
			}
		}
	} else {
		// Large job: favor throughput.
		for _, d := range candidates[1:] {
			if d.Class < best.Class {
				best = d
			}
		}
	}
	return best, nil
}

// Fallback returns the configured secondary engine for a failed primary,
// if one exists, is available, and differs from the primary.
func (s *Selector) Fallback(primary string) (Descriptor, bool) {
	if s.cfg.Fallback == "" || s.cfg.Fallback == primary {
		return Descriptor{}, false
	}
	desc, ok := s.reg.Lookup(s.cfg.Fallback)
	if !ok || !desc.Available {
		return Descriptor{}, false
	}
	return desc, true
}
