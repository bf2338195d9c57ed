// Package engine defines the uniform capability interface implemented by
// every OCR backend, the static descriptor registry built at process start,
// and the selection policy that picks an engine per request.
package engine

import (
	"context"
	"image"
)

// Class orders engine variants by their cost/latency profile. Higher values
// trade latency for accuracy.
type Class int

const (
	ClassFast Class = iota
	ClassBalanced
	ClassAccurate
)

// String returns the configuration name of the class.
func (c Class) String() string {
	switch c {
	case ClassFast:
		return "fast"
	case ClassBalanced:
		return "balanced"
	case ClassAccurate:
		return "accurate"
	default:
		return "unknown"
	}
}

// Descriptor identifies an engine variant. The descriptor set is static
// configuration assembled once at process start and read-only afterwards.
type Descriptor struct {
	Name      string `json:"name"`
	Class     Class  `json:"-"`
	ClassName string `json:"class"`
	Available bool   `json:"available"`
	// Priority breaks ties during automatic selection; lower wins.
	Priority int `json:"priority"`
	// Reentrant engines share one instance across workers; non-reentrant
	// engines get a dedicated instance per worker slot.
	Reentrant bool `json:"reentrant"`
	// Detail carries the initialization error for unavailable engines.
	Detail string `json:"detail,omitempty"`
}

// Line is one recognized text line.
type Line struct {
	Text       string  `json:"text"`
	Confidence float64 `json:"confidence,omitempty"`
}

// Recognition is the output of recognizing a single raster page.
// Confidence is only meaningful when Scored is true; engines that do not
// report confidence leave it unset.
type Recognition struct {
	Lines      []Line
	Confidence float64
	Scored     bool
}

// Engine is the single-page recognition capability every backend provides.
// Implementations report failures through the transient/fatal distinction
// in this package so the dispatcher can decide on retries.
type Engine interface {
	// Recognize extracts text lines from one raster image. The context
	// bounds the attempt; implementations should return ctx.Err() promptly
	// on cancellation.
	Recognize(ctx context.Context, img image.Image) (*Recognition, error)

	// Close releases backend resources. Called once at process shutdown.
	Close() error
}
