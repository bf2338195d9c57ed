package orchestrate

import (
	"errors"

	"github.com/pagelift/pagelift/internal/dispatch"
	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
)

// Request-level error kinds surfaced to the API layer. They fail the whole
// request before any page processing begins; page-level failures are data
// inside a Result, never errors.
var (
	ErrUnsupportedFormat = document.ErrUnsupportedFormat
	ErrCorruptDocument   = document.ErrCorruptDocument
	ErrEngineUnavailable = engine.ErrUnavailable
	ErrCancelled         = dispatch.ErrCancelled
)

// Kind names a request-level error category for transport layers.
type Kind string

const (
	KindUnsupportedFormat Kind = "unsupported_format"
	KindCorruptDocument   Kind = "corrupt_document"
	KindEngineUnavailable Kind = "engine_unavailable"
	KindInternal          Kind = "internal"
)

// KindOf classifies a Process error.
func KindOf(err error) Kind {
	switch {
	case errors.Is(err, ErrUnsupportedFormat):
		return KindUnsupportedFormat
	case errors.Is(err, ErrCorruptDocument):
		return KindCorruptDocument
	case errors.Is(err, ErrEngineUnavailable):
		return KindEngineUnavailable
	default:
		return KindInternal
	}
}
