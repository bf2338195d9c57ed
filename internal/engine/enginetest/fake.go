// Package enginetest provides a deterministic in-memory engine for unit,
// property and integration tests.
package enginetest

import (
	"context"
	"fmt"
	"image"
	"sync"
	"sync/atomic"
	"time"

	"github.com/pagelift/pagelift/internal/engine"
)

// Fake is a scriptable Engine. The zero value succeeds immediately and
// returns a single fixed line per call. All fields must be set before the
// first Recognize call; counters are safe for concurrent use.
type Fake struct {
	// Text returned per recognized page. Defaults to "fake text".
	Text string
	// Confidence reported with each recognition; Scored controls whether
	// it is reported at all.
	Confidence float64
	Scored     bool
	// FailFirst makes the first N calls per page key fail transiently.
	FailFirst int
	// AlwaysFail makes every call fail transiently.
	AlwaysFail bool
	// Fatal makes failures non-retryable instead of transient.
	Fatal bool
	// Delay is slept (context-aware) before each attempt, for cancellation
	// and ordering tests. DelayFn overrides it per call when set.
	Delay   time.Duration
	DelayFn func(call int) time.Duration

	calls    atomic.Int64
	mu       sync.Mutex
	perImage map[string]int
	closed   atomic.Bool
}

// Calls reports the total number of Recognize invocations.
func (f *Fake) Calls() int { return int(f.calls.Load()) }

// Closed reports whether Close was called.
func (f *Fake) Closed() bool { return f.closed.Load() }

// Recognize implements engine.Engine.
func (f *Fake) Recognize(ctx context.Context, img image.Image) (*engine.Recognition, error) {
	call := int(f.calls.Add(1))

	delay := f.Delay
	if f.DelayFn != nil {
		delay = f.DelayFn(call)
	}
	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	if f.AlwaysFail {
		return nil, f.failure("scripted permanent failure")
	}
	if f.FailFirst > 0 {
		key := imageKey(img)
		f.mu.Lock()
		if f.perImage == nil {
			f.perImage = make(map[string]int)
		}
		f.perImage[key]++
		n := f.perImage[key]
		f.mu.Unlock()
		if n <= f.FailFirst {
			return nil, f.failure(fmt.Sprintf("scripted failure %d/%d", n, f.FailFirst))
		}
	}

	text := f.Text
	if text == "" {
		text = "fake text"
	}
	return &engine.Recognition{
		Lines:      []engine.Line{{Text: text, Confidence: f.Confidence}},
		Confidence: f.Confidence,
		Scored:     f.Scored,
	}, nil
}

// Close implements engine.Engine.
func (f *Fake) Close() error {
	f.closed.Store(true)
	return nil
}

func (f *Fake) failure(msg string) error {
	err := fmt.Errorf("fake: %s", msg)
	if f.Fatal {
		return err
	}
	return engine.Transient(err)
}

func imageKey(img image.Image) string {
	if img == nil {
		return "nil"
	}
	b := img.Bounds()
	return fmt.Sprintf("%dx%d@%d,%d", b.Dx(), b.Dy(), b.Min.X, b.Min.Y)
}

// Register adds a fake to reg under the given name and class, sharing one
// instance across all workers.
func Register(reg *engine.Registry, name string, class engine.Class, priority int, f *Fake) {
	reg.Register(engine.Registration{
		Name:      name,
		Class:     class,
		Priority:  priority,
		Reentrant: true,
		Build: func(int) ([]engine.Engine, error) {
			return []engine.Engine{f}, nil
		},
	})
}

// RegisterUnavailable adds a descriptor whose build fails, producing an
// unavailable engine entry.
func RegisterUnavailable(reg *engine.Registry, name string, class engine.Class, priority int) {
	reg.Register(engine.Registration{
		Name:      name,
		Class:     class,
		Priority:  priority,
		Reentrant: true,
		Build: func(int) ([]engine.Engine, error) {
			return nil, fmt.Errorf("scripted init failure")
		},
	})
}
