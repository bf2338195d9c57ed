package orchestrate

import (
	"context"
	"errors"
	"image"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/pagelift/pagelift/internal/dispatch"
	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
	"github.com/pagelift/pagelift/internal/engine/enginetest"
)

// fakeNormalizer returns a scripted page sequence without touching any
// decoder, so the facade can be tested in isolation.
type fakeNormalizer struct {
	pages []document.Page
	err   error
	// dpi records the override passed through from Options.
	dpi int
}

func (f *fakeNormalizer) Normalize(_ context.Context, _ document.Document, dpiOverride int) ([]document.Page, error) {
	f.dpi = dpiOverride
	if f.err != nil {
		return nil, f.err
	}
	return f.pages, nil
}

func scriptedPages(n int) []document.Page {
	pages := make([]document.Page, n)
	for i := range n {
		w := 20 + i
		pages[i] = document.Page{
			Index:      i,
			SourcePage: i + 1,
			Width:      w,
			Height:     20,
			Image:      image.NewRGBA(image.Rect(0, 0, w, 20)),
		}
	}
	return pages
}

type serviceFixture struct {
	svc      *Service
	registry *engine.Registry
	norm     *fakeNormalizer
}

func newServiceFixture(t *testing.T, norm *fakeNormalizer, register func(*engine.Registry), selCfg engine.SelectorConfig) *serviceFixture {
	t.Helper()

	reg := engine.NewRegistry(2)
	register(reg)
	pool := dispatch.NewPool(2)
	t.Cleanup(pool.Stop)
	t.Cleanup(func() { _ = reg.Close() })

	disp := dispatch.NewDispatcher(pool, reg, dispatch.Config{
		PageTimeout:    time.Second,
		MaxAttempts:    2,
		BackoffBase:    time.Millisecond,
		MaxPageTimeout: 2 * time.Second,
		MaxAttemptsCap: 5,
	}, nil)

	svc, err := New(DefaultConfig(), norm, reg, engine.NewSelector(reg, selCfg), disp, nil)
	require.NoError(t, err)
	return &serviceFixture{svc: svc, registry: reg, norm: norm}
}

func TestProcess_FullSuccess(t *testing.T) {
	fake := &enginetest.Fake{Text: "Grüße", Confidence: 0.95, Scored: true}
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(3)},
		func(r *engine.Registry) {
			enginetest.Register(r, "fast", engine.ClassFast, 10, fake)
		}, engine.SelectorConfig{})

	doc := document.Document{Name: "scan.png", Media: document.MediaImage}
	res, err := fx.svc.Process(context.Background(), doc, Options{DPI: 200})

	require.NoError(t, err)
	require.Len(t, res.Pages, 3)
	assert.Equal(t, "fast", res.Engine)
	assert.False(t, res.PartialSuccess)
	assert.Equal(t, 200, fx.norm.dpi)
	for i, p := range res.Pages {
		assert.Equal(t, i, p.Index)
		assert.True(t, p.Succeeded())
	}
	assert.Contains(t, res.Text(), "Grüße")
}

func TestProcess_NormalizesTextToNFC(t *testing.T) {
	// Decomposed u + combining diaeresis must come out as the precomposed
	// form.
	fake := &enginetest.Fake{Text: "Grün"}
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(1)},
		func(r *engine.Registry) {
			enginetest.Register(r, "fast", engine.ClassFast, 10, fake)
		}, engine.SelectorConfig{})

	res, err := fx.svc.Process(context.Background(), document.Document{Name: "a.png"}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "Grün", res.Pages[0].Lines[0].Text)
}

// failOneEngine succeeds except for the page whose image width matches.
type failOneEngine struct {
	badWidth int
}

func (e *failOneEngine) Recognize(_ context.Context, img image.Image) (*engine.Recognition, error) {
	if img.Bounds().Dx() == e.badWidth {
		return nil, errors.New("unreadable page")
	}
	return &engine.Recognition{Lines: []engine.Line{{Text: "ok"}}}, nil
}

func (e *failOneEngine) Close() error { return nil }

func TestProcess_PartialSuccess(t *testing.T) {
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(3)},
		func(r *engine.Registry) {
			r.Register(engine.Registration{
				Name:      "picky",
				Class:     engine.ClassFast,
				Priority:  10,
				Reentrant: true,
				Build: func(int) ([]engine.Engine, error) {
					// Page 1 has width 21 and always fails.
					return []engine.Engine{&failOneEngine{badWidth: 21}}, nil
				},
			})
		}, engine.SelectorConfig{})

	res, err := fx.svc.Process(context.Background(), document.Document{Name: "a.pdf"}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 3)
	assert.True(t, res.PartialSuccess)
	assert.True(t, res.Pages[0].Succeeded())
	assert.False(t, res.Pages[1].Succeeded())
	assert.True(t, res.Pages[2].Succeeded())
}

func TestProcess_RetryRescuesFlakyPages(t *testing.T) {
	primary := &enginetest.Fake{FailFirst: 2}
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(2)},
		func(r *engine.Registry) {
			enginetest.Register(r, "flaky", engine.ClassFast, 10, primary)
		}, engine.SelectorConfig{})

	res, err := fx.svc.Process(context.Background(), document.Document{Name: "a.pdf"}, Options{
		MaxAttempts: 3,
	})
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	assert.False(t, res.PartialSuccess)
	for _, p := range res.Pages {
		assert.True(t, p.Succeeded())
		assert.Equal(t, 3, p.Attempts)
	}
}

func TestProcess_AllPagesFailedStillReturnsResult(t *testing.T) {
	primary := &enginetest.Fake{AlwaysFail: true}
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(2)},
		func(r *engine.Registry) {
			enginetest.Register(r, "broken", engine.ClassFast, 10, primary)
		}, engine.SelectorConfig{})

	res, err := fx.svc.Process(context.Background(), document.Document{Name: "a.pdf"}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 2)
	assert.False(t, res.PartialSuccess)
	for _, p := range res.Pages {
		assert.False(t, p.Succeeded())
		assert.NotEmpty(t, p.Error)
	}
	assert.Empty(t, res.Text())
}

func TestProcess_FallbackProducesPartialResult(t *testing.T) {
	primary := &enginetest.Fake{AlwaysFail: true}
	secondary := &enginetest.Fake{Text: "rescued"}
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(1)},
		func(r *engine.Registry) {
			enginetest.Register(r, "broken", engine.ClassAccurate, 10, primary)
			enginetest.Register(r, "backup", engine.ClassFast, 20, secondary)
		}, engine.SelectorConfig{Default: "broken", Fallback: "backup"})

	res, err := fx.svc.Process(context.Background(), document.Document{Name: "a.png"}, Options{})
	require.NoError(t, err)
	require.Len(t, res.Pages, 1)
	assert.Equal(t, "broken", res.Engine)
	assert.Equal(t, "backup", res.Pages[0].Engine)
	assert.True(t, res.Pages[0].Succeeded())
}

func TestProcess_ExplicitUnavailableEngine(t *testing.T) {
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(1)},
		func(r *engine.Registry) {
			enginetest.Register(r, "fast", engine.ClassFast, 10, &enginetest.Fake{})
			enginetest.RegisterUnavailable(r, "offline", engine.ClassAccurate, 20)
		}, engine.SelectorConfig{})

	_, err := fx.svc.Process(context.Background(), document.Document{Name: "a.png"}, Options{Engine: "offline"})
	assert.ErrorIs(t, err, ErrEngineUnavailable)
}

func TestProcess_NormalizeErrors(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want error
	}{
		{"unsupported format", document.ErrUnsupportedFormat, ErrUnsupportedFormat},
		{"corrupt document", document.ErrCorruptDocument, ErrCorruptDocument},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			fx := newServiceFixture(t, &fakeNormalizer{err: tt.err},
				func(r *engine.Registry) {
					enginetest.Register(r, "fast", engine.ClassFast, 10, &enginetest.Fake{})
				}, engine.SelectorConfig{})

			_, err := fx.svc.Process(context.Background(), document.Document{Name: "a.bin"}, Options{})
			assert.ErrorIs(t, err, tt.want)
		})
	}
}

func TestProcess_OnPageStreaming(t *testing.T) {
	fake := &enginetest.Fake{}
	fx := newServiceFixture(t, &fakeNormalizer{pages: scriptedPages(4)},
		func(r *engine.Registry) {
			enginetest.Register(r, "fast", engine.ClassFast, 10, fake)
		}, engine.SelectorConfig{})

	var mu sync.Mutex
	var streamed []int
	res, err := fx.svc.Process(context.Background(), document.Document{Name: "a.pdf"}, Options{
		OnPage: func(p dispatch.PageResult) {
			mu.Lock()
			streamed = append(streamed, p.Index)
			mu.Unlock()
		},
	})
	require.NoError(t, err)
	assert.Len(t, res.Pages, 4)
	assert.ElementsMatch(t, []int{0, 1, 2, 3}, streamed)
}

func TestNew_FailsWithoutEngines(t *testing.T) {
	reg := engine.NewRegistry(1)
	enginetest.RegisterUnavailable(reg, "offline", engine.ClassFast, 10)
	pool := dispatch.NewPool(1)
	defer pool.Stop()

	disp := dispatch.NewDispatcher(pool, reg, dispatch.DefaultConfig(), nil)
	_, err := New(DefaultConfig(), &fakeNormalizer{}, reg, engine.NewSelector(reg, engine.SelectorConfig{}), disp, nil)
	assert.ErrorIs(t, err, engine.ErrNoEngines)
}

func TestKindOf(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"unsupported format", ErrUnsupportedFormat, KindUnsupportedFormat},
		{"corrupt document", ErrCorruptDocument, KindCorruptDocument},
		{"engine unavailable", ErrEngineUnavailable, KindEngineUnavailable},
		{"anything else", context.DeadlineExceeded, KindInternal},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, KindOf(tt.err))
		})
	}
}
