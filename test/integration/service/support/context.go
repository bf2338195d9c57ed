// Package support holds the godog step definitions for the orchestration
// scenarios. Engines are scripted in-memory so the suite runs without any
// native OCR backend installed.
package support

import (
	"context"
	"fmt"
	"image"
	"time"

	"github.com/cucumber/godog"

	"github.com/pagelift/pagelift/internal/dispatch"
	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
	"github.com/pagelift/pagelift/internal/engine/enginetest"
	"github.com/pagelift/pagelift/internal/orchestrate"
)

// engineSpec describes one scripted engine before the registry is built.
type engineSpec struct {
	name        string
	class       engine.Class
	priority    int
	unavailable bool
	fake        *enginetest.Fake
}

// pageNormalizer feeds pre-built pages to the facade, standing in for the
// PDF/image normalizer.
type pageNormalizer struct {
	pages []document.Page
}

func (n *pageNormalizer) Normalize(_ context.Context, _ document.Document, _ int) ([]document.Page, error) {
	return n.pages, nil
}

// unreadablePages wraps an engine and fails fatally for pages whose image
// width is marked bad, simulating malformed page content.
type unreadablePages struct {
	inner     engine.Engine
	badWidths map[int]bool
}

func (u *unreadablePages) Recognize(ctx context.Context, img image.Image) (*engine.Recognition, error) {
	if u.badWidths[img.Bounds().Dx()] {
		return nil, fmt.Errorf("page content is unreadable")
	}
	return u.inner.Recognize(ctx, img)
}

func (u *unreadablePages) Close() error { return u.inner.Close() }

// TestContext carries scenario state between steps.
type TestContext struct {
	specs       []engineSpec
	fakes       map[string]*enginetest.Fake
	badWidths   map[int]bool
	fallback    string
	maxAttempts int
	pages       []document.Page
	opts        orchestrate.Options

	registry *engine.Registry
	pool     *dispatch.Pool

	result   *orchestrate.Result
	err      error
	prevText string
}

// NewTestContext creates a fresh scenario context.
func NewTestContext() *TestContext {
	return &TestContext{
		fakes:     make(map[string]*enginetest.Fake),
		badWidths: make(map[int]bool),
	}
}

// Cleanup releases the registry and worker pool built for the scenario.
func (tc *TestContext) Cleanup() error {
	if tc.pool != nil {
		tc.pool.Stop()
		tc.pool = nil
	}
	if tc.registry != nil {
		err := tc.registry.Close()
		tc.registry = nil
		return err
	}
	return nil
}

// pageWidth maps a 1-based page number to the synthetic image width used
// for that page, so scripted engines can tell pages apart.
func pageWidth(pageNum int) int { return 20 + pageNum - 1 }

func (tc *TestContext) buildPages(count int) []document.Page {
	pages := make([]document.Page, count)
	for i := range count {
		w := pageWidth(i + 1)
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

func (tc *TestContext) addEngine(spec engineSpec) {
	spec.priority = 10 * (len(tc.specs) + 1)
	tc.specs = append(tc.specs, spec)
	if spec.fake != nil {
		tc.fakes[spec.name] = spec.fake
	}
}

// buildService wires registry, pool, dispatcher and facade from the state
// the Given steps accumulated.
func (tc *TestContext) buildService() (*orchestrate.Service, error) {
	tc.registry = engine.NewRegistry(2)
	for _, spec := range tc.specs {
		if spec.unavailable {
			enginetest.RegisterUnavailable(tc.registry, spec.name, spec.class, spec.priority)
			continue
		}
		fake := spec.fake
		bad := tc.badWidths
		tc.registry.Register(engine.Registration{
			Name:      spec.name,
			Class:     spec.class,
			Priority:  spec.priority,
			Reentrant: true,
			Build: func(int) ([]engine.Engine, error) {
				if len(bad) == 0 {
					return []engine.Engine{fake}, nil
				}
				return []engine.Engine{&unreadablePages{inner: fake, badWidths: bad}}, nil
			},
		})
	}

	tc.pool = dispatch.NewPool(2)
	cfg := dispatch.Config{
		PageTimeout:    time.Second,
		MaxAttempts:    2,
		BackoffBase:    time.Millisecond,
		MaxPageTimeout: 2 * time.Second,
		MaxAttemptsCap: 10,
	}
	if tc.maxAttempts > 0 {
		cfg.MaxAttempts = tc.maxAttempts
	}
	disp := dispatch.NewDispatcher(tc.pool, tc.registry, cfg, nil)
	selector := engine.NewSelector(tc.registry, engine.SelectorConfig{Fallback: tc.fallback})

	return orchestrate.New(orchestrate.DefaultConfig(),
		&pageNormalizer{pages: tc.pages}, tc.registry, selector, disp, nil)
}

func (tc *TestContext) process() error {
	svc, err := tc.buildService()
	if err != nil {
		tc.err = err
		return nil
	}
	doc := document.Document{Name: "scenario.pdf", Media: document.MediaPDF}
	tc.result, tc.err = svc.Process(context.Background(), doc, tc.opts)
	return nil
}

func (tc *TestContext) pageAt(pageNum int) (dispatch.PageResult, error) {
	if tc.result == nil {
		return dispatch.PageResult{}, fmt.Errorf("no result available")
	}
	idx := pageNum - 1
	if idx < 0 || idx >= len(tc.result.Pages) {
		return dispatch.PageResult{}, fmt.Errorf("page %d out of range (%d pages)", pageNum, len(tc.result.Pages))
	}
	return tc.result.Pages[idx], nil
}

// RegisterSteps binds all step definitions to the scenario.
func (tc *TestContext) RegisterSteps(sc *godog.ScenarioContext) {
	sc.Step(`^an engine "([^"]*)" that recognizes text "([^"]*)"$`, tc.engineRecognizes)
	sc.Step(`^an engine "([^"]*)" that always fails$`, tc.engineAlwaysFails)
	sc.Step(`^an engine "([^"]*)" that fails (\d+) times? per page before succeeding$`, tc.engineFlaky)
	sc.Step(`^an engine "([^"]*)" that takes (\d+)ms per page$`, tc.engineSlow)
	sc.Step(`^an engine "([^"]*)" that failed to initialize$`, tc.engineUnavailable)
	sc.Step(`^the fallback engine is "([^"]*)"$`, tc.setFallback)
	sc.Step(`^the retry budget is (\d+) attempts$`, tc.setRetryBudget)
	sc.Step(`^the request timeout is (\d+)ms$`, tc.setRequestTimeout)
	sc.Step(`^the request names engine "([^"]*)"$`, tc.setRequestedEngine)
	sc.Step(`^a document with (\d+) pages?$`, tc.documentWithPages)
	sc.Step(`^a document with (\d+) pages where page (\d+) is unreadable$`, tc.documentWithBadPage)
	sc.Step(`^I process the document$`, tc.process)
	sc.Step(`^I process the document again$`, tc.processAgain)
	sc.Step(`^the result has (\d+) pages?$`, tc.resultHasPages)
	sc.Step(`^page (\d+) succeeded$`, tc.pageSucceeded)
	sc.Step(`^page (\d+) failed terminally$`, tc.pageFailed)
	sc.Step(`^page (\d+) was recognized by "([^"]*)"$`, tc.pageRecognizedBy)
	sc.Step(`^page (\d+) recorded (\d+) attempts$`, tc.pageAttempts)
	sc.Step(`^the result is marked partial success$`, tc.resultPartial)
	sc.Step(`^the result is not marked partial success$`, tc.resultNotPartial)
	sc.Step(`^processing fails with an engine unavailable error$`, tc.failsUnavailable)
	sc.Step(`^the engine "([^"]*)" was never called$`, tc.engineNeverCalled)
	sc.Step(`^every page is cancelled$`, tc.everyPageCancelled)
	sc.Step(`^the recognized text matches the previous run$`, tc.textMatchesPrevious)
}
