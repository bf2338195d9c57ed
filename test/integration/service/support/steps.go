package support

import (
	"errors"
	"fmt"
	"time"

	"github.com/pagelift/pagelift/internal/engine"
	"github.com/pagelift/pagelift/internal/engine/enginetest"
	"github.com/pagelift/pagelift/internal/orchestrate"
)

func (tc *TestContext) engineRecognizes(name, text string) error {
	tc.addEngine(engineSpec{
		name:  name,
		class: engine.ClassFast,
		fake:  &enginetest.Fake{Text: text, Confidence: 0.9, Scored: true},
	})
	return nil
}

func (tc *TestContext) engineAlwaysFails(name string) error {
	tc.addEngine(engineSpec{
		name:  name,
		class: engine.ClassAccurate,
		fake:  &enginetest.Fake{AlwaysFail: true},
	})
	return nil
}

func (tc *TestContext) engineFlaky(name string, failures int) error {
	tc.addEngine(engineSpec{
		name:  name,
		class: engine.ClassFast,
		fake:  &enginetest.Fake{Text: "recovered", FailFirst: failures},
	})
	return nil
}

func (tc *TestContext) engineSlow(name string, millis int) error {
	tc.addEngine(engineSpec{
		name:  name,
		class: engine.ClassFast,
		fake:  &enginetest.Fake{Delay: time.Duration(millis) * time.Millisecond},
	})
	return nil
}

func (tc *TestContext) engineUnavailable(name string) error {
	tc.addEngine(engineSpec{name: name, class: engine.ClassBalanced, unavailable: true})
	return nil
}

func (tc *TestContext) setFallback(name string) error {
	tc.fallback = name
	return nil
}

func (tc *TestContext) setRetryBudget(attempts int) error {
	tc.maxAttempts = attempts
	return nil
}

func (tc *TestContext) setRequestTimeout(millis int) error {
	tc.opts.Timeout = time.Duration(millis) * time.Millisecond
	return nil
}

func (tc *TestContext) setRequestedEngine(name string) error {
	tc.opts.Engine = name
	return nil
}

func (tc *TestContext) documentWithPages(count int) error {
	tc.pages = tc.buildPages(count)
	return nil
}

func (tc *TestContext) documentWithBadPage(count, badPage int) error {
	if badPage < 1 || badPage > count {
		return fmt.Errorf("page %d outside document of %d pages", badPage, count)
	}
	tc.pages = tc.buildPages(count)
	tc.badWidths[pageWidth(badPage)] = true
	return nil
}

func (tc *TestContext) processAgain() error {
	if tc.result == nil {
		return fmt.Errorf("no previous run to compare against")
	}
	tc.prevText = tc.result.Text()
	if err := tc.Cleanup(); err != nil {
		return err
	}
	tc.result = nil
	return tc.process()
}

func (tc *TestContext) resultHasPages(count int) error {
	if tc.err != nil {
		return fmt.Errorf("processing failed: %w", tc.err)
	}
	if tc.result == nil {
		return fmt.Errorf("no result available")
	}
	if len(tc.result.Pages) != count {
		return fmt.Errorf("expected %d pages, got %d", count, len(tc.result.Pages))
	}
	return nil
}

func (tc *TestContext) pageSucceeded(pageNum int) error {
	page, err := tc.pageAt(pageNum)
	if err != nil {
		return err
	}
	if !page.Succeeded() {
		return fmt.Errorf("page %d failed: %s", pageNum, page.Error)
	}
	return nil
}

func (tc *TestContext) pageFailed(pageNum int) error {
	page, err := tc.pageAt(pageNum)
	if err != nil {
		return err
	}
	if page.Succeeded() {
		return fmt.Errorf("page %d unexpectedly succeeded", pageNum)
	}
	return nil
}

func (tc *TestContext) pageRecognizedBy(pageNum int, engineName string) error {
	page, err := tc.pageAt(pageNum)
	if err != nil {
		return err
	}
	if page.Engine != engineName {
		return fmt.Errorf("page %d recognized by %q, expected %q", pageNum, page.Engine, engineName)
	}
	return nil
}

func (tc *TestContext) pageAttempts(pageNum, attempts int) error {
	page, err := tc.pageAt(pageNum)
	if err != nil {
		return err
	}
	if page.Attempts != attempts {
		return fmt.Errorf("page %d recorded %d attempts, expected %d", pageNum, page.Attempts, attempts)
	}
	return nil
}

func (tc *TestContext) resultPartial() error {
	if tc.result == nil {
		return fmt.Errorf("no result available")
	}
	if !tc.result.PartialSuccess {
		return fmt.Errorf("result not marked partial success")
	}
	return nil
}

func (tc *TestContext) resultNotPartial() error {
	if tc.result == nil {
		return fmt.Errorf("no result available")
	}
	if tc.result.PartialSuccess {
		return fmt.Errorf("result unexpectedly marked partial success")
	}
	return nil
}

func (tc *TestContext) failsUnavailable() error {
	if tc.err == nil {
		return fmt.Errorf("expected an engine unavailable error, got success")
	}
	if !errors.Is(tc.err, orchestrate.ErrEngineUnavailable) {
		return fmt.Errorf("expected engine unavailable, got: %v", tc.err)
	}
	return nil
}

func (tc *TestContext) engineNeverCalled(name string) error {
	fake, ok := tc.fakes[name]
	if !ok {
		return fmt.Errorf("unknown engine %q", name)
	}
	if calls := fake.Calls(); calls != 0 {
		return fmt.Errorf("engine %q was called %d times", name, calls)
	}
	return nil
}

func (tc *TestContext) everyPageCancelled() error {
	if tc.result == nil {
		return fmt.Errorf("no result available")
	}
	for i, page := range tc.result.Pages {
		if page.State != "cancelled" {
			return fmt.Errorf("page %d state is %q, expected cancelled", i+1, page.State)
		}
	}
	return nil
}

func (tc *TestContext) textMatchesPrevious() error {
	if tc.result == nil {
		return fmt.Errorf("no result available")
	}
	if got := tc.result.Text(); got != tc.prevText {
		return fmt.Errorf("text differs between runs:\nfirst: %q\nsecond: %q", tc.prevText, got)
	}
	return nil
}
