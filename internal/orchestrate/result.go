package orchestrate

import (
	"strings"
	"time"

	"golang.org/x/text/unicode/norm"

	"github.com/pagelift/pagelift/internal/dispatch"
)

// Result aggregates the per-page outcomes for one document. Pages is always
// in source page order and always has one entry per normalized page, even
// when every page failed.
type Result struct {
	Pages []dispatch.PageResult `json:"pages"`
	// Engine is the engine selected for the document; individual pages may
	// report a different engine after a fallback pass.
	Engine string `json:"engine"`
	// Elapsed is the wall-clock span of the whole orchestration, not the
	// sum of per-page times (pages run concurrently).
	Elapsed time.Duration `json:"elapsed_ns"`
	// PartialSuccess is set when at least one page failed while at least
	// one other succeeded.
	PartialSuccess bool `json:"partial_success"`
}

// Text joins the recognized lines of all successful pages in page order.
func (r *Result) Text() string {
	var b strings.Builder
	for _, p := range r.Pages {
		for _, l := range p.Lines {
			b.WriteString(l.Text)
			b.WriteByte('\n')
		}
	}
	return b.String()
}

// aggregate merges page results into the final Result. Extracted text is
// normalized to NFC so downstream consumers see one canonical form
// regardless of which backend produced it.
func aggregate(pages []dispatch.PageResult, engineName string, start time.Time) *Result {
	succeeded, failed := 0, 0
	for i := range pages {
		for j := range pages[i].Lines {
			pages[i].Lines[j].Text = norm.NFC.String(pages[i].Lines[j].Text)
		}
		if pages[i].Succeeded() {
			succeeded++
		} else {
			failed++
		}
	}
	return &Result{
		Pages:          pages,
		Engine:         engineName,
		Elapsed:        time.Since(start),
		PartialSuccess: failed > 0 && succeeded > 0,
	}
}
