// Package tesseract adapts the Tesseract OCR backend (via gosseract) to the
// engine capability interface. Tesseract clients are not safe for
// concurrent use, so the builder produces one client per worker slot.
package tesseract

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"strings"

	"github.com/otiai10/gosseract/v2"

	"github.com/pagelift/pagelift/internal/engine"
)

// Name is the registry name of this engine variant.
const Name = "tesseract"

// Config holds Tesseract settings.
type Config struct {
	Languages []string
	// TessdataDir points at the trained-data directory; empty uses the
	// system default.
	TessdataDir string
	// PageSegMode, when >= 0, overrides the page segmentation mode.
	PageSegMode int
}

// DefaultConfig returns the default Tesseract configuration.
func DefaultConfig() Config {
	return Config{
		Languages:   []string{"eng"},
		PageSegMode: -1,
	}
}

// Tesseract is one non-reentrant engine instance bound to a worker slot.
type Tesseract struct {
	client *gosseract.Client
	cfg    Config
}

// New creates one instance and verifies the backing library is usable.
func New(cfg Config) (*Tesseract, error) {
	client := gosseract.NewClient()
	if cfg.TessdataDir != "" {
		if err := client.SetTessdataPrefix(cfg.TessdataDir); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set tessdata prefix: %w", err)
		}
	}
	if len(cfg.Languages) > 0 {
		if err := client.SetLanguage(cfg.Languages...); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set languages: %w", err)
		}
	}
	if cfg.PageSegMode >= 0 {
		if err := client.SetPageSegMode(gosseract.PageSegMode(cfg.PageSegMode)); err != nil {
			_ = client.Close()
			return nil, fmt.Errorf("set page segmentation mode: %w", err)
		}
	}
	return &Tesseract{client: client, cfg: cfg}, nil
}

// Recognize implements engine.Engine.
func (t *Tesseract) Recognize(ctx context.Context, img image.Image) (*engine.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	if err := png.Encode(&buf, img); err != nil {
		return nil, fmt.Errorf("encode page image: %w", err)
	}
	if err := t.client.SetImageFromBytes(buf.Bytes()); err != nil {
		return nil, engine.Transient(fmt.Errorf("set image: %w", err))
	}

	text, err := t.client.Text()
	if err != nil {
		// Tesseract failures on a well-formed raster are typically
		// recoverable on retry (library-level hiccups, OOM pressure).
		return nil, engine.Transient(fmt.Errorf("recognize: %w", err))
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	lines, confidence, scored := t.collectLines(text)
	return &engine.Recognition{
		Lines:      lines,
		Confidence: confidence,
		Scored:     scored,
	}, nil
}

// collectLines splits the raw text into lines and attaches line-level
// confidences from Tesseract's bounding box data when present.
func (t *Tesseract) collectLines(text string) ([]engine.Line, float64, bool) {
	var lines []engine.Line
	for _, raw := range strings.Split(text, "\n") {
		raw = strings.TrimSpace(raw)
		if raw == "" {
			continue
		}
		lines = append(lines, engine.Line{Text: raw})
	}

	boxes, err := t.client.GetBoundingBoxes(gosseract.RIL_TEXTLINE)
	if err != nil || len(boxes) == 0 {
		return lines, 0, false
	}
	var sum float64
	for i, b := range boxes {
		conf := b.Confidence / 100.0
		sum += conf
		if i < len(lines) {
			lines[i].Confidence = conf
		}
	}
	return lines, sum / float64(len(boxes)), true
}

// Close implements engine.Engine.
func (t *Tesseract) Close() error {
	return t.client.Close()
}

// Register adds the Tesseract variant to the registry with one dedicated
// instance per worker slot.
func Register(reg *engine.Registry, cfg Config, priority int) {
	reg.Register(engine.Registration{
		Name:      Name,
		Class:     engine.ClassAccurate,
		Priority:  priority,
		Reentrant: false,
		Build: func(workers int) ([]engine.Engine, error) {
			instances := make([]engine.Engine, 0, workers)
			for range workers {
				t, err := New(cfg)
				if err != nil {
					for _, inst := range instances {
						_ = inst.Close()
					}
					return nil, err
				}
				instances = append(instances, t)
			}
			return instances, nil
		},
	})
}
