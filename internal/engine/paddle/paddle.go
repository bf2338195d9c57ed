// Package paddle adapts a PP-OCR recognition model running on ONNX Runtime
// to the engine capability interface. It is the lightweight/fast variant:
// a small CRNN-style model with greedy CTC decoding.
package paddle

import (
	"context"
	"errors"
	"fmt"
	"image"
	"os"
	"sync"

	"github.com/disintegration/imaging"
	onnxrt "github.com/yalue/onnxruntime_go"

	"github.com/pagelift/pagelift/internal/engine"
)

// Name is the registry name of this engine variant.
const Name = "paddle"

// Config holds model settings.
type Config struct {
	ModelPath  string
	DictPath   string
	NumThreads int
	// ImageHeight is the fixed input height the model expects.
	ImageHeight int
	// MaxWidth clamps the resized input width.
	MaxWidth int
}

// DefaultConfig returns the default paddle configuration.
func DefaultConfig() Config {
	return Config{
		ImageHeight: 48,
		MaxWidth:    2048,
	}
}

// Paddle is a reentrant engine instance; the session is guarded by an
// internal mutex so one shared handle serves the whole worker pool.
type Paddle struct {
	mu      sync.Mutex
	session *onnxrt.DynamicAdvancedSession
	charset []string
	cfg     Config
}

// New loads the model and dictionary. Any failure here marks the engine
// unavailable for the lifetime of the process; there is no lazy retry.
func New(cfg Config) (*Paddle, error) {
	if cfg.ImageHeight <= 0 {
		cfg.ImageHeight = DefaultConfig().ImageHeight
	}
	if cfg.MaxWidth <= 0 {
		cfg.MaxWidth = DefaultConfig().MaxWidth
	}
	if cfg.ModelPath == "" {
		return nil, errors.New("model path is empty")
	}
	if _, err := os.Stat(cfg.ModelPath); err != nil {
		return nil, fmt.Errorf("model not found: %s", cfg.ModelPath)
	}

	charset, err := loadCharset(cfg.DictPath)
	if err != nil {
		return nil, fmt.Errorf("load dictionary: %w", err)
	}

	session, err := createSession(cfg)
	if err != nil {
		return nil, err
	}

	return &Paddle{session: session, charset: charset, cfg: cfg}, nil
}

// Recognize implements engine.Engine.
func (p *Paddle) Recognize(ctx context.Context, img image.Image) (*engine.Recognition, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	data, w, h := preprocess(img, p.cfg.ImageHeight, p.cfg.MaxWidth)

	inputTensor, err := onnxrt.NewTensor(onnxrt.NewShape(1, 3, int64(h), int64(w)), data)
	if err != nil {
		return nil, fmt.Errorf("create input tensor: %w", err)
	}
	defer func() { _ = inputTensor.Destroy() }()

	outputs := []onnxrt.Value{nil}
	p.mu.Lock()
	err = p.session.Run([]onnxrt.Value{inputTensor}, outputs)
	p.mu.Unlock()
	if err != nil {
		// Runtime-level inference failures are usually recoverable.
		return nil, engine.Transient(fmt.Errorf("inference: %w", err))
	}
	defer func() {
		for _, o := range outputs {
			if o != nil {
				_ = o.Destroy()
			}
		}
	}()

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	outTensor, ok := outputs[0].(*onnxrt.Tensor[float32])
	if !ok {
		return nil, fmt.Errorf("expected float32 output tensor, got %T", outputs[0])
	}

	text, confidence := decodeGreedyCTC(outTensor.GetData(), outTensor.GetShape(), p.charset)
	rec := &engine.Recognition{Confidence: confidence, Scored: true}
	if text != "" {
		rec.Lines = []engine.Line{{Text: text, Confidence: confidence}}
	}
	return rec, nil
}

// Close implements engine.Engine.
func (p *Paddle) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.session != nil {
		err := p.session.Destroy()
		p.session = nil
		return err
	}
	return nil
}

// Register adds the paddle variant to the registry as a single shared
// instance (reentrant through its internal lock).
func Register(reg *engine.Registry, cfg Config, priority int) {
	reg.Register(engine.Registration{
		Name:      Name,
		Class:     engine.ClassFast,
		Priority:  priority,
		Reentrant: true,
		Build: func(int) ([]engine.Engine, error) {
			p, err := New(cfg)
			if err != nil {
				return nil, err
			}
			return []engine.Engine{p}, nil
		},
	})
}

// preprocess scales the page to the model's fixed height and converts it to
// a normalized NCHW float32 buffer.
func preprocess(img image.Image, targetH, maxW int) ([]float32, int, int) {
	b := img.Bounds()
	w := b.Dx() * targetH / max(b.Dy(), 1)
	if w < 1 {
		w = 1
	}
	if w > maxW {
		w = maxW
	}
	resized := imaging.Resize(img, w, targetH, imaging.Linear)

	data := make([]float32, 3*targetH*w)
	plane := targetH * w
	for y := range targetH {
		for x := range w {
			r, g, bb, _ := resized.At(x, y).RGBA()
			// Normalize each channel to [-1, 1], PP-OCR convention.
			data[0*plane+y*w+x] = (float32(r>>8)/127.5 - 1.0)
			data[1*plane+y*w+x] = (float32(g>>8)/127.5 - 1.0)
			data[2*plane+y*w+x] = (float32(bb>>8)/127.5 - 1.0)
		}
	}
	return data, w, targetH
}
