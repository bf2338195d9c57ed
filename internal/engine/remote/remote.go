// Package remote adapts an HTTP vision OCR service to the engine interface.
// The service receives a base64-encoded PNG and returns recognized lines;
// an Ollama-style vision model endpoint fits this shape.
package remote

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"image"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/disintegration/imaging"

	"github.com/pagelift/pagelift/internal/engine"
)

// Name is the registry name of this engine variant.
const Name = "remote"

const (
	defaultBaseURL = "http://localhost:11434"
	defaultModel   = "llama3.2-vision"
	defaultPrompt  = "Transcribe all text visible in this image. " +
		"Return only the text, one line per text line, top to bottom. " +
		"Do not add explanations or formatting."
)

// Config holds connection settings for the remote service.
type Config struct {
	BaseURL string
	Model   string
	Prompt  string
	// RequestTimeout bounds a single HTTP round trip. The per-page context
	// deadline still applies on top.
	RequestTimeout time.Duration
}

// DefaultConfig returns the default remote configuration.
func DefaultConfig() Config {
	return Config{
		BaseURL:        defaultBaseURL,
		Model:          defaultModel,
		RequestTimeout: 2 * time.Minute,
	}
}

// Remote sends pages to the configured endpoint. Safe for concurrent use.
type Remote struct {
	cfg    Config
	client *http.Client
}

// New builds a remote engine and probes the endpoint once so a dead service
// is reported at startup rather than on the first page.
func New(cfg Config) (*Remote, error) {
	def := DefaultConfig()
	if cfg.BaseURL == "" {
		cfg.BaseURL = def.BaseURL
	}
	if cfg.Model == "" {
		cfg.Model = def.Model
	}
	if cfg.Prompt == "" {
		cfg.Prompt = defaultPrompt
	}
	if cfg.RequestTimeout <= 0 {
		cfg.RequestTimeout = def.RequestTimeout
	}

	r := &Remote{
		cfg:    cfg,
		client: &http.Client{Timeout: cfg.RequestTimeout},
	}
	if err := r.probe(); err != nil {
		return nil, err
	}
	return r, nil
}

func (r *Remote) probe() error {
	resp, err := r.client.Get(r.cfg.BaseURL + "/api/tags")
	if err != nil {
		return fmt.Errorf("%w: %s unreachable: %v", engine.ErrUnavailable, r.cfg.BaseURL, err)
	}
	defer func() { _ = resp.Body.Close() }()
	if resp.StatusCode >= 500 {
		return fmt.Errorf("%w: %s returned %d", engine.ErrUnavailable, r.cfg.BaseURL, resp.StatusCode)
	}
	return nil
}

type generateRequest struct {
	Model  string   `json:"model"`
	Prompt string   `json:"prompt"`
	Images []string `json:"images"`
	Stream bool     `json:"stream"`
}

type generateResponse struct {
	Response string `json:"response"`
	Done     bool   `json:"done"`
}

// Recognize implements engine.Engine.
func (r *Remote) Recognize(ctx context.Context, img image.Image) (*engine.Recognition, error) {
	var buf bytes.Buffer
	if err := imaging.Encode(&buf, img, imaging.PNG); err != nil {
		return nil, fmt.Errorf("encode page: %w", err)
	}

	payload, err := json.Marshal(generateRequest{
		Model:  r.cfg.Model,
		Prompt: r.cfg.Prompt,
		Images: []string{base64.StdEncoding.EncodeToString(buf.Bytes())},
		Stream: false,
	})
	if err != nil {
		return nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost,
		r.cfg.BaseURL+"/api/generate", bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := r.client.Do(req)
	if err != nil {
		// Network failures and timeouts are worth a retry.
		return nil, engine.Transient(fmt.Errorf("send request: %w", err))
	}
	defer func() { _ = resp.Body.Close() }()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, engine.Transient(fmt.Errorf("read response: %w", err))
	}

	switch {
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, engine.Transient(fmt.Errorf("remote returned %d", resp.StatusCode))
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("remote returned %d: %s", resp.StatusCode, strings.TrimSpace(string(body)))
	}

	var gen generateResponse
	if err := json.Unmarshal(body, &gen); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w", err)
	}

	// Vision models do not report per-line confidence.
	rec := &engine.Recognition{Scored: false}
	for line := range strings.SplitSeq(gen.Response, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		rec.Lines = append(rec.Lines, engine.Line{Text: line})
	}
	return rec, nil
}

// Close implements engine.Engine.
func (r *Remote) Close() error {
	r.client.CloseIdleConnections()
	return nil
}

// Register adds the remote variant as a single shared instance.
func Register(reg *engine.Registry, cfg Config, priority int) {
	reg.Register(engine.Registration{
		Name:      Name,
		Class:     engine.ClassBalanced,
		Priority:  priority,
		Reentrant: true,
		Build: func(int) ([]engine.Engine, error) {
			r, err := New(cfg)
			if err != nil {
				return nil, err
			}
			return []engine.Engine{r}, nil
		},
	})
}
