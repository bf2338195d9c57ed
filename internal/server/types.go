package server

import (
	"context"
	"net/http"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/engine"
	"github.com/pagelift/pagelift/internal/orchestrate"
)

// orchestrator defines the methods needed by the server from the
// orchestration facade.
type orchestrator interface {
	Process(ctx context.Context, doc document.Document, opts orchestrate.Options) (*orchestrate.Result, error)
}

// registryView exposes the read-only engine registry surface the server needs.
type registryView interface {
	Descriptors() []engine.Descriptor
	Available() []engine.Descriptor
}

// Server holds the HTTP server state and dependencies.
type Server struct {
	orc         orchestrator
	registry    registryView
	corsOrigin  string
	maxUploadMB int64
	timeoutSec  int
}

// Config holds server configuration.
type Config struct {
	Host        string
	Port        int
	CORSOrigin  string
	MaxUploadMB int64
	TimeoutSec  int
}

// Response types for API endpoints.
type HealthResponse struct {
	Status  string `json:"status"`
	Version string `json:"version,omitempty"`
	Engines int    `json:"engines"`
	Time    string `json:"time"`
}

type EngineInfo struct {
	Name      string `json:"name"`
	Class     string `json:"class"`
	Available bool   `json:"available"`
	Priority  int    `json:"priority"`
	Detail    string `json:"detail,omitempty"`
}

type EnginesResponse struct {
	Engines []EngineInfo `json:"engines"`
	Count   int          `json:"count"`
}

type ErrorResponse struct {
	Success bool   `json:"success"`
	Error   string `json:"error"`
	Kind    string `json:"kind,omitempty"`
}

type OCRResponse struct {
	Success bool                `json:"success"`
	Result  *orchestrate.Result `json:"result,omitempty"`
	Text    string              `json:"text,omitempty"`
}

// NewServer creates a new OCR server instance around an already wired
// orchestration facade.
func NewServer(orc orchestrator, registry registryView, config Config) *Server {
	return &Server{
		orc:         orc,
		registry:    registry,
		corsOrigin:  config.CORSOrigin,
		maxUploadMB: config.MaxUploadMB,
		timeoutSec:  config.TimeoutSec,
	}
}

// SetupRoutes configures the HTTP routes.
func (s *Server) SetupRoutes(mux *http.ServeMux) {
	mux.HandleFunc("/health", s.corsMiddleware(s.healthHandler))
	mux.HandleFunc("/engines", s.corsMiddleware(s.enginesHandler))
	mux.HandleFunc("/ocr", s.corsMiddleware(s.ocrHandler))
	mux.HandleFunc("/ocr/stream", s.ocrStreamHandler)
	mux.Handle("/metrics", promhttp.Handler())
}
