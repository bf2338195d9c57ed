package server

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/orchestrate"
	"github.com/pagelift/pagelift/internal/version"
)

const formatText = "text"

// healthHandler returns server health status.
func (s *Server) healthHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	response := HealthResponse{
		Status:  "healthy",
		Version: version.Version,
		Engines: len(s.registry.Available()),
		Time:    time.Now().UTC().Format(time.RFC3339),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding health response: %v\n", err)
	}
}

// enginesHandler returns information about registered engines, including
// unavailable ones with their failure detail.
func (s *Server) enginesHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	descs := s.registry.Descriptors()
	engineList := make([]EngineInfo, len(descs))
	for i, d := range descs {
		engineList[i] = EngineInfo{
			Name:      d.Name,
			Class:     d.ClassName,
			Available: d.Available,
			Priority:  d.Priority,
			Detail:    d.Detail,
		}
	}

	response := EnginesResponse{
		Engines: engineList,
		Count:   len(engineList),
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding engines response: %v\n", err)
	}
}

// ocrHandler processes document OCR requests.
func (s *Server) ocrHandler(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "Method not allowed", http.StatusMethodNotAllowed)
		return
	}

	r.Body = http.MaxBytesReader(w, r.Body, s.maxUploadMB*1024*1024)

	if err := r.ParseMultipartForm(s.maxUploadMB * 1024 * 1024); err != nil {
		if strings.Contains(strings.ToLower(err.Error()), "too large") {
			s.writeErrorResponse(w, "File too large", "", http.StatusRequestEntityTooLarge)
		} else {
			s.writeErrorResponse(w, "Failed to parse form data", "", http.StatusBadRequest)
		}
		return
	}

	file, header, err := r.FormFile("document")
	if err != nil {
		s.writeErrorResponse(w, "No document file provided", "", http.StatusBadRequest)
		return
	}
	defer func() { _ = file.Close() }()

	if header.Size > s.maxUploadMB*1024*1024 {
		s.writeErrorResponse(w, "File too large", "", http.StatusRequestEntityTooLarge)
		return
	}

	data, err := io.ReadAll(file)
	if err != nil {
		s.writeErrorResponse(w, "Failed to read document data", "", http.StatusInternalServerError)
		return
	}

	doc := document.New(header.Filename, header.Header.Get("Content-Type"), data)
	opts := s.optionsFromForm(r)

	res, err := s.orc.Process(r.Context(), doc, opts)
	if err != nil {
		s.writeProcessError(w, err)
		return
	}
	recordResult(res)
	w.Header().Set("X-Process-Time", fmt.Sprintf("%.3f", res.Elapsed.Seconds()))

	format := r.FormValue("format")
	if format == "" {
		format = r.URL.Query().Get("format")
	}
	if format == formatText {
		w.Header().Set("Content-Type", "text/plain; charset=utf-8")
		_, _ = w.Write([]byte(res.Text()))
		return
	}

	w.Header().Set("Content-Type", "application/json")
	if err := json.NewEncoder(w).Encode(OCRResponse{Success: true, Result: res}); err != nil {
		fmt.Fprintf(os.Stderr, "Error encoding OCR response: %v\n", err)
	}
}

// optionsFromForm reads per-request overrides from the multipart form.
func (s *Server) optionsFromForm(r *http.Request) orchestrate.Options {
	opts := orchestrate.Options{Engine: r.FormValue("engine")}
	if v := r.FormValue("dpi"); v != "" {
		if dpi, err := strconv.Atoi(v); err == nil {
			opts.DPI = dpi
		}
	}
	if v := r.FormValue("page_timeout_sec"); v != "" {
		if sec, err := strconv.Atoi(v); err == nil && sec > 0 {
			opts.PageTimeout = time.Duration(sec) * time.Second
		}
	}
	if v := r.FormValue("max_attempts"); v != "" {
		if n, err := strconv.Atoi(v); err == nil && n > 0 {
			opts.MaxAttempts = n
		}
	}
	if s.timeoutSec > 0 {
		opts.Timeout = time.Duration(s.timeoutSec) * time.Second
	}
	return opts
}

// writeProcessError maps orchestration errors onto HTTP status codes.
func (s *Server) writeProcessError(w http.ResponseWriter, err error) {
	kind := orchestrate.KindOf(err)
	status := http.StatusInternalServerError
	switch {
	case errors.Is(err, orchestrate.ErrUnsupportedFormat):
		status = http.StatusUnsupportedMediaType
	case errors.Is(err, orchestrate.ErrCorruptDocument):
		status = http.StatusBadRequest
	case errors.Is(err, orchestrate.ErrEngineUnavailable):
		status = http.StatusServiceUnavailable
	case errors.Is(err, orchestrate.ErrCancelled):
		status = http.StatusRequestTimeout
	}
	s.writeErrorResponse(w, err.Error(), string(kind), status)
}

// writeErrorResponse writes a JSON error response.
func (s *Server) writeErrorResponse(w http.ResponseWriter, message, kind string, statusCode int) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)

	response := ErrorResponse{
		Success: false,
		Error:   message,
		Kind:    kind,
	}

	if err := json.NewEncoder(w).Encode(response); err != nil {
		fmt.Fprintf(os.Stderr, "Error writing error response: %v\n", err)
	}
}
