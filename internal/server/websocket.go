package server

import (
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/pagelift/pagelift/internal/dispatch"
	"github.com/pagelift/pagelift/internal/document"
	"github.com/pagelift/pagelift/internal/orchestrate"
)

// WebSocket upgrader with reasonable defaults.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(r *http.Request) bool {
		// Allow connections from any origin in development
		// In production, you should check against allowed origins
		return true
	},
}

// StreamRequest is an OCR request sent over the stream endpoint. Document
// bytes arrive base64-encoded through the standard JSON []byte encoding.
type StreamRequest struct {
	Document    []byte `json:"document"`
	Filename    string `json:"filename,omitempty"`
	ContentType string `json:"content_type,omitempty"`
	Engine      string `json:"engine,omitempty"`
	DPI         int    `json:"dpi,omitempty"`
}

// StreamResponse is a message sent back over the stream endpoint. Page
// progress events carry one page each; the final message carries the
// aggregated result.
type StreamResponse struct {
	Type      string               `json:"type"` // "progress", "completed", "error"
	Page      *dispatch.PageResult `json:"page,omitempty"`
	Done      int                  `json:"done,omitempty"`
	Result    *orchestrate.Result  `json:"result,omitempty"`
	Error     string               `json:"error,omitempty"`
	ErrorKind string               `json:"error_kind,omitempty"`
	RequestID string               `json:"request_id,omitempty"`
}

// streamConn serializes writes; page callbacks fire from worker goroutines.
type streamConn struct {
	mu   sync.Mutex
	conn *websocket.Conn
}

func (c *streamConn) send(response StreamResponse) {
	data, err := json.Marshal(response)
	if err != nil {
		slog.Error("Failed to marshal WebSocket response", "error", err)
		return
	}

	c.mu.Lock()
	err = c.conn.WriteMessage(websocket.TextMessage, data)
	c.mu.Unlock()
	if err != nil {
		slog.Error("Failed to send WebSocket message", "error", err)
		return
	}

	websocketMessagesTotal.WithLabelValues("sent").Inc()
}

// ocrStreamHandler handles WebSocket connections for OCR with per-page
// progress updates.
func (s *Server) ocrStreamHandler(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		slog.Error("Failed to upgrade connection to WebSocket", "error", err)
		return
	}
	defer func() { _ = conn.Close() }()

	websocketConnections.Inc()
	defer websocketConnections.Dec()

	slog.Info("WebSocket connection established", "remote_addr", r.RemoteAddr)

	_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
	conn.SetPongHandler(func(string) error {
		_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		return nil
	})

	sc := &streamConn{conn: conn}

	// Keep the connection alive across long documents.
	stop := make(chan struct{})
	defer close(stop)
	go func() {
		ticker := time.NewTicker(30 * time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				if err := conn.WriteControl(websocket.PingMessage, []byte{}, time.Now().Add(10*time.Second)); err != nil {
					return
				}
			}
		}
	}()

	for {
		messageType, data, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseAbnormalClosure) {
				slog.Error("WebSocket error", "error", err)
			}
			break
		}

		websocketMessagesTotal.WithLabelValues("received").Inc()

		if messageType == websocket.TextMessage {
			s.handleStreamMessage(r, sc, data)
			_ = conn.SetReadDeadline(time.Now().Add(60 * time.Second))
		}
	}
}

// handleStreamMessage processes one OCR request from the stream.
func (s *Server) handleStreamMessage(r *http.Request, sc *streamConn, data []byte) {
	var req StreamRequest
	if err := json.Unmarshal(data, &req); err != nil {
		sc.send(StreamResponse{
			Type:      "error",
			Error:     fmt.Sprintf("Failed to parse request: %v", err),
			ErrorKind: "invalid_request",
		})
		return
	}
	if len(req.Document) == 0 {
		sc.send(StreamResponse{
			Type:      "error",
			Error:     "No document data provided",
			ErrorKind: "invalid_request",
		})
		return
	}

	requestID := strconv.FormatInt(time.Now().UnixNano(), 10)
	doc := document.New(req.Filename, req.ContentType, req.Document)

	var done int
	var mu sync.Mutex
	opts := orchestrate.Options{
		Engine: req.Engine,
		DPI:    req.DPI,
		OnPage: func(pr dispatch.PageResult) {
			mu.Lock()
			done++
			n := done
			mu.Unlock()
			sc.send(StreamResponse{
				Type:      "progress",
				Page:      &pr,
				Done:      n,
				RequestID: requestID,
			})
		},
	}
	if s.timeoutSec > 0 {
		opts.Timeout = time.Duration(s.timeoutSec) * time.Second
	}

	res, err := s.orc.Process(r.Context(), doc, opts)
	if err != nil {
		sc.send(StreamResponse{
			Type:      "error",
			Error:     err.Error(),
			ErrorKind: string(orchestrate.KindOf(err)),
			RequestID: requestID,
		})
		return
	}
	recordResult(res)

	sc.send(StreamResponse{
		Type:      "completed",
		Result:    res,
		RequestID: requestID,
	})
}
