package server

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/pagelift/pagelift/internal/orchestrate"
)

var (
	// HTTP request metrics
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelift_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "endpoint", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "pagelift_http_request_duration_seconds",
			Help:    "HTTP request duration in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "endpoint"},
	)

	// OCR processing metrics
	ocrDocumentsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelift_ocr_documents_total",
			Help: "Total number of processed documents",
		},
		[]string{"engine", "status"}, // status: success, partial
	)

	ocrPagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelift_ocr_pages_total",
			Help: "Total number of processed pages",
		},
		[]string{"status"}, // status: success, failed
	)

	ocrProcessingDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "pagelift_ocr_processing_duration_seconds",
			Help:    "Document processing duration in seconds",
			Buckets: []float64{.1, .25, .5, 1, 2.5, 5, 10, 25, 50, 100},
		},
	)

	// WebSocket metrics
	websocketConnections = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "pagelift_websocket_active_connections",
			Help: "Number of active WebSocket connections",
		},
	)

	websocketMessagesTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "pagelift_websocket_messages_total",
			Help: "Total number of WebSocket messages",
		},
		[]string{"direction"}, // direction: sent, received
	)
)

// recordResult updates the OCR counters for one finished document.
func recordResult(res *orchestrate.Result) {
	status := "success"
	if res.PartialSuccess {
		status = "partial"
	}
	ocrDocumentsTotal.WithLabelValues(res.Engine, status).Inc()
	for _, p := range res.Pages {
		if p.Succeeded() {
			ocrPagesTotal.WithLabelValues("success").Inc()
		} else {
			ocrPagesTotal.WithLabelValues("failed").Inc()
		}
	}
	ocrProcessingDuration.Observe(res.Elapsed.Seconds())
}
