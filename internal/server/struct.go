package server

import (
	"context"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/fridaylabs/friday-kb/internal/ingest"
	"github.com/fridaylabs/friday-kb/internal/rag"
)

// Config holds the HTTP server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1).
	Host string
	// Port is the TCP port to listen on (default: 8080).
	Port int
	// ReadTimeout is the maximum duration for reading the request.
	ReadTimeout time.Duration
	// WriteTimeout is the maximum duration for writing the response.
	// Must be long enough to cover extraction + embedding of large uploads.
	WriteTimeout time.Duration
	// ShutdownTimeout is the maximum duration for a graceful shutdown.
	ShutdownTimeout time.Duration
	// ChatTimeout bounds a single POST /api/chat request, covering retrieval
	// and completion. Defaults to 2 minutes if zero.
	ChatTimeout time.Duration
	// MaxUploadBytes caps the size of a single POST /api/upload body.
	// Defaults to 100 MiB if zero.
	MaxUploadBytes int64
	// Logger is the structured logger used by the server and its handlers.
	// If nil, [logging.New] is used.
	Logger *slog.Logger
	// Pingers is the ordered list of dependency probes run by GET /api/ready.
	// If empty, /api/ready returns 200 with no checks (liveness-only mode).
	Pingers []Pinger
	// RateLimit is the sustained request rate allowed per IP on rate-limited
	// endpoints (requests/second). Defaults to 10 if zero.
	RateLimit float64
	// RateBurst is the maximum instantaneous burst per IP. Defaults to 20 if zero.
	RateBurst int
	// MetricsRegistry receives all Prometheus metric registrations.
	// If nil, a fresh private registry is created.
	MetricsRegistry prometheus.Registerer
	// MetricsGatherer backs GET /metrics. Must gather from MetricsRegistry.
	MetricsGatherer prometheus.Gatherer
	// IndexSize reports the number of entries in the similarity index, exported
	// as a gauge. If nil, the gauge is not registered.
	IndexSize func() int
}

// answerer is the interface handleChat calls to answer a question.
// *rag.Engine satisfies it; tests inject a fake.
type answerer interface {
	// Answer retrieves context for question and returns a grounded answer.
	Answer(ctx context.Context, question string) (*rag.Answer, error)
}

// ingester is the interface handleUpload calls to ingest an uploaded file.
// *ingest.Pipeline satisfies it; tests inject a fake.
type ingester interface {
	// Ingest extracts, chunks, embeds, and stores the file at path.
	Ingest(ctx context.Context, path string) (*ingest.Result, error)
}

// Server is the HTTP server exposing the knowledge base API.
type Server struct {
	// answerer handles POST /api/chat questions.
	answerer answerer
	// ingester handles POST /api/upload documents.
	ingester ingester
	// cfg holds the resolved server configuration.
	cfg *Config
	// httpServer is the underlying net/http server.
	httpServer *http.Server
	// log is the structured logger for this server instance.
	log *slog.Logger
	// pingers is the ordered list of dependency probes for GET /api/ready.
	pingers []Pinger
	// metrics holds all Prometheus metrics owned by this server instance.
	metrics *serverMetrics
	// stopRL stops the rate limiter's background eviction goroutine on shutdown.
	stopRL func()
}

// chatRequest is the JSON body for POST /api/chat.
type chatRequest struct {
	// Question is the user's natural language question.
	Question string `json:"question"`
}

// uploadResponse is the JSON response for POST /api/upload.
type uploadResponse struct {
	// FileName is the stored name of the uploaded document.
	FileName string `json:"file_name"`
	// ChunksEmbedded is the number of text chunks embedded and stored.
	ChunksEmbedded int `json:"chunks_embedded"`
}

// errorResponse is the JSON body returned on handler errors.
type errorResponse struct {
	// Error is the human-readable failure reason.
	Error string `json:"error"`
}
