// Package server implements the HTTP server that exposes the knowledge base
// over a small REST API: document upload, grounded question answering, and
// the usual health/readiness/metrics endpoints.
// The server is started by the `fridaykb serve` CLI command.
package server

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/fridaylabs/friday-kb/internal/extract"
	"github.com/fridaylabs/friday-kb/internal/logging"
	"github.com/fridaylabs/friday-kb/internal/rag"
	"github.com/fridaylabs/friday-kb/internal/store"
)

// defaultChatTimeout bounds a single chat request when no explicit timeout is
// configured. Retrieval plus a completion round-trip fits comfortably.
const defaultChatTimeout = 2 * time.Minute

// defaultMaxUploadBytes caps upload bodies when no explicit limit is
// configured. 100 MiB covers videos short enough to transcribe in-request.
const defaultMaxUploadBytes = 100 << 20

// New constructs a Server from the provided answerer, ingester, and config.
func New(ans answerer, ing ingester, cfg *Config) (*Server, error) {
	if ans == nil {
		return nil, fmt.Errorf("server: answerer must not be nil")
	}
	if ing == nil {
		return nil, fmt.Errorf("server: ingester must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8080
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must outlast extraction + embedding of a large upload.
		cfg.WriteTimeout = 10 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.ChatTimeout == 0 {
		cfg.ChatTimeout = defaultChatTimeout
	}
	if cfg.MaxUploadBytes == 0 {
		cfg.MaxUploadBytes = defaultMaxUploadBytes
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	log := cfg.Logger
	if log == nil {
		log = logging.New()
	}

	reg := cfg.MetricsRegistry
	gatherer := cfg.MetricsGatherer
	if reg == nil {
		private := prometheus.NewRegistry()
		reg = private
		gatherer = private
	}

	s := &Server{
		answerer: ans,
		ingester: ing,
		cfg:      cfg,
		log:      log,
		pingers:  cfg.Pingers,
		metrics:  newServerMetrics(reg, cfg.IndexSize),
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, log)
	s.stopRL = stopRL

	mux := http.NewServeMux()
	mux.Handle("POST /api/chat", s.instrument("chat", rl.middleware(http.HandlerFunc(s.handleChat))))
	mux.Handle("POST /api/upload", s.instrument("upload", rl.middleware(http.HandlerFunc(s.handleUpload))))
	mux.Handle("GET /api/health", s.instrument("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /api/ready", s.instrument("ready", http.HandlerFunc(s.handleReady)))
	mux.Handle("GET /metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      requestLogger(log, mux),
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", "http://"+s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}

// ChunkObserver returns a callback that records embedded chunk counts on the
// ingestion counter. Wire it into the pipeline's OnChunksEmbedded hook.
func (s *Server) ChunkObserver() func(int) {
	return func(n int) {
		s.metrics.ingestChunksTotal.Add(float64(n))
	}
}

// RebuildObserver returns a callback that counts completed index rebuilds.
// Wire it into the index manager's OnSwap hook.
func (s *Server) RebuildObserver() func() {
	return s.metrics.indexRebuildsTotal.Inc
}

// handleChat handles POST /api/chat. It answers the question from the
// knowledge base and returns the answer with its citations as JSON.
func (s *Server) handleChat(w http.ResponseWriter, r *http.Request) {
	start := time.Now()

	var req chatRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Question == "" {
		writeError(w, http.StatusBadRequest, "question is required")
		return
	}

	ctx, cancel := context.WithTimeout(r.Context(), s.cfg.ChatTimeout)
	defer cancel()

	answer, err := s.answerer.Answer(ctx, req.Question)
	if err != nil {
		outcome, status := classifyChatError(err)
		s.metrics.chatRequestsTotal.WithLabelValues(outcome).Inc()
		s.metrics.chatDurationSeconds.WithLabelValues(outcome).Observe(time.Since(start).Seconds())

		log := logging.FromContext(r.Context())
		log.Error("chat failed", slog.Any("error", err))
		writeError(w, status, "failed to answer question")
		return
	}

	s.metrics.chatRequestsTotal.WithLabelValues("ok").Inc()
	s.metrics.chatDurationSeconds.WithLabelValues("ok").Observe(time.Since(start).Seconds())
	writeJSON(w, http.StatusOK, answer)
}

// classifyChatError maps a chat failure to a metric outcome label and an
// HTTP status code.
func classifyChatError(err error) (outcome string, status int) {
	switch {
	case errors.Is(err, context.DeadlineExceeded):
		return "timeout", http.StatusGatewayTimeout
	case errors.Is(err, rag.ErrProviderUnavailable), errors.Is(err, store.ErrStoreUnavailable):
		return "unavailable", http.StatusServiceUnavailable
	default:
		return "error", http.StatusInternalServerError
	}
}

// handleUpload handles POST /api/upload. It accepts a multipart form with a
// single "file" part, runs it through the ingestion pipeline, and returns the
// stored file name and chunk count.
func (s *Server) handleUpload(w http.ResponseWriter, r *http.Request) {
	log := logging.FromContext(r.Context())

	r.Body = http.MaxBytesReader(w, r.Body, s.cfg.MaxUploadBytes)

	file, header, err := r.FormFile("file")
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			s.metrics.uploadRequestsTotal.WithLabelValues("too_large").Inc()
			writeError(w, http.StatusRequestEntityTooLarge, "upload exceeds size limit")
			return
		}
		s.metrics.uploadRequestsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "multipart form with a 'file' part is required")
		return
	}
	defer file.Close()

	name := filepath.Base(header.Filename)
	if name == "" || name == "." || name == string(filepath.Separator) {
		s.metrics.uploadRequestsTotal.WithLabelValues("bad_request").Inc()
		writeError(w, http.StatusBadRequest, "uploaded file must have a name")
		return
	}

	tmpPath, cleanup, err := spoolUpload(file, name)
	if err != nil {
		log.Error("spool upload", slog.Any("error", err))
		s.metrics.uploadRequestsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to store upload")
		return
	}
	defer cleanup()

	res, err := s.ingester.Ingest(r.Context(), tmpPath)
	if err != nil {
		if errors.Is(err, extract.ErrUnsupportedFileType) {
			s.metrics.uploadRequestsTotal.WithLabelValues("unsupported").Inc()
			writeError(w, http.StatusUnsupportedMediaType, "unsupported file type")
			return
		}
		log.Error("ingest upload", slog.String("file", name), slog.Any("error", err))
		s.metrics.uploadRequestsTotal.WithLabelValues("error").Inc()
		writeError(w, http.StatusInternalServerError, "failed to ingest document")
		return
	}

	s.metrics.uploadRequestsTotal.WithLabelValues("ok").Inc()
	writeJSON(w, http.StatusOK, uploadResponse{
		FileName:       res.FileName,
		ChunksEmbedded: res.ChunksEmbedded,
	})
}

// spoolUpload writes the uploaded part to a scratch directory under the
// original base name, so the pipeline records the user-visible file name.
// The returned cleanup removes the scratch directory.
func spoolUpload(file multipart.File, name string) (path string, cleanup func(), err error) {
	dir, err := os.MkdirTemp("", "fridaykb-upload-*")
	if err != nil {
		return "", nil, fmt.Errorf("server: create scratch dir: %w", err)
	}
	cleanup = func() { _ = os.RemoveAll(dir) }

	path = filepath.Join(dir, name)
	dst, err := os.OpenFile(path, os.O_WRONLY|os.O_CREATE|os.O_EXCL, 0o600)
	if err != nil {
		cleanup()
		return "", nil, fmt.Errorf("server: create scratch file: %w", err)
	}
	if _, err := io.Copy(dst, file); err != nil {
		dst.Close()
		cleanup()
		return "", nil, fmt.Errorf("server: write scratch file: %w", err)
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("server: close scratch file: %w", err)
	}
	return path, cleanup, nil
}

// handleHealth handles GET /api/health for liveness checks.
func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// writeJSON encodes v as the JSON response body with the given status.
func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError writes a JSON error body with the given status.
func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, errorResponse{Error: msg})
}

// instrument wraps next with request counting and latency observation,
// labelled by the logical handler name.
func (s *Server) instrument(handler string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rw := &responseWriter{ResponseWriter: w, status: http.StatusOK}
		start := time.Now()
		next.ServeHTTP(rw, r)
		s.metrics.httpRequestsTotal.WithLabelValues(r.Method, handler, strconv.Itoa(rw.status)).Inc()
		s.metrics.httpDurationSeconds.WithLabelValues(r.Method, handler).Observe(time.Since(start).Seconds())
	})
}
