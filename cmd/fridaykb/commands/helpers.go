package commands

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strconv"

	"github.com/fridaylabs/friday-kb/internal/embedder"
	"github.com/fridaylabs/friday-kb/internal/extract"
	"github.com/fridaylabs/friday-kb/internal/index"
	"github.com/fridaylabs/friday-kb/internal/ingest"
	"github.com/fridaylabs/friday-kb/internal/ocr"
	"github.com/fridaylabs/friday-kb/internal/rag"
	"github.com/fridaylabs/friday-kb/internal/store"
	"github.com/fridaylabs/friday-kb/internal/transcribe"
)

// knowledgeBase bundles the wired core components shared by the serve, ask,
// and ingest commands.
type knowledgeBase struct {
	// chunks is the relational chunk store (SQLite or Postgres).
	chunks store.ChunkStore
	// embedder turns text into vectors.
	embedder rag.Embedder
	// index is the in-memory similarity index over stored chunks.
	index *index.Manager
	// pipeline ingests documents end to end.
	pipeline *ingest.Pipeline
}

// buildKnowledgeBase wires the chunk store, embedder, similarity index, and
// ingestion pipeline from the environment. The returned close function
// releases the store connection.
func buildKnowledgeBase(ctx context.Context, log *slog.Logger) (*knowledgeBase, func(), error) {
	if err := embedder.Validate(log); err != nil {
		return nil, nil, err
	}

	chunks, err := store.Open(os.Getenv("DATABASE_URL"))
	if err != nil {
		return nil, nil, fmt.Errorf("open chunk store: %w", err)
	}
	closeStore := func() { _ = chunks.Close() }

	emb, err := embedder.NewFromEnv(ctx)
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("initialise embedder: %w", err)
	}

	idx := index.NewManager(chunks, emb)

	pipeline, err := ingest.NewPipeline(buildExtractor(ctx, log), emb, chunks, idx, &ingest.Config{
		DataDir: os.Getenv("KB_DATA_DIR"),
	})
	if err != nil {
		closeStore()
		return nil, nil, fmt.Errorf("create ingestion pipeline: %w", err)
	}

	return &knowledgeBase{
		chunks:   chunks,
		embedder: emb,
		index:    idx,
		pipeline: pipeline,
	}, closeStore, nil
}

// buildExtractor wires the document extractor with whatever optional
// capabilities the environment provides: an OpenAI-compatible transcriber for
// audio/video and AWS Textract OCR for images.
func buildExtractor(ctx context.Context, log *slog.Logger) *extract.Extractor {
	var transcriber extract.Transcriber
	if t := transcribe.NewFromEnv(); t != nil {
		transcriber = t
		log.Info("transcription enabled")
	} else {
		log.Info("transcription disabled", slog.String("reason", "TRANSCRIBE_API_KEY not set"))
	}

	var imageOCR extract.OCR
	if region := os.Getenv("AWS_REGION"); region != "" {
		o, err := ocr.NewTextract(ctx, region)
		if err != nil {
			log.Warn("textract OCR unavailable", slog.Any("error", err))
		} else {
			imageOCR = o
			log.Info("textract OCR enabled", slog.String("region", region))
		}
	} else {
		log.Info("textract OCR disabled", slog.String("reason", "AWS_REGION not set"))
	}

	return extract.New(transcriber, imageOCR)
}

// topKFromEnv returns the configured retrieval depth.
func topKFromEnv() int {
	return getEnvInt("KB_TOP_K", rag.DefaultTopK)
}

// getEnvInt reads an integer environment variable, returning fallback when
// the variable is unset or unparsable.
func getEnvInt(key string, fallback int) int {
	v := os.Getenv(key)
	if v == "" {
		return fallback
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return fallback
	}
	return n
}
