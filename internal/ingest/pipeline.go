// Package ingest implements the document ingestion pipeline: persist a
// permanent copy of the source file, extract its text, chunk it, embed and
// store every chunk, then rebuild the similarity index. The pipeline backs
// both the `fridaykb ingest` CLI command and the upload API endpoint.
package ingest

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/fridaylabs/friday-kb/internal/chunk"
	"github.com/fridaylabs/friday-kb/internal/extract"
	"github.com/fridaylabs/friday-kb/internal/logging"
	"github.com/fridaylabs/friday-kb/internal/rag"
	"github.com/fridaylabs/friday-kb/internal/store"
)

// Rebuilder triggers a similarity index rebuild after ingestion mutates the
// store. Satisfied by *index.Manager.
type Rebuilder interface {
	Rebuild(ctx context.Context) error
}

// Config holds the configuration for the ingestion pipeline.
type Config struct {
	// DataDir is the content directory permanent copies are kept in.
	// Defaults to "./data" if empty.
	DataDir string

	// MaxChunkWords is the maximum number of words per chunk.
	// Defaults to chunk.DefaultMaxWords if zero.
	MaxChunkWords int
}

// Result summarizes one ingested document.
type Result struct {
	// FileName is the base name the document was stored under.
	FileName string

	// ChunksEmbedded is the number of text chunks embedded and persisted.
	// The optional image chunk is not counted.
	ChunksEmbedded int
}

// Pipeline orchestrates the copy → extract → chunk → embed → store → rebuild
// flow for source documents.
type Pipeline struct {
	extractor *extract.Extractor
	embedder  rag.Embedder
	chunks    store.ChunkStore
	index     Rebuilder
	cfg       *Config

	// onChunksEmbedded is an optional hook for metrics; called with the
	// number of chunks persisted per document.
	onChunksEmbedded func(n int)
}

// NewPipeline constructs a Pipeline from the provided dependencies and config.
func NewPipeline(extractor *extract.Extractor, embedder rag.Embedder, chunks store.ChunkStore, index Rebuilder, cfg *Config) (*Pipeline, error) {
	if extractor == nil {
		return nil, fmt.Errorf("ingest: extractor must not be nil")
	}
	if embedder == nil {
		return nil, fmt.Errorf("ingest: embedder must not be nil")
	}
	if chunks == nil {
		return nil, fmt.Errorf("ingest: store must not be nil")
	}
	if index == nil {
		return nil, fmt.Errorf("ingest: index must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.DataDir == "" {
		cfg.DataDir = "data"
	}
	if cfg.MaxChunkWords <= 0 {
		cfg.MaxChunkWords = chunk.DefaultMaxWords
	}
	return &Pipeline{
		extractor: extractor,
		embedder:  embedder,
		chunks:    chunks,
		index:     index,
		cfg:       cfg,
	}, nil
}

// OnChunksEmbedded registers a hook called with the chunk count of every
// successfully ingested document. Used to feed the ingest metrics.
func (p *Pipeline) OnChunksEmbedded(fn func(n int)) {
	p.onChunksEmbedded = fn
}

// DataDir returns the content directory permanent copies are kept in.
func (p *Pipeline) DataDir() string {
	return p.cfg.DataDir
}

// Ingest processes a single source file. The file is first copied into the
// content directory so the knowledge base owns a permanent copy, then
// extracted, chunked, and embedded chunk by chunk. A text-chunk embedding
// failure aborts the remaining chunks of the document (already-persisted
// chunks stay — the store tolerates partial documents). For images, an
// image-embedding failure is logged and swallowed: the OCR text chunks
// already carry the content. The index is rebuilt after any rows were added.
func (p *Pipeline) Ingest(ctx context.Context, srcPath string) (*Result, error) {
	log := logging.FromContext(ctx)
	name := filepath.Base(srcPath)

	permPath, err := p.keepCopy(srcPath)
	if err != nil {
		return nil, err
	}

	res, err := p.extractor.Extract(ctx, permPath)
	if err != nil {
		return nil, fmt.Errorf("ingest: extract %s: %w", name, err)
	}

	embedded := 0
	seq := 0
	for text := range chunk.Split(res.Text, p.cfg.MaxChunkWords) {
		seq++
		vecs, err := p.embedder.Embed(ctx, []string{text})
		if err != nil {
			return nil, fmt.Errorf("ingest: embed chunk %d of %s: %w", seq, name, err)
		}
		if len(vecs) == 0 {
			return nil, fmt.Errorf("ingest: embedder returned no vector for chunk %d of %s", seq, name)
		}
		c := store.Chunk{
			FileName:      name,
			ChunkIndex:    seq,
			Embedding:     vecs[0],
			EmbeddingSize: len(vecs[0]),
			Text:          text,
		}
		if err := p.chunks.InsertChunk(ctx, c); err != nil {
			return nil, fmt.Errorf("ingest: store chunk %d of %s: %w", seq, name, err)
		}
		embedded++
	}

	// Optional whole-document image embedding; failure never fails the file.
	if res.ImageBase64 != "" {
		if err := p.ingestImage(ctx, name, res.ImageBase64); err != nil {
			log.Warn("ingest: image embedding skipped",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
		}
	}

	if p.onChunksEmbedded != nil {
		p.onChunksEmbedded(embedded)
	}

	if embedded > 0 || res.ImageBase64 != "" {
		if err := p.index.Rebuild(ctx); err != nil {
			return nil, fmt.Errorf("ingest: rebuild index after %s: %w", name, err)
		}
	}

	log.Info("ingested document",
		slog.String("file", name),
		slog.Int("chunks", embedded),
	)
	return &Result{FileName: name, ChunksEmbedded: embedded}, nil
}

// ingestImage embeds the raw image and stores it under the reserved image
// chunk sequence. Requires a multimodal embedder.
func (p *Pipeline) ingestImage(ctx context.Context, name, imageBase64 string) error {
	ie, ok := p.embedder.(rag.ImageEmbedder)
	if !ok {
		return fmt.Errorf("ingest: embedding backend does not support images")
	}
	vec, err := ie.EmbedImage(ctx, imageBase64)
	if err != nil {
		return fmt.Errorf("ingest: embed image: %w", err)
	}
	c := store.Chunk{
		FileName:      name,
		ChunkIndex:    store.ImageChunkSequence,
		Embedding:     vec,
		EmbeddingSize: len(vec),
		Text:          store.ImagePlaceholderText,
	}
	if err := p.chunks.InsertChunk(ctx, c); err != nil {
		return fmt.Errorf("ingest: store image chunk: %w", err)
	}
	return nil
}

// keepCopy copies the source file into the content directory and returns the
// permanent path. A source already inside the content directory is used
// in place.
func (p *Pipeline) keepCopy(srcPath string) (string, error) {
	if err := os.MkdirAll(p.cfg.DataDir, 0o750); err != nil {
		return "", fmt.Errorf("ingest: create data dir %s: %w", p.cfg.DataDir, err)
	}

	permPath := filepath.Join(p.cfg.DataDir, filepath.Base(srcPath))
	if samePath(srcPath, permPath) {
		return permPath, nil
	}

	src, err := os.Open(srcPath)
	if err != nil {
		return "", fmt.Errorf("ingest: open %s: %w", srcPath, err)
	}
	defer src.Close()

	dst, err := os.Create(permPath)
	if err != nil {
		return "", fmt.Errorf("ingest: create %s: %w", permPath, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		_ = dst.Close()
		return "", fmt.Errorf("ingest: copy to %s: %w", permPath, err)
	}
	if err := dst.Close(); err != nil {
		return "", fmt.Errorf("ingest: close %s: %w", permPath, err)
	}
	return permPath, nil
}

// samePath reports whether two paths resolve to the same file.
func samePath(a, b string) bool {
	absA, errA := filepath.Abs(a)
	absB, errB := filepath.Abs(b)
	return errA == nil && errB == nil && absA == absB
}

// Bootstrap scans the content directory and ingests every supported file
// whose name is not yet present in the store. Per-file failures are logged
// and skipped so one broken document cannot block the rest of the corpus.
// Returns the number of files ingested.
func (p *Pipeline) Bootstrap(ctx context.Context) (int, error) {
	log := logging.FromContext(ctx)

	entries, err := os.ReadDir(p.cfg.DataDir)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, nil
		}
		return 0, fmt.Errorf("ingest: scan data dir %s: %w", p.cfg.DataDir, err)
	}

	known, err := p.chunks.DistinctFileNames(ctx)
	if err != nil {
		return 0, fmt.Errorf("ingest: list ingested files: %w", err)
	}

	ingested := 0
	for _, entry := range entries {
		if entry.IsDir() {
			continue
		}
		name := entry.Name()
		if known[name] {
			continue
		}
		if !extract.Supported(name) {
			log.Debug("bootstrap: skipping unsupported file", slog.String("file", name))
			continue
		}
		if _, err := p.Ingest(ctx, filepath.Join(p.cfg.DataDir, name)); err != nil {
			log.Warn("bootstrap: file skipped",
				slog.String("file", name),
				slog.String("error", err.Error()),
			)
			continue
		}
		ingested++
	}
	return ingested, nil
}
