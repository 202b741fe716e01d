// Package store persists embedded document chunks for the knowledge base.
// The store is the system of record: the similarity index is a disposable
// in-memory view rebuilt from it at any time. Two backends are provided,
// selected by DSN — a local SQLite file (the default) and Postgres.
package store

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"
)

// ErrStoreUnavailable indicates the metadata store could not be reached or a
// statement failed. Callers use errors.Is to distinguish store outages from
// invalid input.
var ErrStoreUnavailable = errors.New("store: unavailable")

const (
	// ImageChunkSequence is the reserved chunk index for the single
	// whole-document image embedding of an image file.
	ImageChunkSequence = 9999

	// ImagePlaceholderText is the stored text for an image chunk. The vector
	// carries the content; the text is a marker only.
	ImagePlaceholderText = "[IMAGE]"
)

// Chunk is one embedded segment of a source document.
type Chunk struct {
	// FileName is the base name of the source document.
	FileName string

	// ChunkIndex is the 1-based position of the chunk within its document,
	// or ImageChunkSequence for a whole-document image embedding.
	ChunkIndex int

	// Embedding is the dense vector for the chunk text (or image).
	Embedding []float32

	// EmbeddingSize is the dimensionality of Embedding. Always equals
	// len(Embedding); stored explicitly so mixed-dimension corpora are
	// detectable by inspection.
	EmbeddingSize int

	// Text is the chunk text injected into prompt context at query time.
	Text string
}

// ChunkStore persists embedded chunks and answers the queries the index and
// the ingestion pipeline need. Implementations must be safe for concurrent
// use. Inserting the same file name twice is not an error — ingestion-time
// deduplication is the caller's job.
type ChunkStore interface {
	// InsertChunk appends one chunk row. It rejects chunks whose
	// EmbeddingSize does not match len(Embedding).
	InsertChunk(ctx context.Context, c Chunk) error

	// ListAllChunks returns every stored chunk in insertion order.
	ListAllChunks(ctx context.Context) ([]Chunk, error)

	// DistinctFileNames returns the set of file names with at least one
	// stored chunk. Used by the bootstrap scan to skip ingested files.
	DistinctFileNames(ctx context.Context) (map[string]bool, error)

	// Ping verifies the backing database is reachable.
	Ping(ctx context.Context) error

	// Close releases any resources held by the store.
	Close() error
}

// Open opens a ChunkStore for the given DSN. A postgres:// or postgresql://
// DSN selects the Postgres backend; anything else is treated as a SQLite file
// path (":memory:" for tests). An empty DSN resolves to the default path
// under the user's home directory.
func Open(dsn string) (ChunkStore, error) {
	if strings.HasPrefix(dsn, "postgres://") || strings.HasPrefix(dsn, "postgresql://") {
		return OpenPostgres(dsn)
	}
	if dsn == "" {
		var err error
		dsn, err = DefaultDBPath()
		if err != nil {
			return nil, err
		}
	}
	return OpenSQLite(dsn)
}

// DefaultDBPath returns the default path for the knowledge base database.
// It resolves to ~/.fridaykb/kb.db, creating the directory if needed.
func DefaultDBPath() (string, error) {
	home, err := os.UserHomeDir()
	if err != nil {
		return "", fmt.Errorf("store: could not determine home directory: %w", err)
	}
	dir := filepath.Join(home, ".fridaykb")
	if err := os.MkdirAll(dir, 0o700); err != nil {
		return "", fmt.Errorf("store: could not create %s: %w", dir, err)
	}
	return filepath.Join(dir, "kb.db"), nil
}

// validateChunk enforces the invariants shared by both backends.
func validateChunk(c Chunk) error {
	if c.FileName == "" {
		return fmt.Errorf("store: chunk file name must not be empty")
	}
	if c.EmbeddingSize != len(c.Embedding) {
		return fmt.Errorf("store: embedding size %d does not match vector length %d",
			c.EmbeddingSize, len(c.Embedding))
	}
	return nil
}
