package store

import (
	"context"
	"fmt"

	"github.com/jmoiron/sqlx"
	"github.com/lib/pq"
)

// PostgresStore is a ChunkStore backed by Postgres. Embeddings are stored in
// a FLOAT8[] column, the layout shared with the voice-assistant deployments
// this knowledge base feeds.
type PostgresStore struct {
	db *sqlx.DB
}

// OpenPostgres connects to the given postgres:// DSN and runs the schema
// migration.
func OpenPostgres(dsn string) (*PostgresStore, error) {
	db, err := sqlx.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open postgres: %w", err)
	}
	s := &PostgresStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *PostgresStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS embeddings (
    id             SERIAL PRIMARY KEY,
    file_name      TEXT      NOT NULL,
    chunk_index    INTEGER   NOT NULL,
    embedding      FLOAT8[]  NOT NULL,
    embedding_size INTEGER   NOT NULL,
    chunk_text     TEXT      NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embeddings_file_name
    ON embeddings (file_name);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w (%w)", err, ErrStoreUnavailable)
	}
	return nil
}

// InsertChunk appends one chunk row.
func (s *PostgresStore) InsertChunk(ctx context.Context, c Chunk) error {
	if err := validateChunk(c); err != nil {
		return err
	}
	vec := make(pq.Float64Array, len(c.Embedding))
	for i, v := range c.Embedding {
		vec[i] = float64(v)
	}
	const q = `INSERT INTO embeddings (file_name, chunk_index, embedding, embedding_size, chunk_text)
VALUES ($1, $2, $3, $4, $5)`
	if _, err := s.db.ExecContext(ctx, q, c.FileName, c.ChunkIndex, vec, c.EmbeddingSize, c.Text); err != nil {
		return fmt.Errorf("store: insert chunk: %w (%w)", err, ErrStoreUnavailable)
	}
	return nil
}

// ListAllChunks returns every stored chunk in insertion order.
func (s *PostgresStore) ListAllChunks(ctx context.Context) ([]Chunk, error) {
	const q = `SELECT file_name, chunk_index, embedding, embedding_size, chunk_text
FROM embeddings ORDER BY id ASC`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: list chunks: %w (%w)", err, ErrStoreUnavailable)
	}
	defer rows.Close()

	var chunks []Chunk
	for rows.Next() {
		var c Chunk
		var vec pq.Float64Array
		if err := rows.Scan(&c.FileName, &c.ChunkIndex, &vec, &c.EmbeddingSize, &c.Text); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		c.Embedding = make([]float32, len(vec))
		for i, v := range vec {
			c.Embedding[i] = float32(v)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return chunks, nil
}

// DistinctFileNames returns the set of file names with at least one stored chunk.
func (s *PostgresStore) DistinctFileNames(ctx context.Context) (map[string]bool, error) {
	var names []string
	if err := s.db.SelectContext(ctx, &names, `SELECT DISTINCT file_name FROM embeddings`); err != nil {
		return nil, fmt.Errorf("store: distinct file names: %w (%w)", err, ErrStoreUnavailable)
	}
	set := make(map[string]bool, len(names))
	for _, n := range names {
		set[n] = true
	}
	return set, nil
}

// Ping verifies the database is reachable.
func (s *PostgresStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w (%w)", err, ErrStoreUnavailable)
	}
	return nil
}

// Close releases the database connection pool.
func (s *PostgresStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
