package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	_ "modernc.org/sqlite" // register "sqlite" driver
)

// SQLiteStore is a ChunkStore backed by a local SQLite database. Embeddings
// are stored as JSON arrays in a TEXT column; the store is the durable source
// the in-memory index rebuilds from, so scan cost at load time is acceptable.
type SQLiteStore struct {
	// db is the underlying database connection pool.
	db *sql.DB
}

// OpenSQLite opens (or creates) a SQLiteStore at the given path and runs the
// schema migration. Use ":memory:" for an in-memory database in tests.
func OpenSQLite(path string) (*SQLiteStore, error) {
	// WAL mode improves concurrent read performance and is safe for single-host use.
	dsn := path + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)"
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	// Limit to a single writer connection to avoid SQLITE_BUSY under concurrent writes.
	db.SetMaxOpenConns(1)

	s := &SQLiteStore{db: db}
	if err := s.migrate(); err != nil {
		_ = db.Close()
		return nil, err
	}
	return s, nil
}

// migrate creates the schema if it does not already exist.
func (s *SQLiteStore) migrate() error {
	const ddl = `
CREATE TABLE IF NOT EXISTS embeddings (
    id             INTEGER PRIMARY KEY AUTOINCREMENT,
    file_name      TEXT    NOT NULL,
    chunk_index    INTEGER NOT NULL,
    embedding      TEXT    NOT NULL,  -- JSON array of float32
    embedding_size INTEGER NOT NULL,
    chunk_text     TEXT    NOT NULL
);
CREATE INDEX IF NOT EXISTS idx_embeddings_file_name
    ON embeddings (file_name);
`
	if _, err := s.db.Exec(ddl); err != nil {
		return fmt.Errorf("store: migrate: %w", err)
	}
	return nil
}

// InsertChunk appends one chunk row.
func (s *SQLiteStore) InsertChunk(ctx context.Context, c Chunk) error {
	if err := validateChunk(c); err != nil {
		return err
	}
	vec, err := json.Marshal(c.Embedding)
	if err != nil {
		return fmt.Errorf("store: encode embedding: %w", err)
	}
	const q = `INSERT INTO embeddings (file_name, chunk_index, embedding, embedding_size, chunk_text)
VALUES (?, ?, ?, ?, ?)`
	if _, err := s.db.ExecContext(ctx, q, c.FileName, c.ChunkIndex, string(vec), c.EmbeddingSize, c.Text); err != nil {
		return fmt.Errorf("store: insert chunk: %w (%w)", err, ErrStoreUnavailable)
	}
	return nil
}

// ListAllChunks returns every stored chunk in insertion order.
func (s *SQLiteStore) ListAllChunks(ctx context.Context) ([]Chunk, error) {
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
		var vec string
		if err := rows.Scan(&c.FileName, &c.ChunkIndex, &vec, &c.EmbeddingSize, &c.Text); err != nil {
			return nil, fmt.Errorf("store: list scan: %w", err)
		}
		if err := json.Unmarshal([]byte(vec), &c.Embedding); err != nil {
			return nil, fmt.Errorf("store: decode embedding for %s#%d: %w", c.FileName, c.ChunkIndex, err)
		}
		chunks = append(chunks, c)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: list rows: %w", err)
	}
	return chunks, nil
}

// DistinctFileNames returns the set of file names with at least one stored chunk.
func (s *SQLiteStore) DistinctFileNames(ctx context.Context) (map[string]bool, error) {
	const q = `SELECT DISTINCT file_name FROM embeddings`
	rows, err := s.db.QueryContext(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("store: distinct file names: %w (%w)", err, ErrStoreUnavailable)
	}
	defer rows.Close()

	names := make(map[string]bool)
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			return nil, fmt.Errorf("store: distinct scan: %w", err)
		}
		names[name] = true
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("store: distinct rows: %w", err)
	}
	return names, nil
}

// Ping verifies the database is reachable.
func (s *SQLiteStore) Ping(ctx context.Context) error {
	if err := s.db.PingContext(ctx); err != nil {
		return fmt.Errorf("store: ping: %w (%w)", err, ErrStoreUnavailable)
	}
	return nil
}

// Close releases the database connection pool.
func (s *SQLiteStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("store: close: %w", err)
	}
	return nil
}
