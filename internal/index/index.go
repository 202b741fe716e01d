// Package index maintains the in-memory similarity index over the chunk
// store. The index is a disposable derived view: it is rebuilt wholesale from
// the store's rows and swapped in atomically, so queries never observe a
// half-built index and the store remains the single source of truth.
package index

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/fridaylabs/friday-kb/internal/rag"
	"github.com/fridaylabs/friday-kb/internal/store"
)

// DefaultTopK is the number of chunks returned when the caller passes a
// non-positive k.
const DefaultTopK = 3

// snapshot is one immutable generation of the index. Entries keep the store's
// insertion order so equal scores tie-break deterministically.
type snapshot struct {
	entries []entry
}

type entry struct {
	vector   []float32
	text     string
	source   string
	sequence int
}

// Manager owns the current index snapshot and serializes rebuilds.
// Concurrent searches read whichever snapshot is current; concurrent rebuild
// requests coalesce into at most one trailing rebuild.
type Manager struct {
	chunks   store.ChunkStore
	embedder rag.Embedder

	// current is the active snapshot; nil until the first build.
	current atomic.Pointer[snapshot]

	// mu guards building and dirty.
	mu       sync.Mutex
	building bool
	dirty    bool

	// onSwap, when set, is called after each snapshot swap. Used for metrics.
	onSwap atomic.Pointer[func()]
}

// OnSwap registers a callback invoked after every completed snapshot swap.
func (m *Manager) OnSwap(fn func()) {
	m.onSwap.Store(&fn)
}

// NewManager constructs a Manager over the given store and embedder.
// No build happens until Rebuild or the first Search.
func NewManager(chunks store.ChunkStore, embedder rag.Embedder) *Manager {
	return &Manager{chunks: chunks, embedder: embedder}
}

// Size returns the number of entries in the current snapshot, or 0 if the
// index has not been built yet.
func (m *Manager) Size() int {
	if snap := m.current.Load(); snap != nil {
		return len(snap.entries)
	}
	return 0
}

// Rebuild loads every stored chunk and atomically swaps in a fresh snapshot.
// If a rebuild is already in flight the request is recorded and folded into
// one trailing rebuild after the current one finishes; the call returns
// immediately in that case. Stored vectors are reused as-is — no re-embedding.
func (m *Manager) Rebuild(ctx context.Context) error {
	m.mu.Lock()
	if m.building {
		m.dirty = true
		m.mu.Unlock()
		return nil
	}
	// The build about to start covers any request recorded before this point.
	m.building = true
	m.dirty = false
	m.mu.Unlock()

	for {
		snap, err := m.build(ctx)
		if err != nil {
			m.mu.Lock()
			m.building = false
			m.mu.Unlock()
			return err
		}
		m.current.Store(snap)
		if fn := m.onSwap.Load(); fn != nil {
			(*fn)()
		}

		// The dirty check and the builder handoff must share one critical
		// section: releasing the builder role first would let a concurrent
		// Rebuild mark dirty against a builder that is already gone.
		m.mu.Lock()
		if !m.dirty {
			m.building = false
			m.mu.Unlock()
			return nil
		}
		m.dirty = false
		m.mu.Unlock()
	}
}

// build materializes a snapshot from the store.
func (m *Manager) build(ctx context.Context) (*snapshot, error) {
	rows, err := m.chunks.ListAllChunks(ctx)
	if err != nil {
		return nil, fmt.Errorf("index: load chunks: %w", err)
	}
	entries := make([]entry, 0, len(rows))
	for _, c := range rows {
		entries = append(entries, entry{
			vector:   c.Embedding,
			text:     c.Text,
			source:   c.FileName,
			sequence: c.ChunkIndex,
		})
	}
	return &snapshot{entries: entries}, nil
}

// Search embeds the query and returns the top-k most similar chunks, best
// first. The index is built lazily on first use; a query arriving while the
// very first build is still in flight sees an empty index. An empty index
// yields an empty result, not an error. k <= 0 falls back to DefaultTopK.
func (m *Manager) Search(ctx context.Context, query string, k int) ([]rag.Hit, error) {
	if k <= 0 {
		k = DefaultTopK
	}

	snap := m.current.Load()
	if snap == nil {
		if err := m.Rebuild(ctx); err != nil {
			return nil, err
		}
		// Rebuild coalesces: if another goroutine holds the builder role the
		// call above returned immediately and the first snapshot may not
		// exist yet. There is nothing to serve until the swap lands.
		snap = m.current.Load()
		if snap == nil {
			return nil, nil
		}
	}
	if len(snap.entries) == 0 {
		return nil, nil
	}

	vecs, err := m.embedder.Embed(ctx, []string{query})
	if err != nil {
		return nil, fmt.Errorf("index: embed query: %w", err)
	}
	if len(vecs) == 0 {
		return nil, fmt.Errorf("index: embedder returned no vector for query")
	}
	queryVec := vecs[0]

	hits := make([]rag.Hit, 0, len(snap.entries))
	for _, e := range snap.entries {
		hits = append(hits, rag.Hit{
			Text:     e.text,
			Source:   e.source,
			Sequence: e.sequence,
			Score:    dot(queryVec, e.vector),
		})
	}
	// Stable sort keeps insertion order for equal scores.
	sort.SliceStable(hits, func(i, j int) bool { return hits[i].Score > hits[j].Score })

	if k > len(hits) {
		k = len(hits)
	}
	return hits[:k], nil
}

// dot computes the inner product of two vectors. Stored and query vectors are
// unit length, so this equals cosine similarity. Mismatched lengths score
// over the shared prefix, which ranks cross-dimension rows last in practice.
func dot(a, b []float32) float32 {
	n := min(len(a), len(b))
	var sum float32
	for i := range n {
		sum += a[i] * b[i]
	}
	return sum
}
