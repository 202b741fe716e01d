package index

import (
	"context"
	"errors"
	"runtime"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/fridaylabs/friday-kb/internal/store"
)

// fakeEmbedder returns a fixed vector for every input text.
type fakeEmbedder struct {
	vec   []float32
	calls int
	err   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	out := make([][]float32, len(texts))
	for i := range texts {
		out[i] = f.vec
	}
	return out, nil
}

// seedStore opens an in-memory store pre-loaded with the given chunks.
func seedStore(t *testing.T, chunks []store.Chunk) store.ChunkStore {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })
	for _, c := range chunks {
		if err := s.InsertChunk(context.Background(), c); err != nil {
			t.Fatalf("seed chunk: %v", err)
		}
	}
	return s
}

func Test_Search_RanksByCosineSimilarity(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1, 0}, EmbeddingSize: 2, Text: "aligned"},
		{FileName: "b.txt", ChunkIndex: 1, Embedding: []float32{0, 1}, EmbeddingSize: 2, Text: "orthogonal"},
		{FileName: "c.txt", ChunkIndex: 1, Embedding: []float32{0.6, 0.8}, EmbeddingSize: 2, Text: "diagonal"},
	})
	m := NewManager(s, &fakeEmbedder{vec: []float32{1, 0}})

	hits, err := m.Search(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 2 {
		t.Fatalf("want 2 hits, got %d", len(hits))
	}
	if hits[0].Text != "aligned" || hits[1].Text != "diagonal" {
		t.Errorf("ranking wrong: got %q then %q", hits[0].Text, hits[1].Text)
	}
	if hits[0].Score <= hits[1].Score {
		t.Errorf("scores not descending: %v, %v", hits[0].Score, hits[1].Score)
	}
	if hits[0].Source != "a.txt" || hits[0].Sequence != 1 {
		t.Errorf("hit metadata wrong: %+v", hits[0])
	}
}

func Test_Search_EqualScoresKeepInsertionOrder(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "first.txt", ChunkIndex: 1, Embedding: []float32{1, 0}, EmbeddingSize: 2, Text: "first"},
		{FileName: "second.txt", ChunkIndex: 1, Embedding: []float32{1, 0}, EmbeddingSize: 2, Text: "second"},
	})
	m := NewManager(s, &fakeEmbedder{vec: []float32{1, 0}})

	hits, err := m.Search(context.Background(), "query", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if hits[0].Text != "first" || hits[1].Text != "second" {
		t.Errorf("tie not broken by insertion order: %q then %q", hits[0].Text, hits[1].Text)
	}
}

func Test_Search_EmptyIndexReturnsNoHits(t *testing.T) {
	t.Parallel()
	s := seedStore(t, nil)
	emb := &fakeEmbedder{vec: []float32{1}}
	m := NewManager(s, emb)

	hits, err := m.Search(context.Background(), "query", 3)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("want 0 hits, got %d", len(hits))
	}
	if emb.calls != 0 {
		t.Errorf("query embedded against empty index: %d calls", emb.calls)
	}
}

func Test_Search_KLargerThanCorpus(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "only.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "only"},
	})
	m := NewManager(s, &fakeEmbedder{vec: []float32{1}})

	hits, err := m.Search(context.Background(), "query", 10)
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("want 1 hit, got %d", len(hits))
	}
}

func Test_Rebuild_IsIdempotent(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1, 0}, EmbeddingSize: 2, Text: "a"},
		{FileName: "a.txt", ChunkIndex: 2, Embedding: []float32{0, 1}, EmbeddingSize: 2, Text: "b"},
	})
	m := NewManager(s, &fakeEmbedder{vec: []float32{1, 0}})
	ctx := context.Background()

	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("first rebuild: %v", err)
	}
	first, err := m.Search(ctx, "q", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("second rebuild: %v", err)
	}
	second, err := m.Search(ctx, "q", 2)
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	if len(first) != len(second) {
		t.Fatalf("rebuild changed result count: %d vs %d", len(first), len(second))
	}
	for i := range first {
		if first[i] != second[i] {
			t.Errorf("hit %d differs after rebuild: %+v vs %+v", i, first[i], second[i])
		}
	}
	if m.Size() != 2 {
		t.Errorf("want size 2, got %d", m.Size())
	}
}

func Test_Rebuild_DoesNotReembedStoredChunks(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "a"},
	})
	emb := &fakeEmbedder{vec: []float32{1}}
	m := NewManager(s, emb)

	if err := m.Rebuild(context.Background()); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if emb.calls != 0 {
		t.Errorf("rebuild re-embedded stored chunks: %d embed calls", emb.calls)
	}
}

func Test_Search_EmbedFailurePropagates(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "a"},
	})
	wantErr := errors.New("backend down")
	m := NewManager(s, &fakeEmbedder{err: wantErr})

	_, err := m.Search(context.Background(), "q", 1)
	if !errors.Is(err, wantErr) {
		t.Errorf("want wrapped embed error, got %v", err)
	}
}

func Test_Rebuild_ConcurrentCallsCoalesce(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "a"},
	})
	m := NewManager(s, &fakeEmbedder{vec: []float32{1}})
	ctx := context.Background()

	done := make(chan error, 8)
	for range 8 {
		go func() { done <- m.Rebuild(ctx) }()
	}
	for range 8 {
		if err := <-done; err != nil {
			t.Fatalf("concurrent rebuild: %v", err)
		}
	}
	if m.Size() != 1 {
		t.Errorf("want size 1 after concurrent rebuilds, got %d", m.Size())
	}
}

func Test_OnSwap_FiresPerCompletedRebuild(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "a"},
	})
	m := NewManager(s, &fakeEmbedder{vec: []float32{1}})

	var swaps atomic.Int32
	m.OnSwap(func() { swaps.Add(1) })

	ctx := context.Background()
	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if err := m.Rebuild(ctx); err != nil {
		t.Fatalf("rebuild: %v", err)
	}
	if got := swaps.Load(); got != 2 {
		t.Errorf("want 2 swaps, got %d", got)
	}
}

// blockingStore gates ListAllChunks so tests can hold a rebuild mid-flight.
// Each call signals entered (non-blocking) and then waits for release.
type blockingStore struct {
	store.ChunkStore
	entered chan struct{}
	release chan struct{}
}

func (b *blockingStore) ListAllChunks(ctx context.Context) ([]store.Chunk, error) {
	select {
	case b.entered <- struct{}{}:
	default:
	}
	<-b.release
	return b.ChunkStore.ListAllChunks(ctx)
}

func Test_Search_DuringFirstBuildServesEmptyIndex(t *testing.T) {
	t.Parallel()
	bs := &blockingStore{
		ChunkStore: seedStore(t, []store.Chunk{
			{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "a"},
		}),
		entered: make(chan struct{}, 1),
		release: make(chan struct{}),
	}
	m := NewManager(bs, &fakeEmbedder{vec: []float32{1}})
	ctx := context.Background()

	done := make(chan error, 1)
	go func() { done <- m.Rebuild(ctx) }()
	<-bs.entered

	// The first build is in flight and no snapshot exists yet. A query must
	// see an empty index, not crash.
	hits, err := m.Search(ctx, "q", 1)
	if err != nil {
		t.Fatalf("search during first build: %v", err)
	}
	if len(hits) != 0 {
		t.Errorf("want no hits before the first snapshot lands, got %d", len(hits))
	}

	close(bs.release)
	if err := <-done; err != nil {
		t.Fatalf("rebuild: %v", err)
	}

	hits, err = m.Search(ctx, "q", 1)
	if err != nil {
		t.Fatalf("search after build: %v", err)
	}
	if len(hits) != 1 {
		t.Errorf("want 1 hit once the snapshot exists, got %d", len(hits))
	}
}

func Test_Rebuild_RequestDuringBuilderExitIsNotDropped(t *testing.T) {
	t.Parallel()
	s := seedStore(t, []store.Chunk{
		{FileName: "a.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "a"},
	})
	m := NewManager(s, &fakeEmbedder{vec: []float32{1}})
	ctx := context.Background()

	// Hammer the end-of-rebuild handoff: a request that coalesces against an
	// exiting builder must either be absorbed into one more build pass or run
	// itself. Either way, once no builder is running the dirty flag must be
	// clear: a set flag with no builder is a dropped rebuild.
	for range 500 {
		var wg sync.WaitGroup
		for range 2 {
			wg.Add(1)
			go func() {
				defer wg.Done()
				if err := m.Rebuild(ctx); err != nil {
					t.Errorf("rebuild: %v", err)
				}
			}()
		}
		wg.Wait()

		deadline := time.Now().Add(time.Second)
		for {
			m.mu.Lock()
			building, dirty := m.building, m.dirty
			m.mu.Unlock()
			if !building {
				if dirty {
					t.Fatal("dirty flag set with no builder running: rebuild request dropped")
				}
				break
			}
			if time.Now().After(deadline) {
				t.Fatal("builder did not finish")
			}
			runtime.Gosched()
		}
	}
}
