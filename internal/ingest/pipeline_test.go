package ingest

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/fridaylabs/friday-kb/internal/extract"
	"github.com/fridaylabs/friday-kb/internal/store"
)

// fakeEmbedder hands out unit vectors and can be told to fail on the nth
// text-embed call (1-based).
type fakeEmbedder struct {
	calls      int
	failOnCall int
	imageVec   []float32
	imageErr   error
}

func (f *fakeEmbedder) Embed(_ context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i := range texts {
		f.calls++
		if f.failOnCall > 0 && f.calls == f.failOnCall {
			return nil, errors.New("embedding backend down")
		}
		out[i] = []float32{1, 0}
	}
	return out, nil
}

func (f *fakeEmbedder) EmbedImage(_ context.Context, _ string) ([]float32, error) {
	if f.imageErr != nil {
		return nil, f.imageErr
	}
	if f.imageVec == nil {
		f.imageVec = []float32{0, 1}
	}
	return f.imageVec, nil
}

// countingRebuilder records rebuild invocations.
type countingRebuilder struct {
	rebuilds int
}

func (c *countingRebuilder) Rebuild(context.Context) error {
	c.rebuilds++
	return nil
}

// fakeOCR returns fixed lines for image files.
type fakeOCR struct{ lines []string }

func (f *fakeOCR) DetectLines(context.Context, []byte) ([]string, error) {
	return f.lines, nil
}

// newTestPipeline wires a pipeline over an in-memory store with a temp data dir.
func newTestPipeline(t *testing.T, emb *fakeEmbedder, ocr extract.OCR, maxWords int) (*Pipeline, store.ChunkStore, *countingRebuilder) {
	t.Helper()
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	reb := &countingRebuilder{}
	p, err := NewPipeline(extract.New(nil, ocr), emb, s, reb, &Config{
		DataDir:       t.TempDir(),
		MaxChunkWords: maxWords,
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}
	return p, s, reb
}

// writeSource drops a file into its own temp dir (outside the data dir).
func writeSource(t *testing.T, name string, data []byte) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	if err := os.WriteFile(path, data, 0o600); err != nil {
		t.Fatalf("write source: %v", err)
	}
	return path
}

func Test_Ingest_TextFileEndToEnd(t *testing.T) {
	t.Parallel()
	p, s, reb := newTestPipeline(t, &fakeEmbedder{}, nil, 0)
	ctx := context.Background()

	res, err := p.Ingest(ctx, writeSource(t, "facts.txt", []byte("The sky is blue.")))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.ChunksEmbedded != 1 {
		t.Errorf("want 1 chunk embedded, got %d", res.ChunksEmbedded)
	}
	if reb.rebuilds != 1 {
		t.Errorf("want 1 index rebuild, got %d", reb.rebuilds)
	}

	chunks, err := s.ListAllChunks(ctx)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(chunks) != 1 {
		t.Fatalf("want 1 stored chunk, got %d", len(chunks))
	}
	if chunks[0].FileName != "facts.txt" || chunks[0].ChunkIndex != 1 {
		t.Errorf("chunk metadata: %+v", chunks[0])
	}
	if chunks[0].Text != "The sky is blue." {
		t.Errorf("chunk text: %q", chunks[0].Text)
	}
	if chunks[0].EmbeddingSize != len(chunks[0].Embedding) {
		t.Errorf("embedding size %d != len %d", chunks[0].EmbeddingSize, len(chunks[0].Embedding))
	}

	// Permanent copy must exist in the data dir.
	if _, err := os.Stat(filepath.Join(p.DataDir(), "facts.txt")); err != nil {
		t.Errorf("permanent copy missing: %v", err)
	}
}

func Test_Ingest_ZeroByteFileYieldsNoChunks(t *testing.T) {
	t.Parallel()
	p, s, reb := newTestPipeline(t, &fakeEmbedder{}, nil, 0)
	ctx := context.Background()

	res, err := p.Ingest(ctx, writeSource(t, "empty.txt", nil))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.ChunksEmbedded != 0 {
		t.Errorf("want 0 chunks, got %d", res.ChunksEmbedded)
	}
	if reb.rebuilds != 0 {
		t.Errorf("empty file must not trigger a rebuild, got %d", reb.rebuilds)
	}
	chunks, _ := s.ListAllChunks(ctx)
	if len(chunks) != 0 {
		t.Errorf("want no stored chunks, got %d", len(chunks))
	}
}

func Test_Ingest_EmbedFailureAbortsRemainingChunks(t *testing.T) {
	t.Parallel()
	// Three chunks of two words each; the second embed call fails.
	p, s, _ := newTestPipeline(t, &fakeEmbedder{failOnCall: 2}, nil, 2)
	ctx := context.Background()

	_, err := p.Ingest(ctx, writeSource(t, "doc.txt", []byte("one two three four five six")))
	if err == nil {
		t.Fatal("want error from failed embed, got nil")
	}

	chunks, listErr := s.ListAllChunks(ctx)
	if listErr != nil {
		t.Fatalf("list: %v", listErr)
	}
	// First chunk persisted, second failed, third never attempted.
	if len(chunks) != 1 {
		t.Fatalf("want 1 persisted chunk, got %d", len(chunks))
	}
	if chunks[0].ChunkIndex != 1 || chunks[0].Text != "one two" {
		t.Errorf("persisted chunk: %+v", chunks[0])
	}
}

func Test_Ingest_UnsupportedFileRejected(t *testing.T) {
	t.Parallel()
	p, _, _ := newTestPipeline(t, &fakeEmbedder{}, nil, 0)

	_, err := p.Ingest(context.Background(), writeSource(t, "blob.xyz", []byte("data")))
	if !errors.Is(err, extract.ErrUnsupportedFileType) {
		t.Errorf("want ErrUnsupportedFileType, got %v", err)
	}
}

func Test_Ingest_ImageStoresTextAndImageChunks(t *testing.T) {
	t.Parallel()
	p, s, _ := newTestPipeline(t, &fakeEmbedder{}, &fakeOCR{lines: []string{"STOP"}}, 0)
	ctx := context.Background()

	res, err := p.Ingest(ctx, writeSource(t, "sign.png", []byte{0x89, 'P', 'N', 'G'}))
	if err != nil {
		t.Fatalf("ingest: %v", err)
	}
	if res.ChunksEmbedded != 1 {
		t.Errorf("want 1 text chunk, got %d", res.ChunksEmbedded)
	}

	chunks, _ := s.ListAllChunks(ctx)
	if len(chunks) != 2 {
		t.Fatalf("want text + image chunks, got %d", len(chunks))
	}
	if chunks[0].Text != "STOP" || chunks[0].ChunkIndex != 1 {
		t.Errorf("text chunk: %+v", chunks[0])
	}
	if chunks[1].ChunkIndex != store.ImageChunkSequence || chunks[1].Text != store.ImagePlaceholderText {
		t.Errorf("image chunk: %+v", chunks[1])
	}
}

func Test_Ingest_ImageEmbedFailureIsNonFatal(t *testing.T) {
	t.Parallel()
	emb := &fakeEmbedder{imageErr: errors.New("multimodal quota exceeded")}
	p, s, reb := newTestPipeline(t, emb, &fakeOCR{lines: []string{"STOP"}}, 0)
	ctx := context.Background()

	res, err := p.Ingest(ctx, writeSource(t, "sign.png", []byte{0x89, 'P', 'N', 'G'}))
	if err != nil {
		t.Fatalf("image embed failure must not fail ingest: %v", err)
	}
	if res.ChunksEmbedded != 1 {
		t.Errorf("want 1 text chunk, got %d", res.ChunksEmbedded)
	}
	chunks, _ := s.ListAllChunks(ctx)
	if len(chunks) != 1 {
		t.Errorf("want only the text chunk stored, got %d", len(chunks))
	}
	if reb.rebuilds != 1 {
		t.Errorf("want 1 rebuild, got %d", reb.rebuilds)
	}
}

func Test_Bootstrap_SkipsAlreadyIngestedFiles(t *testing.T) {
	t.Parallel()
	p, s, _ := newTestPipeline(t, &fakeEmbedder{}, nil, 0)
	ctx := context.Background()

	dataDir := p.DataDir()
	for _, f := range []struct{ name, text string }{
		{"old.txt", "already known"},
		{"new.txt", "fresh content"},
	} {
		if err := os.WriteFile(filepath.Join(dataDir, f.name), []byte(f.text), 0o600); err != nil {
			t.Fatalf("seed data dir: %v", err)
		}
	}
	// Mark old.txt as previously ingested.
	if err := s.InsertChunk(ctx, store.Chunk{
		FileName: "old.txt", ChunkIndex: 1, Embedding: []float32{1}, EmbeddingSize: 1, Text: "already known",
	}); err != nil {
		t.Fatalf("seed store: %v", err)
	}

	n, err := p.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if n != 1 {
		t.Errorf("want 1 file ingested, got %d", n)
	}

	names, _ := s.DistinctFileNames(ctx)
	if !names["new.txt"] {
		t.Error("new.txt was not ingested")
	}

	// A rescan must ingest nothing.
	n, err = p.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("rescan: %v", err)
	}
	if n != 0 {
		t.Errorf("rescan must ingest 0 files, got %d", n)
	}
}

func Test_Bootstrap_BrokenFileDoesNotBlockBatch(t *testing.T) {
	t.Parallel()
	// Every embed call fails, so every chunked file fails; the empty file
	// and the batch itself must still succeed.
	p, _, _ := newTestPipeline(t, &fakeEmbedder{failOnCall: 1}, nil, 0)
	ctx := context.Background()

	dataDir := p.DataDir()
	if err := os.WriteFile(filepath.Join(dataDir, "broken.txt"), []byte("will fail"), 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dataDir, "empty.txt"), nil, 0o600); err != nil {
		t.Fatalf("seed: %v", err)
	}

	n, err := p.Bootstrap(ctx)
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if n != 1 {
		t.Errorf("want 1 ingested (the empty file), got %d", n)
	}
}

func Test_Bootstrap_MissingDataDirIsEmpty(t *testing.T) {
	t.Parallel()
	s, err := store.OpenSQLite(":memory:")
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { _ = s.Close() })

	p, err := NewPipeline(extract.New(nil, nil), &fakeEmbedder{}, s, &countingRebuilder{}, &Config{
		DataDir: filepath.Join(t.TempDir(), "does-not-exist"),
	})
	if err != nil {
		t.Fatalf("new pipeline: %v", err)
	}

	n, err := p.Bootstrap(context.Background())
	if err != nil {
		t.Fatalf("bootstrap: %v", err)
	}
	if n != 0 {
		t.Errorf("want 0 ingested, got %d", n)
	}
}
