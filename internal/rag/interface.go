// Package rag defines the interfaces for retrieval-augmented generation
// components: embedding, grounded completion, and retrieval. Concrete
// implementations (Bedrock, OpenAI, the in-memory index, etc.) satisfy these
// interfaces so the query engine never depends on a specific backend.
package rag

import (
	"context"
	"errors"
)

// ErrProviderUnavailable indicates a model provider could not be reached or
// rejected the request. Callers use errors.Is to distinguish provider outages
// from malformed input.
var ErrProviderUnavailable = errors.New("rag: provider unavailable")

// Hit is a single retrieved chunk with its similarity score.
type Hit struct {
	// Text is the chunk text that will be injected into the prompt context.
	Text string

	// Source is the file name the chunk was extracted from.
	Source string

	// Sequence is the 1-based position of the chunk within its document.
	// The whole-document image chunk uses the reserved sequence 9999.
	Sequence int

	// Score is the cosine similarity between the query and the chunk (-1..1).
	Score float32
}

// Embedder converts text into dense vector embeddings.
// Implementations must be safe to call from multiple goroutines.
type Embedder interface {
	// Embed converts a batch of texts into their corresponding embeddings.
	// The returned slice is parallel to the input slice.
	Embed(ctx context.Context, texts []string) ([][]float32, error)
}

// ImageEmbedder converts a base64-encoded image into a dense vector embedding
// in the same vector space as the text embeddings. Optional capability: only
// multimodal backends implement it.
type ImageEmbedder interface {
	// EmbedImage converts one base64-encoded image into its embedding.
	EmbedImage(ctx context.Context, imageBase64 string) ([]float32, error)
}

// Retriever returns the chunks most relevant to a query.
// Implementations must be safe to call from multiple goroutines.
type Retriever interface {
	// Search returns the top-k most relevant chunks for the query, best first.
	// An empty corpus yields an empty slice, not an error.
	Search(ctx context.Context, query string, topK int) ([]Hit, error)
}

// Completer produces a model completion from a system instruction and a user
// prompt. Implementations must be safe to call from multiple goroutines.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, error)
}
