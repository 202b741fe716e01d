package rag

import (
	"context"
	"fmt"
	"strings"
)

// systemPrompt constrains the model to the retrieved context.
const systemPrompt = "You are a helpful assistant. Use only the provided context."

// DefaultTopK is the number of chunks injected into the prompt when the
// engine is constructed with a non-positive value.
const DefaultTopK = 3

// Citation points at a stored chunk that grounded an answer.
type Citation struct {
	// Source is the file name the chunk came from.
	Source string `json:"source"`
	// Sequence is the chunk's 1-based position within its document.
	Sequence int `json:"sequence"`
}

// Answer is a grounded response to a question.
type Answer struct {
	// Text is the model's answer.
	Text string `json:"answer"`
	// Citations lists the chunks that were injected as context, in rank order.
	Citations []Citation `json:"citations,omitempty"`
}

// Engine answers questions grounded in the knowledge base. It retrieves the
// most relevant chunks, assembles them into a context block, and asks the
// completion model to answer from that context alone.
type Engine struct {
	retriever Retriever
	completer Completer
	topK      int
}

// NewEngine constructs an Engine. topK <= 0 falls back to DefaultTopK.
func NewEngine(retriever Retriever, completer Completer, topK int) (*Engine, error) {
	if retriever == nil {
		return nil, fmt.Errorf("rag: retriever must not be nil")
	}
	if completer == nil {
		return nil, fmt.Errorf("rag: completer must not be nil")
	}
	if topK <= 0 {
		topK = DefaultTopK
	}
	return &Engine{retriever: retriever, completer: completer, topK: topK}, nil
}

// Answer retrieves context for the question and produces a grounded answer.
// A corpus with no relevant chunks still issues the completion with an empty
// context block, so the caller always gets the model's contract. Retrieval
// and completion failures propagate unretried.
func (e *Engine) Answer(ctx context.Context, question string) (*Answer, error) {
	hits, err := e.retriever.Search(ctx, question, e.topK)
	if err != nil {
		return nil, fmt.Errorf("rag: retrieve context: %w", err)
	}

	texts := make([]string, len(hits))
	citations := make([]Citation, len(hits))
	for i, h := range hits {
		texts[i] = h.Text
		citations[i] = Citation{Source: h.Source, Sequence: h.Sequence}
	}

	user := fmt.Sprintf("Context:\n%s\n\nQuestion: %s\nAnswer:", strings.Join(texts, "\n\n"), question)

	text, err := e.completer.Complete(ctx, systemPrompt, user)
	if err != nil {
		return nil, fmt.Errorf("rag: completion failed: %w", err)
	}

	return &Answer{Text: text, Citations: citations}, nil
}
