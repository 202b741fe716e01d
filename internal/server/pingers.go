package server

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/fridaylabs/friday-kb/internal/store"
)

// StorePinger probes the chunk store's backing database. It satisfies the
// Pinger interface and is used by GET /api/ready.
type StorePinger struct {
	// chunks is the chunk store whose connection is probed.
	chunks store.ChunkStore
}

// NewStorePinger constructs a StorePinger for the given chunk store.
func NewStorePinger(chunks store.ChunkStore) *StorePinger {
	return &StorePinger{chunks: chunks}
}

// Name returns the dependency label used in readiness responses.
func (p *StorePinger) Name() string { return "store" }

// Ping checks the store's database connection.
func (p *StorePinger) Ping(ctx context.Context) error {
	if err := p.chunks.Ping(ctx); err != nil {
		return fmt.Errorf("ping failed: %w", err)
	}
	return nil
}

// ModelPinger probes a chat model backend by sending a minimal generate
// request. It satisfies the Pinger interface and is used by GET /api/ready.
// Each probe consumes a handful of tokens, so readiness checks should not be
// polled aggressively.
type ModelPinger struct {
	// model is the chat model to probe.
	model model.ToolCallingChatModel
	// name identifies the backend in readiness responses (e.g. "ollama").
	name string
}

// NewModelPinger constructs a ModelPinger for the given model and backend name.
func NewModelPinger(m model.ToolCallingChatModel, name string) *ModelPinger {
	return &ModelPinger{model: m, name: name}
}

// Name returns the backend label used in readiness responses.
func (p *ModelPinger) Name() string { return p.name }

// Ping sends a single short generate request to the backend.
func (p *ModelPinger) Ping(ctx context.Context) error {
	resp, err := p.model.Generate(ctx, []*schema.Message{
		schema.UserMessage("ping"),
	})
	if err != nil {
		return fmt.Errorf("generate failed: %w", err)
	}
	if resp == nil {
		return fmt.Errorf("generate returned nil response")
	}
	return nil
}
