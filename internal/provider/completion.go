package provider

import (
	"context"
	"fmt"

	"github.com/cloudwego/eino/components/model"
	"github.com/cloudwego/eino/schema"

	"github.com/fridaylabs/friday-kb/internal/rag"
)

// Completion adapts an eino ChatModel to the rag.Completer interface: one
// system message, one user message, one generated reply.
type Completion struct {
	model model.ToolCallingChatModel
}

// NewCompletion wraps the given ChatModel.
func NewCompletion(m model.ToolCallingChatModel) *Completion {
	return &Completion{model: m}
}

// Complete generates a single response to the prompt.
func (c *Completion) Complete(ctx context.Context, system, user string) (string, error) {
	msgs := []*schema.Message{
		schema.SystemMessage(system),
		schema.UserMessage(user),
	}
	out, err := c.model.Generate(ctx, msgs)
	if err != nil {
		return "", fmt.Errorf("provider: generate: %v: %w", err, rag.ErrProviderUnavailable)
	}
	return out.Content, nil
}
