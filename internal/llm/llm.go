// Package llm wraps the generation and embedding models behind narrow
// interfaces so the chat orchestrator and indexing pipeline stay
// provider-agnostic.
package llm

import (
	"context"

	"github.com/atriumhq/atrium/pkg/models"
)

// Turn is one prior exchange forwarded to the model as history.
type Turn struct {
	Role models.MessageRole
	Text string
}

// GenerationRequest carries everything one streamed completion needs.
type GenerationRequest struct {
	Model        string
	SystemPrompt string
	History      []Turn
	Message      string
	Temperature  float32
	MaxTokens    int
}

// Generator streams a completion fragment by fragment. emit is called
// once per fragment in order; returning an error from emit aborts the
// stream and propagates the error to the caller.
type Generator interface {
	Stream(ctx context.Context, req GenerationRequest, emit func(fragment string) error) error
}

// Embedder maps texts to vectors. Passing several texts embeds them in
// a single batched call.
type Embedder interface {
	EmbedTexts(ctx context.Context, texts []string) ([][]float32, error)
}
