package ai

import (
	"context"
	"errors"
)

// ErrMissingCredentials is returned by provider constructors when no API key is available.
var ErrMissingCredentials = errors.New("provider credentials are not configured")

// TextGenerator produces free text for a system instruction and a user message.
type TextGenerator interface {
	GenerateContent(ctx context.Context, system, message string) (string, error)
	Model() string
}

// Embedder returns one vector per input text.
type Embedder interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	Model() string
}

// BatchEmbedder is implemented by providers that accept several inputs per request.
// The result has the same order and length as texts.
type BatchEmbedder interface {
	Embedder
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
}
