package service

import (
	"context"
)

// GenerationProvider produces a single completion for a prompt.
type GenerationProvider interface {
	Generate(ctx context.Context, prompt string) (string, error)
}

// AIService is a model backend able to both embed and generate.
type AIService interface {
	EmbeddingProvider
	GenerationProvider
	Close() error
}
