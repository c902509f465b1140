// Package embedding defines the embedding provider contract (spec.md §2,
// §6): text -> fixed-length vector, with a deterministic noop variant so
// tests never require network access.
package embedding

import "context"

// Provider converts text into fixed-dimension embedding vectors.
type Provider interface {
	Embed(ctx context.Context, text string) ([]float32, error)
	EmbedBatch(ctx context.Context, texts []string) ([][]float32, error)
	Dimensions() int
	Close() error
}
