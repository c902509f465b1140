// Package openai adapts the OpenAI Embeddings API to the embedding.Provider
// contract, grounded on the teacher's pkg/embedder/openai/client.go.
package openai

import (
	"context"

	openai "github.com/sashabaranov/go-openai"

	"github.com/mnemohq/mnemo/pkg/core"
)

// Client implements embedding.Provider against the OpenAI API.
type Client struct {
	client     *openai.Client
	model      openai.EmbeddingModel
	dimensions int
}

// Config configures the OpenAI embedding client.
type Config struct {
	APIKey     string
	Model      string
	BaseURL    string
	Dimensions int
}

// NewClient builds a Client from cfg.
func NewClient(cfg *Config) (*Client, error) {
	oaiCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		oaiCfg.BaseURL = cfg.BaseURL
	}

	model := openai.SmallEmbedding3
	dimensions := cfg.Dimensions
	if dimensions == 0 {
		dimensions = 1536
	}

	return &Client{
		client:     openai.NewClientWithConfig(oaiCfg),
		model:      model,
		dimensions: dimensions,
	}, nil
}

// Embed embeds a single text.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	vectors, err := c.EmbedBatch(ctx, []string{text})
	if err != nil {
		return nil, err
	}
	return vectors[0], nil
}

// EmbedBatch embeds multiple texts in one request.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	resp, err := c.client.CreateEmbeddings(ctx, openai.EmbeddingRequest{
		Input: texts,
		Model: c.model,
	})
	if err != nil {
		return nil, core.NewEngineError("EmbedBatch", core.KindEmbedding, err)
	}
	if len(resp.Data) != len(texts) {
		return nil, core.NewEngineError("EmbedBatch", core.KindEmbedding, errCountMismatch)
	}

	out := make([][]float32, len(texts))
	for i, d := range resp.Data {
		out[i] = d.Embedding
	}
	return out, nil
}

// Dimensions returns the configured embedding width.
func (c *Client) Dimensions() int { return c.dimensions }

// Close is a no-op; the OpenAI SDK client holds no resources to release.
func (c *Client) Close() error { return nil }

var errCountMismatch = countMismatchError{}

type countMismatchError struct{}

func (countMismatchError) Error() string { return "embedding count does not match input count" }
