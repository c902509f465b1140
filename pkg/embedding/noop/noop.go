// Package noop provides a deterministic embedding provider with no
// external dependency, for tests and offline operation (spec.md §6: "a
// noop provider MUST return deterministic vectors... so tests do not
// require network").
package noop

import (
	"context"
	"crypto/sha256"
	"math"
)

// Client is a hash-of-content embedding provider. It has no teacher
// equivalent (the teacher ships no noop variant) and is built in the
// embedding package's interface style.
type Client struct {
	dimensions int
}

// New builds a noop provider producing vectors of the given dimension.
func New(dimensions int) *Client {
	if dimensions <= 0 {
		dimensions = 256
	}
	return &Client{dimensions: dimensions}
}

// Embed hashes content into a repeating byte stream and maps it onto the
// unit sphere, so identical input always yields an identical vector.
func (c *Client) Embed(ctx context.Context, text string) ([]float32, error) {
	out := make([]float32, c.dimensions)
	seed := sha256.Sum256([]byte(text))

	var norm float64
	for i := range out {
		b := seed[i%len(seed)]
		// Mix in the index so repeated hash bytes still diverge across dimensions.
		v := float32(int(b)-128) + float32(i%7)
		out[i] = v
		norm += float64(v) * float64(v)
	}
	norm = math.Sqrt(norm)
	if norm == 0 {
		return out, nil
	}
	for i := range out {
		out[i] = float32(float64(out[i]) / norm)
	}
	return out, nil
}

// EmbedBatch embeds each text independently.
func (c *Client) EmbedBatch(ctx context.Context, texts []string) ([][]float32, error) {
	out := make([][]float32, len(texts))
	for i, t := range texts {
		v, err := c.Embed(ctx, t)
		if err != nil {
			return nil, err
		}
		out[i] = v
	}
	return out, nil
}

// Dimensions returns the configured vector width.
func (c *Client) Dimensions() int { return c.dimensions }

// Close is a no-op; the provider holds no external resources.
func (c *Client) Close() error { return nil }
