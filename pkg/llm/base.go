// Package llm wraps the generative model Mnemo's consolidation lifecycle
// calls to turn a cluster of related memories into one summary (spec.md
// §4.7). Providers are swapped by name in core.SummarizerConfig; callers
// never depend on a concrete vendor package.
package llm

import "context"

// Provider is anything that can turn a prompt, or a short conversation,
// into generated text. Client (client.go) is the only implementation
// Mnemo ships; test code may supply its own.
type Provider interface {
	Generate(ctx context.Context, prompt string, opts ...GenerateOption) (string, error)
	GenerateWithMessages(ctx context.Context, messages []Message, opts ...GenerateOption) (string, error)
	Close() error
}

// Message is one turn of a conversation sent to a Provider.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// GenerateOptions are the knobs a Provider exposes across vendors.
type GenerateOptions struct {
	Temperature float64
	MaxTokens   int
	TopP        float64
	Stop        []string
}

// GenerateOption mutates a GenerateOptions.
type GenerateOption func(*GenerateOptions)

func WithTemperature(temp float64) GenerateOption {
	return func(o *GenerateOptions) { o.Temperature = temp }
}

func WithMaxTokens(max int) GenerateOption {
	return func(o *GenerateOptions) { o.MaxTokens = max }
}

func WithTopP(topP float64) GenerateOption {
	return func(o *GenerateOptions) { o.TopP = topP }
}

func WithStop(stop ...string) GenerateOption {
	return func(o *GenerateOptions) { o.Stop = stop }
}

// ApplyGenerateOptions folds opts onto Mnemo's consolidation defaults: low
// temperature and a tight token budget, since summaries should be terse
// and reproducible rather than creative.
func ApplyGenerateOptions(opts []GenerateOption) *GenerateOptions {
	options := &GenerateOptions{
		Temperature: 0.2,
		MaxTokens:   300,
		TopP:        1.0,
	}
	for _, opt := range opts {
		opt(options)
	}
	return options
}
