package llm

import "context"

// Summarizer matches lifecycle.Summarizer without importing lifecycle
// (which would create a cycle); any Adapter built here satisfies it
// structurally.
type Summarizer interface {
	Summarize(ctx context.Context, parts []string) (string, error)
}

// Adapter turns any Provider into a consolidation Summarizer by asking it
// to combine a cluster's content into one paragraph (spec.md §4.7).
type Adapter struct {
	Provider Provider
}

// NewAdapter wraps provider as a Summarizer.
func NewAdapter(provider Provider) *Adapter {
	return &Adapter{Provider: provider}
}

// Summarize sends the cluster's parts as a single user message asking for
// a consolidated summary.
func (a *Adapter) Summarize(ctx context.Context, parts []string) (string, error) {
	prompt := "Summarize the following related memories into one consolidated memory:\n"
	for _, p := range parts {
		prompt += "- " + p + "\n"
	}
	return a.Provider.Generate(ctx, prompt, WithTemperature(0.2), WithMaxTokens(300))
}
