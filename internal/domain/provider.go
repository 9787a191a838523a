package domain

import "context"

// Provider is the interface all LLM providers must implement.
// Generate performs exactly one model invocation over the given messages
// and returns the raw text output. A Generate error is fatal for the
// request that triggered it.
type Provider interface {
	Name() string
	Generate(ctx context.Context, messages []Message) (string, error)
	Healthy(ctx context.Context) error
}
