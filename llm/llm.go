// Package llm defines the text-generation contract used by handlers and a
// retry policy around it.
package llm

import (
	"context"

	"github.com/sehgal-vip/travel-agent/message"
)

// Request is a single generation call.
type Request struct {
	Messages  []*message.Message
	MaxTokens int
}

// Generator produces text for a request. Implementations live under
// contrib/provider.
type Generator interface {
	Generate(ctx context.Context, req Request) (string, error)
}

// GeneratorFunc adapts a function to Generator.
type GeneratorFunc func(ctx context.Context, req Request) (string, error)

func (f GeneratorFunc) Generate(ctx context.Context, req Request) (string, error) {
	return f(ctx, req)
}
