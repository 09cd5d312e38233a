// Package tiktoken counts prompt tokens with BPE encodings. It satisfies
// memory.TokenCounter.
package tiktoken

import (
	"fmt"
	"strings"

	"github.com/pkoukk/tiktoken-go"
)

// DefaultEncoding is used for empty names and for model families tiktoken
// has no table for.
const DefaultEncoding = "cl100k_base"

// Counter counts tokens for one encoding.
type Counter struct {
	name string
	enc  *tiktoken.Tiktoken
}

// New resolves name as an OpenAI model, then as an encoding name. Claude and
// Gemini model names map to DefaultEncoding, which is close enough for
// budgeting.
func New(name string) (*Counter, error) {
	resolved := encodingName(name)
	enc, err := tiktoken.EncodingForModel(resolved)
	if err != nil {
		enc, err = tiktoken.GetEncoding(resolved)
		if err != nil {
			return nil, fmt.Errorf("tiktoken: load encoding %q: %w", name, err)
		}
	}
	return &Counter{name: resolved, enc: enc}, nil
}

func encodingName(name string) string {
	n := strings.ToLower(strings.TrimSpace(name))
	switch {
	case n == "", strings.HasPrefix(n, "claude"), strings.HasPrefix(n, "gemini"):
		return DefaultEncoding
	}
	return n
}

// Name returns the resolved model or encoding name.
func (c *Counter) Name() string { return c.name }

// CountTokens returns the number of tokens in text. Special-token markers
// are counted as ordinary text.
func (c *Counter) CountTokens(text string) int {
	if text == "" {
		return 0
	}
	return len(c.enc.Encode(text, nil, nil))
}
