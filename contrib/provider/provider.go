// Package provider selects a text-generation backend by name.
package provider

import (
	"context"
	"fmt"
	"strings"

	"github.com/sehgal-vip/travel-agent/contrib/provider/claude"
	"github.com/sehgal-vip/travel-agent/contrib/provider/gemini"
	"github.com/sehgal-vip/travel-agent/contrib/provider/openai"
	errorskg "github.com/sehgal-vip/travel-agent/errors"
	"github.com/sehgal-vip/travel-agent/llm"
)

// Provider names accepted by New.
const (
	Claude = "claude"
	OpenAI = "openai"
	Groq   = "groq"
	Gemini = "gemini"
)

// Config is the provider-agnostic configuration.
type Config struct {
	Name        string
	APIKey      string
	Model       string
	BaseURL     string
	MaxTokens   int
	Temperature float64
}

// New builds the generator named by cfg.Name.
func New(ctx context.Context, cfg Config) (llm.Generator, error) {
	if cfg.APIKey == "" {
		return nil, fmt.Errorf("provider %s: api key is required: %w", cfg.Name, errorskg.ErrInvalidInput)
	}
	switch strings.ToLower(cfg.Name) {
	case Claude, "anthropic":
		c := claude.DefaultConfig(cfg.APIKey, cfg.BaseURL)
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		if cfg.MaxTokens > 0 {
			c.MaxTokens = int64(cfg.MaxTokens)
		}
		if cfg.Temperature > 0 {
			c.Temperature = cfg.Temperature
		}
		return claude.New(c), nil
	case OpenAI, Groq:
		c := openai.DefaultConfig().WithAPIKey(cfg.APIKey)
		if strings.EqualFold(cfg.Name, Groq) {
			c.WithBaseURL(openai.GroqBaseURL).WithModel("llama-3.3-70b-versatile")
		}
		if cfg.BaseURL != "" {
			c.WithBaseURL(cfg.BaseURL)
		}
		if cfg.Model != "" {
			c.WithModel(cfg.Model)
		}
		if cfg.MaxTokens > 0 {
			c.MaxTokens = int64(cfg.MaxTokens)
		}
		if cfg.Temperature > 0 {
			c.Temperature = cfg.Temperature
		}
		return openai.New(c), nil
	case Gemini, "google":
		c := gemini.DefaultConfig(cfg.APIKey)
		if cfg.Model != "" {
			c.Model = cfg.Model
		}
		if cfg.MaxTokens > 0 {
			c.MaxTokens = int32(cfg.MaxTokens)
		}
		if cfg.Temperature > 0 {
			c.Temperature = float32(cfg.Temperature)
		}
		return gemini.New(ctx, c)
	}
	return nil, fmt.Errorf("unknown provider %q: %w", cfg.Name, errorskg.ErrInvalidInput)
}
