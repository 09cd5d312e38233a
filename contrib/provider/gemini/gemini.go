package gemini

import (
	"context"
	"fmt"

	"google.golang.org/genai"

	"github.com/sehgal-vip/travel-agent/llm"
	"github.com/sehgal-vip/travel-agent/message"
)

// Config holds Gemini provider configuration
type Config struct {
	APIKey      string
	Model       string
	MaxTokens   int32
	Temperature float32
}

// DefaultConfig returns default Gemini configuration
func DefaultConfig(apiKey string) *Config {
	return &Config{
		APIKey:      apiKey,
		Model:       "gemini-2.5-flash",
		MaxTokens:   4096,
		Temperature: 0.7,
	}
}

// Provider implements llm.Generator for Google Gemini
type Provider struct {
	config *Config
	client *genai.Client
}

var _ llm.Generator = (*Provider)(nil)

// New creates a Gemini provider backed by the GenAI SDK.
func New(ctx context.Context, config *Config) (*Provider, error) {
	if config == nil {
		config = DefaultConfig("")
	}
	if config.APIKey == "" {
		return nil, fmt.Errorf("gemini API key not configured")
	}
	if config.Model == "" {
		config.Model = "gemini-2.5-flash"
	}

	client, err := genai.NewClient(ctx, &genai.ClientConfig{
		APIKey:  config.APIKey,
		Backend: genai.BackendGeminiAPI,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to create GenAI client: %w", err)
	}
	return &Provider{config: config, client: client}, nil
}

// toContents maps messages to GenAI contents. System text is returned
// separately since Gemini takes it as an instruction.
func toContents(msgs []*message.Message) (*genai.Content, []*genai.Content) {
	system, rest := message.SplitSystem(msgs)
	contents := make([]*genai.Content, 0, len(rest))
	for _, msg := range rest {
		role := genai.Role(genai.RoleUser)
		if msg.Role == message.RoleAssistant {
			role = genai.RoleModel
		}
		contents = append(contents, genai.NewContentFromText(msg.Content, role))
	}
	var instruction *genai.Content
	if system != "" {
		instruction = genai.NewContentFromText(system, genai.RoleUser)
	}
	return instruction, contents
}

// Generate implements llm.Generator
func (p *Provider) Generate(ctx context.Context, req llm.Request) (string, error) {
	instruction, contents := toContents(req.Messages)
	if len(contents) == 0 {
		return "", fmt.Errorf("gemini: request has no user or assistant messages")
	}

	cfg := &genai.GenerateContentConfig{
		SystemInstruction: instruction,
		MaxOutputTokens:   p.config.MaxTokens,
	}
	if req.MaxTokens > 0 {
		cfg.MaxOutputTokens = int32(req.MaxTokens)
	}
	if p.config.Temperature > 0 {
		cfg.Temperature = genai.Ptr(p.config.Temperature)
	}

	resp, err := p.client.Models.GenerateContent(ctx, p.config.Model, contents, cfg)
	if err != nil {
		return "", fmt.Errorf("gemini API error: %w", err)
	}
	text := resp.Text()
	if text == "" {
		return "", fmt.Errorf("gemini: no content in response")
	}
	return text, nil
}

// SetModel updates the model
func (p *Provider) SetModel(model string) {
	p.config.Model = model
}
