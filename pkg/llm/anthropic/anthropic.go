// Package anthropic implements pkg/llm's Generator on the Anthropic
// Messages API.
package anthropic

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/halfmoonlabs/engram/pkg/llm"
)

// DefaultModel is the default generation model.
const DefaultModel = "claude-sonnet-4-5"

// DefaultMaxTokens is the default reply budget.
const DefaultMaxTokens = 4096

// Config holds configuration for the Anthropic generator.
type Config struct {
	// APIKey authenticates against the Anthropic API. Required.
	APIKey string

	// Model is the generation model. Defaults to DefaultModel.
	Model string

	// MaxTokens bounds the reply length. Defaults to DefaultMaxTokens.
	MaxTokens int
}

// Generator calls the Anthropic Messages API.
type Generator struct {
	client    anthropic.Client
	model     string
	maxTokens int64
}

// New creates a generator. A missing API key is a configuration error,
// not something to discover on the first request.
func New(cfg Config) (*Generator, error) {
	if cfg.APIKey == "" {
		return nil, llm.ErrNoAPIKey
	}

	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = DefaultMaxTokens
	}

	return &Generator{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: int64(maxTokens),
	}, nil
}

func (g *Generator) params(system string, messages []llm.Message) anthropic.MessageNewParams {
	apiMessages := make([]anthropic.MessageParam, 0, len(messages))
	for _, m := range messages {
		switch m.Role {
		case llm.RoleAssistant:
			apiMessages = append(apiMessages, anthropic.NewAssistantMessage(anthropic.NewTextBlock(m.Content)))
		default:
			apiMessages = append(apiMessages, anthropic.NewUserMessage(anthropic.NewTextBlock(m.Content)))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(g.model),
		MaxTokens: g.maxTokens,
		Messages:  apiMessages,
	}
	if system != "" {
		params.System = []anthropic.TextBlockParam{{Text: system}}
	}
	return params
}

// Generate returns the complete reply in one call.
func (g *Generator) Generate(ctx context.Context, system string, messages []llm.Message) (string, error) {
	resp, err := g.client.Messages.New(ctx, g.params(system, messages))
	if err != nil {
		return "", fmt.Errorf("anthropic api error: %w", err)
	}

	var text strings.Builder
	for _, block := range resp.Content {
		if block.Type == "text" {
			text.WriteString(block.Text)
		}
	}
	return text.String(), nil
}

// GenerateStream delivers the reply incrementally and returns the full
// assembled text.
func (g *Generator) GenerateStream(ctx context.Context, system string, messages []llm.Message, onDelta llm.StreamFunc) (string, error) {
	stream := g.client.Messages.NewStreaming(ctx, g.params(system, messages))
	defer stream.Close()

	var text strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch evt := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if delta, ok := evt.Delta.AsAny().(anthropic.TextDelta); ok {
				text.WriteString(delta.Text)
				if onDelta != nil {
					if err := onDelta(delta.Text); err != nil {
						return text.String(), err
					}
				}
			}
		}
	}
	if err := stream.Err(); err != nil {
		return "", fmt.Errorf("anthropic stream error: %w", err)
	}
	return text.String(), nil
}

// Ensure Generator implements llm.Generator
var _ llm.Generator = (*Generator)(nil)
