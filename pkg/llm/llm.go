// Package llm defines the internal representation of chat generation:
// role-tagged messages and the Generator interface providers implement.
package llm

import (
	"context"
	"errors"
)

// Canonical message roles.
const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
	RoleSystem    = "system"
)

// ErrNoAPIKey is returned when a provider requires an API key and none is
// configured.
var ErrNoAPIKey = errors.New("api key not configured for generation provider")

// Message is one chat message in the internal format.
type Message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

// StreamFunc receives incremental output text. Returning an error stops
// the stream.
type StreamFunc func(delta string) error

// Generator produces assistant replies from a conversation.
type Generator interface {
	// Generate returns the complete reply in one call.
	Generate(ctx context.Context, system string, messages []Message) (string, error)

	// GenerateStream delivers the reply incrementally through onDelta and
	// returns the assembled full text.
	GenerateStream(ctx context.Context, system string, messages []Message, onDelta StreamFunc) (string, error)
}
