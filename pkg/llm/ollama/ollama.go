// Package ollama implements pkg/llm's Generator on Ollama's chat API.
package ollama

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/halfmoonlabs/engram/pkg/llm"
)

const (
	// DefaultModel is the default chat model.
	DefaultModel = "llama3.2"

	// DefaultBaseURL is the default Ollama API URL.
	DefaultBaseURL = "http://localhost:11434"
)

// Config holds configuration for the Ollama generator.
type Config struct {
	// BaseURL is the Ollama API URL. Defaults to DefaultBaseURL.
	BaseURL string

	// Model is the chat model. Defaults to DefaultModel.
	Model string

	// MaxTokens bounds the reply length. Zero lets the model decide.
	MaxTokens int
}

// Generator calls Ollama's chat API.
type Generator struct {
	baseURL    string
	model      string
	maxTokens  int
	httpClient *http.Client
}

type chatRequest struct {
	Model    string        `json:"model"`
	Messages []llm.Message `json:"messages"`
	Stream   bool          `json:"stream"`
	Options  *chatOptions  `json:"options,omitempty"`
}

type chatOptions struct {
	NumPredict int `json:"num_predict,omitempty"`
}

type chatResponse struct {
	Message llm.Message `json:"message"`
	Done    bool        `json:"done"`
}

// New creates a generator.
func New(cfg Config) (*Generator, error) {
	baseURL := cfg.BaseURL
	if baseURL == "" {
		baseURL = DefaultBaseURL
	}
	model := cfg.Model
	if model == "" {
		model = DefaultModel
	}
	return &Generator{
		baseURL:   baseURL,
		model:     model,
		maxTokens: cfg.MaxTokens,
		httpClient: &http.Client{
			Timeout: 300 * time.Second,
		},
	}, nil
}

func (g *Generator) send(ctx context.Context, system string, messages []llm.Message, stream bool) (*http.Response, error) {
	all := make([]llm.Message, 0, len(messages)+1)
	if system != "" {
		all = append(all, llm.Message{Role: llm.RoleSystem, Content: system})
	}
	all = append(all, messages...)

	reqBody := chatRequest{
		Model:    g.model,
		Messages: all,
		Stream:   stream,
	}
	if g.maxTokens > 0 {
		reqBody.Options = &chatOptions{NumPredict: g.maxTokens}
	}

	jsonBody, err := json.Marshal(reqBody)
	if err != nil {
		return nil, fmt.Errorf("marshaling chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, "POST", g.baseURL+"/api/chat", bytes.NewReader(jsonBody))
	if err != nil {
		return nil, fmt.Errorf("creating chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := g.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("sending chat request: %w", err)
	}
	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(resp.Body)
		resp.Body.Close()
		return nil, fmt.Errorf("ollama returned status %d: %s", resp.StatusCode, string(body))
	}
	return resp, nil
}

// Generate returns the complete reply in one call.
func (g *Generator) Generate(ctx context.Context, system string, messages []llm.Message) (string, error) {
	resp, err := g.send(ctx, system, messages, false)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var parsed chatResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return "", fmt.Errorf("decoding chat response: %w", err)
	}
	return parsed.Message.Content, nil
}

// GenerateStream reads Ollama's newline-delimited JSON stream, forwarding
// each delta, and returns the assembled full text.
func (g *Generator) GenerateStream(ctx context.Context, system string, messages []llm.Message, onDelta llm.StreamFunc) (string, error) {
	resp, err := g.send(ctx, system, messages, true)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()

	var text strings.Builder
	scanner := bufio.NewScanner(resp.Body)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)

	for scanner.Scan() {
		line := bytes.TrimSpace(scanner.Bytes())
		if len(line) == 0 {
			continue
		}
		var chunk chatResponse
		if err := json.Unmarshal(line, &chunk); err != nil {
			return "", fmt.Errorf("decoding stream chunk: %w", err)
		}
		if chunk.Message.Content != "" {
			text.WriteString(chunk.Message.Content)
			if onDelta != nil {
				if err := onDelta(chunk.Message.Content); err != nil {
					return text.String(), err
				}
			}
		}
		if chunk.Done {
			break
		}
	}
	if err := scanner.Err(); err != nil {
		return "", fmt.Errorf("reading chat stream: %w", err)
	}
	return text.String(), nil
}

// Ensure Generator implements llm.Generator
var _ llm.Generator = (*Generator)(nil)
