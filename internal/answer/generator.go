// Package answer turns crawled text into a natural-language answer using a
// text-generation backend.
package answer

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"

	openai "github.com/sashabaranov/go-openai"
)

// Params bounds and tunes a single generation.
type Params struct {
	MinTokens   int
	MaxTokens   int
	Temperature float32
	TopK        int
	Beams       int
	Sample      bool
}

// Generator produces text for a prompt.
type Generator interface {
	Generate(ctx context.Context, prompt string, p Params) (string, error)
}

// ChatClient is the subset of *openai.Client used here.
type ChatClient interface {
	CreateChatCompletion(ctx context.Context, request openai.ChatCompletionRequest) (openai.ChatCompletionResponse, error)
}

// ErrEmptyCompletion is returned when the backend answers without text.
var ErrEmptyCompletion = errors.New("empty completion")

// OpenAIConfig selects an OpenAI-compatible endpoint.
type OpenAIConfig struct {
	BaseURL    string
	APIKey     string
	Model      string
	HTTPClient *http.Client
}

// OpenAIGenerator implements Generator with chat completions against any
// OpenAI-compatible server.
type OpenAIGenerator struct {
	Client ChatClient
	Model  string
}

// NewOpenAIGenerator builds a generator from cfg.
func NewOpenAIGenerator(cfg OpenAIConfig) *OpenAIGenerator {
	transportCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		transportCfg.BaseURL = cfg.BaseURL
	}
	if cfg.HTTPClient != nil {
		transportCfg.HTTPClient = cfg.HTTPClient
	}
	return &OpenAIGenerator{
		Client: openai.NewClientWithConfig(transportCfg),
		Model:  cfg.Model,
	}
}

// Generate sends prompt as a single user turn. Token bounds are enforced with
// MaxTokens and stated in the system message; beams and top-k have no chat
// equivalent and only shape whether sampling is used.
func (g *OpenAIGenerator) Generate(ctx context.Context, prompt string, p Params) (string, error) {
	if g.Client == nil || strings.TrimSpace(g.Model) == "" {
		return "", errors.New("generator not configured")
	}

	req := openai.ChatCompletionRequest{
		Model: g.Model,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: systemMessage(p)},
			{Role: openai.ChatMessageRoleUser, Content: prompt},
		},
		MaxTokens: p.MaxTokens,
		N:         1,
	}
	if p.Sample {
		req.Temperature = p.Temperature
	}

	resp, err := g.Client.CreateChatCompletion(ctx, req)
	if err != nil {
		return "", fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return "", ErrEmptyCompletion
	}
	out := strings.TrimSpace(resp.Choices[0].Message.Content)
	if out == "" {
		return "", ErrEmptyCompletion
	}
	return out, nil
}

func systemMessage(p Params) string {
	var sb strings.Builder
	sb.WriteString("You answer in plain prose without markdown.")
	switch {
	case p.MinTokens > 0 && p.MaxTokens > 0:
		fmt.Fprintf(&sb, " Write between %d and %d tokens.", p.MinTokens, p.MaxTokens)
	case p.MaxTokens > 0:
		fmt.Fprintf(&sb, " Write at most %d tokens.", p.MaxTokens)
	}
	return sb.String()
}
