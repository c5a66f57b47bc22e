package ai

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
)

// DefaultOpenAIModel is used when a request names no model.
const DefaultOpenAIModel = "gpt-4o-mini"

// OpenAIConfig configures the OpenAI provider. BaseURL allows pointing at
// any OpenAI-compatible endpoint.
type OpenAIConfig struct {
	APIKey  string
	BaseURL string
	Timeout time.Duration
}

// OpenAI is the OpenAI chat completion provider.
type OpenAI struct {
	client *openai.Client
	hasKey bool
}

// NewOpenAI creates the provider. A missing API key is not an error here;
// completions report it as a tagged failure.
func NewOpenAI(cfg OpenAIConfig) *OpenAI {
	config := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		config.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 60 * time.Second
	}
	config.HTTPClient = &http.Client{Timeout: cfg.Timeout}
	return &OpenAI{
		client: openai.NewClientWithConfig(config),
		hasKey: strings.TrimSpace(cfg.APIKey) != "",
	}
}

func (p *OpenAI) Name() string { return "openai" }

func (p *OpenAI) buildRequest(req Request, stream bool) openai.ChatCompletionRequest {
	model := req.Model
	if model == "" {
		model = DefaultOpenAIModel
	}
	messages := make([]openai.ChatCompletionMessage, 0, len(req.Messages)+1)
	if req.System != "" {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.System,
		})
	}
	for _, m := range req.Messages {
		messages = append(messages, openai.ChatCompletionMessage{
			Role:    mapOpenAIRole(m.Role),
			Content: m.Content,
		})
	}
	out := openai.ChatCompletionRequest{
		Model:    model,
		Messages: messages,
		Stream:   stream,
	}
	if req.MaxTokens > 0 {
		out.MaxTokens = req.MaxTokens
	}
	return out
}

func mapOpenAIRole(role string) string {
	switch role {
	case roleAssistant:
		return openai.ChatMessageRoleAssistant
	case roleSystem:
		return openai.ChatMessageRoleSystem
	default:
		return openai.ChatMessageRoleUser
	}
}

// Complete implements Provider.
func (p *OpenAI) Complete(ctx context.Context, req Request) Result {
	if !p.hasKey {
		return Failure("OpenAI API key not configured")
	}
	resp, err := p.client.CreateChatCompletion(ctx, p.buildRequest(req, false))
	if err != nil {
		return Failure(fmt.Sprintf("OpenAI request failed: %v", err))
	}
	if len(resp.Choices) == 0 {
		return Failure("OpenAI returned no choices")
	}
	return Succeed(resp.Choices[0].Message.Content)
}

// Stream implements Provider.
func (p *OpenAI) Stream(ctx context.Context, req Request, fn ChunkFunc) Result {
	if !p.hasKey {
		return Failure("OpenAI API key not configured")
	}
	stream, err := p.client.CreateChatCompletionStream(ctx, p.buildRequest(req, true))
	if err != nil {
		return Failure(fmt.Sprintf("OpenAI request failed: %v", err))
	}
	defer stream.Close()

	var content strings.Builder
	for {
		resp, err := stream.Recv()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			// Partial content is still a usable reply.
			if content.Len() > 0 {
				break
			}
			return Failure(fmt.Sprintf("OpenAI stream failed: %v", err))
		}
		for _, choice := range resp.Choices {
			if choice.Delta.Content == "" {
				continue
			}
			content.WriteString(choice.Delta.Content)
			if fn != nil {
				fn(choice.Delta.Content)
			}
		}
	}
	return Succeed(content.String())
}
