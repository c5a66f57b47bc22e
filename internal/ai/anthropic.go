package ai

import (
	"context"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"
)

// DefaultAnthropicModel is used when a request names no model.
const DefaultAnthropicModel = "claude-3-5-haiku-latest"

const anthropicMaxTokens = 4096

// AnthropicConfig configures the Anthropic provider.
type AnthropicConfig struct {
	APIKey  string
	BaseURL string
}

// Anthropic is the Anthropic chat completion provider.
type Anthropic struct {
	client anthropic.Client
	hasKey bool
}

// NewAnthropic creates the provider. A missing API key is reported per
// completion as a tagged failure.
func NewAnthropic(cfg AnthropicConfig) *Anthropic {
	opts := []option.RequestOption{option.WithAPIKey(cfg.APIKey)}
	if cfg.BaseURL != "" {
		opts = append(opts, option.WithBaseURL(cfg.BaseURL))
	}
	return &Anthropic{
		client: anthropic.NewClient(opts...),
		hasKey: strings.TrimSpace(cfg.APIKey) != "",
	}
}

func (p *Anthropic) Name() string { return "anthropic" }

func (p *Anthropic) buildParams(req Request) anthropic.MessageNewParams {
	model := req.Model
	if model == "" {
		model = DefaultAnthropicModel
	}
	maxTokens := req.MaxTokens
	if maxTokens <= 0 {
		maxTokens = anthropicMaxTokens
	}

	messages := make([]anthropic.MessageParam, 0, len(req.Messages))
	for _, m := range req.Messages {
		block := anthropic.NewTextBlock(m.Content)
		switch m.Role {
		case roleAssistant:
			messages = append(messages, anthropic.NewAssistantMessage(block))
		case roleSystem:
			// System turns embedded in history collapse into the prompt.
			continue
		default:
			messages = append(messages, anthropic.NewUserMessage(block))
		}
	}

	params := anthropic.MessageNewParams{
		Model:     anthropic.Model(model),
		MaxTokens: int64(maxTokens),
		Messages:  messages,
	}
	if req.System != "" {
		params.System = []anthropic.TextBlockParam{{Text: req.System}}
	}
	return params
}

// Complete implements Provider.
func (p *Anthropic) Complete(ctx context.Context, req Request) Result {
	if !p.hasKey {
		return Failure("Anthropic API key not configured")
	}
	msg, err := p.client.Messages.New(ctx, p.buildParams(req))
	if err != nil {
		return Failure(fmt.Sprintf("Anthropic request failed: %v", err))
	}
	var content strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			content.WriteString(block.Text)
		}
	}
	return Succeed(content.String())
}

// Stream implements Provider.
func (p *Anthropic) Stream(ctx context.Context, req Request, fn ChunkFunc) Result {
	if !p.hasKey {
		return Failure("Anthropic API key not configured")
	}
	stream := p.client.Messages.NewStreaming(ctx, p.buildParams(req))
	defer stream.Close()

	var content strings.Builder
	for stream.Next() {
		event := stream.Current()
		switch ev := event.AsAny().(type) {
		case anthropic.ContentBlockDeltaEvent:
			if ev.Delta.Text == "" {
				continue
			}
			content.WriteString(ev.Delta.Text)
			if fn != nil {
				fn(ev.Delta.Text)
			}
		}
	}
	if err := stream.Err(); err != nil {
		if content.Len() > 0 {
			return Succeed(content.String())
		}
		return Failure(fmt.Sprintf("Anthropic stream failed: %v", err))
	}
	return Succeed(content.String())
}
