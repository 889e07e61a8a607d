package assistant

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	openai "github.com/sashabaranov/go-openai"

	"github.com/warrior-ram/demo-ai-chatbot/internal/domain"
)

// OpenAIResponder answers with an OpenAI chat completion.
type OpenAIResponder struct {
	client *openai.Client
	model  string
	logger *slog.Logger
}

// OpenAIOption configures an OpenAIResponder.
type OpenAIOption func(*openai.ClientConfig)

// WithBaseURL points the client at a compatible endpoint.
func WithBaseURL(url string) OpenAIOption {
	return func(c *openai.ClientConfig) { c.BaseURL = url }
}

// NewOpenAIResponder creates a responder. An empty model selects
// gpt-4o-mini.
func NewOpenAIResponder(apiKey, model string, logger *slog.Logger, opts ...OpenAIOption) *OpenAIResponder {
	if model == "" {
		model = openai.GPT4oMini
	}
	if logger == nil {
		logger = slog.Default()
	}

	cfg := openai.DefaultConfig(apiKey)
	for _, opt := range opts {
		opt(&cfg)
	}

	return &OpenAIResponder{
		client: openai.NewClientWithConfig(cfg),
		model:  model,
		logger: logger.With("component", "openai"),
	}
}

// Reply implements Responder.
func (o *OpenAIResponder) Reply(ctx context.Context, req Request) (*Reply, error) {
	msgs := make([]openai.ChatCompletionMessage, 0, len(req.History)+2)
	if req.SystemPrompt != "" {
		msgs = append(msgs, openai.ChatCompletionMessage{
			Role:    openai.ChatMessageRoleSystem,
			Content: req.SystemPrompt,
		})
	}
	for _, m := range req.History {
		switch m.Role {
		case domain.RoleUser:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: m.Content})
		case domain.RoleAssistant:
			msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleAssistant, Content: m.Content})
		}
	}
	if len(req.History) == 0 {
		msgs = append(msgs, openai.ChatCompletionMessage{Role: openai.ChatMessageRoleUser, Content: req.Query})
	}

	resp, err := o.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:    o.model,
		Messages: msgs,
	})
	if err != nil {
		return nil, fmt.Errorf("chat completion: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, ErrEmptyReply
	}

	choice := resp.Choices[0]
	content := strings.TrimSpace(choice.Message.Content)
	if content == "" {
		return nil, ErrEmptyReply
	}

	o.logger.Debug("Chat completion",
		"session_id", req.SessionID,
		"model", resp.Model,
		"finish_reason", choice.FinishReason,
		"total_tokens", resp.Usage.TotalTokens)

	confidence := 0.9
	if choice.FinishReason == openai.FinishReasonLength {
		confidence = 0.5
	}
	return &Reply{Content: content, Confidence: confidence, Sources: []string{}}, nil
}
