package services

import (
	"context"
	"fmt"
	"log/slog"

	goopenai "github.com/sashabaranov/go-openai"

	"github.com/intellx3/chatx3-web-ui/internal/models"
)

// OpenAI is an assistant backend speaking any OpenAI-compatible chat
// completion API, mainly used for local development when no webhook instance
// is available. Conversation memory is owned by the backend in the webhook
// setup; this stand-in answers each turn independently.
type OpenAI struct {
	model        string
	systemPrompt string

	client *goopenai.Client
	logger *slog.Logger
}

// NewOpenAI creates an OpenAI-compatible backend with the specified API key,
// base URL, model name and system prompt. An empty base URL targets the
// official API.
func NewOpenAI(apiKey, baseURL, model, systemPrompt string, logger *slog.Logger) OpenAI {
	cfg := goopenai.DefaultConfig(apiKey)
	if baseURL != "" {
		cfg.BaseURL = baseURL
	}
	return OpenAI{
		model:        model,
		systemPrompt: systemPrompt,
		client:       goopenai.NewClientWithConfig(cfg),
		logger:       logger.With(slog.String("module", "openai")),
	}
}

// Send performs one non-streaming chat completion for a single user turn.
func (o OpenAI) Send(ctx context.Context, msg models.OutboundMessage) (string, error) {
	res, err := o.client.CreateChatCompletion(ctx, goopenai.ChatCompletionRequest{
		Model: o.model,
		Messages: []goopenai.ChatCompletionMessage{
			{Role: goopenai.ChatMessageRoleSystem, Content: o.systemPrompt},
			{Role: goopenai.ChatMessageRoleUser, Content: msg.Content},
		},
	})
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	if len(res.Choices) == 0 {
		o.logger.Error("Completion returned no choices", slog.String("messageID", msg.MessageID))
		return "", fmt.Errorf("no completion choices returned")
	}
	return res.Choices[0].Message.Content, nil
}
