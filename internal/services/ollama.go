package services

import (
	"context"
	"fmt"
	"net/http"
	"net/url"

	"github.com/ollama/ollama/api"

	"github.com/intellx3/chatx3-web-ui/internal/models"
)

// Ollama is an assistant backend served by a local Ollama instance. Like the
// OpenAI backend it answers each turn independently and exists for running
// the chat without a webhook endpoint.
type Ollama struct {
	host         string
	model        string
	systemPrompt string

	client *api.Client
}

// NewOllama creates an Ollama backend for the given host URL and model name.
// If the provided host URL is invalid, the function will panic.
func NewOllama(host, model, systemPrompt string) Ollama {
	u, err := url.Parse(host)
	if err != nil {
		panic(err)
	}

	return Ollama{
		host:         host,
		model:        model,
		systemPrompt: systemPrompt,
		client:       api.NewClient(u, &http.Client{}),
	}
}

// Send performs one non-streaming chat completion for a single user turn.
func (o Ollama) Send(ctx context.Context, msg models.OutboundMessage) (string, error) {
	f := false
	req := api.ChatRequest{
		Model: o.model,
		Messages: []api.Message{
			{Role: "system", Content: o.systemPrompt},
			{Role: "user", Content: msg.Content},
		},
		Stream: &f,
	}

	var text string
	if err := o.client.Chat(ctx, &req, func(res api.ChatResponse) error {
		text = res.Message.Content
		return nil
	}); err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}

	return text, nil
}
