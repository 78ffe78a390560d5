package main

import (
	"fmt"
	"log/slog"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/intellx3/chatx3-web-ui/internal/controller"
	"github.com/intellx3/chatx3-web-ui/internal/services"
)

type assistantConfig interface {
	// assistant builds the backend, or returns (nil, nil) when the feature
	// must stay disabled instead of failing startup.
	assistant(systemPrompt string, logger *slog.Logger) (controller.Assistant, error)
}

type config struct {
	Port           string
	AllowedOrigins []string
	SystemPrompt   string
	Assistant      assistantConfig
}

type webhookConfig struct {
	URL     string `yaml:"url"`
	Timeout string `yaml:"timeout"`
}

type openAIConfig struct {
	APIKey  string `yaml:"apiKey"`
	BaseURL string `yaml:"baseURL"`
	Model   string `yaml:"model"`
}

type ollamaConfig struct {
	Host  string `yaml:"host"`
	Model string `yaml:"model"`
}

func (c *config) UnmarshalYAML(value *yaml.Node) error {
	var rawConfig struct {
		Port           string         `yaml:"port"`
		AllowedOrigins []string       `yaml:"allowedOrigins"`
		SystemPrompt   string         `yaml:"systemPrompt"`
		Assistant      map[string]any `yaml:"assistant"`
		Webhook        webhookConfig  `yaml:"webhook"`
		OpenAI         openAIConfig   `yaml:"openai"`
		Ollama         ollamaConfig   `yaml:"ollama"`
	}

	if err := value.Decode(&rawConfig); err != nil {
		return err
	}

	c.Port = rawConfig.Port
	c.AllowedOrigins = rawConfig.AllowedOrigins
	c.SystemPrompt = rawConfig.SystemPrompt

	provider := "webhook"
	if p, ok := rawConfig.Assistant["provider"].(string); ok && p != "" {
		provider = p
	}

	switch provider {
	case "webhook":
		c.Assistant = rawConfig.Webhook
	case "openai":
		c.Assistant = rawConfig.OpenAI
	case "ollama":
		c.Assistant = rawConfig.Ollama
	default:
		return fmt.Errorf("unknown assistant provider: %s", provider)
	}

	return nil
}

// assistant returns a nil backend when no URL is configured: the chat feature
// then renders its unavailable state and no request is ever attempted.
func (w webhookConfig) assistant(_ string, logger *slog.Logger) (controller.Assistant, error) {
	if w.URL == "" {
		return nil, nil
	}

	timeout := services.DefaultWebhookTimeout
	if w.Timeout != "" {
		parsed, err := time.ParseDuration(w.Timeout)
		if err != nil {
			return nil, fmt.Errorf("invalid webhook timeout: %w", err)
		}
		timeout = parsed
	}

	return services.NewWebhook(w.URL, timeout, logger), nil
}

func (o openAIConfig) assistant(systemPrompt string, logger *slog.Logger) (controller.Assistant, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	apiKey := o.APIKey
	if apiKey == "" {
		apiKey = os.Getenv("OPENAI_API_KEY")
	}
	return services.NewOpenAI(apiKey, o.BaseURL, o.Model, systemPrompt, logger), nil
}

func (o ollamaConfig) assistant(systemPrompt string, _ *slog.Logger) (controller.Assistant, error) {
	if o.Model == "" {
		return nil, fmt.Errorf("model is required")
	}

	host := o.Host
	if host == "" {
		host = os.Getenv("OLLAMA_HOST")
	}
	return services.NewOllama(host, o.Model, systemPrompt), nil
}
