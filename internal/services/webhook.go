package services

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/intellx3/chatx3-web-ui/internal/controller"
	"github.com/intellx3/chatx3-web-ui/internal/models"
)

// DefaultWebhookTimeout is the hard client-side budget for one exchange. The
// assistant backend can legitimately take minutes to answer, so this is
// deliberately generous; expiry surfaces as a retryable timeout failure.
const DefaultWebhookTimeout = 10 * time.Minute

const webhookUserAgent = "ChatX3-App/1.0"

// FallbackResponse replaces an empty or unrecognizable 2xx body. A benign
// parsing edge case must not block the conversation, so it resolves as a
// degraded success, never as a failure.
const FallbackResponse = "Désolé, je n'ai pas pu générer une réponse appropriée. " +
	"Veuillez reformuler votre question ou réessayer."

// Webhook is the assistant backend speaking the n8n-style webhook protocol:
// one HTTP POST per user turn, a structured JSON payload out, and one of three
// response envelope shapes back. It never retries on its own.
type Webhook struct {
	url     string
	timeout time.Duration

	client *http.Client
	logger *slog.Logger
}

// NewWebhook creates a webhook client for the given endpoint URL. A
// non-positive timeout falls back to DefaultWebhookTimeout.
func NewWebhook(url string, timeout time.Duration, logger *slog.Logger) Webhook {
	if timeout <= 0 {
		timeout = DefaultWebhookTimeout
	}
	return Webhook{
		url:     url,
		timeout: timeout,
		client:  &http.Client{},
		logger:  logger.With(slog.String("module", "webhook")),
	}
}

// Send performs one request/response exchange for a single user turn. Failures
// carry the HTTP status and raw body through *controller.StatusError so the
// lifecycle controller can classify them; transport-level errors are returned
// wrapped and unmodified.
func (w Webhook) Send(ctx context.Context, msg models.OutboundMessage) (string, error) {
	ctx, cancel := context.WithTimeout(ctx, w.timeout)
	defer cancel()

	body, err := json.Marshal(msg)
	if err != nil {
		return "", fmt.Errorf("failed to marshal webhook payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, w.url, bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to create webhook request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", webhookUserAgent)
	req.Header.Set("X-Request-ID", fmt.Sprintf("%s-%d", msg.MessageID, time.Now().UnixMilli()))

	w.logger.Debug("Sending webhook request",
		slog.String("conversationID", msg.ConversationID),
		slog.String("messageID", msg.MessageID))

	res, err := w.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("error sending request: %w", err)
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return "", fmt.Errorf("error reading response: %w", err)
	}

	if res.StatusCode < 200 || res.StatusCode > 299 {
		w.logger.Error("Webhook returned error status",
			slog.Int("status", res.StatusCode),
			slog.String("messageID", msg.MessageID))
		return "", &controller.StatusError{StatusCode: res.StatusCode, Body: string(raw)}
	}

	return unwrapResponse(raw), nil
}

// webhookEnvelope is the flat object shape, {"response": ...}, where the
// response is either a plain string or a nested body envelope.
type webhookEnvelope struct {
	Response json.RawMessage `json:"response"`
}

// webhookBody is the nested shape behind an array-wrapped envelope, reached
// through the response.body.response path.
type webhookBody struct {
	Body struct {
		Response string `json:"response"`
	} `json:"body"`
}

// unwrapResponse resolves the three known response shapes: an array-wrapped
// envelope, a flat object, or a plain JSON string. Anything without
// extractable text falls back to FallbackResponse.
func unwrapResponse(raw []byte) string {
	if text := extractText(raw); text != "" {
		return text
	}
	return FallbackResponse
}

func extractText(raw []byte) string {
	raw = bytes.TrimSpace(raw)
	if len(raw) == 0 {
		return ""
	}

	var arr []json.RawMessage
	if err := json.Unmarshal(raw, &arr); err == nil {
		if len(arr) == 0 {
			return ""
		}
		return extractItem(arr[0])
	}

	return extractItem(raw)
}

func extractItem(raw []byte) string {
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return s
	}

	var env webhookEnvelope
	if err := json.Unmarshal(raw, &env); err != nil || len(env.Response) == 0 {
		return ""
	}

	if err := json.Unmarshal(env.Response, &s); err == nil {
		return s
	}

	var nested webhookBody
	if err := json.Unmarshal(env.Response, &nested); err == nil {
		return nested.Body.Response
	}
	return ""
}
