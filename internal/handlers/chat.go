package handlers

import (
	"encoding/json"
	"errors"
	"html/template"
	"log/slog"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/intellx3/chatx3-web-ui/internal/controller"
	"github.com/intellx3/chatx3-web-ui/internal/models"
)

type messageView struct {
	ID                string
	Role              string
	Content           string
	HTML              template.HTML
	Timestamp         time.Time
	IsLoading         bool
	ProcessingSeconds int
	HasError          bool
	IsRetryable       bool
}

type chatView struct {
	ConversationID    string
	Messages          []messageView
	Sending           bool
	ProcessingSeconds int
	Health            string
	Err               string
}

type historyPageData struct {
	Conversations []models.Conversation
}

type historyConversationData struct {
	Conversation models.Conversation
	Messages     []messageView
}

// buildChatView converts a controller snapshot into template data. Assistant
// text is rendered as markdown; user, loading and error messages stay plain.
func buildChatView(snap controller.Snapshot) chatView {
	view := chatView{
		ConversationID:    snap.ConversationID,
		Messages:          buildMessageViews(snap.Messages),
		Sending:           snap.Sending,
		ProcessingSeconds: snap.ProcessingSeconds,
		Health:            string(snap.Health),
		Err:               snap.Err,
	}
	return view
}

func buildMessageViews(messages []models.Message) []messageView {
	views := make([]messageView, len(messages))
	for i, msg := range messages {
		view := messageView{
			ID:                msg.ID,
			Role:              string(msg.Role),
			Content:           msg.Content,
			Timestamp:         msg.Timestamp,
			IsLoading:         msg.IsLoading,
			ProcessingSeconds: msg.ProcessingSeconds,
			HasError:          msg.HasError,
			IsRetryable:       msg.IsRetryable,
		}
		if msg.Role == models.RoleAssistant && !msg.IsLoading && !msg.HasError {
			if html, err := models.RenderMarkdown(msg.Content); err == nil {
				view.HTML = html
			}
		}
		views[i] = view
	}
	return views
}

// identityFromRequest reads the user and company identifiers forwarded by the
// external auth layer. Missing headers degrade to the anonymous placeholders
// once the payload is built.
func identityFromRequest(r *http.Request) models.Identity {
	return models.Identity{
		UserID:      r.Header.Get("X-User-ID"),
		Email:       r.Header.Get("X-User-Email"),
		CompanyName: r.Header.Get("X-Company-Name"),
	}
}

// HandleHome renders the chat page, or the unavailable state when no webhook
// endpoint is configured.
func (m *Main) HandleHome(w http.ResponseWriter, r *http.Request) {
	if !m.Configured() {
		if err := m.templates.ExecuteTemplate(w, "unconfigured.html", nil); err != nil {
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	ctrl := m.controllerFor(m.session(w, r))
	if err := m.templates.ExecuteTemplate(w, "home.html", buildChatView(ctrl.Snapshot())); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleChats accepts one user message through a POST form and starts a send.
// While a request is in flight, further submits are rejected with 409 and the
// input is dropped, never queued. The response carries the rendered message
// list with the user turn and the loading placeholder; the final state
// arrives over SSE.
func (m *Main) HandleChats(w http.ResponseWriter, r *http.Request) {
	if !m.Configured() {
		http.Error(w, "AI service is not configured", http.StatusServiceUnavailable)
		return
	}

	text := r.FormValue("message")
	ctrl := m.controllerFor(m.session(w, r))
	ctrl.SetIdentity(identityFromRequest(r))

	if err := ctrl.Submit(text); err != nil {
		switch {
		case errors.Is(err, controller.ErrEmptyMessage):
			http.Error(w, "Message is required", http.StatusBadRequest)
		case errors.Is(err, controller.ErrBusy):
			http.Error(w, "A request is already in flight", http.StatusConflict)
		default:
			m.logger.Error("Failed to submit message", slog.String("error", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	m.renderMessages(w, ctrl)
}

// HandleRetry re-submits the text of the last user message after a retryable
// failure.
func (m *Main) HandleRetry(w http.ResponseWriter, r *http.Request) {
	if !m.Configured() {
		http.Error(w, "AI service is not configured", http.StatusServiceUnavailable)
		return
	}

	ctrl := m.controllerFor(m.session(w, r))
	ctrl.SetIdentity(identityFromRequest(r))

	if err := ctrl.Retry(); err != nil {
		switch {
		case errors.Is(err, controller.ErrBusy):
			http.Error(w, "A request is already in flight", http.StatusConflict)
		case errors.Is(err, controller.ErrNothingToRetry):
			http.Error(w, "No failed message to retry", http.StatusBadRequest)
		default:
			m.logger.Error("Failed to retry message", slog.String("error", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
		}
		return
	}

	m.renderMessages(w, ctrl)
}

// HandleNewConversation abandons the current conversation: any in-flight
// request is cancelled and its eventual resolution discarded, the message
// list is cleared and a fresh conversation id is generated.
func (m *Main) HandleNewConversation(w http.ResponseWriter, r *http.Request) {
	ctrl := m.controllerFor(m.session(w, r))
	ctrl.NewConversation()
	m.renderMessages(w, ctrl)
}

// HandleCancel signals cancellation to the in-flight request, if any.
func (m *Main) HandleCancel(w http.ResponseWriter, r *http.Request) {
	ctrl := m.controllerFor(m.session(w, r))
	ctrl.Cancel()
	w.WriteHeader(http.StatusNoContent)
}

// HandleStatus reports the advisory service state as JSON.
func (m *Main) HandleStatus(w http.ResponseWriter, r *http.Request) {
	w.Header().Set("Content-Type", "application/json")

	if !m.Configured() {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"configured": false,
			"health":     string(models.HealthOffline),
		})
		return
	}

	snap := m.controllerFor(m.session(w, r)).Snapshot()
	_ = json.NewEncoder(w).Encode(map[string]any{
		"configured":      true,
		"health":          string(snap.Health),
		"sending":         snap.Sending,
		"conversation_id": snap.ConversationID,
	})
}

// HandleHistory lists archived conversations, newest first. Without an
// archive store the page renders its empty state.
func (m *Main) HandleHistory(w http.ResponseWriter, r *http.Request) {
	var conversations []models.Conversation
	if m.store != nil {
		var err error
		conversations, err = m.store.Conversations(r.Context())
		if err != nil {
			m.logger.Error("Failed to list conversations", slog.String("error", err.Error()))
			http.Error(w, err.Error(), http.StatusInternalServerError)
			return
		}
	}

	data := historyPageData{Conversations: conversations}
	if err := m.templates.ExecuteTemplate(w, "history.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

// HandleHistoryConversation renders the archived transcript of one
// conversation.
func (m *Main) HandleHistoryConversation(w http.ResponseWriter, r *http.Request) {
	conversationID := mux.Vars(r)["id"]
	if conversationID == "" {
		http.Error(w, "Conversation id is required", http.StatusBadRequest)
		return
	}
	if m.store == nil {
		http.Error(w, "Conversation not found", http.StatusNotFound)
		return
	}

	messages, err := m.store.Messages(r.Context(), conversationID)
	if err != nil {
		m.logger.Error("Failed to load messages",
			slog.String("conversationID", conversationID),
			slog.String("error", err.Error()))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	data := historyConversationData{
		Conversation: models.Conversation{ID: conversationID},
		Messages:     buildMessageViews(messages),
	}
	if err := m.templates.ExecuteTemplate(w, "conversation.html", data); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}

func (m *Main) renderMessages(w http.ResponseWriter, ctrl *controller.Controller) {
	view := buildChatView(ctrl.Snapshot())
	if err := m.templates.ExecuteTemplate(w, "messages", view); err != nil {
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
