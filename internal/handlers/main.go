package handlers

import (
	"context"
	"fmt"
	"html/template"
	"log/slog"
	"net/http"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/tmaxmax/go-sse"

	chatx3webui "github.com/intellx3/chatx3-web-ui"
	"github.com/intellx3/chatx3-web-ui/internal/controller"
	"github.com/intellx3/chatx3-web-ui/internal/models"
)

// Store defines the persistence surface consumed by the handlers: the archive
// written through the lifecycle controller and read back by the history pages.
type Store interface {
	SaveConversation(ctx context.Context, conversation models.Conversation) error
	SaveMessage(ctx context.Context, conversationID string, message models.Message) error

	Conversations(ctx context.Context) ([]models.Conversation, error)
	Messages(ctx context.Context, conversationID string) ([]models.Message, error)
}

// Main handles the chat application: it owns the SSE server, the HTML
// templates, and one lifecycle controller per browser session. A nil
// assistant means the webhook endpoint is not configured; the chat feature
// then renders its unavailable state and never attempts a request.
type Main struct {
	sseSrv    *sse.Server
	templates *template.Template
	logger    *slog.Logger

	assistant controller.Assistant
	store     Store

	mu       sync.Mutex
	sessions map[string]*controller.Controller
}

const sessionCookie = "chatx3_session"

// SSE event types for live updates.
var (
	messagesSSEType = sse.Type("messages")
	statusSSEType   = sse.Type("status")
)

func sessionTopic(sessionID string) string {
	return fmt.Sprintf("session-%s", sessionID)
}

// NewMain creates a Main instance around the given assistant backend and
// archive store. It parses the embedded templates and configures the SSE
// server so each client only receives updates for its own session.
func NewMain(assistant controller.Assistant, store Store, logger *slog.Logger) (*Main, error) {
	if logger == nil {
		logger = slog.Default()
	}

	tmpl, err := template.New("").Funcs(template.FuncMap{
		"markdown": models.RenderMarkdown,
	}).ParseFS(
		chatx3webui.TemplateFS,
		"templates/layout/*.html",
		"templates/pages/*.html",
		"templates/partials/*.html",
	)
	if err != nil {
		return nil, fmt.Errorf("failed to parse templates: %w", err)
	}

	m := &Main{
		templates: tmpl,
		logger:    logger.With(slog.String("module", "handlers")),
		assistant: assistant,
		store:     store,
		sessions:  make(map[string]*controller.Controller),
	}
	m.sseSrv = &sse.Server{
		OnSession: func(s *sse.Session) (sse.Subscription, bool) {
			topics := []string{sse.DefaultTopic}
			if cookie, err := s.Req.Cookie(sessionCookie); err == nil && cookie.Value != "" {
				topics = append(topics, sessionTopic(cookie.Value))
			}
			return sse.Subscription{
				Client:      s,
				LastEventID: s.LastEventID,
				Topics:      topics,
			}, true
		},
	}
	return m, nil
}

// Configured reports whether an assistant backend is available at all.
func (m *Main) Configured() bool {
	return m.assistant != nil
}

// session returns the session id from the request cookie, minting one when
// absent.
func (m *Main) session(w http.ResponseWriter, r *http.Request) string {
	if cookie, err := r.Cookie(sessionCookie); err == nil && cookie.Value != "" {
		return cookie.Value
	}
	id := uuid.New().String()
	http.SetCookie(w, &http.Cookie{
		Name:     sessionCookie,
		Value:    id,
		Path:     "/",
		HttpOnly: true,
		SameSite: http.SameSiteLaxMode,
	})
	return id
}

// controllerFor returns the session's lifecycle controller, creating it on
// first use. Each open chat view owns exactly one controller.
func (m *Main) controllerFor(sessionID string) *controller.Controller {
	m.mu.Lock()
	defer m.mu.Unlock()
	if ctrl, ok := m.sessions[sessionID]; ok {
		return ctrl
	}

	var archive controller.Archive
	if m.store != nil {
		archive = m.store
	}
	ctrl := controller.New(m.assistant, archive, m.logger, func() {
		m.publishState(sessionID)
	})
	m.sessions[sessionID] = ctrl
	return ctrl
}

// publishState pushes the rendered message list and status bar of one session
// to its SSE topic.
func (m *Main) publishState(sessionID string) {
	m.mu.Lock()
	ctrl, ok := m.sessions[sessionID]
	m.mu.Unlock()
	if !ok {
		return
	}

	view := buildChatView(ctrl.Snapshot())

	var messages strings.Builder
	if err := m.templates.ExecuteTemplate(&messages, "messages", view); err != nil {
		m.logger.Error("Failed to render messages", slog.String("error", err.Error()))
		return
	}
	msg := sse.Message{Type: messagesSSEType}
	msg.AppendData(messages.String())
	if err := m.sseSrv.Publish(&msg, sessionTopic(sessionID)); err != nil {
		m.logger.Error("Failed to publish messages", slog.String("error", err.Error()))
	}

	var status strings.Builder
	if err := m.templates.ExecuteTemplate(&status, "status", view); err != nil {
		m.logger.Error("Failed to render status", slog.String("error", err.Error()))
		return
	}
	st := sse.Message{Type: statusSSEType}
	st.AppendData(status.String())
	if err := m.sseSrv.Publish(&st, sessionTopic(sessionID)); err != nil {
		m.logger.Error("Failed to publish status", slog.String("error", err.Error()))
	}
}

// HandleSSE serves the event stream carrying live message and status updates.
func (m *Main) HandleSSE(w http.ResponseWriter, r *http.Request) {
	m.sseSrv.ServeHTTP(w, r)
}

// Shutdown gracefully terminates the SSE server and every session controller.
// It broadcasts a close message to all connected clients and waits up to 5
// seconds for connections to terminate.
func (m *Main) Shutdown(ctx context.Context) error {
	m.mu.Lock()
	for _, ctrl := range m.sessions {
		ctrl.Close()
	}
	m.mu.Unlock()

	e := &sse.Message{Type: sse.Type("closeChat")}
	e.AppendData("bye")
	_ = m.sseSrv.Publish(e)

	ctx, cancel := context.WithTimeout(ctx, time.Second*5)
	defer cancel()

	return m.sseSrv.Shutdown(ctx)
}
