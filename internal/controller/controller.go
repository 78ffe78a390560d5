package controller

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/intellx3/chatx3-web-ui/internal/models"
)

// Assistant performs a single request/response exchange with the remote AI
// backend. Implementations must not retry internally; every retry decision
// belongs to the controller. Calls may take a long time, up to the transport's
// own hard timeout, and must honor context cancellation.
type Assistant interface {
	Send(ctx context.Context, msg models.OutboundMessage) (string, error)
}

// Archive receives finished conversation state for persistence. The live
// session stays in memory regardless of archive failures, which are logged
// and otherwise ignored.
type Archive interface {
	SaveConversation(ctx context.Context, conversation models.Conversation) error
	SaveMessage(ctx context.Context, conversationID string, message models.Message) error
}

// Phase is the state of the operation lock guarding outbound requests.
type Phase string

const (
	// PhaseIdle means no request is in flight and a new send may start.
	PhaseIdle Phase = "idle"
	// PhaseSending means exactly one request is in flight.
	PhaseSending Phase = "sending"
)

// ErrorPrefix marks assistant messages produced by a failed send.
const ErrorPrefix = "❌ "

var (
	// ErrBusy is returned when a send is attempted while another request is in
	// flight. The new input is dropped, not queued.
	ErrBusy = errors.New("a request is already in flight")
	// ErrEmptyMessage is returned when the submitted text is empty after trimming.
	ErrEmptyMessage = errors.New("message is empty")
	// ErrNothingToRetry is returned when no failed send is available to retry.
	ErrNothingToRetry = errors.New("no failed message to retry")
)

// Controller owns the mutable state of one chat conversation: the message
// list, the operation lock, the cancellation handle, the processing clock and
// the advisory service health. It is the sole path through which requests to
// the assistant backend are issued and through which their outcomes are folded
// back into the visible message list.
//
// All state transitions are serialized by one mutex; the lock check-and-set in
// Submit happens before any suspension point, so two near-simultaneous submits
// can never both pass.
type Controller struct {
	assistant Assistant
	archive   Archive
	notify    func()
	logger    *slog.Logger

	mu           sync.Mutex
	conversation models.Conversation
	messages     []models.Message
	identity     models.Identity

	phase      Phase
	startedAt  time.Time
	generation uint64
	cancel     context.CancelFunc
	clockStop  chan struct{}
	clockSecs  int

	lastInput string
	lastErr   string
	health    models.ServiceHealth
}

// Snapshot is an immutable copy of the controller state for rendering. The
// presentation layer is a pure function of it.
type Snapshot struct {
	ConversationID    string
	Messages          []models.Message
	Sending           bool
	ProcessingSeconds int
	Health            models.ServiceHealth
	Err               string
}

// New creates a controller with a fresh conversation. The archive and notify
// callback are optional; notify is invoked, without any lock held, after every
// visible state change, including clock ticks.
func New(assistant Assistant, archive Archive, logger *slog.Logger, notify func()) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		assistant: assistant,
		archive:   archive,
		notify:    notify,
		logger:    logger.With(slog.String("module", "controller")),
		phase:     PhaseIdle,
		health:    models.HealthOnline,
	}
	c.conversation = models.Conversation{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}
	return c
}

// SetIdentity records the identity attached to subsequent outgoing payloads.
func (c *Controller) SetIdentity(identity models.Identity) {
	c.mu.Lock()
	c.identity = identity
	c.mu.Unlock()
}

// Snapshot returns a copy of the current conversation state.
func (c *Controller) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	msgs := make([]models.Message, len(c.messages))
	copy(msgs, c.messages)
	return Snapshot{
		ConversationID:    c.conversation.ID,
		Messages:          msgs,
		Sending:           c.phase == PhaseSending,
		ProcessingSeconds: c.clockSecs,
		Health:            c.health,
		Err:               c.lastErr,
	}
}

// Submit starts one send for the given text. It acquires the operation lock,
// appends the user message and a loading placeholder, and issues exactly one
// request to the assistant backend. If another request is in flight the call
// is a no-op returning ErrBusy.
func (c *Controller) Submit(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyMessage
	}

	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		c.logger.Debug("Send dropped, operation already in flight")
		return ErrBusy
	}
	c.submitLocked(text)
	return nil
}

// submitLocked starts one send. The caller must hold the mutex with the phase
// verified idle; the mutex is released before returning.
func (c *Controller) submitLocked(text string) {
	c.phase = PhaseSending
	c.startedAt = time.Now()
	c.lastErr = ""
	c.lastInput = text

	userMsg := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleUser,
		Content:   text,
		Timestamp: time.Now(),
	}
	placeholder := models.Message{
		ID:        uuid.New().String(),
		Role:      models.RoleAssistant,
		Timestamp: time.Now(),
		IsLoading: true,
	}
	c.messages = append(c.messages, userMsg, placeholder)
	if c.conversation.Title == "" {
		c.conversation.Title = conversationTitle(text)
	}

	ctx, cancel := context.WithCancel(context.Background())
	c.cancel = cancel
	gen := c.generation
	c.startClockLocked()

	payload := c.payloadLocked(userMsg)
	conversation := c.conversation
	startedAt := c.startedAt
	c.mu.Unlock()

	c.saveConversation(conversation)
	c.saveMessage(conversation.ID, userMsg)
	c.changed()

	go c.send(ctx, gen, payload, placeholder.ID, startedAt)
}

// payloadLocked builds the outbound payload for one user message. The caller
// must hold the mutex.
func (c *Controller) payloadLocked(userMsg models.Message) models.OutboundMessage {
	identity := c.identity.OrAnonymous()
	return models.OutboundMessage{
		UserID:           identity.UserID,
		ConversationID:   c.conversation.ID,
		MessageID:        userMsg.ID,
		Content:          userMsg.Content,
		ConversationType: models.ConversationTypeQuestion,
		UserEmail:        identity.Email,
		CompanyName:      identity.CompanyName,
	}
}

// send runs in its own goroutine and folds the outcome of one request back
// into the message list. A generation mismatch means the request was
// superseded by Cancel or NewConversation; its resolution is discarded
// without touching any state.
func (c *Controller) send(
	ctx context.Context,
	gen uint64,
	payload models.OutboundMessage,
	placeholderID string,
	startedAt time.Time,
) {
	text, err := c.assistant.Send(ctx, payload)

	c.mu.Lock()
	if gen != c.generation {
		c.mu.Unlock()
		c.logger.Debug("Stale request resolution discarded",
			slog.String("messageID", payload.MessageID))
		return
	}
	if err != nil && errors.Is(err, context.Canceled) {
		// The backend surfaced cancellation on its own; release the lock and
		// stop the clock without folding a resolution.
		c.stopClockLocked()
		c.phase = PhaseIdle
		c.cancel = nil
		c.mu.Unlock()
		c.changed()
		return
	}

	c.stopClockLocked()
	c.phase = PhaseIdle
	c.cancel = nil

	idx := -1
	for i := range c.messages {
		if c.messages[i].ID == placeholderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		c.mu.Unlock()
		return
	}

	final := c.messages[idx]
	final.Timestamp = time.Now()
	final.IsLoading = false
	if err != nil {
		verdict := Classify(err)
		final.Content = ErrorPrefix + verdict.Message
		final.HasError = true
		final.IsRetryable = verdict.Retryable
		c.lastErr = verdict.Message
		if verdict.Health != "" {
			c.health = verdict.Health
		}
		c.logger.Error("Send failed",
			slog.String("messageID", payload.MessageID),
			slog.Bool("retryable", verdict.Retryable),
			slog.String("error", err.Error()))
	} else {
		final.Content = text
		final.ProcessingSeconds = int(time.Since(startedAt).Round(time.Second).Seconds())
		c.health = models.HealthOnline
	}
	c.messages[idx] = final
	conversationID := c.conversation.ID
	c.mu.Unlock()

	c.saveMessage(conversationID, final)
	c.changed()
}

// Retry removes the last failed assistant message and resubmits the retained
// text of the last user message. The removal and the resend happen under one
// lock acquisition, so a concurrent submit can never land between them.
func (c *Controller) Retry() error {
	c.mu.Lock()
	if c.phase != PhaseIdle {
		c.mu.Unlock()
		return ErrBusy
	}
	n := len(c.messages)
	if c.lastInput == "" || n == 0 {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	last := c.messages[n-1]
	if last.Role != models.RoleAssistant || !last.HasError {
		c.mu.Unlock()
		return ErrNothingToRetry
	}
	c.messages = c.messages[:n-1]
	c.lastErr = ""
	c.submitLocked(c.lastInput)
	return nil
}

// Cancel signals cancellation to the in-flight request, if any, and restores
// the idle state. The eventual resolution of the cancelled request is
// discarded; no message mutation happens on its behalf. Safe to call at any
// time, including on teardown.
func (c *Controller) Cancel() {
	c.mu.Lock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stopClockLocked()
	c.phase = PhaseIdle
	c.mu.Unlock()
	c.changed()
}

// NewConversation cancels any in-flight request, clears the message list and
// all error state, releases the lock unconditionally, resets service health
// and generates a fresh conversation id.
func (c *Controller) NewConversation() {
	c.mu.Lock()
	c.generation++
	if c.cancel != nil {
		c.cancel()
		c.cancel = nil
	}
	c.stopClockLocked()
	c.phase = PhaseIdle
	c.messages = nil
	c.lastErr = ""
	c.lastInput = ""
	c.clockSecs = 0
	c.health = models.HealthOnline
	c.conversation = models.Conversation{
		ID:        uuid.New().String(),
		StartedAt: time.Now(),
	}
	c.mu.Unlock()
	c.changed()
}

// Close releases the controller's resources on component teardown.
func (c *Controller) Close() {
	c.Cancel()
}

// startClockLocked starts the cosmetic processing clock, ticking once per
// second. The clock is tied 1:1 to the operation lock: created on acquisition,
// always stopped on release, on every path. The caller must hold the mutex.
func (c *Controller) startClockLocked() {
	c.clockSecs = 0
	stop := make(chan struct{})
	c.clockStop = stop
	go func() {
		ticker := time.NewTicker(time.Second)
		defer ticker.Stop()
		for {
			select {
			case <-stop:
				return
			case <-ticker.C:
				c.mu.Lock()
				if c.clockStop != stop {
					c.mu.Unlock()
					return
				}
				c.clockSecs++
				c.mu.Unlock()
				c.changed()
			}
		}
	}()
}

func (c *Controller) stopClockLocked() {
	if c.clockStop != nil {
		close(c.clockStop)
		c.clockStop = nil
	}
}

func (c *Controller) changed() {
	if c.notify != nil {
		c.notify()
	}
}

func (c *Controller) saveConversation(conversation models.Conversation) {
	if c.archive == nil {
		return
	}
	if err := c.archive.SaveConversation(context.Background(), conversation); err != nil {
		c.logger.Error("Failed to archive conversation",
			slog.String("conversationID", conversation.ID),
			slog.String("error", err.Error()))
	}
}

func (c *Controller) saveMessage(conversationID string, message models.Message) {
	if c.archive == nil {
		return
	}
	if err := c.archive.SaveMessage(context.Background(), conversationID, message); err != nil {
		c.logger.Error("Failed to archive message",
			slog.String("messageID", message.ID),
			slog.String("error", err.Error()))
	}
}

const maxTitleLen = 60

func conversationTitle(text string) string {
	runes := []rune(text)
	if len(runes) <= maxTitleLen {
		return text
	}
	return strings.TrimSpace(string(runes[:maxTitleLen])) + "…"
}
