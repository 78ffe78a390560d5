package models

import "time"

// Conversation is one logical chat session. Its ID scopes the server-side
// memory of the assistant backend; a fresh ID is generated whenever the user
// starts a new conversation. The live session is never restored across
// reloads, only the archive keeps finished turns.
type Conversation struct {
	ID        string
	Title     string
	StartedAt time.Time
}

// Message represents a single turn in a conversation. An assistant message
// starts its life as a loading placeholder and is mutated in place exactly
// once, either into its final text or into an error text. User messages are
// immutable after creation.
type Message struct {
	ID        string
	Role      Role
	Content   string
	Timestamp time.Time

	// IsLoading is true only while the message is a placeholder awaiting the
	// remote response.
	IsLoading bool

	// ProcessingSeconds is set once, on successful completion only.
	ProcessingSeconds int

	// HasError and IsRetryable are set once, on failure completion only.
	HasError    bool
	IsRetryable bool
}

// Role represents the role of a message participant.
type Role string

const (
	// RoleUser represents a user message.
	RoleUser Role = "user"
	// RoleAssistant represents an assistant message.
	RoleAssistant Role = "assistant"
)

// ServiceHealth is the advisory status of the upstream AI service. It is
// derived from completed request outcomes only and never gates any operation.
type ServiceHealth string

const (
	// HealthOnline is the default state, restored by any successful turn.
	HealthOnline ServiceHealth = "online"
	// HealthDegraded indicates the assistant backend answered with a server
	// failure, typically a broken workflow.
	HealthDegraded ServiceHealth = "degraded"
	// HealthOffline indicates the backend could not be reached at all.
	HealthOffline ServiceHealth = "offline"
)

// OutboundMessage is the payload sent to the assistant backend for one user
// turn. The field names are the wire format of the webhook endpoint.
type OutboundMessage struct {
	UserID           string `json:"user_id"`
	ConversationID   string `json:"conversation_id"`
	MessageID        string `json:"message_id"`
	Content          string `json:"message_content"`
	ConversationType string `json:"conversation_type"`
	UserEmail        string `json:"user_email"`
	CompanyName      string `json:"company_name"`
}

// ConversationTypeQuestion tags ordinary user turns on the wire.
const ConversationTypeQuestion = "Question"
