package services_test

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/intellx3/chatx3-web-ui/internal/models"
	"github.com/intellx3/chatx3-web-ui/internal/services"
)

func newTestBoltDB(t *testing.T) services.BoltDB {
	t.Helper()

	db, err := services.NewBoltDB(filepath.Join(t.TempDir(), "archive.db"))
	if err != nil {
		t.Fatalf("NewBoltDB() error = %v", err)
	}
	t.Cleanup(func() {
		_ = db.Close()
	})
	return db
}

func TestBoltDBSaveAndListConversations(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	first := models.Conversation{ID: "conv-1", Title: "Première question", StartedAt: time.Now()}
	second := models.Conversation{ID: "conv-2", Title: "Deuxième question", StartedAt: time.Now()}

	if err := db.SaveConversation(ctx, first); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}
	if err := db.SaveConversation(ctx, second); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}

	conversations, err := db.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(conversations) != 2 {
		t.Fatalf("Conversations() returned %d records, want 2", len(conversations))
	}
	if conversations[0].ID != "conv-2" {
		t.Errorf("newest conversation first: got %q, want conv-2", conversations[0].ID)
	}
	if conversations[1].Title != "Première question" {
		t.Errorf("conversation title = %q", conversations[1].Title)
	}
}

func TestBoltDBSaveConversationUpsert(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	conversation := models.Conversation{ID: "conv-1", Title: "Nouvelle conversation", StartedAt: time.Now()}
	if err := db.SaveConversation(ctx, conversation); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}

	conversation.Title = "Titre définitif"
	if err := db.SaveConversation(ctx, conversation); err != nil {
		t.Fatalf("SaveConversation() error = %v", err)
	}

	conversations, err := db.Conversations(ctx)
	if err != nil {
		t.Fatalf("Conversations() error = %v", err)
	}
	if len(conversations) != 1 {
		t.Fatalf("upsert created %d records, want 1", len(conversations))
	}
	if conversations[0].Title != "Titre définitif" {
		t.Errorf("conversation title = %q, want updated title", conversations[0].Title)
	}
}

func TestBoltDBSaveMessageOrdering(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	messages := []models.Message{
		{ID: "msg-1", Role: models.RoleUser, Content: "Question"},
		{ID: "msg-2", Role: models.RoleAssistant, Content: "Réponse"},
		{ID: "msg-3", Role: models.RoleUser, Content: "Relance"},
	}
	for _, m := range messages {
		if err := db.SaveMessage(ctx, "conv-1", m); err != nil {
			t.Fatalf("SaveMessage() error = %v", err)
		}
	}

	stored, err := db.Messages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(stored) != 3 {
		t.Fatalf("Messages() returned %d records, want 3", len(stored))
	}
	for i, m := range stored {
		if m.ID != messages[i].ID {
			t.Errorf("messages[%d].ID = %q, want %q", i, m.ID, messages[i].ID)
		}
	}
}

func TestBoltDBSaveMessageOverwritesPlaceholder(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	placeholder := models.Message{ID: "msg-1", Role: models.RoleAssistant, IsLoading: true}
	if err := db.SaveMessage(ctx, "conv-1", placeholder); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	final := models.Message{ID: "msg-1", Role: models.RoleAssistant, Content: "Réponse finale", ProcessingSeconds: 42}
	if err := db.SaveMessage(ctx, "conv-1", final); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	stored, err := db.Messages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(stored) != 1 {
		t.Fatalf("placeholder overwrite created %d records, want 1", len(stored))
	}
	if stored[0].IsLoading {
		t.Error("finalized message still marked loading")
	}
	if stored[0].Content != "Réponse finale" {
		t.Errorf("message content = %q", stored[0].Content)
	}
	if stored[0].ProcessingSeconds != 42 {
		t.Errorf("processing seconds = %d, want 42", stored[0].ProcessingSeconds)
	}
}

func TestBoltDBMessagesIsolatedPerConversation(t *testing.T) {
	db := newTestBoltDB(t)
	ctx := context.Background()

	if err := db.SaveMessage(ctx, "conv-1", models.Message{ID: "msg-1", Role: models.RoleUser, Content: "A"}); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}
	if err := db.SaveMessage(ctx, "conv-2", models.Message{ID: "msg-2", Role: models.RoleUser, Content: "B"}); err != nil {
		t.Fatalf("SaveMessage() error = %v", err)
	}

	stored, err := db.Messages(ctx, "conv-1")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(stored) != 1 || stored[0].ID != "msg-1" {
		t.Errorf("Messages(conv-1) = %v, want only msg-1", stored)
	}

	stored, err = db.Messages(ctx, "missing")
	if err != nil {
		t.Fatalf("Messages() error = %v", err)
	}
	if len(stored) != 0 {
		t.Errorf("Messages(missing) returned %d records, want 0", len(stored))
	}
}
