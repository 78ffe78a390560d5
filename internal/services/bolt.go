package services

import (
	"context"
	"encoding/json"
	"fmt"
	"slices"

	bolt "go.etcd.io/bbolt"

	"github.com/intellx3/chatx3-web-ui/internal/models"
)

// BoltDB is the conversation archive, a BoltDB-backed mirror of finished
// turns. The live session is owned by the lifecycle controller; the archive
// only keeps history for the read-only history pages.
type BoltDB struct {
	db *bolt.DB
}

const conversationsBucket = "conversations"

// NewBoltDB opens or creates the archive database at the specified file path.
// The database file is created with 0600 permissions if it doesn't exist.
func NewBoltDB(path string) (BoltDB, error) {
	db, err := bolt.Open(path, 0600, nil)
	if err != nil {
		return BoltDB{}, fmt.Errorf("failed to open bolt db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(conversationsBucket))
		return err
	})

	return BoltDB{db: db}, err
}

// Close releases the underlying database file.
func (b BoltDB) Close() error {
	return b.db.Close()
}

func messageBucketName(conversationID string) []byte {
	return []byte(fmt.Sprintf("conversation-%s", conversationID))
}

func sequenceKey(seq uint64) []byte {
	return []byte(fmt.Sprintf("%020d", seq))
}

// SaveConversation upserts a conversation record. Insertion order is kept
// through a sequence-prefixed key so Conversations can list newest first.
func (b BoltDB) SaveConversation(_ context.Context, conversation models.Conversation) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(conversationsBucket))
		if bkt == nil {
			return nil
		}

		key, err := findByID(bkt, conversation.ID)
		if err != nil {
			return err
		}
		if key == nil {
			seq, err := bkt.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to get next sequence: %w", err)
			}
			key = sequenceKey(seq)
		}

		if _, err := tx.CreateBucketIfNotExists(messageBucketName(conversation.ID)); err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		v, err := json.Marshal(conversation)
		if err != nil {
			return fmt.Errorf("failed to marshal conversation: %w", err)
		}
		return bkt.Put(key, v)
	})
}

// SaveMessage upserts one message in a conversation's bucket. A finalized
// assistant message overwrites its placeholder record under the same id.
func (b BoltDB) SaveMessage(_ context.Context, conversationID string, message models.Message) error {
	return b.db.Update(func(tx *bolt.Tx) error {
		bkt, err := tx.CreateBucketIfNotExists(messageBucketName(conversationID))
		if err != nil {
			return fmt.Errorf("failed to create message bucket: %w", err)
		}

		key, err := findByID(bkt, message.ID)
		if err != nil {
			return err
		}
		if key == nil {
			seq, err := bkt.NextSequence()
			if err != nil {
				return fmt.Errorf("failed to get next sequence: %w", err)
			}
			key = sequenceKey(seq)
		}

		v, err := json.Marshal(message)
		if err != nil {
			return fmt.Errorf("failed to marshal message: %w", err)
		}
		return bkt.Put(key, v)
	})
}

// Conversations retrieves all archived conversations, newest first.
func (b BoltDB) Conversations(context.Context) ([]models.Conversation, error) {
	var conversations []models.Conversation
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket([]byte(conversationsBucket))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var conversation models.Conversation
			if err := json.Unmarshal(v, &conversation); err != nil {
				return fmt.Errorf("failed to unmarshal conversation: %w", err)
			}
			conversations = append(conversations, conversation)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	slices.Reverse(conversations)
	return conversations, nil
}

// Messages retrieves all archived messages of one conversation in their
// stored order.
func (b BoltDB) Messages(_ context.Context, conversationID string) ([]models.Message, error) {
	var messages []models.Message
	err := b.db.View(func(tx *bolt.Tx) error {
		bkt := tx.Bucket(messageBucketName(conversationID))
		if bkt == nil {
			return nil
		}

		return bkt.ForEach(func(_, v []byte) error {
			var message models.Message
			if err := json.Unmarshal(v, &message); err != nil {
				return fmt.Errorf("failed to unmarshal message: %w", err)
			}
			messages = append(messages, message)
			return nil
		})
	})
	if err != nil {
		return nil, err
	}
	return messages, nil
}

// findByID scans a bucket for the key whose stored record carries the given
// id. Buckets hold at most one conversation's worth of records, so a linear
// scan is fine.
func findByID(bkt *bolt.Bucket, id string) ([]byte, error) {
	var record struct {
		ID string
	}

	c := bkt.Cursor()
	for k, v := c.First(); k != nil; k, v = c.Next() {
		if err := json.Unmarshal(v, &record); err != nil {
			return nil, fmt.Errorf("failed to unmarshal record: %w", err)
		}
		if record.ID == id {
			return k, nil
		}
	}
	return nil, nil
}
