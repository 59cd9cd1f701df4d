package conversation

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	bolt "go.etcd.io/bbolt"

	"gwi.com/rag-orchestrator/internal/models"
)

var conversationsBucket = []byte("conversations")

// BoltBackend stores each conversation as a JSON value keyed by id. The
// version check and the write happen in the same bbolt transaction.
type BoltBackend struct {
	db *bolt.DB
}

func NewBoltBackend(path string) (*BoltBackend, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("failed to open bolt database: %w", err)
	}
	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(conversationsBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create conversations bucket: %w", err)
	}
	return &BoltBackend{db: db}, nil
}

func (b *BoltBackend) Load(ctx context.Context, id string) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var conv *models.Conversation
	err := b.db.View(func(tx *bolt.Tx) error {
		var err error
		conv, err = get(tx, id)
		return err
	})
	if err != nil {
		return nil, err
	}
	return conv, nil
}

func (b *BoltBackend) Create(ctx context.Context, conv *models.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		if tx.Bucket(conversationsBucket).Get([]byte(conv.ID)) != nil {
			return ErrConflict
		}
		return put(tx, conv)
	})
}

func (b *BoltBackend) Swap(ctx context.Context, conv *models.Conversation, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	return b.db.Update(func(tx *bolt.Tx) error {
		cur, err := get(tx, conv.ID)
		if err != nil {
			return err
		}
		if cur.Version != expected {
			return ErrConflict
		}
		return put(tx, conv)
	})
}

func (b *BoltBackend) Close() error {
	return b.db.Close()
}

func get(tx *bolt.Tx, id string) (*models.Conversation, error) {
	data := tx.Bucket(conversationsBucket).Get([]byte(id))
	if data == nil {
		return nil, ErrNotExist
	}
	var conv models.Conversation
	if err := json.Unmarshal(data, &conv); err != nil {
		return nil, fmt.Errorf("failed to decode conversation %s: %w", id, err)
	}
	return &conv, nil
}

func put(tx *bolt.Tx, conv *models.Conversation) error {
	data, err := json.Marshal(conv)
	if err != nil {
		return fmt.Errorf("failed to encode conversation %s: %w", conv.ID, err)
	}
	return tx.Bucket(conversationsBucket).Put([]byte(conv.ID), data)
}
