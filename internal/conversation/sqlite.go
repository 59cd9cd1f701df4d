package conversation

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"gwi.com/rag-orchestrator/internal/models"
)

// SQLiteBackend keeps one row per conversation holding its version and one
// row per message. Swap bumps the version with a conditional UPDATE and
// inserts the new tail of messages in the same transaction.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize conversation schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS conversations (
        id TEXT PRIMARY KEY,
        version INTEGER NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP,
        updated_at DATETIME NOT NULL
    );

    CREATE TABLE IF NOT EXISTS messages (
        conversation_id TEXT NOT NULL,
        position INTEGER NOT NULL,
        role TEXT NOT NULL CHECK (role IN ('system', 'user', 'assistant')),
        content TEXT NOT NULL,
        PRIMARY KEY (conversation_id, position),
        FOREIGN KEY (conversation_id) REFERENCES conversations (id)
    );
    `
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Load(ctx context.Context, id string) (*models.Conversation, error) {
	// one transaction so the version and the messages come from the same snapshot
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	conv := models.Conversation{ID: id}
	err = tx.QueryRowContext(ctx, "SELECT version, updated_at FROM conversations WHERE id = ?", id).
		Scan(&conv.Version, &conv.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotExist
		}
		return nil, fmt.Errorf("failed to query conversation: %w", err)
	}

	rows, err := tx.QueryContext(ctx, "SELECT role, content FROM messages WHERE conversation_id = ? ORDER BY position ASC", id)
	if err != nil {
		return nil, fmt.Errorf("failed to query messages: %w", err)
	}
	defer rows.Close()
	for rows.Next() {
		var msg models.Message
		if err := rows.Scan(&msg.Role, &msg.Content); err != nil {
			return nil, fmt.Errorf("failed to scan message row: %w", err)
		}
		conv.Messages = append(conv.Messages, msg)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read messages: %w", err)
	}
	return &conv, nil
}

func (b *SQLiteBackend) Create(ctx context.Context, conv *models.Conversation) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, "INSERT OR IGNORE INTO conversations (id, version, updated_at) VALUES (?, ?, ?)",
		conv.ID, conv.Version, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("failed to insert conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		return ErrConflict
	}
	if err := insertMessages(ctx, tx, conv.ID, 0, conv.Messages); err != nil {
		return err
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Swap(ctx context.Context, conv *models.Conversation, expected int64) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	res, err := tx.ExecContext(ctx, "UPDATE conversations SET version = ?, updated_at = ? WHERE id = ? AND version = ?",
		conv.Version, conv.UpdatedAt, conv.ID, expected)
	if err != nil {
		return fmt.Errorf("failed to update conversation: %w", err)
	}
	if affected, _ := res.RowsAffected(); affected == 0 {
		var exists int
		err := tx.QueryRowContext(ctx, "SELECT 1 FROM conversations WHERE id = ?", conv.ID).Scan(&exists)
		if errors.Is(err, sql.ErrNoRows) {
			return ErrNotExist
		}
		if err != nil {
			return fmt.Errorf("failed to query conversation: %w", err)
		}
		return ErrConflict
	}

	var stored int
	if err := tx.QueryRowContext(ctx, "SELECT COUNT(*) FROM messages WHERE conversation_id = ?", conv.ID).Scan(&stored); err != nil {
		return fmt.Errorf("failed to count messages: %w", err)
	}
	if stored > len(conv.Messages) {
		return fmt.Errorf("conversation %s would lose %d messages", conv.ID, stored-len(conv.Messages))
	}
	if err := insertMessages(ctx, tx, conv.ID, stored, conv.Messages[stored:]); err != nil {
		return err
	}
	return tx.Commit()
}

// Close is a no-op; the *sql.DB is owned by whoever opened it.
func (b *SQLiteBackend) Close() error { return nil }

func insertMessages(ctx context.Context, tx *sql.Tx, id string, from int, msgs []models.Message) error {
	if len(msgs) == 0 {
		return nil
	}
	stmt, err := tx.PrepareContext(ctx, "INSERT INTO messages (conversation_id, position, role, content) VALUES (?, ?, ?, ?)")
	if err != nil {
		return fmt.Errorf("failed to prepare message insert: %w", err)
	}
	defer stmt.Close()

	for i, msg := range msgs {
		if _, err := stmt.ExecContext(ctx, id, from+i, msg.Role, msg.Content); err != nil {
			return fmt.Errorf("failed to execute message insert: %w", err)
		}
	}
	return nil
}

