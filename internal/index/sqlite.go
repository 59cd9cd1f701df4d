package index

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"

	"github.com/google/uuid"

	"gwi.com/rag-orchestrator/internal/models"
)

// SQLiteBackend stores records in the data_chunks table. Vectors are kept as
// JSON arrays.
type SQLiteBackend struct {
	db *sql.DB
}

func NewSQLiteBackend(db *sql.DB) (*SQLiteBackend, error) {
	b := &SQLiteBackend{db: db}
	if err := b.initSchema(); err != nil {
		return nil, fmt.Errorf("failed to initialize index schema: %w", err)
	}
	return b, nil
}

func (b *SQLiteBackend) initSchema() error {
	schema := `
    CREATE TABLE IF NOT EXISTS collections (
        id TEXT PRIMARY KEY, -- UUID
        name TEXT UNIQUE NOT NULL,
        created_at DATETIME DEFAULT CURRENT_TIMESTAMP
    );

    CREATE TABLE IF NOT EXISTS data_chunks (
        seq INTEGER PRIMARY KEY AUTOINCREMENT,
        id TEXT UNIQUE NOT NULL, -- UUID
        collection TEXT NOT NULL,
        content TEXT NOT NULL,
        chunk_index INTEGER NOT NULL,
        total_chunks INTEGER NOT NULL,
        content_hash TEXT NOT NULL,
        embedding_json TEXT NOT NULL,
        created_at DATETIME NOT NULL
    );

    CREATE INDEX IF NOT EXISTS idx_data_chunks_collection ON data_chunks (collection, seq);
    `
	_, err := b.db.Exec(schema)
	return err
}

func (b *SQLiteBackend) Insert(ctx context.Context, collection string, recs []Record) error {
	tx, err := b.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback() //nolint:errcheck

	if _, err := tx.ExecContext(ctx,
		"INSERT OR IGNORE INTO collections (id, name) VALUES (?, ?)",
		uuid.NewString(), collection); err != nil {
		return fmt.Errorf("failed to register collection: %w", err)
	}

	stmt, err := tx.PrepareContext(ctx, `INSERT INTO data_chunks
        (id, collection, content, chunk_index, total_chunks, content_hash, embedding_json, created_at)
        VALUES (?, ?, ?, ?, ?, ?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("failed to prepare data_chunk insert: %w", err)
	}
	defer stmt.Close()

	for _, r := range recs {
		embeddingBytes, err := json.Marshal(r.Vector)
		if err != nil {
			return fmt.Errorf("failed to marshal embedding: %w", err)
		}
		if _, err := stmt.ExecContext(ctx, r.ID, collection, r.Chunk.Text, r.Chunk.Index, r.Chunk.Total,
			r.ContentHash, string(embeddingBytes), r.CreatedAt); err != nil {
			return fmt.Errorf("failed to execute data_chunk insert: %w", err)
		}
	}
	return tx.Commit()
}

func (b *SQLiteBackend) Records(ctx context.Context, collection string) ([]Record, error) {
	rows, err := b.db.QueryContext(ctx, `SELECT id, content, chunk_index, total_chunks, content_hash, embedding_json, created_at
        FROM data_chunks WHERE collection = ? ORDER BY seq ASC`, collection)
	if err != nil {
		return nil, fmt.Errorf("failed to query data_chunks: %w", err)
	}
	defer rows.Close()

	var recs []Record
	for rows.Next() {
		r := Record{Collection: collection, Chunk: models.Chunk{CollectionID: collection}}
		var embeddingJSON string
		if err := rows.Scan(&r.ID, &r.Chunk.Text, &r.Chunk.Index, &r.Chunk.Total, &r.ContentHash, &embeddingJSON, &r.CreatedAt); err != nil {
			return nil, fmt.Errorf("failed to scan data_chunk row: %w", err)
		}
		if err := json.Unmarshal([]byte(embeddingJSON), &r.Vector); err != nil {
			return nil, fmt.Errorf("failed to unmarshal embedding for chunk %s: %w", r.ID, err)
		}
		recs = append(recs, r)
	}
	return recs, rows.Err()
}

func (b *SQLiteBackend) Collections(ctx context.Context) ([]models.Collection, error) {
	rows, err := b.db.QueryContext(ctx, "SELECT id, name FROM collections ORDER BY name ASC")
	if err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	defer rows.Close()

	cols := []models.Collection{}
	for rows.Next() {
		var c models.Collection
		if err := rows.Scan(&c.ID, &c.Name); err != nil {
			return nil, fmt.Errorf("failed to scan collection row: %w", err)
		}
		cols = append(cols, c)
	}
	return cols, rows.Err()
}

// Close is a no-op; the *sql.DB is owned by whoever opened it.
func (b *SQLiteBackend) Close() error { return nil }
