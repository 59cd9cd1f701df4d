package index

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"time"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/ternarybob/arbor"
	"github.com/timshannon/badgerhold/v4"

	"gwi.com/rag-orchestrator/internal/models"
)

var seqKey = []byte("rag:index:seq")

type badgerRecord struct {
	ID          string
	Seq         uint64
	Collection  string
	Text        string
	ChunkIndex  int
	ChunkTotal  int
	ContentHash string
	Vector      []float32
	CreatedAt   time.Time
}

type badgerCollection struct {
	ID   string
	Name string
}

// BadgerBackend stores records in an embedded Badger database through
// badgerhold.
type BadgerBackend struct {
	store  *badgerhold.Store
	seq    *badger.Sequence
	logger arbor.ILogger
}

func NewBadgerBackend(path string, logger arbor.ILogger) (*BadgerBackend, error) {
	if err := os.MkdirAll(path, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}

	logger.Debug().Str("path", path).Msg("Opening Badger index")

	options := badgerhold.DefaultOptions
	options.Dir = path
	options.ValueDir = path
	options.Logger = nil

	store, err := badgerhold.Open(options)
	if err != nil {
		return nil, fmt.Errorf("failed to open badger database: %w", err)
	}
	seq, err := store.Badger().GetSequence(seqKey, 100)
	if err != nil {
		store.Close()
		return nil, fmt.Errorf("failed to open record sequence: %w", err)
	}
	return &BadgerBackend{store: store, seq: seq, logger: logger}, nil
}

// Insert writes recs in as many transactions as Badger needs. The
// collection is registered in the last one. If any transaction fails, the
// records already committed by this call are deleted again.
func (b *BadgerBackend) Insert(ctx context.Context, collection string, recs []Record) (err error) {
	if err := ctx.Err(); err != nil {
		return err
	}

	db := b.store.Badger()
	tx := db.NewTransaction(true)
	defer func() { tx.Discard() }()

	var committed, pending []string
	defer func() {
		if err != nil && len(committed) > 0 {
			if rbErr := b.deleteRecords(committed); rbErr != nil {
				b.logger.Error().Err(rbErr).Str("collection", collection).Int("records", len(committed)).Msg("Failed to roll back partial insert")
			}
		}
	}()

	// write runs fn in the open transaction. When the transaction is full
	// it is committed and fn is retried in a fresh one.
	write := func(fn func(tx *badger.Txn) error) error {
		err := fn(tx)
		if !errors.Is(err, badger.ErrTxnTooBig) {
			return err
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := tx.Commit(); err != nil {
			return fmt.Errorf("failed to commit record batch: %w", err)
		}
		committed = append(committed, pending...)
		b.logger.Debug().Str("collection", collection).Int("records", len(pending)).Msg("Committed record batch")
		pending = pending[:0]
		tx = db.NewTransaction(true)
		return fn(tx)
	}

	for _, r := range recs {
		n, err := b.seq.Next()
		if err != nil {
			return fmt.Errorf("failed to allocate record sequence: %w", err)
		}
		row := badgerRecord{
			ID:          r.ID,
			Seq:         n,
			Collection:  collection,
			Text:        r.Chunk.Text,
			ChunkIndex:  r.Chunk.Index,
			ChunkTotal:  r.Chunk.Total,
			ContentHash: r.ContentHash,
			Vector:      r.Vector,
			CreatedAt:   r.CreatedAt,
		}
		if err := write(func(tx *badger.Txn) error { return b.store.TxInsert(tx, r.ID, &row) }); err != nil {
			return fmt.Errorf("failed to insert record %s: %w", r.ID, err)
		}
		pending = append(pending, r.ID)
	}

	err = write(func(tx *badger.Txn) error {
		var existing badgerCollection
		err := b.store.TxGet(tx, collection, &existing)
		if errors.Is(err, badgerhold.ErrNotFound) {
			err = b.store.TxInsert(tx, collection, &badgerCollection{ID: uuid.NewString(), Name: collection})
		}
		return err
	})
	if err != nil {
		return fmt.Errorf("failed to register collection: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit record batch: %w", err)
	}
	return nil
}

// deleteRecords removes records by id, splitting the work the same way
// Insert does.
func (b *BadgerBackend) deleteRecords(ids []string) error {
	db := b.store.Badger()
	tx := db.NewTransaction(true)
	defer func() { tx.Discard() }()

	for _, id := range ids {
		err := b.store.TxDelete(tx, id, badgerRecord{})
		if errors.Is(err, badger.ErrTxnTooBig) {
			if err = tx.Commit(); err != nil {
				return err
			}
			tx = db.NewTransaction(true)
			err = b.store.TxDelete(tx, id, badgerRecord{})
		}
		if err != nil {
			return fmt.Errorf("failed to delete record %s: %w", id, err)
		}
	}
	return tx.Commit()
}

func (b *BadgerBackend) Records(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var rows []badgerRecord
	if err := b.store.Find(&rows, badgerhold.Where("Collection").Eq(collection)); err != nil {
		return nil, fmt.Errorf("failed to query records: %w", err)
	}
	sort.Slice(rows, func(i, j int) bool { return rows[i].Seq < rows[j].Seq })

	recs := make([]Record, len(rows))
	for i, row := range rows {
		recs[i] = Record{
			ID:         row.ID,
			Collection: row.Collection,
			Chunk: models.Chunk{
				Text:         row.Text,
				Index:        row.ChunkIndex,
				Total:        row.ChunkTotal,
				CollectionID: row.Collection,
			},
			Vector:      row.Vector,
			ContentHash: row.ContentHash,
			CreatedAt:   row.CreatedAt,
		}
	}
	return recs, nil
}

func (b *BadgerBackend) Collections(ctx context.Context) ([]models.Collection, error) {
	var rows []badgerCollection
	if err := b.store.Find(&rows, nil); err != nil {
		return nil, fmt.Errorf("failed to query collections: %w", err)
	}
	cols := make([]models.Collection, len(rows))
	for i, row := range rows {
		cols[i] = models.Collection{ID: row.ID, Name: row.Name}
	}
	sort.Slice(cols, func(i, j int) bool { return cols[i].Name < cols[j].Name })
	return cols, nil
}

func (b *BadgerBackend) Close() error {
	if err := b.seq.Release(); err != nil {
		b.logger.Warn().Err(err).Msg("Failed to release record sequence")
	}
	return b.store.Close()
}
