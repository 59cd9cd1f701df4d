// Package conversation persists per-conversation message histories.
//
// Records carry a version that is bumped on every write. Append reads the
// current record, appends, and writes back only if the version is unchanged,
// retrying on conflict, so concurrent appends to one conversation never lose
// messages.
package conversation

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/ternarybob/arbor"

	"gwi.com/rag-orchestrator/internal/apperrors"
	"gwi.com/rag-orchestrator/internal/models"
)

const DefaultSystemPrompt = "You are a helpful assistant."

var (
	// ErrConflict is returned by a Backend when a Create finds an existing
	// record or a Swap finds a different version.
	ErrConflict = errors.New("conversation version conflict")
	// ErrNotExist is returned by a Backend for an unknown id.
	ErrNotExist = errors.New("conversation does not exist")
)

// Backend persists conversation records.
type Backend interface {
	Load(ctx context.Context, id string) (*models.Conversation, error)
	Create(ctx context.Context, conv *models.Conversation) error
	// Swap replaces the record if its stored version equals expected.
	Swap(ctx context.Context, conv *models.Conversation, expected int64) error
	Close() error
}

type Options struct {
	SystemPrompt string
	MaxRetries   int
	Backoff      time.Duration
}

func DefaultOptions() Options {
	return Options{
		SystemPrompt: DefaultSystemPrompt,
		MaxRetries:   5,
		Backoff:      10 * time.Millisecond,
	}
}

type Store struct {
	backend Backend
	opts    Options
	logger  arbor.ILogger
}

func NewStore(backend Backend, opts Options, logger arbor.ILogger) *Store {
	if opts.SystemPrompt == "" {
		opts.SystemPrompt = DefaultSystemPrompt
	}
	if opts.MaxRetries < 0 {
		opts.MaxRetries = 0
	}
	return &Store{backend: backend, opts: opts, logger: logger}
}

// Get loads a conversation. Every Store method trims surrounding whitespace
// from ids, so " c1 " and "c1" name the same conversation.
func (s *Store) Get(ctx context.Context, id string) (*models.Conversation, error) {
	const op = "conversation.get"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "conversation id is required")
	}
	conv, err := s.backend.Load(ctx, id)
	if err != nil {
		return nil, s.classify(op, id, err)
	}
	return conv, nil
}

// GetOrCreate returns the conversation, creating it with the system message
// if it does not exist yet. When two callers race, one creates and the other
// reads the winner's record.
func (s *Store) GetOrCreate(ctx context.Context, id string) (*models.Conversation, error) {
	const op = "conversation.get_or_create"
	id = strings.TrimSpace(id)
	conv, err := s.Get(ctx, id)
	if err == nil || !errors.Is(err, apperrors.ErrNotFound) {
		return conv, err
	}

	conv = &models.Conversation{
		ID:        id,
		Messages:  []models.Message{{Role: models.RoleSystem, Content: s.opts.SystemPrompt}},
		Version:   1,
		UpdatedAt: time.Now().UTC(),
	}
	err = s.backend.Create(ctx, conv)
	switch {
	case err == nil:
		s.logger.Debug().Str("conversation_id", id).Msg("Created conversation")
		return conv, nil
	case errors.Is(err, ErrConflict):
		return s.Get(ctx, id)
	default:
		return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, op, err)
	}
}

// Append adds msgs to the end of the conversation in one write. The
// messages stay contiguous even under concurrent appends.
func (s *Store) Append(ctx context.Context, id string, msgs ...models.Message) (*models.Conversation, error) {
	const op = "conversation.append"
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "conversation id is required")
	}
	if len(msgs) == 0 {
		return nil, apperrors.New(apperrors.KindInvalidRequest, op, "nothing to append")
	}
	for _, m := range msgs {
		if !m.Role.Valid() || m.Role == models.RoleSystem {
			return nil, apperrors.New(apperrors.KindInvalidRequest, op, "cannot append message with role %q", m.Role)
		}
	}

	for attempt := 0; ; attempt++ {
		cur, err := s.backend.Load(ctx, id)
		if err != nil {
			return nil, s.classify(op, id, err)
		}

		next := cur.Clone()
		next.Messages = append(next.Messages, msgs...)
		next.Version = cur.Version + 1
		next.UpdatedAt = time.Now().UTC()

		err = s.backend.Swap(ctx, next, cur.Version)
		if err == nil {
			return next, nil
		}
		if !errors.Is(err, ErrConflict) {
			return nil, s.classify(op, id, err)
		}
		if attempt >= s.opts.MaxRetries {
			return nil, apperrors.New(apperrors.KindStoreUnavailable, op,
				"conversation %q still conflicting after %d retries", id, s.opts.MaxRetries)
		}

		s.logger.Debug().Str("conversation_id", id).Int("attempt", attempt+1).Msg("Append conflict, retrying")
		select {
		case <-ctx.Done():
			return nil, apperrors.Wrap(apperrors.KindStoreUnavailable, op, ctx.Err())
		case <-time.After(s.opts.Backoff * time.Duration(attempt+1)):
		}
	}
}

func (s *Store) Close() error {
	return s.backend.Close()
}

func (s *Store) classify(op, id string, err error) error {
	if errors.Is(err, ErrNotExist) {
		return apperrors.New(apperrors.KindNotFound, op, "conversation %q not found", id)
	}
	return apperrors.Wrap(apperrors.KindStoreUnavailable, op, err)
}
