package conversation

import (
	"context"
	"sync"

	"gwi.com/rag-orchestrator/internal/models"
)

// MemoryBackend keeps conversations in process memory.
type MemoryBackend struct {
	mu    sync.Mutex
	convs map[string]*models.Conversation
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{convs: make(map[string]*models.Conversation)}
}

func (m *MemoryBackend) Load(ctx context.Context, id string) (*models.Conversation, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	c, ok := m.convs[id]
	if !ok {
		return nil, ErrNotExist
	}
	return c.Clone(), nil
}

func (m *MemoryBackend) Create(ctx context.Context, conv *models.Conversation) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.convs[conv.ID]; ok {
		return ErrConflict
	}
	m.convs[conv.ID] = conv.Clone()
	return nil
}

func (m *MemoryBackend) Swap(ctx context.Context, conv *models.Conversation, expected int64) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	cur, ok := m.convs[conv.ID]
	if !ok {
		return ErrNotExist
	}
	if cur.Version != expected {
		return ErrConflict
	}
	m.convs[conv.ID] = conv.Clone()
	return nil
}

func (m *MemoryBackend) Close() error { return nil }
