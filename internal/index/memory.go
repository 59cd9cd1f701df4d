package index

import (
	"context"
	"sort"
	"sync"

	"github.com/google/uuid"

	"gwi.com/rag-orchestrator/internal/models"
)

// MemoryBackend keeps records in process memory. Contents are lost on exit.
type MemoryBackend struct {
	mu          sync.RWMutex
	records     map[string][]Record
	collections map[string]models.Collection
}

func NewMemoryBackend() *MemoryBackend {
	return &MemoryBackend{
		records:     make(map[string][]Record),
		collections: make(map[string]models.Collection),
	}
}

func (m *MemoryBackend) Insert(ctx context.Context, collection string, recs []Record) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.collections[collection]; !ok {
		m.collections[collection] = models.Collection{ID: uuid.NewString(), Name: collection}
	}
	for _, r := range recs {
		r.Vector = append([]float32(nil), r.Vector...)
		m.records[collection] = append(m.records[collection], r)
	}
	return nil
}

func (m *MemoryBackend) Records(ctx context.Context, collection string) ([]Record, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, len(m.records[collection]))
	copy(out, m.records[collection])
	return out, nil
}

func (m *MemoryBackend) Collections(ctx context.Context) ([]models.Collection, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]models.Collection, 0, len(m.collections))
	for _, c := range m.collections {
		out = append(out, c)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Name < out[j].Name })
	return out, nil
}

func (m *MemoryBackend) Close() error { return nil }
