package registry

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process Persistence.
type Memory struct {
	mu      sync.RWMutex
	records map[int64]Record
}

// NewMemory returns an empty in-memory persistence.
func NewMemory() *Memory {
	return &Memory{records: make(map[int64]Record)}
}

func (m *Memory) Find(_ context.Context, packageID int64) (Record, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.records[packageID]
	return rec, ok, nil
}

func (m *Memory) Upsert(_ context.Context, rec Record) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.records[rec.PackageID] = rec
	return nil
}

func (m *Memory) Remove(_ context.Context, packageID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.records, packageID)
	return nil
}

func (m *Memory) List(_ context.Context) ([]Record, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Record, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PackageID < out[j].PackageID })
	return out, nil
}
