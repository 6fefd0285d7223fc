package store

import (
	"context"
	"fmt"
	"sort"
	"sync"

	"github.com/google/uuid"

	"pictor/internal/model"
)

// Memory is an in-process RecordStore used when no database DSN is
// configured, and by tests. Records do not survive a restart.
type Memory struct {
	mu      sync.Mutex
	records map[uuid.UUID]model.JobRecord
}

// NewMemory creates an empty in-memory RecordStore.
func NewMemory() *Memory {
	return &Memory{records: make(map[uuid.UUID]model.JobRecord)}
}

func (m *Memory) InsertJob(ctx context.Context, rec model.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; ok {
		return fmt.Errorf("insert job: duplicate id %s", rec.ID)
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) UpdateJobTerminal(ctx context.Context, rec model.JobRecord) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.records[rec.ID]; !ok {
		return fmt.Errorf("update job terminal: no row for id %s", rec.ID)
	}
	m.records[rec.ID] = rec.Clone()
	return nil
}

func (m *Memory) ListJobs(ctx context.Context) ([]model.JobRecord, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]model.JobRecord, 0, len(m.records))
	for _, rec := range m.records {
		out = append(out, rec.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (m *Memory) Ping(ctx context.Context) error { return nil }
