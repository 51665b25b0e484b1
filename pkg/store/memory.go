package store

import (
	"context"
	"sort"
	"sync"
	"time"
)

// Memory is an in-process Journal used when no store path is configured
type Memory struct {
	mu      sync.RWMutex
	entries map[uint64]Entry
}

var _ Journal = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{entries: make(map[uint64]Entry)}
}

func (m *Memory) Get(_ context.Context, jobID uint64) (Entry, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	entry, ok := m.entries[jobID]
	if !ok {
		return Entry{}, ErrNotFound
	}
	return entry, nil
}

func (m *Memory) Upsert(_ context.Context, entry Entry) error {
	if entry.UpdatedAt.IsZero() {
		entry.UpdatedAt = time.Now()
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	m.entries[entry.JobID] = entry
	return nil
}

func (m *Memory) ListByState(_ context.Context, states ...State) ([]Entry, error) {
	want := make(map[State]bool, len(states))
	for _, st := range states {
		want[st] = true
	}

	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []Entry
	for _, entry := range m.entries {
		if want[entry.State] {
			out = append(out, entry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].JobID < out[j].JobID })
	return out, nil
}

func (m *Memory) Close() error { return nil }
