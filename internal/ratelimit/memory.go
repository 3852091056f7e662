package ratelimit

import (
	"context"
	"sync"
	"time"
)

// MemoryStore is a process-local Store used when Valkey is unavailable.
// Cool-downs are not shared between replicas.
type MemoryStore struct {
	mu       sync.Mutex
	lastSent map[string]time.Time
}

func NewMemoryStore() *MemoryStore {
	return &MemoryStore{lastSent: make(map[string]time.Time)}
}

func (m *MemoryStore) Reserve(_ context.Context, subject string, now time.Time, window time.Duration) (bool, time.Time, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	if last, ok := m.lastSent[subject]; ok && now.Sub(last) < window {
		return false, last, nil
	}

	m.lastSent[subject] = now
	return true, time.Time{}, nil
}

func (m *MemoryStore) Release(_ context.Context, subject string) error {
	m.mu.Lock()
	delete(m.lastSent, subject)
	m.mu.Unlock()
	return nil
}
