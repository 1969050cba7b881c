package session

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/wolfman30/spa-turnos/internal/booking"
)

type memoryEntry struct {
	data      []byte
	expiresAt time.Time
}

// MemoryStore is a process-local Store for development and tests.
type MemoryStore struct {
	mu       sync.Mutex
	ttl      time.Duration
	sessions map[string]memoryEntry
	flows    map[string]memoryEntry
	now      func() time.Time
}

// NewMemoryStore creates a MemoryStore whose entries expire after ttl.
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		ttl:      ttl,
		sessions: make(map[string]memoryEntry),
		flows:    make(map[string]memoryEntry),
		now:      time.Now,
	}
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	raw, ok := m.load(m.sessions, id)
	if !ok {
		return nil, ErrNotFound
	}
	var s Session
	if err := json.Unmarshal(raw, &s); err != nil {
		return nil, fmt.Errorf("session: decode: %w", err)
	}
	return &s, nil
}

func (m *MemoryStore) Save(_ context.Context, s *Session) error {
	raw, err := json.Marshal(s)
	if err != nil {
		return fmt.Errorf("session: encode: %w", err)
	}
	m.store(m.sessions, s.ID, raw)
	return nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.sessions, id)
	delete(m.flows, id)
	return nil
}

func (m *MemoryStore) LoadFlow(_ context.Context, sessionID string) (*booking.Flow, error) {
	raw, ok := m.load(m.flows, sessionID)
	if !ok {
		return nil, ErrNotFound
	}
	var f booking.Flow
	if err := json.Unmarshal(raw, &f); err != nil {
		return nil, fmt.Errorf("session: decode flow: %w", err)
	}
	return &f, nil
}

func (m *MemoryStore) SaveFlow(_ context.Context, sessionID string, f *booking.Flow) error {
	raw, err := json.Marshal(f)
	if err != nil {
		return fmt.Errorf("session: encode flow: %w", err)
	}
	m.store(m.flows, sessionID, raw)
	return nil
}

func (m *MemoryStore) DeleteFlow(_ context.Context, sessionID string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.flows, sessionID)
	return nil
}

func (m *MemoryStore) load(bucket map[string]memoryEntry, key string) ([]byte, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()
	e, ok := bucket[key]
	if !ok {
		return nil, false
	}
	if m.ttl > 0 && !m.now().Before(e.expiresAt) {
		delete(bucket, key)
		return nil, false
	}
	return e.data, true
}

func (m *MemoryStore) store(bucket map[string]memoryEntry, key string, data []byte) {
	m.mu.Lock()
	defer m.mu.Unlock()
	bucket[key] = memoryEntry{data: data, expiresAt: m.now().Add(m.ttl)}
}
