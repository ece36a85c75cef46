// Package store persists scenario instances so a restarted process can
// resume active worlds. Two implementations are provided: a volatile
// in-memory store for tests and demos, and a SQLite-backed store for real
// deployments.
package store

import (
	"context"
	"errors"
	"sync"
	"time"
)

// ErrNotFound is returned when no record exists for the requested instance.
var ErrNotFound = errors.New("store: instance not found")

// Record is the persisted form of a scenario instance. Snapshot holds the
// JSON-encoded world snapshot; it is empty while generation is still in
// flight.
type Record struct {
	InstanceID string    `json:"instance_id"`
	TemplateID string    `json:"template_id"`
	Status     string    `json:"status"`
	Seed       int64     `json:"seed"`
	Turn       int       `json:"turn"`
	Players    []string  `json:"players,omitempty"`
	Snapshot   []byte    `json:"snapshot,omitempty"`
	FailReason string    `json:"fail_reason,omitempty"`
	CreatedAt  time.Time `json:"created_at"`
	UpdatedAt  time.Time `json:"updated_at"`
}

// InstanceStore is the persistence contract the engine writes through on
// every instance lifecycle transition and periodic snapshot.
type InstanceStore interface {
	// Save inserts or replaces the record for rec.InstanceID.
	Save(ctx context.Context, rec Record) error
	// Load returns the record for id, or ErrNotFound.
	Load(ctx context.Context, id string) (Record, error)
	// ListActive returns all records whose status marks them resumable.
	ListActive(ctx context.Context) ([]Record, error)
	// MarkInactive flags a record so it is skipped by future resumes.
	MarkInactive(ctx context.Context, id string) error
	// Delete removes the record entirely.
	Delete(ctx context.Context, id string) error
	// Close releases underlying resources.
	Close() error
}

// InMemoryStore is a volatile InstanceStore keeping records in a process
// local map. It is safe for concurrent access and best suited for tests or
// ephemeral demo servers. Records are copied on the way in and out to prevent
// external mutation of internal state.
type InMemoryStore struct {
	mu      sync.RWMutex
	records map[string]Record
}

// NewInMemoryStore constructs an empty in-memory instance store.
func NewInMemoryStore() *InMemoryStore {
	return &InMemoryStore{records: make(map[string]Record)}
}

// Save implements InstanceStore.
func (s *InMemoryStore) Save(_ context.Context, rec Record) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.records[rec.InstanceID] = cloneRecord(rec)
	return nil
}

// Load implements InstanceStore.
func (s *InMemoryStore) Load(_ context.Context, id string) (Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	rec, ok := s.records[id]
	if !ok {
		return Record{}, ErrNotFound
	}
	return cloneRecord(rec), nil
}

// ListActive implements InstanceStore.
func (s *InMemoryStore) ListActive(_ context.Context) ([]Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []Record
	for _, rec := range s.records {
		if rec.Status == "active" {
			out = append(out, cloneRecord(rec))
		}
	}
	return out, nil
}

// MarkInactive implements InstanceStore.
func (s *InMemoryStore) MarkInactive(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	rec, ok := s.records[id]
	if !ok {
		return ErrNotFound
	}
	rec.Status = "stopped"
	rec.UpdatedAt = time.Now().UTC()
	s.records[id] = rec
	return nil
}

// Delete implements InstanceStore.
func (s *InMemoryStore) Delete(_ context.Context, id string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.records[id]; !ok {
		return ErrNotFound
	}
	delete(s.records, id)
	return nil
}

// Close implements InstanceStore.
func (s *InMemoryStore) Close() error { return nil }

func cloneRecord(rec Record) Record {
	out := rec
	if rec.Snapshot != nil {
		out.Snapshot = append([]byte(nil), rec.Snapshot...)
	}
	if rec.Players != nil {
		out.Players = append([]string(nil), rec.Players...)
	}
	return out
}
