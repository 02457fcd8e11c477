package store

import (
	"context"
	"sync"
	"time"

	"maskid/internal/domain"
)

// MemoryStore is an in-process persona database.
//
// WithWriteAccess works on a deep copy and publishes it only when the unit of
// work returns nil. Units of work are serialized and must not call
// WithWriteAccess themselves.
type MemoryStore struct {
	reader

	writeMu sync.Mutex

	mu sync.RWMutex
	st *state

	now func() time.Time
}

// NewMemoryStore returns an empty store.
func NewMemoryStore(opts ...Option) *MemoryStore {
	o := buildOptions(opts)
	s := &MemoryStore{st: newState(), now: o.now}
	s.reader = reader{load: s.snapshot}
	return s
}

func (s *MemoryStore) snapshot() (*state, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.st, nil
}

// WithWriteAccess runs fn against a private copy and commits it if fn succeeds.
func (s *MemoryStore) WithWriteAccess(ctx context.Context, fn func(ctx context.Context, tx domain.PersonaTx) error) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	base, _ := s.snapshot()
	work := base.clone()
	if err := fn(ctx, newStateTx(work, s.now)); err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	s.st = work
	s.mu.Unlock()
	return nil
}

// Compile-time assertion that MemoryStore implements domain.PersonaStore.
var _ domain.PersonaStore = (*MemoryStore)(nil)
