package store

import (
	"context"
	"sync"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// MemoryCursor keeps the position in process memory only.
type MemoryCursor struct {
	mu  sync.Mutex
	pos model.Position
	set bool
	// FailWith, when non-nil, is returned from Advance as a persistence failure.
	FailWith error
}

func NewMemoryCursor() *MemoryCursor { return &MemoryCursor{} }

func (m *MemoryCursor) Name() string { return "memory" }

func (m *MemoryCursor) Load(context.Context) (model.Position, bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.pos, m.set, nil
}

func (m *MemoryCursor) Advance(_ context.Context, pos model.Position) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.set && pos <= m.pos {
		return nil
	}
	if m.FailWith != nil {
		return &PersistenceError{Backend: m.Name(), Pos: pos, Err: m.FailWith}
	}
	m.pos, m.set = pos, true
	return nil
}

func (m *MemoryCursor) Close() error { return nil }
