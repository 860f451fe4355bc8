package store

import (
	"context"
	"fmt"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// Cursor persists the position of the last observed event.
//
// Load reports ok=false when no position has ever been stored. Advance never
// moves the position backwards: a value at or below the stored one is a no-op.
// A write that cannot be committed returns *PersistenceError and leaves the
// stored value untouched.
type Cursor interface {
	Name() string
	Load(ctx context.Context) (pos model.Position, ok bool, err error)
	Advance(ctx context.Context, pos model.Position) error
	Close() error
}

// PersistenceError is returned when the cursor could not be written.
type PersistenceError struct {
	Backend string
	Pos     model.Position
	Err     error
}

func (e *PersistenceError) Error() string {
	return fmt.Sprintf("%s cursor: persist %d: %v", e.Backend, e.Pos, e.Err)
}

func (e *PersistenceError) Unwrap() error { return e.Err }
