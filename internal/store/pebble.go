package store

import (
	"context"
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

const prefixCursor = "/cursor/" // /cursor/{name} -> uint64 little-endian

// PebbleCursor stores the position in a local Pebble database.
type PebbleCursor struct {
	db   *pebble.DB
	name string
	key  []byte
	mu   sync.Mutex
}

// OpenPebbleCursor opens (or creates) the database in dir.
func OpenPebbleCursor(dir, name string) (*PebbleCursor, error) {
	db, err := pebble.Open(dir, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("failed to open cursor db at %s: %w", dir, err)
	}
	return &PebbleCursor{db: db, name: name, key: []byte(prefixCursor + name)}, nil
}

func (p *PebbleCursor) Name() string { return "pebble" }

func (p *PebbleCursor) Load(context.Context) (model.Position, bool, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.get()
}

func (p *PebbleCursor) get() (model.Position, bool, error) {
	val, closer, err := p.db.Get(p.key)
	if err == pebble.ErrNotFound {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	defer closer.Close()
	if len(val) != 8 {
		return 0, false, fmt.Errorf("invalid cursor value length: %d", len(val))
	}
	return model.Position(binary.LittleEndian.Uint64(val)), true, nil
}

func (p *PebbleCursor) Advance(_ context.Context, pos model.Position) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	cur, ok, err := p.get()
	if err != nil {
		return &PersistenceError{Backend: p.Name(), Pos: pos, Err: err}
	}
	if ok && pos <= cur {
		return nil
	}
	var buf [8]byte
	binary.LittleEndian.PutUint64(buf[:], uint64(pos))
	if err := p.db.Set(p.key, buf[:], pebble.Sync); err != nil {
		return &PersistenceError{Backend: p.Name(), Pos: pos, Err: err}
	}
	return nil
}

func (p *PebbleCursor) Close() error { return p.db.Close() }
