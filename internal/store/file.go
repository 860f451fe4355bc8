package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

type fileState struct {
	Position  uint64    `json:"position"`
	UpdatedAt time.Time `json:"updated_at"`
}

// FileCursor stores the position as JSON in a single file. Writes go to a
// temp file in the same directory which is then renamed over the target.
type FileCursor struct {
	path string

	mu     sync.Mutex
	pos    model.Position
	set    bool
	loaded bool
}

func NewFileCursor(path string) *FileCursor {
	return &FileCursor{path: path}
}

func (f *FileCursor) Name() string { return "file" }

func (f *FileCursor) Load(context.Context) (model.Position, bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return 0, false, err
	}
	return f.pos, f.set, nil
}

func (f *FileCursor) loadLocked() error {
	if f.loaded {
		return nil
	}
	b, err := os.ReadFile(f.path)
	if errors.Is(err, fs.ErrNotExist) {
		f.loaded = true
		return nil
	}
	if err != nil {
		return fmt.Errorf("read cursor %s: %w", f.path, err)
	}
	pos, err := parseFileState(b)
	if err != nil {
		return fmt.Errorf("parse cursor %s: %w", f.path, err)
	}
	f.pos, f.set, f.loaded = pos, true, true
	return nil
}

// parseFileState accepts the JSON state or a bare integer, the format older
// deployments wrote.
func parseFileState(b []byte) (model.Position, error) {
	s := strings.TrimSpace(string(b))
	if s == "" {
		return 0, errors.New("empty file")
	}
	if n, err := strconv.ParseUint(s, 10, 64); err == nil {
		return model.Position(n), nil
	}
	var st fileState
	if err := json.Unmarshal([]byte(s), &st); err != nil {
		return 0, err
	}
	return model.Position(st.Position), nil
}

func (f *FileCursor) Advance(_ context.Context, pos model.Position) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.loadLocked(); err != nil {
		return &PersistenceError{Backend: f.Name(), Pos: pos, Err: err}
	}
	if f.set && pos <= f.pos {
		return nil
	}
	b, err := json.MarshalIndent(fileState{Position: uint64(pos), UpdatedAt: time.Now().UTC()}, "", " ")
	if err != nil {
		return &PersistenceError{Backend: f.Name(), Pos: pos, Err: err}
	}
	if err := writeAtomic(f.path, b); err != nil {
		return &PersistenceError{Backend: f.Name(), Pos: pos, Err: err}
	}
	f.pos, f.set = pos, true
	return nil
}

func writeAtomic(path string, b []byte) error {
	dir := filepath.Dir(path)
	tmp, err := os.CreateTemp(dir, "."+filepath.Base(path)+".*")
	if err != nil {
		return err
	}
	name := tmp.Name()
	defer os.Remove(name)
	if _, err := tmp.Write(b); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Sync(); err != nil {
		tmp.Close()
		return err
	}
	if err := tmp.Close(); err != nil {
		return err
	}
	if err := os.Chmod(name, 0o644); err != nil {
		return err
	}
	if err := os.Rename(name, path); err != nil {
		return err
	}
	return syncDir(dir)
}

// syncDir makes a rename in dir durable.
func syncDir(dir string) error {
	d, err := os.Open(dir)
	if err != nil {
		return err
	}
	if err := d.Sync(); err != nil {
		d.Close()
		return fmt.Errorf("sync %s: %w", dir, err)
	}
	return d.Close()
}

func (f *FileCursor) Close() error { return nil }
