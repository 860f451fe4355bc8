package store

import (
	"fmt"

	"github.com/filipviz/juicebox-tweeter/internal/config"
)

// Open builds the cursor backend named in cfg.
func Open(cfg config.Cursor) (Cursor, error) {
	switch cfg.Backend {
	case "file", "":
		return NewFileCursor(cfg.Path), nil
	case "pebble":
		return OpenPebbleCursor(cfg.Path, cfg.Name)
	case "redis":
		return NewRedisCursor(cfg.Redis, cfg.Name)
	case "memory":
		return NewMemoryCursor(), nil
	default:
		return nil, fmt.Errorf("unknown cursor backend: %s", cfg.Backend)
	}
}
