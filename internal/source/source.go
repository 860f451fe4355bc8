package source

import (
	"context"
	"fmt"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// Source reads the project-creation log.
//
// FetchSince returns events with position >= pos in ascending position order.
// The bound is inclusive; callers drop what they have already handled.
// Head returns the position a fresh deployment should start from.
type Source interface {
	Name() string
	FetchSince(ctx context.Context, pos model.Position) ([]model.RawEvent, error)
	Head(ctx context.Context) (model.Position, error)
}

// UnavailableError means the source could not be read this cycle.
type UnavailableError struct {
	Source string
	Err    error
}

func (e *UnavailableError) Error() string {
	return fmt.Sprintf("source %s unavailable: %v", e.Source, e.Err)
}

func (e *UnavailableError) Unwrap() error { return e.Err }

func unavailable(name string, err error) error {
	return &UnavailableError{Source: name, Err: err}
}

func NewFromConfig(c config.Source) (Source, error) {
	switch c.Type {
	case "subgraph":
		return NewSubgraph(c.Subgraph), nil
	case "rpc":
		return NewRPC(c.RPC), nil
	default:
		return nil, fmt.Errorf("unknown source type: %s", c.Type)
	}
}
