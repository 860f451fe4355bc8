// Package gate is the only path from a rendered announcement to a sink.
package gate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/filipviz/juicebox-tweeter/internal/auth"
	"github.com/filipviz/juicebox-tweeter/internal/model"
	"github.com/filipviz/juicebox-tweeter/internal/sink"
)

// ErrNotAuthorized is returned without contacting the sink when no
// credential is held.
var ErrNotAuthorized = errors.New("not authorized to publish")

// DeliveryFailedError wraps a failed delivery attempt.
type DeliveryFailedError struct {
	EventID string
	Sink    string
	Err     error
}

func (e *DeliveryFailedError) Error() string {
	return fmt.Sprintf("deliver %s via %s: %v", e.EventID, e.Sink, e.Err)
}

func (e *DeliveryFailedError) Unwrap() error { return e.Err }

const defaultTimeout = 15 * time.Second

type Gate struct {
	auth    auth.Authorizer
	sink    sink.Sink
	timeout time.Duration
}

func New(a auth.Authorizer, s sink.Sink, timeout time.Duration) *Gate {
	if timeout <= 0 {
		timeout = defaultTimeout
	}
	return &Gate{auth: a, sink: s, timeout: timeout}
}

// Publish makes at most one delivery attempt for a. It never retries.
func (g *Gate) Publish(ctx context.Context, a model.Announcement) (model.Receipt, error) {
	if !g.auth.IsAuthorized() {
		return model.Receipt{}, ErrNotAuthorized
	}
	ctx, cancel := context.WithTimeout(ctx, g.timeout)
	defer cancel()
	rec, err := g.sink.Deliver(ctx, a)
	if err != nil {
		return model.Receipt{}, &DeliveryFailedError{EventID: a.EventID, Sink: g.sink.Name(), Err: err}
	}
	return rec, nil
}
