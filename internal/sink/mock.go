package sink

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// MockSink records deliveries for tests.
type MockSink struct {
	mu        sync.Mutex
	Delivered []model.Announcement
	// DeliverErr, when set, fails every delivery. FailFor fails only the
	// listed event ids.
	DeliverErr error
	FailFor    map[string]error
	// Block, when non-nil, makes Deliver wait for it or for ctx.
	Block chan struct{}
}

func (m *MockSink) Name() string { return "mock" }

func (m *MockSink) Deliver(ctx context.Context, a model.Announcement) (model.Receipt, error) {
	if m.Block != nil {
		select {
		case <-m.Block:
		case <-ctx.Done():
			return model.Receipt{}, ctx.Err()
		}
	}
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.DeliverErr != nil {
		return model.Receipt{}, m.DeliverErr
	}
	if err := m.FailFor[a.EventID]; err != nil {
		return model.Receipt{}, err
	}
	m.Delivered = append(m.Delivered, a)
	return model.Receipt{ID: fmt.Sprintf("mock-%d", len(m.Delivered)), Sink: m.Name(), At: time.Now()}, nil
}

// Texts returns the delivered texts in order.
func (m *MockSink) Texts() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, len(m.Delivered))
	for i, a := range m.Delivered {
		out[i] = a.Text
	}
	return out
}

func (m *MockSink) Close() error { return nil }
