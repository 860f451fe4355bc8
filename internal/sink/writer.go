package sink

import (
	"context"
	"fmt"
	"io"
	"os"
	"sync"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// WriterSink prints announcements, for dry runs.
type WriterSink struct {
	mu sync.Mutex
	w  io.Writer
}

// NewWriter writes to w, or stdout when w is nil.
func NewWriter(w io.Writer) *WriterSink {
	if w == nil {
		w = os.Stdout
	}
	return &WriterSink{w: w}
}

func (s *WriterSink) Name() string { return "stdout" }

func (s *WriterSink) Deliver(_ context.Context, a model.Announcement) (model.Receipt, error) {
	env := newEnvelope(a)
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := fmt.Fprintf(s.w, "---- %s (%d/280)\n%s\n", a.EventID, a.Width, a.Text); err != nil {
		return model.Receipt{}, err
	}
	return model.Receipt{ID: env.ID, Sink: s.Name(), At: env.CreatedAt}, nil
}

func (s *WriterSink) Close() error { return nil }
