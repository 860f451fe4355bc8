package sink

import (
	"context"
	"fmt"
	"time"

	"github.com/nats-io/nats.go"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// NATSSink publishes announcements as JSON on a core NATS subject.
type NATSSink struct {
	nc      *nats.Conn
	subject string
}

func NewNATS(cfg config.NATSSink) (*NATSSink, error) {
	if cfg.URL == "" {
		return nil, fmt.Errorf("nats sink requires url")
	}
	nc, err := nats.Connect(cfg.URL,
		nats.Name("juicebox-tweeter"),
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(-1),
		nats.ReconnectWait(time.Second),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}
	return &NATSSink{nc: nc, subject: cfg.Subject}, nil
}

func (n *NATSSink) Name() string { return "nats" }

// Deliver publishes and flushes, so a returned receipt means the server
// has the message.
func (n *NATSSink) Deliver(ctx context.Context, a model.Announcement) (model.Receipt, error) {
	env := newEnvelope(a)
	data, err := env.marshal()
	if err != nil {
		return model.Receipt{}, err
	}
	msg := &nats.Msg{
		Subject: n.subject,
		Data:    data,
		Header:  nats.Header{"event_id": []string{a.EventID}, nats.MsgIdHdr: []string{env.ID}},
	}
	if err := n.nc.PublishMsg(msg); err != nil {
		return model.Receipt{}, fmt.Errorf("failed to publish to %s: %w", n.subject, err)
	}
	if err := n.nc.FlushWithContext(ctx); err != nil {
		return model.Receipt{}, fmt.Errorf("flush %s: %w", n.subject, err)
	}
	return model.Receipt{ID: env.ID, Sink: n.Name(), At: env.CreatedAt}, nil
}

func (n *NATSSink) Close() error {
	if n.nc != nil {
		return n.nc.Drain()
	}
	return nil
}
