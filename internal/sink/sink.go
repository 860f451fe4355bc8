// Package sink delivers rendered announcements to a broadcast channel.
package sink

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
	"golang.org/x/oauth2"

	"github.com/filipviz/juicebox-tweeter/internal/config"
	"github.com/filipviz/juicebox-tweeter/internal/model"
)

// Sink is the minimal interface all sinks must implement. Deliver makes
// exactly one attempt.
type Sink interface {
	Name() string
	Deliver(ctx context.Context, a model.Announcement) (model.Receipt, error)
	Close() error
}

// envelope is the payload for message-bus sinks.
type envelope struct {
	ID        string    `json:"id"`
	EventID   string    `json:"event_id"`
	Position  uint64    `json:"position"`
	Text      string    `json:"text"`
	Width     int       `json:"width"`
	Truncated bool      `json:"truncated"`
	CreatedAt time.Time `json:"created_at"`
}

func newEnvelope(a model.Announcement) envelope {
	return envelope{
		ID:        uuid.NewString(),
		EventID:   a.EventID,
		Position:  uint64(a.Position),
		Text:      a.Text,
		Width:     a.Width,
		Truncated: a.Truncated,
		CreatedAt: time.Now().UTC(),
	}
}

func (e envelope) marshal() ([]byte, error) { return json.Marshal(e) }

// NewFromConfig builds the configured sink. tokens is used by the twitter sink.
func NewFromConfig(c config.Sink, tokens oauth2.TokenSource) (Sink, error) {
	switch c.Type {
	case "twitter":
		return NewTwitter(c.Twitter, tokens), nil
	case "nats":
		return NewNATS(c.NATS)
	case "kafka":
		return NewKafka(DefaultKafkaConfig(c.Kafka.Brokers, c.Kafka.Topic))
	case "stdout":
		return NewWriter(nil), nil
	default:
		return nil, fmt.Errorf("unknown sink type: %s", c.Type)
	}
}
