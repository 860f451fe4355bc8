package sink

import (
	"context"
	"fmt"

	"github.com/segmentio/kafka-go"

	"github.com/filipviz/juicebox-tweeter/internal/model"
)

const DefaultKafkaBatchBytes = 1 << 20 // 1MB

type KafkaConfig struct {
	Brokers          []string
	Topic            string
	BatchBytes       int64
	RequiredAcks     kafka.RequiredAcks
	AutoCreateTopics bool
}

func DefaultKafkaConfig(brokers []string, topic string) KafkaConfig {
	return KafkaConfig{
		Brokers:          brokers,
		Topic:            topic,
		BatchBytes:       DefaultKafkaBatchBytes,
		RequiredAcks:     kafka.RequireAll,
		AutoCreateTopics: true,
	}
}

// KafkaSink writes one message per announcement, keyed by event id.
type KafkaSink struct {
	writer *kafka.Writer
}

func NewKafka(config KafkaConfig) (*KafkaSink, error) {
	if len(config.Brokers) == 0 {
		return nil, fmt.Errorf("kafka sink requires at least one broker address")
	}
	if config.Topic == "" {
		return nil, fmt.Errorf("kafka sink requires a topic")
	}
	if config.BatchBytes == 0 {
		config.BatchBytes = DefaultKafkaBatchBytes
	}
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(config.Brokers...),
		Topic:                  config.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		BatchBytes:             config.BatchBytes,
		RequiredAcks:           config.RequiredAcks,
		Async:                  false,
		AllowAutoTopicCreation: config.AutoCreateTopics,
	}
	return &KafkaSink{writer: writer}, nil
}

func (k *KafkaSink) Name() string { return "kafka" }

func (k *KafkaSink) Deliver(ctx context.Context, a model.Announcement) (model.Receipt, error) {
	env := newEnvelope(a)
	data, err := env.marshal()
	if err != nil {
		return model.Receipt{}, err
	}
	err = k.writer.WriteMessages(ctx, kafka.Message{
		Key:     []byte(a.EventID),
		Value:   data,
		Headers: []kafka.Header{{Key: "id", Value: []byte(env.ID)}},
	})
	if err != nil {
		return model.Receipt{}, fmt.Errorf("failed to write to %s: %w", k.writer.Topic, err)
	}
	return model.Receipt{ID: env.ID, Sink: k.Name(), At: env.CreatedAt}, nil
}

func (k *KafkaSink) Close() error { return k.writer.Close() }
