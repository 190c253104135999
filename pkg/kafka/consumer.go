package kafka

import (
	"context"

	kafkago "github.com/segmentio/kafka-go"
)

// Consumer wraps kafka-go Reader for group-based consumption of storage
// notification topics.
type Consumer struct {
	reader *kafkago.Reader
}

type ConsumerConfig struct {
	Brokers  []string
	Topic    string
	GroupID  string
	MinBytes int
	MaxBytes int
}

// NewConsumer constructs a Consumer from the given configuration.
func NewConsumer(cfg ConsumerConfig) *Consumer {
	return &Consumer{
		reader: kafkago.NewReader(kafkago.ReaderConfig{
			Brokers:  cfg.Brokers,
			Topic:    cfg.Topic,
			GroupID:  cfg.GroupID,
			MinBytes: cfg.MinBytes,
			MaxBytes: cfg.MaxBytes,
		}),
	}
}

// Fetch blocks until a message is available or the context is done. The
// message must be committed explicitly once handled.
func (c *Consumer) Fetch(ctx context.Context) (kafkago.Message, error) {
	return c.reader.FetchMessage(ctx)
}

// Commit acknowledges the given messages against the consumer group.
func (c *Consumer) Commit(ctx context.Context, msgs ...kafkago.Message) error {
	return c.reader.CommitMessages(ctx, msgs...)
}

// Close releases the underlying reader.
func (c *Consumer) Close() error {
	return c.reader.Close()
}
