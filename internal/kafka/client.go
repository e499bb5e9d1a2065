// Package kafka provides an iap.Queue backed by Kafka.
package kafka

import (
	"context"
	"time"

	kafkaLib "github.com/segmentio/kafka-go"
)

// defaultGroupID is the consumer group shared by every worker.
const defaultGroupID = "iap.workers"

const writerBatchTimeout = 10 * time.Millisecond

type reader interface {
	FetchMessage(ctx context.Context) (kafkaLib.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafkaLib.Message) error
	Close() error
}

type writer interface {
	WriteMessages(ctx context.Context, msgs ...kafkaLib.Message) error
	Close() error
}

func newReader(brokers []string, groupID, topic string) reader {
	return kafkaLib.NewReader(kafkaLib.ReaderConfig{
		Brokers:  brokers,
		GroupID:  groupID,
		Topic:    topic,
		MinBytes: 10e3,
		MaxBytes: 10e6,
		// Offsets are committed explicitly once a message is handled.
		CommitInterval: 0,
	})
}

func newWriter(brokers []string) writer {
	return &kafkaLib.Writer{
		Addr: kafkaLib.TCP(brokers...),
		// Compatibility with Kafka sarama client.
		Balancer:               &kafkaLib.Hash{},
		RequiredAcks:           kafkaLib.RequireAll,
		AllowAutoTopicCreation: true,
		// Publish writes one message at a time.
		BatchSize:    1,
		BatchTimeout: writerBatchTimeout,
	}
}
