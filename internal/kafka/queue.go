package kafka

import (
	"context"
	"fmt"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	kafkaLib "github.com/segmentio/kafka-go"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/queue"
)

// Queue publishes to and consumes from Kafka topics. Offsets are
// committed only after a message handler succeeds.
type Queue struct {
	logger    log.Logger
	groupID   string
	processor *queue.Processor
	writer    writer
	newReader func(topic string) reader
}

// Publish writes a message to a topic, waiting for every in-sync
// replica to acknowledge it.
func (q *Queue) Publish(ctx context.Context, topic string, msg *iap.Message) error {
	b, err := queue.Encode(msg)
	if err != nil {
		return err
	}

	headers := make([]kafkaLib.Header, 0, len(msg.Headers))
	for k, v := range msg.Headers {
		headers = append(headers, kafkaLib.Header{Key: k, Value: []byte(v)})
	}

	err = q.writer.WriteMessages(ctx, kafkaLib.Message{
		Topic:   topic,
		Key:     []byte(msg.ID),
		Value:   b,
		Headers: headers,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}
	return nil
}

// Consume reads a topic as part of the configured consumer group until
// ctx is cancelled or the reader fails.
func (q *Queue) Consume(ctx context.Context, topic string, handler iap.MessageHandler) error {
	r := q.newReader(topic)
	defer r.Close()

	for {
		kafkaMsg, err := r.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return fmt.Errorf("failed to read from %s: %w", topic, err)
		}

		msg, err := queue.Decode(kafkaMsg.Value)
		if err != nil {
			level.Error(q.logger).Log(
				"message", "dropping undecodable message",
				"topic", topic,
				"partition", kafkaMsg.Partition,
				"offset", kafkaMsg.Offset,
				"error", err,
			)
		} else if err = q.processor.Process(ctx, msg, handler); err != nil {
			return err
		}

		if err = r.CommitMessages(ctx, kafkaMsg); err != nil {
			return fmt.Errorf("failed to commit offset %d: %w", kafkaMsg.Offset, err)
		}
	}
}

// Close flushes and closes the writer.
func (q *Queue) Close() error {
	return q.writer.Close()
}
