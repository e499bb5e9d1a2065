package rabbitmq

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/fmitra/iap"
	"github.com/fmitra/iap/internal/queue"
)

// ErrNacked is returned when the broker refuses a published message.
var ErrNacked = errors.New("message was nacked by broker")

// confirmBuffer holds confirms that arrive after their Publish gave up
// waiting, until the next Publish discards them.
const confirmBuffer = 64

// Queue publishes to and consumes from durable RabbitMQ queues, one
// queue per topic.
type Queue struct {
	logger    log.Logger
	processor *queue.Processor
	conn      connection

	// mu serializes publishing so confirmations arrive in order.
	mu       sync.Mutex
	pub      channel
	confirms chan amqp.Confirmation
	declared map[string]bool
}

func declare(ch channel, topic string) error {
	_, err := ch.QueueDeclare(topic, true, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to declare queue %s: %w", topic, err)
	}
	return nil
}

// Publish sends a persistent message to the topic's queue and waits
// for the broker to confirm it.
func (q *Queue) Publish(ctx context.Context, topic string, msg *iap.Message) error {
	b, err := queue.Encode(msg)
	if err != nil {
		return err
	}

	headers := amqp.Table{}
	for k, v := range msg.Headers {
		headers[k] = v
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	if !q.declared[topic] {
		if err = declare(q.pub, topic); err != nil {
			return err
		}
		q.declared[topic] = true
	}

	tag := q.pub.GetNextPublishSeqNo()
	err = q.pub.PublishWithContext(ctx, "", topic, false, false, amqp.Publishing{
		ContentType:  "application/json",
		DeliveryMode: amqp.Persistent,
		MessageId:    msg.ID,
		Headers:      headers,
		Body:         b,
	})
	if err != nil {
		return fmt.Errorf("failed to publish to %s: %w", topic, err)
	}

	return q.awaitConfirm(ctx, tag)
}

// awaitConfirm waits for the confirm of delivery tag. Confirms arrive in
// tag order, so lower tags belong to earlier publishes that stopped
// waiting and are discarded.
func (q *Queue) awaitConfirm(ctx context.Context, tag uint64) error {
	for {
		select {
		case confirm, ok := <-q.confirms:
			if !ok {
				return errors.New("channel closed before publish was confirmed")
			}
			if confirm.DeliveryTag < tag {
				level.Debug(q.logger).Log(
					"message", "discarding late publish confirm",
					"delivery_tag", confirm.DeliveryTag,
					"ack", confirm.Ack,
				)
				continue
			}
			if confirm.DeliveryTag > tag {
				return fmt.Errorf("confirm for delivery tag %d was skipped", tag)
			}
			if !confirm.Ack {
				return ErrNacked
			}
			return nil
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// Consume delivers messages from the topic's queue one at a time,
// acknowledging each after the handler succeeds.
func (q *Queue) Consume(ctx context.Context, topic string, handler iap.MessageHandler) error {
	ch, err := q.conn.channel()
	if err != nil {
		return fmt.Errorf("failed to open channel: %w", err)
	}
	defer ch.Close()

	if err = declare(ch, topic); err != nil {
		return err
	}
	if err = ch.Qos(1, 0, false); err != nil {
		return fmt.Errorf("failed to set prefetch: %w", err)
	}

	deliveries, err := ch.Consume(topic, "", false, false, false, false, nil)
	if err != nil {
		return fmt.Errorf("failed to consume %s: %w", topic, err)
	}

	for {
		var d amqp.Delivery
		var ok bool
		select {
		case <-ctx.Done():
			return ctx.Err()
		case d, ok = <-deliveries:
			if !ok {
				return fmt.Errorf("delivery channel for %s closed", topic)
			}
		}

		msg, err := queue.Decode(d.Body)
		if err != nil {
			level.Error(q.logger).Log(
				"message", "dropping undecodable message",
				"topic", topic,
				"delivery_tag", d.DeliveryTag,
				"error", err,
			)
		} else if err = q.processor.Process(ctx, msg, handler); err != nil {
			if nackErr := d.Nack(false, true); nackErr != nil {
				level.Warn(q.logger).Log(
					"message", "failed to requeue message",
					"message_id", msg.ID,
					"error", nackErr,
				)
			}
			return err
		}

		if err = d.Ack(false); err != nil {
			return fmt.Errorf("failed to ack delivery %d: %w", d.DeliveryTag, err)
		}
	}
}

// Close closes the publishing channel and the connection.
func (q *Queue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if err := q.pub.Close(); err != nil {
		level.Warn(q.logger).Log("message", "failed to close channel", "error", err)
	}
	return q.conn.Close()
}
