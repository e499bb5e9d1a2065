// Package queue provides the delivery loop shared by iap.Queue backends.
package queue

import (
	"context"
	"errors"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/go-kit/kit/log"
	"github.com/go-kit/kit/log/level"

	"github.com/fmitra/iap"
)

// Processor passes consumed messages to a handler, retrying failures
// in place until the handler succeeds.
type Processor struct {
	logger     log.Logger
	newBackOff func() backoff.BackOff
}

// Process runs handler for msg. It returns nil once the message may be
// acknowledged: either the handler succeeded or it failed with an error
// wrapped by backoff.Permanent, in which case the message is dropped.
// Any other return means the message must not be acknowledged.
func (p *Processor) Process(ctx context.Context, msg *iap.Message, handler iap.MessageHandler) error {
	var dropped error
	operation := func() error {
		err := handler(ctx, msg)
		var permanent *backoff.PermanentError
		if errors.As(err, &permanent) {
			dropped = permanent.Err
			return nil
		}
		return err
	}

	notify := func(err error, next time.Duration) {
		level.Warn(p.logger).Log(
			"message", "message handler failed, retrying",
			"message_id", msg.ID,
			"retry_in", next,
			"error", err,
		)
	}

	err := backoff.RetryNotify(operation, backoff.WithContext(p.newBackOff(), ctx), notify)
	if err != nil {
		return err
	}

	if dropped != nil {
		level.Error(p.logger).Log(
			"message", "dropping message",
			"message_id", msg.ID,
			"error", dropped,
		)
	}

	return nil
}

// Drop marks err as permanent so the message is acknowledged without
// further retries.
func Drop(err error) error {
	return backoff.Permanent(err)
}
