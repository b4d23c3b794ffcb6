package biz

import (
	"context"
	"time"

	"github.com/go-kratos/kratos/v2/log"
)

// scheduledBatchSize bounds how many due messages one cron tick dispatches.
const scheduledBatchSize = 100

// ScheduledDispatcher sends messages whose scheduled_at has passed. It runs
// from the cron server; each message goes through the same guarded dispatch
// path as immediate sends, so an open circuit fails the batch items fast
// instead of hammering the provider.
type ScheduledDispatcher struct {
	messages  MessageRepo
	messenger *MessengerUseCase
	logger    *log.Helper
}

// NewScheduledDispatcher creates the scheduled dispatcher.
func NewScheduledDispatcher(messages MessageRepo, messenger *MessengerUseCase, logger log.Logger) *ScheduledDispatcher {
	return &ScheduledDispatcher{
		messages:  messages,
		messenger: messenger,
		logger:    log.NewHelper(logger),
	}
}

// RunOnce dispatches all currently due messages. One message's failure does
// not abort the rest. Returns the number of successfully sent messages.
func (d *ScheduledDispatcher) RunOnce(ctx context.Context) (int, error) {
	due, err := d.messages.ListDueScheduled(ctx, time.Now(), scheduledBatchSize)
	if err != nil {
		return 0, err
	}
	if len(due) == 0 {
		return 0, nil
	}

	sent := 0
	for i, msg := range due {
		if _, err := d.messenger.DispatchPending(ctx, msg); err != nil {
			d.logger.Warnw("scheduled dispatch failed",
				"message_id", msg.ID,
				"error", err)
			if IsCircuitOpen(err) {
				// Everything behind us would be rejected too; leave it
				// pending for the next tick.
				d.logger.Warnw("circuit open, deferring remaining scheduled messages",
					"remaining", len(due)-i-1)
				break
			}
			continue
		}
		sent++
	}

	d.logger.Infow("scheduled dispatch completed", "due", len(due), "sent", sent)
	return sent, nil
}
