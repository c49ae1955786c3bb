package outbox

import (
	"context"
	"log/slog"
	"time"
)

// Publisher is satisfied by messaging.Producer.
type Publisher interface {
	Publish(ctx context.Context, topic, key string, payload []byte) error
}

// Pending is the Store surface the relay needs; split out so tests can fake
// the storage side.
type Pending interface {
	FetchPending(ctx context.Context, limit int) ([]Record, error)
	MarkSent(ctx context.Context, id int64) error
}

// Relay drains the outbox on an interval. A row is marked sent only after the
// broker accepted it, so delivery is at-least-once: a crash between publish
// and mark redelivers, and consumers are expected to be idempotent.
type Relay struct {
	store     Pending
	publisher Publisher
	logger    *slog.Logger
	interval  time.Duration
	batchSize int
}

func NewRelay(store Pending, publisher Publisher, logger *slog.Logger, interval time.Duration, batchSize int) *Relay {
	return &Relay{
		store:     store,
		publisher: publisher,
		logger:    logger,
		interval:  interval,
		batchSize: batchSize,
	}
}

func (r *Relay) Run(ctx context.Context) error {
	ticker := time.NewTicker(r.interval)
	defer ticker.Stop()

	for {
		if err := r.Drain(ctx); err != nil {
			r.logger.Error("outbox drain failed", "error", err)
		}

		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}

// Drain publishes one batch of pending rows. A publish failure stops the
// batch so rows keep their insertion order on the next attempt.
func (r *Relay) Drain(ctx context.Context) error {
	records, err := r.store.FetchPending(ctx, r.batchSize)
	if err != nil {
		return err
	}

	for _, rec := range records {
		if err := r.publisher.Publish(ctx, rec.Topic, rec.Key, rec.Payload); err != nil {
			r.logger.Error("failed to publish outbox event",
				"error", err, "event_id", rec.EventID, "topic", rec.Topic, "key", rec.Key)
			return err
		}

		if err := r.store.MarkSent(ctx, rec.ID); err != nil {
			return err
		}

		r.logger.Info("outbox event published", "event_id", rec.EventID, "topic", rec.Topic, "key", rec.Key)
	}

	return nil
}
