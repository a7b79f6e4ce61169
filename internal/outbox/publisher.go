package outbox

import (
	"context"
	"time"

	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/observability"
)

type Record struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	EventType   string
	Payload     []byte
	CreatedAt   time.Time
}

// Store hands out events that were committed but not yet relayed.
type Store interface {
	Unpublished(ctx context.Context, limit int) ([]Record, error)
	MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error
}

type Sink interface {
	Publish(ctx context.Context, key string, msg amqp.Publishing) error
}

type Publisher struct {
	store    Store
	sink     Sink
	clock    clock.Clock
	logger   observability.Logger
	interval time.Duration
	batch    int
}

func NewPublisher(store Store, sink Sink, clk clock.Clock, logger observability.Logger, interval time.Duration, batch int) *Publisher {
	if interval <= 0 {
		interval = 5 * time.Second
	}
	if batch <= 0 {
		batch = 50
	}
	return &Publisher{store: store, sink: sink, clock: clk, logger: logger, interval: interval, batch: batch}
}

func (p *Publisher) Run(ctx context.Context) {
	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := p.Flush(ctx); err != nil && ctx.Err() == nil {
				p.logger.WithError(err).Warn("outbox flush failed")
			}
		}
	}
}

// Flush relays one batch in creation order and returns how many were
// published. A failed publish stops the batch so ordering is kept.
func (p *Publisher) Flush(ctx context.Context) (int, error) {
	records, err := p.store.Unpublished(ctx, p.batch)
	if err != nil {
		return 0, err
	}
	published := 0
	for _, rec := range records {
		msg := amqp.Publishing{
			MessageId:    rec.ID.String(),
			ContentType:  "application/json",
			DeliveryMode: amqp.Persistent,
			Timestamp:    rec.CreatedAt,
			Type:         rec.EventType,
			Body:         rec.Payload,
		}
		if err := p.sink.Publish(ctx, rec.EventType, msg); err != nil {
			observability.RabbitPublishFailures.Inc()
			p.logger.WithFields(map[string]interface{}{
				"event_id":   rec.ID,
				"event_type": rec.EventType,
			}).WithError(err).Warn("publish failed")
			return published, nil
		}
		now := p.clock.Now()
		if err := p.store.MarkPublished(ctx, rec.ID, now); err != nil {
			return published, err
		}
		observability.OutboxLag.Set(now.Sub(rec.CreatedAt).Seconds())
		published++
	}
	return published, nil
}
