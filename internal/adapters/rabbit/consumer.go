package rabbit

import (
	"context"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"

	"github.com/robertarktes/showtime-booking/internal/observability"
)

// Handler processes one delivery. A nil error acks it; an error requeues it
// once and drops it on redelivery.
type Handler func(ctx context.Context, d amqp.Delivery) error

type Consumer struct {
	ch     *amqp.Channel
	queue  string
	logger observability.Logger
}

// NewConsumer declares a durable queue bound to the booking events.
func NewConsumer(conn *amqp.Connection, queue string, logger observability.Logger) (*Consumer, error) {
	if queue == "" {
		return nil, errors.New("queue name is required")
	}
	ch, err := conn.Channel()
	if err != nil {
		return nil, err
	}
	if err := declareExchange(ch); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if _, err := ch.QueueDeclare(queue, true, false, false, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.QueueBind(queue, "booking.*", Exchange, false, nil); err != nil {
		_ = ch.Close()
		return nil, err
	}
	if err := ch.Qos(16, 0, false); err != nil {
		_ = ch.Close()
		return nil, err
	}
	return &Consumer{ch: ch, queue: queue, logger: logger}, nil
}

func (c *Consumer) Consume(ctx context.Context) (<-chan amqp.Delivery, error) {
	return c.ch.ConsumeWithContext(ctx, c.queue, "", false, false, false, false, nil)
}

// Run dispatches deliveries to h until ctx is done or the channel closes.
func (c *Consumer) Run(ctx context.Context, h Handler) error {
	deliveries, err := c.Consume(ctx)
	if err != nil {
		return err
	}
	for {
		select {
		case <-ctx.Done():
			return nil
		case d, ok := <-deliveries:
			if !ok {
				return errors.New("delivery channel closed")
			}
			c.dispatch(ctx, h, d)
		}
	}
}

func (c *Consumer) dispatch(ctx context.Context, h Handler, d amqp.Delivery) {
	if err := h(ctx, d); err != nil {
		c.logger.WithFields(map[string]interface{}{
			"message_id":  d.MessageId,
			"routing_key": d.RoutingKey,
			"redelivered": d.Redelivered,
		}).WithError(err).Warn("handler failed")
		_ = d.Nack(false, !d.Redelivered)
		return
	}
	_ = d.Ack(false)
}

func (c *Consumer) Close() error {
	return c.ch.Close()
}
