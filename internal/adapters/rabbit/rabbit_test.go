package rabbit_test

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/robertarktes/showtime-booking/internal/adapters/rabbit"
	"github.com/robertarktes/showtime-booking/internal/observability"
)

func startRabbit(t *testing.T) *amqp.Connection {
	t.Helper()
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "rabbitmq:3.13-alpine",
			ExposedPorts: []string{"5672/tcp"},
			WaitingFor:   wait.ForLog("Server startup complete").WithStartupTimeout(2 * time.Minute),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	host, err := container.Host(ctx)
	require.NoError(t, err)
	port, err := container.MappedPort(ctx, "5672")
	require.NoError(t, err)

	conn, err := amqp.Dial("amqp://guest:guest@" + host + ":" + port.Port() + "/")
	require.NoError(t, err)
	t.Cleanup(func() { _ = conn.Close() })
	return conn
}

func TestPublishAndConsume(t *testing.T) {
	conn := startRabbit(t)
	logger := observability.NopLogger()

	consumer, err := rabbit.NewConsumer(conn, "audit.test", logger)
	require.NoError(t, err)
	defer consumer.Close()
	publisher, err := rabbit.NewPublisher(conn)
	require.NoError(t, err)
	defer publisher.Close()

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	for _, key := range []string{"booking.held", "payment.settled", "booking.confirmed"} {
		require.NoError(t, publisher.Publish(ctx, key, amqp.Publishing{
			MessageId: key,
			Body:      []byte(`{}`),
		}))
	}

	got := make(chan string, 4)
	attempts := 0
	go func() {
		_ = consumer.Run(ctx, func(_ context.Context, d amqp.Delivery) error {
			if d.MessageId == "booking.confirmed" && attempts == 0 {
				attempts++
				return errors.New("transient")
			}
			got <- d.MessageId
			return nil
		})
	}()

	var ids []string
	for len(ids) < 2 {
		select {
		case id := <-got:
			ids = append(ids, id)
		case <-ctx.Done():
			t.Fatalf("timed out, got %v", ids)
		}
	}
	assert.ElementsMatch(t, []string{"booking.held", "booking.confirmed"}, ids)
}

func TestConsumerRequiresQueue(t *testing.T) {
	_, err := rabbit.NewConsumer(nil, "", observability.NopLogger())
	assert.Error(t, err)
}
