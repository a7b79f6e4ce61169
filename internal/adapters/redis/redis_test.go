package redis_test

import (
	"context"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	goredis "github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/wait"

	redisadapter "github.com/robertarktes/showtime-booking/internal/adapters/redis"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/idempotency"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

func startRedis(t *testing.T) *goredis.Client {
	t.Helper()
	if testing.Short() {
		t.Skip("container test")
	}
	testcontainers.SkipIfProviderIsNotHealthy(t)
	ctx := context.Background()

	container, err := testcontainers.GenericContainer(ctx, testcontainers.GenericContainerRequest{
		ContainerRequest: testcontainers.ContainerRequest{
			Image:        "redis:7-alpine",
			ExposedPorts: []string{"6379/tcp"},
			WaitingFor:   wait.ForLog("Ready to accept connections"),
		},
		Started: true,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = container.Terminate(ctx) })

	addr, err := container.Endpoint(ctx, "")
	require.NoError(t, err)
	client := goredis.NewClient(&goredis.Options{Addr: addr})
	t.Cleanup(func() { _ = client.Close() })
	return client
}

type countingStore struct {
	schedule.Store
	layout domain.SeatLayout
	calls  atomic.Int32
}

func (s *countingStore) GetScreenLayout(context.Context, uuid.UUID) (domain.SeatLayout, error) {
	s.calls.Add(1)
	return s.layout, nil
}

func TestLayoutCache(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	layout, err := domain.LayoutFromRows("RR_EE", "PPPPP")
	require.NoError(t, err)

	next := &countingStore{layout: layout}
	cache := redisadapter.NewLayoutCache(next, redisadapter.NewCache(client), time.Minute, observability.NopLogger())
	screen := uuid.New()

	for i := 0; i < 3; i++ {
		got, err := cache.GetScreenLayout(ctx, screen)
		require.NoError(t, err)
		assert.Equal(t, layout, got)
	}
	assert.Equal(t, int32(1), next.calls.Load())

	_, err = cache.GetScreenLayout(ctx, uuid.New())
	require.NoError(t, err)
	assert.Equal(t, int32(2), next.calls.Load(), "layouts are cached per screen")
}

func TestIdempotencyStore(t *testing.T) {
	client := startRedis(t)
	ctx := context.Background()
	store := redisadapter.NewIdempotency(client)

	got, err := store.Get(ctx, "missing")
	require.NoError(t, err)
	assert.Nil(t, got)

	want := idempotency.Response{Status: 201, ContentType: "application/json", Result: []byte(`{"booking_id":"x"}`)}
	require.NoError(t, store.Set(ctx, "k", want, time.Minute))
	got, err = store.Get(ctx, "k")
	require.NoError(t, err)
	require.NotNil(t, got)
	assert.Equal(t, want, *got)
}
