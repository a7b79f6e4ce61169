package outbox

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/showtime-booking/internal/clock"
	"github.com/robertarktes/showtime-booking/internal/observability"
)

type fakeStore struct {
	mu        sync.Mutex
	records   []Record
	published map[uuid.UUID]time.Time
}

func (s *fakeStore) Unpublished(_ context.Context, limit int) ([]Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Record
	for _, r := range s.records {
		if _, done := s.published[r.ID]; !done && len(out) < limit {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) MarkPublished(_ context.Context, id uuid.UUID, at time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.published[id] = at
	return nil
}

type fakeSink struct {
	failOn string
	keys   []string
}

func (f *fakeSink) Publish(_ context.Context, key string, msg amqp.Publishing) error {
	if key == f.failOn {
		return errors.New("channel closed")
	}
	f.keys = append(f.keys, key)
	return nil
}

func newRecord(eventType string, at time.Time) Record {
	return Record{ID: uuid.New(), AggregateID: uuid.New(), EventType: eventType, Payload: []byte(`{}`), CreatedAt: at}
}

func TestFlush_PublishesInOrder(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{published: map[uuid.UUID]time.Time{}}
	store.records = []Record{
		newRecord("booking.held", now.Add(-2*time.Second)),
		newRecord("booking.confirmed", now.Add(-time.Second)),
	}
	sink := &fakeSink{}
	p := NewPublisher(store, sink, clock.NewManual(now), observability.NopLogger(), time.Second, 10)

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Equal(t, []string{"booking.held", "booking.confirmed"}, sink.keys)
	assert.Len(t, store.published, 2)

	n, err = p.Flush(context.Background())
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestFlush_StopsAtFirstFailure(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	store := &fakeStore{published: map[uuid.UUID]time.Time{}}
	store.records = []Record{
		newRecord("booking.held", now),
		newRecord("booking.cancelled", now),
		newRecord("booking.held", now),
	}
	sink := &fakeSink{failOn: "booking.cancelled"}
	p := NewPublisher(store, sink, clock.NewManual(now), observability.NopLogger(), time.Second, 10)

	n, err := p.Flush(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Len(t, store.published, 1)
}
