package memory

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/outbox"
)

func (s *Store) Unpublished(_ context.Context, limit int) ([]outbox.Record, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []outbox.Record
	for _, row := range s.outbox {
		if row.publishedAt != nil {
			continue
		}
		if limit > 0 && len(out) == limit {
			break
		}
		e := row.event
		out = append(out, outbox.Record{
			ID:          e.ID,
			AggregateID: e.AggregateID,
			EventType:   e.Type,
			Payload:     append([]byte(nil), e.Payload...),
			CreatedAt:   e.CreatedAt,
		})
	}
	return out, nil
}

func (s *Store) MarkPublished(_ context.Context, id uuid.UUID, publishedAt time.Time) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.outbox {
		if s.outbox[i].event.ID == id {
			at := publishedAt
			s.outbox[i].publishedAt = &at
			return nil
		}
	}
	return errors.Wrapf(domain.ErrNotFound, "outbox event %s", id)
}

// EventTypes lists every recorded event type in commit order.
func (s *Store) EventTypes() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]string, len(s.outbox))
	for i, row := range s.outbox {
		out[i] = row.event.Type
	}
	return out
}
