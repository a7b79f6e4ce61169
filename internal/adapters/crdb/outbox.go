package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
	"github.com/robertarktes/showtime-booking/internal/outbox"
)

func insertOutbox(ctx context.Context, q querier, e ledger.Event) error {
	_, err := q.Exec(ctx, `
		INSERT INTO outbox (id, aggregate_type, aggregate_id, event_type, payload_json, created_at, status)
		VALUES ($1, 'booking', $2, $3, $4, $5, 'NEW')
	`, e.ID, e.AggregateID, e.Type, e.Payload, e.CreatedAt)
	return err
}

func (r *Repository) Unpublished(ctx context.Context, limit int) ([]outbox.Record, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT id, aggregate_id, event_type, payload_json, created_at
		FROM outbox WHERE status = 'NEW' ORDER BY created_at ASC, id LIMIT $1
	`, limit)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var records []outbox.Record
	for rows.Next() {
		var rec outbox.Record
		if err := rows.Scan(&rec.ID, &rec.AggregateID, &rec.EventType, &rec.Payload, &rec.CreatedAt); err != nil {
			return nil, err
		}
		records = append(records, rec)
	}
	return records, rows.Err()
}

func (r *Repository) MarkPublished(ctx context.Context, id uuid.UUID, publishedAt time.Time) error {
	tag, err := r.pool.Exec(ctx, `
		UPDATE outbox SET status = 'PUBLISHED', published_at = $2 WHERE id = $1
	`, id, publishedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrNotFound, "outbox event %s", id)
	}
	return nil
}
