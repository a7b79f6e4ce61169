package memory

import (
	"context"
	"testing"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

func seeded(t *testing.T) (*Store, domain.Showtime) {
	t.Helper()
	ctx := context.Background()
	s := New()
	require.NoError(t, SeedDemo(ctx, s, domain.DateOf(now)))
	listings, err := s.ListShowtimes(ctx, mustQuery(t, "pune"))
	require.NoError(t, err)
	require.Len(t, listings, 7)
	return s, listings[0].Showtime
}

func mustQuery(t *testing.T, city string, preds ...schedule.Predicate) schedule.Query {
	t.Helper()
	q, err := schedule.NewQuery(city, preds...)
	require.NoError(t, err)
	return q
}

func pending(showtime uuid.UUID, seats ...domain.SeatID) domain.Booking {
	booked := make([]domain.BookedSeat, len(seats))
	for i, id := range seats {
		booked[i] = domain.BookedSeat{Seat: id, Category: domain.CategoryRegular, Price: decimal.NewFromInt(250)}
	}
	return domain.NewPendingBooking(showtime, "c", booked, now, 10*time.Minute)
}

func TestInShowtime_DiscardsWritesOnError(t *testing.T) {
	ctx := context.Background()
	s, st := seeded(t)
	b := pending(st.ID, domain.SeatID{Row: 0, Slot: 0})

	err := s.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		require.NoError(t, tx.InsertBooking(ctx, b))
		require.NoError(t, tx.AppendOutbox(ctx, ledger.Event{ID: uuid.New(), Type: "booking.held"}))
		occ, err := tx.Occupancy(ctx, now)
		require.NoError(t, err)
		assert.Equal(t, domain.SeatHeld, occ.State(domain.SeatID{Row: 0, Slot: 0}))
		return errors.New("boom")
	})
	require.Error(t, err)

	_, err = s.Booking(ctx, b.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	assert.Empty(t, s.EventTypes())
}

func TestInShowtime_DuplicateClaimConflicts(t *testing.T) {
	ctx := context.Background()
	s, st := seeded(t)
	seat := domain.SeatID{Row: 1, Slot: 1}

	first := pending(st.ID, seat)
	require.NoError(t, s.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertBooking(ctx, first)
	}))

	// Skips the occupancy check on purpose: the seat claim still rejects it.
	second := pending(st.ID, seat)
	err := s.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		return tx.InsertBooking(ctx, second)
	})
	assert.True(t, errors.Is(err, domain.ErrConcurrencyConflict))

	// Releasing the first booking in the same transaction frees the seat.
	err = s.InShowtime(ctx, st.ID, func(ctx context.Context, tx ledger.Tx) error {
		b, err := tx.Booking(ctx, first.ID)
		if err != nil {
			return err
		}
		if err := b.Cancel(now, domain.ReasonExpired); err != nil {
			return err
		}
		if err := tx.UpdateBooking(ctx, b); err != nil {
			return err
		}
		return tx.InsertBooking(ctx, second)
	})
	require.NoError(t, err)

	occ, err := s.Snapshot(ctx, st.ID, now)
	require.NoError(t, err)
	assert.Equal(t, second.ID, occ[seat].BookingID)
}

func TestInShowtime_UnknownShowtime(t *testing.T) {
	s, _ := seeded(t)
	err := s.InShowtime(context.Background(), uuid.New(), func(context.Context, ledger.Tx) error { return nil })
	assert.True(t, errors.Is(err, domain.ErrNotFound))
}

func TestListShowtimes_DateRangeAndInactiveTheater(t *testing.T) {
	ctx := context.Background()
	s, st := seeded(t)
	today := domain.DateOf(now)

	got, err := s.ListShowtimes(ctx, mustQuery(t, "Pune", schedule.OnDates(today.AddDays(1), today.AddDays(2))))
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, today.AddDays(1), got[0].Showtime.ShowDate)

	l, err := s.GetShowtime(ctx, st.ID)
	require.NoError(t, err)
	l.Theater.Active = false
	require.NoError(t, s.UpsertTheater(ctx, l.Theater))

	got, err = s.ListShowtimes(ctx, mustQuery(t, "Pune"))
	require.NoError(t, err)
	assert.Empty(t, got)
	_, err = s.GetShowtime(ctx, st.ID)
	assert.True(t, errors.Is(err, domain.ErrNotFound))
	ok, err := s.CityHasActiveTheaters(ctx, "Pune")
	require.NoError(t, err)
	assert.False(t, ok)
}
