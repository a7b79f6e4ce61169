package ledger

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
)

// Event is an outbox row written in the same transaction as the booking
// change it describes.
type Event struct {
	ID          uuid.UUID
	AggregateID uuid.UUID
	Type        string
	Payload     []byte
	CreatedAt   time.Time
}

// Tx is the locked view of a single showtime's bookings.
type Tx interface {
	Occupancy(ctx context.Context, now time.Time) (domain.Occupancy, error)
	Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	InsertBooking(ctx context.Context, b domain.Booking) error
	// UpdateBooking persists a status transition. Seats are released when
	// the new status is cancelled.
	UpdateBooking(ctx context.Context, b domain.Booking) error
	// ExpiredPending lists pending bookings of the locked showtime whose hold
	// has elapsed at now.
	ExpiredPending(ctx context.Context, now time.Time) ([]domain.Booking, error)
	AppendOutbox(ctx context.Context, e Event) error
}

// Ledger records bookings. Rows are never deleted and status changes are one way.
type Ledger interface {
	// InShowtime runs fn while holding the exclusive lock of showtimeID. All
	// writes made through tx commit together or not at all.
	InShowtime(ctx context.Context, showtimeID uuid.UUID, fn func(ctx context.Context, tx Tx) error) error

	Snapshot(ctx context.Context, showtimeID uuid.UUID, now time.Time) (domain.Occupancy, error)
	Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error)
	// ExpiredPending lists up to limit stale pending bookings across showtimes.
	ExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error)
}

// Counter feeds trending: confirmed bookings per movie among the city's
// showtimes, created in [since, until].
type Counter interface {
	ConfirmedCountsByMovie(ctx context.Context, city string, movieIDs []uuid.UUID, since, until time.Time) (map[uuid.UUID]int, error)
}
