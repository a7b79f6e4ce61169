package schedule

import (
	"context"
	"time"

	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
)

// Listing is a showtime joined with the screen and theater that run it.
type Listing struct {
	Showtime   domain.Showtime
	Theater    domain.Theater
	ScreenName string
}

// StartsAt is the show start in the theater's zone.
func (l Listing) StartsAt() time.Time {
	return l.Showtime.Instant(l.Theater.Location())
}

// Started reports whether the show is no longer sellable at now.
func (l Listing) Started(now time.Time) bool {
	return !l.StartsAt().After(now)
}

// Store is the read side of scheduling. Inactive theaters and their
// showtimes are invisible through it.
type Store interface {
	CityHasActiveTheaters(ctx context.Context, city string) (bool, error)
	ListShowtimes(ctx context.Context, q Query) ([]Listing, error)
	GetShowtime(ctx context.Context, id uuid.UUID) (Listing, error)
	GetScreenLayout(ctx context.Context, screenID uuid.UUID) (domain.SeatLayout, error)
}

// Seeder writes schedule data. Only tests, memory mode and local setup use it.
type Seeder interface {
	UpsertTheater(ctx context.Context, t domain.Theater) error
	UpsertScreen(ctx context.Context, s domain.Screen) error
	UpsertShowtime(ctx context.Context, s domain.Showtime) error
}
