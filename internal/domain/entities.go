package domain

import (
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Movie is owned by the catalog. The engine only reads it to decorate results.
type Movie struct {
	ID             uuid.UUID `json:"id"`
	Title          string    `json:"title"`
	PosterRef      string    `json:"poster_ref,omitempty"`
	Genre          string    `json:"genre,omitempty"`
	RuntimeMinutes int       `json:"runtime_minutes,omitempty"`
	Rating         string    `json:"rating,omitempty"`
}

type Theater struct {
	ID       uuid.UUID
	Name     string
	City     string
	TimeZone string
	Active   bool
}

// Location falls back to UTC when the zone is unset or unknown.
func (t Theater) Location() *time.Location {
	if t.TimeZone == "" {
		return time.UTC
	}
	loc, err := time.LoadLocation(t.TimeZone)
	if err != nil {
		return time.UTC
	}
	return loc
}

type Screen struct {
	ID        uuid.UUID
	TheaterID uuid.UUID
	Name      string
	Layout    SeatLayout
}

type Showtime struct {
	ID        uuid.UUID
	ScreenID  uuid.UUID
	MovieID   uuid.UUID
	ShowDate  Date
	ShowTime  time.Duration // offset from local midnight
	BasePrice decimal.Decimal
}

// Instant resolves the local show date and time to an absolute instant.
func (s Showtime) Instant(loc *time.Location) time.Time {
	if loc == nil {
		loc = time.UTC
	}
	h := int(s.ShowTime / time.Hour)
	m := int((s.ShowTime % time.Hour) / time.Minute)
	return time.Date(s.ShowDate.Year, s.ShowDate.Month, s.ShowDate.Day, h, m, 0, 0, loc)
}

// Clock renders the local show time as HH:MM.
func (s Showtime) Clock() string {
	return fmt.Sprintf("%02d:%02d", int(s.ShowTime/time.Hour), int((s.ShowTime%time.Hour)/time.Minute))
}

// ParseClock parses HH:MM into an offset from midnight.
func ParseClock(v string) (time.Duration, error) {
	t, err := time.Parse("15:04", v)
	if err != nil {
		return 0, errors.Wrapf(err, "parse show time %q", v)
	}
	return time.Duration(t.Hour())*time.Hour + time.Duration(t.Minute())*time.Minute, nil
}
