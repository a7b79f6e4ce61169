package schedule

import (
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"github.com/robertarktes/showtime-booking/internal/domain"
)

// Query selects showtimes of one city. Every other constraint is an optional
// typed predicate; adapters turn it into parameters, never into SQL text.
type Query struct {
	City       string
	From, To   domain.Date
	MovieIDs   []uuid.UUID
	TheaterIDs []uuid.UUID
	ScreenIDs  []uuid.UUID
}

type Predicate func(*Query)

// OnDates limits show dates to [from, to], both inclusive.
func OnDates(from, to domain.Date) Predicate {
	return func(q *Query) {
		q.From, q.To = from, to
	}
}

func ForMovies(ids ...uuid.UUID) Predicate {
	return func(q *Query) { q.MovieIDs = append(q.MovieIDs, ids...) }
}

func AtTheaters(ids ...uuid.UUID) Predicate {
	return func(q *Query) { q.TheaterIDs = append(q.TheaterIDs, ids...) }
}

func OnScreens(ids ...uuid.UUID) Predicate {
	return func(q *Query) { q.ScreenIDs = append(q.ScreenIDs, ids...) }
}

func NewQuery(city string, preds ...Predicate) (Query, error) {
	q := Query{City: strings.TrimSpace(city)}
	if q.City == "" {
		return Query{}, errors.Wrap(domain.ErrInvalidCity, "city is required")
	}
	for _, p := range preds {
		p(&q)
	}
	if !q.From.IsZero() && !q.To.IsZero() && q.To.Before(q.From) {
		return Query{}, errors.Newf("date range %s..%s is inverted", q.From, q.To)
	}
	return q, nil
}

// Matches evaluates the query against one listing in memory.
func (q Query) Matches(l Listing) bool {
	if !l.Theater.Active || !strings.EqualFold(l.Theater.City, q.City) {
		return false
	}
	d := l.Showtime.ShowDate
	if !q.From.IsZero() && d.Before(q.From) {
		return false
	}
	if !q.To.IsZero() && d.After(q.To) {
		return false
	}
	return within(q.MovieIDs, l.Showtime.MovieID) &&
		within(q.TheaterIDs, l.Theater.ID) &&
		within(q.ScreenIDs, l.Showtime.ScreenID)
}

func within(ids []uuid.UUID, id uuid.UUID) bool {
	if len(ids) == 0 {
		return true
	}
	for _, v := range ids {
		if v == id {
			return true
		}
	}
	return false
}
