package crdb

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/schedule"
)

const listingSelect = `
	SELECT s.id, s.screen_id, s.movie_id, s.show_date, s.show_time, s.base_price::STRING,
	       t.id, t.name, t.city, t.time_zone, t.active, sc.name
	FROM showtimes s
	JOIN screens sc ON sc.id = s.screen_id
	JOIN theaters t ON t.id = sc.theater_id`

// conditions collects WHERE clauses and their arguments. Each clause carries
// one %d verb that becomes its positional placeholder.
type conditions struct {
	clauses []string
	args    []any
}

func (c *conditions) add(clause string, arg any) {
	c.args = append(c.args, arg)
	c.clauses = append(c.clauses, fmt.Sprintf(clause, len(c.args)))
}

func (c *conditions) where() string {
	return strings.Join(c.clauses, " AND ")
}

func uuidStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

// buildListQuery renders q as one parameterized statement.
func buildListQuery(q schedule.Query) (string, []any) {
	c := &conditions{}
	c.add("lower(t.city) = lower($%d)", q.City)
	if !q.From.IsZero() {
		c.add("s.show_date >= $%d::DATE", q.From.String())
	}
	if !q.To.IsZero() {
		c.add("s.show_date <= $%d::DATE", q.To.String())
	}
	if len(q.MovieIDs) > 0 {
		c.add("s.movie_id = ANY($%d::UUID[])", uuidStrings(q.MovieIDs))
	}
	if len(q.TheaterIDs) > 0 {
		c.add("t.id = ANY($%d::UUID[])", uuidStrings(q.TheaterIDs))
	}
	if len(q.ScreenIDs) > 0 {
		c.add("s.screen_id = ANY($%d::UUID[])", uuidStrings(q.ScreenIDs))
	}
	return listingSelect + " WHERE t.active AND " + c.where() + " ORDER BY s.show_date, s.show_time, s.id", c.args
}

func scanListing(row pgx.Row) (schedule.Listing, error) {
	var (
		l        schedule.Listing
		showDate time.Time
		showTime pgtype.Time
		price    string
	)
	err := row.Scan(
		&l.Showtime.ID, &l.Showtime.ScreenID, &l.Showtime.MovieID, &showDate, &showTime, &price,
		&l.Theater.ID, &l.Theater.Name, &l.Theater.City, &l.Theater.TimeZone, &l.Theater.Active, &l.ScreenName,
	)
	if err != nil {
		return schedule.Listing{}, err
	}
	l.Showtime.ShowDate = domain.DateOf(showDate)
	l.Showtime.ShowTime = time.Duration(showTime.Microseconds) * time.Microsecond
	if l.Showtime.BasePrice, err = decimal.NewFromString(price); err != nil {
		return schedule.Listing{}, errors.Wrapf(err, "showtime %s base price", l.Showtime.ID)
	}
	return l, nil
}

func (r *Repository) CityHasActiveTheaters(ctx context.Context, city string) (bool, error) {
	var ok bool
	err := r.pool.QueryRow(ctx, `
		SELECT EXISTS (SELECT 1 FROM theaters WHERE active AND lower(city) = lower($1))
	`, strings.TrimSpace(city)).Scan(&ok)
	return ok, err
}

func (r *Repository) ListShowtimes(ctx context.Context, q schedule.Query) ([]schedule.Listing, error) {
	sql, args := buildListQuery(q)
	rows, err := r.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []schedule.Listing
	for rows.Next() {
		l, err := scanListing(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, l)
	}
	return out, rows.Err()
}

func (r *Repository) GetShowtime(ctx context.Context, id uuid.UUID) (schedule.Listing, error) {
	l, err := scanListing(r.pool.QueryRow(ctx, listingSelect+" WHERE t.active AND s.id = $1", id))
	if errors.Is(err, pgx.ErrNoRows) {
		return schedule.Listing{}, errors.Wrapf(domain.ErrNotFound, "showtime %s", id)
	}
	return l, err
}

func (r *Repository) GetScreenLayout(ctx context.Context, screenID uuid.UUID) (domain.SeatLayout, error) {
	var raw []byte
	err := r.pool.QueryRow(ctx, `SELECT layout FROM screens WHERE id = $1`, screenID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return domain.SeatLayout{}, errors.Wrapf(domain.ErrNotFound, "screen %s", screenID)
	}
	if err != nil {
		return domain.SeatLayout{}, err
	}
	var layout domain.SeatLayout
	if err := json.Unmarshal(raw, &layout); err != nil {
		return domain.SeatLayout{}, errors.Wrapf(err, "decode layout of screen %s", screenID)
	}
	return layout, nil
}

func (r *Repository) UpsertTheater(ctx context.Context, t domain.Theater) error {
	_, err := r.pool.Exec(ctx, `
		INSERT INTO theaters (id, name, city, time_zone, active)
		VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET name = excluded.name, city = excluded.city,
			time_zone = excluded.time_zone, active = excluded.active
	`, t.ID, t.Name, t.City, t.TimeZone, t.Active)
	return err
}

func (r *Repository) UpsertScreen(ctx context.Context, s domain.Screen) error {
	layout, err := json.Marshal(s.Layout)
	if err != nil {
		return err
	}
	_, err = r.pool.Exec(ctx, `
		INSERT INTO screens (id, theater_id, name, layout)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO UPDATE SET theater_id = excluded.theater_id, name = excluded.name, layout = excluded.layout
	`, s.ID, s.TheaterID, s.Name, layout)
	return err
}

func (r *Repository) UpsertShowtime(ctx context.Context, s domain.Showtime) error {
	showTime := pgtype.Time{Microseconds: s.ShowTime.Microseconds(), Valid: true}
	_, err := r.pool.Exec(ctx, `
		INSERT INTO showtimes (id, screen_id, movie_id, show_date, show_time, base_price)
		VALUES ($1, $2, $3, $4::DATE, $5, $6::DECIMAL)
		ON CONFLICT (id) DO UPDATE SET screen_id = excluded.screen_id, movie_id = excluded.movie_id,
			show_date = excluded.show_date, show_time = excluded.show_time, base_price = excluded.base_price
	`, s.ID, s.ScreenID, s.MovieID, s.ShowDate.String(), showTime, s.BasePrice.String())
	return err
}
