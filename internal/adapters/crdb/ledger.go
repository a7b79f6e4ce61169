package crdb

import (
	"context"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
)

// querier is satisfied by both the pool and a transaction.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

const bookingSelect = `
	SELECT id, showtime_id, customer_ref, status, cancel_reason, payment_ref, total_price::STRING,
	       created_at, expires_at, confirmed_at, cancelled_at
	FROM bookings`

const occupancySelect = `
	SELECT bs.booking_id, bs.seat_row, bs.seat_slot, b.status
	FROM booking_seats bs
	JOIN bookings b ON b.id = bs.booking_id
	WHERE bs.showtime_id = $1 AND bs.active
	  AND (b.status = 'confirmed' OR (b.status = 'pending' AND b.expires_at > $2))`

// InShowtime locks the showtime row for the duration of fn.
func (r *Repository) InShowtime(ctx context.Context, showtimeID uuid.UUID, fn func(ctx context.Context, tx ledger.Tx) error) error {
	return r.WithTx(ctx, func(tx pgx.Tx) error {
		var id uuid.UUID
		err := tx.QueryRow(ctx, `SELECT id FROM showtimes WHERE id = $1 FOR UPDATE`, showtimeID).Scan(&id)
		if errors.Is(err, pgx.ErrNoRows) {
			return errors.Wrapf(domain.ErrNotFound, "showtime %s", showtimeID)
		}
		if err != nil {
			return err
		}
		return fn(ctx, &ledgerTx{tx: tx, showtimeID: showtimeID})
	})
}

type ledgerTx struct {
	tx         pgx.Tx
	showtimeID uuid.UUID
}

func (t *ledgerTx) Occupancy(ctx context.Context, now time.Time) (domain.Occupancy, error) {
	return occupancy(ctx, t.tx, t.showtimeID, now)
}

func (t *ledgerTx) Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	bookings, err := queryBookings(ctx, t.tx, bookingSelect+" WHERE id = $1 AND showtime_id = $2", id, t.showtimeID)
	if err != nil {
		return domain.Booking{}, err
	}
	if len(bookings) == 0 {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return bookings[0], nil
}

func (t *ledgerTx) InsertBooking(ctx context.Context, b domain.Booking) error {
	batch := &pgx.Batch{}
	batch.Queue(`
		INSERT INTO bookings (id, showtime_id, customer_ref, status, cancel_reason, payment_ref, total_price,
			created_at, expires_at, confirmed_at, cancelled_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7::DECIMAL, $8, $9, $10, $11)
	`, b.ID, b.ShowtimeID, b.CustomerRef, string(b.Status), string(b.CancelReason), b.PaymentRef,
		b.TotalPrice.String(), b.CreatedAt, b.ExpiresAt, b.ConfirmedAt, b.CancelledAt)
	for _, s := range b.Seats {
		batch.Queue(`
			INSERT INTO booking_seats (booking_id, showtime_id, seat_row, seat_slot, category, price, active)
			VALUES ($1, $2, $3, $4, $5, $6::DECIMAL, $7)
		`, b.ID, b.ShowtimeID, s.Seat.Row, s.Seat.Slot, string(s.Category), s.Price.String(), b.Status != domain.StatusCancelled)
	}
	return t.tx.SendBatch(ctx, batch).Close()
}

// UpdateBooking only moves pending rows, so terminal bookings never change.
func (t *ledgerTx) UpdateBooking(ctx context.Context, b domain.Booking) error {
	tag, err := t.tx.Exec(ctx, `
		UPDATE bookings
		SET status = $2, cancel_reason = $3, payment_ref = $4, total_price = $5::DECIMAL,
			confirmed_at = $6, cancelled_at = $7
		WHERE id = $1 AND status = 'pending'
	`, b.ID, string(b.Status), string(b.CancelReason), b.PaymentRef, b.TotalPrice.String(), b.ConfirmedAt, b.CancelledAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return errors.Wrapf(domain.ErrBookingNotPending, "booking %s", b.ID)
	}
	if b.Status == domain.StatusCancelled {
		if _, err := t.tx.Exec(ctx, `UPDATE booking_seats SET active = false WHERE booking_id = $1`, b.ID); err != nil {
			return err
		}
	}
	return nil
}

func (t *ledgerTx) ExpiredPending(ctx context.Context, now time.Time) ([]domain.Booking, error) {
	return queryBookings(ctx, t.tx, bookingSelect+`
		WHERE showtime_id = $1 AND status = 'pending' AND expires_at <= $2
		ORDER BY expires_at`, t.showtimeID, now)
}

func (t *ledgerTx) AppendOutbox(ctx context.Context, e ledger.Event) error {
	return insertOutbox(ctx, t.tx, e)
}

func (r *Repository) Snapshot(ctx context.Context, showtimeID uuid.UUID, now time.Time) (domain.Occupancy, error) {
	return occupancy(ctx, r.pool, showtimeID, now)
}

func (r *Repository) Booking(ctx context.Context, id uuid.UUID) (domain.Booking, error) {
	bookings, err := queryBookings(ctx, r.pool, bookingSelect+" WHERE id = $1", id)
	if err != nil {
		return domain.Booking{}, err
	}
	if len(bookings) == 0 {
		return domain.Booking{}, errors.Wrapf(domain.ErrNotFound, "booking %s", id)
	}
	return bookings[0], nil
}

func (r *Repository) ExpiredPending(ctx context.Context, now time.Time, limit int) ([]domain.Booking, error) {
	return queryBookings(ctx, r.pool, bookingSelect+`
		WHERE status = 'pending' AND expires_at <= $1
		ORDER BY expires_at LIMIT $2`, now, limit)
}

func (r *Repository) ConfirmedCountsByMovie(ctx context.Context, city string, movieIDs []uuid.UUID, since, until time.Time) (map[uuid.UUID]int, error) {
	rows, err := r.pool.Query(ctx, `
		SELECT s.movie_id, count(*)
		FROM bookings b
		JOIN showtimes s ON s.id = b.showtime_id
		JOIN screens sc ON sc.id = s.screen_id
		JOIN theaters t ON t.id = sc.theater_id
		WHERE b.status = 'confirmed' AND t.active AND lower(t.city) = lower($1)
		  AND s.movie_id = ANY($2::UUID[]) AND b.created_at >= $3 AND b.created_at <= $4
		GROUP BY s.movie_id
	`, city, uuidStrings(movieIDs), since, until)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	counts := make(map[uuid.UUID]int)
	for rows.Next() {
		var (
			id uuid.UUID
			n  int64
		)
		if err := rows.Scan(&id, &n); err != nil {
			return nil, err
		}
		counts[id] = int(n)
	}
	return counts, rows.Err()
}

func occupancy(ctx context.Context, q querier, showtimeID uuid.UUID, now time.Time) (domain.Occupancy, error) {
	rows, err := q.Query(ctx, occupancySelect, showtimeID, now)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	occ := domain.Occupancy{}
	for rows.Next() {
		var (
			bookingID uuid.UUID
			seat      domain.SeatID
			status    string
		)
		if err := rows.Scan(&bookingID, &seat.Row, &seat.Slot, &status); err != nil {
			return nil, err
		}
		state := domain.SeatHeld
		if domain.BookingStatus(status) == domain.StatusConfirmed {
			state = domain.SeatConfirmed
		}
		occ.Add(seat, domain.SeatClaim{BookingID: bookingID, State: state})
	}
	return occ, rows.Err()
}

// queryBookings loads bookings matched by sql and then their seats in one
// more round trip.
func queryBookings(ctx context.Context, q querier, sql string, args ...any) ([]domain.Booking, error) {
	rows, err := q.Query(ctx, sql, args...)
	if err != nil {
		return nil, err
	}
	var (
		bookings []domain.Booking
		index    = map[uuid.UUID]int{}
	)
	for rows.Next() {
		var (
			b              domain.Booking
			status, reason string
			total          string
		)
		if err := rows.Scan(&b.ID, &b.ShowtimeID, &b.CustomerRef, &status, &reason, &b.PaymentRef, &total,
			&b.CreatedAt, &b.ExpiresAt, &b.ConfirmedAt, &b.CancelledAt); err != nil {
			rows.Close()
			return nil, err
		}
		b.Status = domain.BookingStatus(status)
		b.CancelReason = domain.CancelReason(reason)
		if b.TotalPrice, err = decimal.NewFromString(total); err != nil {
			rows.Close()
			return nil, errors.Wrapf(err, "booking %s total", b.ID)
		}
		index[b.ID] = len(bookings)
		bookings = append(bookings, b)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}
	if len(bookings) == 0 {
		return nil, nil
	}

	ids := make([]uuid.UUID, len(bookings))
	for i, b := range bookings {
		ids[i] = b.ID
	}
	seatRows, err := q.Query(ctx, `
		SELECT booking_id, seat_row, seat_slot, category, price::STRING
		FROM booking_seats WHERE booking_id = ANY($1::UUID[])
		ORDER BY booking_id, seat_row, seat_slot
	`, uuidStrings(ids))
	if err != nil {
		return nil, err
	}
	defer seatRows.Close()
	for seatRows.Next() {
		var (
			bookingID uuid.UUID
			s         domain.BookedSeat
			category  string
			price     string
		)
		if err := seatRows.Scan(&bookingID, &s.Seat.Row, &s.Seat.Slot, &category, &price); err != nil {
			return nil, err
		}
		s.Category = domain.SeatCategory(category)
		if s.Price, err = decimal.NewFromString(price); err != nil {
			return nil, errors.Wrapf(err, "booking %s seat price", bookingID)
		}
		i := index[bookingID]
		bookings[i].Seats = append(bookings[i].Seats, s)
	}
	return bookings, seatRows.Err()
}
