package domain

import (
	"sort"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type BookingStatus string

const (
	StatusPending   BookingStatus = "pending"
	StatusConfirmed BookingStatus = "confirmed"
	StatusCancelled BookingStatus = "cancelled"
)

type CancelReason string

const (
	ReasonCustomer      CancelReason = "customer"
	ReasonExpired       CancelReason = "expired"
	ReasonPaymentFailed CancelReason = "payment_failed"
	ReasonSeatConflict  CancelReason = "seat_conflict"
)

// BookedSeat is a seat reserved by a booking, priced when the hold was taken.
type BookedSeat struct {
	Seat     SeatID
	Category SeatCategory
	Price    decimal.Decimal
}

type Booking struct {
	ID           uuid.UUID
	ShowtimeID   uuid.UUID
	CustomerRef  string
	Seats        []BookedSeat
	TotalPrice   decimal.Decimal
	Status       BookingStatus
	CancelReason CancelReason
	PaymentRef   string
	CreatedAt    time.Time
	ExpiresAt    time.Time
	ConfirmedAt  *time.Time
	CancelledAt  *time.Time
}

func NewPendingBooking(showtimeID uuid.UUID, customerRef string, seats []BookedSeat, now time.Time, ttl time.Duration) Booking {
	cp := append([]BookedSeat(nil), seats...)
	SortBookedSeats(cp)
	return Booking{
		ID:          uuid.New(),
		ShowtimeID:  showtimeID,
		CustomerRef: customerRef,
		Seats:       cp,
		TotalPrice:  decimal.Zero,
		Status:      StatusPending,
		CreatedAt:   now,
		ExpiresAt:   now.Add(ttl),
	}
}

func (b Booking) SeatIDs() []SeatID {
	ids := make([]SeatID, len(b.Seats))
	for i, s := range b.Seats {
		ids[i] = s.Seat
	}
	return ids
}

func (b Booking) Labels() []string { return Labels(b.SeatIDs()) }

// SeatTotal sums the prices frozen at hold time.
func (b Booking) SeatTotal() decimal.Decimal {
	total := decimal.Zero
	for _, s := range b.Seats {
		total = total.Add(s.Price)
	}
	return total
}

// HoldExpired reports whether a pending booking's hold window has elapsed.
func (b Booking) HoldExpired(now time.Time) bool {
	return b.Status == StatusPending && !now.Before(b.ExpiresAt)
}

// Live reports whether the booking currently claims its seats.
func (b Booking) Live(now time.Time) bool {
	switch b.Status {
	case StatusConfirmed:
		return true
	case StatusPending:
		return now.Before(b.ExpiresAt)
	}
	return false
}

// CanTransition allows pending to confirmed or cancelled. Terminal states are final.
func (b Booking) CanTransition(to BookingStatus) bool {
	return b.Status == StatusPending && (to == StatusConfirmed || to == StatusCancelled)
}

func (b *Booking) Confirm(now time.Time, paymentRef string) error {
	if !b.CanTransition(StatusConfirmed) {
		return errors.Wrapf(ErrBookingNotPending, "booking %s is %s", b.ID, b.Status)
	}
	b.Status = StatusConfirmed
	b.TotalPrice = b.SeatTotal()
	b.PaymentRef = paymentRef
	b.ConfirmedAt = &now
	return nil
}

func (b *Booking) Cancel(now time.Time, reason CancelReason) error {
	if !b.CanTransition(StatusCancelled) {
		return errors.Wrapf(ErrBookingNotPending, "booking %s is %s", b.ID, b.Status)
	}
	b.Status = StatusCancelled
	b.CancelReason = reason
	b.CancelledAt = &now
	return nil
}

func SortBookedSeats(seats []BookedSeat) {
	sort.Slice(seats, func(i, j int) bool { return seats[i].Seat.Less(seats[j].Seat) })
}

type SeatState string

const (
	SeatAvailable SeatState = "available"
	SeatHeld      SeatState = "held"
	SeatConfirmed SeatState = "confirmed"
)

type SeatClaim struct {
	BookingID uuid.UUID
	State     SeatState
}

// Occupancy maps claimed seats of one showtime to their claim. Seats absent
// from the map are available.
type Occupancy map[SeatID]SeatClaim

func (o Occupancy) State(id SeatID) SeatState {
	if c, ok := o[id]; ok {
		return c.State
	}
	return SeatAvailable
}

// Add records a claim. A confirmed claim is never downgraded to held.
func (o Occupancy) Add(id SeatID, c SeatClaim) {
	if cur, ok := o[id]; ok && cur.State == SeatConfirmed {
		return
	}
	o[id] = c
}

// OccupancyFrom overlays live bookings: confirmed seats first, then unexpired
// pending seats.
func OccupancyFrom(bookings []Booking, now time.Time) Occupancy {
	occ := Occupancy{}
	for _, b := range bookings {
		if !b.Live(now) {
			continue
		}
		state := SeatHeld
		if b.Status == StatusConfirmed {
			state = SeatConfirmed
		}
		for _, s := range b.Seats {
			occ.Add(s.Seat, SeatClaim{BookingID: b.ID, State: state})
		}
	}
	return occ
}

// Clone copies the seat slice so stores can hand out bookings safely.
func (b Booking) Clone() Booking {
	b.Seats = append([]BookedSeat(nil), b.Seats...)
	return b
}
