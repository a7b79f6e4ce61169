package booking

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/ledger"
)

const (
	EventHeld      = "booking.held"
	EventConfirmed = "booking.confirmed"
	EventCancelled = "booking.cancelled"
)

// EventPayload is the body of every booking event on the bus.
type EventPayload struct {
	BookingID   uuid.UUID            `json:"booking_id"`
	ShowtimeID  uuid.UUID            `json:"showtime_id"`
	CustomerRef string               `json:"customer_ref"`
	Status      domain.BookingStatus `json:"status"`
	Reason      domain.CancelReason  `json:"reason,omitempty"`
	Seats       []string             `json:"seats"`
	Amount      decimal.Decimal      `json:"amount"`
	PaymentRef  string               `json:"payment_ref,omitempty"`
	ExpiresAt   *time.Time           `json:"expires_at,omitempty"`
	OccurredAt  time.Time            `json:"occurred_at"`
}

func newEvent(eventType string, b domain.Booking, at time.Time) (ledger.Event, error) {
	p := EventPayload{
		BookingID:   b.ID,
		ShowtimeID:  b.ShowtimeID,
		CustomerRef: b.CustomerRef,
		Status:      b.Status,
		Reason:      b.CancelReason,
		Seats:       b.Labels(),
		Amount:      b.SeatTotal(),
		PaymentRef:  b.PaymentRef,
		OccurredAt:  at,
	}
	if b.Status == domain.StatusPending {
		exp := b.ExpiresAt
		p.ExpiresAt = &exp
	}
	body, err := json.Marshal(p)
	if err != nil {
		return ledger.Event{}, err
	}
	return ledger.Event{
		ID:          uuid.New(),
		AggregateID: b.ID,
		Type:        eventType,
		Payload:     body,
		CreatedAt:   at,
	}, nil
}
