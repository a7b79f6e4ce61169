package domain

import (
	"strings"

	"github.com/cockroachdb/errors"
)

var (
	ErrInvalidCity            = errors.New("invalid city")
	ErrNotFound               = errors.New("not found")
	ErrInvalidSeatSelection   = errors.New("invalid seat selection")
	ErrSeatUnavailable        = errors.New("seat unavailable")
	ErrSelectionLimitExceeded = errors.New("selection limit exceeded")
	ErrBookingNotPending      = errors.New("booking not pending")
	ErrInvalidPricing         = errors.New("invalid pricing")
	ErrPaymentFailed          = errors.New("payment failed")
	ErrConcurrencyConflict    = errors.New("concurrency conflict")
)

// SeatUnavailableError names every requested seat that is already held or
// confirmed. It matches ErrSeatUnavailable.
type SeatUnavailableError struct {
	Seats []SeatID
}

func (e *SeatUnavailableError) Error() string {
	return "seat unavailable: " + strings.Join(e.Labels(), ", ")
}

func (e *SeatUnavailableError) Is(target error) bool {
	return target == ErrSeatUnavailable
}

func (e *SeatUnavailableError) Labels() []string {
	return Labels(e.Seats)
}

// IsExpected reports whether err is a business outcome rather than an
// infrastructure fault.
func IsExpected(err error) bool {
	return errors.IsAny(err,
		ErrInvalidCity,
		ErrNotFound,
		ErrInvalidSeatSelection,
		ErrSeatUnavailable,
		ErrSelectionLimitExceeded,
		ErrBookingNotPending,
		ErrInvalidPricing,
		ErrPaymentFailed,
		ErrConcurrencyConflict,
	)
}
