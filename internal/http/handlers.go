package http

import (
	"context"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/robertarktes/showtime-booking/internal/booking"
	"github.com/robertarktes/showtime-booking/internal/domain"
	"github.com/robertarktes/showtime-booking/internal/eligibility"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/seatmap"
)

type Classifier interface {
	Classify(ctx context.Context, city string, refDate domain.Date) (eligibility.Classification, error)
}

type SeatResolver interface {
	Resolve(ctx context.Context, showtimeID uuid.UUID) (seatmap.SeatMap, error)
}

type Bookings interface {
	Hold(ctx context.Context, req booking.HoldRequest) (booking.HoldResult, error)
	ConfirmPayment(ctx context.Context, bookingID uuid.UUID, paymentToken string) (booking.Result, error)
	Cancel(ctx context.Context, bookingID uuid.UUID) (booking.Result, error)
	Get(ctx context.Context, bookingID uuid.UUID) (domain.Booking, error)
}

type Pinger interface {
	Ping(ctx context.Context) error
}

type Handlers struct {
	classifier Classifier
	seats      SeatResolver
	bookings   Bookings
	readiness  []Pinger
	logger     observability.Logger
}

func NewHandlers(classifier Classifier, seats SeatResolver, bookings Bookings, logger observability.Logger, readiness ...Pinger) *Handlers {
	return &Handlers{
		classifier: classifier,
		seats:      seats,
		bookings:   bookings,
		readiness:  readiness,
		logger:     logger,
	}
}

type classificationResponse struct {
	eligibility.Classification
	Date string `json:"date"`
}

func (h *Handlers) ListMovies(w http.ResponseWriter, r *http.Request) {
	var date domain.Date
	if v := r.URL.Query().Get("date"); v != "" {
		d, err := domain.ParseDate(v)
		if err != nil {
			writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid date, want YYYY-MM-DD"})
			return
		}
		date = d
	}
	res, err := h.classifier.Classify(r.Context(), chi.URLParam(r, "city"), date)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, classificationResponse{Classification: res, Date: res.Date.String()})
}

type seatMapResponse struct {
	seatmap.SeatMap
	Counts map[domain.SeatState]int `json:"counts"`
}

func (h *Handlers) GetSeatMap(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	m, err := h.seats.Resolve(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, seatMapResponse{SeatMap: m, Counts: m.Counts()})
}

type holdRequest struct {
	Seats       []string `json:"seats"`
	CustomerRef string   `json:"customer_ref"`
}

type holdResponse struct {
	BookingID  uuid.UUID       `json:"booking_id"`
	ExpiresAt  time.Time       `json:"expires_at"`
	Seats      []string        `json:"seats"`
	TotalPrice decimal.Decimal `json:"total_price"`
}

func (h *Handlers) CreateHold(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req holdRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.bookings.Hold(r.Context(), booking.HoldRequest{
		ShowtimeID:  id,
		Seats:       req.Seats,
		CustomerRef: strings.TrimSpace(req.CustomerRef),
	})
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	labels := make([]string, len(res.Seats))
	for i, s := range res.Seats {
		labels[i] = s.Seat.Label()
	}
	writeJSON(w, http.StatusCreated, holdResponse{
		BookingID:  res.BookingID,
		ExpiresAt:  res.ExpiresAt.UTC(),
		Seats:      labels,
		TotalPrice: res.Total,
	})
}

type confirmRequest struct {
	PaymentToken string `json:"payment_token"`
}

type resultResponse struct {
	BookingID  uuid.UUID            `json:"booking_id"`
	Status     domain.BookingStatus `json:"status"`
	TotalPrice *decimal.Decimal     `json:"total_price,omitempty"`
	Seats      []string             `json:"seats,omitempty"`
}

func (h *Handlers) ConfirmBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	var req confirmRequest
	if !decode(w, r, &req) {
		return
	}
	res, err := h.bookings.ConfirmPayment(r.Context(), id, req.PaymentToken)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	total := res.TotalPrice
	writeJSON(w, http.StatusOK, resultResponse{
		BookingID:  res.BookingID,
		Status:     res.Status,
		TotalPrice: &total,
		Seats:      res.SeatLabels,
	})
}

func (h *Handlers) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	res, err := h.bookings.Cancel(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, resultResponse{BookingID: res.BookingID, Status: res.Status})
}

type bookedSeatView struct {
	Label    string              `json:"label"`
	Category domain.SeatCategory `json:"category"`
	Price    decimal.Decimal     `json:"price"`
}

type bookingView struct {
	BookingID    uuid.UUID            `json:"booking_id"`
	ShowtimeID   uuid.UUID            `json:"showtime_id"`
	CustomerRef  string               `json:"customer_ref"`
	Status       domain.BookingStatus `json:"status"`
	Seats        []bookedSeatView     `json:"seats"`
	TotalPrice   decimal.Decimal      `json:"total_price"`
	CancelReason domain.CancelReason  `json:"cancel_reason,omitempty"`
	CreatedAt    time.Time            `json:"created_at"`
	ExpiresAt    *time.Time           `json:"expires_at,omitempty"`
	ConfirmedAt  *time.Time           `json:"confirmed_at,omitempty"`
	CancelledAt  *time.Time           `json:"cancelled_at,omitempty"`
}

func viewOf(b domain.Booking) bookingView {
	v := bookingView{
		BookingID:    b.ID,
		ShowtimeID:   b.ShowtimeID,
		CustomerRef:  b.CustomerRef,
		Status:       b.Status,
		Seats:        make([]bookedSeatView, len(b.Seats)),
		TotalPrice:   b.TotalPrice,
		CancelReason: b.CancelReason,
		CreatedAt:    b.CreatedAt,
		ConfirmedAt:  b.ConfirmedAt,
		CancelledAt:  b.CancelledAt,
	}
	for i, s := range b.Seats {
		v.Seats[i] = bookedSeatView{Label: s.Seat.Label(), Category: s.Category, Price: s.Price}
	}
	if b.Status == domain.StatusPending {
		exp := b.ExpiresAt
		v.ExpiresAt = &exp
		v.TotalPrice = b.SeatTotal()
	}
	return v
}

func (h *Handlers) GetBooking(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(w, r)
	if !ok {
		return
	}
	b, err := h.bookings.Get(r.Context(), id)
	if err != nil {
		h.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, viewOf(b))
}

func (h *Handlers) Healthz(w http.ResponseWriter, r *http.Request) {
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("OK"))
}

func (h *Handlers) Readyz(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	for _, p := range h.readiness {
		if err := p.Ping(ctx); err != nil {
			loggerFrom(r.Context(), h.logger).WithError(err).Warn("readiness check failed")
			http.Error(w, "not ready", http.StatusServiceUnavailable)
			return
		}
	}
	w.WriteHeader(http.StatusOK)
	_, _ = w.Write([]byte("Ready"))
}

type errorBody struct {
	Error string   `json:"error"`
	Seats []string `json:"seats,omitempty"`
	Retry bool     `json:"retry,omitempty"`
}

// writeError maps business outcomes to status codes. Anything unexpected is
// logged and hidden behind a 503.
func (h *Handlers) writeError(w http.ResponseWriter, r *http.Request, err error) {
	var unavailable *domain.SeatUnavailableError
	switch {
	case errors.As(err, &unavailable):
		writeJSON(w, http.StatusConflict, errorBody{Error: "seat unavailable", Seats: unavailable.Labels()})
	case errors.Is(err, domain.ErrSeatUnavailable):
		writeJSON(w, http.StatusConflict, errorBody{Error: "seat unavailable"})
	case errors.Is(err, domain.ErrConcurrencyConflict):
		writeJSON(w, http.StatusConflict, errorBody{Error: "concurrent update, try again", Retry: true})
	case errors.Is(err, domain.ErrBookingNotPending):
		writeJSON(w, http.StatusConflict, errorBody{Error: "booking is not pending"})
	case errors.Is(err, domain.ErrInvalidCity):
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid city"})
	case errors.Is(err, domain.ErrNotFound):
		writeJSON(w, http.StatusNotFound, errorBody{Error: "not found"})
	case errors.Is(err, domain.ErrInvalidSeatSelection):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrSelectionLimitExceeded):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: err.Error()})
	case errors.Is(err, domain.ErrInvalidPricing):
		writeJSON(w, http.StatusUnprocessableEntity, errorBody{Error: "invalid pricing"})
	case errors.Is(err, domain.ErrPaymentFailed):
		writeJSON(w, http.StatusPaymentRequired, errorBody{Error: err.Error()})
	default:
		loggerFrom(r.Context(), h.logger).WithError(err).Error("request failed")
		writeJSON(w, http.StatusServiceUnavailable, errorBody{Error: "service unavailable"})
		return
	}
	loggerFrom(r.Context(), h.logger).WithField("outcome", err.Error()).Debug("request rejected")
}

func pathID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

func decode(w http.ResponseWriter, r *http.Request, v interface{}) bool {
	dec := json.NewDecoder(http.MaxBytesReader(w, r.Body, 1<<16))
	if err := dec.Decode(v); err != nil {
		writeJSON(w, http.StatusBadRequest, errorBody{Error: "malformed request body"})
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}
