package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/robertarktes/showtime-booking/internal/idempotency"
	"github.com/robertarktes/showtime-booking/internal/observability"
	"github.com/robertarktes/showtime-booking/internal/rateLimit"
)

// SetupRouter wires the public API. rl and idemp may be nil.
func SetupRouter(h *Handlers, logger observability.Logger, rl rateLimit.Limiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(MetricsMiddleware)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/v1/readyz", h.Readyz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	r.Group(func(r chi.Router) {
		r.Use(TracingMiddleware)
		r.Use(RateLimitMiddleware(rl, logger))
		r.Use(IdempotencyMiddleware(idemp, logger))

		r.Get("/v1/cities/{city}/movies", h.ListMovies)
		r.Get("/v1/showtimes/{id}/seats", h.GetSeatMap)
		r.Post("/v1/showtimes/{id}/holds", h.CreateHold)
		r.Get("/v1/bookings/{id}", h.GetBooking)
		r.Post("/v1/bookings/{id}/confirm", h.ConfirmBooking)
		r.Post("/v1/bookings/{id}/cancel", h.CancelBooking)
	})

	return r
}
