package http

import (
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/cultpass/bookings/internal/idempotency"
	"github.com/cultpass/bookings/internal/observability"
	"github.com/cultpass/bookings/internal/rateLimit"
)

func SetupRouter(h *Handlers, logger observability.Logger, rl *rateLimit.RateLimiter, idemp *idempotency.Idempotency) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Recoverer)
	r.Use(RequestIDMiddleware)
	r.Use(LoggerMiddleware(logger))
	r.Use(TracingMiddleware)
	r.Use(AuthMiddleware)
	r.Use(RateLimitMiddleware(rl))

	// Booking creation is the only write that charges credit, so it alone
	// demands an idempotency key.
	r.Group(func(r chi.Router) {
		r.Use(IdempotencyMiddleware(idemp, logger))
		r.Post("/v1/bookings", h.CreateBooking)
	})

	r.Post("/v1/bookings/{id}/cancel", h.CancelBooking)

	// Venue-side endpoints, reached through the pro portal.
	r.Get("/v1/bookings/token/{token}", h.GetBookingByToken)
	r.Patch("/v1/bookings/token/{token}/use", h.UseBookingByToken)
	r.Patch("/v1/bookings/token/{token}/unuse", h.UnuseBookingByToken)
	r.Post("/v1/pro/bookings/{id}/cancel", h.CancelBookingByOfferer)
	r.Post("/v1/pro/stocks/{id}/cancel-bookings", h.CancelStockBookings)

	// Internal back-office endpoints, not exposed at the edge.
	r.Post("/v1/internal/bookings/{id}/cancel-fraud", h.CancelBookingForFraud)
	r.Patch("/v1/internal/bookings/{id}/use-with-uncancel", h.UseBookingWithUncancel)

	r.Get("/v1/healthz", h.Healthz)
	r.Get("/metrics", promhttp.Handler().ServeHTTP)

	return r
}
