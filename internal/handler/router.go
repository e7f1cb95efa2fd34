package handler

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	chimiddleware "github.com/go-chi/chi/v5/middleware"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
)

// NewRouter builds the chi router with the global middleware stack.
// A nil gatherer leaves /metrics unmounted.
func NewRouter(h *BookingHandler, gatherer prometheus.Gatherer, log *zap.Logger) http.Handler {
	if log == nil {
		log = zap.NewNop()
	}
	r := chi.NewRouter()

	r.Use(chimiddleware.Recoverer) // recover from panics, return 500
	r.Use(chimiddleware.RequestID)
	r.Use(chimiddleware.RealIP)
	r.Use(Logger(log))
	r.Use(CORS)

	r.Get("/health", HealthCheck)
	if gatherer != nil {
		r.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))
	}

	r.Route("/api", func(r chi.Router) {
		r.Get("/classes", h.ListClasses)
		r.Post("/classes", h.CreateClass)
		r.Get("/classes/{id}", h.GetClass)
		r.Get("/classes/{id}/bookings", h.ClassBookings)

		r.Post("/book", h.Book)
		r.Get("/bookings", h.ListBookings)
		r.Post("/bookings/{id}/cancel", h.CancelBooking)
	})

	return r
}
