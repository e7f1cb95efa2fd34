// Package handler contains chi HTTP handlers that translate HTTP
// requests/responses to and from the service layer.
package handler

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/repository"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/service"
)

// Error codes carried in the JSON error body.
const (
	CodeValidation       = "VALIDATION_ERROR"
	CodeNotFound         = "NOT_FOUND"
	CodePastClass        = "PAST_CLASS"
	CodeNoAvailability   = "NO_AVAILABILITY"
	CodeDuplicateBooking = "DUPLICATE_BOOKING"
	CodeAlreadyCancelled = "ALREADY_CANCELLED"
	CodeRetryable        = "RETRYABLE"
	CodeInternal         = "INTERNAL_ERROR"
)

// BookingHandler holds all HTTP handlers for the class booking API.
type BookingHandler struct {
	catalog *service.CatalogService
	booking *service.BookingService
	log     *zap.Logger
}

// NewBookingHandler constructs a BookingHandler.
func NewBookingHandler(catalog *service.CatalogService, booking *service.BookingService, log *zap.Logger) *BookingHandler {
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingHandler{catalog: catalog, booking: booking, log: log.Named("http")}
}

// ─── Helper utilities ─────────────────────────────────────────────────────────

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, code, msg string, details map[string]any) {
	writeJSON(w, status, model.ErrorResponse{Error: msg, Code: code, Details: details})
}

func decodeJSON(r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(nil, r.Body, 1<<20) // 1 MB limit
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

// writeServiceError maps a service error onto a status and error code.
// details identifies the resource the request was about.
func (h *BookingHandler) writeServiceError(w http.ResponseWriter, r *http.Request, err error, details map[string]any) {
	var verrs service.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		writeError(w, http.StatusBadRequest, CodeValidation, "invalid request", map[string]any{"fields": verrs})
	case errors.Is(err, repository.ErrNotFound):
		writeError(w, http.StatusNotFound, CodeNotFound, "resource not found", details)
	case errors.Is(err, service.ErrPastClass):
		writeError(w, http.StatusConflict, CodePastClass, service.ErrPastClass.Error(), details)
	case errors.Is(err, service.ErrNoAvailability):
		writeError(w, http.StatusConflict, CodeNoAvailability, service.ErrNoAvailability.Error(), details)
	case errors.Is(err, service.ErrDuplicateBooking):
		writeError(w, http.StatusConflict, CodeDuplicateBooking, service.ErrDuplicateBooking.Error(), details)
	case errors.Is(err, service.ErrAlreadyCancelled):
		writeError(w, http.StatusConflict, CodeAlreadyCancelled, service.ErrAlreadyCancelled.Error(), details)
	case errors.Is(err, repository.ErrRetryable):
		w.Header().Set("Retry-After", "1")
		writeError(w, http.StatusServiceUnavailable, CodeRetryable, "the class is busy, please try again", details)
	default:
		h.log.Error("unhandled service error",
			zap.String("method", r.Method),
			zap.String("path", r.URL.Path),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, CodeInternal, "internal server error", nil)
	}
}

func badBody(w http.ResponseWriter, err error) {
	writeError(w, http.StatusBadRequest, CodeValidation, "invalid request body: "+err.Error(), nil)
}

// ─── Handlers ─────────────────────────────────────────────────────────────────

// ListClasses handles GET /api/classes
// Returns the classes that have not started yet, earliest first.
func (h *BookingHandler) ListClasses(w http.ResponseWriter, r *http.Request) {
	classes, err := h.catalog.UpcomingClasses(r.Context())
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, classes)
}

// CreateClass handles POST /api/classes
func (h *BookingHandler) CreateClass(w http.ResponseWriter, r *http.Request) {
	var req model.CreateClassRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, err)
		return
	}

	class, err := h.catalog.CreateClass(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusCreated, class)
}

// GetClass handles GET /api/classes/{id}
func (h *BookingHandler) GetClass(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	class, err := h.catalog.GetClass(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, map[string]any{"class_id": id})
		return
	}
	writeJSON(w, http.StatusOK, class)
}

// ClassBookings handles GET /api/classes/{id}/bookings
// Returns the active roster of a class.
func (h *BookingHandler) ClassBookings(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	bookings, err := h.catalog.ClassBookings(r.Context(), id)
	if err != nil {
		h.writeServiceError(w, r, err, map[string]any{"class_id": id})
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// Book handles POST /api/book
// Reserves one slot of a class for the client.
func (h *BookingHandler) Book(w http.ResponseWriter, r *http.Request) {
	var req model.BookRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, err)
		return
	}

	booking, err := h.booking.Book(r.Context(), req)
	if err != nil {
		h.writeServiceError(w, r, err, map[string]any{"class_id": req.ClassID})
		return
	}
	writeJSON(w, http.StatusCreated, booking)
}

// ListBookings handles GET /api/bookings?email=
// Returns the client's active bookings, newest first.
func (h *BookingHandler) ListBookings(w http.ResponseWriter, r *http.Request) {
	bookings, err := h.catalog.BookingsFor(r.Context(), r.URL.Query().Get("email"))
	if err != nil {
		h.writeServiceError(w, r, err, nil)
		return
	}
	writeJSON(w, http.StatusOK, bookings)
}

// CancelBooking handles POST /api/bookings/{id}/cancel
func (h *BookingHandler) CancelBooking(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")

	if err := h.booking.Cancel(r.Context(), id); err != nil {
		h.writeServiceError(w, r, err, map[string]any{"booking_id": id})
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

// ─── Health check ─────────────────────────────────────────────────────────────

// HealthCheck handles GET /health
func HealthCheck(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}
