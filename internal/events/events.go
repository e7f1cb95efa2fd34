// Package events publishes booking lifecycle events to a message broker after
// the corresponding change has been committed.
package events

import (
	"context"
	"encoding/json"
	"time"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

// Event types, also used as RabbitMQ queue names.
const (
	TypeBookingConfirmed = "booking.confirmed"
	TypeBookingCancelled = "booking.cancelled"
)

// BookingEvent carries enough detail for downstream consumers to notify the
// client or update reporting without querying the primary database.
type BookingEvent struct {
	Type           string    `json:"type"`
	BookingID      string    `json:"booking_id"`
	ClassID        string    `json:"class_id"`
	Category       string    `json:"category"`
	Instructor     string    `json:"instructor"`
	StartsAt       time.Time `json:"starts_at"`
	ClientName     string    `json:"client_name"`
	ClientEmail    string    `json:"client_email"`
	AvailableSlots int       `json:"available_slots"`
	OccurredAt     time.Time `json:"occurred_at"`
}

// NewBookingEvent describes b, whose Class reflects the committed capacity.
func NewBookingEvent(eventType string, b model.Booking, at time.Time) BookingEvent {
	e := BookingEvent{
		Type:        eventType,
		BookingID:   b.ID,
		ClassID:     b.ClassID,
		ClientName:  b.ClientName,
		ClientEmail: b.ClientEmail,
		OccurredAt:  at.UTC(),
	}
	if b.Class != nil {
		e.Category = string(b.Class.Category)
		e.Instructor = b.Class.Instructor
		e.StartsAt = b.Class.StartTime.UTC()
		e.AvailableSlots = b.Class.AvailableSlots
	}
	return e
}

// Marshal encodes the event as JSON.
func (e BookingEvent) Marshal() ([]byte, error) {
	return json.Marshal(e)
}

// Publisher delivers booking events.
type Publisher interface {
	Publish(ctx context.Context, e BookingEvent) error
	Close() error
}

// Noop discards every event.
type Noop struct{}

func (Noop) Publish(context.Context, BookingEvent) error { return nil }
func (Noop) Close() error                                { return nil }
