// Package model defines the core domain types for the class booking system.
package model

import (
	"strings"
	"time"
)

// Category is the kind of fitness class on offer.
type Category string

const (
	CategoryYoga  Category = "YOGA"
	CategoryZumba Category = "ZUMBA"
	CategoryHIIT  Category = "HIIT"
)

// Categories lists every supported category in display order.
var Categories = []Category{CategoryYoga, CategoryZumba, CategoryHIIT}

// ParseCategory accepts a category name in any letter case.
func ParseCategory(s string) (Category, bool) {
	c := Category(strings.ToUpper(strings.TrimSpace(s)))
	return c, c.Valid()
}

// Valid reports whether c is one of the supported categories.
func (c Category) Valid() bool {
	switch c {
	case CategoryYoga, CategoryZumba, CategoryHIIT:
		return true
	}
	return false
}

// FitnessClass is a scheduled session with a fixed number of slots.
// AvailableSlots is kept equal to TotalSlots minus the class's active bookings.
type FitnessClass struct {
	ID             string    `json:"id"`
	Category       Category  `json:"category"`
	Instructor     string    `json:"instructor"`
	StartTime      time.Time `json:"start_time"`
	TotalSlots     int       `json:"total_slots"`
	AvailableSlots int       `json:"available_slots"`
	CreatedAt      time.Time `json:"created_at"`
	UpdatedAt      time.Time `json:"updated_at"`
}

// NewFitnessClass builds a class with its available slots clamped to [0, total].
func NewFitnessClass(id string, category Category, instructor string, start time.Time, total, available int) FitnessClass {
	c := FitnessClass{
		ID:             id,
		Category:       category,
		Instructor:     instructor,
		StartTime:      start,
		TotalSlots:     total,
		AvailableSlots: available,
	}
	c.Clamp()
	return c
}

// Clamp forces AvailableSlots into [0, TotalSlots].
func (c *FitnessClass) Clamp() {
	c.AvailableSlots = ClampSlots(c.AvailableSlots, c.TotalSlots)
}

// ClampSlots bounds available to [0, total].
func ClampSlots(available, total int) int {
	if available > total {
		available = total
	}
	if available < 0 {
		available = 0
	}
	return available
}

// IsPast reports whether the class has already started at now.
func (c *FitnessClass) IsPast(now time.Time) bool {
	return !c.StartTime.After(now)
}

// IsBookable reports whether a slot can still be taken at now.
func (c *FitnessClass) IsBookable(now time.Time) bool {
	return c.AvailableSlots > 0 && !c.IsPast(now)
}

// Booking is a client's claim on one slot of a class. A booking is active
// until it is cancelled; cancellation is terminal.
type Booking struct {
	ID          string        `json:"id"`
	ClassID     string        `json:"class_id"`
	ClientName  string        `json:"client_name"`
	ClientEmail string        `json:"client_email"`
	BookedAt    time.Time     `json:"booked_at"`
	IsCancelled bool          `json:"is_cancelled"`
	CancelledAt *time.Time    `json:"cancelled_at,omitempty"`
	Class       *FitnessClass `json:"-"`
}

// IsActive reports whether the booking still holds a slot.
func (b *Booking) IsActive() bool {
	return !b.IsCancelled
}

// NormalizeEmail trims and lower-cases an address so that uniqueness is
// decided case-insensitively.
func NormalizeEmail(email string) string {
	return strings.ToLower(strings.TrimSpace(email))
}

// BookRequest is the payload for booking a class.
type BookRequest struct {
	ClassID     string `json:"class_id" validate:"required"`
	ClientName  string `json:"client_name" validate:"required,max=100,clientname"`
	ClientEmail string `json:"client_email" validate:"required,max=254,email"`
}

// CreateClassRequest is the payload for scheduling a new class.
type CreateClassRequest struct {
	Category   string    `json:"category" validate:"required,oneof=YOGA ZUMBA HIIT"`
	Instructor string    `json:"instructor" validate:"required,max=100"`
	StartTime  time.Time `json:"start_time" validate:"required"`
	TotalSlots int       `json:"total_slots" validate:"min=1,max=10000"`
}

// ErrorResponse is a standard JSON error envelope.
type ErrorResponse struct {
	Error   string         `json:"error"`
	Code    string         `json:"code"`
	Details map[string]any `json:"details,omitempty"`
}

// BookingResult summarises the outcome of a single booking attempt.
// Used by the concurrent test harnesses.
type BookingResult struct {
	ClientEmail string
	Success     bool
	Error       error
}
