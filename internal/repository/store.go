// Package repository owns the persisted state of the booking system: fitness
// classes with their capacity counters and the booking ledger.
//
// Both pieces of state sit behind a single Store so that the capacity counter
// and the set of active bookings can only change together, inside one
// WithClassLock unit.
package repository

import (
	"context"
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

// ErrNotFound is returned when a requested class or booking does not exist.
var ErrNotFound = errors.New("not found")

// ErrConstraintViolation is returned when a write would create a second
// active booking for the same class and email.
var ErrConstraintViolation = errors.New("active booking already exists for this class and email")

// ErrRetryable is returned when exclusive access could not be obtained
// (deadlock, serialization failure, lock timeout). Nothing was committed and
// the whole operation may be attempted again.
var ErrRetryable = errors.New("transient conflict, retry the operation")

// Store is the class registry and booking ledger.
type Store interface {
	// CreateClass persists c, assigning an ID and timestamps when missing.
	CreateClass(ctx context.Context, c *model.FitnessClass) error
	// GetClass returns a committed snapshot of a class or ErrNotFound.
	GetClass(ctx context.Context, id string) (*model.FitnessClass, error)
	// ListUpcoming returns classes starting after now, earliest first.
	ListUpcoming(ctx context.Context, now time.Time) ([]model.FitnessClass, error)

	// GetBooking returns a committed snapshot of a booking or ErrNotFound.
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	// ListActiveFor returns the active bookings of email, newest first,
	// each with its class populated.
	ListActiveFor(ctx context.Context, email string) ([]model.Booking, error)
	// ListActiveForClass returns the active bookings of a class, oldest first.
	ListActiveForClass(ctx context.Context, classID string) ([]model.Booking, error)

	// WithClassLock runs fn while holding exclusive access to the class.
	// Every mutation made through tx is committed when fn returns nil and
	// discarded otherwise. Returns ErrNotFound if the class does not exist.
	WithClassLock(ctx context.Context, classID string, fn func(ctx context.Context, tx Tx) error) error
}

// Tx is the set of operations available while a class is exclusively held.
type Tx interface {
	// Class returns the locked class as modified so far in this unit.
	Class() model.FitnessClass
	// AdjustCapacity moves the available slots by delta, clamped to
	// [0, total], and returns the updated class.
	AdjustCapacity(ctx context.Context, delta int) (model.FitnessClass, error)

	HasActiveBooking(ctx context.Context, email string) (bool, error)
	// CreateBooking inserts an active booking. It fails with
	// ErrConstraintViolation when email already holds an active booking.
	CreateBooking(ctx context.Context, name, email string, at time.Time) (*model.Booking, error)
	// GetBooking returns a booking of the locked class or ErrNotFound.
	GetBooking(ctx context.Context, id string) (*model.Booking, error)
	// CancelBooking marks a booking of the locked class cancelled.
	CancelBooking(ctx context.Context, id string, at time.Time) (*model.Booking, error)
}
