// Package service implements business logic, validation, and orchestration
// between HTTP handlers and the repository layer.
package service

import (
	"errors"
	"time"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/cache"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/events"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/repository"
)

// Business-rule rejections returned by the allocator.
var (
	ErrPastClass        = errors.New("cannot book a class that has already started")
	ErrNoAvailability   = errors.New("no slots available for this class")
	ErrDuplicateBooking = errors.New("you have already booked this class")
	ErrAlreadyCancelled = errors.New("booking is already cancelled")
)

// Option configures the services.
type Option func(*options)

type options struct {
	cache     *cache.ClassCache
	publisher events.Publisher
	loc       *time.Location
	now       func() time.Time
	validator *Validator
}

func newOptions(opts []Option) options {
	o := options{
		publisher: events.Noop{},
		loc:       time.UTC,
		now:       func() time.Time { return time.Now().UTC() },
	}
	for _, opt := range opts {
		opt(&o)
	}
	if o.validator == nil {
		o.validator = NewValidator()
	}
	return o
}

// WithCache sets the upcoming-classes cache. A nil cache disables caching.
func WithCache(c *cache.ClassCache) Option {
	return func(o *options) { o.cache = c }
}

// WithPublisher sets where booking events are sent after commit.
func WithPublisher(p events.Publisher) Option {
	return func(o *options) {
		if p != nil {
			o.publisher = p
		}
	}
}

// WithLocation sets the display timezone for views.
func WithLocation(loc *time.Location) Option {
	return func(o *options) {
		if loc != nil {
			o.loc = loc
		}
	}
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(o *options) { o.now = now }
}

// WithValidator shares one Validator between services.
func WithValidator(v *Validator) Option {
	return func(o *options) { o.validator = v }
}

// outcome labels an allocator result for metrics.
func outcome(err error) string {
	var verrs ValidationErrors
	switch {
	case err == nil:
		return "success"
	case errors.As(err, &verrs):
		return "invalid"
	case errors.Is(err, ErrPastClass):
		return "past_class"
	case errors.Is(err, ErrNoAvailability):
		return "no_availability"
	case errors.Is(err, ErrDuplicateBooking):
		return "duplicate_booking"
	case errors.Is(err, ErrAlreadyCancelled):
		return "already_cancelled"
	case errors.Is(err, repository.ErrNotFound):
		return "not_found"
	case errors.Is(err, repository.ErrRetryable):
		return "retryable"
	}
	return "error"
}
