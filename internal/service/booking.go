package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/cache"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/events"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/metrics"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/repository"
)

const publishTimeout = 2 * time.Second

// BookingService allocates and releases class slots. Every booking and
// cancellation runs under the class's exclusive lock, so the capacity
// counter and the ledger change together or not at all.
type BookingService struct {
	store     repository.Store
	validator *Validator
	cache     *cache.ClassCache
	publisher events.Publisher
	log       *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewBookingService constructs a BookingService with its dependencies.
func NewBookingService(store repository.Store, log *zap.Logger, opts ...Option) *BookingService {
	o := newOptions(opts)
	if log == nil {
		log = zap.NewNop()
	}
	return &BookingService{
		store:     store,
		validator: o.validator,
		cache:     o.cache,
		publisher: o.publisher,
		log:       log.Named("allocator"),
		loc:       o.loc,
		now:       o.now,
	}
}

// Book reserves one slot of a class for a client.
//
// The checks run in order under the class lock: the class must exist, must
// not have started, must have a free slot, and the email must not already
// hold an active booking for it.
func (s *BookingService) Book(ctx context.Context, req model.BookRequest) (*model.BookingView, error) {
	start := time.Now()
	req.ClassID = strings.TrimSpace(req.ClassID)
	req.ClientName = strings.TrimSpace(req.ClientName)
	req.ClientEmail = model.NormalizeEmail(req.ClientEmail)

	booking, err := s.book(ctx, req)
	metrics.RecordAllocation(metrics.OpBook, outcome(err), time.Since(start))
	if err != nil {
		s.logRejection("book", err,
			zap.String("class_id", req.ClassID),
			zap.String("client_email", req.ClientEmail),
		)
		return nil, err
	}

	s.log.Info("booking confirmed",
		zap.String("booking_id", booking.ID),
		zap.String("class_id", booking.ClassID),
		zap.String("client_email", booking.ClientEmail),
		zap.Int("available_slots", booking.Class.AvailableSlots),
	)
	s.afterCommit(ctx, events.TypeBookingConfirmed, *booking)

	view := model.NewBookingView(*booking, s.now(), s.loc)
	return &view, nil
}

func (s *BookingService) book(ctx context.Context, req model.BookRequest) (*model.Booking, error) {
	if err := s.validator.Book(req); err != nil {
		return nil, err
	}
	if _, err := uuid.Parse(req.ClassID); err != nil {
		return nil, fmt.Errorf("class %s: %w", req.ClassID, repository.ErrNotFound)
	}

	var booking *model.Booking
	err := s.store.WithClassLock(ctx, req.ClassID, func(ctx context.Context, tx repository.Tx) error {
		class := tx.Class()
		now := s.now()
		if class.IsPast(now) {
			return ErrPastClass
		}
		if class.AvailableSlots <= 0 {
			return ErrNoAvailability
		}

		exists, err := tx.HasActiveBooking(ctx, req.ClientEmail)
		if err != nil {
			return err
		}
		if exists {
			return ErrDuplicateBooking
		}

		b, err := tx.CreateBooking(ctx, req.ClientName, req.ClientEmail, now)
		if err != nil {
			return err
		}
		updated, err := tx.AdjustCapacity(ctx, -1)
		if err != nil {
			return err
		}
		b.Class = &updated
		booking = b
		return nil
	})
	if err != nil {
		if errors.Is(err, repository.ErrConstraintViolation) {
			return nil, fmt.Errorf("%w: %w", ErrDuplicateBooking, err)
		}
		if errors.Is(err, repository.ErrNotFound) {
			return nil, fmt.Errorf("class %s: %w", req.ClassID, err)
		}
		return nil, err
	}
	return booking, nil
}

// Cancel releases the slot held by an active booking. Cancelling twice
// returns ErrAlreadyCancelled and changes nothing.
func (s *BookingService) Cancel(ctx context.Context, bookingID string) error {
	start := time.Now()
	bookingID = strings.TrimSpace(bookingID)

	booking, err := s.cancel(ctx, bookingID)
	metrics.RecordAllocation(metrics.OpCancel, outcome(err), time.Since(start))
	if err != nil {
		s.logRejection("cancel", err, zap.String("booking_id", bookingID))
		return err
	}

	s.log.Info("booking cancelled",
		zap.String("booking_id", booking.ID),
		zap.String("class_id", booking.ClassID),
		zap.Int("available_slots", booking.Class.AvailableSlots),
	)
	s.afterCommit(ctx, events.TypeBookingCancelled, *booking)
	return nil
}

func (s *BookingService) cancel(ctx context.Context, bookingID string) (*model.Booking, error) {
	if _, err := uuid.Parse(bookingID); err != nil {
		return nil, fmt.Errorf("booking %s: %w", bookingID, repository.ErrNotFound)
	}

	// A booking never changes class, so the unlocked read only tells us
	// which lock to take. State is re-read once the lock is held.
	existing, err := s.store.GetBooking(ctx, bookingID)
	if err != nil {
		return nil, fmt.Errorf("booking %s: %w", bookingID, err)
	}

	var cancelled *model.Booking
	err = s.store.WithClassLock(ctx, existing.ClassID, func(ctx context.Context, tx repository.Tx) error {
		b, err := tx.GetBooking(ctx, bookingID)
		if err != nil {
			return err
		}
		if b.IsCancelled {
			return ErrAlreadyCancelled
		}

		b, err = tx.CancelBooking(ctx, bookingID, s.now())
		if err != nil {
			return err
		}
		updated, err := tx.AdjustCapacity(ctx, 1)
		if err != nil {
			return err
		}
		b.Class = &updated
		cancelled = b
		return nil
	})
	if err != nil {
		return nil, err
	}
	return cancelled, nil
}

// afterCommit runs the side effects of a committed change. Failures are
// logged and never undo the change.
func (s *BookingService) afterCommit(ctx context.Context, eventType string, b model.Booking) {
	ctx = context.WithoutCancel(ctx)

	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}

	pubCtx, cancel := context.WithTimeout(ctx, publishTimeout)
	defer cancel()
	if err := s.publisher.Publish(pubCtx, events.NewBookingEvent(eventType, b, s.now())); err != nil {
		metrics.RecordPublishFailure(eventType)
		s.log.Error("publish booking event",
			zap.String("type", eventType),
			zap.String("booking_id", b.ID),
			zap.Error(err),
		)
	}
}

func (s *BookingService) logRejection(op string, err error, fields ...zap.Field) {
	fields = append(fields, zap.String("op", op), zap.String("outcome", outcome(err)), zap.Error(err))
	switch outcome(err) {
	case "error":
		s.log.Error("allocator operation failed", fields...)
	case "retryable":
		s.log.Warn("allocator operation hit a lock conflict", fields...)
	default:
		s.log.Warn("allocator request rejected", fields...)
	}
}
