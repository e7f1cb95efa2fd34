package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/cache"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/repository"
)

// CatalogService serves the read side: upcoming classes and a client's
// bookings. It also schedules new classes.
type CatalogService struct {
	store     repository.Store
	validator *Validator
	cache     *cache.ClassCache
	log       *zap.Logger
	loc       *time.Location
	now       func() time.Time
}

// NewCatalogService constructs a CatalogService with its dependencies.
func NewCatalogService(store repository.Store, log *zap.Logger, opts ...Option) *CatalogService {
	o := newOptions(opts)
	if log == nil {
		log = zap.NewNop()
	}
	return &CatalogService{
		store:     store,
		validator: o.validator,
		cache:     o.cache,
		log:       log.Named("catalog"),
		loc:       o.loc,
		now:       o.now,
	}
}

// Location returns the display timezone.
func (s *CatalogService) Location() *time.Location {
	return s.loc
}

// UpcomingClasses lists classes that have not started yet, earliest first.
func (s *CatalogService) UpcomingClasses(ctx context.Context) ([]model.ClassView, error) {
	now := s.now()
	classes, err := s.cache.Upcoming(ctx, func(ctx context.Context) ([]model.FitnessClass, error) {
		return s.store.ListUpcoming(ctx, now)
	})
	if err != nil {
		return nil, fmt.Errorf("list upcoming classes: %w", err)
	}

	// A cached list may hold classes that have started since it was filled.
	views := make([]model.ClassView, 0, len(classes))
	for _, c := range classes {
		if c.IsPast(now) {
			continue
		}
		views = append(views, model.NewClassView(c, now, s.loc))
	}
	return views, nil
}

// GetClass returns a single class by ID.
func (s *CatalogService) GetClass(ctx context.Context, id string) (*model.ClassView, error) {
	class, err := s.getClass(ctx, id)
	if err != nil {
		return nil, err
	}
	view := model.NewClassView(*class, s.now(), s.loc)
	return &view, nil
}

func (s *CatalogService) getClass(ctx context.Context, id string) (*model.FitnessClass, error) {
	id = strings.TrimSpace(id)
	if _, err := uuid.Parse(id); err != nil {
		return nil, fmt.Errorf("class %s: %w", id, repository.ErrNotFound)
	}
	class, err := s.store.GetClass(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("class %s: %w", id, err)
	}
	return class, nil
}

// BookingsFor returns the active bookings held by email, newest first.
// An address with no bookings yields an empty list.
func (s *CatalogService) BookingsFor(ctx context.Context, email string) ([]model.BookingView, error) {
	email = model.NormalizeEmail(email)
	if err := s.validator.Email(email); err != nil {
		return nil, err
	}

	bookings, err := s.store.ListActiveFor(ctx, email)
	if err != nil {
		return nil, fmt.Errorf("list bookings for %s: %w", email, err)
	}

	now := s.now()
	views := make([]model.BookingView, 0, len(bookings))
	for _, b := range bookings {
		views = append(views, model.NewBookingView(b, now, s.loc))
	}
	return views, nil
}

// ClassBookings returns the active bookings of a class, oldest first.
func (s *CatalogService) ClassBookings(ctx context.Context, classID string) ([]model.BookingView, error) {
	class, err := s.getClass(ctx, classID)
	if err != nil {
		return nil, err
	}

	bookings, err := s.store.ListActiveForClass(ctx, class.ID)
	if err != nil {
		return nil, fmt.Errorf("list bookings for class %s: %w", class.ID, err)
	}

	now := s.now()
	views := make([]model.BookingView, 0, len(bookings))
	for _, b := range bookings {
		if b.Class == nil {
			b.Class = class
		}
		views = append(views, model.NewBookingView(b, now, s.loc))
	}
	return views, nil
}

// CreateClass validates the request and schedules a class with every slot
// available.
func (s *CatalogService) CreateClass(ctx context.Context, req model.CreateClassRequest) (*model.ClassView, error) {
	req.Category = strings.ToUpper(strings.TrimSpace(req.Category))
	req.Instructor = strings.TrimSpace(req.Instructor)
	now := s.now()
	if err := s.validator.CreateClass(req, now); err != nil {
		return nil, err
	}

	class := model.NewFitnessClass("", model.Category(req.Category), req.Instructor,
		req.StartTime.UTC(), req.TotalSlots, req.TotalSlots)
	if err := s.store.CreateClass(ctx, &class); err != nil {
		return nil, fmt.Errorf("create class: %w", err)
	}
	if err := s.cache.Invalidate(ctx); err != nil {
		s.log.Warn("cache invalidation failed", zap.Error(err))
	}

	s.log.Info("class scheduled",
		zap.String("class_id", class.ID),
		zap.String("category", string(class.Category)),
		zap.Time("start_time", class.StartTime),
		zap.Int("total_slots", class.TotalSlots),
	)
	view := model.NewClassView(class, now, s.loc)
	return &view, nil
}
