package repository

import (
	"cmp"
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

// MemoryStore is an in-process Store. Exclusive access is a per-class lock
// whose acquisition respects context cancellation; writes made inside a unit
// are staged and applied under the store mutex on commit, so readers never
// observe half of a unit.
type MemoryStore struct {
	mu       sync.RWMutex
	classes  map[string]model.FitnessClass
	bookings map[string]model.Booking
	active   map[activeKey]string // (class, email) -> active booking id

	locksMu sync.Mutex
	locks   map[string]chan struct{}
}

type activeKey struct {
	classID string
	email   string
}

// NewMemoryStore constructs an empty MemoryStore.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		classes:  make(map[string]model.FitnessClass),
		bookings: make(map[string]model.Booking),
		active:   make(map[activeKey]string),
		locks:    make(map[string]chan struct{}),
	}
}

// CreateClass stores a new class with its capacity clamped.
func (s *MemoryStore) CreateClass(ctx context.Context, c *model.FitnessClass) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if c.CreatedAt.IsZero() {
		c.CreatedAt = now
	}
	c.UpdatedAt = now
	c.Clamp()

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.classes[c.ID]; ok {
		return fmt.Errorf("insert class: id %s already exists", c.ID)
	}
	s.classes[c.ID] = *c
	return nil
}

// GetClass returns a class or ErrNotFound.
func (s *MemoryStore) GetClass(ctx context.Context, id string) (*model.FitnessClass, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.classes[id]
	if !ok {
		return nil, ErrNotFound
	}
	return &c, nil
}

// ListUpcoming returns classes starting after now, earliest first.
func (s *MemoryStore) ListUpcoming(ctx context.Context, now time.Time) ([]model.FitnessClass, error) {
	s.mu.RLock()
	var classes []model.FitnessClass
	for _, c := range s.classes {
		if c.StartTime.After(now) {
			classes = append(classes, c)
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(classes, func(a, b model.FitnessClass) int {
		if n := a.StartTime.Compare(b.StartTime); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return classes, nil
}

// GetBooking returns a booking with its class, or ErrNotFound.
func (s *MemoryStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	b, ok := s.bookings[id]
	if !ok {
		return nil, ErrNotFound
	}
	s.attachClass(&b)
	return &b, nil
}

// ListActiveFor returns the active bookings of email, newest first.
func (s *MemoryStore) ListActiveFor(ctx context.Context, email string) ([]model.Booking, error) {
	bookings := s.filterActive(func(b model.Booking) bool { return b.ClientEmail == email })
	slices.SortFunc(bookings, func(a, b model.Booking) int {
		if n := b.BookedAt.Compare(a.BookedAt); n != 0 {
			return n
		}
		return cmp.Compare(b.ID, a.ID)
	})
	return bookings, nil
}

// ListActiveForClass returns the active bookings of a class, oldest first.
func (s *MemoryStore) ListActiveForClass(ctx context.Context, classID string) ([]model.Booking, error) {
	bookings := s.filterActive(func(b model.Booking) bool { return b.ClassID == classID })
	slices.SortFunc(bookings, func(a, b model.Booking) int {
		if n := a.BookedAt.Compare(b.BookedAt); n != 0 {
			return n
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return bookings, nil
}

func (s *MemoryStore) filterActive(keep func(model.Booking) bool) []model.Booking {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []model.Booking
	for _, b := range s.bookings {
		if b.IsActive() && keep(b) {
			s.attachClass(&b)
			out = append(out, b)
		}
	}
	return out
}

// attachClass must be called with s.mu held.
func (s *MemoryStore) attachClass(b *model.Booking) {
	if c, ok := s.classes[b.ClassID]; ok {
		b.Class = &c
	}
}

func (s *MemoryStore) lockFor(classID string) chan struct{} {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[classID]
	if !ok {
		l = make(chan struct{}, 1)
		s.locks[classID] = l
	}
	return l
}

// WithClassLock serialises fn against every other unit on the same class.
// Units on different classes run in parallel.
func (s *MemoryStore) WithClassLock(ctx context.Context, classID string, fn func(ctx context.Context, tx Tx) error) error {
	if _, err := s.GetClass(ctx, classID); err != nil {
		return err
	}

	lock := s.lockFor(classID)
	select {
	case lock <- struct{}{}:
	case <-ctx.Done():
		return fmt.Errorf("%w: acquire class %s: %v", ErrRetryable, classID, ctx.Err())
	}
	defer func() { <-lock }()

	s.mu.RLock()
	class := s.classes[classID]
	s.mu.RUnlock()

	tx := &memoryTx{
		store:     s,
		class:     class,
		cancelled: make(map[string]model.Booking),
	}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *MemoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	for _, b := range tx.created {
		if !b.IsActive() {
			continue
		}
		if id, ok := s.active[activeKey{b.ClassID, b.ClientEmail}]; ok {
			if _, released := tx.cancelled[id]; !released {
				return ErrConstraintViolation
			}
		}
	}

	for id, b := range tx.cancelled {
		b.Class = nil
		s.bookings[id] = b
		delete(s.active, activeKey{b.ClassID, b.ClientEmail})
	}
	for _, b := range tx.created {
		b.Class = nil
		s.bookings[b.ID] = b
		if b.IsActive() {
			s.active[activeKey{b.ClassID, b.ClientEmail}] = b.ID
		}
	}
	if tx.dirty {
		s.classes[tx.class.ID] = tx.class
	}
	return nil
}

// memoryTx stages the writes of one WithClassLock unit.
type memoryTx struct {
	store     *MemoryStore
	class     model.FitnessClass
	dirty     bool
	created   []model.Booking
	cancelled map[string]model.Booking
}

func (t *memoryTx) Class() model.FitnessClass {
	return t.class
}

func (t *memoryTx) AdjustCapacity(ctx context.Context, delta int) (model.FitnessClass, error) {
	t.class.AvailableSlots = model.ClampSlots(t.class.AvailableSlots+delta, t.class.TotalSlots)
	t.class.UpdatedAt = time.Now().UTC()
	t.dirty = true
	return t.class, nil
}

func (t *memoryTx) HasActiveBooking(ctx context.Context, email string) (bool, error) {
	for _, b := range t.created {
		if b.ClientEmail == email && b.IsActive() {
			return true, nil
		}
	}

	t.store.mu.RLock()
	id, ok := t.store.active[activeKey{t.class.ID, email}]
	t.store.mu.RUnlock()
	if !ok {
		return false, nil
	}
	_, released := t.cancelled[id]
	return !released, nil
}

func (t *memoryTx) CreateBooking(ctx context.Context, name, email string, at time.Time) (*model.Booking, error) {
	exists, err := t.HasActiveBooking(ctx, email)
	if err != nil {
		return nil, err
	}
	if exists {
		return nil, ErrConstraintViolation
	}

	b := model.Booking{
		ID:          uuid.New().String(),
		ClassID:     t.class.ID,
		ClientName:  name,
		ClientEmail: email,
		BookedAt:    at.UTC(),
	}
	t.created = append(t.created, b)
	return t.withClass(b), nil
}

func (t *memoryTx) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	for _, b := range t.created {
		if b.ID == id {
			return t.withClass(b), nil
		}
	}
	if b, ok := t.cancelled[id]; ok {
		return t.withClass(b), nil
	}

	t.store.mu.RLock()
	b, ok := t.store.bookings[id]
	t.store.mu.RUnlock()
	if !ok || b.ClassID != t.class.ID {
		return nil, ErrNotFound
	}
	return t.withClass(b), nil
}

func (t *memoryTx) CancelBooking(ctx context.Context, id string, at time.Time) (*model.Booking, error) {
	b, err := t.GetBooking(ctx, id)
	if err != nil {
		return nil, err
	}
	if b.IsCancelled {
		return b, nil
	}

	cancelledAt := at.UTC()
	b.IsCancelled = true
	b.CancelledAt = &cancelledAt
	b.Class = nil

	for i := range t.created {
		if t.created[i].ID == id {
			t.created[i] = *b
			return t.withClass(*b), nil
		}
	}
	t.cancelled[id] = *b
	return t.withClass(*b), nil
}

func (t *memoryTx) withClass(b model.Booking) *model.Booking {
	c := t.class
	b.Class = &c
	return &b
}
