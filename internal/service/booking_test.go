package service

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/events"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/repository"
)

var testNow = time.Date(2026, 10, 16, 10, 0, 0, 0, time.UTC)

type recordingPublisher struct {
	mu     sync.Mutex
	events []events.BookingEvent
	err    error
}

func (p *recordingPublisher) Publish(_ context.Context, e events.BookingEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, e)
	return p.err
}

func (p *recordingPublisher) Close() error { return nil }

func (p *recordingPublisher) types() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, 0, len(p.events))
	for _, e := range p.events {
		out = append(out, e.Type)
	}
	return out
}

func newTestBookingService(t *testing.T, opts ...Option) (*BookingService, *repository.MemoryStore) {
	t.Helper()
	store := repository.NewMemoryStore()
	opts = append([]Option{WithClock(func() time.Time { return testNow })}, opts...)
	return NewBookingService(store, nil, opts...), store
}

func seedClass(t *testing.T, store *repository.MemoryStore, start time.Time, total int) model.FitnessClass {
	t.Helper()
	c := model.NewFitnessClass("", model.CategoryHIIT, "Karan Singh", start, total, total)
	require.NoError(t, store.CreateClass(context.Background(), &c))
	return c
}

func availableSlots(t *testing.T, store *repository.MemoryStore, classID string) int {
	t.Helper()
	c, err := store.GetClass(context.Background(), classID)
	require.NoError(t, err)
	return c.AvailableSlots
}

func bookReq(classID, name, email string) model.BookRequest {
	return model.BookRequest{ClassID: classID, ClientName: name, ClientEmail: email}
}

func TestBook_Success(t *testing.T) {
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(24*time.Hour), 2)

	view, err := svc.Book(context.Background(), bookReq(class.ID, "  Jane Doe ", " Jane@X.com"))
	require.NoError(t, err)

	assert.NotEmpty(t, view.ID)
	assert.Equal(t, "Jane Doe", view.ClientName)
	assert.Equal(t, "jane@x.com", view.ClientEmail)
	assert.Equal(t, class.ID, view.Class.ID)
	assert.Equal(t, 1, view.Class.AvailableSlots)
	assert.False(t, view.IsCancelled)
	assert.Equal(t, 1, availableSlots(t, store, class.ID))

	active, err := store.ListActiveFor(context.Background(), "jane@x.com")
	require.NoError(t, err)
	require.Len(t, active, 1)
	assert.Equal(t, view.ID, active[0].ID)
}

func TestBook_SingleSlotThenCancelAndRebook(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(24*time.Hour), 1)

	jane, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)
	assert.Equal(t, 0, availableSlots(t, store, class.ID))

	_, err = svc.Book(ctx, bookReq(class.ID, "John Roe", "john@x.com"))
	assert.ErrorIs(t, err, ErrNoAvailability)
	assert.Equal(t, 0, availableSlots(t, store, class.ID))

	require.NoError(t, svc.Cancel(ctx, jane.ID))
	assert.Equal(t, 1, availableSlots(t, store, class.ID))

	john, err := svc.Book(ctx, bookReq(class.ID, "John Roe", "john@x.com"))
	require.NoError(t, err)
	assert.Equal(t, 0, john.Class.AvailableSlots)
}

func TestBook_Duplicate(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 3)

	_, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)

	_, err = svc.Book(ctx, bookReq(class.ID, "Jane Doe", " JANE@x.com "))
	assert.ErrorIs(t, err, ErrDuplicateBooking)
	assert.Equal(t, 2, availableSlots(t, store, class.ID))
}

func TestBook_RebookAfterCancel(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 3)

	first, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)
	require.NoError(t, svc.Cancel(ctx, first.ID))

	second, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)
	assert.NotEqual(t, first.ID, second.ID)
	assert.Equal(t, 2, availableSlots(t, store, class.ID))
}

func TestBook_StartBoundary(t *testing.T) {
	tests := []struct {
		name    string
		start   time.Time
		wantErr error
	}{
		{name: "started one second ago", start: testNow.Add(-time.Second), wantErr: ErrPastClass},
		{name: "starts exactly now", start: testNow, wantErr: ErrPastClass},
		{name: "starts in one second", start: testNow.Add(time.Second)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, store := newTestBookingService(t)
			class := seedClass(t, store, tt.start, 5)

			_, err := svc.Book(context.Background(), bookReq(class.ID, "Jane Doe", "jane@x.com"))
			if tt.wantErr != nil {
				assert.ErrorIs(t, err, tt.wantErr)
				assert.Equal(t, 5, availableSlots(t, store, class.ID))
				return
			}
			require.NoError(t, err)
			assert.Equal(t, 4, availableSlots(t, store, class.ID))
		})
	}
}

func TestBook_PastCheckedBeforeAvailability(t *testing.T) {
	svc, store := newTestBookingService(t)
	class := model.NewFitnessClass("", model.CategoryYoga, "Priya Sharma", testNow.Add(-time.Hour), 5, 0)
	require.NoError(t, store.CreateClass(context.Background(), &class))

	_, err := svc.Book(context.Background(), bookReq(class.ID, "Jane Doe", "jane@x.com"))
	assert.ErrorIs(t, err, ErrPastClass)
}

func TestBook_ClassNotFound(t *testing.T) {
	svc, _ := newTestBookingService(t)

	for _, id := range []string{uuid.NewString(), "not-a-uuid"} {
		_, err := svc.Book(context.Background(), bookReq(id, "Jane Doe", "jane@x.com"))
		assert.ErrorIs(t, err, repository.ErrNotFound, id)
	}
}

func TestBook_Validation(t *testing.T) {
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 5)

	tests := []struct {
		name      string
		req       model.BookRequest
		wantField string
	}{
		{name: "missing class", req: bookReq("", "Jane Doe", "jane@x.com"), wantField: "class_id"},
		{name: "missing name", req: bookReq(class.ID, "   ", "jane@x.com"), wantField: "client_name"},
		{name: "name with digits", req: bookReq(class.ID, "Jane 2", "jane@x.com"), wantField: "client_name"},
		{name: "name too long", req: bookReq(class.ID, strings.Repeat("a", 101), "jane@x.com"), wantField: "client_name"},
		{name: "missing email", req: bookReq(class.ID, "Jane Doe", ""), wantField: "client_email"},
		{name: "malformed email", req: bookReq(class.ID, "Jane Doe", "jane-at-x"), wantField: "client_email"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Book(context.Background(), tt.req)

			var verrs ValidationErrors
			require.True(t, errors.As(err, &verrs), "got %v", err)
			fields := make([]string, 0, len(verrs))
			for _, v := range verrs {
				fields = append(fields, v.Field)
			}
			assert.Contains(t, fields, tt.wantField)
		})
	}
	assert.Equal(t, 5, availableSlots(t, store, class.ID))
}

func TestBook_NameAllowsPeriods(t *testing.T) {
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 5)

	_, err := svc.Book(context.Background(), bookReq(class.ID, "Dr. A. Kumar", "ak@x.com"))
	assert.NoError(t, err)
}

func TestCancel_Twice(t *testing.T) {
	ctx := context.Background()
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 3)

	b, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)
	require.Equal(t, 2, availableSlots(t, store, class.ID))

	require.NoError(t, svc.Cancel(ctx, b.ID))
	assert.Equal(t, 3, availableSlots(t, store, class.ID))

	err = svc.Cancel(ctx, b.ID)
	assert.ErrorIs(t, err, ErrAlreadyCancelled)
	assert.Equal(t, 3, availableSlots(t, store, class.ID))

	stored, err := store.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, stored.IsCancelled)
	require.NotNil(t, stored.CancelledAt)
	assert.True(t, stored.CancelledAt.Equal(testNow))
}

func TestCancel_NotFound(t *testing.T) {
	svc, _ := newTestBookingService(t)

	assert.ErrorIs(t, svc.Cancel(context.Background(), uuid.NewString()), repository.ErrNotFound)
	assert.ErrorIs(t, svc.Cancel(context.Background(), "nope"), repository.ErrNotFound)
}

func TestCancel_PastClassStillReleasesSlot(t *testing.T) {
	ctx := context.Background()
	clock := testNow
	store := repository.NewMemoryStore()
	svc := NewBookingService(store, nil, WithClock(func() time.Time { return clock }))
	class := seedClass(t, store, testNow.Add(time.Hour), 2)

	b, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)

	clock = testNow.Add(2 * time.Hour)
	require.NoError(t, svc.Cancel(ctx, b.ID))
	assert.Equal(t, 2, availableSlots(t, store, class.ID))
}

func TestBook_ConcurrentSingleSlot(t *testing.T) {
	const clients = 50
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 1)

	results := make([]model.BookingResult, clients)
	var g errgroup.Group
	for i := 0; i < clients; i++ {
		i := i
		g.Go(func() error {
			email := fmt.Sprintf("client%d@x.com", i)
			_, err := svc.Book(context.Background(), bookReq(class.ID, "Client Name", email))
			results[i] = model.BookingResult{ClientEmail: email, Success: err == nil, Error: err}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, r := range results {
		if r.Success {
			succeeded++
			continue
		}
		assert.ErrorIs(t, r.Error, ErrNoAvailability, r.ClientEmail)
	}
	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 0, availableSlots(t, store, class.ID))

	active, err := store.ListActiveForClass(context.Background(), class.ID)
	require.NoError(t, err)
	assert.Len(t, active, 1)
}

func TestBook_ConcurrentSameEmail(t *testing.T) {
	const attempts = 20
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 10)

	var (
		mu        sync.Mutex
		succeeded int
	)
	var g errgroup.Group
	for j := 0; j < attempts; j++ {
		g.Go(func() error {
			_, err := svc.Book(context.Background(), bookReq(class.ID, "Jane Doe", "jane@x.com"))
			if err == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
				return nil
			}
			if !errors.Is(err, ErrDuplicateBooking) {
				return err
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	assert.Equal(t, 1, succeeded)
	assert.Equal(t, 9, availableSlots(t, store, class.ID))
}

func TestBookCancel_ConcurrentCapacityInvariant(t *testing.T) {
	const (
		total   = 5
		clients = 40
	)
	ctx := context.Background()
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), total)

	var g errgroup.Group
	for i := 0; i < clients; i++ {
		i := i
		g.Go(func() error {
			email := fmt.Sprintf("client%d@x.com", i)
			b, err := svc.Book(ctx, bookReq(class.ID, "Client Name", email))
			if err != nil {
				if errors.Is(err, ErrNoAvailability) {
					return nil
				}
				return err
			}
			if i%2 == 0 {
				return svc.Cancel(ctx, b.ID)
			}
			return nil
		})
	}
	require.NoError(t, g.Wait())

	active, err := store.ListActiveForClass(ctx, class.ID)
	require.NoError(t, err)
	available := availableSlots(t, store, class.ID)
	assert.Equal(t, total-len(active), available)
	assert.GreaterOrEqual(t, available, 0)
	assert.LessOrEqual(t, available, total)
}

func TestBook_LockTimeoutIsRetryable(t *testing.T) {
	svc, store := newTestBookingService(t)
	class := seedClass(t, store, testNow.Add(time.Hour), 5)

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- store.WithClassLock(context.Background(), class.ID, func(context.Context, repository.Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	ctx, cancel := context.WithTimeout(context.Background(), 50*time.Millisecond)
	defer cancel()
	_, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	assert.ErrorIs(t, err, repository.ErrRetryable)

	close(release)
	require.NoError(t, <-done)
	assert.Equal(t, 5, availableSlots(t, store, class.ID))
}

func TestBookingService_PublishesAfterCommit(t *testing.T) {
	ctx := context.Background()
	pub := &recordingPublisher{}
	svc, store := newTestBookingService(t, WithPublisher(pub))
	class := seedClass(t, store, testNow.Add(time.Hour), 2)

	b, err := svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)
	_, err = svc.Book(ctx, bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.ErrorIs(t, err, ErrDuplicateBooking)
	require.NoError(t, svc.Cancel(ctx, b.ID))

	assert.Equal(t, []string{events.TypeBookingConfirmed, events.TypeBookingCancelled}, pub.types())
	assert.Equal(t, 1, pub.events[0].AvailableSlots)
	assert.Equal(t, 2, pub.events[1].AvailableSlots)
	assert.Equal(t, b.ID, pub.events[1].BookingID)
}

func TestBookingService_PublishFailureKeepsBooking(t *testing.T) {
	pub := &recordingPublisher{err: errors.New("broker down")}
	svc, store := newTestBookingService(t, WithPublisher(pub))
	class := seedClass(t, store, testNow.Add(time.Hour), 2)

	_, err := svc.Book(context.Background(), bookReq(class.ID, "Jane Doe", "jane@x.com"))
	require.NoError(t, err)
	assert.Equal(t, 1, availableSlots(t, store, class.ID))
}

func TestOutcome(t *testing.T) {
	tests := []struct {
		err  error
		want string
	}{
		{nil, "success"},
		{ValidationErrors{{Field: "client_email"}}, "invalid"},
		{fmt.Errorf("wrap: %w", ErrPastClass), "past_class"},
		{ErrNoAvailability, "no_availability"},
		{ErrDuplicateBooking, "duplicate_booking"},
		{ErrAlreadyCancelled, "already_cancelled"},
		{repository.ErrNotFound, "not_found"},
		{repository.ErrRetryable, "retryable"},
		{errors.New("boom"), "error"},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, outcome(tt.err))
	}
}
