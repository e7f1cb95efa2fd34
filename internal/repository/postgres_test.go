package repository

import (
	"context"
	"errors"
	"fmt"
	"os"
	"testing"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"golang.org/x/sync/errgroup"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/database"
	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

// newPostgresStore connects to TEST_DATABASE_URL and starts from an empty
// schema. The test is skipped when the variable is unset.
func newPostgresStore(t *testing.T) *PostgresStore {
	t.Helper()
	dsn := os.Getenv("TEST_DATABASE_URL")
	if dsn == "" {
		t.Skip("TEST_DATABASE_URL not set")
	}

	ctx := context.Background()
	pool, err := pgxpool.New(ctx, dsn)
	require.NoError(t, err)
	t.Cleanup(pool.Close)

	require.NoError(t, database.Migrate(ctx, pool))
	s := NewPostgresStore(pool, 2*time.Second)
	_, err = s.DeleteAllClasses(ctx)
	require.NoError(t, err)
	return s
}

func newPgClass(t *testing.T, s *PostgresStore, start time.Time, total int) model.FitnessClass {
	t.Helper()
	c := model.NewFitnessClass("", model.CategoryZumba, "Rahul Gupta", start, total, total)
	require.NoError(t, s.CreateClass(context.Background(), &c))
	return c
}

// book runs the allocator's booking unit directly against the store.
func book(ctx context.Context, s Store, classID, email string) (*model.Booking, error) {
	var out *model.Booking
	err := s.WithClassLock(ctx, classID, func(ctx context.Context, tx Tx) error {
		if tx.Class().AvailableSlots == 0 {
			return errFull
		}
		b, err := tx.CreateBooking(ctx, "Test Client", email, time.Now())
		if err != nil {
			return err
		}
		if _, err := tx.AdjustCapacity(ctx, -1); err != nil {
			return err
		}
		out = b
		return nil
	})
	return out, err
}

var errFull = errors.New("full")

func TestPostgresStore_CreateGetList(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	now := time.Now().UTC().Truncate(time.Microsecond)

	later := newPgClass(t, s, now.Add(48*time.Hour), 20)
	sooner := newPgClass(t, s, now.Add(time.Hour), 20)
	newPgClass(t, s, now.Add(-time.Hour), 20)

	got, err := s.GetClass(ctx, sooner.ID)
	require.NoError(t, err)
	assert.Equal(t, 20, got.AvailableSlots)
	assert.True(t, got.StartTime.Equal(sooner.StartTime))

	upcoming, err := s.ListUpcoming(ctx, now)
	require.NoError(t, err)
	require.Len(t, upcoming, 2)
	assert.Equal(t, sooner.ID, upcoming[0].ID)
	assert.Equal(t, later.ID, upcoming[1].ID)

	_, err = s.GetClass(ctx, "00000000-0000-0000-0000-000000000000")
	assert.ErrorIs(t, err, ErrNotFound)
}

func TestPostgresStore_BookAndCancel(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	c := newPgClass(t, s, time.Now().Add(time.Hour), 2)

	b, err := book(ctx, s, c.ID, "jane@x.com")
	require.NoError(t, err)

	active, err := s.ListActiveFor(ctx, "jane@x.com")
	require.NoError(t, err)
	require.Len(t, active, 1)
	require.NotNil(t, active[0].Class)
	assert.Equal(t, 1, active[0].Class.AvailableSlots)

	err = s.WithClassLock(ctx, c.ID, func(ctx context.Context, tx Tx) error {
		if _, err := tx.CancelBooking(ctx, b.ID, time.Now()); err != nil {
			return err
		}
		_, err := tx.AdjustCapacity(ctx, 1)
		return err
	})
	require.NoError(t, err)

	got, err := s.GetBooking(ctx, b.ID)
	require.NoError(t, err)
	assert.True(t, got.IsCancelled)
	assert.NotNil(t, got.CancelledAt)

	class, err := s.GetClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, class.AvailableSlots)
}

func TestPostgresStore_UniqueActiveBooking(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	c := newPgClass(t, s, time.Now().Add(time.Hour), 5)

	_, err := book(ctx, s, c.ID, "jane@x.com")
	require.NoError(t, err)

	_, err = book(ctx, s, c.ID, "jane@x.com")
	assert.ErrorIs(t, err, ErrConstraintViolation)

	class, err := s.GetClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 4, class.AvailableSlots)
}

func TestPostgresStore_ConcurrentSingleSlot(t *testing.T) {
	const clients = 20
	s := newPostgresStore(t)
	ctx := context.Background()
	c := newPgClass(t, s, time.Now().Add(time.Hour), 1)

	results := make([]error, clients)
	var g errgroup.Group
	for i := 0; i < clients; i++ {
		i := i
		g.Go(func() error {
			_, results[i] = book(ctx, s, c.ID, fmt.Sprintf("client%d@x.com", i))
			return nil
		})
	}
	require.NoError(t, g.Wait())

	succeeded := 0
	for _, err := range results {
		if err == nil {
			succeeded++
			continue
		}
		assert.ErrorIs(t, err, errFull)
	}
	assert.Equal(t, 1, succeeded)

	roster, err := s.ListActiveForClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Len(t, roster, 1)
}

func TestPostgresStore_RollbackOnError(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	c := newPgClass(t, s, time.Now().Add(time.Hour), 3)
	boom := errors.New("boom")

	err := s.WithClassLock(ctx, c.ID, func(ctx context.Context, tx Tx) error {
		if _, err := tx.CreateBooking(ctx, "Jane Doe", "jane@x.com", time.Now()); err != nil {
			return err
		}
		if _, err := tx.AdjustCapacity(ctx, -1); err != nil {
			return err
		}
		return boom
	})
	assert.ErrorIs(t, err, boom)

	class, err := s.GetClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Equal(t, 3, class.AvailableSlots)

	active, err := s.ListActiveForClass(ctx, c.ID)
	require.NoError(t, err)
	assert.Empty(t, active)
}

func TestPostgresStore_LockTimeoutIsRetryable(t *testing.T) {
	s := newPostgresStore(t)
	ctx := context.Background()
	c := newPgClass(t, s, time.Now().Add(time.Hour), 3)
	s.lockTimeout = 100 * time.Millisecond

	held := make(chan struct{})
	release := make(chan struct{})
	done := make(chan error, 1)
	go func() {
		done <- s.WithClassLock(ctx, c.ID, func(context.Context, Tx) error {
			close(held)
			<-release
			return nil
		})
	}()
	<-held

	err := s.WithClassLock(ctx, c.ID, func(context.Context, Tx) error { return nil })
	assert.ErrorIs(t, err, ErrRetryable)

	close(release)
	require.NoError(t, <-done)
}
