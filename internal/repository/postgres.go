package repository

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/Shivanand-hulikatti/fitness-class-booking/internal/model"
)

// SQLSTATE codes that the store translates.
const (
	pgUniqueViolation       = "23505"
	pgSerializationFailure  = "40001"
	pgDeadlockDetected      = "40P01"
	pgLockNotAvailable      = "55P03"
	pgQueryCanceledByServer = "57014"
)

const classColumns = `id, category, instructor, start_time, total_slots, available_slots, created_at, updated_at`

const bookingColumns = `b.id, b.class_id, b.client_name, b.client_email, b.booked_at, b.is_cancelled, b.cancelled_at`

// PostgresStore is a Store backed by PostgreSQL. Exclusive access to a class
// is a row lock taken with SELECT … FOR UPDATE inside a transaction; the
// partial unique index on bookings backs the one-active-booking rule.
type PostgresStore struct {
	db          *pgxpool.Pool
	lockTimeout time.Duration
}

// NewPostgresStore constructs a PostgresStore. A zero lockTimeout waits for
// row locks indefinitely.
func NewPostgresStore(db *pgxpool.Pool, lockTimeout time.Duration) *PostgresStore {
	return &PostgresStore{db: db, lockTimeout: lockTimeout}
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanClass(row rowScanner) (model.FitnessClass, error) {
	var c model.FitnessClass
	var category string
	err := row.Scan(&c.ID, &category, &c.Instructor, &c.StartTime, &c.TotalSlots, &c.AvailableSlots, &c.CreatedAt, &c.UpdatedAt)
	c.Category = model.Category(category)
	return c, err
}

func scanBooking(row rowScanner, extra ...any) (model.Booking, error) {
	var b model.Booking
	dest := append([]any{&b.ID, &b.ClassID, &b.ClientName, &b.ClientEmail, &b.BookedAt, &b.IsCancelled, &b.CancelledAt}, extra...)
	err := row.Scan(dest...)
	return b, err
}

// CreateClass inserts a new class and fills in its generated fields.
func (s *PostgresStore) CreateClass(ctx context.Context, c *model.FitnessClass) error {
	if c.ID == "" {
		c.ID = uuid.New().String()
	}
	c.Clamp()

	err := s.db.QueryRow(ctx,
		`INSERT INTO fitness_classes (id, category, instructor, start_time, total_slots, available_slots)
		 VALUES ($1, $2, $3, $4, $5, $6)
		 RETURNING created_at, updated_at`,
		c.ID, string(c.Category), c.Instructor, c.StartTime, c.TotalSlots, c.AvailableSlots,
	).Scan(&c.CreatedAt, &c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert class: %w", err)
	}
	return nil
}

// DeleteAllClasses removes every class; bookings go with them via cascade.
func (s *PostgresStore) DeleteAllClasses(ctx context.Context) (int64, error) {
	tag, err := s.db.Exec(ctx, `DELETE FROM fitness_classes`)
	if err != nil {
		return 0, fmt.Errorf("delete classes: %w", err)
	}
	return tag.RowsAffected(), nil
}

// GetClass returns a single class or ErrNotFound.
func (s *PostgresStore) GetClass(ctx context.Context, id string) (*model.FitnessClass, error) {
	c, err := scanClass(s.db.QueryRow(ctx,
		`SELECT `+classColumns+` FROM fitness_classes WHERE id = $1`, id))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get class: %w", err)
	}
	return &c, nil
}

// ListUpcoming returns classes starting after now, earliest first.
func (s *PostgresStore) ListUpcoming(ctx context.Context, now time.Time) ([]model.FitnessClass, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+classColumns+`
		 FROM fitness_classes
		 WHERE start_time > $1
		 ORDER BY start_time ASC, id ASC`,
		now,
	)
	if err != nil {
		return nil, fmt.Errorf("list classes: %w", err)
	}
	defer rows.Close()

	var classes []model.FitnessClass
	for rows.Next() {
		c, err := scanClass(rows)
		if err != nil {
			return nil, fmt.Errorf("scan class: %w", err)
		}
		classes = append(classes, c)
	}
	return classes, rows.Err()
}

// GetBooking returns a booking with its class, or ErrNotFound.
func (s *PostgresStore) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	bookings, err := s.queryBookingsWithClass(ctx,
		`WHERE b.id = $1`, id)
	if err != nil {
		return nil, fmt.Errorf("get booking: %w", err)
	}
	if len(bookings) == 0 {
		return nil, ErrNotFound
	}
	return &bookings[0], nil
}

// ListActiveFor returns the active bookings of email, newest first.
func (s *PostgresStore) ListActiveFor(ctx context.Context, email string) ([]model.Booking, error) {
	bookings, err := s.queryBookingsWithClass(ctx,
		`WHERE b.client_email = $1 AND NOT b.is_cancelled
		 ORDER BY b.booked_at DESC, b.id DESC`, email)
	if err != nil {
		return nil, fmt.Errorf("list bookings: %w", err)
	}
	return bookings, nil
}

// ListActiveForClass returns the active bookings of a class, oldest first.
func (s *PostgresStore) ListActiveForClass(ctx context.Context, classID string) ([]model.Booking, error) {
	bookings, err := s.queryBookingsWithClass(ctx,
		`WHERE b.class_id = $1 AND NOT b.is_cancelled
		 ORDER BY b.booked_at ASC, b.id ASC`, classID)
	if err != nil {
		return nil, fmt.Errorf("list class bookings: %w", err)
	}
	return bookings, nil
}

func (s *PostgresStore) queryBookingsWithClass(ctx context.Context, where string, args ...any) ([]model.Booking, error) {
	rows, err := s.db.Query(ctx,
		`SELECT `+bookingColumns+`,
		        c.id, c.category, c.instructor, c.start_time, c.total_slots, c.available_slots, c.created_at, c.updated_at
		 FROM bookings b
		 JOIN fitness_classes c ON c.id = b.class_id
		 `+where,
		args...,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var bookings []model.Booking
	for rows.Next() {
		var c model.FitnessClass
		var category string
		b, err := scanBooking(rows,
			&c.ID, &category, &c.Instructor, &c.StartTime, &c.TotalSlots, &c.AvailableSlots, &c.CreatedAt, &c.UpdatedAt)
		if err != nil {
			return nil, fmt.Errorf("scan booking: %w", err)
		}
		c.Category = model.Category(category)
		b.Class = &c
		bookings = append(bookings, b)
	}
	return bookings, rows.Err()
}

// WithClassLock runs fn inside a transaction that holds the class row lock.
//
// SELECT … FOR UPDATE blocks every other unit that tries to lock the same
// row until this transaction commits or rolls back, so the availability and
// duplicate checks made by fn cannot be invalidated underneath it. Rows of
// other classes are untouched and their units proceed in parallel.
func (s *PostgresStore) WithClassLock(ctx context.Context, classID string, fn func(ctx context.Context, tx Tx) error) (err error) {
	tx, err := s.db.BeginTx(ctx, pgx.TxOptions{IsoLevel: pgx.ReadCommitted})
	if err != nil {
		return classify(fmt.Errorf("begin transaction: %w", err))
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(context.WithoutCancel(ctx))
		}
	}()

	if s.lockTimeout > 0 {
		ms := s.lockTimeout.Milliseconds()
		if _, err = tx.Exec(ctx, fmt.Sprintf(`SET LOCAL lock_timeout = %d`, ms)); err != nil {
			return classify(fmt.Errorf("set lock timeout: %w", err))
		}
	}

	class, err := scanClass(tx.QueryRow(ctx,
		`SELECT `+classColumns+` FROM fitness_classes WHERE id = $1 FOR UPDATE`, classID))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return ErrNotFound
		}
		return classify(fmt.Errorf("lock class row: %w", err))
	}

	if err = fn(ctx, &postgresTx{tx: tx, class: class}); err != nil {
		return classify(err)
	}

	if err = tx.Commit(ctx); err != nil {
		return classify(fmt.Errorf("commit transaction: %w", err))
	}
	return nil
}

// classify maps lock and transaction failures onto ErrRetryable and unique
// violations onto ErrConstraintViolation, keeping the original error wrapped.
func classify(err error) error {
	if errors.Is(err, context.DeadlineExceeded) {
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	}
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return err
	}
	switch pgErr.Code {
	case pgSerializationFailure, pgDeadlockDetected, pgLockNotAvailable, pgQueryCanceledByServer:
		return fmt.Errorf("%w: %w", ErrRetryable, err)
	case pgUniqueViolation:
		return fmt.Errorf("%w: %w", ErrConstraintViolation, err)
	}
	return err
}

// postgresTx is the Tx handed to WithClassLock callbacks.
type postgresTx struct {
	tx    pgx.Tx
	class model.FitnessClass
}

func (t *postgresTx) Class() model.FitnessClass {
	return t.class
}

func (t *postgresTx) AdjustCapacity(ctx context.Context, delta int) (model.FitnessClass, error) {
	c, err := scanClass(t.tx.QueryRow(ctx,
		`UPDATE fitness_classes
		 SET available_slots = LEAST(GREATEST(available_slots + $2, 0), total_slots),
		     updated_at = now()
		 WHERE id = $1
		 RETURNING `+classColumns,
		t.class.ID, delta,
	))
	if err != nil {
		return model.FitnessClass{}, fmt.Errorf("adjust capacity: %w", err)
	}
	t.class = c
	return c, nil
}

func (t *postgresTx) HasActiveBooking(ctx context.Context, email string) (bool, error) {
	var exists bool
	err := t.tx.QueryRow(ctx,
		`SELECT EXISTS (
		     SELECT 1 FROM bookings
		     WHERE class_id = $1 AND client_email = $2 AND NOT is_cancelled
		 )`,
		t.class.ID, email,
	).Scan(&exists)
	if err != nil {
		return false, fmt.Errorf("check duplicate: %w", err)
	}
	return exists, nil
}

func (t *postgresTx) CreateBooking(ctx context.Context, name, email string, at time.Time) (*model.Booking, error) {
	b := model.Booking{
		ID:          uuid.New().String(),
		ClassID:     t.class.ID,
		ClientName:  name,
		ClientEmail: email,
		BookedAt:    at.UTC(),
	}
	_, err := t.tx.Exec(ctx,
		`INSERT INTO bookings (id, class_id, client_name, client_email, booked_at)
		 VALUES ($1, $2, $3, $4, $5)`,
		b.ID, b.ClassID, b.ClientName, b.ClientEmail, b.BookedAt,
	)
	if err != nil {
		return nil, classify(fmt.Errorf("insert booking: %w", err))
	}
	return t.withClass(b), nil
}

func (t *postgresTx) GetBooking(ctx context.Context, id string) (*model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx,
		`SELECT `+bookingColumns+` FROM bookings b WHERE b.id = $1 AND b.class_id = $2 FOR UPDATE`,
		id, t.class.ID,
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("get booking: %w", err)
	}
	return t.withClass(b), nil
}

func (t *postgresTx) CancelBooking(ctx context.Context, id string, at time.Time) (*model.Booking, error) {
	b, err := scanBooking(t.tx.QueryRow(ctx,
		`UPDATE bookings b
		 SET is_cancelled = TRUE,
		     cancelled_at = COALESCE(b.cancelled_at, $3)
		 WHERE b.id = $1 AND b.class_id = $2
		 RETURNING `+bookingColumns,
		id, t.class.ID, at.UTC(),
	))
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("cancel booking: %w", err)
	}
	return t.withClass(b), nil
}

func (t *postgresTx) withClass(b model.Booking) *model.Booking {
	c := t.class
	b.Class = &c
	return &b
}
