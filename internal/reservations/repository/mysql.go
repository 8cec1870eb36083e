package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	reserrors "courtq/internal/reservations/errors"
	"courtq/pkg/clock"
	"courtq/pkg/config"
	mysqltx "courtq/pkg/db/mysql"
	"courtq/pkg/model"
)

const reservationColumns = `id, resource_id, slot_date, start_time, end_time, requester_id, status,
	payment_status, is_in_queue, queue_position, payment_started_at, payment_expires_at,
	price_cents, duration_minutes, cancelled_by, cancel_reason, created_at, updated_at`

const slotCondition = `resource_id = ? AND slot_date = ? AND start_time = ?`

// querier is satisfied by both *sql.DB and *sql.Tx.
type querier interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

type mysqlStore struct {
	cfg       *config.Config
	clock     clock.Clock
	db        *sql.DB
	txManager mysqltx.TransactionManager
}

func NewMySQLStore(cfg *config.Config, clk clock.Clock) Store {
	return &mysqlStore{
		cfg:       cfg,
		clock:     clk,
		db:        cfg.Client.MySQL,
		txManager: mysqltx.NewTransactionManager(cfg.Client.MySQL, cfg.RetryPolicy()),
	}
}

func (s *mysqlStore) withTimeout(ctx context.Context, timeout time.Duration) (context.Context, context.CancelFunc) {
	deadline, hasDeadline := ctx.Deadline()
	if hasDeadline && time.Until(deadline) < timeout {
		return context.WithDeadline(ctx, deadline)
	}
	return context.WithTimeout(ctx, timeout)
}

func slotArgs(key model.SlotKey) []any {
	return []any{key.ResourceID, key.Date, key.StartTime}
}

// holderKey is non-NULL only for rows holding the slot, which lets a plain
// unique index enforce a single holder per key.
func holderKey(r *model.Reservation) any {
	if !r.HoldsSlot {
		return nil
	}
	return r.Key().String()
}

func nullInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}

func nullTime(t *time.Time) any {
	if t == nil {
		return nil
	}
	return t.UTC()
}

func nullString(s string) any {
	if s == "" {
		return nil
	}
	return s
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanReservation(row rowScanner) (*model.Reservation, error) {
	var (
		r         model.Reservation
		status    string
		payment   string
		position  sql.NullInt64
		started   sql.NullTime
		expires   sql.NullTime
		cancelBy  sql.NullString
		cancelWhy sql.NullString
	)
	err := row.Scan(&r.ID, &r.ResourceID, &r.Date, &r.StartTime, &r.EndTime, &r.RequesterID, &status,
		&payment, &r.IsInQueue, &position, &started, &expires,
		&r.PriceCents, &r.DurationMinutes, &cancelBy, &cancelWhy, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return nil, err
	}

	r.Status = model.ReservationStatus(status)
	r.PaymentStatus = model.PaymentStatus(payment)
	if position.Valid {
		p := int(position.Int64)
		r.QueuePosition = &p
	}
	if started.Valid {
		t := started.Time.UTC()
		r.PaymentStartedAt = &t
	}
	if expires.Valid {
		t := expires.Time.UTC()
		r.PaymentExpiresAt = &t
	}
	r.CancelledBy = cancelBy.String
	r.CancelReason = cancelWhy.String
	r.HoldsSlot = !r.IsInQueue && (r.Status == model.StatusPending || r.Status == model.StatusConfirmed)
	return &r, nil
}

func queryOne(ctx context.Context, q querier, query string, args ...any) (*model.Reservation, error) {
	r, err := scanReservation(q.QueryRowContext(ctx, query, args...))
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, classify(fmt.Errorf("failed to find reservation: %w", err))
	}
	return r, nil
}

func queryMany(ctx context.Context, q querier, query string, args ...any) ([]*model.Reservation, error) {
	rows, err := q.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to query reservations: %w", err))
	}
	defer rows.Close()

	var out []*model.Reservation
	for rows.Next() {
		r, err := scanReservation(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan reservation: %w", err)
		}
		out = append(out, r)
	}
	if err := rows.Err(); err != nil {
		return nil, classify(fmt.Errorf("failed to iterate reservations: %w", err))
	}
	return out, nil
}

func (s *mysqlStore) WithinSlot(ctx context.Context, key model.SlotKey, fn SlotTxFunc) error {
	err := s.txManager.ExecuteTransaction(ctx, func(ctx context.Context, tx *sql.Tx) error {
		_, err := tx.ExecContext(ctx,
			`INSERT INTO slot_locks (slot_key, version, touched_at) VALUES (?, 1, ?)
			 ON DUPLICATE KEY UPDATE version = version + 1, touched_at = VALUES(touched_at)`,
			key.String(), s.clock.Now().UTC(),
		)
		if err != nil {
			return fmt.Errorf("failed to take slot lock: %w", err)
		}
		return fn(ctx, &mysqlSlotTx{store: s, tx: tx, key: key})
	})
	return classify(err)
}

func (s *mysqlStore) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	r, err := queryOne(ctx, s.db, `SELECT `+reservationColumns+` FROM reservations WHERE id = ?`, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, reserrors.ErrNotFound
	}
	return r, nil
}

func (s *mysqlStore) FindHolder(ctx context.Context, key model.SlotKey) (*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	return queryOne(ctx, s.db, `SELECT `+reservationColumns+` FROM reservations WHERE holder_key = ?`, key.String())
}

func (s *mysqlStore) CountQueued(ctx context.Context, key model.SlotKey) (int, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var n int
	err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM reservations WHERE `+slotCondition+` AND is_in_queue = 1 AND status = ?`,
		append(slotArgs(key), model.StatusPending)...,
	).Scan(&n)
	if err != nil {
		return 0, classify(fmt.Errorf("failed to count queue: %w", err))
	}
	return n, nil
}

func (s *mysqlStore) ListBySlot(ctx context.Context, key model.SlotKey) ([]*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	return queryMany(ctx, s.db,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+slotCondition+` ORDER BY created_at, seq`,
		slotArgs(key)...)
}

func (s *mysqlStore) ListByRequester(ctx context.Context, requesterID string, limit int, offset int64) ([]*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	return queryMany(ctx, s.db,
		`SELECT `+reservationColumns+` FROM reservations WHERE requester_id = ? ORDER BY created_at DESC LIMIT ? OFFSET ?`,
		requesterID, limit, offset)
}

func (s *mysqlStore) CountByRequester(ctx context.Context, requesterID string) (int64, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	var n int64
	if err := s.db.QueryRowContext(ctx, `SELECT COUNT(*) FROM reservations WHERE requester_id = ?`, requesterID).Scan(&n); err != nil {
		return 0, classify(fmt.Errorf("failed to count reservations: %w", err))
	}
	return n, nil
}

func (s *mysqlStore) FindExpiredHolders(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	return queryMany(ctx, s.db,
		`SELECT `+reservationColumns+` FROM reservations
		 WHERE status = ? AND is_in_queue = 0 AND payment_expires_at < ?
		 ORDER BY payment_expires_at LIMIT ?`,
		model.StatusPending, now.UTC(), limit)
}

func (s *mysqlStore) FindStrandedSlots(ctx context.Context, limit int) ([]model.SlotKey, error) {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()

	rows, err := s.db.QueryContext(ctx,
		`SELECT DISTINCT q.resource_id, q.slot_date, q.start_time FROM reservations q
		 WHERE q.is_in_queue = 1 AND q.status = ?
		   AND NOT EXISTS (
		     SELECT 1 FROM reservations h
		     WHERE h.holder_key = CONCAT(q.resource_id, '|', q.slot_date, '|', q.start_time))
		 LIMIT ?`,
		model.StatusPending, limit)
	if err != nil {
		return nil, classify(fmt.Errorf("failed to find stranded slots: %w", err))
	}
	defer rows.Close()

	var keys []model.SlotKey
	for rows.Next() {
		var k model.SlotKey
		if err := rows.Scan(&k.ResourceID, &k.Date, &k.StartTime); err != nil {
			return nil, fmt.Errorf("failed to scan slot key: %w", err)
		}
		keys = append(keys, k)
	}
	return keys, classify(rows.Err())
}

func (s *mysqlStore) Ping(ctx context.Context) error {
	ctx, cancel := s.withTimeout(ctx, s.cfg.ReadTimeout)
	defer cancel()
	return classify(s.db.PingContext(ctx))
}

type mysqlSlotTx struct {
	store *mysqlStore
	tx    *sql.Tx
	key   model.SlotKey
}

func (t *mysqlSlotTx) FindByID(ctx context.Context, id string) (*model.Reservation, error) {
	r, err := queryOne(ctx, t.tx, `SELECT `+reservationColumns+` FROM reservations WHERE id = ? FOR UPDATE`, id)
	if err != nil {
		return nil, err
	}
	if r == nil {
		return nil, reserrors.ErrNotFound
	}
	return r, nil
}

func (t *mysqlSlotTx) FindHolders(ctx context.Context) ([]*model.Reservation, error) {
	return queryMany(ctx, t.tx,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+slotCondition+` AND is_in_queue = 0 AND status = ?`,
		append(slotArgs(t.key), model.StatusPending)...)
}

func (t *mysqlSlotTx) FindConfirmed(ctx context.Context) (*model.Reservation, error) {
	return queryOne(ctx, t.tx,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+slotCondition+` AND status = ? LIMIT 1`,
		append(slotArgs(t.key), model.StatusConfirmed)...)
}

func (t *mysqlSlotTx) FindOpenByRequester(ctx context.Context, requesterID string) (*model.Reservation, error) {
	return queryOne(ctx, t.tx,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+slotCondition+` AND requester_id = ? AND status = ? LIMIT 1`,
		append(slotArgs(t.key), requesterID, model.StatusPending)...)
}

func (t *mysqlSlotTx) ListQueued(ctx context.Context) ([]*model.Reservation, error) {
	return queryMany(ctx, t.tx,
		`SELECT `+reservationColumns+` FROM reservations WHERE `+slotCondition+` AND is_in_queue = 1 AND status = ?
		 ORDER BY queue_position`,
		append(slotArgs(t.key), model.StatusPending)...)
}

func (t *mysqlSlotTx) Insert(ctx context.Context, r *model.Reservation) error {
	_, err := t.tx.ExecContext(ctx,
		`INSERT INTO reservations (`+reservationColumns+`, holder_key)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		r.ID, r.ResourceID, r.Date, r.StartTime, r.EndTime, r.RequesterID, string(r.Status),
		string(r.PaymentStatus), r.IsInQueue, nullInt(r.QueuePosition), nullTime(r.PaymentStartedAt), nullTime(r.PaymentExpiresAt),
		r.PriceCents, r.DurationMinutes, nullString(r.CancelledBy), nullString(r.CancelReason), r.CreatedAt.UTC(), r.UpdatedAt.UTC(),
		holderKey(r),
	)
	if err != nil {
		if mysqltx.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %w", reserrors.ErrInvariantViolation, err)
		}
		return fmt.Errorf("failed to insert reservation: %w", err)
	}
	return nil
}

func (t *mysqlSlotTx) CompareAndSwap(ctx context.Context, r *model.Reservation, prevStatus model.ReservationStatus, prevInQueue bool) error {
	assignments := []string{
		"status = ?", "payment_status = ?", "is_in_queue = ?", "queue_position = ?",
		"payment_started_at = ?", "payment_expires_at = ?", "cancelled_by = ?", "cancel_reason = ?",
		"updated_at = ?", "holder_key = ?",
	}
	result, err := t.tx.ExecContext(ctx,
		`UPDATE reservations SET `+strings.Join(assignments, ", ")+` WHERE id = ? AND status = ? AND is_in_queue = ?`,
		string(r.Status), string(r.PaymentStatus), r.IsInQueue, nullInt(r.QueuePosition),
		nullTime(r.PaymentStartedAt), nullTime(r.PaymentExpiresAt), nullString(r.CancelledBy), nullString(r.CancelReason),
		r.UpdatedAt.UTC(), holderKey(r),
		r.ID, string(prevStatus), prevInQueue,
	)
	if err != nil {
		if mysqltx.IsDuplicateKey(err) {
			return fmt.Errorf("%w: %w", reserrors.ErrInvariantViolation, err)
		}
		return fmt.Errorf("failed to update reservation: %w", err)
	}
	n, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to read affected rows: %w", err)
	}
	if n == 0 {
		return reserrors.ErrStateChanged
	}
	return nil
}

func (t *mysqlSlotTx) ShiftQueue(ctx context.Context, after int) error {
	_, err := t.tx.ExecContext(ctx,
		`UPDATE reservations SET queue_position = queue_position - 1, updated_at = ?
		 WHERE `+slotCondition+` AND is_in_queue = 1 AND status = ? AND queue_position > ?
		 ORDER BY queue_position`,
		append(append([]any{t.store.clock.Now().UTC()}, slotArgs(t.key)...), model.StatusPending, after)...)
	if err != nil {
		return fmt.Errorf("failed to shift queue: %w", err)
	}
	return nil
}
