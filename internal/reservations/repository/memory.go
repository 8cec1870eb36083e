package repository

import (
	"context"
	"fmt"
	"slices"
	"sort"
	"sync"
	"time"

	reserrors "courtq/internal/reservations/errors"
	"courtq/pkg/model"
)

// memoryStore keeps rows in process. Slot transactions take a per-key
// mutex and stage their writes, so a failing transaction leaves no trace.
type memoryStore struct {
	mu    sync.RWMutex
	rows  map[string]*model.Reservation
	order []string

	locksMu sync.Mutex
	locks   map[model.SlotKey]*sync.Mutex
}

func NewMemoryStore() Store {
	return &memoryStore{
		rows:  make(map[string]*model.Reservation),
		locks: make(map[model.SlotKey]*sync.Mutex),
	}
}

func (s *memoryStore) slotLock(key model.SlotKey) *sync.Mutex {
	s.locksMu.Lock()
	defer s.locksMu.Unlock()
	l, ok := s.locks[key]
	if !ok {
		l = &sync.Mutex{}
		s.locks[key] = l
	}
	return l
}

func (s *memoryStore) WithinSlot(ctx context.Context, key model.SlotKey, fn SlotTxFunc) error {
	lock := s.slotLock(key)
	lock.Lock()
	defer lock.Unlock()

	if err := ctx.Err(); err != nil {
		return err
	}

	tx := &memoryTx{store: s, key: key, staged: make(map[string]*model.Reservation)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	return s.commit(tx)
}

func (s *memoryStore) commit(tx *memoryTx) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	holders := 0
	for _, r := range s.keyRowsLocked(tx.key, tx) {
		if r.HoldsSlot {
			holders++
		}
	}
	if holders > 1 {
		return fmt.Errorf("%w: %d rows hold slot %s", reserrors.ErrInvariantViolation, holders, tx.key)
	}

	for _, id := range tx.inserted {
		s.order = append(s.order, id)
	}
	for id, r := range tx.staged {
		s.rows[id] = r
	}
	return nil
}

// keyRowsLocked merges committed rows of key with the rows staged by tx.
func (s *memoryStore) keyRowsLocked(key model.SlotKey, tx *memoryTx) []*model.Reservation {
	var out []*model.Reservation
	for _, id := range s.order {
		r := s.rows[id]
		if tx != nil {
			if staged, ok := tx.staged[id]; ok {
				r = staged
			}
		}
		if r.Key() == key {
			out = append(out, r)
		}
	}
	if tx != nil {
		for _, id := range tx.inserted {
			out = append(out, tx.staged[id])
		}
	}
	return out
}

func (s *memoryStore) FindByID(_ context.Context, id string) (*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.rows[id]
	if !ok {
		return nil, reserrors.ErrNotFound
	}
	return r.Clone(), nil
}

func (s *memoryStore) FindHolder(_ context.Context, key model.SlotKey) (*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, r := range s.keyRowsLocked(key, nil) {
		if r.HoldsSlot {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (s *memoryStore) CountQueued(_ context.Context, key model.SlotKey) (int, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	n := 0
	for _, r := range s.keyRowsLocked(key, nil) {
		if r.IsInQueue && r.Status == model.StatusPending {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) ListBySlot(_ context.Context, key model.SlotKey) ([]*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Reservation
	for _, r := range s.keyRowsLocked(key, nil) {
		out = append(out, r.Clone())
	}
	return out, nil
}

func (s *memoryStore) ListByRequester(_ context.Context, requesterID string, limit int, offset int64) ([]*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var all []*model.Reservation
	for i := len(s.order) - 1; i >= 0; i-- {
		r := s.rows[s.order[i]]
		if r.RequesterID == requesterID {
			all = append(all, r)
		}
	}
	if offset >= int64(len(all)) {
		return nil, nil
	}
	all = all[offset:]
	if limit > 0 && len(all) > limit {
		all = all[:limit]
	}
	out := make([]*model.Reservation, len(all))
	for i, r := range all {
		out[i] = r.Clone()
	}
	return out, nil
}

func (s *memoryStore) CountByRequester(_ context.Context, requesterID string) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var n int64
	for _, r := range s.rows {
		if r.RequesterID == requesterID {
			n++
		}
	}
	return n, nil
}

func (s *memoryStore) FindExpiredHolders(_ context.Context, now time.Time, limit int) ([]*model.Reservation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	var out []*model.Reservation
	for _, r := range s.rows {
		if r.HoldElapsed(now) {
			out = append(out, r.Clone())
		}
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].PaymentExpiresAt.Before(*out[j].PaymentExpiresAt)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (s *memoryStore) FindStrandedSlots(_ context.Context, limit int) ([]model.SlotKey, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	queued := make(map[model.SlotKey]bool)
	held := make(map[model.SlotKey]bool)
	var keys []model.SlotKey
	for _, id := range s.order {
		r := s.rows[id]
		k := r.Key()
		if r.HoldsSlot {
			held[k] = true
		}
		if r.IsInQueue && r.Status == model.StatusPending && !queued[k] {
			queued[k] = true
			keys = append(keys, k)
		}
	}
	keys = slices.DeleteFunc(keys, func(k model.SlotKey) bool { return held[k] })
	if limit > 0 && len(keys) > limit {
		keys = keys[:limit]
	}
	return keys, nil
}

func (s *memoryStore) Ping(context.Context) error {
	return nil
}

type memoryTx struct {
	store    *memoryStore
	key      model.SlotKey
	staged   map[string]*model.Reservation
	inserted []string
}

func (t *memoryTx) rows() []*model.Reservation {
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	return t.store.keyRowsLocked(t.key, t)
}

func (t *memoryTx) FindByID(_ context.Context, id string) (*model.Reservation, error) {
	if r, ok := t.staged[id]; ok {
		return r.Clone(), nil
	}
	t.store.mu.RLock()
	defer t.store.mu.RUnlock()
	r, ok := t.store.rows[id]
	if !ok {
		return nil, reserrors.ErrNotFound
	}
	return r.Clone(), nil
}

func (t *memoryTx) FindHolders(context.Context) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range t.rows() {
		if r.IsActiveHolder() {
			out = append(out, r.Clone())
		}
	}
	return out, nil
}

func (t *memoryTx) FindConfirmed(context.Context) (*model.Reservation, error) {
	for _, r := range t.rows() {
		if r.Status == model.StatusConfirmed {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (t *memoryTx) FindOpenByRequester(_ context.Context, requesterID string) (*model.Reservation, error) {
	for _, r := range t.rows() {
		if r.RequesterID == requesterID && r.Status == model.StatusPending {
			return r.Clone(), nil
		}
	}
	return nil, nil
}

func (t *memoryTx) ListQueued(context.Context) ([]*model.Reservation, error) {
	var out []*model.Reservation
	for _, r := range t.rows() {
		if r.IsInQueue && r.Status == model.StatusPending {
			out = append(out, r.Clone())
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return positionOf(out[i]) < positionOf(out[j])
	})
	return out, nil
}

func (t *memoryTx) Insert(_ context.Context, r *model.Reservation) error {
	if r.Key() != t.key {
		return fmt.Errorf("%w: insert for %s inside transaction on %s", reserrors.ErrInvariantViolation, r.Key(), t.key)
	}
	if _, ok := t.staged[r.ID]; ok {
		return fmt.Errorf("%w: duplicate id %s", reserrors.ErrInvariantViolation, r.ID)
	}
	t.staged[r.ID] = r.Clone()
	t.inserted = append(t.inserted, r.ID)
	return nil
}

func (t *memoryTx) CompareAndSwap(ctx context.Context, r *model.Reservation, prevStatus model.ReservationStatus, prevInQueue bool) error {
	current, err := t.FindByID(ctx, r.ID)
	if err != nil {
		return err
	}
	if current.Status != prevStatus || current.IsInQueue != prevInQueue {
		return reserrors.ErrStateChanged
	}
	t.staged[r.ID] = r.Clone()
	return nil
}

func (t *memoryTx) ShiftQueue(ctx context.Context, after int) error {
	queued, err := t.ListQueued(ctx)
	if err != nil {
		return err
	}
	for _, r := range queued {
		if positionOf(r) > after {
			p := *r.QueuePosition - 1
			r.QueuePosition = &p
			t.staged[r.ID] = r
		}
	}
	return nil
}

func positionOf(r *model.Reservation) int {
	if r.QueuePosition == nil {
		return 0
	}
	return *r.QueuePosition
}
