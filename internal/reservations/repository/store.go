package repository

import (
	"context"
	"time"

	"courtq/pkg/clock"
	"courtq/pkg/config"
	"courtq/pkg/model"
)

const (
	CollectionName     = "reservations"
	LockCollectionName = "slot_locks"
)

// SlotTx is the view of the store inside a transaction serialized on one
// slot key. Every read reflects writes made earlier in the same
// transaction.
type SlotTx interface {
	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	// FindHolders returns every non-queued PENDING row for the key. More
	// than one means the store is corrupt.
	FindHolders(ctx context.Context) ([]*model.Reservation, error)
	FindConfirmed(ctx context.Context) (*model.Reservation, error)
	FindOpenByRequester(ctx context.Context, requesterID string) (*model.Reservation, error)
	// ListQueued returns queued rows ordered by position.
	ListQueued(ctx context.Context) ([]*model.Reservation, error)
	Insert(ctx context.Context, r *model.Reservation) error
	// CompareAndSwap persists r only if the stored row still has
	// prevStatus and prevInQueue. Otherwise it returns ErrStateChanged.
	CompareAndSwap(ctx context.Context, r *model.Reservation, prevStatus model.ReservationStatus, prevInQueue bool) error
	// ShiftQueue decrements every queued position greater than after.
	ShiftQueue(ctx context.Context, after int) error
}

type SlotTxFunc func(ctx context.Context, tx SlotTx) error

type Store interface {
	// WithinSlot runs fn in one transaction that conflicts with every
	// other WithinSlot on the same key. Returning an error rolls back.
	WithinSlot(ctx context.Context, key model.SlotKey, fn SlotTxFunc) error

	FindByID(ctx context.Context, id string) (*model.Reservation, error)
	FindHolder(ctx context.Context, key model.SlotKey) (*model.Reservation, error)
	CountQueued(ctx context.Context, key model.SlotKey) (int, error)
	ListBySlot(ctx context.Context, key model.SlotKey) ([]*model.Reservation, error)
	ListByRequester(ctx context.Context, requesterID string, limit int, offset int64) ([]*model.Reservation, error)
	CountByRequester(ctx context.Context, requesterID string) (int64, error)

	// FindExpiredHolders returns active holders whose window closed
	// before now, oldest deadline first.
	FindExpiredHolders(ctx context.Context, now time.Time, limit int) ([]*model.Reservation, error)
	// FindStrandedSlots returns keys that have queued rows and no holder.
	FindStrandedSlots(ctx context.Context, limit int) ([]model.SlotKey, error)

	Ping(ctx context.Context) error
}

// New opens the store selected by cfg.StoreDriver. The driver's
// connection must already be set on cfg.Client.
func New(cfg *config.Config, clk clock.Clock) Store {
	switch cfg.StoreDriver {
	case config.StoreMySQL:
		return NewMySQLStore(cfg, clk)
	case config.StoreMemory:
		return NewMemoryStore()
	default:
		return NewMongoStore(cfg, clk)
	}
}
