package service

import (
	"context"
	"errors"
	"time"

	reserrors "courtq/internal/reservations/errors"
	"courtq/internal/reservations/events"
	"courtq/internal/reservations/repository"
	"courtq/internal/reservations/slotkey"
	"courtq/internal/reservations/validator"
	"courtq/pkg/auth"
	"courtq/pkg/cache"
	"courtq/pkg/client"
	"courtq/pkg/clock"
	"courtq/pkg/config"
	apperrors "courtq/pkg/errors"
	"courtq/pkg/metrics"
	"courtq/pkg/model"
)

type ReservationService interface {
	RequestSlot(ctx context.Context, requesterID string, req *model.ReservationRequest) (*model.AdmissionOutcome, error)
	ConfirmPayment(ctx context.Context, id string, actor auth.Identity) (*model.Reservation, error)
	Cancel(ctx context.Context, id string, actor auth.Identity, req *model.CancelRequest) (*model.Reservation, error)

	GetByID(ctx context.Context, id string, actor auth.Identity) (*model.Reservation, error)
	ListByRequester(ctx context.Context, requesterID string, limit int, offset int64) ([]*model.Reservation, int64, error)
	GetSlotStatus(ctx context.Context, resourceID, date, startTime string) (*model.SlotStatus, error)
	ListSlot(ctx context.Context, resourceID, date, startTime string) ([]*model.Reservation, error)

	// ExpireHold reclaims one elapsed hold and promotes the next in line.
	// It reports false when the row was no longer an elapsed holder.
	ExpireHold(ctx context.Context, id string) (bool, error)
	// PromoteHead gives the slot to the queue head when no holder exists.
	PromoteHead(ctx context.Context, key model.SlotKey) (bool, error)

	Store() repository.Store
}

type reservationService struct {
	store       repository.Store
	resolver    *slotkey.Resolver
	validator   *validator.ReservationValidator
	prices      client.PriceProvider
	publisher   events.Publisher
	statusCache cache.SlotStatusCache
	clock       clock.Clock
	cfg         *config.Config
}

func NewReservationService(
	store repository.Store,
	validator *validator.ReservationValidator,
	prices client.PriceProvider,
	publisher events.Publisher,
	statusCache cache.SlotStatusCache,
	clk clock.Clock,
	cfg *config.Config,
) ReservationService {
	if publisher == nil {
		publisher = events.Noop{}
	}
	if statusCache == nil {
		statusCache = cache.Noop{}
	}
	return &reservationService{
		store:       store,
		resolver:    slotkey.NewResolver(cfg.Location),
		validator:   validator,
		prices:      prices,
		publisher:   publisher,
		statusCache: statusCache,
		clock:       clk,
		cfg:         cfg,
	}
}

func (s *reservationService) Store() repository.Store {
	return s.store
}

// transitions collects what a slot transaction changed so it can be
// announced once the transaction commits.
type transitions struct {
	events []events.ReservationEvent
}

func (t *transitions) add(typ events.Type, r *model.Reservation, at time.Time) {
	t.events = append(t.events, events.New(typ, r, at))
}

type slotFunc func(ctx context.Context, tx repository.SlotTx, rec *transitions) error

// inSlot runs fn in a slot transaction. The store may replay fn, so the
// recorded transitions are reset on every attempt and only published
// after a successful commit.
func (s *reservationService) inSlot(ctx context.Context, key model.SlotKey, fn slotFunc) error {
	var rec transitions
	err := s.store.WithinSlot(ctx, key, func(ctx context.Context, tx repository.SlotTx) error {
		rec = transitions{}
		return fn(ctx, tx, &rec)
	})
	if err != nil {
		return err
	}
	s.afterCommit(ctx, key, rec.events)
	return nil
}

func (s *reservationService) afterCommit(ctx context.Context, key model.SlotKey, evs []events.ReservationEvent) {
	if len(evs) == 0 {
		return
	}
	s.statusCache.Invalidate(ctx, key)
	for _, ev := range evs {
		metrics.IncTransition(string(ev.Status), string(ev.Type))
		s.cfg.Log.Info("Reservation transition committed",
			"event", ev.Type,
			"reservation_id", ev.ReservationID,
			"slot_key", key.String(),
			"status", ev.Status,
			"queue_position", ev.QueuePosition,
		)
	}
	if err := s.publisher.Publish(ctx, evs...); err != nil {
		s.cfg.Log.Warn("Failed to publish reservation events", "slot_key", key.String(), "count", len(evs), "error", err)
	}
}

// mapError converts store and domain sentinels into AppErrors that keep
// the sentinel reachable through errors.Is.
func (s *reservationService) mapError(op string, err error) error {
	if err == nil {
		return nil
	}
	if apperrors.IsAppError(err) {
		return err
	}

	switch {
	case errors.Is(err, reserrors.ErrNotFound):
		return apperrors.NotFound("Reservation")
	case errors.Is(err, reserrors.ErrInvalidID):
		return apperrors.InvalidInput("Invalid reservation ID format")
	case errors.Is(err, reserrors.ErrInvalidSlot):
		return apperrors.InvalidSlot(err.Error(), err)
	case errors.Is(err, reserrors.ErrDuplicateRequest):
		return apperrors.DuplicateRequest("Requester already has an open reservation for this slot", err)
	case errors.Is(err, reserrors.ErrSlotUnavailable):
		return apperrors.SlotUnavailable("Slot is already booked", err)
	case errors.Is(err, reserrors.ErrAlreadyExpired):
		return apperrors.AlreadyExpired("Payment window has elapsed", err)
	case errors.Is(err, reserrors.ErrInvalidState), errors.Is(err, reserrors.ErrStateChanged):
		return apperrors.InvalidState("Reservation is not in a state that allows this operation", err)
	case errors.Is(err, reserrors.ErrConcurrencyConflict):
		metrics.IncTxConflict()
		s.cfg.Log.Warn("Slot transaction retries exhausted", "operation", op, "error", err)
		return apperrors.ConcurrencyConflict("Slot is busy, retry shortly", err)
	case errors.Is(err, reserrors.ErrStoreUnavailable):
		s.cfg.Log.Error("Reservation store unavailable", "operation", op, "error", err)
		return apperrors.StoreUnavailable(err)
	case errors.Is(err, reserrors.ErrInvariantViolation):
		s.cfg.Log.Error("Slot invariant violation aborted transaction", "operation", op, "error", err)
		return apperrors.Internal("Slot state is inconsistent", err)
	case errors.Is(err, context.DeadlineExceeded):
		return apperrors.Timeout("Reservation operation timed out")
	default:
		s.cfg.Log.Error("Reservation operation failed", "operation", op, "error", err)
		return apperrors.Internal("Reservation operation failed", err)
	}
}

func canAccess(actor auth.Identity, r *model.Reservation) bool {
	return actor.IsAdmin() || actor.IsPaymentProvider() || actor.RequesterID == r.RequesterID
}
