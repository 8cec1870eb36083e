package service

import (
	"context"
	"fmt"
	"time"

	reserrors "courtq/internal/reservations/errors"
	"courtq/internal/reservations/events"
	"courtq/internal/reservations/repository"
	"courtq/pkg/metrics"
	"courtq/pkg/model"
)

// checkQueue aborts the transaction unless positions run 1..n.
func checkQueue(key model.SlotKey, queued []*model.Reservation) error {
	for i, r := range queued {
		if r.QueuePosition == nil || *r.QueuePosition != i+1 {
			return fmt.Errorf("%w: queue of %s is not contiguous at index %d", reserrors.ErrInvariantViolation, key, i)
		}
	}
	return nil
}

// currentHolder returns the key's active holder, or nil. More than one is
// an invariant violation.
func currentHolder(ctx context.Context, tx repository.SlotTx, key model.SlotKey) (*model.Reservation, error) {
	holders, err := tx.FindHolders(ctx)
	if err != nil {
		return nil, err
	}
	switch len(holders) {
	case 0:
		return nil, nil
	case 1:
		return holders[0], nil
	default:
		return nil, fmt.Errorf("%w: %d active holders for %s", reserrors.ErrInvariantViolation, len(holders), key)
	}
}

func (s *reservationService) expireHolder(ctx context.Context, tx repository.SlotTx, holder *model.Reservation, now time.Time, rec *transitions) error {
	holder.Expire(now)
	if err := tx.CompareAndSwap(ctx, holder, model.StatusPending, false); err != nil {
		return err
	}
	rec.add(events.TypeExpired, holder, now)
	return nil
}

// promoteHead moves the smallest queued position into the holder role,
// opens its payment window and closes the gap it left. It returns nil when
// the queue is empty.
func (s *reservationService) promoteHead(ctx context.Context, tx repository.SlotTx, key model.SlotKey, now time.Time, rec *transitions) (*model.Reservation, error) {
	queued, err := tx.ListQueued(ctx)
	if err != nil {
		return nil, err
	}
	if err := checkQueue(key, queued); err != nil {
		return nil, err
	}
	if len(queued) == 0 {
		return nil, nil
	}

	head := queued[0]
	vacated := *head.QueuePosition
	head.BeginHold(now, s.cfg.HoldDuration)
	if err := tx.CompareAndSwap(ctx, head, model.StatusPending, true); err != nil {
		return nil, err
	}
	if err := tx.ShiftQueue(ctx, vacated); err != nil {
		return nil, err
	}
	rec.add(events.TypePromoted, head, now)
	return head, nil
}

// settleHolder is the lazy expiry step every slot transaction runs first:
// an elapsed hold is reclaimed and a vacant slot with a queue is handed to
// its head. It returns the holder after settling, or nil for a free slot.
func (s *reservationService) settleHolder(ctx context.Context, tx repository.SlotTx, key model.SlotKey, now time.Time, rec *transitions) (*model.Reservation, error) {
	holder, err := currentHolder(ctx, tx, key)
	if err != nil {
		return nil, err
	}
	if holder != nil && !holder.HoldElapsed(now) {
		return holder, nil
	}
	if holder != nil {
		if err := s.expireHolder(ctx, tx, holder, now, rec); err != nil {
			return nil, err
		}
	}
	return s.promoteHead(ctx, tx, key, now, rec)
}

func (s *reservationService) ExpireHold(ctx context.Context, id string) (bool, error) {
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return false, s.mapError("ExpireHold", err)
	}

	var expired bool
	err = s.inSlot(ctx, r.Key(), func(ctx context.Context, tx repository.SlotTx, rec *transitions) error {
		expired = false
		now := s.clock.Now()
		current, err := tx.FindByID(ctx, id)
		if err != nil {
			return err
		}
		// Confirmed, cancelled or already reclaimed by someone else.
		if !current.HoldElapsed(now) {
			return nil
		}
		if err := s.expireHolder(ctx, tx, current, now, rec); err != nil {
			return err
		}
		expired = true
		promoted, err := s.promoteHead(ctx, tx, r.Key(), now, rec)
		if err != nil {
			return err
		}
		if promoted != nil {
			metrics.IncPromotion("after_expiry")
		}
		return nil
	})
	if err != nil {
		return false, s.mapError("ExpireHold", err)
	}
	return expired, nil
}

func (s *reservationService) PromoteHead(ctx context.Context, key model.SlotKey) (bool, error) {
	var promoted bool
	err := s.inSlot(ctx, key, func(ctx context.Context, tx repository.SlotTx, rec *transitions) error {
		promoted = false
		now := s.clock.Now()
		holder, err := currentHolder(ctx, tx, key)
		if err != nil {
			return err
		}
		booked, err := tx.FindConfirmed(ctx)
		if err != nil {
			return err
		}
		if holder != nil || booked != nil {
			return nil
		}
		head, err := s.promoteHead(ctx, tx, key, now, rec)
		if err != nil {
			return err
		}
		promoted = head != nil
		return nil
	})
	if err != nil {
		return false, s.mapError("PromoteHead", err)
	}
	if promoted {
		metrics.IncPromotion("stranded")
	}
	return promoted, nil
}
