package service

import (
	"context"
	"fmt"
	"time"

	reserrors "courtq/internal/reservations/errors"
	"courtq/internal/reservations/events"
	"courtq/internal/reservations/repository"
	"courtq/pkg/auth"
	apperrors "courtq/pkg/errors"
	"courtq/pkg/model"
)

// ConfirmPayment marks the active holder as paid. A confirmation that
// finds its own window elapsed commits the reclaim and then reports
// ErrAlreadyExpired. Once confirmed the slot is booked and the remaining
// queue is cancelled.
func (s *reservationService) ConfirmPayment(ctx context.Context, id string, actor auth.Identity) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError("ConfirmPayment", err)
	}
	if !canAccess(actor, r) {
		return nil, apperrors.Forbidden("Reservation belongs to another requester")
	}

	var (
		confirmed *model.Reservation
		lapsed    *model.Reservation
		refused   *model.Reservation
	)
	err = s.inSlot(ctx, r.Key(), func(ctx context.Context, tx repository.SlotTx, rec *transitions) error {
		confirmed, lapsed, refused = nil, nil, nil
		now := s.clock.Now()

		current, err := s.settleForQueued(ctx, tx, id, now, rec)
		if err != nil {
			return err
		}

		if current.HoldElapsed(now) {
			if err := s.expireHolder(ctx, tx, current, now, rec); err != nil {
				return err
			}
			if _, err := s.promoteHead(ctx, tx, current.Key(), now, rec); err != nil {
				return err
			}
			lapsed = current
			refundIfPaid(actor, current, now, rec)
			return nil
		}

		if !current.IsActiveHolder() {
			refused = current
			return nil
		}

		current.Confirm(now)
		if err := tx.CompareAndSwap(ctx, current, model.StatusPending, false); err != nil {
			return err
		}
		rec.add(events.TypeConfirmed, current, now)

		queued, err := tx.ListQueued(ctx)
		if err != nil {
			return err
		}
		for _, q := range queued {
			q.Cancel(actor.RequesterID, model.CancelReasonSlotBooked, now)
			if err := tx.CompareAndSwap(ctx, q, model.StatusPending, true); err != nil {
				return err
			}
			rec.add(events.TypeCancelled, q, now)
		}
		confirmed = current
		return nil
	})
	if err != nil {
		return nil, s.mapError("ConfirmPayment", err)
	}

	switch {
	case lapsed != nil:
		s.cfg.Log.Info("Payment arrived after hold elapsed", "reservation_id", id, "actor", actor.RequesterID)
		return nil, s.mapError("ConfirmPayment", fmt.Errorf("%w: reservation %s", reserrors.ErrAlreadyExpired, id))
	case refused != nil:
		if actor.IsPaymentProvider() && refused.Status != model.StatusConfirmed {
			s.afterCommit(ctx, refused.Key(), []events.ReservationEvent{events.New(events.TypeRefundRequired, refused, s.clock.Now())})
		}
		return nil, s.mapError("ConfirmPayment", fmt.Errorf("%w: reservation %s is %s", reserrors.ErrInvalidState, id, describe(refused)))
	}

	s.cfg.Log.Info("Payment confirmed", "reservation_id", id, "slot_key", confirmed.Key().String())
	return confirmed, nil
}

// refundIfPaid records that money captured for a lapsed hold must be
// returned.
func refundIfPaid(actor auth.Identity, r *model.Reservation, now time.Time, rec *transitions) {
	if actor.IsPaymentProvider() {
		rec.add(events.TypeRefundRequired, r, now)
	}
}

// Cancel terminates a reservation in either role. Cancelling the holder
// hands the slot to the queue head; cancelling a queued entry closes its
// gap.
func (s *reservationService) Cancel(ctx context.Context, id string, actor auth.Identity, req *model.CancelRequest) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}
	if req == nil {
		req = &model.CancelRequest{}
	}
	if err := s.validator.ValidateCancel(req); err != nil {
		return nil, apperrors.Validation("Invalid cancel request", map[string]any{"error": err.Error()})
	}

	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError("Cancel", err)
	}
	if !actor.IsAdmin() && actor.RequesterID != r.RequesterID {
		return nil, apperrors.Forbidden("Reservation belongs to another requester")
	}

	reason := req.Reason
	if reason == "" {
		reason = model.CancelReasonRequester
		if actor.IsAdmin() && actor.RequesterID != r.RequesterID {
			reason = model.CancelReasonAdmin
		}
	}

	var cancelled *model.Reservation
	err = s.inSlot(ctx, r.Key(), func(ctx context.Context, tx repository.SlotTx, rec *transitions) error {
		cancelled = nil
		now := s.clock.Now()

		current, err := s.settleForQueued(ctx, tx, id, now, rec)
		if err != nil {
			return err
		}
		if current.IsTerminal() {
			return fmt.Errorf("%w: reservation %s is %s", reserrors.ErrInvalidState, id, describe(current))
		}

		wasQueued := current.IsInQueue
		position := 0
		if current.QueuePosition != nil {
			position = *current.QueuePosition
		}

		current.Cancel(actor.RequesterID, reason, now)
		if err := tx.CompareAndSwap(ctx, current, model.StatusPending, wasQueued); err != nil {
			return err
		}
		rec.add(events.TypeCancelled, current, now)
		cancelled = current

		if wasQueued {
			return tx.ShiftQueue(ctx, position)
		}
		_, err = s.promoteHead(ctx, tx, current.Key(), now, rec)
		return err
	})
	if err != nil {
		return nil, s.mapError("Cancel", err)
	}

	s.cfg.Log.Info("Reservation cancelled", "reservation_id", id, "actor", actor.RequesterID, "reason", reason)
	return cancelled, nil
}

// settleForQueued loads the target row. When it is queued, an elapsed
// holder ahead of it is reclaimed first, which may promote the target
// itself. A target that is the holder is returned untouched so the caller
// decides how its own lapsed window ends.
func (s *reservationService) settleForQueued(ctx context.Context, tx repository.SlotTx, id string, now time.Time, rec *transitions) (*model.Reservation, error) {
	current, err := tx.FindByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if !current.IsInQueue || current.IsTerminal() {
		return current, nil
	}
	if _, err := s.settleHolder(ctx, tx, current.Key(), now, rec); err != nil {
		return nil, err
	}
	return tx.FindByID(ctx, id)
}

func describe(r *model.Reservation) string {
	if r.IsInQueue {
		return "queued"
	}
	return string(r.Status)
}
