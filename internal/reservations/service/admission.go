package service

import (
	"context"
	"errors"

	reserrors "courtq/internal/reservations/errors"
	"courtq/internal/reservations/events"
	"courtq/internal/reservations/repository"
	"courtq/internal/reservations/validator"
	apperrors "courtq/pkg/errors"
	"courtq/pkg/metrics"
	"courtq/pkg/model"

	"github.com/google/uuid"
)

func (s *reservationService) RequestSlot(ctx context.Context, requesterID string, req *model.ReservationRequest) (*model.AdmissionOutcome, error) {
	if requesterID == "" {
		return nil, apperrors.Unauthorized("Requester identity is required")
	}
	if req == nil {
		return nil, apperrors.InvalidInput("Reservation request body is required")
	}

	if err := s.validator.Validate(req); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			return nil, apperrors.Validation("Invalid reservation request", verrs.ToDetails())
		}
		return nil, apperrors.Validation("Invalid reservation request", map[string]any{"error": err.Error()})
	}

	slot, err := s.resolver.Resolve(req.ResourceID, req.Date, req.StartTime, req.EndTime, s.clock.Now())
	if err != nil {
		return nil, s.mapError("RequestSlot", err)
	}

	price, err := s.prices.GetResourcePrice(ctx, slot.Key.ResourceID, slot.DurationMinutes)
	if err != nil {
		s.cfg.Log.Error("Failed to price slot", "resource_id", slot.Key.ResourceID, "error", err)
		return nil, apperrors.Unavailable("resource catalog")
	}

	var outcome *model.AdmissionOutcome
	err = s.inSlot(ctx, slot.Key, func(ctx context.Context, tx repository.SlotTx, rec *transitions) error {
		outcome = nil
		now := s.clock.Now()

		booked, err := tx.FindConfirmed(ctx)
		if err != nil {
			return err
		}
		if booked != nil {
			return reserrors.ErrSlotUnavailable
		}

		holder, err := s.settleHolder(ctx, tx, slot.Key, now, rec)
		if err != nil {
			return err
		}

		open, err := tx.FindOpenByRequester(ctx, requesterID)
		if err != nil {
			return err
		}
		if open != nil {
			return reserrors.ErrDuplicateRequest
		}

		r := &model.Reservation{
			ID:              uuid.NewString(),
			ResourceID:      slot.Key.ResourceID,
			Date:            slot.Key.Date,
			StartTime:       slot.Key.StartTime,
			EndTime:         slot.EndTime,
			RequesterID:     requesterID,
			Status:          model.StatusPending,
			PaymentStatus:   model.PaymentUnpaid,
			PriceCents:      price,
			DurationMinutes: slot.DurationMinutes,
			CreatedAt:       now,
		}

		if holder == nil {
			r.BeginHold(now, s.cfg.HoldDuration)
			if err := tx.Insert(ctx, r); err != nil {
				return err
			}
			rec.add(events.TypeAdmitted, r, now)
			outcome = &model.AdmissionOutcome{
				Outcome:          model.AdmittedDirect,
				ReservationID:    r.ID,
				PaymentExpiresAt: r.PaymentExpiresAt,
				Reservation:      r,
			}
			return nil
		}

		queued, err := tx.ListQueued(ctx)
		if err != nil {
			return err
		}
		if err := checkQueue(slot.Key, queued); err != nil {
			return err
		}
		r.Enqueue(len(queued)+1, now)
		if err := tx.Insert(ctx, r); err != nil {
			return err
		}
		rec.add(events.TypeQueued, r, now)
		outcome = &model.AdmissionOutcome{
			Outcome:       model.AdmittedQueued,
			ReservationID: r.ID,
			Position:      r.QueuePosition,
			Reservation:   r,
		}
		return nil
	})
	if err != nil {
		if errors.Is(err, reserrors.ErrDuplicateRequest) || errors.Is(err, reserrors.ErrSlotUnavailable) {
			s.cfg.Log.Info("Slot request rejected", "slot_key", slot.Key.String(), "requester_id", requesterID, "reason", err)
			metrics.IncAdmission("rejected")
		}
		return nil, s.mapError("RequestSlot", err)
	}

	metrics.IncAdmission(string(outcome.Outcome))
	return outcome, nil
}
