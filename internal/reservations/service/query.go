package service

import (
	"context"
	"sync"

	"courtq/internal/reservations/repository"
	"courtq/pkg/auth"
	apperrors "courtq/pkg/errors"
	"courtq/pkg/model"
)

func (s *reservationService) GetByID(ctx context.Context, id string, actor auth.Identity) (*model.Reservation, error) {
	if id == "" {
		return nil, apperrors.InvalidInput("Reservation ID cannot be empty")
	}
	r, err := s.store.FindByID(ctx, id)
	if err != nil {
		return nil, s.mapError("GetByID", err)
	}
	if !canAccess(actor, r) {
		return nil, apperrors.NotFoundWithID("Reservation", id)
	}
	return r, nil
}

func (s *reservationService) ListByRequester(ctx context.Context, requesterID string, limit int, offset int64) ([]*model.Reservation, int64, error) {
	if requesterID == "" {
		return nil, 0, apperrors.Unauthorized("Requester identity is required")
	}

	var (
		count           int64
		reservations    []*model.Reservation
		errCount, errLs error
		wg              sync.WaitGroup
	)
	wg.Add(2)

	go func() {
		defer wg.Done()
		count, errCount = s.store.CountByRequester(ctx, requesterID)
	}()

	go func() {
		defer wg.Done()
		reservations, errLs = s.store.ListByRequester(ctx, requesterID, limit, offset)
	}()

	wg.Wait()
	if errCount != nil {
		return nil, 0, s.mapError("CountByRequester", errCount)
	}
	if errLs != nil {
		return nil, 0, s.mapError("ListByRequester", errLs)
	}
	if reservations == nil {
		reservations = []*model.Reservation{}
	}
	return reservations, count, nil
}

// GetSlotStatus projects the holder and queue length of a key. A holder
// whose window has closed is reclaimed before the projection is read, and
// a cached projection is skipped once its holder's window has closed.
func (s *reservationService) GetSlotStatus(ctx context.Context, resourceID, date, startTime string) (*model.SlotStatus, error) {
	key, err := s.resolver.Key(resourceID, date, startTime)
	if err != nil {
		return nil, s.mapError("GetSlotStatus", err)
	}

	now := s.clock.Now()
	cached, gen, ok := s.statusCache.Lookup(ctx, key, now)
	if ok {
		return cached, nil
	}

	holder, err := s.store.FindHolder(ctx, key)
	if err != nil {
		return nil, s.mapError("GetSlotStatus", err)
	}
	if holder != nil && holder.HoldElapsed(now) {
		if err := s.reclaim(ctx, key); err != nil {
			return nil, err
		}
		if holder, err = s.store.FindHolder(ctx, key); err != nil {
			return nil, s.mapError("GetSlotStatus", err)
		}
	}

	queued, err := s.store.CountQueued(ctx, key)
	if err != nil {
		return nil, s.mapError("GetSlotStatus", err)
	}

	status := &model.SlotStatus{
		ResourceID:  key.ResourceID,
		Date:        key.Date,
		StartTime:   key.StartTime,
		QueueLength: queued,
	}
	if holder != nil {
		id := holder.ID
		status.ActiveHolder = &id
		status.Booked = holder.Status == model.StatusConfirmed
		if holder.Status == model.StatusPending && holder.PaymentExpiresAt != nil {
			expires := *holder.PaymentExpiresAt
			status.HolderExpiresAt = &expires
		}
	}

	s.statusCache.Set(ctx, key, status, gen, now)
	return status, nil
}

func (s *reservationService) reclaim(ctx context.Context, key model.SlotKey) error {
	err := s.inSlot(ctx, key, func(ctx context.Context, tx repository.SlotTx, rec *transitions) error {
		_, err := s.settleHolder(ctx, tx, key, s.clock.Now(), rec)
		return err
	})
	return s.mapError("Reclaim", err)
}

// ListSlot returns every reservation of a key in arrival order.
func (s *reservationService) ListSlot(ctx context.Context, resourceID, date, startTime string) ([]*model.Reservation, error) {
	key, err := s.resolver.Key(resourceID, date, startTime)
	if err != nil {
		return nil, s.mapError("ListSlot", err)
	}
	rows, err := s.store.ListBySlot(ctx, key)
	if err != nil {
		return nil, s.mapError("ListSlot", err)
	}
	if rows == nil {
		rows = []*model.Reservation{}
	}
	return rows, nil
}
