package events

import (
	"context"
	"errors"
	"fmt"

	"courtq/pkg/auth"
	apperrors "courtq/pkg/errors"
	"courtq/pkg/kafka"
	"courtq/pkg/logger"
	"courtq/pkg/model"
)

const PaymentSucceeded = "payment.succeeded"

// PaymentEvent is what the payment collaborator emits once a charge for a
// reservation settles.
type PaymentEvent struct {
	Type          string `json:"type"`
	PaymentID     string `json:"payment_id"`
	ReservationID string `json:"reservation_id"`
	AmountCents   int64  `json:"amount_cents"`
}

type PaymentConfirmer interface {
	ConfirmPayment(ctx context.Context, id string, actor auth.Identity) (*model.Reservation, error)
}

// PaymentHandler turns payment events into confirmations. Outcomes that
// retrying cannot change are reported as business errors so the consumer
// parks them in the DLQ.
type PaymentHandler struct {
	confirmer PaymentConfirmer
	log       *logger.Logger
}

func NewPaymentHandler(confirmer PaymentConfirmer, log *logger.Logger) *PaymentHandler {
	return &PaymentHandler{confirmer: confirmer, log: log}
}

func (h *PaymentHandler) Handle(ctx context.Context, msg kafka.Message) error {
	var ev PaymentEvent
	if err := msg.DecodeValue(&ev); err != nil {
		return err
	}
	if ev.Type == "" {
		ev.Type = msg.GetEventType()
	}
	if ev.Type != PaymentSucceeded {
		h.log.Debug("ignoring payment event", "type", ev.Type, "payment_id", ev.PaymentID)
		return nil
	}
	if ev.ReservationID == "" {
		return kafka.NewPermanentError("payment event without reservation_id", kafka.ErrInvalidMessage)
	}

	actor := auth.Identity{RequesterID: "payment:" + ev.PaymentID, Role: auth.RolePayment}
	reservation, err := h.confirmer.ConfirmPayment(ctx, ev.ReservationID, actor)
	if err == nil {
		h.log.Info("payment confirmed reservation",
			"reservation_id", reservation.ID,
			"payment_id", ev.PaymentID,
		)
		return nil
	}

	if errors.Is(err, context.Canceled) {
		return err
	}
	appErr := apperrors.AsAppError(err)
	switch appErr.Code {
	case apperrors.CodeStoreUnavailable, apperrors.CodeConcurrencyConflict:
		return kafka.NewTransientError("confirmation not applied", err)
	case apperrors.CodeInvalidState, apperrors.CodeAlreadyExpired, apperrors.CodeNotFound, apperrors.CodeInvalidInput:
		h.log.Warn("payment could not confirm reservation",
			"reservation_id", ev.ReservationID,
			"payment_id", ev.PaymentID,
			"code", appErr.Code,
		)
		return kafka.NewBusinessError(fmt.Sprintf("payment %s not applicable", ev.PaymentID), err)
	default:
		return kafka.NewTransientError("confirmation failed", err)
	}
}
