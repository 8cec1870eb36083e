package events

import (
	"time"

	"courtq/pkg/model"

	"github.com/google/uuid"
)

type Type string

const (
	TypeAdmitted       Type = "reservation.admitted"
	TypeQueued         Type = "reservation.queued"
	TypePromoted       Type = "reservation.promoted"
	TypeConfirmed      Type = "reservation.confirmed"
	TypeExpired        Type = "reservation.expired"
	TypeCancelled      Type = "reservation.cancelled"
	TypeRefundRequired Type = "reservation.refund_required"
)

const SchemaVersion = "1"

// ReservationEvent is the payload published after a transition commits.
type ReservationEvent struct {
	EventID          string                  `json:"event_id"`
	Type             Type                    `json:"type"`
	ReservationID    string                  `json:"reservation_id"`
	ResourceID       string                  `json:"resource_id"`
	Date             string                  `json:"date"`
	StartTime        string                  `json:"start_time"`
	RequesterID      string                  `json:"requester_id"`
	Status           model.ReservationStatus `json:"status"`
	PaymentStatus    model.PaymentStatus     `json:"payment_status"`
	QueuePosition    *int                    `json:"queue_position,omitempty"`
	PaymentExpiresAt *time.Time              `json:"payment_expires_at,omitempty"`
	PriceCents       int64                   `json:"price_cents"`
	Reason           string                  `json:"reason,omitempty"`
	OccurredAt       time.Time               `json:"occurred_at"`
}

func New(t Type, r *model.Reservation, at time.Time) ReservationEvent {
	snapshot := r.Clone()
	return ReservationEvent{
		EventID:          uuid.NewString(),
		Type:             t,
		ReservationID:    snapshot.ID,
		ResourceID:       snapshot.ResourceID,
		Date:             snapshot.Date,
		StartTime:        snapshot.StartTime,
		RequesterID:      snapshot.RequesterID,
		Status:           snapshot.Status,
		PaymentStatus:    snapshot.PaymentStatus,
		QueuePosition:    snapshot.QueuePosition,
		PaymentExpiresAt: snapshot.PaymentExpiresAt,
		PriceCents:       snapshot.PriceCents,
		Reason:           snapshot.CancelReason,
		OccurredAt:       at,
	}
}

// SlotKey is the partition key. Events of one slot stay ordered.
func (e ReservationEvent) SlotKey() string {
	return model.SlotKey{ResourceID: e.ResourceID, Date: e.Date, StartTime: e.StartTime}.String()
}
