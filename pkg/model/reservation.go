package model

import (
	"time"
)

type ReservationStatus string

const (
	StatusPending   ReservationStatus = "PENDING"
	StatusConfirmed ReservationStatus = "CONFIRMED"
	StatusExpired   ReservationStatus = "EXPIRED"
	StatusCancelled ReservationStatus = "CANCELLED"
)

type PaymentStatus string

const (
	PaymentUnpaid   PaymentStatus = "UNPAID"
	PaymentPaid     PaymentStatus = "PAID"
	PaymentRefunded PaymentStatus = "REFUNDED"
)

const (
	CancelReasonRequester  = "requester"
	CancelReasonAdmin      = "admin"
	CancelReasonSlotBooked = "slot_booked"
)

// Reservation is one attempt to claim a slot, either as the active holder
// or as a queued entry. Rows are never deleted.
type Reservation struct {
	ID          string            `json:"id" bson:"_id"`
	ResourceID  string            `json:"resource_id" bson:"resource_id"`
	Date        string            `json:"date" bson:"date"`
	StartTime   string            `json:"start_time" bson:"start_time"`
	EndTime     string            `json:"end_time" bson:"end_time"`
	RequesterID string            `json:"requester_id" bson:"requester_id"`
	Status      ReservationStatus `json:"status" bson:"status"`

	PaymentStatus PaymentStatus `json:"payment_status" bson:"payment_status"`
	IsInQueue     bool          `json:"is_in_queue" bson:"is_in_queue"`
	QueuePosition *int          `json:"queue_position" bson:"queue_position"`

	// HoldsSlot mirrors IsActiveHolder or CONFIRMED and backs the unique
	// index that allows a single holder per slot key.
	HoldsSlot bool `json:"-" bson:"holds_slot"`

	PaymentStartedAt *time.Time `json:"payment_started_at" bson:"payment_started_at"`
	PaymentExpiresAt *time.Time `json:"payment_expires_at" bson:"payment_expires_at"`

	PriceCents      int64 `json:"price_cents" bson:"price_cents"`
	DurationMinutes int   `json:"duration_minutes" bson:"duration_minutes"`

	CancelledBy  string `json:"cancelled_by,omitempty" bson:"cancelled_by,omitempty"`
	CancelReason string `json:"cancel_reason,omitempty" bson:"cancel_reason,omitempty"`

	CreatedAt time.Time `json:"created_at" bson:"created_at"`
	UpdatedAt time.Time `json:"updated_at" bson:"updated_at"`
}

func (r *Reservation) Key() SlotKey {
	return SlotKey{ResourceID: r.ResourceID, Date: r.Date, StartTime: r.StartTime}
}

func (r *Reservation) IsTerminal() bool {
	return r.Status != StatusPending
}

// IsActiveHolder reports whether r is the non-queued PENDING row for its key.
func (r *Reservation) IsActiveHolder() bool {
	return r.Status == StatusPending && !r.IsInQueue
}

// HoldElapsed reports whether the payment window closed before now.
func (r *Reservation) HoldElapsed(now time.Time) bool {
	return r.IsActiveHolder() && r.PaymentExpiresAt != nil && r.PaymentExpiresAt.Before(now)
}

func (r *Reservation) Clone() *Reservation {
	c := *r
	if r.QueuePosition != nil {
		p := *r.QueuePosition
		c.QueuePosition = &p
	}
	if r.PaymentStartedAt != nil {
		t := *r.PaymentStartedAt
		c.PaymentStartedAt = &t
	}
	if r.PaymentExpiresAt != nil {
		t := *r.PaymentExpiresAt
		c.PaymentExpiresAt = &t
	}
	return &c
}

func (r *Reservation) syncHoldsSlot() {
	r.HoldsSlot = !r.IsInQueue && (r.Status == StatusPending || r.Status == StatusConfirmed)
}

// The methods below are the only state transitions a reservation goes
// through. Callers persist the result with a compare-and-swap on the
// previous status.

// BeginHold makes r the active holder and opens its payment window.
func (r *Reservation) BeginHold(now time.Time, hold time.Duration) {
	started := now
	expires := now.Add(hold)
	r.IsInQueue = false
	r.QueuePosition = nil
	r.PaymentStartedAt = &started
	r.PaymentExpiresAt = &expires
	r.UpdatedAt = now
	r.syncHoldsSlot()
}

func (r *Reservation) Enqueue(position int, now time.Time) {
	p := position
	r.IsInQueue = true
	r.QueuePosition = &p
	r.PaymentStartedAt = nil
	r.PaymentExpiresAt = nil
	r.UpdatedAt = now
	r.syncHoldsSlot()
}

func (r *Reservation) Confirm(now time.Time) {
	r.Status = StatusConfirmed
	r.PaymentStatus = PaymentPaid
	r.PaymentStartedAt = nil
	r.PaymentExpiresAt = nil
	r.UpdatedAt = now
	r.syncHoldsSlot()
}

func (r *Reservation) Expire(now time.Time) {
	r.Status = StatusExpired
	r.PaymentStartedAt = nil
	r.PaymentExpiresAt = nil
	r.UpdatedAt = now
	r.syncHoldsSlot()
}

// Cancel terminates r from either role. Terminal rows are never in queue.
func (r *Reservation) Cancel(actor, reason string, now time.Time) {
	r.Status = StatusCancelled
	r.IsInQueue = false
	r.CancelledBy = actor
	r.CancelReason = reason
	r.QueuePosition = nil
	r.PaymentStartedAt = nil
	r.PaymentExpiresAt = nil
	r.UpdatedAt = now
	r.syncHoldsSlot()
}

// ReservationRequest is the body accepted by the admission endpoint.
type ReservationRequest struct {
	ResourceID string `json:"resource_id" validate:"required,min=1,max=64,resource_id"`
	Date       string `json:"date" validate:"required,slot_date"`
	StartTime  string `json:"start_time" validate:"required,slot_time"`
	EndTime    string `json:"end_time" validate:"required,slot_time"`
}

type CancelRequest struct {
	Reason string `json:"reason,omitempty" validate:"omitempty,max=200"`
}

type AdmissionKind string

const (
	AdmittedDirect AdmissionKind = "ADMITTED_DIRECT"
	AdmittedQueued AdmissionKind = "ADMITTED_QUEUED"
)

// AdmissionOutcome is returned by requestSlot.
type AdmissionOutcome struct {
	Outcome          AdmissionKind `json:"outcome"`
	ReservationID    string        `json:"reservation_id"`
	PaymentExpiresAt *time.Time    `json:"payment_expires_at,omitempty"`
	Position         *int          `json:"position,omitempty"`
	Reservation      *Reservation  `json:"reservation"`
}

// SlotStatus is the read-only projection shown to clients.
type SlotStatus struct {
	ResourceID   string  `json:"resource_id"`
	Date         string  `json:"date"`
	StartTime    string  `json:"start_time"`
	ActiveHolder *string `json:"active_holder"`
	// HolderExpiresAt is the active holder's payment deadline. Nil when
	// the slot is free or booked.
	HolderExpiresAt *time.Time `json:"holder_expires_at,omitempty"`
	QueueLength     int        `json:"queue_length"`
	Booked          bool       `json:"booked"`
}

// StaleAt reports whether the projection no longer holds at now because
// the holder's window has closed.
func (s *SlotStatus) StaleAt(now time.Time) bool {
	return s.HolderExpiresAt != nil && s.HolderExpiresAt.Before(now)
}
