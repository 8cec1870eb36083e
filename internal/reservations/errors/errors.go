package errors

import "errors"

var (
	ErrNotFound = errors.New("reservation not found")

	ErrInvalidID = errors.New("invalid reservation ID format")

	ErrInvalidSlot = errors.New("invalid slot")

	ErrDuplicateRequest = errors.New("requester already has an open reservation for this slot")

	ErrInvalidState = errors.New("reservation is not in the expected state")

	ErrAlreadyExpired = errors.New("payment window has already elapsed")

	ErrConcurrencyConflict = errors.New("slot transaction lost a concurrent write race")

	ErrStoreUnavailable = errors.New("reservation store unavailable")

	ErrSlotUnavailable = errors.New("slot is already booked")

	// ErrStateChanged is returned by a compare-and-swap whose expected
	// state no longer matches the stored row.
	ErrStateChanged = errors.New("reservation changed concurrently")

	// ErrInvariantViolation aborts a slot transaction that observed more
	// than one holder or a broken queue sequence.
	ErrInvariantViolation = errors.New("slot invariant violated")
)
