package errors

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"testing"
)

func TestAppError_Error(t *testing.T) {
	tests := []struct {
		name     string
		appErr   *AppError
		expected string
	}{
		{
			name: "without underlying error",
			appErr: &AppError{
				Code:    CodeNotFound,
				Message: "reservation not found",
			},
			expected: "NOT_FOUND: reservation not found",
		},
		{
			name: "with underlying error",
			appErr: &AppError{
				Code:    CodeStoreUnavailable,
				Message: "store down",
				Err:     errors.New("connection refused"),
			},
			expected: "STORE_UNAVAILABLE: store down (caused by: connection refused)",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.appErr.Error(); got != tt.expected {
				t.Errorf("Error() = %q, want %q", got, tt.expected)
			}
		})
	}
}

func TestReservationConstructors(t *testing.T) {
	cause := errors.New("cause")

	tests := []struct {
		name   string
		err    *AppError
		code   string
		status int
	}{
		{"invalid slot", InvalidSlot("bad slot", cause), CodeInvalidSlot, http.StatusBadRequest},
		{"duplicate request", DuplicateRequest("dup", cause), CodeDuplicateRequest, http.StatusConflict},
		{"invalid state", InvalidState("state", cause), CodeInvalidState, http.StatusConflict},
		{"already expired", AlreadyExpired("late", cause), CodeAlreadyExpired, http.StatusGone},
		{"concurrency conflict", ConcurrencyConflict("busy", cause), CodeConcurrencyConflict, http.StatusConflict},
		{"store unavailable", StoreUnavailable(cause), CodeStoreUnavailable, http.StatusServiceUnavailable},
		{"slot unavailable", SlotUnavailable("booked", cause), CodeSlotUnavailable, http.StatusConflict},
		{"not found", NotFoundWithID("Reservation", "r1"), CodeNotFound, http.StatusNotFound},
		{"unauthorized", Unauthorized("no token"), CodeUnauthorized, http.StatusUnauthorized},
		{"forbidden", Forbidden("not owner"), CodeForbidden, http.StatusForbidden},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if tt.err.Code != tt.code {
				t.Errorf("Code = %s, want %s", tt.err.Code, tt.code)
			}
			if tt.err.StatusCode() != tt.status {
				t.Errorf("StatusCode() = %d, want %d", tt.err.StatusCode(), tt.status)
			}
		})
	}
}

func TestAppError_UnwrapKeepsSentinel(t *testing.T) {
	sentinel := errors.New("reservation hold has expired")
	appErr := AlreadyExpired("payment window elapsed", sentinel)

	if !errors.Is(appErr, sentinel) {
		t.Error("errors.Is should find the wrapped sentinel")
	}
}

func TestAsAppError(t *testing.T) {
	appErr := DuplicateRequest("dup", nil)
	wrapped := fmt.Errorf("admission: %w", appErr)
	regularErr := errors.New("regular error")

	if got := AsAppError(wrapped); got != appErr {
		t.Errorf("AsAppError() should find AppError through wrapping")
	}
	if !IsAppError(wrapped) {
		t.Error("IsAppError() should be true for wrapped AppError")
	}
	if IsAppError(regularErr) {
		t.Error("IsAppError() should be false for regular error")
	}

	result := AsAppError(regularErr)
	if result.Code != CodeInternal {
		t.Errorf("AsAppError() code = %s, want %s", result.Code, CodeInternal)
	}
	if result.Err != regularErr {
		t.Error("AsAppError() should wrap the original error")
	}
}

func TestHasCode(t *testing.T) {
	err := fmt.Errorf("confirm: %w", InvalidState("not pending", nil))

	if !HasCode(err, CodeInvalidState) {
		t.Error("HasCode() should match INVALID_STATE")
	}
	if HasCode(err, CodeAlreadyExpired) {
		t.Error("HasCode() should not match ALREADY_EXPIRED")
	}
	if HasCode(errors.New("plain"), CodeInternal) {
		t.Error("HasCode() should be false for non AppError")
	}
}

func TestAppError_ToJSON(t *testing.T) {
	err := NotFoundWithID("Reservation", "abc").WithDetails(map[string]any{"id": "abc"})
	body := string(err.ToJSON())

	for _, want := range []string{"NOT_FOUND", "Reservation not found", `"id":"abc"`} {
		if !strings.Contains(body, want) {
			t.Errorf("ToJSON() = %s, missing %s", body, want)
		}
	}
}
