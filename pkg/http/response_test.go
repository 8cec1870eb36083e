package http

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	apperrors "courtq/pkg/errors"
)

func TestWriteError(t *testing.T) {
	tests := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"already expired", apperrors.AlreadyExpired("hold elapsed", nil), http.StatusGone, apperrors.CodeAlreadyExpired},
		{"wrapped conflict", fmt.Errorf("tx: %w", apperrors.ConcurrencyConflict("busy", nil)), http.StatusConflict, apperrors.CodeConcurrencyConflict},
		{"store unavailable", apperrors.StoreUnavailable(errors.New("dial tcp")), http.StatusServiceUnavailable, apperrors.CodeStoreUnavailable},
		{"plain error", errors.New("boom"), http.StatusInternalServerError, apperrors.CodeInternal},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			_ = WriteError(rec, tt.err)

			if rec.Code != tt.wantStatus {
				t.Errorf("status = %d, want %d", rec.Code, tt.wantStatus)
			}
			var body ErrorResponse
			if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if body.Code != tt.wantCode {
				t.Errorf("code = %s, want %s", body.Code, tt.wantCode)
			}
		})
	}
}

func TestWriteError_HidesInternalMessage(t *testing.T) {
	rec := httptest.NewRecorder()
	_ = WriteError(rec, errors.New("mongo password=hunter2"))

	var body ErrorResponse
	_ = json.NewDecoder(rec.Body).Decode(&body)
	if body.Error != "Internal server error" {
		t.Errorf("error = %q, should not leak internal message", body.Error)
	}
}

func TestExtractLimitOffset(t *testing.T) {
	tests := []struct {
		query      string
		wantLimit  int
		wantOffset int64
		wantErr    bool
	}{
		{"", 10, 0, false},
		{"limit=25&offset=50", 25, 50, false},
		{"limit=5000", 100, 0, false},
		{"offset=-4", 10, 0, false},
		{"limit=abc", 0, 0, true},
		{"offset=x", 0, 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.query, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			limit, offset, err := ExtractLimitOffset(r)
			if (err != nil) != tt.wantErr {
				t.Fatalf("err = %v, wantErr %v", err, tt.wantErr)
			}
			if tt.wantErr {
				return
			}
			if limit != tt.wantLimit || offset != tt.wantOffset {
				t.Errorf("got (%d, %d), want (%d, %d)", limit, offset, tt.wantLimit, tt.wantOffset)
			}
		})
	}
}
