package slotkey

import (
	"errors"
	"testing"
	"time"

	reserrors "courtq/internal/reservations/errors"
)

func TestNormalizeTime(t *testing.T) {
	tests := []struct {
		in      string
		want    string
		wantErr bool
	}{
		{in: "14:00", want: "14:00"},
		{in: "9:30", want: "09:30"},
		{in: "09:30:45", want: "09:30"},
		{in: "2:15pm", want: "14:15"},
		{in: " 2:15 PM ", want: "14:15"},
		{in: "12AM", want: "00:00"},
		{in: "25:00", wantErr: true},
		{in: "noon", wantErr: true},
		{in: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := NormalizeTime(tt.in)
			if tt.wantErr {
				if !errors.Is(err, reserrors.ErrInvalidSlot) {
					t.Fatalf("NormalizeTime(%q) error = %v, want ErrInvalidSlot", tt.in, err)
				}
				return
			}
			if err != nil {
				t.Fatalf("NormalizeTime(%q) unexpected error: %v", tt.in, err)
			}
			if got != tt.want {
				t.Errorf("NormalizeTime(%q) = %q, want %q", tt.in, got, tt.want)
			}
		})
	}
}

func TestResolver_KeyCollidesAcrossFormats(t *testing.T) {
	r := NewResolver(time.UTC)

	a, err := r.Key("court-1", "2025-01-15", "14:00")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	b, err := r.Key(" court-1 ", "2025-01-15T08:00:00Z", "2:00 PM")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if a != b {
		t.Errorf("keys differ: %v vs %v", a, b)
	}
	if a.String() != "court-1|2025-01-15|14:00" {
		t.Errorf("String() = %q", a.String())
	}
}

func TestResolver_DateProjectedIntoLocation(t *testing.T) {
	loc := time.FixedZone("UTC+3", 3*60*60)
	r := NewResolver(loc)

	got, err := r.NormalizeDate("2025-01-15T22:30:00Z")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if got != "2025-01-16" {
		t.Errorf("NormalizeDate() = %q, want 2025-01-16", got)
	}
}

func TestResolver_Resolve(t *testing.T) {
	r := NewResolver(time.UTC)
	now := time.Date(2025, 1, 15, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name         string
		date         string
		start        string
		end          string
		wantErr      bool
		wantDuration int
	}{
		{name: "valid future slot", date: "2025-01-15", start: "14:00", end: "15:30", wantDuration: 90},
		{name: "end equals start", date: "2025-01-15", start: "14:00", end: "14:00", wantErr: true},
		{name: "end before start", date: "2025-01-15", start: "14:00", end: "13:00", wantErr: true},
		{name: "past date", date: "2025-01-14", start: "14:00", end: "15:00", wantErr: true},
		{name: "today already started", date: "2025-01-15", start: "11:00", end: "13:00", wantErr: true},
		{name: "bad date", date: "15/01/2025", start: "14:00", end: "15:00", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			slot, err := r.Resolve("court-1", tt.date, tt.start, tt.end, now)
			if tt.wantErr {
				if !errors.Is(err, reserrors.ErrInvalidSlot) {
					t.Fatalf("Resolve() error = %v, want ErrInvalidSlot", err)
				}
				return
			}
			if err != nil {
				t.Fatalf("Resolve() unexpected error: %v", err)
			}
			if slot.DurationMinutes != tt.wantDuration {
				t.Errorf("DurationMinutes = %d, want %d", slot.DurationMinutes, tt.wantDuration)
			}
		})
	}
}

func TestResolver_EmptyResource(t *testing.T) {
	r := NewResolver(nil)
	if _, err := r.Key("  ", "2025-01-15", "14:00"); !errors.Is(err, reserrors.ErrInvalidSlot) {
		t.Errorf("Key() error = %v, want ErrInvalidSlot", err)
	}
}
