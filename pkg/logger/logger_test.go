package logger

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"
)

func TestNew_LevelFiltering(t *testing.T) {
	tests := []struct {
		level     string
		wantDebug bool
		wantWarn  bool
	}{
		{DEBUG, true, true},
		{INFO, false, true},
		{ERROR, false, false},
		{"bogus", false, true},
	}

	for _, tt := range tests {
		t.Run(tt.level, func(t *testing.T) {
			var buf bytes.Buffer
			log := New(Config{Level: tt.level, Output: &buf})

			log.Debug("debug line")
			log.Warn("warn line")

			out := buf.String()
			if got := strings.Contains(out, "debug line"); got != tt.wantDebug {
				t.Errorf("debug written = %v, want %v", got, tt.wantDebug)
			}
			if got := strings.Contains(out, "warn line"); got != tt.wantWarn {
				t.Errorf("warn written = %v, want %v", got, tt.wantWarn)
			}
		})
	}
}

func TestComponent_AddsAttributes(t *testing.T) {
	var buf bytes.Buffer
	log := New(Config{Output: &buf, Service: "reservations"}).Component("sweeper")

	log.Info("pass finished", "reclaimed", 2)

	var record map[string]any
	if err := json.Unmarshal(buf.Bytes(), &record); err != nil {
		t.Fatalf("output is not JSON: %v (%s)", err, buf.String())
	}
	if record[SERVICE] != "reservations" {
		t.Errorf("service = %v, want reservations", record[SERVICE])
	}
	if record[COMPONENT] != "sweeper" {
		t.Errorf("component = %v, want sweeper", record[COMPONENT])
	}
	if record["reclaimed"] != float64(2) {
		t.Errorf("reclaimed = %v, want 2", record["reclaimed"])
	}
}

func TestNew_TextFormat(t *testing.T) {
	var buf bytes.Buffer
	New(Config{Format: TEXT, Output: &buf}).Info("hello", "k", "v")

	if !strings.Contains(buf.String(), "k=v") {
		t.Errorf("text output = %q, want key=value pairs", buf.String())
	}
}
