package clock

import (
	"testing"
	"time"
)

func TestFakeClock_Advance(t *testing.T) {
	start := time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC)
	c := Fake(start)

	c.Advance(3 * time.Minute)

	if got := c.Now(); !got.Equal(start.Add(3 * time.Minute)) {
		t.Errorf("Now() = %v, want %v", got, start.Add(3*time.Minute))
	}
}

func TestFakeClock_Ticker(t *testing.T) {
	c := Fake(time.Date(2025, 1, 15, 13, 0, 0, 0, time.UTC))
	ticker := c.NewTicker(30 * time.Second)

	c.Advance(10 * time.Second)
	select {
	case <-ticker.C:
		t.Fatal("ticker fired before interval elapsed")
	default:
	}

	c.Advance(25 * time.Second)
	select {
	case <-ticker.C:
	default:
		t.Fatal("ticker did not fire after interval elapsed")
	}

	ticker.Stop()
	c.Advance(time.Minute)
	select {
	case <-ticker.C:
		t.Fatal("stopped ticker fired")
	default:
	}
}
