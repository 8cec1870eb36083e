package cache

import (
	"context"
	"testing"
	"time"

	"courtq/pkg/model"
)

func TestNewSlotStatusCache_FallsBackToNoop(t *testing.T) {
	c := NewSlotStatusCache(nil, time.Second, nil)
	if _, ok := c.(Noop); !ok {
		t.Fatalf("NewSlotStatusCache(nil) = %T, want Noop", c)
	}

	now := time.Now()
	key := model.SlotKey{ResourceID: "court-1", Date: "2025-01-15", StartTime: "14:00"}
	c.Set(context.Background(), key, &model.SlotStatus{QueueLength: 3}, 0, now)
	if _, _, ok := c.Lookup(context.Background(), key, now); ok {
		t.Error("Noop.Lookup() should always miss")
	}
}

func TestCacheKey(t *testing.T) {
	key := model.SlotKey{ResourceID: "court-1", Date: "2025-01-15", StartTime: "14:00"}
	if got := cacheKey(key); got != "courtq:slot-status:court-1|2025-01-15|14:00" {
		t.Errorf("cacheKey() = %s", got)
	}
	if got := genKey(key); got != "courtq:slot-status-gen:court-1|2025-01-15|14:00" {
		t.Errorf("genKey() = %s", got)
	}
}

func TestEntryTTL(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	at := func(d time.Duration) *time.Time {
		t := now.Add(d)
		return &t
	}

	tests := []struct {
		name    string
		expires *time.Time
		ttl     time.Duration
		want    time.Duration
	}{
		{name: "no holder", expires: nil, ttl: 30 * time.Second, want: 30 * time.Second},
		{name: "window longer than ttl", expires: at(10 * time.Minute), ttl: 30 * time.Second, want: 30 * time.Second},
		{name: "window shorter than ttl", expires: at(5 * time.Second), ttl: 30 * time.Second, want: 5 * time.Second},
		{name: "window closes now", expires: at(0), ttl: 30 * time.Second, want: 0},
		{name: "window already closed", expires: at(-time.Minute), ttl: 30 * time.Second, want: 0},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status := &model.SlotStatus{HolderExpiresAt: tt.expires}
			if got := entryTTL(status, tt.ttl, now); got != tt.want {
				t.Errorf("entryTTL() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestSlotStatus_StaleAt(t *testing.T) {
	now := time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC)
	expires := now.Add(10 * time.Minute)
	status := &model.SlotStatus{HolderExpiresAt: &expires}

	if status.StaleAt(now) {
		t.Error("projection should be fresh inside the holder window")
	}
	if !status.StaleAt(expires.Add(time.Second)) {
		t.Error("projection should be stale once the holder window closed")
	}
	if (&model.SlotStatus{}).StaleAt(expires.Add(time.Hour)) {
		t.Error("projection without a holder window never goes stale")
	}
}
