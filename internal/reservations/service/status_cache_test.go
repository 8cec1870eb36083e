package service

import (
	"context"
	"sync"
	"testing"
	"time"

	"courtq/pkg/model"
)

// memoryStatusCache keeps the same generation contract as the Redis cache.
type memoryStatusCache struct {
	mu        sync.Mutex
	entries   map[string]*model.SlotStatus
	gens      map[string]int64
	hits      int
	beforeSet func()
}

func newMemoryStatusCache() *memoryStatusCache {
	return &memoryStatusCache{
		entries: map[string]*model.SlotStatus{},
		gens:    map[string]int64{},
	}
}

func (c *memoryStatusCache) Lookup(_ context.Context, key model.SlotKey, now time.Time) (*model.SlotStatus, int64, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	gen := c.gens[key.String()]
	status, ok := c.entries[key.String()]
	if !ok || status.StaleAt(now) {
		return nil, gen, false
	}
	c.hits++
	cp := *status
	return &cp, gen, true
}

func (c *memoryStatusCache) Set(_ context.Context, key model.SlotKey, status *model.SlotStatus, gen int64, _ time.Time) {
	c.mu.Lock()
	hook := c.beforeSet
	c.beforeSet = nil
	c.mu.Unlock()
	if hook != nil {
		hook()
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.gens[key.String()] != gen {
		return
	}
	cp := *status
	c.entries[key.String()] = &cp
}

func (c *memoryStatusCache) Invalidate(_ context.Context, key model.SlotKey) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.gens[key.String()]++
	delete(c.entries, key.String())
}

func (c *memoryStatusCache) entry(key model.SlotKey) (*model.SlotStatus, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	status, ok := c.entries[key.String()]
	return status, ok
}

func TestGetSlotStatus_CachedHolderExpires(t *testing.T) {
	statusCache := newMemoryStatusCache()
	f := newCachedFixture(t, statusCache)
	r1 := f.request(t, "alice")
	r2 := f.request(t, "bob")

	if _, err := f.svc.GetSlotStatus(context.Background(), "court-1", "2025-01-15", "14:00"); err != nil {
		t.Fatalf("GetSlotStatus() error = %v", err)
	}
	cached, ok := statusCache.entry(courtKey)
	if !ok {
		t.Fatal("first read should populate the cache")
	}
	if cached.HolderExpiresAt == nil || !cached.HolderExpiresAt.Equal(testStart.Add(10*time.Minute)) {
		t.Fatalf("cached holder_expires_at = %v, want %v", cached.HolderExpiresAt, testStart.Add(10*time.Minute))
	}

	f.clock.Advance(time.Minute)
	if _, err := f.svc.GetSlotStatus(context.Background(), "court-1", "2025-01-15", "14:00"); err != nil {
		t.Fatalf("GetSlotStatus() error = %v", err)
	}
	if statusCache.hits != 1 {
		t.Fatalf("cache hits = %d, want 1 inside the holder window", statusCache.hits)
	}

	f.clock.Advance(10 * time.Minute)
	status, err := f.svc.GetSlotStatus(context.Background(), "court-1", "2025-01-15", "14:00")
	if err != nil {
		t.Fatalf("GetSlotStatus() error = %v", err)
	}
	if status.ActiveHolder == nil || *status.ActiveHolder != r2.ReservationID || status.QueueLength != 0 {
		t.Errorf("status after lapse = %+v, want R2 holding with empty queue", status)
	}
	if got := f.get(t, r1.ReservationID); got.Status != model.StatusExpired {
		t.Errorf("R1 status = %s, want EXPIRED", got.Status)
	}
	assertHolder(t, f.get(t, r2.ReservationID), f.clock.Now())
}

func TestGetSlotStatus_ConcurrentChangeNotCached(t *testing.T) {
	statusCache := newMemoryStatusCache()
	f := newCachedFixture(t, statusCache)
	r1 := f.request(t, "alice")
	r2 := f.request(t, "bob")

	statusCache.beforeSet = func() {
		if _, err := f.svc.Cancel(context.Background(), r1.ReservationID, user("alice"), nil); err != nil {
			t.Errorf("Cancel() error = %v", err)
		}
	}
	if _, err := f.svc.GetSlotStatus(context.Background(), "court-1", "2025-01-15", "14:00"); err != nil {
		t.Fatalf("GetSlotStatus() error = %v", err)
	}
	if cached, ok := statusCache.entry(courtKey); ok {
		t.Fatalf("projection read before the cancel was cached: %+v", cached)
	}

	status, err := f.svc.GetSlotStatus(context.Background(), "court-1", "2025-01-15", "14:00")
	if err != nil {
		t.Fatalf("GetSlotStatus() error = %v", err)
	}
	if status.ActiveHolder == nil || *status.ActiveHolder != r2.ReservationID {
		t.Errorf("status after cancel = %+v, want R2 holding", status)
	}
}
