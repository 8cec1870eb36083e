package sweeper

import (
	"context"
	"errors"
	"testing"
	"time"

	"courtq/internal/reservations/repository"
	"courtq/internal/reservations/service"
	"courtq/internal/reservations/validator"
	"courtq/pkg/client"
	"courtq/pkg/clock"
	"courtq/pkg/config"
	"courtq/pkg/logger"
	"courtq/pkg/model"
)

var slotKey = model.SlotKey{ResourceID: "court-1", Date: "2025-01-15", StartTime: "14:00"}

type stubLease struct {
	acquired bool
	err      error
	released int
}

func (l *stubLease) Acquire(context.Context) (bool, error) { return l.acquired, l.err }
func (l *stubLease) Release(context.Context) error {
	l.released++
	return nil
}

func setup(t *testing.T) (service.ReservationService, *clock.FakeClock, *config.Config) {
	t.Helper()
	log := logger.Discard()
	cfg := &config.Config{
		HoldDuration:   10 * time.Minute,
		SweepInterval:  30 * time.Second,
		SweepBatchSize: 100,
		Location:       time.UTC,
		Log:            log,
	}
	clk := clock.Fake(time.Date(2025, 1, 10, 9, 0, 0, 0, time.UTC))
	svc := service.NewReservationService(
		repository.NewMemoryStore(),
		validator.NewReservationValidator(log),
		client.StaticPrice(2500),
		nil,
		nil,
		clk,
		cfg,
	)
	return svc, clk, cfg
}

func admit(t *testing.T, svc service.ReservationService, requester, start, end string) string {
	t.Helper()
	out, err := svc.RequestSlot(context.Background(), requester, &model.ReservationRequest{
		ResourceID: slotKey.ResourceID, Date: slotKey.Date, StartTime: start, EndTime: end,
	})
	if err != nil {
		t.Fatalf("RequestSlot(%s) error = %v", requester, err)
	}
	return out.ReservationID
}

func status(t *testing.T, svc service.ReservationService, id string) *model.Reservation {
	t.Helper()
	r, err := svc.Store().FindByID(context.Background(), id)
	if err != nil {
		t.Fatalf("FindByID(%s) error = %v", id, err)
	}
	return r
}

func TestRunOnce_ReclaimsAndPromotes(t *testing.T) {
	svc, clk, cfg := setup(t)
	holder := admit(t, svc, "alice", "14:00", "15:00")
	queued := admit(t, svc, "bob", "14:00", "15:00")
	other := admit(t, svc, "carol", "16:00", "17:00")

	clk.Advance(11 * time.Minute)
	sw := New(svc, nil, clk, cfg)

	res := sw.RunOnce(context.Background())
	if res.Reclaimed != 2 || res.Failed != 0 {
		t.Fatalf("RunOnce() = %+v, want 2 reclaimed", res)
	}
	if got := status(t, svc, holder); got.Status != model.StatusExpired {
		t.Errorf("holder = %s, want EXPIRED", got.Status)
	}
	if got := status(t, svc, other); got.Status != model.StatusExpired {
		t.Errorf("other slot holder = %s, want EXPIRED", got.Status)
	}
	promoted := status(t, svc, queued)
	if !promoted.IsActiveHolder() || !promoted.PaymentExpiresAt.Equal(clk.Now().Add(10*time.Minute)) {
		t.Errorf("queued entry should hold with a fresh window, got %+v", promoted)
	}

	again := sw.RunOnce(context.Background())
	if again.Reclaimed != 0 || again.Promoted != 0 {
		t.Errorf("second RunOnce() = %+v, want no-op", again)
	}
}

func TestRunOnce_LeavesLiveHoldsAlone(t *testing.T) {
	svc, clk, cfg := setup(t)
	holder := admit(t, svc, "alice", "14:00", "15:00")

	clk.Advance(10 * time.Minute)
	res := New(svc, nil, clk, cfg).RunOnce(context.Background())
	if res.Reclaimed != 0 {
		t.Errorf("Reclaimed = %d at the deadline, want 0", res.Reclaimed)
	}
	if got := status(t, svc, holder); !got.IsActiveHolder() {
		t.Errorf("holder = %s, want still holding", got.Status)
	}
}

func TestRunOnce_PromotesStrandedQueue(t *testing.T) {
	svc, clk, cfg := setup(t)
	pos := 1
	stranded := &model.Reservation{
		ID: "q1", ResourceID: slotKey.ResourceID, Date: slotKey.Date, StartTime: slotKey.StartTime,
		EndTime: "15:00", RequesterID: "dave", Status: model.StatusPending,
		PaymentStatus: model.PaymentUnpaid, IsInQueue: true, QueuePosition: &pos,
	}
	err := svc.Store().WithinSlot(context.Background(), slotKey, func(ctx context.Context, tx repository.SlotTx) error {
		return tx.Insert(ctx, stranded)
	})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}

	res := New(svc, nil, clk, cfg).RunOnce(context.Background())
	if res.Promoted != 1 {
		t.Fatalf("Promoted = %d, want 1", res.Promoted)
	}
	if got := status(t, svc, "q1"); !got.IsActiveHolder() {
		t.Errorf("stranded head should hold the slot")
	}
}

func TestRunOnce_Lease(t *testing.T) {
	tests := []struct {
		name  string
		lease *stubLease
	}{
		{"held elsewhere", &stubLease{acquired: false}},
		{"lease store down", &stubLease{err: errors.New("redis: connection refused")}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, clk, cfg := setup(t)
			holder := admit(t, svc, "alice", "14:00", "15:00")
			clk.Advance(time.Hour)

			res := New(svc, tt.lease, clk, cfg).RunOnce(context.Background())
			if !res.Skipped || res.Reclaimed != 0 {
				t.Errorf("RunOnce() = %+v, want skipped", res)
			}
			if got := status(t, svc, holder); !got.IsActiveHolder() {
				t.Error("skipped pass must not touch rows")
			}
		})
	}
}

func TestRun_SweepsOnTickUntilCancelled(t *testing.T) {
	svc, clk, cfg := setup(t)
	holder := admit(t, svc, "alice", "14:00", "15:00")
	l := &stubLease{acquired: true}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	go func() {
		New(svc, l, clk, cfg).Run(ctx)
		close(done)
	}()

	deadline := time.After(2 * time.Second)
	for status(t, svc, holder).Status != model.StatusExpired {
		select {
		case <-deadline:
			cancel()
			t.Fatal("sweeper did not reclaim the elapsed hold")
		case <-time.After(5 * time.Millisecond):
			clk.Advance(time.Minute)
		}
	}

	cancel()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("Run did not return after cancel")
	}
	if l.released != 1 {
		t.Errorf("lease released %d times, want 1", l.released)
	}
}
