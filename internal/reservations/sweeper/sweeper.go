package sweeper

import (
	"context"
	"time"

	"courtq/internal/reservations/service"
	"courtq/pkg/clock"
	"courtq/pkg/config"
	"courtq/pkg/lease"
	"courtq/pkg/metrics"
)

// Result summarizes one sweep pass.
type Result struct {
	Reclaimed int
	Promoted  int
	Failed    int
	Skipped   bool
}

// Sweeper periodically reclaims elapsed payment holds and hands stranded
// queues to their head. Each step runs in its own slot transaction. The
// lease keeps replicas from sweeping the same batch.
type Sweeper struct {
	svc   service.ReservationService
	lease lease.Lease
	clock clock.Clock
	cfg   *config.Config
}

func New(svc service.ReservationService, l lease.Lease, clk clock.Clock, cfg *config.Config) *Sweeper {
	if l == nil {
		l = lease.Local{}
	}
	return &Sweeper{svc: svc, lease: l, clock: clk, cfg: cfg}
}

// Run sweeps once immediately and then on every tick until ctx is done.
func (s *Sweeper) Run(ctx context.Context) {
	s.cfg.Log.Info("Sweeper started",
		"interval", s.cfg.SweepInterval,
		"batch_size", s.cfg.SweepBatchSize,
	)

	s.RunOnce(ctx)

	ticker := s.clock.NewTicker(s.cfg.SweepInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			s.RunOnce(ctx)
		case <-ctx.Done():
			releaseCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			if err := s.lease.Release(releaseCtx); err != nil {
				s.cfg.Log.Warn("Failed to release sweeper lease", "error", err)
			}
			cancel()
			s.cfg.Log.Info("Sweeper stopped")
			return
		}
	}
}

// RunOnce performs a single pass. Failures on one row are logged and do
// not stop the rest of the batch.
func (s *Sweeper) RunOnce(ctx context.Context) Result {
	var res Result
	if ctx.Err() != nil {
		res.Skipped = true
		return res
	}

	acquired, err := s.lease.Acquire(ctx)
	if err != nil {
		s.cfg.Log.Warn("Sweeper lease unavailable, skipping pass", "error", err)
		res.Skipped = true
		return res
	}
	if !acquired {
		s.cfg.Log.Debug("Another replica holds the sweeper lease")
		res.Skipped = true
		return res
	}

	started := time.Now()
	s.reclaimExpired(ctx, &res)
	s.promoteStranded(ctx, &res)
	metrics.ObserveSweep(time.Since(started), res.Reclaimed)

	if res.Reclaimed > 0 || res.Promoted > 0 || res.Failed > 0 {
		s.cfg.Log.Info("Sweep completed",
			"reclaimed", res.Reclaimed,
			"promoted", res.Promoted,
			"failed", res.Failed,
			"duration", time.Since(started),
		)
	}
	return res
}

func (s *Sweeper) reclaimExpired(ctx context.Context, res *Result) {
	expired, err := s.svc.Store().FindExpiredHolders(ctx, s.clock.Now(), s.cfg.SweepBatchSize)
	if err != nil {
		s.cfg.Log.Error("Failed to list expired holds", "error", err)
		res.Failed++
		return
	}

	for _, r := range expired {
		if ctx.Err() != nil {
			return
		}
		reclaimed, err := s.svc.ExpireHold(ctx, r.ID)
		if err != nil {
			s.cfg.Log.Error("Failed to reclaim hold",
				"reservation_id", r.ID,
				"slot_key", r.Key().String(),
				"error", err,
			)
			res.Failed++
			continue
		}
		if reclaimed {
			res.Reclaimed++
		}
	}
}

func (s *Sweeper) promoteStranded(ctx context.Context, res *Result) {
	keys, err := s.svc.Store().FindStrandedSlots(ctx, s.cfg.SweepBatchSize)
	if err != nil {
		s.cfg.Log.Error("Failed to list stranded queues", "error", err)
		res.Failed++
		return
	}

	for _, key := range keys {
		if ctx.Err() != nil {
			return
		}
		promoted, err := s.svc.PromoteHead(ctx, key)
		if err != nil {
			s.cfg.Log.Error("Failed to promote queue head", "slot_key", key.String(), "error", err)
			res.Failed++
			continue
		}
		if promoted {
			res.Promoted++
		}
	}
}
