package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"courtq/internal/reservations/events"
	"courtq/internal/reservations/repository"
	"courtq/internal/reservations/service"
	"courtq/internal/reservations/sweeper"
	"courtq/internal/reservations/validator"
	"courtq/pkg/cache"
	"courtq/pkg/client"
	"courtq/pkg/clock"
	"courtq/pkg/config"
	kafka_config "courtq/pkg/kafka/config"
	"courtq/pkg/lease"
	"courtq/pkg/metrics"

	"github.com/spf13/pflag"
)

const (
	JobName         = "sweeper"
	SweeperLeaseKey = "courtq:sweeper:lease"
)

type options struct {
	once bool
}

func parseFlags(args []string) (options, error) {
	var opts options
	flagSet := pflag.NewFlagSet(JobName, pflag.ContinueOnError)
	flagSet.BoolVar(&opts.once, "once", false, "run a single sweep pass and exit")
	if err := flagSet.Parse(args); err != nil {
		return opts, err
	}
	if flagSet.NArg() > 0 {
		return opts, errors.New("unexpected arguments: " + flagSet.Arg(0))
	}
	return opts, nil
}

func main() {
	opts, err := parseFlags(os.Args[1:])
	if err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			return
		}
		os.Exit(2)
	}

	cfg := config.Load(JobName)
	cfg.SetStore()
	cfg.SetRedis()
	metrics.Register()
	defer cfg.GracefulShutdown()

	var kcfg *kafka_config.Config
	if cfg.EventsBackend == config.EventsKafka {
		if kcfg, err = kafka_config.Load(); err != nil {
			cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
		}
	}
	publisher, err := events.NewPublisher(cfg, kcfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize event publisher", "backend", cfg.EventsBackend, "error", err)
	}
	defer func() {
		if err := publisher.Close(); err != nil {
			cfg.Log.Error("Failed to close event publisher", "error", err)
		}
	}()

	clk := clock.Real()
	svc := service.NewReservationService(
		repository.New(cfg, clk),
		validator.NewReservationValidator(cfg.Log),
		client.StaticPrice(cfg.DefaultPriceCents),
		publisher,
		cache.NewSlotStatusCache(cfg.Client.Redis, cfg.StatusCacheTTL, cfg.Log),
		clk,
		cfg,
	)
	sw := sweeper.New(svc, lease.New(cfg.Client.Redis, SweeperLeaseKey, cfg.SweeperLeaseTTL), clk, cfg)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if opts.once {
		res := sw.RunOnce(ctx)
		cfg.Log.Info("Sweep pass finished",
			"reclaimed", res.Reclaimed,
			"promoted", res.Promoted,
			"failed", res.Failed,
			"skipped", res.Skipped,
		)
		return
	}

	cfg.Log.Info("Starting sweeper job", "interval", cfg.SweepInterval)
	sw.Run(ctx)
}
