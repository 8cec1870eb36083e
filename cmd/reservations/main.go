package main

import (
	"context"

	"courtq/internal/reservations/events"
	"courtq/internal/reservations/handler"
	"courtq/internal/reservations/repository"
	"courtq/internal/reservations/service"
	"courtq/internal/reservations/sweeper"
	"courtq/internal/reservations/validator"
	"courtq/pkg/app"
	"courtq/pkg/auth"
	"courtq/pkg/cache"
	"courtq/pkg/client"
	"courtq/pkg/clock"
	"courtq/pkg/config"
	"courtq/pkg/kafka"
	kafka_config "courtq/pkg/kafka/config"
	kafka_middleware "courtq/pkg/kafka/middleware"
	"courtq/pkg/lease"
	"courtq/pkg/metrics"
)

const (
	ServiceName     = "reservations"
	SweeperLeaseKey = "courtq:sweeper:lease"
)

func main() {
	cfg := config.Load(ServiceName)
	cfg.SetStore()
	cfg.SetRedis()
	metrics.Register()

	cfg.Log.Info("Starting Reservations service")

	kcfg := loadKafkaConfig(cfg)
	publisher, err := events.NewPublisher(cfg, kcfg)
	if err != nil {
		cfg.Log.Fatal("Failed to initialize event publisher", "backend", cfg.EventsBackend, "error", err)
	}

	reservationService, store := initServices(cfg, publisher)
	sw := sweeper.New(
		reservationService,
		lease.New(cfg.Client.Redis, SweeperLeaseKey, cfg.SweeperLeaseTTL),
		clock.Real(),
		cfg,
	)

	serverApp := app.NewApplication(cfg)
	serverApp.SetApp(
		handler.NewReservationHandler(reservationService, sw, cfg.Log),
		handler.NewHealthHandler(store, cfg.Log),
		auth.NewJWTResolver(cfg.JWTSecret),
	)

	if cfg.SweeperEnabled {
		serverApp.AddWorker("sweeper", func(ctx context.Context) error {
			sw.Run(ctx)
			return nil
		})
	}
	if kcfg != nil {
		consumer := initPaymentConsumer(cfg, kcfg, reservationService)
		serverApp.AddWorker("payment-consumer", consumer.Start)
		serverApp.OnShutdown(consumer.Close)
	}
	serverApp.OnShutdown(publisher.Close)

	serverApp.Run()
}

func loadKafkaConfig(cfg *config.Config) *kafka_config.Config {
	if cfg.EventsBackend != config.EventsKafka {
		return nil
	}
	kcfg, err := kafka_config.Load()
	if err != nil {
		cfg.Log.Fatal("Invalid Kafka configuration", "error", err)
	}
	kcfg.LogConfiguration(cfg.Log)
	return kcfg
}

func initServices(cfg *config.Config, publisher events.Publisher) (service.ReservationService, repository.Store) {
	store := repository.New(cfg, clock.Real())
	reservationService := service.NewReservationService(
		store,
		validator.NewReservationValidator(cfg.Log),
		client.NewCatalogClient(cfg.CatalogURL, cfg.CatalogTimeout, cfg.DefaultPriceCents, cfg.Log),
		publisher,
		cache.NewSlotStatusCache(cfg.Client.Redis, cfg.StatusCacheTTL, cfg.Log),
		clock.Real(),
		cfg,
	)

	cfg.Log.Info("Reservation service initialized",
		"store", cfg.StoreDriver,
		"events", cfg.EventsBackend,
		"hold_duration", cfg.HoldDuration,
	)
	return reservationService, store
}

func initPaymentConsumer(cfg *config.Config, kcfg *kafka_config.Config, svc service.ReservationService) *kafka.Consumer {
	log := cfg.Log.Component("payment-consumer")
	paymentHandler := events.NewPaymentHandler(svc, log)
	consumer, err := kafka.NewConsumer(
		kcfg,
		kcfg.PaymentEventsTopic,
		kcfg.PaymentConsumerGroup,
		kcfg.DLQTopic,
		paymentHandler.Handle,
		log,
	)
	if err != nil {
		cfg.Log.Fatal("Failed to create payment consumer", "error", err)
	}
	if kcfg.EnableMiddleware {
		consumer.Use(kafka_middleware.LoggingConsumerMiddleware(log))
		consumer.Use(kafka_middleware.MetricsConsumerMiddleware())
	}
	cfg.Log.Info("Payment consumer initialized",
		"topic", kcfg.PaymentEventsTopic,
		"group", kcfg.PaymentConsumerGroup,
	)
	return consumer
}
