package events

import (
	"fmt"

	"courtq/pkg/config"
	"courtq/pkg/kafka"
	kafka_config "courtq/pkg/kafka/config"
	kafka_middleware "courtq/pkg/kafka/middleware"
)

// NewPublisher builds the publisher for cfg.EventsBackend. kcfg is only
// read for the kafka backend and may be nil otherwise.
func NewPublisher(cfg *config.Config, kcfg *kafka_config.Config) (Publisher, error) {
	switch cfg.EventsBackend {
	case config.EventsKafka:
		if kcfg == nil {
			return nil, fmt.Errorf("kafka backend selected without kafka configuration")
		}
		producer, err := kafka.NewProducer(kcfg, kcfg.ReservationEventsTopic, kcfg.DLQTopic, cfg.Log)
		if err != nil {
			return nil, fmt.Errorf("reservation events producer: %w", err)
		}
		if kcfg.EnableMiddleware {
			producer.Use(kafka_middleware.LoggingProducerMiddleware(cfg.Log))
			producer.Use(kafka_middleware.MetricsProducerMiddleware())
		}
		return NewKafkaPublisher(producer), nil

	case config.EventsRabbitMQ:
		publisher, err := NewAMQPPublisher(cfg.AMQPURL, cfg.AMQPQueue)
		if err != nil {
			return nil, err
		}
		return publisher, nil

	default:
		return Noop{}, nil
	}
}
