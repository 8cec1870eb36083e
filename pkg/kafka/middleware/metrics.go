package kafka_middleware

import (
	"context"
	"time"

	"courtq/pkg/kafka"
	"courtq/pkg/metrics"
)

const (
	DirectionProduce = "produce"
	DirectionConsume = "consume"
)

func MetricsProducerMiddleware() kafka.ProducerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		metrics.ObserveKafka(DirectionProduce, time.Since(start), err)
		return err
	}
}

func MetricsConsumerMiddleware() kafka.ConsumerMiddleware {
	return func(ctx context.Context, msg kafka.Message, next kafka.MessageHandler) error {
		start := time.Now()
		err := next(ctx, msg)
		metrics.ObserveKafka(DirectionConsume, time.Since(start), err)
		return err
	}
}
