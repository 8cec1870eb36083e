package kafka_config

import "time"

const (
	DefaultKafkaBrokers = "localhost:9092"

	DefaultReservationEventsTopic = "reservation-events"
	DefaultPaymentEventsTopic     = "payment-events"
	DefaultPaymentConsumerGroup   = "courtq-payments"
	DefaultDLQTopic               = "courtq-dlq"

	DefaultProducerMaxAttempts  = 3
	DefaultProducerBatchTimeout = 10 * time.Millisecond
	DefaultProducerRequireAcks  = -1
	DefaultProducerCompression  = "snappy"

	DefaultConsumerStartOffset       = -2
	DefaultConsumerMinBytes          = 1
	DefaultConsumerMaxBytes          = 10 * 1024 * 1024 // 10MB
	DefaultConsumerMaxWait           = 500 * time.Millisecond
	DefaultConsumerCommitInterval    = 0 // synchronous commits
	DefaultConsumerHeartbeatInterval = 3 * time.Second
	DefaultConsumerSessionTimeout    = 10 * time.Second
	DefaultConsumerMaxRetries        = 3
	DefaultConsumerRetryBackoff      = 200 * time.Millisecond

	DefaultEnableMiddleware = true
)
