package config

import "time"

const (
	StoreMongo  = "mongo"
	StoreMySQL  = "mysql"
	StoreMemory = "memory"

	EventsKafka    = "kafka"
	EventsRabbitMQ = "rabbitmq"
	EventsNone     = "none"
)

const (
	DefaultStoreDriver = StoreMongo

	DefaultMongoURI          = "mongodb://localhost:27017/?replicaSet=rs0"
	DefaultMongoDatabaseName = "courtq"
	DefaultStoreConnTimeout  = 10 * time.Second

	DefaultMySQLUser     = "courtq"
	DefaultMySQLHost     = "localhost"
	DefaultMySQLPort     = "3306"
	DefaultMySQLDatabase = "courtq"
	DefaultMySQLMaxConns = 25

	DefaultRedisDB = 0

	DefaultPort     = "8080"
	DefaultLogLevel = "info"

	DefaultHoldDuration    = 10 * time.Minute
	DefaultSweepInterval   = 30 * time.Second
	DefaultSweepBatchSize  = 100
	DefaultSweeperEnabled  = true
	DefaultSweeperLeaseTTL = 25 * time.Second
	DefaultTxMaxAttempts   = 5
	DefaultTxBaseBackoff   = 25 * time.Millisecond
	DefaultTxMaxBackoff    = 1 * time.Second
	DefaultSlotTimezone    = "UTC"
	DefaultStatusCacheTTL  = 5 * time.Second

	DefaultCatalogTimeout    = 3 * time.Second
	DefaultDefaultPriceCents = 0

	DefaultEventsBackend = EventsNone
	DefaultAMQPQueue     = "reservation-events"

	DefaultRateLimitRequests = 30
	DefaultRateLimitWindow   = 1 * time.Minute

	DefaultRequestTimeout = 30 * time.Second
	DefaultIdempotencyTTL = 24 * time.Hour
	DefaultMaxRequestSize = 64 * 1024

	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 15 * time.Second
	DefaultIdleTimeout     = 60 * time.Second
	DefaultShutdownTimeout = 30 * time.Second

	DefaultPaginationLimit = 100
)
