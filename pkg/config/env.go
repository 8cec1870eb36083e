package config

const (
	EnvStoreDriver = "STORE_DRIVER"

	EnvMongoURI          = "MONGO_URI"
	EnvMongoDatabaseName = "MONGO_DATABASE_NAME"
	EnvStoreConnTimeout  = "STORE_CONN_TIMEOUT"

	EnvMySQLUser     = "MYSQL_USER"
	EnvMySQLPassword = "MYSQL_PASSWORD"
	EnvMySQLHost     = "MYSQL_HOST"
	EnvMySQLPort     = "MYSQL_PORT"
	EnvMySQLDatabase = "MYSQL_DATABASE"
	EnvMySQLMaxConns = "MYSQL_MAX_CONNS"

	EnvRedisAddr     = "REDIS_ADDR"
	EnvRedisPassword = "REDIS_PASSWORD"
	EnvRedisDB       = "REDIS_DB"

	EnvPort     = "PORT"
	EnvLogLevel = "LOG_LEVEL"

	EnvHoldDuration    = "HOLD_DURATION"
	EnvSweepInterval   = "SWEEP_INTERVAL"
	EnvSweepBatchSize  = "SWEEP_BATCH_SIZE"
	EnvSweeperEnabled  = "SWEEPER_ENABLED"
	EnvSweeperLeaseTTL = "SWEEPER_LEASE_TTL"
	EnvTxMaxAttempts   = "TX_MAX_ATTEMPTS"
	EnvTxBaseBackoff   = "TX_BASE_BACKOFF"
	EnvTxMaxBackoff    = "TX_MAX_BACKOFF"
	EnvSlotTimezone    = "SLOT_TIMEZONE"
	EnvStatusCacheTTL  = "STATUS_CACHE_TTL"

	EnvJWTSecret            = "JWT_SECRET"
	EnvPaymentWebhookSecret = "PAYMENT_WEBHOOK_SECRET"
	EnvCatalogURL           = "CATALOG_URL"
	EnvCatalogTimeout       = "CATALOG_TIMEOUT"
	EnvDefaultPriceCents    = "DEFAULT_PRICE_CENTS"

	EnvEventsBackend = "EVENTS_BACKEND"
	EnvAMQPURL       = "AMQP_URL"
	EnvAMQPQueue     = "AMQP_QUEUE"

	EnvRateLimitRequests = "RATE_LIMIT_REQUESTS"
	EnvRateLimitWindow   = "RATE_LIMIT_WINDOW"

	EnvRequestTimeout = "REQUEST_TIMEOUT"
	EnvIdempotencyTTL = "IDEMPOTENCY_TTL"
	EnvMaxRequestSize = "MAX_REQUEST_SIZE"

	EnvReadTimeout     = "READ_TIMEOUT"
	EnvWriteTimeout    = "WRITE_TIMEOUT"
	EnvIdleTimeout     = "IDLE_TIMEOUT"
	EnvShutdownTimeout = "SHUTDOWN_TIMEOUT"
)
