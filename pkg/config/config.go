package config

import (
	"fmt"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"courtq/pkg/client"
	"courtq/pkg/db"
	"courtq/pkg/logger"

	"github.com/joho/godotenv"
)

type Config struct {
	StoreDriver string

	MongoURI          string
	MongoDatabaseName string
	StoreConnTimeout  time.Duration

	MySQL client.MySQLOptions

	RedisAddr     string
	RedisPassword string
	RedisDB       int

	Port     string
	LogLevel string

	HoldDuration    time.Duration
	SweepInterval   time.Duration
	SweepBatchSize  int
	SweeperEnabled  bool
	SweeperLeaseTTL time.Duration
	TxMaxAttempts   int
	TxBaseBackoff   time.Duration
	TxMaxBackoff    time.Duration
	SlotTimezone    string
	Location        *time.Location
	StatusCacheTTL  time.Duration

	JWTSecret            string
	PaymentWebhookSecret string
	CatalogURL           string
	CatalogTimeout       time.Duration
	DefaultPriceCents    int64

	EventsBackend string
	AMQPURL       string
	AMQPQueue     string

	RateLimitRequests int
	RateLimitWindow   time.Duration

	RequestTimeout time.Duration
	IdempotencyTTL time.Duration
	MaxRequestSize int

	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	Log    *logger.Logger
	Client *client.Client
}

// Load reads the environment (and a .env file when present), validates the
// result and exits the process on invalid settings.
func Load(serviceName string) *Config {
	_ = godotenv.Load()

	cfg := fromEnv()
	cfg.Log = logger.New(logger.Config{
		Level:     cfg.LogLevel,
		Format:    logger.JSON,
		AddSource: true,
		Service:   serviceName,
	})
	cfg.Client = client.NewClient()

	if err := cfg.Validate(); err != nil {
		cfg.Log.Fatal(err.Error())
	}
	cfg.LogConfiguration()
	return cfg
}

func fromEnv() *Config {
	return &Config{
		StoreDriver: strings.ToLower(getEnvStr(EnvStoreDriver, DefaultStoreDriver)),

		MongoURI:          getEnvStr(EnvMongoURI, DefaultMongoURI),
		MongoDatabaseName: getEnvStr(EnvMongoDatabaseName, DefaultMongoDatabaseName),
		StoreConnTimeout:  getEnvDuration(EnvStoreConnTimeout, DefaultStoreConnTimeout),

		MySQL: client.MySQLOptions{
			User:     getEnvStr(EnvMySQLUser, DefaultMySQLUser),
			Password: getEnvStr(EnvMySQLPassword, ""),
			Host:     getEnvStr(EnvMySQLHost, DefaultMySQLHost),
			Port:     getEnvStr(EnvMySQLPort, DefaultMySQLPort),
			Name:     getEnvStr(EnvMySQLDatabase, DefaultMySQLDatabase),
			MaxConns: getEnvNum(EnvMySQLMaxConns, DefaultMySQLMaxConns),
		},

		RedisAddr:     getEnvStr(EnvRedisAddr, ""),
		RedisPassword: getEnvStr(EnvRedisPassword, ""),
		RedisDB:       getEnvNum(EnvRedisDB, DefaultRedisDB),

		Port:     getEnvStr(EnvPort, DefaultPort),
		LogLevel: getEnvStr(EnvLogLevel, DefaultLogLevel),

		HoldDuration:    getEnvDuration(EnvHoldDuration, DefaultHoldDuration),
		SweepInterval:   getEnvDuration(EnvSweepInterval, DefaultSweepInterval),
		SweepBatchSize:  getEnvNum(EnvSweepBatchSize, DefaultSweepBatchSize),
		SweeperEnabled:  getEnvBool(EnvSweeperEnabled, DefaultSweeperEnabled),
		SweeperLeaseTTL: getEnvDuration(EnvSweeperLeaseTTL, DefaultSweeperLeaseTTL),
		TxMaxAttempts:   getEnvNum(EnvTxMaxAttempts, DefaultTxMaxAttempts),
		TxBaseBackoff:   getEnvDuration(EnvTxBaseBackoff, DefaultTxBaseBackoff),
		TxMaxBackoff:    getEnvDuration(EnvTxMaxBackoff, DefaultTxMaxBackoff),
		SlotTimezone:    getEnvStr(EnvSlotTimezone, DefaultSlotTimezone),
		StatusCacheTTL:  getEnvDuration(EnvStatusCacheTTL, DefaultStatusCacheTTL),

		JWTSecret:            getEnvStr(EnvJWTSecret, ""),
		PaymentWebhookSecret: getEnvStr(EnvPaymentWebhookSecret, ""),
		CatalogURL:           getEnvStr(EnvCatalogURL, ""),
		CatalogTimeout:       getEnvDuration(EnvCatalogTimeout, DefaultCatalogTimeout),
		DefaultPriceCents:    int64(getEnvNum(EnvDefaultPriceCents, DefaultDefaultPriceCents)),

		EventsBackend: strings.ToLower(getEnvStr(EnvEventsBackend, DefaultEventsBackend)),
		AMQPURL:       getEnvStr(EnvAMQPURL, ""),
		AMQPQueue:     getEnvStr(EnvAMQPQueue, DefaultAMQPQueue),

		RateLimitRequests: getEnvNum(EnvRateLimitRequests, DefaultRateLimitRequests),
		RateLimitWindow:   getEnvDuration(EnvRateLimitWindow, DefaultRateLimitWindow),

		RequestTimeout: getEnvDuration(EnvRequestTimeout, DefaultRequestTimeout),
		IdempotencyTTL: getEnvDuration(EnvIdempotencyTTL, DefaultIdempotencyTTL),
		MaxRequestSize: getEnvNum(EnvMaxRequestSize, DefaultMaxRequestSize),

		ReadTimeout:     getEnvDuration(EnvReadTimeout, DefaultReadTimeout),
		WriteTimeout:    getEnvDuration(EnvWriteTimeout, DefaultWriteTimeout),
		IdleTimeout:     getEnvDuration(EnvIdleTimeout, DefaultIdleTimeout),
		ShutdownTimeout: getEnvDuration(EnvShutdownTimeout, DefaultShutdownTimeout),
	}
}

// SetStore opens the connection the configured store driver needs.
func (cfg *Config) SetStore() {
	switch cfg.StoreDriver {
	case StoreMongo:
		cfg.SetMongo()
	case StoreMySQL:
		cfg.SetMySQL()
	}
}

func (cfg *Config) SetMongo() {
	cfg.Client.SetMongo(cfg.Log, cfg.MongoURI, cfg.StoreConnTimeout)
}

func (cfg *Config) SetMySQL() {
	cfg.Client.SetMySQL(cfg.Log, cfg.MySQL, cfg.StoreConnTimeout)
}

func (cfg *Config) SetRedis() {
	cfg.Client.SetRedis(cfg.Log, cfg.RedisAddr, cfg.RedisPassword, cfg.RedisDB)
}

func (cfg *Config) RetryPolicy() db.RetryPolicy {
	return db.RetryPolicy{
		MaxAttempts: cfg.TxMaxAttempts,
		BaseBackoff: cfg.TxBaseBackoff,
		MaxBackoff:  cfg.TxMaxBackoff,
	}
}

func (cfg *Config) Validate() error {
	var errors []string

	if port, err := strconv.Atoi(cfg.Port); err != nil || port < 1 || port > 65535 {
		errors = append(errors, fmt.Sprintf("Port must be between 1 and 65535, got: %s", cfg.Port))
	}

	switch cfg.StoreDriver {
	case StoreMongo:
		if cfg.MongoURI == "" {
			errors = append(errors, "MongoURI cannot be empty")
		} else if !regexp.MustCompile(`^mongodb(\+srv)?://`).MatchString(cfg.MongoURI) {
			errors = append(errors, fmt.Sprintf("MongoURI must start with 'mongodb://' or 'mongodb+srv://', got: %s", redactMongoURI(cfg.MongoURI)))
		}
		if cfg.MongoDatabaseName == "" {
			errors = append(errors, "MongoDatabaseName cannot be empty")
		}
	case StoreMySQL:
		if cfg.MySQL.Host == "" || cfg.MySQL.Name == "" || cfg.MySQL.User == "" {
			errors = append(errors, "MySQL host, database and user must be set")
		}
	case StoreMemory:
	default:
		errors = append(errors, fmt.Sprintf("StoreDriver must be one of mongo, mysql, memory, got: %s", cfg.StoreDriver))
	}

	switch cfg.EventsBackend {
	case EventsKafka, EventsNone:
	case EventsRabbitMQ:
		if cfg.AMQPURL == "" {
			errors = append(errors, "AMQPURL must be set when EventsBackend is rabbitmq")
		}
	default:
		errors = append(errors, fmt.Sprintf("EventsBackend must be one of kafka, rabbitmq, none, got: %s", cfg.EventsBackend))
	}

	loc, err := time.LoadLocation(cfg.SlotTimezone)
	if err != nil {
		errors = append(errors, fmt.Sprintf("SlotTimezone is not a known IANA zone: %s", cfg.SlotTimezone))
	} else {
		cfg.Location = loc
	}

	if cfg.HoldDuration <= 0 {
		errors = append(errors, fmt.Sprintf("HoldDuration must be positive, got: %s", cfg.HoldDuration))
	}
	if cfg.SweepInterval <= 0 {
		errors = append(errors, fmt.Sprintf("SweepInterval must be positive, got: %s", cfg.SweepInterval))
	}
	if cfg.SweepBatchSize <= 0 {
		errors = append(errors, fmt.Sprintf("SweepBatchSize must be positive, got: %d", cfg.SweepBatchSize))
	}
	if cfg.SweeperLeaseTTL <= 0 {
		errors = append(errors, fmt.Sprintf("SweeperLeaseTTL must be positive, got: %s", cfg.SweeperLeaseTTL))
	}
	if cfg.TxMaxAttempts < 1 {
		errors = append(errors, fmt.Sprintf("TxMaxAttempts must be at least 1, got: %d", cfg.TxMaxAttempts))
	}
	if cfg.TxBaseBackoff < 0 {
		errors = append(errors, fmt.Sprintf("TxBaseBackoff cannot be negative, got: %s", cfg.TxBaseBackoff))
	}
	if cfg.TxMaxBackoff < cfg.TxBaseBackoff {
		errors = append(errors, fmt.Sprintf("TxMaxBackoff (%s) must be >= TxBaseBackoff (%s)", cfg.TxMaxBackoff, cfg.TxBaseBackoff))
	}
	if cfg.StatusCacheTTL < 0 {
		errors = append(errors, fmt.Sprintf("StatusCacheTTL cannot be negative, got: %s", cfg.StatusCacheTTL))
	}
	if cfg.DefaultPriceCents < 0 {
		errors = append(errors, fmt.Sprintf("DefaultPriceCents cannot be negative, got: %d", cfg.DefaultPriceCents))
	}
	if cfg.JWTSecret == "" {
		errors = append(errors, "JWTSecret cannot be empty")
	}

	if cfg.RateLimitWindow <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitWindow must be positive, got: %s", cfg.RateLimitWindow))
	}
	if cfg.RateLimitRequests <= 0 {
		errors = append(errors, fmt.Sprintf("RateLimitRequests must be positive, got: %d", cfg.RateLimitRequests))
	}
	if cfg.RequestTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("RequestTimeout must be positive, got: %s", cfg.RequestTimeout))
	}
	if cfg.IdempotencyTTL <= 0 {
		errors = append(errors, fmt.Sprintf("IdempotencyTTL must be positive, got: %s", cfg.IdempotencyTTL))
	}
	if cfg.MaxRequestSize <= 0 {
		errors = append(errors, fmt.Sprintf("MaxRequestSize must be positive, got: %d", cfg.MaxRequestSize))
	}
	if cfg.ReadTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ReadTimeout must be positive, got: %s", cfg.ReadTimeout))
	}
	if cfg.WriteTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("WriteTimeout must be positive, got: %s", cfg.WriteTimeout))
	}
	if cfg.IdleTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("IdleTimeout must be positive, got: %s", cfg.IdleTimeout))
	}
	if cfg.ShutdownTimeout <= 0 {
		errors = append(errors, fmt.Sprintf("ShutdownTimeout must be positive, got: %s", cfg.ShutdownTimeout))
	}

	if len(errors) > 0 {
		errMsg := "Configuration validation failed:\n"
		for i, err := range errors {
			errMsg += fmt.Sprintf("  %d. %s\n", i+1, err)
		}
		return fmt.Errorf("%s", errMsg)
	}

	return nil
}

func (cfg *Config) LogConfiguration() {
	cfg.Log.Info("Configuration loaded successfully",
		"store_driver", cfg.StoreDriver,
		"mongo_uri", redactMongoURI(cfg.MongoURI),
		"mongo_database", cfg.MongoDatabaseName,
		"mysql_host", cfg.MySQL.Host,
		"mysql_database", cfg.MySQL.Name,
		"mysql_password_set", cfg.MySQL.Password != "",
		"redis_addr", cfg.RedisAddr,
		"port", cfg.Port,
		"hold_duration", cfg.HoldDuration,
		"sweep_interval", cfg.SweepInterval,
		"sweep_batch_size", cfg.SweepBatchSize,
		"sweeper_enabled", cfg.SweeperEnabled,
		"tx_max_attempts", cfg.TxMaxAttempts,
		"tx_base_backoff", cfg.TxBaseBackoff,
		"slot_timezone", cfg.SlotTimezone,
		"status_cache_ttl", cfg.StatusCacheTTL,
		"jwt_secret_set", cfg.JWTSecret != "",
		"payment_webhook_secret_set", cfg.PaymentWebhookSecret != "",
		"catalog_url", cfg.CatalogURL,
		"default_price_cents", cfg.DefaultPriceCents,
		"events_backend", cfg.EventsBackend,
		"amqp_url", redactAMQPURL(cfg.AMQPURL),
		"rate_limit_requests", cfg.RateLimitRequests,
		"rate_limit_window", cfg.RateLimitWindow,
		"request_timeout", cfg.RequestTimeout,
		"idempotency_ttl", cfg.IdempotencyTTL,
		"max_request_size", cfg.MaxRequestSize,
		"read_timeout", cfg.ReadTimeout,
		"write_timeout", cfg.WriteTimeout,
		"idle_timeout", cfg.IdleTimeout,
		"shutdown_timeout", cfg.ShutdownTimeout,
	)
}

var (
	mongoCredentialRegex = regexp.MustCompile(`(mongodb(\+srv)?://)[^:]+:[^@]+@`)
	amqpCredentialRegex  = regexp.MustCompile(`(amqps?://)[^:]+:[^@]+@`)
)

func redactMongoURI(uri string) string {
	return mongoCredentialRegex.ReplaceAllString(uri, "${1}***:***@")
}

func redactAMQPURL(url string) string {
	return amqpCredentialRegex.ReplaceAllString(url, "${1}***:***@")
}

func getEnvStr(key, fallback string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return fallback
}

func getEnvNum(key string, fallback int) int {
	if value := os.Getenv(key); value != "" {
		if n, err := strconv.Atoi(value); err == nil {
			return n
		}
	}
	return fallback
}

func getEnvBool(key string, fallback bool) bool {
	if value := os.Getenv(key); value != "" {
		if b, err := strconv.ParseBool(value); err == nil {
			return b
		}
	}
	return fallback
}

func getEnvDuration(key string, fallback time.Duration) time.Duration {
	if value := os.Getenv(key); value != "" {
		if d, err := time.ParseDuration(value); err == nil {
			return d
		}
	}
	return fallback
}

func (cfg *Config) GracefulShutdown() {
	cfg.Client.GracefulShutdown()
}

func NormalizePaginationLimit(limit int) int {
	if limit <= 0 {
		limit = 10
	} else if limit > DefaultPaginationLimit {
		limit = DefaultPaginationLimit
	}
	return limit
}

func NormalizeOffset(offset int64) int64 {
	return max(0, offset)
}
