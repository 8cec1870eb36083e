package client

import (
	"context"
	"time"

	"courtq/pkg/logger"

	"github.com/redis/go-redis/v9"
)

// SetRedis connects to Redis when addr is set. A failed ping leaves
// c.Redis nil so caching and the sweeper lease degrade to local behavior.
func (c *Client) SetRedis(log *logger.Logger, addr, password string, db int) {
	c.log = log
	if addr == "" {
		log.Info("Redis not configured, status cache and sweeper lease disabled")
		return
	}

	rdb := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()
	if err := rdb.Ping(ctx).Err(); err != nil {
		log.Warn("Redis unreachable, continuing without it", "addr", addr, "error", err)
		_ = rdb.Close()
		return
	}

	log.Info("Successfully connected to Redis", "addr", addr)
	c.Redis = rdb
}
