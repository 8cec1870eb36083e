package client

import (
	"context"
	"database/sql"
	"time"

	"courtq/pkg/logger"

	"github.com/redis/go-redis/v9"
	"go.mongodb.org/mongo-driver/mongo"
)

// Client holds the shared connections a process opened. Unused backends
// stay nil.
type Client struct {
	Mongo *MongoClient
	MySQL *sql.DB
	Redis *redis.Client

	log *logger.Logger
}

func NewClient() *Client {
	return &Client{}
}

func (c *Client) MongoDriver() *mongo.Client {
	if c.Mongo == nil {
		return nil
	}
	return c.Mongo.Client
}

func (c *Client) GracefulShutdown() {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if c.Mongo != nil {
		if err := c.Mongo.Client.Disconnect(ctx); err != nil && c.log != nil {
			c.log.Error("Failed to disconnect from MongoDB", "error", err)
		}
	}
	if c.MySQL != nil {
		if err := c.MySQL.Close(); err != nil && c.log != nil {
			c.log.Error("Failed to close MySQL pool", "error", err)
		}
	}
	if c.Redis != nil {
		if err := c.Redis.Close(); err != nil && c.log != nil {
			c.log.Error("Failed to close Redis client", "error", err)
		}
	}
}
