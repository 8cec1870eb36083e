package lease

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// Lease grants a single process the right to run a periodic job.
type Lease interface {
	// Acquire takes or renews the lease and reports whether this process
	// holds it.
	Acquire(ctx context.Context) (bool, error)
	Release(ctx context.Context) error
}

// Compare-and-act scripts so a process never touches a lease another
// process has taken over.
var (
	renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0`)

	releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0`)
)

type RedisLease struct {
	client *redis.Client
	key    string
	token  string
	ttl    time.Duration
}

func NewRedisLease(client *redis.Client, key string, ttl time.Duration) *RedisLease {
	return &RedisLease{
		client: client,
		key:    key,
		token:  uuid.NewString(),
		ttl:    ttl,
	}
}

func (l *RedisLease) Acquire(ctx context.Context) (bool, error) {
	renewed, err := renewScript.Run(ctx, l.client, []string{l.key}, l.token, l.ttl.Milliseconds()).Int()
	if err != nil {
		return false, err
	}
	if renewed == 1 {
		return true, nil
	}

	ok, err := l.client.SetNX(ctx, l.key, l.token, l.ttl).Result()
	if err != nil {
		return false, err
	}
	return ok, nil
}

func (l *RedisLease) Release(ctx context.Context) error {
	err := releaseScript.Run(ctx, l.client, []string{l.key}, l.token).Err()
	if errors.Is(err, redis.Nil) {
		return nil
	}
	return err
}

// Local always holds the lease. Used when no Redis is configured and a
// single sweeper runs.
type Local struct{}

func (Local) Acquire(context.Context) (bool, error) { return true, nil }
func (Local) Release(context.Context) error { return nil }

// New picks the Redis lease when a client is available.
func New(client *redis.Client, key string, ttl time.Duration) Lease {
	if client == nil {
		return Local{}
	}
	return NewRedisLease(client, key, ttl)
}
