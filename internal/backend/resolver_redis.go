package backend

import (
	"context"

	"github.com/pkg/errors"
	"github.com/redis/go-redis/v9"
)

// RedisResolver reads destinations from hashes keyed by prefix+address with
// the same field names as the HTTP resolver's response.
type RedisResolver struct {
	client *redis.Client
	prefix string
}

// NewRedisResolver wraps client.
func NewRedisResolver(client *redis.Client, prefix string) *RedisResolver {
	return &RedisResolver{client: client, prefix: prefix}
}

func (r *RedisResolver) Resolve(ctx context.Context, clientAddress string) (Destination, error) {
	key := r.prefix + clientAddress
	m, err := r.client.HGetAll(ctx, key).Result()
	if err != nil {
		return Destination{}, errors.Wrapf(err, "redis hgetall %s", key)
	}
	if len(m) == 0 {
		return Destination{}, errors.Wrapf(ErrNotFound, "redis key %s", key)
	}
	name := m["pool_name"]
	if name == "" {
		name = m["name"]
	}
	return newDestination(m["pool_id"], m["user_id"], name, m["hostname"], m["port"])
}

// Ping checks that Redis is reachable.
func (r *RedisResolver) Ping(ctx context.Context) error {
	return errors.Wrap(r.client.Ping(ctx).Err(), "redis ping")
}

func (r *RedisResolver) Close() error {
	return r.client.Close()
}
