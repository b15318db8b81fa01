package registry

import (
	"context"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// redisRegistry is a Redis-backed implementation of ClientRegistry. All
// clients of one server live in a single hash keyed by server name, with
// client identifiers as hash fields and remote addresses as values, so
// external tooling can inspect the connected population of every server
// process sharing the Redis instance.
type redisRegistry struct {
	client *redis.Client
	key    string
}

// NewRedisRegistry creates a Redis-backed client registry using the given
// client. Records are stored in the hash "wsbridge:clients:{serverName}".
//
// Example:
//
//	client := redis.NewClient(&redis.Options{Addr: "localhost:6379"})
//	reg := registry.NewRedisRegistry(client, "bridge-1")
func NewRedisRegistry(client *redis.Client, serverName string) ClientRegistry {
	return &redisRegistry{
		client: client,
		key:    fmt.Sprintf("wsbridge:clients:%s", serverName),
	}
}

// Add implements ClientRegistry.
func (r *redisRegistry) Add(ctx context.Context, clientID string, remoteAddr string) error {
	if err := r.client.HSet(ctx, r.key, clientID, remoteAddr).Err(); err != nil {
		return fmt.Errorf("redis hset error: %w", err)
	}

	return nil
}

// Remove implements ClientRegistry.
func (r *redisRegistry) Remove(ctx context.Context, clientID string) error {
	if err := r.client.HDel(ctx, r.key, clientID).Err(); err != nil {
		return fmt.Errorf("redis hdel error: %w", err)
	}

	return nil
}

// Count implements ClientRegistry.
func (r *redisRegistry) Count(ctx context.Context) (int, error) {
	n, err := r.client.HLen(ctx, r.key).Result()
	if err != nil {
		return 0, fmt.Errorf("redis hlen error: %w", err)
	}

	return int(n), nil
}
