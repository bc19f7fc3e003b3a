// Package store wraps the single Redis client every zkgate component shares.
// Redis is the only shared mutable state in the platform: it
// supplies every synchronization primitive the core needs (atomic
// set-if-absent with TTL, hash mutation, set add/remove, sorted-set add,
// blocking FIFO pop) so no in-process or cross-service locking is required.
package store

import (
	"github.com/redis/go-redis/v9"
)

// Redis wraps a connected client.
type Redis struct {
	Client *redis.Client
}

// New parses url and dials a client. Dialing is lazy (go-redis connects on
// first use).
func New(url string) (Redis, error) {
	opt, err := redis.ParseURL(url)
	if err != nil {
		return Redis{}, err
	}
	return Redis{Client: redis.NewClient(opt)}, nil
}
