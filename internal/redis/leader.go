// Package redis provides the Redis client and the leader-election lease
// used to keep the sweep single-writer across replicas.
package redis

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
)

// NewClient creates and returns a new Redis client.
func NewClient(addr string) *redis.Client {
	return redis.NewClient(&redis.Options{
		Addr:         addr,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  1 * time.Second,
		WriteTimeout: 1 * time.Second,
		PoolSize:     10,
	})
}

// renewScript extends the lease only while this instance still owns it;
// the check-and-expire must be atomic to avoid stealing a rival's lease.
var renewScript = redis.NewScript(`
	if redis.call("get", KEYS[1]) == ARGV[1] then
		return redis.call("pexpire", KEYS[1], ARGV[2])
	end
	return 0
`)

// Elector is a TTL-lease leader election over a single Redis key. Exactly
// one instance holds the lease at a time; a crashed leader is replaced
// once the TTL lapses.
type Elector struct {
	client     *redis.Client
	key        string
	ttl        time.Duration
	instanceID string
	logger     *slog.Logger

	leading bool
}

func NewElector(client *redis.Client, key string, ttl time.Duration, instanceID string, logger *slog.Logger) *Elector {
	return &Elector{
		client:     client,
		key:        key,
		ttl:        ttl,
		instanceID: instanceID,
		logger:     logger,
	}
}

// AcquireOrRenew attempts SETNX, falling back to renewing an existing
// lease we own. Returns true when this instance is the leader.
func (e *Elector) AcquireOrRenew(ctx context.Context) bool {
	ok, err := e.client.SetNX(ctx, e.key, e.instanceID, e.ttl).Result()
	if err != nil {
		e.logger.Error("leader election SetNX", slog.String("error", err.Error()))
		e.leading = false
		return false
	}
	if ok {
		e.logger.Info("acquired sweep leadership", slog.String("instance_id", e.instanceID))
		e.leading = true
		return true
	}

	result, err := renewScript.Run(
		ctx, e.client,
		[]string{e.key},
		e.instanceID,
		e.ttl.Milliseconds(),
	).Int()
	if err != nil && !errors.Is(err, redis.Nil) {
		e.logger.Error("leader renewal", slog.String("error", err.Error()))
		e.leading = false
		return false
	}
	if result == 1 {
		e.leading = true
		return true
	}
	if e.leading {
		e.logger.Info("lost sweep leadership", slog.String("instance_id", e.instanceID))
		e.leading = false
	}
	return false
}

// Resign releases the lease if this instance holds it, letting a rival
// take over immediately on shutdown instead of waiting out the TTL.
func (e *Elector) Resign(ctx context.Context) {
	if !e.leading {
		return
	}
	released, err := redis.NewScript(`
		if redis.call("get", KEYS[1]) == ARGV[1] then
			return redis.call("del", KEYS[1])
		end
		return 0
	`).Run(ctx, e.client, []string{e.key}, e.instanceID).Int()
	if err != nil {
		e.logger.Error("leader resign", slog.String("error", err.Error()))
		return
	}
	if released == 1 {
		e.logger.Info("released sweep leadership", slog.String("instance_id", e.instanceID))
	}
	e.leading = false
}
