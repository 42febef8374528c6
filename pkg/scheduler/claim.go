// Package scheduler owns schedule state and fires due schedules from a
// single periodic tick.
package scheduler

import (
	"context"
	"fmt"
	"sync"
	"time"

	redis "github.com/redis/go-redis/v9"
)

// Claimer makes firing idempotent per (schedule, timestamp) pair.
// Multiple scheduler instances may tick concurrently; only the instance
// that wins the claim publishes the due event.
type Claimer interface {
	// Claim returns true when this caller owns the firing.
	Claim(ctx context.Context, scheduleID string, dueAt time.Time) (bool, error)
}

// MemoryClaimer backs single-instance deployments and tests.
type MemoryClaimer struct {
	mu      sync.Mutex
	claimed map[string]bool
}

func NewMemoryClaimer() *MemoryClaimer {
	return &MemoryClaimer{claimed: make(map[string]bool)}
}

func (c *MemoryClaimer) Claim(_ context.Context, scheduleID string, dueAt time.Time) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := claimKey(scheduleID, dueAt)
	if c.claimed[key] {
		return false, nil
	}

	c.claimed[key] = true

	return true, nil
}

// RedisClaimer coordinates a fleet of scheduler instances through a
// SET NX key per (schedule, timestamp) pair.
type RedisClaimer struct {
	client redis.UniversalClient
	ttl    time.Duration
}

func NewRedisClaimer(client redis.UniversalClient, ttl time.Duration) *RedisClaimer {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}

	return &RedisClaimer{client: client, ttl: ttl}
}

func (c *RedisClaimer) Claim(ctx context.Context, scheduleID string, dueAt time.Time) (bool, error) {
	ok, err := c.client.SetNX(ctx, "outflow:claim:"+claimKey(scheduleID, dueAt), 1, c.ttl).Result()
	if err != nil {
		return false, fmt.Errorf("redis claim: %w", err)
	}

	return ok, nil
}

func claimKey(scheduleID string, dueAt time.Time) string {
	return scheduleID + "@" + dueAt.UTC().Format(time.RFC3339)
}
