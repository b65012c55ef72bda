// Package ratelimiter throttles per-user actions with redis SETNX keys.
package ratelimiter

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/vargamihaly/bottlebuddy/pkg/apperror"
)

// RateLimitError carries how long the caller has to wait.
type RateLimitError struct {
	Message    string
	RetryAfter time.Duration
}

func (e *RateLimitError) Error() string {
	return e.Message
}

func (e *RateLimitError) Unwrap() error {
	return apperror.ErrRateLimitExceeded
}

type Limiter interface {
	// Allow returns a *RateLimitError when action was performed by userID
	// within the window.
	Allow(ctx context.Context, userID uuid.UUID, action string, window time.Duration) error
}

type redisLimiter struct {
	rdb *redis.Client
}

// New returns a redis backed limiter. A nil client allows everything.
func New(rdb *redis.Client) Limiter {
	if rdb == nil {
		return Noop{}
	}
	return &redisLimiter{rdb: rdb}
}

func key(userID uuid.UUID, action string) string {
	return fmt.Sprintf("rate_limit:user:%s:%s", userID.String(), action)
}

func (l *redisLimiter) Allow(ctx context.Context, userID uuid.UUID, action string, window time.Duration) error {
	if window <= 0 {
		return nil
	}

	k := key(userID, action)
	wasSet, err := l.rdb.SetNX(ctx, k, "locked", window).Result()
	if err != nil {
		return fmt.Errorf("failed to check rate limit in redis: %w", err)
	}
	if wasSet {
		return nil
	}

	ttl, err := l.rdb.PTTL(ctx, k).Result()
	if err != nil || ttl < 0 {
		ttl = window
	}
	return &RateLimitError{
		Message:    fmt.Sprintf("too many %s requests, retry in %s", action, ttl.Round(time.Millisecond)),
		RetryAfter: ttl,
	}
}

// Noop never limits. Used when redis is not configured and in tests.
type Noop struct{}

func (Noop) Allow(context.Context, uuid.UUID, string, time.Duration) error {
	return nil
}
