// Package ratelimit throttles repeated failed logins per account.
package ratelimit

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"

	apperrors "github.com/wangyz12/backend-admin/pkg/errors"
)

const keyPrefix = "login_failures:"

// LoginThrottle counts failed logins per account and refuses further attempts
// once the limit is reached within the window.
type LoginThrottle interface {
	// Allow returns a TOO_MANY_REQUESTS error when account is locked out.
	Allow(ctx context.Context, account string) error
	// Fail records a failed attempt.
	Fail(ctx context.Context, account string) error
	// Reset clears the failure count after a successful login.
	Reset(ctx context.Context, account string) error
}

// RedisThrottle implements LoginThrottle with a fixed window counter in Redis.
type RedisThrottle struct {
	client      redis.UniversalClient
	maxAttempts int64
	window      time.Duration
	logger      *slog.Logger
}

// NewRedisThrottle creates a Redis-backed login throttle.
func NewRedisThrottle(client redis.UniversalClient, maxAttempts int, window time.Duration, logger *slog.Logger) *RedisThrottle {
	if logger == nil {
		logger = slog.Default()
	}
	return &RedisThrottle{
		client:      client,
		maxAttempts: int64(maxAttempts),
		window:      window,
		logger:      logger,
	}
}

func (t *RedisThrottle) key(account string) string {
	return keyPrefix + account
}

// Allow checks the failure counter. Redis errors are logged and the attempt is
// let through, so an unavailable cache never blocks logins.
func (t *RedisThrottle) Allow(ctx context.Context, account string) error {
	n, err := t.client.Get(ctx, t.key(account)).Int64()
	if err != nil {
		if err != redis.Nil {
			t.logger.WarnContext(ctx, "login throttle unavailable", slog.String("error", err.Error()))
		}
		return nil
	}
	if n >= t.maxAttempts {
		// A locked counter always carries a window.
		if err := t.client.ExpireNX(ctx, t.key(account), t.window).Err(); err != nil {
			t.logger.WarnContext(ctx, "login throttle window not set", slog.String("error", err.Error()))
		}
		return apperrors.TooManyRequests("too many failed login attempts, try again later")
	}
	return nil
}

// Fail increments the counter and starts the window on the first failure.
// Both commands run in one MULTI block and EXPIRE NX is sent every time, so
// the counter can never be left without a window.
func (t *RedisThrottle) Fail(ctx context.Context, account string) error {
	key := t.key(account)
	_, err := t.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Incr(ctx, key)
		pipe.ExpireNX(ctx, key, t.window)
		return nil
	})
	if err != nil {
		return fmt.Errorf("redis record login failure: %w", err)
	}
	return nil
}

// Reset deletes the counter.
func (t *RedisThrottle) Reset(ctx context.Context, account string) error {
	if err := t.client.Del(ctx, t.key(account)).Err(); err != nil {
		return fmt.Errorf("redis reset login failures: %w", err)
	}
	return nil
}

// Nop never throttles. It is used when Redis is disabled.
type Nop struct{}

func (Nop) Allow(context.Context, string) error { return nil }
func (Nop) Fail(context.Context, string) error  { return nil }
func (Nop) Reset(context.Context, string) error { return nil }
