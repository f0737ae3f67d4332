package database

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"strconv"
	"strings"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/redis/go-redis/v9"
)

// RedisConfig holds Redis connection configuration.
type RedisConfig struct {
	Host     string
	Port     int
	Password string
	DB       int
}

// Addr returns host:port, bracketing IPv6 hosts.
func (c RedisConfig) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

var redisCommandDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "redis_command_duration_seconds",
		Help:    "Duration of Redis commands by command and outcome",
		Buckets: []float64{.0005, .001, .0025, .005, .01, .025, .05, .1, .25, .5},
	},
	[]string{"command", "outcome"},
)

// redisOutcome keeps a missing key (redis.Nil) apart from failures: the
// throttle reads counters that usually do not exist.
func redisOutcome(err error) string {
	switch {
	case err == nil:
		return outcomeOK
	case errors.Is(err, redis.Nil):
		return outcomeNotFound
	default:
		return outcomeError
	}
}

// commandMetrics is a go-redis hook timing every command and pipeline.
type commandMetrics struct{}

func (commandMetrics) DialHook(next redis.DialHook) redis.DialHook { return next }

func (commandMetrics) ProcessHook(next redis.ProcessHook) redis.ProcessHook {
	return func(ctx context.Context, cmd redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmd)
		redisCommandDuration.WithLabelValues(strings.ToLower(cmd.Name()), redisOutcome(err)).
			Observe(time.Since(start).Seconds())
		return err
	}
}

func (commandMetrics) ProcessPipelineHook(next redis.ProcessPipelineHook) redis.ProcessPipelineHook {
	return func(ctx context.Context, cmds []redis.Cmder) error {
		start := time.Now()
		err := next(ctx, cmds)
		redisCommandDuration.WithLabelValues("pipeline", redisOutcome(err)).
			Observe(time.Since(start).Seconds())
		return err
	}
}

// NewRedisClient creates an instrumented Redis client and verifies it with
// a ping, using the same startup retry as the PostgreSQL pool. Short
// timeouts keep a slow Redis from stalling the login path.
func NewRedisClient(ctx context.Context, cfg RedisConfig, logger *slog.Logger) (*redis.Client, error) {
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		DialTimeout:  2 * time.Second,
		ReadTimeout:  500 * time.Millisecond,
		WriteTimeout: 500 * time.Millisecond,
	})
	client.AddHook(commandMetrics{})

	err := withStartupRetry(ctx, logger, "redis connect", always, func() error {
		return client.Ping(ctx).Err()
	})
	if err != nil {
		_ = client.Close()
		return nil, fmt.Errorf("ping redis: %w", err)
	}
	return client, nil
}
