package llm

import (
	"context"
	stderrors "errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// ErrQuotaExceeded is returned when a per-minute limit would be crossed
var ErrQuotaExceeded = stderrors.New("provider quota exceeded")

// RateLimiter guards provider spend with per-minute request and token counters
// in Redis, shared by every process pointed at the same Redis.
type RateLimiter struct {
	redis    *redis.Client
	rpmLimit int64
	tpmLimit int64
	now      func() time.Time
}

// RateLimiterConfig holds the Redis connection and the limits
type RateLimiterConfig struct {
	Addr              string
	Password          string
	DB                int
	RequestsPerMinute int
	TokensPerMinute   int
}

const (
	DefaultRPM = 60
	DefaultTPM = 90_000
)

// rateScript increments both counters atomically and rejects when either crosses its limit.
// Minute keys expire after 70s (10s buffer for clock skew).
var rateScript = redis.NewScript(`
	local rpm_key = KEYS[1]
	local tpm_key = KEYS[2]
	local rpm_limit = tonumber(ARGV[1])
	local tpm_limit = tonumber(ARGV[2])
	local tokens = tonumber(ARGV[3])

	local rpm = redis.call('INCR', rpm_key)
	local tpm = redis.call('INCRBY', tpm_key, tokens)

	if rpm == 1 then redis.call('EXPIRE', rpm_key, 70) end
	if tpm == tokens then redis.call('EXPIRE', tpm_key, 70) end

	if rpm > rpm_limit then
		return {-1, 'RPM', rpm, rpm_limit}
	end
	if tpm > tpm_limit then
		return {-2, 'TPM', tpm, tpm_limit}
	end
	return {0, 'OK', rpm, tpm}
`)

// NewRateLimiter connects to Redis and fails if it cannot be pinged
func NewRateLimiter(ctx context.Context, cfg RateLimiterConfig) (*RateLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", cfg.Addr, err)
	}

	rpm, tpm := int64(cfg.RequestsPerMinute), int64(cfg.TokensPerMinute)
	if rpm <= 0 {
		rpm = DefaultRPM
	}
	if tpm <= 0 {
		tpm = DefaultTPM
	}

	return &RateLimiter{
		redis:    client,
		rpmLimit: rpm,
		tpmLimit: tpm,
		now:      time.Now,
	}, nil
}

func (r *RateLimiter) keys(scope string) (string, string) {
	if scope == "" {
		scope = "global"
	}
	minute := r.now().UTC().Format("2006-01-02T15:04")
	return fmt.Sprintf("sentryai:rpm:%s:%s", scope, minute),
		fmt.Sprintf("sentryai:tpm:%s:%s", scope, minute)
}

// CheckAndIncrement counts one request of the given token size against scope.
// Returns an error wrapping ErrQuotaExceeded when a limit is crossed.
func (r *RateLimiter) CheckAndIncrement(ctx context.Context, scope string, tokens int64) error {
	rpmKey, tpmKey := r.keys(scope)

	result, err := rateScript.Run(ctx, r.redis, []string{rpmKey, tpmKey}, r.rpmLimit, r.tpmLimit, tokens).Slice()
	if err != nil {
		return fmt.Errorf("rate limiter Redis operation failed: %w", err)
	}
	if len(result) < 4 {
		return fmt.Errorf("invalid rate limiter response format")
	}

	code, _ := result[0].(int64)
	if code < 0 {
		limitType, _ := result[1].(string)
		current, _ := result[2].(int64)
		limit, _ := result[3].(int64)
		wait := 60 - r.now().Second()
		return fmt.Errorf("%w: %s %d/%d, resets in %ds", ErrQuotaExceeded, limitType, current, limit, wait)
	}
	return nil
}

// GetCurrentUsage returns this minute's (requests, tokens) for scope
func (r *RateLimiter) GetCurrentUsage(ctx context.Context, scope string) (int64, int64, error) {
	rpmKey, tpmKey := r.keys(scope)

	pipe := r.redis.Pipeline()
	rpmCmd := pipe.Get(ctx, rpmKey)
	tpmCmd := pipe.Get(ctx, tpmKey)
	if _, err := pipe.Exec(ctx); err != nil && err != redis.Nil {
		return 0, 0, fmt.Errorf("failed to get usage stats: %w", err)
	}

	rpm, _ := rpmCmd.Int64()
	tpm, _ := tpmCmd.Int64()
	return rpm, tpm, nil
}

// Close closes the Redis connection
func (r *RateLimiter) Close() error {
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}
