package llm

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/redis/go-redis/v9"
	"golang.org/x/time/rate"

	"github.com/rohankatakam/reqtaker/internal/config"
)

// RateLimiter gates every provider request. The crew default is 10
// requests per minute (max_rpm).
type RateLimiter interface {
	Wait(ctx context.Context) error
}

type unlimited struct{}

func (unlimited) Wait(ctx context.Context) error { return ctx.Err() }

// Unlimited returns a limiter that never blocks.
func Unlimited() RateLimiter { return unlimited{} }

// LocalLimiter is an in-process token bucket refilled at rpm per minute.
type LocalLimiter struct {
	limiter *rate.Limiter
}

// NewLocalLimiter returns an in-process limiter; rpm <= 0 disables limiting.
func NewLocalLimiter(rpm int) RateLimiter {
	if rpm <= 0 {
		return Unlimited()
	}
	return &LocalLimiter{limiter: rate.NewLimiter(rate.Every(time.Minute/time.Duration(rpm)), 1)}
}

func (l *LocalLimiter) Wait(ctx context.Context) error {
	return l.limiter.Wait(ctx)
}

// RedisLimiter shares a requests-per-minute budget across processes through
// counters in Redis, so parallel train/test runs against one API key do
// not exceed max_rpm together.
type RedisLimiter struct {
	redis    *redis.Client
	rpmLimit int64
	prefix   string
	logger   *slog.Logger
	now      func() time.Time
}

// ThrottleError reports that the current minute's budget is spent.
type ThrottleError struct {
	Current int64
	Limit   int64
	Wait    time.Duration
}

func (e *ThrottleError) Error() string {
	return fmt.Sprintf("approaching RPM limit (%d/%d), wait %ds", e.Current, e.Limit, int(e.Wait.Seconds()))
}

// NewRedisLimiter connects to Redis and verifies the connection with a ping.
func NewRedisLimiter(addr, password string, rpm int) (*RedisLimiter, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     addr,
		Password: password,
		DB:       0,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := client.Ping(ctx).Err(); err != nil {
		client.Close()
		return nil, fmt.Errorf("failed to connect to Redis at %s: %w", addr, err)
	}

	return &RedisLimiter{
		redis:    client,
		rpmLimit: int64(rpm),
		prefix:   "reqtaker:rpm:",
		logger:   slog.Default().With("component", "rate_limiter"),
		now:      time.Now,
	}, nil
}

// NewLimiter picks the shared Redis limiter when an address is configured
// and falls back to the in-process limiter if Redis is unreachable.
func NewLimiter(cfg *config.Config) RateLimiter {
	rpm := cfg.Pipeline.MaxRPM
	if cfg.RateLimit.RedisAddr == "" || rpm <= 0 {
		return NewLocalLimiter(rpm)
	}
	rl, err := NewRedisLimiter(cfg.RateLimit.RedisAddr, cfg.RateLimit.RedisPassword, rpm)
	if err != nil {
		slog.Default().Warn("shared rate limiter unavailable, using local limiter", "error", err)
		return NewLocalLimiter(rpm)
	}
	return rl
}

// Increments the minute counter and reports it; the TTL outlives the minute
// by 10s to tolerate clock skew between processes.
var rpmScript = redis.NewScript(`
	local rpm = redis.call('INCR', KEYS[1])
	if rpm == 1 then redis.call('EXPIRE', KEYS[1], 70) end
	if rpm > tonumber(ARGV[1]) then
		redis.call('DECR', KEYS[1])
		return {-1, rpm - 1}
	end
	return {0, rpm}
`)

func (r *RedisLimiter) minuteKey(now time.Time) string {
	return r.prefix + now.UTC().Format("2006-01-02T15:04")
}

// CheckAndIncrement claims one request in the current minute. It returns a
// *ThrottleError when the budget is spent; the claim is rolled back then.
func (r *RedisLimiter) CheckAndIncrement(ctx context.Context) error {
	now := r.now()
	result, err := rpmScript.Run(ctx, r.redis, []string{r.minuteKey(now)}, r.rpmLimit).Int64Slice()
	if err != nil {
		return fmt.Errorf("rate limiter Redis operation failed: %w", err)
	}
	if len(result) != 2 {
		return fmt.Errorf("invalid rate limiter response format")
	}
	if result[0] < 0 {
		wait := time.Duration(60-now.Second()) * time.Second
		if wait <= 0 {
			wait = time.Second
		}
		return &ThrottleError{Current: result[1], Limit: r.rpmLimit, Wait: wait}
	}
	return nil
}

// Wait blocks until a request slot is available in the shared budget.
func (r *RedisLimiter) Wait(ctx context.Context) error {
	for {
		err := r.CheckAndIncrement(ctx)
		if err == nil {
			return nil
		}
		throttle, ok := err.(*ThrottleError)
		if !ok {
			return err
		}
		r.logger.Warn("rate limit reached, throttling", "wait", throttle.Wait, "current", throttle.Current, "limit", throttle.Limit)
		select {
		case <-time.After(throttle.Wait):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}

// CurrentUsage returns the number of requests claimed in the current minute.
func (r *RedisLimiter) CurrentUsage(ctx context.Context) (int64, error) {
	n, err := r.redis.Get(ctx, r.minuteKey(r.now())).Int64()
	if err == redis.Nil {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("failed to get usage stats: %w", err)
	}
	return n, nil
}

func (r *RedisLimiter) Close() error {
	if r.redis != nil {
		return r.redis.Close()
	}
	return nil
}
