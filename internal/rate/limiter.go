package rate

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
)

// Config holds login throttling parameters. MaxLoginAttempts <= 0 disables
// throttling.
type Config struct {
	EnableIPThrottle      bool
	MaxLoginAttempts      int
	LoginCooldownDuration time.Duration
	Prefix                string
}

// Limiter counts failed logins per email and per client IP in fixed windows.
type Limiter struct {
	redis  redis.UniversalClient
	config Config
}

// New creates a Limiter backed by the given Redis client.
func New(redisClient redis.UniversalClient, cfg Config) *Limiter {
	if cfg.Prefix == "" {
		cfg.Prefix = "gl"
	}
	return &Limiter{
		redis:  redisClient,
		config: cfg,
	}
}

// Enabled reports whether the limiter enforces anything.
func (l *Limiter) Enabled() bool {
	return l != nil && l.config.MaxLoginAttempts > 0
}

// CheckLogin returns ErrRateLimited once the email or IP window has used up
// its failure budget.
func (l *Limiter) CheckLogin(ctx context.Context, email, ip string) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.checkCounter(ctx, l.loginUserKey(email)); err != nil {
		return err
	}
	if l.config.EnableIPThrottle && ip != "" {
		if err := l.checkCounter(ctx, l.loginIPKey(ip)); err != nil {
			return err
		}
	}
	return nil
}

// IncrementLogin records a failed login. It returns ErrRateLimited when this
// failure exhausts the budget.
func (l *Limiter) IncrementLogin(ctx context.Context, email, ip string) error {
	if !l.Enabled() {
		return nil
	}
	count, err := l.incrementWithTTL(ctx, l.loginUserKey(email))
	if err != nil {
		return err
	}
	limited := count >= int64(l.config.MaxLoginAttempts)

	if l.config.EnableIPThrottle && ip != "" {
		count, err = l.incrementWithTTL(ctx, l.loginIPKey(ip))
		if err != nil {
			return err
		}
		limited = limited || count >= int64(l.config.MaxLoginAttempts)
	}

	if limited {
		return ErrRateLimited
	}
	return nil
}

// ResetLogin clears the email counter after a successful login. The IP
// counter is left alone so one good account cannot launder an IP.
func (l *Limiter) ResetLogin(ctx context.Context, email, ip string) error {
	if !l.Enabled() {
		return nil
	}
	if err := l.redis.Del(ctx, l.loginUserKey(email)).Err(); err != nil {
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	return nil
}

// LoginAttempts returns the current failure count for email.
func (l *Limiter) LoginAttempts(ctx context.Context, email string) (int, error) {
	count, err := l.redis.Get(ctx, l.loginUserKey(email)).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return 0, nil
		}
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}
	if count < 0 {
		return 0, nil
	}
	return int(count), nil
}

func (l *Limiter) loginUserKey(email string) string {
	return l.config.Prefix + ":u:" + email
}

func (l *Limiter) loginIPKey(ip string) string {
	return l.config.Prefix + ":ip:" + ip
}

func (l *Limiter) checkCounter(ctx context.Context, key string) error {
	count, err := l.redis.Get(ctx, key).Int64()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil
		}
		return fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	if count >= int64(l.config.MaxLoginAttempts) {
		return ErrRateLimited
	}

	return nil
}

func (l *Limiter) incrementWithTTL(ctx context.Context, key string) (int64, error) {
	count, err := l.redis.Incr(ctx, key).Result()
	if err != nil {
		return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
	}

	// Fixed-window semantics: set TTL only for the first hit in the window.
	if count == 1 {
		if err := l.redis.Expire(ctx, key, l.config.LoginCooldownDuration).Err(); err != nil {
			return 0, fmt.Errorf("%w: %v", ErrRedisUnavailable, err)
		}
	}

	return count, nil
}
