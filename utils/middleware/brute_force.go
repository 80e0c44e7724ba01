package middleware

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/pastpapers-ai/explainer-api/utils/cache"
	"github.com/pastpapers-ai/explainer-api/utils/response"
)

// lockout is applied once the failed attempts in the window reach attempts
type lockout struct {
	attempts int64
	duration time.Duration
}

// checked from the longest lockout down
var lockouts = []lockout{
	{25, 24 * time.Hour},
	{10, time.Hour},
	{5, 2 * time.Minute},
}

const attemptWindow = 15 * time.Minute

// LockoutFor returns the lockout for a number of failed attempts, or zero
func LockoutFor(attempts int64) time.Duration {
	for _, l := range lockouts {
		if attempts >= l.attempts {
			return l.duration
		}
	}
	return 0
}

// BruteForceProtection locks out IPs after repeated failed logins. A nil
// cache disables it.
type BruteForceProtection struct {
	redisCache *cache.RedisCache
}

// NewBruteForceProtection creates a new brute force protection instance
func NewBruteForceProtection(redisCache *cache.RedisCache) *BruteForceProtection {
	return &BruteForceProtection{
		redisCache: redisCache,
	}
}

func (b *BruteForceProtection) enabled() bool {
	return b != nil && b.redisCache != nil
}

func attemptKey(ip string) string { return "brute_force:attempts:" + ip }
func lockKey(ip string) string    { return "brute_force:lock:" + ip }

// CheckLockout middleware rejects requests from locked out IPs
func (b *BruteForceProtection) CheckLockout() fiber.Handler {
	return func(c *fiber.Ctx) error {
		if !b.enabled() {
			return c.Next()
		}

		ip := c.IP()
		locked, err := b.redisCache.Exists(c.Context(), lockKey(ip))
		if err != nil || !locked {
			// Redis trouble must not block logins
			return c.Next()
		}

		retryAfter := 60
		if ttl, err := b.redisCache.TTL(c.Context(), lockKey(ip)); err == nil && ttl > 0 {
			retryAfter = int(ttl.Seconds())
		}

		c.Set(fiber.HeaderRetryAfter, strconv.Itoa(retryAfter))
		return response.TooManyRequests(c, fmt.Sprintf("Too many failed attempts. Try again in %d seconds", retryAfter))
	}
}

// RecordFailedAttempt counts a failed login and applies progressive lockouts
func (b *BruteForceProtection) RecordFailedAttempt(ctx context.Context, ip string) error {
	if !b.enabled() {
		return nil
	}

	attempts, err := b.redisCache.Increment(ctx, attemptKey(ip))
	if err != nil {
		return nil
	}
	if attempts == 1 {
		_ = b.redisCache.Expire(ctx, attemptKey(ip), attemptWindow)
	}

	duration := LockoutFor(attempts)
	if duration == 0 {
		return nil
	}
	return b.redisCache.Set(ctx, lockKey(ip), "locked", duration)
}

// RecordSuccessfulAttempt clears failed attempts on successful login
func (b *BruteForceProtection) RecordSuccessfulAttempt(ctx context.Context, ip string) error {
	if !b.enabled() {
		return nil
	}
	return b.redisCache.Delete(ctx, attemptKey(ip), lockKey(ip))
}

// GetAttemptCount returns the current attempt count for an IP
func (b *BruteForceProtection) GetAttemptCount(ctx context.Context, ip string) (int, error) {
	if !b.enabled() {
		return 0, nil
	}

	val, err := b.redisCache.Get(ctx, attemptKey(ip))
	if err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return 0, nil
		}
		return 0, err
	}
	return strconv.Atoi(val)
}
