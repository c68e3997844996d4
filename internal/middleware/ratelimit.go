package middleware

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/redis/go-redis/v9"

	"github.com/iliyamo/court-booking/internal/config"
)

// fixedWindow counts hits in the current window and reports the count and
// the milliseconds left until the window resets.  The expiry is set only
// on the first hit so the window does not slide.
var fixedWindow = redis.NewScript(`
	local n = redis.call('INCR', KEYS[1])
	if n == 1 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
	end
	local ttl = redis.call('PTTL', KEYS[1])
	if ttl < 0 then
		redis.call('PEXPIRE', KEYS[1], ARGV[1])
		ttl = tonumber(ARGV[1])
	end
	return { n, ttl }
`)

func passThrough(next echo.HandlerFunc) echo.HandlerFunc { return next }

// NewRateLimiter limits each caller to cfg.Limit requests per cfg.Window.
// Without Redis, or with limiting disabled, it lets every request through.
// Redis errors fail open.
func NewRateLimiter(cfg config.RateLimitConfig, rdb *redis.Client) echo.MiddlewareFunc {
	if !cfg.Enabled || rdb == nil {
		return passThrough
	}
	window := cfg.Window
	if window < time.Second {
		window = time.Second
	}
	limit := strconv.FormatInt(cfg.Limit, 10)

	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			key := rateKey(cfg, c)
			vals, err := fixedWindow.Run(c.Request().Context(), rdb, []string{key}, window.Milliseconds()).Int64Slice()
			if err != nil || len(vals) != 2 {
				c.Logger().Warnf("ratelimit: redis error for key=%s: %v", key, err)
				return next(c)
			}
			count, ttlMs := vals[0], vals[1]

			h := c.Response().Header()
			h.Set("X-RateLimit-Limit", limit)
			remaining := cfg.Limit - count
			if remaining < 0 {
				remaining = 0
			}
			h.Set("X-RateLimit-Remaining", strconv.FormatInt(remaining, 10))

			if count > cfg.Limit {
				secs := (ttlMs + 999) / 1000
				h.Set("Retry-After", strconv.FormatInt(secs, 10))
				return c.JSON(http.StatusTooManyRequests, echo.Map{
					"error":       "too_many_requests",
					"message":     "rate limit exceeded",
					"retry_after": secs,
				})
			}
			return next(c)
		}
	}
}

// rateKey builds the counter key for the configured strategy.
func rateKey(cfg config.RateLimitConfig, c echo.Context) string {
	ip := c.RealIP()
	if ip == "" {
		ip = "unknown"
	}
	parts := []string{cfg.Prefix}
	switch strings.ToLower(cfg.KeyStrategy) {
	case "ip":
		parts = append(parts, "ip", ip)
	case "user":
		parts = append(parts, "user", callerID(c))
	default:
		parts = append(parts, "ip", ip, "user", callerID(c), "route", c.Request().Method+" "+c.Path())
	}
	return strings.Join(parts, ":")
}
