package middleware

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	redis "github.com/redis/go-redis/v9"
)

var redisClient *redis.Client

// InitRedisRateLimiter installs the shared client used by the limiters. A nil
// client keeps every limiter fail-open.
func InitRedisRateLimiter(rdb *redis.Client) {
	redisClient = rdb
}

// RedisRateLimit is a fixed-window limiter per client IP using INCR/EXPIRE.
// key format: rl:<window_seconds>:<ip>
func RedisRateLimit(maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		key := "rl:" + strconv.FormatInt(int64(window.Seconds()), 10) + ":" + c.ClientIP()
		limit(c, key, c.FullPath(), maxRequests, window, "X-RateLimit")
	}
}

// WalletRateLimit limits a named action per wallet, not per IP. JWT must run
// before it.
// key format: rl:<action>:<wallet>:<window_seconds>
func WalletRateLimit(action string, maxRequests int, window time.Duration) gin.HandlerFunc {
	return func(c *gin.Context) {
		wallet := c.GetString("wallet")
		if wallet == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "unauthorized"})
			return
		}
		key := "rl:" + action + ":" + wallet + ":" + strconv.FormatInt(int64(window.Seconds()), 10)
		limit(c, key, action, maxRequests, window, "X-WalletRateLimit")
	}
}

func limit(c *gin.Context, key, label string, maxRequests int, window time.Duration, header string) {
	if redisClient == nil {
		c.Next()
		return
	}

	ctx, cancel := context.WithTimeout(c.Request.Context(), time.Second)
	defer cancel()

	val, err := redisClient.Incr(ctx, key).Result()
	if err != nil {
		// fail-open
		c.Header(header+"-Error", "redis-error")
		c.Next()
		return
	}
	if val == 1 {
		redisClient.Expire(ctx, key, window)
	}

	c.Header(header+"-Limit", strconv.Itoa(maxRequests))
	c.Header(header+"-Remaining", strconv.FormatInt(max(0, int64(maxRequests)-val), 10))

	if val > int64(maxRequests) {
		RLBlocked.WithLabelValues(label).Inc()
		c.AbortWithStatusJSON(http.StatusTooManyRequests, gin.H{
			"error":       "rate limit exceeded",
			"retry_after": int(window.Seconds()),
		})
		return
	}

	RLRequests.WithLabelValues(label).Inc()
	c.Next()
}
