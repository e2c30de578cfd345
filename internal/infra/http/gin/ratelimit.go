package ginserver

import (
	"fmt"
	"log/slog"
	"net/http"

	gin "github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
	"github.com/ulule/limiter/v3"
	ginlimiter "github.com/ulule/limiter/v3/drivers/middleware/gin"
	memorystore "github.com/ulule/limiter/v3/drivers/store/memory"
	redisstore "github.com/ulule/limiter/v3/drivers/store/redis"
)

const rateLimitPrefix = "carrental:ratelimit"

// NewRateLimiter limits booking writes per caller. rate uses the limiter
// format ("60-M"). Counters live in Redis when rdb is set, in process otherwise.
// Callers are keyed by user id, falling back to the client IP.
func NewRateLimiter(rate string, rdb *redis.Client, logger *slog.Logger) (gin.HandlerFunc, error) {
	parsed, err := limiter.NewRateFromFormatted(rate)
	if err != nil {
		return nil, fmt.Errorf("rate limit %q: %w", rate, err)
	}
	var store limiter.Store
	if rdb != nil {
		store, err = redisstore.NewStoreWithOptions(rdb, limiter.StoreOptions{
			Prefix:   rateLimitPrefix,
			MaxRetry: 3,
		})
		if err != nil {
			return nil, fmt.Errorf("rate limit store: %w", err)
		}
	} else {
		store = memorystore.NewStoreWithOptions(limiter.StoreOptions{
			Prefix:          rateLimitPrefix,
			CleanUpInterval: limiter.DefaultCleanUpInterval,
		})
	}
	return ginlimiter.NewMiddleware(limiter.New(store, parsed),
		ginlimiter.WithKeyGetter(rateLimitKey),
		ginlimiter.WithLimitReachedHandler(func(c *gin.Context) {
			c.JSON(http.StatusTooManyRequests, envelope{
				Success: false,
				Message: "too many requests",
				Error:   &errorBody{Kind: "RateLimited", Message: "too many requests"},
			})
		}),
		ginlimiter.WithErrorHandler(func(c *gin.Context, err error) {
			// Requests pass when the store fails.
			if logger != nil {
				logger.Warn("rate limiter unavailable", "error", err)
			}
			c.Next()
		}),
	), nil
}

func rateLimitKey(c *gin.Context) string {
	if p, ok := currentPrincipal(c); ok {
		return "user:" + p.UserID
	}
	return "ip:" + c.ClientIP()
}
