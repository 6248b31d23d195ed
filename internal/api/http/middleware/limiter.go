package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/gofiber/fiber/v3/middleware/limiter"
	fiberredis "github.com/gofiber/storage/redis/v3"
	"github.com/redis/go-redis/v9"
)

// NewLimiterWithRedis shares a sliding-window rate limit across instances
// through Redis. The gateway webhook is exempt so callbacks are never dropped.
func NewLimiterWithRedis(rdb *redis.Client, maxRequests int, window time.Duration, exempt ...string) fiber.Handler {
	if maxRequests <= 0 {
		maxRequests = 20
	}
	if window <= 0 {
		window = 30 * time.Second
	}
	skip := make(map[string]struct{}, len(exempt))
	for _, p := range exempt {
		skip[p] = struct{}{}
	}

	return limiter.New(limiter.Config{
		Storage:           fiberredis.NewFromConnection(rdb),
		Max:               maxRequests,
		Expiration:        window,
		LimiterMiddleware: limiter.SlidingWindow{},
		Next: func(c fiber.Ctx) bool {
			_, ok := skip[c.Path()]
			return ok
		},
		LimitReached: func(c fiber.Ctx) error {
			return c.Status(fiber.StatusTooManyRequests).JSON(fiber.Map{"error": "too many requests"})
		},
	})
}
