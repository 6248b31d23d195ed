package middleware

import (
	"time"

	"github.com/gofiber/fiber/v3"
	"github.com/google/uuid"

	"github.com/Alijeyrad/teleconsult/pkg/constants"
	"github.com/Alijeyrad/teleconsult/pkg/reqctx"
)

const (
	HeaderRequestID = "X-Request-Id"
	LocalRequestID  = "request_id"
	localActor      = "actor"
)

// RequestID preserves or generates a request ID, reads the actor header and
// attaches both to the request context.
func RequestID() fiber.Handler {
	return func(c fiber.Ctx) error {
		rid := c.Get(HeaderRequestID)
		if rid == "" {
			rid = uuid.NewString()
		}

		c.Locals(LocalRequestID, rid)
		c.Set(HeaderRequestID, rid)
		// adaptor handlers read it from the request headers
		c.Request().Header.Set(HeaderRequestID, rid)

		meta := &reqctx.RequestMeta{
			RequestID:   rid,
			Actor:       c.Get(constants.ActorHeader),
			ClientIP:    c.IP(),
			UserAgent:   c.Get("User-Agent"),
			RequestedAt: time.Now(),
		}
		c.Locals(localActor, meta.Actor)
		c.SetContext(reqctx.WithRequestMeta(c.Context(), meta))

		return c.Next()
	}
}

func RequestIDFromFiber(c fiber.Ctx) (string, bool) {
	s, ok := c.Locals(LocalRequestID).(string)
	return s, ok && s != ""
}

// RequireActor rejects requests without an actor header. The value itself is
// not interpreted.
func RequireActor() fiber.Handler {
	return func(c fiber.Ctx) error {
		if _, ok := ActorFromFiber(c); !ok {
			return c.Status(fiber.StatusUnauthorized).JSON(fiber.Map{
				"error": "missing " + constants.ActorHeader + " header",
			})
		}
		return c.Next()
	}
}

func ActorFromFiber(c fiber.Ctx) (string, bool) {
	s, ok := c.Locals(localActor).(string)
	return s, ok && s != ""
}
