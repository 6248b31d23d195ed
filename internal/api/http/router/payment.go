package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/teleconsult/internal/api/http/handler"
)

func (r *Router) registerPaymentRoutes(
	api fiber.Router,
	ph *handler.PaymentHandler,
	actorRequired fiber.Handler,
) {
	// Public: gateway callback, authenticated by its X-VERIFY signature.
	api.Post("/payments/webhook", ph.Webhook)

	payments := api.Group("/payments", actorRequired)
	payments.Get("/:txn/status", ph.Status)
}
