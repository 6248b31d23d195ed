package router

import (
	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/teleconsult/internal/api/http/handler"
)

func (r *Router) registerConsultationRoutes(
	api fiber.Router,
	ch *handler.ConsultationHandler,
	ph *handler.PaymentHandler,
	actorRequired fiber.Handler,
) {
	consultations := api.Group("/consultations", actorRequired)

	consultations.Post("/", ch.Schedule)
	consultations.Get("/:id", ch.Get)

	// Lifecycle
	consultations.Patch("/:id/check-in", ch.CheckIn)
	consultations.Patch("/:id/ready", ch.MarkReady)
	consultations.Patch("/:id/start", ch.Start)
	consultations.Patch("/:id/complete", ch.Complete)
	consultations.Patch("/:id/cancel", ch.Cancel)
	consultations.Patch("/:id/no-show", ch.MarkNoShow)

	// Reschedule
	consultations.Post("/:id/reschedule/request", ch.RequestReschedule)
	consultations.Post("/:id/reschedule/approve", ch.ApproveReschedule)
	consultations.Post("/:id/reschedule/apply", ch.ApplyReschedule)
	consultations.Get("/:id/reschedules", ch.ListReschedules)

	// Payment and receipt
	consultations.Post("/:id/payments", ph.Initiate)
	consultations.Get("/:id/receipt", ph.GetReceipt)
	consultations.Post("/:id/receipt", ph.IssueReceipt)
}
