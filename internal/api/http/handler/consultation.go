package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/teleconsult/internal/api/http/middleware"
	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
)

type ConsultationHandler struct {
	svc consultation.Service
}

func NewConsultationHandler(svc consultation.Service) *ConsultationHandler {
	return &ConsultationHandler{svc: svc}
}

func mapConsultationError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, consultation.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, consultation.ErrInvalidTransition),
		errors.Is(err, model.ErrIneligibleForReschedule),
		errors.Is(err, model.ErrNoRescheduleRequested),
		errors.Is(err, model.ErrRescheduleNotApproved):
		return conflict(c, err.Error())
	case errors.Is(err, model.ErrValidation):
		return unprocessable(c, err.Error())
	case errors.Is(err, consultation.ErrPaymentRequired):
		return paymentRequired(c, err.Error())
	case errors.Is(err, consultation.ErrBusy):
		return tooManyRequests(c, err.Error())
	default:
		slog.ErrorContext(c.Context(), "consultation request failed", "path", c.Path(), "err", err)
		return internalError(c)
	}
}

func actor(c fiber.Ctx) string {
	a, _ := middleware.ActorFromFiber(c)
	return a
}

// POST /consultations
func (h *ConsultationHandler) Schedule(c fiber.Ctx) error {
	var req consultation.ScheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	con, err := h.svc.Schedule(c.Context(), req)
	if err != nil {
		return mapConsultationError(c, err)
	}
	return created(c, con)
}

// GET /consultations/:id
func (h *ConsultationHandler) Get(c fiber.Ctx) error {
	view, err := h.svc.Get(c.Context(), c.Params("id"))
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, view)
}

// PATCH /consultations/:id/check-in
func (h *ConsultationHandler) CheckIn(c fiber.Ctx) error {
	con, err := h.svc.CheckIn(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// PATCH /consultations/:id/ready
func (h *ConsultationHandler) MarkReady(c fiber.Ctx) error {
	con, err := h.svc.MarkReady(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// PATCH /consultations/:id/start
func (h *ConsultationHandler) Start(c fiber.Ctx) error {
	con, err := h.svc.Start(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// PATCH /consultations/:id/complete
func (h *ConsultationHandler) Complete(c fiber.Ctx) error {
	con, err := h.svc.Complete(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// PATCH /consultations/:id/cancel
func (h *ConsultationHandler) Cancel(c fiber.Ctx) error {
	var body struct {
		Reason string `json:"reason"`
	}
	// The reason is optional, so an empty body is fine.
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&body); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	con, err := h.svc.Cancel(c.Context(), c.Params("id"), actor(c), body.Reason)
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// PATCH /consultations/:id/no-show
func (h *ConsultationHandler) MarkNoShow(c fiber.Ctx) error {
	con, err := h.svc.MarkNoShow(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// ---------------------------------------------------------------------------
// Reschedule
// ---------------------------------------------------------------------------

// POST /consultations/:id/reschedule/request
func (h *ConsultationHandler) RequestReschedule(c fiber.Ctx) error {
	var req consultation.RescheduleRequest
	if len(c.Body()) > 0 {
		if err := c.Bind().JSON(&req); err != nil {
			return badRequest(c, "invalid request body")
		}
	}

	con, err := h.svc.RequestReschedule(c.Context(), c.Params("id"), actor(c), req)
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// POST /consultations/:id/reschedule/approve
func (h *ConsultationHandler) ApproveReschedule(c fiber.Ctx) error {
	con, err := h.svc.ApproveReschedule(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, con)
}

// POST /consultations/:id/reschedule/apply
func (h *ConsultationHandler) ApplyReschedule(c fiber.Ctx) error {
	var req consultation.ApplyRescheduleRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	con, rec, err := h.svc.ApplyReschedule(c.Context(), c.Params("id"), actor(c), req)
	if err != nil {
		return mapConsultationError(c, err)
	}
	return ok(c, fiber.Map{"consultation": con, "reschedule": rec})
}

// GET /consultations/:id/reschedules
func (h *ConsultationHandler) ListReschedules(c fiber.Ctx) error {
	recs, err := h.svc.ListReschedules(c.Context(), c.Params("id"))
	if err != nil {
		return mapConsultationError(c, err)
	}
	if recs == nil {
		recs = []*model.RescheduleRecord{}
	}
	return ok(c, recs)
}
