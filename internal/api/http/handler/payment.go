package handler

import (
	"errors"
	"log/slog"

	"github.com/gofiber/fiber/v3"

	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/internal/service/payment"
	"github.com/Alijeyrad/teleconsult/pkg/phonepe"
)

// HeaderVerify carries the gateway's webhook signature.
const HeaderVerify = "X-VERIFY"

type PaymentHandler struct {
	svc payment.Service
}

func NewPaymentHandler(svc payment.Service) *PaymentHandler {
	return &PaymentHandler{svc: svc}
}

func mapPaymentError(c fiber.Ctx, err error) error {
	switch {
	case errors.Is(err, payment.ErrPaymentNotFound),
		errors.Is(err, payment.ErrReceiptNotFound),
		errors.Is(err, consultation.ErrNotFound):
		return notFound(c, err.Error())
	case errors.Is(err, phonepe.ErrInvalidSignature):
		return unauthorized(c, err.Error())
	case errors.Is(err, payment.ErrAlreadyPaid),
		errors.Is(err, payment.ErrNotPaid),
		errors.Is(err, payment.ErrNotPayable):
		return conflict(c, err.Error())
	case errors.Is(err, model.ErrValidation):
		return unprocessable(c, err.Error())
	case errors.Is(err, consultation.ErrBusy):
		return tooManyRequests(c, err.Error())
	case errors.Is(err, phonepe.ErrNetwork),
		errors.Is(err, phonepe.ErrGatewayDeclined),
		errors.Is(err, phonepe.ErrUndecodableStatus):
		slog.WarnContext(c.Context(), "payment gateway error", "path", c.Path(), "err", err)
		return badGateway(c, err.Error())
	default:
		slog.ErrorContext(c.Context(), "payment request failed", "path", c.Path(), "err", err)
		return internalError(c)
	}
}

// POST /consultations/:id/payments
func (h *PaymentHandler) Initiate(c fiber.Ctx) error {
	var req payment.InitiateRequest
	if err := c.Bind().JSON(&req); err != nil {
		return badRequest(c, "invalid request body")
	}

	txn, err := h.svc.Initiate(c.Context(), c.Params("id"), req)
	if err != nil {
		return mapPaymentError(c, err)
	}
	return created(c, txn)
}

// GET /payments/:txn/status
func (h *PaymentHandler) Status(c fiber.Ctx) error {
	txn, err := h.svc.CheckStatus(c.Context(), c.Params("txn"))
	if err != nil {
		return mapPaymentError(c, err)
	}
	return ok(c, txn)
}

// POST /payments/webhook
//
// Any non-2xx answer makes the gateway retry the delivery.
func (h *PaymentHandler) Webhook(c fiber.Ctx) error {
	sig := c.Get(HeaderVerify)
	if sig == "" {
		return unauthorized(c, "missing "+HeaderVerify+" header")
	}

	out, err := h.svc.HandleWebhook(c.Context(), c.Body(), sig)
	if err != nil {
		return mapPaymentError(c, err)
	}
	return ok(c, out)
}

// GET /consultations/:id/receipt
func (h *PaymentHandler) GetReceipt(c fiber.Ctx) error {
	r, err := h.svc.GetReceipt(c.Context(), c.Params("id"))
	if err != nil {
		return mapPaymentError(c, err)
	}
	return ok(c, r)
}

// POST /consultations/:id/receipt
func (h *PaymentHandler) IssueReceipt(c fiber.Ctx) error {
	r, err := h.svc.IssueReceipt(c.Context(), c.Params("id"), actor(c))
	if err != nil {
		return mapPaymentError(c, err)
	}
	return created(c, r)
}
