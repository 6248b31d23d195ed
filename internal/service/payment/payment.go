package payment

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/repo"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/pkg/events"
	"github.com/Alijeyrad/teleconsult/pkg/idgen"
	"github.com/Alijeyrad/teleconsult/pkg/observability"
	"github.com/Alijeyrad/teleconsult/pkg/phonepe"
)

var tracer = otel.Tracer("github.com/Alijeyrad/teleconsult/internal/service/payment")

// SystemActor issues receipts for payments confirmed by the gateway.
const SystemActor = "system:phonepe"

// ---------------------------------------------------------------------------
// DTOs
// ---------------------------------------------------------------------------

type InitiateRequest struct {
	Mobile string         `json:"mobile" validate:"required,min=7,max=20"`
	Email  string         `json:"email" validate:"omitempty,email"`
	Name   string         `json:"name" validate:"max=120"`
	Extra  map[string]any `json:"additional_info"`
}

type WebhookOutcome struct {
	MerchantTransactionID string             `json:"merchant_transaction_id"`
	State                 model.PaymentState `json:"state"`
	Duplicate             bool               `json:"duplicate"`
}

// ---------------------------------------------------------------------------
// Interface
// ---------------------------------------------------------------------------

type Service interface {
	Initiate(ctx context.Context, consultationID string, req InitiateRequest) (*model.PaymentTransaction, error)
	// CheckStatus polls the gateway for a pending transaction and applies the
	// result. Final transactions are returned as stored.
	CheckStatus(ctx context.Context, merchantTxnID string) (*model.PaymentTransaction, error)
	HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookOutcome, error)

	IssueReceipt(ctx context.Context, consultationID, actor string) (*model.Receipt, error)
	GetReceipt(ctx context.Context, consultationID string) (*model.Receipt, error)
}

// Gateway is the subset of the PhonePe client the service drives.
type Gateway interface {
	InitiatePayment(ctx context.Context, paymentID string, amount decimal.Decimal, customer phonepe.Customer, extra map[string]any) (*phonepe.InitiateResult, error)
	CheckPaymentStatus(ctx context.Context, merchantTxnID string) (*phonepe.StatusResult, error)
	ProcessWebhook(raw, header string) (*phonepe.WebhookResult, error)
}

// Deduper remembers processed webhook deliveries.
type Deduper interface {
	FirstSeen(ctx context.Context, key string) (bool, error)
	Forget(ctx context.Context, key string) error
}

type Options struct {
	CurrencySymbol string
	Now            func() time.Time
}

// ---------------------------------------------------------------------------
// Implementation
// ---------------------------------------------------------------------------

type paymentService struct {
	store         repo.Store
	consultations consultation.Service
	gw            Gateway
	dedupe        Deduper
	pub           events.Publisher
	metrics       *observability.Metrics
	validate      *validator.Validate
	symbol        string
	now           func() time.Time
	log           *slog.Logger
}

func New(
	store repo.Store,
	consultations consultation.Service,
	gw Gateway,
	dedupe Deduper,
	pub events.Publisher,
	metrics *observability.Metrics,
	opts Options,
) Service {
	if pub == nil {
		pub = events.Noop()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}
	if opts.CurrencySymbol == "" {
		opts.CurrencySymbol = "₹"
	}
	return &paymentService{
		store:         store,
		consultations: consultations,
		gw:            gw,
		dedupe:        dedupe,
		pub:           pub,
		metrics:       metrics,
		validate:      validator.New(validator.WithRequiredStructEnabled()),
		symbol:        opts.CurrencySymbol,
		now:           opts.Now,
		log:           slog.Default().With("component", "payment"),
	}
}

// ---------------------------------------------------------------------------
// Gateway flow
// ---------------------------------------------------------------------------

func (s *paymentService) Initiate(ctx context.Context, consultationID string, req InitiateRequest) (*model.PaymentTransaction, error) {
	ctx, span := tracer.Start(ctx, "payment.initiate", trace.WithAttributes(
		attribute.String("consultation.id", consultationID),
	))
	defer span.End()

	if err := s.validate.Struct(req); err != nil {
		return nil, fmt.Errorf("%w: %v", model.ErrValidation, err)
	}

	c, err := s.store.GetConsultation(ctx, consultationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, consultation.ErrNotFound
		}
		return nil, fmt.Errorf("get consultation: %w", err)
	}
	if err := payable(c); err != nil {
		return nil, err
	}

	paymentID, err := s.store.NextID(ctx, idgen.Payment)
	if err != nil {
		return nil, fmt.Errorf("next payment id: %w", err)
	}

	extra := map[string]any{"consultation_id": c.ID}
	for k, v := range req.Extra {
		extra[k] = v
	}

	start := time.Now()
	res, err := s.gw.InitiatePayment(ctx, paymentID, c.Fee, phonepe.Customer{
		Mobile: req.Mobile,
		Email:  req.Email,
		Name:   req.Name,
	}, extra)
	s.metrics.GatewayCall(ctx, phonepe.PayEndpoint, msSince(start), err != nil)
	if err != nil {
		recordError(span, err)
		s.log.WarnContext(ctx, "payment initiation failed",
			"consultation_id", c.ID,
			"payment_id", paymentID,
			"err", err,
		)
		return nil, fmt.Errorf("initiate payment: %w", err)
	}

	now := s.now()
	p := &model.PaymentTransaction{
		ID:                    paymentID,
		MerchantTransactionID: res.TransactionID,
		ConsultationID:        c.ID,
		Amount:                c.Fee,
		AmountMinor:           res.AmountMinor,
		State:                 model.PaymentStatePending,
		RedirectURL:           res.RedirectURL,
		GatewayResponse:       res.Raw,
		CreatedAt:             now,
		UpdatedAt:             now,
	}
	// The consultation may have changed during the gateway call. Recording
	// under its lock keeps a cancel from slipping in between.
	err = s.consultations.Guard(ctx, c.ID, func(cur *model.Consultation) error {
		if err := payable(cur); err != nil {
			return err
		}
		if err := s.store.CreatePaymentTransaction(ctx, p); err != nil {
			return fmt.Errorf("store payment transaction: %w", err)
		}
		return nil
	})
	if err != nil {
		recordError(span, err)
		s.log.WarnContext(ctx, "payment initiated but not recorded",
			"consultation_id", c.ID,
			"merchant_txn_id", p.MerchantTransactionID,
			"err", err,
		)
		return nil, err
	}

	span.SetAttributes(attribute.String("payment.merchant_txn_id", p.MerchantTransactionID))
	s.log.InfoContext(ctx, "payment initiated",
		"consultation_id", c.ID,
		"payment_id", p.ID,
		"merchant_txn_id", p.MerchantTransactionID,
		"amount_minor", p.AmountMinor,
	)
	s.metrics.PaymentState(ctx, string(p.State))
	s.publish(ctx, events.PaymentSubject(string(p.State), p.MerchantTransactionID), p)

	return p, nil
}

func payable(c *model.Consultation) error {
	switch {
	case c.IsPaid:
		return ErrAlreadyPaid
	case c.Status == model.StatusCancelled || c.Status == model.StatusNoShow:
		return ErrNotPayable
	case !c.Fee.IsPositive():
		return ErrNothingToPay
	}
	return nil
}

func (s *paymentService) CheckStatus(ctx context.Context, merchantTxnID string) (*model.PaymentTransaction, error) {
	ctx, span := tracer.Start(ctx, "payment.check_status", trace.WithAttributes(
		attribute.String("payment.merchant_txn_id", merchantTxnID),
	))
	defer span.End()

	p, err := s.getTransaction(ctx, merchantTxnID)
	if err != nil {
		return nil, err
	}
	if p.State.Final() {
		return p, nil
	}

	start := time.Now()
	res, err := s.gw.CheckPaymentStatus(ctx, merchantTxnID)
	s.metrics.GatewayCall(ctx, phonepe.StatusEndpoint, msSince(start), err != nil)
	if err != nil {
		recordError(span, err)
		return nil, fmt.Errorf("check payment status: %w", err)
	}

	state := model.NormalizeGatewayState(res.State, res.Code)
	if err := s.apply(ctx, p, state, res.TransactionID, res.Code, res.Decoded); err != nil {
		recordError(span, err)
		return nil, err
	}
	return p, nil
}

func (s *paymentService) HandleWebhook(ctx context.Context, body []byte, signature string) (*WebhookOutcome, error) {
	ctx, span := tracer.Start(ctx, "payment.webhook")
	defer span.End()

	payload := webhookPayload(body)
	if payload == "" {
		s.metrics.Webhook(ctx, "empty")
		return nil, ErrEmptyWebhook
	}

	res, err := s.gw.ProcessWebhook(payload, signature)
	if err != nil {
		outcome := "undecodable"
		if errors.Is(err, phonepe.ErrInvalidSignature) {
			outcome = "invalid_signature"
		}
		s.metrics.Webhook(ctx, outcome)
		s.log.WarnContext(ctx, "webhook rejected", "outcome", outcome, "err", err)
		recordError(span, err)
		return nil, err
	}
	if res.MerchantTransactionID == "" {
		s.metrics.Webhook(ctx, "undecodable")
		return nil, ErrEmptyWebhook
	}

	state := model.NormalizeGatewayState(res.State, res.Code)
	out := &WebhookOutcome{MerchantTransactionID: res.MerchantTransactionID, State: state}
	span.SetAttributes(
		attribute.String("payment.merchant_txn_id", res.MerchantTransactionID),
		attribute.String("payment.state", string(state)),
	)

	key := res.MerchantTransactionID + ":" + string(state)
	first, err := s.dedupe.FirstSeen(ctx, key)
	if err != nil {
		// Process anyway; applying a state twice is harmless.
		s.log.WarnContext(ctx, "webhook dedupe unavailable", "key", key, "err", err)
		first = true
	}
	if !first {
		s.metrics.Webhook(ctx, "duplicate")
		out.Duplicate = true
		return out, nil
	}

	p, err := s.getTransaction(ctx, res.MerchantTransactionID)
	if err == nil {
		err = s.apply(ctx, p, state, res.TransactionID, firstNonEmpty(res.ResponseCode, res.Code), res.Raw)
	}
	if err != nil {
		if ferr := s.dedupe.Forget(ctx, key); ferr != nil {
			s.log.WarnContext(ctx, "webhook dedupe forget", "key", key, "err", ferr)
		}
		s.metrics.Webhook(ctx, "failed")
		recordError(span, err)
		return nil, err
	}

	s.metrics.Webhook(ctx, "processed")
	return out, nil
}

// apply mirrors a gateway state onto the consultation, issues the receipt on
// success and then records the state on the transaction. The steps before
// the transaction update are idempotent, so a failed attempt can be replayed.
// A successful transaction is never overwritten.
func (s *paymentService) apply(ctx context.Context, p *model.PaymentTransaction, state model.PaymentState, gatewayTxnID, code string, raw json.RawMessage) error {
	switch {
	case p.State == state,
		p.State == model.PaymentStateSuccess,
		p.State.Final() && state == model.PaymentStatePending:
		s.log.DebugContext(ctx, "payment state unchanged",
			"merchant_txn_id", p.MerchantTransactionID,
			"stored", p.State,
			"reported", state,
		)
		return nil
	}

	if _, _, err := s.consultations.ApplyPayment(ctx, p.ConsultationID, state, model.PaymentMethodPhonePe); err != nil {
		return fmt.Errorf("apply payment to consultation: %w", err)
	}
	if state == model.PaymentStateSuccess {
		if _, err := s.IssueReceipt(ctx, p.ConsultationID, SystemActor); err != nil {
			return err
		}
	}

	p.State = state
	if gatewayTxnID != "" {
		p.GatewayTransactionID = gatewayTxnID
	}
	p.ResponseCode = code
	if len(raw) > 0 {
		p.GatewayResponse = raw
	}
	p.UpdatedAt = s.now()

	if err := s.store.UpdatePaymentTransaction(ctx, p); err != nil {
		return fmt.Errorf("update payment transaction: %w", err)
	}

	s.log.InfoContext(ctx, "payment state changed",
		"merchant_txn_id", p.MerchantTransactionID,
		"consultation_id", p.ConsultationID,
		"state", state,
		"code", code,
	)
	s.metrics.PaymentState(ctx, string(state))
	s.publish(ctx, events.PaymentSubject(string(state), p.MerchantTransactionID), p)
	return nil
}

// ---------------------------------------------------------------------------
// Receipts
// ---------------------------------------------------------------------------

// IssueReceipt creates the consultation's receipt, or returns the existing one.
func (s *paymentService) IssueReceipt(ctx context.Context, consultationID, actor string) (*model.Receipt, error) {
	if r, err := s.store.GetReceiptByConsultation(ctx, consultationID); err == nil {
		return r, nil
	} else if !errors.Is(err, repo.ErrNotFound) {
		return nil, fmt.Errorf("get receipt: %w", err)
	}

	var receipt *model.Receipt
	err := s.store.WithTx(ctx, func(q repo.Queries) error {
		c, err := q.GetConsultation(ctx, consultationID)
		if err != nil {
			if errors.Is(err, repo.ErrNotFound) {
				return consultation.ErrNotFound
			}
			return fmt.Errorf("get consultation: %w", err)
		}
		if !c.IsPaid {
			return ErrNotPaid
		}

		number, err := q.NextID(ctx, idgen.Receipt)
		if err != nil {
			return fmt.Errorf("next receipt number: %w", err)
		}
		r, err := model.NewReceipt(number, c, actor, s.symbol, s.now())
		if err != nil {
			return fmt.Errorf("build receipt: %w", err)
		}
		if err := q.CreateReceipt(ctx, r); err != nil {
			return fmt.Errorf("create receipt: %w", err)
		}
		receipt = r
		return nil
	})
	if errors.Is(err, repo.ErrConflict) {
		// Issued concurrently.
		return s.GetReceipt(ctx, consultationID)
	}
	if err != nil {
		return nil, err
	}

	s.log.InfoContext(ctx, "receipt issued",
		"consultation_id", consultationID,
		"receipt_number", receipt.Number,
		"issued_by", actor,
	)
	s.publish(ctx, events.ReceiptSubject(consultationID), receipt)
	return receipt, nil
}

func (s *paymentService) GetReceipt(ctx context.Context, consultationID string) (*model.Receipt, error) {
	r, err := s.store.GetReceiptByConsultation(ctx, consultationID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrReceiptNotFound
		}
		return nil, fmt.Errorf("get receipt: %w", err)
	}
	return r, nil
}

// ---------------------------------------------------------------------------
// Helpers
// ---------------------------------------------------------------------------

func (s *paymentService) getTransaction(ctx context.Context, merchantTxnID string) (*model.PaymentTransaction, error) {
	p, err := s.store.GetPaymentTransaction(ctx, merchantTxnID)
	if err != nil {
		if errors.Is(err, repo.ErrNotFound) {
			return nil, ErrPaymentNotFound
		}
		return nil, fmt.Errorf("get payment transaction: %w", err)
	}
	return p, nil
}

func (s *paymentService) publish(ctx context.Context, subject string, payload any) {
	if err := s.pub.Publish(ctx, subject, payload); err != nil {
		s.log.WarnContext(ctx, "publish event failed", "subject", subject, "err", err)
	}
}

// webhookPayload extracts the base64 payload from {"response": "..."} or
// takes the body as the payload itself.
func webhookPayload(body []byte) string {
	trimmed := strings.TrimSpace(string(body))
	if strings.HasPrefix(trimmed, "{") {
		var env struct {
			Response string `json:"response"`
		}
		if err := json.Unmarshal([]byte(trimmed), &env); err != nil {
			return ""
		}
		return strings.TrimSpace(env.Response)
	}
	return trimmed
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func msSince(t time.Time) float64 {
	return float64(time.Since(t).Microseconds()) / 1000
}

func recordError(span trace.Span, err error) {
	span.RecordError(err)
	span.SetStatus(codes.Error, err.Error())
}
