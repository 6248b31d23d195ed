package router_test

import (
	"context"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/goccy/go-json"
	"github.com/gofiber/fiber/v3"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/teleconsult/config"
	"github.com/Alijeyrad/teleconsult/internal/api/http/handler"
	"github.com/Alijeyrad/teleconsult/internal/api/http/middleware"
	"github.com/Alijeyrad/teleconsult/internal/api/http/router"
	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/internal/service/payment"
	"github.com/Alijeyrad/teleconsult/pkg/constants"
	"github.com/Alijeyrad/teleconsult/pkg/phonepe"
)

// fakeConsultations answers only the calls a test configures; anything else
// panics through the nil embedded interface.
type fakeConsultations struct {
	consultation.Service

	lastActor  string
	lastReason string
	schedule   *consultation.ScheduleRequest
	err        error
}

func (f *fakeConsultations) result(id string) (*model.Consultation, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.Consultation{ID: id, Status: model.StatusScheduled}, nil
}

func (f *fakeConsultations) Schedule(_ context.Context, req consultation.ScheduleRequest) (*model.Consultation, error) {
	f.schedule = &req
	return f.result("CON001")
}

func (f *fakeConsultations) Get(_ context.Context, id string) (*consultation.View, error) {
	c, err := f.result(id)
	if err != nil {
		return nil, err
	}
	return &consultation.View{Consultation: c, Timing: model.Timing{}}, nil
}

func (f *fakeConsultations) CheckIn(_ context.Context, id, actor string) (*model.Consultation, error) {
	f.lastActor = actor
	return f.result(id)
}

func (f *fakeConsultations) Start(_ context.Context, id, actor string) (*model.Consultation, error) {
	f.lastActor = actor
	return f.result(id)
}

func (f *fakeConsultations) Cancel(_ context.Context, id, actor, reason string) (*model.Consultation, error) {
	f.lastActor, f.lastReason = actor, reason
	return f.result(id)
}

func (f *fakeConsultations) ListReschedules(_ context.Context, id string) ([]*model.RescheduleRecord, error) {
	return nil, f.err
}

type fakePayments struct {
	payment.Service

	signature string
	err       error
}

func (f *fakePayments) Initiate(_ context.Context, id string, _ payment.InitiateRequest) (*model.PaymentTransaction, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &model.PaymentTransaction{ID: "PAY001", ConsultationID: id, State: model.PaymentStatePending}, nil
}

func (f *fakePayments) HandleWebhook(_ context.Context, body []byte, signature string) (*payment.WebhookOutcome, error) {
	f.signature = signature
	if f.err != nil {
		return nil, f.err
	}
	return &payment.WebhookOutcome{MerchantTransactionID: "TXNPAY001", State: model.PaymentStateSuccess}, nil
}

func newApp(cs *fakeConsultations, ps *fakePayments) *fiber.App {
	app := fiber.New(fiber.Config{
		JSONEncoder:  json.Marshal,
		JSONDecoder:  json.Unmarshal,
		ErrorHandler: handler.ErrorHandler,
	})
	app.Use(middleware.RequestID())
	router.NewRouter(router.Params{
		Cfg:             &config.Config{},
		ConsultationSvc: cs,
		PaymentSvc:      ps,
	}).Register(app)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string, headers map[string]string) (*http.Response, map[string]any) {
	t.Helper()
	var r io.Reader
	if body != "" {
		r = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, r)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	out := map[string]any{}
	if len(raw) > 0 {
		_ = json.Unmarshal(raw, &out)
	}
	return resp, out
}

var asNurse = map[string]string{constants.ActorHeader: "nurse-7"}

func TestActorHeaderRequired(t *testing.T) {
	app := newApp(&fakeConsultations{}, &fakePayments{})

	resp, body := do(t, app, http.MethodGet, "/api/v1/consultations/CON001", "", nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
	assert.Contains(t, body["error"], constants.ActorHeader)
}

func TestRequestIDEchoed(t *testing.T) {
	app := newApp(&fakeConsultations{}, &fakePayments{})

	resp, _ := do(t, app, http.MethodGet, "/api/v1/consultations/CON001", "", map[string]string{
		constants.ActorHeader:     "nurse-7",
		middleware.HeaderRequestID: "req-123",
	})
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "req-123", resp.Header.Get(middleware.HeaderRequestID))

	resp, _ = do(t, app, http.MethodGet, "/api/v1/consultations/CON001", "", asNurse)
	assert.NotEmpty(t, resp.Header.Get(middleware.HeaderRequestID))
}

func TestGetConsultation(t *testing.T) {
	app := newApp(&fakeConsultations{}, &fakePayments{})

	resp, body := do(t, app, http.MethodGet, "/api/v1/consultations/CON004", "", asNurse)
	require.Equal(t, http.StatusOK, resp.StatusCode)

	data := body["data"].(map[string]any)
	con := data["consultation"].(map[string]any)
	assert.Equal(t, "CON004", con["id"])
	assert.Contains(t, data, "timing")
}

func TestScheduleBindsBody(t *testing.T) {
	cs := &fakeConsultations{}
	app := newApp(cs, &fakePayments{})

	resp, _ := do(t, app, http.MethodPost, "/api/v1/consultations",
		`{"patient_id":"p-1","doctor_id":"d-1","scheduled_date":"2024-03-11","scheduled_time":"10:30","consultation_fee":"750.50"}`,
		asNurse)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	require.NotNil(t, cs.schedule)
	assert.Equal(t, "p-1", cs.schedule.PatientID)
	assert.True(t, decimal.RequireFromString("750.50").Equal(cs.schedule.Fee))

	resp, _ = do(t, app, http.MethodPost, "/api/v1/consultations", `{"patient_id":`, asNurse)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestLifecyclePassesActor(t *testing.T) {
	cs := &fakeConsultations{}
	app := newApp(cs, &fakePayments{})

	resp, _ := do(t, app, http.MethodPatch, "/api/v1/consultations/CON001/check-in", "", asNurse)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "nurse-7", cs.lastActor)

	resp, _ = do(t, app, http.MethodPatch, "/api/v1/consultations/CON001/cancel", "", asNurse)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, cs.lastReason)

	resp, _ = do(t, app, http.MethodPatch, "/api/v1/consultations/CON001/cancel", `{"reason":"patient unwell"}`, asNurse)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "patient unwell", cs.lastReason)
}

func TestConsultationErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"not found", consultation.ErrNotFound, http.StatusNotFound},
		{"invalid transition", consultation.ErrInvalidTransition, http.StatusConflict},
		{"reschedule gate", model.ErrRescheduleNotApproved, http.StatusConflict},
		{"validation", model.ErrValidation, http.StatusUnprocessableEntity},
		{"payment gate", consultation.ErrPaymentRequired, http.StatusPaymentRequired},
		{"busy", consultation.ErrBusy, http.StatusTooManyRequests},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&fakeConsultations{err: tt.err}, &fakePayments{})
			resp, body := do(t, app, http.MethodPatch, "/api/v1/consultations/CON001/start", "", asNurse)
			assert.Equal(t, tt.want, resp.StatusCode)
			assert.NotEmpty(t, body["error"])
		})
	}
}

func TestListReschedulesEmptyArray(t *testing.T) {
	app := newApp(&fakeConsultations{}, &fakePayments{})

	resp, body := do(t, app, http.MethodGet, "/api/v1/consultations/CON001/reschedules", "", asNurse)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, []any{}, body["data"])
}

func TestWebhookIsPublic(t *testing.T) {
	ps := &fakePayments{}
	app := newApp(&fakeConsultations{}, ps)

	resp, body := do(t, app, http.MethodPost, "/api/v1/payments/webhook", `{"response":"e30="}`,
		map[string]string{handler.HeaderVerify: "abc###1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "abc###1", ps.signature)
	assert.Equal(t, "SUCCESS", body["data"].(map[string]any)["state"])

	resp, _ = do(t, app, http.MethodPost, "/api/v1/payments/webhook", `{"response":"e30="}`, nil)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)
}

func TestPaymentErrorMapping(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"invalid signature", phonepe.ErrInvalidSignature, http.StatusUnauthorized},
		{"unknown transaction", payment.ErrPaymentNotFound, http.StatusNotFound},
		{"empty body", payment.ErrEmptyWebhook, http.StatusUnprocessableEntity},
		{"unexpected", errors.New("boom"), http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&fakeConsultations{}, &fakePayments{err: tt.err})
			resp, _ := do(t, app, http.MethodPost, "/api/v1/payments/webhook", `{"response":"e30="}`,
				map[string]string{handler.HeaderVerify: "abc###1"})
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}
}

func TestInitiateGatewayFailures(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want int
	}{
		{"network", &phonepe.NetworkError{StatusCode: http.StatusServiceUnavailable}, http.StatusBadGateway},
		{"declined", &phonepe.GatewayError{Code: "BAD_REQUEST", Message: "declined"}, http.StatusBadGateway},
		{"already paid", payment.ErrAlreadyPaid, http.StatusConflict},
		{"zero fee", payment.ErrNothingToPay, http.StatusUnprocessableEntity},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newApp(&fakeConsultations{}, &fakePayments{err: tt.err})
			resp, _ := do(t, app, http.MethodPost, "/api/v1/consultations/CON001/payments", `{"mobile":"9999999999"}`, asNurse)
			assert.Equal(t, tt.want, resp.StatusCode)
		})
	}

	app := newApp(&fakeConsultations{}, &fakePayments{})
	resp, body := do(t, app, http.MethodPost, "/api/v1/consultations/CON001/payments", `{"mobile":"9999999999"}`, asNurse)
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	assert.Equal(t, "PAY001", body["data"].(map[string]any)["id"])
}

func TestHealthEndpoints(t *testing.T) {
	app := newApp(&fakeConsultations{}, &fakePayments{})

	for _, path := range []string{"/livez", "/readyz", "/startupz"} {
		resp, _ := do(t, app, http.MethodGet, path, "", nil)
		assert.Equal(t, http.StatusOK, resp.StatusCode, path)
	}
}

func TestUnknownRouteUsesErrorEnvelope(t *testing.T) {
	app := newApp(&fakeConsultations{}, &fakePayments{})

	resp, body := do(t, app, http.MethodGet, "/api/v1/nope", "", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
	assert.NotEmpty(t, body["error"])
}
