package payment

import (
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"errors"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Alijeyrad/teleconsult/internal/model"
	"github.com/Alijeyrad/teleconsult/internal/repo"
	"github.com/Alijeyrad/teleconsult/internal/repo/repotest"
	"github.com/Alijeyrad/teleconsult/internal/service/consultation"
	"github.com/Alijeyrad/teleconsult/pkg/events/eventstest"
	"github.com/Alijeyrad/teleconsult/pkg/phonepe"
)

const testSalt = "96434309-7796-489d-8924-ab56988a6076"

var fixedNow = time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)

type memDeduper struct {
	seen map[string]bool
	err  error
}

func (d *memDeduper) FirstSeen(_ context.Context, key string) (bool, error) {
	if d.err != nil {
		return false, d.err
	}
	if d.seen[key] {
		return false, nil
	}
	d.seen[key] = true
	return true, nil
}

func (d *memDeduper) Forget(_ context.Context, key string) error {
	delete(d.seen, key)
	return nil
}

// gatewayStub answers the pay and status endpoints.
type gatewayStub struct {
	payCalls    atomic.Int32
	statusCalls atomic.Int32
	status      map[string]any
	payStatus   int
	onPay       func()
}

func (g *gatewayStub) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	switch r.URL.Path {
	case phonepe.PayEndpoint:
		g.payCalls.Add(1)
		if g.onPay != nil {
			g.onPay()
		}
		if g.payStatus != 0 {
			w.WriteHeader(g.payStatus)
			return
		}
		_, _ = w.Write([]byte(`{"success":true,"code":"PAYMENT_INITIATED","message":"ok","data":{"instrumentResponse":{"type":"PAY_PAGE","redirectInfo":{"url":"https://pay.example/checkout","method":"GET"}}}}`))
	case phonepe.StatusEndpoint:
		g.statusCalls.Add(1)
		inner, _ := json.Marshal(g.status)
		resp, _ := json.Marshal(map[string]any{
			"success": true,
			"code":    "PAYMENT_SUCCESS",
			"data":    map[string]string{"response": base64.StdEncoding.EncodeToString(inner)},
		})
		_, _ = w.Write(resp)
	default:
		w.WriteHeader(http.StatusNotFound)
	}
}

type fixture struct {
	svc           Service
	consultations consultation.Service
	store         *repotest.Memory
	pub           *eventstest.Recorder
	stub          *gatewayStub
	dedupe        *memDeduper
}

func newFixture(t *testing.T) *fixture {
	t.Helper()

	stub := &gatewayStub{}
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)

	gw := phonepe.New(phonepe.Credentials{
		Environment: "sandbox",
		MerchantID:  "PGTESTPAYUAT86",
		SaltKey:     testSalt,
		SaltIndex:   "1",
		BaseURL:     srv.URL,
	},
		"https://api.example.com/api/v1/payments/webhook",
		"https://app.example.com/return",
		phonepe.WithTxnSuffix(func() string { return "ABCD1234" }),
	)

	f := &fixture{
		store:  repotest.NewMemory(),
		pub:    &eventstest.Recorder{},
		stub:   stub,
		dedupe: &memDeduper{seen: map[string]bool{}},
	}
	sm := model.NewStateMachine(time.UTC, time.Hour, func() time.Time { return fixedNow })
	f.consultations = consultation.New(f.store, sm, nil, f.pub, nil, consultation.Options{})
	f.svc = New(f.store, f.consultations, gw, f.dedupe, f.pub, nil, Options{
		Now: func() time.Time { return fixedNow },
	})

	c := model.NewConsultation("patient-1", "doctor-1",
		model.Date{Year: 2024, Month: time.March, Day: 11},
		model.TimeOfDay{Hour: 10, Minute: 30},
		decimal.RequireFromString("499.99"))
	c.ID = "CON001"
	f.store.Put(c)

	return f
}

func (f *fixture) initiate(t *testing.T) *model.PaymentTransaction {
	t.Helper()
	p, err := f.svc.Initiate(context.Background(), "CON001", InitiateRequest{
		Mobile: "+91 98765 43210",
		Email:  "patient@example.com",
	})
	require.NoError(t, err)
	f.pub.Reset()
	return p
}

func signedWebhook(t *testing.T, fields map[string]any) ([]byte, string) {
	t.Helper()
	inner, err := json.Marshal(fields)
	require.NoError(t, err)
	b64 := base64.StdEncoding.EncodeToString(inner)
	sum := sha256.Sum256([]byte(b64 + testSalt))
	body, err := json.Marshal(map[string]string{"response": b64})
	require.NoError(t, err)
	return body, hex.EncodeToString(sum[:]) + "###1"
}

func tamper(sig string) string {
	first := "0"
	if sig[0] == '0' {
		first = "1"
	}
	return first + sig[1:]
}

func TestInitiate(t *testing.T) {
	f := newFixture(t)

	p, err := f.svc.Initiate(context.Background(), "CON001", InitiateRequest{Mobile: "9876543210"})
	require.NoError(t, err)

	assert.Equal(t, "PAY001", p.ID)
	assert.Equal(t, "TXNPAY001ABCD1234", p.MerchantTransactionID)
	assert.Equal(t, int64(49999), p.AmountMinor)
	assert.Equal(t, model.PaymentStatePending, p.State)
	assert.Equal(t, "https://pay.example/checkout", p.RedirectURL)

	stored, err := f.store.GetPaymentTransaction(context.Background(), "TXNPAY001ABCD1234")
	require.NoError(t, err)
	assert.Equal(t, "CON001", stored.ConsultationID)
	assert.Equal(t, []string{"teleconsult.payment.PENDING.TXNPAY001ABCD1234"}, f.pub.Subjects())
}

func TestInitiateRejections(t *testing.T) {
	t.Run("missing mobile", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Initiate(context.Background(), "CON001", InitiateRequest{})
		assert.ErrorIs(t, err, model.ErrValidation)
	})

	t.Run("unknown consultation", func(t *testing.T) {
		f := newFixture(t)
		_, err := f.svc.Initiate(context.Background(), "CON404", InitiateRequest{Mobile: "9876543210"})
		assert.ErrorIs(t, err, consultation.ErrNotFound)
	})

	t.Run("already paid", func(t *testing.T) {
		f := newFixture(t)
		c, _ := f.store.GetConsultation(context.Background(), "CON001")
		c.IsPaid = true
		f.store.Put(c)

		_, err := f.svc.Initiate(context.Background(), "CON001", InitiateRequest{Mobile: "9876543210"})
		assert.ErrorIs(t, err, ErrAlreadyPaid)
		assert.Zero(t, f.stub.payCalls.Load())
	})

	t.Run("cancelled", func(t *testing.T) {
		f := newFixture(t)
		c, _ := f.store.GetConsultation(context.Background(), "CON001")
		c.Status = model.StatusCancelled
		f.store.Put(c)

		_, err := f.svc.Initiate(context.Background(), "CON001", InitiateRequest{Mobile: "9876543210"})
		assert.ErrorIs(t, err, ErrNotPayable)
	})

	t.Run("cancelled during gateway call", func(t *testing.T) {
		f := newFixture(t)
		f.stub.onPay = func() {
			_, err := f.consultations.Cancel(context.Background(), "CON001", "patient-1", "changed plans")
			assert.NoError(t, err)
		}

		_, err := f.svc.Initiate(context.Background(), "CON001", InitiateRequest{Mobile: "9876543210"})
		assert.ErrorIs(t, err, ErrNotPayable)
		assert.EqualValues(t, 1, f.stub.payCalls.Load())

		_, err = f.store.GetPaymentTransaction(context.Background(), "TXNPAY001ABCD1234")
		assert.ErrorIs(t, err, repo.ErrNotFound)
		assert.NotContains(t, f.pub.Subjects(), "teleconsult.payment.PENDING.TXNPAY001ABCD1234")
	})

	t.Run("gateway unavailable", func(t *testing.T) {
		f := newFixture(t)
		f.stub.payStatus = http.StatusBadGateway

		_, err := f.svc.Initiate(context.Background(), "CON001", InitiateRequest{Mobile: "9876543210"})
		assert.ErrorIs(t, err, phonepe.ErrNetwork)
		assert.Empty(t, f.pub.Subjects())
	})
}

func TestWebhookSuccessIssuesReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	body, sig := signedWebhook(t, map[string]any{
		"code": "PAYMENT_SUCCESS",
		"data": map[string]any{
			"merchantTransactionId": p.MerchantTransactionID,
			"transactionId":         "T2403101200",
			"state":                 "COMPLETED",
			"responseCode":          "SUCCESS",
		},
	})

	out, err := f.svc.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStateSuccess, out.State)
	assert.False(t, out.Duplicate)

	stored, _ := f.store.GetPaymentTransaction(ctx, p.MerchantTransactionID)
	assert.Equal(t, model.PaymentStateSuccess, stored.State)
	assert.Equal(t, "T2403101200", stored.GatewayTransactionID)
	assert.Equal(t, "SUCCESS", stored.ResponseCode)

	c, _ := f.store.GetConsultation(ctx, "CON001")
	assert.True(t, c.IsPaid)
	assert.Equal(t, model.PaymentPaid, c.PaymentStatus)
	assert.Equal(t, model.PaymentMethodPhonePe, c.PaymentMethod)

	r, err := f.svc.GetReceipt(ctx, "CON001")
	require.NoError(t, err)
	assert.Equal(t, "RCP000001", r.Number)
	assert.Equal(t, SystemActor, r.IssuedBy)
	assert.Contains(t, string(r.Content), "₹499.99")

	assert.Equal(t, []string{
		"teleconsult.receipt.issued.CON001",
		"teleconsult.payment.SUCCESS." + p.MerchantTransactionID,
	}, f.pub.Subjects())
}

func TestWebhookDuplicateIsSkipped(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	body, sig := signedWebhook(t, map[string]any{
		"merchantTransactionId": p.MerchantTransactionID,
		"state":                 "FAILED",
		"code":                  "PAYMENT_ERROR",
	})

	_, err := f.svc.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)

	out, err := f.svc.HandleWebhook(ctx, body, sig)
	require.NoError(t, err)
	assert.True(t, out.Duplicate)
	assert.Len(t, f.pub.Subjects(), 1)

	c, _ := f.store.GetConsultation(ctx, "CON001")
	assert.Equal(t, model.PaymentFailed, c.PaymentStatus)
	assert.False(t, c.IsPaid)
}

func TestWebhookRawBase64Body(t *testing.T) {
	f := newFixture(t)
	p := f.initiate(t)

	inner, _ := json.Marshal(map[string]any{
		"merchantTransactionId": p.MerchantTransactionID,
		"state":                 "SUCCESS",
	})
	b64 := base64.StdEncoding.EncodeToString(inner)
	sum := sha256.Sum256([]byte(b64 + testSalt))

	out, err := f.svc.HandleWebhook(context.Background(), []byte(b64+"\n"), hex.EncodeToString(sum[:])+"###1")
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStateSuccess, out.State)
}

func TestWebhookInvalidSignature(t *testing.T) {
	f := newFixture(t)
	p := f.initiate(t)

	body, sig := signedWebhook(t, map[string]any{
		"merchantTransactionId": p.MerchantTransactionID,
		"state":                 "SUCCESS",
	})

	_, err := f.svc.HandleWebhook(context.Background(), body, tamper(sig))
	require.ErrorIs(t, err, phonepe.ErrInvalidSignature)

	c, _ := f.store.GetConsultation(context.Background(), "CON001")
	assert.False(t, c.IsPaid)
	assert.Empty(t, f.dedupe.seen)
}

func TestWebhookEmptyBody(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.HandleWebhook(context.Background(), []byte(`{"other":"x"}`), "abc###1")
	assert.ErrorIs(t, err, ErrEmptyWebhook)
}

func TestWebhookUnknownTransactionCanBeRetried(t *testing.T) {
	f := newFixture(t)

	body, sig := signedWebhook(t, map[string]any{
		"merchantTransactionId": "TXNPAY999FFFF0000",
		"state":                 "SUCCESS",
	})

	_, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.ErrorIs(t, err, ErrPaymentNotFound)
	assert.Empty(t, f.dedupe.seen)
}

func TestWebhookDedupeOutageStillProcesses(t *testing.T) {
	f := newFixture(t)
	p := f.initiate(t)
	f.dedupe.err = errors.New("redis down")

	body, sig := signedWebhook(t, map[string]any{
		"merchantTransactionId": p.MerchantTransactionID,
		"state":                 "SUCCESS",
	})

	out, err := f.svc.HandleWebhook(context.Background(), body, sig)
	require.NoError(t, err)
	assert.False(t, out.Duplicate)
}

func TestSuccessIsNeverDowngraded(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	ok, sigOK := signedWebhook(t, map[string]any{"merchantTransactionId": p.MerchantTransactionID, "state": "SUCCESS"})
	_, err := f.svc.HandleWebhook(ctx, ok, sigOK)
	require.NoError(t, err)

	failed, sigFailed := signedWebhook(t, map[string]any{"merchantTransactionId": p.MerchantTransactionID, "state": "FAILED"})
	_, err = f.svc.HandleWebhook(ctx, failed, sigFailed)
	require.NoError(t, err)

	stored, _ := f.store.GetPaymentTransaction(ctx, p.MerchantTransactionID)
	assert.Equal(t, model.PaymentStateSuccess, stored.State)
	c, _ := f.store.GetConsultation(ctx, "CON001")
	assert.True(t, c.IsPaid)
}

func TestCheckStatus(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	p := f.initiate(t)

	f.stub.status = map[string]any{
		"code":          "PAYMENT_SUCCESS",
		"transactionId": "T999",
	}

	got, err := f.svc.CheckStatus(ctx, p.MerchantTransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStateSuccess, got.State)
	assert.Equal(t, "T999", got.GatewayTransactionID)

	// Final transactions are not polled again.
	_, err = f.svc.CheckStatus(ctx, p.MerchantTransactionID)
	require.NoError(t, err)
	assert.Equal(t, int32(1), f.stub.statusCalls.Load())

	_, err = f.svc.GetReceipt(ctx, "CON001")
	assert.NoError(t, err)
}

func TestCheckStatusPendingLeavesTransaction(t *testing.T) {
	f := newFixture(t)
	p := f.initiate(t)
	f.stub.status = map[string]any{"code": "PAYMENT_PENDING", "state": "PENDING"}

	got, err := f.svc.CheckStatus(context.Background(), p.MerchantTransactionID)
	require.NoError(t, err)
	assert.Equal(t, model.PaymentStatePending, got.State)
	assert.Empty(t, f.pub.Subjects())
}

func TestCheckStatusUnknown(t *testing.T) {
	f := newFixture(t)
	_, err := f.svc.CheckStatus(context.Background(), "TXNNOPE")
	assert.ErrorIs(t, err, ErrPaymentNotFound)
}

func TestIssueReceipt(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.IssueReceipt(ctx, "CON001", "admin")
	require.ErrorIs(t, err, ErrNotPaid)

	_, err = f.svc.GetReceipt(ctx, "CON001")
	require.ErrorIs(t, err, ErrReceiptNotFound)

	c, _ := f.store.GetConsultation(ctx, "CON001")
	c.IsPaid = true
	c.PaymentStatus = model.PaymentPaid
	c.PaymentMethod = "cash"
	f.store.Put(c)

	r1, err := f.svc.IssueReceipt(ctx, "CON001", "admin")
	require.NoError(t, err)
	r2, err := f.svc.IssueReceipt(ctx, "CON001", "someone-else")
	require.NoError(t, err)

	assert.Equal(t, r1.Number, r2.Number)
	assert.Equal(t, "admin", r2.IssuedBy)
	assert.Equal(t, "cash", r1.PaymentMethod)
}

func TestWebhookPayload(t *testing.T) {
	assert.Equal(t, "abc=", webhookPayload([]byte(`{"response":" abc= "}`)))
	assert.Equal(t, "abc=", webhookPayload([]byte("  abc=\n")))
	assert.Equal(t, "", webhookPayload([]byte(`{"response":`)))
}
