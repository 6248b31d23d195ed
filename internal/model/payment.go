package model

import (
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// PaymentState is the gateway-side state of one payment attempt.
type PaymentState string

const (
	PaymentStatePending PaymentState = "PENDING"
	PaymentStateSuccess PaymentState = "SUCCESS"
	PaymentStateFailure PaymentState = "FAILURE"
)

func (s PaymentState) Final() bool {
	return s == PaymentStateSuccess || s == PaymentStateFailure
}

// PaymentMethodPhonePe is recorded on consultations paid through the gateway.
const PaymentMethodPhonePe = "phonepe"

// PaymentTransaction is one gateway checkout attempt for a consultation.
type PaymentTransaction struct {
	ID                    string          `json:"id"`
	MerchantTransactionID string          `json:"merchant_transaction_id"`
	ConsultationID        string          `json:"consultation_id"`
	Amount                decimal.Decimal `json:"amount"`
	AmountMinor           int64           `json:"amount_minor"`
	State                 PaymentState    `json:"state"`
	GatewayTransactionID  string          `json:"gateway_transaction_id,omitempty"`
	ResponseCode          string          `json:"response_code,omitempty"`
	RedirectURL           string          `json:"redirect_url,omitempty"`
	GatewayResponse       json.RawMessage `json:"gateway_response,omitempty"`
	CreatedAt             time.Time       `json:"created_at"`
	UpdatedAt             time.Time       `json:"updated_at"`
}

// NormalizeGatewayState folds the states and codes reported by the pay
// callback and the status API into PENDING, SUCCESS or FAILURE.
func NormalizeGatewayState(state, code string) PaymentState {
	switch strings.ToUpper(strings.TrimSpace(state)) {
	case "SUCCESS", "COMPLETED":
		return PaymentStateSuccess
	case "FAILURE", "FAILED":
		return PaymentStateFailure
	}
	switch strings.ToUpper(strings.TrimSpace(code)) {
	case "PAYMENT_SUCCESS":
		return PaymentStateSuccess
	case "PAYMENT_ERROR", "PAYMENT_DECLINED", "TIMED_OUT", "TRANSACTION_NOT_FOUND":
		return PaymentStateFailure
	}
	return PaymentStatePending
}

// ApplyPaymentState mirrors a gateway outcome onto the consultation's payment
// fields. A paid consultation is never downgraded. It reports whether
// anything changed.
func ApplyPaymentState(c *Consultation, state PaymentState, method string) bool {
	switch state {
	case PaymentStateSuccess:
		if c.IsPaid && c.PaymentStatus == PaymentPaid {
			return false
		}
		c.IsPaid = true
		c.PaymentStatus = PaymentPaid
		c.PaymentMethod = method
		return true
	case PaymentStateFailure:
		if c.IsPaid || c.PaymentStatus == PaymentFailed {
			return false
		}
		c.PaymentStatus = PaymentFailed
		return true
	}
	return false
}
