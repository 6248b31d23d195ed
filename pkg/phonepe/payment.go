package phonepe

import (
	"context"
	"fmt"

	"github.com/goccy/go-json"
	"github.com/shopspring/decimal"
)

// Payment states reported by the gateway.
const (
	StatePending = "PENDING"
	StateSuccess = "SUCCESS"
	StateFailure = "FAILURE"
)

var hundred = decimal.NewFromInt(100)

// MinorUnits converts a major-unit amount to paise, rounding half away from zero.
func MinorUnits(amount decimal.Decimal) int64 {
	return amount.Mul(hundred).Round(0).IntPart()
}

// Customer identifies the payer. Email, when set, is preferred over Mobile as
// the merchant user ID.
type Customer struct {
	Mobile string
	Email  string
	Name   string
}

type paymentInstrument struct {
	Type string `json:"type"`
}

// Field order matters: the encoded payload is signed as-is.
type payRequest struct {
	MerchantID            string            `json:"merchantId"`
	MerchantTransactionID string            `json:"merchantTransactionId"`
	MerchantUserID        string            `json:"merchantUserId"`
	Amount                int64             `json:"amount"`
	RedirectURL           string            `json:"redirectUrl"`
	RedirectMode          string            `json:"redirectMode"`
	CallbackURL           string            `json:"callbackUrl"`
	MobileNumber          string            `json:"mobileNumber"`
	PaymentInstrument     paymentInstrument `json:"paymentInstrument"`
	AdditionalInfo        map[string]any    `json:"additionalInfo,omitempty"`
}

type InitiateResult struct {
	// TransactionID is the merchant transaction ID generated for this attempt.
	TransactionID string
	// RedirectURL is the hosted pay page the customer must be sent to.
	RedirectURL string
	AmountMinor int64
	Raw         json.RawMessage
}

// InitiatePayment registers a pay-page checkout for paymentID.
func (c *Client) InitiatePayment(ctx context.Context, paymentID string, amount decimal.Decimal, customer Customer, extra map[string]any) (*InitiateResult, error) {
	txnID := "TXN" + paymentID + c.suffix()
	mobile := c.normalizeMobile(customer.Mobile)

	userID := mobile
	if customer.Email != "" {
		userID = customer.Email
	}

	payload := payRequest{
		MerchantID:            c.creds.MerchantID,
		MerchantTransactionID: txnID,
		MerchantUserID:        userID,
		Amount:                MinorUnits(amount),
		RedirectURL:           c.redirectURL + "?transaction_id=" + txnID,
		RedirectMode:          "REDIRECT",
		CallbackURL:           c.callbackURL,
		MobileNumber:          mobile,
		PaymentInstrument:     paymentInstrument{Type: "PAY_PAGE"},
	}
	if len(extra) > 0 {
		payload.AdditionalInfo = extra
	}

	encoded, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("phonepe initiate: %w", err)
	}

	resp, raw, err := c.post(ctx, PayEndpoint, encoded, nil)
	if err != nil {
		return nil, fmt.Errorf("phonepe initiate: %w", err)
	}

	if !resp.Success || !resp.hasData() {
		msg := resp.Message
		if msg == "" {
			msg = "payment initiation failed"
		}
		return nil, &GatewayError{Code: resp.Code, Message: msg, Raw: raw}
	}

	var data struct {
		InstrumentResponse struct {
			RedirectInfo struct {
				URL string `json:"url"`
			} `json:"redirectInfo"`
		} `json:"instrumentResponse"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil {
		return nil, fmt.Errorf("phonepe initiate: decode data: %w", err)
	}

	return &InitiateResult{
		TransactionID: txnID,
		RedirectURL:   data.InstrumentResponse.RedirectInfo.URL,
		AmountMinor:   payload.Amount,
		Raw:           raw,
	}, nil
}

type StatusResult struct {
	Code          string
	State         string
	TransactionID string
	// Decoded is the base64-decoded inner response.
	Decoded json.RawMessage
	Raw     json.RawMessage
}

// CheckPaymentStatus polls the gateway for merchantTxnID.
func (c *Client) CheckPaymentStatus(ctx context.Context, merchantTxnID string) (*StatusResult, error) {
	payload := struct {
		MerchantID            string `json:"merchantId"`
		MerchantTransactionID string `json:"merchantTransactionId"`
	}{c.creds.MerchantID, merchantTxnID}

	encoded, err := encodePayload(payload)
	if err != nil {
		return nil, fmt.Errorf("phonepe status: %w", err)
	}

	resp, raw, err := c.post(ctx, StatusEndpoint, encoded, map[string]string{
		"X-MERCHANT-ID": c.creds.MerchantID,
	})
	if err != nil {
		return nil, fmt.Errorf("phonepe status: %w", err)
	}

	if !resp.Success || !resp.hasData() {
		return nil, ErrUndecodableStatus
	}

	var data struct {
		Response string `json:"response"`
	}
	if err := json.Unmarshal(resp.Data, &data); err != nil || data.Response == "" {
		return nil, ErrUndecodableStatus
	}

	var decoded struct {
		Code          string `json:"code"`
		State         string `json:"state"`
		TransactionID string `json:"transactionId"`
	}
	var inner json.RawMessage
	if err := decodePayload(data.Response, &inner); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableStatus, err)
	}
	if err := json.Unmarshal(inner, &decoded); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrUndecodableStatus, err)
	}

	return &StatusResult{
		Code:          decoded.Code,
		State:         decoded.State,
		TransactionID: decoded.TransactionID,
		Decoded:       inner,
		Raw:           raw,
	}, nil
}
