package phonepe

import (
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"fmt"
	"strings"

	"github.com/goccy/go-json"
)

type WebhookResult struct {
	TransactionID         string
	MerchantTransactionID string
	State                 string
	Code                  string
	ResponseCode          string
	Raw                   json.RawMessage
}

// VerifyWebhookSignature checks header against sha256(raw + saltKey). The
// header must be exactly "<hash>###<index>".
func (c *Client) VerifyWebhookSignature(raw, header string) bool {
	parts := strings.Split(header, signatureSeparator)
	if len(parts) != 2 {
		return false
	}
	sum := sha256.Sum256([]byte(raw + c.creds.SaltKey))
	expected := hex.EncodeToString(sum[:])
	return subtle.ConstantTimeCompare([]byte(expected), []byte(parts[0])) == 1
}

// ProcessWebhook verifies and decodes a base64 callback body. Nothing is
// decoded when the signature does not match.
func (c *Client) ProcessWebhook(raw, header string) (*WebhookResult, error) {
	if !c.VerifyWebhookSignature(raw, header) {
		return nil, ErrInvalidSignature
	}

	var fields map[string]any
	if err := decodePayload(raw, &fields); err != nil {
		return nil, fmt.Errorf("phonepe webhook: %w", err)
	}
	return c.ProcessDecodedWebhook(fields), nil
}

// ProcessDecodedWebhook normalizes an already-decoded callback without any
// signature check. Callers must have authenticated fields themselves.
func (c *Client) ProcessDecodedWebhook(fields map[string]any) *WebhookResult {
	// Some callbacks nest the transaction under "data".
	src := fields
	if nested, ok := fields["data"].(map[string]any); ok && stringField(fields, "merchantTransactionId") == "" {
		src = nested
	}

	raw, _ := json.Marshal(fields)

	res := &WebhookResult{
		TransactionID:         stringField(src, "transactionId"),
		MerchantTransactionID: stringField(src, "merchantTransactionId"),
		State:                 stringField(src, "state"),
		Code:                  stringField(fields, "code"),
		ResponseCode:          stringField(src, "responseCode"),
		Raw:                   raw,
	}
	if res.Code == "" {
		res.Code = stringField(src, "code")
	}
	return res
}

func stringField(m map[string]any, key string) string {
	switch v := m[key].(type) {
	case nil:
		return ""
	case string:
		return v
	default:
		return fmt.Sprint(v)
	}
}
