// Package phonepe provides a minimal HTTP client for the PhonePe PG v1 checkout API.
package phonepe

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/nyaruka/phonenumbers"
)

const (
	PayEndpoint    = "/pg/v1/pay"
	StatusEndpoint = "/pg/v1/status"

	SandboxBaseURL    = "https://api-preprod.phonepe.com/apis/pg-sandbox"
	ProductionBaseURL = "https://api.phonepe.com/apis/hermes"

	signatureSeparator = "###"
)

// Credentials is the merchant identity for one gateway environment.
type Credentials struct {
	Environment string
	MerchantID  string
	SaltKey     string
	SaltIndex   string
	BaseURL     string
}

// Client is a lightweight PhonePe HTTP client. It holds no per-transaction
// state and is safe for concurrent use.
type Client struct {
	creds       Credentials
	callbackURL string
	redirectURL string
	region      string
	httpClient  *http.Client
	suffix      func() string
}

type Option func(*Client)

// WithHTTPClient replaces the default 30s-timeout client.
func WithHTTPClient(hc *http.Client) Option {
	return func(c *Client) { c.httpClient = hc }
}

// WithRegion sets the region used to normalize customer mobile numbers.
func WithRegion(region string) Option {
	return func(c *Client) { c.region = region }
}

// WithTxnSuffix overrides the random 8-char suffix of merchant transaction IDs.
func WithTxnSuffix(fn func() string) Option {
	return func(c *Client) { c.suffix = fn }
}

// New creates a Client for the given credentials. An empty BaseURL falls back
// to the sandbox host.
func New(creds Credentials, callbackURL, redirectURL string, opts ...Option) *Client {
	if creds.BaseURL == "" {
		creds.BaseURL = SandboxBaseURL
	}
	creds.BaseURL = strings.TrimRight(creds.BaseURL, "/")
	if creds.SaltIndex == "" {
		creds.SaltIndex = "1"
	}

	c := &Client{
		creds:       creds,
		callbackURL: callbackURL,
		redirectURL: redirectURL,
		region:      "IN",
		httpClient:  &http.Client{Timeout: 30 * time.Second},
		suffix:      randomSuffix,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

func (c *Client) Environment() string { return c.creds.Environment }

func (c *Client) MerchantID() string { return c.creds.MerchantID }

// Sign computes the X-VERIFY header for an outbound request:
// hex(sha256(payload + endpoint + saltKey)) + "###" + saltIndex.
func (c *Client) Sign(payloadB64, endpoint string) string {
	sum := sha256.Sum256([]byte(payloadB64 + endpoint + c.creds.SaltKey))
	return hex.EncodeToString(sum[:]) + signatureSeparator + c.creds.SaltIndex
}

// encodePayload renders v as compact JSON without HTML escaping and base64
// encodes the result.
func encodePayload(v any) (string, error) {
	b, err := json.MarshalNoEscape(v)
	if err != nil {
		return "", fmt.Errorf("marshal payload: %w", err)
	}
	return base64.StdEncoding.EncodeToString(b), nil
}

func decodePayload(b64 string, out any) error {
	raw, err := base64.StdEncoding.DecodeString(strings.TrimSpace(b64))
	if err != nil {
		return fmt.Errorf("decode base64: %w", err)
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return fmt.Errorf("decode json: %w", err)
	}
	return nil
}

type envelope struct {
	Request string `json:"request"`
}

// apiResponse is the common outer shape of every gateway reply.
type apiResponse struct {
	Success bool            `json:"success"`
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Data    json.RawMessage `json:"data"`
}

func (r apiResponse) hasData() bool {
	d := bytes.TrimSpace(r.Data)
	return len(d) > 0 && !bytes.Equal(d, []byte("null"))
}

// post sends the signed envelope to baseURL+endpoint. Transport failures and
// non-2xx answers become *NetworkError; the raw body is returned with the
// decoded outer response.
func (c *Client) post(ctx context.Context, endpoint, payloadB64 string, headers map[string]string) (apiResponse, []byte, error) {
	var out apiResponse

	body, err := json.Marshal(envelope{Request: payloadB64})
	if err != nil {
		return out, nil, fmt.Errorf("marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.creds.BaseURL+endpoint, bytes.NewReader(body))
	if err != nil {
		return out, nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("X-VERIFY", c.Sign(payloadB64, endpoint))
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	res, err := c.httpClient.Do(req)
	if err != nil {
		return out, nil, &NetworkError{Err: err}
	}
	defer res.Body.Close()

	raw, err := io.ReadAll(res.Body)
	if err != nil {
		return out, nil, &NetworkError{Err: err}
	}
	if res.StatusCode < 200 || res.StatusCode > 299 {
		return out, raw, &NetworkError{StatusCode: res.StatusCode}
	}

	if err := json.Unmarshal(raw, &out); err != nil {
		return out, raw, fmt.Errorf("decode response: %w", err)
	}
	return out, raw, nil
}

// normalizeMobile reduces a customer number to its national significant
// digits. Numbers that do not parse are sent unchanged.
func (c *Client) normalizeMobile(mobile string) string {
	mobile = strings.TrimSpace(mobile)
	if mobile == "" {
		return ""
	}
	num, err := phonenumbers.Parse(mobile, c.region)
	if err != nil {
		return mobile
	}
	return strconv.FormatUint(num.GetNationalNumber(), 10)
}

func randomSuffix() string {
	return strings.ToUpper(strings.ReplaceAll(uuid.NewString(), "-", "")[:8])
}
