// Package authentica is a thin client for the Authentica identity, OTP and SMS API.
// Every call is a single request/response with no retries.
package authentica

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"go-authentica/models"

	"golang.org/x/text/unicode/norm"
)

const DefaultTimeout = 30 * time.Second

const (
	pathBalance         = "/api/v2/balance"
	pathSendOTP         = "/api/v2/send-otp"
	pathVerifyOTP       = "/api/v2/verify-otp"
	pathVerifyByFace    = "/api/v2/verify-by-face"
	pathVerifyByVoice   = "/api/v2/verify-by-voice"
	pathSendSMS         = "/api/v2/send-sms"
	pathVerifyByNafath  = "/api/v2/verify-by-nafath"
	headerAuthorization = "X-Authorization"
)

const (
	MethodSMS      = "sms"
	MethodWhatsApp = "whatsapp"
	MethodEmail    = "email"
)

var (
	ErrInvalidMethod    = errors.New("otp method must be sms, whatsapp or email")
	ErrMissingRecipient = errors.New("recipient is required")
	ErrMissingField     = errors.New("required field is empty")
)

// Response is the upstream status code and its decoded JSON object.
// A body that is not a JSON object decodes to an empty map.
type Response struct {
	StatusCode int
	Body       map[string]any
}

// APIError is returned when the upstream API answers with a non-2xx status.
type APIError struct {
	StatusCode int
	Body       map[string]any
}

func (e *APIError) Error() string {
	return fmt.Sprintf("authentica request failed with status %d: %v", e.StatusCode, e.Body)
}

type Client struct {
	baseURL    string
	apiKey     string
	httpClient *http.Client
}

type Option func(*Client)

func WithHTTPClient(httpClient *http.Client) Option {
	return func(c *Client) {
		c.httpClient = httpClient
	}
}

// WithTimeout sets the request timeout on a copy of the current HTTP client,
// so a client passed through WithHTTPClient is left untouched.
func WithTimeout(timeout time.Duration) Option {
	return func(c *Client) {
		httpClient := *c.httpClient
		httpClient.Timeout = timeout
		c.httpClient = &httpClient
	}
}

// NewClient creates a client for baseURL, authenticating every call with apiKey
func NewClient(baseURL, apiKey string, opts ...Option) *Client {
	c := &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		apiKey:  apiKey,
		httpClient: &http.Client{
			Timeout: DefaultTimeout,
		},
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Balance returns the remaining balance. The value is taken from data.balance,
// then balance, and falls back to the whole body when neither is present.
func (c *Client) Balance(ctx context.Context) (any, error) {
	resp, err := c.call(ctx, http.MethodGet, pathBalance, nil)
	if err != nil {
		return nil, err
	}

	if data, ok := resp.Body["data"].(map[string]any); ok {
		if balance, ok := data["balance"]; ok && balance != nil {
			return balance, nil
		}
	}
	if balance, ok := resp.Body["balance"]; ok && balance != nil {
		return balance, nil
	}
	return resp.Body, nil
}

// NewSendOTPRequest builds the body for an OTP delivery. The email method
// addresses the recipient as an email, every other method as a phone number.
func NewSendOTPRequest(method, recipient string) (models.SendOTPRequest, error) {
	if recipient == "" {
		return models.SendOTPRequest{}, ErrMissingRecipient
	}
	switch method {
	case MethodEmail:
		return models.SendOTPRequest{Method: method, Email: recipient}, nil
	case MethodSMS, MethodWhatsApp:
		return models.SendOTPRequest{Method: method, Phone: recipient}, nil
	default:
		return models.SendOTPRequest{}, fmt.Errorf("%w: %q", ErrInvalidMethod, method)
	}
}

func (c *Client) SendOTP(ctx context.Context, request models.SendOTPRequest) error {
	_, err := c.call(ctx, http.MethodPost, pathSendOTP, request)
	return err
}

// NewVerifyOTPRequest treats a recipient containing "@" as an email address.
func NewVerifyOTPRequest(recipient, otp string) (models.VerifyOTPRequest, error) {
	if recipient == "" {
		return models.VerifyOTPRequest{}, ErrMissingRecipient
	}
	if otp == "" {
		return models.VerifyOTPRequest{}, fmt.Errorf("%w: otp", ErrMissingField)
	}
	if strings.Contains(recipient, "@") {
		return models.VerifyOTPRequest{Email: recipient, OTP: otp}, nil
	}
	return models.VerifyOTPRequest{Phone: recipient, OTP: otp}, nil
}

// VerifyOTP reports the verified flag, falling back to success. A 2xx answer
// with neither field counts as verified.
func (c *Client) VerifyOTP(ctx context.Context, request models.VerifyOTPRequest) (bool, error) {
	resp, err := c.call(ctx, http.MethodPost, pathVerifyOTP, request)
	if err != nil {
		return false, err
	}

	for _, key := range []string{"verified", "success"} {
		if v, ok := resp.Body[key].(bool); ok {
			return v, nil
		}
	}
	return true, nil
}

func (c *Client) VerifyByFace(ctx context.Context, request models.FaceVerificationRequest) (map[string]any, error) {
	if request.RegisteredFaceImage == "" || request.QueryFaceImage == "" {
		return nil, fmt.Errorf("%w: both face images are required", ErrMissingField)
	}
	resp, err := c.call(ctx, http.MethodPost, pathVerifyByFace, request)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

func (c *Client) VerifyByVoice(ctx context.Context, request models.VoiceVerificationRequest) (map[string]any, error) {
	if request.RegisteredAudio == "" || request.QueryAudio == "" {
		return nil, fmt.Errorf("%w: both audio samples are required", ErrMissingField)
	}
	resp, err := c.call(ctx, http.MethodPost, pathVerifyByVoice, request)
	if err != nil {
		return nil, err
	}
	return resp.Body, nil
}

// SendSMS sends a custom message from a registered sender name. The message is
// NFC normalized so composed and decomposed Arabic input bill the same.
func (c *Client) SendSMS(ctx context.Context, request models.SendSMSRequest) error {
	if request.Phone == "" || request.Message == "" || request.SenderName == "" {
		return fmt.Errorf("%w: phone, message and sender_name are required", ErrMissingField)
	}
	request.Message = norm.NFC.String(request.Message)

	_, err := c.call(ctx, http.MethodPost, pathSendSMS, request)
	return err
}

// VerifyByNafath starts a Nafath verification. Unlike the other calls a non-2xx
// status is not an error: the response is meant to be relayed as is.
func (c *Client) VerifyByNafath(ctx context.Context, userId string) (*Response, error) {
	return c.do(ctx, http.MethodPost, pathVerifyByNafath, models.NafathInitRequest{UserId: userId})
}

// call performs the request and turns a non-2xx status into an *APIError
func (c *Client) call(ctx context.Context, method, path string, payload any) (*Response, error) {
	resp, err := c.do(ctx, method, path, payload)
	if err != nil {
		return nil, err
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return nil, &APIError{StatusCode: resp.StatusCode, Body: resp.Body}
	}
	return resp, nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (*Response, error) {
	url := c.baseURL + path

	var body io.Reader
	if payload != nil {
		jsonData, err := json.Marshal(payload)
		if err != nil {
			return nil, fmt.Errorf("failed to marshal request for %s: %w", path, err)
		}
		body = bytes.NewReader(jsonData)
	}

	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return nil, fmt.Errorf("failed to create request for %s: %w", path, err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set(headerAuthorization, c.apiKey)
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to execute request for %s: %w", path, err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read response for %s: %w", path, err)
	}

	slog.Debug("Authentica request completed", "method", method, "path", path, "status_code", resp.StatusCode)
	return &Response{
		StatusCode: resp.StatusCode,
		Body:       decodeBody(raw),
	}, nil
}

func decodeBody(raw []byte) map[string]any {
	decoded := map[string]any{}
	if len(bytes.TrimSpace(raw)) == 0 {
		return decoded
	}

	dec := json.NewDecoder(bytes.NewReader(raw))
	dec.UseNumber()
	if err := dec.Decode(&decoded); err != nil || decoded == nil {
		slog.Debug("Authentica response is not a JSON object", "error", err)
		return map[string]any{}
	}
	return decoded
}
