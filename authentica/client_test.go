package authentica

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"go-authentica/models"

	"github.com/stretchr/testify/require"
)

const testAPIKey = "test-api-key"

// newFakeAPI starts a server that checks the shared headers, decodes the
// request body into captured and answers with status and response.
func newFakeAPI(t *testing.T, wantMethod, wantPath string, status int, response any, captured *map[string]any) *Client {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != wantPath {
			t.Errorf("Expected path %s, got %s", wantPath, r.URL.Path)
		}
		if r.Method != wantMethod {
			t.Errorf("Expected %s method, got %s", wantMethod, r.Method)
		}
		if got := r.Header.Get("X-Authorization"); got != testAPIKey {
			t.Errorf("Expected X-Authorization %s, got %s", testAPIKey, got)
		}
		if got := r.Header.Get("Accept"); got != "application/json" {
			t.Errorf("Expected Accept application/json, got %s", got)
		}
		if captured != nil {
			if got := r.Header.Get("Content-Type"); got != "application/json" {
				t.Errorf("Expected Content-Type application/json, got %s", got)
			}
			if err := json.NewDecoder(r.Body).Decode(captured); err != nil {
				t.Errorf("failed to decode request body: %v", err)
			}
		}

		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(status)
		switch body := response.(type) {
		case nil:
		case string:
			_, _ = w.Write([]byte(body))
		default:
			_ = json.NewEncoder(w).Encode(body)
		}
	}))
	t.Cleanup(server.Close)

	return NewClient(server.URL+"/", testAPIKey)
}

func TestNewClient(t *testing.T) {
	client := NewClient("https://api.authentica.sa/", "key")

	require.Equal(t, "https://api.authentica.sa", client.baseURL)
	require.Equal(t, "key", client.apiKey)
	require.NotNil(t, client.httpClient)
	require.Equal(t, DefaultTimeout, client.httpClient.Timeout)
}

func TestNewClientOptions(t *testing.T) {
	transport := &http.Transport{}
	custom := &http.Client{Transport: transport, Timeout: time.Minute}
	client := NewClient("http://localhost", "key", WithHTTPClient(custom), WithTimeout(2*time.Second))

	require.Equal(t, 2*time.Second, client.httpClient.Timeout)
	require.Same(t, transport, client.httpClient.Transport)
	require.Equal(t, time.Minute, custom.Timeout, "shared client must keep its own timeout")
}

func TestNewClientOptionsWithoutTimeout(t *testing.T) {
	custom := &http.Client{}
	client := NewClient("http://localhost", "key", WithHTTPClient(custom))

	require.Same(t, custom, client.httpClient)
}

func TestBalance(t *testing.T) {
	tests := []struct {
		name     string
		response any
		want     any
	}{
		{"nested data balance", map[string]any{"data": map[string]any{"balance": 125.5}}, json.Number("125.5")},
		{"top level balance", map[string]any{"balance": 42}, json.Number("42")},
		{"whole body fallback", map[string]any{"credits": "n/a"}, map[string]any{"credits": "n/a"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			client := newFakeAPI(t, http.MethodGet, "/api/v2/balance", http.StatusOK, tt.response, nil)

			got, err := client.Balance(context.Background())
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestBalance_Unauthorized(t *testing.T) {
	client := newFakeAPI(t, http.MethodGet, "/api/v2/balance", http.StatusUnauthorized, map[string]any{"message": "bad key"}, nil)

	_, err := client.Balance(context.Background())

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnauthorized, apiErr.StatusCode)
	require.Equal(t, "bad key", apiErr.Body["message"])
}

func TestNewSendOTPRequest(t *testing.T) {
	tests := []struct {
		name      string
		method    string
		recipient string
		want      models.SendOTPRequest
		wantErr   error
	}{
		{"sms uses phone", "sms", "+966500000000", models.SendOTPRequest{Method: "sms", Phone: "+966500000000"}, nil},
		{"whatsapp uses phone", "whatsapp", "+966500000000", models.SendOTPRequest{Method: "whatsapp", Phone: "+966500000000"}, nil},
		{"email uses email", "email", "user@example.com", models.SendOTPRequest{Method: "email", Email: "user@example.com"}, nil},
		{"unknown method", "pigeon", "+966500000000", models.SendOTPRequest{}, ErrInvalidMethod},
		{"missing recipient", "sms", "", models.SendOTPRequest{}, ErrMissingRecipient},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := NewSendOTPRequest(tt.method, tt.recipient)
			if tt.wantErr != nil {
				require.ErrorIs(t, err, tt.wantErr)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestSendOTP(t *testing.T) {
	var captured map[string]any
	client := newFakeAPI(t, http.MethodPost, "/api/v2/send-otp", http.StatusOK, map[string]any{"success": true}, &captured)

	request, err := NewSendOTPRequest(MethodEmail, "user@example.com")
	require.NoError(t, err)
	require.NoError(t, client.SendOTP(context.Background(), request))

	require.Equal(t, map[string]any{"method": "email", "email": "user@example.com"}, captured)
}

func TestSendOTP_UpstreamError(t *testing.T) {
	var captured map[string]any
	client := newFakeAPI(t, http.MethodPost, "/api/v2/send-otp", http.StatusUnprocessableEntity, "not json", &captured)

	err := client.SendOTP(context.Background(), models.SendOTPRequest{Method: "sms", Phone: "+966500000000"})

	var apiErr *APIError
	require.ErrorAs(t, err, &apiErr)
	require.Equal(t, http.StatusUnprocessableEntity, apiErr.StatusCode)
	require.Empty(t, apiErr.Body)
}

func TestNewVerifyOTPRequest(t *testing.T) {
	byEmail, err := NewVerifyOTPRequest("user@example.com", "123456")
	require.NoError(t, err)
	require.Equal(t, models.VerifyOTPRequest{Email: "user@example.com", OTP: "123456"}, byEmail)

	byPhone, err := NewVerifyOTPRequest("+966500000000", "123456")
	require.NoError(t, err)
	require.Equal(t, models.VerifyOTPRequest{Phone: "+966500000000", OTP: "123456"}, byPhone)

	_, err = NewVerifyOTPRequest("+966500000000", "")
	require.ErrorIs(t, err, ErrMissingField)
}

func TestVerifyOTP(t *testing.T) {
	tests := []struct {
		name     string
		response any
		want     bool
	}{
		{"verified flag", map[string]any{"verified": false, "success": true}, false},
		{"success flag", map[string]any{"success": true}, true},
		{"no flags", map[string]any{}, true},
		{"empty body", nil, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var captured map[string]any
			client := newFakeAPI(t, http.MethodPost, "/api/v2/verify-otp", http.StatusOK, tt.response, &captured)

			got, err := client.VerifyOTP(context.Background(), models.VerifyOTPRequest{Phone: "+966500000000", OTP: "123456"})
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
			require.Equal(t, map[string]any{"phone": "+966500000000", "otp": "123456"}, captured)
		})
	}
}

func TestVerifyByFace(t *testing.T) {
	var captured map[string]any
	client := newFakeAPI(t, http.MethodPost, "/api/v2/verify-by-face", http.StatusOK, map[string]any{"match": true}, &captured)

	result, err := client.VerifyByFace(context.Background(), models.FaceVerificationRequest{
		UserId:              "demo",
		RegisteredFaceImage: "image1base64",
		QueryFaceImage:      "image2base64",
	})
	require.NoError(t, err)
	require.Equal(t, true, result["match"])
	require.Equal(t, map[string]any{
		"user_id":               "demo",
		"registered_face_image": "image1base64",
		"query_face_image":      "image2base64",
	}, captured)
}

func TestVerifyByFace_MissingImage(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", testAPIKey)

	_, err := client.VerifyByFace(context.Background(), models.FaceVerificationRequest{UserId: "demo", RegisteredFaceImage: "x"})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestVerifyByVoice(t *testing.T) {
	var captured map[string]any
	client := newFakeAPI(t, http.MethodPost, "/api/v2/verify-by-voice", http.StatusOK, map[string]any{"match": false}, &captured)

	result, err := client.VerifyByVoice(context.Background(), models.VoiceVerificationRequest{
		UserId:          "demo",
		RegisteredAudio: "audio1base64",
		QueryAudio:      "audio2base64",
	})
	require.NoError(t, err)
	require.Equal(t, false, result["match"])
	require.Equal(t, map[string]any{
		"user_id":          "demo",
		"registered_audio": "audio1base64",
		"query_audio":      "audio2base64",
	}, captured)
}

func TestSendSMS_NormalizesMessage(t *testing.T) {
	var captured map[string]any
	client := newFakeAPI(t, http.MethodPost, "/api/v2/send-sms", http.StatusOK, map[string]any{}, &captured)

	// "e" followed by a combining acute accent composes to a single rune under NFC
	err := client.SendSMS(context.Background(), models.SendSMSRequest{
		Phone:      "+966500000000",
		Message:    "Cafe\u0301",
		SenderName: "Sender",
	})
	require.NoError(t, err)
	require.Equal(t, map[string]any{
		"phone":       "+966500000000",
		"message":     "Caf\u00e9",
		"sender_name": "Sender",
	}, captured)
}

func TestSendSMS_MissingSender(t *testing.T) {
	client := NewClient("http://127.0.0.1:1", testAPIKey)

	err := client.SendSMS(context.Background(), models.SendSMSRequest{Phone: "+966500000000", Message: "hi"})
	require.ErrorIs(t, err, ErrMissingField)
}

func TestVerifyByNafath_RelaysNon2xx(t *testing.T) {
	var captured map[string]any
	client := newFakeAPI(t, http.MethodPost, "/api/v2/verify-by-nafath", http.StatusBadRequest, map[string]any{"message": "unknown user"}, &captured)

	resp, err := client.VerifyByNafath(context.Background(), "user-1")
	require.NoError(t, err)
	require.Equal(t, http.StatusBadRequest, resp.StatusCode)
	require.Equal(t, "unknown user", resp.Body["message"])
	require.Equal(t, map[string]any{"user_id": "user-1"}, captured)
}

func TestClient_NetworkError(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	url := server.URL
	server.Close()

	client := NewClient(url, testAPIKey)
	_, err := client.Balance(context.Background())
	require.Error(t, err)

	var apiErr *APIError
	require.False(t, errors.As(err, &apiErr))
	require.Contains(t, err.Error(), "failed to execute request")
}

func TestClient_ContextCancelled(t *testing.T) {
	client := newFakeAPI(t, http.MethodGet, "/api/v2/balance", http.StatusOK, map[string]any{}, nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := client.Balance(ctx)
	require.ErrorIs(t, err, context.Canceled)
}
