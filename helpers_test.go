package main

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"

	"go-authentica/authentica"
	"go-authentica/config"
	"go-authentica/metrics"
	"go-authentica/models"

	"github.com/stretchr/testify/require"
)

const testSecret = "s3cret"

var testConfig = config.ServerConfig{
	Host:   "localhost",
	Port:   8081,
	UseTls: false,
}

type testServer struct {
	url     string
	state   *ServerState
	storage NotificationStorage
}

type serverOpt func(*ServerState)

func withStorage(storage NotificationStorage) serverOpt {
	return func(s *ServerState) { s.notificationStorage = storage }
}

func withNafathClient(client NafathInitiator) serverOpt {
	return func(s *ServerState) { s.nafathClient = client }
}

func startTestServer(t *testing.T, opts ...serverOpt) *testServer {
	t.Helper()

	state := &ServerState{
		webhookSecret:       testSecret,
		notificationStorage: NewInMemoryNotificationStorage(),
		nafathClient:        &fakeNafathClient{},
		metrics:             metrics.New(),
	}
	for _, o := range opts {
		o(state)
	}

	srv, err := NewServer(state, testConfig)
	require.NoError(t, err)

	httpServer := httptest.NewServer(srv.Handler())
	t.Cleanup(httpServer.Close)

	return &testServer{
		url:     httpServer.URL,
		state:   state,
		storage: state.notificationStorage,
	}
}

func postJSON[T any](t *testing.T, url string, payload any) (*http.Response, []byte, *T) {
	t.Helper()

	var body io.Reader
	switch p := payload.(type) {
	case nil:
	case string:
		body = bytes.NewBufferString(p)
	default:
		b, err := json.Marshal(p)
		require.NoError(t, err)
		body = bytes.NewBuffer(b)
	}
	resp, err := http.Post(url, "application/json", body)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)

	return resp, respBody, &v
}

func getJSON[T any](t *testing.T, url string) (*http.Response, []byte, *T) {
	t.Helper()

	resp, err := http.Get(url)
	require.NoError(t, err)
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	require.NoError(t, err)

	var v T
	_ = json.Unmarshal(respBody, &v)

	return resp, respBody, &v
}

func mustStatus(t *testing.T, resp *http.Response, want int, body []byte) {
	t.Helper()
	require.Equalf(t, want, resp.StatusCode, "body: %s", body)
}

func notification(password, status, nationalId string) models.NafathNotification {
	return models.NafathNotification{
		Password:   password,
		Status:     status,
		NationalId: nationalId,
	}
}

// fakes ------------

type fakeNafathClient struct {
	mu       sync.Mutex
	response *authentica.Response
	err      error
	userIds  []string
}

func (f *fakeNafathClient) VerifyByNafath(_ context.Context, userId string) (*authentica.Response, error) {
	f.mu.Lock()
	defer f.mu.Unlock()

	f.userIds = append(f.userIds, userId)
	if f.err != nil {
		return nil, f.err
	}
	if f.response != nil {
		return f.response, nil
	}
	return &authentica.Response{StatusCode: http.StatusOK, Body: map[string]any{"transaction_id": "tx-1"}}, nil
}

func (f *fakeNafathClient) calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.userIds...)
}

type failingStorage struct{}

var errStorageDown = errors.New("storage down")

func (failingStorage) StoreNotification(context.Context, models.NafathResult) error {
	return errStorageDown
}

func (failingStorage) RetrieveNotification(context.Context, string) (models.NafathResult, error) {
	return models.NafathResult{}, errStorageDown
}

// newUpstreamStub mimics the verify-by-nafath endpoint, echoing the user id back
func newUpstreamStub(t *testing.T) *httptest.Server {
	t.Helper()
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/v2/verify-by-nafath" {
			t.Errorf("Expected path /api/v2/verify-by-nafath, got %s", r.URL.Path)
		}
		if r.Header.Get("X-Authorization") == "" {
			t.Errorf("Expected X-Authorization header")
		}
		var request models.NafathInitRequest
		if err := json.NewDecoder(r.Body).Decode(&request); err != nil {
			t.Errorf("failed to decode upstream request: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusCreated)
		_ = json.NewEncoder(w).Encode(map[string]string{"user_id": request.UserId})
	}))
	t.Cleanup(server.Close)
	return server
}
