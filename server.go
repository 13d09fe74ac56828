package main

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"go-authentica/authentica"
	"go-authentica/config"
	"go-authentica/metrics"
	"go-authentica/models"

	"github.com/google/uuid"
	"github.com/gorilla/mux"
)

const ErrorInternal = "error:internal"
const ERR_MARSHAL = "failed to marshal response message"
const ERR_INVALID_SECRET = "invalid secret"
const ERR_DECODE_NOTIFICATION = "failed to decode nafath notification"
const ERR_STORE_RESULT = "failed to record nafath result"
const ERR_UPSTREAM = "upstream request failed"

const DefaultNafathUserId = "demo-user"
const headerRequestId = "X-Request-ID"
const shutdownTimeout = 5 * time.Second

var ErrInvalidSecret = errors.New("webhook secret does not match")

// NafathInitiator starts a Nafath verification upstream
type NafathInitiator interface {
	VerifyByNafath(ctx context.Context, userId string) (*authentica.Response, error)
}

// ServerState is shared by all handlers and is never mutated after startup
type ServerState struct {
	webhookSecret       string
	notificationStorage NotificationStorage
	nafathClient        NafathInitiator
	metrics             *metrics.Metrics
}

type Server struct {
	server *http.Server
	config config.ServerConfig
}

func (s *Server) ListenAndServe() error {
	if s.config.UseTls {
		slog.Info("Starting server with TLS", "host", s.config.Host, "port", s.config.Port, "cert", s.config.TlsCertPath, "key", s.config.TlsPrivKeyPath)
		return s.server.ListenAndServeTLS(s.config.TlsCertPath, s.config.TlsPrivKeyPath)
	}
	slog.Info("Starting server without TLS", "host", s.config.Host, "port", s.config.Port)
	return s.server.ListenAndServe()
}

func (s *Server) Stop() error {
	slog.Info("Shutting down server")
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	err := s.server.Shutdown(ctx)
	if err != nil {
		slog.Error("Error during server shutdown", "error", err)
	} else {
		slog.Info("Server shut down successfully")
	}
	return err
}

// Handler exposes the router, mostly for tests
func (s *Server) Handler() http.Handler {
	return s.server.Handler
}

func NewServer(state *ServerState, cfg config.ServerConfig) (*Server, error) {
	if state.webhookSecret == "" {
		return nil, config.ErrMissingSecret
	}
	if state.notificationStorage == nil {
		return nil, fmt.Errorf("notification storage is not configured")
	}
	if state.metrics == nil {
		state.metrics = metrics.New()
	}

	slog.Info("Creating new server", "host", cfg.Host, "port", cfg.Port, "tls", cfg.UseTls)
	router := mux.NewRouter()
	router.Use(requestIdMiddleware)

	router.HandleFunc("/api/health", func(w http.ResponseWriter, r *http.Request) {
		slog.Debug("Health check request received")
		err := json.NewEncoder(w).Encode(map[string]bool{"ok": true})
		if err != nil {
			slog.Error("failed to write body to http response", "error", err)
		}
	})

	router.HandleFunc("/webhook/nafath", func(w http.ResponseWriter, r *http.Request) {
		handleNafathWebhook(state, w, r)
	})
	router.HandleFunc("/nafath/init", func(w http.ResponseWriter, r *http.Request) {
		handleNafathInit(state, w, r)
	})
	router.HandleFunc("/api/nafath/results/{national_id}", func(w http.ResponseWriter, r *http.Request) {
		handleNafathResult(state, w, r)
	}).Methods(http.MethodGet)
	router.Handle("/metrics", state.metrics.Handler()).Methods(http.MethodGet)

	slog.Debug("Registered all API routes")

	addr := fmt.Sprintf("%v:%v", cfg.Host, cfg.Port)
	srv := &http.Server{
		Handler:      router,
		Addr:         addr,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	slog.Info("Server created successfully", "address", addr)
	return &Server{
		server: srv,
		config: cfg,
	}, nil
}

// handleNafathWebhook receives the provider's push after the user acts in the Nafath app
func handleNafathWebhook(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	requestId := requestIdFromContext(r.Context())
	slog.Debug("Received nafath notification", "request_id", requestId)

	notification, err := decodeNotification(r)
	if err != nil {
		state.metrics.ObserveWebhook(metrics.OutcomeInvalid)
		respondWithErr(w, http.StatusBadRequest, "invalid request", ERR_DECODE_NOTIFICATION, err)
		return
	}

	if err := authenticateNotification(state.webhookSecret, notification); err != nil {
		state.metrics.ObserveWebhook(metrics.OutcomeRejected)
		respondWithErr(w, http.StatusUnauthorized, ERR_INVALID_SECRET, "rejected nafath notification", err)
		return
	}

	slog.Info("Nafath result", "status", notification.Status, "national_id", notification.NationalId, "request_id", requestId)

	result := models.NafathResult{
		NationalId: notification.NationalId,
		Status:     notification.Status,
		ReceivedAt: time.Now().UTC(),
	}
	if err := state.notificationStorage.StoreNotification(r.Context(), result); err != nil {
		state.metrics.ObserveWebhook(metrics.OutcomeFailed)
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_STORE_RESULT, err)
		return
	}

	state.metrics.ObserveWebhook(metrics.OutcomeAccepted)
	if err := writeJSON(w, http.StatusOK, models.WebhookAck{Ok: true}); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// decodeNotification reads the provider's fields by their exact key. Only a
// body that is not a JSON object is an error. An empty body decodes to a
// notification without a password, which then fails authentication.
func decodeNotification(r *http.Request) (models.NafathNotification, error) {
	var fields map[string]json.RawMessage
	if err := json.NewDecoder(r.Body).Decode(&fields); err != nil && !errors.Is(err, io.EOF) {
		return models.NafathNotification{}, fmt.Errorf("decode request body: %w", err)
	}
	return models.NafathNotification{
		Password:   stringField(fields, "Password"),
		Status:     textField(fields, "Status"),
		NationalId: textField(fields, "NationalId"),
	}, nil
}

// stringField returns the value under key when it is a JSON string, "" otherwise
func stringField(fields map[string]json.RawMessage, key string) string {
	var v string
	if err := json.Unmarshal(fields[key], &v); err != nil {
		return ""
	}
	return v
}

// textField is like stringField but keeps any other JSON value as its literal text
func textField(fields map[string]json.RawMessage, key string) string {
	raw, ok := fields[key]
	if !ok || string(raw) == "null" {
		return ""
	}
	if v := stringField(fields, key); v != "" || string(raw) == `""` {
		return v
	}
	return string(raw)
}

// authenticateNotification compares the shared secret in constant time.
// A missing password never matches, even against an empty expected secret.
func authenticateNotification(expected string, notification models.NafathNotification) error {
	if notification.Password == "" || expected == "" {
		return ErrInvalidSecret
	}
	if subtle.ConstantTimeCompare([]byte(notification.Password), []byte(expected)) != 1 {
		return ErrInvalidSecret
	}
	return nil
}

func handleNafathInit(state *ServerState, w http.ResponseWriter, r *http.Request) {
	defer closeRequestBody(r)

	if !requirePOST(w, r) {
		return
	}

	var request models.NafathInitRequest
	if err := json.NewDecoder(r.Body).Decode(&request); err != nil && !errors.Is(err, io.EOF) {
		respondWithErr(w, http.StatusBadRequest, "invalid request", "failed to decode nafath init request", err)
		return
	}
	if request.UserId == "" {
		request.UserId = DefaultNafathUserId
	}

	slog.Info("Starting nafath verification", "user_id", request.UserId, "request_id", requestIdFromContext(r.Context()))

	if state.nafathClient == nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "nafath client not configured", nil)
		return
	}

	resp, err := state.nafathClient.VerifyByNafath(r.Context(), request.UserId)
	if err != nil {
		state.metrics.ObserveNafathInit("error")
		slog.Error("Nafath init failed", "error", err, "user_id", request.UserId)
		if err := writeJSON(w, http.StatusInternalServerError, models.ErrorResponse{Error: ERR_UPSTREAM}); err != nil {
			slog.Error(ERR_MARSHAL, "error", err)
		}
		return
	}

	state.metrics.ObserveNafathInit(strconv.Itoa(resp.StatusCode))
	slog.Debug("Relaying nafath init response", "status_code", resp.StatusCode)
	if err := writeJSON(w, resp.StatusCode, resp.Body); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

func handleNafathResult(state *ServerState, w http.ResponseWriter, r *http.Request) {
	nationalId := mux.Vars(r)["national_id"]

	result, err := state.notificationStorage.RetrieveNotification(r.Context(), nationalId)
	if errors.Is(err, ErrNotificationNotFound) {
		respondWithErr(w, http.StatusNotFound, "not found", "no nafath result for national id", err)
		return
	}
	if err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, "failed to retrieve nafath result", err)
		return
	}

	if err := writeJSON(w, http.StatusOK, result); err != nil {
		respondWithErr(w, http.StatusInternalServerError, ErrorInternal, ERR_MARSHAL, err)
	}
}

// -----------------------------------------------------------------------------------

type requestIdKey struct{}

// requestIdMiddleware reuses the caller's X-Request-ID or assigns a new one
func requestIdMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		requestId := r.Header.Get(headerRequestId)
		if requestId == "" {
			requestId = uuid.NewString()
		}
		w.Header().Set(headerRequestId, requestId)
		ctx := context.WithValue(r.Context(), requestIdKey{}, requestId)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

func requestIdFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(requestIdKey{}).(string); ok {
		return id
	}
	return ""
}

func respondWithErr(w http.ResponseWriter, code int, responseBody string, logMsg string, e error) {
	if code >= http.StatusInternalServerError {
		slog.Error(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	} else {
		slog.Warn(logMsg, "error", e, "status_code", code, "response_body", responseBody)
	}
	if err := writeJSON(w, code, models.ErrorResponse{Detail: responseBody}); err != nil {
		slog.Error("failed to write error response", "error", err)
	}
}

// helpers ------------

func closeRequestBody(r *http.Request) {
	if err := r.Body.Close(); err != nil {
		slog.Error("failed to close request body", "error", err)
	}
}

func requirePOST(w http.ResponseWriter, r *http.Request) bool {
	if r.Method != http.MethodPost {
		slog.Debug("Non-POST request rejected", "method", r.Method, "path", r.URL.Path)
		w.Header().Set("Allow", http.MethodPost)
		respondWithErr(w, http.StatusMethodNotAllowed, "method not allowed", "invalid method", nil)
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) error {
	payload, err := json.Marshal(v)
	if err != nil {
		slog.Error("Failed to marshal JSON payload", "error", err)
		return err
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if _, err = w.Write(payload); err != nil {
		slog.Error("failed to write body to http response", "error", err)
	} else {
		slog.Debug("JSON response written", "status_code", status, "payload_size", len(payload))
	}
	return nil
}
