package server

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/config"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/middleware"
	"github.com/Invisible-Cities-Agency/sanity-staging-security/pkg/observability"
	"github.com/prometheus/client_golang/prometheus"
)

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func testRouter(t *testing.T, rateLimit *middleware.RateLimitConfig) http.Handler {
	t.Helper()
	snapshot := config.Defaults()
	snapshot.Security.AllowedOrigins = []string{"https://studio.example.com"}
	return NewRouter(Options{
		Snapshot:  &snapshot,
		Secret:    testSecret,
		Logger:    quietLogger(),
		Metrics:   observability.NewMetrics(prometheus.NewRegistry()),
		RateLimit: rateLimit,
	})
}

func postValidate(t *testing.T, handler http.Handler, body ValidateRequest, origin string) (*httptest.ResponseRecorder, ValidateResponse) {
	t.Helper()
	data, err := json.Marshal(body)
	require.NoError(t, err)

	req := httptest.NewRequest(http.MethodPost, "/api/auth/validate-sanity-v3", bytes.NewReader(data))
	req.Header.Set("Content-Type", "application/json")
	if origin != "" {
		req.Header.Set("Origin", origin)
	}
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	var resp ValidateResponse
	if rec.Code == http.StatusOK {
		require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp))
	}
	return rec, resp
}

func TestValidateAuthorizedEditor(t *testing.T) {
	handler := testRouter(t, nil)
	token := MintSessionToken(testSecret, "user-1", time.Hour, time.Now())

	rec, resp := postValidate(t, handler, ValidateRequest{
		SessionToken: token,
		UserRoles:    []string{"viewer", "editor"},
		UserName:     "Ada",
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.True(t, resp.Authorized)
	assert.Equal(t, "editor", resp.Role)
	assert.Empty(t, resp.Error)
	assert.NotEmpty(t, resp.CorrelationID)
	assert.NotEmpty(t, resp.Timestamp)
}

func TestValidateViewerUnauthorized(t *testing.T) {
	handler := testRouter(t, nil)
	token := MintSessionToken(testSecret, "user-1", time.Hour, time.Now())

	rec, resp := postValidate(t, handler, ValidateRequest{
		SessionToken: token,
		UserRoles:    []string{"viewer"},
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Authorized)
	assert.Equal(t, "viewer", resp.Role)
	assert.Equal(t, "no authorized role", resp.Error)
}

func TestValidateRoleAliasesAccepted(t *testing.T) {
	handler := testRouter(t, nil)
	token := MintSessionToken(testSecret, "user-1", time.Hour, time.Now())

	_, resp := postValidate(t, handler, ValidateRequest{
		SessionToken: token,
		UserRoles:    []string{"ADMIN"},
	}, "")

	assert.True(t, resp.Authorized)
	assert.Equal(t, "administrator", resp.Role)
}

func TestValidateExpiredSession(t *testing.T) {
	handler := testRouter(t, nil)
	token := MintSessionToken(testSecret, "user-1", time.Hour, time.Now().Add(-2*time.Hour))

	rec, resp := postValidate(t, handler, ValidateRequest{
		SessionToken: token,
		UserRoles:    []string{"administrator"},
	}, "")

	require.Equal(t, http.StatusOK, rec.Code)
	assert.False(t, resp.Authorized)
	assert.Equal(t, "invalid or expired session", resp.Error)
}

func TestValidateMissingToken(t *testing.T) {
	handler := testRouter(t, nil)
	rec, _ := postValidate(t, handler, ValidateRequest{UserRoles: []string{"editor"}}, "")
	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestValidateDisallowedOrigin(t *testing.T) {
	handler := testRouter(t, nil)
	token := MintSessionToken(testSecret, "user-1", time.Hour, time.Now())

	rec, _ := postValidate(t, handler, ValidateRequest{
		SessionToken: token,
		UserRoles:    []string{"editor"},
	}, "https://evil.example.com")

	assert.Equal(t, http.StatusForbidden, rec.Code)
}

func TestValidateRateLimited(t *testing.T) {
	handler := testRouter(t, &middleware.RateLimitConfig{
		RequestsPerWindow: 1,
		WindowDuration:    45 * time.Second,
		BurstSize:         0,
	})
	token := MintSessionToken(testSecret, "user-1", time.Hour, time.Now())
	req := ValidateRequest{SessionToken: token, UserRoles: []string{"editor"}}

	rec, _ := postValidate(t, handler, req, "")
	require.Equal(t, http.StatusOK, rec.Code)

	rec, _ = postValidate(t, handler, req, "")
	require.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, "45", rec.Header().Get("Retry-After"))
}

func TestHealthz(t *testing.T) {
	handler := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestMetricsEndpoint(t *testing.T) {
	handler := testRouter(t, nil)
	req := httptest.NewRequest(http.MethodGet, "/metrics", nil)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
}
