package handlers

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/jorat/landing/internal/clock"
	"github.com/jorat/landing/internal/middleware"
	"github.com/jorat/landing/internal/models"
	"github.com/jorat/landing/internal/repository"
	"github.com/jorat/landing/internal/service"
	"github.com/jorat/landing/internal/validation"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testMobile = "09123456789"
	testSecret = "0123456789abcdef0123456789abcdef"
	apkBody    = "PK\x03\x04 fake apk"
)

type captureSender struct {
	mu   sync.Mutex
	last map[string]string
	err  error
}

func (s *captureSender) SendOTP(_ context.Context, mobile, code string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	if s.last == nil {
		s.last = make(map[string]string)
	}
	s.last[mobile] = code
	return nil
}

func (s *captureSender) code(mobile string) string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.last[mobile]
}

type failingStore struct {
	service.SessionStore
}

func (failingStore) Create(string) (models.OTPSession, error) {
	return models.OTPSession{}, errors.New("entropy exhausted")
}

type testServer struct {
	handler http.Handler
	sender  *captureSender
	clock   *clock.Fake
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()

	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clk := clock.NewFake(time.Now())

	store := repository.NewOTPRepository(repository.OTPRepositoryConfig{
		Expiry:      2 * time.Minute,
		MaxAttempts: 5,
	}, service.GenerateCode, clk, logger)

	limiter := service.NewMemoryRateLimiter(service.RateLimitConfig{
		MaxRequests: 3,
		Window:      5 * time.Minute,
	}, clk, logger)

	tokens, err := service.NewDownloadTokenService(testSecret, 30*time.Minute, clk, logger)
	require.NoError(t, err)

	v, err := validation.New()
	require.NoError(t, err)

	sender := &captureSender{}
	otpService := service.NewOTPService(service.OTPServiceDeps{
		Store:     store,
		Limiter:   limiter,
		Sender:    sender,
		Tokens:    tokens,
		Validator: v,
		Clock:     clk,
		Logger:    logger,
	})

	apkPath := filepath.Join(t.TempDir(), "app.apk")
	require.NoError(t, os.WriteFile(apkPath, []byte(apkBody), 0o644))

	handler := NewRouter(RouterDeps{
		OTP:            NewOTPHandlers(otpService, logger),
		Download:       NewDownloadHandlers(apkPath, "jorat-haghighat.apk", logger),
		AuthMiddleware: middleware.NewAuthMiddleware(tokens, logger),
		AllowedOrigins: []string{"*"},
		Logger:         logger,
	})

	return &testServer{handler: handler, sender: sender, clock: clk}
}

func (s *testServer) post(t *testing.T, path string, body any) (int, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	switch b := body.(type) {
	case string:
		buf.WriteString(b)
	default:
		require.NoError(t, json.NewEncoder(&buf).Encode(b))
	}

	req := httptest.NewRequest(http.MethodPost, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "application/json", rec.Header().Get("Content-Type"))
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out))
	return rec.Code, out
}

func (s *testServer) sendOTP(t *testing.T, mobile string) (int, map[string]any) {
	return s.post(t, "/api/send-otp", map[string]string{"mobile": mobile})
}

func (s *testServer) verifyOTP(t *testing.T, mobile, code string) (int, map[string]any) {
	return s.post(t, "/api/verify-otp", map[string]string{"mobile": mobile, "code": code})
}

func otherCode(code string) string {
	if code == "1000" {
		return "1001"
	}
	return "1000"
}

func TestEndToEnd(t *testing.T) {
	s := newTestServer(t)

	status, body := s.sendOTP(t, testMobile)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.NotEmpty(t, body["message"])
	assert.NotContains(t, body, "code")

	code := s.sender.code(testMobile)
	require.NotEmpty(t, code)

	status, body = s.verifyOTP(t, testMobile, otherCode(code))
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["verified"])
	assert.NotContains(t, body, "downloadToken")

	status, body = s.verifyOTP(t, testMobile, code)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, true, body["verified"])
	token, _ := body["downloadToken"].(string)
	require.NotEmpty(t, token)

	// consumed
	status, body = s.verifyOTP(t, testMobile, code)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, false, body["verified"])

	req := httptest.NewRequest(http.MethodGet, "/api/download?token="+token, nil)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, apkBody, rec.Body.String())
	assert.Contains(t, rec.Header().Get("Content-Disposition"), "jorat-haghighat.apk")
}

func TestSendOTP_Validation(t *testing.T) {
	s := newTestServer(t)

	status, body := s.sendOTP(t, "123")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])
	assert.NotEmpty(t, body["message"])

	status, body = s.post(t, "/api/send-otp", "{not json")
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, false, body["success"])

	status, _ = s.post(t, "/api/send-otp", map[string]any{"mobile": 9123456789})
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestSendOTP_RateLimit(t *testing.T) {
	s := newTestServer(t)

	for i := 0; i < 3; i++ {
		status, _ := s.sendOTP(t, testMobile)
		require.Equal(t, http.StatusOK, status)
	}

	status, body := s.sendOTP(t, testMobile)
	assert.Equal(t, http.StatusTooManyRequests, status)
	assert.Equal(t, false, body["success"])

	// another number is unaffected
	status, _ = s.sendOTP(t, "09350000000")
	assert.Equal(t, http.StatusOK, status)

	s.clock.Advance(5 * time.Minute)
	status, _ = s.sendOTP(t, testMobile)
	assert.Equal(t, http.StatusOK, status)
}

func TestSendOTP_DispatchFailure(t *testing.T) {
	s := newTestServer(t)
	s.sender.err = errors.New("gateway timeout")

	status, body := s.sendOTP(t, testMobile)
	assert.Equal(t, http.StatusInternalServerError, status)
	assert.Equal(t, false, body["success"])
	assert.Equal(t, msgDispatchFailed, body["message"])
}

func TestSendOTP_InternalError(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	clk := clock.NewFake(time.Now())
	v, err := validation.New()
	require.NoError(t, err)

	svc := service.NewOTPService(service.OTPServiceDeps{
		Store:     failingStore{},
		Limiter:   service.NewMemoryRateLimiter(service.RateLimitConfig{MaxRequests: 3, Window: time.Minute}, clk, logger),
		Sender:    &captureSender{},
		Validator: v,
		Clock:     clk,
		Logger:    logger,
	})
	h := NewOTPHandlers(svc, logger)

	req := httptest.NewRequest(http.MethodPost, "/api/send-otp", bytes.NewBufferString(`{"mobile":"09123456789"}`))
	rec := httptest.NewRecorder()
	h.SendOTP(rec, req)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	var body SendOTPResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.False(t, body.Success)
	assert.Equal(t, msgServerError, body.Message)
}

func TestVerifyOTP_Validation(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name string
		body any
	}{
		{"BadMobile", map[string]string{"mobile": "123", "code": "1234"}},
		{"ShortCode", map[string]string{"mobile": testMobile, "code": "123"}},
		{"LetterCode", map[string]string{"mobile": testMobile, "code": "12a4"}},
		{"MissingCode", map[string]string{"mobile": testMobile}},
		{"NotJSON", "nope"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, body := s.post(t, "/api/verify-otp", tt.body)
			assert.Equal(t, http.StatusBadRequest, status)
			assert.Equal(t, false, body["success"])
			assert.Equal(t, false, body["verified"])
		})
	}
}

func TestVerifyOTP_Exhaustion(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.sendOTP(t, testMobile)
	require.Equal(t, http.StatusOK, status)
	code := s.sender.code(testMobile)

	for i := 0; i < 5; i++ {
		_, body := s.verifyOTP(t, testMobile, otherCode(code))
		assert.Equal(t, false, body["verified"])
	}

	status, body := s.verifyOTP(t, testMobile, code)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, false, body["verified"])
}

func TestVerifyOTP_Expired(t *testing.T) {
	s := newTestServer(t)

	s.sendOTP(t, testMobile)
	code := s.sender.code(testMobile)

	s.clock.Advance(2*time.Minute + time.Second)
	_, body := s.verifyOTP(t, testMobile, code)
	assert.Equal(t, false, body["verified"])
}

func TestDownload_RequiresToken(t *testing.T) {
	s := newTestServer(t)

	tests := []struct {
		name   string
		target string
		header string
	}{
		{"Missing", "/api/download", ""},
		{"Garbage", "/api/download?token=abc", ""},
		{"BadHeader", "/api/download", "Token abc"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.target, nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()
			s.handler.ServeHTTP(rec, req)
			assert.Equal(t, http.StatusUnauthorized, rec.Code)
		})
	}
}

func TestDownload_BearerHeaderAndMissingFile(t *testing.T) {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	tokens, err := service.NewDownloadTokenService(testSecret, time.Minute, clock.New(), logger)
	require.NoError(t, err)

	tok, err := tokens.Issue(testMobile)
	require.NoError(t, err)

	h := middleware.NewAuthMiddleware(tokens, logger).RequireDownloadToken(
		http.HandlerFunc(NewDownloadHandlers(filepath.Join(t.TempDir(), "missing.apk"), "app.apk", logger).Download),
	)

	req := httptest.NewRequest(http.MethodGet, "/api/download", nil)
	req.Header.Set("Authorization", "Bearer "+tok.Token)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestHealth(t *testing.T) {
	s := newTestServer(t)

	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/health", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "OK", rec.Body.String())
}

func TestCORSPreflight(t *testing.T) {
	s := newTestServer(t)

	req := httptest.NewRequest(http.MethodOptions, "/api/send-otp", nil)
	req.Header.Set("Origin", "https://landing.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rec := httptest.NewRecorder()
	s.handler.ServeHTTP(rec, req)

	assert.Equal(t, "*", rec.Header().Get("Access-Control-Allow-Origin"))
}
