// Copyright (c) 2026 Yomira. All rights reserved.
// Author: tai.buivan.jp@gmail.com

package middleware_test

import (
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taibuivan/yomira-auth/internal/platform/ctxutil"
	"github.com/taibuivan/yomira-auth/internal/platform/middleware"
	"github.com/taibuivan/yomira-auth/internal/platform/respond"
	"github.com/taibuivan/yomira-auth/internal/platform/sec"
)

// stubVerifier accepts exactly one token.
type stubVerifier struct {
	token  string
	claims *sec.Claims
	err    error
}

func (s stubVerifier) Claims(token string) (*sec.Claims, error) {
	if token == s.token {
		return s.claims, nil
	}
	if s.err != nil {
		return nil, s.err
	}
	return nil, errors.New("rejected")
}

func okHandler(writer http.ResponseWriter, request *http.Request) {
	principal := ctxutil.GetPrincipal(request.Context())
	if principal == nil {
		writer.WriteHeader(http.StatusNoContent)
		return
	}
	writer.Header().Set("X-Identity", principal.IdentityID)
	writer.WriteHeader(http.StatusOK)
}

func decodeCode(t *testing.T, recorder *httptest.ResponseRecorder) string {
	t.Helper()
	var body respond.ErrorEnvelope
	require.NoError(t, json.Unmarshal(recorder.Body.Bytes(), &body))
	return body.Code
}

/*
TestAuthenticate covers anonymous, malformed and verified requests.
*/
func TestAuthenticate(t *testing.T) {
	verifier := stubVerifier{
		token:  "good",
		claims: &sec.Claims{IdentityID: "id-1", Role: sec.RoleUser},
		err:    sec.ErrTokenExpired,
	}
	handler := middleware.Authenticate(verifier)(http.HandlerFunc(okHandler))

	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantCode   string
	}{
		{"anonymous", "", http.StatusNoContent, ""},
		{"bearer ok", "Bearer good", http.StatusOK, ""},
		{"lowercase scheme", "bearer good", http.StatusOK, ""},
		{"wrong scheme", "Basic Zm9vOmJhcg==", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"missing token", "Bearer ", http.StatusUnauthorized, "UNAUTHORIZED"},
		{"expired", "Bearer stale", http.StatusUnauthorized, "TOKEN_EXPIRED"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodGet, "/me", nil)
			if tt.header != "" {
				request.Header.Set("Authorization", tt.header)
			}
			recorder := httptest.NewRecorder()

			handler.ServeHTTP(recorder, request)

			assert.Equal(t, tt.wantStatus, recorder.Code)
			if tt.wantCode != "" {
				assert.Equal(t, tt.wantCode, decodeCode(t, recorder))
			}
			if tt.wantStatus == http.StatusOK {
				assert.Equal(t, "id-1", recorder.Header().Get("X-Identity"))
			}
		})
	}
}

/*
TestRequireRole gates on authentication first and role second.
*/
func TestRequireRole(t *testing.T) {
	verifier := stubVerifier{token: "user", claims: &sec.Claims{IdentityID: "id-2", Role: sec.RoleUser}}
	adminVerifier := stubVerifier{token: "admin", claims: &sec.Claims{IdentityID: "id-3", Role: sec.RoleAdmin}}

	chain := func(v middleware.TokenVerifier) http.Handler {
		return middleware.Authenticate(v)(middleware.RequireRole(sec.RoleAdmin)(http.HandlerFunc(okHandler)))
	}

	cases := []struct {
		name       string
		verifier   middleware.TokenVerifier
		header     string
		wantStatus int
	}{
		{"anonymous", verifier, "", http.StatusUnauthorized},
		{"user", verifier, "Bearer user", http.StatusForbidden},
		{"admin", adminVerifier, "Bearer admin", http.StatusOK},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			request := httptest.NewRequest(http.MethodPost, "/users", nil)
			if tc.header != "" {
				request.Header.Set("Authorization", tc.header)
			}
			recorder := httptest.NewRecorder()

			chain(tc.verifier).ServeHTTP(recorder, request)
			assert.Equal(t, tc.wantStatus, recorder.Code)
		})
	}
}

/*
TestRequestID generates an id when absent and echoes one when present.
*/
func TestRequestID(t *testing.T) {
	handler := middleware.RequestID()(http.HandlerFunc(func(writer http.ResponseWriter, request *http.Request) {
		writer.Header().Set("X-Seen", ctxutil.GetRequestID(request.Context()))
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))
	generated := recorder.Header().Get("X-Request-ID")
	assert.NotEmpty(t, generated)
	assert.Equal(t, generated, recorder.Header().Get("X-Seen"))

	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.Header.Set("X-Request-ID", "client-id")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, "client-id", recorder.Header().Get("X-Request-ID"))
}

/*
TestRateLimiter rejects once the burst is spent.
*/
func TestRateLimiter(t *testing.T) {
	limiter := middleware.NewRateLimiter(0.001, 2)
	handler := limiter.Handler(http.HandlerFunc(okHandler))

	statuses := make([]int, 0, 3)
	for range 3 {
		request := httptest.NewRequest(http.MethodPost, "/login", nil)
		request.RemoteAddr = "10.0.0.1:5555"
		recorder := httptest.NewRecorder()
		handler.ServeHTTP(recorder, request)
		statuses = append(statuses, recorder.Code)
	}

	assert.Equal(t, []int{http.StatusNoContent, http.StatusNoContent, http.StatusTooManyRequests}, statuses)

	// A different client has its own bucket
	request := httptest.NewRequest(http.MethodPost, "/login", nil)
	request.RemoteAddr = "10.0.0.2:5555"
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)
	assert.Equal(t, http.StatusNoContent, recorder.Code)
}

/*
TestCORS echoes allowed origins and answers preflight.
*/
func TestCORS(t *testing.T) {
	handler := middleware.CORS(middleware.CORSPolicy{
		AllowedOrigins: []string{"https://app.yomira.app"},
		AllowedMethods: []string{"GET", "POST"},
		AllowedHeaders: []string{"Authorization", "Content-Type"},
	})(http.HandlerFunc(okHandler))

	// 1. Allowed preflight
	request := httptest.NewRequest(http.MethodOptions, "/login", nil)
	request.Header.Set("Origin", "https://app.yomira.app")
	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Equal(t, http.StatusNoContent, recorder.Code)
	assert.Equal(t, "https://app.yomira.app", recorder.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "GET, POST", recorder.Header().Get("Access-Control-Allow-Methods"))
	assert.Equal(t, "true", recorder.Header().Get("Access-Control-Allow-Credentials"))

	// 2. Unknown origin gets no CORS headers
	request = httptest.NewRequest(http.MethodGet, "/login", nil)
	request.Header.Set("Origin", "https://evil.example")
	recorder = httptest.NewRecorder()
	handler.ServeHTTP(recorder, request)

	assert.Empty(t, recorder.Header().Get("Access-Control-Allow-Origin"))
}

/*
TestPanicRecovery turns a panic into a 500 envelope.
*/
func TestPanicRecovery(t *testing.T) {
	handler := middleware.PanicRecovery()(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))

	recorder := httptest.NewRecorder()
	handler.ServeHTTP(recorder, httptest.NewRequest(http.MethodGet, "/", nil))

	assert.Equal(t, http.StatusInternalServerError, recorder.Code)
	assert.Equal(t, "INTERNAL_ERROR", decodeCode(t, recorder))
}

/*
TestRealIP prefers proxy headers over the socket address.
*/
func TestRealIP(t *testing.T) {
	request := httptest.NewRequest(http.MethodGet, "/", nil)
	request.RemoteAddr = "192.0.2.1:1234"
	assert.Equal(t, "192.0.2.1", middleware.RealIP(request))

	request.Header.Set("X-Forwarded-For", "203.0.113.7, 10.0.0.1")
	assert.Equal(t, "203.0.113.7", middleware.RealIP(request))

	request.Header.Set("X-Real-IP", "198.51.100.9")
	assert.Equal(t, "198.51.100.9", middleware.RealIP(request))
}
