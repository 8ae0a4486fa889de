package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func echoToken() http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		token, _ := GetToken(r.Context())
		w.Write([]byte(token))
	})
}

func TestBearerToken(t *testing.T) {
	tests := []struct {
		name       string
		header     string
		wantStatus int
		wantBody   string
	}{
		{"valid", "Bearer abc.def.ghi", http.StatusOK, "abc.def.ghi"},
		{"lowercase scheme", "bearer tok", http.StatusOK, "tok"},
		{"missing", "", http.StatusUnauthorized, ""},
		{"basic scheme", "Basic dXNlcjpwYXNz", http.StatusUnauthorized, ""},
		{"empty token", "Bearer   ", http.StatusUnauthorized, ""},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			rec := httptest.NewRecorder()

			BearerToken(echoToken()).ServeHTTP(rec, req)

			assert.Equal(t, tt.wantStatus, rec.Code)
			if tt.wantBody != "" {
				assert.Equal(t, tt.wantBody, rec.Body.String())
			}
		})
	}
}

type stubLimiter struct {
	allowed bool
	err     error
	keys    []string
}

func (s *stubLimiter) Allow(_ context.Context, key string) (bool, int, time.Time, error) {
	s.keys = append(s.keys, key)
	return s.allowed, 3, time.Date(2026, 1, 1, 0, 1, 0, 0, time.UTC), s.err
}

func limited(limiter Limiter, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	rec := httptest.NewRecorder()
	BearerToken(NewRateLimitMiddleware(limiter).Limit(echoToken())).ServeHTTP(rec, req)
	return rec
}

func TestRateLimit(t *testing.T) {
	t.Run("allowed", func(t *testing.T) {
		limiter := &stubLimiter{allowed: true}
		rec := limited(limiter, "secret-token")

		assert.Equal(t, http.StatusOK, rec.Code)
		assert.Equal(t, "3", rec.Header().Get("X-RateLimit-Remaining"))
		assert.Equal(t, "2026-01-01T00:01:00Z", rec.Header().Get("X-RateLimit-Reset"))
		assert.Len(t, limiter.keys, 1)
		assert.NotContains(t, limiter.keys[0], "secret-token")
	})

	t.Run("exceeded", func(t *testing.T) {
		rec := limited(&stubLimiter{allowed: false}, "tok")
		assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	})

	t.Run("limiter down fails open", func(t *testing.T) {
		rec := limited(&stubLimiter{err: errors.New("redis down")}, "tok")
		assert.Equal(t, http.StatusOK, rec.Code)
	})
}
