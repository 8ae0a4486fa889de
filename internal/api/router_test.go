package api

import (
	"bytes"
	"context"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/Rrens/bi-genie/internal/config"
	"github.com/Rrens/bi-genie/internal/domain"
	"github.com/Rrens/bi-genie/internal/llm"
)

type fakeDashboards struct {
	submits int
}

func (f *fakeDashboards) Submit(context.Context, domain.SubmitRequest, string) (*domain.Report, error) {
	f.submits++
	return &domain.Report{Status: domain.ReportSuccess, ChartIDs: []int{101}}, nil
}

func (f *fakeDashboards) History(context.Context, string) ([]domain.Turn, error) {
	return []domain.Turn{}, nil
}

func (f *fakeDashboards) Reset(context.Context, string) error { return nil }

func (f *fakeDashboards) Rounds(context.Context, string, int) ([]domain.Round, error) {
	return []domain.Round{}, nil
}

type denyAll struct{}

func (denyAll) Allow(context.Context, string) (bool, int, time.Time, error) {
	return false, 0, time.Now().Add(time.Minute), nil
}

func request(h http.Handler, method, path, body string, auth bool) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	if auth {
		req.Header.Set("Authorization", "Bearer tok")
	}
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestNewRouter(t *testing.T) {
	dashboards := &fakeDashboards{}
	h := NewRouter(config.ServerConfig{}, Dependencies{
		Dashboards: dashboards,
		Providers:  llm.NewRouter("openai"),
	})

	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/v1/health", "", false).Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/v1/ready", "", false).Code)
	assert.Equal(t, http.StatusUnauthorized, request(h, http.MethodGet, "/api/v1/rounds", "", false).Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/v1/llm-providers", "", true).Code)
	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/v1/sessions/s1/history", "", true).Code)
	assert.Equal(t, http.StatusNoContent, request(h, http.MethodPost, "/api/v1/sessions/s1/reset", "", true).Code)
	assert.Equal(t, http.StatusNoContent, request(h, http.MethodDelete, "/api/v1/sessions/s1", "", true).Code)
	assert.Equal(t, http.StatusNotFound, request(h, http.MethodPost, "/api/v1/cache/flush", "", true).Code)

	rec := request(h, http.MethodPost, "/api/v1/dashboards", `{"message":"revenue","session_id":"s1"}`, true)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, 1, dashboards.submits)
}

func TestNewRouter_RateLimitedSubmit(t *testing.T) {
	dashboards := &fakeDashboards{}
	h := NewRouter(config.ServerConfig{}, Dependencies{
		Dashboards:  dashboards,
		Providers:   llm.NewRouter("openai"),
		RateLimiter: denyAll{},
	})

	rec := request(h, http.MethodPost, "/api/v1/dashboards", `{"message":"revenue","session_id":"s1"}`, true)
	assert.Equal(t, http.StatusTooManyRequests, rec.Code)
	assert.Equal(t, 0, dashboards.submits)

	assert.Equal(t, http.StatusOK, request(h, http.MethodGet, "/api/v1/rounds", "", true).Code)
}
