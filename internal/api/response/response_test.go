package response

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Rrens/bi-genie/internal/domain"
)

func TestStatusForFailure(t *testing.T) {
	tests := []struct {
		kind string
		want int
	}{
		{"", http.StatusOK},
		{domain.FailureUnauthenticated, http.StatusUnauthorized},
		{domain.FailureUpstreamUnavailable, http.StatusBadGateway},
		{domain.FailureProposalParse, http.StatusUnprocessableEntity},
		{domain.FailureNoValidCharts, http.StatusUnprocessableEntity},
		{domain.FailurePartialMaterialization, http.StatusOK},
		{domain.FailureLinking, http.StatusBadGateway},
		{domain.FailureInternal, http.StatusInternalServerError},
	}

	for _, tt := range tests {
		t.Run(tt.kind, func(t *testing.T) {
			assert.Equal(t, tt.want, StatusForFailure(tt.kind))
		})
	}
}

func decode(t *testing.T, rec *httptest.ResponseRecorder) map[string]any {
	t.Helper()
	var body map[string]any
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestReport_FailureKeepsCreatedObjects(t *testing.T) {
	dashboardID := 55
	err := fmt.Errorf("%w: failed to link chart 101", domain.ErrLinking)
	report := &domain.Report{
		Status:      domain.ReportFailed,
		DashboardID: &dashboardID,
		ChartIDs:    []int{101},
		Failure:     &domain.Failure{Kind: domain.FailureLinking, Message: err.Error()},
	}

	rec := httptest.NewRecorder()
	Report(rec, err, report)

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, false, body["success"])
	data := body["data"].(map[string]any)
	assert.Equal(t, float64(55), data["dashboard_id"])
	assert.Equal(t, "linking_failure", body["error"].(map[string]any)["kind"])
}

func TestReport_Partial(t *testing.T) {
	report := &domain.Report{
		Status:   domain.ReportPartial,
		ChartIDs: []int{101, 103},
		Failure:  &domain.Failure{Kind: domain.FailurePartialMaterialization, Message: "1 of 3 charts could not be created"},
	}

	rec := httptest.NewRecorder()
	Report(rec, nil, report)

	assert.Equal(t, http.StatusOK, rec.Code)
	body := decode(t, rec)
	assert.Equal(t, true, body["success"])
	assert.Equal(t, "partial_materialization_failure", body["error"].(map[string]any)["kind"])
}

func TestReport_NilReport(t *testing.T) {
	rec := httptest.NewRecorder()
	Report(rec, errors.New("boom"), nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "internal", decode(t, rec)["error"].(map[string]any)["kind"])
}
