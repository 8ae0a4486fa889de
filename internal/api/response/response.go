package response

import (
	"encoding/json"
	"net/http"

	"github.com/Rrens/bi-genie/internal/domain"
)

// Response represents a standard API response
type Response struct {
	Success bool `json:"success"`
	Data    any  `json:"data,omitempty"`
	Error   any  `json:"error,omitempty"`
}

// JSON sends a JSON response
func JSON(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: status >= 200 && status < 300,
		Data:    data,
	}

	json.NewEncoder(w).Encode(resp)
}

// Error sends an error response
func Error(w http.ResponseWriter, status int, message any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: false,
		Error:   message,
	}

	json.NewEncoder(w).Encode(resp)
}

// NoContent sends a 204 No Content response
func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

// Created sends a 201 Created response with data
func Created(w http.ResponseWriter, data any) {
	JSON(w, http.StatusCreated, data)
}

// OK sends a 200 OK response with data
func OK(w http.ResponseWriter, data any) {
	JSON(w, http.StatusOK, data)
}

// BadRequest sends a 400 Bad Request response
func BadRequest(w http.ResponseWriter, message any) {
	Error(w, http.StatusBadRequest, message)
}

// Unauthorized sends a 401 Unauthorized response
func Unauthorized(w http.ResponseWriter, message any) {
	Error(w, http.StatusUnauthorized, message)
}

// Forbidden sends a 403 Forbidden response
func Forbidden(w http.ResponseWriter, message any) {
	Error(w, http.StatusForbidden, message)
}

// NotFound sends a 404 Not Found response
func NotFound(w http.ResponseWriter, message any) {
	Error(w, http.StatusNotFound, message)
}

// InternalError sends a 500 Internal Server Error response
func InternalError(w http.ResponseWriter, message any) {
	Error(w, http.StatusInternalServerError, message)
}

// StatusForFailure maps a pipeline failure kind to an HTTP status
func StatusForFailure(kind string) int {
	switch kind {
	case "":
		return http.StatusOK
	case domain.FailureUnauthenticated:
		return http.StatusUnauthorized
	case domain.FailureUpstreamUnavailable, domain.FailureLinking:
		return http.StatusBadGateway
	case domain.FailureProposalParse, domain.FailureNoValidCharts:
		return http.StatusUnprocessableEntity
	case domain.FailurePartialMaterialization:
		return http.StatusOK
	default:
		return http.StatusInternalServerError
	}
}

// Report sends a round report. Failed rounds keep the report in data so
// callers can see which objects were created.
func Report(w http.ResponseWriter, err error, report *domain.Report) {
	kind := domain.FailureKind(err)
	status := StatusForFailure(kind)
	if report != nil && report.Status == domain.ReportPartial {
		status = http.StatusOK
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)

	resp := Response{
		Success: err == nil,
		Data:    report,
	}
	if report != nil && report.Failure != nil {
		resp.Error = report.Failure
	} else if err != nil {
		resp.Error = domain.Failure{Kind: kind, Message: err.Error()}
	}

	json.NewEncoder(w).Encode(resp)
}
