package handler

import (
	"context"
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/Rrens/bi-genie/internal/api/middleware"
	"github.com/Rrens/bi-genie/internal/api/response"
	"github.com/Rrens/bi-genie/internal/domain"
)

var validate = validator.New(validator.WithRequiredStructEnabled())

// DashboardService is the pipeline the handler drives
type DashboardService interface {
	Submit(ctx context.Context, req domain.SubmitRequest, token string) (*domain.Report, error)
	History(ctx context.Context, sessionID string) ([]domain.Turn, error)
	Reset(ctx context.Context, sessionID string) error
	Rounds(ctx context.Context, token string, limit int) ([]domain.Round, error)
}

// DashboardHandler handles dashboard generation endpoints
type DashboardHandler struct {
	service DashboardService
}

// NewDashboardHandler creates a new dashboard handler
func NewDashboardHandler(service DashboardService) *DashboardHandler {
	return &DashboardHandler{service: service}
}

// Submit turns a natural-language request into a dashboard
func (h *DashboardHandler) Submit(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.GetToken(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	var req domain.SubmitRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		response.BadRequest(w, "invalid request body")
		return
	}

	if err := validate.Struct(req); err != nil {
		response.BadRequest(w, err.Error())
		return
	}

	report, err := h.service.Submit(r.Context(), req, token)
	response.Report(w, err, report)
}

// History returns the live turns of a session
func (h *DashboardHandler) History(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		response.BadRequest(w, "missing session ID")
		return
	}

	turns, err := h.service.History(r.Context(), sessionID)
	if err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.OK(w, map[string]any{
		"session_id": sessionID,
		"turns":      turns,
	})
}

// Reset forgets a session
func (h *DashboardHandler) Reset(w http.ResponseWriter, r *http.Request) {
	sessionID := chi.URLParam(r, "sessionID")
	if sessionID == "" {
		response.BadRequest(w, "missing session ID")
		return
	}

	if err := h.service.Reset(r.Context(), sessionID); err != nil {
		response.InternalError(w, err.Error())
		return
	}

	response.NoContent(w)
}

// Rounds lists the caller's recent rounds
func (h *DashboardHandler) Rounds(w http.ResponseWriter, r *http.Request) {
	token, ok := middleware.GetToken(r.Context())
	if !ok {
		response.Unauthorized(w, "unauthorized")
		return
	}

	limit := 0
	if raw := r.URL.Query().Get("limit"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n < 1 {
			response.BadRequest(w, "limit must be a positive integer")
			return
		}
		limit = n
	}

	rounds, err := h.service.Rounds(r.Context(), token, limit)
	if err != nil {
		response.Error(w, response.StatusForFailure(domain.FailureKind(err)), err.Error())
		return
	}

	response.OK(w, rounds)
}
