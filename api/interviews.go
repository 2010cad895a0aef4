package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"net/mail"
	"strings"

	"github.com/google/uuid"

	"github.com/garnizeh/interviewer/internal/logging"
	"github.com/garnizeh/interviewer/internal/reconcile"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// Interview roles.
const (
	RoleFrontend = "frontend"
	RoleBackend  = "backend"
)

const msgEvaluationNotReady = "Provider has not generated the evaluation yet. Please wait 1-2 minutes and try again."

type InterviewsHandler struct {
	interviews repository.InterviewRepo
	results    repository.ResultRepo
	svc        *reconcile.Service
}

func NewInterviewsHandler(ir repository.InterviewRepo, rr repository.ResultRepo, svc *reconcile.Service) *InterviewsHandler {
	return &InterviewsHandler{interviews: ir, results: rr, svc: svc}
}

type createInterviewRequest struct {
	CandidateName  string `json:"candidate_name"`
	CandidateEmail string `json:"candidate_email"`
	Role           string `json:"role"`
}

type interviewResponse struct {
	Interview *models.Interview       `json:"interview"`
	Result    *models.InterviewResult `json:"result,omitempty"`
}

func (h *InterviewsHandler) CreateInterview(w http.ResponseWriter, r *http.Request) {
	var req createInterviewRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.CandidateName = strings.TrimSpace(req.CandidateName)
	req.CandidateEmail = strings.TrimSpace(req.CandidateEmail)
	if req.CandidateName == "" || req.CandidateEmail == "" {
		http.Error(w, "missing fields", http.StatusBadRequest)
		return
	}
	if _, err := mail.ParseAddress(req.CandidateEmail); err != nil {
		http.Error(w, "invalid candidate_email", http.StatusBadRequest)
		return
	}
	if req.Role == "" {
		req.Role = RoleFrontend
	}
	if req.Role != RoleFrontend && req.Role != RoleBackend {
		http.Error(w, "role must be frontend or backend", http.StatusBadRequest)
		return
	}

	iv := &models.Interview{
		Token:          uuid.NewString(),
		CandidateName:  req.CandidateName,
		CandidateEmail: req.CandidateEmail,
		Role:           req.Role,
		Status:         models.StatusPending,
	}
	if _, err := h.interviews.CreateInterview(r.Context(), iv); err != nil {
		logger.ErrorContext(r.Context(), "create interview", slog.Any(logging.ErrKey, err))
		http.Error(w, "failed to create interview", http.StatusInternalServerError)
		return
	}

	writeJSON(w, iv, http.StatusCreated)
}

func (h *InterviewsHandler) ListInterviews(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	rows, err := h.interviews.ListInterviews(r.Context(), q.Get("status"), q.Get("role"))
	if err != nil {
		http.Error(w, fmt.Sprintf("list interviews: %v", err), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.Interview{}
	}

	writeJSON(w, rows, http.StatusOK)
}

func (h *InterviewsHandler) GetInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	iv, err := h.interviews.GetInterview(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("get interview: %v", err), http.StatusInternalServerError)
		return
	}
	if iv == nil {
		http.Error(w, "interview not found", http.StatusNotFound)
		return
	}
	res, err := h.results.GetResultByInterview(r.Context(), id)
	if err != nil {
		http.Error(w, fmt.Sprintf("get result: %v", err), http.StatusInternalServerError)
		return
	}

	writeJSON(w, interviewResponse{Interview: iv, Result: res}, http.StatusOK)
}

func (h *InterviewsHandler) DeleteInterview(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	if err := h.interviews.DeleteInterview(r.Context(), id); err != nil {
		http.Error(w, fmt.Sprintf("delete interview: %v", err), http.StatusInternalServerError)
		return
	}

	w.WriteHeader(http.StatusNoContent)
}

// FetchResults runs one manual provider fetch for the interview.
func (h *InterviewsHandler) FetchResults(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}

	res, err := h.svc.FetchResults(r.Context(), id)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, map[string]any{"status": "success", "evaluation": res.Evaluation, "result": res}, http.StatusOK)
}

type completeRequest struct {
	Evaluation json.RawMessage `json:"evaluation"`
}

// Complete stores an operator supplied evaluation and completes the interview.
func (h *InterviewsHandler) Complete(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req completeRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}

	res, err := h.svc.ForceComplete(r.Context(), id, req.Evaluation)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, res, http.StatusOK)
}

type linkCallRequest struct {
	CallID string `json:"call_id"`
}

// LinkCall binds a provider call id to the interview.
func (h *InterviewsHandler) LinkCall(w http.ResponseWriter, r *http.Request) {
	id, ok := pathID(r)
	if !ok {
		http.Error(w, "invalid id", http.StatusBadRequest)
		return
	}
	var req linkCallRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request", http.StatusBadRequest)
		return
	}
	req.CallID = strings.TrimSpace(req.CallID)
	if req.CallID == "" {
		http.Error(w, "call_id is required", http.StatusBadRequest)
		return
	}

	res, err := h.svc.LinkCall(r.Context(), id, req.CallID)
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, res, http.StatusOK)
}

// writeServiceError maps reconciliation errors to status codes.
func writeServiceError(w http.ResponseWriter, r *http.Request, err error) {
	switch {
	case errors.Is(err, reconcile.ErrInterviewNotFound):
		http.Error(w, "interview not found", http.StatusNotFound)
	case errors.Is(err, reconcile.ErrEvaluationNotReady):
		http.Error(w, msgEvaluationNotReady, http.StatusNotFound)
	case errors.Is(err, reconcile.ErrCallSuperseded):
		http.Error(w, err.Error(), http.StatusConflict)
	case errors.Is(err, reconcile.ErrProviderFetch):
		logger.WarnContext(r.Context(), "provider fetch failed", slog.Any(logging.ErrKey, err))
		http.Error(w, err.Error(), http.StatusBadGateway)
	case reconcile.IsClientError(err):
		http.Error(w, err.Error(), http.StatusBadRequest)
	default:
		logger.ErrorContext(r.Context(), "request failed", slog.Any(logging.ErrKey, err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
	}
}
