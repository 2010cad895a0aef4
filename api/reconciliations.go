package api

import (
	"fmt"
	"net/http"

	"github.com/garnizeh/interviewer/internal/reconcile"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

type ReconciliationsHandler struct {
	tasks repository.PollTaskRepo
	svc   *reconcile.Service
}

func NewReconciliationsHandler(tr repository.PollTaskRepo, svc *reconcile.Service) *ReconciliationsHandler {
	return &ReconciliationsHandler{tasks: tr, svc: svc}
}

// ListUnresolved returns exhausted reconciliations; ?all=true includes ones
// resolved since.
func (h *ReconciliationsHandler) ListUnresolved(w http.ResponseWriter, r *http.Request) {
	all := r.URL.Query().Get("all") == "true"
	rows, err := h.tasks.ListUnresolved(r.Context(), all)
	if err != nil {
		http.Error(w, fmt.Sprintf("list unresolved: %v", err), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.UnresolvedReconciliation{}
	}

	writeJSON(w, rows, http.StatusOK)
}

func (h *ReconciliationsHandler) ListTasks(w http.ResponseWriter, r *http.Request) {
	rows, err := h.tasks.ListPollTasks(r.Context(), r.URL.Query().Get("status"))
	if err != nil {
		http.Error(w, fmt.Sprintf("list poll tasks: %v", err), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.PollTask{}
	}

	writeJSON(w, rows, http.StatusOK)
}

// RetryUnresolved runs one manual fetch per open unresolved reconciliation.
func (h *ReconciliationsHandler) RetryUnresolved(w http.ResponseWriter, r *http.Request) {
	report, err := h.svc.RetryUnresolved(r.Context())
	if err != nil {
		writeServiceError(w, r, err)
		return
	}

	writeJSON(w, report, http.StatusOK)
}
