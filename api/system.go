package api

import (
	"log/slog"
	"net/http"

	"github.com/garnizeh/interviewer/internal/config"
	"github.com/garnizeh/interviewer/internal/logging"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

// SystemHandler serves the open health and version endpoints.
type SystemHandler struct {
	tasks           repository.PollTaskRepo
	evaluationNames []string
	allowFallback   bool
}

func NewSystemHandler(tasks repository.PollTaskRepo, cfg *config.Config) *SystemHandler {
	names := cfg.Evaluation.Names
	if len(names) == 0 {
		names = config.DefaultEvaluationNames
	}
	return &SystemHandler{tasks: tasks, evaluationNames: names, allowFallback: cfg.Matching.AllowFallback}
}

type healthResponse struct {
	Status     string `json:"status"`
	Service    string `json:"service"`
	Polling    int    `json:"polling"`
	Unresolved int    `json:"unresolved"`
}

// HealthHandler reports whether the store answers, with the number of calls
// being polled and of open unresolved reconciliations.
func (h *SystemHandler) HealthHandler(w http.ResponseWriter, r *http.Request) {
	resp := healthResponse{Status: "ok", Service: "interviewer"}

	polling, err := h.tasks.ListPollTasks(r.Context(), models.PollStatusPolling)
	if err == nil {
		resp.Polling = len(polling)
		var open []models.UnresolvedReconciliation
		open, err = h.tasks.ListUnresolved(r.Context(), false)
		resp.Unresolved = len(open)
	}
	if err != nil {
		logger.ErrorContext(r.Context(), "health check failed", slog.Any(logging.ErrKey, err))
		writeJSON(w, healthResponse{Status: "unavailable", Service: "interviewer"}, http.StatusServiceUnavailable)
		return
	}
	writeJSON(w, resp, http.StatusOK)
}

type versionResponse struct {
	Version         string   `json:"version"`
	BuildTime       string   `json:"buildTime"`
	EvaluationNames []string `json:"evaluation_names"`
	Matching        string   `json:"matching"`
}

// VersionHandler reports the build and the reconciliation settings it runs
// with: accepted evaluation names and the matching mode.
func (h *SystemHandler) VersionHandler(version, buildTime string) http.HandlerFunc {
	matching := "strict"
	if h.allowFallback {
		matching = "fallback"
	}
	resp := versionResponse{Version: version, BuildTime: buildTime, EvaluationNames: h.evaluationNames, Matching: matching}
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, resp, http.StatusOK)
	}
}
