package api_test

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/garnizeh/interviewer/api"
	"github.com/garnizeh/interviewer/internal/config"
	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository/mock"
)

type brokenTasks struct {
	*mock.Store
}

func (brokenTasks) ListPollTasks(ctx context.Context, status string) ([]models.PollTask, error) {
	return nil, errors.New("database is locked")
}

func TestHealthHandler(t *testing.T) {
	ctx := context.Background()
	store := mock.NewStore()
	if _, err := store.CreatePollTask(ctx, &models.PollTask{CallID: "c1", InterviewID: 1, MaxAttempts: 6}); err != nil {
		t.Fatalf("create task: %v", err)
	}
	dead := &models.PollTask{CallID: "c2", InterviewID: 2, MaxAttempts: 6, Attempts: 6}
	if _, err := store.CreatePollTask(ctx, dead); err != nil {
		t.Fatalf("create task: %v", err)
	}
	if err := store.MoveToUnresolved(ctx, dead); err != nil {
		t.Fatalf("move to unresolved: %v", err)
	}

	h := api.NewSystemHandler(store, &config.Config{})
	w := httptest.NewRecorder()
	h.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusOK {
		t.Fatalf("health: expected 200 got %d", w.Code)
	}
	if ct := w.Header().Get("Content-Type"); !strings.Contains(ct, "application/json") {
		t.Fatalf("health: expected json content-type, got %q", ct)
	}
	var body struct {
		Status     string `json:"status"`
		Polling    int    `json:"polling"`
		Unresolved int    `json:"unresolved"`
	}
	if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
		t.Fatalf("health: decode %s: %v", w.Body.String(), err)
	}
	if body.Status != "ok" || body.Polling != 1 || body.Unresolved != 1 {
		t.Fatalf("health: unexpected body %s", w.Body.String())
	}

	h = api.NewSystemHandler(brokenTasks{store}, &config.Config{})
	w = httptest.NewRecorder()
	h.HealthHandler(w, httptest.NewRequest(http.MethodGet, "/health", nil))
	if w.Code != http.StatusServiceUnavailable {
		t.Fatalf("health: expected 503 got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), `"status":"unavailable"`) {
		t.Fatalf("health: unexpected body %s", w.Body.String())
	}
}

func TestVersionHandler(t *testing.T) {
	tests := []struct {
		name     string
		cfg      config.Config
		names    []string
		matching string
	}{
		{"defaults", config.Config{}, config.DefaultEvaluationNames, "strict"},
		{"configured", config.Config{
			Evaluation: config.EvaluationConfig{Names: []string{"Custom_Evaluation"}},
			Matching:   config.MatchingConfig{AllowFallback: true},
		}, []string{"Custom_Evaluation"}, "fallback"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := api.NewSystemHandler(mock.NewStore(), &tt.cfg)
			w := httptest.NewRecorder()
			h.VersionHandler("1.2.3", "2025-08-24T00:00:00Z")(w, httptest.NewRequest(http.MethodGet, "/version", nil))
			if w.Code != http.StatusOK {
				t.Fatalf("version: expected 200 got %d", w.Code)
			}
			var body struct {
				Version         string   `json:"version"`
				BuildTime       string   `json:"buildTime"`
				EvaluationNames []string `json:"evaluation_names"`
				Matching        string   `json:"matching"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("version: decode %s: %v", w.Body.String(), err)
			}
			if body.Version != "1.2.3" || body.BuildTime != "2025-08-24T00:00:00Z" || body.Matching != tt.matching {
				t.Fatalf("version: unexpected body %s", w.Body.String())
			}
			if strings.Join(body.EvaluationNames, ",") != strings.Join(tt.names, ",") {
				t.Fatalf("version: expected names %v got %v", tt.names, body.EvaluationNames)
			}
		})
	}
}
