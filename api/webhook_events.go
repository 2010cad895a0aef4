package api

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/garnizeh/interviewer/pkg/models"
	"github.com/garnizeh/interviewer/pkg/repository"
)

type WebhookEventsHandler struct {
	events repository.WebhookEventRepo
}

func NewWebhookEventsHandler(er repository.WebhookEventRepo) *WebhookEventsHandler {
	return &WebhookEventsHandler{events: er}
}

func (h *WebhookEventsHandler) ListWebhookEvents(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	limit := 50
	if l := q.Get("limit"); l != "" {
		if v, err := strconv.Atoi(l); err == nil && v > 0 && v <= 500 {
			limit = v
		}
	}

	rows, err := h.events.ListWebhookEvents(r.Context(), q.Get("outcome"), limit)
	if err != nil {
		http.Error(w, fmt.Sprintf("list webhook events: %v", err), http.StatusInternalServerError)
		return
	}
	if rows == nil {
		rows = []models.WebhookEvent{}
	}

	writeJSON(w, rows, http.StatusOK)
}
