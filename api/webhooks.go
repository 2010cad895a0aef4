package api

import (
	"crypto/subtle"
	"errors"
	"io"
	"log/slog"
	"net/http"

	"github.com/garnizeh/interviewer/internal/logging"
	"github.com/garnizeh/interviewer/internal/normalize"
	"github.com/garnizeh/interviewer/internal/reconcile"
)

// HeaderVapiSecret is the shared secret header the provider sends with webhooks.
const HeaderVapiSecret = "X-Vapi-Secret"

const maxWebhookBytes = 10 << 20

type WebhookHandler struct {
	svc    *reconcile.Service
	secret string
}

// NewWebhookHandler returns the provider webhook endpoint. An empty secret
// leaves the endpoint open.
func NewWebhookHandler(svc *reconcile.Service, secret string) *WebhookHandler {
	return &WebhookHandler{svc: svc, secret: secret}
}

type webhookResponse struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Outcome string `json:"outcome,omitempty"`
}

func (h *WebhookHandler) Vapi(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if h.secret != "" && subtle.ConstantTimeCompare([]byte(r.Header.Get(HeaderVapiSecret)), []byte(h.secret)) != 1 {
		logger.WarnContext(ctx, "webhook rejected, bad secret", slog.String("remote", r.RemoteAddr))
		http.Error(w, "unauthorized", http.StatusUnauthorized)
		return
	}

	body, err := io.ReadAll(http.MaxBytesReader(w, r.Body, maxWebhookBytes))
	if err != nil {
		http.Error(w, "failed to read body", http.StatusBadRequest)
		return
	}

	out, err := h.svc.HandleWebhook(ctx, body)
	if err != nil {
		if errors.Is(err, normalize.ErrMalformed) {
			logger.WarnContext(ctx, "malformed webhook payload", slog.Any(logging.ErrKey, err))
			http.Error(w, "Invalid JSON payload", http.StatusBadRequest)
			return
		}
		// a non-2xx lets the provider retry the delivery
		logger.ErrorContext(ctx, "webhook processing failed", slog.Any(logging.ErrKey, err))
		http.Error(w, err.Error(), http.StatusInternalServerError)
		return
	}

	writeJSON(w, webhookResponse{Status: "success", Message: "Webhook processed", Outcome: out.Outcome}, http.StatusOK)
}
