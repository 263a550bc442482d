package bot

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"lobang-bot/internal/adapters/whatsapp"
)

// WebhookHandler terminates the Cloud API webhook and feeds events to the
// engine.
type WebhookHandler struct {
	engine      *Engine
	verifyToken string
	log         zerolog.Logger
}

// NewWebhookHandler creates the webhook endpoint.
func NewWebhookHandler(engine *Engine, verifyToken string, logger zerolog.Logger) *WebhookHandler {
	return &WebhookHandler{engine: engine, verifyToken: verifyToken, log: logger}
}

// Register mounts the webhook routes.
func (h *WebhookHandler) Register(r chi.Router) {
	r.Get("/webhook", whatsapp.VerifyHandler(h.verifyToken))
	r.Post("/webhook", h.receive)
}

// receive acknowledges immediately; the platform redelivers on anything
// but a fast 200, and a slow handler turns every hiccup into duplicates.
func (h *WebhookHandler) receive(w http.ResponseWriter, r *http.Request) {
	events, err := whatsapp.ParseWebhook(r.Body)
	if err != nil {
		h.log.Warn().Err(err).Msg("unparseable webhook payload")
		w.WriteHeader(http.StatusOK)
		return
	}
	w.WriteHeader(http.StatusOK)

	// Events are handled in arrival order; the transport delivers one
	// user's messages sequentially, so ordering per user is preserved.
	ctx := r.Context()
	for _, event := range events {
		h.engine.Handle(ctx, event)
	}
}
