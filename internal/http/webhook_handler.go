package http

import (
	"context"
	"io"
	"net/http"
)

// SignatureHeader is the header the payment provider signs its callbacks with.
const SignatureHeader = "X-Gateway-Signature"

const maxWebhookBody = 1 << 20 // 1MB

type WebhookProcessor interface {
	Handle(ctx context.Context, payload []byte, signatureHeader string) error
}

// WebhookHandler receives gateway callbacks. There is no auth middleware on
// this route; trust is signature-based.
type WebhookHandler struct {
	dispatcher WebhookProcessor
}

func NewWebhookHandler(dispatcher WebhookProcessor) *WebhookHandler {
	return &WebhookHandler{dispatcher: dispatcher}
}

// POST /webhook/gateway
func (h *WebhookHandler) Receive(w http.ResponseWriter, r *http.Request) {
	payload, err := io.ReadAll(io.LimitReader(r.Body, maxWebhookBody))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_body", "failed to read request body")
		return
	}

	if err := h.dispatcher.Handle(r.Context(), payload, r.Header.Get(SignatureHeader)); err != nil {
		// Signature failures map to 401; anything else is a 500 so the
		// gateway redelivers an event that was never claimed.
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, map[string]string{"received": "true"})
}
