package http

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
)

// NewRouter mounts the payment pipeline's inbound surface. The webhook route
// deliberately has no auth middleware: its trust is signature-based.
func NewRouter(sessions *SessionHandler, webhooks *WebhookHandler, orders *OrderHandler, refunds *RefundHandler, requestTimeout time.Duration) *chi.Mux {
	r := chi.NewRouter()

	r.Use(middleware.Logger)
	r.Use(middleware.Recoverer)
	r.Use(middleware.RequestID)
	r.Use(RequestIDMiddleware)
	r.Use(middleware.Timeout(requestTimeout))

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		respondJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	r.Post("/webhook/gateway", webhooks.Receive)

	r.Group(func(r chi.Router) {
		r.Use(AuthMiddleware)

		r.Post("/create-payment-session", sessions.CreateSession)
		r.Get("/verify-payment-session", sessions.VerifySession)
		r.Post("/create-payment-intent", sessions.CreateIntent)

		r.Route("/orders", func(r chi.Router) {
			r.Get("/", orders.ListMine)
			r.Get("/{id}", orders.Get)
		})

		r.Route("/refunds", func(r chi.Router) {
			r.Post("/", refunds.Request)
			r.Get("/pending", refunds.ListPending)
			r.Post("/{id}/approve", refunds.Approve)
			r.Post("/{id}/reject", refunds.Reject)
		})
	})

	return r
}
