package http

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/gateway"
)

type SessionService interface {
	Create(ctx context.Context, buyerID string, cart []domain.CartLineSnapshot, addressID, couponCode string) (*domain.PaymentSession, error)
	Verify(ctx context.Context, buyerID, sessionID string) (*domain.PaymentSession, error)
}

type SessionHandler struct {
	sessions SessionService
	gw       gateway.Gateway
	timeout  time.Duration
}

func NewSessionHandler(sessions SessionService, gw gateway.Gateway, timeout time.Duration) *SessionHandler {
	return &SessionHandler{sessions: sessions, gw: gw, timeout: timeout}
}

type CartLineDTO struct {
	ProductID       string   `json:"product_id"`
	ShopID          string   `json:"shop_id"`
	Quantity        int32    `json:"quantity"`
	UnitPrice       float64  `json:"unit_price"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

type CreateSessionRequestDTO struct {
	Cart              []CartLineDTO `json:"cart"`
	SelectedAddressID string        `json:"selected_address_id,omitempty"`
	Coupon            string        `json:"coupon,omitempty"`
}

type CreateSessionResponseDTO struct {
	SessionID string `json:"session_id"`
}

type SessionDetailsDTO struct {
	SessionID         string        `json:"session_id"`
	Cart              []CartLineDTO `json:"cart"`
	TotalAmount       float64       `json:"total_amount"`
	Currency          string        `json:"currency"`
	Status            string        `json:"status"`
	ShippingAddressID string        `json:"shipping_address_id,omitempty"`
	CouponCode        string        `json:"coupon_code,omitempty"`
	ExpiresAt         time.Time     `json:"expires_at"`
}

// POST /create-payment-session
func (h *SessionHandler) CreateSession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyerID := buyerIDFromContext(r.Context())
	if buyerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing buyer authentication")
		return
	}

	var req CreateSessionRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}

	cart := make([]domain.CartLineSnapshot, len(req.Cart))
	for i, line := range req.Cart {
		cart[i] = domain.CartLineSnapshot{
			ProductID:       line.ProductID,
			ShopID:          line.ShopID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			SelectedOptions: line.SelectedOptions,
		}
	}

	sess, err := h.sessions.Create(ctx, buyerID, cart, req.SelectedAddressID, req.Coupon)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateSessionResponseDTO{SessionID: sess.ID})
}

// GET /verify-payment-session?sessionId=...
func (h *SessionHandler) VerifySession(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyerID := buyerIDFromContext(r.Context())
	if buyerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing buyer authentication")
		return
	}

	sessionID := r.URL.Query().Get("sessionId")
	if sessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "sessionId query parameter is required")
		return
	}

	sess, err := h.sessions.Verify(ctx, buyerID, sessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusOK, toSessionDetails(sess))
}

type CreateIntentRequestDTO struct {
	Amount           float64 `json:"amount"`
	SessionID        string  `json:"session_id"`
	SellerAccountRef string  `json:"seller_account_ref,omitempty"`
}

type CreateIntentResponseDTO struct {
	ClientSecret string `json:"client_secret"`
}

// POST /create-payment-intent
func (h *SessionHandler) CreateIntent(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyerID := buyerIDFromContext(r.Context())
	if buyerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing buyer authentication")
		return
	}

	var req CreateIntentRequestDTO
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		respondError(w, http.StatusBadRequest, "invalid_request", "invalid JSON body")
		return
	}
	if req.Amount <= 0 {
		respondError(w, http.StatusBadRequest, "invalid_amount", "amount must be positive")
		return
	}
	if req.SessionID == "" {
		respondError(w, http.StatusBadRequest, "missing_session_id", "session_id is required")
		return
	}

	// The session must still be payable before an intent is handed out.
	sess, err := h.sessions.Verify(ctx, buyerID, req.SessionID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	// The session total is what gets charged; the client-supplied amount is
	// only an integrity check against a stale checkout page.
	if gateway.ToMinorUnits(req.Amount) != gateway.ToMinorUnits(sess.TotalAmount) {
		respondError(w, http.StatusBadRequest, "amount_mismatch", "amount does not match the session total")
		return
	}

	intent, err := h.gw.CreateIntent(ctx, gateway.IntentRequest{
		AmountMinor:         gateway.ToMinorUnits(sess.TotalAmount),
		Currency:            sess.Currency,
		TransferDestination: req.SellerAccountRef,
		Metadata: map[string]string{
			"buyer_id":   buyerID,
			"session_id": sess.ID,
		},
	})
	if err != nil {
		handleServiceError(w, err)
		return
	}

	respondJSON(w, http.StatusCreated, CreateIntentResponseDTO{ClientSecret: intent.ClientSecret})
}

func toSessionDetails(sess *domain.PaymentSession) SessionDetailsDTO {
	cart := make([]CartLineDTO, len(sess.Cart))
	for i, line := range sess.Cart {
		cart[i] = CartLineDTO{
			ProductID:       line.ProductID,
			ShopID:          line.ShopID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			SelectedOptions: line.SelectedOptions,
		}
	}
	couponCode := ""
	if sess.Coupon != nil {
		couponCode = sess.Coupon.Code
	}
	return SessionDetailsDTO{
		SessionID:         sess.ID,
		Cart:              cart,
		TotalAmount:       sess.TotalAmount,
		Currency:          sess.Currency,
		Status:            sess.Status.String(),
		ShippingAddressID: sess.ShippingAddressID,
		CouponCode:        couponCode,
		ExpiresAt:         sess.ExpiresAt,
	}
}
