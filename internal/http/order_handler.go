package http

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/fjod/go_marketplace/internal/domain"
	"github.com/fjod/go_marketplace/internal/order"
)

type OrderReader interface {
	GetOrderByID(ctx context.Context, id uuid.UUID) (*domain.Order, error)
	ListOrdersByBuyer(ctx context.Context, buyerID string) ([]*domain.Order, error)
}

type OrderHandler struct {
	orders  OrderReader
	timeout time.Duration
}

func NewOrderHandler(orders OrderReader, timeout time.Duration) *OrderHandler {
	return &OrderHandler{orders: orders, timeout: timeout}
}

type OrderLineDTO struct {
	ProductID       string   `json:"product_id"`
	Quantity        int32    `json:"quantity"`
	UnitPrice       float64  `json:"unit_price"`
	SelectedOptions []string `json:"selected_options,omitempty"`
}

type OrderDTO struct {
	OrderID           string         `json:"order_id"`
	SessionID         string         `json:"session_id"`
	ShopID            string         `json:"shop_id"`
	SellerID          string         `json:"seller_id"`
	Lines             []OrderLineDTO `json:"lines"`
	TotalAmount       float64        `json:"total_amount"`
	Currency          string         `json:"currency"`
	Status            string         `json:"status"`
	ShippingAddressID string         `json:"shipping_address_id,omitempty"`
	CouponCode        string         `json:"coupon_code,omitempty"`
	CreatedAt         time.Time      `json:"created_at"`
}

// GET /orders
func (h *OrderHandler) ListMine(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyerID := buyerIDFromContext(r.Context())
	if buyerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing buyer authentication")
		return
	}

	orders, err := h.orders.ListOrdersByBuyer(ctx, buyerID)
	if err != nil {
		handleServiceError(w, err)
		return
	}

	dtos := make([]OrderDTO, len(orders))
	for i, ord := range orders {
		dtos[i] = toOrderDTO(ord)
	}
	respondJSON(w, http.StatusOK, dtos)
}

// GET /orders/{id}
func (h *OrderHandler) Get(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), h.timeout)
	defer cancel()

	buyerID := buyerIDFromContext(r.Context())
	if buyerID == "" {
		respondError(w, http.StatusUnauthorized, "unauthorized", "missing buyer authentication")
		return
	}

	orderID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "invalid_order_id", "order id must be a UUID")
		return
	}

	ord, err := h.orders.GetOrderByID(ctx, orderID)
	if errors.Is(err, order.ErrOrderNotFound) {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}
	if err != nil {
		handleServiceError(w, err)
		return
	}
	// Buyers only see their own orders.
	if ord.BuyerID != buyerID {
		respondError(w, http.StatusNotFound, "not_found", "order not found")
		return
	}

	respondJSON(w, http.StatusOK, toOrderDTO(ord))
}

func toOrderDTO(ord *domain.Order) OrderDTO {
	lines := make([]OrderLineDTO, len(ord.Lines))
	for i, line := range ord.Lines {
		lines[i] = OrderLineDTO{
			ProductID:       line.ProductID,
			Quantity:        line.Quantity,
			UnitPrice:       line.UnitPrice,
			SelectedOptions: line.SelectedOptions,
		}
	}
	return OrderDTO{
		OrderID:           ord.ID.String(),
		SessionID:         ord.SessionID,
		ShopID:            ord.ShopID,
		SellerID:          ord.SellerID,
		Lines:             lines,
		TotalAmount:       ord.TotalAmount,
		Currency:          ord.Currency,
		Status:            string(ord.Status),
		ShippingAddressID: ord.ShippingAddressID,
		CouponCode:        ord.CouponCode,
		CreatedAt:         ord.CreatedAt,
	}
}
