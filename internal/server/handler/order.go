package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/ledger"
)

// OrderService defines the methods the order handler requires from the
// ledger service.
type OrderService interface {
	ExecuteOrder(ctx context.Context, req domain.OrderRequest) (domain.Position, domain.Fill, error)
	ListOrders(ctx context.Context, status, source string, limit int) ([]domain.Position, domain.Profile, ledger.OrderStats, error)
	ClosePosition(ctx context.Context, orderID string, exitPrice float64) (domain.Position, error)
	CancelOrder(ctx context.Context, orderID string) (bool, error)
}

// OrderHandler serves paper order endpoints.
type OrderHandler struct {
	orders OrderService
	logger *slog.Logger
}

// NewOrderHandler creates an OrderHandler with the given service and logger.
func NewOrderHandler(orders OrderService, logger *slog.Logger) *OrderHandler {
	return &OrderHandler{
		orders: orders,
		logger: logger,
	}
}

// List returns the active profile's orders plus summary stats.
// GET /api/orders?status=&source=&limit=
func (h *OrderHandler) List(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	orders, profile, stats, err := h.orders.ListOrders(r.Context(), q.Get("status"), q.Get("source"), parseLimit(r))
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if orders == nil {
		orders = []domain.Position{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orders":  orders,
		"profile": profile,
		"stats":   stats,
	})
}

// Place executes a simulated buy for the active profile.
// POST /api/orders
func (h *OrderHandler) Place(w http.ResponseWriter, r *http.Request) {
	var req domain.OrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error())
		return
	}
	if req.Side == "" {
		req.Side = domain.OrderSideBuy
	}

	pos, fill, err := h.orders.ExecuteOrder(r.Context(), req)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, map[string]any{
		"success": true,
		"order":   pos,
		"fill":    fill,
	})
}

type updateOrderRequest struct {
	OrderID   string  `json:"orderId"`
	Action    string  `json:"action"`
	ExitPrice float64 `json:"exitPrice"`
}

// Update applies an action to an existing order. CLOSE settles the full
// remaining position at the supplied exit price.
// PATCH /api/orders
func (h *OrderHandler) Update(w http.ResponseWriter, r *http.Request) {
	var req updateOrderRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error())
		return
	}
	if req.OrderID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "orderId is required")
		return
	}
	if req.Action != "CLOSE" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "unsupported action: "+req.Action)
		return
	}

	pos, err := h.orders.ClosePosition(r.Context(), req.OrderID, req.ExitPrice)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"order":   pos,
	})
}

// Cancel cancels an open order (refunding its stake) or removes a terminal
// order from history.
// DELETE /api/orders?orderId=...
func (h *OrderHandler) Cancel(w http.ResponseWriter, r *http.Request) {
	orderID := r.URL.Query().Get("orderId")
	if orderID == "" {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "orderId query parameter required")
		return
	}

	removed, err := h.orders.CancelOrder(r.Context(), orderID)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success": true,
		"orderId": orderID,
		"removed": removed,
	})
}
