package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/ledger"
)

// TPSLService defines the methods the take-profit / stop-loss handler
// requires from the ledger service.
type TPSLService interface {
	Evaluate(ctx context.Context, snapshot domain.PriceSnapshot) ([]domain.TriggerEvent, error)
	CacheSnapshot(ctx context.Context, snapshot domain.PriceSnapshot)
	TPSLOverview(ctx context.Context) ([]ledger.TPSLStatus, error)
	ListProfiles(ctx context.Context) ([]domain.Profile, string, error)
}

// TPSLHandler serves trigger evaluation endpoints.
type TPSLHandler struct {
	svc    TPSLService
	logger *slog.Logger
}

// NewTPSLHandler creates a TPSLHandler with the given service and logger.
func NewTPSLHandler(svc TPSLService, logger *slog.Logger) *TPSLHandler {
	return &TPSLHandler{
		svc:    svc,
		logger: logger,
	}
}

type checkRequest struct {
	Prices domain.PriceSnapshot `json:"prices"`
}

// Check runs one trigger evaluation pass against pushed prices. The pushed
// quotes are also cached so later one-shot runs can reuse them.
// POST /api/orders/check-tpsl
func (h *TPSLHandler) Check(w http.ResponseWriter, r *http.Request) {
	var req checkRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "invalid request body: "+err.Error())
		return
	}
	if len(req.Prices) == 0 {
		writeError(w, http.StatusBadRequest, "INVALID_ARGUMENT", "prices map is required")
		return
	}

	h.svc.CacheSnapshot(r.Context(), req.Prices)

	events, err := h.svc.Evaluate(r.Context(), req.Prices)
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if events == nil {
		events = []domain.TriggerEvent{}
	}

	// Report the active profile's balance after settlement.
	var balance float64
	profiles, activeID, err := h.svc.ListProfiles(r.Context())
	if err == nil {
		for _, p := range profiles {
			if p.ID == activeID {
				balance = p.Balance
				break
			}
		}
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"success":        true,
		"triggers":       events,
		"triggeredCount": len(events),
		"balance":        balance,
	})
}

// Status reports every open position's distance to its thresholds without
// mutating anything.
// GET /api/orders/check-tpsl
func (h *TPSLHandler) Status(w http.ResponseWriter, r *http.Request) {
	overview, err := h.svc.TPSLOverview(r.Context())
	if err != nil {
		writeDomainError(w, h.logger, r, err)
		return
	}
	if overview == nil {
		overview = []ledger.TPSLStatus{}
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"success":   true,
		"positions": overview,
		"count":     len(overview),
	})
}
