package domain

import "time"

// TriggerType identifies which threshold fired an autonomous close.
type TriggerType string

const (
	TriggerTP1 TriggerType = "TP1"
	TriggerTP2 TriggerType = "TP2"
	TriggerSL  TriggerType = "SL"
)

// TriggerEvent records one autonomous close (or partial close) performed by
// the TP/SL evaluator. Events are immutable once written; the trigger log is
// append-only.
type TriggerEvent struct {
	OrderID string      `json:"orderId"`
	Type    TriggerType `json:"type"`
	PnL     float64     `json:"pnl"`
	FiredAt time.Time   `json:"firedAt"`
}

// MarketPrice is the current yes/no quote for one market.
type MarketPrice struct {
	Yes float64 `json:"yes"`
	No  float64 `json:"no"`
}

// PriceSnapshot maps market IDs to their current quotes. Positions whose
// market is absent from the snapshot are skipped by the evaluator.
type PriceSnapshot map[string]MarketPrice

// PriceFor returns the quote for the given outcome, with ok=false when the
// market is not present in the snapshot.
func (s PriceSnapshot) PriceFor(marketID string, outcome Outcome) (float64, bool) {
	mp, ok := s[marketID]
	if !ok {
		return 0, false
	}
	if outcome == OutcomeYes {
		return mp.Yes, true
	}
	return mp.No, true
}
