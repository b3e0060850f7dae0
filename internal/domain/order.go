package domain

import "time"

// OrderSide indicates whether a fill request buys into or sells out of a
// position.
type OrderSide string

const (
	OrderSideBuy  OrderSide = "BUY"
	OrderSideSell OrderSide = "SELL"
)

// FillStatus is the outcome of a simulated execution.
type FillStatus string

const (
	FillStatusFilled   FillStatus = "FILLED"
	FillStatusRejected FillStatus = "REJECTED"
)

// OrderRequest is a request to open or reduce a position with a USD amount at
// the caller-supplied current price. Source and Notes are opaque origin tags;
// the engine never branches on their content.
type OrderRequest struct {
	MarketID string    `json:"marketId"`
	Side     OrderSide `json:"side"`
	Outcome  Outcome   `json:"outcome"`
	Amount   float64   `json:"amount"`
	Price    float64   `json:"entryPrice"`
	Source   string    `json:"source,omitempty"`
	Notes    string    `json:"notes,omitempty"`

	// Optional per-order TP/SL overrides; nil fields fall back to the
	// engine defaults.
	TP1Percent      *float64 `json:"tp1Percent,omitempty"`
	TP1SizePercent  *float64 `json:"tp1SizePercent,omitempty"`
	TP2Percent      *float64 `json:"tp2Percent,omitempty"`
	StopLossPercent *float64 `json:"stopLossPercent,omitempty"`
}

// Fill records the result of one simulated execution, filled or rejected.
// Fills are append-only history; rejected fills carry the rejection reason
// and caused no ledger mutation.
type Fill struct {
	ID         string     `json:"id"`
	PositionID string     `json:"positionId,omitempty"`
	ProfileID  string     `json:"profileId"`
	MarketID   string     `json:"marketId"`
	Side       OrderSide  `json:"side"`
	Outcome    Outcome    `json:"outcome"`
	Amount     float64    `json:"amount"`
	Price      float64    `json:"price"`
	Shares     float64    `json:"shares"`
	Fee        float64    `json:"fee"`
	PnL        float64    `json:"pnl"`
	Status     FillStatus `json:"status"`
	Reason     string     `json:"reason,omitempty"`
	Source     string     `json:"source,omitempty"`
	CreatedAt  time.Time  `json:"createdAt"`
}
