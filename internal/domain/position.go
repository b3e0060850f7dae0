package domain

import "time"

// Outcome is the side of a binary prediction market a position is long on.
type Outcome string

const (
	OutcomeYes Outcome = "YES"
	OutcomeNo  Outcome = "NO"
)

// PositionStatus tracks the position lifecycle. Transitions are monotonic:
// OPEN -> PARTIAL -> CLOSED, or OPEN -> CANCELLED. CLOSED and CANCELLED are
// terminal and retained for history.
type PositionStatus string

const (
	PositionStatusOpen      PositionStatus = "OPEN"
	PositionStatusPartial   PositionStatus = "PARTIAL"
	PositionStatusClosed    PositionStatus = "CLOSED"
	PositionStatusCancelled PositionStatus = "CANCELLED"
)

// Position is one directional bet on one outcome of one market, owned by
// exactly one profile. EntryPrice is the quantity-weighted average cost per
// share across every buy into the position; Amount/Shares shrink on partial
// closes while OriginalAmount/OriginalShares keep the values at open time.
//
// The tp1/tp2/sl latches each transition false->true at most once; a
// threshold never fires twice for the same position.
type Position struct {
	ID             string         `json:"id"`
	ProfileID      string         `json:"profileId"`
	MarketID       string         `json:"marketId"`
	Outcome        Outcome        `json:"outcome"`
	Status         PositionStatus `json:"status"`
	EntryPrice     float64        `json:"entryPrice"`
	ExitPrice      *float64       `json:"exitPrice,omitempty"`
	Amount         float64        `json:"amount"`
	OriginalAmount float64        `json:"originalAmount"`
	Shares         float64        `json:"shares"`
	OriginalShares float64        `json:"originalShares"`
	PnL            float64        `json:"pnl"`
	Source         string         `json:"source"`
	Notes          string         `json:"notes,omitempty"`

	TP1Percent     float64    `json:"tp1Percent"`
	TP1SizePercent float64    `json:"tp1SizePercent"`
	TP1Hit         bool       `json:"tp1Hit"`
	TP1HitAt       *time.Time `json:"tp1HitAt,omitempty"`
	TP1PnL         *float64   `json:"tp1PnL,omitempty"`
	TP2Percent     float64    `json:"tp2Percent"`
	TP2Hit         bool       `json:"tp2Hit"`
	// StopLossPercent is signed: -50 means close everything at -50%.
	StopLossPercent *float64 `json:"stopLossPercent,omitempty"`
	SLHit           bool     `json:"slHit"`

	CreatedAt time.Time  `json:"createdAt"`
	UpdatedAt time.Time  `json:"updatedAt"`
	ClosedAt  *time.Time `json:"closedAt,omitempty"`
}

// Terminal reports whether the position has reached a terminal status.
func (p Position) Terminal() bool {
	return p.Status == PositionStatusClosed || p.Status == PositionStatusCancelled
}

// Open reports whether the position still holds shares that the evaluator
// should consider (OPEN or PARTIAL).
func (p Position) Open() bool {
	return p.Status == PositionStatusOpen || p.Status == PositionStatusPartial
}
