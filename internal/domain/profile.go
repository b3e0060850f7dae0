package domain

import "time"

// ProfileSettings are the per-profile trading defaults applied to new
// positions and enforced by the execution engine.
type ProfileSettings struct {
	RiskPerTrade     float64 `json:"riskPerTrade"`
	AutoStopLoss     float64 `json:"autoStopLoss"`
	AutoTakeProfit   float64 `json:"autoTakeProfit"`
	MaxOpenPositions int     `json:"maxOpenPositions"`
	AllowShorts      bool    `json:"allowShorts"`
}

// Profile is one independent paper-trading ledger: a cash balance plus
// aggregate stats. Exactly one profile is active at any time; the active
// profile owns every new position.
type Profile struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Balance        float64         `json:"balance"`
	InitialBalance float64         `json:"initialBalance"`
	TotalPnL       float64         `json:"totalPnL"`
	TotalTrades    int             `json:"totalTrades"`
	WinningTrades  int             `json:"winningTrades"`
	LosingTrades   int             `json:"losingTrades"`
	IsActive       bool            `json:"isActive"`
	Settings       ProfileSettings `json:"settings"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ProfileAction selects the mutation a profile update performs.
type ProfileAction string

const (
	ProfileActionSwitch         ProfileAction = "SWITCH"
	ProfileActionRename         ProfileAction = "RENAME"
	ProfileActionUpdateSettings ProfileAction = "UPDATE_SETTINGS"
	ProfileActionUpdateBalance  ProfileAction = "UPDATE_BALANCE"
	ProfileActionReset          ProfileAction = "RESET"
)

// Trade result tags accepted by UPDATE_BALANCE alongside a pnl delta.
const (
	TradeResultWin  = "WIN"
	TradeResultLoss = "LOSS"
)

// SettingsPatch is a partial settings update; nil fields are left unchanged.
type SettingsPatch struct {
	RiskPerTrade     *float64 `json:"riskPerTrade,omitempty"`
	AutoStopLoss     *float64 `json:"autoStopLoss,omitempty"`
	AutoTakeProfit   *float64 `json:"autoTakeProfit,omitempty"`
	MaxOpenPositions *int     `json:"maxOpenPositions,omitempty"`
	AllowShorts      *bool    `json:"allowShorts,omitempty"`
}

// ProfileUpdate carries one profile mutation. Fields beyond Action are
// interpreted per action: RENAME reads Name, UPDATE_SETTINGS reads Settings,
// UPDATE_BALANCE reads Balance plus an optional PnLDelta/TradeResult pair
// that folds an externally settled trade into the profile stats.
type ProfileUpdate struct {
	Action      ProfileAction  `json:"action"`
	Name        string         `json:"name,omitempty"`
	Settings    *SettingsPatch `json:"settings,omitempty"`
	Balance     *float64       `json:"balance,omitempty"`
	PnLDelta    *float64       `json:"pnlDelta,omitempty"`
	TradeResult string         `json:"tradeResult,omitempty"`
}
