package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// residualEpsilon is the share count below which a position is considered
// fully closed; selling can leave float dust behind.
const residualEpsilon = 1e-4

// OrderStats summarizes the active profile's ledger for list responses.
type OrderStats struct {
	OpenCount     int     `json:"openCount"`
	TotalInvested float64 `json:"totalInvested"`
	TotalPnL      float64 `json:"totalPnL"`
	WinRate       float64 `json:"winRate"`
}

// ExecuteOrder simulates one fill against the active profile. The simulated
// settlement delay runs before the ledger lock is taken. Rejections for
// enumerated conditions (insufficient funds or shares, max open positions)
// still append a REJECTED fill to the log; validation failures append
// nothing.
func (s *Service) ExecuteOrder(ctx context.Context, req domain.OrderRequest) (domain.Position, domain.Fill, error) {
	if err := validateOrderRequest(req); err != nil {
		return domain.Position{}, domain.Fill{}, err
	}

	s.settleDelay(ctx)
	if err := ctx.Err(); err != nil {
		return domain.Position{}, domain.Fill{}, err
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.Position{}, domain.Fill{}, err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return domain.Position{}, domain.Fill{}, fmt.Errorf("ledger: load profiles: %w", err)
	}
	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return domain.Position{}, domain.Fill{}, fmt.Errorf("ledger: load positions: %w", err)
	}
	profile, err := activeProfile(profiles)
	if err != nil {
		return domain.Position{}, domain.Fill{}, err
	}

	switch req.Side {
	case domain.OrderSideBuy:
		return s.executeBuy(ctx, req, profiles, positions, profile)
	default:
		return s.executeSell(ctx, req, profiles, positions, profile)
	}
}

func validateOrderRequest(req domain.OrderRequest) error {
	if strings.TrimSpace(req.MarketID) == "" {
		return fmt.Errorf("ledger: market id required: %w", domain.ErrInvalidArgument)
	}
	if req.Side != domain.OrderSideBuy && req.Side != domain.OrderSideSell {
		return fmt.Errorf("ledger: side %q: %w", req.Side, domain.ErrInvalidArgument)
	}
	if req.Outcome != domain.OutcomeYes && req.Outcome != domain.OutcomeNo {
		return fmt.Errorf("ledger: outcome %q: %w", req.Outcome, domain.ErrInvalidArgument)
	}
	if req.Amount <= 0 {
		return fmt.Errorf("ledger: amount must be positive: %w", domain.ErrInvalidArgument)
	}
	if req.Price <= 0 || req.Price >= 1 {
		return fmt.Errorf("ledger: price must be in (0,1): %w", domain.ErrInvalidArgument)
	}
	return nil
}

// slippage is linear in order size: each $1k of notional moves the price by
// the configured fraction.
func (s *Service) slippage(amount float64) float64 {
	return (amount / 1000) * s.cfg.SlippagePerThousand
}

func (s *Service) executeBuy(
	ctx context.Context,
	req domain.OrderRequest,
	profiles []domain.Profile,
	positions []domain.Position,
	profile *domain.Profile,
) (domain.Position, domain.Fill, error) {
	now := s.now()

	if req.Amount > profile.Balance {
		fill := s.rejectedFill(req, profile.ID, "insufficient funds", now)
		if err := s.recordRejection(ctx, fill); err != nil {
			return domain.Position{}, fill, err
		}
		return domain.Position{}, fill, fmt.Errorf(
			"ledger: buy %.2f with balance %.2f: %w", req.Amount, profile.Balance, domain.ErrInsufficientFunds)
	}

	// Top up an existing open position on the same market+outcome rather
	// than opening a second one.
	idx := -1
	for i := range positions {
		p := &positions[i]
		if p.ProfileID == profile.ID && p.MarketID == req.MarketID && p.Outcome == req.Outcome && p.Open() {
			idx = i
			break
		}
	}

	if idx < 0 && profile.Settings.MaxOpenPositions > 0 {
		open := 0
		for i := range positions {
			if positions[i].ProfileID == profile.ID && positions[i].Open() {
				open++
			}
		}
		if open >= profile.Settings.MaxOpenPositions {
			fill := s.rejectedFill(req, profile.ID, "max open positions reached", now)
			if err := s.recordRejection(ctx, fill); err != nil {
				return domain.Position{}, fill, err
			}
			return domain.Position{}, fill, fmt.Errorf(
				"ledger: %d positions open: %w", open, domain.ErrMaxOpenPositions)
		}
	}

	slip := s.slippage(req.Amount)
	execPrice := req.Price * (1 + slip)
	fee := req.Amount * s.cfg.FeeRate
	shares := (req.Amount - fee) / execPrice

	profile.Balance -= req.Amount
	profile.TotalTrades++
	profile.UpdatedAt = now

	var pos domain.Position
	if idx >= 0 {
		p := &positions[idx]
		total := p.Shares + shares
		p.EntryPrice = (p.EntryPrice*p.Shares + execPrice*shares) / total
		p.Shares = total
		p.Amount += req.Amount
		p.OriginalShares += shares
		p.OriginalAmount += req.Amount
		p.UpdatedAt = now
		pos = *p
	} else {
		pos = domain.Position{
			ID:             s.newID(),
			ProfileID:      profile.ID,
			MarketID:       req.MarketID,
			Outcome:        req.Outcome,
			Status:         domain.PositionStatusOpen,
			EntryPrice:     execPrice,
			Amount:         req.Amount,
			OriginalAmount: req.Amount,
			Shares:         shares,
			OriginalShares: shares,
			Source:         req.Source,
			Notes:          req.Notes,
			TP1Percent:     orDefault(req.TP1Percent, s.cfg.DefaultTP1Percent),
			TP1SizePercent: orDefault(req.TP1SizePercent, s.cfg.DefaultTP1SizePercent),
			TP2Percent:     orDefault(req.TP2Percent, s.cfg.DefaultTP2Percent),
			CreatedAt:      now,
			UpdatedAt:      now,
		}
		sl := orDefault(req.StopLossPercent, s.cfg.DefaultStopLossPercent)
		if sl != 0 {
			pos.StopLossPercent = &sl
		}
		positions = append(positions, pos)
	}

	fill := domain.Fill{
		ID:         s.newID(),
		PositionID: pos.ID,
		ProfileID:  profile.ID,
		MarketID:   req.MarketID,
		Side:       domain.OrderSideBuy,
		Outcome:    req.Outcome,
		Amount:     req.Amount,
		Price:      execPrice,
		Shares:     shares,
		Fee:        fee,
		Status:     domain.FillStatusFilled,
		Source:     req.Source,
		CreatedAt:  now,
	}

	if err := s.persistExecution(ctx, profiles, positions, fill); err != nil {
		return domain.Position{}, domain.Fill{}, err
	}

	s.publish(ctx, EventOrderFilled, map[string]any{
		"order_id":   pos.ID,
		"market_id":  req.MarketID,
		"side":       string(domain.OrderSideBuy),
		"outcome":    string(req.Outcome),
		"amount":     req.Amount,
		"exec_price": execPrice,
		"shares":     shares,
	})
	s.logger.InfoContext(ctx, "ledger: buy filled",
		slog.String("order_id", pos.ID),
		slog.String("market_id", req.MarketID),
		slog.Float64("amount", req.Amount),
		slog.Float64("exec_price", execPrice),
		slog.Float64("shares", shares),
	)
	return pos, fill, nil
}

func (s *Service) executeSell(
	ctx context.Context,
	req domain.OrderRequest,
	profiles []domain.Profile,
	positions []domain.Position,
	profile *domain.Profile,
) (domain.Position, domain.Fill, error) {
	now := s.now()

	idx := -1
	for i := range positions {
		p := &positions[i]
		if p.ProfileID == profile.ID && p.MarketID == req.MarketID && p.Outcome == req.Outcome && p.Open() {
			idx = i
			break
		}
	}

	slip := s.slippage(req.Amount)
	execPrice := req.Price * (1 - slip)
	sharesToSell := req.Amount / execPrice

	held := 0.0
	if idx >= 0 {
		held = positions[idx].Shares
	}
	// idx < 0 must reject on its own: a dust sell can pass the epsilon
	// comparison against zero holdings.
	if idx < 0 || sharesToSell > held+1e-9 {
		fill := s.rejectedFill(req, profile.ID, "insufficient shares", now)
		if err := s.recordRejection(ctx, fill); err != nil {
			return domain.Position{}, fill, err
		}
		return domain.Position{}, fill, fmt.Errorf(
			"ledger: sell %.4f shares holding %.4f: %w", sharesToSell, held, domain.ErrInsufficientShares)
	}

	p := &positions[idx]
	pnl := sharesToSell * (execPrice - p.EntryPrice)
	fraction := sharesToSell / p.Shares

	profile.Balance += sharesToSell * execPrice
	profile.TotalPnL += pnl
	profile.UpdatedAt = now

	p.Shares -= sharesToSell
	p.Amount -= p.Amount * fraction
	p.PnL += pnl
	p.UpdatedAt = now

	if p.Shares < residualEpsilon {
		p.Shares = 0
		p.Amount = 0
		p.Status = domain.PositionStatusClosed
		p.ExitPrice = &execPrice
		p.ClosedAt = &now
		// Win/loss counts follow this close's pnl, not the position's
		// accumulated total.
		s.settleStats(profile, pnl)
	}

	fill := domain.Fill{
		ID:         s.newID(),
		PositionID: p.ID,
		ProfileID:  profile.ID,
		MarketID:   req.MarketID,
		Side:       domain.OrderSideSell,
		Outcome:    req.Outcome,
		Amount:     req.Amount,
		Price:      execPrice,
		Shares:     sharesToSell,
		PnL:        pnl,
		Status:     domain.FillStatusFilled,
		Source:     req.Source,
		CreatedAt:  now,
	}

	if err := s.persistExecution(ctx, profiles, positions, fill); err != nil {
		return domain.Position{}, domain.Fill{}, err
	}

	event := EventOrderFilled
	if p.Status == domain.PositionStatusClosed {
		event = EventOrderClosed
	}
	s.publish(ctx, event, map[string]any{
		"order_id":   p.ID,
		"market_id":  req.MarketID,
		"side":       string(domain.OrderSideSell),
		"outcome":    string(req.Outcome),
		"amount":     req.Amount,
		"exec_price": execPrice,
		"pnl":        pnl,
	})
	s.logger.InfoContext(ctx, "ledger: sell filled",
		slog.String("order_id", p.ID),
		slog.Float64("amount", req.Amount),
		slog.Float64("exec_price", execPrice),
		slog.Float64("pnl", pnl),
	)
	return *p, fill, nil
}

// ClosePosition closes the entire remaining position at the given exit
// price. Manual closes settle at the quoted price with no fee or slippage.
func (s *Service) ClosePosition(ctx context.Context, orderID string, exitPrice float64) (domain.Position, error) {
	if exitPrice <= 0 || exitPrice >= 1 {
		return domain.Position{}, fmt.Errorf("ledger: exit price must be in (0,1): %w", domain.ErrInvalidArgument)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.Position{}, err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("ledger: load profiles: %w", err)
	}
	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return domain.Position{}, fmt.Errorf("ledger: load positions: %w", err)
	}

	p := findPosition(positions, orderID)
	if p == nil {
		return domain.Position{}, fmt.Errorf("ledger: order %q: %w", orderID, domain.ErrOrderNotFound)
	}
	if !p.Open() {
		return domain.Position{}, fmt.Errorf("ledger: order %q already %s: %w", orderID, p.Status, domain.ErrInvalidArgument)
	}
	profile := findProfile(profiles, p.ProfileID)
	if profile == nil {
		return domain.Position{}, fmt.Errorf("ledger: profile %q: %w", p.ProfileID, domain.ErrProfileNotFound)
	}

	now := s.now()
	pnl := p.Shares * (exitPrice - p.EntryPrice)

	profile.Balance += p.Amount + pnl
	profile.TotalPnL += pnl
	profile.UpdatedAt = now
	p.PnL += pnl
	p.Shares = 0
	p.Amount = 0
	p.Status = domain.PositionStatusClosed
	p.ExitPrice = &exitPrice
	p.ClosedAt = &now
	p.UpdatedAt = now
	s.settleStats(profile, pnl)

	if err := s.saveLedger(ctx, profiles, positions); err != nil {
		return domain.Position{}, err
	}

	s.publish(ctx, EventOrderClosed, map[string]any{
		"order_id":   p.ID,
		"exit_price": exitPrice,
		"pnl":        pnl,
	})
	s.logger.InfoContext(ctx, "ledger: position closed",
		slog.String("order_id", p.ID),
		slog.Float64("exit_price", exitPrice),
		slog.Float64("pnl", pnl),
	)
	return *p, nil
}

// CancelOrder cancels an open position, refunding its remaining stake, or
// removes a terminal position from history.
func (s *Service) CancelOrder(ctx context.Context, orderID string) (removed bool, err error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return false, err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger: load profiles: %w", err)
	}
	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return false, fmt.Errorf("ledger: load positions: %w", err)
	}

	idx := -1
	for i := range positions {
		if positions[i].ID == orderID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return false, fmt.Errorf("ledger: order %q: %w", orderID, domain.ErrOrderNotFound)
	}

	p := &positions[idx]
	now := s.now()

	if p.Open() {
		profile := findProfile(profiles, p.ProfileID)
		if profile == nil {
			return false, fmt.Errorf("ledger: profile %q: %w", p.ProfileID, domain.ErrProfileNotFound)
		}
		profile.Balance += p.Amount
		profile.UpdatedAt = now
		p.Status = domain.PositionStatusCancelled
		p.Shares = 0
		p.Amount = 0
		p.ClosedAt = &now
		p.UpdatedAt = now

		if err := s.saveLedger(ctx, profiles, positions); err != nil {
			return false, err
		}
		s.publish(ctx, EventOrderCancelled, map[string]any{"order_id": orderID})
		return false, nil
	}

	// Terminal positions are removed from history on explicit delete.
	positions = append(positions[:idx], positions[idx+1:]...)
	if err := s.store.SavePositions(ctx, positions); err != nil {
		return false, fmt.Errorf("ledger: save positions: %w", err)
	}
	s.publish(ctx, EventOrderCancelled, map[string]any{"order_id": orderID, "removed": true})
	return true, nil
}

// ListOrders returns the active profile's positions filtered by status and
// source, newest first, plus summary stats.
func (s *Service) ListOrders(ctx context.Context, status, source string, limit int) ([]domain.Position, domain.Profile, OrderStats, error) {
	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return nil, domain.Profile{}, OrderStats{}, fmt.Errorf("ledger: load profiles: %w", err)
	}
	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return nil, domain.Profile{}, OrderStats{}, fmt.Errorf("ledger: load positions: %w", err)
	}
	profile, err := activeProfile(profiles)
	if err != nil {
		return nil, domain.Profile{}, OrderStats{}, err
	}

	var stats OrderStats
	stats.TotalPnL = profile.TotalPnL
	closed := profile.WinningTrades + profile.LosingTrades
	if closed > 0 {
		stats.WinRate = float64(profile.WinningTrades) / float64(closed)
	}

	out := make([]domain.Position, 0, len(positions))
	for i := len(positions) - 1; i >= 0; i-- {
		p := positions[i]
		if p.ProfileID != profile.ID {
			continue
		}
		if p.Open() {
			stats.OpenCount++
			stats.TotalInvested += p.Amount
		}
		if status != "" && string(p.Status) != status {
			continue
		}
		if source != "" && p.Source != source {
			continue
		}
		out = append(out, p)
	}
	if limit > 0 && limit < len(out) {
		out = out[:limit]
	}
	return out, *profile, stats, nil
}

// settleStats updates win/loss counters for a fully closed position.
func (s *Service) settleStats(profile *domain.Profile, pnl float64) {
	switch {
	case pnl > 0:
		profile.WinningTrades++
	case pnl < 0:
		profile.LosingTrades++
	}
}

func (s *Service) rejectedFill(req domain.OrderRequest, profileID, reason string, now time.Time) domain.Fill {
	return domain.Fill{
		ID:        s.newID(),
		ProfileID: profileID,
		MarketID:  req.MarketID,
		Side:      req.Side,
		Outcome:   req.Outcome,
		Amount:    req.Amount,
		Price:     req.Price,
		Status:    domain.FillStatusRejected,
		Reason:    reason,
		Source:    req.Source,
		CreatedAt: now,
	}
}

func (s *Service) recordRejection(ctx context.Context, fill domain.Fill) error {
	if err := s.store.AppendFill(ctx, fill); err != nil {
		return fmt.Errorf("ledger: append fill: %w", err)
	}
	s.publish(ctx, EventOrderRejected, map[string]any{
		"market_id": fill.MarketID,
		"side":      string(fill.Side),
		"amount":    fill.Amount,
		"reason":    fill.Reason,
	})
	return nil
}

func (s *Service) persistExecution(ctx context.Context, profiles []domain.Profile, positions []domain.Position, fill domain.Fill) error {
	if err := s.saveLedger(ctx, profiles, positions); err != nil {
		return err
	}
	if err := s.store.AppendFill(ctx, fill); err != nil {
		return fmt.Errorf("ledger: append fill: %w", err)
	}
	return nil
}

func (s *Service) saveLedger(ctx context.Context, profiles []domain.Profile, positions []domain.Position) error {
	if err := s.store.SavePositions(ctx, positions); err != nil {
		return fmt.Errorf("ledger: save positions: %w", err)
	}
	if err := s.store.SaveProfiles(ctx, profiles); err != nil {
		return fmt.Errorf("ledger: save profiles: %w", err)
	}
	return nil
}

func findPosition(positions []domain.Position, id string) *domain.Position {
	for i := range positions {
		if positions[i].ID == id {
			return &positions[i]
		}
	}
	return nil
}

func findProfile(profiles []domain.Profile, id string) *domain.Profile {
	for i := range profiles {
		if profiles[i].ID == id {
			return &profiles[i]
		}
	}
	return nil
}

func orDefault(v *float64, def float64) float64 {
	if v != nil {
		return *v
	}
	return def
}
