package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// TPSLStatus describes one open position's distance to its thresholds, for
// the read-only status view.
type TPSLStatus struct {
	OrderID        string         `json:"orderId"`
	MarketID       string         `json:"marketId"`
	Outcome        domain.Outcome `json:"outcome"`
	Status         string         `json:"status"`
	EntryPrice     float64        `json:"entryPrice"`
	CurrentPrice   *float64       `json:"currentPrice,omitempty"`
	PriceChangePct *float64       `json:"priceChangePct,omitempty"`
	TP1Percent     float64        `json:"tp1Percent"`
	TP1Hit         bool           `json:"tp1Hit"`
	TP2Percent     float64        `json:"tp2Percent"`
	TP2Hit         bool           `json:"tp2Hit"`
	StopLoss       *float64       `json:"stopLossPercent,omitempty"`
	SLHit          bool           `json:"slHit"`
}

// Evaluate walks every open position against the price snapshot and fires
// any crossed thresholds. Positions whose market is missing from the
// snapshot are skipped. Stop-loss takes priority over TP2, TP2 over TP1;
// each latch fires at most once per position. The whole pass persists
// positions and profiles once and appends all trigger events together.
//
// Triggered closes settle at the snapshot price with no fee or slippage.
func (s *Service) Evaluate(ctx context.Context, snapshot domain.PriceSnapshot) ([]domain.TriggerEvent, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return nil, err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load profiles: %w", err)
	}
	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load positions: %w", err)
	}

	var events []domain.TriggerEvent
	for i := range positions {
		p := &positions[i]
		if !p.Open() {
			continue
		}
		price, ok := snapshot.PriceFor(p.MarketID, p.Outcome)
		if !ok || price <= 0 {
			continue
		}
		profile := findProfile(profiles, p.ProfileID)
		if profile == nil {
			s.logger.WarnContext(ctx, "ledger: position without profile skipped",
				slog.String("order_id", p.ID),
				slog.String("profile_id", p.ProfileID),
			)
			continue
		}

		changePct := (price - p.EntryPrice) / p.EntryPrice * 100
		now := s.now()

		switch {
		case p.StopLossPercent != nil && !p.SLHit && changePct <= *p.StopLossPercent:
			pnl := s.closeRemainder(p, profile, price, now)
			p.SLHit = true
			events = append(events, domain.TriggerEvent{
				OrderID: p.ID, Type: domain.TriggerSL, PnL: pnl, FiredAt: now,
			})

		case p.TP2Percent > 0 && !p.TP2Hit && changePct >= p.TP2Percent:
			pnl := s.closeRemainder(p, profile, price, now)
			p.TP2Hit = true
			events = append(events, domain.TriggerEvent{
				OrderID: p.ID, Type: domain.TriggerTP2, PnL: pnl, FiredAt: now,
			})

		case p.TP1Percent > 0 && !p.TP1Hit && changePct >= p.TP1Percent:
			pnl := s.closePartial(p, profile, price, p.TP1SizePercent, now)
			p.TP1Hit = true
			p.TP1HitAt = &now
			tp1PnL := pnl
			p.TP1PnL = &tp1PnL
			events = append(events, domain.TriggerEvent{
				OrderID: p.ID, Type: domain.TriggerTP1, PnL: pnl, FiredAt: now,
			})
		}
	}

	if len(events) == 0 {
		return nil, nil
	}

	if err := s.saveLedger(ctx, profiles, positions); err != nil {
		return nil, err
	}
	if err := s.store.AppendTriggers(ctx, events); err != nil {
		return nil, fmt.Errorf("ledger: append triggers: %w", err)
	}

	for _, ev := range events {
		event := EventTP1Hit
		switch ev.Type {
		case domain.TriggerTP2:
			event = EventTP2Hit
		case domain.TriggerSL:
			event = EventSLHit
		}
		s.publish(ctx, event, map[string]any{
			"order_id": ev.OrderID,
			"pnl":      ev.PnL,
		})
	}
	s.logger.InfoContext(ctx, "ledger: triggers fired",
		slog.Int("count", len(events)),
	)
	return events, nil
}

// closeRemainder closes everything the position still holds at price and
// settles the realized pnl against the owning profile.
func (s *Service) closeRemainder(p *domain.Position, profile *domain.Profile, price float64, now time.Time) float64 {
	pnl := p.Shares * (price - p.EntryPrice)

	profile.Balance += p.Amount + pnl
	profile.TotalPnL += pnl
	profile.UpdatedAt = now

	p.PnL += pnl
	p.Shares = 0
	p.Amount = 0
	p.Status = domain.PositionStatusClosed
	p.ExitPrice = &price
	p.ClosedAt = &now
	p.UpdatedAt = now
	s.settleStats(profile, pnl)
	return pnl
}

// closePartial closes sizePercent of the current holding at price, leaving
// the position PARTIAL.
func (s *Service) closePartial(p *domain.Position, profile *domain.Profile, price, sizePercent float64, now time.Time) float64 {
	fraction := sizePercent / 100
	if fraction >= 1 {
		return s.closeRemainder(p, profile, price, now)
	}

	sharesClosed := p.Shares * fraction
	amountClosed := p.Amount * fraction
	pnl := sharesClosed * (price - p.EntryPrice)

	profile.Balance += amountClosed + pnl
	profile.TotalPnL += pnl
	profile.UpdatedAt = now

	p.Shares -= sharesClosed
	p.Amount -= amountClosed
	p.PnL += pnl
	p.Status = domain.PositionStatusPartial
	p.UpdatedAt = now
	s.settleStats(profile, pnl)
	return pnl
}

// EvaluateFromCache runs one evaluation pass using the snapshot cache,
// fetching the latest stored quote for every open position's market. Used
// by one-shot check runs when no prices are pushed in.
func (s *Service) EvaluateFromCache(ctx context.Context) ([]domain.TriggerEvent, error) {
	if s.snapshots == nil {
		return nil, fmt.Errorf("ledger: snapshot cache not configured: %w", domain.ErrInvalidArgument)
	}

	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load positions: %w", err)
	}
	seen := map[string]bool{}
	var ids []string
	for _, p := range positions {
		if p.Open() && !seen[p.MarketID] {
			seen[p.MarketID] = true
			ids = append(ids, p.MarketID)
		}
	}
	if len(ids) == 0 {
		return nil, nil
	}

	snapshot, err := s.snapshots.GetSnapshot(ctx, ids)
	if err != nil {
		return nil, fmt.Errorf("ledger: load price snapshot: %w", err)
	}
	return s.Evaluate(ctx, snapshot)
}

// CacheSnapshot stores pushed prices for later cached evaluation runs.
// A nil snapshot cache makes this a no-op.
func (s *Service) CacheSnapshot(ctx context.Context, snapshot domain.PriceSnapshot) {
	if s.snapshots == nil || len(snapshot) == 0 {
		return
	}
	if err := s.snapshots.SetPrices(ctx, snapshot); err != nil {
		s.logger.WarnContext(ctx, "ledger: cache snapshot failed",
			slog.String("error", err.Error()),
		)
	}
}

// TPSLOverview returns the threshold status of every open position. Current
// prices come from the snapshot cache when one is configured; positions
// without a cached quote report entry data only.
func (s *Service) TPSLOverview(ctx context.Context) ([]TPSLStatus, error) {
	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return nil, fmt.Errorf("ledger: load positions: %w", err)
	}

	var out []TPSLStatus
	for _, p := range positions {
		if !p.Open() {
			continue
		}
		st := TPSLStatus{
			OrderID:    p.ID,
			MarketID:   p.MarketID,
			Outcome:    p.Outcome,
			Status:     string(p.Status),
			EntryPrice: p.EntryPrice,
			TP1Percent: p.TP1Percent,
			TP1Hit:     p.TP1Hit,
			TP2Percent: p.TP2Percent,
			TP2Hit:     p.TP2Hit,
			StopLoss:   p.StopLossPercent,
			SLHit:      p.SLHit,
		}
		if s.snapshots != nil {
			if mp, err := s.snapshots.GetPrice(ctx, p.MarketID); err == nil {
				price := mp.Yes
				if p.Outcome == domain.OutcomeNo {
					price = mp.No
				}
				if price > 0 {
					change := (price - p.EntryPrice) / p.EntryPrice * 100
					st.CurrentPrice = &price
					st.PriceChangePct = &change
				}
			}
		}
		out = append(out, st)
	}
	return out, nil
}
