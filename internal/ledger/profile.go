package ledger

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// InitDefaults materializes the default profile when the store holds none,
// and repairs the active flag so exactly one profile is active. Called once
// at startup; listing never creates state.
func (s *Service) InitDefaults(ctx context.Context) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load profiles: %w", err)
	}

	changed := false
	if len(profiles) == 0 {
		now := s.now()
		profiles = []domain.Profile{{
			ID:             s.newID(),
			Name:           s.cfg.DefaultProfileName,
			Balance:        s.cfg.DefaultBalance,
			InitialBalance: s.cfg.DefaultBalance,
			IsActive:       true,
			Settings:       s.cfg.DefaultSettings,
			CreatedAt:      now,
			UpdatedAt:      now,
		}}
		changed = true
		s.logger.InfoContext(ctx, "ledger: default profile created",
			slog.String("profile_id", profiles[0].ID),
			slog.Float64("balance", profiles[0].Balance),
		)
	}

	active := 0
	for i := range profiles {
		if profiles[i].IsActive {
			active++
		}
	}
	if active != 1 {
		for i := range profiles {
			profiles[i].IsActive = i == 0
		}
		changed = true
	}

	if !changed {
		return nil
	}
	if err := s.store.SaveProfiles(ctx, profiles); err != nil {
		return fmt.Errorf("ledger: save profiles: %w", err)
	}
	return nil
}

// ListProfiles returns all profiles plus the active profile's ID.
func (s *Service) ListProfiles(ctx context.Context) ([]domain.Profile, string, error) {
	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return nil, "", fmt.Errorf("ledger: load profiles: %w", err)
	}
	var activeID string
	for _, p := range profiles {
		if p.IsActive {
			activeID = p.ID
			break
		}
	}
	return profiles, activeID, nil
}

// CreateProfile creates a new profile and makes it active. A blank name is
// rejected; initialBalance and settings fall back to the engine defaults
// when nil.
func (s *Service) CreateProfile(ctx context.Context, name string, initialBalance *float64, settings *domain.SettingsPatch) (domain.Profile, error) {
	if strings.TrimSpace(name) == "" {
		return domain.Profile{}, fmt.Errorf("ledger: profile name: %w", domain.ErrInvalidArgument)
	}

	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("ledger: load profiles: %w", err)
	}

	balance := s.cfg.DefaultBalance
	if initialBalance != nil {
		if *initialBalance <= 0 {
			return domain.Profile{}, fmt.Errorf("ledger: initial balance must be positive: %w", domain.ErrInvalidArgument)
		}
		balance = *initialBalance
	}

	now := s.now()
	p := domain.Profile{
		ID:             s.newID(),
		Name:           strings.TrimSpace(name),
		Balance:        balance,
		InitialBalance: balance,
		IsActive:       true,
		Settings:       applySettingsPatch(s.cfg.DefaultSettings, settings),
		CreatedAt:      now,
		UpdatedAt:      now,
	}

	for i := range profiles {
		profiles[i].IsActive = false
	}
	profiles = append(profiles, p)

	if err := s.store.SaveProfiles(ctx, profiles); err != nil {
		return domain.Profile{}, fmt.Errorf("ledger: save profiles: %w", err)
	}

	s.publish(ctx, EventProfileCreated, map[string]any{
		"profile_id": p.ID,
		"name":       p.Name,
		"balance":    p.Balance,
	})
	s.logger.InfoContext(ctx, "ledger: profile created",
		slog.String("profile_id", p.ID),
		slog.String("name", p.Name),
	)
	return p, nil
}

// UpdateProfile applies one profile mutation selected by upd.Action.
func (s *Service) UpdateProfile(ctx context.Context, profileID string, upd domain.ProfileUpdate) (domain.Profile, error) {
	unlock, err := s.lock(ctx)
	if err != nil {
		return domain.Profile{}, err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return domain.Profile{}, fmt.Errorf("ledger: load profiles: %w", err)
	}

	idx := -1
	for i := range profiles {
		if profiles[i].ID == profileID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return domain.Profile{}, fmt.Errorf("ledger: profile %q: %w", profileID, domain.ErrProfileNotFound)
	}
	p := &profiles[idx]

	event := EventProfileUpdated
	switch upd.Action {
	case domain.ProfileActionSwitch:
		for i := range profiles {
			profiles[i].IsActive = i == idx
		}
		event = EventProfileSwitched

	case domain.ProfileActionRename:
		name := strings.TrimSpace(upd.Name)
		if name == "" {
			return domain.Profile{}, fmt.Errorf("ledger: profile name: %w", domain.ErrInvalidArgument)
		}
		p.Name = name

	case domain.ProfileActionUpdateSettings:
		if upd.Settings == nil {
			return domain.Profile{}, fmt.Errorf("ledger: settings patch required: %w", domain.ErrInvalidArgument)
		}
		p.Settings = applySettingsPatch(p.Settings, upd.Settings)

	case domain.ProfileActionUpdateBalance:
		if upd.Balance == nil || *upd.Balance < 0 {
			return domain.Profile{}, fmt.Errorf("ledger: balance required: %w", domain.ErrInvalidArgument)
		}
		p.Balance = *upd.Balance
		// A pnl delta folds one externally settled trade into the stats.
		if upd.PnLDelta != nil {
			p.TotalPnL += *upd.PnLDelta
			p.TotalTrades++
			switch upd.TradeResult {
			case domain.TradeResultWin:
				p.WinningTrades++
			case domain.TradeResultLoss:
				p.LosingTrades++
			}
		}

	case domain.ProfileActionReset:
		// Restores cash and stats only; open positions are untouched.
		p.Balance = p.InitialBalance
		p.TotalPnL = 0
		p.TotalTrades = 0
		p.WinningTrades = 0
		p.LosingTrades = 0

	default:
		return domain.Profile{}, fmt.Errorf("ledger: unknown profile action %q: %w", upd.Action, domain.ErrInvalidArgument)
	}
	p.UpdatedAt = s.now()

	if err := s.store.SaveProfiles(ctx, profiles); err != nil {
		return domain.Profile{}, fmt.Errorf("ledger: save profiles: %w", err)
	}

	s.publish(ctx, event, map[string]any{
		"profile_id": p.ID,
		"action":     string(upd.Action),
	})
	return *p, nil
}

// DeleteProfile removes a profile and its positions. Deleting the sole
// profile is refused; deleting the active profile activates the first
// remaining one.
func (s *Service) DeleteProfile(ctx context.Context, profileID string) error {
	unlock, err := s.lock(ctx)
	if err != nil {
		return err
	}
	defer unlock()

	profiles, err := s.store.LoadProfiles(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load profiles: %w", err)
	}
	if len(profiles) <= 1 {
		return fmt.Errorf("ledger: delete profile %q: %w", profileID, domain.ErrLastProfile)
	}

	idx := -1
	for i := range profiles {
		if profiles[i].ID == profileID {
			idx = i
			break
		}
	}
	if idx < 0 {
		return fmt.Errorf("ledger: profile %q: %w", profileID, domain.ErrProfileNotFound)
	}
	wasActive := profiles[idx].IsActive
	profiles = append(profiles[:idx], profiles[idx+1:]...)
	if wasActive {
		profiles[0].IsActive = true
	}

	positions, err := s.store.LoadPositions(ctx)
	if err != nil {
		return fmt.Errorf("ledger: load positions: %w", err)
	}
	kept := positions[:0]
	for _, pos := range positions {
		if pos.ProfileID != profileID {
			kept = append(kept, pos)
		}
	}

	if err := s.store.SaveProfiles(ctx, profiles); err != nil {
		return fmt.Errorf("ledger: save profiles: %w", err)
	}
	if err := s.store.SavePositions(ctx, kept); err != nil {
		return fmt.Errorf("ledger: save positions: %w", err)
	}

	s.publish(ctx, EventProfileDeleted, map[string]any{"profile_id": profileID})
	s.logger.InfoContext(ctx, "ledger: profile deleted",
		slog.String("profile_id", profileID),
	)
	return nil
}

func applySettingsPatch(base domain.ProfileSettings, patch *domain.SettingsPatch) domain.ProfileSettings {
	if patch == nil {
		return base
	}
	if patch.RiskPerTrade != nil {
		base.RiskPerTrade = *patch.RiskPerTrade
	}
	if patch.AutoStopLoss != nil {
		base.AutoStopLoss = *patch.AutoStopLoss
	}
	if patch.AutoTakeProfit != nil {
		base.AutoTakeProfit = *patch.AutoTakeProfit
	}
	if patch.MaxOpenPositions != nil {
		base.MaxOpenPositions = *patch.MaxOpenPositions
	}
	if patch.AllowShorts != nil {
		base.AllowShorts = *patch.AllowShorts
	}
	return base
}

// activeProfile returns a pointer into profiles for the active profile.
func activeProfile(profiles []domain.Profile) (*domain.Profile, error) {
	for i := range profiles {
		if profiles[i].IsActive {
			return &profiles[i], nil
		}
	}
	return nil, fmt.Errorf("ledger: no active profile: %w", domain.ErrProfileNotFound)
}
