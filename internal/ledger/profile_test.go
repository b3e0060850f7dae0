package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

func TestInitDefaultsCreatesProfile(t *testing.T) {
	svc := newTestService(t)

	profiles, activeID, err := svc.ListProfiles(context.Background())
	require.NoError(t, err)
	require.Len(t, profiles, 1)

	p := profiles[0]
	assert.Equal(t, activeID, p.ID)
	assert.Equal(t, "Default", p.Name)
	assert.InDelta(t, 10000, p.Balance, 1e-9)
	assert.InDelta(t, 10000, p.InitialBalance, 1e-9)
	assert.InDelta(t, 5, p.Settings.RiskPerTrade, 1e-9)
	assert.InDelta(t, 20, p.Settings.AutoStopLoss, 1e-9)
	assert.InDelta(t, 50, p.Settings.AutoTakeProfit, 1e-9)
	assert.Equal(t, 10, p.Settings.MaxOpenPositions)
	assert.True(t, p.Settings.AllowShorts)
}

func TestInitDefaultsIdempotent(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	require.NoError(t, svc.InitDefaults(ctx))
	require.NoError(t, svc.InitDefaults(ctx))

	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Len(t, profiles, 1)
}

func TestCreateProfileActivates(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bal := 5000.0
	p, err := svc.CreateProfile(ctx, "Aggressive", &bal, nil)
	require.NoError(t, err)
	assert.True(t, p.IsActive)
	assert.InDelta(t, 5000, p.Balance, 1e-9)

	profiles, activeID, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 2)
	assert.Equal(t, p.ID, activeID)

	active := 0
	for _, pr := range profiles {
		if pr.IsActive {
			active++
		}
	}
	assert.Equal(t, 1, active)
}

func TestCreateProfileBlankName(t *testing.T) {
	svc := newTestService(t)

	_, err := svc.CreateProfile(context.Background(), "   ", nil, nil)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)
}

func TestUpdateProfileActions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id := activeID(t, svc)

	p, err := svc.UpdateProfile(ctx, id, domain.ProfileUpdate{
		Action: domain.ProfileActionRename, Name: "Renamed",
	})
	require.NoError(t, err)
	assert.Equal(t, "Renamed", p.Name)

	risk := 2.5
	p, err = svc.UpdateProfile(ctx, id, domain.ProfileUpdate{
		Action:   domain.ProfileActionUpdateSettings,
		Settings: &domain.SettingsPatch{RiskPerTrade: &risk},
	})
	require.NoError(t, err)
	assert.InDelta(t, 2.5, p.Settings.RiskPerTrade, 1e-9)
	// Unpatched fields keep their values.
	assert.Equal(t, 10, p.Settings.MaxOpenPositions)

	bal := 12345.0
	p, err = svc.UpdateProfile(ctx, id, domain.ProfileUpdate{
		Action: domain.ProfileActionUpdateBalance, Balance: &bal,
	})
	require.NoError(t, err)
	assert.InDelta(t, 12345, p.Balance, 1e-9)

	_, err = svc.UpdateProfile(ctx, id, domain.ProfileUpdate{Action: "EXPLODE"})
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.UpdateProfile(ctx, "missing", domain.ProfileUpdate{
		Action: domain.ProfileActionRename, Name: "x",
	})
	require.ErrorIs(t, err, domain.ErrProfileNotFound)
}

func TestUpdateBalanceAppliesPnLDelta(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id := activeID(t, svc)

	bal := 9500.0
	delta := 123.0
	p, err := svc.UpdateProfile(ctx, id, domain.ProfileUpdate{
		Action:      domain.ProfileActionUpdateBalance,
		Balance:     &bal,
		PnLDelta:    &delta,
		TradeResult: domain.TradeResultWin,
	})
	require.NoError(t, err)
	assert.InDelta(t, 9500, p.Balance, 1e-9)
	assert.InDelta(t, 123, p.TotalPnL, 1e-9)
	assert.Equal(t, 1, p.TotalTrades)
	assert.Equal(t, 1, p.WinningTrades)
	assert.Zero(t, p.LosingTrades)

	loss := -40.0
	p, err = svc.UpdateProfile(ctx, id, domain.ProfileUpdate{
		Action:      domain.ProfileActionUpdateBalance,
		Balance:     &bal,
		PnLDelta:    &loss,
		TradeResult: domain.TradeResultLoss,
	})
	require.NoError(t, err)
	assert.InDelta(t, 83, p.TotalPnL, 1e-9)
	assert.Equal(t, 2, p.TotalTrades)
	assert.Equal(t, 1, p.LosingTrades)

	// Without a delta the stats stay untouched.
	p, err = svc.UpdateProfile(ctx, id, domain.ProfileUpdate{
		Action: domain.ProfileActionUpdateBalance, Balance: &bal,
	})
	require.NoError(t, err)
	assert.Equal(t, 2, p.TotalTrades)
}

func TestResetRestoresBalanceAndStats(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	id := activeID(t, svc)

	pos, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)
	_, err = svc.ClosePosition(ctx, pos.ID, 0.6)
	require.NoError(t, err)

	p, err := svc.UpdateProfile(ctx, id, domain.ProfileUpdate{Action: domain.ProfileActionReset})
	require.NoError(t, err)

	assert.InDelta(t, p.InitialBalance, p.Balance, 1e-9)
	assert.Zero(t, p.TotalPnL)
	assert.Zero(t, p.TotalTrades)
	assert.Zero(t, p.WinningTrades)
	assert.Zero(t, p.LosingTrades)
}

func TestSwitchProfile(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	first := activeID(t, svc)

	second, err := svc.CreateProfile(ctx, "Second", nil, nil)
	require.NoError(t, err)
	require.Equal(t, second.ID, activeID(t, svc))

	_, err = svc.UpdateProfile(ctx, first, domain.ProfileUpdate{Action: domain.ProfileActionSwitch})
	require.NoError(t, err)
	assert.Equal(t, first, activeID(t, svc))
}

func TestDeleteLastProfileRefused(t *testing.T) {
	svc := newTestService(t)

	err := svc.DeleteProfile(context.Background(), activeID(t, svc))
	require.ErrorIs(t, err, domain.ErrLastProfile)
}

func TestDeleteActiveProfilePromotesAnother(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()
	first := activeID(t, svc)

	second, err := svc.CreateProfile(ctx, "Second", nil, nil)
	require.NoError(t, err)

	// Second is active; deleting it promotes the remaining profile and
	// removes the deleted profile's positions.
	_, _, err = svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)

	require.NoError(t, svc.DeleteProfile(ctx, second.ID))

	profiles, active, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, profiles, 1)
	assert.Equal(t, first, active)

	orders, _, _, err := svc.ListOrders(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
}
