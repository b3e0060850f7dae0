package ledger

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/store/jsonfile"
)

// newTestService returns a service over a jsonfile store with zero fees,
// slippage and latency so the accounting math stays exact, plus the default
// profile already materialized.
func newTestService(t *testing.T) *Service {
	t.Helper()
	cfg := DefaultConfig()
	cfg.FeeRate = 0
	cfg.SlippagePerThousand = 0
	cfg.LatencyMin = 0
	cfg.LatencyMax = 0
	return newTestServiceWith(t, cfg)
}

func newTestServiceWith(t *testing.T, cfg Config) *Service {
	t.Helper()
	store, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)

	logger := slog.New(slog.DiscardHandler)
	svc := New(store, cfg, logger)

	n := 0
	svc.newID = func() string {
		n++
		return fmt.Sprintf("id-%d", n)
	}
	require.NoError(t, svc.InitDefaults(context.Background()))
	return svc
}

func buyReq(marketID string, amount, price float64) domain.OrderRequest {
	return domain.OrderRequest{
		MarketID: marketID,
		Side:     domain.OrderSideBuy,
		Outcome:  domain.OutcomeYes,
		Amount:   amount,
		Price:    price,
	}
}

func TestBuyOpensPosition(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pos, fill, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)

	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.InDelta(t, 0.5, pos.EntryPrice, 1e-9)
	assert.InDelta(t, 200, pos.Shares, 1e-9)
	assert.InDelta(t, 100, pos.Amount, 1e-9)
	assert.Equal(t, domain.FillStatusFilled, fill.Status)

	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 9900, profiles[0].Balance, 1e-9)
	assert.Equal(t, 1, profiles[0].TotalTrades)
}

func TestBuyAppliesFeeAndSlippage(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LatencyMin = 0
	cfg.LatencyMax = 0
	svc := newTestServiceWith(t, cfg)

	pos, fill, err := svc.ExecuteOrder(context.Background(), buyReq("m1", 1000, 0.5))
	require.NoError(t, err)

	// $1000 of notional slips the price by 0.0001.
	wantExec := 0.5 * (1 + 0.0001)
	assert.InDelta(t, wantExec, fill.Price, 1e-12)
	assert.InDelta(t, 1.0, fill.Fee, 1e-12)
	assert.InDelta(t, 999/wantExec, pos.Shares, 1e-9)
}

func TestBuyTopUpUsesWeightedAverage(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	first, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)

	second, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.7))
	require.NoError(t, err)

	// Same position topped up, not a second one.
	assert.Equal(t, first.ID, second.ID)

	// 200 shares at 0.50 plus ~142.857 at 0.70: entry = 200/342.857.
	wantShares := 100/0.5 + 100/0.7
	wantEntry := 200.0 / wantShares
	assert.InDelta(t, wantShares, second.Shares, 1e-9)
	assert.InDelta(t, wantEntry, second.EntryPrice, 1e-9)
	assert.InDelta(t, 200, second.Amount, 1e-9)

	orders, _, stats, err := svc.ListOrders(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, 1, stats.OpenCount)
}

func TestBuyInsufficientFunds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	bal := 100.0
	_, err := svc.UpdateProfile(ctx, activeID(t, svc), domain.ProfileUpdate{
		Action:  domain.ProfileActionUpdateBalance,
		Balance: &bal,
	})
	require.NoError(t, err)

	_, fill, err := svc.ExecuteOrder(ctx, buyReq("m1", 500, 0.5))
	require.ErrorIs(t, err, domain.ErrInsufficientFunds)
	assert.Equal(t, domain.FillStatusRejected, fill.Status)

	// No mutation: balance intact, no position, but the rejection is logged.
	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 100, profiles[0].Balance, 1e-9)

	orders, _, _, err := svc.ListOrders(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	fills, err := svc.store.ListFills(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, fills, 1)
	assert.Equal(t, domain.FillStatusRejected, fills[0].Status)
	assert.Equal(t, "insufficient funds", fills[0].Reason)
}

func TestBuyMaxOpenPositions(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	max := 2
	_, err := svc.UpdateProfile(ctx, activeID(t, svc), domain.ProfileUpdate{
		Action:   domain.ProfileActionUpdateSettings,
		Settings: &domain.SettingsPatch{MaxOpenPositions: &max},
	})
	require.NoError(t, err)

	_, _, err = svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)
	_, _, err = svc.ExecuteOrder(ctx, buyReq("m2", 100, 0.5))
	require.NoError(t, err)

	_, _, err = svc.ExecuteOrder(ctx, buyReq("m3", 100, 0.5))
	require.ErrorIs(t, err, domain.ErrMaxOpenPositions)

	// Topping up an existing market is exempt from the cap.
	_, _, err = svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)
}

func TestSellReducesAndCloses(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pos, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)
	require.InDelta(t, 200, pos.Shares, 1e-9)

	// Sell half the stake at 0.60: 60/0.6 = 100 shares.
	sell := domain.OrderRequest{
		MarketID: "m1", Side: domain.OrderSideSell, Outcome: domain.OutcomeYes,
		Amount: 60, Price: 0.6,
	}
	pos, fill, err := svc.ExecuteOrder(ctx, sell)
	require.NoError(t, err)

	assert.InDelta(t, 100, pos.Shares, 1e-9)
	assert.Equal(t, domain.PositionStatusOpen, pos.Status)
	assert.InDelta(t, 100*(0.6-0.5), fill.PnL, 1e-9)

	// Sell the rest: 60/0.6 = 100 shares.
	pos, _, err = svc.ExecuteOrder(ctx, sell)
	require.NoError(t, err)
	assert.Equal(t, domain.PositionStatusClosed, pos.Status)
	assert.InDelta(t, 20, pos.PnL, 1e-9)

	// 10000 - 100 + 60 + 60 = 10020.
	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10020, profiles[0].Balance, 1e-9)
	assert.InDelta(t, 20, profiles[0].TotalPnL, 1e-9)
	assert.Equal(t, 1, profiles[0].WinningTrades)
}

func TestSellInsufficientShares(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)

	_, _, err = svc.ExecuteOrder(ctx, domain.OrderRequest{
		MarketID: "m1", Side: domain.OrderSideSell, Outcome: domain.OutcomeYes,
		Amount: 500, Price: 0.5,
	})
	require.ErrorIs(t, err, domain.ErrInsufficientShares)

	// Nothing mutated.
	orders, _, _, err := svc.ListOrders(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.InDelta(t, 200, orders[0].Shares, 1e-9)
}

func TestSellWithoutPositionRejected(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// A dust amount resolves to effectively zero shares, which must still
	// reject when nothing is held on the market.
	for _, amount := range []float64{1e-12, 50} {
		_, fill, err := svc.ExecuteOrder(ctx, domain.OrderRequest{
			MarketID: "m1", Side: domain.OrderSideSell, Outcome: domain.OutcomeYes,
			Amount: amount, Price: 0.5,
		})
		require.ErrorIs(t, err, domain.ErrInsufficientShares, "amount %v", amount)
		assert.Equal(t, domain.FillStatusRejected, fill.Status)
	}

	orders, _, _, err := svc.ListOrders(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, orders)
}

func TestCloseSettlesThisClosesPnL(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pos, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)

	// Take profit on half the stake at 0.80 (+30), then close the rest at
	// a loss. The losing close must count as a loss even though the
	// position's accumulated pnl stays positive.
	_, _, err = svc.ExecuteOrder(ctx, domain.OrderRequest{
		MarketID: "m1", Side: domain.OrderSideSell, Outcome: domain.OutcomeYes,
		Amount: 80, Price: 0.8,
	})
	require.NoError(t, err)

	closed, err := svc.ClosePosition(ctx, pos.ID, 0.45)
	require.NoError(t, err)
	assert.Greater(t, closed.PnL, 0.0)

	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	assert.Equal(t, 1, profiles[0].LosingTrades)
	assert.Zero(t, profiles[0].WinningTrades)
}

func TestExecuteOrderValidation(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	cases := []domain.OrderRequest{
		{Side: domain.OrderSideBuy, Outcome: domain.OutcomeYes, Amount: 100, Price: 0.5},
		{MarketID: "m1", Side: "HOLD", Outcome: domain.OutcomeYes, Amount: 100, Price: 0.5},
		{MarketID: "m1", Side: domain.OrderSideBuy, Outcome: "MAYBE", Amount: 100, Price: 0.5},
		{MarketID: "m1", Side: domain.OrderSideBuy, Outcome: domain.OutcomeYes, Amount: 0, Price: 0.5},
		{MarketID: "m1", Side: domain.OrderSideBuy, Outcome: domain.OutcomeYes, Amount: 100, Price: 1.5},
	}
	for _, req := range cases {
		_, _, err := svc.ExecuteOrder(ctx, req)
		assert.True(t, errors.Is(err, domain.ErrInvalidArgument), "req %+v: got %v", req, err)
	}

	// Validation failures append nothing to the fill log.
	fills, err := svc.store.ListFills(ctx, domain.ListOpts{})
	require.NoError(t, err)
	assert.Empty(t, fills)
}

func TestManualClose(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pos, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)

	closed, err := svc.ClosePosition(ctx, pos.ID, 0.75)
	require.NoError(t, err)

	assert.Equal(t, domain.PositionStatusClosed, closed.Status)
	require.NotNil(t, closed.ExitPrice)
	assert.InDelta(t, 0.75, *closed.ExitPrice, 1e-9)
	// 200 shares * (0.75 - 0.50) = 50.
	assert.InDelta(t, 50, closed.PnL, 1e-9)

	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10050, profiles[0].Balance, 1e-9)

	_, err = svc.ClosePosition(ctx, pos.ID, 0.8)
	require.ErrorIs(t, err, domain.ErrInvalidArgument)

	_, err = svc.ClosePosition(ctx, "nope", 0.8)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestCancelOpenRefunds(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	pos, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.NoError(t, err)

	removed, err := svc.CancelOrder(ctx, pos.ID)
	require.NoError(t, err)
	assert.False(t, removed)

	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	assert.InDelta(t, 10000, profiles[0].Balance, 1e-9)

	orders, _, _, err := svc.ListOrders(ctx, string(domain.PositionStatusCancelled), "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)

	// A second delete removes the terminal record entirely.
	removed, err = svc.CancelOrder(ctx, pos.ID)
	require.NoError(t, err)
	assert.True(t, removed)

	orders, _, _, err = svc.ListOrders(ctx, "", "", 0)
	require.NoError(t, err)
	assert.Empty(t, orders)

	_, err = svc.CancelOrder(ctx, pos.ID)
	require.ErrorIs(t, err, domain.ErrOrderNotFound)
}

func TestListOrdersFilters(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ExecuteOrder(ctx, domain.OrderRequest{
		MarketID: "m1", Side: domain.OrderSideBuy, Outcome: domain.OutcomeYes,
		Amount: 100, Price: 0.5, Source: "scanner",
	})
	require.NoError(t, err)
	_, _, err = svc.ExecuteOrder(ctx, domain.OrderRequest{
		MarketID: "m2", Side: domain.OrderSideBuy, Outcome: domain.OutcomeNo,
		Amount: 50, Price: 0.3, Source: "manual",
	})
	require.NoError(t, err)

	orders, _, stats, err := svc.ListOrders(ctx, "", "scanner", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.Equal(t, "m1", orders[0].MarketID)
	assert.Equal(t, 2, stats.OpenCount)
	assert.InDelta(t, 150, stats.TotalInvested, 1e-9)

	orders, _, _, err = svc.ListOrders(ctx, "", "", 1)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	// Newest first.
	assert.Equal(t, "m2", orders[0].MarketID)
}

func activeID(t *testing.T, svc *Service) string {
	t.Helper()
	_, id, err := svc.ListProfiles(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, id)
	return id
}

func TestSettleDelayRespectsContext(t *testing.T) {
	cfg := DefaultConfig()
	cfg.LatencyMin = time.Hour
	cfg.LatencyMax = 2 * time.Hour
	svc := newTestServiceWith(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.5))
	require.ErrorIs(t, err, context.Canceled)
}
