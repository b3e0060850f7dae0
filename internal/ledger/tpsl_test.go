package ledger

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

func snapshotYes(marketID string, price float64) domain.PriceSnapshot {
	return domain.PriceSnapshot{marketID: {Yes: price, No: 1 - price}}
}

func TestEvaluatePartialThenFull(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// $100 at 0.40 with tp1=30%/50% size and tp2=100%: 250 shares.
	pos, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.4))
	require.NoError(t, err)
	require.InDelta(t, 250, pos.Shares, 1e-9)

	// +30% -> TP1 closes half.
	events, err := svc.Evaluate(ctx, snapshotYes("m1", 0.52))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TriggerTP1, events[0].Type)
	// 125 shares * (0.52 - 0.40) = 15.
	assert.InDelta(t, 15, events[0].PnL, 1e-9)

	orders, _, _, err := svc.ListOrders(ctx, "", "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	p := orders[0]
	assert.Equal(t, domain.PositionStatusPartial, p.Status)
	assert.True(t, p.TP1Hit)
	require.NotNil(t, p.TP1PnL)
	assert.InDelta(t, 15, *p.TP1PnL, 1e-9)
	assert.InDelta(t, 125, p.Shares, 1e-9)
	assert.InDelta(t, 50, p.Amount, 1e-9)

	// +100% -> TP2 closes the remainder.
	events, err = svc.Evaluate(ctx, snapshotYes("m1", 0.8))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TriggerTP2, events[0].Type)
	// 125 shares * (0.80 - 0.40) = 50.
	assert.InDelta(t, 50, events[0].PnL, 1e-9)

	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	// 10000 - 100 + (50+15) + (50+50) = 10065.
	assert.InDelta(t, 10065, profiles[0].Balance, 1e-9)
	assert.InDelta(t, 65, profiles[0].TotalPnL, 1e-9)
	assert.Equal(t, 2, profiles[0].WinningTrades)

	orders, _, _, err = svc.ListOrders(ctx, string(domain.PositionStatusClosed), "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].TP2Hit)
	// Accumulated across both closes.
	assert.InDelta(t, 65, orders[0].PnL, 1e-9)
}

func TestEvaluateStopLoss(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	sl := -20.0
	_, _, err := svc.ExecuteOrder(ctx, domain.OrderRequest{
		MarketID: "m1", Side: domain.OrderSideBuy, Outcome: domain.OutcomeYes,
		Amount: 100, Price: 0.4, StopLossPercent: &sl,
	})
	require.NoError(t, err)

	// -25% breaches the -20% stop; TP1 must not fire on the same pass.
	events, err := svc.Evaluate(ctx, snapshotYes("m1", 0.3))
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TriggerSL, events[0].Type)
	// 250 shares * (0.30 - 0.40) = -25.
	assert.InDelta(t, -25, events[0].PnL, 1e-9)

	profiles, _, err := svc.ListProfiles(ctx)
	require.NoError(t, err)
	// 10000 - 100 + (100 - 25) = 9975.
	assert.InDelta(t, 9975, profiles[0].Balance, 1e-9)
	assert.Equal(t, 1, profiles[0].LosingTrades)

	orders, _, _, err := svc.ListOrders(ctx, string(domain.PositionStatusClosed), "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
	assert.True(t, orders[0].SLHit)
	assert.False(t, orders[0].TP1Hit)
}

func TestEvaluateLatchesFireOnce(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.4))
	require.NoError(t, err)

	events, err := svc.Evaluate(ctx, snapshotYes("m1", 0.52))
	require.NoError(t, err)
	require.Len(t, events, 1)

	// Same snapshot again: TP1 already latched, nothing fires.
	events, err = svc.Evaluate(ctx, snapshotYes("m1", 0.52))
	require.NoError(t, err)
	assert.Empty(t, events)
}

func TestEvaluateSkipsMissingMarkets(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.4))
	require.NoError(t, err)

	events, err := svc.Evaluate(ctx, snapshotYes("other", 0.9))
	require.NoError(t, err)
	assert.Empty(t, events)

	// Untouched.
	orders, _, _, err := svc.ListOrders(ctx, string(domain.PositionStatusOpen), "", 0)
	require.NoError(t, err)
	require.Len(t, orders, 1)
}

func TestEvaluateUsesOutcomeSide(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	// A NO position at 0.40 profits when the NO price rises.
	_, _, err := svc.ExecuteOrder(ctx, domain.OrderRequest{
		MarketID: "m1", Side: domain.OrderSideBuy, Outcome: domain.OutcomeNo,
		Amount: 100, Price: 0.4,
	})
	require.NoError(t, err)

	// yes=0.48 means no=0.52: +30% on the NO side.
	events, err := svc.Evaluate(ctx, domain.PriceSnapshot{"m1": {Yes: 0.48, No: 0.52}})
	require.NoError(t, err)
	require.Len(t, events, 1)
	assert.Equal(t, domain.TriggerTP1, events[0].Type)
}

func TestEvaluateAppendsTriggerLog(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.4))
	require.NoError(t, err)
	_, _, err = svc.ExecuteOrder(ctx, buyReq("m2", 100, 0.5))
	require.NoError(t, err)

	// m1 crosses TP1 (+30%), m2 crosses the default -50% stop.
	events, err := svc.Evaluate(ctx, domain.PriceSnapshot{
		"m1": {Yes: 0.52, No: 0.48},
		"m2": {Yes: 0.2, No: 0.8},
	})
	require.NoError(t, err)
	require.Len(t, events, 2)

	log, err := svc.store.ListTriggers(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, log, 2)
	types := []domain.TriggerType{log[0].Type, log[1].Type}
	assert.Contains(t, types, domain.TriggerTP1)
	assert.Contains(t, types, domain.TriggerSL)
}

func TestTPSLOverview(t *testing.T) {
	svc := newTestService(t)
	ctx := context.Background()

	_, _, err := svc.ExecuteOrder(ctx, buyReq("m1", 100, 0.4))
	require.NoError(t, err)

	overview, err := svc.TPSLOverview(ctx)
	require.NoError(t, err)
	require.Len(t, overview, 1)
	assert.Equal(t, "m1", overview[0].MarketID)
	assert.InDelta(t, 30, overview[0].TP1Percent, 1e-9)
	assert.False(t, overview[0].TP1Hit)
	// No snapshot cache configured: no current price reported.
	assert.Nil(t, overview[0].CurrentPrice)
}
