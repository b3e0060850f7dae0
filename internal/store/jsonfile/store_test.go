package jsonfile

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

func newTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := New(t.TempDir())
	require.NoError(t, err)
	return s
}

func TestLoadProfilesFirstRun(t *testing.T) {
	s := newTestStore(t)

	profiles, err := s.LoadProfiles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, profiles)
}

func TestProfilesRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	in := []domain.Profile{{
		ID:             "p1",
		Name:           "Default",
		Balance:        10000,
		InitialBalance: 10000,
		IsActive:       true,
		Settings: domain.ProfileSettings{
			RiskPerTrade:     5,
			AutoStopLoss:     20,
			AutoTakeProfit:   50,
			MaxOpenPositions: 10,
			AllowShorts:      true,
		},
		CreatedAt: now,
		UpdatedAt: now,
	}}

	require.NoError(t, s.SaveProfiles(ctx, in))

	out, err := s.LoadProfiles(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, in[0], out[0])
}

func TestPositionsRoundTrip(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	exit := 0.8
	in := []domain.Position{
		{ID: "pos1", ProfileID: "p1", MarketID: "m1", Outcome: domain.OutcomeYes, Status: domain.PositionStatusOpen, EntryPrice: 0.5, Amount: 100, Shares: 200},
		{ID: "pos2", ProfileID: "p1", MarketID: "m2", Outcome: domain.OutcomeNo, Status: domain.PositionStatusClosed, EntryPrice: 0.4, ExitPrice: &exit, PnL: 12.5},
	}

	require.NoError(t, s.SavePositions(ctx, in))

	out, err := s.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, in, out)
	require.NotNil(t, out[1].ExitPrice)
	assert.Equal(t, 0.8, *out[1].ExitPrice)
}

func TestSaveReplacesCollection(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	require.NoError(t, s.SavePositions(ctx, []domain.Position{{ID: "a"}, {ID: "b"}}))
	require.NoError(t, s.SavePositions(ctx, []domain.Position{{ID: "b"}}))

	out, err := s.LoadPositions(ctx)
	require.NoError(t, err)
	require.Len(t, out, 1)
	assert.Equal(t, "b", out[0].ID)
}

func TestCorruptFilePropagatesError(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, os.WriteFile(filepath.Join(dir, "positions.json"), []byte("{not json"), 0o644))

	_, err = s.LoadPositions(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "decode")
}

func TestAtomicWriteLeavesNoTempFiles(t *testing.T) {
	dir := t.TempDir()
	s, err := New(dir)
	require.NoError(t, err)

	require.NoError(t, s.SaveProfiles(context.Background(), []domain.Profile{{ID: "p1"}}))

	entries, err := os.ReadDir(dir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "profiles.json", entries[0].Name())
}

func TestAppendFill(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, s.AppendFill(ctx, domain.Fill{
			ID:        id,
			ProfileID: "p1",
			Side:      domain.OrderSideBuy,
			Status:    domain.FillStatusFilled,
			CreatedAt: time.Now().UTC(),
		}))
	}

	fills, err := s.ListFills(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, fills, 3)
	// Newest first.
	assert.Equal(t, "f3", fills[0].ID)
	assert.Equal(t, "f1", fills[2].ID)
}

func TestListFillsLimit(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	for _, id := range []string{"f1", "f2", "f3"} {
		require.NoError(t, s.AppendFill(ctx, domain.Fill{ID: id, CreatedAt: time.Now().UTC()}))
	}

	fills, err := s.ListFills(ctx, domain.ListOpts{Limit: 2})
	require.NoError(t, err)
	require.Len(t, fills, 2)
	assert.Equal(t, "f3", fills[0].ID)
}

func TestTriggersAppendAndList(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	now := time.Now().UTC().Truncate(time.Millisecond)
	events := []domain.TriggerEvent{
		{OrderID: "pos1", Type: domain.TriggerTP1, PnL: 7.5, FiredAt: now},
		{OrderID: "pos2", Type: domain.TriggerSL, PnL: -25, FiredAt: now.Add(time.Second)},
	}
	require.NoError(t, s.AppendTriggers(ctx, events))
	require.NoError(t, s.AppendTriggers(ctx, nil))

	out, err := s.ListTriggers(ctx, domain.ListOpts{})
	require.NoError(t, err)
	require.Len(t, out, 2)
	assert.Equal(t, domain.TriggerSL, out[0].Type)
	assert.Equal(t, domain.TriggerTP1, out[1].Type)
}
