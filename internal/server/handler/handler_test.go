package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/ledger"
	"github.com/alanyoungcy/paperbot/internal/store/jsonfile"
)

func newTestLedger(t *testing.T) *ledger.Service {
	t.Helper()

	store, err := jsonfile.New(t.TempDir())
	require.NoError(t, err)

	cfg := ledger.DefaultConfig()
	cfg.FeeRate = 0
	cfg.SlippagePerThousand = 0
	cfg.LatencyMin = 0
	cfg.LatencyMax = 0

	svc := ledger.New(store, cfg, slog.New(slog.DiscardHandler))
	require.NoError(t, svc.InitDefaults(context.Background()))
	return svc
}

func doJSON(t *testing.T, h http.HandlerFunc, method, target string, body any) (*httptest.ResponseRecorder, map[string]any) {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, target, &buf)
	req.Header.Set("Content-Type", "application/json")

	rec := httptest.NewRecorder()
	h(rec, req)

	var out map[string]any
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &out), "body: %s", rec.Body.String())
	return rec, out
}

func TestProfileListIncludesDefault(t *testing.T) {
	svc := newTestLedger(t)
	h := NewProfileHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.List, http.MethodGet, "/api/profiles", nil)

	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])
	assert.Equal(t, float64(1), out["count"])
	assert.NotEmpty(t, out["activeProfileId"])

	profiles := out["profiles"].([]any)
	require.Len(t, profiles, 1)
	p := profiles[0].(map[string]any)
	assert.Equal(t, "Default", p["name"])
	assert.Equal(t, 10000.0, p["balance"])
}

func TestProfileCreateAndDelete(t *testing.T) {
	svc := newTestLedger(t)
	h := NewProfileHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Create, http.MethodPost, "/api/profiles", map[string]any{
		"name":           "Aggressive",
		"initialBalance": 5000,
	})
	require.Equal(t, http.StatusCreated, rec.Code)
	created := out["profile"].(map[string]any)
	assert.Equal(t, "Aggressive", created["name"])
	assert.Equal(t, 5000.0, created["balance"])
	assert.Equal(t, true, created["isActive"])

	rec, out = doJSON(t, h.Delete, http.MethodDelete, "/api/profiles?profileId="+created["id"].(string), nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["success"])

	// Deleting the last remaining profile is refused.
	_, listOut := doJSON(t, h.List, http.MethodGet, "/api/profiles", nil)
	lastID := listOut["activeProfileId"].(string)
	rec, out = doJSON(t, h.Delete, http.MethodDelete, "/api/profiles?profileId="+lastID, nil)
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, false, out["success"])
	assert.Equal(t, "LAST_PROFILE", out["error"])
}

func TestProfileCreateBlankNameRejected(t *testing.T) {
	svc := newTestLedger(t)
	h := NewProfileHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Create, http.MethodPost, "/api/profiles", map[string]any{
		"name": "   ",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", out["error"])
}

func TestProfileUpdateSwitch(t *testing.T) {
	svc := newTestLedger(t)
	h := NewProfileHandler(svc, slog.New(slog.DiscardHandler))

	_, listOut := doJSON(t, h.List, http.MethodGet, "/api/profiles", nil)
	firstID := listOut["activeProfileId"].(string)

	_, createOut := doJSON(t, h.Create, http.MethodPost, "/api/profiles", map[string]any{"name": "Second"})
	require.Equal(t, true, createOut["success"])

	rec, out := doJSON(t, h.Update, http.MethodPatch, "/api/profiles", map[string]any{
		"profileId": firstID,
		"action":    domain.ProfileActionSwitch,
	})
	assert.Equal(t, http.StatusOK, rec.Code)
	updated := out["profile"].(map[string]any)
	assert.Equal(t, firstID, updated["id"])
	assert.Equal(t, true, updated["isActive"])
}

func TestProfileUpdateMissingID(t *testing.T) {
	svc := newTestLedger(t)
	h := NewProfileHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Update, http.MethodPatch, "/api/profiles", map[string]any{
		"action": domain.ProfileActionRename,
		"name":   "x",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", out["error"])
}

func TestOrderPlaceAndList(t *testing.T) {
	svc := newTestLedger(t)
	h := NewOrderHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Place, http.MethodPost, "/api/orders", map[string]any{
		"marketId":   "market-1",
		"outcome":    "YES",
		"amount":     100,
		"entryPrice": 0.5,
		"source":     "manual",
	})
	require.Equal(t, http.StatusCreated, rec.Code, "body: %v", out)
	order := out["order"].(map[string]any)
	assert.Equal(t, "OPEN", order["status"])
	assert.Equal(t, 200.0, order["shares"])
	fill := out["fill"].(map[string]any)
	assert.Equal(t, "FILLED", fill["status"])

	rec, out = doJSON(t, h.List, http.MethodGet, "/api/orders", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	orders := out["orders"].([]any)
	assert.Len(t, orders, 1)
	stats := out["stats"].(map[string]any)
	assert.Equal(t, float64(1), stats["openCount"])
}

func TestOrderPlaceInsufficientFunds(t *testing.T) {
	svc := newTestLedger(t)
	h := NewOrderHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Place, http.MethodPost, "/api/orders", map[string]any{
		"marketId":   "market-1",
		"outcome":    "YES",
		"amount":     999999,
		"entryPrice": 0.5,
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INSUFFICIENT_FUNDS", out["error"])
}

func TestOrderCloseAndCancel(t *testing.T) {
	svc := newTestLedger(t)
	h := NewOrderHandler(svc, slog.New(slog.DiscardHandler))

	_, placed := doJSON(t, h.Place, http.MethodPost, "/api/orders", map[string]any{
		"marketId":   "market-1",
		"outcome":    "YES",
		"amount":     100,
		"entryPrice": 0.5,
	})
	orderID := placed["order"].(map[string]any)["id"].(string)

	rec, out := doJSON(t, h.Update, http.MethodPatch, "/api/orders", map[string]any{
		"orderId":   orderID,
		"action":    "CLOSE",
		"exitPrice": 0.75,
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", out)
	closed := out["order"].(map[string]any)
	assert.Equal(t, "CLOSED", closed["status"])
	assert.InDelta(t, 50.0, closed["pnl"].(float64), 1e-9)

	// Terminal orders are removed from history on DELETE.
	rec, out = doJSON(t, h.Cancel, http.MethodDelete, "/api/orders?orderId="+orderID, nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, out["removed"])

	rec, out = doJSON(t, h.Cancel, http.MethodDelete, "/api/orders?orderId="+orderID, nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "ORDER_NOT_FOUND", out["error"])
}

func TestOrderUpdateUnsupportedAction(t *testing.T) {
	svc := newTestLedger(t)
	h := NewOrderHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Update, http.MethodPatch, "/api/orders", map[string]any{
		"orderId": "whatever",
		"action":  "RESIZE",
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", out["error"])
}

func TestTPSLCheckFiresTriggers(t *testing.T) {
	svc := newTestLedger(t)
	orders := NewOrderHandler(svc, slog.New(slog.DiscardHandler))
	tpsl := NewTPSLHandler(svc, slog.New(slog.DiscardHandler))

	_, placed := doJSON(t, orders.Place, http.MethodPost, "/api/orders", map[string]any{
		"marketId":   "market-1",
		"outcome":    "YES",
		"amount":     100,
		"entryPrice": 0.4,
	})
	require.Equal(t, true, placed["success"])

	// +30% move fires TP1 with the default thresholds.
	rec, out := doJSON(t, tpsl.Check, http.MethodPost, "/api/orders/check-tpsl", map[string]any{
		"prices": map[string]any{
			"market-1": map[string]any{"yes": 0.52, "no": 0.48},
		},
	})
	require.Equal(t, http.StatusOK, rec.Code, "body: %v", out)
	assert.Equal(t, float64(1), out["triggeredCount"])
	triggers := out["triggers"].([]any)
	require.Len(t, triggers, 1)
	assert.Equal(t, "TP1", triggers[0].(map[string]any)["type"])
	assert.Greater(t, out["balance"].(float64), 9900.0)
}

func TestTPSLCheckRequiresPrices(t *testing.T) {
	svc := newTestLedger(t)
	h := NewTPSLHandler(svc, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Check, http.MethodPost, "/api/orders/check-tpsl", map[string]any{
		"prices": map[string]any{},
	})
	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "INVALID_ARGUMENT", out["error"])
}

func TestTPSLStatusReportsOpenPositions(t *testing.T) {
	svc := newTestLedger(t)
	orders := NewOrderHandler(svc, slog.New(slog.DiscardHandler))
	tpsl := NewTPSLHandler(svc, slog.New(slog.DiscardHandler))

	_, placed := doJSON(t, orders.Place, http.MethodPost, "/api/orders", map[string]any{
		"marketId":   "market-1",
		"outcome":    "YES",
		"amount":     100,
		"entryPrice": 0.4,
	})
	require.Equal(t, true, placed["success"])

	rec, out := doJSON(t, tpsl.Status, http.MethodGet, "/api/orders/check-tpsl", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), out["count"])
	positions := out["positions"].([]any)
	require.Len(t, positions, 1)
	assert.Equal(t, "market-1", positions[0].(map[string]any)["marketId"])
}

func TestArchiveUnavailableWithoutStorage(t *testing.T) {
	h := NewArchiveHandler(nil, nil, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.Archive, http.MethodPost, "/api/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UNAVAILABLE", out["error"])

	rec, out = doJSON(t, h.List, http.MethodGet, "/api/archive", nil)
	assert.Equal(t, http.StatusServiceUnavailable, rec.Code)
	assert.Equal(t, "UNAVAILABLE", out["error"])
}

// fakeBlobStore is an in-memory domain.BlobReader for handler tests.
type fakeBlobStore struct {
	objects map[string]string
}

func (f *fakeBlobStore) Get(ctx context.Context, path string) (io.ReadCloser, error) {
	data, ok := f.objects[path]
	if !ok {
		return nil, fmt.Errorf("get %s: %w", path, domain.ErrNotFound)
	}
	return io.NopCloser(strings.NewReader(data)), nil
}

func (f *fakeBlobStore) List(ctx context.Context, prefix string) ([]domain.BlobInfo, error) {
	var infos []domain.BlobInfo
	for path, data := range f.objects {
		if strings.HasPrefix(path, prefix) {
			infos = append(infos, domain.BlobInfo{Path: path, Size: int64(len(data))})
		}
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Path < infos[j].Path })
	return infos, nil
}

func (f *fakeBlobStore) Exists(ctx context.Context, path string) (bool, error) {
	_, ok := f.objects[path]
	return ok, nil
}

func TestArchiveListAndDownload(t *testing.T) {
	blobs := &fakeBlobStore{objects: map[string]string{
		"archive/positions/2025-01.jsonl": `{"id":"p1"}` + "\n",
		"archive/fills/2025-01.jsonl":     `{"id":"f1"}` + "\n",
	}}
	h := NewArchiveHandler(nil, blobs, slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.List, http.MethodGet, "/api/archive", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(2), out["count"])

	rec, out = doJSON(t, h.List, http.MethodGet, "/api/archive?kind=fills", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	require.Equal(t, float64(1), out["count"])
	archives := out["archives"].([]any)
	assert.Equal(t, "archive/fills/2025-01.jsonl", archives[0].(map[string]any)["path"])

	req := httptest.NewRequest(http.MethodGet, "/api/archive?path=archive/positions/2025-01.jsonl", nil)
	raw := httptest.NewRecorder()
	h.List(raw, req)
	assert.Equal(t, http.StatusOK, raw.Code)
	assert.Equal(t, `{"id":"p1"}`+"\n", raw.Body.String())

	rec, out = doJSON(t, h.List, http.MethodGet, "/api/archive?path=archive/missing.jsonl", nil)
	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "NOT_FOUND", out["error"])
}

func TestHealthCheck(t *testing.T) {
	h := NewHealthHandler(slog.New(slog.DiscardHandler))

	rec, out := doJSON(t, h.HealthCheck, http.MethodGet, "/api/health", nil)
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, "ok", out["status"])
}
