package redis

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// snapshotTTL bounds how long a cached quote stays usable; a one-shot check
// run should never act on prices nobody has pushed for an hour.
const snapshotTTL = time.Hour

// SnapshotCache implements domain.SnapshotCache using one Redis hash per
// market at "snapshot:{marketID}" with fields "yes", "no" and "ts".
type SnapshotCache struct {
	rdb *redis.Client
}

// NewSnapshotCache creates a SnapshotCache backed by the given Client.
func NewSnapshotCache(c *Client) *SnapshotCache {
	return &SnapshotCache{rdb: c.Underlying()}
}

func snapshotKey(marketID string) string {
	return "snapshot:" + marketID
}

// SetPrices stores every quote in the snapshot via a pipeline.
func (sc *SnapshotCache) SetPrices(ctx context.Context, snapshot domain.PriceSnapshot) error {
	if len(snapshot) == 0 {
		return nil
	}

	now := strconv.FormatInt(time.Now().UnixNano(), 10)
	pipe := sc.rdb.Pipeline()
	for marketID, mp := range snapshot {
		key := snapshotKey(marketID)
		pipe.HSet(ctx, key, map[string]interface{}{
			"yes": strconv.FormatFloat(mp.Yes, 'f', -1, 64),
			"no":  strconv.FormatFloat(mp.No, 'f', -1, 64),
			"ts":  now,
		})
		pipe.Expire(ctx, key, snapshotTTL)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("redis: set snapshot: %w", err)
	}
	return nil
}

// GetPrice retrieves the latest quote for one market. It returns
// domain.ErrNotFound when no quote has been pushed.
func (sc *SnapshotCache) GetPrice(ctx context.Context, marketID string) (domain.MarketPrice, error) {
	vals, err := sc.rdb.HGetAll(ctx, snapshotKey(marketID)).Result()
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("redis: get snapshot %s: %w", marketID, err)
	}
	if len(vals) == 0 {
		return domain.MarketPrice{}, domain.ErrNotFound
	}

	mp, err := parseQuote(vals)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("redis: parse snapshot %s: %w", marketID, err)
	}
	return mp, nil
}

// GetSnapshot retrieves quotes for multiple markets using a pipeline.
// Markets without a cached quote are silently omitted from the result.
func (sc *SnapshotCache) GetSnapshot(ctx context.Context, marketIDs []string) (domain.PriceSnapshot, error) {
	if len(marketIDs) == 0 {
		return domain.PriceSnapshot{}, nil
	}

	pipe := sc.rdb.Pipeline()
	cmds := make(map[string]*redis.MapStringStringCmd, len(marketIDs))
	for _, id := range marketIDs {
		cmds[id] = pipe.HGetAll(ctx, snapshotKey(id))
	}
	if _, err := pipe.Exec(ctx); err != nil && !errors.Is(err, redis.Nil) {
		return nil, fmt.Errorf("redis: get snapshot pipeline: %w", err)
	}

	result := make(domain.PriceSnapshot, len(marketIDs))
	for id, cmd := range cmds {
		vals, err := cmd.Result()
		if err != nil || len(vals) == 0 {
			continue
		}
		mp, err := parseQuote(vals)
		if err != nil {
			continue
		}
		result[id] = mp
	}
	return result, nil
}

func parseQuote(vals map[string]string) (domain.MarketPrice, error) {
	yes, err := strconv.ParseFloat(vals["yes"], 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("yes field: %w", err)
	}
	no, err := strconv.ParseFloat(vals["no"], 64)
	if err != nil {
		return domain.MarketPrice{}, fmt.Errorf("no field: %w", err)
	}
	return domain.MarketPrice{Yes: yes, No: no}, nil
}

// Compile-time interface check.
var _ domain.SnapshotCache = (*SnapshotCache)(nil)
