// Package ledger implements the paper-trading engine: per-profile cash and
// position accounting, simulated order execution, and the take-profit /
// stop-loss evaluator. All mutating operations run under a single service
// lock so every read-validate-mutate-persist sequence is atomic with respect
// to the others.
package ledger

import (
	"context"
	"encoding/json"
	"log/slog"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/alanyoungcy/paperbot/internal/domain"
	"github.com/alanyoungcy/paperbot/internal/notify"
)

func newID() string { return uuid.NewString() }

// Event channel and stream names on the event bus.
const (
	EventChannel = "ledger"
	EventStream  = "ledger:events"
)

// Event types published on the bus and used for notification filtering.
const (
	EventOrderFilled     = "order_filled"
	EventOrderRejected   = "order_rejected"
	EventOrderClosed     = "order_closed"
	EventOrderCancelled  = "order_cancelled"
	EventTP1Hit          = "tp1_hit"
	EventTP2Hit          = "tp2_hit"
	EventSLHit           = "sl_hit"
	EventProfileCreated  = "profile_created"
	EventProfileUpdated  = "profile_updated"
	EventProfileDeleted  = "profile_deleted"
	EventProfileSwitched = "profile_switched"
)

const mutationLockKey = "ledger:mutate"

// Config holds the tunable engine parameters. Zero latency bounds disable
// the simulated settlement delay.
type Config struct {
	FeeRate             float64
	SlippagePerThousand float64
	LatencyMin          time.Duration
	LatencyMax          time.Duration
	LockTTL             time.Duration

	DefaultTP1Percent      float64
	DefaultTP1SizePercent  float64
	DefaultTP2Percent      float64
	DefaultStopLossPercent float64

	DefaultProfileName string
	DefaultBalance     float64
	DefaultSettings    domain.ProfileSettings
}

// DefaultConfig returns the engine defaults.
func DefaultConfig() Config {
	return Config{
		FeeRate:             0.001,
		SlippagePerThousand: 0.0001,
		LatencyMin:          100 * time.Millisecond,
		LatencyMax:          300 * time.Millisecond,
		LockTTL:             10 * time.Second,

		DefaultTP1Percent:      30,
		DefaultTP1SizePercent:  50,
		DefaultTP2Percent:      100,
		DefaultStopLossPercent: -50,

		DefaultProfileName: "Default",
		DefaultBalance:     10000,
		DefaultSettings: domain.ProfileSettings{
			RiskPerTrade:     5,
			AutoStopLoss:     20,
			AutoTakeProfit:   50,
			MaxOpenPositions: 10,
			AllowShorts:      true,
		},
	}
}

// Service is the ledger engine. Store is required; snapshots, bus, locks and
// notifier are optional collaborators that are skipped when nil.
type Service struct {
	store     domain.LedgerStore
	snapshots domain.SnapshotCache
	bus       domain.EventBus
	locks     domain.LockManager
	notifier  *notify.Notifier
	cfg       Config
	logger    *slog.Logger

	mu    sync.Mutex
	now   func() time.Time
	newID func() string
}

// Option configures optional service collaborators.
type Option func(*Service)

// WithSnapshotCache attaches a price snapshot cache.
func WithSnapshotCache(c domain.SnapshotCache) Option {
	return func(s *Service) { s.snapshots = c }
}

// WithEventBus attaches an event bus for ledger event publishing.
func WithEventBus(b domain.EventBus) Option {
	return func(s *Service) { s.bus = b }
}

// WithLockManager attaches a distributed lock guarding mutations across
// processes sharing one store.
func WithLockManager(l domain.LockManager) Option {
	return func(s *Service) { s.locks = l }
}

// WithNotifier attaches a notification dispatcher.
func WithNotifier(n *notify.Notifier) Option {
	return func(s *Service) { s.notifier = n }
}

// New creates a ledger Service backed by the given store.
func New(store domain.LedgerStore, cfg Config, logger *slog.Logger, opts ...Option) *Service {
	s := &Service{
		store:  store,
		cfg:    cfg,
		logger: logger.With(slog.String("component", "ledger")),
		now:    func() time.Time { return time.Now().UTC() },
		newID:  newID,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// lock serializes mutations, acquiring the distributed lock first when one
// is configured. The returned func releases both.
func (s *Service) lock(ctx context.Context) (func(), error) {
	var unlock func()
	if s.locks != nil {
		ttl := s.cfg.LockTTL
		if ttl <= 0 {
			ttl = 10 * time.Second
		}
		var err error
		unlock, err = s.locks.Acquire(ctx, mutationLockKey, ttl)
		if err != nil {
			return nil, err
		}
	}
	s.mu.Lock()
	return func() {
		s.mu.Unlock()
		if unlock != nil {
			unlock()
		}
	}, nil
}

// settleDelay sleeps for a random duration in the configured latency window.
// Called before the ledger lock so slow fills never block other operations.
func (s *Service) settleDelay(ctx context.Context) {
	if s.cfg.LatencyMax <= 0 {
		return
	}
	min := s.cfg.LatencyMin
	if min < 0 {
		min = 0
	}
	span := s.cfg.LatencyMax - min
	d := min
	if span > 0 {
		d += time.Duration(rand.Int63n(int64(span)))
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
	case <-t.C:
	}
}

// publish emits a ledger event on the bus and forwards it to the notifier.
// Delivery failures are logged, never propagated: events are best-effort and
// must not fail the ledger mutation that produced them.
func (s *Service) publish(ctx context.Context, event string, fields map[string]any) {
	payload := map[string]any{"event": event}
	for k, v := range fields {
		payload[k] = v
	}
	data, _ := json.Marshal(payload)

	if s.bus != nil {
		if err := s.bus.Publish(ctx, EventChannel, data); err != nil {
			s.logger.WarnContext(ctx, "ledger: publish event failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
		if err := s.bus.StreamAppend(ctx, EventStream, data); err != nil {
			s.logger.WarnContext(ctx, "ledger: stream append failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}

	if s.notifier != nil {
		if err := s.notifier.Notify(ctx, event, event, string(data)); err != nil {
			s.logger.WarnContext(ctx, "ledger: notify failed",
				slog.String("event", event),
				slog.String("error", err.Error()),
			)
		}
	}
}
