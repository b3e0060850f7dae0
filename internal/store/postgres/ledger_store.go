package postgres

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

// LedgerStore implements domain.LedgerStore using PostgreSQL. Collection
// saves replace the stored set in one transaction: every row is upserted and
// rows absent from the new collection are deleted. Fills and triggers are
// insert-only.
type LedgerStore struct {
	pool *pgxpool.Pool
}

// NewLedgerStore creates a LedgerStore backed by the given connection pool.
func NewLedgerStore(pool *pgxpool.Pool) *LedgerStore {
	return &LedgerStore{pool: pool}
}

// LoadProfiles returns all stored profiles.
func (s *LedgerStore) LoadProfiles(ctx context.Context) ([]domain.Profile, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT id, name, balance, initial_balance, total_pnl, total_trades,
		       winning_trades, losing_trades, is_active, settings,
		       created_at, updated_at
		FROM profiles ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load profiles: %w", err)
	}
	defer rows.Close()

	var profiles []domain.Profile
	for rows.Next() {
		var p domain.Profile
		var settings []byte
		if err := rows.Scan(
			&p.ID, &p.Name, &p.Balance, &p.InitialBalance, &p.TotalPnL,
			&p.TotalTrades, &p.WinningTrades, &p.LosingTrades, &p.IsActive,
			&settings, &p.CreatedAt, &p.UpdatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan profile: %w", err)
		}
		if err := json.Unmarshal(settings, &p.Settings); err != nil {
			return nil, fmt.Errorf("postgres: decode settings for %s: %w", p.ID, err)
		}
		profiles = append(profiles, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load profiles: %w", err)
	}
	return profiles, nil
}

// SaveProfiles replaces the stored profile collection.
func (s *LedgerStore) SaveProfiles(ctx context.Context, profiles []domain.Profile) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save profiles: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(profiles))
	for _, p := range profiles {
		settings, err := json.Marshal(p.Settings)
		if err != nil {
			return fmt.Errorf("postgres: encode settings for %s: %w", p.ID, err)
		}
		if _, err := tx.Exec(ctx, `
			INSERT INTO profiles (
				id, name, balance, initial_balance, total_pnl, total_trades,
				winning_trades, losing_trades, is_active, settings,
				created_at, updated_at
			) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
			ON CONFLICT (id) DO UPDATE SET
				name = EXCLUDED.name,
				balance = EXCLUDED.balance,
				initial_balance = EXCLUDED.initial_balance,
				total_pnl = EXCLUDED.total_pnl,
				total_trades = EXCLUDED.total_trades,
				winning_trades = EXCLUDED.winning_trades,
				losing_trades = EXCLUDED.losing_trades,
				is_active = EXCLUDED.is_active,
				settings = EXCLUDED.settings,
				updated_at = EXCLUDED.updated_at`,
			p.ID, p.Name, p.Balance, p.InitialBalance, p.TotalPnL, p.TotalTrades,
			p.WinningTrades, p.LosingTrades, p.IsActive, settings,
			p.CreatedAt, p.UpdatedAt,
		); err != nil {
			return fmt.Errorf("postgres: upsert profile %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM profiles WHERE NOT (id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("postgres: prune profiles: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save profiles: %w", err)
	}
	return nil
}

const positionCols = `id, profile_id, market_id, outcome, status,
	entry_price, exit_price, amount, original_amount, shares, original_shares,
	pnl, source, notes, tp1_percent, tp1_size_percent, tp1_hit, tp1_hit_at,
	tp1_pnl, tp2_percent, tp2_hit, stop_loss_percent, sl_hit,
	created_at, updated_at, closed_at`

func scanPosition(rows pgx.Rows) (domain.Position, error) {
	var p domain.Position
	var outcome, status string
	err := rows.Scan(
		&p.ID, &p.ProfileID, &p.MarketID, &outcome, &status,
		&p.EntryPrice, &p.ExitPrice, &p.Amount, &p.OriginalAmount,
		&p.Shares, &p.OriginalShares, &p.PnL, &p.Source, &p.Notes,
		&p.TP1Percent, &p.TP1SizePercent, &p.TP1Hit, &p.TP1HitAt,
		&p.TP1PnL, &p.TP2Percent, &p.TP2Hit, &p.StopLossPercent, &p.SLHit,
		&p.CreatedAt, &p.UpdatedAt, &p.ClosedAt,
	)
	if err != nil {
		return domain.Position{}, err
	}
	p.Outcome = domain.Outcome(outcome)
	p.Status = domain.PositionStatus(status)
	return p, nil
}

// LoadPositions returns all stored positions, terminal ones included.
func (s *LedgerStore) LoadPositions(ctx context.Context) ([]domain.Position, error) {
	rows, err := s.pool.Query(ctx,
		`SELECT `+positionCols+` FROM positions ORDER BY created_at`)
	if err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	defer rows.Close()

	var positions []domain.Position
	for rows.Next() {
		p, err := scanPosition(rows)
		if err != nil {
			return nil, fmt.Errorf("postgres: scan position: %w", err)
		}
		positions = append(positions, p)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: load positions: %w", err)
	}
	return positions, nil
}

// SavePositions replaces the stored position collection.
func (s *LedgerStore) SavePositions(ctx context.Context, positions []domain.Position) error {
	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin save positions: %w", err)
	}
	defer tx.Rollback(ctx)

	ids := make([]string, 0, len(positions))
	for _, p := range positions {
		if _, err := tx.Exec(ctx, `
			INSERT INTO positions (`+positionCols+`)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15,$16,
			        $17,$18,$19,$20,$21,$22,$23,$24,$25,$26)
			ON CONFLICT (id) DO UPDATE SET
				status = EXCLUDED.status,
				entry_price = EXCLUDED.entry_price,
				exit_price = EXCLUDED.exit_price,
				amount = EXCLUDED.amount,
				original_amount = EXCLUDED.original_amount,
				shares = EXCLUDED.shares,
				original_shares = EXCLUDED.original_shares,
				pnl = EXCLUDED.pnl,
				notes = EXCLUDED.notes,
				tp1_hit = EXCLUDED.tp1_hit,
				tp1_hit_at = EXCLUDED.tp1_hit_at,
				tp1_pnl = EXCLUDED.tp1_pnl,
				tp2_hit = EXCLUDED.tp2_hit,
				stop_loss_percent = EXCLUDED.stop_loss_percent,
				sl_hit = EXCLUDED.sl_hit,
				updated_at = EXCLUDED.updated_at,
				closed_at = EXCLUDED.closed_at`,
			p.ID, p.ProfileID, p.MarketID, string(p.Outcome), string(p.Status),
			p.EntryPrice, p.ExitPrice, p.Amount, p.OriginalAmount,
			p.Shares, p.OriginalShares, p.PnL, p.Source, p.Notes,
			p.TP1Percent, p.TP1SizePercent, p.TP1Hit, p.TP1HitAt,
			p.TP1PnL, p.TP2Percent, p.TP2Hit, p.StopLossPercent, p.SLHit,
			p.CreatedAt, p.UpdatedAt, p.ClosedAt,
		); err != nil {
			return fmt.Errorf("postgres: upsert position %s: %w", p.ID, err)
		}
		ids = append(ids, p.ID)
	}

	if _, err := tx.Exec(ctx, `DELETE FROM positions WHERE NOT (id = ANY($1))`, ids); err != nil {
		return fmt.Errorf("postgres: prune positions: %w", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit save positions: %w", err)
	}
	return nil
}

// AppendFill inserts one fill into the append-only fill log.
func (s *LedgerStore) AppendFill(ctx context.Context, fill domain.Fill) error {
	_, err := s.pool.Exec(ctx, `
		INSERT INTO fills (
			id, position_id, profile_id, market_id, side, outcome,
			amount, price, shares, fee, pnl, status, reason, source, created_at
		) VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12,$13,$14,$15)`,
		fill.ID, fill.PositionID, fill.ProfileID, fill.MarketID,
		string(fill.Side), string(fill.Outcome),
		fill.Amount, fill.Price, fill.Shares, fill.Fee, fill.PnL,
		string(fill.Status), fill.Reason, fill.Source, fill.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("postgres: append fill %s: %w", fill.ID, err)
	}
	return nil
}

// ListFills returns fills, newest first, honoring opts.
func (s *LedgerStore) ListFills(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error) {
	query := `
		SELECT id, position_id, profile_id, market_id, side, outcome,
		       amount, price, shares, fee, pnl, status, reason, source, created_at
		FROM fills WHERE TRUE`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND created_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND created_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY created_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	defer rows.Close()

	var fills []domain.Fill
	for rows.Next() {
		var f domain.Fill
		var side, outcome, status string
		if err := rows.Scan(
			&f.ID, &f.PositionID, &f.ProfileID, &f.MarketID, &side, &outcome,
			&f.Amount, &f.Price, &f.Shares, &f.Fee, &f.PnL,
			&status, &f.Reason, &f.Source, &f.CreatedAt,
		); err != nil {
			return nil, fmt.Errorf("postgres: scan fill: %w", err)
		}
		f.Side = domain.OrderSide(side)
		f.Outcome = domain.Outcome(outcome)
		f.Status = domain.FillStatus(status)
		fills = append(fills, f)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list fills: %w", err)
	}
	return fills, nil
}

// AppendTriggers inserts trigger events into the append-only trigger log.
func (s *LedgerStore) AppendTriggers(ctx context.Context, events []domain.TriggerEvent) error {
	if len(events) == 0 {
		return nil
	}

	tx, err := s.pool.Begin(ctx)
	if err != nil {
		return fmt.Errorf("postgres: begin append triggers: %w", err)
	}
	defer tx.Rollback(ctx)

	for _, ev := range events {
		if _, err := tx.Exec(ctx, `
			INSERT INTO triggers (order_id, type, pnl, fired_at)
			VALUES ($1,$2,$3,$4)`,
			ev.OrderID, string(ev.Type), ev.PnL, ev.FiredAt,
		); err != nil {
			return fmt.Errorf("postgres: append trigger for %s: %w", ev.OrderID, err)
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return fmt.Errorf("postgres: commit append triggers: %w", err)
	}
	return nil
}

// ListTriggers returns trigger events, newest first, honoring opts.
func (s *LedgerStore) ListTriggers(ctx context.Context, opts domain.ListOpts) ([]domain.TriggerEvent, error) {
	query := `SELECT order_id, type, pnl, fired_at FROM triggers WHERE TRUE`
	args := []any{}
	argIdx := 1

	if opts.Since != nil {
		query += fmt.Sprintf(" AND fired_at >= $%d", argIdx)
		args = append(args, *opts.Since)
		argIdx++
	}
	if opts.Until != nil {
		query += fmt.Sprintf(" AND fired_at <= $%d", argIdx)
		args = append(args, *opts.Until)
		argIdx++
	}
	query += " ORDER BY fired_at DESC"
	if opts.Limit > 0 {
		query += fmt.Sprintf(" LIMIT $%d", argIdx)
		args = append(args, opts.Limit)
		argIdx++
	}
	if opts.Offset > 0 {
		query += fmt.Sprintf(" OFFSET $%d", argIdx)
		args = append(args, opts.Offset)
	}

	rows, err := s.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("postgres: list triggers: %w", err)
	}
	defer rows.Close()

	var events []domain.TriggerEvent
	for rows.Next() {
		var ev domain.TriggerEvent
		var typ string
		if err := rows.Scan(&ev.OrderID, &typ, &ev.PnL, &ev.FiredAt); err != nil {
			return nil, fmt.Errorf("postgres: scan trigger: %w", err)
		}
		ev.Type = domain.TriggerType(typ)
		events = append(events, ev)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("postgres: list triggers: %w", err)
	}
	return events, nil
}

// Compile-time interface check.
var _ domain.LedgerStore = (*LedgerStore)(nil)
