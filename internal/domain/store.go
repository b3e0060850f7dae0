package domain

import (
	"context"
	"time"
)

// ListOpts provides pagination and filtering for list queries.
type ListOpts struct {
	Limit  int
	Offset int
	Since  *time.Time
	Until  *time.Time
}

// LedgerStore persists the ledger collections. Profiles and positions are
// loaded and saved whole — the ledger service owns the in-memory working set
// and a save replaces the stored collection. Fills and triggers are
// append-only logs.
type LedgerStore interface {
	LoadProfiles(ctx context.Context) ([]Profile, error)
	SaveProfiles(ctx context.Context, profiles []Profile) error

	LoadPositions(ctx context.Context) ([]Position, error)
	SavePositions(ctx context.Context, positions []Position) error

	AppendFill(ctx context.Context, fill Fill) error
	ListFills(ctx context.Context, opts ListOpts) ([]Fill, error)

	AppendTriggers(ctx context.Context, events []TriggerEvent) error
	ListTriggers(ctx context.Context, opts ListOpts) ([]TriggerEvent, error)
}
