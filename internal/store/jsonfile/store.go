// Package jsonfile implements the ledger store as one JSON document per
// collection under a data directory. Writes go through a temp file plus
// rename so a crash mid-write never leaves a torn document behind.
package jsonfile

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/alanyoungcy/paperbot/internal/domain"
)

const (
	profilesFile  = "profiles.json"
	positionsFile = "positions.json"
	fillsFile     = "fills.json"
	triggersFile  = "triggers.json"
)

// Store persists ledger collections as JSON files.
type Store struct {
	dir string
	mu  sync.Mutex
}

var _ domain.LedgerStore = (*Store)(nil)

// New creates a Store rooted at dir, creating the directory if needed.
func New(dir string) (*Store, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("jsonfile: create data dir %s: %w", dir, err)
	}
	return &Store{dir: dir}, nil
}

// readCollection decodes the named file into out. A missing file is the
// empty collection; any other read or decode error propagates so stale or
// corrupt state is never silently replaced.
func (s *Store) readCollection(name string, out any) error {
	data, err := os.ReadFile(filepath.Join(s.dir, name))
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return fmt.Errorf("jsonfile: read %s: %w", name, err)
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("jsonfile: decode %s: %w", name, err)
	}
	return nil
}

// writeCollection atomically replaces the named file with the JSON encoding
// of in.
func (s *Store) writeCollection(name string, in any) error {
	data, err := json.MarshalIndent(in, "", "  ")
	if err != nil {
		return fmt.Errorf("jsonfile: encode %s: %w", name, err)
	}

	path := filepath.Join(s.dir, name)
	tmp, err := os.CreateTemp(s.dir, name+".tmp-*")
	if err != nil {
		return fmt.Errorf("jsonfile: create temp for %s: %w", name, err)
	}
	tmpName := tmp.Name()

	if _, err := tmp.Write(data); err != nil {
		tmp.Close()
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: write %s: %w", name, err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: close temp for %s: %w", name, err)
	}
	if err := os.Rename(tmpName, path); err != nil {
		os.Remove(tmpName)
		return fmt.Errorf("jsonfile: rename %s: %w", name, err)
	}
	return nil
}

// LoadProfiles returns all stored profiles.
func (s *Store) LoadProfiles(ctx context.Context) ([]domain.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var profiles []domain.Profile
	if err := s.readCollection(profilesFile, &profiles); err != nil {
		return nil, err
	}
	return profiles, nil
}

// SaveProfiles replaces the stored profile collection.
func (s *Store) SaveProfiles(ctx context.Context, profiles []domain.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if profiles == nil {
		profiles = []domain.Profile{}
	}
	return s.writeCollection(profilesFile, profiles)
}

// LoadPositions returns all stored positions, terminal ones included.
func (s *Store) LoadPositions(ctx context.Context) ([]domain.Position, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var positions []domain.Position
	if err := s.readCollection(positionsFile, &positions); err != nil {
		return nil, err
	}
	return positions, nil
}

// SavePositions replaces the stored position collection.
func (s *Store) SavePositions(ctx context.Context, positions []domain.Position) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if positions == nil {
		positions = []domain.Position{}
	}
	return s.writeCollection(positionsFile, positions)
}

// AppendFill appends one fill to the fill log.
func (s *Store) AppendFill(ctx context.Context, fill domain.Fill) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fills []domain.Fill
	if err := s.readCollection(fillsFile, &fills); err != nil {
		return err
	}
	fills = append(fills, fill)
	return s.writeCollection(fillsFile, fills)
}

// ListFills returns fills, newest first, honoring opts.
func (s *Store) ListFills(ctx context.Context, opts domain.ListOpts) ([]domain.Fill, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var fills []domain.Fill
	if err := s.readCollection(fillsFile, &fills); err != nil {
		return nil, err
	}

	out := make([]domain.Fill, 0, len(fills))
	for i := len(fills) - 1; i >= 0; i-- {
		f := fills[i]
		if opts.Since != nil && f.CreatedAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && f.CreatedAt.After(*opts.Until) {
			continue
		}
		out = append(out, f)
	}
	return paginate(out, opts), nil
}

// AppendTriggers appends trigger events to the trigger log.
func (s *Store) AppendTriggers(ctx context.Context, events []domain.TriggerEvent) error {
	if len(events) == 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	var log []domain.TriggerEvent
	if err := s.readCollection(triggersFile, &log); err != nil {
		return err
	}
	log = append(log, events...)
	return s.writeCollection(triggersFile, log)
}

// ListTriggers returns trigger events, newest first, honoring opts.
func (s *Store) ListTriggers(ctx context.Context, opts domain.ListOpts) ([]domain.TriggerEvent, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	var log []domain.TriggerEvent
	if err := s.readCollection(triggersFile, &log); err != nil {
		return nil, err
	}

	out := make([]domain.TriggerEvent, 0, len(log))
	for i := len(log) - 1; i >= 0; i-- {
		ev := log[i]
		if opts.Since != nil && ev.FiredAt.Before(*opts.Since) {
			continue
		}
		if opts.Until != nil && ev.FiredAt.After(*opts.Until) {
			continue
		}
		out = append(out, ev)
	}
	return paginate(out, opts), nil
}

func paginate[T any](items []T, opts domain.ListOpts) []T {
	if opts.Offset > 0 {
		if opts.Offset >= len(items) {
			return []T{}
		}
		items = items[opts.Offset:]
	}
	if opts.Limit > 0 && opts.Limit < len(items) {
		items = items[:opts.Limit]
	}
	return items
}
