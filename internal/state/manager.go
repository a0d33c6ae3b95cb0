package state

import (
	"errors"
	"fmt"
	"iter"
	"path/filepath"
)

// Tier selects one of the three stores behind the manager.
type Tier string

const (
	// TierHot is in-memory scratch state: current prices, live position
	// snapshots, per-cycle tags. Lost on restart.
	TierHot Tier = "hot"
	// TierWarm is session-durable state: daily counters, cool-down
	// timestamps. Overwritable, survives restart.
	TierWarm Tier = "warm"
	// TierCold is the append-only audit record: completed trades, decision
	// history. A key is written once and never mutated.
	TierCold Tier = "cold"
)

var (
	// ErrNotFound is returned by Get for a missing key.
	ErrNotFound = errors.New("state: key not found")
	// ErrImmutableConflict is returned by Set on an existing cold-tier key.
	// The stored value is left untouched; callers record new facts under
	// fresh keys.
	ErrImmutableConflict = errors.New("state: cold entry is immutable")
)

// Predicate filters Query results.
type Predicate func(key string, value any) bool

// Manager is the single shared state facade for one bot process. The tier
// asymmetry (hot/warm mutable, cold append-only) is enforced here, at the
// API boundary, not by caller discipline.
type Manager struct {
	hot  *hotStore
	warm *warmStore
	cold *coldStore
}

// Open creates the manager with its durable stores under dir
// (warm.db, cold.db).
func Open(dir string) (*Manager, error) {
	warm, err := openWarmStore(filepath.Join(dir, "warm.db"))
	if err != nil {
		return nil, fmt.Errorf("open warm store: %w", err)
	}
	cold, err := openColdStore(filepath.Join(dir, "cold.db"))
	if err != nil {
		warm.Close()
		return nil, fmt.Errorf("open cold store: %w", err)
	}
	return &Manager{hot: newHotStore(), warm: warm, cold: cold}, nil
}

// Get returns the value stored under key, or ErrNotFound.
func (m *Manager) Get(tier Tier, key string) (any, error) {
	switch tier {
	case TierHot:
		return m.hot.Get(key)
	case TierWarm:
		return m.warm.Get(key)
	case TierCold:
		return m.cold.Get(key)
	default:
		return nil, fmt.Errorf("state: unknown tier %q", tier)
	}
}

// Set writes value under key. Hot and warm tiers overwrite; the warm tier
// acknowledges only after the write is durable. Cold-tier writes to an
// existing key fail with ErrImmutableConflict.
func (m *Manager) Set(tier Tier, key string, value any) error {
	if key == "" {
		return fmt.Errorf("state: empty key")
	}
	switch tier {
	case TierHot:
		m.hot.Set(key, value)
		return nil
	case TierWarm:
		return m.warm.Set(key, value)
	case TierCold:
		return m.cold.Set(key, value)
	default:
		return fmt.Errorf("state: unknown tier %q", tier)
	}
}

// Delete removes a hot- or warm-tier key. Cold entries cannot be deleted.
func (m *Manager) Delete(tier Tier, key string) error {
	switch tier {
	case TierHot:
		m.hot.Delete(key)
		return nil
	case TierWarm:
		return m.warm.Delete(key)
	case TierCold:
		return ErrImmutableConflict
	default:
		return fmt.Errorf("state: unknown tier %q", tier)
	}
}

// Query returns a lazy, restartable sequence of the tier's entries that
// match pred (nil matches everything). Each range over the sequence
// re-scans current data.
func (m *Manager) Query(tier Tier, pred Predicate) iter.Seq2[string, any] {
	switch tier {
	case TierHot:
		return m.hot.Query(pred)
	case TierWarm:
		return m.warm.Query(pred)
	case TierCold:
		return m.cold.Query(pred)
	default:
		return func(func(string, any) bool) {}
	}
}

// Close releases the durable stores. Hot state is simply dropped.
func (m *Manager) Close() error {
	var firstErr error
	if err := m.warm.Close(); err != nil {
		firstErr = err
	}
	if err := m.cold.Close(); err != nil && firstErr == nil {
		firstErr = err
	}
	return firstErr
}
