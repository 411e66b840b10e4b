// Package snapshot persists memory-backend book state in Pebble.
package snapshot

import (
	"encoding/json"
	"errors"
	"fmt"

	"github.com/cockroachdb/pebble"
	"github.com/erain9/pairbook/pkg/backend/memory"
)

// Store keeps one snapshot per pair
type Store struct {
	db *pebble.DB
}

// Open opens or creates a store at path
func Open(path string) (*Store, error) {
	db, err := pebble.Open(path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open snapshot store: %w", err)
	}
	return &Store{db: db}, nil
}

// Close closes the underlying database
func (s *Store) Close() error { return s.db.Close() }

// keys: snapshot:<20-digit pair id>
func snapshotKey(pairID uint64) []byte {
	return []byte(fmt.Sprintf("snapshot:%020d", pairID))
}

// Save writes state for pairID, replacing any earlier snapshot
func (s *Store) Save(pairID uint64, state *memory.State) error {
	data, err := json.Marshal(state)
	if err != nil {
		return fmt.Errorf("failed to marshal snapshot: %w", err)
	}
	if err := s.db.Set(snapshotKey(pairID), data, pebble.Sync); err != nil {
		return fmt.Errorf("failed to save snapshot: %w", err)
	}
	return nil
}

// Load reads the snapshot for pairID. The boolean is false when none exists.
func (s *Store) Load(pairID uint64) (*memory.State, bool, error) {
	val, closer, err := s.db.Get(snapshotKey(pairID))
	if err != nil {
		if errors.Is(err, pebble.ErrNotFound) {
			return nil, false, nil
		}
		return nil, false, fmt.Errorf("failed to load snapshot: %w", err)
	}
	defer closer.Close()

	var state memory.State
	if err := json.Unmarshal(val, &state); err != nil {
		return nil, false, fmt.Errorf("failed to unmarshal snapshot: %w", err)
	}
	return &state, true, nil
}

// Delete removes the snapshot for pairID
func (s *Store) Delete(pairID uint64) error {
	if err := s.db.Delete(snapshotKey(pairID), pebble.Sync); err != nil {
		return fmt.Errorf("failed to delete snapshot: %w", err)
	}
	return nil
}

// SaveBook snapshots a live memory backend
func (s *Store) SaveBook(pairID uint64, index *memory.PriceIndex, store *memory.OrderStore) error {
	return s.Save(pairID, memory.Snapshot(index, store))
}

// RestoreBook loads the snapshot for pairID into a memory backend. It
// reports whether a snapshot was found.
func (s *Store) RestoreBook(pairID uint64, index *memory.PriceIndex, store *memory.OrderStore) (bool, error) {
	state, ok, err := s.Load(pairID)
	if err != nil || !ok {
		return false, err
	}
	memory.Restore(state, index, store)
	return true, nil
}
