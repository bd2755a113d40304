package storage

import (
	"errors"
	"fmt"

	"github.com/vocdoni/ticketvote/types"
)

// Tallies returns the stored per-option encrypted tallies.
func (s *Storage) Tallies() ([][]byte, error) {
	t := &storedTallies{}
	if err := s.getArtifact(tallyPrefix, currentKey, t); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrEpochNotInitialized
		}
		return nil, err
	}
	return t.Values, nil
}

// CommitTallies persists tallies as the new running totals after adding the
// ballot admitted with the reserved nullifier. In a single transaction it
// stores the nullifier as counted, replaces the tallies and increments the
// epoch ballot count. Nothing is written if any step fails, and the
// reservation is kept for the caller to Release.
func (s *Storage) CommitTallies(nullifier []byte, tallies [][]byte) error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	admittedAt, ok := s.reserved[string(nullifier)]
	if !ok {
		return fmt.Errorf("%w: %x", ErrNullifierNotReserved, nullifier)
	}

	wTx := s.db.WriteTx()
	defer wTx.Discard()

	e := &types.Epoch{}
	if err := getInTx(wTx, epochPrefix, currentKey, e); err != nil {
		if errors.Is(err, ErrNotFound) {
			return ErrEpochNotInitialized
		}
		return err
	}
	if !e.Open {
		return ErrEpochClosed
	}
	if len(tallies) != e.Options {
		return fmt.Errorf("got %d tallies for %d options", len(tallies), e.Options)
	}
	if err := storeCountedInTx(wTx, nullifier, admittedAt); err != nil {
		return err
	}
	if err := setInTx(wTx, tallyPrefix, currentKey, &storedTallies{Values: tallies}); err != nil {
		return err
	}
	e.Ballots++
	if err := setInTx(wTx, epochPrefix, currentKey, e); err != nil {
		return err
	}
	if err := wTx.Commit(); err != nil {
		return fmt.Errorf("commit tallies: %w", err)
	}
	delete(s.reserved, string(nullifier))
	s.cache.Add(string(nullifier), NullifierCounted)
	return nil
}
