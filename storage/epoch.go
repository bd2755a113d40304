package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/types"
)

var (
	// ErrEpochNotInitialized is returned when no epoch was stored yet.
	ErrEpochNotInitialized = errors.New("epoch not initialized")
	// ErrEpochMismatch is returned by InitEpoch when the database already
	// holds a different epoch.
	ErrEpochMismatch = errors.New("database holds a different epoch")
	// ErrEpochClosed is returned when writing tallies of a closed epoch.
	ErrEpochClosed = errors.New("epoch is closed")
)

// storedTallies wraps the serialized per-option tallies.
type storedTallies struct {
	Values [][]byte `cbor:"0,keyasint"`
}

// InitEpoch stores epoch together with its initial tallies, unless the
// database already holds it. On restart the stored epoch (with its ballot
// count and open flag) is returned unchanged. A stored epoch that differs in
// event, options, vote weight, external nullifier or encryption key yields
// ErrEpochMismatch.
func (s *Storage) InitEpoch(epoch *types.Epoch, zeroTallies [][]byte) (*types.Epoch, error) {
	if epoch == nil {
		return nil, fmt.Errorf("nil epoch")
	}
	if len(zeroTallies) != epoch.Options {
		return nil, fmt.Errorf("got %d initial tallies for %d options", len(zeroTallies), epoch.Options)
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	stored := &types.Epoch{}
	err := s.getArtifact(epochPrefix, currentKey, stored)
	switch {
	case err == nil:
		if err := sameEpoch(stored, epoch); err != nil {
			return nil, err
		}
		log.Infow("resuming stored epoch",
			"eventId", stored.EventID.String(),
			"ballots", stored.Ballots,
			"open", stored.Open)
		return stored, nil
	case !errors.Is(err, ErrNotFound):
		return nil, err
	}

	e := *epoch
	e.Open = true
	e.Ballots = 0
	e.Weight = epoch.VoteWeight()
	if e.CreatedAt.IsZero() {
		e.CreatedAt = time.Now().UTC()
	}
	wTx := s.db.WriteTx()
	defer wTx.Discard()
	if err := setInTx(wTx, epochPrefix, currentKey, &e); err != nil {
		return nil, err
	}
	if err := setInTx(wTx, tallyPrefix, currentKey, &storedTallies{Values: zeroTallies}); err != nil {
		return nil, err
	}
	if err := wTx.Commit(); err != nil {
		return nil, fmt.Errorf("commit epoch: %w", err)
	}
	log.Infow("epoch initialized", "eventId", e.EventID.String(), "options", e.Options)
	return &e, nil
}

// sameEpoch tells which setting of the configured epoch differs from the
// stored one.
func sameEpoch(stored, configured *types.Epoch) error {
	var field string
	switch {
	case stored.EventID != configured.EventID:
		field = "event id"
	case stored.Options != configured.Options:
		field = "options"
	case stored.VoteWeight() != configured.VoteWeight():
		field = "vote weight"
	case !stored.ExternalNullifier.Equal(configured.ExternalNullifier):
		field = "external nullifier"
	case !stored.EncryptionKey.Equal(configured.EncryptionKey):
		field = "encryption key"
	default:
		return nil
	}
	return fmt.Errorf("%w: stored event %s has a different %s", ErrEpochMismatch, stored.EventID, field)
}

// Epoch returns the stored epoch.
func (s *Storage) Epoch() (*types.Epoch, error) {
	e := &types.Epoch{}
	if err := s.getArtifact(epochPrefix, currentKey, e); err != nil {
		if errors.Is(err, ErrNotFound) {
			return nil, ErrEpochNotInitialized
		}
		return nil, err
	}
	return e, nil
}

// CloseEpoch marks the epoch as closed. Closing an already closed epoch is a
// no-op that returns the stored epoch.
func (s *Storage) CloseEpoch() (*types.Epoch, error) {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	e, err := s.Epoch()
	if err != nil {
		return nil, err
	}
	if !e.Open {
		return e, nil
	}
	e.Open = false
	e.ClosedAt = time.Now().UTC()
	if err := s.setArtifact(epochPrefix, currentKey, e); err != nil {
		return nil, err
	}
	log.Infow("epoch closed", "eventId", e.EventID.String(), "ballots", e.Ballots)
	return e, nil
}
