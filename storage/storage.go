/*
Package storage persists the state of a voting epoch on a key-value database.

# Storage Organization

Keys are namespaced with short prefixes:

  - e/ : "current" → Epoch (event id, options, encryption key, open flag,
    counted ballots)
  - t/ : "current" → encrypted tallies, one serialized ciphertext per option
  - n/ : nullifier hash → NullifierRecord (status, admission and count times)

An admitted credential reserves its nullifier in memory. The nullifier is
written, with status "counted", in the same transaction that persists the
tallies including its ballot, so a stored nullifier always stands for a
counted ballot. Records are never deleted.
*/
package storage

import (
	"errors"
	"fmt"
	"sync"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/prefixeddb"
	"github.com/vocdoni/ticketvote/log"
)

var (
	ErrKeyAlreadyExists = errors.New("key already exists")
	ErrNotFound         = errors.New("not found")

	// Prefixes
	epochPrefix     = []byte("e/")
	tallyPrefix     = []byte("t/")
	nullifierPrefix = []byte("n/")

	currentKey = []byte("current")
)

const nullifierCacheSize = 10000

// Storage manages the nullifier registry, the tallies and the epoch
// metadata. Read-modify-write sequences are serialized by globalLock, so the
// node must be the only writer of the database.
type Storage struct {
	db         db.Database
	globalLock sync.Mutex
	// cache remembers nullifiers known to exist; records are never removed
	// so a hit is always valid.
	cache *lru.Cache[string, NullifierStatus]
	// reserved maps the nullifiers admitted and not yet stored to their
	// admission time. Guarded by globalLock.
	reserved map[string]int64
}

// New creates a new Storage instance on top of database.
func New(database db.Database) *Storage {
	cache, err := lru.New[string, NullifierStatus](nullifierCacheSize)
	if err != nil {
		log.Fatalf("failed to create LRU cache: %v", err)
	}
	s := &Storage{
		db:       database,
		cache:    cache,
		reserved: make(map[string]int64),
	}
	if err := s.recover(); err != nil {
		log.Errorw(err, "failed to inspect stored nullifiers")
	}
	return s
}

// recover loads the nullifier count and reports stored records that do not
// stand for a counted ballot.
func (s *Storage) recover() error {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	if s.db == nil {
		return fmt.Errorf("database not initialized")
	}
	unexpected, total := 0, 0
	if err := prefixeddb.NewPrefixedReader(s.db, nullifierPrefix).Iterate(nil, func(k, v []byte) bool {
		total++
		r := &NullifierRecord{}
		if err := DecodeArtifact(v, r); err != nil {
			log.Warnw("undecodable nullifier record", "nullifier", fmt.Sprintf("%x", k), "error", err)
			return true
		}
		if r.Status != NullifierCounted {
			unexpected++
			log.Warnw("stored nullifier without counted ballot",
				"nullifier", fmt.Sprintf("%x", k),
				"status", r.Status.String(),
				"admittedAt", time.Unix(r.AdmittedAt, 0).UTC())
		}
		return true
	}); err != nil {
		return err
	}
	log.Infow("storage loaded", "nullifiers", total, "uncounted", unexpected)
	return nil
}

// Close closes the underlying database.
func (s *Storage) Close() {
	if err := s.db.Close(); err != nil {
		log.Warnw("failed to close storage", "error", err)
	}
}

// setArtifact encodes artifact and stores it under prefix+key.
func (s *Storage) setArtifact(prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	wTx := prefixeddb.NewPrefixedDatabase(s.db, prefix).WriteTx()
	defer wTx.Discard()
	if err := wTx.Set(key, data); err != nil {
		return err
	}
	return wTx.Commit()
}

// getArtifact decodes the artifact stored under prefix+key into out, or
// returns ErrNotFound.
func (s *Storage) getArtifact(prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedReader(s.db, prefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	if err := DecodeArtifact(data, out); err != nil {
		return fmt.Errorf("could not decode artifact: %w", err)
	}
	return nil
}

// setInTx encodes artifact and sets it in wTx under prefix+key.
func setInTx(wTx db.WriteTx, prefix, key []byte, artifact any) error {
	data, err := EncodeArtifact(artifact)
	if err != nil {
		return err
	}
	return prefixeddb.NewPrefixedWriteTx(wTx, prefix).Set(key, data)
}

// getInTx reads and decodes prefix+key from wTx, or returns ErrNotFound.
func getInTx(wTx db.WriteTx, prefix, key []byte, out any) error {
	data, err := prefixeddb.NewPrefixedWriteTx(wTx, prefix).Get(key)
	if errors.Is(err, db.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return DecodeArtifact(data, out)
}
