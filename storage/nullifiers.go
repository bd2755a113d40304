package storage

import (
	"errors"
	"fmt"
	"time"

	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/prefixeddb"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/types"
)

var (
	// ErrNullifierAlreadyUsed is returned by Record when the nullifier is
	// already stored or reserved.
	ErrNullifierAlreadyUsed = errors.New("nullifier already used")
	// ErrNullifierNotReserved is returned by CommitTallies for a nullifier
	// that Record did not reserve.
	ErrNullifierNotReserved = errors.New("nullifier not reserved")
)

// NullifierStatus is the lifecycle state of a nullifier.
type NullifierStatus int

const (
	// NullifierAdmitted means the credential was admitted and the nullifier
	// is reserved in memory while its ballot is accumulated.
	NullifierAdmitted NullifierStatus = iota + 1
	// NullifierCounted means the nullifier is stored, together with the
	// tallies that include its ballot.
	NullifierCounted
)

var nullifierStatusNames = map[NullifierStatus]string{
	NullifierAdmitted: "admitted",
	NullifierCounted:  "counted",
}

func (s NullifierStatus) String() string {
	if name, ok := nullifierStatusNames[s]; ok {
		return name
	}
	return fmt.Sprintf("unknown_status_%d", int(s))
}

// NullifierRecord is the stored value of a nullifier.
type NullifierRecord struct {
	Status     NullifierStatus `cbor:"0,keyasint"`
	AdmittedAt int64           `cbor:"1,keyasint"`
	CountedAt  int64           `cbor:"2,keyasint,omitempty"`
}

// Has reports whether the nullifier is stored or reserved.
func (s *Storage) Has(nullifier []byte) (bool, error) {
	if _, ok := s.cache.Get(string(nullifier)); ok {
		return true, nil
	}
	s.globalLock.Lock()
	_, reserved := s.reserved[string(nullifier)]
	s.globalLock.Unlock()
	if reserved {
		return true, nil
	}
	_, err := prefixeddb.NewPrefixedReader(s.db, nullifierPrefix).Get(nullifier)
	if errors.Is(err, db.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Record atomically reserves the nullifier, or returns
// ErrNullifierAlreadyUsed if it is already stored or reserved. Concurrent
// calls with the same nullifier succeed exactly once. Once the epoch is
// closed Record fails with ErrEpochClosed and reserves nothing.
//
// The reservation is stored by CommitTallies in the same transaction as the
// ballot it admits, or dropped by Release. It does not survive a restart, so
// a nullifier is only ever stored along with a counted ballot.
func (s *Storage) Record(nullifier []byte) error {
	if len(nullifier) == 0 {
		return fmt.Errorf("empty nullifier")
	}
	s.globalLock.Lock()
	defer s.globalLock.Unlock()

	key := string(nullifier)
	if _, ok := s.reserved[key]; ok {
		return ErrNullifierAlreadyUsed
	}
	if _, ok := s.cache.Get(key); ok {
		return ErrNullifierAlreadyUsed
	}
	r := &NullifierRecord{}
	if err := s.getArtifact(nullifierPrefix, nullifier, r); err == nil {
		s.cache.Add(key, r.Status)
		return ErrNullifierAlreadyUsed
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("read nullifier: %w", err)
	}
	e := &types.Epoch{}
	switch err := s.getArtifact(epochPrefix, currentKey, e); {
	case err == nil:
		if !e.Open {
			return ErrEpochClosed
		}
	case !errors.Is(err, ErrNotFound):
		return fmt.Errorf("read epoch: %w", err)
	}
	s.reserved[key] = time.Now().Unix()
	log.Debugw("nullifier reserved", "nullifier", fmt.Sprintf("%x", nullifier))
	return nil
}

// Release drops the reservation of a nullifier whose ballot was not counted,
// so the credential can be used again. Stored nullifiers are never removed.
func (s *Storage) Release(nullifier []byte) {
	s.globalLock.Lock()
	_, ok := s.reserved[string(nullifier)]
	delete(s.reserved, string(nullifier))
	s.globalLock.Unlock()
	if ok {
		log.Debugw("nullifier released", "nullifier", fmt.Sprintf("%x", nullifier))
	}
}

// Reserved returns the number of nullifiers reserved and not yet stored.
func (s *Storage) Reserved() int {
	s.globalLock.Lock()
	defer s.globalLock.Unlock()
	return len(s.reserved)
}

// Nullifier returns the stored record of a nullifier, or ErrNotFound.
func (s *Storage) Nullifier(nullifier []byte) (*NullifierRecord, error) {
	r := &NullifierRecord{}
	if err := s.getArtifact(nullifierPrefix, nullifier, r); err != nil {
		return nil, err
	}
	return r, nil
}

// CountNullifiers returns the number of consumed nullifiers grouped by
// status.
func (s *Storage) CountNullifiers() (map[NullifierStatus]int, error) {
	counts := make(map[NullifierStatus]int)
	var decodeErr error
	if err := prefixeddb.NewPrefixedReader(s.db, nullifierPrefix).Iterate(nil, func(_, v []byte) bool {
		r := &NullifierRecord{}
		if decodeErr = DecodeArtifact(v, r); decodeErr != nil {
			return false
		}
		counts[r.Status]++
		return true
	}); err != nil {
		return nil, err
	}
	if decodeErr != nil {
		return nil, fmt.Errorf("decode nullifier record: %w", decodeErr)
	}
	return counts, nil
}

// storeCountedInTx writes the reserved nullifier as counted within wTx.
func storeCountedInTx(wTx db.WriteTx, nullifier []byte, admittedAt int64) error {
	if err := getInTx(wTx, nullifierPrefix, nullifier, &NullifierRecord{}); err == nil {
		return ErrNullifierAlreadyUsed
	} else if !errors.Is(err, ErrNotFound) {
		return fmt.Errorf("nullifier %x: %w", nullifier, err)
	}
	return setInTx(wTx, nullifierPrefix, nullifier, &NullifierRecord{
		Status:     NullifierCounted,
		AdmittedAt: admittedAt,
		CountedAt:  time.Now().Unix(),
	})
}
