package storage

import (
	"fmt"
	"sync"
	"sync/atomic"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/inmemory"
	"github.com/vocdoni/ticketvote/db/metadb"
	"github.com/vocdoni/ticketvote/types"
	"github.com/vocdoni/ticketvote/util"
)

func newTestStorage(t *testing.T) *Storage {
	return New(metadb.NewTest(t))
}

func testEpoch(options int) *types.Epoch {
	return &types.Epoch{
		EventID:           uuid.New(),
		Options:           options,
		ExternalNullifier: types.NewInt(42),
		EncryptionKey:     util.RandomBytes(32),
	}
}

func zeroTallies(n int) [][]byte {
	out := make([][]byte, n)
	for i := range out {
		out[i] = []byte{byte(i)}
	}
	return out
}

func TestRecordNullifier(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	n := util.RandomBytes(32)

	has, err := s.Has(n)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)

	c.Assert(s.Record(n), qt.IsNil)
	c.Assert(s.Record(n), qt.ErrorIs, ErrNullifierAlreadyUsed)
	c.Assert(s.Reserved(), qt.Equals, 1)

	has, err = s.Has(n)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsTrue)

	// reserved only, nothing is stored until its ballot is
	_, err = s.Nullifier(n)
	c.Assert(err, qt.ErrorIs, ErrNotFound)

	c.Assert(s.Record(nil), qt.IsNotNil)
}

func TestReleaseNullifier(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	_, err := s.InitEpoch(testEpoch(2), zeroTallies(2))
	c.Assert(err, qt.IsNil)
	n := util.RandomBytes(32)

	c.Assert(s.Record(n), qt.IsNil)
	s.Release(n)
	c.Assert(s.Reserved(), qt.Equals, 0)
	has, err := s.Has(n)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)
	c.Assert(s.CommitTallies(n, zeroTallies(2)), qt.ErrorIs, ErrNullifierNotReserved)

	// a released nullifier can be used again, a counted one cannot be
	// released
	c.Assert(s.Record(n), qt.IsNil)
	c.Assert(s.CommitTallies(n, zeroTallies(2)), qt.IsNil)
	s.Release(n)
	c.Assert(s.Record(n), qt.ErrorIs, ErrNullifierAlreadyUsed)
}

func TestRecordClosedEpoch(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	_, err := s.InitEpoch(testEpoch(2), zeroTallies(2))
	c.Assert(err, qt.IsNil)

	reserved := util.RandomBytes(32)
	c.Assert(s.Record(reserved), qt.IsNil)
	_, err = s.CloseEpoch()
	c.Assert(err, qt.IsNil)

	n := util.RandomBytes(32)
	c.Assert(s.Record(n), qt.ErrorIs, ErrEpochClosed)
	has, err := s.Has(n)
	c.Assert(err, qt.IsNil)
	c.Assert(has, qt.IsFalse)

	// a ballot admitted before the close is not counted and its nullifier
	// is not stored
	c.Assert(s.CommitTallies(reserved, zeroTallies(2)), qt.ErrorIs, ErrEpochClosed)
	s.Release(reserved)
	_, err = s.Nullifier(reserved)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	e, err := s.Epoch()
	c.Assert(err, qt.IsNil)
	c.Assert(e.Ballots, qt.Equals, uint64(0))
}

func TestCountedNullifierSurvivesRestart(t *testing.T) {
	c := qt.New(t)
	dir := t.TempDir()
	database, err := metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	s := New(database)
	_, err = s.InitEpoch(testEpoch(2), zeroTallies(2))
	c.Assert(err, qt.IsNil)
	counted, pending := util.RandomBytes(32), util.RandomBytes(32)
	c.Assert(s.Record(counted), qt.IsNil)
	c.Assert(s.CommitTallies(counted, zeroTallies(2)), qt.IsNil)
	c.Assert(s.Record(pending), qt.IsNil)
	s.Close()

	database, err = metadb.New(db.TypePebble, dir)
	c.Assert(err, qt.IsNil)
	s = New(database)
	defer s.Close()
	c.Assert(s.Record(counted), qt.ErrorIs, ErrNullifierAlreadyUsed)
	// the reservation died with the process, the ballot was never counted
	c.Assert(s.Record(pending), qt.IsNil)
}

func TestRecordConcurrent(t *testing.T) {
	backends := map[string]func(t *testing.T) db.Database{
		"pebble": func(t *testing.T) db.Database { return metadb.NewTest(t) },
		"inmemory": func(t *testing.T) db.Database {
			database, err := inmemory.New(db.Options{})
			qt.Assert(t, err, qt.IsNil)
			return database
		},
	}
	for name, open := range backends {
		t.Run(name, func(t *testing.T) {
			c := qt.New(t)
			s := New(open(t))
			n := util.RandomBytes(32)

			var wg sync.WaitGroup
			var ok, used atomic.Int32
			for range 32 {
				wg.Add(1)
				go func() {
					defer wg.Done()
					switch err := s.Record(n); err {
					case nil:
						ok.Add(1)
					case ErrNullifierAlreadyUsed:
						used.Add(1)
					default:
						t.Errorf("unexpected error: %v", err)
					}
				}()
			}
			wg.Wait()
			c.Assert(ok.Load(), qt.Equals, int32(1))
			c.Assert(used.Load(), qt.Equals, int32(31))
		})
	}
}

func TestEpochLifecycle(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)

	_, err := s.Epoch()
	c.Assert(err, qt.ErrorIs, ErrEpochNotInitialized)
	_, err = s.Tallies()
	c.Assert(err, qt.ErrorIs, ErrEpochNotInitialized)

	epoch := testEpoch(3)
	_, err = s.InitEpoch(epoch, zeroTallies(2))
	c.Assert(err, qt.IsNotNil)

	stored, err := s.InitEpoch(epoch, zeroTallies(3))
	c.Assert(err, qt.IsNil)
	c.Assert(stored.Open, qt.IsTrue)
	c.Assert(stored.CreatedAt.IsZero(), qt.IsFalse)

	tallies, err := s.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, zeroTallies(3))

	// same epoch again resumes, a different one is rejected
	_, err = s.InitEpoch(epoch, zeroTallies(3))
	c.Assert(err, qt.IsNil)
	_, err = s.InitEpoch(testEpoch(3), zeroTallies(3))
	c.Assert(err, qt.ErrorIs, ErrEpochMismatch)
	rescoped := *epoch
	rescoped.ExternalNullifier = types.NewInt(43)
	_, err = s.InitEpoch(&rescoped, zeroTallies(3))
	c.Assert(err, qt.ErrorIs, ErrEpochMismatch)
	c.Assert(err, qt.ErrorMatches, ".*external nullifier")
	reweighted := *epoch
	reweighted.Weight = 5
	_, err = s.InitEpoch(&reweighted, zeroTallies(3))
	c.Assert(err, qt.ErrorIs, ErrEpochMismatch)
	c.Assert(stored.Weight, qt.Equals, uint64(types.DefaultVoteWeight))

	closed, err := s.CloseEpoch()
	c.Assert(err, qt.IsNil)
	c.Assert(closed.Open, qt.IsFalse)
	c.Assert(closed.ClosedAt.IsZero(), qt.IsFalse)

	again, err := s.CloseEpoch()
	c.Assert(err, qt.IsNil)
	c.Assert(again.ClosedAt.Equal(closed.ClosedAt), qt.IsTrue)
}

func TestCommitTallies(t *testing.T) {
	c := qt.New(t)
	s := newTestStorage(t)
	_, err := s.InitEpoch(testEpoch(2), zeroTallies(2))
	c.Assert(err, qt.IsNil)

	n := util.RandomBytes(32)
	next := [][]byte{[]byte("a"), []byte("b")}

	// unknown nullifier
	c.Assert(s.CommitTallies(n, next), qt.ErrorIs, ErrNullifierNotReserved)
	c.Assert(s.Record(n), qt.IsNil)
	// wrong shape leaves everything untouched
	c.Assert(s.CommitTallies(n, next[:1]), qt.IsNotNil)
	_, err = s.Nullifier(n)
	c.Assert(err, qt.ErrorIs, ErrNotFound)
	c.Assert(s.Reserved(), qt.Equals, 1)

	c.Assert(s.CommitTallies(n, next), qt.IsNil)
	tallies, err := s.Tallies()
	c.Assert(err, qt.IsNil)
	c.Assert(tallies, qt.DeepEquals, next)
	e, err := s.Epoch()
	c.Assert(err, qt.IsNil)
	c.Assert(e.Ballots, qt.Equals, uint64(1))
	r, err := s.Nullifier(n)
	c.Assert(err, qt.IsNil)
	c.Assert(r.Status, qt.Equals, NullifierCounted)
	c.Assert(r.AdmittedAt, qt.Not(qt.Equals), int64(0))
	c.Assert(r.CountedAt, qt.Not(qt.Equals), int64(0))
	c.Assert(s.Reserved(), qt.Equals, 0)

	// a nullifier is counted once
	c.Assert(s.CommitTallies(n, next), qt.IsNotNil)
	c.Assert(s.Record(n), qt.ErrorIs, ErrNullifierAlreadyUsed)

	counts, err := s.CountNullifiers()
	c.Assert(err, qt.IsNil)
	c.Assert(counts[NullifierCounted], qt.Equals, 1)
}

func TestNullifierStatusString(t *testing.T) {
	c := qt.New(t)
	c.Assert(NullifierAdmitted.String(), qt.Equals, "admitted")
	c.Assert(NullifierCounted.String(), qt.Equals, "counted")
	c.Assert(NullifierStatus(9).String(), qt.Equals, fmt.Sprintf("unknown_status_%d", 9))
}
