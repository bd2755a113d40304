package inmemory

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/internal/dbtest"
	"github.com/vocdoni/ticketvote/db/prefixeddb"
)

func newTestDB(t *testing.T) *InMemoryDB {
	database, err := New(db.Options{})
	qt.Assert(t, err, qt.IsNil)
	return database
}

func TestWriteTx(t *testing.T) {
	dbtest.TestWriteTx(t, newTestDB(t))
}

func TestIterate(t *testing.T) {
	dbtest.TestIterate(t, newTestDB(t))
}

func TestWriteTxApply(t *testing.T) {
	dbtest.TestWriteTxApply(t, newTestDB(t))
}

func TestWriteTxApplyPrefixed(t *testing.T) {
	database := newTestDB(t)
	prefix := []byte("one")
	dbtest.TestWriteTxApplyPrefixed(t, database, prefixeddb.NewPrefixedDatabase(database, prefix), prefix)
}

func TestConcurrentWriteTx(t *testing.T) {
	dbtest.TestConcurrentWriteTx(t, newTestDB(t))
}

func TestCommitConflict(t *testing.T) {
	c := qt.New(t)
	database := newTestDB(t)

	tx1 := database.WriteTx()
	tx2 := database.WriteTx()
	_, err := tx1.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	_, err = tx2.Get([]byte("k"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(tx1.Set([]byte("k"), []byte("1")), qt.IsNil)
	c.Assert(tx2.Set([]byte("k"), []byte("2")), qt.IsNil)
	c.Assert(tx1.Commit(), qt.IsNil)
	c.Assert(tx2.Commit(), qt.ErrorIs, db.ErrConflict)

	v, err := database.Get([]byte("k"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("1"))
}
