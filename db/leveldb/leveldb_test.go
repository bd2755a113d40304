package leveldb

import (
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/internal/dbtest"
	"github.com/vocdoni/ticketvote/db/prefixeddb"
)

func newTestDB(t *testing.T) *LevelDB {
	database, err := New(db.Options{Path: t.TempDir()})
	qt.Assert(t, err, qt.IsNil)
	t.Cleanup(func() { _ = database.Close() })
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
