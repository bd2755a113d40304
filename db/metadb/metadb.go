// Package metadb opens any of the supported database backends by name.
package metadb

import (
	"fmt"
	"testing"

	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/inmemory"
	"github.com/vocdoni/ticketvote/db/leveldb"
	"github.com/vocdoni/ticketvote/db/mongodb"
	"github.com/vocdoni/ticketvote/db/pebbledb"
)

// New opens a database of the given type. For file based backends dir is the
// data directory, for MongoDB it is the database name.
func New(typ, dir string) (db.Database, error) {
	opts := db.Options{Path: dir}
	switch typ {
	case db.TypePebble:
		return pebbledb.New(opts)
	case db.TypeLevelDB:
		return leveldb.New(opts)
	case db.TypeMongo:
		return mongodb.New(opts)
	case db.TypeInMem:
		return inmemory.New(opts)
	default:
		return nil, fmt.Errorf("invalid db type %q, available types: %q", typ,
			[]string{db.TypePebble, db.TypeLevelDB, db.TypeMongo, db.TypeInMem})
	}
}

// NewTest opens a pebble database in a temporary directory that is closed
// when the test finishes.
func NewTest(tb testing.TB) db.Database {
	database, err := New(db.TypePebble, tb.TempDir())
	if err != nil {
		tb.Fatal(err)
	}
	tb.Cleanup(func() {
		if err := database.Close(); err != nil {
			tb.Error(err)
		}
	})
	return database
}
