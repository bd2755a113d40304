// Package leveldb implements db.Database on top of syndtr/goleveldb.
package leveldb

import (
	"bytes"
	"errors"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/internal/overlay"
)

// LevelDB is a persistent db.Database. Transactions buffer their writes and
// flush them in a single leveldb batch on Commit.
type LevelDB struct {
	db *leveldb.DB
	// commitMu serializes batch writes so that a commit is never interleaved
	// with another one.
	commitMu sync.Mutex
}

var _ db.Database = (*LevelDB)(nil)

// New opens (or creates) a leveldb database at opts.Path.
func New(opts db.Options) (*LevelDB, error) {
	ldb, err := leveldb.OpenFile(opts.Path, &opt.Options{})
	if err != nil {
		return nil, fmt.Errorf("open leveldb database: %w", err)
	}
	return &LevelDB{db: ldb}, nil
}

func (d *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := d.db.Get(key, nil)
	if errors.Is(err, leveldb.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	return v, err
}

func (d *LevelDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	iter := d.db.NewIterator(util.BytesPrefix(prefix), nil)
	defer iter.Release()
	for iter.Next() {
		if !callback(bytes.Clone(iter.Key()), bytes.Clone(iter.Value())) {
			break
		}
	}
	return iter.Error()
}

func (d *LevelDB) WriteTx() db.WriteTx {
	return overlay.New(d, d.write)
}

func (d *LevelDB) write(writes map[string][]byte) error {
	batch := new(leveldb.Batch)
	for k, v := range writes {
		if v == nil {
			batch.Delete([]byte(k))
			continue
		}
		batch.Put([]byte(k), v)
	}
	d.commitMu.Lock()
	defer d.commitMu.Unlock()
	return d.db.Write(batch, &opt.WriteOptions{Sync: true})
}

// Close closes the database. Closing twice is a no-op.
func (d *LevelDB) Close() error {
	if err := d.db.Close(); err != nil && !errors.Is(err, leveldb.ErrClosed) {
		return err
	}
	return nil
}

func (d *LevelDB) Compact() error {
	return d.db.CompactRange(util.Range{})
}
