// Package pebbledb implements db.Database on top of cockroachdb/pebble.
package pebbledb

import (
	"bytes"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/vocdoni/ticketvote/db"
)

// PebbleDB is a persistent db.Database. Write transactions are indexed pebble
// batches: they can read their own writes but do not detect conflicts, so
// callers needing read-modify-write atomicity must serialize them.
type PebbleDB struct {
	db     *pebble.DB
	closed bool
	mu     sync.RWMutex
}

var _ db.Database = (*PebbleDB)(nil)

// New opens (or creates) a pebble database at opts.Path.
func New(opts db.Options) (*PebbleDB, error) {
	if err := os.MkdirAll(opts.Path, os.ModePerm); err != nil {
		return nil, fmt.Errorf("create pebble dir: %w", err)
	}
	pdb, err := pebble.Open(opts.Path, &pebble.Options{})
	if err != nil {
		return nil, fmt.Errorf("open pebble database: %w", err)
	}
	return &PebbleDB{db: pdb}, nil
}

func get(r pebble.Reader, key []byte) ([]byte, error) {
	v, closer, err := r.Get(key)
	if errors.Is(err, pebble.ErrNotFound) {
		return nil, db.ErrKeyNotFound
	}
	if err != nil {
		return nil, err
	}
	defer closer.Close()
	return bytes.Clone(v), nil
}

func iterate(r pebble.Reader, prefix []byte, callback func(key, value []byte) bool) (err error) {
	iter, err := r.NewIter(&pebble.IterOptions{
		LowerBound: prefix,
		UpperBound: db.PrefixUpperBound(prefix),
	})
	if err != nil {
		return err
	}
	defer func() {
		if cerr := iter.Close(); err == nil {
			err = cerr
		}
	}()
	for iter.First(); iter.Valid(); iter.Next() {
		if !callback(iter.Key(), iter.Value()) {
			break
		}
	}
	return iter.Error()
}

// Get implements db.Reader.
func (d *PebbleDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return nil, pebble.ErrClosed
	}
	return get(d.db, key)
}

// Iterate implements db.Reader.
func (d *PebbleDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return pebble.ErrClosed
	}
	return iterate(d.db, prefix, callback)
}

// WriteTx returns a new indexed batch. On a closed database the returned
// transaction is inert.
func (d *PebbleDB) WriteTx() db.WriteTx {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return &WriteTx{}
	}
	return &WriteTx{batch: d.db.NewIndexedBatch()}
}

// Close closes the database. Closing twice is a no-op.
func (d *PebbleDB) Close() error {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	return d.db.Close()
}

// Compact compacts the whole key space.
func (d *PebbleDB) Compact() error {
	d.mu.RLock()
	defer d.mu.RUnlock()
	if d.closed {
		return pebble.ErrClosed
	}
	first, last := []byte{}, []byte{}
	iter, err := d.db.NewIter(nil)
	if err != nil {
		return err
	}
	if iter.First() {
		first = bytes.Clone(iter.Key())
	}
	if iter.Last() {
		last = bytes.Clone(iter.Key())
	}
	if err := iter.Close(); err != nil {
		return err
	}
	if len(last) == 0 {
		return nil
	}
	return d.db.Compact(first, append(last, 0), true)
}

// WriteTx wraps a pebble indexed batch.
type WriteTx struct {
	batch *pebble.Batch
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	if tx.batch == nil {
		return nil, db.ErrKeyNotFound
	}
	return get(tx.batch, key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	if tx.batch == nil {
		return nil
	}
	return iterate(tx.batch, prefix, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	if tx.batch == nil {
		return nil
	}
	return tx.batch.Set(key, value, nil)
}

func (tx *WriteTx) Delete(key []byte) error {
	if tx.batch == nil {
		return nil
	}
	return tx.batch.Delete(key, nil)
}

// Apply appends the operations of other, which must be backed by pebble.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	if tx.batch == nil {
		return nil
	}
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T into a pebble transaction", other)
	}
	if o.batch == nil {
		return nil
	}
	return tx.batch.Apply(o.batch, nil)
}

func (tx *WriteTx) Commit() error {
	if tx.batch == nil {
		return nil
	}
	return tx.batch.Commit(pebble.Sync)
}

func (tx *WriteTx) Discard() {
	if tx.batch == nil {
		return
	}
	_ = tx.batch.Close()
	tx.batch = nil
}
