// Package inmemory provides an ephemeral db.Database with optimistic
// transactions, used by tests and by nodes started without a data directory.
package inmemory

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/vocdoni/ticketvote/db"
)

type record struct {
	value   []byte
	version uint64
}

// InMemoryDB keeps every key in a map. Each write bumps a global version so
// that transactions can detect concurrent modifications on Commit.
type InMemoryDB struct {
	mu      sync.RWMutex
	records map[string]record
	// tombstones keep the version of deleted keys.
	tombstones map[string]uint64
	version    uint64
}

var _ db.Database = (*InMemoryDB)(nil)

// New returns an empty database. Options are ignored.
func New(_ db.Options) (*InMemoryDB, error) {
	return &InMemoryDB{
		records:    make(map[string]record),
		tombstones: make(map[string]uint64),
	}, nil
}

func (d *InMemoryDB) Close() error   { return nil }
func (d *InMemoryDB) Compact() error { return nil }

func (d *InMemoryDB) Get(key []byte) ([]byte, error) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	r, ok := d.records[string(key)]
	if !ok {
		return nil, db.ErrKeyNotFound
	}
	return bytes.Clone(r.value), nil
}

func (d *InMemoryDB) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	snapshot, _ := d.snapshot(prefix)
	return visitSorted(snapshot, callback)
}

// snapshot copies the values and versions of the keys with prefix.
func (d *InMemoryDB) snapshot(prefix []byte) (map[string][]byte, map[string]uint64) {
	d.mu.RLock()
	defer d.mu.RUnlock()
	values := make(map[string][]byte)
	versions := make(map[string]uint64)
	for k, r := range d.records {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		values[k] = bytes.Clone(r.value)
		versions[k] = r.version
	}
	return values, versions
}

// versionOf returns the last version that touched key. Callers hold d.mu.
func (d *InMemoryDB) versionOf(key string) uint64 {
	if r, ok := d.records[key]; ok {
		return r.version
	}
	return d.tombstones[key]
}

func (d *InMemoryDB) WriteTx() db.WriteTx {
	return &WriteTx{
		db:     d,
		writes: make(map[string][]byte),
		reads:  make(map[string]uint64),
	}
}

// WriteTx records the version of every key it reads or writes and fails to
// commit with db.ErrConflict if any of them changed meanwhile.
type WriteTx struct {
	db     *InMemoryDB
	writes map[string][]byte // nil value means delete
	reads  map[string]uint64
	done   bool
}

var _ db.WriteTx = (*WriteTx)(nil)

func (tx *WriteTx) track(key string) {
	if _, ok := tx.reads[key]; ok {
		return
	}
	tx.db.mu.RLock()
	tx.reads[key] = tx.db.versionOf(key)
	tx.db.mu.RUnlock()
}

func (tx *WriteTx) Get(key []byte) ([]byte, error) {
	k := string(key)
	if v, ok := tx.writes[k]; ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(v), nil
	}
	tx.track(k)
	return tx.db.Get(key)
}

func (tx *WriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	values, versions := tx.db.snapshot(prefix)
	for k, ver := range versions {
		if _, ok := tx.reads[k]; !ok {
			tx.reads[k] = ver
		}
	}
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(values, k)
			continue
		}
		values[k] = bytes.Clone(v)
	}
	return visitSorted(values, callback)
}

func (tx *WriteTx) Set(key, value []byte) error {
	k := string(key)
	tx.track(k)
	if value == nil {
		value = []byte{}
	}
	tx.writes[k] = bytes.Clone(value)
	return nil
}

func (tx *WriteTx) Delete(key []byte) error {
	k := string(key)
	tx.track(k)
	tx.writes[k] = nil
	return nil
}

// Apply merges the pending writes of another in-memory transaction.
func (tx *WriteTx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*WriteTx)
	if !ok {
		return fmt.Errorf("cannot apply %T into an inmemory transaction", other)
	}
	for k, v := range o.writes {
		tx.track(k)
		if v == nil {
			tx.writes[k] = nil
			continue
		}
		tx.writes[k] = bytes.Clone(v)
	}
	return nil
}

func (tx *WriteTx) Commit() error {
	if tx.done {
		return fmt.Errorf("inmemory tx already committed or discarded")
	}
	tx.db.mu.Lock()
	defer tx.db.mu.Unlock()
	for k, ver := range tx.reads {
		if tx.db.versionOf(k) != ver {
			return db.ErrConflict
		}
	}
	for k, v := range tx.writes {
		tx.db.version++
		if v == nil {
			delete(tx.db.records, k)
			tx.db.tombstones[k] = tx.db.version
			continue
		}
		tx.db.records[k] = record{value: v, version: tx.db.version}
	}
	tx.done = true
	return nil
}

func (tx *WriteTx) Discard() {
	tx.writes = make(map[string][]byte)
	tx.reads = make(map[string]uint64)
	tx.done = true
}

func visitSorted(entries map[string][]byte, callback func(key, value []byte) bool) error {
	keys := make([]string, 0, len(entries))
	for k := range entries {
		keys = append(keys, k)
	}
	slices.Sort(keys)
	for _, k := range keys {
		if !callback([]byte(k), entries[k]) {
			break
		}
	}
	return nil
}
