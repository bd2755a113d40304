// Package overlay implements a write transaction as a set of pending writes
// on top of a read-only view of a backend. It is shared by the backends whose
// native batches cannot be read back.
package overlay

import (
	"bytes"
	"fmt"
	"slices"
	"sync"

	"github.com/vocdoni/ticketvote/db"
)

// CommitFunc persists the pending writes atomically. A nil value means the
// key must be deleted.
type CommitFunc func(writes map[string][]byte) error

// Tx is a db.WriteTx keeping the writes in memory until Commit.
type Tx struct {
	mu     sync.Mutex
	base   db.Reader
	writes map[string][]byte
	commit CommitFunc
	done   bool
}

var _ db.WriteTx = (*Tx)(nil)

// New returns a transaction reading from base and committing through fn.
func New(base db.Reader, fn CommitFunc) *Tx {
	return &Tx{
		base:   base,
		writes: make(map[string][]byte),
		commit: fn,
	}
}

func (tx *Tx) Get(key []byte) ([]byte, error) {
	tx.mu.Lock()
	v, ok := tx.writes[string(key)]
	tx.mu.Unlock()
	if ok {
		if v == nil {
			return nil, db.ErrKeyNotFound
		}
		return bytes.Clone(v), nil
	}
	return tx.base.Get(key)
}

func (tx *Tx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	entries := make(map[string][]byte)
	if err := tx.base.Iterate(prefix, func(k, v []byte) bool {
		entries[string(k)] = bytes.Clone(v)
		return true
	}); err != nil {
		return err
	}
	tx.mu.Lock()
	for k, v := range tx.writes {
		if !bytes.HasPrefix([]byte(k), prefix) {
			continue
		}
		if v == nil {
			delete(entries, k)
			continue
		}
		entries[k] = bytes.Clone(v)
	}
	tx.mu.Unlock()

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

func (tx *Tx) Set(key, value []byte) error {
	if value == nil {
		value = []byte{}
	}
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.pending()[string(key)] = bytes.Clone(value)
	return nil
}

func (tx *Tx) Delete(key []byte) error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.pending()[string(key)] = nil
	return nil
}

// Apply merges the pending writes of other, which must be an overlay
// transaction (possibly wrapped).
func (tx *Tx) Apply(other db.WriteTx) error {
	o, ok := db.UnwrapWriteTx(other).(*Tx)
	if !ok {
		return fmt.Errorf("cannot apply %T into an overlay transaction", other)
	}
	o.mu.Lock()
	pending := make(map[string][]byte, len(o.writes))
	for k, v := range o.writes {
		pending[k] = v
	}
	o.mu.Unlock()

	tx.mu.Lock()
	defer tx.mu.Unlock()
	w := tx.pending()
	for k, v := range pending {
		if v == nil {
			w[k] = nil
			continue
		}
		w[k] = bytes.Clone(v)
	}
	return nil
}

func (tx *Tx) Commit() error {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	if tx.done {
		return fmt.Errorf("transaction already committed or discarded")
	}
	if err := tx.commit(tx.writes); err != nil {
		return err
	}
	tx.done = true
	tx.writes = nil
	return nil
}

func (tx *Tx) Discard() {
	tx.mu.Lock()
	defer tx.mu.Unlock()
	tx.done = true
	tx.writes = nil
}

// pending returns the write set, allocating it if the transaction was already
// finished. Callers must hold tx.mu.
func (tx *Tx) pending() map[string][]byte {
	if tx.writes == nil {
		tx.writes = make(map[string][]byte)
	}
	return tx.writes
}
