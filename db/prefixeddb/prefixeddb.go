// Package prefixeddb wraps a database so that every key is transparently
// namespaced under a fixed prefix.
package prefixeddb

import (
	"github.com/vocdoni/ticketvote/db"
)

func prefixed(prefix, key []byte) []byte {
	out := make([]byte, 0, len(prefix)+len(key))
	out = append(out, prefix...)
	return append(out, key...)
}

// PrefixedReader is a db.Reader restricted to a prefix.
type PrefixedReader struct {
	reader db.Reader
	prefix []byte
}

var _ db.Reader = (*PrefixedReader)(nil)

// NewPrefixedReader returns a reader over the keys of r starting with prefix.
func NewPrefixedReader(r db.Reader, prefix []byte) *PrefixedReader {
	return &PrefixedReader{reader: r, prefix: prefix}
}

func (r *PrefixedReader) Get(key []byte) ([]byte, error) {
	return r.reader.Get(prefixed(r.prefix, key))
}

// Iterate strips the namespace prefix from the keys passed to callback.
func (r *PrefixedReader) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return r.reader.Iterate(prefixed(r.prefix, prefix), func(key, value []byte) bool {
		return callback(key[len(r.prefix):], value)
	})
}

// PrefixedDatabase is a db.Database restricted to a prefix.
type PrefixedDatabase struct {
	db     db.Database
	prefix []byte
}

var _ db.Database = (*PrefixedDatabase)(nil)

// NewPrefixedDatabase returns a database over the keys of database starting
// with prefix. Nested prefixed databases concatenate their prefixes.
func NewPrefixedDatabase(database db.Database, prefix []byte) *PrefixedDatabase {
	return &PrefixedDatabase{db: database, prefix: prefix}
}

func (d *PrefixedDatabase) Get(key []byte) ([]byte, error) {
	return NewPrefixedReader(d.db, d.prefix).Get(key)
}

func (d *PrefixedDatabase) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return NewPrefixedReader(d.db, d.prefix).Iterate(prefix, callback)
}

func (d *PrefixedDatabase) WriteTx() db.WriteTx {
	return NewPrefixedWriteTx(d.db.WriteTx(), d.prefix)
}

// Close closes the underlying database.
func (d *PrefixedDatabase) Close() error {
	return d.db.Close()
}

func (d *PrefixedDatabase) Compact() error {
	return d.db.Compact()
}

// PrefixedWriteTx is a db.WriteTx restricted to a prefix.
type PrefixedWriteTx struct {
	tx     db.WriteTx
	prefix []byte
}

var _ db.WriteTx = (*PrefixedWriteTx)(nil)

// NewPrefixedWriteTx wraps tx so that every key is prefixed.
func NewPrefixedWriteTx(tx db.WriteTx, prefix []byte) *PrefixedWriteTx {
	return &PrefixedWriteTx{tx: tx, prefix: prefix}
}

func (t *PrefixedWriteTx) Get(key []byte) ([]byte, error) {
	return t.tx.Get(prefixed(t.prefix, key))
}

func (t *PrefixedWriteTx) Iterate(prefix []byte, callback func(key, value []byte) bool) error {
	return NewPrefixedReader(t.tx, t.prefix).Iterate(prefix, callback)
}

func (t *PrefixedWriteTx) Set(key, value []byte) error {
	return t.tx.Set(prefixed(t.prefix, key), value)
}

func (t *PrefixedWriteTx) Delete(key []byte) error {
	return t.tx.Delete(prefixed(t.prefix, key))
}

// Apply merges the pending writes of other. Keys are kept as written by
// other, so applying a transaction with a different prefix is allowed.
func (t *PrefixedWriteTx) Apply(other db.WriteTx) error {
	return t.tx.Apply(other)
}

func (t *PrefixedWriteTx) Commit() error {
	return t.tx.Commit()
}

func (t *PrefixedWriteTx) Discard() {
	t.tx.Discard()
}

// Unwrap returns the underlying transaction.
func (t *PrefixedWriteTx) Unwrap() db.WriteTx {
	return t.tx
}
