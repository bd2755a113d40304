// Package db defines the key-value database abstraction used by the node to
// persist nullifiers, tallies and epoch metadata. Concrete backends live in
// the subpackages.
package db

import "errors"

const (
	// TypePebble is the default persistent backend.
	TypePebble = "pebble"
	// TypeLevelDB is the goleveldb backend.
	TypeLevelDB = "leveldb"
	// TypeMongo stores the keys in a MongoDB collection.
	TypeMongo = "mongodb"
	// TypeInMem is an ephemeral backend, mostly for tests.
	TypeInMem = "inmem"
)

var (
	// ErrKeyNotFound is returned by Get when the key does not exist.
	ErrKeyNotFound = errors.New("key not found")
	// ErrTxnTooBig is returned when a transaction cannot hold more writes.
	ErrTxnTooBig = errors.New("txn too big")
	// ErrConflict is returned by Commit when the backend detects that a key
	// read or written by the transaction was modified concurrently.
	ErrConflict = errors.New("txn conflict")
)

// Options holds the parameters used to open a Database.
type Options struct {
	// Path is the directory of file based backends, or the database name for
	// the MongoDB backend.
	Path string
}

// Reader contains the read-only methods of a database or a transaction.
type Reader interface {
	// Get returns the value of key, or ErrKeyNotFound. The returned slice is
	// owned by the caller.
	Get(key []byte) ([]byte, error)
	// Iterate calls callback for each key with the given prefix, in
	// lexicographic order, until callback returns false. The key and value
	// slices are only valid during the call.
	Iterate(prefix []byte, callback func(key, value []byte) bool) error
}

// WriteTx groups writes that are applied atomically on Commit. Reads see the
// pending writes of the same transaction.
type WriteTx interface {
	Reader
	Set(key, value []byte) error
	Delete(key []byte) error
	// Apply copies all the pending writes of other into this transaction.
	Apply(other WriteTx) error
	Commit() error
	// Discard releases the transaction resources. It is safe to call after
	// Commit.
	Discard()
}

// Database is a key-value store with write transactions.
type Database interface {
	Reader
	WriteTx() WriteTx
	Close() error
	Compact() error
}

// UnwrapWriteTx returns the innermost transaction of a chain of wrapping
// transactions, such as the ones returned by prefixeddb.
func UnwrapWriteTx(tx WriteTx) WriteTx {
	for {
		u, ok := tx.(interface{ Unwrap() WriteTx })
		if !ok {
			return tx
		}
		tx = u.Unwrap()
	}
}
