// Package dbtest holds the conformance tests shared by every db backend.
package dbtest

import (
	"fmt"
	"sync"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ticketvote/db"
)

// TestWriteTx checks that a transaction reads its own writes and that they
// only become visible to the database after Commit.
func TestWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	_, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Set([]byte("a"), []byte("b")), qt.IsNil)
	v, err := wTx.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	v, err = database.Get([]byte("a"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))

	// delete
	wTx = database.WriteTx()
	c.Assert(wTx.Delete([]byte("a")), qt.IsNil)
	_, err = wTx.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)

	// discarded writes are lost
	wTx = database.WriteTx()
	c.Assert(wTx.Set([]byte("c"), []byte("d")), qt.IsNil)
	wTx.Discard()
	_, err = database.Get([]byte("c"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestIterate checks prefix iteration order and early termination.
func TestIterate(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	for i := 9; i >= 0; i-- {
		c.Assert(wTx.Set(fmt.Appendf(nil, "p/%d", i), []byte{byte(i)}), qt.IsNil)
	}
	c.Assert(wTx.Set([]byte("q/0"), []byte{0xff}), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	var keys []string
	c.Assert(database.Iterate([]byte("p/"), func(k, v []byte) bool {
		keys = append(keys, string(k))
		c.Assert(v, qt.HasLen, 1)
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	for i, k := range keys {
		c.Assert(k, qt.Equals, fmt.Sprintf("p/%d", i))
	}

	count := 0
	c.Assert(database.Iterate([]byte("p/"), func(_, _ []byte) bool {
		count++
		return count < 3
	}), qt.IsNil)
	c.Assert(count, qt.Equals, 3)

	// a transaction sees its pending writes while iterating
	wTx = database.WriteTx()
	defer wTx.Discard()
	c.Assert(wTx.Delete([]byte("p/0")), qt.IsNil)
	c.Assert(wTx.Set([]byte("p/a"), []byte{10}), qt.IsNil)
	keys = nil
	c.Assert(wTx.Iterate([]byte("p/"), func(k, _ []byte) bool {
		keys = append(keys, string(k))
		return true
	}), qt.IsNil)
	c.Assert(keys, qt.HasLen, 10)
	c.Assert(keys[0], qt.Equals, "p/1")
	c.Assert(keys[9], qt.Equals, "p/a")
}

// TestWriteTxApply checks that Apply merges the pending writes of another
// transaction.
func TestWriteTxApply(t *testing.T, database db.Database) {
	c := qt.New(t)

	wTx := database.WriteTx()
	c.Assert(wTx.Set([]byte("a"), []byte("a")), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)
	wTx.Discard()

	wTx = database.WriteTx()
	defer wTx.Discard()
	other := database.WriteTx()
	defer other.Discard()
	c.Assert(other.Set([]byte("b"), []byte("b")), qt.IsNil)
	c.Assert(other.Delete([]byte("a")), qt.IsNil)

	c.Assert(wTx.Apply(other), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := database.Get([]byte("b"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("b"))
	_, err = database.Get([]byte("a"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestWriteTxApplyPrefixed checks that applying a transaction of a prefixed
// view keeps the prefix on the written keys.
func TestWriteTxApplyPrefixed(t *testing.T, database, prefixed db.Database, prefix []byte) {
	c := qt.New(t)

	wTx := database.WriteTx()
	defer wTx.Discard()
	pTx := prefixed.WriteTx()
	defer pTx.Discard()

	c.Assert(wTx.Set([]byte("plain"), []byte("1")), qt.IsNil)
	c.Assert(pTx.Set([]byte("key"), []byte("2")), qt.IsNil)
	c.Assert(wTx.Apply(pTx), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	v, err := database.Get(append(append([]byte{}, prefix...), "key"...))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("2"))

	v, err = prefixed.Get([]byte("key"))
	c.Assert(err, qt.IsNil)
	c.Assert(v, qt.DeepEquals, []byte("2"))

	_, err = prefixed.Get([]byte("plain"))
	c.Assert(err, qt.ErrorIs, db.ErrKeyNotFound)
}

// TestConcurrentWriteTx checks that two transactions updating the same key
// concurrently cannot both commit. Only backends with conflict detection
// pass it.
func TestConcurrentWriteTx(t *testing.T, database db.Database) {
	c := qt.New(t)

	key := []byte("counter")
	wTx := database.WriteTx()
	c.Assert(wTx.Set(key, []byte{0}), qt.IsNil)
	c.Assert(wTx.Commit(), qt.IsNil)

	const n = 16
	var wg sync.WaitGroup
	var mu sync.Mutex
	succeeded := 0
	start := make(chan struct{})
	for range n {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tx := database.WriteTx()
			defer tx.Discard()
			v, err := tx.Get(key)
			if err != nil {
				return
			}
			<-start
			if err := tx.Set(key, []byte{v[0] + 1}); err != nil {
				return
			}
			if tx.Commit() == nil {
				mu.Lock()
				succeeded++
				mu.Unlock()
			}
		}()
	}
	close(start)
	wg.Wait()

	v, err := database.Get(key)
	c.Assert(err, qt.IsNil)
	c.Assert(int(v[0]), qt.Equals, succeeded)
	c.Assert(succeeded >= 1, qt.IsTrue)
}
