package util

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestTrimHex(t *testing.T) {
	c := qt.New(t)
	c.Assert(TrimHex("0xabcd"), qt.Equals, "abcd")
	c.Assert(TrimHex("0Xabcd"), qt.Equals, "abcd")
	c.Assert(TrimHex("abcd"), qt.Equals, "abcd")
	c.Assert(TrimHex("0"), qt.Equals, "0")
}

func TestRandom(t *testing.T) {
	c := qt.New(t)
	c.Assert(RandomBytes(16), qt.HasLen, 16)
	c.Assert(RandomHex(8), qt.HasLen, 16)

	min, max := big.NewInt(10), big.NewInt(20)
	for range 50 {
		n := RandomBigInt(min, max)
		c.Assert(n.Cmp(min) >= 0 && n.Cmp(max) < 0, qt.IsTrue)
	}
}
