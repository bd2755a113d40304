package elgamal

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
)

func TestEncryptDecrypt(t *testing.T) {
	c := qt.New(t)
	pk, sk, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	for _, msg := range []int64{0, 1, 7, 1000} {
		ct, err := Encrypt(pk, big.NewInt(msg))
		c.Assert(err, qt.IsNil)
		got, err := Decrypt(sk, ct, 1000)
		c.Assert(err, qt.IsNil)
		c.Assert(got.Int64(), qt.Equals, msg)
	}

	c.Run("out of range", func(c *qt.C) {
		ct, err := Encrypt(pk, big.NewInt(50))
		c.Assert(err, qt.IsNil)
		_, err = Decrypt(sk, ct, 10)
		c.Assert(err, qt.IsNotNil)
	})
}

func TestHomomorphicAdd(t *testing.T) {
	c := qt.New(t)
	pk, sk, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	a, err := Encrypt(pk, big.NewInt(3))
	c.Assert(err, qt.IsNil)
	b, err := Encrypt(pk, big.NewInt(4))
	c.Assert(err, qt.IsNil)

	sum := Add(a, b)
	got, err := Decrypt(sk, sum, 100)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Int64(), qt.Equals, int64(7))

	// commutative and bit identical
	c.Assert(Add(b, a).Equal(sum), qt.IsTrue)

	// zero is the identity
	c.Assert(Add(Zero(), a).Equal(a), qt.IsTrue)
}

func TestCiphertextMarshal(t *testing.T) {
	c := qt.New(t)
	pk, _, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	ct, err := Encrypt(pk, big.NewInt(1))
	c.Assert(err, qt.IsNil)

	data := ct.Marshal()
	c.Assert(data, qt.HasLen, CiphertextSize)
	dec, err := UnmarshalCiphertext(data)
	c.Assert(err, qt.IsNil)
	c.Assert(dec.Equal(ct), qt.IsTrue)

	_, err = UnmarshalCiphertext(data[:10])
	c.Assert(err, qt.IsNotNil)
}

func TestKeysMarshal(t *testing.T) {
	c := qt.New(t)
	pk, sk, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	pk2, err := UnmarshalPublicKey(pk.Marshal())
	c.Assert(err, qt.IsNil)
	c.Assert(pk2.Point().Equal(pk.Point()), qt.IsTrue)

	sk2, err := UnmarshalSecretKey(sk.Marshal())
	c.Assert(err, qt.IsNil)
	c.Assert(sk2.Public().Point().Equal(pk.Point()), qt.IsTrue)

	_, err = UnmarshalPublicKey(Zero().C1.Marshal())
	c.Assert(err, qt.IsNotNil)
}

func TestBallot(t *testing.T) {
	c := qt.New(t)
	pk, sk, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	w1, err := OneHot(3, 0, 1)
	c.Assert(err, qt.IsNil)
	w2, err := OneHot(3, 2, 1)
	c.Assert(err, qt.IsNil)
	_, err = OneHot(3, 3, 1)
	c.Assert(err, qt.IsNotNil)

	b1, err := EncryptBallot(pk, w1, nil)
	c.Assert(err, qt.IsNil)
	b2, err := EncryptBallot(pk, w2, nil)
	c.Assert(err, qt.IsNil)
	b3, err := EncryptBallot(pk, w1, nil)
	c.Assert(err, qt.IsNil)

	tally := Ballot{Zero(), Zero(), Zero()}
	for _, b := range []Ballot{b1, b2, b3} {
		tally, err = tally.Add(b)
		c.Assert(err, qt.IsNil)
	}
	res, err := DecryptBallot(sk, tally, 3)
	c.Assert(err, qt.IsNil)
	c.Assert(res[0].Int64(), qt.Equals, int64(2))
	c.Assert(res[1].Int64(), qt.Equals, int64(0))
	c.Assert(res[2].Int64(), qt.Equals, int64(1))

	_, err = tally.Add(b1[:2])
	c.Assert(err, qt.IsNotNil)

	c.Run("deterministic with seed", func(c *qt.C) {
		k := big.NewInt(12345)
		x, err := EncryptBallot(pk, w1, k)
		c.Assert(err, qt.IsNil)
		y, err := EncryptBallot(pk, w1, k)
		c.Assert(err, qt.IsNil)
		for i := range x {
			c.Assert(x[i].Equal(y[i]), qt.IsTrue)
		}
		// different slots use different randomness
		c.Assert(x[1].C1.Equal(x[2].C1), qt.IsFalse)
	})

	c.Run("marshal", func(c *qt.C) {
		dec, err := UnmarshalBallot(b1.Marshal())
		c.Assert(err, qt.IsNil)
		c.Assert(dec, qt.HasLen, 3)
		c.Assert(dec[0].Equal(b1[0]), qt.IsTrue)
	})
}

func TestCombiner(t *testing.T) {
	c := qt.New(t)
	pk, sk, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	var comb Combiner

	a, err := Encrypt(pk, big.NewInt(2))
	c.Assert(err, qt.IsNil)
	sum, err := comb.Combine(comb.Zero(), a.Marshal())
	c.Assert(err, qt.IsNil)
	sum, err = comb.Combine(sum, a.Marshal())
	c.Assert(err, qt.IsNil)

	ct, err := UnmarshalCiphertext(sum)
	c.Assert(err, qt.IsNil)
	got, err := Decrypt(sk, ct, 10)
	c.Assert(err, qt.IsNil)
	c.Assert(got.Int64(), qt.Equals, int64(4))

	c.Assert(comb.Validate(sum), qt.IsNil)
	c.Assert(comb.Validate([]byte("garbage")), qt.IsNotNil)
	_, err = comb.Combine(sum, []byte{1, 2, 3})
	c.Assert(err, qt.IsNotNil)
}
