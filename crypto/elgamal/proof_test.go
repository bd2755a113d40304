package elgamal

import (
	"math/big"
	"testing"

	qt "github.com/frankban/quicktest"
	"github.com/vocdoni/ticketvote/crypto/ecc/bjj"
)

var testContext = []byte("event|0xcafe")

func TestBallotProof(t *testing.T) {
	c := qt.New(t)
	pk, sk, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	for _, weight := range []uint64{1, 5} {
		for choice := range 3 {
			ballot, proof, err := EncryptVote(pk, 3, choice, weight, nil, testContext)
			c.Assert(err, qt.IsNil)
			c.Assert(VerifyBallot(pk, ballot, weight, proof, testContext), qt.IsNil)

			got, err := DecryptBallot(sk, ballot, weight)
			c.Assert(err, qt.IsNil)
			for i, v := range got {
				want := uint64(0)
				if i == choice {
					want = weight
				}
				c.Assert(v.Uint64(), qt.Equals, want)
			}
		}
	}

	c.Run("wire round trip", func(c *qt.C) {
		ballot, proof, err := EncryptVote(pk, 4, 3, 1, nil, testContext)
		c.Assert(err, qt.IsNil)
		v, err := NewBallotVerifier(pk, 1)
		c.Assert(err, qt.IsNil)
		c.Assert(v.VerifyBallot(ballot.Marshal(), proof.Marshal(), testContext), qt.IsNil)

		_, err = UnmarshalBallotProof(proof.Marshal()[1:])
		c.Assert(err, qt.ErrorIs, ErrInvalidBallotProof)
		// a proof for fewer options
		short, err := UnmarshalBallotProof(proof.Marshal()[slotProofSize:])
		c.Assert(err, qt.IsNil)
		c.Assert(VerifyBallot(pk, ballot, 1, short, testContext), qt.ErrorIs, ErrInvalidBallotProof)
	})

	c.Run("bound to its context", func(c *qt.C) {
		ballot, proof, err := EncryptVote(pk, 2, 0, 1, nil, testContext)
		c.Assert(err, qt.IsNil)
		c.Assert(VerifyBallot(pk, ballot, 1, proof, []byte("event|0xbeef")), qt.ErrorIs, ErrInvalidBallotProof)
	})

	c.Run("bound to the key and weight", func(c *qt.C) {
		other, _, err := GenerateKey()
		c.Assert(err, qt.IsNil)
		ballot, proof, err := EncryptVote(pk, 2, 0, 1, nil, testContext)
		c.Assert(err, qt.IsNil)
		c.Assert(VerifyBallot(other, ballot, 1, proof, testContext), qt.ErrorIs, ErrInvalidBallotProof)
		c.Assert(VerifyBallot(pk, ballot, 2, proof, testContext), qt.ErrorIs, ErrInvalidBallotProof)
	})
}

func TestBallotProofRejectsStuffing(t *testing.T) {
	c := qt.New(t)
	pk, _, err := GenerateKey()
	c.Assert(err, qt.IsNil)

	// a valid proof does not carry over to a ballot with a larger weight
	_, proof, err := EncryptVote(pk, 2, 0, 1, nil, testContext)
	c.Assert(err, qt.IsNil)
	stuffed, err := EncryptBallot(pk, []uint64{50, 0}, nil)
	c.Assert(err, qt.IsNil)
	c.Assert(VerifyBallot(pk, stuffed, 1, proof, testContext), qt.ErrorIs, ErrInvalidBallotProof)

	// every slot in range but two choices: the slot proofs hold and the
	// sum proof cannot
	ctxField, err := contextField(testContext)
	c.Assert(err, qt.IsNil)
	double := make(Ballot, 2)
	forged := &BallotProof{Slots: make([]SlotProof, 2)}
	total := new(big.Int)
	for i := range double {
		k, err := RandK()
		c.Assert(err, qt.IsNil)
		double[i] = EncryptWithK(pk, big.NewInt(1), k)
		sp, err := proveSlot(pk, double[i], 1, 1, k, ctxField, i)
		c.Assert(err, qt.IsNil)
		c.Assert(verifySlot(pk, double[i], 1, sp, ctxField, i), qt.IsNil)
		forged.Slots[i] = *sp
		total.Add(total, k)
	}
	sum, err := proveSum(pk, double.Sum(), 1, total.Mod(total, bjj.Order()), ctxField)
	c.Assert(err, qt.IsNil)
	forged.Sum = *sum
	c.Assert(VerifyBallot(pk, double, 1, forged, testContext), qt.ErrorIs, ErrInvalidBallotProof)

	// a slot proof made for another value does not verify
	k, err := RandK()
	c.Assert(err, qt.IsNil)
	ct := EncryptWithK(pk, big.NewInt(2), k)
	sp, err := proveSlot(pk, ct, 1, 1, k, new(big.Int), 0)
	c.Assert(err, qt.IsNil)
	c.Assert(verifySlot(pk, ct, 1, sp, new(big.Int), 0), qt.IsNotNil)
}

func TestBallotVerifierConfig(t *testing.T) {
	c := qt.New(t)
	pk, _, err := GenerateKey()
	c.Assert(err, qt.IsNil)
	_, err = NewBallotVerifier(nil, 1)
	c.Assert(err, qt.IsNotNil)
	_, err = NewBallotVerifier(pk, 0)
	c.Assert(err, qt.IsNotNil)
	_, _, err = EncryptVote(pk, 2, 0, 0, nil, testContext)
	c.Assert(err, qt.IsNotNil)
	_, _, err = EncryptVote(pk, 2, 2, 1, nil, testContext)
	c.Assert(err, qt.IsNotNil)
}
