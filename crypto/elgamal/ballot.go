package elgamal

import (
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
)

// Ballot is one ciphertext per vote option.
type Ballot []*Ciphertext

// EncryptBallot encrypts one weight per option, without a validity proof.
// If k is nil a random seed is used. Each slot gets its own randomness,
// derived from the seed with a Poseidon hash chain so that the seed alone
// lets the voter reproduce the whole ballot.
func EncryptBallot(pk *PublicKey, weights []uint64, k *big.Int) (Ballot, error) {
	var err error
	if k == nil {
		if k, err = RandK(); err != nil {
			return nil, err
		}
	}
	nonces, err := slotNonces(k, len(weights))
	if err != nil {
		return nil, err
	}
	ballot := make(Ballot, len(weights))
	for i, w := range weights {
		ballot[i] = EncryptWithK(pk, new(big.Int).SetUint64(w), nonces[i])
	}
	return ballot, nil
}

// slotNonces derives the randomness of n slots from seed.
func slotNonces(seed *big.Int, n int) ([]*big.Int, error) {
	nonces := make([]*big.Int, n)
	k := seed
	var err error
	for i := range nonces {
		if k, err = poseidon.Hash([]*big.Int{k}); err != nil {
			return nil, fmt.Errorf("derive k for option %d: %w", i, err)
		}
		nonces[i] = k
	}
	return nonces, nil
}

// OneHot returns the weight vector of a single choice among options.
func OneHot(options, choice int, weight uint64) ([]uint64, error) {
	if choice < 0 || choice >= options {
		return nil, fmt.Errorf("choice %d out of range [0, %d)", choice, options)
	}
	weights := make([]uint64, options)
	weights[choice] = weight
	return weights, nil
}

// Add returns the slot-wise sum of two ballots of the same length.
func (b Ballot) Add(other Ballot) (Ballot, error) {
	if len(b) != len(other) {
		return nil, fmt.Errorf("ballot length mismatch: %d != %d", len(b), len(other))
	}
	sum := make(Ballot, len(b))
	for i := range b {
		sum[i] = Add(b[i], other[i])
	}
	return sum, nil
}

// Sum returns the encryption of the sum of all slots.
func (b Ballot) Sum() *Ciphertext {
	sum := Zero()
	for _, ct := range b {
		sum = Add(sum, ct)
	}
	return sum
}

// Marshal serializes every ciphertext.
func (b Ballot) Marshal() [][]byte {
	out := make([][]byte, len(b))
	for i, ct := range b {
		out[i] = ct.Marshal()
	}
	return out
}

// UnmarshalBallot decodes serialized ciphertexts.
func UnmarshalBallot(data [][]byte) (Ballot, error) {
	b := make(Ballot, len(data))
	for i, raw := range data {
		ct, err := UnmarshalCiphertext(raw)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		b[i] = ct
	}
	return b, nil
}

// DecryptBallot decrypts every slot. maxMessage bounds the search, it is
// usually the number of counted ballots times the vote weight.
func DecryptBallot(sk *SecretKey, b Ballot, maxMessage uint64) ([]*big.Int, error) {
	out := make([]*big.Int, len(b))
	for i, ct := range b {
		if ct.IsZero() {
			out[i] = new(big.Int)
			continue
		}
		m, err := Decrypt(sk, ct, maxMessage)
		if err != nil {
			return nil, fmt.Errorf("option %d: %w", i, err)
		}
		out[i] = m
	}
	return out, nil
}
