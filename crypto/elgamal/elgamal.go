// Package elgamal implements exponential ElGamal over BabyJubJub. Messages
// are encoded as m·G, so ciphertexts can be added point-wise to obtain an
// encryption of the sum of the plaintexts. Decryption recovers m with a
// bounded discrete log search, which is fine for vote counts.
package elgamal

import (
	"crypto/rand"
	"fmt"
	"math/big"

	"github.com/vocdoni/ticketvote/crypto/ecc/bjj"
)

// RandK returns a random nonzero scalar of the BabyJubJub subgroup.
func RandK() (*big.Int, error) {
	for {
		k, err := rand.Int(rand.Reader, bjj.Order())
		if err != nil {
			return nil, fmt.Errorf("failed to generate random k: %w", err)
		}
		if k.Sign() != 0 {
			return k, nil
		}
	}
}

// GenerateKey returns a new key pair. The secret key must stay with the tally
// authority, the node only ever needs the public key.
func GenerateKey() (*PublicKey, *SecretKey, error) {
	d, err := RandK()
	if err != nil {
		return nil, nil, err
	}
	sk := &SecretKey{d: d}
	return sk.Public(), sk, nil
}

// EncryptWithK encrypts msg as C1 = k·G, C2 = msg·G + k·P.
func EncryptWithK(pk *PublicKey, msg, k *big.Int) *Ciphertext {
	m := new(big.Int).Mod(msg, bjj.Order())
	c1 := bjj.New().ScalarBaseMult(k)
	s := bjj.New().ScalarMult(pk.point, k)
	c2 := bjj.New().ScalarBaseMult(m)
	c2.Add(c2, s)
	return &Ciphertext{C1: c1, C2: c2}
}

// Encrypt encrypts msg with fresh randomness.
func Encrypt(pk *PublicKey, msg *big.Int) (*Ciphertext, error) {
	k, err := RandK()
	if err != nil {
		return nil, err
	}
	return EncryptWithK(pk, msg, k), nil
}

// Decrypt recovers the plaintext of ct, searching the discrete log in
// [0, maxMessage].
func Decrypt(sk *SecretKey, ct *Ciphertext, maxMessage uint64) (*big.Int, error) {
	if sk == nil || sk.d == nil || sk.d.Sign() <= 0 {
		return nil, fmt.Errorf("decrypt: empty secret key")
	}
	if maxMessage == 0 {
		return nil, fmt.Errorf("decrypt: maxMessage is zero")
	}
	// M = C2 - d·C1
	s := bjj.New().ScalarMult(ct.C1, sk.d)
	s.Neg(s)
	m := bjj.New().Add(ct.C2, s)
	return BabyStepGiantStep(m, bjj.Generator(), maxMessage)
}

// BabyStepGiantStep finds x in [0, max] such that beta = x·alpha.
func BabyStepGiantStep(beta, alpha *bjj.Point, max uint64) (*big.Int, error) {
	bound := new(big.Int).SetUint64(max)
	m := new(big.Int).Sqrt(bound)
	if new(big.Int).Mul(m, m).Cmp(bound) < 0 {
		m.Add(m, big.NewInt(1))
	}
	steps := m.Uint64()

	table := make(map[string]uint64, steps)
	baby := bjj.New()
	for j := uint64(0); j < steps; j++ {
		table[string(baby.Marshal())] = j
		baby.Add(baby, alpha)
	}

	stride := bjj.New().ScalarMult(alpha, m)
	stride.Neg(stride)
	giant := beta.Clone()
	for i := uint64(0); i <= steps; i++ {
		if j, ok := table[string(giant.Marshal())]; ok {
			x := new(big.Int).SetUint64(i*steps + j)
			if x.Cmp(bound) <= 0 {
				return x, nil
			}
		}
		giant.Add(giant, stride)
	}
	return nil, fmt.Errorf("bsgs: discrete log not found in [0, %d]", max)
}
