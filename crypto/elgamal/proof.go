package elgamal

// Ballot validity proofs.
//
// Every slot (C1, C2) of a ballot carries a disjunctive Chaum-Pedersen proof
// that it encrypts 0 or the ballot weight W, that is, for some k
//
//	C1 = k·G  and  C2 - m·G = k·P,  with m ∈ {0, W}
//
// The ballot also carries a Chaum-Pedersen proof that the sum of its slots
// encrypts exactly W. Together they mean a ballot adds W to a single option.
//
// For branch j with D_j = C2 - m_j·G, the prover simulates the false branch
// (random c, z, then A = z·G - c·C1, B = z·P - c·D) and answers the real one
// (A = w·G, B = w·P, z = w + c·k). The challenges of both branches must add
// up to the Fiat-Shamir hash of the statement and every commitment. The
// hash is a Poseidon sponge that also absorbs a caller context, which binds
// a proof to the request carrying it.

import (
	"errors"
	"fmt"
	"math/big"

	"github.com/iden3/go-iden3-crypto/poseidon"
	"github.com/vocdoni/ticketvote/crypto/ecc/bjj"
)

// ScalarSize is the length of a serialized proof scalar.
const ScalarSize = 32

const (
	slotProofSize = 4 * ScalarSize
	sumProofSize  = 2 * ScalarSize
)

// Fiat-Shamir domain tags.
var (
	slotDomain = big.NewInt(1)
	sumDomain  = big.NewInt(2)
)

// ErrInvalidBallotProof is returned when a ballot does not match its
// validity proof.
var ErrInvalidBallotProof = errors.New("invalid ballot proof")

// SlotProof proves that a ciphertext encrypts 0 (branch 0) or the ballot
// weight (branch 1).
type SlotProof struct {
	C [2]*big.Int
	Z [2]*big.Int
}

// SumProof proves that the sum of the slots encrypts the ballot weight.
type SumProof struct {
	C *big.Int
	Z *big.Int
}

// BallotProof is the validity proof of a ballot.
type BallotProof struct {
	Slots []SlotProof
	Sum   SumProof
}

// EncryptVote encrypts a vote of the given weight for choice among options
// and proves the ballot valid. context binds the proof to the request that
// carries it. If k is nil a random seed is used.
func EncryptVote(pk *PublicKey, options, choice int, weight uint64, k *big.Int, context []byte) (Ballot, *BallotProof, error) {
	if weight == 0 {
		return nil, nil, fmt.Errorf("vote weight must be positive")
	}
	weights, err := OneHot(options, choice, weight)
	if err != nil {
		return nil, nil, err
	}
	if k == nil {
		if k, err = RandK(); err != nil {
			return nil, nil, err
		}
	}
	nonces, err := slotNonces(k, options)
	if err != nil {
		return nil, nil, err
	}
	ctxField, err := contextField(context)
	if err != nil {
		return nil, nil, err
	}

	order := bjj.Order()
	ballot := make(Ballot, options)
	proof := &BallotProof{Slots: make([]SlotProof, options)}
	total := new(big.Int)
	for i, w := range weights {
		ballot[i] = EncryptWithK(pk, new(big.Int).SetUint64(w), nonces[i])
		branch := 0
		if w != 0 {
			branch = 1
		}
		sp, err := proveSlot(pk, ballot[i], weight, branch, nonces[i], ctxField, i)
		if err != nil {
			return nil, nil, fmt.Errorf("option %d: %w", i, err)
		}
		proof.Slots[i] = *sp
		total.Add(total, nonces[i])
	}
	total.Mod(total, order)
	sum, err := proveSum(pk, ballot.Sum(), weight, total, ctxField)
	if err != nil {
		return nil, nil, err
	}
	proof.Sum = *sum
	return ballot, proof, nil
}

// VerifyBallot checks that proof shows b to be a vote of the given weight
// for a single option, under pk and for context.
func VerifyBallot(pk *PublicKey, b Ballot, weight uint64, proof *BallotProof, context []byte) error {
	if proof == nil || len(proof.Slots) != len(b) || len(b) == 0 {
		return fmt.Errorf("%w: proof does not match the ballot shape", ErrInvalidBallotProof)
	}
	if weight == 0 {
		return fmt.Errorf("%w: zero weight", ErrInvalidBallotProof)
	}
	ctxField, err := contextField(context)
	if err != nil {
		return err
	}
	for i, ct := range b {
		if err := verifySlot(pk, ct, weight, &proof.Slots[i], ctxField, i); err != nil {
			return fmt.Errorf("%w: option %d: %v", ErrInvalidBallotProof, i, err)
		}
	}
	if err := verifySum(pk, b.Sum(), weight, &proof.Sum, ctxField); err != nil {
		return fmt.Errorf("%w: sum: %v", ErrInvalidBallotProof, err)
	}
	return nil
}

func proveSlot(pk *PublicKey, ct *Ciphertext, weight uint64, branch int, k, ctxField *big.Int, index int) (*SlotProof, error) {
	order := bjj.Order()
	k = new(big.Int).Mod(k, order)
	d := slotShares(ct, weight)

	var a, b [2]*bjj.Point
	proof := &SlotProof{}
	sim := 1 - branch
	cs, err := RandK()
	if err != nil {
		return nil, err
	}
	zs, err := RandK()
	if err != nil {
		return nil, err
	}
	a[sim] = linear(bjj.Generator(), zs, ct.C1, cs)
	b[sim] = linear(pk.point, zs, d[sim], cs)
	proof.C[sim], proof.Z[sim] = cs, zs

	w, err := RandK()
	if err != nil {
		return nil, err
	}
	a[branch] = bjj.New().ScalarBaseMult(w)
	b[branch] = bjj.New().ScalarMult(pk.point, w)

	c, err := slotChallenge(pk, ct, weight, ctxField, index, a, b)
	if err != nil {
		return nil, err
	}
	cr := new(big.Int).Sub(c, cs)
	cr.Mod(cr, order)
	zr := new(big.Int).Mul(cr, k)
	zr.Add(zr, w)
	zr.Mod(zr, order)
	proof.C[branch], proof.Z[branch] = cr, zr
	return proof, nil
}

func verifySlot(pk *PublicKey, ct *Ciphertext, weight uint64, proof *SlotProof, ctxField *big.Int, index int) error {
	d := slotShares(ct, weight)
	var a, b [2]*bjj.Point
	for j := range 2 {
		if !inRange(proof.C[j]) || !inRange(proof.Z[j]) {
			return fmt.Errorf("scalar out of range")
		}
		a[j] = linear(bjj.Generator(), proof.Z[j], ct.C1, proof.C[j])
		b[j] = linear(pk.point, proof.Z[j], d[j], proof.C[j])
	}
	c, err := slotChallenge(pk, ct, weight, ctxField, index, a, b)
	if err != nil {
		return err
	}
	sum := new(big.Int).Add(proof.C[0], proof.C[1])
	sum.Mod(sum, bjj.Order())
	if sum.Cmp(c) != 0 {
		return fmt.Errorf("challenge mismatch")
	}
	return nil
}

func proveSum(pk *PublicKey, sum *Ciphertext, weight uint64, k, ctxField *big.Int) (*SumProof, error) {
	order := bjj.Order()
	w, err := RandK()
	if err != nil {
		return nil, err
	}
	a := bjj.New().ScalarBaseMult(w)
	b := bjj.New().ScalarMult(pk.point, w)
	c, err := sumChallenge(pk, sum, weight, ctxField, a, b)
	if err != nil {
		return nil, err
	}
	z := new(big.Int).Mul(c, k)
	z.Add(z, w)
	z.Mod(z, order)
	return &SumProof{C: c, Z: z}, nil
}

func verifySum(pk *PublicKey, sum *Ciphertext, weight uint64, proof *SumProof, ctxField *big.Int) error {
	if !inRange(proof.C) || !inRange(proof.Z) {
		return fmt.Errorf("scalar out of range")
	}
	d := shareOf(sum, new(big.Int).SetUint64(weight))
	a := linear(bjj.Generator(), proof.Z, sum.C1, proof.C)
	b := linear(pk.point, proof.Z, d, proof.C)
	c, err := sumChallenge(pk, sum, weight, ctxField, a, b)
	if err != nil {
		return err
	}
	if c.Cmp(proof.C) != 0 {
		return fmt.Errorf("challenge mismatch")
	}
	return nil
}

// slotShares returns C2 - m·G for m = 0 and m = weight.
func slotShares(ct *Ciphertext, weight uint64) [2]*bjj.Point {
	return [2]*bjj.Point{ct.C2.Clone(), shareOf(ct, new(big.Int).SetUint64(weight))}
}

// shareOf returns C2 - m·G, which equals k·P when ct encrypts m.
func shareOf(ct *Ciphertext, m *big.Int) *bjj.Point {
	mg := bjj.New().ScalarBaseMult(m)
	return bjj.New().Add(ct.C2, bjj.New().Neg(mg))
}

// linear returns z·base - c·p.
func linear(base *bjj.Point, z *big.Int, p *bjj.Point, c *big.Int) *bjj.Point {
	zb := bjj.New().ScalarMult(base, z)
	cp := bjj.New().ScalarMult(p, c)
	return zb.Add(zb, cp.Neg(cp))
}

func inRange(s *big.Int) bool {
	return s != nil && s.Sign() >= 0 && s.Cmp(bjj.Order()) < 0
}

func slotChallenge(pk *PublicKey, ct *Ciphertext, weight uint64, ctxField *big.Int, index int,
	a, b [2]*bjj.Point,
) (*big.Int, error) {
	return challenge([]*big.Int{slotDomain, ctxField, big.NewInt(int64(index)), new(big.Int).SetUint64(weight)},
		pk.point, ct.C1, ct.C2, a[0], b[0], a[1], b[1])
}

func sumChallenge(pk *PublicKey, sum *Ciphertext, weight uint64, ctxField *big.Int, a, b *bjj.Point) (*big.Int, error) {
	return challenge([]*big.Int{sumDomain, ctxField, new(big.Int).SetUint64(weight)},
		pk.point, sum.C1, sum.C2, a, b)
}

// challenge hashes the scalars and the coordinates of points into a scalar
// of the subgroup.
func challenge(scalars []*big.Int, points ...*bjj.Point) (*big.Int, error) {
	inputs := append([]*big.Int(nil), scalars...)
	for _, p := range points {
		x, y := p.Coordinates()
		inputs = append(inputs, x, y)
	}
	digest, err := poseidon.SpongeHash(inputs)
	if err != nil {
		return nil, fmt.Errorf("hash challenge: %w", err)
	}
	return digest.Mod(digest, bjj.Order()), nil
}

func contextField(context []byte) (*big.Int, error) {
	if len(context) == 0 {
		return new(big.Int), nil
	}
	h, err := poseidon.HashBytes(context)
	if err != nil {
		return nil, fmt.Errorf("hash proof context: %w", err)
	}
	return h, nil
}

// Marshal serializes the proof as the four scalars of every slot (C0, C1,
// Z0, Z1) followed by the two of the sum proof, each 32 bytes big endian.
func (p *BallotProof) Marshal() []byte {
	out := make([]byte, 0, len(p.Slots)*slotProofSize+sumProofSize)
	for _, s := range p.Slots {
		out = appendScalars(out, s.C[0], s.C[1], s.Z[0], s.Z[1])
	}
	return appendScalars(out, p.Sum.C, p.Sum.Z)
}

// UnmarshalBallotProof decodes a proof produced by Marshal.
func UnmarshalBallotProof(data []byte) (*BallotProof, error) {
	if len(data) < slotProofSize+sumProofSize || (len(data)-sumProofSize)%slotProofSize != 0 {
		return nil, fmt.Errorf("%w: invalid length %d", ErrInvalidBallotProof, len(data))
	}
	scalars := make([]*big.Int, len(data)/ScalarSize)
	for i := range scalars {
		scalars[i] = new(big.Int).SetBytes(data[i*ScalarSize : (i+1)*ScalarSize])
		if !inRange(scalars[i]) {
			return nil, fmt.Errorf("%w: scalar %d out of range", ErrInvalidBallotProof, i)
		}
	}
	n := (len(data) - sumProofSize) / slotProofSize
	p := &BallotProof{Slots: make([]SlotProof, n)}
	for i := range p.Slots {
		s := scalars[4*i : 4*i+4]
		p.Slots[i] = SlotProof{C: [2]*big.Int{s[0], s[1]}, Z: [2]*big.Int{s[2], s[3]}}
	}
	p.Sum = SumProof{C: scalars[4*n], Z: scalars[4*n+1]}
	return p, nil
}

func appendScalars(out []byte, scalars ...*big.Int) []byte {
	for _, s := range scalars {
		out = append(out, s.FillBytes(make([]byte, ScalarSize))...)
	}
	return out
}

// BallotVerifier checks encrypted ballots and their validity proofs for one
// encryption key and vote weight.
type BallotVerifier struct {
	pk     *PublicKey
	weight uint64
}

// NewBallotVerifier returns a verifier of ballots of the given weight
// encrypted to pk.
func NewBallotVerifier(pk *PublicKey, weight uint64) (*BallotVerifier, error) {
	if pk == nil {
		return nil, fmt.Errorf("ballot verifier: missing public key")
	}
	if weight == 0 {
		return nil, fmt.Errorf("ballot verifier: zero weight")
	}
	return &BallotVerifier{pk: pk, weight: weight}, nil
}

// Weight returns the vote weight a ballot must carry.
func (v *BallotVerifier) Weight() uint64 {
	return v.weight
}

// VerifyBallot decodes the serialized ballot and proof and checks them
// against context. Undecodable ciphertexts are reported with their option,
// proof failures wrap ErrInvalidBallotProof.
func (v *BallotVerifier) VerifyBallot(votes [][]byte, proof, context []byte) error {
	b, err := UnmarshalBallot(votes)
	if err != nil {
		return err
	}
	p, err := UnmarshalBallotProof(proof)
	if err != nil {
		return err
	}
	return VerifyBallot(v.pk, b, v.weight, p, context)
}
