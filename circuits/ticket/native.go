package ticket

import (
	"math/big"

	"github.com/consensys/gnark-crypto/ecc/bn254/fr/mimc"
	"github.com/vocdoni/ticketvote/types"
)

// Hash computes natively the same MiMC hash the circuit uses.
func Hash(inputs ...*big.Int) *big.Int {
	h := mimc.NewMiMC()
	for _, in := range inputs {
		// inputs are reduced so that each block is a canonical field element
		_, _ = h.Write(types.ToField(in).FillBytes(make([]byte, 32)))
	}
	return new(big.Int).SetBytes(h.Sum(nil))
}

// IdentityCommitment returns H(nullifier, trapdoor).
func IdentityCommitment(nullifier, trapdoor *big.Int) *big.Int {
	return Hash(nullifier, trapdoor)
}

// TicketMessage returns the message signed by the issuer.
func TicketMessage(ticketID, eventID, productID, email, commitment *big.Int) *big.Int {
	return Hash(ticketID, eventID, productID, email, commitment)
}

// NullifierHash returns H(identityNullifier, externalNullifier).
func NullifierHash(identityNullifier, externalNullifier *big.Int) *big.Int {
	return Hash(identityNullifier, externalNullifier)
}
