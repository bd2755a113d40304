package types

import (
	"time"

	"github.com/google/uuid"
)

// Epoch describes the voting round served by a node.
type Epoch struct {
	EventID           uuid.UUID `json:"eventId" cbor:"0,keyasint"`
	Options           int       `json:"options" cbor:"1,keyasint"`
	ExternalNullifier *BigInt   `json:"externalNullifier" cbor:"2,keyasint"`
	EncryptionKey     HexBytes  `json:"encryptionKey" cbor:"3,keyasint"`
	Open              bool      `json:"open" cbor:"4,keyasint"`
	Ballots           uint64    `json:"ballots" cbor:"5,keyasint"`
	CreatedAt         time.Time `json:"createdAt" cbor:"6,keyasint"`
	ClosedAt          time.Time `json:"closedAt,omitzero" cbor:"7,keyasint"`
	// Weight is the plaintext a ballot puts in the chosen option. Zero
	// means DefaultVoteWeight.
	Weight uint64 `json:"weight" cbor:"8,keyasint,omitempty"`
}

// DefaultVoteWeight is the weight of a ballot when none is configured.
const DefaultVoteWeight = 1

// VoteWeight returns the weight of a ballot in this epoch.
func (e *Epoch) VoteWeight() uint64 {
	if e.Weight == 0 {
		return DefaultVoteWeight
	}
	return e.Weight
}
