package admission

import (
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/types"
)

// Ticket is the proof that a request passed admission. It authorizes exactly
// one accumulation and is only redeemable by the controller that issued it,
// before it expires.
type Ticket struct {
	id        uuid.UUID
	nullifier types.HexBytes
	issuedAt  time.Time
	expiresAt time.Time
	issuer    *Controller
	consumed  atomic.Bool
	released  atomic.Bool
}

// ID returns the ticket identifier, useful to correlate logs.
func (t *Ticket) ID() uuid.UUID {
	return t.id
}

// Nullifier returns a copy of the nullifier consumed by the admission.
func (t *Ticket) Nullifier() types.HexBytes {
	return append(types.HexBytes(nil), t.nullifier...)
}

// ExpiresAt returns the instant after which the ticket cannot be redeemed.
func (t *Ticket) ExpiresAt() time.Time {
	return t.expiresAt
}

// Redeem consumes t and returns its nullifier. It fails with
// ErrInvalidTicket if t was not issued by c, has expired or was already
// redeemed.
func (c *Controller) Redeem(t *Ticket) (types.HexBytes, error) {
	if t == nil || t.issuer != c {
		return nil, ErrInvalidTicket
	}
	if c.now().After(t.expiresAt) {
		return nil, ErrInvalidTicket
	}
	if !t.consumed.CompareAndSwap(false, true) {
		return nil, ErrInvalidTicket
	}
	return t.Nullifier(), nil
}

// Release gives back the nullifier of t to the registry after its ballot
// failed to be counted, and makes t unusable. Only the first call has an
// effect, later ones cannot drop a reservation made by another request.
func (c *Controller) Release(t *Ticket) error {
	if t == nil || t.issuer != c {
		return ErrInvalidTicket
	}
	t.consumed.Store(true)
	if !t.released.CompareAndSwap(false, true) {
		return nil
	}
	c.registry.Release(t.nullifier)
	log.Debugw("admission released", "nullifier", t.nullifier.Hex(), "ticket", t.id.String())
	return nil
}
