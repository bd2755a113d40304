// Package admission decides whether an anonymous credential may cast a
// ballot. A request is admitted when its proof verifies, its issuer is
// trusted, it is bound to the caller's watermark and to the current event,
// and its nullifier was never seen before. Recording the nullifier is the
// last step and the only side effect.
package admission

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"runtime"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/log"
	"golang.org/x/sync/semaphore"
)

// DefaultTicketTTL is used when Config.TicketTTL is zero.
const DefaultTicketTTL = time.Minute

// NullifierRegistry stores consumed nullifiers. Record must be an atomic
// check-and-insert returning ErrAlreadyUsed when the nullifier exists.
// Release gives back a nullifier recorded for a ballot that was not counted.
type NullifierRegistry interface {
	Has(nullifier []byte) (bool, error)
	Record(nullifier []byte) error
	Release(nullifier []byte)
}

// IssuerSet tells whether a credential signer is trusted.
type IssuerSet interface {
	IsTrusted(signer credential.Signer) bool
}

// Config holds the dependencies of a Controller.
type Config struct {
	Verifier credential.ProofVerifier
	Issuers  IssuerSet
	Registry NullifierRegistry
	// ExternalNullifier is the scope every credential must be bound to. It
	// is part of the nullifier derivation, so accepting other values would
	// let a ticket produce several nullifiers.
	ExternalNullifier *big.Int
	// Workers bounds the number of concurrent proof verifications. Defaults
	// to GOMAXPROCS.
	Workers   int
	TicketTTL time.Duration
}

// Controller runs the admission sequence. It is safe for concurrent use.
type Controller struct {
	verifier          credential.ProofVerifier
	issuers           IssuerSet
	registry          NullifierRegistry
	externalNullifier *big.Int
	ttl               time.Duration
	workers           *semaphore.Weighted
	now               func() time.Time

	admitted atomic.Uint64
	rejected atomic.Uint64
}

// New creates a Controller.
func New(cfg Config) (*Controller, error) {
	if cfg.Verifier == nil || cfg.Issuers == nil || cfg.Registry == nil {
		return nil, fmt.Errorf("admission: verifier, issuers and registry are required")
	}
	if cfg.ExternalNullifier == nil {
		return nil, fmt.Errorf("admission: external nullifier is required")
	}
	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}
	ttl := cfg.TicketTTL
	if ttl <= 0 {
		ttl = DefaultTicketTTL
	}
	return &Controller{
		verifier:          cfg.Verifier,
		issuers:           cfg.Issuers,
		registry:          cfg.Registry,
		externalNullifier: new(big.Int).Set(cfg.ExternalNullifier),
		ttl:               ttl,
		workers:           semaphore.NewWeighted(int64(workers)),
		now:               time.Now,
	}, nil
}

// Admit runs the full admission sequence and, on success, consumes the
// nullifier of the credential and returns a single use Ticket.
func (c *Controller) Admit(ctx context.Context, raw []byte, watermark *big.Int, eventID uuid.UUID) (*Ticket, error) {
	claim, err := c.check(ctx, raw, watermark, eventID)
	if err != nil {
		return nil, c.reject(claim, err)
	}
	if err := c.registry.Record(claim.NullifierHash); err != nil {
		if errors.Is(err, ErrAlreadyUsed) {
			return nil, c.reject(claim, ErrAlreadyUsed)
		}
		return nil, fmt.Errorf("record nullifier: %w", err)
	}
	now := c.now()
	t := &Ticket{
		id:        uuid.New(),
		nullifier: claim.NullifierHash,
		issuedAt:  now,
		expiresAt: now.Add(c.ttl),
		issuer:    c,
	}
	c.admitted.Add(1)
	log.Debugw("credential admitted",
		"nullifier", claim.NullifierHash.Hex(),
		"ticket", t.id.String())
	return t, nil
}

// Check runs the admission sequence without consuming the nullifier. A
// nullifier already in the registry is reported as ErrAlreadyUsed.
func (c *Controller) Check(ctx context.Context, raw []byte, watermark *big.Int, eventID uuid.UUID) (*credential.VerifiedClaim, error) {
	claim, err := c.check(ctx, raw, watermark, eventID)
	if err != nil {
		return nil, err
	}
	used, err := c.registry.Has(claim.NullifierHash)
	if err != nil {
		return nil, fmt.Errorf("lookup nullifier: %w", err)
	}
	if used {
		return nil, ErrAlreadyUsed
	}
	return claim, nil
}

// Stats returns the number of admitted and rejected requests since start.
func (c *Controller) Stats() (admitted, rejected uint64) {
	return c.admitted.Load(), c.rejected.Load()
}

// check runs the side effect free steps: proof, issuer, watermark and
// context. On a context failure the verified claim is returned along with
// the error so the rejection can be logged.
func (c *Controller) check(ctx context.Context, raw []byte, watermark *big.Int, eventID uuid.UUID) (*credential.VerifiedClaim, error) {
	claim, err := c.verify(ctx, raw)
	if err != nil {
		return nil, err
	}
	if !c.issuers.IsTrusted(claim.Signer) {
		return claim, ErrUntrustedIssuer
	}
	if watermark == nil || claim.Watermark == nil || claim.Watermark.Cmp(watermark) != 0 {
		return claim, ErrWatermarkMismatch
	}
	if claim.Claims.EventID != eventID {
		return claim, fmt.Errorf("%w: event %s", ErrWrongEvent, claim.Claims.EventID)
	}
	if claim.ExternalNullifier == nil || claim.ExternalNullifier.Cmp(c.externalNullifier) != 0 {
		return claim, fmt.Errorf("%w: unexpected external nullifier", ErrWrongEvent)
	}
	if len(claim.NullifierHash) == 0 {
		return claim, fmt.Errorf("%w: empty nullifier", ErrInvalidProof)
	}
	return claim, nil
}

// verify runs the proof verifier on the worker pool. Errors that are not
// classified by the verifier are treated as invalid proofs, except for
// context errors which are returned as is.
func (c *Controller) verify(ctx context.Context, raw []byte) (*credential.VerifiedClaim, error) {
	if err := c.workers.Acquire(ctx, 1); err != nil {
		return nil, err
	}
	defer c.workers.Release(1)

	claim, err := c.verifier.Verify(ctx, raw)
	switch {
	case err == nil:
	case errors.Is(err, ErrMalformedProof), errors.Is(err, ErrInvalidProof):
		return nil, err
	case ctx.Err() != nil:
		return nil, ctx.Err()
	default:
		return nil, fmt.Errorf("%w: %v", ErrInvalidProof, err)
	}
	if claim == nil {
		return nil, ErrInvalidProof
	}
	return claim, nil
}

func (c *Controller) reject(claim *credential.VerifiedClaim, err error) error {
	if !IsRejection(err) {
		return err
	}
	c.rejected.Add(1)
	if claim != nil {
		log.Debugw("credential rejected", "nullifier", claim.NullifierHash.Hex(), "reason", Reason(err))
	} else {
		log.Debugw("credential rejected", "reason", Reason(err))
	}
	return err
}
