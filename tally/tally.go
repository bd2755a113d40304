// Package tally accumulates encrypted ballots into per-option encrypted
// tallies. Ciphertexts are opaque: the aggregator only combines them through
// a HomomorphicCombiner and never decrypts or logs their contents.
package tally

import (
	"errors"
	"fmt"
	"sync"

	"github.com/vocdoni/ticketvote/admission"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/types"
)

var (
	ErrInvalidTicket = admission.ErrInvalidTicket
	// ErrShapeMismatch is returned when a ballot does not carry one
	// ciphertext per option.
	ErrShapeMismatch = errors.New("ballot shape mismatch")
	// ErrAggregationFailure is a server side failure while combining or
	// persisting ciphertexts. The tallies are left unchanged.
	ErrAggregationFailure = errors.New("aggregation failure")
)

// HomomorphicCombiner adds serialized ciphertexts.
type HomomorphicCombiner interface {
	// Zero returns the ciphertext of zero, neutral for Combine.
	Zero() []byte
	// Validate checks that ct is a well formed ciphertext.
	Validate(ct []byte) error
	// Combine returns a ciphertext of the sum of the plaintexts of a and b.
	Combine(a, b []byte) ([]byte, error)
}

// Store persists the tallies.
type Store interface {
	Tallies() ([][]byte, error)
	// CommitTallies atomically replaces the tallies and stores the
	// nullifier of the accumulated ballot as counted.
	CommitTallies(nullifier []byte, tallies [][]byte) error
}

// TicketRedeemer consumes admission tickets.
type TicketRedeemer interface {
	Redeem(t *admission.Ticket) (types.HexBytes, error)
}

// Aggregator holds the running tallies. Accumulate calls are serialized.
type Aggregator struct {
	mu       sync.Mutex
	combiner HomomorphicCombiner
	store    Store
	redeemer TicketRedeemer
	tallies  [][]byte
}

// New loads the tallies from store and returns an Aggregator that only
// accepts tickets redeemable by redeemer.
func New(combiner HomomorphicCombiner, store Store, redeemer TicketRedeemer) (*Aggregator, error) {
	if combiner == nil || store == nil || redeemer == nil {
		return nil, fmt.Errorf("tally: combiner, store and redeemer are required")
	}
	tallies, err := store.Tallies()
	if err != nil {
		return nil, fmt.Errorf("load tallies: %w", err)
	}
	for i, ct := range tallies {
		if err := combiner.Validate(ct); err != nil {
			return nil, fmt.Errorf("stored tally %d: %w", i, err)
		}
	}
	return &Aggregator{
		combiner: combiner,
		store:    store,
		redeemer: redeemer,
		tallies:  tallies,
	}, nil
}

// ZeroTallies returns the initial tallies for the given number of options.
func ZeroTallies(combiner HomomorphicCombiner, options int) [][]byte {
	out := make([][]byte, options)
	for i := range out {
		out[i] = combiner.Zero()
	}
	return out
}

// Options returns the number of tally slots.
func (a *Aggregator) Options() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return len(a.tallies)
}

// Accumulate adds ballot to the tallies, consuming ticket. The shape is
// checked before the ticket is redeemed, so a ShapeMismatch leaves the
// ticket usable. Any failure leaves the tallies unchanged.
func (a *Aggregator) Accumulate(ticket *admission.Ticket, ballot [][]byte) error {
	a.mu.Lock()
	defer a.mu.Unlock()

	if len(ballot) != len(a.tallies) {
		return fmt.Errorf("%w: got %d ciphertexts, want %d", ErrShapeMismatch, len(ballot), len(a.tallies))
	}
	nullifier, err := a.redeemer.Redeem(ticket)
	if err != nil {
		return err
	}

	next := make([][]byte, len(a.tallies))
	size := 0
	for i := range a.tallies {
		ct, err := a.combiner.Combine(a.tallies[i], ballot[i])
		if err != nil {
			log.Warnw("ciphertext combination failed",
				"nullifier", nullifier.Hex(),
				"slot", i,
				"bytes", len(ballot[i]),
				"error", err)
			return fmt.Errorf("%w: slot %d", ErrAggregationFailure, i)
		}
		next[i] = ct
		size += len(ballot[i])
	}
	if err := a.store.CommitTallies(nullifier, next); err != nil {
		return fmt.Errorf("%w: %w", ErrAggregationFailure, err)
	}
	a.tallies = next
	log.Debugw("ballot accumulated",
		"nullifier", nullifier.Hex(),
		"ticket", ticket.ID().String(),
		"slots", len(next),
		"bytes", size)
	return nil
}

// Snapshot returns a copy of the current tallies.
func (a *Aggregator) Snapshot() [][]byte {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([][]byte, len(a.tallies))
	for i, ct := range a.tallies {
		out[i] = append([]byte(nil), ct...)
	}
	return out
}
