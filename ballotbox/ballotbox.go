// Package ballotbox runs the vote flow of an epoch: a ballot is checked for
// shape and validity, its credential is admitted, and it is accumulated into
// the encrypted tallies.
package ballotbox

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/admission"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/storage"
	"github.com/vocdoni/ticketvote/tally"
	"github.com/vocdoni/ticketvote/types"
)

var (
	// ErrVotingClosed is returned once the epoch has been closed.
	ErrVotingClosed = errors.New("voting is closed")
	// ErrMalformedBallot is returned when a ciphertext of the ballot does
	// not decode or the ballot does not match its validity proof.
	ErrMalformedBallot = errors.New("malformed ballot")
	// ErrMalformedRequest is returned for requests missing the credential
	// or carrying an unparsable address.
	ErrMalformedRequest = errors.New("malformed request")
)

// VerifyRequest asks whether a credential would be admitted.
type VerifyRequest struct {
	// PCD is the serialized credential proof.
	PCD []byte
	// Address is the wallet address the credential must be watermarked
	// with.
	Address string
}

// VoteRequest casts an encrypted ballot.
type VoteRequest struct {
	VerifyRequest
	// Votes holds one serialized ciphertext per option.
	Votes [][]byte
	// Proof shows that Votes encrypt a single choice of the epoch weight.
	Proof []byte
}

// BallotVerifier checks that an encrypted ballot is valid for the request
// carrying it, identified by context.
type BallotVerifier interface {
	VerifyBallot(votes [][]byte, proof, context []byte) error
	// Weight is the plaintext a valid ballot adds to its option.
	Weight() uint64
}

// Receipt is returned for every counted ballot.
type Receipt struct {
	Nullifier types.HexBytes `json:"nullifier"`
	Ticket    uuid.UUID      `json:"ticket"`
	CountedAt time.Time      `json:"countedAt"`
}

// CloseHook runs after the epoch is closed, with the final tallies.
type CloseHook func(ctx context.Context, epoch *types.Epoch, tallies [][]byte) error

// BallotBox serves a single epoch.
type BallotBox struct {
	storage    *storage.Storage
	controller *admission.Controller
	aggregator *tally.Aggregator
	combiner   tally.HomomorphicCombiner
	ballots    BallotVerifier

	eventID uuid.UUID
	options int
	weight  uint64
	closed  atomic.Bool

	mu      sync.Mutex
	onClose []CloseHook
}

// New wires a BallotBox over an already initialized epoch.
func New(stg *storage.Storage, controller *admission.Controller, aggregator *tally.Aggregator,
	combiner tally.HomomorphicCombiner, ballots BallotVerifier,
) (*BallotBox, error) {
	if ballots == nil {
		return nil, fmt.Errorf("missing ballot verifier")
	}
	epoch, err := stg.Epoch()
	if err != nil {
		return nil, err
	}
	if aggregator.Options() != epoch.Options {
		return nil, fmt.Errorf("aggregator has %d slots for %d options", aggregator.Options(), epoch.Options)
	}
	if ballots.Weight() != epoch.VoteWeight() {
		return nil, fmt.Errorf("ballot verifier weight %d, epoch weight %d", ballots.Weight(), epoch.VoteWeight())
	}
	b := &BallotBox{
		storage:    stg,
		controller: controller,
		aggregator: aggregator,
		combiner:   combiner,
		ballots:    ballots,
		eventID:    epoch.EventID,
		options:    epoch.Options,
		weight:     epoch.VoteWeight(),
	}
	b.closed.Store(!epoch.Open)
	return b, nil
}

// OnClose registers hooks run by Close.
func (b *BallotBox) OnClose(hooks ...CloseHook) {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.onClose = append(b.onClose, hooks...)
}

// Epoch returns the stored epoch, with the up to date ballot count.
func (b *BallotBox) Epoch() (*types.Epoch, error) {
	return b.storage.Epoch()
}

// EventID returns the event served by the ballot box.
func (b *BallotBox) EventID() uuid.UUID {
	return b.eventID
}

// Options returns the number of options of a ballot.
func (b *BallotBox) Options() int {
	return b.options
}

// Weight returns the plaintext a ballot adds to its option.
func (b *BallotBox) Weight() uint64 {
	return b.weight
}

// IsOpen reports whether ballots are accepted.
func (b *BallotBox) IsOpen() bool {
	return !b.closed.Load()
}

// Tallies returns a copy of the current encrypted tallies.
func (b *BallotBox) Tallies() [][]byte {
	return b.aggregator.Snapshot()
}

// Verify runs the admission checks without consuming the credential.
func (b *BallotBox) Verify(ctx context.Context, req *VerifyRequest) (*credential.VerifiedClaim, error) {
	watermark, err := parseRequest(req)
	if err != nil {
		return nil, err
	}
	return b.controller.Check(ctx, req.PCD, watermark, b.eventID)
}

// Cast admits the credential of req and accumulates its ballot. A ballot
// that is not counted gives its credential back, it can vote again.
func (b *BallotBox) Cast(ctx context.Context, req *VoteRequest) (*Receipt, error) {
	if b.closed.Load() {
		return nil, ErrVotingClosed
	}
	watermark, err := parseRequest(&req.VerifyRequest)
	if err != nil {
		return nil, err
	}
	if err := b.checkBallot(req, watermark); err != nil {
		return nil, err
	}

	ticket, err := b.controller.Admit(ctx, req.PCD, watermark, b.eventID)
	if errors.Is(err, storage.ErrEpochClosed) {
		return nil, ErrVotingClosed
	}
	if err != nil {
		return nil, err
	}
	log.Debugw("vote state", "nullifier", ticket.Nullifier().Hex(), "state", "admitted")

	if err := b.aggregator.Accumulate(ticket, req.Votes); err != nil {
		if rerr := b.controller.Release(ticket); rerr != nil {
			log.Warnw("could not release admission", "nullifier", ticket.Nullifier().Hex(), "error", rerr)
		}
		if errors.Is(err, storage.ErrEpochClosed) {
			log.Debugw("vote state", "nullifier", ticket.Nullifier().Hex(), "state", "released", "reason", "epoch closed")
			return nil, ErrVotingClosed
		}
		log.Warnw("admitted ballot not counted, admission released",
			"nullifier", ticket.Nullifier().Hex(),
			"error", err)
		return nil, err
	}
	log.Debugw("vote state", "nullifier", ticket.Nullifier().Hex(), "state", "accumulated")
	return &Receipt{
		Nullifier: ticket.Nullifier(),
		Ticket:    ticket.ID(),
		CountedAt: time.Now().UTC(),
	}, nil
}

// Close stops accepting ballots and runs the close hooks with the final
// tallies. Hook failures are logged and returned, the epoch stays closed.
func (b *BallotBox) Close(ctx context.Context) (*types.Epoch, error) {
	epoch, err := b.storage.CloseEpoch()
	if err != nil {
		return nil, err
	}
	b.closed.Store(true)
	b.mu.Lock()
	hooks := append([]CloseHook(nil), b.onClose...)
	b.mu.Unlock()

	tallies, err := b.storage.Tallies()
	if err != nil {
		return epoch, err
	}
	var errs []error
	for _, hook := range hooks {
		if err := hook(ctx, epoch, tallies); err != nil {
			log.Errorw(err, "epoch close hook failed")
			errs = append(errs, err)
		}
	}
	return epoch, errors.Join(errs...)
}

// Stats returns the admission counters since start.
func (b *BallotBox) Stats() (admitted, rejected uint64) {
	return b.controller.Stats()
}

// checkBallot validates the ballot before the credential is admitted so a
// bad ballot never consumes a nullifier.
func (b *BallotBox) checkBallot(req *VoteRequest, watermark *big.Int) error {
	if len(req.Votes) != b.options {
		return fmt.Errorf("%w: got %d ciphertexts, want %d", tally.ErrShapeMismatch, len(req.Votes), b.options)
	}
	for i, ct := range req.Votes {
		if err := b.combiner.Validate(ct); err != nil {
			return fmt.Errorf("%w: ciphertext %d: %v", ErrMalformedBallot, i, err)
		}
	}
	if err := b.ballots.VerifyBallot(req.Votes, req.Proof, types.BallotContext(b.eventID, watermark)); err != nil {
		return fmt.Errorf("%w: %v", ErrMalformedBallot, err)
	}
	return nil
}

func parseRequest(req *VerifyRequest) (*big.Int, error) {
	if req == nil || len(req.PCD) == 0 {
		return nil, fmt.Errorf("%w: missing pcd", ErrMalformedRequest)
	}
	watermark, err := types.ParseWatermark(req.Address)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrMalformedRequest, err)
	}
	return watermark, nil
}
