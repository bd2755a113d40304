package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/ticketvote/admission"
	"github.com/vocdoni/ticketvote/ballotbox"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/crypto/elgamal"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/storage"
	"github.com/vocdoni/ticketvote/tally"
	"github.com/vocdoni/ticketvote/types"
)

const defaultMonitorInterval = time.Minute

// BallotConfig holds what a BallotService needs to serve an epoch.
type BallotConfig struct {
	Database db.Database
	// Epoch describes the voting round. Open, Ballots and the timestamps are
	// managed by the storage.
	Epoch           *types.Epoch
	Verifier        credential.ProofVerifier
	Issuers         *credential.TrustedIssuers
	Workers         int
	TicketTTL       time.Duration
	MonitorInterval time.Duration
}

// BallotService owns the storage and the vote flow of the epoch.
type BallotService struct {
	conf BallotConfig

	Storage   *storage.Storage
	BallotBox *ballotbox.BallotBox

	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewBallotService creates a BallotService. Nothing is opened until Start.
func NewBallotService(conf BallotConfig) *BallotService {
	return &BallotService{conf: conf}
}

// Start initializes (or resumes) the epoch and wires the ballot box.
func (bs *BallotService) Start(ctx context.Context) error {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.cancel != nil {
		return fmt.Errorf("service already running")
	}
	c := bs.conf
	if c.Database == nil || c.Epoch == nil {
		return fmt.Errorf("database and epoch are required")
	}
	if c.Epoch.Options <= 0 {
		return fmt.Errorf("epoch needs at least one option")
	}
	if c.Epoch.ExternalNullifier == nil {
		return fmt.Errorf("epoch external nullifier is required")
	}
	pk, err := elgamal.UnmarshalPublicKey(c.Epoch.EncryptionKey)
	if err != nil {
		return fmt.Errorf("epoch encryption key: %w", err)
	}

	stg := storage.New(c.Database)
	combiner := elgamal.Combiner{}
	epoch, err := stg.InitEpoch(c.Epoch, tally.ZeroTallies(combiner, c.Epoch.Options))
	if err != nil {
		return err
	}
	controller, err := admission.New(admission.Config{
		Verifier:          c.Verifier,
		Issuers:           c.Issuers,
		Registry:          stg,
		ExternalNullifier: epoch.ExternalNullifier.MathBigInt(),
		Workers:           c.Workers,
		TicketTTL:         c.TicketTTL,
	})
	if err != nil {
		return err
	}
	aggregator, err := tally.New(combiner, stg, controller)
	if err != nil {
		return err
	}
	ballots, err := elgamal.NewBallotVerifier(pk, epoch.VoteWeight())
	if err != nil {
		return err
	}
	box, err := ballotbox.New(stg, controller, aggregator, combiner, ballots)
	if err != nil {
		return err
	}

	interval := c.MonitorInterval
	if interval <= 0 {
		interval = defaultMonitorInterval
	}
	ctx, bs.cancel = context.WithCancel(ctx)
	stg.StartMonitor(ctx, interval)

	bs.Storage = stg
	bs.BallotBox = box
	log.Infow("ballot box ready",
		"eventId", epoch.EventID.String(),
		"options", epoch.Options,
		"open", epoch.Open,
		"ballots", epoch.Ballots,
		"issuers", c.Issuers.Len())
	return nil
}

// Stop stops the monitor and closes the storage.
func (bs *BallotService) Stop() {
	bs.mu.Lock()
	defer bs.mu.Unlock()
	if bs.cancel == nil {
		return
	}
	bs.cancel()
	bs.cancel = nil
	bs.Storage.Close()
}
