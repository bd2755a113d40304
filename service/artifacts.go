package service

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/consensys/gnark/backend/groth16"
	"github.com/vocdoni/ticketvote/credential/ticket"
	"github.com/vocdoni/ticketvote/crypto/elgamal"
	"github.com/vocdoni/ticketvote/log"
	"golang.org/x/sync/errgroup"
)

// Artifacts are the public parameters a node needs to serve an epoch.
type Artifacts struct {
	PublicKey       *elgamal.PublicKey
	VerifyingKey    groth16.VerifyingKey
	RawVerifyingKey []byte
}

// LoadArtifacts reads the ElGamal public key and the circuit verifying key
// concurrently. The circuit is compiled meanwhile so the first proof
// verification does not pay for it.
func LoadArtifacts(timeout time.Duration, publicKeyPath, verifyingKeyPath string) (*Artifacts, error) {
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	g, ctx := errgroup.WithContext(ctx)
	a := &Artifacts{}
	g.Go(func() error {
		data, err := readFile(ctx, publicKeyPath)
		if err != nil {
			return fmt.Errorf("public key: %w", err)
		}
		a.PublicKey, err = elgamal.UnmarshalPublicKey(data)
		return err
	})
	g.Go(func() error {
		data, err := readFile(ctx, verifyingKeyPath)
		if err != nil {
			return fmt.Errorf("verifying key: %w", err)
		}
		a.RawVerifyingKey = data
		a.VerifyingKey, err = ticket.UnmarshalVerifyingKey(data)
		return err
	})
	g.Go(func() error {
		_, err := ticket.Compile()
		return err
	})
	log.Infow("loading node artifacts", "publicKey", publicKeyPath, "verifyingKey", verifyingKeyPath)
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return a, nil
}

func readFile(ctx context.Context, path string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	return os.ReadFile(path)
}
