package ticket

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"sync"

	"github.com/consensys/gnark-crypto/ecc"
	"github.com/consensys/gnark/backend/groth16"
	"github.com/consensys/gnark/constraint"
	"github.com/consensys/gnark/frontend"
	"github.com/consensys/gnark/frontend/cs/r1cs"
	circuit "github.com/vocdoni/ticketvote/circuits/ticket"
	"github.com/vocdoni/ticketvote/log"
)

const (
	// ProvingKeyFile is the file name of the proving key inside an artifacts
	// directory.
	ProvingKeyFile = "ticket.pk"
	// VerifyingKeyFile is the file name of the verifying key.
	VerifyingKeyFile = "ticket.vk"
)

var (
	ccsOnce sync.Once
	ccs     constraint.ConstraintSystem
	ccsErr  error
)

// Compile compiles the ticket circuit once per process.
func Compile() (constraint.ConstraintSystem, error) {
	ccsOnce.Do(func() {
		ccs, ccsErr = frontend.Compile(ecc.BN254.ScalarField(), r1cs.NewBuilder, &circuit.Circuit{})
		if ccsErr == nil {
			log.Debugw("ticket circuit compiled", "constraints", ccs.GetNbConstraints())
		}
	})
	return ccs, ccsErr
}

// Artifacts holds the groth16 keys of the ticket circuit.
type Artifacts struct {
	ProvingKey   groth16.ProvingKey
	VerifyingKey groth16.VerifyingKey
}

// Setup runs a (single party, insecure for production) groth16 setup.
func Setup() (*Artifacts, error) {
	cs, err := Compile()
	if err != nil {
		return nil, fmt.Errorf("compile ticket circuit: %w", err)
	}
	pk, vk, err := groth16.Setup(cs)
	if err != nil {
		return nil, fmt.Errorf("groth16 setup: %w", err)
	}
	return &Artifacts{ProvingKey: pk, VerifyingKey: vk}, nil
}

// Save writes the keys into dir.
func (a *Artifacts) Save(dir string) error {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return err
	}
	var pkBuf bytes.Buffer
	if _, err := a.ProvingKey.WriteTo(&pkBuf); err != nil {
		return fmt.Errorf("encode proving key: %w", err)
	}
	if err := os.WriteFile(filepath.Join(dir, ProvingKeyFile), pkBuf.Bytes(), 0o644); err != nil {
		return err
	}
	vk, err := MarshalVerifyingKey(a.VerifyingKey)
	if err != nil {
		return err
	}
	return os.WriteFile(filepath.Join(dir, VerifyingKeyFile), vk, 0o644)
}

// LoadArtifacts reads the keys written by Save.
func LoadArtifacts(dir string) (*Artifacts, error) {
	pkData, err := os.ReadFile(filepath.Join(dir, ProvingKeyFile))
	if err != nil {
		return nil, err
	}
	pk := groth16.NewProvingKey(ecc.BN254)
	if _, err := pk.ReadFrom(bytes.NewReader(pkData)); err != nil {
		return nil, fmt.Errorf("decode proving key: %w", err)
	}
	vkData, err := os.ReadFile(filepath.Join(dir, VerifyingKeyFile))
	if err != nil {
		return nil, err
	}
	vk, err := UnmarshalVerifyingKey(vkData)
	if err != nil {
		return nil, err
	}
	return &Artifacts{ProvingKey: pk, VerifyingKey: vk}, nil
}

// MarshalVerifyingKey encodes vk, the parameters clients and nodes share.
func MarshalVerifyingKey(vk groth16.VerifyingKey) ([]byte, error) {
	var buf bytes.Buffer
	if _, err := vk.WriteTo(&buf); err != nil {
		return nil, fmt.Errorf("encode verifying key: %w", err)
	}
	return buf.Bytes(), nil
}

// UnmarshalVerifyingKey decodes a verifying key produced by
// MarshalVerifyingKey.
func UnmarshalVerifyingKey(data []byte) (groth16.VerifyingKey, error) {
	vk := groth16.NewVerifyingKey(ecc.BN254)
	if _, err := vk.ReadFrom(bytes.NewReader(data)); err != nil {
		return nil, fmt.Errorf("decode verifying key: %w", err)
	}
	return vk, nil
}
