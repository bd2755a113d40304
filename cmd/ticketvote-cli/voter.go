package main

import (
	"encoding/json"
	"fmt"
	"math/big"
	"os"
	"sync/atomic"
	"time"

	"github.com/ethereum/go-ethereum/common"
	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/api"
	"github.com/vocdoni/ticketvote/api/client"
	"github.com/vocdoni/ticketvote/credential/ticket"
	"github.com/vocdoni/ticketvote/crypto/elgamal"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/types"
	"github.com/vocdoni/ticketvote/util"
	"golang.org/x/sync/errgroup"
)

// credentialFile is what `ticket` writes and `vote` reads: the serialized
// PCD and the wallet address it is bound to.
type credentialFile struct {
	PCD     api.PCD `json:"pcd"`
	Address string  `json:"address"`
}

// prover issues tickets and proves them for the epoch served by a node.
type prover struct {
	issuer            *ticket.Issuer
	artifacts         *ticket.Artifacts
	eventID           uuid.UUID
	externalNullifier *big.Int
}

func newProver(cli *client.HTTPclient, issuerPath, artifactsDir string) (*prover, error) {
	issuer, err := loadIssuer(issuerPath)
	if err != nil {
		return nil, fmt.Errorf("issuer key: %w", err)
	}
	artifacts, err := ticket.LoadArtifacts(artifactsDir)
	if err != nil {
		return nil, fmt.Errorf("circuit artifacts: %w", err)
	}
	info, err := cli.Info()
	if err != nil {
		return nil, err
	}
	return &prover{
		issuer:            issuer,
		artifacts:         artifacts,
		eventID:           info.EventID,
		externalNullifier: info.ExternalNullifier.MathBigInt(),
	}, nil
}

// credential issues a ticket to email and proves it bound to address.
func (p *prover) credential(email string, address common.Address) (*credentialFile, error) {
	id := ticket.NewIdentity()
	tk, err := p.issuer.Issue(p.eventID, uuid.New(), email, id.Commitment())
	if err != nil {
		return nil, err
	}
	pcd, err := ticket.Prove(p.artifacts.ProvingKey, &ticket.ProofRequest{
		Ticket:            tk,
		Identity:          id,
		ExternalNullifier: p.externalNullifier,
		Watermark:         types.AddressToField(address),
	})
	if err != nil {
		return nil, err
	}
	raw, err := pcd.Serialize()
	if err != nil {
		return nil, err
	}
	return &credentialFile{PCD: raw, Address: address.Hex()}, nil
}

func issueTicket(args []string) error {
	fs := newFlagSet("ticket")
	host := fs.StringP("url", "u", defaultNodeURL, "node URL, used to fetch the event id and external nullifier")
	issuerPath := fs.StringP("issuer", "i", issuerKeyFile, "issuer key file")
	artifactsDir := fs.StringP("artifacts", "a", "artifacts", "circuit artifacts directory")
	email := fs.String("email", "attendee@example.org", "attendee email")
	address := fs.String("address", "", "wallet address the credential is bound to (random if empty)")
	out := fs.StringP("out", "o", "credential.json", "output file")
	_ = fs.Parse(args)

	cli, err := client.New(*host)
	if err != nil {
		return err
	}
	p, err := newProver(cli, *issuerPath, *artifactsDir)
	if err != nil {
		return err
	}
	addr := randomAddress()
	if *address != "" {
		if !common.IsHexAddress(*address) {
			return fmt.Errorf("invalid address %q", *address)
		}
		addr = common.HexToAddress(*address)
	}
	cred, err := p.credential(*email, addr)
	if err != nil {
		return err
	}
	data, err := json.MarshalIndent(cred, "", "  ")
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, data, 0o600); err != nil {
		return err
	}
	log.Infow("credential created", "file", *out, "eventId", p.eventID.String(), "address", cred.Address)
	return nil
}

// ballotFile is what `encrypt` prints: the ciphertexts of a ballot and
// its validity proof.
type ballotFile struct {
	Votes []types.HexBytes `json:"votes"`
	Proof types.HexBytes   `json:"proof"`
}

// encryptChoice encrypts a vote for choice and proves it valid for the
// event and the wallet address the credential is bound to.
func encryptChoice(rawKey []byte, eventID uuid.UUID, address string, options int, weight uint64,
	choice int,
) ([][]byte, []byte, error) {
	pk, err := elgamal.UnmarshalPublicKey(rawKey)
	if err != nil {
		return nil, nil, err
	}
	watermark, err := types.ParseWatermark(address)
	if err != nil {
		return nil, nil, err
	}
	ballot, proof, err := elgamal.EncryptVote(pk, options, choice, weight, nil,
		types.BallotContext(eventID, watermark))
	if err != nil {
		return nil, nil, err
	}
	return ballot.Marshal(), proof.Marshal(), nil
}

func encrypt(args []string) error {
	fs := newFlagSet("encrypt")
	keyPath := fs.StringP("pubkey", "k", publicKeyFile, "ElGamal public key file")
	event := fs.StringP("event", "e", "", "event id the ballot is cast in")
	address := fs.String("address", "", "wallet address of the credential casting the ballot")
	options := fs.IntP("options", "n", 2, "number of options")
	weight := fs.Uint64P("weight", "w", types.DefaultVoteWeight, "vote weight of the epoch")
	choice := fs.IntP("choice", "c", 0, "chosen option, zero based")
	_ = fs.Parse(args)

	eventID, err := uuid.Parse(*event)
	if err != nil {
		return fmt.Errorf("invalid event id %q: %w", *event, err)
	}
	rawKey, err := os.ReadFile(*keyPath)
	if err != nil {
		return err
	}
	votes, proof, err := encryptChoice(rawKey, eventID, *address, *options, *weight, *choice)
	if err != nil {
		return err
	}
	out := &ballotFile{Proof: proof}
	for _, v := range votes {
		out.Votes = append(out.Votes, v)
	}
	return json.NewEncoder(os.Stdout).Encode(out)
}

func vote(args []string) error {
	fs := newFlagSet("vote")
	host := fs.StringP("url", "u", defaultNodeURL, "node URL")
	credPath := fs.StringP("credential", "f", "credential.json", "credential file created by the ticket command")
	choice := fs.IntP("choice", "c", 0, "chosen option, zero based")
	verifyOnly := fs.Bool("verify", false, "only check the credential, without voting")
	_ = fs.Parse(args)

	data, err := os.ReadFile(*credPath)
	if err != nil {
		return err
	}
	cred := &credentialFile{}
	if err := json.Unmarshal(data, cred); err != nil {
		return fmt.Errorf("decode credential: %w", err)
	}
	cli, err := client.New(*host)
	if err != nil {
		return err
	}
	if *verifyOnly {
		resp, err := cli.Verify(cred.PCD, cred.Address)
		if err != nil {
			return err
		}
		log.Infow(resp.Message, "nullifier", resp.Nullifier.String())
		return nil
	}
	params, err := ballotParams(cli)
	if err != nil {
		return err
	}
	votes, proof, err := params.encrypt(cred.Address, *choice)
	if err != nil {
		return err
	}
	resp, err := cli.Vote(cred.PCD, cred.Address, votes, proof)
	if err != nil {
		return err
	}
	log.Infow(resp.Message, "nullifier", resp.Nullifier.String())
	return nil
}

// nodeBallot holds what the node requires of a ballot.
type nodeBallot struct {
	*api.PublicParams
	eventID uuid.UUID
}

func ballotParams(cli *client.HTTPclient) (*nodeBallot, error) {
	info, err := cli.Info()
	if err != nil {
		return nil, err
	}
	params, err := cli.PublicParams()
	if err != nil {
		return nil, err
	}
	if params.BallotProof != api.BallotProofScheme {
		return nil, fmt.Errorf("unsupported ballot proof %q", params.BallotProof)
	}
	return &nodeBallot{PublicParams: params, eventID: info.EventID}, nil
}

func (b *nodeBallot) encrypt(address string, choice int) ([][]byte, []byte, error) {
	return encryptChoice(b.EncryptionKey, b.eventID, address, b.Options, b.Weight, choice)
}

func load(args []string) error {
	fs := newFlagSet("load")
	host := fs.StringP("url", "u", defaultNodeURL, "node URL")
	issuerPath := fs.StringP("issuer", "i", issuerKeyFile, "issuer key file")
	artifactsDir := fs.StringP("artifacts", "a", "artifacts", "circuit artifacts directory")
	voters := fs.IntP("voters", "v", 10, "number of voters")
	concurrency := fs.IntP("concurrency", "c", 4, "concurrent voters")
	double := fs.Bool("double", false, "every voter tries to vote twice")
	_ = fs.Parse(args)

	cli, err := client.New(*host)
	if err != nil {
		return err
	}
	p, err := newProver(cli, *issuerPath, *artifactsDir)
	if err != nil {
		return err
	}
	params, err := ballotParams(cli)
	if err != nil {
		return err
	}

	var counted, rejected atomic.Uint64
	start := time.Now()
	g := new(errgroup.Group)
	g.SetLimit(*concurrency)
	for i := range *voters {
		g.Go(func() error {
			cred, err := p.credential(fmt.Sprintf("voter%d@example.org", i), randomAddress())
			if err != nil {
				return err
			}
			attempts := 1
			if *double {
				attempts = 2
			}
			for range attempts {
				votes, proof, err := params.encrypt(cred.Address, i%params.Options)
				if err != nil {
					return err
				}
				if _, err := cli.Vote(cred.PCD, cred.Address, votes, proof); err != nil {
					log.Debugw("vote rejected", "voter", i, "error", err)
					rejected.Add(1)
					continue
				}
				counted.Add(1)
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}
	log.Infow("load finished",
		"voters", *voters,
		"counted", counted.Load(),
		"rejected", rejected.Load(),
		"elapsed", time.Since(start).String())
	return nil
}

func randomAddress() common.Address {
	return common.BytesToAddress(util.RandomBytes(common.AddressLength))
}
