package main

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/vocdoni/ticketvote/api"
	"github.com/vocdoni/ticketvote/api/client"
	"github.com/vocdoni/ticketvote/crypto/elgamal"
	"github.com/vocdoni/ticketvote/log"
)

func showTally(args []string) error {
	fs := newFlagSet("tally")
	host := fs.StringP("url", "u", defaultNodeURL, "node URL")
	_ = fs.Parse(args)

	cli, err := client.New(*host)
	if err != nil {
		return err
	}
	tally, err := cli.Tally()
	if err != nil {
		return err
	}
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(tally)
}

func decrypt(args []string) error {
	fs := newFlagSet("decrypt")
	host := fs.StringP("url", "u", defaultNodeURL, "node URL")
	input := fs.StringP("file", "f", "", "read the tallies from an exported file instead of the node")
	keyPath := fs.StringP("seckey", "k", secretKeyFile, "ElGamal secret key file")
	maxVotes := fs.Uint64P("max", "m", 0, "upper bound of any option count (defaults to the counted ballots times the vote weight)")
	_ = fs.Parse(args)

	sk, err := loadSecretKey(*keyPath)
	if err != nil {
		return fmt.Errorf("secret key: %w", err)
	}
	tally := &api.TallyResponse{}
	if *input != "" {
		data, err := os.ReadFile(*input)
		if err != nil {
			return err
		}
		if err := json.Unmarshal(data, tally); err != nil {
			return fmt.Errorf("decode tallies: %w", err)
		}
	} else {
		cli, err := client.New(*host)
		if err != nil {
			return err
		}
		if tally, err = cli.Tally(); err != nil {
			return err
		}
	}
	if tally.Open {
		log.Warn("the epoch is still open, results are partial")
	}
	bound := *maxVotes
	if bound == 0 {
		bound = tally.Ballots * max(tally.Weight, 1)
	}
	raw := make([][]byte, len(tally.Tallies))
	for i, t := range tally.Tallies {
		raw[i] = t
	}
	ballot, err := elgamal.UnmarshalBallot(raw)
	if err != nil {
		return err
	}
	results, err := elgamal.DecryptBallot(sk, ballot, bound)
	if err != nil {
		return err
	}
	for i, r := range results {
		fmt.Printf("option %d: %s\n", i, r.String())
	}
	return nil
}

func closeEpoch(args []string) error {
	fs := newFlagSet("close")
	host := fs.StringP("url", "u", defaultNodeURL, "node URL")
	token := fs.StringP("token", "t", os.Getenv("TICKETVOTE_ADMIN_TOKEN"), "admin token")
	_ = fs.Parse(args)

	cli, err := client.New(*host)
	if err != nil {
		return err
	}
	cli.SetAdminToken(*token)
	tally, err := cli.CloseEpoch()
	if err != nil {
		return err
	}
	log.Infow("epoch closed", "eventId", tally.EventID.String(), "ballots", tally.Ballots)
	return nil
}
