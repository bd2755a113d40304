package main

import (
	"crypto/rand"
	"fmt"
	"os"
	"path/filepath"

	"github.com/vocdoni/ticketvote/credential/ticket"
	"github.com/vocdoni/ticketvote/crypto/elgamal"
	"github.com/vocdoni/ticketvote/log"
)

const (
	publicKeyFile = "elgamal.pub"
	secretKeyFile = "elgamal.key"
	issuerKeyFile = "issuer.key"
)

func keygen(args []string) error {
	fs := newFlagSet("keygen")
	out := fs.StringP("out", "o", ".", "output directory")
	_ = fs.Parse(args)

	pk, sk, err := elgamal.GenerateKey()
	if err != nil {
		return err
	}
	if err := os.MkdirAll(*out, 0o755); err != nil {
		return err
	}
	pubPath := filepath.Join(*out, publicKeyFile)
	if err := os.WriteFile(pubPath, pk.Marshal(), 0o644); err != nil {
		return err
	}
	secPath := filepath.Join(*out, secretKeyFile)
	if err := os.WriteFile(secPath, sk.Marshal(), 0o600); err != nil {
		return err
	}
	log.Infow("tally authority keys created", "public", pubPath, "secret", secPath)
	fmt.Printf("%x\n", pk.Marshal())
	return nil
}

func issuerKeygen(args []string) error {
	fs := newFlagSet("issuer")
	out := fs.StringP("out", "o", issuerKeyFile, "output file")
	_ = fs.Parse(args)

	issuer, err := ticket.NewIssuer(rand.Reader)
	if err != nil {
		return err
	}
	if err := os.WriteFile(*out, issuer.Marshal(), 0o600); err != nil {
		return err
	}
	log.Infow("issuer key created", "file", *out)
	// the signer is the value nodes list in --issuers
	fmt.Println(issuer.Signer().String())
	return nil
}

func setup(args []string) error {
	fs := newFlagSet("setup")
	out := fs.StringP("out", "o", "artifacts", "output directory")
	_ = fs.Parse(args)

	log.Info("compiling ticket circuit and running setup, this may take a while")
	artifacts, err := ticket.Setup()
	if err != nil {
		return err
	}
	if err := artifacts.Save(*out); err != nil {
		return err
	}
	log.Infow("circuit artifacts saved",
		"provingKey", filepath.Join(*out, ticket.ProvingKeyFile),
		"verifyingKey", filepath.Join(*out, ticket.VerifyingKeyFile))
	return nil
}

func loadIssuer(path string) (*ticket.Issuer, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return ticket.LoadIssuer(data)
}

func loadSecretKey(path string) (*elgamal.SecretKey, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}
	return elgamal.UnmarshalSecretKey(data)
}
