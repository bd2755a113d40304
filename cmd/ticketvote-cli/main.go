package main

import (
	"fmt"
	"os"

	flag "github.com/spf13/pflag"
	"github.com/vocdoni/ticketvote/internal"
	"github.com/vocdoni/ticketvote/log"
)

const defaultNodeURL = "http://127.0.0.1:9090"

type command struct {
	name  string
	usage string
	run   func(args []string) error
}

var commands = []command{
	{"keygen", "generate the ElGamal key pair of the tally authority", keygen},
	{"issuer", "generate a ticket issuer key", issuerKeygen},
	{"setup", "compile the ticket circuit and run the groth16 setup", setup},
	{"ticket", "issue a ticket and prove it as a vote credential", issueTicket},
	{"encrypt", "encrypt a one-hot ballot with its validity proof", encrypt},
	{"vote", "encrypt a ballot and cast it with a credential", vote},
	{"load", "issue, prove and cast many votes concurrently", load},
	{"tally", "show the encrypted tallies of the node", showTally},
	{"decrypt", "decrypt the tallies with the authority secret key", decrypt},
	{"close", "close the epoch (requires the admin token)", closeEpoch},
}

func usage() {
	fmt.Fprintf(os.Stderr, "ticketvote-cli v%s\n\n", internal.Version)
	fmt.Fprintf(os.Stderr, "Usage: ticketvote-cli <command> [flags]\n\nCommands:\n")
	for _, c := range commands {
		fmt.Fprintf(os.Stderr, "  %-8s %s\n", c.name, c.usage)
	}
	fmt.Fprintf(os.Stderr, "\nRun ticketvote-cli <command> --help for the flags of a command.\n")
}

func main() {
	if len(os.Args) < 2 {
		usage()
		os.Exit(2)
	}
	level := os.Getenv("TICKETVOTE_LOG_LEVEL")
	if level == "" {
		level = log.LogLevelInfo
	}
	log.Init(level, "stderr", nil)

	name := os.Args[1]
	for _, c := range commands {
		if c.name != name {
			continue
		}
		if err := c.run(os.Args[2:]); err != nil {
			log.Fatalf("%s: %v", name, err)
		}
		return
	}
	usage()
	os.Exit(2)
}

// newFlagSet returns a flag set that exits on parse errors, like the
// default command line.
func newFlagSet(name string) *flag.FlagSet {
	fs := flag.NewFlagSet(name, flag.ExitOnError)
	fs.SortFlags = false
	return fs
}
