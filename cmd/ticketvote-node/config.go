package main

import (
	"fmt"
	"math/big"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	flag "github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/vocdoni/ticketvote/admission"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/internal"
	"github.com/vocdoni/ticketvote/service"
	"github.com/vocdoni/ticketvote/types"
)

const (
	defaultAPIHost   = "0.0.0.0"
	defaultAPIPort   = 9090
	defaultLogLevel  = "info"
	defaultLogOutput = "stdout"
	defaultDatadir   = ".ticketvote" // Will be prefixed with user's home directory
	defaultDBType    = db.TypePebble
	artifactsTimeout = 5 * time.Minute
	monitorInterval  = time.Minute
)

// Version is the build version, set at build time with -ldflags
var Version = internal.Version

// Config holds the application configuration
type Config struct {
	API       APIConfig
	Log       LogConfig
	DB        DBConfig
	Epoch     EpochConfig
	Keys      KeysConfig
	Circuit   CircuitConfig
	Admission AdmissionConfig
	Admin     AdminConfig
	S3        service.S3Config
	Issuers   []string
	Datadir   string
}

// APIConfig holds the API-specific configuration
type APIConfig struct {
	Host string `mapstructure:"host"`
	Port int    `mapstructure:"port"`
}

// LogConfig holds logging configuration
type LogConfig struct {
	Level  string `mapstructure:"level"`
	Output string `mapstructure:"output"`
}

// DBConfig selects the storage backend
type DBConfig struct {
	Type string `mapstructure:"type"`
	// URI is the MongoDB connection string, only used by the mongodb backend.
	URI string `mapstructure:"uri"`
}

// EpochConfig describes the voting round served by the node
type EpochConfig struct {
	EventID           string `mapstructure:"eventId"`
	Options           int    `mapstructure:"options"`
	ExternalNullifier string `mapstructure:"externalNullifier"`
	Weight            uint64 `mapstructure:"weight"`
}

// KeysConfig points to the ElGamal public key of the tally authority
type KeysConfig struct {
	Public string `mapstructure:"public"`
}

// CircuitConfig points to the credential circuit verifying key
type CircuitConfig struct {
	VK string `mapstructure:"vk"`
}

// AdmissionConfig tunes the admission controller
type AdmissionConfig struct {
	Workers   int           `mapstructure:"workers"`
	TicketTTL time.Duration `mapstructure:"ticketTTL"`
}

// AdminConfig holds the credentials of the administrative endpoints
type AdminConfig struct {
	Token string `mapstructure:"token"`
}

// loadConfig loads configuration from flags, environment variables, and defaults
func loadConfig() (*Config, error) {
	v := viper.New()

	// Get user's home directory for default datadir
	userHomeDir, err := os.UserHomeDir()
	if err != nil {
		userHomeDir = "."
	}
	defaultDatadirPath := filepath.Join(userHomeDir, defaultDatadir)

	v.SetDefault("api.host", defaultAPIHost)
	v.SetDefault("api.port", defaultAPIPort)
	v.SetDefault("log.level", defaultLogLevel)
	v.SetDefault("log.output", defaultLogOutput)
	v.SetDefault("datadir", defaultDatadirPath)
	v.SetDefault("db.type", defaultDBType)
	v.SetDefault("admission.ticketTTL", admission.DefaultTicketTTL)
	v.SetDefault("s3.prefix", "ticketvote")

	// Configure flags
	flag.StringP("api.host", "a", defaultAPIHost, "API host")
	flag.IntP("api.port", "p", defaultAPIPort, "API port")
	flag.StringP("log.level", "l", defaultLogLevel, "log level (debug, info, warn, error, fatal)")
	flag.StringP("log.output", "o", defaultLogOutput, "log output (stdout, stderr or filepath)")
	flag.StringP("datadir", "d", defaultDatadirPath, "data directory for database and storage files")
	flag.String("db.type", defaultDBType, fmt.Sprintf("database backend %v", dbTypes))
	flag.String("db.uri", "", "MongoDB connection string (db.type=mongodb)")
	flag.StringP("epoch.eventId", "e", "", "event id (uuid) of the tickets admitted to vote (required)")
	flag.IntP("epoch.options", "n", 0, "number of ballot options (required)")
	flag.String("epoch.externalNullifier", "", "external nullifier of the vote, decimal or 0x hex (required)")
	flag.Uint64("epoch.weight", types.DefaultVoteWeight, "plaintext a ballot adds to its chosen option")
	flag.StringSliceP("issuers", "i", []string{}, "trusted ticket issuer keys <x>:<y>, comma-separated (required)")
	flag.StringP("keys.public", "k", "", "path to the ElGamal public key of the tally authority (required)")
	flag.String("circuit.vk", "", "path to the ticket circuit verifying key (required)")
	flag.Int("admission.workers", 0, "concurrent proof verifications (0 = number of CPUs)")
	flag.Duration("admission.ticketTTL", admission.DefaultTicketTTL, "validity of an admission ticket")
	flag.String("admin.token", "", "bearer token enabling POST /epoch/close")
	flag.Bool("s3.enabled", false, "export the encrypted tallies to S3 when the epoch closes")
	flag.String("s3.endpoint", "", "S3 compatible endpoint (empty for AWS)")
	flag.String("s3.region", "", "S3 region")
	flag.String("s3.accessKey", "", "S3 access key")
	flag.String("s3.secretKey", "", "S3 secret key")
	flag.String("s3.bucket", "", "S3 bucket")
	flag.String("s3.prefix", "ticketvote", "S3 object key prefix")
	flag.Bool("s3.publicRead", false, "upload the export with a public-read ACL")

	// Configure usage information
	flag.Usage = func() {
		fmt.Fprintf(os.Stderr, "ticketvote-node v%s\n\n", Version)
		fmt.Fprintf(os.Stderr, "Usage: ticketvote-node [flags]\n\n")
		fmt.Fprintf(os.Stderr, "Flags:\n")
		flag.PrintDefaults()
		fmt.Fprintf(os.Stderr, "\nEnvironment variables are also available with the same name as flags,\n")
		fmt.Fprintf(os.Stderr, "  except for dots (.) which are replaced by underscores (_).\n")
		fmt.Fprintf(os.Stderr, "  For example, TICKETVOTE_EPOCH_OPTIONS or TICKETVOTE_API_PORT\n")
		fmt.Fprintf(os.Stderr, "\nExamples:\n")
		fmt.Fprintf(os.Stderr, "  ticketvote-node -e 7d0c2f3a-... -n 3 --epoch.externalNullifier=8128 \\\n")
		fmt.Fprintf(os.Stderr, "    -i 0x12..:0x34.. -k pubkey.bin --circuit.vk=ticket.vk\n")
	}

	// Parse flags
	flag.CommandLine.SortFlags = false
	flag.Parse()

	// Configure Viper to use environment variables
	v.SetEnvPrefix("TICKETVOTE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	// Bind flags to Viper
	if err := v.BindPFlags(flag.CommandLine); err != nil {
		return nil, fmt.Errorf("error binding flags: %w", err)
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("error unmarshaling config: %w", err)
	}
	return cfg, nil
}

var dbTypes = []string{db.TypePebble, db.TypeLevelDB, db.TypeMongo, db.TypeInMem}

// validateConfig validates the loaded configuration
func validateConfig(cfg *Config) error {
	if _, err := uuid.Parse(cfg.Epoch.EventID); err != nil {
		return fmt.Errorf("invalid or missing event id %q (use --epoch.eventId or TICKETVOTE_EPOCH_EVENTID)", cfg.Epoch.EventID)
	}
	if cfg.Epoch.Options <= 0 {
		return fmt.Errorf("the number of options must be positive (use --epoch.options)")
	}
	if cfg.Epoch.Weight == 0 {
		return fmt.Errorf("the vote weight must be positive (use --epoch.weight)")
	}
	if _, err := parseExternalNullifier(cfg.Epoch.ExternalNullifier); err != nil {
		return err
	}
	if len(cfg.Issuers) == 0 {
		return fmt.Errorf("at least one trusted issuer is required (use --issuers)")
	}
	if cfg.Keys.Public == "" {
		return fmt.Errorf("the tally authority public key is required (use --keys.public)")
	}
	if cfg.Circuit.VK == "" {
		return fmt.Errorf("the circuit verifying key is required (use --circuit.vk)")
	}
	validType := false
	for _, t := range dbTypes {
		if cfg.DB.Type == t {
			validType = true
			break
		}
	}
	if !validType {
		return fmt.Errorf("invalid db type %s, available types: %v", cfg.DB.Type, dbTypes)
	}
	if cfg.DB.Type == db.TypeMongo && cfg.DB.URI == "" && os.Getenv("MONGODB_URL") == "" {
		return fmt.Errorf("mongodb requires --db.uri")
	}
	if cfg.Admission.Workers < 0 {
		return fmt.Errorf("admission workers cannot be negative")
	}
	if cfg.S3.Enabled && (cfg.S3.Bucket == "" || cfg.S3.AccessKey == "" || cfg.S3.SecretKey == "") {
		return fmt.Errorf("s3 export requires bucket, access key and secret key")
	}
	return nil
}

// parseExternalNullifier accepts a decimal or 0x prefixed hex number.
func parseExternalNullifier(s string) (*big.Int, error) {
	n, ok := new(big.Int).SetString(strings.TrimSpace(s), 0)
	if !ok || n.Sign() < 0 {
		return nil, fmt.Errorf("invalid or missing external nullifier %q (use --epoch.externalNullifier)", s)
	}
	return n, nil
}
