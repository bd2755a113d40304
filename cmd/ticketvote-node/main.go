package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/google/uuid"
	"github.com/vocdoni/ticketvote/api"
	"github.com/vocdoni/ticketvote/credential"
	"github.com/vocdoni/ticketvote/credential/ticket"
	"github.com/vocdoni/ticketvote/db"
	"github.com/vocdoni/ticketvote/db/metadb"
	"github.com/vocdoni/ticketvote/db/mongodb"
	"github.com/vocdoni/ticketvote/log"
	"github.com/vocdoni/ticketvote/service"
	"github.com/vocdoni/ticketvote/types"
)

// Services holds all the running services
type Services struct {
	Ballot *service.BallotService
	API    *service.APIService
}

func main() {
	// Load configuration
	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading configuration: %v\n", err)
		os.Exit(1)
	}

	// Initialize logging
	log.Init(cfg.Log.Level, cfg.Log.Output, nil)
	log.Infow("starting ticketvote-node", "version", Version)

	// Validate configuration
	if err := validateConfig(cfg); err != nil {
		log.Fatalf("Invalid configuration: %v", err)
	}

	// Create context with cancellation for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Setup services
	services, err := setupServices(ctx, cfg)
	if err != nil {
		log.Fatalf("Failed to setup services: %v", err)
	}
	defer shutdownServices(services)

	// Wait for shutdown signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	sig := <-sigCh
	log.Infow("received signal, shutting down", "signal", sig.String())
}

// openDatabase opens the configured storage backend
func openDatabase(cfg *Config) (db.Database, error) {
	dir := filepath.Join(cfg.Datadir, "storage")
	if cfg.DB.Type == db.TypeMongo {
		if cfg.DB.URI != "" {
			if err := os.Setenv(mongodb.URLEnv, cfg.DB.URI); err != nil {
				return nil, err
			}
		}
		// the database is named after the event
		dir = "ticketvote-" + cfg.Epoch.EventID
	}
	log.Infow("initializing storage", "datadir", dir, "type", cfg.DB.Type)
	return metadb.New(cfg.DB.Type, dir)
}

// setupServices initializes and starts all required services
func setupServices(ctx context.Context, cfg *Config) (*Services, error) {
	services := &Services{}

	issuers, err := credential.ParseTrustedIssuers(cfg.Issuers)
	if err != nil {
		return nil, err
	}
	externalNullifier, err := parseExternalNullifier(cfg.Epoch.ExternalNullifier)
	if err != nil {
		return nil, err
	}

	// Load the tally authority key and the circuit verifying key
	artifacts, err := service.LoadArtifacts(artifactsTimeout, cfg.Keys.Public, cfg.Circuit.VK)
	if err != nil {
		return nil, fmt.Errorf("failed to load artifacts: %w", err)
	}

	database, err := openDatabase(cfg)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}

	// Start the ballot box
	log.Infow("starting ballot service",
		"eventId", cfg.Epoch.EventID,
		"options", cfg.Epoch.Options,
		"weight", cfg.Epoch.Weight,
		"issuers", issuers.Len(),
		"workers", cfg.Admission.Workers)
	services.Ballot = service.NewBallotService(service.BallotConfig{
		Database: database,
		Epoch: &types.Epoch{
			EventID:           uuid.MustParse(cfg.Epoch.EventID),
			Options:           cfg.Epoch.Options,
			Weight:            cfg.Epoch.Weight,
			ExternalNullifier: new(types.BigInt).SetBigInt(externalNullifier),
			EncryptionKey:     artifacts.PublicKey.Marshal(),
		},
		Verifier:        ticket.NewVerifier(artifacts.VerifyingKey),
		Issuers:         issuers,
		Workers:         cfg.Admission.Workers,
		TicketTTL:       cfg.Admission.TicketTTL,
		MonitorInterval: monitorInterval,
	})
	if err := services.Ballot.Start(ctx); err != nil {
		if cerr := database.Close(); cerr != nil {
			log.Warnw("failed to close database", "error", cerr)
		}
		return nil, fmt.Errorf("failed to start ballot service: %w", err)
	}

	// Export the tallies when the epoch closes
	if cfg.S3.Enabled {
		exporter, err := service.NewS3Exporter(ctx, &cfg.S3)
		if err != nil {
			shutdownServices(services)
			return nil, fmt.Errorf("failed to setup S3 export: %w", err)
		}
		services.Ballot.BallotBox.OnClose(exporter.Export)
		log.Infow("tally export enabled", "bucket", cfg.S3.Bucket, "endpoint", cfg.S3.Endpoint)
	}

	// Start API service
	log.Infow("starting API service", "host", cfg.API.Host, "port", cfg.API.Port)
	issuerList := make([]string, 0, len(cfg.Issuers))
	for _, i := range cfg.Issuers {
		s, _ := credential.ParseSigner(i)
		issuerList = append(issuerList, s.String())
	}
	services.API = service.NewAPI(api.APIConfig{
		Host:         cfg.API.Host,
		Port:         cfg.API.Port,
		BallotBox:    services.Ballot.BallotBox,
		PublicKey:    artifacts.PublicKey.Marshal(),
		VerifyingKey: artifacts.RawVerifyingKey,
		Issuers:      issuerList,
		AdminToken:   cfg.Admin.Token,
	}, false)
	if err := services.API.Start(ctx); err != nil {
		shutdownServices(services)
		return nil, fmt.Errorf("failed to start API service: %w", err)
	}

	if !services.Ballot.BallotBox.IsOpen() {
		log.Warnw("epoch is closed, votes will be rejected", "eventId", cfg.Epoch.EventID)
	}
	if cfg.Admin.Token == "" {
		log.Infow("no admin token configured, the epoch cannot be closed over the API")
	}
	log.Info("ticketvote-node is running, ready to count votes!")
	return services, nil
}

// shutdownServices gracefully shuts down all services
func shutdownServices(services *Services) {
	if services == nil {
		return
	}

	// Stop services in reverse order of startup
	if services.API != nil {
		services.API.Stop()
	}
	if services.Ballot != nil {
		services.Ballot.Stop()
	}
}
