package service

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/vocdoni/ticketvote/api"
	"github.com/vocdoni/ticketvote/log"
)

const shutdownTimeout = 10 * time.Second

// APIService represents a service that manages the HTTP API server.
type APIService struct {
	API    *api.API
	conf   api.APIConfig
	mu     sync.Mutex
	cancel context.CancelFunc
}

// NewAPI creates a new APIService instance.
func NewAPI(conf api.APIConfig, disableLogging bool) *APIService {
	if disableLogging {
		api.DisabledLogging = disableLogging
		log.Debugw("API logging is disabled")
	}
	return &APIService{conf: conf}
}

// Start begins the API server. It returns an error if the service
// is already running or if it fails to start.
func (as *APIService) Start(ctx context.Context) error {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel != nil {
		return fmt.Errorf("service already running")
	}
	conf := as.conf
	a, err := api.New(&conf)
	if err != nil {
		return fmt.Errorf("failed to create API server: %w", err)
	}
	if err := a.Start(); err != nil {
		return err
	}
	as.API = a
	ctx, as.cancel = context.WithCancel(ctx)
	go func() {
		<-ctx.Done()
		as.Stop()
	}()
	return nil
}

// Stop halts the API server, waiting for in-flight requests to finish.
func (as *APIService) Stop() {
	as.mu.Lock()
	defer as.mu.Unlock()

	if as.cancel == nil {
		return
	}
	as.cancel()
	as.cancel = nil
	ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := as.API.Stop(ctx); err != nil {
		log.Warnw("API server shutdown failed", "error", err)
	}
}

// HostPort returns the host and port of the API server.
func (as *APIService) HostPort() (string, int) {
	return as.conf.Host, as.conf.Port
}
