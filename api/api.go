// Package api exposes the ballot box over HTTP.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"github.com/vocdoni/ticketvote/ballotbox"
	"github.com/vocdoni/ticketvote/log"
)

// DefaultRequestTimeout bounds the handling time of a request, proof
// verification included.
const DefaultRequestTimeout = 45 * time.Second

// APIConfig type represents the configuration for the API HTTP server.
type APIConfig struct {
	Host      string
	Port      int
	BallotBox *ballotbox.BallotBox
	// PublicKey is the serialized ElGamal key ballots are encrypted with.
	PublicKey []byte
	// VerifyingKey is the serialized verifying key of the credential
	// circuit, served to clients as public parameters. Optional.
	VerifyingKey []byte
	// Issuers lists the trusted issuers, reported by /info.
	Issuers []string
	// AdminToken enables POST /epoch/close when set.
	AdminToken     string
	RequestTimeout time.Duration
}

// API type represents the API HTTP server.
type API struct {
	router       *chi.Mux
	server       *http.Server
	box          *ballotbox.BallotBox
	publicKey    []byte
	verifyingKey []byte
	issuers      []string
	adminToken   string
	timeout      time.Duration
	metrics      *metrics
}

// New creates a new API instance with the given configuration. The server
// is not listening until Start is called.
func New(conf *APIConfig) (*API, error) {
	if conf == nil {
		return nil, fmt.Errorf("missing API configuration")
	}
	if conf.BallotBox == nil {
		return nil, fmt.Errorf("missing ballot box")
	}
	if len(conf.PublicKey) == 0 {
		return nil, fmt.Errorf("missing encryption public key")
	}
	a := &API{
		box:          conf.BallotBox,
		publicKey:    conf.PublicKey,
		verifyingKey: conf.VerifyingKey,
		issuers:      conf.Issuers,
		adminToken:   conf.AdminToken,
		timeout:      conf.RequestTimeout,
		metrics:      newMetrics(conf.BallotBox),
	}
	if a.timeout <= 0 {
		a.timeout = DefaultRequestTimeout
	}
	a.initRouter()
	a.server = &http.Server{
		Addr:              net.JoinHostPort(conf.Host, fmt.Sprint(conf.Port)),
		Handler:           a.router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	return a, nil
}

// Start starts serving in the background.
func (a *API) Start() error {
	ln, err := net.Listen("tcp", a.server.Addr)
	if err != nil {
		return fmt.Errorf("failed to start the API server: %w", err)
	}
	go func() {
		log.Infow("starting API server", "addr", ln.Addr().String())
		if err := a.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Errorw(err, "API server stopped")
		}
	}()
	return nil
}

// Stop gracefully shuts the server down.
func (a *API) Stop(ctx context.Context) error {
	return a.server.Shutdown(ctx)
}

// Router returns the chi router for testing purposes
func (a *API) Router() *chi.Mux {
	return a.router
}

// registerHandlers registers all the HTTP handlers for the API endpoints.
func (a *API) registerHandlers() {
	log.Infow("register handler", "endpoint", PingEndpoint, "method", "GET")
	a.router.Get(PingEndpoint, func(w http.ResponseWriter, r *http.Request) {
		httpWriteOK(w)
	})
	log.Infow("register handler", "endpoint", VerifyEndpoint, "method", "POST")
	a.router.Post(VerifyEndpoint, a.verify)
	log.Infow("register handler", "endpoint", VoteEndpoint, "method", "POST")
	a.router.Post(VoteEndpoint, a.vote)
	log.Infow("register handler", "endpoint", PublicKeyEndpoint, "method", "GET")
	a.router.Get(PublicKeyEndpoint, a.publicKeyHandler)
	log.Infow("register handler", "endpoint", PublicKeyParamsEndpoint, "method", "GET")
	a.router.Get(PublicKeyParamsEndpoint, a.publicParams)
	log.Infow("register handler", "endpoint", InfoEndpoint, "method", "GET")
	a.router.Get(InfoEndpoint, a.info)
	log.Infow("register handler", "endpoint", TallyEndpoint, "method", "GET")
	a.router.Get(TallyEndpoint, a.tally)
	log.Infow("register handler", "endpoint", MetricsEndpoint, "method", "GET")
	a.router.Method(http.MethodGet, MetricsEndpoint, a.metrics.handler())
	if a.adminToken != "" {
		log.Infow("register handler", "endpoint", CloseEpochEndpoint, "method", "POST")
		a.router.With(adminAuth(a.adminToken)).Post(CloseEpochEndpoint, a.closeEpoch)
	}
}

// initRouter creates the router with all the routes and middleware.
func (a *API) initRouter() {
	a.router = chi.NewRouter()
	a.router.Use(cors.New(cors.Options{
		AllowedOrigins:   []string{"*"},
		AllowedMethods:   []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders:   []string{"Accept", "Authorization", "Content-Type", "X-CSRF-Token"},
		AllowCredentials: true,
		MaxAge:           300,
	}).Handler)
	a.router.Use(loggingMiddleware(DefaultLoggingConfig()))
	a.router.Use(middleware.Recoverer)
	a.router.Use(middleware.Throttle(100))
	a.router.Use(middleware.ThrottleBacklog(5000, 40000, 60*time.Second))
	a.router.Use(middleware.Timeout(a.timeout))
	a.router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		ErrResourceNotFound.With(r.URL.Path).Write(w)
	})

	a.registerHandlers()
}
