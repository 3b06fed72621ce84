package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/nerrad567/lumina-bridge/internal/audit"
	"github.com/nerrad567/lumina-bridge/internal/auth"
	"github.com/nerrad567/lumina-bridge/internal/device"
	"github.com/nerrad567/lumina-bridge/internal/fulfilment"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/config"
	"github.com/nerrad567/lumina-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/lumina-bridge/internal/state"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// IntentHandler routes intent envelopes.
type IntentHandler interface {
	Handle(ctx context.Context, owner string, req fulfilment.Request) (fulfilment.Response, error)
}

// CredentialResolver maps a bearer credential to an owner.
type CredentialResolver interface {
	Resolve(ctx context.Context, credential string) (string, error)
}

// CodeIssuer runs the code to token exchange.
type CodeIssuer interface {
	IssueCode(ctx context.Context, owner string) (string, error)
	Redeem(ctx context.Context, code string) (auth.Token, error)
}

// OwnershipLister reports which devices an owner holds.
type OwnershipLister interface {
	OwnedIDs(ctx context.Context, owner string) (device.IDSet, error)
}

// StateReader reads cached device state.
type StateReader interface {
	Get(ctx context.Context, ids []string) (map[string]state.State, error)
}

// HealthChecker is implemented by dependencies reported on /healthz.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.Config
	Logger   *logging.Logger
	Intents  IntentHandler
	Resolver CredentialResolver
	Issuer   CodeIssuer
	Devices  OwnershipLister
	States   StateReader
	Audit    audit.Repository         // optional
	Health   map[string]HealthChecker // optional, keyed by component name
	Gatherer prometheus.Gatherer      // optional; defaults to the global registry
	Version  string
}

// Server is the HTTP API server.
type Server struct {
	cfg      config.Config
	logger   *logging.Logger
	intents  IntentHandler
	resolver CredentialResolver
	issuer   CodeIssuer
	devices  OwnershipLister
	states   StateReader
	audit    audit.Repository
	health   map[string]HealthChecker
	gatherer prometheus.Gatherer
	version  string
	client   auth.Client
	hub      *Hub

	mu       sync.Mutex
	server   *http.Server
	listener net.Listener
	cancel   context.CancelFunc
}

// New creates a new API server. It is not listening until Start is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, errors.New("logger is required")
	}
	if deps.Intents == nil {
		return nil, errors.New("intent handler is required")
	}
	if deps.Resolver == nil {
		return nil, errors.New("credential resolver is required")
	}
	if deps.Issuer == nil {
		return nil, errors.New("credential issuer is required")
	}
	if deps.Devices == nil || deps.States == nil {
		return nil, errors.New("device and state readers are required")
	}
	gatherer := deps.Gatherer
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}

	s := &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		intents:  deps.Intents,
		resolver: deps.Resolver,
		issuer:   deps.Issuer,
		devices:  deps.Devices,
		states:   deps.States,
		audit:    deps.Audit,
		health:   deps.Health,
		gatherer: gatherer,
		version:  deps.Version,
		client: auth.Client{
			ID:           deps.Config.Security.OAuth.ClientID,
			RedirectURIs: deps.Config.Security.OAuth.RedirectURIs,
		},
	}
	s.hub = NewHub(deps.Config.WebSocket, deps.Logger)
	return s, nil
}

// Hub returns the WebSocket hub. Register Hub().PublishChange as a state
// cache listener to stream changes.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Handler returns the routed handler with middleware applied.
func (s *Server) Handler() http.Handler {
	return s.buildRouter()
}

// Start binds the listener and serves in the background. A bind failure is
// returned immediately.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.server != nil {
		return errors.New("api server already started")
	}

	srvCtx, cancel := context.WithCancel(ctx)
	go s.hub.Run(srvCtx)

	addr := fmt.Sprintf("%s:%d", s.cfg.API.Host, s.cfg.API.Port)
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		cancel()
		return fmt.Errorf("listening on %s: %w", addr, err)
	}

	read := time.Duration(s.cfg.API.Timeouts.Read) * time.Second
	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       read,
		ReadHeaderTimeout: read,
		WriteTimeout:      time.Duration(s.cfg.API.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.API.Timeouts.Idle) * time.Second,
	}
	s.listener = ln
	s.cancel = cancel

	s.logger.Info("API server listening", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server, waiting up to 10 seconds for
// in-flight requests.
func (s *Server) Close() error {
	s.mu.Lock()
	srv, cancel := s.server, s.cancel
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	if cancel != nil {
		cancel()
	}

	ctx, done := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer done()

	s.logger.Info("API server shutting down")
	if err := srv.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running.
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if s.server == nil {
		return errors.New("api server not started")
	}
	return nil
}
