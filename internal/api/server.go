package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"golang.org/x/time/rate"

	"github.com/nerrad567/huettenzauber/internal/infrastructure/config"
	"github.com/nerrad567/huettenzauber/internal/infrastructure/logging"
	"github.com/nerrad567/huettenzauber/internal/process"
	"github.com/nerrad567/huettenzauber/internal/runner"
	"github.com/nerrad567/huettenzauber/internal/scene"
	"github.com/nerrad567/huettenzauber/internal/session"
	"github.com/nerrad567/huettenzauber/internal/trigger"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 5 * time.Second

// HTTP server timeouts.
const (
	readTimeout  = 5 * time.Second
	writeTimeout = 10 * time.Second
	idleTimeout  = 60 * time.Second

	// backendCheckTimeout bounds each backend health check in GET /status.
	backendCheckTimeout = 2 * time.Second
)

// SessionStatus reports the supervisor state. *session.Supervisor implements it.
type SessionStatus interface {
	Status() session.Status
	Current() (runner.Snapshot, bool)
}

// TriggerController accepts manual triggers. *trigger.Controller implements it.
type TriggerController interface {
	Trigger(source string) error
	Status() trigger.Status
}

// HealthChecker is an optional backend probed by GET /status.
// *mqtt.Client and *influxdb.Client implement it.
type HealthChecker interface {
	HealthCheck(ctx context.Context) error
}

// PlayerProcess reports on an mpv instance the controller started itself.
// *process.Manager implements it.
type PlayerProcess interface {
	Stats() process.Stats
}

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config  config.APIConfig
	Logger  *logging.Logger
	Session SessionStatus
	Trigger TriggerController
	Scenes  *scene.Table
	Picker  *scene.Picker

	// Backends maps a name to an optional telemetry backend.
	Backends map[string]HealthChecker

	// Player is nil unless mpv is managed by the controller.
	Player PlayerProcess

	Version string
}

// Server is the HTTP API server.
//
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	logger   *logging.Logger
	session  SessionStatus
	trigger  TriggerController
	scenes   *scene.Table
	picker   *scene.Picker
	backends map[string]HealthChecker
	player   PlayerProcess
	version  string
	started  time.Time
	limiter  *rate.Limiter
	server   *http.Server
	listener net.Listener
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Session == nil || deps.Trigger == nil {
		return nil, fmt.Errorf("session and trigger are required")
	}

	interval := deps.Config.TriggerInterval
	limit := rate.Inf
	if interval > 0 {
		limit = rate.Every(interval)
	}

	return &Server{
		cfg:      deps.Config,
		logger:   deps.Logger,
		session:  deps.Session,
		trigger:  deps.Trigger,
		scenes:   deps.Scenes,
		picker:   deps.Picker,
		backends: deps.Backends,
		player:   deps.Player,
		version:  deps.Version,
		started:  time.Now(),
		limiter:  rate.NewLimiter(limit, 1),
	}, nil
}

// Start begins listening for HTTP connections in a background goroutine.
// The listener is bound before Start returns, so a port conflict is
// reported here. The server can be stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	addr := net.JoinHostPort(s.cfg.Host, fmt.Sprint(s.cfg.Port))

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	s.listener = ln

	s.server = &http.Server{
		Handler:           s.buildRouter(),
		ReadTimeout:       readTimeout,
		ReadHeaderTimeout: readTimeout,
		WriteTimeout:      writeTimeout,
		IdleTimeout:       idleTimeout,
	}

	s.logger.Info("API server starting", "address", ln.Addr().String())
	go func() {
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Addr returns the bound listen address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Close gracefully shuts down the API server.
//
// It waits up to 5 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}
