package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/drowningchild/dpmcore/internal/dpm"
	"github.com/drowningchild/dpmcore/internal/dvfs"
	"github.com/drowningchild/dpmcore/internal/infrastructure/config"
	"github.com/drowningchild/dpmcore/internal/infrastructure/database"
	"github.com/drowningchild/dpmcore/internal/infrastructure/logging"
	"github.com/drowningchild/dpmcore/internal/infrastructure/mqtt"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Manager  *dpm.Manager
	History  dpm.HistoryStore // optional
	Steps    *dvfs.StepHistory
	Governor *dvfs.Governor // optional
	DB       *database.DB   // optional, used by the readiness probe
	MQTT     *mqtt.Client   // optional
	Hub      *Hub           // if set, the server uses this hub instead of creating its own

	// Gatherer serves /metrics. Defaults to prometheus.DefaultGatherer.
	Gatherer prometheus.Gatherer

	// Registerer receives the HTTP request metrics. Optional.
	Registerer prometheus.Registerer

	// SleepDuration is used when a transition request does not name one.
	SleepDuration time.Duration
	Version       string
}

// Server is the HTTP API server for dpmcore.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg           config.APIConfig
	wsCfg         config.WebSocketConfig
	logger        *logging.Logger
	manager       *dpm.Manager
	history       dpm.HistoryStore
	steps         *dvfs.StepHistory
	governor      *dvfs.Governor
	db            *database.DB
	mqtt          *mqtt.Client
	gatherer      prometheus.Gatherer
	httpMetrics   *httpMetrics
	sleepDuration time.Duration
	version       string
	server        *http.Server
	hub           *Hub
	cancel        context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
//
// Parameters:
//   - deps: Required dependencies (config, logger, manager)
//
// Returns:
//   - *Server: Configured server ready to start
//   - error: If required dependencies are missing
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Manager == nil {
		return nil, fmt.Errorf("power manager is required")
	}

	s := &Server{
		cfg:           deps.Config,
		wsCfg:         deps.WS,
		logger:        deps.Logger,
		manager:       deps.Manager,
		history:       deps.History,
		steps:         deps.Steps,
		governor:      deps.Governor,
		db:            deps.DB,
		mqtt:          deps.MQTT,
		gatherer:      deps.Gatherer,
		sleepDuration: deps.SleepDuration,
		version:       deps.Version,
		hub:           deps.Hub,
	}
	if s.gatherer == nil {
		s.gatherer = prometheus.DefaultGatherer
	}
	if s.hub == nil {
		s.hub = NewHub(s.wsCfg, s.logger)
	}
	s.hub.SetState(s.channelState)
	if deps.Registerer != nil {
		s.httpMetrics = newHTTPMetrics(deps.Registerer)
	}

	return s, nil
}

// channelState is the greeting sent to new WebSocket subscribers.
func (s *Server) channelState(channel string) (any, bool) {
	switch channel {
	case ChannelDVFS:
		if s.governor == nil {
			return nil, false
		}
		return s.governor.Snapshot(), true
	case ChannelTransition:
		return map[string]any{
			"busy":    s.manager.Busy(),
			"async":   s.manager.AsyncEnabled(),
			"devices": s.manager.Registry().Len(),
		}, true
	default:
		return nil, false
	}
}

// Hub returns the WebSocket hub. It is usable as a dpm.Sink before Start.
func (s *Server) Hub() *Hub {
	return s.hub
}

// Start begins listening for HTTP connections.
//
// It starts the WebSocket hub, subscribes to the MQTT command topics when a
// client is configured, and launches the HTTP listener in a background
// goroutine. The server can be stopped with Close().
//
// Parameters:
//   - ctx: Context for cancellation (not used for listener lifetime)
//
// Returns:
//   - error: If the server fails to start (port in use, etc.)
func (s *Server) Start(ctx context.Context) error {
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	go s.hub.Run(srvCtx)

	if err := s.subscribeCommands(srvCtx); err != nil {
		s.logger.Warn("failed to subscribe to MQTT commands", "error", err)
	}

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           s.buildRouter(),
		ReadTimeout:       s.cfg.Timeouts.ReadTimeout(),
		ReadHeaderTimeout: s.cfg.Timeouts.ReadTimeout(),
		WriteTimeout:      s.cfg.Timeouts.WriteTimeout(),
		IdleTimeout:       s.cfg.Timeouts.IdleTimeout(),
	}

	go func() {
		var err error
		if s.cfg.TLS.Enabled {
			s.logger.Info("API server starting with TLS",
				"address", s.server.Addr,
				"cert", s.cfg.TLS.CertFile,
			)
			err = s.server.ListenAndServeTLS(s.cfg.TLS.CertFile, s.cfg.TLS.KeyFile)
		} else {
			s.logger.Info("API server starting", "address", s.server.Addr)
			err = s.server.ListenAndServe()
		}
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
//
// Returns:
//   - error: If shutdown encounters an error
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	if s.cancel != nil {
		s.cancel()
	}

	ctx, cancel := context.WithTimeout(context.Background(), gracefulShutdownTimeout)
	defer cancel()

	s.logger.Info("API server shutting down")
	if err := s.server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutting down API server: %w", err)
	}
	return nil
}

// HealthCheck verifies the API server is running and responsive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (s *Server) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("api health check: %w", ctx.Err())
	default:
	}

	if s.server == nil {
		return fmt.Errorf("api server not started")
	}

	return nil
}
