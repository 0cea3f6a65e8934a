package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/config"
	"github.com/nerrad567/gray-logic-whatsapp/internal/infrastructure/logging"
	"github.com/nerrad567/gray-logic-whatsapp/internal/messagelog"
	"github.com/nerrad567/gray-logic-whatsapp/internal/session"
	"github.com/nerrad567/gray-logic-whatsapp/internal/whatsapp"
)

// gracefulShutdownTimeout is the maximum time to wait for in-flight requests
// to complete during shutdown.
const gracefulShutdownTimeout = 10 * time.Second

// Deps holds the dependencies required by the API server.
type Deps struct {
	Config   config.APIConfig
	WS       config.WebSocketConfig
	Logger   *logging.Logger
	Sessions *session.Registry
	Messages *messagelog.Store // Optional; message endpoints 404 without it
	Version  string
}

// Server is the bridge's local HTTP API server.
//
// It manages the HTTP listener, routes, middleware, and WebSocket hub.
// The server is created with New() and started with Start().
type Server struct {
	cfg      config.APIConfig
	wsCfg    config.WebSocketConfig
	logger   *logging.Logger
	sessions *session.Registry
	messages *messagelog.Store
	version  string
	server   *http.Server
	hub      *Hub
	cancel   context.CancelFunc // cancels background goroutines on Close()
}

// New creates a new API server with the given dependencies.
//
// The server is not started until Start() is called.
func New(deps Deps) (*Server, error) {
	if deps.Logger == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if deps.Sessions == nil {
		return nil, fmt.Errorf("session registry is required")
	}

	return &Server{
		cfg:      deps.Config,
		wsCfg:    deps.WS,
		logger:   deps.Logger,
		sessions: deps.Sessions,
		messages: deps.Messages,
		version:  deps.Version,
	}, nil
}

// Start begins listening for HTTP connections.
//
// It sets up the router, starts the WebSocket hub, attaches session event
// streams for WebSocket broadcast, and launches the HTTP listener in a
// background goroutine. The server is stopped with Close().
func (s *Server) Start(ctx context.Context) error {
	// Internal context so Close() can stop background goroutines
	// independently of the parent context.
	var srvCtx context.Context
	srvCtx, s.cancel = context.WithCancel(ctx)

	s.hub = NewHub(s.wsCfg, s.logger)
	go s.hub.Run(srvCtx)

	s.streamSessionEvents(srvCtx)

	router := s.buildRouter()

	s.server = &http.Server{
		Addr:              fmt.Sprintf("%s:%d", s.cfg.Host, s.cfg.Port),
		Handler:           router,
		ReadTimeout:       time.Duration(s.cfg.Timeouts.Read) * time.Second,
		ReadHeaderTimeout: time.Duration(s.cfg.Timeouts.Read) * time.Second,
		WriteTimeout:      time.Duration(s.cfg.Timeouts.Write) * time.Second,
		IdleTimeout:       time.Duration(s.cfg.Timeouts.Idle) * time.Second,
	}

	go func() {
		err := s.server.ListenAndServe()
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("API server error", "error", err)
		}
	}()

	s.logger.Info("API server started", "address", s.server.Addr)
	return nil
}

// Close gracefully shuts down the API server.
//
// It waits up to 10 seconds for in-flight requests to complete,
// then forcefully closes remaining connections.
func (s *Server) Close() error {
	if s.server == nil {
		return nil
	}

	// Cancel background goroutines (hub, event streams)
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

// streamSessionEvents subscribes to each session's push events and
// broadcasts them to WebSocket clients on the session.event channel.
//
// Status transitions arrive through the same stream (ready, disconnected,
// auth_failure are events); the status-change callback is owned by the
// MQTT relay and is not used here.
func (s *Server) streamSessionEvents(ctx context.Context) {
	for _, id := range s.sessions.IDs() {
		client, err := s.sessions.Get(id)
		if err != nil {
			continue
		}

		ch := client.Subscribe()
		go func(id string, client *whatsapp.Client, ch <-chan whatsapp.Event) {
			defer client.Unsubscribe(ch)
			for {
				select {
				case <-ctx.Done():
					return
				case ev, ok := <-ch:
					if !ok {
						return
					}
					s.hub.Broadcast(wsChannelSessionEvent, map[string]any{
						"session_id": id,
						"kind":       ev.Kind,
						"data":       ev.Data,
					})
				}
			}
		}(id, client, ch)
	}
}
