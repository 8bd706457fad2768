// Package server is the optional HTTP status endpoint for the poll loop.
package server

import (
	"context"
	stderrors "errors"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/agentstation/sheetsync/internal/server/middleware"
	"github.com/agentstation/sheetsync/internal/server/response"
	"github.com/agentstation/sheetsync/internal/server/sse"
	"github.com/agentstation/sheetsync/pkg/constants"
	"github.com/agentstation/sheetsync/pkg/errors"
)

// Config holds server configuration.
type Config struct {
	Addr  string
	Token string

	ReadTimeout time.Duration
	IdleTimeout time.Duration
}

// DefaultConfig returns a Config listening on addr.
func DefaultConfig(addr string) Config {
	return Config{
		Addr:        addr,
		ReadTimeout: constants.DefaultTimeout,
		IdleTimeout: 2 * time.Minute,
	}
}

// Server serves /healthz, /status and /events.
type Server struct {
	cfg         Config
	tracker     *Tracker
	broadcaster *sse.Broadcaster
	engine      *gin.Engine
	logger      *zerolog.Logger
}

// New creates a server reading from tracker.
func New(cfg Config, tracker *Tracker, logger *zerolog.Logger) (*Server, error) {
	if tracker == nil {
		return nil, errors.NewValidationError("tracker", nil, "is required")
	}
	if cfg.Addr == "" {
		return nil, errors.NewValidationError("addr", nil, "is required")
	}

	s := &Server{
		cfg:         cfg,
		tracker:     tracker,
		broadcaster: sse.NewBroadcaster(logger),
		logger:      logger,
	}
	tracker.SetBroadcaster(s.broadcaster)
	s.engine = s.setupRouter()
	return s, nil
}

func (s *Server) setupRouter() *gin.Engine {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(middleware.Recovery(s.logger))
	r.Use(middleware.Logger(s.logger))
	r.Use(middleware.Auth(middleware.DefaultAuthConfig(s.cfg.Token), s.logger))

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/status", func(c *gin.Context) {
		response.OK(c, s.tracker.Snapshot())
	})
	r.GET("/events", s.broadcaster.Stream)

	r.NoRoute(func(c *gin.Context) {
		response.NotFound(c, "route not found")
	})
	return r
}

// Handler returns the router, mainly for tests.
func (s *Server) Handler() http.Handler {
	return s.engine
}

// Broadcaster returns the event stream.
func (s *Server) Broadcaster() *sse.Broadcaster {
	return s.broadcaster
}

// Run serves until ctx is canceled and then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Addr)
	if err != nil {
		return errors.WrapResource("listen", "status server", s.cfg.Addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve is Run on an existing listener.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	bctx, stopBroadcaster := context.WithCancel(ctx)
	defer stopBroadcaster()
	go s.broadcaster.Run(bctx)

	srv := &http.Server{
		Handler:           s.engine,
		ReadHeaderTimeout: s.cfg.ReadTimeout,
		IdleTimeout:       s.cfg.IdleTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		errCh <- srv.Serve(ln)
	}()
	s.logger.Info().Str("addr", ln.Addr().String()).Msg("Status server listening")

	select {
	case err := <-errCh:
		if stderrors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return err
	case <-ctx.Done():
	}

	// SSE streams end when the broadcaster closes its clients.
	stopBroadcaster()
	shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), constants.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		s.logger.Warn().Err(err).Msg("Status server shutdown incomplete")
		return err
	}
	s.logger.Info().Msg("Status server stopped")
	return nil
}
