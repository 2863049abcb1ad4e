// Package server exposes the session lifecycle and dispatcher over HTTP.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/hay-kot/wasend/internal/core/config"
	"github.com/hay-kot/wasend/internal/core/session"
	"github.com/hay-kot/wasend/internal/relay"
)

const shutdownTimeout = 10 * time.Second

// Lifecycle starts and reports on the session.
type Lifecycle interface {
	State() *session.State
	EnsureReady(ctx context.Context) (session.Connection, error)
	Initialize(ctx context.Context) (bool, error)
}

// Sender delivers messages through the ready session.
type Sender interface {
	Send(ctx context.Context, address, body string) session.DispatchResult
	CheckRecipient(ctx context.Context, address string) (relay.RecipientCheck, error)
}

// Server serves the HTTP API.
type Server struct {
	cfg       *config.Config
	lifecycle Lifecycle
	sender    Sender
	journal   session.Journal
	log       zerolog.Logger
	router    *gin.Engine
}

// New builds the router. journal may be nil, in which case the events route
// reports an empty list.
func New(cfg *config.Config, lifecycle Lifecycle, sender Sender, journal session.Journal, logger zerolog.Logger) *Server {
	if !cfg.Debug && gin.Mode() == gin.DebugMode {
		gin.SetMode(gin.ReleaseMode)
	}

	s := &Server{
		cfg:       cfg,
		lifecycle: lifecycle,
		sender:    sender,
		journal:   journal,
		log:       logger,
	}

	router := gin.New()
	router.Use(s.recovery())
	router.Use(requestLogger(logger))
	router.Use(cors.New(cors.Config{
		AllowOrigins:     cfg.AllowedOrigins,
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Authorization", SecretKeyHeader},
		ExposeHeaders:    []string{"Content-Length"},
		AllowCredentials: false,
		MaxAge:           12 * time.Hour,
	}))

	router.NoRoute(func(c *gin.Context) {
		abortError(c, http.StatusNotFound, CodeNotFound, "Route not found", gin.H{"path": c.Request.URL.Path})
	})

	api := router.Group("/api")
	{
		api.GET("/status", s.handleStatus)
		api.GET("/auth-config", s.handleAuthConfig)
		api.GET("/send-message", s.handleSendStatus)

		protected := api.Group("")
		protected.Use(s.requireSecret())
		{
			protected.GET("/init-whatsapp", s.handleInitBackground)
			protected.POST("/init-whatsapp", s.handleInitWait)
			protected.POST("/send-message", s.handleSend)
			protected.POST("/check-number", s.handleCheckNumber)
			protected.GET("/events", s.handleEvents)
		}
	}

	s.router = router
	return s
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Run serves on the configured listen address until ctx is cancelled, then
// shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.cfg.Listen)
	if err != nil {
		return fmt.Errorf("listen %s: %w", s.cfg.Listen, err)
	}
	return s.Serve(ctx, ln)
}

// Serve serves on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.log.Info().Str("addr", ln.Addr().String()).Msg("http server listening")
		errCh <- srv.Serve(ln)
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("serve http: %w", err)
	case <-ctx.Done():
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	s.log.Info().Msg("http server shutting down")
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown http: %w", err)
	}
	<-errCh
	return nil
}
