package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/miniapp-host/internal/api/http"
	"github.com/GriffinCanCode/miniapp-host/internal/api/middleware"
	"github.com/GriffinCanCode/miniapp-host/internal/api/ws"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/miniapp-host/internal/infrastructure/tracing"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router *gin.Engine
	rt     *Runtime
	logger *zap.Logger
}

// NewServer builds the router over rt.
func NewServer(rt *Runtime) *Server {
	cfg := rt.Config
	logger := rt.Logger.Named("server")

	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(tracing.HTTPMiddleware(rt.Tracer))
	router.Use(monitoring.Middleware(rt.Metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		rl := middleware.DefaultRateLimitConfig()
		rl.RequestsPerSecond = cfg.RateLimit.RequestsPerSecond
		rl.Burst = cfg.RateLimit.Burst
		router.Use(middleware.RateLimit(rl))
	}

	var installer apihttp.Installer
	if rt.Installer != nil {
		installer = rt.Installer
	}
	handlers := apihttp.NewHandlers(rt.Router, installer, rt.Permissions, rt.Manifests, rt.Assets, rt.Logger.Logger)
	if rt.Platform != nil {
		handlers.SetUpstream(rt.Platform.Breaker().Snapshot)
	}
	handlers.Register(router)

	deps := ws.Deps{
		Host:           rt.Host,
		Permissions:    rt.Permissions,
		Manifests:      rt.Manifests,
		Devices:        rt.Device,
		Router:         rt.Router,
		Metrics:        rt.Metrics,
		AllowedOrigins: cfg.Server.AllowedOrigins,
	}
	if rt.Ads != nil {
		deps.Ads = rt.Ads
	}
	wsHandler := ws.NewHandler(deps, rt.Logger.Logger)
	router.GET("/stream/:appId", wsHandler.HandleConnection)

	router.GET("/metrics", gin.WrapH(rt.Metrics.Handler()))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, rt.Metrics.Snapshot())
	})

	logger.Info("Server initialized")
	return &Server{router: router, rt: rt, logger: logger}
}

// Handler returns the HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return net.JoinHostPort(s.rt.Config.Server.Host, s.rt.Config.Server.Port)
}

// Run serves until ctx is cancelled, then shuts down gracefully.
func (s *Server) Run(ctx context.Context) error {
	srv := &http.Server{
		Addr:              s.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("Starting HTTP server", zap.String("addr", srv.Addr))
		errCh <- srv.ListenAndServe()
	}()

	select {
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
	}

	s.logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down: %w", err)
	}
	return nil
}
