package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	apihttp "github.com/GriffinCanCode/vibeterm/internal/api/http"
	"github.com/GriffinCanCode/vibeterm/internal/api/middleware"
	"github.com/GriffinCanCode/vibeterm/internal/api/ws"
	"github.com/GriffinCanCode/vibeterm/internal/host"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/config"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/logging"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/monitoring"
	"github.com/GriffinCanCode/vibeterm/internal/infrastructure/resilience"
	"github.com/GriffinCanCode/vibeterm/internal/store"
	"github.com/GriffinCanCode/vibeterm/internal/terminal/integration"
)

// Server wraps the HTTP server and dependencies
type Server struct {
	router      *gin.Engine
	httpServer  *http.Server
	manager     *host.Manager
	store       *store.Store
	provisioner *integration.Provisioner
	logger      *logging.Logger
	config      *config.Config
	metrics     *monitoring.Metrics
}

// Option configures NewServer.
type Option func(*Server)

// WithLogger replaces the logger built from the logging config.
func WithLogger(logger *logging.Logger) Option {
	return func(s *Server) { s.logger = logger }
}

// NewServer creates a new server instance
func NewServer(cfg *config.Config, opts ...Option) (*Server, error) {
	s := &Server{config: cfg}
	for _, opt := range opts {
		opt(s)
	}

	if s.logger == nil {
		logger, err := logging.New(logging.Config{Level: cfg.Logging.Level, Development: cfg.Logging.Development})
		if err != nil {
			return nil, fmt.Errorf("failed to create logger: %w", err)
		}
		s.logger = logger
	}
	logger := s.logger

	logger.Info("Initializing vibeterm server",
		zap.String("addr", cfg.Addr()),
		zap.Bool("store", cfg.Store.Enabled),
	)

	// Initialize metrics first (needed by other components)
	s.metrics = monitoring.NewMetrics()

	provisioner, err := newProvisioner(cfg.Integration, logger.Named("integration"))
	if err != nil {
		return nil, err
	}
	s.provisioner = provisioner

	if cfg.Store.Enabled {
		path := cfg.Store.Path
		if path == "" {
			if path, err = store.DefaultPath(); err != nil {
				return nil, err
			}
		}
		st, err := store.Open(context.Background(), path, logger.Named("store"))
		if err != nil {
			return nil, fmt.Errorf("failed to open session store: %w", err)
		}
		s.store = st
	}

	hostOpts := []host.Option{
		host.WithMetrics(s.metrics),
		host.WithLogger(logger.Named("host")),
	}
	if s.store != nil {
		breaker := newStoreBreaker(logger.Named("store"))
		hostOpts = append(hostOpts, host.WithStore(host.GuardStore(s.store, breaker)))
	}
	s.manager = host.NewManager(host.Config{
		PollInterval:    time.Duration(cfg.Host.PollIntervalMS) * time.Millisecond,
		ScrollbackBytes: cfg.Host.ScrollbackBytes,
		MaxSessions:     cfg.Host.MaxSessions,
		RecordOutput:    cfg.Host.RecordOutput,
		Shell:           cfg.Terminal.Shell,
		WorkingDir:      cfg.Terminal.WorkingDir,
		Cols:            cfg.Terminal.Cols,
		Rows:            cfg.Terminal.Rows,
		MaxMarkerBytes:  cfg.Terminal.MaxMarkerBytes,
	}, provisioner, hostOpts...)

	s.router = s.newRouter()
	s.httpServer = &http.Server{
		Addr:              cfg.Addr(),
		Handler:           s.router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	logger.Info("Server initialized successfully")
	return s, nil
}

// newStoreBreaker stops the host from hammering a failing database.
func newStoreBreaker(logger *zap.Logger) *resilience.Breaker {
	return resilience.New("store", resilience.Settings{
		Cooldown: 30 * time.Second,
		ShouldTrip: func(counts resilience.Counts) bool {
			return counts.ConsecutiveFailures >= 5
		},
		OnStateChange: func(name string, from, to resilience.State) {
			logger.Warn("Circuit breaker state changed",
				zap.String("breaker", name),
				zap.Stringer("from", from),
				zap.Stringer("to", to),
			)
		},
	})
}

func newProvisioner(cfg config.IntegrationConfig, logger *zap.Logger) (*integration.Provisioner, error) {
	def, err := integration.DefaultConfig()
	if err != nil && (cfg.Root == "" || cfg.ScriptDir == "") {
		return nil, err
	}
	if cfg.Root == "" {
		cfg.Root = def.Root
	}
	if cfg.ScriptDir == "" {
		cfg.ScriptDir = def.ScriptDir
	}

	p, err := integration.New(integration.Config{Root: cfg.Root, ScriptDir: cfg.ScriptDir}, logger)
	if err != nil {
		return nil, err
	}
	if err := p.Install(); err != nil {
		return nil, fmt.Errorf("failed to install shell integration: %w", err)
	}
	return p, nil
}

func (s *Server) newRouter() *gin.Engine {
	cfg := s.config
	if !cfg.Logging.Development {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()

	router.Use(gin.Recovery())
	router.Use(middleware.RequestID(), middleware.AccessLog(s.logger.Named("http")))
	router.Use(monitoring.Middleware(s.metrics))
	router.Use(middleware.CORS(middleware.DefaultCORSConfig(cfg.Server.AllowedOrigins...)))
	if cfg.RateLimit.Enabled {
		s.logger.Info("Rate limiting enabled",
			zap.Int("rps", cfg.RateLimit.RequestsPerSecond),
			zap.Int("burst", cfg.RateLimit.Burst),
		)
		router.Use(middleware.RateLimit(middleware.RateLimitConfig{
			RequestsPerSecond: cfg.RateLimit.RequestsPerSecond,
			Burst:             cfg.RateLimit.Burst,
		}))
	}

	var history apihttp.History
	if s.store != nil {
		history = s.store
	}
	apihttp.NewHandlers(s.manager, history, s.metrics, s.logger.Named("api")).Register(router)
	ws.NewHandler(s.manager, s.metrics, s.logger.Named("ws"), cfg.Server.AllowedOrigins...).Register(router)

	router.GET("/metrics", gin.WrapH(s.metrics.Handler()))
	router.GET("/metrics/json", func(c *gin.Context) {
		c.JSON(http.StatusOK, s.metrics.Snapshot())
	})

	return router
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.router
}

// Manager returns the session host.
func (s *Server) Manager() *host.Manager {
	return s.manager
}

// Run serves HTTP until Shutdown is called.
func (s *Server) Run() error {
	s.logger.Info("Starting HTTP server", zap.String("addr", s.httpServer.Addr))
	if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return err
	}
	return nil
}

// Shutdown stops accepting requests, ends every session and closes the
// store. Sessions are ended even if ctx expires first.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down server...")

	var errs []error
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.logger.Error("HTTP shutdown did not complete", zap.Error(err))
		errs = append(errs, err)
	}
	if err := s.manager.Shutdown(ctx); err != nil {
		s.logger.Error("Session shutdown did not complete", zap.Error(err))
		errs = append(errs, err)
	}
	if s.store != nil {
		if err := s.store.Close(); err != nil {
			s.logger.Error("Failed to close session store", zap.Error(err))
			errs = append(errs, err)
		}
	}

	_ = s.logger.Sync()
	return errors.Join(errs...)
}
