package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/jackzampolin/folio/internal/annotate"
	"github.com/jackzampolin/folio/internal/api"
	"github.com/jackzampolin/folio/internal/chapters"
	"github.com/jackzampolin/folio/internal/config"
	"github.com/jackzampolin/folio/internal/defra"
	"github.com/jackzampolin/folio/internal/home"
	"github.com/jackzampolin/folio/internal/jobs"
	"github.com/jackzampolin/folio/internal/schema"
	"github.com/jackzampolin/folio/internal/server/endpoints"
	"github.com/jackzampolin/folio/internal/store"
	"github.com/jackzampolin/folio/internal/svcctx"
)

// Server is the main Folio HTTP server.
// It manages the DefraDB container lifecycle - starting it on server start
// and stopping it on server shutdown.
type Server struct {
	httpServer   *http.Server
	defraManager *defra.DockerManager
	defraClient  *defra.Client
	sink         *defra.Sink
	pool         *jobs.CPUWorkerPool
	chapters     *chapters.Service
	configMgr    *config.Manager
	annotateCfg  config.AnnotateConfig
	home         *home.Dir
	logger       *slog.Logger
	stopPool     context.CancelFunc

	// services holds all core services for context enrichment
	services *svcctx.Services

	// endpoints registry for HTTP routes
	endpointRegistry *api.Registry

	mu      sync.RWMutex
	running bool
}

// Config holds server configuration.
type Config struct {
	// Host is the address to bind to (default: 127.0.0.1)
	Host string
	// Port is the port to listen on (default: 8080)
	Port string
	// DefraDataPath is the path to persist DefraDB data
	DefraDataPath string
	// DefraConfig holds DefraDB container settings
	DefraConfig defra.DockerConfig
	// Annotate sizes the index cache and the annotation worker pool
	Annotate config.AnnotateConfig
	// Home is the folio home directory (exports, pid file)
	Home *home.Dir
	// ConfigManager provides configuration with hot-reload support
	ConfigManager *config.Manager
	// Logger is the structured logger to use
	Logger *slog.Logger
	// LevelVar, when set, is updated from logging.level on config reload
	LevelVar *slog.LevelVar
}

// New creates a new Server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == "" {
		cfg.Port = "8080"
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}

	// Set up DefraDB data path
	if cfg.DefraDataPath != "" {
		cfg.DefraConfig.DataPath = cfg.DefraDataPath
	}

	defraManager, err := defra.NewDockerManager(cfg.DefraConfig)
	if err != nil {
		return nil, fmt.Errorf("failed to create defra manager: %w", err)
	}

	s := &Server{
		defraManager: defraManager,
		configMgr:    cfg.ConfigManager,
		annotateCfg:  cfg.Annotate,
		home:         cfg.Home,
		logger:       cfg.Logger,
	}

	// Only the log level is applied at runtime; pool and cache sizes need a restart.
	if cfg.ConfigManager != nil && cfg.LevelVar != nil {
		cfg.ConfigManager.OnChange(func(c *config.Config) {
			cfg.LevelVar.Set(config.ParseLevel(c.Logging.Level))
			cfg.Logger.Info("log level reloaded from config", "level", c.Logging.Level)
		})
	}

	// Create endpoint registry and register all endpoints
	s.endpointRegistry = api.NewRegistry()
	for _, ep := range endpoints.All(endpoints.Config{DefraManager: defraManager}) {
		s.endpointRegistry.Register(ep)
	}

	// Set up HTTP server
	mux := http.NewServeMux()
	s.endpointRegistry.RegisterRoutes(mux, s.requireInit)

	s.httpServer = &http.Server{
		Addr:         net.JoinHostPort(cfg.Host, cfg.Port),
		Handler:      s.withServices(mux),
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 2 * time.Minute,
		IdleTimeout:  120 * time.Second,
	}

	return s, nil
}

// Start starts the server and DefraDB.
// It blocks until the context is cancelled or an error occurs.
// If an existing DefraDB container exists, it validates the configuration matches.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.running {
		s.mu.Unlock()
		return errors.New("server already running")
	}
	s.running = true
	s.mu.Unlock()

	// Validate any existing container matches our config
	if err := s.defraManager.ValidateExisting(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("existing DefraDB container incompatible: %w", err)
	}

	s.logger.Info("starting DefraDB")
	if err := s.defraManager.Start(ctx); err != nil {
		s.setNotRunning()
		return fmt.Errorf("failed to start DefraDB: %w", err)
	}

	// Create client after DefraDB is up
	client := defra.NewClient(s.defraManager.URL())
	if err := client.HealthCheck(ctx); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("DefraDB health check failed: %w", err)
	}
	s.logger.Info("DefraDB is ready", "url", s.defraManager.URL())

	s.logger.Info("initializing schemas")
	if err := schema.Initialize(ctx, client, s.logger); err != nil {
		_ = s.shutdown()
		return fmt.Errorf("schema initialization failed: %w", err)
	}

	services, err := s.buildServices(ctx, client)
	if err != nil {
		_ = s.shutdown()
		return err
	}

	// Publish services last so requireInit only passes once everything is wired.
	s.mu.Lock()
	s.defraClient = client
	s.services = services
	s.mu.Unlock()

	errCh := make(chan error, 1)
	go func() {
		s.logger.Info("starting HTTP server", "addr", s.httpServer.Addr)
		if err := s.httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case <-ctx.Done():
		s.logger.Info("shutdown signal received")
	case err := <-errCh:
		if err != nil {
			_ = s.shutdown()
			return fmt.Errorf("HTTP server error: %w", err)
		}
	}

	return s.shutdown()
}

// buildServices wires the store, write sink, worker pool and chapter service.
// The pool and sink run on a context detached from ctx and are stopped by shutdown.
func (s *Server) buildServices(ctx context.Context, client *defra.Client) (*svcctx.Services, error) {
	cache, err := annotate.NewIndexCache(s.annotateCfg.CacheSize)
	if err != nil {
		return nil, fmt.Errorf("failed to create index cache: %w", err)
	}
	processor := annotate.NewProcessor(cache)

	bgCtx := context.WithoutCancel(ctx)

	s.sink = defra.NewSink(defra.SinkConfig{Client: client, Logger: s.logger})
	s.sink.Start(bgCtx)

	s.pool = jobs.NewCPUWorkerPool(jobs.CPUWorkerPoolConfig{
		Name:        "annotate",
		Logger:      s.logger,
		WorkerCount: s.annotateCfg.Workers,
		QueueSize:   s.annotateCfg.QueueSize,
	})

	st := store.New(client)
	s.chapters = chapters.New(chapters.Config{
		Store:     st,
		Writer:    s.sink,
		Pool:      s.pool,
		Processor: processor,
		Logger:    s.logger,
	})

	poolCtx, cancelPool := context.WithCancel(bgCtx)
	s.stopPool = cancelPool
	go s.pool.Start(poolCtx)

	return &svcctx.Services{
		DefraClient: client,
		DefraSink:   s.sink,
		Store:       st,
		Chapters:    s.chapters,
		Processor:   processor,
		Pool:        s.pool,
		Logger:      s.logger,
		Home:        s.home,
	}, nil
}

// shutdown stops the HTTP server, drains background annotation, then stops
// the pool, the sink and DefraDB, in that order.
func (s *Server) shutdown() error {
	s.logger.Info("shutting down server")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
		s.logger.Error("HTTP server shutdown error", "error", err)
	}

	if s.chapters != nil {
		s.chapters.Wait()
	}
	if s.stopPool != nil {
		s.stopPool()
		<-s.pool.Done()
	}
	if s.sink != nil {
		s.sink.Stop()
	}

	s.logger.Info("stopping DefraDB")
	if err := s.defraManager.Stop(shutdownCtx); err != nil {
		s.logger.Error("DefraDB stop error", "error", err)
	}

	if err := s.defraManager.Close(); err != nil {
		s.logger.Error("DefraDB manager close error", "error", err)
	}

	s.setNotRunning()
	s.logger.Info("server stopped")
	return nil
}

func (s *Server) setNotRunning() {
	s.mu.Lock()
	s.running = false
	s.mu.Unlock()
}

// IsRunning returns whether the server is currently running.
func (s *Server) IsRunning() bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.running
}

// DefraClient returns the DefraDB client.
// Returns nil if the server hasn't started yet.
func (s *Server) DefraClient() *defra.Client {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.defraClient
}

// Addr returns the server's listen address.
func (s *Server) Addr() string {
	return s.httpServer.Addr
}

// Endpoints returns the endpoint registry, used to build the CLI.
func (s *Server) Endpoints() *api.Registry {
	return s.endpointRegistry
}

func (s *Server) currentServices() *svcctx.Services {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.services
}

// withServices wraps a handler to enrich the request context with services.
func (s *Server) withServices(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()
		if services := s.currentServices(); services != nil {
			ctx = svcctx.WithServices(ctx, services)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}

// requireInit is middleware that ensures the server is fully initialized.
// Returns 503 Service Unavailable until DefraDB and the chapter service are ready.
func (s *Server) requireInit(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		services := s.currentServices()
		if services == nil || services.DefraClient == nil || services.Chapters == nil {
			w.Header().Set("Content-Type", "application/json")
			w.WriteHeader(http.StatusServiceUnavailable)
			w.Write([]byte(`{"error":"server not fully initialized"}`))
			return
		}
		next(w, r)
	}
}
