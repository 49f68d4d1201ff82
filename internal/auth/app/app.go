package app

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/aussiebroadwan/fapiauth/internal/auth/directory"
	httpapi "github.com/aussiebroadwan/fapiauth/internal/auth/http"
	"github.com/aussiebroadwan/fapiauth/internal/auth/metrics"
	"github.com/aussiebroadwan/fapiauth/internal/auth/service"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/drivers/memory"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/drivers/redis"
	"github.com/aussiebroadwan/fapiauth/internal/auth/store/drivers/sqlite"
	"github.com/aussiebroadwan/fapiauth/pkg/clockx"
	"github.com/aussiebroadwan/fapiauth/pkg/httpx"
	"github.com/aussiebroadwan/fapiauth/pkg/jwtx"
	"github.com/aussiebroadwan/fapiauth/pkg/slogx"
	"github.com/aussiebroadwan/fapiauth/pkg/worker"
)

const (
	// BuildVersion should be set at build time via ldflags.
	BuildVersion = "v0.1.0"
)

// Scopes advertised in discovery.
var DefaultScopes = []string{"openid", "profile", "accounts", "payments"}

// Application encapsulates the authorization server with all its dependencies.
type Application struct {
	cfg     Config
	logger  *slog.Logger
	clock   clockx.Clock
	metrics *metrics.Metrics

	// Core dependencies
	db         store.Store
	replay     store.ReplayCache
	replayConn io.Closer
	keyManager *jwtx.KeyManager
	directory  *directory.Directory

	// Services
	clientAuth         *service.ClientAuthenticator
	parService         *service.PARService
	authorizeService   *service.AuthorizeService
	tokenService       *service.TokenService
	accessValidator    *service.AccessTokenValidator
	keyRotationService *service.KeyRotationService
	housekeeping       *service.HousekeepingService
	workers            worker.Group
	stopWorkers        context.CancelFunc

	// HTTP server
	server *http.Server
	router *httpapi.Router
}

// New creates an Application with every dependency initialized.
func New(cfg Config) (*Application, error) {
	return newApplication(context.Background(), cfg, clockx.Real(), slogx.New(slogx.Config{
		Service: "fapiauth",
		Version: BuildVersion,
		Env:     cfg.Env,
		Level:   cfg.LogLevel,
		Format:  cfg.LogFormat,
		NoColor: cfg.LogNoColor,
	}))
}

func newApplication(ctx context.Context, cfg Config, clock clockx.Clock, logger *slog.Logger) (*Application, error) {
	app := &Application{
		cfg:     cfg,
		logger:  logger,
		clock:   clock,
		metrics: metrics.New(),
	}

	httpx.LoadRateLimitsFromEnv()

	if err := app.initDatabase(); err != nil {
		return nil, err
	}
	if err := app.initReplayCache(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}

	// Signing keys come after the database so persistent mode can restore them.
	keyManager, err := InitAuthKeys(ctx, app.cfg, app.db, app.clock, app.logger)
	if err != nil {
		_ = app.closeStores()
		return nil, fmt.Errorf("failed to initialize signing keys: %w", err)
	}
	app.keyManager = keyManager
	app.metrics.ObservePublishedKeys(func() int { return len(keyManager.JWKS().Keys) })

	if err := app.initDirectory(ctx); err != nil {
		_ = app.closeStores()
		return nil, err
	}

	app.initServices()
	app.initHTTP()

	return app, nil
}

// Handler exposes the routed HTTP handler.
func (app *Application) Handler() http.Handler { return app.router }

// Run starts the server and background workers and blocks until shutdown is
// requested.
func (app *Application) Run() error {
	app.startWorkers()

	app.logger.Info("authorization server starting",
		"port", app.cfg.Port,
		"issuer", app.cfg.Issuer,
		"tls", app.cfg.TLSEnabled(),
		"store", app.cfg.StoreDriver,
		"replay_cache", app.cfg.ReplayCache,
	)

	serverErrors := make(chan error, 1)
	go func() {
		if app.cfg.TLSEnabled() {
			serverErrors <- app.server.ListenAndServeTLS(app.cfg.TLSCertFile, app.cfg.TLSKeyFile)
			return
		}
		serverErrors <- app.server.ListenAndServe()
	}()

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, os.Interrupt, syscall.SIGTERM)

	select {
	case err := <-serverErrors:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			_ = app.Shutdown()
			return fmt.Errorf("server failed: %w", err)
		}
	case sig := <-shutdown:
		app.logger.Info("shutdown signal received", "signal", sig)

		if err := app.Shutdown(); err != nil {
			return fmt.Errorf("graceful shutdown failed: %w", err)
		}
	}

	return nil
}

// Shutdown drains in-flight requests, stops the workers and closes the
// stores.
func (app *Application) Shutdown() error {
	app.logger.Info("shutting down authorization server...")

	ctx, cancel := context.WithTimeout(context.Background(), app.cfg.ShutdownGracePeriod)
	defer cancel()

	if err := app.server.Shutdown(ctx); err != nil {
		app.logger.Error("graceful server shutdown failed", "error", err)
		if err := app.server.Close(); err != nil {
			app.logger.Error("error closing server", "error", err)
		}
	}

	app.stopBackground()

	if err := app.closeStores(); err != nil {
		return err
	}

	app.logger.Info("authorization server stopped")
	return nil
}

func (app *Application) startWorkers() {
	ctx, cancel := context.WithCancel(context.Background())
	ctx = slogx.WithContext(ctx, app.logger)
	app.stopWorkers = cancel
	app.workers.Start(ctx)
}

func (app *Application) stopBackground() {
	if app.stopWorkers != nil {
		app.stopWorkers()
	}
	app.workers.Stop()
}

func (app *Application) closeStores() error {
	var errs []error
	if app.replayConn != nil {
		if err := app.replayConn.Close(); err != nil {
			app.logger.Error("error closing replay cache", "error", err)
			errs = append(errs, err)
		}
	}
	if app.db != nil {
		if err := app.db.Close(); err != nil {
			app.logger.Error("error closing database", "error", err)
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// initDatabase opens the configured store and applies migrations.
func (app *Application) initDatabase() error {
	switch app.cfg.StoreDriver {
	case StoreSQLite:
		dsn := fmt.Sprintf("file:%s?_busy_timeout=5000&_journal_mode=WAL", app.cfg.DBPath)
		db, err := sqlite.NewStore(dsn)
		if err != nil {
			return fmt.Errorf("failed to initialize database: %w", err)
		}
		app.db = db
	default:
		app.db = memory.NewStore()
	}

	if err := app.db.ApplyMigrations(); err != nil {
		_ = app.db.Close()
		app.db = nil
		return fmt.Errorf("failed to apply database migrations: %w", err)
	}

	app.logger.Info("store ready", "driver", app.cfg.StoreDriver)
	return nil
}

func (app *Application) initReplayCache(ctx context.Context) error {
	if app.cfg.ReplayCache != ReplayRedis {
		app.replay = memory.NewReplayCache(app.clock)
		return nil
	}

	dialCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	rdb, err := redis.Dial(dialCtx, app.cfg.RedisURL)
	if err != nil {
		return fmt.Errorf("failed to connect replay cache: %w", err)
	}
	app.replay = redis.NewReplayCache(rdb, app.clock)
	app.replayConn = rdb
	app.logger.Info("replay cache ready", "driver", ReplayRedis)
	return nil
}

// initDirectory loads the client file, when configured, into the store.
func (app *Application) initDirectory(ctx context.Context) error {
	app.directory = directory.New(app.db.Clients())
	if app.cfg.ClientsFile == "" {
		app.logger.Warn("no AUTH_CLIENTS_FILE configured; serving clients already in the store")
		return nil
	}

	clients, err := directory.LoadFile(app.cfg.ClientsFile, app.cfg.TrustedCertsDir, app.clock.Now())
	if err != nil {
		return fmt.Errorf("failed to load client directory: %w", err)
	}
	if err := app.directory.Sync(ctx, clients); err != nil {
		return fmt.Errorf("failed to sync client directory: %w", err)
	}
	app.logger.Info("client directory loaded", "file", app.cfg.ClientsFile, "clients", len(clients))
	return nil
}

// initServices wires the protocol services.
func (app *Application) initServices() {
	dpop := &service.DPoPVerifier{
		Replay: app.replay,
		Clock:  app.clock,
		Issuer: app.cfg.Issuer,
	}

	app.clientAuth = &service.ClientAuthenticator{
		Directory: app.directory,
		Replay:    app.replay,
		Clock:     app.clock,
		Metrics:   app.metrics,
		Audience:  app.cfg.Issuer + service.TokenPath,
	}
	app.parService = &service.PARService{
		Store:   app.db,
		Clock:   app.clock,
		Metrics: app.metrics,
	}
	app.authorizeService = &service.AuthorizeService{
		Store:     app.db,
		Directory: app.directory,
		PAR:       app.parService,
		Clock:     app.clock,
		Issuer:    app.cfg.Issuer,
	}
	app.tokenService = &service.TokenService{
		Store:   app.db,
		Keys:    app.keyManager,
		DPoP:    dpop,
		Clock:   app.clock,
		Metrics: app.metrics,
		Issuer:  app.cfg.Issuer,
	}
	app.accessValidator = &service.AccessTokenValidator{
		Store:    app.db,
		Verifier: jwtx.NewVerifier(app.keyManager, app.cfg.Issuer, app.clock),
		DPoP:     dpop,
		Clock:    app.clock,
	}
	app.keyRotationService = &service.KeyRotationService{
		Keys:     app.keyManager,
		Clock:    app.clock,
		Metrics:  app.metrics,
		Interval: app.cfg.KeyRotationInterval,
	}

	app.housekeeping = &service.HousekeepingService{
		Store:     app.db,
		Replay:    app.replay,
		Rotation:  app.keyRotationService,
		Clock:     app.clock,
		Metrics:   app.metrics,
		Logger:    app.logger,
		Interval:  app.cfg.HousekeepingInterval,
		BatchSize: app.cfg.HousekeepingBatchSize,
	}
	app.workers = app.housekeeping.Workers()
}

// initHTTP builds the router and server.
func (app *Application) initHTTP() {
	router := httpapi.NewRouter(httpapi.Config{
		Issuer:        app.cfg.Issuer,
		Algorithm:     app.keyManager.Algorithm(),
		BuildVersion:  BuildVersion,
		Scopes:        DefaultScopes,
		OperatorToken: app.cfg.OperatorToken,
		SubjectHeader: app.cfg.SubjectHeader,
		CertHeader:    app.cfg.MTLSCertHeader,
	}, app.db, app.keyManager, app.metrics, app.logger)

	router.ClientAuthenticator = app.clientAuth
	router.PARService = app.parService
	router.AuthorizeService = app.authorizeService
	router.TokenService = app.tokenService
	router.AccessValidator = app.accessValidator
	router.KeyRotationService = app.keyRotationService
	router.ApplyRoutes()

	app.router = router

	app.server = &http.Server{
		Addr:              fmt.Sprintf(":%d", app.cfg.Port),
		Handler:           router,
		ReadHeaderTimeout: 3 * time.Second,
		ErrorLog:          slog.NewLogLogger(app.logger.Handler(), slog.LevelWarn),
	}
	if app.cfg.TLSEnabled() {
		// Client certificates are requested but verified against the
		// client directory, not a CA pool.
		app.server.TLSConfig = &tls.Config{
			MinVersion: tls.VersionTLS12,
			ClientAuth: tls.RequestClientCert,
		}
	}
	if app.cfg.OperatorToken == "" {
		app.logger.Warn("no AUTH_OPERATOR_TOKEN configured; /keys endpoints will reject every request")
	}
}
