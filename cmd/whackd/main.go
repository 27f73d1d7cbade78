package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/rickgao/whack/internal/auth"
	"github.com/rickgao/whack/internal/component"
	"github.com/rickgao/whack/internal/config"
	"github.com/rickgao/whack/internal/connection"
	"github.com/rickgao/whack/internal/database"
	"github.com/rickgao/whack/internal/manager"
	"github.com/rickgao/whack/internal/metrics"
	"github.com/rickgao/whack/internal/preference"
	"github.com/rickgao/whack/internal/supervisor"
	"github.com/rickgao/whack/internal/version"
)

func main() {
	configPath := flag.String("config", "configs/whackd.yaml", "path to config file")
	flag.Parse()

	// Load configuration
	cfg, err := config.LoadAndValidate(*configPath)
	if err != nil {
		slog.Error("failed to load config", "error", err, "config", *configPath)
		os.Exit(1)
	}

	// Set up structured logging
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	logger.Info("starting whackd",
		"version", version.Version,
		"commit", version.Commit,
		"config", *configPath,
		"domain", cfg.Server.Domain,
		"port", cfg.Server.Port,
		"transport", cfg.Server.Transport,
	)

	// Create context with cancellation
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	// Handle shutdown signals
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	go func() {
		sig := <-sigCh
		logger.Info("received shutdown signal", "signal", sig)
		cancel()
	}()

	// Preference store
	prefs, db, err := openPreferences(ctx, cfg.Preferences, logger)
	if err != nil {
		logger.Error("failed to open preference store", "error", err)
		os.Exit(1)
	}
	var dbCheck pinger
	if db != nil {
		defer db.Close()
		dbCheck = db
	}

	// Metrics
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	mt := metrics.New()
	if err := mt.Register(reg); err != nil {
		logger.Error("failed to register metrics", "error", err)
		os.Exit(1)
	}

	// Component manager
	mgrCfg := manager.Config{
		Domain:           cfg.Server.Domain,
		Port:             cfg.Server.Port,
		HandshakeTimeout: cfg.Server.HandshakeTimeout,
		Connection: connection.Config{
			WriteTimeout:      cfg.Server.WriteTimeout,
			KeepAliveInterval: cfg.Server.KeepAliveInterval,
		},
	}
	mgr, err := manager.New(mgrCfg,
		manager.WithLogger(logger),
		manager.WithDialer(newDialer(cfg.Server)),
		manager.WithPreferences(prefs),
		manager.WithMetrics(mt),
	)
	if err != nil {
		logger.Error("failed to create component manager", "error", err)
		os.Exit(1)
	}

	if err := applySecrets(mgr, cfg.Secrets); err != nil {
		logger.Error("failed to load secrets", "error", err)
		os.Exit(1)
	}

	// Start health server before the handshakes so startup can be watched
	healthServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", cfg.Metrics.Port),
		Handler: createHealthHandler(mgr, dbCheck, promhttp.HandlerFor(reg, promhttp.HandlerOpts{}), cfg.Metrics.Path),
	}

	go func() {
		logger.Info("starting health server", "port", cfg.Metrics.Port)
		if err := healthServer.ListenAndServe(); err != http.ErrServerClosed {
			logger.Error("health server error", "error", err)
		}
	}()

	// Attach configured components
	kinds := make(map[string]string, len(cfg.Components))
	for _, cc := range cfg.Components {
		kinds[cc.Subdomain] = cc.Kind
		c, err := newComponent(cc.Kind)
		if err == nil {
			err = mgr.AddComponent(ctx, cc.Subdomain, c)
		}
		if err != nil {
			logger.Error("failed to add component", "subdomain", cc.Subdomain, "kind", cc.Kind, "error", err)
			shutdown(mgr, healthServer, logger)
			os.Exit(1)
		}
	}

	// Reattach components whose stream drops
	var sup *supervisor.Supervisor
	if !cfg.Supervisor.Disabled && len(kinds) > 0 {
		subdomains := make([]string, 0, len(kinds))
		for sub := range kinds {
			subdomains = append(subdomains, sub)
		}
		supCfg := supervisor.Config{
			Interval:    cfg.Supervisor.Interval,
			Concurrency: cfg.Supervisor.Concurrency,
			Timeout:     cfg.Supervisor.Timeout,
		}
		factory := func(sub string) (component.Component, error) {
			return newComponent(kinds[sub])
		}
		sup = supervisor.New(supCfg, mgr, subdomains, factory, logger)
		if err := sup.Start(ctx); err != nil {
			logger.Error("failed to start supervisor", "error", err)
			shutdown(mgr, healthServer, logger)
			os.Exit(1)
		}
	}

	logger.Info("whackd running",
		"components", mgr.Subdomains(),
		"health_url", fmt.Sprintf("http://localhost:%d/health", cfg.Metrics.Port),
	)

	// Wait for shutdown
	<-ctx.Done()

	logger.Info("shutting down...")
	if sup != nil {
		stopCtx, stopCancel := context.WithTimeout(context.Background(), 10*time.Second)
		sup.Stop(stopCtx)
		stopCancel()
	}
	shutdown(mgr, healthServer, logger)
	logger.Info("whackd stopped")
}

// shutdown detaches every component, then stops the health server.
func shutdown(mgr *manager.Manager, healthServer *http.Server, logger *slog.Logger) {
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := mgr.Shutdown(shutdownCtx); err != nil {
		logger.Warn("component manager shutdown error", "error", err)
	}

	httpCtx, httpCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer httpCancel()
	healthServer.Shutdown(httpCtx)
}

// newLogger builds the process logger from config.
func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}

	if cfg.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stdout, opts))
}

// newDialer picks the transport for the component streams.
func newDialer(cfg config.ServerConfig) connection.Dialer {
	if cfg.Transport == config.TransportWebSocket {
		return connection.WebSocketDialer{
			URL:              cfg.WebSocketURL,
			HandshakeTimeout: cfg.HandshakeTimeout,
		}
	}
	return connection.TCPDialer{
		Host:      cfg.Host,
		Timeout:   cfg.HandshakeTimeout,
		KeepAlive: 30 * time.Second,
	}
}

// applySecrets copies configured secrets into the manager. A key file
// overrides the inline default key.
func applySecrets(mgr *manager.Manager, cfg config.SecretsConfig) error {
	defaultKey := cfg.DefaultKey
	if cfg.DefaultKeyFile != "" {
		key, err := auth.LoadSecretKey(cfg.DefaultKeyFile)
		if err != nil {
			return err
		}
		defaultKey = key
	}
	if defaultKey != "" {
		mgr.SetDefaultSecretKey(defaultKey)
	}
	for subdomain, key := range cfg.Keys {
		mgr.SetSecretKey(subdomain, key)
	}
	return nil
}

// newComponent builds a component of the given kind.
func newComponent(kind string) (component.Component, error) {
	switch kind {
	case config.DefaultComponentKind:
		return component.NewEcho(), nil
	}
	return nil, fmt.Errorf("unknown component kind %q", kind)
}

// openPreferences opens the configured preference backend. The returned
// pool is nil for the memory backend.
func openPreferences(ctx context.Context, cfg config.PreferencesConfig, logger *slog.Logger) (preference.Store, *pgxpool.Pool, error) {
	if cfg.Backend != config.BackendPostgres {
		return preference.NewMemoryStore(), nil, nil
	}

	logger.Info("connecting to database",
		"host", cfg.Postgres.Host,
		"port", cfg.Postgres.Port,
		"database", cfg.Postgres.Name,
	)

	pool, err := database.Connect(ctx, cfg.Postgres)
	if err != nil {
		return nil, nil, err
	}

	store := preference.NewPostgresStore(pool)
	if err := store.EnsureSchema(ctx); err != nil {
		pool.Close()
		return nil, nil, fmt.Errorf("ensure preference schema: %w", err)
	}

	logger.Info("database connected")
	return store, pool, nil
}
