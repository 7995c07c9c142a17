// Package main provides the entry point for the access management server.
package main

import (
	"context"
	"database/sql"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	_ "github.com/lib/pq"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/altinn-access/go-core/internal/api/rest"
	"github.com/altinn-access/go-core/internal/blob"
	"github.com/altinn-access/go-core/internal/clients"
	"github.com/altinn-access/go-core/internal/config"
	"github.com/altinn-access/go-core/internal/events"
	"github.com/altinn-access/go-core/internal/metrics"
	"github.com/altinn-access/go-core/internal/pap"
	"github.com/altinn-access/go-core/internal/pip"
	"github.com/altinn-access/go-core/internal/prp"
	"github.com/altinn-access/go-core/internal/repository"
	"github.com/altinn-access/go-core/internal/resourceregistry"
	"github.com/altinn-access/go-core/internal/resolver"
)

var (
	// Version information (set at build time)
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

const clientTimeout = 10 * time.Second

func main() {
	var (
		configPath      = flag.String("config", "", "Path to YAML config file")
		showVersion     = flag.Bool("version", false, "Show version information")
		gracefulTimeout = flag.Duration("shutdown-timeout", 30*time.Second, "Graceful shutdown timeout")
	)
	flag.Parse()

	if *showVersion {
		fmt.Printf("accessd %s\n", Version)
		fmt.Printf("  Build Time: %s\n", BuildTime)
		fmt.Printf("  Git Commit: %s\n", GitCommit)
		os.Exit(0)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	logger, err := initLogger(cfg.Log.Level, cfg.Log.Format)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	logger.Info("Starting access management server",
		zap.String("version", Version),
		zap.Int("http_port", cfg.HTTP.Port),
	)

	m := metrics.New("accessd")

	// Delegation change ledger
	repo, closeRepo, err := initRepository(cfg.Postgres, logger)
	if err != nil {
		logger.Fatal("Failed to initialize delegation change ledger", zap.Error(err))
	}
	defer closeRepo()

	// Delegation policy blob store, optionally with redis lease
	// coordination across instances
	var store blob.PolicyStore = blob.NewMemoryStore()
	if cfg.Redis.Addr != "" {
		leaseConfig := blob.DefaultRedisLeaseConfig()
		leaseConfig.Addr = cfg.Redis.Addr
		leaseConfig.Password = cfg.Redis.Password
		leaseConfig.DB = cfg.Redis.DB

		store, err = blob.NewRedisLeasedStore(store, leaseConfig, logger)
		if err != nil {
			logger.Fatal("Failed to initialize redis lease coordination", zap.Error(err))
		}
		logger.Info("Redis lease coordination enabled", zap.String("addr", cfg.Redis.Addr))
	}

	// Authoritative app and resource policies
	authoritative := prp.NewAuthoritativeStore(cfg.Policies.Dir, logger)
	if err := authoritative.Load(); err != nil {
		logger.Fatal("Failed to load authoritative policies",
			zap.String("dir", cfg.Policies.Dir),
			zap.Error(err),
		)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if cfg.Policies.Watch {
		watcher, err := prp.NewFileWatcher(authoritative, logger)
		if err != nil {
			logger.Fatal("Failed to create policy file watcher", zap.Error(err))
		}
		if err := watcher.Watch(ctx); err != nil {
			logger.Fatal("Failed to start policy file watcher", zap.Error(err))
		}
		defer watcher.Stop()
	}

	retrieval := prp.New(authoritative, store, prp.DefaultConfig(), logger)

	queue, err := initEvents(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to initialize event sink", zap.Error(err))
	}
	defer queue.Close()

	registry := resourceregistry.NewHTTPClient(cfg.Platform.ResourceRegistryURL, clientTimeout, logger)

	administration := pap.New(repo, store, retrieval, queue, registry, m, logger)
	information := pip.New(repo, retrieval, m, logger)

	attributeResolver := resolver.DefaultGraph(
		clients.NewProfileClient(cfg.Platform.ProfileURL, clientTimeout, logger),
		clients.NewRegisterClient(cfg.Platform.RegisterURL, clientTimeout, logger),
		clients.NewSBLBridgeClient(cfg.Platform.SBLBridgeURL, clientTimeout, logger),
		registry,
		logger,
	)

	restConfig := rest.Config{
		Port:         cfg.HTTP.Port,
		ReadTimeout:  cfg.HTTP.ReadTimeout.Std(),
		WriteTimeout: cfg.HTTP.WriteTimeout.Std(),
		IdleTimeout:  cfg.HTTP.IdleTimeout.Std(),
		Version:      Version,
	}
	srv := rest.NewServer(administration, information, attributeResolver, m, restConfig, logger)

	errChan := make(chan error, 1)
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		errChan <- srv.Start()
	}()

	select {
	case err := <-errChan:
		if err != nil {
			logger.Fatal("Server error", zap.Error(err))
		}
	case sig := <-sigChan:
		logger.Info("Received shutdown signal", zap.String("signal", sig.String()))

		shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), *gracefulTimeout)
		defer shutdownCancel()

		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("Shutdown error", zap.Error(err))
		}
	}

	logger.Info("Server stopped successfully")
}

// initRepository selects the postgres ledger when a DSN is configured
// and the in-memory ledger otherwise.
func initRepository(cfg config.PostgresConfig, logger *zap.Logger) (repository.DelegationChangeRepository, func(), error) {
	if cfg.DSN == "" {
		logger.Warn("No postgres DSN configured, using in-memory delegation change ledger")
		return repository.NewInMemoryRepository(), func() {}, nil
	}

	db, err := sql.Open("postgres", cfg.DSN)
	if err != nil {
		return nil, nil, fmt.Errorf("open postgres: %w", err)
	}
	if err := db.Ping(); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("ping postgres: %w", err)
	}
	if err := repository.Migrate(db, logger); err != nil {
		db.Close()
		return nil, nil, fmt.Errorf("run migrations: %w", err)
	}

	logger.Info("Connected to postgres delegation change ledger")
	return repository.NewPostgresRepository(db), func() { db.Close() }, nil
}

// initEvents builds the configured delegation change event sink.
func initEvents(cfg config.Config, logger *zap.Logger) (events.Queue, error) {
	switch cfg.Events.Kind {
	case "redis":
		queueConfig := events.DefaultRedisQueueConfig()
		queueConfig.Addr = cfg.Redis.Addr
		queueConfig.Password = cfg.Redis.Password
		queueConfig.DB = cfg.Redis.DB
		if cfg.Events.Stream != "" {
			queueConfig.Stream = cfg.Events.Stream
		}
		return events.NewRedisQueue(queueConfig, logger)

	case "file":
		return events.NewFileJournal(cfg.Events.JournalPath, 100, 28, 3)

	case "noop", "":
		return events.NoopQueue{}, nil

	default:
		return nil, fmt.Errorf("unknown event sink kind %q", cfg.Events.Kind)
	}
}

// initLogger initializes the zap logger
func initLogger(level, format string) (*zap.Logger, error) {
	var zapLevel zapcore.Level
	switch level {
	case "debug":
		zapLevel = zapcore.DebugLevel
	case "info":
		zapLevel = zapcore.InfoLevel
	case "warn":
		zapLevel = zapcore.WarnLevel
	case "error":
		zapLevel = zapcore.ErrorLevel
	default:
		zapLevel = zapcore.InfoLevel
	}

	var zcfg zap.Config
	if format == "console" {
		zcfg = zap.NewDevelopmentConfig()
	} else {
		zcfg = zap.NewProductionConfig()
	}
	zcfg.Level = zap.NewAtomicLevelAt(zapLevel)

	return zcfg.Build()
}
