package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/floworc/floworc/internal/application/orchestrator"
	"github.com/floworc/floworc/internal/application/scheduler"
	"github.com/floworc/floworc/internal/config"
	redisevents "github.com/floworc/floworc/pkg/adapters/events/redis"
	"github.com/floworc/floworc/pkg/adapters/llm"
	"github.com/floworc/floworc/pkg/adapters/metrics/prometheus"
	redisstorage "github.com/floworc/floworc/pkg/adapters/storage/redis"
	"github.com/floworc/floworc/pkg/api/grpc"
	"github.com/floworc/floworc/pkg/api/http"
	"github.com/floworc/floworc/pkg/api/websocket"

	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

var (
	// Version is set by build flags
	Version   = "dev"
	BuildTime = "unknown"
)

func main() {
	// Load configuration
	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load config: %v\n", err)
		os.Exit(1)
	}

	// Initialize logger
	logger := initLogger(cfg.LogLevel)
	defer logger.Sync()

	logger.Info("starting floworc",
		zap.String("version", Version),
		zap.String("build_time", BuildTime))

	// Initialize Redis client
	redisClient := goredis.NewClient(&goredis.Options{
		Addr:         cfg.Redis.Addr,
		Password:     cfg.Redis.Password,
		DB:           cfg.Redis.DB,
		PoolSize:     cfg.Redis.PoolSize,
		MinIdleConns: cfg.Redis.MinIdleConns,
		MaxRetries:   cfg.Redis.MaxRetries,
		DialTimeout:  cfg.Redis.DialTimeout,
		ReadTimeout:  cfg.Redis.ReadTimeout,
		WriteTimeout: cfg.Redis.WriteTimeout,
	})

	// Test Redis connection
	ctx := context.Background()
	if err := redisClient.Ping(ctx).Err(); err != nil {
		logger.Fatal("failed to connect to Redis", zap.Error(err))
	}
	logger.Info("connected to Redis", zap.String("addr", cfg.Redis.Addr))

	// Initialize adapters
	eventBus := redisevents.NewStreamsEventBus(
		redisClient,
		"floworc-consumers",
		fmt.Sprintf("floworc-%d", os.Getpid()),
		logger,
	)

	runArchive := redisstorage.NewRunArchive(
		redisClient,
		cfg.Redis.ArchiveTTL,
		logger,
	)

	metricsCollector := prometheus.NewCollector()

	// Initialize application components
	validator := orchestrator.NewValidator()
	registry := orchestrator.NewRegistry(validator, logger)
	sched := scheduler.NewScheduler(eventBus, metricsCollector, logger)

	manager := orchestrator.NewManager(
		registry,
		sched,
		runArchive,
		eventBus,
		metricsCollector,
		logger,
		cfg.Scheduler.MaxNestingDepth,
		cfg.Scheduler.GraphRepeatLimit,
		cfg.Scheduler.ConcurrencyLimit,
		cfg.Timeouts.NodeExecutionTimeout,
	)

	monitorCtx, stopMonitor := context.WithCancel(ctx)
	defer stopMonitor()

	monitor := orchestrator.NewHealthMonitor(
		manager,
		logger,
		cfg.Scheduler.HealthCheckInterval,
		cfg.Scheduler.StallThreshold,
	)
	monitor.Start(monitorCtx)

	// Register built-in graphs. The LLM summary pipeline is only available
	// when an API key is configured.
	if cfg.LLM.APIKey != "" {
		llmClient, err := llm.NewClient(&llm.Config{
			Provider: cfg.LLM.Provider,
			APIKey:   cfg.LLM.APIKey,
			Logger:   logger,
		})
		if err != nil {
			logger.Fatal("failed to create LLM client", zap.Error(err))
		}

		if err := registerSummaryGraph(registry, llmClient, cfg); err != nil {
			logger.Fatal("failed to register summary graph", zap.Error(err))
		}
		logger.Info("LLM summary graph registered",
			zap.String("provider", cfg.LLM.Provider),
			zap.String("model", cfg.LLM.DefaultModel))
	}

	// Initialize API servers
	httpServer := http.NewServer(&http.Config{
		Port:    cfg.HTTPPort,
		Manager: manager,
		Logger:  logger,
	})

	// Add WebSocket handler to HTTP server
	wsHandler := websocket.NewHandler(eventBus, logger)
	httpServer.SetupWebSocket(wsHandler)

	grpcServer, err := grpc.NewServer(&grpc.Config{
		Port:    cfg.GRPCPort,
		Manager: manager,
		Logger:  logger,
	})
	if err != nil {
		logger.Fatal("failed to create gRPC server", zap.Error(err))
	}

	// Start servers
	go func() {
		if err := httpServer.Start(); err != nil {
			logger.Fatal("HTTP server failed", zap.Error(err))
		}
	}()

	go func() {
		if err := grpcServer.Start(); err != nil {
			logger.Fatal("gRPC server failed", zap.Error(err))
		}
	}()

	logger.Info("floworc started",
		zap.Int("http_port", cfg.HTTPPort),
		zap.Int("grpc_port", cfg.GRPCPort),
		zap.Int("max_nesting_depth", cfg.Scheduler.MaxNestingDepth))

	// Wait for interrupt signal
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, os.Interrupt, syscall.SIGTERM)
	<-sigCh

	logger.Info("received shutdown signal")

	// Graceful shutdown
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Timeouts.ShutdownTimeout)
	defer cancel()

	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("HTTP server shutdown error", zap.Error(err))
	}

	if err := grpcServer.Shutdown(shutdownCtx); err != nil {
		logger.Error("gRPC server shutdown error", zap.Error(err))
	}

	monitor.Stop()

	if err := manager.Shutdown(shutdownCtx); err != nil {
		logger.Error("orchestrator shutdown error", zap.Error(err))
	}

	if err := eventBus.Close(); err != nil {
		logger.Error("event bus close error", zap.Error(err))
	}

	if err := redisClient.Close(); err != nil {
		logger.Error("Redis close error", zap.Error(err))
	}

	logger.Info("floworc shut down complete")
}

// initLogger initializes the logger based on log level
func initLogger(level string) *zap.Logger {
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

	config := zap.NewProductionConfig()
	config.Level = zap.NewAtomicLevelAt(zapLevel)
	config.EncoderConfig.EncodeTime = zapcore.ISO8601TimeEncoder

	logger, err := config.Build()
	if err != nil {
		panic(fmt.Sprintf("failed to initialize logger: %v", err))
	}

	return logger
}
