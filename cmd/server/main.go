package main

import (
	"context"
	"flag"
	"fmt"
	"net"
	"os"
	"os/signal"
	"syscall"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/health"
	"google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/grpc/reflection"

	"github.com/dasmlab/ponte/pkg/config"
	"github.com/dasmlab/ponte/pkg/server"
	"github.com/dasmlab/ponte/pkg/service"
	"github.com/dasmlab/ponte/pkg/translate"
	"github.com/sirupsen/logrus"
)

var (
	configPath = flag.String("config", "", "Path to config file (default: $PONTE_CONFIG, ./config.yaml, /etc/ponte/config.yaml)")
	logLevel   = flag.String("log-level", "", "Log level override: debug, info, warn, error")
)

func main() {
	flag.Parse()

	logger := logrus.New()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: time.RFC3339,
	})

	cfg, err := config.Load(*configPath)
	if err != nil {
		logger.WithError(err).Fatal("Failed to load configuration")
	}
	if *logLevel != "" {
		cfg.Logging.Level = *logLevel
	}
	configureLogger(logger, cfg.Logging)

	logger.WithFields(logrus.Fields{
		"http_port":    cfg.Server.HTTPPort,
		"grpc_port":    cfg.Server.GRPCPort,
		"engine":       cfg.Models.Engine,
		"models_path":  cfg.Models.Path,
		"queue_size":   cfg.Models.QueueSize,
		"backpressure": cfg.Models.Backpressure,
	}).Info("Starting ponte translation server")

	engine, err := translate.ParseEngineType(cfg.Models.Engine)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse translation engine type")
	}
	backpressure, err := translate.ParseBackpressure(cfg.Models.Backpressure)
	if err != nil {
		logger.WithError(err).Fatal("Failed to parse backpressure policy")
	}

	loader, err := translate.NewLoader(translate.Config{
		Engine:         engine,
		BaseURL:        cfg.Models.LibreTranslateURL,
		WorkerCommand:  cfg.Models.WorkerCommand,
		WorkerEnv:      cfg.Models.WorkerEnv,
		RequestTimeout: cfg.Models.RequestTimeout,
		Logger:         logger,
	})
	if err != nil {
		logger.WithError(err).Fatal("Failed to create model loader")
	}

	translationService := service.NewTranslationService(service.Config{
		ModelsPath:   cfg.Models.Path,
		QueueSize:    cfg.Models.QueueSize,
		Backpressure: backpressure,
		Loader:       loader,
		Logger:       logger,
	})

	jobQueue := service.NewJobQueue(logger)
	jobQueue.SetProcessor(service.NewJobProcessor(translationService, cfg.Jobs.ChunkSize, cfg.Jobs.Timeout, logger))

	httpServer := server.NewHTTPServer(translationService, jobQueue, logger, server.HTTPConfig{
		Port:         cfg.Server.HTTPPort,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	})

	// Configure server-side keepalive enforcement
	grpcServer := grpc.NewServer(
		grpc.KeepaliveEnforcementPolicy(keepalive.EnforcementPolicy{
			MinTime:             15 * time.Second,
			PermitWithoutStream: true,
		}),
		grpc.KeepaliveParams(keepalive.ServerParameters{
			MaxConnectionIdle:     5 * time.Minute,
			MaxConnectionAge:      30 * time.Minute,
			MaxConnectionAgeGrace: 5 * time.Second,
			Time:                  30 * time.Second,
			Timeout:               10 * time.Second,
		}),
	)

	// Health stays NOT_SERVING until both models are loaded
	healthServer := health.NewServer()
	grpc_health_v1.RegisterHealthServer(grpcServer, healthServer)
	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_NOT_SERVING)
	healthServer.SetServingStatus(service.GRPCServiceName, grpc_health_v1.HealthCheckResponse_NOT_SERVING)

	service.RegisterTranslationServer(grpcServer, service.NewGRPCServer(translationService))

	// Enable reflection for grpcurl/debugging
	reflection.Register(grpcServer)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	go waitForModels(ctx, translationService, healthServer, cfg.Models.ReadyTimeout, logger)
	go cleanupJobs(ctx, jobQueue, cfg.Jobs, logger)

	errChan := make(chan error, 2)

	go func() {
		if err := httpServer.Start(); err != nil {
			errChan <- fmt.Errorf("http server: %w", err)
		}
	}()

	if cfg.Server.GRPCPort != 0 {
		lis, err := net.Listen("tcp", fmt.Sprintf(":%d", cfg.Server.GRPCPort))
		if err != nil {
			logger.WithError(err).WithField("port", cfg.Server.GRPCPort).Fatal("Failed to listen on port")
		}
		go func() {
			logger.WithField("port", cfg.Server.GRPCPort).Info("gRPC server listening")
			if err := grpcServer.Serve(lis); err != nil {
				errChan <- fmt.Errorf("grpc server: %w", err)
			}
		}()
	}

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)

	exitCode := 0
	select {
	case err := <-errChan:
		logger.WithError(err).Error("Server error")
		exitCode = 1
	case sig := <-sigChan:
		logger.WithField("signal", sig.String()).Info("Received signal, shutting down gracefully...")
	}
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer shutdownCancel()

	healthServer.Shutdown()

	stopped := make(chan struct{})
	go func() {
		grpcServer.GracefulStop()
		close(stopped)
	}()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("HTTP server shutdown incomplete")
	}
	select {
	case <-stopped:
	case <-shutdownCtx.Done():
		logger.Warn("Graceful shutdown timeout, forcing gRPC stop...")
		grpcServer.Stop()
	}

	if err := translationService.Shutdown(shutdownCtx); err != nil {
		logger.WithError(err).Warn("Translators did not stop cleanly")
		exitCode = 1
	}

	logger.Info("Server stopped")
	os.Exit(exitCode)
}

func configureLogger(logger *logrus.Logger, cfg config.LoggingConfig) {
	if cfg.Format == "json" {
		logger.SetFormatter(&logrus.JSONFormatter{TimestampFormat: time.RFC3339})
	}
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		logger.WithError(err).Warn("Invalid log level, using info")
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
}

// waitForModels flips gRPC health to SERVING once both translators are ready.
func waitForModels(ctx context.Context, svc *service.TranslationService, healthServer *health.Server, timeout time.Duration, logger *logrus.Logger) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	start := time.Now()
	if err := svc.Ready(ctx); err != nil {
		logger.WithError(err).Error("Translation models unavailable, health stays NOT_SERVING")
		return
	}

	healthServer.SetServingStatus("", grpc_health_v1.HealthCheckResponse_SERVING)
	healthServer.SetServingStatus(service.GRPCServiceName, grpc_health_v1.HealthCheckResponse_SERVING)
	logger.WithField("duration_ms", time.Since(start).Milliseconds()).Info("Translation models ready")
}

func cleanupJobs(ctx context.Context, queue *service.JobQueue, cfg config.JobsConfig, logger *logrus.Logger) {
	ticker := time.NewTicker(cfg.CleanupInterval)
	defer ticker.Stop()

	logger.WithFields(logrus.Fields{
		"cleanup_interval": cfg.CleanupInterval.String(),
		"max_age":          cfg.MaxAge.String(),
	}).Info("Started job cleanup goroutine")

	for {
		select {
		case <-ticker.C:
			queue.CleanupOldJobs(cfg.MaxAge)
		case <-ctx.Done():
			return
		}
	}
}
