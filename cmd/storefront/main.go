package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"

	"github.com/futurebuildai/lumber-boss/internal/di"
	"github.com/futurebuildai/lumber-boss/internal/platform/config"
	"github.com/futurebuildai/lumber-boss/internal/platform/observability"
	"github.com/futurebuildai/lumber-boss/internal/platform/secrets"
	"github.com/futurebuildai/lumber-boss/internal/services"
)

func main() {
	ctx := context.Background()
	startedAt := time.Now().UTC()

	baseLogger, err := observability.NewLogger(loggerOptions())
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to initialise logger: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = baseLogger.Sync()
	}()

	logger := baseLogger.Named("storefront")
	ctx = observability.WithLogger(ctx, logger)

	fetcher, err := newSecretFetcher(ctx, logger)
	if err != nil {
		logger.Fatal("failed to initialise secret fetcher", zap.Error(err))
	}
	defer func() {
		if err := fetcher.Close(); err != nil {
			logger.Warn("secret fetcher close error", zap.Error(err))
		}
	}()

	cfg, err := config.Load(ctx, config.WithSecretResolver(config.SecretResolverFunc(fetcher.Resolve)))
	if err != nil {
		logger.Fatal("failed to load configuration", zap.Error(err))
	}

	container, err := di.NewContainer(ctx, cfg, di.Options{
		Logger:  logger,
		Build:   buildInfoFromEnv(cfg, startedAt),
		Secrets: fetcher,
	})
	if err != nil {
		logger.Fatal("failed to initialise dependencies", zap.Error(err))
	}
	container.Start()

	server := &http.Server{
		Addr:         ":" + cfg.Server.Port,
		Handler:      container.Router(),
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	shutdown := make(chan os.Signal, 1)
	signal.Notify(shutdown, syscall.SIGINT, syscall.SIGTERM)

	serverLogger := logger.Named("http").With(zap.String("addr", server.Addr))
	go func() {
		serverLogger.Info("lumber boss storefront listening")
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serverLogger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-shutdown
	logger.Info("shutdown signal received; draining requests")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown failed", zap.Error(err))
	}
	if err := container.Close(shutdownCtx); err != nil {
		logger.Warn("dependency close error", zap.Error(err))
	}
}

// loggerOptions reads logging settings before the full configuration exists so that
// configuration errors are logged with the configured sink.
func loggerOptions() observability.LoggerOptions {
	lookup := func(key string) string {
		value, _ := config.Lookup(key)
		return strings.TrimSpace(value)
	}
	lookupInt := func(key string) int {
		n, err := strconv.Atoi(lookup(key))
		if err != nil {
			return 0
		}
		return n
	}
	return observability.LoggerOptions{
		Level:      lookup("STOREFRONT_LOG_LEVEL"),
		File:       lookup("STOREFRONT_LOG_FILE"),
		MaxSizeMB:  lookupInt("STOREFRONT_LOG_MAX_SIZE_MB"),
		MaxBackups: lookupInt("STOREFRONT_LOG_MAX_BACKUPS"),
		MaxAgeDays: lookupInt("STOREFRONT_LOG_MAX_AGE_DAYS"),
	}
}

func newSecretFetcher(ctx context.Context, logger *zap.Logger) (*secrets.Fetcher, error) {
	opts := []secrets.Option{secrets.WithLogger(logger.Named("secrets"))}
	if project, ok := config.Lookup("STOREFRONT_SECRETS_PROJECT_ID"); ok && strings.TrimSpace(project) != "" {
		opts = append(opts, secrets.WithProject(strings.TrimSpace(project)))
	}
	if path, ok := config.Lookup("STOREFRONT_SECRETS_FALLBACK_FILE"); ok && strings.TrimSpace(path) != "" {
		opts = append(opts, secrets.WithFallbackFile(strings.TrimSpace(path)))
	}
	return secrets.NewFetcher(ctx, opts...)
}

func buildInfoFromEnv(cfg config.Config, started time.Time) services.BuildInfo {
	version := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_VERSION"))
	if version == "" {
		version = "dev"
	}
	commit := strings.TrimSpace(os.Getenv("STOREFRONT_BUILD_COMMIT_SHA"))
	if commit == "" {
		commit = "unknown"
	}
	environment := strings.TrimSpace(cfg.Environment)
	if environment == "" {
		environment = "local"
	}
	return services.BuildInfo{
		Version:     version,
		CommitSHA:   commit,
		Environment: environment,
		StartedAt:   started,
	}
}
