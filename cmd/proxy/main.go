package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/pflag"
	"go.uber.org/zap"

	"github.com/SkynetNext/mc-proxy/internal/config"
	"github.com/SkynetNext/mc-proxy/internal/logger"
	"github.com/SkynetNext/mc-proxy/internal/proxy"
	"github.com/SkynetNext/mc-proxy/internal/tracing"
)

var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

const defaultConfigPath = "config/config.yaml"

func main() {
	flags := pflag.NewFlagSet("mc-proxy", pflag.ExitOnError)
	configPath := flags.StringP("config", "c", defaultConfigPath, "configuration file path")
	logLevel := flags.String("log-level", envOr("LOG_LEVEL", "info"), "log level (debug, info, warn, error)")
	logFormat := flags.String("log-format", envOr("LOG_FORMAT", "json"), "log format (json or console)")
	showVersion := flags.Bool("version", false, "print version and exit")
	_ = flags.Parse(os.Args[1:])

	if *showVersion {
		fmt.Printf("mc-proxy %s (%s, %s)\n", version, gitCommit, buildTime)
		return
	}

	if err := logger.Init(*logLevel, *logFormat); err != nil {
		log.Fatalf("Failed to initialize logger: %v", err)
	}
	defer logger.Sync()

	// Load configuration; the default path is optional
	cfg, err := config.Load(*configPath)
	switch {
	case errors.Is(err, fs.ErrNotExist) && !flags.Changed("config"):
		logger.L.Info("No configuration file, using defaults", zap.String("path", *configPath))
		cfg = config.Default()
	case err != nil:
		logger.L.Fatal("Failed to load configuration", zap.Error(err))
	}

	// Initialize tracing (optional, if a Jaeger endpoint is configured)
	jaegerEndpoint := envOr("JAEGER_ENDPOINT", cfg.Tracing.JaegerEndpoint)
	if jaegerEndpoint != "" {
		if err := tracing.Init("mc-proxy", version, jaegerEndpoint); err != nil {
			logger.L.Warn("Failed to initialize tracing", zap.Error(err))
		} else {
			logger.L.Info("Tracing initialized", zap.String("endpoint", jaegerEndpoint))
		}
	}

	p, err := proxy.New(cfg)
	if err != nil {
		logger.L.Fatal("Failed to create proxy", zap.Error(err))
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := p.Start(ctx); err != nil {
		logger.L.Fatal("Failed to start proxy", zap.Error(err))
	}

	if _, err := os.Stat(*configPath); err == nil {
		watcher := config.NewWatcher(*configPath, cfg, p.UpdateConfig)
		go func() {
			if err := watcher.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.L.Warn("Config watcher stopped", zap.Error(err))
			}
		}()
	}

	logger.L.Info("Proxy started successfully",
		zap.String("version", version),
		zap.String("build_time", buildTime),
		zap.String("git_commit", gitCommit),
		zap.String("protocol", cfg.Protocol.VersionName),
	)

	// Wait for interrupt signal
	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
	<-sigChan

	logger.L.Info("Received stop signal, starting graceful shutdown...")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), cfg.GracefulShutdownTimeout)
	defer shutdownCancel()

	if err := p.Shutdown(shutdownCtx); err != nil {
		logger.L.Error("Error during proxy shutdown", zap.Error(err))
	}

	if err := tracing.Shutdown(shutdownCtx); err != nil {
		logger.L.Warn("Error during tracing shutdown", zap.Error(err))
	}

	logger.L.Info("Proxy closed")
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
