package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"runtime/debug"
	"sync/atomic"
	"syscall"

	"golang.org/x/sync/errgroup"

	"walletcache/internal/api"
	"walletcache/internal/configwatch"
	"walletcache/internal/logging"
	"walletcache/internal/monitor"
	"walletcache/internal/session"
	"walletcache/pkg/config"
)

var (
	configPath = flag.String("config", "configs/walletcache.yaml", "Path to configuration file")
	sessionID  = flag.String("session-id", "", "Session identifier")
	port       = flag.Int("port", 0, "HTTP API port (overrides config)")
)

// exitRestart tells the supervisor the process asked to be restarted
const exitRestart = 3

func main() {
	flag.Parse()
	os.Exit(run())
}

func run() int {
	// Load configuration
	cfg, err := config.Load(*configPath)
	if err != nil {
		// Early error before logging is initialized
		fmt.Fprintf(os.Stderr, "FATAL: Failed to load configuration: %v\n", err)
		return 1
	}

	// Override with command line flags
	if *sessionID != "" {
		cfg.Session.ID = *sessionID
	}
	if *port != 0 {
		cfg.HTTP.Port = *port
	}
	if err := cfg.Validate(); err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Invalid configuration: %v\n", err)
		return 1
	}

	// Initialize structured logging system
	logger, err := logging.InitializeFromConfig(cfg.Session.ID, cfg.ToLogConfig())
	if err != nil {
		fmt.Fprintf(os.Stderr, "FATAL: Failed to initialize logging: %v\n", err)
		return 1
	}
	defer logger.Close()

	ctx := logging.WithCorrelationID(context.Background(), logging.NewCorrelationID())
	logger.Info(ctx, logging.ComponentMain, logging.ActionStart, "Wallet cache starting", logging.Fields{
		"session_id":  cfg.Session.ID,
		"config_file": *configPath,
		"from_file":   cfg.Path != "",
	})

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	var restartRequested atomic.Bool
	sessionConfig, err := cfg.ToSessionConfig()
	if err != nil {
		logger.Error(ctx, logging.ComponentMain, logging.ActionStart, "Invalid session configuration", err)
		return 1
	}
	sess, err := session.New(sessionConfig, session.Options{
		Logger:       logger,
		Provider:     monitor.RuntimeProvider{},
		ForceReclaim: debug.FreeOSMemory,
		ForceRestart: func(ctx context.Context, reason string) {
			restartRequested.Store(true)
			logger.Error(ctx, logging.ComponentMain, logging.ActionRestart, "Shutting down for supervisor restart", nil, logging.Fields{"reason": reason})
			cancel()
		},
	})
	if err != nil {
		logger.Error(ctx, logging.ComponentMain, logging.ActionStart, "Failed to create session", err)
		return 1
	}

	if err := sess.Init(ctx); err != nil {
		logger.Error(ctx, logging.ComponentMain, logging.ActionStart, "Failed to initialize session", err)
		return 1
	}
	defer sess.Destroy()

	server := api.NewServer(sess, logger)
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return server.Run(gctx, api.ServerConfig{
			Addr:            cfg.Addr(),
			ReadTimeout:     cfg.HTTP.ReadTimeout,
			WriteTimeout:    cfg.HTTP.WriteTimeout,
			ShutdownTimeout: cfg.HTTP.ShutdownTimeout,
		})
	})

	if cfg.Path != "" {
		watcher, err := configwatch.New(cfg.Path, func(ctx context.Context, updated *config.Config) error {
			monitorConfig, err := updated.ToMonitorConfig()
			if err != nil {
				return err
			}
			return sess.Monitor().UpdateThresholds(monitorConfig)
		}, logger)
		if err != nil {
			logger.Warn(ctx, logging.ComponentMain, logging.ActionStart, "Config hot reload disabled", logging.Fields{"error": err.Error()})
		} else {
			g.Go(func() error {
				if err := watcher.Run(gctx); err != nil && !errors.Is(err, configwatch.ErrFileRemoved) {
					return err
				}
				// losing the config file only disables hot reload
				return nil
			})
		}
	}

	err = g.Wait()
	if err != nil {
		logger.Error(ctx, logging.ComponentMain, logging.ActionStop, "Wallet cache stopped with error", err)
	}
	logger.Info(context.Background(), logging.ComponentMain, logging.ActionStop, "Wallet cache stopped", logging.Fields{
		"restart_requested": restartRequested.Load(),
	})

	switch {
	case restartRequested.Load():
		return exitRestart
	case err != nil:
		return 1
	default:
		return 0
	}
}
