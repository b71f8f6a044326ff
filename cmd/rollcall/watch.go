package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/cobra"

	"github.com/goodtune/rollcall/internal/api"
	"github.com/goodtune/rollcall/internal/clock"
	"github.com/goodtune/rollcall/internal/config"
	"github.com/goodtune/rollcall/internal/consent"
	"github.com/goodtune/rollcall/internal/metrics"
	"github.com/goodtune/rollcall/internal/names"
	"github.com/goodtune/rollcall/internal/recorder"
	"github.com/goodtune/rollcall/internal/retention"
	"github.com/goodtune/rollcall/internal/scanner"
	"github.com/goodtune/rollcall/internal/source"
	"github.com/goodtune/rollcall/internal/storage"
	"github.com/goodtune/rollcall/internal/storage/bolt"
	"github.com/goodtune/rollcall/internal/storage/memory"
	"github.com/goodtune/rollcall/internal/storage/redis"
	"github.com/goodtune/rollcall/internal/systemd"
	"github.com/goodtune/rollcall/internal/tracker"
)

var watchCmd = &cobra.Command{
	Use:   "watch",
	Short: "Track meeting attendance",
	Long:  `Follow the configured page source, track attendance and serve the API and metrics endpoints.`,
	RunE:  runWatch,
}

func init() {
	rootCmd.AddCommand(watchCmd)
}

func runWatch(cmd *cobra.Command, args []string) error {
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("failed to load configuration: %w", err)
	}

	logger := setupLogger(cfg.Logging)
	log.Logger = logger

	logger.Info().
		Str("version", version).
		Str("config", configPath).
		Msg("Starting rollcall")

	sdListeners, err := systemd.GetListeners()
	if err != nil {
		return fmt.Errorf("failed to get systemd listeners: %w", err)
	}
	if sdListeners.Activated {
		logger.Info().Msg("Running with systemd socket activation")
	}

	store, err := openStorage(cfg.Storage, logger)
	if err != nil {
		if cfg.Storage.Fallback != "memory" {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		logger.Error().Err(err).Msg("Storage unavailable, keeping sessions in memory only")
		store = memory.New()
	}
	defer func() {
		if err := store.Close(); err != nil {
			logger.Error().Err(err).Msg("Failed to close storage")
		}
	}()

	logger.Info().
		Str("type", cfg.Storage.Type).
		Str("fallback", cfg.Storage.Fallback).
		Msg("Storage initialized")

	var fallback storage.SessionStore
	if _, inMemory := store.(*memory.Store); !inMemory && cfg.Storage.Fallback == "memory" {
		fallback = memory.New().Sessions()
	}
	rec := recorder.New(store.Sessions(), fallback, logger)

	keys, err := names.NewNormalizer(cfg.Tracking.NameCacheSize)
	if err != nil {
		return fmt.Errorf("failed to create name normalizer: %w", err)
	}

	defaultConsent, err := storage.ParseConsent(cfg.Tracking.DefaultConsent)
	if err != nil {
		return fmt.Errorf("invalid default consent: %w", err)
	}
	consentManager := consent.NewManager(
		store.Preferences(),
		defaultConsent,
		config.Duration(cfg.Tracking.PreferenceMaxAge),
		clock.Real{},
		logger,
	)

	src := openSource(cfg.Source, logger)
	t := tracker.New(src, scanner.New(logger), rec, consentManager, tracker.Options{
		PollInterval: config.Duration(cfg.Tracking.PollInterval),
		Debounce:     config.Duration(cfg.Tracking.Debounce),
		AnyPage:      cfg.Source.Type == "file",
		Normalizer:   keys,
	}, logger)

	logger.Info().
		Str("source", cfg.Source.Type).
		Str("default_consent", cfg.Tracking.DefaultConsent).
		Msg("Tracker initialized")

	sweeper := retention.NewSweeper(
		store.Sessions(),
		config.Duration(cfg.Retention.MaxAge),
		config.Duration(cfg.Retention.Interval),
		clock.Real{},
		logger,
	)
	sweeper.Start()

	var apiServer *api.Server
	if cfg.Server.APIEnabled {
		apiServer = api.NewServer(api.Config{ListenAddr: cfg.Server.APIAddress}, t, rec, logger)
		if sdListeners.Activated && sdListeners.API != nil {
			apiServer.SetListener(sdListeners.API)
		}
		if err := apiServer.Start(); err != nil {
			return fmt.Errorf("failed to start API server: %w", err)
		}
	}

	var metricsServer *metrics.Server
	if cfg.Server.MetricsEnabled {
		metricsServer = metrics.NewServer(cfg.Server.MetricsAddress, logger)
		if sdListeners.Activated && sdListeners.Metrics != nil {
			metricsServer.SetListener(sdListeners.Metrics)
		}
		if err := metricsServer.Start(); err != nil {
			return fmt.Errorf("failed to start metrics server: %w", err)
		}
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if w, ok := src.(source.Watcher); ok {
		go func() {
			if err := w.Watch(ctx, t.Notify); err != nil {
				logger.Error().Err(err).Msg("Change notifications unavailable, relying on polling")
			}
		}()
	}

	trackerDone := make(chan struct{})
	go func() {
		defer close(trackerDone)
		if err := t.Run(ctx); err != nil {
			logger.Error().Err(err).Msg("Tracker stopped with error")
		}
	}()

	go systemd.RunWatchdog(ctx, logger)

	logger.Info().Msg("rollcall startup complete")
	if apiServer != nil {
		logger.Info().Msgf("API: http://%s/api/message", cfg.Server.APIAddress)
	}
	if metricsServer != nil {
		logger.Info().Msgf("Metrics: http://%s/metrics", cfg.Server.MetricsAddress)
	}

	if err := systemd.NotifyReady(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd ready notification")
	} else {
		logger.Debug().Msg("Sent systemd ready notification")
	}

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM, syscall.SIGHUP)

	for {
		sig := <-sigChan
		if sig == syscall.SIGHUP {
			logger.Info().Msg("SIGHUP received, rescanning page")
			t.Notify()
			continue
		}
		logger.Info().Msg("Shutdown signal received, gracefully stopping...")
		break
	}

	if err := systemd.NotifyStopping(); err != nil {
		logger.Warn().Err(err).Msg("Failed to send systemd stopping notification")
	}

	cancel()
	<-trackerDone
	rec.Close()
	sweeper.Stop()

	if apiServer != nil {
		if err := apiServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping API server")
		}
	}
	if metricsServer != nil {
		if err := metricsServer.Stop(); err != nil {
			logger.Error().Err(err).Msg("Error stopping metrics server")
		}
	}

	logger.Info().Msg("rollcall stopped")
	return nil
}

func openStorage(cfg config.StorageConfig, logger zerolog.Logger) (storage.Store, error) {
	switch cfg.Type {
	case "bolt", "":
		return bolt.Open(cfg.Path, logger)
	case "redis":
		return redis.Open(cfg.Redis, logger)
	case "memory":
		return memory.New(), nil
	default:
		return nil, fmt.Errorf("unsupported storage type: %s", cfg.Type)
	}
}

func openSource(cfg config.SourceConfig, logger zerolog.Logger) source.Source {
	if cfg.Type == "file" {
		return source.NewFile(cfg.File, cfg.URL, logger)
	}
	return source.NewChrome(cfg.ChromeURL, cfg.TargetID, false, logger)
}

// setupLogger configures the logger based on configuration
func setupLogger(cfg config.LoggingConfig) zerolog.Logger {
	level := zerolog.InfoLevel
	switch cfg.Level {
	case "debug":
		level = zerolog.DebugLevel
	case "info":
		level = zerolog.InfoLevel
	case "warn":
		level = zerolog.WarnLevel
	case "error":
		level = zerolog.ErrorLevel
	}

	zerolog.SetGlobalLevel(level)

	if cfg.Format == "text" {
		return zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout}).With().Timestamp().Logger()
	}

	// Default to JSON
	return zerolog.New(os.Stdout).With().Timestamp().Logger()
}

// cliLogger keeps one-shot commands quiet on stdout.
func cliLogger() zerolog.Logger {
	return zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(zerolog.WarnLevel).With().Timestamp().Logger()
}
