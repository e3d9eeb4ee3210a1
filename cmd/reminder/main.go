// Package main provides the entrypoint for the train departure reminder.
package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"

	"github.com/trainreminder/trainreminder/internal/config"
	"github.com/trainreminder/trainreminder/internal/notify"
	"github.com/trainreminder/trainreminder/internal/provider/resilience"
	"github.com/trainreminder/trainreminder/internal/reminder"
	"github.com/trainreminder/trainreminder/internal/status"
	"github.com/trainreminder/trainreminder/internal/telemetry"
	"github.com/trainreminder/trainreminder/internal/transit/vbb"
)

// Version and BuildTime are set at compile time via ldflags.
var (
	Version   = "dev"
	BuildTime = "unknown"
)

const serviceName = "trainreminder"

func main() {
	cfg, err := config.Load()
	if err != nil {
		bootLog := zerolog.New(os.Stderr).With().Timestamp().Logger()
		bootLog.Error().Err(err).Msg("failed to load configuration")
		os.Exit(1)
	}

	log := newLogger(cfg.Log)

	log.Info().
		Str("build_time", BuildTime).
		Str("environment", cfg.Environment).
		Msg("starting train reminder")

	if err := run(cfg, log); err != nil {
		log.Error().Err(err).Msg("reminder stopped with error")
		os.Exit(1)
	}

	log.Info().Msg("reminder stopped")
}

func run(cfg config.Config, log zerolog.Logger) error {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	tp, err := telemetry.Init(ctx, telemetry.Config{
		ServiceName:    serviceName,
		ServiceVersion: Version,
		Environment:    cfg.Environment,
		OTLPEndpoint:   cfg.Telemetry.OTLPEndpoint,
		Enabled:        cfg.Telemetry.Enabled,
	})
	if err != nil {
		return err
	}
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if shutdownErr := tp.Shutdown(shutdownCtx); shutdownErr != nil {
			log.Error().Err(shutdownErr).Msg("failed to shutdown telemetry")
		}
	}()

	if cfg.Telemetry.Enabled {
		log.Info().
			Str("otlp_endpoint", cfg.Telemetry.OTLPEndpoint).
			Msg("OpenTelemetry initialized")
	}

	registry := resilience.NewRegistry()

	reminderCfg := cfg.Reminder()

	fetcher := vbb.NewClient(vbb.ClientConfig{
		BaseURL:      cfg.Transit.BaseURL,
		Language:     cfg.Transit.Language,
		Timeout:      cfg.TransitTimeout(),
		PollInterval: reminderCfg.PollInterval,
		Registry:     registry,
		Logger:       component(log, "fetcher"),
	})

	var notifier notify.Notifier
	switch cfg.Notifier {
	case config.NotifierLog:
		notifier = notify.NewLog(component(log, "notifier"))
	default:
		notifier = notify.NewDesktop(component(log, "notifier"))
	}

	loop, err := reminder.NewLoop(reminder.LoopConfig{
		Config:   reminderCfg,
		Fetcher:  fetcher,
		Notifier: notifier,
		Logger:   component(log, "reminder"),
	})
	if err != nil {
		return err
	}

	if cfg.Status.Addr != "" {
		server := &http.Server{
			Addr: cfg.Status.Addr,
			Handler: status.NewRouter(status.RouterConfig{
				Version:   Version,
				BuildTime: BuildTime,
				Logger:    component(log, "status"),
				Route:     loop.Config().Route,
				Loop:      loop,
				Registry:  registry,
			}),
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 15 * time.Second,
			IdleTimeout:  60 * time.Second,
		}

		go func() {
			log.Info().
				Str("addr", server.Addr).
				Msg("status server listening")

			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				log.Error().Err(err).Msg("status server error")
			}
		}()

		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := server.Shutdown(shutdownCtx); err != nil {
				log.Error().Err(err).Msg("status server forced to shutdown")
			}
		}()
	}

	return loop.Run(ctx)
}

func newLogger(cfg config.LogConfig) zerolog.Logger {
	level, err := zerolog.ParseLevel(cfg.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}

	var log zerolog.Logger
	if cfg.Format == "json" {
		log = zerolog.New(os.Stdout)
	} else {
		log = zerolog.New(zerolog.ConsoleWriter{Out: os.Stdout, TimeFormat: time.DateTime})
	}

	return log.Level(level).
		With().
		Timestamp().
		Str("service", serviceName).
		Str("version", Version).
		Logger()
}

func component(log zerolog.Logger, name string) zerolog.Logger {
	return log.With().Str("component", name).Logger()
}
