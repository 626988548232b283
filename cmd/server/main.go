// Package main is the entry point for the measurement HTTP service. It
// computes outcome distributions of matrix-product measurements, draws
// samples, stores sample runs and estimates probabilities from them.
package main

import (
	"context"
	"os/signal"
	"syscall"

	"github.com/aristath/mpmeasure/internal/config"
	"github.com/aristath/mpmeasure/internal/di"
	"github.com/aristath/mpmeasure/internal/server"
	"github.com/aristath/mpmeasure/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		// Fallback logger so the configuration error is still reported.
		fallbackLog := logger.New(logger.Config{Level: "info", Pretty: true})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})
	logger.SetGlobalLogger(log)
	log.Info().Str("data_dir", cfg.DataDir).Msg("Starting measurement service")

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	container, err := di.Wire(ctx, cfg, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to wire dependencies")
	}
	defer container.Close()

	container.Scheduler.Start()
	defer container.Scheduler.Stop()

	srv := server.New(server.Config{
		Log:         log,
		Port:        cfg.Port,
		DevMode:     cfg.DevMode,
		DB:          container.DB,
		Scheduler:   container.Scheduler,
		Measurement: container.Handler,
	})

	if err := srv.Run(ctx); err != nil {
		log.Error().Err(err).Msg("HTTP server failed")
	}
}
