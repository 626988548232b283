package main

import (
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/aristath/mpmeasure/internal/di"
	"github.com/aristath/mpmeasure/internal/server"
)

var servePort int

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP service",
	RunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Flags().Changed("port") {
			cfg.Port = servePort
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		container, err := di.Wire(ctx, cfg, log)
		if err != nil {
			return err
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
		return srv.Run(ctx)
	},
}

func init() {
	serveCmd.Flags().IntVar(&servePort, "port", 8001, "listen port")
}
