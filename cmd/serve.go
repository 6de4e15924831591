package cmd

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/hupe1980/taskmesh"
	"github.com/hupe1980/taskmesh/config"
	"github.com/hupe1980/taskmesh/logging"
	"github.com/hupe1980/taskmesh/service"
)

func newServeCmd() *cobra.Command {
	var configPath string

	serveCmd := &cobra.Command{
		Use:   "serve",
		Short: "Start the dispatcher and run until interrupted",
		RunE: func(cmd *cobra.Command, _ []string) error {
			var paths []string
			if configPath != "" {
				paths = append(paths, configPath)
			}
			cfg, err := config.Load(paths...)
			if err != nil {
				return err
			}

			logger := logging.NewSlogLogger(
				logging.ParseLevel(cfg.Logging.Level), cfg.Logging.Format, false)

			mesh, err := taskmesh.New(func(o *taskmesh.Options) {
				o.Config = cfg
				o.Logger = logger
			})
			if err != nil {
				return fmt.Errorf("wire dispatcher: %w", err)
			}

			for _, svc := range cfg.Services {
				handler := service.NewHTTPHandler(svc.Name, svc.Endpoint, func(o *service.HTTPOptions) {
					if svc.Timeout > 0 {
						o.Timeout = svc.Timeout
					}
					o.AssistantID = svc.AssistantID
				})
				if svc.Version != "" {
					mesh.RegisterVersion(handler, svc.Version)
				} else {
					mesh.Register(handler)
				}
				logger.Info("service registered",
					"service", svc.Name, "endpoint", svc.Endpoint, "version", svc.Version)
			}

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()

			logger.Info("dispatcher starting",
				"engine", cfg.Engine.BaseURL, "topics", cfg.Dispatch.Topics, "workers", cfg.Dispatch.Workers)
			_ = mesh.Run(ctx)
			logger.Info("dispatcher stopped")
			return nil
		},
	}

	serveCmd.Flags().StringVarP(&configPath, "config", "c", "", "directory containing taskmesh.yaml")
	return serveCmd
}
