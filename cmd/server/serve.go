package main

import (
	"context"
	"errors"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/garyjia/expense-validator/internal/container"
)

func serveCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP API",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, logger, err := setup()
			if err != nil {
				return err
			}
			defer logger.Sync()

			logger.Info("Starting Expense Validator",
				zap.String("version", version),
				zap.Int("port", cfg.Server.Port),
				zap.String("model", cfg.OpenAI.Model))

			ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
			defer cancel()

			c, err := container.NewContainer(cfg, logger)
			if err != nil {
				logger.Error("Failed to create container", zap.Error(err))
				return err
			}
			if err := c.Start(ctx); err != nil {
				logger.Error("Failed to start container", zap.Error(err))
				return err
			}
			defer func() {
				if err := c.Close(); err != nil {
					logger.Error("Failed to close container", zap.Error(err))
				}
			}()

			if err := c.HTTPServer().Start(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.Error("Server stopped with error", zap.Error(err))
				return err
			}

			logger.Info("Server exited successfully")
			return nil
		},
	}
}
