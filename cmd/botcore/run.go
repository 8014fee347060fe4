package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/tradewire/botcore/internal/app"
	"github.com/tradewire/botcore/internal/config"
	"github.com/tradewire/botcore/internal/logging"
	"github.com/tradewire/botcore/pkg/conversation"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start the event dispatch pipeline",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg := config.Load()
		logger := logging.New(logging.ParseLevel(cfg.LogLevel))

		// State definitions and the user-facing messenger are provided by
		// the deployment; a bare binary runs with an empty flow set.
		registry := conversation.NewRegistry()

		a, err := app.Build(cfg, logger, registry, nil)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		logger.Info("botcore starting",
			"queue_backend", cfg.QueueBackend,
			"state_backend", cfg.StateBackend,
			"max_concurrent", cfg.MaxConcurrent,
		)
		if err := a.Run(ctx); err != nil {
			logger.Error("botcore exited with error", "err", err)
			os.Exit(1)
		}
		logger.Info("botcore stopped")
		return nil
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
