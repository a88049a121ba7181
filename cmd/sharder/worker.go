package main

import (
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/shaiso/Sharder/internal/telemetry"
	"github.com/shaiso/Sharder/internal/worker"
)

func newWorkerCmd() *cobra.Command {
	var index int

	cmd := &cobra.Command{
		Use:    "worker",
		Short:  "Run a worker process (spawned by the orchestrator)",
		Hidden: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			// stdout занят протоколом, логи идут в stderr.
			logger := telemetry.NewLogger(os.Stderr, os.Getenv("LOG_FORMAT"), telemetry.LogLevel())

			ctx, cancel := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer cancel()

			w := worker.New(worker.Config{
				ID:      index,
				In:      os.Stdin,
				Out:     os.Stdout,
				Handler: worker.NewIdleHandler(),
				Logger:  logger,
			})

			logger.Info("worker process started", "pid", os.Getpid())
			return w.Run(ctx)
		},
	}

	cmd.Flags().IntVar(&index, "index", 0, "Worker slot id assigned by the orchestrator")
	cmd.MarkFlagRequired("index")

	return cmd
}
