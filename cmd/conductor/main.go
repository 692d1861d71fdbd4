package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/Strob0t/Conductor/internal/config"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := newRootCmd().ExecuteContext(ctx)
	stop()
	if err != nil {
		slog.Error("fatal", "error", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "conductor",
		Short:         "Task orchestration and autonomy governance for agent teams",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	config.RegisterFlags(root.PersistentFlags())

	root.AddCommand(newServeCmd(), newWorkerCmd(), newMigrateCmd())
	return root
}

// loadConfig resolves defaults < YAML < ENV < flags for cmd.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	cfg, path, err := config.LoadWithCLI(config.FlagsFrom(cmd.Flags()))
	if err != nil {
		return nil, err
	}
	slog.Debug("config loaded", "path", path)
	return cfg, nil
}
