package commands

import (
	"fmt"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/iudanet/syncspace/internal/client/cli"
	"github.com/iudanet/syncspace/internal/client/workspace"
)

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Keep the replica in sync and print radar counters as they change",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
		defer stop()

		return withReplica(cmd, func(c *cli.Cli, service *workspace.Service) error {
			if err := service.Start(ctx); err != nil {
				return fmt.Errorf("failed to start replica: %w", err)
			}
			return c.Watch(ctx)
		})
	},
}

func init() {
	rootCmd.AddCommand(runCmd)
}
