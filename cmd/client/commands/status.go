package commands

import (
	"github.com/spf13/cobra"

	"github.com/iudanet/syncspace/internal/client/cli"
	"github.com/iudanet/syncspace/internal/client/workspace"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show pending mutations, sync cursors and radar counters",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Status(cmd.Context())
		})
	},
}

var listCmd = &cobra.Command{
	Use:   "list <root-id>",
	Short: "List the nodes of a space or chat; unseen messages are marked with *",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.List(cmd.Context(), args[0])
		})
	},
}

func init() {
	rootCmd.AddCommand(statusCmd, listCmd)
}
