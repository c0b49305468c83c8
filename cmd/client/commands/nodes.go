package commands

import (
	"github.com/spf13/cobra"

	"github.com/iudanet/syncspace/internal/client/cli"
	"github.com/iudanet/syncspace/internal/client/workspace"
)

var createCmd = &cobra.Command{
	Use:   "create <space|chat|channel|page>",
	Short: "Create a node; channels and pages need --root and --parent",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		rootID, _ := cmd.Flags().GetString("root")
		parentID, _ := cmd.Flags().GetString("parent")
		name, _ := cmd.Flags().GetString("name")

		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Create(cmd.Context(), args[0], rootID, parentID, name)
		})
	},
}

var sendCmd = &cobra.Command{
	Use:   "send <root-id> <parent-id> <text>",
	Short: "Post a message to a chat, channel or page",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		mentions, _ := cmd.Flags().GetStringSlice("mention")

		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Send(cmd.Context(), args[0], args[1], args[2], mentions)
		})
	},
}

var editCmd = &cobra.Command{
	Use:   "edit <root-id> <node-id>",
	Short: "Set or unset node attributes",
	Example: `  syncspace-client edit <root> <page> --set name=Roadmap --set order=2
  syncspace-client edit <root> <page> --unset icon`,
	Args: cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, _ := cmd.Flags().GetStringArray("set")
		unset, _ := cmd.Flags().GetStringSlice("unset")

		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Edit(cmd.Context(), args[0], args[1], set, unset)
		})
	},
}

var writeCmd = &cobra.Command{
	Use:   "write <root-id> <page-id>",
	Short: "Edit blocks of a page document",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		set, _ := cmd.Flags().GetStringArray("set")
		unset, _ := cmd.Flags().GetStringSlice("unset")

		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Write(cmd.Context(), args[0], args[1], set, unset)
		})
	},
}

var deleteCmd = &cobra.Command{
	Use:   "delete <root-id> <node-id>",
	Short: "Delete a node and everything under it",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Delete(cmd.Context(), args[0], args[1])
		})
	},
}

var attachCmd = &cobra.Command{
	Use:   "attach <root-id> <parent-id> <path>",
	Short: "Register a local file under a node (metadata only, needs the server)",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Attach(cmd.Context(), args[0], args[1], args[2])
		})
	},
}

var readCmd = &cobra.Command{
	Use:   "read <root-id> <node-id>",
	Short: "Mark a node as seen",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		open, _ := cmd.Flags().GetBool("open")

		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.Read(cmd.Context(), args[0], args[1], open)
		})
	},
}

var reactCmd = &cobra.Command{
	Use:   "react <root-id> <node-id> <reaction>",
	Short: "Add a reaction to a node, or remove it with --remove",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		remove, _ := cmd.Flags().GetBool("remove")

		return withReplica(cmd, func(c *cli.Cli, _ *workspace.Service) error {
			return c.React(cmd.Context(), args[0], args[1], args[2], remove)
		})
	},
}

func init() {
	createCmd.Flags().String("root", "", "root (space or chat) of the new node")
	createCmd.Flags().String("parent", "", "parent node id")
	createCmd.Flags().String("name", "", "display name")

	sendCmd.Flags().StringSlice("mention", nil, "user ids to mention")

	for _, c := range []*cobra.Command{editCmd, writeCmd} {
		c.Flags().StringArray("set", nil, "key=value; JSON values are kept typed")
		c.Flags().StringSlice("unset", nil, "keys to remove")
	}

	readCmd.Flags().Bool("open", false, "also mark the node as opened")
	reactCmd.Flags().Bool("remove", false, "remove the reaction instead of adding it")

	rootCmd.AddCommand(createCmd, sendCmd, editCmd, writeCmd, deleteCmd, attachCmd, readCmd, reactCmd)
}
