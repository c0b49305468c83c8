package commands

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/syncspace/internal/client/cli"
	"github.com/iudanet/syncspace/internal/client/storage/boltdb"
)

var loginCmd = &cobra.Command{
	Use:   "login",
	Short: "Bind the local replica to an account",
	Long: `Stores the server address and access token in the local replica.
User and workspace are read from the token unless given explicitly.
The token may also be passed in SYNCSPACE_TOKEN.`,
	RunE: runLogin,
}

var logoutCmd = &cobra.Command{
	Use:   "logout",
	Short: "Remove the stored credentials, keeping replica data",
	RunE:  runLogout,
}

func init() {
	loginCmd.Flags().String("server", "", "server URL (overrides config)")
	loginCmd.Flags().String("token", "", "access token issued by 'syncspace-server token'")
	loginCmd.Flags().String("user", "", "user id, when the token has none")
	loginCmd.Flags().String("workspace", "", "workspace id, when the token has none")
	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	in := cli.LoginInput{
		ServerURL:   cfg.ServerURL,
		Token:       cfg.Token,
		UserID:      cfg.UserID,
		WorkspaceID: cfg.WorkspaceID,
	}
	flags := cmd.Flags()
	if flags.Changed("token") {
		in.Token, _ = flags.GetString("token")
	}
	if flags.Changed("user") {
		in.UserID, _ = flags.GetString("user")
	}
	if flags.Changed("workspace") {
		in.WorkspaceID, _ = flags.GetString("workspace")
	}

	store, err := boltdb.New(cmd.Context(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	auth, err := cli.Login(cmd.Context(), store, in)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Logged in as %s in workspace %s\n", auth.UserID, auth.WorkspaceID)
	fmt.Fprintf(out, "Server: %s\n", auth.ServerURL)
	if !auth.ExpiresAt.IsZero() {
		fmt.Fprintf(out, "Token expires: %s\n", auth.ExpiresAt.Format("2006-01-02 15:04:05"))
	}
	return nil
}

func runLogout(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}

	store, err := boltdb.New(cmd.Context(), cfg.DBPath)
	if err != nil {
		return err
	}
	defer func() {
		_ = store.Close()
	}()

	if err := cli.Logout(cmd.Context(), store); err != nil {
		return err
	}
	fmt.Fprintln(cmd.OutOrStdout(), "Logged out")
	return nil
}
