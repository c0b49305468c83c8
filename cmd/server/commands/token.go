package commands

import (
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/iudanet/syncspace/internal/models"
	"github.com/iudanet/syncspace/internal/server/app"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Register a workspace user and print an access token for it",
	Args:  cobra.ExactArgs(1),
	RunE:  runToken,
}

func init() {
	tokenCmd.Flags().String("db", "", "path to the SQLite database (overrides config)")
	tokenCmd.Flags().String("workspace", "", "workspace id")
	tokenCmd.Flags().String("name", "", "display name")
	tokenCmd.Flags().String("email", "", "email")
	tokenCmd.Flags().String("role", models.RoleCollaborator, "workspace role")
	tokenCmd.Flags().Bool("json", false, "print the full token response as JSON")
	_ = tokenCmd.MarkFlagRequired("workspace")
	rootCmd.AddCommand(tokenCmd)
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	// Токен выдаётся без сети: Redis не нужен
	cfg.RedisAddr = ""

	ctx := cmd.Context()

	srv, err := app.New(ctx, cfg, newLogger("error"), version)
	if err != nil {
		return err
	}
	defer func() { _ = srv.Close() }()

	workspaceID, _ := cmd.Flags().GetString("workspace")
	name, _ := cmd.Flags().GetString("name")
	email, _ := cmd.Flags().GetString("email")
	role, _ := cmd.Flags().GetString("role")

	user := &models.WorkspaceUser{
		ID:          args[0],
		WorkspaceID: workspaceID,
		Name:        name,
		Email:       email,
		Role:        role,
	}
	if user.Name == "" {
		user.Name = user.ID
	}

	token, err := srv.IssueToken(ctx, user)
	if err != nil {
		return fmt.Errorf("failed to issue token: %w", err)
	}

	if asJSON, _ := cmd.Flags().GetBool("json"); asJSON {
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(token)
	}

	fmt.Fprintln(cmd.OutOrStdout(), token.AccessToken)
	return nil
}
