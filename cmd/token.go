package cmd

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/Davincible/assistant-bridge/internal/middleware"
)

var tokenCmd = &cobra.Command{
	Use:   "token <user-id>",
	Short: "Issue a per-user bearer token",
	Long: `Sign a JWT carrying the given user id with the configured secret key.
Requests authenticated with it are logged with that user id.`,
	Args: cobra.ExactArgs(1),
	RunE: runToken,
}

func init() {
	tokenCmd.Flags().Duration("ttl", 24*time.Hour, "token lifetime, 0 for no expiry")
}

func runToken(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	if cfg.SecretKey == "" {
		return fmt.Errorf("no secret key configured; set SECRET_KEY in the config file or the environment")
	}

	ttl, _ := cmd.Flags().GetDuration("ttl")

	claims := map[string]any{"iat": time.Now().Unix()}
	if ttl > 0 {
		claims["exp"] = time.Now().Add(ttl).Unix()
	}

	token, err := middleware.IssueUserToken(args[0], cfg.SecretKey, claims)
	if err != nil {
		return err
	}

	fmt.Fprintln(cmd.OutOrStdout(), token)
	return nil
}
