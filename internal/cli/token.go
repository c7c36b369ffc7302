package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/slush-dev/chromegcm"
	"github.com/slush-dev/chromegcm/internal/config"
	"github.com/spf13/cobra"
)

// printToken prints the client's access token and its lifetime.
func printToken(w io.Writer, client *chromegcm.Client, asYAML bool) {
	tok := client.Token()
	if asYAML {
		yamlOut(w, map[string]any{
			"access_token": tok.AccessToken,
			"expires_in":   tok.ExpiresIn,
			"expires_at":   tok.Expiry.UTC().Format(time.RFC3339),
		})
		return
	}
	fmt.Fprintln(w, tok.AccessToken)
	fmt.Fprintf(w, "Expires in %s (at %s)\n", client.TokenExpiresIn(), tok.Expiry.Local().Format(time.RFC1123))
}

func runToken(ctx context.Context, cfg *config.Config, asYAML bool, stdout io.Writer) error {
	if cfg.Credentials == nil {
		return fmt.Errorf("token: no credentials block in %s", configPath)
	}
	client, err := chromegcm.NewWithRefreshToken(ctx, *cfg.Credentials, clientOptions()...)
	if err != nil {
		return fmt.Errorf("exchanging refresh token: %w", err)
	}
	printToken(stdout, client, asYAML)
	return nil
}

var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Exchange the configured refresh token for an access token",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		return runToken(cmd.Context(), cfg, useYAML, os.Stdout)
	},
}

func init() {
	rootCmd.AddCommand(tokenCmd)
}
