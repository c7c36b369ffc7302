// Package cli implements the chromegcm command line tool.
package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/slush-dev/chromegcm"
	"github.com/slush-dev/chromegcm/internal/config"
	"github.com/spf13/cobra"
)

var (
	configPath string
	verbose    bool
	useYAML    bool
)

var rootCmd = &cobra.Command{
	Use:          "chromegcm",
	Short:        "Send Chrome Cloud Messaging push messages",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		if verbose {
			slog.SetDefault(slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelDebug})))
		}
	},
}

func init() {
	rootCmd.PersistentFlags().StringVar(&configPath, "config", config.DefaultPath(), "Path to the YAML config file")
	rootCmd.PersistentFlags().BoolVarP(&verbose, "verbose", "v", false, "Enable debug logging")
	rootCmd.PersistentFlags().BoolVar(&useYAML, "yaml", false, "Print output in YAML format")
}

// SetVersion sets the version string shown by --version.
func SetVersion(v string) {
	rootCmd.Version = v
}

// Execute runs the root command.
func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}

// loadConfig reads the config file selected by --config.
func loadConfig() (*config.Config, error) {
	return config.Load(configPath)
}

// clientOptions returns the options every client is built with. Tests
// replace it to point clients at fake endpoints.
var clientOptions = func() []chromegcm.Option {
	return []chromegcm.Option{chromegcm.WithLogger(slog.Default())}
}

// newClient builds a client from cfg, exchanging refresh credentials when
// no access token is configured.
func newClient(ctx context.Context, cfg *config.Config) (*chromegcm.Client, error) {
	authInfo, err := cfg.AuthInfo()
	if err != nil {
		return nil, fmt.Errorf("%w (set it in %s or %s)", err, configPath, config.EnvAccessToken)
	}
	return chromegcm.New(ctx, authInfo, clientOptions()...)
}
