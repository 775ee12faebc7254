// Command flockctl runs Flock search, linking, and vector maintenance
// against the configured store without going through the HTTP API.
package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/spf13/cobra"

	"flock-backend/internal/config"
	"flock-backend/internal/di"
)

var (
	configPath string
	userID     string
	jsonOutput bool

	container *di.Container
)

var rootCmd = &cobra.Command{
	Use:           "flockctl",
	Short:         "Operate on a Flock prayer store",
	SilenceUsage:  true,
	SilenceErrors: true,
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if cmd.Name() == "help" || cmd.Name() == "token" {
			return nil
		}
		if userID == "" {
			return fmt.Errorf("--user is required")
		}
		cfg, err := loadConfig()
		if err != nil {
			return fmt.Errorf("failed to load config: %w", err)
		}
		// The CLI acts as the named user directly.
		cfg.Auth.TrustGateway = true

		c, err := di.InitializeContainer(cmd.Context(), cfg)
		if err != nil {
			return fmt.Errorf("failed to initialize: %w", err)
		}
		container = c
		return nil
	},
	PersistentPostRunE: func(cmd *cobra.Command, args []string) error {
		if container != nil {
			_ = container.Logger.Sync()
		}
		return nil
	},
}

func init() {
	rootCmd.PersistentFlags().StringVarP(&configPath, "config", "c", "", "path to a YAML config file")
	rootCmd.PersistentFlags().StringVarP(&userID, "user", "u", "", "author id to act as")
	rootCmd.PersistentFlags().BoolVar(&jsonOutput, "json", false, "print results as JSON")

	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.AddCommand(rankCmd, listCmd, linkCmd, removeVectorCmd, healCmd, tokenCmd)
}

func loadConfig() (*config.Config, error) {
	if configPath != "" {
		return config.LoadFile(configPath)
	}
	return config.LoadConfig()
}

func writeJSON(w io.Writer, v interface{}) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func main() {
	if err := rootCmd.ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
