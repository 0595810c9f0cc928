package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomland/nunti/pkg/config"
)

const defaultConfigPath = "~/.nunti/config.json"

// Set with -ldflags "-X main.version=...".
var version = "dev"

func Execute() {
	root := newRootCmd()
	if err := root.Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "nunti",
		Short:        "Telegram curation bot",
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runServe(cmd, false)
		},
	}

	cmd.PersistentFlags().String("config", defaultConfigPath, "Config file path.")
	cmd.PersistentFlags().StringSlice("env-file", []string{".env"}, "Dotenv files loaded before the config.")

	cmd.AddCommand(newInitCmd())
	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newMigrateCmd())
	cmd.AddCommand(newVersionCmd())

	return cmd
}

func configPath(cmd *cobra.Command) string {
	path, _ := cmd.Flags().GetString("config")
	if path == "" {
		path = defaultConfigPath
	}
	return config.ExpandHome(path)
}

// loadConfig reads dotenv files, then the config file with its env overlay,
// and validates the result.
func loadConfig(cmd *cobra.Command) (*config.Config, error) {
	envFiles, _ := cmd.Flags().GetStringSlice("env-file")
	if err := config.LoadDotEnv(envFiles...); err != nil {
		return nil, fmt.Errorf("load env files: %w", err)
	}
	cfg, err := config.LoadConfig(configPath(cmd))
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}
	return cfg, nil
}

func newVersionCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Print the version",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintln(cmd.OutOrStdout(), "nunti "+version)
		},
	}
}
