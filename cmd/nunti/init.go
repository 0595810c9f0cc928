package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/nomland/nunti/pkg/config"
)

func newInitCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Write a default config file to the --config path",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			path := configPath(cmd)
			if _, err := os.Stat(path); err == nil {
				return fmt.Errorf("config already exists: %s", path)
			}

			cfg := config.DefaultConfig()
			if err := config.SaveConfig(path, cfg); err != nil {
				return fmt.Errorf("write config: %w", err)
			}
			if err := os.MkdirAll(cfg.StorageDir(), 0o755); err != nil {
				return fmt.Errorf("create storage dir: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "initialized %s\n", path)
			fmt.Fprintf(out, "storage dir: %s\n", cfg.StorageDir())
			return nil
		},
	}
}
