package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/nomland/nunti/pkg/config"
	"github.com/nomland/nunti/pkg/logger"
	"github.com/nomland/nunti/pkg/store"
)

func newMigrateCmd() *cobra.Command {
	var from, to string
	cmd := &cobra.Command{
		Use:   "migrate",
		Short: "Copy every curation table from one storage backend to another",
		RunE: func(cmd *cobra.Command, args []string) error {
			if from == to {
				return fmt.Errorf("--from and --to are both %q", from)
			}
			cfg, err := config.LoadConfig(configPath(cmd))
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}

			srcCfg, dstCfg := cfg.Storage, cfg.Storage
			srcCfg.Backend, dstCfg.Backend = from, to

			src, err := store.Open(srcCfg)
			if err != nil {
				return fmt.Errorf("open %s: %w", from, err)
			}
			defer src.Close()
			dst, err := store.Open(dstCfg)
			if err != nil {
				return fmt.Errorf("open %s: %w", to, err)
			}
			defer dst.Close()

			n, err := store.Migrate(src, dst, store.Tables(cfg.Storage))
			if err != nil {
				return err
			}
			logger.InfoCF("migrate", "Storage migrated", map[string]interface{}{
				"from":    from,
				"to":      to,
				"entries": n,
			})
			fmt.Fprintf(cmd.OutOrStdout(), "Copied %d entries from %s to %s.\n", n, from, to)
			return nil
		},
	}
	cmd.Flags().StringVar(&from, "from", "json", "Source backend (json|sqlite).")
	cmd.Flags().StringVar(&to, "to", "sqlite", "Destination backend (json|sqlite).")
	return cmd
}
