package main

import (
	"context"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create or update the ledger schema",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		defer done()
		if err != nil {
			return err
		}

		// openStores applies the schema of the configured driver.
		s, err := openStores(context.Background(), cfg)
		if err != nil {
			return err
		}
		s.close()
		zap.S().Infow("schema up to date", "driver", cfg.Database.Driver)
		return nil
	},
}
