package main

import (
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var (
	envFile string
)

var rootCmd = &cobra.Command{
	Use:          "analyzer",
	Short:        "Queue and run profile analyses",
	SilenceUsage: true,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		// A missing .env is normal outside local development.
		if err := godotenv.Load(envFile); err != nil {
			zap.S().Debugw("no env file loaded", "path", envFile, "error", err)
		}
	},
}

func init() {
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(workerCmd)
	rootCmd.AddCommand(migrateCmd)
	rootCmd.AddCommand(retryCmd)
	rootCmd.AddCommand(enqueueCmd)

	rootCmd.PersistentFlags().StringVar(&envFile, "env-file", ".env", "Path to an optional dotenv file")
}
