package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

var once bool

var workerCmd = &cobra.Command{
	Use:   "worker",
	Short: "Drain the job ledger without serving HTTP",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		defer done()
		if err != nil {
			return err
		}
		log := zap.S().Named("worker_cmd")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		s, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.close()

		w, err := newWorker(cfg, s)
		if err != nil {
			return err
		}
		if once {
			n := w.Tick(ctx)
			log.Infow("single tick finished", "processed", n)
			return nil
		}
		w.Run(ctx)
		return nil
	},
}

func init() {
	workerCmd.Flags().BoolVar(&once, "once", false, "Process one batch and exit")
}
