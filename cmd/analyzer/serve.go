package main

import (
	"context"
	"os"
	"os/signal"
	"sync"
	"syscall"

	"github.com/gofiber/fiber/v2"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	httpadapter "profile-analyzer/internal/adapter/http"
	"profile-analyzer/internal/usecase"
	infra "profile-analyzer/pkg/infrastructure"
	"profile-analyzer/pkg/metrics"
)

var (
	withoutWorker bool
	withoutPDF    bool
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the HTTP API and the analysis worker",
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, done, err := setup()
		defer done()
		if err != nil {
			return err
		}
		log := zap.S().Named("serve")

		ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGHUP, syscall.SIGTERM, syscall.SIGQUIT)
		defer cancel()

		s, err := openStores(ctx, cfg)
		if err != nil {
			return err
		}
		defer s.close()

		if err := metrics.RegisterLedgerCollector(prometheus.DefaultRegisterer, s.ledger); err != nil {
			log.Warnw("ledger collector not registered", "error", err)
		}

		var renderer usecase.Renderer
		if !withoutPDF {
			renderer = infra.NewChromedpRenderer()
		}
		h := httpadapter.NewHandler(
			usecase.NewJobService(s.ledger, s.subjects),
			usecase.NewProgressService(s.ledger, s.subjects),
			usecase.NewReportService(s.ledger, s.subjects, renderer),
		)
		app := fiber.New(fiber.Config{DisableStartupMessage: true})
		h.Register(app)

		var wg sync.WaitGroup
		if !withoutWorker {
			w, err := newWorker(cfg, s)
			if err != nil {
				return err
			}
			wg.Add(1)
			go func() {
				defer wg.Done()
				w.Run(ctx)
			}()
		}

		go func() {
			<-ctx.Done()
			if err := app.Shutdown(); err != nil {
				log.Errorw("shutting down http server", "error", err)
			}
		}()

		log.Infow("listening", "port", cfg.Service.Port, "driver", cfg.Database.Driver, "worker", !withoutWorker)
		err = app.Listen(":" + cfg.Service.Port)
		cancel()
		wg.Wait()
		log.Info("stopped")
		return err
	},
}

func init() {
	serveCmd.Flags().BoolVar(&withoutWorker, "no-worker", false, "Serve the API without draining the ledger")
	serveCmd.Flags().BoolVar(&withoutPDF, "no-pdf", false, "Disable PDF export of reports")
}
