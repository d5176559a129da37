package metrics

import (
	"context"
	"fmt"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"go.uber.org/zap"

	"profile-analyzer/internal/domain"
)

// StatusCounter is the part of the job ledger the collector reads.
type StatusCounter interface {
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
}

type ledgerCollector struct {
	ledger StatusCounter
	jobs   *prometheus.Desc
}

func newLedgerCollector(l StatusCounter) prometheus.Collector {
	return &ledgerCollector{
		ledger: l,
		jobs: prometheus.NewDesc(
			fmt.Sprintf("%s_jobs", profileAnalyzer),
			"Number of jobs in the ledger by status.",
			[]string{statusLabel},
			prometheus.Labels{},
		),
	}
}

// RegisterLedgerCollector exposes per-status job counts read at scrape time.
func RegisterLedgerCollector(reg prometheus.Registerer, l StatusCounter) error {
	return reg.Register(newLedgerCollector(l))
}

func (c *ledgerCollector) Describe(ch chan<- *prometheus.Desc) {
	ch <- c.jobs
}

// Collect implements Collector.
func (c *ledgerCollector) Collect(ch chan<- prometheus.Metric) {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	counts, err := c.ledger.CountByStatus(ctx)
	if err != nil {
		zap.S().Named("ledger_collector").Errorf("failed to collect ledger statistics: %s", err)
		return
	}
	for _, s := range domain.Statuses {
		ch <- prometheus.MustNewConstMetric(c.jobs, prometheus.GaugeValue, float64(counts[s]), string(s))
	}
}
