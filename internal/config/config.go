package config

import (
	"fmt"
	"time"

	"github.com/kelseyhightower/envconfig"
)

var singleConfig *Config = nil

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverMemory   = "memory"

	// PolicyLatestForOwner falls back to the owner's most recently completed
	// requirement when a job has none linked.
	PolicyLatestForOwner = "latest_for_owner"
	// PolicyLinkedOnly only uses a requirement linked to the job.
	PolicyLinkedOnly = "linked_only"
)

type Config struct {
	Database *dbConfig
	Service  *svcConfig
	Worker   *WorkerConfig
	Provider *ProviderConfig
}

type dbConfig struct {
	Driver     string `envconfig:"LEDGER_DRIVER" default:"sqlite"`
	URL        string `envconfig:"JOBS_DATABASE_URL" default:""`
	SQLitePath string `envconfig:"LEDGER_SQLITE_PATH" default:"data/analyzer.db"`
}

type svcConfig struct {
	Port     string `envconfig:"PORT" default:"3000"`
	LogLevel string `envconfig:"ANALYZER_LOG_LEVEL" default:"info"`
}

type WorkerConfig struct {
	PollInterval    time.Duration `envconfig:"WORKER_POLL_INTERVAL" default:"5s"`
	PollJitter      time.Duration `envconfig:"WORKER_POLL_JITTER" default:"250ms"`
	BatchSize       int           `envconfig:"WORKER_BATCH_SIZE" default:"1"`
	InterJobDelay   time.Duration `envconfig:"WORKER_INTER_JOB_DELAY" default:"3s"`
	JobTimeout      time.Duration `envconfig:"WORKER_JOB_TIMEOUT" default:"5m"`
	StaleGrace      time.Duration `envconfig:"WORKER_STALE_GRACE" default:"1m"`
	ContextFallback string        `envconfig:"CONTEXT_FALLBACK_POLICY" default:"latest_for_owner"`
}

type ProviderConfig struct {
	DefaultBackend   string        `envconfig:"AI_DEFAULT_BACKEND" default:"auto"`
	ThrottleRetries  int           `envconfig:"AI_THROTTLE_RETRIES" default:"3"`
	ThrottleBackoff  time.Duration `envconfig:"AI_THROTTLE_BACKOFF" default:"2s"`
	RepairAttempts   int           `envconfig:"AI_REPAIR_ATTEMPTS" default:"3"`
	RepairDelay      time.Duration `envconfig:"AI_REPAIR_DELAY" default:"1s"`
	HTTPTimeout      time.Duration `envconfig:"AI_HTTP_TIMEOUT" default:"60s"`
	GatewayURL       string        `envconfig:"AI_SERVICE_URL" default:""`
	OpenAIAPIKey     string        `envconfig:"OPENAI_API_KEY" default:""`
	OpenAIBaseURL    string        `envconfig:"OPENAI_BASE_URL" default:""`
	AnthropicAPIKey  string        `envconfig:"ANTHROPIC_API_KEY" default:""`
	AnthropicBaseURL string        `envconfig:"ANTHROPIC_BASE_URL" default:""`
}

func New() (*Config, error) {
	if singleConfig == nil {
		cfg := new(Config)
		if err := envconfig.Process("", cfg); err != nil {
			return nil, err
		}
		if err := cfg.Validate(); err != nil {
			return nil, err
		}
		singleConfig = cfg
	}
	return singleConfig, nil
}

// Validate rejects values that would make the worker misbehave rather than
// fail a job.
func (c *Config) Validate() error {
	switch c.Database.Driver {
	case DriverSQLite, DriverPostgres, DriverMemory:
	default:
		return fmt.Errorf("LEDGER_DRIVER must be one of sqlite, postgres, memory; got %q", c.Database.Driver)
	}
	if c.Database.Driver == DriverPostgres && c.Database.URL == "" {
		return fmt.Errorf("JOBS_DATABASE_URL is required when LEDGER_DRIVER=postgres")
	}
	switch c.Worker.ContextFallback {
	case PolicyLatestForOwner, PolicyLinkedOnly:
	default:
		return fmt.Errorf("CONTEXT_FALLBACK_POLICY must be latest_for_owner or linked_only; got %q", c.Worker.ContextFallback)
	}
	if c.Worker.BatchSize < 1 {
		return fmt.Errorf("WORKER_BATCH_SIZE must be at least 1")
	}
	if c.Worker.StaleGrace < 0 {
		return fmt.Errorf("WORKER_STALE_GRACE must not be negative")
	}
	if c.Worker.PollInterval <= 0 {
		return fmt.Errorf("WORKER_POLL_INTERVAL must be positive")
	}
	if c.Provider.ThrottleRetries < 0 || c.Provider.RepairAttempts < 1 {
		return fmt.Errorf("AI_THROTTLE_RETRIES must be >= 0 and AI_REPAIR_ATTEMPTS >= 1")
	}
	return nil
}
