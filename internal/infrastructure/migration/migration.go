package migration

import (
	"context"
	"database/sql"
	_ "embed"

	"github.com/jackc/pgx/v4/pgxpool"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

//go:embed sqlite.sql
var sqliteSchema string

// RunMigrations executes all necessary database migrations on startup
func RunMigrations(ctx context.Context, pool *pgxpool.Pool) error {
	log := zap.S().Named("migration")
	log.Info("starting database migrations")

	for _, m := range migrations {
		if _, err := pool.Exec(ctx, m.Up); err != nil {
			log.Errorw("migration failed", "name", m.Name, "error", err)
			return errors.Wrapf(err, "migration %s", m.Name)
		}
		log.Infow("migration completed", "name", m.Name)
	}

	log.Info("all migrations completed successfully")
	return nil
}

// RunSQLite creates the embedded sqlite schema. Every statement is
// idempotent, so it runs on each open.
func RunSQLite(ctx context.Context, db *sql.DB) error {
	if _, err := db.ExecContext(ctx, sqliteSchema); err != nil {
		return errors.Wrap(err, "applying sqlite schema")
	}
	return nil
}

// Migration represents a database migration
type Migration struct {
	Name string
	Up   string
}

var migrations = []Migration{
	{
		Name: "create_subjects",
		Up: `
			CREATE TABLE IF NOT EXISTS subjects (
				id UUID PRIMARY KEY,
				owner_id UUID,
				profile_text TEXT NOT NULL DEFAULT '',
				classification JSONB NOT NULL DEFAULT '{}'::jsonb,
				assessment JSONB NOT NULL DEFAULT '{}'::jsonb,
				updated_at TIMESTAMPTZ NOT NULL DEFAULT now()
			);
		`,
	},
	{
		Name: "create_requirements",
		Up: `
			CREATE TABLE IF NOT EXISTS requirements (
				id UUID PRIMARY KEY,
				owner_id UUID NOT NULL,
				title TEXT NOT NULL DEFAULT '',
				description TEXT NOT NULL DEFAULT '',
				skills JSONB NOT NULL DEFAULT '[]'::jsonb,
				completed_at TIMESTAMPTZ
			);
			CREATE INDEX IF NOT EXISTS requirements_owner_completed_idx
				ON requirements (owner_id, completed_at DESC);
		`,
	},
	{
		Name: "create_analysis_jobs",
		Up: `
			CREATE TABLE IF NOT EXISTS analysis_jobs (
				id UUID PRIMARY KEY,
				subject_id UUID NOT NULL,
				requirement_id UUID,
				backend TEXT NOT NULL DEFAULT '',
				status TEXT NOT NULL CHECK (status IN ('queued', 'running', 'success', 'failed')),
				result JSONB,
				error TEXT,
				attempts INT NOT NULL DEFAULT 0,
				created_at TIMESTAMPTZ NOT NULL,
				updated_at TIMESTAMPTZ NOT NULL,
				started_at TIMESTAMPTZ,
				finished_at TIMESTAMPTZ,
				CONSTRAINT analysis_jobs_outcome_check CHECK (
					(status = 'success' AND result IS NOT NULL AND error IS NULL) OR
					(status = 'failed' AND error IS NOT NULL AND result IS NULL) OR
					(status IN ('queued', 'running') AND result IS NULL AND error IS NULL)
				)
			);
			CREATE INDEX IF NOT EXISTS analysis_jobs_status_created_idx
				ON analysis_jobs (status, created_at);
			CREATE INDEX IF NOT EXISTS analysis_jobs_subject_idx
				ON analysis_jobs (subject_id, finished_at DESC);
		`,
	},
}
