package repository_test

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	"github.com/jackc/pgx/v4/pgxpool"
	. "github.com/onsi/ginkgo/v2"
	. "github.com/onsi/gomega"

	"profile-analyzer/internal/adapter/repository"
	"profile-analyzer/internal/infrastructure/migration"
	"profile-analyzer/internal/usecase"
	"profile-analyzer/pkg/infrastructure"
)

func TestRepository(t *testing.T) {
	RegisterFailHandler(Fail)
	RunSpecs(t, "Repository Suite")
}

// backend opens a fresh pair of stores for each test.
type backend struct {
	name string
	open func() (usecase.Ledger, usecase.SubjectStore)
}

func openSQLite() *sql.DB {
	db, err := infrastructure.OpenSQLite(filepath.Join(GinkgoT().TempDir(), "ledger.db"))
	Expect(err).To(BeNil())
	Expect(migration.RunSQLite(context.Background(), db)).To(Succeed())
	DeferCleanup(db.Close)
	return db
}

func openPostgres() *pgxpool.Pool {
	dsn := os.Getenv("JOBS_DATABASE_URL")
	if dsn == "" {
		Skip("JOBS_DATABASE_URL not set")
	}
	ctx := context.Background()
	pool, err := infrastructure.NewJobsPool(ctx, dsn)
	Expect(err).To(BeNil())
	Expect(migration.RunMigrations(ctx, pool)).To(Succeed())
	_, err = pool.Exec(ctx, `TRUNCATE analysis_jobs, subjects, requirements`)
	Expect(err).To(BeNil())
	DeferCleanup(pool.Close)
	return pool
}

var backends = []backend{
	{
		name: "memory",
		open: func() (usecase.Ledger, usecase.SubjectStore) {
			return repository.NewMemoryJobsRepo(), repository.NewMemorySubjectsRepo()
		},
	},
	{
		name: "sqlite",
		open: func() (usecase.Ledger, usecase.SubjectStore) {
			db := openSQLite()
			return repository.NewSQLiteJobsRepo(db), repository.NewSQLiteSubjectsRepo(db)
		},
	},
	{
		name: "postgres",
		open: func() (usecase.Ledger, usecase.SubjectStore) {
			pool := openPostgres()
			return repository.NewJobsRepo(pool), repository.NewSubjectsRepo(pool)
		},
	},
}
