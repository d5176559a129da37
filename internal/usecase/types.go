package usecase

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"

	"profile-analyzer/internal/domain"
	"profile-analyzer/pkg/ai"
)

// Ledger is the durable job store. Every transition is a compare-and-set on
// the job's current status: an illegal or lost transition returns an
// invalid_transition error and leaves the row unchanged.
type Ledger interface {
	Create(ctx context.Context, nj domain.NewJob) (domain.Job, error)
	// ClaimBatch moves up to n queued jobs to running, oldest first, and
	// returns them. A job is never returned to two callers.
	ClaimBatch(ctx context.Context, n int) ([]domain.Job, error)
	MarkRunning(ctx context.Context, id uuid.UUID) error
	MarkSuccess(ctx context.Context, id uuid.UUID, result json.RawMessage) error
	MarkFailed(ctx context.Context, id uuid.UUID, msg string) error
	Retry(ctx context.Context, id uuid.UUID) error
	// FailStale moves every running job started before startedBefore to
	// failed with msg and returns their ids. It recovers jobs orphaned by a
	// process that died mid-analysis.
	FailStale(ctx context.Context, startedBefore time.Time, msg string) ([]uuid.UUID, error)
	Get(ctx context.Context, id uuid.UUID) (domain.Job, error)
	List(ctx context.Context, filter domain.JobFilter) ([]domain.Job, error)
	CountByStatus(ctx context.Context) (map[domain.Status]int, error)
	// LatestSuccess returns the most recently finished successful job of a
	// subject, or a not_found error.
	LatestSuccess(ctx context.Context, subjectID uuid.UUID) (domain.Job, error)
}

// SubjectStore reads and writes the profiles and requirements the pipeline
// works on.
type SubjectStore interface {
	GetSubject(ctx context.Context, id uuid.UUID) (domain.Subject, error)
	SaveSubject(ctx context.Context, s domain.Subject) error
	SaveSnapshot(ctx context.Context, id uuid.UUID, c domain.Classification, a domain.Assessment) error
	GetRequirement(ctx context.Context, id uuid.UUID) (domain.Requirement, error)
	// LatestCompletedRequirement returns nil when the owner has no completed
	// requirement.
	LatestCompletedRequirement(ctx context.Context, ownerID uuid.UUID) (*domain.Requirement, error)
	SaveRequirement(ctx context.Context, r domain.Requirement) error
}

// Generator produces a structured value for a prompt. *ai.StructuredClient
// implements it.
type Generator interface {
	GenerateJSON(ctx context.Context, prompt, backendKey string) (ai.StructuredResult, error)
}

// Renderer prints HTML to PDF.
type Renderer interface {
	RenderHTMLToPDF(ctx context.Context, html string) ([]byte, error)
}
