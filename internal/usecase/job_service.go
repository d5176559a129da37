package usecase

import (
	"context"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"profile-analyzer/internal/domain"
)

// JobService is the producer, query and operator surface of the ledger.
type JobService struct {
	ledger   Ledger
	subjects SubjectStore
	log      *zap.SugaredLogger
}

func NewJobService(ledger Ledger, subjects SubjectStore) *JobService {
	return &JobService{ledger: ledger, subjects: subjects, log: zap.S().Named("job_service")}
}

// Enqueue queues an analysis of an existing subject.
func (s *JobService) Enqueue(ctx context.Context, nj domain.NewJob) (domain.Job, error) {
	if _, err := s.subjects.GetSubject(ctx, nj.SubjectID); err != nil {
		return domain.Job{}, err
	}
	j, err := s.ledger.Create(ctx, nj)
	if err != nil {
		return domain.Job{}, err
	}
	s.log.Infow("job queued", "job_id", j.ID, "subject_id", j.SubjectID, "backend", j.BackendKey)
	return j, nil
}

func (s *JobService) Get(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	return s.ledger.Get(ctx, id)
}

func (s *JobService) List(ctx context.Context, f domain.JobFilter) ([]domain.Job, error) {
	return s.ledger.List(ctx, f)
}

func (s *JobService) Stats(ctx context.Context) (map[domain.Status]int, error) {
	return s.ledger.CountByStatus(ctx)
}

// Retry requeues a failed job and returns it. Any other state is an
// invalid_transition error.
func (s *JobService) Retry(ctx context.Context, id uuid.UUID) (domain.Job, error) {
	if err := s.ledger.Retry(ctx, id); err != nil {
		return domain.Job{}, err
	}
	s.log.Infow("job requeued", "job_id", id)
	return s.ledger.Get(ctx, id)
}
