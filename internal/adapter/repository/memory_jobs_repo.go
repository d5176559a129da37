package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"profile-analyzer/internal/domain"
)

// MemoryJobsRepo is a process-local ledger for tests and single-shot runs.
type MemoryJobsRepo struct {
	mu   sync.Mutex
	jobs map[uuid.UUID]*memJob
	seq  int64
	now  func() time.Time
}

type memJob struct {
	job domain.Job
	seq int64
}

func NewMemoryJobsRepo() *MemoryJobsRepo {
	return &MemoryJobsRepo{jobs: map[uuid.UUID]*memJob{}, now: time.Now}
}

// WithClock replaces the time source. Used by tests.
func (r *MemoryJobsRepo) WithClock(now func() time.Time) *MemoryJobsRepo {
	r.now = now
	return r
}

func (r *MemoryJobsRepo) Create(_ context.Context, nj domain.NewJob) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	now := r.now().UTC()
	r.seq++
	j := domain.Job{
		ID:            uuid.New(),
		SubjectID:     nj.SubjectID,
		RequirementID: nj.RequirementID,
		BackendKey:    nj.BackendKey,
		Status:        domain.StatusQueued,
		Outcome:       domain.Pending{},
		CreatedAt:     now,
		UpdatedAt:     now,
	}
	r.jobs[j.ID] = &memJob{job: j, seq: r.seq}
	return j, nil
}

func (r *MemoryJobsRepo) ClaimBatch(_ context.Context, n int) ([]domain.Job, error) {
	if n <= 0 {
		return nil, nil
	}
	r.mu.Lock()
	defer r.mu.Unlock()

	queued := make([]*memJob, 0)
	for _, m := range r.jobs {
		if m.job.Status == domain.StatusQueued {
			queued = append(queued, m)
		}
	}
	sortOldestFirst(queued)
	if len(queued) > n {
		queued = queued[:n]
	}

	out := make([]domain.Job, 0, len(queued))
	for _, m := range queued {
		r.start(m)
		out = append(out, m.job)
	}
	return out, nil
}

func (r *MemoryJobsRepo) MarkRunning(_ context.Context, id uuid.UUID) error {
	return r.transition(id, domain.StatusRunning, r.start)
}

func (r *MemoryJobsRepo) MarkSuccess(_ context.Context, id uuid.UUID, result json.RawMessage) error {
	if len(result) == 0 {
		return fmt.Errorf("job %s: success requires a result", id)
	}
	stored := append(json.RawMessage(nil), result...)
	return r.transition(id, domain.StatusSuccess, func(m *memJob) {
		m.job.Outcome = domain.Success{Result: stored}
		r.finish(m)
	})
}

func (r *MemoryJobsRepo) MarkFailed(_ context.Context, id uuid.UUID, msg string) error {
	return r.transition(id, domain.StatusFailed, func(m *memJob) {
		m.job.Outcome = domain.Failure{Message: msg}
		r.finish(m)
	})
}

func (r *MemoryJobsRepo) Retry(_ context.Context, id uuid.UUID) error {
	return r.transition(id, domain.StatusQueued, func(m *memJob) {
		m.job.Outcome = domain.Pending{}
		m.job.StartedAt = nil
		m.job.FinishedAt = nil
	})
}

func (r *MemoryJobsRepo) FailStale(_ context.Context, startedBefore time.Time, msg string) ([]uuid.UUID, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	stale := make([]*memJob, 0)
	for _, m := range r.jobs {
		if m.job.Status == domain.StatusRunning && m.job.StartedAt != nil && m.job.StartedAt.Before(startedBefore) {
			stale = append(stale, m)
		}
	}
	sortOldestFirst(stale)

	now := r.now().UTC()
	ids := make([]uuid.UUID, 0, len(stale))
	for _, m := range stale {
		m.job.Status = domain.StatusFailed
		m.job.Outcome = domain.Failure{Message: msg}
		m.job.FinishedAt = &now
		m.job.UpdatedAt = now
		ids = append(ids, m.job.ID)
	}
	return ids, nil
}

func (r *MemoryJobsRepo) Get(_ context.Context, id uuid.UUID) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	m, ok := r.jobs[id]
	if !ok {
		return domain.Job{}, domain.NewJobNotFoundError(id)
	}
	return m.job, nil
}

// List returns matching jobs newest first.
func (r *MemoryJobsRepo) List(_ context.Context, f domain.JobFilter) ([]domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	matched := make([]*memJob, 0)
	for _, m := range r.jobs {
		if f.Status != nil && m.job.Status != *f.Status {
			continue
		}
		if f.SubjectID != nil && m.job.SubjectID != *f.SubjectID {
			continue
		}
		matched = append(matched, m)
	}
	sortOldestFirst(matched)

	limit := normalizeLimit(f.Limit)
	out := make([]domain.Job, 0, min(limit, len(matched)))
	for i := len(matched) - 1; i >= 0 && len(out) < limit; i-- {
		out = append(out, matched[i].job)
	}
	return out, nil
}

func (r *MemoryJobsRepo) CountByStatus(_ context.Context) (map[domain.Status]int, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	counts := emptyCounts()
	for _, m := range r.jobs {
		counts[m.job.Status]++
	}
	return counts, nil
}

func (r *MemoryJobsRepo) LatestSuccess(_ context.Context, subjectID uuid.UUID) (domain.Job, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	var best *memJob
	for _, m := range r.jobs {
		if m.job.SubjectID != subjectID || m.job.Status != domain.StatusSuccess {
			continue
		}
		if best == nil || finishedAfter(m, best) {
			best = m
		}
	}
	if best == nil {
		return domain.Job{}, domain.NewNoAnalysisError(subjectID)
	}
	return best.job, nil
}

func (r *MemoryJobsRepo) transition(id uuid.UUID, to domain.Status, apply func(*memJob)) error {
	r.mu.Lock()
	defer r.mu.Unlock()

	m, ok := r.jobs[id]
	if !ok {
		return domain.NewJobNotFoundError(id)
	}
	if !m.job.Status.CanTransition(to) {
		return domain.NewInvalidTransitionError(id, m.job.Status, to)
	}
	apply(m)
	m.job.Status = to
	m.job.UpdatedAt = r.now().UTC()
	return nil
}

// start applies the claim edge. Callers hold the lock.
func (r *MemoryJobsRepo) start(m *memJob) {
	now := r.now().UTC()
	m.job.Status = domain.StatusRunning
	m.job.Attempts++
	m.job.StartedAt = &now
	m.job.UpdatedAt = now
}

func (r *MemoryJobsRepo) finish(m *memJob) {
	now := r.now().UTC()
	m.job.FinishedAt = &now
}

func sortOldestFirst(jobs []*memJob) {
	sort.Slice(jobs, func(i, j int) bool {
		if !jobs[i].job.CreatedAt.Equal(jobs[j].job.CreatedAt) {
			return jobs[i].job.CreatedAt.Before(jobs[j].job.CreatedAt)
		}
		return jobs[i].seq < jobs[j].seq
	})
}

func finishedAfter(a, b *memJob) bool {
	af, bf := a.job.FinishedAt, b.job.FinishedAt
	if af != nil && bf != nil && !af.Equal(*bf) {
		return af.After(*bf)
	}
	return a.seq > b.seq
}

const (
	defaultListLimit = 50
	maxListLimit     = 500
)

func normalizeLimit(n int) int {
	if n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func emptyCounts() map[domain.Status]int {
	counts := make(map[domain.Status]int, len(domain.Statuses))
	for _, s := range domain.Statuses {
		counts[s] = 0
	}
	return counts
}
