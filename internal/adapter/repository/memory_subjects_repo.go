package repository

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"

	"profile-analyzer/internal/domain"
)

// MemorySubjectsRepo keeps subjects and requirements in process. Values are
// deep-copied through JSON on the way in and out so callers never share
// slices with the store.
type MemorySubjectsRepo struct {
	mu           sync.RWMutex
	subjects     map[uuid.UUID]domain.Subject
	requirements map[uuid.UUID]domain.Requirement
	now          func() time.Time
}

func NewMemorySubjectsRepo() *MemorySubjectsRepo {
	return &MemorySubjectsRepo{
		subjects:     map[uuid.UUID]domain.Subject{},
		requirements: map[uuid.UUID]domain.Requirement{},
		now:          time.Now,
	}
}

func (r *MemorySubjectsRepo) GetSubject(_ context.Context, id uuid.UUID) (domain.Subject, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.subjects[id]
	if !ok {
		return domain.Subject{}, domain.NewSubjectNotFoundError(id)
	}
	return cloneSubject(s)
}

func (r *MemorySubjectsRepo) SaveSubject(_ context.Context, s domain.Subject) error {
	c, err := cloneSubject(s)
	if err != nil {
		return err
	}
	c.UpdatedAt = r.now().UTC()
	r.mu.Lock()
	r.subjects[s.ID] = c
	r.mu.Unlock()
	return nil
}

func (r *MemorySubjectsRepo) SaveSnapshot(_ context.Context, id uuid.UUID, c domain.Classification, a domain.Assessment) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.subjects[id]
	if !ok {
		return domain.NewSubjectNotFoundError(id)
	}
	s.Classification = c
	s.Assessment = a
	cl, err := cloneSubject(s)
	if err != nil {
		return err
	}
	cl.UpdatedAt = r.now().UTC()
	r.subjects[id] = cl
	return nil
}

func (r *MemorySubjectsRepo) GetRequirement(_ context.Context, id uuid.UUID) (domain.Requirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	req, ok := r.requirements[id]
	if !ok {
		return domain.Requirement{}, domain.NewRequirementNotFoundError(id)
	}
	req.Skills = append([]string(nil), req.Skills...)
	return req, nil
}

func (r *MemorySubjectsRepo) LatestCompletedRequirement(_ context.Context, ownerID uuid.UUID) (*domain.Requirement, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var best *domain.Requirement
	for _, req := range r.requirements {
		if req.OwnerID != ownerID || req.CompletedAt == nil {
			continue
		}
		if best == nil || req.CompletedAt.After(*best.CompletedAt) ||
			(req.CompletedAt.Equal(*best.CompletedAt) && req.ID.String() > best.ID.String()) {
			c := req
			best = &c
		}
	}
	if best != nil {
		best.Skills = append([]string(nil), best.Skills...)
	}
	return best, nil
}

func (r *MemorySubjectsRepo) SaveRequirement(_ context.Context, req domain.Requirement) error {
	req.Skills = append([]string(nil), req.Skills...)
	r.mu.Lock()
	r.requirements[req.ID] = req
	r.mu.Unlock()
	return nil
}

func cloneSubject(s domain.Subject) (domain.Subject, error) {
	out := s
	b, err := json.Marshal(s.Classification)
	if err != nil {
		return domain.Subject{}, err
	}
	out.Classification = domain.Classification{}
	if err := json.Unmarshal(b, &out.Classification); err != nil {
		return domain.Subject{}, err
	}
	b, err = json.Marshal(s.Assessment)
	if err != nil {
		return domain.Subject{}, err
	}
	out.Assessment = domain.Assessment{}
	if err := json.Unmarshal(b, &out.Assessment); err != nil {
		return domain.Subject{}, err
	}
	return out, nil
}
