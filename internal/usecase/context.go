package usecase

import (
	"context"

	"github.com/pkg/errors"

	"profile-analyzer/internal/config"
	"profile-analyzer/internal/domain"
)

// AnalysisContext is everything the prompt is built from.
type AnalysisContext struct {
	Subject     domain.Subject
	Requirement *domain.Requirement
	// Fallback is set when Requirement was picked by the owner policy rather
	// than linked to the job.
	Fallback bool
}

// ContextError means the owning context of a job could not be determined.
// It is not transient: the worker fails the rest of the batch with it.
type ContextError struct {
	Err error
}

func (e *ContextError) Error() string { return e.Err.Error() }
func (e *ContextError) Unwrap() error { return e.Err }

// ContextResolver finds the subject and requirement a job is analysed
// against.
type ContextResolver struct {
	subjects SubjectStore
	policy   string
}

func NewContextResolver(subjects SubjectStore, policy string) *ContextResolver {
	if policy == "" {
		policy = config.PolicyLatestForOwner
	}
	return &ContextResolver{subjects: subjects, policy: policy}
}

// Resolve applies, in order: the requirement linked to the job, then (with
// the latest_for_owner policy) the owner's most recently completed
// requirement, then no requirement at all.
func (r *ContextResolver) Resolve(ctx context.Context, job domain.Job) (AnalysisContext, error) {
	subject, err := r.subjects.GetSubject(ctx, job.SubjectID)
	if err != nil {
		return AnalysisContext{}, err
	}
	ac := AnalysisContext{Subject: subject}

	if job.RequirementID != nil {
		req, err := r.subjects.GetRequirement(ctx, *job.RequirementID)
		if domain.IsKind(err, domain.KindNotFound) {
			return AnalysisContext{}, &ContextError{Err: domain.NewConfigurationError(
				"requirement %s linked to job %s does not exist", *job.RequirementID, job.ID)}
		}
		if err != nil {
			return AnalysisContext{}, err
		}
		ac.Requirement = &req
		return ac, nil
	}

	if r.policy != config.PolicyLatestForOwner {
		return ac, nil
	}
	if subject.OwnerID == nil {
		return AnalysisContext{}, &ContextError{Err: domain.NewConfigurationError(
			"subject %s has no owner; cannot resolve an analysis context", subject.ID)}
	}
	req, err := r.subjects.LatestCompletedRequirement(ctx, *subject.OwnerID)
	if err != nil {
		return AnalysisContext{}, errors.Wrapf(err, "resolving context of job %s", job.ID)
	}
	if req != nil {
		ac.Requirement = req
		ac.Fallback = true
	}
	return ac, nil
}
