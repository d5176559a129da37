package usecase

import (
	"context"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"go.uber.org/zap"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/model"
	"profile-analyzer/internal/progress"
)

// ProgressService applies roadmap toggles to a subject without calling a
// generation backend.
type ProgressService struct {
	ledger   Ledger
	subjects SubjectStore
	log      *zap.SugaredLogger
}

func NewProgressService(ledger Ledger, subjects SubjectStore) *ProgressService {
	return &ProgressService{ledger: ledger, subjects: subjects, log: zap.S().Named("progress")}
}

// SyncProgress recomputes the subject snapshot after stepID was toggled and
// persists it. The roadmap comes from the subject's latest successful
// analysis; a subject without one is synced against an empty roadmap.
func (s *ProgressService) SyncProgress(ctx context.Context, subjectID uuid.UUID, stepID string, completed bool, completionSet []string) (progress.Snapshot, error) {
	subject, err := s.subjects.GetSubject(ctx, subjectID)
	if err != nil {
		return progress.Snapshot{}, err
	}

	in := progress.Input{
		Classification: subject.Classification,
		Assessment:     subject.Assessment,
		Completed:      NormalizeCompletion(completionSet, stepID, completed),
	}

	job, err := s.ledger.LatestSuccess(ctx, subjectID)
	switch {
	case err == nil:
		result, _ := job.Result()
		analysis, err := model.ParseAnalysis(result)
		if err != nil {
			return progress.Snapshot{}, errors.Wrapf(err, "decoding result of job %s", job.ID)
		}
		in.Steps = analysis.Roadmap
		if isEmptyAssessment(subject.Assessment) && analysis.Assessment != nil {
			in.Assessment = *analysis.Assessment
		}
	case domain.IsKind(err, domain.KindNotFound):
	default:
		return progress.Snapshot{}, err
	}

	snap := progress.Sync(in)
	if err := s.subjects.SaveSnapshot(ctx, subjectID, snap.Classification, snap.Assessment); err != nil {
		return progress.Snapshot{}, err
	}
	s.log.Debugw("progress synced", "subject_id", subjectID, "step_id", stepID, "completed", len(in.Completed))
	return snap, nil
}

// NormalizeCompletion adds or removes stepID and drops blanks and
// duplicates, keeping first-seen order. A newly completed step goes last.
func NormalizeCompletion(set []string, stepID string, completed bool) []string {
	seen := make(map[string]bool, len(set)+1)
	out := make([]string, 0, len(set)+1)
	for _, id := range set {
		if id == "" || seen[id] || id == stepID {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	if completed && stepID != "" {
		out = append(out, stepID)
	}
	return out
}

func isEmptyAssessment(a domain.Assessment) bool {
	ca := a.CompetitiveAnalysis
	return ca.BaselineScore == nil && ca.OverallScore == nil &&
		len(a.Strengths) == 0 && len(a.Fields) == 0 &&
		len(ca.RoleRequirements.Satisfied) == 0 && len(ca.RoleRequirements.Missing) == 0
}
