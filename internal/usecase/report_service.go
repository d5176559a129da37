package usecase

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/model"
	"profile-analyzer/internal/report"
)

// ReportService renders successful jobs as HTML, and as PDF when a
// renderer is configured.
type ReportService struct {
	ledger   Ledger
	subjects SubjectStore
	renderer Renderer
	now      func() time.Time
}

// NewReportService accepts a nil renderer; PDF export then fails with a
// configuration error.
func NewReportService(ledger Ledger, subjects SubjectStore, renderer Renderer) *ReportService {
	return &ReportService{ledger: ledger, subjects: subjects, renderer: renderer, now: time.Now}
}

func (s *ReportService) HTML(ctx context.Context, jobID uuid.UUID) (string, error) {
	job, err := s.ledger.Get(ctx, jobID)
	if err != nil {
		return "", err
	}
	result, ok := job.Result()
	if !ok {
		return "", domain.NewJobNotFinishedError(job.ID, job.Status)
	}
	analysis, err := model.ParseAnalysis(result)
	if err != nil {
		return "", errors.Wrapf(err, "decoding result of job %s", job.ID)
	}

	var subject *domain.Subject
	if sub, err := s.subjects.GetSubject(ctx, job.SubjectID); err == nil {
		subject = &sub
	} else if !domain.IsKind(err, domain.KindNotFound) {
		return "", err
	}

	html, err := report.Render(report.NewData(job, analysis, subject, s.now()))
	return html, errors.Wrap(err, "rendering report")
}

func (s *ReportService) PDF(ctx context.Context, jobID uuid.UUID) ([]byte, error) {
	if s.renderer == nil {
		return nil, domain.NewConfigurationError("PDF rendering is not enabled")
	}
	html, err := s.HTML(ctx, jobID)
	if err != nil {
		return nil, err
	}
	pdf, err := s.renderer.RenderHTMLToPDF(ctx, html)
	if err != nil {
		return nil, errors.Wrap(err, "printing report")
	}
	return pdf, nil
}
