// Package report renders a finished analysis as a standalone HTML page.
package report

import (
	"bytes"
	"embed"
	"html/template"
	"strconv"
	"time"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/model"
)

//go:embed templates/report.html
var templatesFS embed.FS

var reportTemplate = template.Must(template.New("report.html").
	Funcs(template.FuncMap{
		"score": func(v *float64) string { return strconv.FormatFloat(*v, 'f', 0, 64) },
		"years": func(v *float64) string { return strconv.FormatFloat(*v, 'f', -1, 64) },
	}).
	ParseFS(templatesFS, "templates/report.html"))

type Data struct {
	Job        domain.Job
	Analysis   model.Analysis
	Skills     []domain.Skill
	Assessment *domain.Assessment
	Generated  string
}

// NewData combines a job's analysis with the subject's current snapshot.
// The snapshot wins when present since it carries roadmap progress.
func NewData(job domain.Job, analysis model.Analysis, subject *domain.Subject, now time.Time) Data {
	d := Data{
		Job:        job,
		Analysis:   analysis,
		Skills:     analysis.DomainSkills(),
		Assessment: analysis.Assessment,
		Generated:  now.UTC().Format("2006-01-02 15:04 MST"),
	}
	if subject == nil {
		return d
	}
	if len(subject.Classification.Skills) > 0 {
		d.Skills = subject.Classification.Skills
	}
	ca := subject.Assessment.CompetitiveAnalysis
	if ca.OverallScore != nil || len(subject.Assessment.Strengths) > 0 {
		a := subject.Assessment
		d.Assessment = &a
	}
	return d
}

func Render(d Data) (string, error) {
	var buf bytes.Buffer
	if err := reportTemplate.Execute(&buf, d); err != nil {
		return "", err
	}
	return buf.String(), nil
}
