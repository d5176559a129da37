package usecase

import (
	"context"
	"encoding/json"
	"strings"

	"github.com/pkg/errors"
	"go.uber.org/zap"

	"profile-analyzer/internal/domain"
	"profile-analyzer/internal/model"
)

// Processor runs one analysis: resolve context, prompt, structured
// generation. It also merges a finished result back into the subject.
type Processor struct {
	resolver  *ContextResolver
	generator Generator
	subjects  SubjectStore
	log       *zap.SugaredLogger
}

func NewProcessor(resolver *ContextResolver, generator Generator, subjects SubjectStore) *Processor {
	return &Processor{
		resolver:  resolver,
		generator: generator,
		subjects:  subjects,
		log:       zap.S().Named("processor"),
	}
}

func (p *Processor) Analyze(ctx context.Context, job domain.Job) (json.RawMessage, error) {
	ac, err := p.resolver.Resolve(ctx, job)
	if err != nil {
		return nil, err
	}
	if ac.Fallback {
		p.log.Infow("using owner's latest requirement", "job_id", job.ID, "requirement_id", ac.Requirement.ID)
	}

	prompt, err := BuildPrompt(ac)
	if err != nil {
		return nil, errors.Wrap(err, "building prompt")
	}

	res, err := p.generator.GenerateJSON(ctx, prompt, job.BackendKey)
	if err != nil {
		return nil, err
	}
	p.log.Infow("analysis generated",
		"job_id", job.ID,
		"backend", res.Backend.Key,
		"strategy", res.Strategy,
		"attempts", res.Attempts,
		"fell_back", res.FellBack)

	result, err := json.Marshal(res.Value)
	if err != nil {
		return nil, errors.Wrap(err, "encoding result")
	}
	return result, nil
}

// Merge writes the extracted name, title, summary, years and skills into
// the subject's classification, and a generated assessment into its
// assessment. The new skills replace the previously extracted ones; skills
// of any other origin are kept unless the analysis names them too. An
// existing baseline score is never replaced.
func (p *Processor) Merge(ctx context.Context, job domain.Job, result json.RawMessage) error {
	analysis, err := model.ParseAnalysis(result)
	if err != nil {
		return errors.Wrapf(err, "decoding result of job %s", job.ID)
	}
	subject, err := p.subjects.GetSubject(ctx, job.SubjectID)
	if err != nil {
		return err
	}

	classification := mergeClassification(subject.Classification, analysis)
	assessment := subject.Assessment
	if analysis.Assessment != nil {
		assessment = *analysis.Assessment
		if prev := subject.Assessment.CompetitiveAnalysis.BaselineScore; prev != nil {
			assessment.CompetitiveAnalysis.BaselineScore = prev
		}
	}
	return p.subjects.SaveSnapshot(ctx, subject.ID, classification, assessment)
}

func mergeClassification(prev domain.Classification, a model.Analysis) domain.Classification {
	fields := make(map[string]json.RawMessage, len(prev.Fields)+4)
	for k, v := range prev.Fields {
		fields[k] = v
	}
	setString := func(key, v string) {
		if v = strings.TrimSpace(v); v != "" {
			fields[key], _ = json.Marshal(v)
		}
	}
	setString("name", a.Name)
	setString("title", a.Title)
	setString("summary", a.Summary)
	if a.YearsOfExperience != nil {
		fields["yearsOfExperience"], _ = json.Marshal(*a.YearsOfExperience)
	}

	skills := a.DomainSkills()
	named := make(map[string]bool, len(skills))
	for _, s := range skills {
		named[strings.ToLower(s.Name)] = true
	}
	// A new extraction replaces only the previous extraction. Roadmap skills
	// and skills of any other origin survive unless the analysis names them.
	for _, s := range prev.Skills {
		key := strings.ToLower(s.Name)
		if s.Provenance == domain.ProvenanceResume || named[key] {
			continue
		}
		named[key] = true
		skills = append(skills, s)
	}
	return domain.Classification{Skills: skills, Fields: fields}
}
