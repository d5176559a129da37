package model

// Go models that match analysis.schema.json, used to merge a finished
// analysis into the subject and to render reports.

import (
	"encoding/json"
	"fmt"
	"strings"

	"profile-analyzer/internal/domain"
)

// AnalysisSkill accepts either a bare skill name or a skill object.
type AnalysisSkill struct {
	Name             string `json:"name"`
	Category         string `json:"category,omitempty"`
	ProficiencyLevel string `json:"proficiencyLevel,omitempty"`
}

func (s *AnalysisSkill) UnmarshalJSON(b []byte) error {
	var name string
	if err := json.Unmarshal(b, &name); err == nil {
		*s = AnalysisSkill{Name: name}
		return nil
	}
	type plain AnalysisSkill
	var p plain
	if err := json.Unmarshal(b, &p); err != nil {
		return fmt.Errorf("skill must be a string or an object: %w", err)
	}
	*s = AnalysisSkill(p)
	return nil
}

type Analysis struct {
	Name              string               `json:"name,omitempty"`
	Title             string               `json:"title,omitempty"`
	Summary           string               `json:"summary,omitempty"`
	YearsOfExperience *float64             `json:"yearsOfExperience,omitempty"`
	Skills            []AnalysisSkill      `json:"skills"`
	Assessment        *domain.Assessment   `json:"assessment,omitempty"`
	Roadmap           []domain.RoadmapStep `json:"roadmap,omitempty"`
}

func ParseAnalysis(raw []byte) (Analysis, error) {
	var a Analysis
	if err := json.Unmarshal(raw, &a); err != nil {
		return Analysis{}, err
	}
	return a, nil
}

// DomainSkills converts the extracted skills into resume-provenance skills,
// dropping blanks and case-insensitive duplicates.
func (a Analysis) DomainSkills() []domain.Skill {
	seen := map[string]bool{}
	out := make([]domain.Skill, 0, len(a.Skills))
	for _, s := range a.Skills {
		name := strings.TrimSpace(s.Name)
		key := strings.ToLower(name)
		if name == "" || seen[key] {
			continue
		}
		seen[key] = true
		out = append(out, domain.Skill{
			Name:             name,
			Category:         s.Category,
			ProficiencyLevel: s.ProficiencyLevel,
			Provenance:       domain.ProvenanceResume,
		})
	}
	return out
}
