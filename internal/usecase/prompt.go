package usecase

import (
	"bytes"
	"strings"
	"text/template"
)

const analysisPrompt = `You are a career analyst. Read the profile below and return ONLY a JSON object, no prose and no markdown.

The object must have this shape:
{
  "name": string,
  "title": string,
  "summary": string,
  "yearsOfExperience": number,
  "skills": [{"name": string, "category": string, "proficiencyLevel": "beginner"|"intermediate"|"advanced"|"expert"}],
  "assessment": {
    "strengths": [string],
    "competitiveAnalysis": {
      "overallScore": number between 0 and 100,
      "roleRequirements": {"satisfied": [string], "missing": [string]}
    }
  },
  "roadmap": [{"id": "step-1", "title": string, "description": string, "category": "learning"|"project"|"networking"|"certification"}]
}
{{if .Requirement}}
Evaluate the profile against this target role. Every requirement must appear in exactly one of
roleRequirements.satisfied or roleRequirements.missing, and the roadmap must address the missing ones.

Role: {{.Requirement.Title}}
{{- if .Requirement.Description}}
Description: {{.Requirement.Description}}
{{- end}}
{{- if .Requirement.Skills}}
Required skills: {{join .Requirement.Skills ", "}}
{{- end}}
{{else}}
No target role was given. Evaluate the profile against the market for its current title.
{{end}}
Profile:
"""
{{.Subject.Text}}
"""
`

var promptTemplate = template.Must(template.New("analysis").
	Funcs(template.FuncMap{"join": strings.Join}).
	Parse(analysisPrompt))

// BuildPrompt renders the analysis prompt for a resolved context.
func BuildPrompt(ac AnalysisContext) (string, error) {
	var buf bytes.Buffer
	if err := promptTemplate.Execute(&buf, ac); err != nil {
		return "", err
	}
	return buf.String(), nil
}
