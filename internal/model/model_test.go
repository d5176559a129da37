package model

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"profile-analyzer/internal/domain"
)

func decode(t *testing.T, s string) map[string]any {
	t.Helper()
	var m map[string]any
	require.NoError(t, json.Unmarshal([]byte(s), &m))
	return m
}

func TestSchemaValidatorAccepts(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	for _, doc := range []string{
		`{"skills":["Go"]}`,
		`{"skills":[]}`,
		`{"name":"Ada","title":"Engineer","yearsOfExperience":7,"skills":["Go",{"name":"Kubernetes","category":"technical"}]}`,
		`{"skills":["Go"],"assessment":{"strengths":["Delivery"],"competitiveAnalysis":{"overallScore":72}}}`,
		`{"skills":["Go"],"roadmap":[{"id":"step-1","title":"Learn Kubernetes fundamentals","category":"learning"}]}`,
		`{"skills":["Go"],"name":null,"extra":{"anything":true}}`,
	} {
		assert.NoError(t, v.Validate(decode(t, doc)), doc)
	}
}

func TestSchemaValidatorRejects(t *testing.T) {
	v, err := NewSchemaValidator()
	require.NoError(t, err)

	for _, doc := range []string{
		`{}`,
		`{"skills":"Go"}`,
		`{"skills":[""]}`,
		`{"skills":[{"category":"technical"}]}`,
		`{"skills":["Go"],"yearsOfExperience":-1}`,
		`{"skills":["Go"],"roadmap":[{"title":"no id"}]}`,
		`{"skills":["Go"],"assessment":{"competitiveAnalysis":{"overallScore":140}}}`,
	} {
		err := v.Validate(decode(t, doc))
		require.Error(t, err, doc)
		assert.Contains(t, err.Error(), "schema validation failed")
	}
}

func TestParseAnalysisMixedSkills(t *testing.T) {
	a, err := ParseAnalysis([]byte(`{
		"name": "Ada",
		"yearsOfExperience": 7.5,
		"skills": ["Go", {"name": "Kubernetes", "category": "technical", "proficiencyLevel": "advanced"}, "go", " "],
		"roadmap": [{"id": "step-1", "title": "Learn Rust"}]
	}`))
	require.NoError(t, err)
	assert.Equal(t, "Ada", a.Name)
	require.NotNil(t, a.YearsOfExperience)
	assert.Equal(t, 7.5, *a.YearsOfExperience)
	assert.Len(t, a.Roadmap, 1)

	assert.Equal(t, []domain.Skill{
		{Name: "Go", Provenance: domain.ProvenanceResume},
		{Name: "Kubernetes", Category: "technical", ProficiencyLevel: "advanced", Provenance: domain.ProvenanceResume},
	}, a.DomainSkills())
}

func TestParseAnalysisRejectsBadSkill(t *testing.T) {
	_, err := ParseAnalysis([]byte(`{"skills":[42]}`))
	assert.Error(t, err)
}
