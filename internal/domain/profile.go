package domain

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
)

const (
	ProvenanceResume  = "resume"
	ProvenanceRoadmap = "roadmap"
)

type Skill struct {
	Name             string `json:"name"`
	Category         string `json:"category,omitempty"`
	ProficiencyLevel string `json:"proficiencyLevel,omitempty"`
	Provenance       string `json:"provenance,omitempty"`
}

// Classification is the structured extraction of a profile. Only skills are
// interpreted here; every other key is carried through untouched.
type Classification struct {
	Skills []Skill
	Fields map[string]json.RawMessage
}

type RoleRequirements struct {
	Satisfied []string `json:"satisfied"`
	Missing   []string `json:"missing"`
}

type CompetitiveAnalysis struct {
	BaselineScore    *float64
	OverallScore     *float64
	MarketReadiness  *int
	PeerComparison   string
	TimeToTarget     string
	RoleRequirements RoleRequirements
	Fields           map[string]json.RawMessage
}

type Assessment struct {
	CompetitiveAnalysis CompetitiveAnalysis
	Strengths           []string
	Fields              map[string]json.RawMessage
}

type RoadmapStep struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description,omitempty"`
	Category    string `json:"category,omitempty"`
}

// Subject is the profile under analysis. It belongs to a collaborator; the
// pipeline reads it and writes back the two derived sections.
type Subject struct {
	ID             uuid.UUID
	OwnerID        *uuid.UUID
	Text           string
	Classification Classification
	Assessment     Assessment
	UpdatedAt      time.Time
}

// Requirement is a captured hiring context (role description, wanted skills)
// that an analysis can be run against.
type Requirement struct {
	ID          uuid.UUID
	OwnerID     uuid.UUID
	Title       string
	Description string
	Skills      []string
	CompletedAt *time.Time
}

type classificationKnown struct {
	Skills []Skill `json:"skills"`
}

func (c Classification) MarshalJSON() ([]byte, error) {
	skills := c.Skills
	if skills == nil {
		skills = []Skill{}
	}
	return marshalWithFields(classificationKnown{Skills: skills}, c.Fields)
}

func (c *Classification) UnmarshalJSON(b []byte) error {
	var known classificationKnown
	fields, err := unmarshalWithFields(b, &known, "skills")
	if err != nil {
		return err
	}
	c.Skills = known.Skills
	c.Fields = fields
	return nil
}

type competitiveKnown struct {
	BaselineScore    *float64         `json:"baselineScore,omitempty"`
	OverallScore     *float64         `json:"overallScore,omitempty"`
	MarketReadiness  *int             `json:"marketReadiness,omitempty"`
	PeerComparison   string           `json:"peerComparison,omitempty"`
	TimeToTarget     string           `json:"timeToTarget,omitempty"`
	RoleRequirements RoleRequirements `json:"roleRequirements"`
}

func (c CompetitiveAnalysis) MarshalJSON() ([]byte, error) {
	req := c.RoleRequirements
	if req.Satisfied == nil {
		req.Satisfied = []string{}
	}
	if req.Missing == nil {
		req.Missing = []string{}
	}
	return marshalWithFields(competitiveKnown{
		BaselineScore:    c.BaselineScore,
		OverallScore:     c.OverallScore,
		MarketReadiness:  c.MarketReadiness,
		PeerComparison:   c.PeerComparison,
		TimeToTarget:     c.TimeToTarget,
		RoleRequirements: req,
	}, c.Fields)
}

func (c *CompetitiveAnalysis) UnmarshalJSON(b []byte) error {
	var known competitiveKnown
	fields, err := unmarshalWithFields(b, &known,
		"baselineScore", "overallScore", "marketReadiness", "peerComparison", "timeToTarget", "roleRequirements")
	if err != nil {
		return err
	}
	*c = CompetitiveAnalysis{
		BaselineScore:    known.BaselineScore,
		OverallScore:     known.OverallScore,
		MarketReadiness:  known.MarketReadiness,
		PeerComparison:   known.PeerComparison,
		TimeToTarget:     known.TimeToTarget,
		RoleRequirements: known.RoleRequirements,
		Fields:           fields,
	}
	return nil
}

type assessmentKnown struct {
	CompetitiveAnalysis CompetitiveAnalysis `json:"competitiveAnalysis"`
	Strengths           []string            `json:"strengths"`
}

func (a Assessment) MarshalJSON() ([]byte, error) {
	strengths := a.Strengths
	if strengths == nil {
		strengths = []string{}
	}
	return marshalWithFields(assessmentKnown{
		CompetitiveAnalysis: a.CompetitiveAnalysis,
		Strengths:           strengths,
	}, a.Fields)
}

func (a *Assessment) UnmarshalJSON(b []byte) error {
	var known assessmentKnown
	fields, err := unmarshalWithFields(b, &known, "competitiveAnalysis", "strengths")
	if err != nil {
		return err
	}
	*a = Assessment{
		CompetitiveAnalysis: known.CompetitiveAnalysis,
		Strengths:           known.Strengths,
		Fields:              fields,
	}
	return nil
}

// marshalWithFields writes the known struct and then any extra fields it
// does not already define. Map marshaling sorts keys, so output is stable.
func marshalWithFields(known any, fields map[string]json.RawMessage) ([]byte, error) {
	b, err := json.Marshal(known)
	if err != nil {
		return nil, err
	}
	if len(fields) == 0 {
		return b, nil
	}
	merged := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &merged); err != nil {
		return nil, err
	}
	for k, v := range fields {
		if _, exists := merged[k]; !exists {
			merged[k] = v
		}
	}
	return json.Marshal(merged)
}

func unmarshalWithFields(b []byte, known any, knownKeys ...string) (map[string]json.RawMessage, error) {
	if string(b) == "null" {
		return nil, nil
	}
	if err := json.Unmarshal(b, known); err != nil {
		return nil, err
	}
	fields := map[string]json.RawMessage{}
	if err := json.Unmarshal(b, &fields); err != nil {
		return nil, err
	}
	for _, k := range knownKeys {
		delete(fields, k)
	}
	if len(fields) == 0 {
		return nil, nil
	}
	return fields, nil
}
