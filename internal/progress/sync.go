// Package progress recomputes the derived sections of a profile from the
// roadmap steps a user has completed. It never calls a generation backend:
// the same input always yields the same output.
package progress

import (
	"math"
	"regexp"
	"strings"
	"unicode"
	"unicode/utf8"

	"profile-analyzer/internal/domain"
)

const (
	DefaultBaselineScore = 55.0
	maxRoadmapBonus      = 30.0
	bonusPerStep         = 0.5
	maxScore             = 100.0
	maxCompletedEntries  = 3
	maxStrengths         = 10
	completedPrefix      = "Completed: "
)

type Input struct {
	Classification domain.Classification
	Assessment     domain.Assessment
	Steps          []domain.RoadmapStep
	Completed      []string
}

type Snapshot struct {
	Classification domain.Classification `json:"classification"`
	Assessment     domain.Assessment     `json:"assessment"`
}

var learningCategories = map[string]bool{
	"learning":          true,
	"skill":             true,
	"skills":            true,
	"skill-development": true,
	"skill_development": true,
	"course":            true,
	"education":         true,
	"training":          true,
	"certification":     true,
}

var skillPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)\b(?:learn|master)\s+([a-z][\w+#.\-]*)`),
	regexp.MustCompile(`(?i)\b([a-z][\w+#.\-]*)\s+fundamentals\b`),
	regexp.MustCompile(`(?i)\b([a-z][\w+#.\-]*)\s+development\b`),
}

var skillStopwords = map[string]bool{
	"the": true, "and": true, "how": true, "about": true, "more": true,
	"basic": true, "basics": true, "advanced": true, "your": true, "new": true,
}

// Sync applies completed roadmap steps to a prior snapshot.
func Sync(in Input) Snapshot {
	done := completionSet(in.Completed)

	var completed []domain.RoadmapStep
	for _, s := range in.Steps {
		if done[s.ID] {
			completed = append(completed, s)
		}
	}

	skills := mergeSkills(in.Classification.Skills, extractSkills(completed))

	classification := domain.Classification{
		Skills: skills,
		Fields: in.Classification.Fields,
	}

	assessment := in.Assessment
	ca := assessment.CompetitiveAnalysis

	baseline := DefaultBaselineScore
	switch {
	case ca.BaselineScore != nil:
		baseline = *ca.BaselineScore
	case ca.OverallScore != nil:
		baseline = *ca.OverallScore
	}
	overall := math.Min(maxScore, baseline+math.Min(maxRoadmapBonus, bonusPerStep*float64(len(completed))))
	ca.BaselineScore = &baseline
	ca.OverallScore = &overall

	ratio := 0.0
	if len(in.Steps) > 0 {
		ratio = float64(len(completed)) / float64(len(in.Steps))
	}
	readiness := int(math.Round(100 * ratio))
	ca.MarketReadiness = &readiness
	ca.PeerComparison, ca.TimeToTarget = bands(ratio)

	ca.RoleRequirements = reconcileRequirements(ca.RoleRequirements, skills)
	assessment.CompetitiveAnalysis = ca
	assessment.Strengths = strengths(in.Assessment.Strengths, recentlyCompleted(in.Completed, in.Steps))

	return Snapshot{Classification: classification, Assessment: assessment}
}

func completionSet(ids []string) map[string]bool {
	set := make(map[string]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}

// An uncategorized step counts as learning.
func isLearningStep(s domain.RoadmapStep) bool {
	category := strings.ToLower(strings.TrimSpace(s.Category))
	return category == "" || learningCategories[category]
}

func extractSkills(steps []domain.RoadmapStep) []string {
	var out []string
	seen := map[string]bool{}
	for _, s := range steps {
		if !isLearningStep(s) {
			continue
		}
		text := s.Title + " " + s.Description
		for _, re := range skillPatterns {
			for _, m := range re.FindAllStringSubmatch(text, -1) {
				name := strings.Trim(m[1], ".-")
				if utf8.RuneCountInString(name) <= 2 || skillStopwords[strings.ToLower(name)] {
					continue
				}
				name = capitalize(name)
				key := strings.ToLower(name)
				if seen[key] {
					continue
				}
				seen[key] = true
				out = append(out, name)
			}
		}
	}
	return out
}

func capitalize(s string) string {
	r, size := utf8.DecodeRuneInString(s)
	return string(unicode.ToUpper(r)) + s[size:]
}

// mergeSkills drops every skill a previous sync synthesized and re-adds the
// ones the current completion set still supports. Skills from any other
// source are kept as they are.
func mergeSkills(existing []domain.Skill, extracted []string) []domain.Skill {
	out := make([]domain.Skill, 0, len(existing)+len(extracted))
	have := map[string]bool{}
	for _, s := range existing {
		if s.Provenance == domain.ProvenanceRoadmap {
			continue
		}
		out = append(out, s)
		have[strings.ToLower(s.Name)] = true
	}
	for _, name := range extracted {
		if have[strings.ToLower(name)] {
			continue
		}
		have[strings.ToLower(name)] = true
		out = append(out, domain.Skill{
			Name:             name,
			Category:         "technical",
			ProficiencyLevel: "beginner",
			Provenance:       domain.ProvenanceRoadmap,
		})
	}
	return out
}

func bands(ratio float64) (peer, timeToTarget string) {
	switch {
	case ratio >= 0.75:
		return "Top 10%", "Ready now"
	case ratio >= 0.5:
		return "Top 25%", "1-3 months"
	case ratio >= 0.25:
		return "Top 50%", "3-6 months"
	default:
		return "Bottom 50%", "6+ months"
	}
}

// reconcileRequirements re-evaluates every known requirement against the
// current skills, so a removed skill sends its requirement back to missing.
func reconcileRequirements(prev domain.RoleRequirements, skills []domain.Skill) domain.RoleRequirements {
	out := domain.RoleRequirements{Satisfied: []string{}, Missing: []string{}}
	seen := map[string]bool{}
	for _, req := range append(append([]string{}, prev.Satisfied...), prev.Missing...) {
		if strings.TrimSpace(req) == "" || seen[req] {
			continue
		}
		seen[req] = true
		if requirementMet(req, skills) {
			out.Satisfied = append(out.Satisfied, req)
		} else {
			out.Missing = append(out.Missing, req)
		}
	}
	return out
}

func requirementMet(req string, skills []domain.Skill) bool {
	r := strings.ToLower(strings.TrimSpace(req))
	if r == "" {
		return false
	}
	for _, s := range skills {
		name := strings.ToLower(strings.TrimSpace(s.Name))
		if name == "" {
			continue
		}
		if strings.Contains(r, name) || strings.Contains(name, r) {
			return true
		}
	}
	return false
}

// recentlyCompleted returns up to three completed steps, most recent last.
// The completion list is appended to as users check steps off.
func recentlyCompleted(ids []string, steps []domain.RoadmapStep) []domain.RoadmapStep {
	byID := make(map[string]domain.RoadmapStep, len(steps))
	for _, s := range steps {
		byID[s.ID] = s
	}
	var ordered []domain.RoadmapStep
	seen := map[string]bool{}
	for _, id := range ids {
		s, ok := byID[id]
		if !ok || seen[id] {
			continue
		}
		seen[id] = true
		ordered = append(ordered, s)
	}
	if len(ordered) > maxCompletedEntries {
		ordered = ordered[len(ordered)-maxCompletedEntries:]
	}
	return ordered
}

func strengths(prev []string, recent []domain.RoadmapStep) []string {
	out := make([]string, 0, len(prev)+len(recent))
	for _, s := range prev {
		if strings.HasPrefix(s, completedPrefix) {
			continue
		}
		out = append(out, s)
	}
	for _, s := range recent {
		out = append(out, completedPrefix+s.Title)
	}
	if len(out) > maxStrengths {
		out = out[:maxStrengths]
	}
	return out
}
