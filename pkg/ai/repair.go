package ai

import (
	"encoding/json"
	"errors"
	"strings"

	"github.com/kaptinlin/jsonrepair"

	"profile-analyzer/internal/domain"
)

// RepairStrategy names the step of the repair chain that produced a value.
type RepairStrategy string

const (
	StrategyStrict    RepairStrategy = "strict"
	StrategyFenced    RepairStrategy = "fenced"
	StrategyRepaired  RepairStrategy = "repaired"
	StrategyExtracted RepairStrategy = "extracted"
	StrategyFailed    RepairStrategy = "failed"
)

// ParseStructured turns generated text into a JSON object. It tries, in
// order: a strict parse of the text, a strict parse of the fence-stripped
// text, a parse of the repaired text, and a parse of the repaired substring
// between the first '{' and the last '}'. Only objects are accepted.
func ParseStructured(text string) (map[string]any, RepairStrategy, error) {
	value, firstErr := decodeObject(text)
	if firstErr == nil {
		return value, StrategyStrict, nil
	}

	stripped := stripFences(text)
	if stripped != strings.TrimSpace(text) {
		if value, err := decodeObject(stripped); err == nil {
			return value, StrategyFenced, nil
		}
	}

	if repaired, rerr := jsonrepair.JSONRepair(stripped); rerr == nil {
		if value, err := decodeObject(repaired); err == nil {
			return value, StrategyRepaired, nil
		}
	}

	start := strings.Index(text, "{")
	end := strings.LastIndex(text, "}")
	if start >= 0 && end > start {
		sub := text[start : end+1]
		if repaired, rerr := jsonrepair.JSONRepair(sub); rerr == nil {
			if value, err := decodeObject(repaired); err == nil {
				return value, StrategyExtracted, nil
			}
		}
	}

	return nil, StrategyFailed, domain.NewMalformedOutputError(firstErr, "output is not a valid JSON object")
}

var errNullObject = errors.New("output is null")

func decodeObject(s string) (map[string]any, error) {
	var out map[string]any
	if err := json.Unmarshal([]byte(s), &out); err != nil {
		return nil, err
	}
	if out == nil {
		return nil, errNullObject
	}
	return out, nil
}

// stripFences removes a leading ``` or ```json line and a trailing ``` line.
func stripFences(s string) string {
	s = strings.TrimSpace(s)
	if !strings.HasPrefix(s, "```") {
		return s
	}
	if nl := strings.IndexByte(s, '\n'); nl >= 0 {
		s = s[nl+1:]
	} else {
		s = strings.TrimPrefix(s, "```")
	}
	s = strings.TrimSpace(s)
	s = strings.TrimSuffix(s, "```")
	return strings.TrimSpace(s)
}
