package analyses

import (
	"bytes"
	"encoding/json"
	"fmt"
	"strings"

	"vendorsec-backend/internal/llm"
)

const (
	SeverityCritical = "critical"
	SeverityHigh     = "high"
	SeverityMedium   = "medium"
	SeverityLow      = "low"
)

// evaluation is the model's answer for one framework.
type evaluation struct {
	Framework           string
	CoveragePercentage  float64       `json:"coverage_percentage"`
	MaturityLevel       string        `json:"maturity_level"`
	ImplementedControls controlCount  `json:"implemented_controls"`
	PartialControls     controlCount  `json:"partial_controls"`
	MissingControls     controlCount  `json:"missing_controls"`
	Findings            []rawFinding  `json:"findings"`
	Strengths           []rawStrength `json:"strengths"`
}

type rawFinding struct {
	Severity          string   `json:"severity"`
	Category          string   `json:"category"`
	Title             string   `json:"title"`
	Description       string   `json:"description"`
	Recommendation    string   `json:"recommendation"`
	ControlReferences []string `json:"control_references"`
	AffectedControls  []string `json:"affected_controls"`
	Evidence          string   `json:"evidence"`
}

type rawStrength struct {
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// controlCount accepts either a list of controls or a bare number.
type controlCount int

func (c *controlCount) UnmarshalJSON(data []byte) error {
	data = bytes.TrimSpace(data)
	if len(data) == 0 || string(data) == "null" {
		*c = 0
		return nil
	}
	if data[0] == '[' {
		var items []json.RawMessage
		if err := json.Unmarshal(data, &items); err != nil {
			return err
		}
		*c = controlCount(len(items))
		return nil
	}
	var n float64
	if err := json.Unmarshal(data, &n); err != nil {
		return err
	}
	if n < 0 {
		n = 0
	}
	*c = controlCount(int(n))
	return nil
}

// parseEvaluation decodes a model response. Anything that is not a usable
// JSON object is llm.ErrMalformedOutput so the stage retries it.
func parseEvaluation(framework, raw string) (evaluation, error) {
	body := jsonObject(raw)
	if body == "" {
		return evaluation{}, fmt.Errorf("%w: %s: no JSON object in response", llm.ErrMalformedOutput, framework)
	}
	var ev evaluation
	if err := json.Unmarshal([]byte(body), &ev); err != nil {
		return evaluation{}, fmt.Errorf("%w: %s: %v", llm.ErrMalformedOutput, framework, err)
	}
	ev.Framework = framework
	if ev.CoveragePercentage < 0 {
		ev.CoveragePercentage = 0
	}
	if ev.CoveragePercentage > 100 {
		ev.CoveragePercentage = 100
	}
	kept := ev.Findings[:0]
	for _, f := range ev.Findings {
		f.Title = strings.TrimSpace(f.Title)
		if f.Title == "" {
			continue
		}
		f.Severity = normalizeSeverity(f.Severity)
		if f.Category == "" {
			f.Category = "other"
		}
		kept = append(kept, f)
	}
	ev.Findings = kept
	return ev, nil
}

// jsonObject strips markdown fences and surrounding prose from a response.
func jsonObject(raw string) string {
	s := strings.TrimSpace(raw)
	s = strings.TrimPrefix(s, "```json")
	s = strings.TrimPrefix(s, "```")
	s = strings.TrimSuffix(s, "```")
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return ""
	}
	return s[start : end+1]
}

func normalizeSeverity(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case SeverityCritical:
		return SeverityCritical
	case SeverityHigh:
		return SeverityHigh
	case SeverityLow, "info", "informational":
		return SeverityLow
	default:
		return SeverityMedium
	}
}
