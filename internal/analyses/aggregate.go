package analyses

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"vendorsec-backend/internal/frameworks"
)

var severityRank = map[string]int{
	SeverityCritical: 0,
	SeverityHigh:     1,
	SeverityMedium:   2,
	SeverityLow:      3,
}

// aggregation is the deterministic merge of per-framework evaluations.
type aggregation struct {
	Overall    float64
	Frameworks []FrameworkCoverage
	Findings   []Finding
	Strengths  []Strength
	Risk       RiskAssessment
}

// aggregate merges evaluations in input order. The overall score is the
// weighted mean of framework coverage; missing weights count as 1.
func aggregate(evals []evaluation, weights map[string]float64) aggregation {
	var out aggregation
	var weighted, totalWeight float64

	for _, ev := range evals {
		cov := FrameworkCoverage{
			Framework:           ev.Framework,
			CoveragePercentage:  round1(ev.CoveragePercentage),
			MaturityLevel:       strings.TrimSpace(ev.MaturityLevel),
			ImplementedControls: int(ev.ImplementedControls),
			PartialControls:     int(ev.PartialControls),
			MissingControls:     int(ev.MissingControls),
		}
		cov.TotalControls = cov.ImplementedControls + cov.PartialControls + cov.MissingControls
		if cov.TotalControls == 0 {
			if fw, ok := frameworks.Get(ev.Framework); ok {
				cov.TotalControls = len(fw.Controls)
			}
		}
		out.Frameworks = append(out.Frameworks, cov)

		w := 1.0
		if v, ok := weights[ev.Framework]; ok && v > 0 {
			w = v
		}
		weighted += w * ev.CoveragePercentage
		totalWeight += w

		for _, s := range ev.Strengths {
			out.Strengths = append(out.Strengths, Strength{
				Framework:   ev.Framework,
				Category:    s.Category,
				Title:       s.Title,
				Description: s.Description,
			})
		}
	}
	if totalWeight > 0 {
		out.Overall = round1(weighted / totalWeight)
	}

	out.Findings = mergeFindings(evals)
	out.Risk = assessRisk(out.Overall, out.Findings)
	return out
}

// mergeFindings folds findings with the same title into one, keeping the
// highest severity and the union of affected controls, then orders them by
// severity and numbers them F-001, F-002, ...
func mergeFindings(evals []evaluation) []Finding {
	var merged []Finding
	index := map[string]int{}
	for _, ev := range evals {
		for _, rf := range ev.Findings {
			controls := rf.ControlReferences
			if len(controls) == 0 {
				controls = rf.AffectedControls
			}
			key := strings.ToLower(strings.Join(strings.Fields(rf.Title), " "))
			if i, ok := index[key]; ok {
				f := &merged[i]
				if severityRank[rf.Severity] < severityRank[f.Severity] {
					f.Severity = rf.Severity
				}
				f.AffectedControls = unionStrings(f.AffectedControls, controls)
				if f.Framework != ev.Framework && !strings.Contains(f.Framework, ev.Framework) {
					f.Framework += "," + ev.Framework
				}
				continue
			}
			index[key] = len(merged)
			merged = append(merged, Finding{
				Framework:        ev.Framework,
				Severity:         rf.Severity,
				Category:         rf.Category,
				Title:            rf.Title,
				Description:      rf.Description,
				Recommendation:   rf.Recommendation,
				AffectedControls: unionStrings(nil, controls),
				Evidence:         rf.Evidence,
			})
		}
	}

	sort.SliceStable(merged, func(i, j int) bool {
		return severityRank[merged[i].Severity] < severityRank[merged[j].Severity]
	})
	for i := range merged {
		merged[i].FindingID = fmt.Sprintf("F-%03d", i+1)
	}
	if merged == nil {
		merged = []Finding{}
	}
	return merged
}

// assessRisk derives posture and risk from coverage and severity counts.
func assessRisk(overall float64, findings []Finding) RiskAssessment {
	counts := map[string]int{SeverityCritical: 0, SeverityHigh: 0, SeverityMedium: 0, SeverityLow: 0}
	for _, f := range findings {
		counts[f.Severity]++
	}

	risk := 100 - overall +
		10*float64(counts[SeverityCritical]) +
		5*float64(counts[SeverityHigh]) +
		2*float64(counts[SeverityMedium])
	risk = math.Max(0, math.Min(100, risk))

	return RiskAssessment{
		SecurityPostureScore: round1(overall),
		SecurityPostureLevel: postureLevel(overall),
		OverallRiskScore:     round1(risk),
		OverallRiskLevel:     riskLevel(counts),
		SeverityCounts:       counts,
	}
}

func riskLevel(counts map[string]int) string {
	switch {
	case counts[SeverityCritical] > 0:
		return "Critical"
	case counts[SeverityHigh] > 2:
		return "High"
	case counts[SeverityHigh] > 0 || counts[SeverityMedium] > 3:
		return "Medium"
	default:
		return "Low"
	}
}

func postureLevel(score float64) string {
	switch {
	case score >= 80:
		return "Strong"
	case score >= 60:
		return "Moderate"
	case score >= 40:
		return "Developing"
	default:
		return "Weak"
	}
}

func unionStrings(dst, src []string) []string {
	seen := make(map[string]struct{}, len(dst))
	for _, s := range dst {
		seen[s] = struct{}{}
	}
	for _, s := range src {
		s = strings.TrimSpace(s)
		if s == "" {
			continue
		}
		if _, ok := seen[s]; ok {
			continue
		}
		seen[s] = struct{}{}
		dst = append(dst, s)
	}
	if dst == nil {
		dst = []string{}
	}
	return dst
}

func round1(v float64) float64 {
	return math.Round(v*10) / 10
}
