package analyses

import (
	"fmt"
	"strings"

	"vendorsec-backend/internal/frameworks"
	"vendorsec-backend/internal/llm"
)

const (
	maxPromptDocumentChars = 80000
	minPerDocumentChars    = 4000
)

const evaluatorSystemPrompt = `You are a senior third-party risk assessor reviewing vendor security documentation.
Apply professional skepticism: do not assume a control is effective without evidence in the documents.
Report findings only for actual gaps. Controls that are in place belong in strengths.
Severity: critical = immediate exploitation risk or regulatory violation; high = material weakness needing remediation within 30 days;
medium = significant deficiency within 90 days; low = improvement opportunity.
Respond ONLY with one valid JSON object, no markdown.`

const evaluationSchema = `{
  "coverage_percentage": 0-100,
  "maturity_level": "Initial|Developing|Defined|Managed|Optimizing",
  "implemented_controls": [{"control_id": "", "control_name": ""}],
  "partial_controls": [{"control_id": "", "control_name": "", "gap_description": ""}],
  "missing_controls": [{"control_id": "", "control_name": ""}],
  "findings": [{
    "severity": "critical|high|medium|low",
    "category": "access_control|encryption|incident_response|audit_logging|data_protection|network_security|vendor_management|business_continuity|change_management|physical_security|hr_security|compliance|privacy|other",
    "title": "",
    "description": "",
    "recommendation": "",
    "control_references": ["FRAMEWORK:CONTROL"],
    "evidence": ""
  }],
  "strengths": [{"category": "", "title": "", "description": ""}]
}`

type document struct {
	FileID   string
	Name     string
	MimeType string
	Text     string
}

func evaluationMessages(fw frameworks.Framework, docs []document, meta Job) []llm.Message {
	var controls strings.Builder
	for _, c := range fw.Controls {
		fmt.Fprintf(&controls, "  - %s: %s\n", c.ID, c.Name)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Framework under evaluation: %s (%s)\n", fw.ID, fw.Name)
	if meta.VendorName != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", meta.VendorName)
	}
	fmt.Fprintf(&b, "Control families:\n%s\n", controls.String())
	b.WriteString("Documents under review:\n")
	budget := documentBudget(len(docs))
	for _, d := range docs {
		fmt.Fprintf(&b, "\n=== %s (%s) ===\n%s\n", d.Name, d.MimeType, truncateRunes(d.Text, budget))
	}
	fmt.Fprintf(&b, "\nEvaluate the documents against %s and answer in this JSON format:\n%s\n", fw.ID, evaluationSchema)

	return []llm.Message{
		{Role: llm.RoleSystem, Content: evaluatorSystemPrompt},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func summaryMessages(job Job, res AnalysisResults) []llm.Message {
	var b strings.Builder
	vendor := job.VendorName
	if vendor == "" {
		vendor = "the vendor"
	}
	fmt.Fprintf(&b, "Write a 3-4 sentence executive summary of the third-party risk assessment of %s for C-level readers.\n", vendor)
	fmt.Fprintf(&b, "Overall compliance score: %.1f%%\n", res.OverallComplianceScore)
	for _, fw := range res.Frameworks {
		fmt.Fprintf(&b, "- %s coverage %.1f%% (%d implemented, %d partial, %d missing)\n",
			fw.Framework, fw.CoveragePercentage, fw.ImplementedControls, fw.PartialControls, fw.MissingControls)
	}
	if ra := res.RiskAssessment; ra != nil {
		fmt.Fprintf(&b, "Risk level: %s (score %.1f); security posture: %s\n", ra.OverallRiskLevel, ra.OverallRiskScore, ra.SecurityPostureLevel)
		fmt.Fprintf(&b, "Findings by severity: critical %d, high %d, medium %d, low %d\n",
			ra.SeverityCounts[SeverityCritical], ra.SeverityCounts[SeverityHigh], ra.SeverityCounts[SeverityMedium], ra.SeverityCounts[SeverityLow])
	}
	limit := len(res.Findings)
	if limit > 10 {
		limit = 10
	}
	if limit > 0 {
		b.WriteString("Top findings:\n")
		for _, f := range res.Findings[:limit] {
			fmt.Fprintf(&b, "- [%s] %s\n", f.Severity, f.Title)
		}
	}
	b.WriteString("State the overall opinion, the key risks and the recommended actions. Plain text only.")

	return []llm.Message{
		{Role: llm.RoleSystem, Content: "You are a senior manager writing the executive summary of a vendor security assessment."},
		{Role: llm.RoleUser, Content: b.String()},
	}
}

func documentBudget(n int) int {
	if n <= 0 {
		return maxPromptDocumentChars
	}
	per := maxPromptDocumentChars / n
	if per < minPerDocumentChars {
		per = minPerDocumentChars
	}
	return per
}

func truncateRunes(s string, max int) string {
	r := []rune(s)
	if len(r) <= max {
		return s
	}
	return string(r[:max]) + "\n[truncated]"
}
