package chat

import (
	"fmt"
	"strings"

	"vendorsec-backend/internal/analyses"
	"vendorsec-backend/internal/llm"
	"vendorsec-backend/internal/sessions"
)

const systemPrompt = `You are a vendor security compliance assistant. Answer questions about the vendor's documents and the compliance analysis below.
Be specific, cite framework controls where relevant and say so when the available context does not answer the question.`

// analysisContext summarizes completed results for the model.
func analysisContext(job analyses.Job, res analyses.AnalysisResults) string {
	var b strings.Builder
	b.WriteString("Analysis context:\n")
	if job.VendorName != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", job.VendorName)
	}
	fmt.Fprintf(&b, "Overall compliance score: %.1f%%\n", res.OverallComplianceScore)
	for _, fw := range res.Frameworks {
		fmt.Fprintf(&b, "- %s: %.1f%% coverage\n", fw.Framework, fw.CoveragePercentage)
	}
	if ra := res.RiskAssessment; ra != nil {
		fmt.Fprintf(&b, "Risk level: %s\n", ra.OverallRiskLevel)
		fmt.Fprintf(&b, "Findings: %d critical, %d high, %d medium, %d low\n",
			ra.SeverityCounts[analyses.SeverityCritical], ra.SeverityCounts[analyses.SeverityHigh],
			ra.SeverityCounts[analyses.SeverityMedium], ra.SeverityCounts[analyses.SeverityLow])
	}
	limit := min(len(res.Findings), 10)
	for _, f := range res.Findings[:limit] {
		fmt.Fprintf(&b, "  %s [%s] %s\n", f.FindingID, f.Severity, f.Title)
	}
	if res.ExecutiveSummary != "" {
		fmt.Fprintf(&b, "Executive summary: %s\n", res.ExecutiveSummary)
	}
	return b.String()
}

// sessionContext is used before any analysis has completed.
func sessionContext(sess sessions.Session) string {
	var b strings.Builder
	b.WriteString("No analysis has been completed yet.\n")
	if meta := sess.AssessmentMeta; meta.VendorName != "" {
		fmt.Fprintf(&b, "Vendor: %s\n", meta.VendorName)
	}
	if len(sess.SelectedFrameworks) > 0 {
		fmt.Fprintf(&b, "Selected frameworks: %s\n", strings.Join(sess.SelectedFrameworks, ", "))
	}
	if len(sess.Files) == 0 {
		b.WriteString("No documents have been uploaded.\n")
		return b.String()
	}
	b.WriteString("Uploaded documents:\n")
	for _, f := range sess.Files {
		fmt.Fprintf(&b, "- %s (%s, %d bytes)\n", f.OriginalName, f.MimeType, f.SizeBytes)
	}
	return b.String()
}

func buildMessages(contextText string, history []Message) []llm.Message {
	system := systemPrompt
	if contextText != "" {
		system += "\n\n" + contextText
	}
	msgs := make([]llm.Message, 0, len(history)+1)
	msgs = append(msgs, llm.Message{Role: llm.RoleSystem, Content: system})
	for _, m := range history {
		role := llm.RoleUser
		if m.Role == RoleAssistant {
			role = llm.RoleAssistant
		}
		msgs = append(msgs, llm.Message{Role: role, Content: m.Content})
	}
	return msgs
}
