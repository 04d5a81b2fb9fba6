package export

import (
	"fmt"
	"html/template"
	"io"
	"strings"
)

var reportTemplate = template.Must(template.New("report").Funcs(template.FuncMap{
	"pct":      func(v float64) string { return fmt.Sprintf("%.1f%%", v) },
	"upper":    strings.ToUpper,
	"join":     strings.Join,
	"date":     formatDate,
	"severity": severityClass,
}).Parse(reportHTML))

// RenderHTML writes a self-contained printable report.
func RenderHTML(w io.Writer, r Report) error {
	return reportTemplate.Execute(w, r)
}

func formatDate(v any) string {
	switch t := v.(type) {
	case interface{ Format(string) string }:
		return t.Format("2006-01-02 15:04 MST")
	default:
		return ""
	}
}

func severityClass(s string) string {
	switch s {
	case "critical", "high", "medium", "low":
		return "sev-" + s
	default:
		return "sev-medium"
	}
}

const reportHTML = `<!DOCTYPE html>
<html lang="en">
<head>
<meta charset="utf-8">
<title>Vendor Security Assessment{{if .VendorName}} - {{.VendorName}}{{end}}</title>
<style>
body { font-family: Helvetica, Arial, sans-serif; color: #1f2937; margin: 2rem; }
h1 { margin-bottom: 0; }
table { border-collapse: collapse; width: 100%; margin: 1rem 0; }
th, td { border: 1px solid #d1d5db; padding: 6px 8px; text-align: left; vertical-align: top; }
th { background: #f3f4f6; }
.meta td:first-child { width: 12rem; font-weight: bold; }
.score { font-size: 2rem; font-weight: bold; }
.sev-critical { color: #991b1b; font-weight: bold; }
.sev-high { color: #c2410c; font-weight: bold; }
.sev-medium { color: #a16207; }
.sev-low { color: #15803d; }
@media print { body { margin: 0; } }
</style>
</head>
<body>
<h1>Vendor Security Assessment</h1>
<table class="meta">
<tr><td>Vendor</td><td>{{if .VendorName}}{{.VendorName}}{{else}}Not specified{{end}}</td></tr>
{{- if .ReviewedBy}}<tr><td>Reviewed by</td><td>{{.ReviewedBy}}</td></tr>{{end}}
{{- if .TicketNumber}}<tr><td>Ticket</td><td>{{.TicketNumber}}</td></tr>{{end}}
<tr><td>Frameworks</td><td>{{join .Frameworks ", "}}</td></tr>
<tr><td>Analysis ID</td><td>{{.AnalysisID}}</td></tr>
{{- if .CompletedAt}}<tr><td>Completed</td><td>{{date .CompletedAt}}</td></tr>{{end}}
<tr><td>Generated</td><td>{{date .GeneratedAt}}</td></tr>
</table>

<h2>Overall compliance</h2>
<p class="score">{{pct .Results.OverallComplianceScore}}</p>
{{- with .Results.RiskAssessment}}
<p>Risk level: <strong>{{.OverallRiskLevel}}</strong> (score {{printf "%.1f" .OverallRiskScore}}). Security posture: <strong>{{.SecurityPostureLevel}}</strong>.</p>
{{- end}}

{{- if .Results.ExecutiveSummary}}
<h2>Executive summary</h2>
<p>{{.Results.ExecutiveSummary}}</p>
{{- end}}

<h2>Framework coverage</h2>
<table>
<tr><th>Framework</th><th>Coverage</th><th>Maturity</th><th>Implemented</th><th>Partial</th><th>Missing</th></tr>
{{- range .Results.Frameworks}}
<tr><td>{{.Framework}}</td><td>{{pct .CoveragePercentage}}</td><td>{{.MaturityLevel}}</td><td>{{.ImplementedControls}}</td><td>{{.PartialControls}}</td><td>{{.MissingControls}}</td></tr>
{{- end}}
</table>

<h2>Findings ({{len .Results.Findings}})</h2>
{{- if .Results.Findings}}
<table>
<tr><th>ID</th><th>Severity</th><th>Finding</th><th>Recommendation</th><th>Controls</th></tr>
{{- range .Results.Findings}}
<tr>
<td>{{.FindingID}}</td>
<td class="{{severity .Severity}}">{{upper .Severity}}</td>
<td><strong>{{.Title}}</strong>{{if .Description}}<br>{{.Description}}{{end}}</td>
<td>{{.Recommendation}}</td>
<td>{{join .AffectedControls ", "}}</td>
</tr>
{{- end}}
</table>
{{- else}}
<p>No findings were reported.</p>
{{- end}}

{{- if .Results.Strengths}}
<h2>Strengths</h2>
<ul>
{{- range .Results.Strengths}}
<li><strong>{{.Title}}</strong>{{if .Description}}: {{.Description}}{{end}}</li>
{{- end}}
</ul>
{{- end}}
</body>
</html>
`
