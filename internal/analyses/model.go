package analyses

import "time"

const (
	StatusQueued    = "queued"
	StatusRunning   = "running"
	StatusCompleted = "completed"
	StatusFailed    = "failed"
)

// Job is one run of the analysis pipeline for a session.
type Job struct {
	ID                 string     `json:"analysis_id"`
	SessionID          string     `json:"session_id"`
	Frameworks         []string   `json:"frameworks"`
	VendorName         string     `json:"vendor_name,omitempty"`
	ReviewedBy         string     `json:"reviewed_by,omitempty"`
	TicketNumber       string     `json:"ticket_number,omitempty"`
	Status             string     `json:"status"`
	ProgressPercentage float64    `json:"progress_percentage"`
	CurrentStep        *string    `json:"current_step"`
	Error              *string    `json:"error"`
	CreatedAt          time.Time  `json:"created_at"`
	StartedAt          *time.Time `json:"started_at,omitempty"`
	CompletedAt        *time.Time `json:"completed_at,omitempty"`
}

// AnalysisResults is produced once, when a job completes.
type AnalysisResults struct {
	AnalysisID             string              `json:"analysis_id"`
	Status                 string              `json:"status"`
	OverallComplianceScore float64             `json:"overall_compliance_score"`
	Frameworks             []FrameworkCoverage `json:"frameworks"`
	Findings               []Finding           `json:"findings"`
	Strengths              []Strength          `json:"strengths,omitempty"`
	RiskAssessment         *RiskAssessment     `json:"risk_assessment,omitempty"`
	ExecutiveSummary       string              `json:"executive_summary,omitempty"`
	Documents              []DocumentSummary   `json:"documents,omitempty"`
	CompletedAt            time.Time           `json:"completed_at"`
}

// FrameworkCoverage summarizes how well the documents cover one framework.
type FrameworkCoverage struct {
	Framework           string  `json:"framework"`
	CoveragePercentage  float64 `json:"coverage_percentage"`
	MaturityLevel       string  `json:"maturity_level,omitempty"`
	ImplementedControls int     `json:"implemented_controls"`
	PartialControls     int     `json:"partial_controls"`
	MissingControls     int     `json:"missing_controls"`
	TotalControls       int     `json:"total_controls"`
}

// Finding is a single compliance gap.
type Finding struct {
	FindingID        string   `json:"finding_id"`
	Framework        string   `json:"framework,omitempty"`
	Severity         string   `json:"severity"`
	Category         string   `json:"category"`
	Title            string   `json:"title"`
	Description      string   `json:"description"`
	Recommendation   string   `json:"recommendation"`
	AffectedControls []string `json:"affected_controls"`
	Evidence         string   `json:"evidence,omitempty"`
}

// Strength is a control the documents show to be in place.
type Strength struct {
	Framework   string `json:"framework,omitempty"`
	Category    string `json:"category"`
	Title       string `json:"title"`
	Description string `json:"description"`
}

// RiskAssessment is derived from coverage and finding severities.
type RiskAssessment struct {
	SecurityPostureScore float64        `json:"security_posture_score"`
	SecurityPostureLevel string         `json:"security_posture_level"`
	OverallRiskScore     float64        `json:"overall_risk_score"`
	OverallRiskLevel     string         `json:"overall_risk_level"`
	SeverityCounts       map[string]int `json:"severity_counts"`
}

// DocumentSummary records what was analyzed.
type DocumentSummary struct {
	FileID    string `json:"file_id"`
	Name      string `json:"name"`
	MimeType  string `json:"mime_type"`
	TextChars int    `json:"text_chars"`
}

// StartRequest carries the inputs of a new analysis.
type StartRequest struct {
	SessionID    string   `json:"session_id"`
	Frameworks   []string `json:"frameworks"`
	VendorName   string   `json:"vendor_name"`
	ReviewedBy   string   `json:"reviewed_by"`
	TicketNumber string   `json:"ticket_number"`
}
