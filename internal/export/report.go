// Package export turns completed analyses into downloadable reports.
package export

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"vendorsec-backend/internal/analyses"
)

const reportVersion = "1"

// Report is the exported form of a completed analysis.
type Report struct {
	Version      string                   `json:"report_version"`
	AnalysisID   string                   `json:"analysis_id"`
	SessionID    string                   `json:"session_id"`
	Frameworks   []string                 `json:"frameworks"`
	VendorName   string                   `json:"vendor_name,omitempty"`
	ReviewedBy   string                   `json:"reviewed_by,omitempty"`
	TicketNumber string                   `json:"ticket_number,omitempty"`
	StartedAt    *time.Time               `json:"started_at,omitempty"`
	CompletedAt  *time.Time               `json:"completed_at,omitempty"`
	GeneratedAt  time.Time                `json:"generated_at"`
	Results      analyses.AnalysisResults `json:"results"`
}

// NewReport combines a completed job with its results.
func NewReport(job analyses.Job, res analyses.AnalysisResults, now time.Time) Report {
	return Report{
		Version:      reportVersion,
		AnalysisID:   job.ID,
		SessionID:    job.SessionID,
		Frameworks:   append([]string(nil), job.Frameworks...),
		VendorName:   job.VendorName,
		ReviewedBy:   job.ReviewedBy,
		TicketNumber: job.TicketNumber,
		StartedAt:    job.StartedAt,
		CompletedAt:  job.CompletedAt,
		GeneratedAt:  now,
		Results:      res,
	}
}

// EncodeJSON writes the report as indented JSON.
func EncodeJSON(w io.Writer, r Report) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(r)
}

// DecodeJSON reads a report written by EncodeJSON.
func DecodeJSON(data []byte) (Report, error) {
	var r Report
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&r); err != nil {
		return Report{}, fmt.Errorf("decode report: %w", err)
	}
	if r.AnalysisID == "" {
		return Report{}, fmt.Errorf("decode report: missing analysis_id")
	}
	return r, nil
}

// FileName is the download name for the report.
func FileName(r Report, ext string) string {
	stamp := r.GeneratedAt
	if r.CompletedAt != nil {
		stamp = *r.CompletedAt
	}
	return fmt.Sprintf("compliance-report-%s-%s.%s", shortID(r.AnalysisID), stamp.UTC().Format("20060102"), ext)
}

func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
