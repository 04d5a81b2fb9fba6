// Package frameworks holds the compliance framework catalog used to scope
// analyses and to give the evaluator the control families to map against.
package frameworks

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"vendorsec-backend/internal/shared/apperr"
)

// Control is one control family reference of a framework.
type Control struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// Framework is a catalog entry.
type Framework struct {
	ID       string    `json:"id"`
	Name     string    `json:"name"`
	Controls []Control `json:"controls"`
}

var catalog = []Framework{
	{ID: "SOC2", Name: "SOC 2 Trust Services Criteria", Controls: []Control{
		{"CC1", "Control Environment"},
		{"CC2", "Communication and Information"},
		{"CC3", "Risk Assessment"},
		{"CC4", "Monitoring Activities"},
		{"CC5", "Control Activities"},
		{"CC6", "Logical and Physical Access Controls"},
		{"CC7", "System Operations"},
		{"CC8", "Change Management"},
		{"CC9", "Risk Mitigation"},
		{"A1", "Availability"},
		{"C1", "Confidentiality"},
		{"PI1", "Processing Integrity"},
		{"P1", "Privacy"},
	}},
	{ID: "ISO27001", Name: "ISO/IEC 27001 Annex A", Controls: []Control{
		{"A.5", "Information Security Policies"},
		{"A.6", "Organization of Information Security"},
		{"A.7", "Human Resource Security"},
		{"A.8", "Asset Management"},
		{"A.9", "Access Control"},
		{"A.10", "Cryptography"},
		{"A.11", "Physical and Environmental Security"},
		{"A.12", "Operations Security"},
		{"A.13", "Communications Security"},
		{"A.14", "System Acquisition, Development and Maintenance"},
		{"A.15", "Supplier Relationships"},
		{"A.16", "Information Security Incident Management"},
		{"A.17", "Business Continuity Management"},
		{"A.18", "Compliance"},
	}},
	{ID: "NIST_CSF", Name: "NIST Cybersecurity Framework", Controls: []Control{
		{"ID.AM", "Asset Management"},
		{"ID.BE", "Business Environment"},
		{"ID.GV", "Governance"},
		{"ID.RA", "Risk Assessment"},
		{"ID.RM", "Risk Management Strategy"},
		{"ID.SC", "Supply Chain Risk Management"},
		{"PR.AC", "Identity Management and Access Control"},
		{"PR.AT", "Awareness and Training"},
		{"PR.DS", "Data Security"},
		{"PR.IP", "Information Protection Processes"},
		{"PR.MA", "Maintenance"},
		{"PR.PT", "Protective Technology"},
		{"DE.AE", "Anomalies and Events"},
		{"DE.CM", "Security Continuous Monitoring"},
		{"DE.DP", "Detection Processes"},
		{"RS.RP", "Response Planning"},
		{"RS.CO", "Response Communications"},
		{"RS.AN", "Analysis"},
		{"RS.MI", "Mitigation"},
		{"RS.IM", "Response Improvements"},
		{"RC.RP", "Recovery Planning"},
		{"RC.IM", "Recovery Improvements"},
		{"RC.CO", "Recovery Communications"},
	}},
	{ID: "HIPAA", Name: "HIPAA Security Rule", Controls: []Control{
		{"164.308(a)(1)", "Security Management Process"},
		{"164.308(a)(2)", "Assigned Security Responsibility"},
		{"164.308(a)(3)", "Workforce Security"},
		{"164.308(a)(4)", "Information Access Management"},
		{"164.308(a)(5)", "Security Awareness and Training"},
		{"164.308(a)(6)", "Security Incident Procedures"},
		{"164.308(a)(7)", "Contingency Plan"},
		{"164.308(a)(8)", "Evaluation"},
		{"164.310(a)", "Facility Access Controls"},
		{"164.310(b)", "Workstation Use"},
		{"164.310(c)", "Workstation Security"},
		{"164.310(d)", "Device and Media Controls"},
		{"164.312(a)", "Access Control"},
		{"164.312(b)", "Audit Controls"},
		{"164.312(c)", "Integrity"},
		{"164.312(d)", "Person or Entity Authentication"},
		{"164.312(e)", "Transmission Security"},
	}},
	{ID: "GDPR", Name: "EU General Data Protection Regulation", Controls: []Control{
		{"Art.5", "Principles of Processing"},
		{"Art.6", "Lawfulness of Processing"},
		{"Art.7", "Conditions for Consent"},
		{"Art.12-14", "Transparency and Information"},
		{"Art.15-22", "Data Subject Rights"},
		{"Art.24", "Responsibility of Controller"},
		{"Art.25", "Data Protection by Design"},
		{"Art.28", "Processor Requirements"},
		{"Art.30", "Records of Processing"},
		{"Art.32", "Security of Processing"},
		{"Art.33-34", "Breach Notification"},
		{"Art.35", "Data Protection Impact Assessment"},
		{"Art.37-39", "Data Protection Officer"},
		{"Art.44-49", "International Transfers"},
	}},
	{ID: "PCI_DSS", Name: "PCI DSS v4.0", Controls: []Control{
		{"Req.1", "Install and Maintain Network Security Controls"},
		{"Req.2", "Apply Secure Configurations"},
		{"Req.3", "Protect Stored Account Data"},
		{"Req.4", "Protect Cardholder Data with Strong Cryptography"},
		{"Req.5", "Protect Against Malicious Software"},
		{"Req.6", "Develop and Maintain Secure Systems"},
		{"Req.7", "Restrict Access by Business Need to Know"},
		{"Req.8", "Identify Users and Authenticate Access"},
		{"Req.9", "Restrict Physical Access"},
		{"Req.10", "Log and Monitor Access"},
		{"Req.11", "Test Security Regularly"},
		{"Req.12", "Support Information Security with Policies"},
	}},
}

var byID = func() map[string]Framework {
	m := make(map[string]Framework, len(catalog))
	for _, f := range catalog {
		m[f.ID] = f
	}
	return m
}()

// All returns the catalog in display order.
func All() []Framework {
	out := make([]Framework, len(catalog))
	copy(out, catalog)
	return out
}

// Get returns the framework with the given canonical id.
func Get(id string) (Framework, bool) {
	f, ok := byID[id]
	return f, ok
}

// Controls returns the control references of a framework, accepting any
// spelling Normalize accepts.
func Controls(raw string) ([]Control, error) {
	id, ok := Normalize(raw)
	if !ok {
		return nil, apperr.New(apperr.ErrNotFound, "unknown framework %q", raw)
	}
	out := make([]Control, len(byID[id].Controls))
	copy(out, byID[id].Controls)
	return out, nil
}

// Normalize maps user input such as "nist csf", "iso-27001" or "pci-dss" to a
// canonical id. Unknown names return ok=false.
func Normalize(raw string) (string, bool) {
	key := strings.ToUpper(strings.TrimSpace(raw))
	key = strings.NewReplacer(" ", "_", "-", "_", "/", "_").Replace(key)
	switch key {
	case "ISO_27001", "ISO27001", "ISO_IEC_27001":
		key = "ISO27001"
	case "NISTCSF", "NIST":
		key = "NIST_CSF"
	case "PCI", "PCIDSS":
		key = "PCI_DSS"
	case "SOC_2", "SOC2":
		key = "SOC2"
	}
	_, ok := byID[key]
	return key, ok
}

// Validate normalizes ids, drops duplicates and keeps input order. An empty
// selection or an unknown id is a validation error.
func Validate(ids []string) ([]string, error) {
	if len(ids) == 0 {
		return nil, apperr.Validation("at least one framework must be selected")
	}
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, raw := range ids {
		id, ok := Normalize(raw)
		if !ok {
			return nil, apperr.Validation("unknown framework %q", raw)
		}
		if _, dup := seen[id]; dup {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out, nil
}

// ParseWeights parses "SOC2=2,HIPAA=1". Frameworks without an entry weigh 1.
func ParseWeights(raw string) (map[string]float64, error) {
	weights := map[string]float64{}
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return weights, nil
	}
	for _, part := range strings.Split(raw, ",") {
		name, val, ok := strings.Cut(strings.TrimSpace(part), "=")
		if !ok {
			return nil, fmt.Errorf("invalid weight %q", part)
		}
		id, known := Normalize(name)
		if !known {
			return nil, fmt.Errorf("unknown framework %q in weights", name)
		}
		w, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
		if err != nil || w <= 0 || math.IsNaN(w) || math.IsInf(w, 0) {
			return nil, fmt.Errorf("invalid weight for %s: %q", id, val)
		}
		weights[id] = w
	}
	return weights, nil
}

// IDs returns the sorted canonical ids.
func IDs() []string {
	out := make([]string, 0, len(byID))
	for id := range byID {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}
