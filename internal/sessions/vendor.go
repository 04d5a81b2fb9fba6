package sessions

import (
	"path/filepath"
	"strings"
	"unicode"
)

var vendorNoise = map[string]struct{}{
	"soc": {}, "soc2": {}, "type": {}, "ii": {}, "i": {}, "report": {}, "reports": {},
	"policy": {}, "policies": {}, "security": {}, "questionnaire": {}, "sig": {}, "lite": {},
	"caiq": {}, "iso": {}, "iso27001": {}, "27001": {}, "hipaa": {}, "gdpr": {}, "pci": {},
	"dss": {}, "nist": {}, "csf": {}, "audit": {}, "assessment": {}, "final": {}, "draft": {},
	"v1": {}, "v2": {}, "v3": {}, "copy": {}, "the": {}, "and": {}, "of": {}, "for": {},
	"inc": {}, "llc": {}, "ltd": {}, "corp": {}, "pentest": {}, "penetration": {}, "test": {},
	"bridge": {}, "letter": {}, "summary": {}, "overview": {}, "information": {}, "infosec": {},
}

// GuessVendorName derives a best-effort vendor name from uploaded file names.
// The first file yielding a non-noise token wins; "" means no guess.
func GuessVendorName(files []FileRecord) string {
	for _, f := range files {
		if name := vendorFromFileName(f.OriginalName); name != "" {
			return name
		}
	}
	return ""
}

func vendorFromFileName(name string) string {
	base := strings.TrimSuffix(filepath.Base(name), filepath.Ext(name))
	tokens := strings.FieldsFunc(base, func(r rune) bool {
		return r == '_' || r == '-' || r == '.' || r == '(' || r == ')' || unicode.IsSpace(r)
	})

	var kept []string
	for _, tok := range tokens {
		lower := strings.ToLower(tok)
		if _, noise := vendorNoise[lower]; noise || isNumeric(lower) {
			if len(kept) > 0 {
				break
			}
			continue
		}
		kept = append(kept, titleWord(tok))
		if len(kept) == 3 {
			break
		}
	}
	return strings.Join(kept, " ")
}

func isNumeric(s string) bool {
	for _, r := range s {
		if !unicode.IsDigit(r) {
			return false
		}
	}
	return s != ""
}

func titleWord(s string) string {
	for _, r := range s {
		if unicode.IsUpper(r) {
			return s
		}
	}
	runes := []rune(s)
	runes[0] = unicode.ToUpper(runes[0])
	return string(runes)
}
