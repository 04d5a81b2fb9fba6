package db

import "strings"

// Text arrays travel as comma separated strings; queries convert with
// string_to_array / array_to_string so repos stay on plain database/sql scans.

// JoinList encodes ids for a string_to_array($n, ',') parameter.
func JoinList(items []string) string {
	return strings.Join(items, ",")
}

// SplitList decodes an array_to_string(col, ',') column.
func SplitList(raw string) []string {
	if strings.TrimSpace(raw) == "" {
		return []string{}
	}
	parts := strings.Split(raw, ",")
	out := make([]string, 0, len(parts))
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}
