package attendance

import (
	"strings"

	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// Canonical attendance statuses. Records may still hold legacy values
// (Thai strings, odd casing); Normalize maps those back into this set.
const (
	StatusPresent = "Present"
	StatusLate    = "Late"
	StatusAbsent  = "Absent"
	StatusLeave   = "Leave"
	StatusSick    = "Sick"
)

// statusAliases maps lowercased legacy spellings to canonical statuses.
var statusAliases = map[string]string{
	"present":  StatusPresent,
	"มาเรียน":  StatusPresent,
	"late":     StatusLate,
	"มาสาย":    StatusLate,
	"absent":   StatusAbsent,
	"ขาด":      StatusAbsent,
	"leave":    StatusLeave,
	"ลา":       StatusLeave,
	"sick":     StatusSick,
	"ลาป่วย":   StatusSick,
}

var titleCaser = cases.Title(language.English)

// Normalize canonicalizes a raw status string. Known English and Thai
// spellings map onto the closed status set; anything else is title-cased
// so repeated sanitize runs converge on a single spelling.
func Normalize(raw string) string {
	lower := strings.ToLower(strings.TrimSpace(raw))
	if lower == "" {
		return ""
	}
	if canonical, ok := statusAliases[lower]; ok {
		return canonical
	}
	return titleCaser.String(lower)
}

// Deductible reports whether a status consumes a quota session.
// Statuses are normalized first, so legacy localized spellings of
// Present/Late still count during replays of old records.
func Deductible(status string) bool {
	switch Normalize(status) {
	case StatusPresent, StatusLate:
		return true
	}
	return false
}
