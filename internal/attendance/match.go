package attendance

import (
	"strings"

	"classtrack/internal/roster"
)

// NoMatch is returned when no registration can absorb a quota delta.
const NoMatch = -1

// MatchRegistration picks the registration that should absorb a quota delta
// for the given subject and teacher. Tiers, in order:
//
//  1. subject and teacher both equal, and the registration has capacity left
//  2. subject equal, teacher ignored (legacy rows rarely carry teacher ids)
//  3. fuzzy: either subject string contains the other
//
// The first hit in the earliest tier wins; ties within a tier resolve to the
// lowest index. Subject comparison is case-insensitive and trimmed.
func MatchRegistration(regs []roster.Registration, subjectName, teacherID string) int {
	target := normSubject(subjectName)
	if target == "" {
		return NoMatch
	}
	for i, reg := range regs {
		if normSubject(reg.Subject) == target && reg.TeacherID == teacherID &&
			(reg.Unlimited() || reg.UsedSessions < reg.TotalSessions) {
			return i
		}
	}
	return MatchRegistrationBySubject(regs, subjectName)
}

// MatchRegistrationBySubject matches on subject alone: exact first, then
// fuzzy. Bulk replays use this directly since teacher ids in old records
// mismatch too often to be trusted.
func MatchRegistrationBySubject(regs []roster.Registration, subjectName string) int {
	target := normSubject(subjectName)
	if target == "" {
		return NoMatch
	}
	for i, reg := range regs {
		if normSubject(reg.Subject) == target {
			return i
		}
	}
	for i, reg := range regs {
		subj := normSubject(reg.Subject)
		if subj == "" {
			continue
		}
		if strings.Contains(target, subj) || strings.Contains(subj, target) {
			return i
		}
	}
	return NoMatch
}

func normSubject(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}
