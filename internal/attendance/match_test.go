package attendance

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"classtrack/internal/roster"
)

func reg(subject, teacherID string, total, used int) roster.Registration {
	return roster.Registration{Subject: subject, TeacherID: teacherID, TotalSessions: total, UsedSessions: used}
}

func TestMatchRegistrationExactBeatsFuzzy(t *testing.T) {
	regs := []roster.Registration{
		reg("Web Design Basic", "t2", 10, 0),
		reg("Web Design", "t1", 10, 0),
	}
	// "Web Design" is a substring of index 0, but the exact match at index 1
	// with the right teacher must win.
	assert.Equal(t, 1, MatchRegistration(regs, "Web Design", "t1"))
}

func TestMatchRegistrationTeacherTierNeedsCapacity(t *testing.T) {
	regs := []roster.Registration{
		reg("Math", "t1", 5, 5),
		reg("Math", "t2", 5, 0),
	}
	// Index 0 matches subject+teacher but is exhausted, so tier 1 skips it.
	// Tier 2 ignores the teacher and picks the first subject match anyway.
	assert.Equal(t, 0, MatchRegistration(regs, "Math", "t1"))
}

func TestMatchRegistrationUnlimitedHasCapacity(t *testing.T) {
	regs := []roster.Registration{
		reg("Math", "t1", 0, 99),
	}
	assert.Equal(t, 0, MatchRegistration(regs, "Math", "t1"))
}

func TestMatchRegistrationFuzzy(t *testing.T) {
	regs := []roster.Registration{
		reg("Science", "t1", 10, 0),
		reg("Intro to Programming", "t1", 10, 0),
	}
	assert.Equal(t, 1, MatchRegistration(regs, "Programming", "t9"))
	assert.Equal(t, 1, MatchRegistration(regs, "Intro to Programming II", "t9"))
}

func TestMatchRegistrationCaseAndSpace(t *testing.T) {
	regs := []roster.Registration{reg("  Web Design ", "t1", 10, 0)}
	assert.Equal(t, 0, MatchRegistration(regs, "web design", "t1"))
}

func TestMatchRegistrationSkipsEmptySubjects(t *testing.T) {
	regs := []roster.Registration{
		reg("", "t1", 10, 0),
		reg("   ", "t1", 10, 0),
	}
	// A blank registration subject must never fuzzy-match everything.
	assert.Equal(t, NoMatch, MatchRegistration(regs, "Math", "t1"))
}

func TestMatchRegistrationNoMatch(t *testing.T) {
	regs := []roster.Registration{reg("Math", "t1", 10, 0)}
	assert.Equal(t, NoMatch, MatchRegistration(regs, "History", "t1"))
	assert.Equal(t, NoMatch, MatchRegistration(regs, "", "t1"))
	assert.Equal(t, NoMatch, MatchRegistration(nil, "Math", "t1"))
}
