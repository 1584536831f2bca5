package attendance

import (
	"context"

	"classtrack/internal/metrics"
	"classtrack/internal/roster"
)

// DeltaFor computes the quota delta implied by a status transition on one
// student. hadOld/hasNew distinguish "no entry" from an entry with a
// non-deductible status. Pure.
func DeltaFor(oldStatus string, hadOld bool, newStatus string, hasNew bool) int {
	oldDeductible := hadOld && Deductible(oldStatus)
	newDeductible := hasNew && Deductible(newStatus)
	switch {
	case newDeductible && !oldDeductible:
		return 1
	case oldDeductible && !newDeductible:
		return -1
	}
	return 0
}

// StudentDirectory is the slice of the user directory the quota logic needs.
type StudentDirectory interface {
	Get(ctx context.Context, id string) (*roster.User, error)
	GetByIDs(ctx context.Context, ids []string) ([]roster.User, error)
	ListStudents(ctx context.Context) ([]roster.User, error)
	UpdateUsedSessions(ctx context.Context, userID string, position, used int) error
	ResetUsedSessions(ctx context.Context) (int64, error)
	Save(ctx context.Context, u *roster.User) error
}

// ApplyResult reports the outcome of one quota delta. A miss is not an
// error: attendance truth outranks quota bookkeeping, so callers count
// misses instead of aborting.
type ApplyResult struct {
	Applied   bool
	Remaining *int
}

// Applier resolves a registration through the course matcher and persists
// the adjusted counter as a single targeted field update.
type Applier struct {
	students StudentDirectory
}

// NewApplier creates an applier over the given directory.
func NewApplier(students StudentDirectory) *Applier {
	return &Applier{students: students}
}

// Apply adjusts usedSessions by delta (+1 or -1) on the best-matching
// registration, flooring at zero. Uses the full three-tier matcher.
func (a *Applier) Apply(ctx context.Context, studentID, subjectName, teacherID string, delta int) (ApplyResult, error) {
	return a.apply(ctx, studentID, delta, func(regs []roster.Registration) int {
		return MatchRegistration(regs, subjectName, teacherID)
	})
}

// ApplyBySubject is the replay variant: the teacher id is ignored.
func (a *Applier) ApplyBySubject(ctx context.Context, studentID, subjectName string, delta int) (ApplyResult, error) {
	return a.apply(ctx, studentID, delta, func(regs []roster.Registration) int {
		return MatchRegistrationBySubject(regs, subjectName)
	})
}

func (a *Applier) apply(ctx context.Context, studentID string, delta int, match func([]roster.Registration) int) (ApplyResult, error) {
	if studentID == "" {
		metrics.QuotaDeltas.WithLabelValues("unmatched").Inc()
		return ApplyResult{}, nil
	}
	student, err := a.students.Get(ctx, studentID)
	if err != nil {
		return ApplyResult{}, err
	}
	if student == nil || len(student.Registrations) == 0 {
		metrics.QuotaDeltas.WithLabelValues("unmatched").Inc()
		return ApplyResult{}, nil
	}

	idx := match(student.Registrations)
	if idx == NoMatch {
		metrics.QuotaDeltas.WithLabelValues("unmatched").Inc()
		return ApplyResult{}, nil
	}

	reg := student.Registrations[idx]
	used := reg.UsedSessions + delta
	if used < 0 {
		used = 0
	}
	if err := a.students.UpdateUsedSessions(ctx, studentID, idx, used); err != nil {
		return ApplyResult{}, err
	}
	metrics.QuotaDeltas.WithLabelValues("applied").Inc()

	reg.UsedSessions = used
	return ApplyResult{Applied: true, Remaining: reg.Remaining()}, nil
}
