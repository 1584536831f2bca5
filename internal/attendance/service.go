package attendance

import (
	"context"
	"errors"
	"log"
	"strings"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/metrics"
	"classtrack/internal/roster"
)

// Hard errors surfaced to callers. Quota match misses are deliberately not
// errors: attendance truth outranks quota bookkeeping.
var (
	ErrRecordNotFound  = errors.New("attendance record not found")
	ErrStudentNotFound = errors.New("student not found")
	ErrDuplicateDay    = errors.New("attendance record already exists for this subject and day")
)

// RecordStore is the persistence surface the service needs.
type RecordStore interface {
	Get(ctx context.Context, id string) (*Record, error)
	FindBySubjectAndDay(ctx context.Context, subjectID string, day time.Time) (*Record, error)
	FindBySubjectNameAndDay(ctx context.Context, subjectName string, day time.Time) (*Record, error)
	ConflictExists(ctx context.Context, subjectID string, day time.Time, excludeID string) (bool, error)
	Save(ctx context.Context, rec *Record) error
	Delete(ctx context.Context, id string) error
	List(ctx context.Context, subject, teacherID string) ([]Record, error)
	ListByTeacher(ctx context.Context, teacherID string) ([]Record, error)
	ListByStudent(ctx context.Context, studentID string) ([]Record, error)
	ListAll(ctx context.Context) ([]Record, error)
}

// SubjectDirectory resolves subject display names to canonical ids,
// creating catalog entries for names it has never seen.
type SubjectDirectory interface {
	Ensure(ctx context.Context, name, teacherID string) (string, error)
}

// Notifier emits record-change events. Best-effort; implementations must
// never fail the calling operation.
type Notifier interface {
	Emit(ctx context.Context, event string, payload any)
}

// Service owns attendance records and keeps the quota ledger in step with
// them.
type Service struct {
	records  RecordStore
	students StudentDirectory
	subjects SubjectDirectory
	quota    *Applier
	notify   Notifier
	now      func() time.Time
}

// NewService wires the service. notify may be nil.
func NewService(records RecordStore, students StudentDirectory, subjects SubjectDirectory, notify Notifier) *Service {
	return &Service{
		records:  records,
		students: students,
		subjects: subjects,
		quota:    NewApplier(students),
		notify:   notify,
		now:      time.Now,
	}
}

// EntryInput is one incoming student row on the upsert path. Empty fields
// mean "keep whatever the existing entry has"; Status and Comment always
// overwrite.
type EntryInput struct {
	StudentID   string
	FirstName   string
	LastName    string
	Nickname    string
	Status      string
	LeaveType   string
	Time        string
	ClassPeriod string
	Comment     string
}

// RecordInput is the payload for create and update.
type RecordInput struct {
	SubjectID   string
	SubjectName string
	Date        time.Time
	Students    []EntryInput
}

// Create records attendance for (subject, day), merging into the day's
// existing record when one exists.
func (s *Service) Create(ctx context.Context, in RecordInput, teacherID string) (*Record, error) {
	day := Day(in.Date)
	existing, err := s.records.FindBySubjectAndDay(ctx, in.SubjectID, day)
	if err != nil {
		return nil, err
	}

	rec := existing
	if rec == nil {
		rec = &Record{
			SubjectID:   in.SubjectID,
			SubjectName: in.SubjectName,
			TeacherID:   teacherID,
			Date:        day,
		}
	}

	subjectName := in.SubjectName
	if subjectName == "" && existing != nil {
		subjectName = existing.SubjectName
	}
	if err := s.mergeAndReconcile(ctx, rec, in.Students, subjectName, teacherID); err != nil {
		return nil, err
	}

	rec.TeacherID = teacherID
	if in.SubjectName != "" {
		rec.SubjectName = in.SubjectName
	}
	if err := s.records.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.emit(ctx, "attendance.updated", rec)
	return rec, nil
}

// Update edits an existing record by id. Rejects the edit when another
// record already occupies the target (subject, day).
func (s *Service) Update(ctx context.Context, id string, in RecordInput, teacherID string) (*Record, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}

	day := Day(in.Date)
	conflict, err := s.records.ConflictExists(ctx, rec.SubjectID, day, id)
	if err != nil {
		return nil, err
	}
	if conflict {
		return nil, ErrDuplicateDay
	}

	if err := s.mergeAndReconcile(ctx, rec, in.Students, in.SubjectName, teacherID); err != nil {
		return nil, err
	}

	rec.Date = day
	if in.SubjectName != "" {
		rec.SubjectName = in.SubjectName
	}
	if err := s.records.Save(ctx, rec); err != nil {
		return nil, err
	}
	s.emit(ctx, "attendance.updated", rec)
	return rec, nil
}

// mergeAndReconcile merges incoming entries into rec.Students (replacing by
// student id, appending new, never dropping untouched entries), resolves
// missing display names, and applies the implied quota deltas.
func (s *Service) mergeAndReconcile(ctx context.Context, rec *Record, incoming []EntryInput, subjectName, teacherID string) error {
	old := rec.Students
	merged := make([]Entry, len(old))
	copy(merged, old)

	for _, in := range incoming {
		if in.StudentID == "" {
			continue
		}
		e := Entry{
			StudentID:   in.StudentID,
			FirstName:   in.FirstName,
			LastName:    in.LastName,
			Nickname:    in.Nickname,
			Status:      Normalize(in.Status),
			LeaveType:   in.LeaveType,
			Time:        in.Time,
			ClassPeriod: in.ClassPeriod,
			Comment:     in.Comment,
		}
		idx := -1
		for i, m := range merged {
			if m.StudentID == in.StudentID {
				idx = i
				break
			}
		}
		if idx == -1 {
			merged = append(merged, e)
			continue
		}
		prev := merged[idx]
		if e.FirstName == "" {
			e.FirstName = prev.FirstName
		}
		if e.LastName == "" {
			e.LastName = prev.LastName
		}
		if e.Nickname == "" {
			e.Nickname = prev.Nickname
		}
		if e.LeaveType == "" {
			e.LeaveType = prev.LeaveType
		}
		if e.Time == "" {
			e.Time = prev.Time
		}
		if e.ClassPeriod == "" {
			e.ClassPeriod = prev.ClassPeriod
		}
		merged[idx] = e
	}

	if err := s.resolveNames(ctx, merged); err != nil {
		return err
	}

	for i := range merged {
		id := merged[i].StudentID
		var (
			oldStatus string
			hadOld    bool
		)
		for _, o := range old {
			if o.StudentID == id {
				oldStatus, hadOld = o.Status, true
				break
			}
		}
		delta := DeltaFor(oldStatus, hadOld, merged[i].Status, true)
		if delta == 0 {
			continue
		}
		res, err := s.quota.Apply(ctx, id, subjectName, teacherID, delta)
		if err != nil {
			return err
		}
		if !res.Applied {
			log.Printf("quota: no registration for student=%s subject=%q, delta %+d skipped", id, subjectName, delta)
		}
	}

	rec.Students = merged
	return nil
}

// resolveNames fills entries whose first/last name is empty or a placeholder
// from the user directory. Lookup misses leave the entry as-is.
func (s *Service) resolveNames(ctx context.Context, entries []Entry) error {
	var ids []string
	for _, e := range entries {
		if nameMissing(e) {
			ids = append(ids, e.StudentID)
		}
	}
	if len(ids) == 0 {
		return nil
	}
	users, err := s.students.GetByIDs(ctx, ids)
	if err != nil {
		return err
	}
	byID := make(map[string]roster.User, len(users))
	for _, u := range users {
		byID[u.ID] = u
	}
	for i := range entries {
		if !nameMissing(entries[i]) {
			continue
		}
		u, ok := byID[entries[i].StudentID]
		if !ok {
			continue
		}
		first, last := u.Names()
		if entries[i].FirstName == "" || entries[i].FirstName == "Unknown" {
			if first == "" {
				first = "Unknown"
			}
			entries[i].FirstName = first
		}
		if entries[i].LastName == "" || entries[i].LastName == "-" {
			if last == "" {
				last = "-"
			}
			entries[i].LastName = last
		}
		if entries[i].Nickname == "" {
			entries[i].Nickname = u.Nickname
		}
	}
	return nil
}

func nameMissing(e Entry) bool {
	return e.FirstName == "" || e.FirstName == "Unknown" || e.LastName == "" || e.LastName == "-"
}

// Delete removes one student's entry, or the whole record when studentID is
// empty, rolling back quota for every deductible entry it removes. Missing
// students are a no-op.
func (s *Service) Delete(ctx context.Context, id, studentID string) error {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return err
	}
	if rec == nil {
		return ErrRecordNotFound
	}

	if studentID != "" {
		idx := rec.EntryIndex(studentID)
		if idx == -1 {
			return nil
		}
		entry := rec.Students[idx]
		if Deductible(entry.Status) {
			if _, err := s.quota.Apply(ctx, entry.StudentID, rec.SubjectName, rec.TeacherID, -1); err != nil {
				return err
			}
		}
		rec.Students = append(rec.Students[:idx], rec.Students[idx+1:]...)
		if len(rec.Students) == 0 {
			err = s.records.Delete(ctx, id)
		} else {
			err = s.records.Save(ctx, rec)
		}
		if err != nil {
			return err
		}
		s.emit(ctx, "attendance.deleted", map[string]string{"record_id": id, "student_id": studentID})
		return nil
	}

	for _, entry := range rec.Students {
		if Deductible(entry.Status) {
			if _, err := s.quota.Apply(ctx, entry.StudentID, rec.SubjectName, rec.TeacherID, -1); err != nil {
				return err
			}
		}
	}
	if err := s.records.Delete(ctx, id); err != nil {
		return err
	}
	s.emit(ctx, "attendance.deleted", map[string]string{"record_id": id})
	return nil
}

// ReconcileResult counts outcomes of a bulk replay.
type ReconcileResult struct {
	UpdatedCount int `json:"updatedCount"`
	FailCount    int `json:"failCount"`
}

// Recalculate rebuilds the quota ledger from scratch: every counter is reset
// to zero, then every deductible entry in the record store is replayed as a
// +1 through the subject-only matcher. Not transactional; safe to re-run.
func (s *Service) Recalculate(ctx context.Context) (ReconcileResult, error) {
	metrics.ReconcileRuns.WithLabelValues("recalculate").Inc()
	log.Println("reconcile: resetting quota counters")
	if _, err := s.students.ResetUsedSessions(ctx); err != nil {
		return ReconcileResult{}, err
	}
	res, err := s.replay(ctx)
	if err != nil {
		return res, err
	}
	log.Printf("reconcile: done, updated=%d failed=%d", res.UpdatedCount, res.FailCount)
	return res, nil
}

func (s *Service) replay(ctx context.Context) (ReconcileResult, error) {
	var res ReconcileResult
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return res, err
	}
	for _, rec := range records {
		for _, entry := range rec.Students {
			if !Deductible(entry.Status) {
				continue
			}
			applied, err := s.quota.ApplyBySubject(ctx, entry.StudentID, rec.SubjectName, 1)
			if err != nil {
				return res, err
			}
			if applied.Applied {
				res.UpdatedCount++
			} else {
				res.FailCount++
			}
		}
	}
	return res, nil
}

// SanitizeResult extends ReconcileResult with the cleanup phase count.
type SanitizeResult struct {
	CleanedRecords int `json:"cleanedRecords"`
	UpdatedCount   int `json:"updatedCount"`
	FailCount      int `json:"failCount"`
}

// Sanitize normalizes stored records in place (trimmed subject names,
// canonical statuses), then performs the same reset-and-replay as
// Recalculate. Partial completion is acceptable; re-running converges.
func (s *Service) Sanitize(ctx context.Context) (SanitizeResult, error) {
	metrics.ReconcileRuns.WithLabelValues("sanitize").Inc()
	records, err := s.records.ListAll(ctx)
	if err != nil {
		return SanitizeResult{}, err
	}

	var out SanitizeResult
	for i := range records {
		rec := &records[i]
		dirty := false
		if trimmed := strings.TrimSpace(rec.SubjectName); trimmed != rec.SubjectName {
			rec.SubjectName = trimmed
			dirty = true
		}
		for j := range rec.Students {
			if canonical := Normalize(rec.Students[j].Status); canonical != rec.Students[j].Status {
				rec.Students[j].Status = canonical
				dirty = true
			}
		}
		if dirty {
			if err := s.records.Save(ctx, rec); err != nil {
				return out, err
			}
			out.CleanedRecords++
		}
	}
	log.Printf("sanitize: cleaned %d records", out.CleanedRecords)

	if _, err := s.students.ResetUsedSessions(ctx); err != nil {
		return out, err
	}
	replayed, err := s.replay(ctx)
	out.UpdatedCount = replayed.UpdatedCount
	out.FailCount = replayed.FailCount
	if err != nil {
		return out, err
	}
	log.Printf("sanitize: done, updated=%d failed=%d", out.UpdatedCount, out.FailCount)
	return out, nil
}

// RecoverResult counts records touched by history recovery.
type RecoverResult struct {
	CreatedCount int `json:"createdCount"`
	UpdatedCount int `json:"updatedCount"`
}

// RecoverHistory rebuilds attendance records from the attendance notes
// embedded in student registrations. One-way repair tool for when the
// record store was lost or never populated. Matches by subject name + day;
// subject ids are resolved through the directory or freshly minted.
func (s *Service) RecoverHistory(ctx context.Context) (RecoverResult, error) {
	metrics.ReconcileRuns.WithLabelValues("recover").Inc()
	students, err := s.students.ListStudents(ctx)
	if err != nil {
		return RecoverResult{}, err
	}

	var res RecoverResult
	for _, student := range students {
		for _, reg := range student.Registrations {
			for _, hist := range reg.History {
				day := Day(hist.Date)
				first, last := student.Names()
				if first == "" {
					first = "Unknown"
				}
				if last == "" {
					last = "Unknown"
				}
				entry := Entry{
					StudentID: student.ID,
					FirstName: first,
					LastName:  last,
					Nickname:  student.Nickname,
					Status:    Normalize(hist.Status),
					Time:      hist.CheckInTime,
					Comment:   hist.Note,
				}
				if entry.Time == "" {
					entry.Time = "00:00"
				}

				rec, err := s.records.FindBySubjectNameAndDay(ctx, reg.Subject, day)
				if err != nil {
					return res, err
				}
				if rec != nil {
					if rec.EntryIndex(student.ID) != -1 {
						continue
					}
					rec.Students = append(rec.Students, entry)
					if err := s.records.Save(ctx, rec); err != nil {
						return res, err
					}
					res.UpdatedCount++
					continue
				}

				// Resolve through the catalog so an unknown subject gets
				// one persistent id, not a fresh one per day.
				subjectID := reg.SubjectID
				if subjectID == "" {
					if subjectID, err = s.subjects.Ensure(ctx, reg.Subject, reg.TeacherID); err != nil {
						return res, err
					}
				}
				if subjectID == "" {
					subjectID = uuid.NewString()
				}
				rec = &Record{
					SubjectID:   subjectID,
					SubjectName: reg.Subject,
					TeacherID:   reg.TeacherID,
					Date:        day,
					Students:    []Entry{entry},
				}
				if err := s.records.Save(ctx, rec); err != nil {
					return res, err
				}
				res.CreatedCount++
			}
		}
	}
	log.Printf("recover: created=%d updated=%d", res.CreatedCount, res.UpdatedCount)
	return res, nil
}

// CheckInRequest is a consumed QR session plus the student checking in.
type CheckInRequest struct {
	TeacherID   string
	SubjectID   string
	SubjectName string
	Date        time.Time
	StudentID   string
}

// CheckInResult is the outcome of a QR check-in.
type CheckInResult struct {
	AlreadyCheckedIn bool   `json:"already_checked_in"`
	Status           string `json:"status"`
	QuotaDeducted    bool   `json:"quota_deducted"`
	RemainingQuota   *int   `json:"remaining_quota,omitempty"`
	Warning          string `json:"warning,omitempty"`
}

// QRCheckIn appends a Present entry for the student on the session's
// (subject, day) record, creating the record if needed, and deducts quota
// best-effort. Repeat check-ins are reported, not duplicated. Enrollment is
// advisory: an unregistered student gets a warning, never a rejection.
func (s *Service) QRCheckIn(ctx context.Context, req CheckInRequest) (CheckInResult, error) {
	student, err := s.students.Get(ctx, req.StudentID)
	if err != nil {
		return CheckInResult{}, err
	}
	if student == nil {
		return CheckInResult{}, ErrStudentNotFound
	}

	var warning string
	if !enrolled(student.Registrations, req.SubjectName) {
		warning = "not actively enrolled in this course"
	}

	day := Day(req.Date)
	rec, err := s.records.FindBySubjectAndDay(ctx, req.SubjectID, day)
	if err != nil {
		return CheckInResult{}, err
	}
	if rec != nil {
		if idx := rec.EntryIndex(student.ID); idx != -1 {
			metrics.CheckIns.WithLabelValues("duplicate").Inc()
			return CheckInResult{AlreadyCheckedIn: true, Status: rec.Students[idx].Status}, nil
		}
	} else {
		rec = &Record{
			SubjectID:   req.SubjectID,
			SubjectName: req.SubjectName,
			TeacherID:   req.TeacherID,
			Date:        day,
		}
	}

	first, last := student.Names()
	if first == "" {
		first = "-"
	}
	if last == "" {
		last = "-"
	}
	rec.Students = append(rec.Students, Entry{
		StudentID: student.ID,
		FirstName: first,
		LastName:  last,
		Nickname:  student.Nickname,
		Status:    StatusPresent,
		Comment:   "QR Check-in",
		Time:      s.now().UTC().Format("15:04"),
	})
	if err := s.records.Save(ctx, rec); err != nil {
		return CheckInResult{}, err
	}

	quotaRes, err := s.quota.Apply(ctx, student.ID, req.SubjectName, req.TeacherID, 1)
	if err != nil {
		return CheckInResult{}, err
	}

	metrics.CheckIns.WithLabelValues("success").Inc()
	s.emit(ctx, "qr.checkin", map[string]string{"record_id": rec.ID, "student_id": student.ID})
	return CheckInResult{
		Status:         StatusPresent,
		QuotaDeducted:  quotaRes.Applied,
		RemainingQuota: quotaRes.Remaining,
		Warning:        warning,
	}, nil
}

func enrolled(regs []roster.Registration, subjectName string) bool {
	target := normSubject(subjectName)
	for _, reg := range regs {
		if normSubject(reg.Subject) == target {
			return true
		}
	}
	return false
}

// Query passthroughs used by the API layer.

// Get returns one record or ErrRecordNotFound.
func (s *Service) Get(ctx context.Context, id string) (*Record, error) {
	rec, err := s.records.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec == nil {
		return nil, ErrRecordNotFound
	}
	return rec, nil
}

// FindBySubjectAndDate returns the day's record for a subject, or nil.
func (s *Service) FindBySubjectAndDate(ctx context.Context, subjectID string, date time.Time) (*Record, error) {
	return s.records.FindBySubjectAndDay(ctx, subjectID, Day(date))
}

// List returns records filtered by subject and teacher.
func (s *Service) List(ctx context.Context, subject, teacherID string) ([]Record, error) {
	return s.records.List(ctx, subject, teacherID)
}

// ListByTeacher returns a teacher's records.
func (s *Service) ListByTeacher(ctx context.Context, teacherID string) ([]Record, error) {
	return s.records.ListByTeacher(ctx, teacherID)
}

// ListByStudent returns a student's attendance history.
func (s *Service) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return s.records.ListByStudent(ctx, studentID)
}

func (s *Service) emit(ctx context.Context, event string, payload any) {
	if s.notify == nil {
		return
	}
	s.notify.Emit(ctx, event, payload)
}
