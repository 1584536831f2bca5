package attendance

import "time"

// Entry is one student's row inside a day's attendance record.
type Entry struct {
	StudentID   string `json:"student_id"`
	FirstName   string `json:"first_name"`
	LastName    string `json:"last_name"`
	Nickname    string `json:"nickname,omitempty"`
	Status      string `json:"status"`
	LeaveType   string `json:"leave_type,omitempty"`
	Time        string `json:"time,omitempty"` // HH:MM
	ClassPeriod string `json:"class_period,omitempty"`
	Comment     string `json:"comment,omitempty"`
}

// Record is the authoritative roster for one subject on one calendar day.
// At most one record exists per (subject, day), and at most one entry per
// student within a record.
type Record struct {
	ID          string    `json:"id"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	TeacherID   string    `json:"teacher_id"`
	Date        time.Time `json:"date"` // day granularity, UTC midnight
	Students    []Entry   `json:"students"`
	CreatedAt   time.Time `json:"created_at"`
	UpdatedAt   time.Time `json:"updated_at"`
}

// EntryIndex returns the position of a student's entry, or -1.
func (r *Record) EntryIndex(studentID string) int {
	for i, e := range r.Students {
		if e.StudentID == studentID {
			return i
		}
	}
	return -1
}

// Day truncates t to UTC midnight; all record dates are stored this way.
func Day(t time.Time) time.Time {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}
