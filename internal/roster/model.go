package roster

import (
	"strings"
	"time"
)

// Role values stored on a user row.
const (
	RoleAdmin   = "admin"
	RoleTeacher = "teacher"
	RoleStudent = "student"
)

// HistoryEntry is one embedded attendance note kept on a registration.
// It predates the attendance record store and is only read by the
// history-recovery repair tool.
type HistoryEntry struct {
	Date        time.Time `json:"date"`
	Status      string    `json:"status"`
	Note        string    `json:"note"`
	CheckInTime string    `json:"check_in_time"`
}

// Registration is one course enrollment embedded in a user.
// TotalSessions of zero means the enrollment is unlimited.
type Registration struct {
	Subject       string         `json:"subject"`
	SubjectID     string         `json:"subject_id,omitempty"`
	TeacherID     string         `json:"teacher_id,omitempty"`
	TeacherName   string         `json:"teacher_name,omitempty"`
	Day           string         `json:"day,omitempty"`
	Time          string         `json:"time,omitempty"`
	Level         string         `json:"level,omitempty"`
	TotalSessions int            `json:"total_sessions"`
	UsedSessions  int            `json:"used_sessions"`
	History       []HistoryEntry `json:"history,omitempty"`
}

// Unlimited reports whether the registration has no session cap.
func (r Registration) Unlimited() bool { return r.TotalSessions <= 0 }

// Remaining returns sessions left, or nil for unlimited registrations.
func (r Registration) Remaining() *int {
	if r.Unlimited() {
		return nil
	}
	left := r.TotalSessions - r.UsedSessions
	if left < 0 {
		left = 0
	}
	return &left
}

// User is a directory entry. Teachers and admins carry no registrations.
type User struct {
	ID            string         `json:"id"`
	Username      string         `json:"username"`
	PasswordHash  string         `json:"-"`
	Role          string         `json:"role"`
	FirstName     string         `json:"first_name"`
	LastName      string         `json:"last_name"`
	Nickname      string         `json:"nickname,omitempty"`
	DisplayName   string         `json:"display_name,omitempty"`
	Registrations []Registration `json:"registrations,omitempty"`
	CreatedAt     time.Time      `json:"created_at"`
}

// Names returns the first/last name pair, falling back to splitting the
// display name when the structured fields are empty.
func (u User) Names() (first, last string) {
	first, last = u.FirstName, u.LastName
	if first != "" && last != "" {
		return first, last
	}
	parts := splitName(u.DisplayName)
	if first == "" {
		first = parts[0]
	}
	if last == "" {
		last = parts[1]
	}
	return first, last
}

func splitName(full string) [2]string {
	out := [2]string{"", ""}
	fields := strings.Fields(full)
	if len(fields) > 0 {
		out[0] = fields[0]
	}
	if len(fields) > 1 {
		out[1] = strings.Join(fields[1:], " ")
	}
	return out
}
