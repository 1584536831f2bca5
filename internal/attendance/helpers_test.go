package attendance

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"classtrack/internal/roster"
)

// memRecords is an in-memory RecordStore for tests.
type memRecords struct {
	seq  int
	recs map[string]*Record
}

func newMemRecords() *memRecords {
	return &memRecords{recs: make(map[string]*Record)}
}

func copyRecord(rec *Record) *Record {
	out := *rec
	out.Students = make([]Entry, len(rec.Students))
	copy(out.Students, rec.Students)
	return &out
}

func (m *memRecords) Get(_ context.Context, id string) (*Record, error) {
	rec, ok := m.recs[id]
	if !ok {
		return nil, nil
	}
	return copyRecord(rec), nil
}

func (m *memRecords) FindBySubjectAndDay(_ context.Context, subjectID string, day time.Time) (*Record, error) {
	for _, rec := range m.recs {
		if rec.SubjectID == subjectID && rec.Date.Equal(day) {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

func (m *memRecords) FindBySubjectNameAndDay(_ context.Context, subjectName string, day time.Time) (*Record, error) {
	for _, rec := range m.recs {
		if strings.EqualFold(strings.TrimSpace(rec.SubjectName), strings.TrimSpace(subjectName)) && rec.Date.Equal(day) {
			return copyRecord(rec), nil
		}
	}
	return nil, nil
}

func (m *memRecords) ConflictExists(_ context.Context, subjectID string, day time.Time, excludeID string) (bool, error) {
	for _, rec := range m.recs {
		if rec.ID != excludeID && rec.SubjectID == subjectID && rec.Date.Equal(day) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memRecords) Save(_ context.Context, rec *Record) error {
	if rec.ID == "" {
		m.seq++
		rec.ID = fmt.Sprintf("rec-%d", m.seq)
	}
	m.recs[rec.ID] = copyRecord(rec)
	return nil
}

func (m *memRecords) Delete(_ context.Context, id string) error {
	delete(m.recs, id)
	return nil
}

func (m *memRecords) List(_ context.Context, subject, teacherID string) ([]Record, error) {
	var out []Record
	for _, rec := range m.recs {
		if subject != "" && rec.SubjectID != subject && !strings.EqualFold(rec.SubjectName, subject) {
			continue
		}
		if teacherID != "" && rec.TeacherID != teacherID {
			continue
		}
		out = append(out, *copyRecord(rec))
	}
	sortRecords(out)
	return out, nil
}

func (m *memRecords) ListByTeacher(ctx context.Context, teacherID string) ([]Record, error) {
	return m.List(ctx, "", teacherID)
}

func (m *memRecords) ListByStudent(_ context.Context, studentID string) ([]Record, error) {
	var out []Record
	for _, rec := range m.recs {
		if rec.EntryIndex(studentID) != -1 {
			out = append(out, *copyRecord(rec))
		}
	}
	sortRecords(out)
	return out, nil
}

func (m *memRecords) ListAll(_ context.Context) ([]Record, error) {
	out := make([]Record, 0, len(m.recs))
	for _, rec := range m.recs {
		out = append(out, *copyRecord(rec))
	}
	sortRecords(out)
	return out, nil
}

func sortRecords(recs []Record) {
	sort.Slice(recs, func(i, j int) bool {
		if !recs[i].Date.Equal(recs[j].Date) {
			return recs[i].Date.Before(recs[j].Date)
		}
		return recs[i].ID < recs[j].ID
	})
}

// memDirectory is an in-memory StudentDirectory for tests.
type memDirectory struct {
	users map[string]*roster.User
}

func newMemDirectory(users ...*roster.User) *memDirectory {
	m := &memDirectory{users: make(map[string]*roster.User)}
	for _, u := range users {
		m.users[u.ID] = copyUser(u)
	}
	return m
}

func copyUser(u *roster.User) *roster.User {
	out := *u
	out.Registrations = make([]roster.Registration, len(u.Registrations))
	copy(out.Registrations, u.Registrations)
	return &out
}

func (m *memDirectory) Get(_ context.Context, id string) (*roster.User, error) {
	u, ok := m.users[id]
	if !ok {
		return nil, nil
	}
	return copyUser(u), nil
}

func (m *memDirectory) GetByIDs(_ context.Context, ids []string) ([]roster.User, error) {
	var out []roster.User
	for _, id := range ids {
		if u, ok := m.users[id]; ok {
			out = append(out, *copyUser(u))
		}
	}
	return out, nil
}

func (m *memDirectory) ListStudents(_ context.Context) ([]roster.User, error) {
	var out []roster.User
	for _, u := range m.users {
		if u.Role == roster.RoleStudent {
			out = append(out, *copyUser(u))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (m *memDirectory) UpdateUsedSessions(_ context.Context, userID string, position, used int) error {
	u, ok := m.users[userID]
	if !ok || position < 0 || position >= len(u.Registrations) {
		return fmt.Errorf("no registration at %s[%d]", userID, position)
	}
	u.Registrations[position].UsedSessions = used
	return nil
}

func (m *memDirectory) ResetUsedSessions(_ context.Context) (int64, error) {
	var n int64
	for _, u := range m.users {
		for i := range u.Registrations {
			if u.Registrations[i].UsedSessions != 0 {
				n++
			}
			u.Registrations[i].UsedSessions = 0
		}
	}
	return n, nil
}

func (m *memDirectory) Save(_ context.Context, u *roster.User) error {
	m.users[u.ID] = copyUser(u)
	return nil
}

func (m *memDirectory) used(id string, position int) int {
	return m.users[id].Registrations[position].UsedSessions
}

// memSubjects is an in-memory SubjectDirectory.
type memSubjects struct {
	seq int
	ids map[string]string // lowercased name -> id
}

func (m *memSubjects) Ensure(_ context.Context, name, _ string) (string, error) {
	key := strings.ToLower(strings.TrimSpace(name))
	if key == "" {
		return "", nil
	}
	if id, ok := m.ids[key]; ok {
		return id, nil
	}
	m.seq++
	id := fmt.Sprintf("subj-new-%d", m.seq)
	m.ids[key] = id
	return id, nil
}

// recordingNotifier captures emitted events.
type recordingNotifier struct {
	events []string
}

func (n *recordingNotifier) Emit(_ context.Context, event string, _ any) {
	n.events = append(n.events, event)
}
