package attendance

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Repository persists attendance records and their rosters in Postgres.
// Entries live in a child table keyed (record_id, student_id), which also
// enforces the one-entry-per-student invariant at the storage layer.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const recordCols = `id, subject_id, subject_name, teacher_id, day, created_at, updated_at`

func scanRecord(row interface{ Scan(dest ...any) error }) (Record, error) {
	var rec Record
	err := row.Scan(&rec.ID, &rec.SubjectID, &rec.SubjectName, &rec.TeacherID, &rec.Date, &rec.CreatedAt, &rec.UpdatedAt)
	if err != nil {
		return Record{}, err
	}
	rec.Date = Day(rec.Date)
	return rec, nil
}

// Get returns a record with its roster, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+recordCols+` FROM attendance_records WHERE id = $1`, id)
	return r.oneWithEntries(ctx, row)
}

// FindBySubjectAndDay returns the record for (subject id, day), or nil.
func (r *Repository) FindBySubjectAndDay(ctx context.Context, subjectID string, day time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE subject_id = $1 AND day = $2
	`, subjectID, Day(day))
	return r.oneWithEntries(ctx, row)
}

// FindBySubjectNameAndDay matches on the display name instead of the id.
// Used by history recovery, where old profile rows only carry names.
func (r *Repository) FindBySubjectNameAndDay(ctx context.Context, subjectName string, day time.Time) (*Record, error) {
	row := r.db.QueryRowContext(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE subject_name = $1 AND day = $2
		ORDER BY created_at
		LIMIT 1
	`, subjectName, Day(day))
	return r.oneWithEntries(ctx, row)
}

func (r *Repository) oneWithEntries(ctx context.Context, row *sql.Row) (*Record, error) {
	rec, err := scanRecord(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if err := r.loadEntries(ctx, &rec); err != nil {
		return nil, err
	}
	return &rec, nil
}

// ConflictExists reports whether another record occupies (subject id, day).
func (r *Repository) ConflictExists(ctx context.Context, subjectID string, day time.Time, excludeID string) (bool, error) {
	var one int
	err := r.db.QueryRowContext(ctx, `
		SELECT 1 FROM attendance_records
		WHERE subject_id = $1 AND day = $2 AND id <> $3
		LIMIT 1
	`, subjectID, Day(day), excludeID).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

// Save upserts the record row and rewrites its roster in order.
func (r *Repository) Save(ctx context.Context, rec *Record) error {
	if rec.ID == "" {
		rec.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if rec.CreatedAt.IsZero() {
		rec.CreatedAt = now
	}
	rec.UpdatedAt = now
	rec.Date = Day(rec.Date)

	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO attendance_records (id, subject_id, subject_name, teacher_id, day, created_at, updated_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7)
		ON CONFLICT (id) DO UPDATE SET
			subject_id = EXCLUDED.subject_id,
			subject_name = EXCLUDED.subject_name,
			teacher_id = EXCLUDED.teacher_id,
			day = EXCLUDED.day,
			updated_at = EXCLUDED.updated_at
	`, rec.ID, rec.SubjectID, rec.SubjectName, rec.TeacherID, rec.Date, rec.CreatedAt, rec.UpdatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_entries WHERE record_id = $1`, rec.ID); err != nil {
		return err
	}
	for i, e := range rec.Students {
		_, err := tx.ExecContext(ctx, `
			INSERT INTO attendance_entries (record_id, position, student_id, first_name, last_name, nickname,
			                                status, leave_type, time_slot, class_period, comment)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11)
		`, rec.ID, i, e.StudentID, e.FirstName, e.LastName, e.Nickname,
			e.Status, e.LeaveType, e.Time, e.ClassPeriod, e.Comment)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}

// Delete removes a record and its roster.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()
	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_entries WHERE record_id = $1`, id); err != nil {
		return err
	}
	if _, err := tx.ExecContext(ctx, `DELETE FROM attendance_records WHERE id = $1`, id); err != nil {
		return err
	}
	return tx.Commit()
}

// List returns records filtered by subject (id or display name) and teacher,
// oldest first. Empty filters match everything.
func (r *Repository) List(ctx context.Context, subject, teacherID string) ([]Record, error) {
	query := `SELECT ` + recordCols + ` FROM attendance_records`
	var (
		args    []any
		clauses []string
	)
	if subject != "" {
		args = append(args, subject)
		clauses = append(clauses, fmt.Sprintf(`(subject_id = $%d OR subject_name = $%d)`, len(args), len(args)))
	}
	if teacherID != "" {
		args = append(args, teacherID)
		clauses = append(clauses, fmt.Sprintf(`teacher_id = $%d`, len(args)))
	}
	for i, c := range clauses {
		if i == 0 {
			query += " WHERE " + c
		} else {
			query += " AND " + c
		}
	}
	query += " ORDER BY day ASC, created_at ASC"
	return r.queryRecords(ctx, query, args...)
}

// ListByTeacher returns a teacher's records, newest first.
func (r *Repository) ListByTeacher(ctx context.Context, teacherID string) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE teacher_id = $1
		ORDER BY day DESC, created_at DESC
	`, teacherID)
}

// ListByStudent returns every record containing the student, newest first.
func (r *Repository) ListByStudent(ctx context.Context, studentID string) ([]Record, error) {
	return r.queryRecords(ctx, `
		SELECT `+recordCols+` FROM attendance_records
		WHERE id IN (SELECT record_id FROM attendance_entries WHERE student_id = $1)
		ORDER BY day DESC, created_at DESC
	`, studentID)
}

// ListAll returns every record, ordered by day so replays are deterministic.
func (r *Repository) ListAll(ctx context.Context) ([]Record, error) {
	return r.queryRecords(ctx, `SELECT `+recordCols+` FROM attendance_records ORDER BY day ASC, id ASC`)
}

func (r *Repository) queryRecords(ctx context.Context, query string, args ...any) ([]Record, error) {
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []Record
	for rows.Next() {
		rec, err := scanRecord(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if err := r.loadEntries(ctx, &out[i]); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) loadEntries(ctx context.Context, rec *Record) error {
	rows, err := r.db.QueryContext(ctx, `
		SELECT student_id, first_name, last_name, COALESCE(nickname, ''),
		       status, COALESCE(leave_type, ''), COALESCE(time_slot, ''),
		       COALESCE(class_period, ''), COALESCE(comment, '')
		FROM attendance_entries
		WHERE record_id = $1
		ORDER BY position
	`, rec.ID)
	if err != nil {
		return err
	}
	defer rows.Close()
	rec.Students = rec.Students[:0]
	for rows.Next() {
		var e Entry
		if err := rows.Scan(&e.StudentID, &e.FirstName, &e.LastName, &e.Nickname,
			&e.Status, &e.LeaveType, &e.Time, &e.ClassPeriod, &e.Comment); err != nil {
			return err
		}
		rec.Students = append(rec.Students, e)
	}
	return rows.Err()
}
