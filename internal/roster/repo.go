package roster

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"time"

	"github.com/google/uuid"
)

// Repository persists the user directory and registrations in Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

const userCols = `id, username, password_hash, role, first_name, last_name, nickname, display_name, created_at`

func scanUser(row interface{ Scan(dest ...any) error }) (User, error) {
	var u User
	var nickname, display sql.NullString
	err := row.Scan(&u.ID, &u.Username, &u.PasswordHash, &u.Role, &u.FirstName, &u.LastName, &nickname, &display, &u.CreatedAt)
	if err != nil {
		return User{}, err
	}
	u.Nickname = nickname.String
	u.DisplayName = display.String
	return u, nil
}

// Get returns a user with registrations loaded, or nil when absent.
func (r *Repository) Get(ctx context.Context, id string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE id = $1`, id)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	if u.Registrations, err = r.registrations(ctx, u.ID); err != nil {
		return nil, err
	}
	return &u, nil
}

// GetByUsername returns a user by login name, or nil when absent.
func (r *Repository) GetByUsername(ctx context.Context, username string) (*User, error) {
	row := r.db.QueryRowContext(ctx, `SELECT `+userCols+` FROM users WHERE username = $1`, username)
	u, err := scanUser(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil
		}
		return nil, err
	}
	return &u, nil
}

// GetByIDs returns directory entries for the given ids, names only.
// Order-insensitive; missing ids are silently skipped.
func (r *Repository) GetByIDs(ctx context.Context, ids []string) ([]User, error) {
	if len(ids) == 0 {
		return nil, nil
	}
	rows, err := r.db.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE id = ANY($1)`, ids)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, rows.Err()
}

// ListStudents returns every student with registrations loaded, ordered by id
// so bulk replays are deterministic.
func (r *Repository) ListStudents(ctx context.Context) ([]User, error) {
	rows, err := r.db.QueryContext(ctx, `SELECT `+userCols+` FROM users WHERE role = $1 ORDER BY id`, RoleStudent)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var out []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	for i := range out {
		if out[i].Registrations, err = r.registrations(ctx, out[i].ID); err != nil {
			return nil, err
		}
	}
	return out, nil
}

func (r *Repository) registrations(ctx context.Context, userID string) ([]Registration, error) {
	rows, err := r.db.QueryContext(ctx, `
		SELECT subject, COALESCE(subject_id, ''), COALESCE(teacher_id, ''), COALESCE(teacher_name, ''),
		       COALESCE(day, ''), COALESCE(time_slot, ''), COALESCE(level, ''),
		       total_sessions, used_sessions, COALESCE(history, '[]')
		FROM registrations
		WHERE user_id = $1
		ORDER BY position
	`, userID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var regs []Registration
	for rows.Next() {
		var reg Registration
		var history []byte
		if err := rows.Scan(&reg.Subject, &reg.SubjectID, &reg.TeacherID, &reg.TeacherName,
			&reg.Day, &reg.Time, &reg.Level, &reg.TotalSessions, &reg.UsedSessions, &history); err != nil {
			return nil, err
		}
		if len(history) > 0 {
			if err := json.Unmarshal(history, &reg.History); err != nil {
				return nil, err
			}
		}
		regs = append(regs, reg)
	}
	return regs, rows.Err()
}

// UpdateUsedSessions writes a single registration counter, addressed by user
// id and list position. Deliberately narrow so concurrent attendance edits
// touch one field, not the whole user row.
func (r *Repository) UpdateUsedSessions(ctx context.Context, userID string, position, used int) error {
	res, err := r.db.ExecContext(ctx, `
		UPDATE registrations SET used_sessions = $3
		WHERE user_id = $1 AND position = $2
	`, userID, position, used)
	if err != nil {
		return err
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return errors.New("registration not found")
	}
	return nil
}

// ResetUsedSessions zeroes every student's counters. Returns rows touched.
func (r *Repository) ResetUsedSessions(ctx context.Context) (int64, error) {
	res, err := r.db.ExecContext(ctx, `UPDATE registrations SET used_sessions = 0 WHERE used_sessions <> 0`)
	if err != nil {
		return 0, err
	}
	return res.RowsAffected()
}

// Save upserts the user row and rewrites its registrations in list order.
func (r *Repository) Save(ctx context.Context, u *User) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	if u.CreatedAt.IsZero() {
		u.CreatedAt = time.Now().UTC()
	}
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.ExecContext(ctx, `
		INSERT INTO users (id, username, password_hash, role, first_name, last_name, nickname, display_name, created_at)
		VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
		ON CONFLICT (id) DO UPDATE SET
			username = EXCLUDED.username,
			role = EXCLUDED.role,
			first_name = EXCLUDED.first_name,
			last_name = EXCLUDED.last_name,
			nickname = EXCLUDED.nickname,
			display_name = EXCLUDED.display_name
	`, u.ID, u.Username, u.PasswordHash, u.Role, u.FirstName, u.LastName, u.Nickname, u.DisplayName, u.CreatedAt)
	if err != nil {
		return err
	}

	if _, err := tx.ExecContext(ctx, `DELETE FROM registrations WHERE user_id = $1`, u.ID); err != nil {
		return err
	}
	for i, reg := range u.Registrations {
		history, err := json.Marshal(reg.History)
		if err != nil {
			return err
		}
		_, err = tx.ExecContext(ctx, `
			INSERT INTO registrations (user_id, position, subject, subject_id, teacher_id, teacher_name,
			                           day, time_slot, level, total_sessions, used_sessions, history)
			VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9,$10,$11,$12)
		`, u.ID, i, reg.Subject, reg.SubjectID, reg.TeacherID, reg.TeacherName,
			reg.Day, reg.Time, reg.Level, reg.TotalSessions, reg.UsedSessions, history)
		if err != nil {
			return err
		}
	}
	return tx.Commit()
}
