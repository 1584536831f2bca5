package subjects

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
)

// Subject is a canonical course entry.
type Subject struct {
	ID        string    `json:"id"`
	Name      string    `json:"name"`
	TeacherID string    `json:"teacher_id,omitempty"`
	CreatedAt time.Time `json:"created_at"`
}

// Repository is the subject directory backed by Postgres.
type Repository struct {
	db *sql.DB
}

// NewRepository creates a repo.
func NewRepository(db *sql.DB) *Repository {
	return &Repository{db: db}
}

// IDByName resolves a display name to a subject id; "" when unknown.
// Comparison is trimmed and case-insensitive, matching how attendance
// records reference subjects.
func (r *Repository) IDByName(ctx context.Context, name string) (string, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return "", nil
	}
	var id string
	err := r.db.QueryRowContext(ctx, `
		SELECT id FROM subjects WHERE lower(name) = lower($1) LIMIT 1
	`, name).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) {
		return "", nil
	}
	if err != nil {
		return "", err
	}
	return id, nil
}

// Ensure returns the id for a name, creating the subject when missing.
func (r *Repository) Ensure(ctx context.Context, name, teacherID string) (string, error) {
	id, err := r.IDByName(ctx, name)
	if err != nil || id != "" {
		return id, err
	}
	id = uuid.NewString()
	_, err = r.db.ExecContext(ctx, `
		INSERT INTO subjects (id, name, teacher_id, created_at)
		VALUES ($1, $2, $3, $4)
	`, id, strings.TrimSpace(name), teacherID, time.Now().UTC())
	if err != nil {
		return "", err
	}
	return id, nil
}
