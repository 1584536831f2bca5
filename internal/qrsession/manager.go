package qrsession

import (
	"context"
	"errors"
	"log"
	"time"

	"github.com/google/uuid"

	"classtrack/internal/attendance"
	"classtrack/internal/metrics"
)

// DefaultTTL is how long a generated token stays valid.
const DefaultTTL = 10 * time.Minute

var (
	// ErrTokenNotFound means the token was never issued, was swept, or the
	// process restarted since it was generated.
	ErrTokenNotFound = errors.New("qr token not found")
	// ErrTokenExpired means the token's window has closed.
	ErrTokenExpired = errors.New("qr token expired")
)

// CheckInSink records a consumed session as an attendance entry.
// Implemented by attendance.Service.
type CheckInSink interface {
	QRCheckIn(ctx context.Context, req attendance.CheckInRequest) (attendance.CheckInResult, error)
}

// Manager mints and consumes QR check-in tokens. Tokens move Active →
// Consumed or Expired; consumed tokens stay in the store until expiry so
// duplicate client retries get a clean "already checked in" instead of a
// NotFound.
type Manager struct {
	store Store
	sink  CheckInSink
	ttl   time.Duration
	now   func() time.Time
}

// NewManager wires a manager. ttl <= 0 falls back to DefaultTTL.
func NewManager(store Store, sink CheckInSink, ttl time.Duration) *Manager {
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	return &Manager{store: store, sink: sink, ttl: ttl, now: time.Now}
}

// Generate mints a token binding a teacher, subject, and class window.
func (m *Manager) Generate(ctx context.Context, teacherID, subjectID, subjectName string, date time.Time, timeSlot string) (Session, error) {
	sess := Session{
		Token:       uuid.NewString(),
		TeacherID:   teacherID,
		SubjectID:   subjectID,
		SubjectName: subjectName,
		Date:        attendance.Day(date),
		TimeSlot:    timeSlot,
		ExpiresAt:   m.now().Add(m.ttl),
	}
	if err := m.store.Put(ctx, sess); err != nil {
		return Session{}, err
	}
	return sess, nil
}

// CheckIn consumes a token for one student. Unknown tokens fail with
// ErrTokenNotFound; expired tokens are deleted and fail with
// ErrTokenExpired, leaving quota untouched.
func (m *Manager) CheckIn(ctx context.Context, token, studentID string) (attendance.CheckInResult, error) {
	sess, err := m.store.Get(ctx, token)
	if err != nil {
		return attendance.CheckInResult{}, err
	}
	if sess == nil {
		metrics.CheckIns.WithLabelValues("not_found").Inc()
		return attendance.CheckInResult{}, ErrTokenNotFound
	}
	if m.now().After(sess.ExpiresAt) {
		_ = m.store.Delete(ctx, token)
		metrics.CheckIns.WithLabelValues("expired").Inc()
		return attendance.CheckInResult{}, ErrTokenExpired
	}

	return m.sink.QRCheckIn(ctx, attendance.CheckInRequest{
		TeacherID:   sess.TeacherID,
		SubjectID:   sess.SubjectID,
		SubjectName: sess.SubjectName,
		Date:        sess.Date,
		StudentID:   studentID,
	})
}

// StartSweeper reclaims expired sessions every interval until ctx is done.
func (m *Manager) StartSweeper(ctx context.Context, interval time.Duration) {
	if interval <= 0 {
		interval = time.Minute
	}
	go func() {
		ticker := time.NewTicker(interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				if n := m.store.SweepExpired(ctx, m.now()); n > 0 {
					log.Printf("qrsession: swept %d expired sessions", n)
				}
			}
		}
	}()
}
