package qrsession

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"classtrack/internal/attendance"
)

type stubSink struct {
	calls []attendance.CheckInRequest
	res   attendance.CheckInResult
}

func (s *stubSink) QRCheckIn(_ context.Context, req attendance.CheckInRequest) (attendance.CheckInResult, error) {
	s.calls = append(s.calls, req)
	return s.res, nil
}

var classDay = time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)

func TestGenerateAndCheckIn(t *testing.T) {
	sink := &stubSink{res: attendance.CheckInResult{Status: attendance.StatusPresent, QuotaDeducted: true}}
	m := NewManager(NewMemoryStore(), sink, 0)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	ctx := context.Background()

	sess, err := m.Generate(ctx, "t1", "subj-math", "Math", base, "09:00-10:00")
	require.NoError(t, err)
	assert.NotEmpty(t, sess.Token)
	assert.Equal(t, classDay, sess.Date, "session date is day-granular")
	assert.Equal(t, base.Add(DefaultTTL), sess.ExpiresAt)

	res, err := m.CheckIn(ctx, sess.Token, "s1")
	require.NoError(t, err)
	assert.True(t, res.QuotaDeducted)
	require.Len(t, sink.calls, 1)
	assert.Equal(t, "t1", sink.calls[0].TeacherID)
	assert.Equal(t, "subj-math", sink.calls[0].SubjectID)
	assert.Equal(t, classDay, sink.calls[0].Date)
	assert.Equal(t, "s1", sink.calls[0].StudentID)
}

func TestCheckInTokenSurvivesConsumption(t *testing.T) {
	sink := &stubSink{res: attendance.CheckInResult{Status: attendance.StatusPresent}}
	m := NewManager(NewMemoryStore(), sink, time.Minute)
	ctx := context.Background()

	sess, err := m.Generate(ctx, "t1", "subj-math", "Math", classDay, "")
	require.NoError(t, err)

	// A retry of the same scan must reach the sink again, not 404; the
	// attendance layer is what reports "already checked in".
	_, err = m.CheckIn(ctx, sess.Token, "s1")
	require.NoError(t, err)
	_, err = m.CheckIn(ctx, sess.Token, "s1")
	require.NoError(t, err)
	assert.Len(t, sink.calls, 2)
}

func TestCheckInExpiredToken(t *testing.T) {
	sink := &stubSink{}
	store := NewMemoryStore()
	m := NewManager(store, sink, 10*time.Minute)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	ctx := context.Background()

	sess, err := m.Generate(ctx, "t1", "subj-math", "Math", classDay, "")
	require.NoError(t, err)

	// One millisecond past the deadline the token is dead and gone.
	m.now = func() time.Time { return base.Add(10*time.Minute + time.Millisecond) }
	_, err = m.CheckIn(ctx, sess.Token, "s1")
	assert.ErrorIs(t, err, ErrTokenExpired)
	assert.Empty(t, sink.calls, "expired scans never reach attendance")

	got, err := store.Get(ctx, sess.Token)
	require.NoError(t, err)
	assert.Nil(t, got, "expired token deleted on access")

	_, err = m.CheckIn(ctx, sess.Token, "s1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestCheckInAtDeadlineStillValid(t *testing.T) {
	sink := &stubSink{}
	m := NewManager(NewMemoryStore(), sink, 10*time.Minute)
	base := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)
	m.now = func() time.Time { return base }
	ctx := context.Background()

	sess, err := m.Generate(ctx, "t1", "subj-math", "Math", classDay, "")
	require.NoError(t, err)

	m.now = func() time.Time { return base.Add(10 * time.Minute) }
	_, err = m.CheckIn(ctx, sess.Token, "s1")
	assert.NoError(t, err)
}

func TestCheckInUnknownToken(t *testing.T) {
	m := NewManager(NewMemoryStore(), &stubSink{}, time.Minute)
	_, err := m.CheckIn(context.Background(), "never-issued", "s1")
	assert.ErrorIs(t, err, ErrTokenNotFound)
}

func TestMemoryStoreSweepExpired(t *testing.T) {
	store := NewMemoryStore()
	ctx := context.Background()
	now := time.Date(2026, 3, 2, 9, 0, 0, 0, time.UTC)

	require.NoError(t, store.Put(ctx, Session{Token: "live", ExpiresAt: now.Add(time.Minute)}))
	require.NoError(t, store.Put(ctx, Session{Token: "dead", ExpiresAt: now.Add(-time.Minute)}))

	assert.Equal(t, 1, store.SweepExpired(ctx, now))

	live, err := store.Get(ctx, "live")
	require.NoError(t, err)
	assert.NotNil(t, live)
	dead, err := store.Get(ctx, "dead")
	require.NoError(t, err)
	assert.Nil(t, dead)
}
