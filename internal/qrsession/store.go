package qrsession

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"
)

// Session is one short-lived QR check-in window. Never persisted to the
// primary database; losing outstanding sessions on restart is accepted
// because teachers can regenerate them.
type Session struct {
	Token       string    `json:"token"`
	TeacherID   string    `json:"teacher_id"`
	SubjectID   string    `json:"subject_id"`
	SubjectName string    `json:"subject_name"`
	Date        time.Time `json:"date"`
	TimeSlot    string    `json:"time_slot"`
	ExpiresAt   time.Time `json:"expires_at"`
}

// Store holds live sessions. The default is process-local; the Redis
// implementation exists so multiple API instances can share sessions.
type Store interface {
	Put(ctx context.Context, s Session) error
	Get(ctx context.Context, token string) (*Session, error)
	Delete(ctx context.Context, token string) error
	SweepExpired(ctx context.Context, now time.Time) int
}

// MemoryStore is a mutex-guarded in-process map.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]Session
}

// NewMemoryStore creates an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{sessions: make(map[string]Session)}
}

// Put stores a session.
func (s *MemoryStore) Put(_ context.Context, sess Session) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.sessions[sess.Token] = sess
	return nil
}

// Get returns a session or nil when unknown.
func (s *MemoryStore) Get(_ context.Context, token string) (*Session, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, ok := s.sessions[token]
	if !ok {
		return nil, nil
	}
	return &sess, nil
}

// Delete removes a session; unknown tokens are a no-op.
func (s *MemoryStore) Delete(_ context.Context, token string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.sessions, token)
	return nil
}

// SweepExpired drops every session past its deadline and returns the count.
func (s *MemoryStore) SweepExpired(_ context.Context, now time.Time) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for token, sess := range s.sessions {
		if now.After(sess.ExpiresAt) {
			delete(s.sessions, token)
			n++
		}
	}
	return n
}

// RedisStore keeps sessions in Redis under a key prefix, with the key TTL
// matching the session deadline.
type RedisStore struct {
	client *redis.Client
	prefix string
}

// NewRedisStore creates a store; prefix defaults to "qrsession:".
func NewRedisStore(client *redis.Client, prefix string) *RedisStore {
	if prefix == "" {
		prefix = "qrsession:"
	}
	return &RedisStore{client: client, prefix: prefix}
}

// Put stores a session with TTL until its deadline.
func (s *RedisStore) Put(ctx context.Context, sess Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return err
	}
	ttl := time.Until(sess.ExpiresAt)
	if ttl <= 0 {
		ttl = time.Second
	}
	return s.client.Set(ctx, s.prefix+sess.Token, data, ttl).Err()
}

// Get returns a session or nil when unknown or already expired away.
func (s *RedisStore) Get(ctx context.Context, token string) (*Session, error) {
	data, err := s.client.Get(ctx, s.prefix+token).Bytes()
	if err != nil {
		if err == redis.Nil {
			return nil, nil
		}
		return nil, err
	}
	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, err
	}
	return &sess, nil
}

// Delete removes a session.
func (s *RedisStore) Delete(ctx context.Context, token string) error {
	return s.client.Del(ctx, s.prefix+token).Err()
}

// SweepExpired is a no-op: Redis reclaims keys through their TTL.
func (s *RedisStore) SweepExpired(context.Context, time.Time) int { return 0 }
