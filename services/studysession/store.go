package studysession

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"time"

	"github.com/pastpapers-ai/explainer-api/utils/cache"
)

const keyPrefix = "study_session:"

// RedisStore keeps sessions as JSON in Redis. The key TTL ends the session
// and is refreshed on every update. Updates run as WATCH/MULTI transactions.
type RedisStore struct {
	cache *cache.RedisCache
	ttl   time.Duration
}

// NewRedisStore creates a Redis backed session store
func NewRedisStore(c *cache.RedisCache, ttl time.Duration) *RedisStore {
	return &RedisStore{cache: c, ttl: ttl}
}

func (r *RedisStore) Create(ctx context.Context, s *Session) error {
	return r.cache.SetJSON(ctx, keyPrefix+s.ID, s, r.ttl)
}

func (r *RedisStore) Get(ctx context.Context, id string) (*Session, error) {
	var s Session
	if err := r.cache.GetJSON(ctx, keyPrefix+id, &s); err != nil {
		if errors.Is(err, cache.ErrNotFound) {
			return nil, ErrSessionNotFound
		}
		return nil, err
	}
	return &s, nil
}

func (r *RedisStore) Update(ctx context.Context, id string, fn func(*Session) error) (*Session, error) {
	var updated *Session
	err := r.cache.UpdateJSON(ctx, keyPrefix+id, r.ttl, func(current []byte) (interface{}, error) {
		var s Session
		if err := json.Unmarshal(current, &s); err != nil {
			return nil, err
		}
		if err := fn(&s); err != nil {
			return nil, err
		}
		updated = &s
		return &s, nil
	})
	if errors.Is(err, cache.ErrNotFound) {
		return nil, ErrSessionNotFound
	}
	if err != nil {
		return nil, err
	}
	return updated, nil
}

func (r *RedisStore) Delete(ctx context.Context, id string) error {
	return r.cache.Delete(ctx, keyPrefix+id)
}

type memoryEntry struct {
	session   Session
	expiresAt time.Time
}

// MemoryStore keeps sessions in process memory. Used in tests and when
// Redis is not configured.
type MemoryStore struct {
	mu       sync.Mutex
	sessions map[string]memoryEntry
	ttl      time.Duration
	now      func() time.Time
}

// NewMemoryStore creates an in-memory store; a zero ttl never expires
func NewMemoryStore(ttl time.Duration) *MemoryStore {
	return &MemoryStore{
		sessions: make(map[string]memoryEntry),
		ttl:      ttl,
		now:      time.Now,
	}
}

func (m *MemoryStore) Create(_ context.Context, s *Session) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.put(s)
	return nil
}

func (m *MemoryStore) Get(_ context.Context, id string) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	return m.load(id)
}

// Update holds the lock across the read, fn and the write
func (m *MemoryStore) Update(_ context.Context, id string, fn func(*Session) error) (*Session, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s, err := m.load(id)
	if err != nil {
		return nil, err
	}
	if err := fn(s); err != nil {
		return nil, err
	}
	m.put(s)

	out := *s
	return &out, nil
}

func (m *MemoryStore) Delete(_ context.Context, id string) error {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
	return nil
}

// load and put expect m.mu to be held
func (m *MemoryStore) load(id string) (*Session, error) {
	e, ok := m.sessions[id]
	if !ok {
		return nil, ErrSessionNotFound
	}
	if !e.expiresAt.IsZero() && m.now().After(e.expiresAt) {
		delete(m.sessions, id)
		return nil, ErrSessionNotFound
	}
	s := e.session
	return &s, nil
}

func (m *MemoryStore) put(s *Session) {
	e := memoryEntry{session: *s}
	if m.ttl > 0 {
		e.expiresAt = m.now().Add(m.ttl)
	}
	m.sessions[s.ID] = e
}
