package resultcache

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/radiusdt/ppbot/internal/metrics"
)

// Options configures a store.
type Options struct {
	TTL      time.Duration
	Capacity int
	Metrics  *metrics.Metrics
	// Now defaults to time.Now.
	Now func() time.Time
}

func (o Options) withDefaults() Options {
	if o.TTL <= 0 {
		o.TTL = DefaultTTL
	}
	if o.Capacity <= 0 {
		o.Capacity = DefaultCapacity
	}
	if o.Now == nil {
		o.Now = time.Now
	}
	return o
}

type sessionResults struct {
	order   []string
	entries map[string]Entry
}

// sweepInterval bounds how often Put and Get scan every session for
// expired entries.
const sweepInterval = time.Minute

// Memory is a thread-safe in-process Store.
type Memory struct {
	mu        sync.Mutex
	opts      Options
	sessions  map[int64]*sessionResults
	lastSweep time.Time
}

// NewMemory creates an empty in-memory store.
func NewMemory(opts Options) *Memory {
	return &Memory{
		opts:     opts.withDefaults(),
		sessions: make(map[int64]*sessionResults),
	}
}

// Put stores e under a fresh ID and evicts the oldest entries of the
// session beyond capacity.
func (m *Memory) Put(ctx context.Context, session int64, e Entry) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	m.sweep(now)
	s, ok := m.sessions[session]
	if !ok {
		s = &sessionResults{entries: make(map[string]Entry)}
		m.sessions[session] = s
	}
	m.expire(s, now)

	id := ""
	for i := 0; i < 8; i++ {
		candidate := newID()
		if _, taken := s.entries[candidate]; !taken {
			id = candidate
			break
		}
	}
	if id == "" {
		return "", fmt.Errorf("allocate result id for session %d", session)
	}

	e.ID = id
	e.CreatedAt = now
	s.entries[id] = e
	s.order = append(s.order, id)

	for len(s.order) > m.opts.Capacity {
		delete(s.entries, s.order[0])
		s.order = s.order[1:]
	}

	m.opts.Metrics.RecordCacheStore()
	return id, nil
}

// Get returns the entry or ErrNotFound.
func (m *Memory) Get(ctx context.Context, session int64, id string) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	now := m.opts.Now()
	m.sweep(now)
	s, ok := m.sessions[session]
	if !ok {
		m.opts.Metrics.RecordCacheLookup(false)
		return Entry{}, ErrNotFound
	}
	if m.expire(s, now) == 0 {
		delete(m.sessions, session)
	}

	e, ok := s.entries[id]
	m.opts.Metrics.RecordCacheLookup(ok)
	if !ok {
		return Entry{}, ErrNotFound
	}
	return e, nil
}

// Len returns the number of sessions that have a bucket.
func (m *Memory) Len() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return len(m.sessions)
}

// sweep expires every session and drops the empty ones, at most once per
// sweepInterval. Callers hold mu.
func (m *Memory) sweep(now time.Time) {
	if now.Sub(m.lastSweep) < sweepInterval {
		return
	}
	m.lastSweep = now
	for id, s := range m.sessions {
		if m.expire(s, now) == 0 {
			delete(m.sessions, id)
		}
	}
}

// expire drops entries older than the TTL and returns how many remain.
// Entries are ordered by insertion so the scan stops at the first live one.
func (m *Memory) expire(s *sessionResults, now time.Time) int {
	n := 0
	for _, id := range s.order {
		if now.Sub(s.entries[id].CreatedAt) < m.opts.TTL {
			break
		}
		delete(s.entries, id)
		n++
	}
	s.order = s.order[n:]
	return len(s.order)
}
