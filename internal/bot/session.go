package bot

import (
	"sync"
	"time"

	"github.com/radiusdt/ppbot/internal/metrics"
)

// DefaultIdleTTL is how long an untouched session is kept.
const DefaultIdleTTL = 24 * time.Hour

// Screen is the navigation state of a chat.
type Screen int

const (
	ScreenMainMenu Screen = iota
	ScreenPeriodMenu
	ScreenAwaitingCustomRange
	ScreenResults
	ScreenResultsWithMetrics
)

// Screens lists every state, for exhaustive tests.
var Screens = []Screen{
	ScreenMainMenu,
	ScreenPeriodMenu,
	ScreenAwaitingCustomRange,
	ScreenResults,
	ScreenResultsWithMetrics,
}

func (s Screen) String() string {
	switch s {
	case ScreenMainMenu:
		return "main_menu"
	case ScreenPeriodMenu:
		return "period_menu"
	case ScreenAwaitingCustomRange:
		return "awaiting_custom_range"
	case ScreenResults:
		return "results"
	case ScreenResultsWithMetrics:
		return "results_with_metrics"
	}
	return "unknown"
}

// Pending is the kind of free text the session waits for.
type Pending int

const (
	PendingNone Pending = iota
	PendingCustomPeriod
)

// MessageRef identifies a rendered chat message. The zero value means no
// message.
type MessageRef struct {
	ChatID    int64
	MessageID int
}

// IsZero reports whether r refers to no message.
func (r MessageRef) IsZero() bool { return r.MessageID == 0 }

// Session is the navigation state of one chat.
type Session struct {
	ChatID   int64
	Screen   Screen
	Pending  Pending
	Message  MessageRef
	ResultID string
}

type sessionSlot struct {
	mu       sync.Mutex
	session  Session
	lastSeen time.Time
}

// Sessions owns all chat sessions. Each session is used by one event at a
// time; different chats proceed in parallel.
type Sessions struct {
	mu        sync.Mutex
	slots     map[int64]*sessionSlot
	idleTTL   time.Duration
	lastSweep time.Time
	now       func() time.Time
	metrics   *metrics.Metrics
}

// NewSessions creates an empty store. Sessions idle for longer than
// idleTTL are dropped lazily.
func NewSessions(idleTTL time.Duration, m *metrics.Metrics) *Sessions {
	if idleTTL <= 0 {
		idleTTL = DefaultIdleTTL
	}
	return &Sessions{
		slots:   make(map[int64]*sessionSlot),
		idleTTL: idleTTL,
		now:     time.Now,
		metrics: m,
	}
}

// Acquire returns the session of chatID, creating it in MAIN_MENU if
// needed, and locks it until release is called.
func (s *Sessions) Acquire(chatID int64) (sess *Session, release func()) {
	s.mu.Lock()
	now := s.now()
	s.sweep(now)

	slot, ok := s.slots[chatID]
	if !ok {
		slot = &sessionSlot{session: Session{ChatID: chatID, Screen: ScreenMainMenu}}
		s.slots[chatID] = slot
		s.metrics.SetActiveSessions(len(s.slots))
	}
	slot.lastSeen = now
	s.mu.Unlock()

	slot.mu.Lock()
	return &slot.session, slot.mu.Unlock
}

// Len returns the number of live sessions.
func (s *Sessions) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.slots)
}

// sweep drops idle sessions that nobody holds. Callers hold s.mu.
func (s *Sessions) sweep(now time.Time) {
	if now.Sub(s.lastSweep) < time.Minute {
		return
	}
	s.lastSweep = now

	for id, slot := range s.slots {
		if now.Sub(slot.lastSeen) < s.idleTTL {
			continue
		}
		if !slot.mu.TryLock() {
			continue
		}
		delete(s.slots, id)
		slot.mu.Unlock()
	}
	s.metrics.SetActiveSessions(len(s.slots))
}
