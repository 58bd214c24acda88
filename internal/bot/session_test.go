package bot

import (
	"sync"
	"testing"
	"time"
)

func TestAcquireCreatesMainMenuSession(t *testing.T) {
	s := NewSessions(time.Hour, nil)

	sess, release := s.Acquire(10)
	if sess.ChatID != 10 || sess.Screen != ScreenMainMenu || sess.Pending != PendingNone {
		t.Errorf("new session = %+v", sess)
	}
	sess.Screen = ScreenPeriodMenu
	release()

	sess, release = s.Acquire(10)
	defer release()
	if sess.Screen != ScreenPeriodMenu {
		t.Errorf("Screen = %v, want state to persist", sess.Screen)
	}
}

func TestIdleSessionsAreDropped(t *testing.T) {
	now := time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)
	s := NewSessions(time.Hour, nil)
	s.now = func() time.Time { return now }

	_, release := s.Acquire(1)
	release()
	_, release = s.Acquire(2)
	release()

	now = now.Add(30 * time.Minute)
	_, release = s.Acquire(2)
	release()

	now = now.Add(45 * time.Minute)
	_, release = s.Acquire(3)
	release()

	if got := s.Len(); got != 2 {
		t.Errorf("Len = %d, want 2 (chat 1 idle)", got)
	}
	sess, release := s.Acquire(1)
	defer release()
	if sess.Screen != ScreenMainMenu {
		t.Errorf("recreated session Screen = %v", sess.Screen)
	}
}

func TestAcquireSerializesOneChat(t *testing.T) {
	s := NewSessions(time.Hour, nil)

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			sess, release := s.Acquire(7)
			defer release()
			n := len(sess.ResultID)
			sess.ResultID += "x"
			if len(sess.ResultID) != n+1 {
				t.Error("concurrent mutation")
			}
		}()
	}
	wg.Wait()

	sess, release := s.Acquire(7)
	defer release()
	if len(sess.ResultID) != 50 {
		t.Errorf("len(ResultID) = %d, want 50", len(sess.ResultID))
	}
}
