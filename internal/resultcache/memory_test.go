package resultcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/report"
	"github.com/shopspring/decimal"
)

type fakeClock struct{ t time.Time }

func (c *fakeClock) Now() time.Time { return c.t }
func (c *fakeClock) Advance(d time.Duration) { c.t = c.t.Add(d) }

func sampleEntry(t *testing.T) Entry {
	t.Helper()
	req, err := (&period.Resolver{}).Custom("2025-02-01", "2025-02-10")
	if err != nil {
		t.Fatal(err)
	}
	return Entry{
		Request: req,
		Stats: report.Stats{
			Clicks:          100,
			UniqueClicks:    80,
			ConfirmedCount:  4,
			ConfirmedPayout: decimal.RequireFromString("50.25"),
			Registrations:   10,
			FirstDeposits:   4,
		},
		Text: "report",
	}
}

func TestMemoryPutGet(t *testing.T) {
	m := NewMemory(Options{})
	ctx := context.Background()
	want := sampleEntry(t)

	id, err := m.Put(ctx, 1, want)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !ValidID(id) {
		t.Errorf("id %q is not %d lowercase hex chars", id, IDLength)
	}

	got, err := m.Get(ctx, 1, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if got.ID != id || !got.Stats.Equal(want.Stats) || got.Request.Label != want.Request.Label || got.Text != "report" {
		t.Errorf("Get = %+v", got)
	}
}

func TestMemorySessionsAreIsolated(t *testing.T) {
	m := NewMemory(Options{})
	ctx := context.Background()

	id, err := m.Put(ctx, 1, sampleEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := m.Get(ctx, 2, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get from other session: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryExpires(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(Options{TTL: time.Hour, Now: clock.Now})
	ctx := context.Background()

	id, err := m.Put(ctx, 1, sampleEntry(t))
	if err != nil {
		t.Fatal(err)
	}

	clock.Advance(59 * time.Minute)
	if _, err := m.Get(ctx, 1, id); err != nil {
		t.Fatalf("Get before TTL: %v", err)
	}

	clock.Advance(time.Minute)
	if _, err := m.Get(ctx, 1, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after TTL: err = %v, want ErrNotFound", err)
	}
}

func TestMemoryDropsAbandonedSessions(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(Options{TTL: time.Hour, Now: clock.Now})
	ctx := context.Background()

	for chat := int64(1); chat <= 50; chat++ {
		if _, err := m.Put(ctx, chat, sampleEntry(t)); err != nil {
			t.Fatal(err)
		}
	}
	if n := m.Len(); n != 50 {
		t.Fatalf("Len = %d, want 50", n)
	}

	// None of the 50 chats comes back; another chat's traffic reclaims them.
	clock.Advance(time.Hour + time.Minute)
	if _, err := m.Put(ctx, 99, sampleEntry(t)); err != nil {
		t.Fatal(err)
	}
	if n := m.Len(); n != 1 {
		t.Errorf("Len after sweep = %d, want 1", n)
	}
}

func TestMemoryGetDropsEmptySession(t *testing.T) {
	clock := &fakeClock{t: time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC)}
	m := NewMemory(Options{TTL: time.Hour, Now: clock.Now})
	ctx := context.Background()

	id, err := m.Put(ctx, 1, sampleEntry(t))
	if err != nil {
		t.Fatal(err)
	}
	clock.Advance(time.Hour)
	if _, err := m.Get(ctx, 1, id); !errors.Is(err, ErrNotFound) {
		t.Fatalf("err = %v, want ErrNotFound", err)
	}
	if n := m.Len(); n != 0 {
		t.Errorf("Len = %d, want 0", n)
	}
}

func TestMemoryEvictsOldestBeyondCapacity(t *testing.T) {
	m := NewMemory(Options{Capacity: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := m.Put(ctx, 1, sampleEntry(t))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		_, err := m.Get(ctx, 1, id)
		evicted := i < 2
		if evicted && !errors.Is(err, ErrNotFound) {
			t.Errorf("entry %d: err = %v, want ErrNotFound", i, err)
		}
		if !evicted && err != nil {
			t.Errorf("entry %d: unexpected err %v", i, err)
		}
	}
}

func TestValidID(t *testing.T) {
	tests := []struct {
		id   string
		want bool
	}{
		{"0a1b2c3d", true},
		{"deadbeef", true},
		{"DEADBEEF", false},
		{"0a1b2c3", false},
		{"0a1b2c3d4", false},
		{"0a1b2c3g", false},
		{"", false},
	}
	for _, tt := range tests {
		if got := ValidID(tt.id); got != tt.want {
			t.Errorf("ValidID(%q) = %v, want %v", tt.id, got, tt.want)
		}
	}
	for i := 0; i < 100; i++ {
		if id := newID(); !ValidID(id) {
			t.Fatalf("newID() = %q", id)
		}
	}
}
