package resultcache

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
)

func setupTestRedis(t *testing.T) (*redis.Client, *miniredis.Miniredis) {
	s, err := miniredis.Run()
	if err != nil {
		t.Fatalf("Failed to start miniredis: %v", err)
	}
	t.Cleanup(s.Close)

	client := redis.NewClient(&redis.Options{
		Addr: s.Addr(),
	})
	t.Cleanup(func() { client.Close() })

	return client, s
}

func TestRedisPutGet(t *testing.T) {
	client, s := setupTestRedis(t)
	store := NewRedis(client, "test", Options{})
	ctx := context.Background()
	want := sampleEntry(t)

	id, err := store.Put(ctx, 42, want)
	if err != nil {
		t.Fatalf("Put: %v", err)
	}
	if !ValidID(id) {
		t.Errorf("id = %q", id)
	}
	if !s.Exists("test:result:42:" + id) {
		t.Errorf("entry key missing, keys: %v", s.Keys())
	}

	got, err := store.Get(ctx, 42, id)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	if !got.Stats.Equal(want.Stats) {
		t.Errorf("stats = %+v, want %+v", got.Stats, want.Stats)
	}
	if got.Request.DateFrom() != "2025-02-01" || got.Request.DateTo() != "2025-02-10" || got.Request.Label != want.Request.Label {
		t.Errorf("request = %+v", got.Request)
	}

	if _, err := store.Get(ctx, 43, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("other session: err = %v, want ErrNotFound", err)
	}
}

func TestRedisExpires(t *testing.T) {
	client, s := setupTestRedis(t)
	store := NewRedis(client, "test", Options{TTL: time.Hour})
	ctx := context.Background()

	id, err := store.Put(ctx, 1, sampleEntry(t))
	if err != nil {
		t.Fatal(err)
	}

	s.FastForward(59 * time.Minute)
	if _, err := store.Get(ctx, 1, id); err != nil {
		t.Fatalf("Get before TTL: %v", err)
	}

	s.FastForward(2 * time.Minute)
	if _, err := store.Get(ctx, 1, id); !errors.Is(err, ErrNotFound) {
		t.Errorf("Get after TTL: err = %v, want ErrNotFound", err)
	}
}

func TestRedisEvictsOldestBeyondCapacity(t *testing.T) {
	client, s := setupTestRedis(t)
	store := NewRedis(client, "test", Options{Capacity: 3})
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		id, err := store.Put(ctx, 7, sampleEntry(t))
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, id)
	}

	for i, id := range ids {
		_, err := store.Get(ctx, 7, id)
		if i < 2 && !errors.Is(err, ErrNotFound) {
			t.Errorf("entry %d: err = %v, want ErrNotFound", i, err)
		}
		if i >= 2 && err != nil {
			t.Errorf("entry %d: unexpected err %v", i, err)
		}
	}

	index, err := s.List("test:results:7")
	if err != nil {
		t.Fatal(err)
	}
	if len(index) != 3 || index[0] != ids[2] || index[2] != ids[4] {
		t.Errorf("index = %v, want %v", index, ids[2:])
	}
}

func TestRedisCorruptEntry(t *testing.T) {
	client, s := setupTestRedis(t)
	store := NewRedis(client, "test", Options{})

	if err := s.Set("test:result:1:0a1b2c3d", "{not json"); err != nil {
		t.Fatal(err)
	}
	_, err := store.Get(context.Background(), 1, "0a1b2c3d")
	if err == nil || errors.Is(err, ErrNotFound) {
		t.Errorf("err = %v, want decode error", err)
	}
}
