package resultcache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/redis/go-redis/v9"
)

// putScript stores one entry and trims the session index to capacity in a
// single round trip.
//
// KEYS[1] entry key, KEYS[2] session index.
// ARGV[1] payload, ARGV[2] ttl in ms, ARGV[3] id, ARGV[4] capacity,
// ARGV[5] entry key prefix.
// Returns -1 when the id is taken, otherwise the number of evicted entries.
var putScript = redis.NewScript(`
if not redis.call('SET', KEYS[1], ARGV[1], 'PX', ARGV[2], 'NX') then
	return -1
end
redis.call('RPUSH', KEYS[2], ARGV[3])
redis.call('PEXPIRE', KEYS[2], ARGV[2])
local n = redis.call('LLEN', KEYS[2])
local cap = tonumber(ARGV[4])
if n <= cap then
	return 0
end
local old = redis.call('LRANGE', KEYS[2], 0, n - cap - 1)
for _, id in ipairs(old) do
	redis.call('DEL', ARGV[5] .. id)
end
redis.call('LTRIM', KEYS[2], n - cap, -1)
return #old
`)

// Redis is a Store shared between processes.
type Redis struct {
	client *redis.Client
	prefix string
	opts   Options
}

// NewRedis creates a store over client. Keys live under prefix.
func NewRedis(client *redis.Client, prefix string, opts Options) *Redis {
	if prefix == "" {
		prefix = "ppbot"
	}
	return &Redis{client: client, prefix: prefix, opts: opts.withDefaults()}
}

func (r *Redis) entryPrefix(session int64) string {
	return fmt.Sprintf("%s:result:%d:", r.prefix, session)
}

func (r *Redis) indexKey(session int64) string {
	return fmt.Sprintf("%s:results:%d", r.prefix, session)
}

// Put stores e under a fresh ID. Eviction of the oldest entries happens
// atomically with the insert.
func (r *Redis) Put(ctx context.Context, session int64, e Entry) (string, error) {
	e.CreatedAt = r.opts.Now()
	prefix := r.entryPrefix(session)

	for i := 0; i < 8; i++ {
		e.ID = newID()
		payload, err := json.Marshal(e)
		if err != nil {
			return "", fmt.Errorf("encode result: %w", err)
		}

		res, err := putScript.Run(ctx, r.client,
			[]string{prefix + e.ID, r.indexKey(session)},
			payload, r.opts.TTL.Milliseconds(), e.ID, r.opts.Capacity, prefix,
		).Int64()
		if err != nil {
			return "", fmt.Errorf("store result: %w", err)
		}
		if res >= 0 {
			r.opts.Metrics.RecordCacheStore()
			return e.ID, nil
		}
	}
	return "", fmt.Errorf("allocate result id for session %d", session)
}

// Get returns the entry or ErrNotFound.
func (r *Redis) Get(ctx context.Context, session int64, id string) (Entry, error) {
	data, err := r.client.Get(ctx, r.entryPrefix(session)+id).Bytes()
	if errors.Is(err, redis.Nil) {
		r.opts.Metrics.RecordCacheLookup(false)
		return Entry{}, ErrNotFound
	}
	if err != nil {
		return Entry{}, fmt.Errorf("load result: %w", err)
	}

	var e Entry
	if err := json.Unmarshal(data, &e); err != nil {
		return Entry{}, fmt.Errorf("decode result %s: %w", id, err)
	}
	r.opts.Metrics.RecordCacheLookup(true)
	return e, nil
}
