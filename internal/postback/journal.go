package postback

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
)

// Record is one accepted postback.
type Record struct {
	ID         string
	ReceivedAt time.Time
	Payload    map[string]any
	Delivered  bool
}

// Journal keeps accepted postbacks.
type Journal interface {
	Save(ctx context.Context, rec *Record) error
}

// PostgresJournal implements Journal using PostgreSQL.
type PostgresJournal struct {
	pool *pgxpool.Pool
}

// NewPostgresJournal creates a PostgreSQL-backed journal.
func NewPostgresJournal(pool *pgxpool.Pool) *PostgresJournal {
	return &PostgresJournal{pool: pool}
}

// Migrate creates the journal table if it does not exist.
func (j *PostgresJournal) Migrate(ctx context.Context) error {
	_, err := j.pool.Exec(ctx, `
		CREATE TABLE IF NOT EXISTS postback_journal (
			id          UUID PRIMARY KEY,
			received_at TIMESTAMPTZ NOT NULL,
			payload     JSONB NOT NULL,
			delivered   BOOLEAN NOT NULL
		)
	`)
	if err != nil {
		return fmt.Errorf("failed to create postback_journal: %w", err)
	}
	return nil
}

// Save stores rec.
func (j *PostgresJournal) Save(ctx context.Context, rec *Record) error {
	payload, err := json.Marshal(rec.Payload)
	if err != nil {
		return fmt.Errorf("failed to encode postback payload: %w", err)
	}

	_, err = j.pool.Exec(ctx, `
		INSERT INTO postback_journal (id, received_at, payload, delivered)
		VALUES ($1, $2, $3, $4)
		ON CONFLICT (id) DO NOTHING
	`, rec.ID, rec.ReceivedAt, payload, rec.Delivered)
	if err != nil {
		return fmt.Errorf("failed to save postback: %w", err)
	}
	return nil
}

// MemoryJournal keeps the most recent records in memory.
type MemoryJournal struct {
	mu      sync.RWMutex
	records []Record
	limit   int
}

// NewMemoryJournal creates a journal holding at most limit records
// (1000 when limit is not positive).
func NewMemoryJournal(limit int) *MemoryJournal {
	if limit <= 0 {
		limit = 1000
	}
	return &MemoryJournal{limit: limit}
}

// Save stores rec, dropping the oldest record when full.
func (j *MemoryJournal) Save(ctx context.Context, rec *Record) error {
	j.mu.Lock()
	defer j.mu.Unlock()
	j.records = append(j.records, *rec)
	if len(j.records) > j.limit {
		j.records = j.records[len(j.records)-j.limit:]
	}
	return nil
}

// Records returns a copy of the stored records, oldest first.
func (j *MemoryJournal) Records() []Record {
	j.mu.RLock()
	defer j.mu.RUnlock()
	out := make([]Record, len(j.records))
	copy(out, j.records)
	return out
}
