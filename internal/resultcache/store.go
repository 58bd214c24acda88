// Package resultcache keeps computed reports addressable by short IDs so
// follow-up actions (metrics toggle, refresh) can find them again.
package resultcache

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/report"
)

const (
	DefaultTTL      = time.Hour
	DefaultCapacity = 20

	// IDLength is the number of lowercase hex characters in an entry ID.
	IDLength = 8
)

// ErrNotFound is returned for unknown, expired and evicted entries.
var ErrNotFound = errors.New("result not found")

// Entry is one computed report.
type Entry struct {
	ID        string         `json:"id"`
	Request   period.Request `json:"request"`
	Stats     report.Stats   `json:"stats"`
	Text      string         `json:"text"`
	CreatedAt time.Time      `json:"created_at"`
}

// Store keeps entries per session. Put assigns the ID; IDs are unique
// within a session.
type Store interface {
	Put(ctx context.Context, session int64, e Entry) (string, error)
	Get(ctx context.Context, session int64, id string) (Entry, error)
}

// ValidID reports whether id has the shape produced by newID.
func ValidID(id string) bool {
	if len(id) != IDLength {
		return false
	}
	for _, c := range id {
		if !('0' <= c && c <= '9' || 'a' <= c && c <= 'f') {
			return false
		}
	}
	return true
}

func newID() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:IDLength]
}
