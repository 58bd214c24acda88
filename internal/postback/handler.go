// Package postback relays conversion postbacks from the affiliate network
// to the operator chat.
package postback

import (
	"context"
	"crypto/subtle"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/google/uuid"
	"github.com/radiusdt/ppbot/internal/metrics"
	"go.uber.org/zap"
)

const (
	// APIKeyField is the body field carrying the shared secret. It is never
	// forwarded or stored.
	APIKeyField = "api_key"
	// APIKeyHeader is accepted when the body has no api_key.
	APIKeyHeader = "X-API-Key"

	maxBodyBytes = 1 << 20
)

// Notifier delivers formatted Markdown text to the operator chat.
type Notifier interface {
	Notify(ctx context.Context, text string) error
}

// PostbackHandler handles POST /postback.
type PostbackHandler struct {
	apiKey   string
	notifier Notifier
	journal  Journal
	logger   *zap.Logger
	metrics  *metrics.Metrics
	now      func() time.Time
}

// NewPostbackHandler creates a relay handler. A nil journal keeps records
// in memory.
func NewPostbackHandler(apiKey string, notifier Notifier, journal Journal, logger *zap.Logger, m *metrics.Metrics) *PostbackHandler {
	if journal == nil {
		journal = NewMemoryJournal(0)
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PostbackHandler{
		apiKey:   apiKey,
		notifier: notifier,
		journal:  journal,
		logger:   logger,
		metrics:  m,
		now:      time.Now,
	}
}

// PostbackResult is the JSON response body.
type PostbackResult struct {
	Status string `json:"status,omitempty"`
	ID     string `json:"id,omitempty"`
	Error  string `json:"error,omitempty"`
}

func (h *PostbackHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		h.respond(w, http.StatusMethodNotAllowed, PostbackResult{Error: "method not allowed"})
		return
	}

	payload, err := decodePayload(r.Body)
	if err != nil {
		h.metrics.RecordPostback("bad_request")
		h.logger.Warn("rejected postback", zap.String("reason", "bad_request"), zap.Error(err))
		h.respond(w, http.StatusBadRequest, PostbackResult{Error: "request body must be a non-empty JSON object"})
		return
	}

	if !h.authorized(payload, r.Header.Get(APIKeyHeader)) {
		h.metrics.RecordPostback("forbidden")
		h.logger.Warn("rejected postback",
			zap.String("reason", "forbidden"),
			zap.String("remote_addr", r.RemoteAddr),
		)
		h.respond(w, http.StatusForbidden, PostbackResult{Error: "invalid API key"})
		return
	}
	delete(payload, APIKeyField)

	rec := &Record{
		ID:         uuid.New().String(),
		ReceivedAt: h.now().UTC(),
		Payload:    payload,
	}

	sendErr := h.notifier.Notify(r.Context(), FormatMessage(payload))
	rec.Delivered = sendErr == nil

	if err := h.journal.Save(r.Context(), rec); err != nil {
		h.logger.Error("failed to journal postback", zap.String("postback_id", rec.ID), zap.Error(err))
	}

	if sendErr != nil {
		h.metrics.RecordPostback("delivery_failed")
		h.logger.Error("failed to deliver postback",
			zap.String("postback_id", rec.ID),
			zap.Error(sendErr),
		)
		h.respond(w, http.StatusInternalServerError, PostbackResult{Error: "failed to deliver notification", ID: rec.ID})
		return
	}

	h.metrics.RecordPostback("delivered")
	h.logger.Info("postback relayed",
		zap.String("postback_id", rec.ID),
		zap.Int("fields", len(payload)),
	)
	h.respond(w, http.StatusOK, PostbackResult{Status: "success", ID: rec.ID})
}

func (h *PostbackHandler) authorized(payload map[string]any, header string) bool {
	if h.apiKey == "" {
		return false
	}

	got := header
	if v, ok := payload[APIKeyField]; ok {
		s, isString := v.(string)
		if !isString {
			return false
		}
		got = s
	}
	return subtle.ConstantTimeCompare([]byte(got), []byte(h.apiKey)) == 1
}

func decodePayload(body io.Reader) (map[string]any, error) {
	dec := json.NewDecoder(io.LimitReader(body, maxBodyBytes))
	dec.UseNumber()

	var payload map[string]any
	if err := dec.Decode(&payload); err != nil {
		return nil, err
	}
	if len(payload) == 0 {
		return nil, errors.New("empty payload")
	}
	return payload, nil
}

func (h *PostbackHandler) respond(w http.ResponseWriter, code int, res PostbackResult) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_ = json.NewEncoder(w).Encode(res)
}
