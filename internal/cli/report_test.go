package cli

import (
	"bytes"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/radiusdt/ppbot/internal/period"
)

func TestResolveRequest(t *testing.T) {
	r := &period.Resolver{Now: func() time.Time { return time.Date(2025, 2, 10, 9, 0, 0, 0, time.UTC) }}

	tests := []struct {
		name     string
		period   string
		from, to string
		wantFrom string
		wantTo   string
		wantErr  bool
	}{
		{name: "named", period: "last_7_days", wantFrom: "2025-02-04", wantTo: "2025-02-10"},
		{name: "custom", from: "2025-02-01", to: "2025-02-03", wantFrom: "2025-02-01", wantTo: "2025-02-03"},
		{name: "unknown period", period: "yesterday", wantErr: true},
		{name: "both forms", period: "today", from: "2025-02-01", wantErr: true},
		{name: "half range", from: "2025-02-01", wantErr: true},
		{name: "nothing", wantErr: true},
		{name: "reversed range", from: "2025-02-05", to: "2025-02-01", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req, err := resolveRequest(r, tt.period, tt.from, tt.to)
			if tt.wantErr {
				if err == nil {
					t.Fatalf("expected error, got %+v", req)
				}
				return
			}
			if err != nil {
				t.Fatalf("resolveRequest: %v", err)
			}
			if req.DateFrom() != tt.wantFrom || req.DateTo() != tt.wantTo {
				t.Errorf("range = %s..%s, want %s..%s", req.DateFrom(), req.DateTo(), tt.wantFrom, tt.wantTo)
			}
		})
	}
}

func TestReportCommand(t *testing.T) {
	upstream := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Header.Get("API-KEY") != "secret" {
			w.WriteHeader(http.StatusUnauthorized)
			return
		}
		w.Header().Set("Content-Type", "application/json")
		switch {
		case strings.HasSuffix(r.URL.Path, "/common"):
			w.Write([]byte(`{"data":[{"click_count":100,"click_unique_count":80,"conversions":{"confirmed":{"count":4,"payout":50}}}]}`))
		case r.URL.Query().Get("page") == "1":
			w.Write([]byte(`{"data":[{"goal":{"key":"registration"}},{"goal":{"key":"first_deposit"}}]}`))
		default:
			w.Write([]byte(`{"data":[]}`))
		}
	}))
	defer upstream.Close()

	t.Setenv("PPBOT_API_URL", upstream.URL)
	t.Setenv("PPBOT_API_KEY", "secret")
	t.Setenv("PPBOT_LOG_LEVEL", "error")
	t.Setenv("PPBOT_CONFIG", "")

	t.Cleanup(func() {
		reportPeriod, reportFrom, reportTo, reportMetrics = "", "", "", false
	})

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetArgs([]string{"report", "--period", "today", "--metrics", "--config", t.TempDir() + "/missing.toml"})
	if err := rootCmd.Execute(); err != nil {
		t.Fatalf("report: %v", err)
	}

	got := out.String()
	for _, want := range []string{
		"Clicks: 100 (unique: 80)",
		"Registrations: 1",
		"Confirmed payout: 50.00 USD",
		"EPC: 0.500",
	} {
		if !strings.Contains(got, want) {
			t.Errorf("output missing %q:\n%s", want, got)
		}
	}
}
