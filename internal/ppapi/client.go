// Package ppapi is a client for the affiliate network statistics API.
package ppapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/radiusdt/ppbot/internal/metrics"
	"github.com/shopspring/decimal"
)

const (
	defaultTimeout = 15 * time.Second
	maxBodySize    = 8 << 20 // 8 MB
	userAgent      = "github.com/radiusdt/ppbot/1.0"

	EndpointCommon      = "common"
	EndpointConversions = "conversions"
)

// Options configures a Client.
type Options struct {
	BaseURL   string
	APIKey    string
	KeyHeader string
	Currency  string
	Timeout   time.Duration
	// HTTPClient is optional; its own Timeout is left untouched.
	HTTPClient *http.Client
	Metrics    *metrics.Metrics
}

// Client queries the statistics API. Every request carries the API key
// header and its own timeout.
type Client struct {
	baseURL   string
	apiKey    string
	keyHeader string
	currency  string
	timeout   time.Duration
	http      *http.Client
	metrics   *metrics.Metrics
}

// NewClient creates a statistics API client.
func NewClient(opts Options) *Client {
	c := &Client{
		baseURL:   opts.BaseURL,
		apiKey:    opts.APIKey,
		keyHeader: opts.KeyHeader,
		currency:  opts.Currency,
		timeout:   opts.Timeout,
		http:      opts.HTTPClient,
		metrics:   opts.Metrics,
	}
	if c.keyHeader == "" {
		c.keyHeader = "API-KEY"
	}
	if c.timeout <= 0 {
		c.timeout = defaultTimeout
	}
	if c.http == nil {
		c.http = &http.Client{}
	}
	return c
}

// DayRow is one day of the common report. Absent fields decode as zero.
type DayRow struct {
	Date             string          `json:"date,omitempty"`
	ClickCount       int64           `json:"click_count"`
	ClickUniqueCount int64           `json:"click_unique_count"`
	Conversions      *RowConversions `json:"conversions"`
}

// RowConversions groups conversion totals by status.
type RowConversions struct {
	Confirmed *ConversionTotals `json:"confirmed"`
}

// ConversionTotals is a count and payout pair.
type ConversionTotals struct {
	Count  int64           `json:"count"`
	Payout decimal.Decimal `json:"payout"`
}

// Confirmed returns the confirmed totals of the row, or zero totals.
func (r DayRow) Confirmed() ConversionTotals {
	if r.Conversions == nil || r.Conversions.Confirmed == nil {
		return ConversionTotals{}
	}
	return *r.Conversions.Confirmed
}

// Conversion is one item of the conversions report.
type Conversion struct {
	ConversionID json.RawMessage `json:"conversion_id,omitempty"`
	Goal         Goal            `json:"goal"`
}

// Goal identifies what a conversion counts as.
type Goal struct {
	Key string `json:"key"`
}

// ConversionsQuery selects one page of conversions.
type ConversionsQuery struct {
	DateFrom string
	DateTo   string
	GoalKeys []string
	Page     int
	PerPage  int
}

type envelope[T any] struct {
	Data []T `json:"data"`
}

// Common returns the day-grouped click and conversion rows for a range.
func (c *Client) Common(ctx context.Context, dateFrom, dateTo string) ([]DayRow, error) {
	q := url.Values{}
	q.Set("group_by", "day")
	q.Set("date_from", dateFrom)
	q.Set("date_to", dateTo)
	if c.currency != "" {
		q.Set("currency", c.currency)
	}

	var env envelope[DayRow]
	if err := c.get(ctx, EndpointCommon, q, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// Conversions returns one page of conversions. An empty slice marks the end
// of the result set.
func (c *Client) Conversions(ctx context.Context, query ConversionsQuery) ([]Conversion, error) {
	q := url.Values{}
	q.Set("date_from", query.DateFrom)
	q.Set("date_to", query.DateTo)
	for _, key := range query.GoalKeys {
		q.Add("goal_keys[]", key)
	}
	q.Set("page", strconv.Itoa(query.Page))
	q.Set("per_page", strconv.Itoa(query.PerPage))

	var env envelope[Conversion]
	if err := c.get(ctx, EndpointConversions, q, &env); err != nil {
		return nil, err
	}
	return env.Data, nil
}

// get performs an authenticated GET and decodes the JSON body into out.
func (c *Client) get(ctx context.Context, endpoint string, q url.Values, out any) error {
	if c.apiKey == "" {
		return &UpstreamError{Reason: ReasonUnauthorized, Endpoint: endpoint, Err: errors.New("no API key configured")}
	}

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	reqURL := c.baseURL + "/" + endpoint + "?" + q.Encode()
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return &UpstreamError{Reason: ReasonRequestFailed, Endpoint: endpoint, Err: fmt.Errorf("creating request: %w", err)}
	}
	req.Header.Set(c.keyHeader, c.apiKey)
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", userAgent)

	start := time.Now()
	resp, err := c.http.Do(req)
	if err != nil {
		c.metrics.RecordUpstream(endpoint, "error", time.Since(start))
		return &UpstreamError{Reason: transportReason(err), Endpoint: endpoint, Err: err}
	}
	defer func() { _ = resp.Body.Close() }()

	c.metrics.RecordUpstream(endpoint, strconv.Itoa(resp.StatusCode), time.Since(start))

	switch {
	case resp.StatusCode == http.StatusUnauthorized, resp.StatusCode == http.StatusForbidden:
		return &UpstreamError{Reason: ReasonUnauthorized, Endpoint: endpoint, Status: resp.StatusCode}
	case resp.StatusCode < 200 || resp.StatusCode >= 300:
		return &UpstreamError{Reason: ReasonBadStatus, Endpoint: endpoint, Status: resp.StatusCode}
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBodySize))
	if err != nil {
		return &UpstreamError{Reason: transportReason(err), Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}
	if err := json.Unmarshal(body, out); err != nil {
		return &UpstreamError{Reason: ReasonMalformed, Endpoint: endpoint, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func transportReason(err error) Reason {
	if errors.Is(err, context.DeadlineExceeded) {
		return ReasonTimeout
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return ReasonTimeout
	}
	return ReasonRequestFailed
}
