package report

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/ppapi"
	"github.com/shopspring/decimal"
)

// fakeClient serves fixed rows and pages. Pages past the end are empty
// unless endless is set.
type fakeClient struct {
	mu        sync.Mutex
	rows      []ppapi.DayRow
	pages     [][]ppapi.Conversion
	endless   bool
	commonErr error
	convErr   error
	requested []int
	keys      []string
}

func (f *fakeClient) Common(ctx context.Context, from, to string) ([]ppapi.DayRow, error) {
	if f.commonErr != nil {
		return nil, f.commonErr
	}
	return f.rows, nil
}

func (f *fakeClient) Conversions(ctx context.Context, q ppapi.ConversionsQuery) ([]ppapi.Conversion, error) {
	f.mu.Lock()
	f.requested = append(f.requested, q.Page)
	f.keys = q.GoalKeys
	f.mu.Unlock()

	if f.convErr != nil {
		return nil, f.convErr
	}
	if f.endless {
		return []ppapi.Conversion{goal("registration")}, nil
	}
	if q.Page-1 < len(f.pages) {
		return f.pages[q.Page-1], nil
	}
	return nil, nil
}

func goal(key string) ppapi.Conversion {
	return ppapi.Conversion{Goal: ppapi.Goal{Key: key}}
}

func row(clicks, unique, count int64, payout string) ppapi.DayRow {
	return ppapi.DayRow{
		ClickCount:       clicks,
		ClickUniqueCount: unique,
		Conversions: &ppapi.RowConversions{
			Confirmed: &ppapi.ConversionTotals{Count: count, Payout: decimal.RequireFromString(payout)},
		},
	}
}

func testRequest(t *testing.T) period.Request {
	t.Helper()
	r := &period.Resolver{Now: func() time.Time { return time.Date(2025, 2, 10, 12, 0, 0, 0, time.UTC) }}
	req, err := r.Resolve(period.Last7Days)
	if err != nil {
		t.Fatal(err)
	}
	return req
}

func TestAggregateSumsDayRows(t *testing.T) {
	client := &fakeClient{
		rows: []ppapi.DayRow{
			row(5, 3, 2, "10"),
			row(7, 4, 1, "5"),
		},
	}
	a := NewAggregator(client, AggregatorOptions{})

	stats, err := a.Aggregate(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Clicks != 12 || stats.UniqueClicks != 7 || stats.ConfirmedCount != 3 {
		t.Errorf("stats = %+v, want clicks=12 unique=7 confirmed=3", stats)
	}
	if !stats.ConfirmedPayout.Equal(decimal.NewFromInt(15)) {
		t.Errorf("payout = %s, want 15", stats.ConfirmedPayout)
	}
}

func TestAggregateMissingFieldsAreZero(t *testing.T) {
	client := &fakeClient{
		rows: []ppapi.DayRow{
			{ClickCount: 4},
			{Conversions: &ppapi.RowConversions{}},
			row(1, 1, 1, "2.5"),
		},
	}
	stats, err := NewAggregator(client, AggregatorOptions{}).Aggregate(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Clicks != 5 || stats.UniqueClicks != 1 || stats.ConfirmedCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if stats.ConfirmedPayout.String() != "2.5" {
		t.Errorf("payout = %s", stats.ConfirmedPayout)
	}
}

func TestAggregateClampsNegativeValues(t *testing.T) {
	client := &fakeClient{
		rows: []ppapi.DayRow{
			row(-5, -1, -2, "-3"),
			row(2, 1, 1, "4"),
		},
	}
	stats, err := NewAggregator(client, AggregatorOptions{}).Aggregate(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Clicks != 2 || stats.UniqueClicks != 1 || stats.ConfirmedCount != 1 {
		t.Errorf("stats = %+v", stats)
	}
	if !stats.ConfirmedPayout.Equal(decimal.NewFromInt(4)) {
		t.Errorf("payout = %s, want 4", stats.ConfirmedPayout)
	}
}

func TestAggregatePaginatesUntilEmptyPage(t *testing.T) {
	client := &fakeClient{
		pages: [][]ppapi.Conversion{
			{goal("registration"), goal("registration"), goal("first_deposit")},
			{goal("repeat_deposit"), goal("unknown_goal"), goal("registration")},
			{goal("first_deposit"), {}},
		},
	}
	a := NewAggregator(client, AggregatorOptions{PerPage: 3, MaxPages: 10})

	stats, err := a.Aggregate(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Registrations != 3 || stats.FirstDeposits != 2 || stats.RepeatDeposits != 1 {
		t.Errorf("stats = %+v, want reg=3 ftd=2 rd=1", stats)
	}
	if want := []int{1, 2, 3, 4}; !equalInts(client.requested, want) {
		t.Errorf("requested pages = %v, want %v", client.requested, want)
	}
	if want := []string{"registration", "first_deposit", "repeat_deposit"}; !equalStrings(client.keys, want) {
		t.Errorf("goal keys = %v, want %v", client.keys, want)
	}
}

func TestAggregateCustomGoalKeys(t *testing.T) {
	client := &fakeClient{
		pages: [][]ppapi.Conversion{{goal("ftd"), goal("rdeposit"), goal("registration"), goal("first_deposit")}},
	}
	a := NewAggregator(client, AggregatorOptions{
		Goals: Goals{Registration: "registration", FirstDeposit: "ftd", RepeatDeposit: "rdeposit"},
	})
	stats, err := a.Aggregate(context.Background(), testRequest(t))
	if err != nil {
		t.Fatalf("Aggregate: %v", err)
	}
	if stats.Registrations != 1 || stats.FirstDeposits != 1 || stats.RepeatDeposits != 1 {
		t.Errorf("stats = %+v", stats)
	}
}

func TestAggregatePaginationOverflow(t *testing.T) {
	client := &fakeClient{endless: true}
	a := NewAggregator(client, AggregatorOptions{MaxPages: 5})

	_, err := a.Aggregate(context.Background(), testRequest(t))
	var upErr *ppapi.UpstreamError
	if !errors.As(err, &upErr) || upErr.Reason != ppapi.ReasonPaginationOverflow {
		t.Fatalf("err = %v, want pagination_overflow", err)
	}
	if len(client.requested) != 5 {
		t.Errorf("requested %d pages, want exactly 5", len(client.requested))
	}
}

func TestAggregateFailsWhole(t *testing.T) {
	boom := &ppapi.UpstreamError{Reason: ppapi.ReasonBadStatus, Status: 502}

	tests := []struct {
		name   string
		client *fakeClient
	}{
		{"common fails", &fakeClient{rows: []ppapi.DayRow{row(1, 1, 1, "1")}, commonErr: boom}},
		{"conversions fail", &fakeClient{rows: []ppapi.DayRow{row(1, 1, 1, "1")}, convErr: boom}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			stats, err := NewAggregator(tt.client, AggregatorOptions{}).Aggregate(context.Background(), testRequest(t))
			if !errors.Is(err, boom) {
				t.Fatalf("err = %v, want %v", err, boom)
			}
			if !stats.Equal(Stats{}) {
				t.Errorf("partial stats returned: %+v", stats)
			}
		})
	}
}

func TestAggregateIsIdempotent(t *testing.T) {
	client := &fakeClient{
		rows:  []ppapi.DayRow{row(10, 8, 2, "12.34"), row(3, 3, 0, "0")},
		pages: [][]ppapi.Conversion{{goal("registration"), goal("first_deposit")}},
	}
	a := NewAggregator(client, AggregatorOptions{})
	req := testRequest(t)

	first, err := a.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	second, err := a.Aggregate(context.Background(), req)
	if err != nil {
		t.Fatal(err)
	}
	if !first.Equal(second) || first.ConfirmedPayout.String() != second.ConfirmedPayout.String() {
		t.Errorf("refresh changed stats: %+v vs %+v", first, second)
	}
}

func equalInts(a, b []int) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}

func equalStrings(a, b []string) bool {
	if len(a) != len(b) {
		return false
	}
	for i := range a {
		if a[i] != b[i] {
			return false
		}
	}
	return true
}
