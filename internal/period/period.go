// Package period turns menu selections and typed date ranges into concrete
// reporting windows.
package period

import (
	"fmt"
	"strings"
	"time"
)

// DateLayout is the calendar date format used by users and by the upstream API.
const DateLayout = "2006-01-02"

// Kind classifies how a Request was produced.
type Kind string

const (
	KindToday    Kind = "today"
	KindLastDays Kind = "last_n_days"
	KindCustom   Kind = "custom"
)

// Selector names a predefined reporting period.
type Selector string

const (
	Today      Selector = "today"
	Last7Days  Selector = "last_7_days"
	Last30Days Selector = "last_30_days"
)

// Selectors lists the named periods in menu order.
var Selectors = []Selector{Today, Last7Days, Last30Days}

// Valid reports whether s is a known named period.
func (s Selector) Valid() bool {
	_, ok := namedDays[s]
	return ok
}

// Title is the human readable name of the selector.
func (s Selector) Title() string {
	switch s {
	case Today:
		return "Today"
	case Last7Days:
		return "Last 7 days"
	case Last30Days:
		return "Last 30 days"
	}
	return string(s)
}

var namedDays = map[Selector]int{
	Today:      1,
	Last7Days:  7,
	Last30Days: 30,
}

// Request is an immutable reporting window. From and To are inclusive
// calendar dates at midnight UTC, and From is never after To.
type Request struct {
	Kind  Kind      `json:"kind"`
	Days  int       `json:"days,omitempty"`
	From  time.Time `json:"from"`
	To    time.Time `json:"to"`
	Label string    `json:"label"`
}

// DateFrom returns the first day of the window as YYYY-MM-DD.
func (r Request) DateFrom() string { return r.From.Format(DateLayout) }

// DateTo returns the last day of the window as YYYY-MM-DD.
func (r Request) DateTo() string { return r.To.Format(DateLayout) }

// Reason explains why a range was rejected.
type Reason string

const (
	ReasonParse    Reason = "parse_error"
	ReasonReversed Reason = "reversed"
)

// InvalidRangeError is returned for unusable user supplied ranges.
type InvalidRangeError struct {
	Reason Reason
	Input  string
}

func (e *InvalidRangeError) Error() string {
	switch e.Reason {
	case ReasonReversed:
		return fmt.Sprintf("invalid range %q: start date is after end date", e.Input)
	default:
		return fmt.Sprintf("invalid range %q: expected YYYY-MM-DD,YYYY-MM-DD", e.Input)
	}
}

// Resolver computes Requests relative to an injectable clock.
type Resolver struct {
	// Now defaults to time.Now.
	Now func() time.Time
	// Location decides where "today" starts. Defaults to UTC.
	Location *time.Location
}

// NewResolver returns a resolver using the wall clock in loc.
func NewResolver(loc *time.Location) *Resolver {
	return &Resolver{Now: time.Now, Location: loc}
}

func (r *Resolver) today() time.Time {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	loc := r.Location
	if loc == nil {
		loc = time.UTC
	}
	t := now().In(loc)
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC)
}

// Resolve turns a named selector into a Request ending today.
func (r *Resolver) Resolve(sel Selector) (Request, error) {
	days, ok := namedDays[sel]
	if !ok {
		return Request{}, fmt.Errorf("unknown period %q", sel)
	}

	to := r.today()
	from := to.AddDate(0, 0, -(days - 1))

	req := Request{Kind: KindLastDays, Days: days, From: from, To: to}
	if sel == Today {
		req.Kind = KindToday
		req.Days = 0
	}
	req.Label = label(sel.Title(), from, to)
	return req, nil
}

// Custom builds a Request from two YYYY-MM-DD strings.
func (r *Resolver) Custom(from, to string) (Request, error) {
	input := from + "," + to

	start, err := time.Parse(DateLayout, strings.TrimSpace(from))
	if err != nil {
		return Request{}, &InvalidRangeError{Reason: ReasonParse, Input: input}
	}
	end, err := time.Parse(DateLayout, strings.TrimSpace(to))
	if err != nil {
		return Request{}, &InvalidRangeError{Reason: ReasonParse, Input: input}
	}
	if start.After(end) {
		return Request{}, &InvalidRangeError{Reason: ReasonReversed, Input: input}
	}

	return Request{
		Kind:  KindCustom,
		From:  start,
		To:    end,
		Label: label("Custom period", start, end),
	}, nil
}

// ParseCustom parses user text of the form "YYYY-MM-DD,YYYY-MM-DD".
func (r *Resolver) ParseCustom(text string) (Request, error) {
	parts := strings.Split(strings.TrimSpace(text), ",")
	if len(parts) != 2 {
		return Request{}, &InvalidRangeError{Reason: ReasonParse, Input: text}
	}
	return r.Custom(parts[0], parts[1])
}

func label(title string, from, to time.Time) string {
	if from.Equal(to) {
		return fmt.Sprintf("%s (%s)", title, from.Format(DateLayout))
	}
	return fmt.Sprintf("%s (%s to %s)", title, from.Format(DateLayout), to.Format(DateLayout))
}
