// Package report aggregates upstream statistics into period totals and
// derives marketing ratios from them.
package report

import "github.com/shopspring/decimal"

// Stats holds the totals of one reporting window. It is a value type; all
// fields are non-negative.
type Stats struct {
	Clicks          uint64          `json:"clicks"`
	UniqueClicks    uint64          `json:"unique_clicks"`
	ConfirmedCount  uint64          `json:"confirmed_count"`
	ConfirmedPayout decimal.Decimal `json:"confirmed_payout"`
	Registrations   uint64          `json:"registrations"`
	FirstDeposits   uint64          `json:"first_deposits"`
	RepeatDeposits  uint64          `json:"repeat_deposits"`
}

// Equal reports whether two Stats hold the same totals.
func (s Stats) Equal(o Stats) bool {
	return s.Clicks == o.Clicks &&
		s.UniqueClicks == o.UniqueClicks &&
		s.ConfirmedCount == o.ConfirmedCount &&
		s.ConfirmedPayout.Equal(o.ConfirmedPayout) &&
		s.Registrations == o.Registrations &&
		s.FirstDeposits == o.FirstDeposits &&
		s.RepeatDeposits == o.RepeatDeposits
}

// Goals maps the tracked conversion kinds to upstream goal keys.
type Goals struct {
	Registration  string
	FirstDeposit  string
	RepeatDeposit string
}

// DefaultGoals are the goal keys used when none are configured.
var DefaultGoals = Goals{
	Registration:  "registration",
	FirstDeposit:  "first_deposit",
	RepeatDeposit: "repeat_deposit",
}

// Keys returns the goal keys in query order, skipping empty ones.
func (g Goals) Keys() []string {
	keys := make([]string, 0, 3)
	for _, k := range []string{g.Registration, g.FirstDeposit, g.RepeatDeposit} {
		if k != "" {
			keys = append(keys, k)
		}
	}
	return keys
}
