package report

import "github.com/shopspring/decimal"

// Metrics are ratios derived from Stats. Rates are fractions (0.1 is 10%).
// Every ratio with a zero denominator is zero.
type Metrics struct {
	ClickToRegistration    float64
	RegistrationToDeposit  float64
	ClickToDeposit         float64
	RepeatDepositRate      float64
	EarningsPerClick       decimal.Decimal
	UniqueEarningsPerClick decimal.Decimal
}

// Compute derives Metrics from s.
func Compute(s Stats) Metrics {
	return Metrics{
		ClickToRegistration:    ratio(s.Registrations, s.Clicks),
		RegistrationToDeposit:  ratio(s.FirstDeposits, s.Registrations),
		ClickToDeposit:         ratio(s.FirstDeposits, s.Clicks),
		RepeatDepositRate:      ratio(s.RepeatDeposits, s.FirstDeposits),
		EarningsPerClick:       perUnit(s.ConfirmedPayout, s.Clicks),
		UniqueEarningsPerClick: perUnit(s.ConfirmedPayout, s.UniqueClicks),
	}
}

func ratio(num, den uint64) float64 {
	if den == 0 {
		return 0
	}
	return float64(num) / float64(den)
}

func perUnit(amount decimal.Decimal, den uint64) decimal.Decimal {
	if den == 0 {
		return decimal.Zero
	}
	return amount.Div(decimal.NewFromInt(int64(den)))
}
