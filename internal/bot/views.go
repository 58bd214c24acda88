package bot

import (
	"errors"
	"fmt"
	"strings"

	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/ppapi"
	"github.com/radiusdt/ppbot/internal/report"
)

const (
	textMainMenu     = "Main menu"
	textPeriodMenu   = "Choose a reporting period"
	textAwaitRange   = "Send the period as YYYY-MM-DD,YYYY-MM-DD (for example 2025-02-01,2025-02-10) or type back."
	textUnrecognized = "Unrecognized action. Use the buttons below."
	textExpired      = "This report has expired. Select the period again."
)

var (
	backButton     = Button{Text: "⬅️ Back", Action: Action{Kind: ActBack}}
	mainMenuButton = Button{Text: "🏠 Main menu", Action: Action{Kind: ActMainMenu}}
)

func mainMenuView() View {
	return View{
		Text: textMainMenu,
		Keyboard: [][]Button{
			{{Text: "📊 Statistics", Action: Action{Kind: ActOpenStats}}},
		},
	}
}

func periodKeyboard() [][]Button {
	rows := make([][]Button, 0, len(period.Selectors)+2)
	for _, sel := range period.Selectors {
		rows = append(rows, []Button{{Text: sel.Title(), Action: Action{Kind: ActSelectPeriod, Period: sel}}})
	}
	rows = append(rows,
		[]Button{{Text: "📅 Custom period", Action: Action{Kind: ActCustomPeriod}}},
		[]Button{backButton},
	)
	return rows
}

func periodMenuView() View {
	return View{Text: textPeriodMenu, Keyboard: periodKeyboard()}
}

func awaitingView(prefix string) View {
	text := textAwaitRange
	if prefix != "" {
		text = prefix + "\n\n" + text
	}
	return View{Text: text, Keyboard: [][]Button{{backButton}}}
}

func resultsKeyboard(id string, withMetrics bool) [][]Button {
	toggle := Button{Text: "📈 Show metrics", Action: Action{Kind: ActShowMetrics, ResultID: id}}
	if withMetrics {
		toggle = Button{Text: "📉 Hide metrics", Action: Action{Kind: ActHideMetrics, ResultID: id}}
	}
	return [][]Button{
		{toggle},
		{{Text: "🔄 Refresh", Action: Action{Kind: ActRefresh, ResultID: id}}},
		{backButton, mainMenuButton},
	}
}

func resultsView(text, id string, s report.Stats, withMetrics bool) View {
	if withMetrics {
		text += "\n\n" + MetricsText(report.Compute(s))
	}
	return View{Text: text, Keyboard: resultsKeyboard(id, withMetrics)}
}

// failureView is shown for errors that end in the period menu.
func failureView(text string) View {
	return View{Text: text, Keyboard: periodKeyboard()}
}

// keyboardFor returns the controls of a screen so a fallback message keeps
// the user on the same screen.
func keyboardFor(s Session) [][]Button {
	switch s.Screen {
	case ScreenPeriodMenu:
		return periodKeyboard()
	case ScreenAwaitingCustomRange:
		return [][]Button{{backButton}}
	case ScreenResults:
		return resultsKeyboard(s.ResultID, false)
	case ScreenResultsWithMetrics:
		return resultsKeyboard(s.ResultID, true)
	}
	return mainMenuView().Keyboard
}

func fallbackView(s Session) View {
	return View{Text: textUnrecognized, Keyboard: keyboardFor(s)}
}

func invalidRangeText(err error) string {
	var rangeErr *period.InvalidRangeError
	if errors.As(err, &rangeErr) && rangeErr.Reason == period.ReasonReversed {
		return "⚠️ The start date is after the end date."
	}
	return "⚠️ Could not read the dates."
}

func upstreamErrorText(err error) string {
	var upErr *ppapi.UpstreamError
	if !errors.As(err, &upErr) {
		return "❌ Could not build the report. Try again later."
	}
	switch upErr.Reason {
	case ppapi.ReasonUnauthorized:
		return "❌ The statistics API rejected the API key."
	case ppapi.ReasonTimeout:
		return "❌ The statistics API did not answer in time. Try again."
	case ppapi.ReasonPaginationOverflow:
		return "❌ Too many conversions in this period. Choose a shorter one."
	}
	return "❌ The statistics API is unavailable. Try again later."
}

// ReportText renders the base report of a period.
func ReportText(req period.Request, s report.Stats, currency string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "📊 %s\n\n", req.Label)
	fmt.Fprintf(&b, "Clicks: %d (unique: %d)\n", s.Clicks, s.UniqueClicks)
	fmt.Fprintf(&b, "Registrations: %d\n", s.Registrations)
	fmt.Fprintf(&b, "First deposits: %d\n", s.FirstDeposits)
	fmt.Fprintf(&b, "Repeat deposits: %d\n", s.RepeatDeposits)
	fmt.Fprintf(&b, "Confirmed conversions: %d\n", s.ConfirmedCount)
	fmt.Fprintf(&b, "Confirmed payout: %s", s.ConfirmedPayout.StringFixed(2))
	if currency != "" {
		b.WriteString(" " + currency)
	}
	return b.String()
}

// MetricsText renders the derived ratios.
func MetricsText(m report.Metrics) string {
	var b strings.Builder
	b.WriteString("📈 Metrics\n")
	fmt.Fprintf(&b, "Click to registration: %.1f%%\n", m.ClickToRegistration*100)
	fmt.Fprintf(&b, "Registration to deposit: %.1f%%\n", m.RegistrationToDeposit*100)
	fmt.Fprintf(&b, "Click to deposit: %.1f%%\n", m.ClickToDeposit*100)
	fmt.Fprintf(&b, "Repeat deposit rate: %.1f%%\n", m.RepeatDepositRate*100)
	fmt.Fprintf(&b, "EPC: %s\n", m.EarningsPerClick.StringFixed(3))
	fmt.Fprintf(&b, "uEPC: %s", m.UniqueEarningsPerClick.StringFixed(3))
	return b.String()
}
