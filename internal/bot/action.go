package bot

import (
	"fmt"
	"strings"

	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/resultcache"
)

// MaxActionLen is the largest encoded action the chat platform accepts as
// button data.
const MaxActionLen = 64

// ActionKind identifies a button press.
type ActionKind string

const (
	ActOpenStats    ActionKind = "os"
	ActSelectPeriod ActionKind = "sp"
	ActCustomPeriod ActionKind = "cp"
	ActShowMetrics  ActionKind = "sm"
	ActHideMetrics  ActionKind = "hm"
	ActRefresh      ActionKind = "rf"
	ActBack         ActionKind = "bk"
	ActMainMenu     ActionKind = "mm"
)

// Action is the decoded payload of a button. Period is set only for
// ActSelectPeriod, ResultID only for the result actions.
type Action struct {
	Kind     ActionKind
	Period   period.Selector
	ResultID string
}

func (k ActionKind) arg() (hasPeriod, hasResult bool) {
	switch k {
	case ActSelectPeriod:
		return true, false
	case ActShowMetrics, ActHideMetrics, ActRefresh:
		return false, true
	}
	return false, false
}

func (k ActionKind) known() bool {
	switch k {
	case ActOpenStats, ActSelectPeriod, ActCustomPeriod, ActShowMetrics,
		ActHideMetrics, ActRefresh, ActBack, ActMainMenu:
		return true
	}
	return false
}

// Encode renders a as "kind[:arg]".
func (a Action) Encode() string {
	hasPeriod, hasResult := a.Kind.arg()
	switch {
	case hasPeriod:
		return string(a.Kind) + ":" + string(a.Period)
	case hasResult:
		return string(a.Kind) + ":" + a.ResultID
	}
	return string(a.Kind)
}

// DecodeAction parses button data produced by Encode.
func DecodeAction(data string) (Action, error) {
	if data == "" || len(data) > MaxActionLen {
		return Action{}, fmt.Errorf("action %q: bad length", data)
	}

	kind, arg, hasArg := strings.Cut(data, ":")
	k := ActionKind(kind)
	if !k.known() {
		return Action{}, fmt.Errorf("action %q: unknown kind", data)
	}

	hasPeriod, hasResult := k.arg()
	if hasArg != (hasPeriod || hasResult) {
		return Action{}, fmt.Errorf("action %q: wrong argument count", data)
	}

	a := Action{Kind: k}
	switch {
	case hasPeriod:
		sel := period.Selector(arg)
		if !sel.Valid() {
			return Action{}, fmt.Errorf("action %q: unknown period", data)
		}
		a.Period = sel
	case hasResult:
		if !resultcache.ValidID(arg) {
			return Action{}, fmt.Errorf("action %q: malformed result id", data)
		}
		a.ResultID = arg
	}
	return a, nil
}
