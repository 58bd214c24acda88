// Package bot implements the chat navigation: menus, period selection,
// report rendering and the metrics toggle.
package bot

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/radiusdt/ppbot/internal/metrics"
	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/report"
	"github.com/radiusdt/ppbot/internal/resultcache"
	"go.uber.org/zap"
)

// Aggregator computes Stats for a period.
type Aggregator interface {
	Aggregate(ctx context.Context, req period.Request) (report.Stats, error)
}

// Callback is a button press.
type Callback struct {
	ID      string
	Data    string
	Message MessageRef
}

// Update is one inbound chat event: either a button press or text.
type Update struct {
	ChatID   int64
	Callback *Callback
	Text     string
}

// Options wires a Machine.
type Options struct {
	Resolver   *period.Resolver
	Aggregator Aggregator
	Results    resultcache.Store
	Sessions   *Sessions
	Renderer   Renderer
	Currency   string
	Logger     *zap.Logger
	Metrics    *metrics.Metrics
}

// Machine drives sessions through the navigation states.
type Machine struct {
	resolver   *period.Resolver
	aggregator Aggregator
	results    resultcache.Store
	sessions   *Sessions
	renderer   Renderer
	currency   string
	logger     *zap.Logger
	metrics    *metrics.Metrics
}

// NewMachine creates a Machine. Resolver, Sessions and Logger default when
// nil.
func NewMachine(opts Options) *Machine {
	m := &Machine{
		resolver:   opts.Resolver,
		aggregator: opts.Aggregator,
		results:    opts.Results,
		sessions:   opts.Sessions,
		renderer:   opts.Renderer,
		currency:   opts.Currency,
		logger:     opts.Logger,
		metrics:    opts.Metrics,
	}
	if m.resolver == nil {
		m.resolver = &period.Resolver{}
	}
	if m.sessions == nil {
		m.sessions = NewSessions(DefaultIdleTTL, opts.Metrics)
	}
	if m.logger == nil {
		m.logger = zap.NewNop()
	}
	return m
}

type eventKind int

const (
	evAction eventKind = iota
	evText
	evCommand
	evInvalid
)

func (k eventKind) String() string {
	switch k {
	case evAction:
		return "action"
	case evText:
		return "text"
	case evCommand:
		return "command"
	}
	return "invalid"
}

type event struct {
	kind   eventKind
	action Action
	text   string
}

func parseUpdate(u Update) event {
	if u.Callback != nil {
		a, err := DecodeAction(u.Callback.Data)
		if err != nil {
			return event{kind: evInvalid, text: u.Callback.Data}
		}
		return event{kind: evAction, action: a}
	}

	text := strings.TrimSpace(u.Text)
	if strings.HasPrefix(text, "/") {
		cmd, _, _ := strings.Cut(strings.Fields(text + " ")[0], "@")
		if cmd == "/start" || cmd == "/menu" {
			return event{kind: evCommand, text: cmd}
		}
	}
	return event{kind: evText, text: text}
}

type stepKind int

const (
	stepRender stepKind = iota
	stepResolve
	stepFetch
	stepShow
	stepRefresh
	stepFallback
)

// step is the decided effect of one event.
type step struct {
	kind     stepKind
	screen   Screen
	view     View
	selector period.Selector
	request  period.Request
	resultID string
	fresh    bool
}

func render(screen Screen, v View) step {
	return step{kind: stepRender, screen: screen, view: v}
}

// decide maps a session state and an event to the step to execute. It has
// no side effects.
func (m *Machine) decide(s Session, ev event) step {
	switch ev.kind {
	case evCommand:
		st := render(ScreenMainMenu, mainMenuView())
		st.fresh = true
		return st

	case evText:
		if s.Screen != ScreenAwaitingCustomRange || s.Pending != PendingCustomPeriod {
			return step{kind: stepFallback, fresh: true}
		}
		if strings.EqualFold(ev.text, "back") {
			return render(ScreenPeriodMenu, periodMenuView())
		}
		req, err := m.resolver.ParseCustom(ev.text)
		if err != nil {
			return render(ScreenAwaitingCustomRange, awaitingView(invalidRangeText(err)))
		}
		return step{kind: stepFetch, request: req}

	case evAction:
		a := ev.action
		if a.Kind == ActMainMenu {
			return render(ScreenMainMenu, mainMenuView())
		}

		switch s.Screen {
		case ScreenMainMenu:
			if a.Kind == ActOpenStats {
				return render(ScreenPeriodMenu, periodMenuView())
			}
		case ScreenPeriodMenu:
			switch a.Kind {
			case ActSelectPeriod:
				return step{kind: stepResolve, selector: a.Period}
			case ActCustomPeriod:
				return render(ScreenAwaitingCustomRange, awaitingView(""))
			case ActBack:
				return render(ScreenMainMenu, mainMenuView())
			}
		case ScreenAwaitingCustomRange:
			if a.Kind == ActBack {
				return render(ScreenPeriodMenu, periodMenuView())
			}
		case ScreenResults, ScreenResultsWithMetrics:
			switch {
			case a.Kind == ActShowMetrics && s.Screen == ScreenResults:
				return step{kind: stepShow, screen: ScreenResultsWithMetrics, resultID: a.ResultID}
			case a.Kind == ActHideMetrics && s.Screen == ScreenResultsWithMetrics:
				return step{kind: stepShow, screen: ScreenResults, resultID: a.ResultID}
			case a.Kind == ActRefresh:
				return step{kind: stepRefresh, resultID: a.ResultID}
			case a.Kind == ActBack:
				return render(ScreenPeriodMenu, periodMenuView())
			}
		}
	}

	return step{kind: stepFallback}
}

// outcome is what an executed step leaves behind.
type outcome struct {
	view     View
	screen   Screen
	resultID string
}

// Handle processes one update. Domain errors are rendered to the user;
// only transport failures are returned.
func (m *Machine) Handle(ctx context.Context, u Update) error {
	ev := parseUpdate(u)
	m.metrics.RecordEvent(ev.kind.String())

	sess, release := m.sessions.Acquire(u.ChatID)
	defer release()

	st := m.decide(*sess, ev)
	out := m.execute(ctx, sess, st)

	var target renderTarget
	if u.Callback != nil {
		target = callbackTarget{renderer: m.renderer, message: u.Callback.Message}
	} else {
		target = textTarget{renderer: m.renderer, chatID: u.ChatID, message: sess.Message, fresh: st.fresh}
	}

	ref, err := target.render(ctx, out.view)
	if err != nil {
		m.metrics.RecordRenderError(ev.kind.String())
		m.logger.Error("render failed",
			zap.Int64("chat_id", u.ChatID),
			zap.String("screen", out.screen.String()),
			zap.Error(err),
		)
		return fmt.Errorf("render %s: %w", out.screen, err)
	}

	if sess.Screen != out.screen {
		m.metrics.RecordTransition(sess.Screen.String(), out.screen.String())
	}
	m.logger.Debug("transition",
		zap.Int64("chat_id", u.ChatID),
		zap.String("event", ev.kind.String()),
		zap.String("action", ev.action.Encode()),
		zap.String("from", sess.Screen.String()),
		zap.String("to", out.screen.String()),
	)

	sess.Screen = out.screen
	sess.ResultID = out.resultID
	sess.Pending = PendingNone
	if out.screen == ScreenAwaitingCustomRange {
		sess.Pending = PendingCustomPeriod
	}
	sess.Message = ref
	return nil
}

func (m *Machine) execute(ctx context.Context, s *Session, st step) outcome {
	switch st.kind {
	case stepRender:
		return outcome{view: st.view, screen: st.screen}

	case stepResolve:
		req, err := m.resolver.Resolve(st.selector)
		if err != nil {
			return m.failure(s, err)
		}
		return m.runReport(ctx, s, req)

	case stepFetch:
		return m.runReport(ctx, s, st.request)

	case stepShow:
		e, err := m.results.Get(ctx, s.ChatID, st.resultID)
		if err != nil {
			return m.failure(s, err)
		}
		withMetrics := st.screen == ScreenResultsWithMetrics
		return outcome{
			view:     resultsView(e.Text, e.ID, e.Stats, withMetrics),
			screen:   st.screen,
			resultID: e.ID,
		}

	case stepRefresh:
		e, err := m.results.Get(ctx, s.ChatID, st.resultID)
		if err != nil {
			return m.failure(s, err)
		}
		return m.runReport(ctx, s, e.Request)
	}

	return outcome{view: fallbackView(*s), screen: s.Screen, resultID: s.ResultID}
}

// runReport aggregates req, stores the result and renders it. This is the
// only network fetch of an event.
func (m *Machine) runReport(ctx context.Context, s *Session, req period.Request) outcome {
	stats, err := m.aggregator.Aggregate(ctx, req)
	if err != nil {
		return m.failure(s, err)
	}

	text := ReportText(req, stats, m.currency)
	id, err := m.results.Put(ctx, s.ChatID, resultcache.Entry{Request: req, Stats: stats, Text: text})
	if err != nil {
		return m.failure(s, err)
	}

	return outcome{
		view:     resultsView(text, id, stats, false),
		screen:   ScreenResults,
		resultID: id,
	}
}

// failure renders err and moves the session to the period menu, which
// always has a way back.
func (m *Machine) failure(s *Session, err error) outcome {
	if errors.Is(err, resultcache.ErrNotFound) {
		m.logger.Info("result expired", zap.Int64("chat_id", s.ChatID))
		return outcome{view: failureView(textExpired), screen: ScreenPeriodMenu}
	}

	m.logger.Error("report failed",
		zap.Int64("chat_id", s.ChatID),
		zap.Error(err),
	)
	return outcome{view: failureView(upstreamErrorText(err)), screen: ScreenPeriodMenu}
}
