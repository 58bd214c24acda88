package report

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radiusdt/ppbot/internal/metrics"
	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/ppapi"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

const (
	DefaultPerPage  = 500
	DefaultMaxPages = 100
)

// StatsClient is the part of the statistics API the aggregator needs.
type StatsClient interface {
	Common(ctx context.Context, dateFrom, dateTo string) ([]ppapi.DayRow, error)
	Conversions(ctx context.Context, q ppapi.ConversionsQuery) ([]ppapi.Conversion, error)
}

// AggregatorOptions configures an Aggregator.
type AggregatorOptions struct {
	Goals    Goals
	PerPage  int
	MaxPages int
	Logger   *zap.Logger
	Metrics  *metrics.Metrics
}

// Aggregator turns a period request into Stats by querying the day-grouped
// common report and the paginated conversions report.
type Aggregator struct {
	client   StatsClient
	goals    Goals
	perPage  int
	maxPages int
	logger   *zap.Logger
	metrics  *metrics.Metrics
}

// NewAggregator creates an Aggregator over client.
func NewAggregator(client StatsClient, opts AggregatorOptions) *Aggregator {
	a := &Aggregator{
		client:   client,
		goals:    opts.Goals,
		perPage:  opts.PerPage,
		maxPages: opts.MaxPages,
		logger:   opts.Logger,
		metrics:  opts.Metrics,
	}
	if len(a.goals.Keys()) == 0 {
		a.goals = DefaultGoals
	}
	if a.perPage <= 0 {
		a.perPage = DefaultPerPage
	}
	if a.maxPages <= 0 {
		a.maxPages = DefaultMaxPages
	}
	if a.logger == nil {
		a.logger = zap.NewNop()
	}
	return a
}

// Aggregate fetches both reports concurrently and returns their combined
// totals. Any failure fails the whole call; partial Stats are never returned.
func (a *Aggregator) Aggregate(ctx context.Context, req period.Request) (Stats, error) {
	start := time.Now()
	from, to := req.DateFrom(), req.DateTo()

	var (
		common      Stats
		conversions Stats
		pages       int
	)

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := a.client.Common(gctx, from, to)
		if err != nil {
			return err
		}
		common = a.sumRows(rows)
		return nil
	})

	g.Go(func() error {
		var err error
		conversions, pages, err = a.countConversions(gctx, from, to)
		return err
	})

	if err := g.Wait(); err != nil {
		a.metrics.RecordUpstreamError(reasonOf(err))
		a.logger.Error("aggregation failed",
			zap.String("date_from", from),
			zap.String("date_to", to),
			zap.Error(err),
		)
		return Stats{}, err
	}

	stats := common
	stats.Registrations = conversions.Registrations
	stats.FirstDeposits = conversions.FirstDeposits
	stats.RepeatDeposits = conversions.RepeatDeposits

	a.metrics.RecordAggregation(pages, time.Since(start))
	a.logger.Debug("aggregation completed",
		zap.String("date_from", from),
		zap.String("date_to", to),
		zap.Int("conversion_pages", pages),
		zap.Duration("duration", time.Since(start)),
	)

	return stats, nil
}

// sumRows adds up the common report rows. Negative values are clamped.
func (a *Aggregator) sumRows(rows []ppapi.DayRow) Stats {
	var s Stats
	payout := decimal.Zero

	for _, row := range rows {
		confirmed := row.Confirmed()
		s.Clicks += a.clamp("click_count", row.ClickCount)
		s.UniqueClicks += a.clamp("click_unique_count", row.ClickUniqueCount)
		s.ConfirmedCount += a.clamp("confirmed.count", confirmed.Count)

		if confirmed.Payout.IsNegative() {
			a.clamped("confirmed.payout", confirmed.Payout.String())
			continue
		}
		payout = payout.Add(confirmed.Payout)
	}

	s.ConfirmedPayout = payout
	return s
}

// countConversions walks the conversions report page by page until an
// empty page. Reaching maxPages without an empty page is an overflow.
func (a *Aggregator) countConversions(ctx context.Context, from, to string) (Stats, int, error) {
	var s Stats
	keys := a.goals.Keys()

	for page := 1; page <= a.maxPages; page++ {
		items, err := a.client.Conversions(ctx, ppapi.ConversionsQuery{
			DateFrom: from,
			DateTo:   to,
			GoalKeys: keys,
			Page:     page,
			PerPage:  a.perPage,
		})
		if err != nil {
			return Stats{}, page, err
		}
		if len(items) == 0 {
			return s, page, nil
		}

		for _, item := range items {
			switch item.Goal.Key {
			case "":
			case a.goals.Registration:
				s.Registrations++
			case a.goals.FirstDeposit:
				s.FirstDeposits++
			case a.goals.RepeatDeposit:
				s.RepeatDeposits++
			}
		}
	}

	return Stats{}, a.maxPages, &ppapi.UpstreamError{
		Reason:   ppapi.ReasonPaginationOverflow,
		Endpoint: ppapi.EndpointConversions,
		Err:      fmt.Errorf("no empty page within %d pages", a.maxPages),
	}
}

func (a *Aggregator) clamp(field string, v int64) uint64 {
	if v < 0 {
		a.clamped(field, fmt.Sprint(v))
		return 0
	}
	return uint64(v)
}

func (a *Aggregator) clamped(field, value string) {
	a.metrics.RecordClamp(field)
	a.logger.Warn("negative upstream value clamped to zero",
		zap.String("field", field),
		zap.String("value", value),
	)
}

func reasonOf(err error) string {
	var upErr *ppapi.UpstreamError
	if errors.As(err, &upErr) {
		return string(upErr.Reason)
	}
	return "unknown"
}
