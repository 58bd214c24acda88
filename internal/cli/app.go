package cli

import (
	"time"

	"github.com/radiusdt/ppbot/internal/config"
	"github.com/radiusdt/ppbot/internal/metrics"
	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/ppapi"
	"github.com/radiusdt/ppbot/internal/report"
	"go.uber.org/zap"
)

func newAggregator(cfg *config.Config, logger *zap.Logger, m *metrics.Metrics) *report.Aggregator {
	client := ppapi.NewClient(ppapi.Options{
		BaseURL:   cfg.API.BaseURL,
		APIKey:    cfg.API.Key,
		KeyHeader: cfg.API.KeyHeader,
		Currency:  cfg.API.Currency,
		Timeout:   cfg.API.RequestTimeout,
		Metrics:   m,
	})

	return report.NewAggregator(client, report.AggregatorOptions{
		Goals: report.Goals{
			Registration:  cfg.API.Goals.Registration,
			FirstDeposit:  cfg.API.Goals.FirstDeposit,
			RepeatDeposit: cfg.API.Goals.RepeatDeposit,
		},
		PerPage:  cfg.API.PerPage,
		MaxPages: cfg.API.MaxPages,
		Logger:   logger,
		Metrics:  m,
	})
}

// newResolver counts days in UTC, like the upstream API.
func newResolver() *period.Resolver {
	return period.NewResolver(time.UTC)
}
