package cli

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/radiusdt/ppbot/internal/bot"
	"github.com/radiusdt/ppbot/internal/config"
	"github.com/radiusdt/ppbot/internal/middleware"
	"github.com/radiusdt/ppbot/internal/period"
	"github.com/radiusdt/ppbot/internal/report"
	"github.com/spf13/cobra"
)

var reportCmd = &cobra.Command{
	Use:   "report",
	Short: "Print the statistics of one period",
	Long: `Aggregate one period from the affiliate API and print the same report the
bot shows.

Examples:
  ppbot report --period today
  ppbot report --period last_7_days --metrics
  ppbot report --from 2025-02-01 --to 2025-02-10`,
	RunE: runReport,
}

var (
	reportPeriod  string
	reportFrom    string
	reportTo      string
	reportMetrics bool
)

func init() {
	rootCmd.AddCommand(reportCmd)

	reportCmd.Flags().StringVarP(&reportPeriod, "period", "p", "", "Named period: today, last_7_days, last_30_days")
	reportCmd.Flags().StringVar(&reportFrom, "from", "", "First day, YYYY-MM-DD")
	reportCmd.Flags().StringVar(&reportTo, "to", "", "Last day, YYYY-MM-DD")
	reportCmd.Flags().BoolVarP(&reportMetrics, "metrics", "m", false, "Append derived metrics")
}

func runReport(cmd *cobra.Command, _ []string) error {
	req, err := resolveRequest(newResolver(), reportPeriod, reportFrom, reportTo)
	if err != nil {
		return err
	}

	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := cfg.ValidateAPI(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := middleware.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	ctx, cancel := context.WithTimeout(cmd.Context(), 5*time.Minute)
	defer cancel()

	stats, err := newAggregator(cfg, logger, nil).Aggregate(ctx, req)
	if err != nil {
		return err
	}

	text := bot.ReportText(req, stats, cfg.API.Currency)
	if reportMetrics {
		text += "\n\n" + bot.MetricsText(report.Compute(stats))
	}
	fmt.Fprintln(cmd.OutOrStdout(), text)
	return nil
}

// resolveRequest accepts either a named period or both custom bounds.
func resolveRequest(r *period.Resolver, name, from, to string) (period.Request, error) {
	switch {
	case name != "" && (from != "" || to != ""):
		return period.Request{}, errors.New("use either --period or --from/--to")
	case name != "":
		sel := period.Selector(name)
		if !sel.Valid() {
			return period.Request{}, fmt.Errorf("unknown period %q", name)
		}
		return r.Resolve(sel)
	case from != "" && to != "":
		return r.Custom(from, to)
	}
	return period.Request{}, errors.New("--period or both --from and --to are required")
}
