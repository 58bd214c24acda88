package cli

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/radiusdt/ppbot/internal/bot"
	"github.com/radiusdt/ppbot/internal/config"
	"github.com/radiusdt/ppbot/internal/database"
	"github.com/radiusdt/ppbot/internal/httpserver"
	"github.com/radiusdt/ppbot/internal/metrics"
	"github.com/radiusdt/ppbot/internal/middleware"
	"github.com/radiusdt/ppbot/internal/postback"
	"github.com/radiusdt/ppbot/internal/resultcache"
	"github.com/radiusdt/ppbot/internal/telegram"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the Telegram bot and the HTTP server",
	Long: `Run the Telegram bot (long polling) together with the HTTP server that
exposes /health, /metrics and the postback relay.

Examples:
  ppbot serve
  ppbot serve --config /etc/ppbot.toml`,
	RunE: runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(cmd *cobra.Command, _ []string) error {
	cfg, err := config.Load(flagConfig)
	if err != nil {
		return err
	}
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid config: %w", err)
	}

	logger, err := middleware.NewLogger(cfg.Log)
	if err != nil {
		return err
	}
	defer logger.Sync()

	logger.Info("starting ppbot",
		zap.String("env", cfg.Server.Env),
		zap.String("addr", cfg.Server.Addr),
		zap.String("cache_backend", cfg.Cache.Backend),
	)

	var m *metrics.Metrics
	if cfg.Metrics.Enabled {
		m = metrics.NewMetrics(cfg.Metrics.Namespace)
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	checks := make(map[string]httpserver.HealthCheck)

	cacheOpts := resultcache.Options{TTL: cfg.Cache.TTL, Capacity: cfg.Cache.Capacity, Metrics: m}
	var results resultcache.Store
	if cfg.Cache.Backend == "redis" {
		cache, err := database.NewCacheClient(ctx, cfg.Redis, logger)
		if err != nil {
			return err
		}
		defer cache.Close()
		checks["redis"] = cache.Health
		results = resultcache.NewRedis(cache.Client, cache.Prefix, cacheOpts)
	} else {
		results = resultcache.NewMemory(cacheOpts)
	}

	var journal postback.Journal
	if cfg.Database.Enabled {
		db, err := database.NewJournalPool(ctx, cfg.Database, logger)
		if err != nil {
			logger.Warn("PostgreSQL not available, journaling postbacks in memory", zap.Error(err))
		} else {
			defer db.Close()
			pj := postback.NewPostgresJournal(db.Pool)
			if err := pj.Migrate(ctx); err != nil {
				return err
			}
			journal = pj
			checks["postgres"] = db.Health
		}
	}

	tg, err := telegram.New(telegram.Options{
		Token:        cfg.Telegram.Token,
		NotifyChatID: cfg.Telegram.ChatID,
		AllowedChats: cfg.Telegram.Allowed(),
		PollTimeout:  cfg.Telegram.PollTimeout,
		Debug:        cfg.Telegram.Debug,
		Logger:       logger,
		Metrics:      m,
	})
	if err != nil {
		return err
	}

	machine := bot.NewMachine(bot.Options{
		Resolver:   newResolver(),
		Aggregator: newAggregator(cfg, logger, m),
		Results:    results,
		Sessions:   bot.NewSessions(cfg.Session.IdleTTL, m),
		Renderer:   tg,
		Currency:   cfg.API.Currency,
		Logger:     logger,
		Metrics:    m,
	})

	deps := &httpserver.Dependencies{
		Config:  cfg,
		Logger:  logger,
		Metrics: m,
		Checks:  checks,
	}
	if cfg.Relay.Enabled {
		deps.Relay = postback.NewPostbackHandler(cfg.Relay.APIKey, tg, journal, logger, m)
	}
	srv := httpserver.New(cfg.Server.Addr, httpserver.NewServer(deps))

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		return tg.Run(gctx, machine)
	})

	g.Go(func() error {
		logger.Info("HTTP server listening", zap.String("addr", cfg.Server.Addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("http server: %w", err)
		}
		return nil
	})

	g.Go(func() error {
		<-gctx.Done()
		logger.Info("shutting down")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()
		return srv.Shutdown(shutdownCtx)
	})

	err = g.Wait()
	logger.Info("ppbot stopped")
	return err
}
