package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/JakeFAU/schedule-crawler/internal/config"
	"github.com/JakeFAU/schedule-crawler/internal/crawler"
	collyfetcher "github.com/JakeFAU/schedule-crawler/internal/fetcher/colly"
	headlessfetcher "github.com/JakeFAU/schedule-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/schedule-crawler/internal/logging"
	"github.com/JakeFAU/schedule-crawler/internal/metrics"
	"github.com/JakeFAU/schedule-crawler/internal/persist"
	"github.com/JakeFAU/schedule-crawler/internal/reconcile"
	"github.com/JakeFAU/schedule-crawler/internal/schedule"
	"github.com/JakeFAU/schedule-crawler/internal/storage/memory"
	"github.com/JakeFAU/schedule-crawler/internal/storage/postgres"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	cfg, err := config.Load(".env")
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		return 1
	}
	logger, err := logging.New(cfg.LogDevelopment)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		return 1
	}
	defer func() {
		if syncErr := logger.Sync(); syncErr != nil {
			fmt.Fprintf(os.Stderr, "logger sync failed: %v\n", syncErr)
		}
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, cfg, logger); err != nil {
		logger.Error("schedule crawl failed", zap.Error(err))
		return 1
	}
	return 0
}

func run(ctx context.Context, cfg config.Config, logger *zap.Logger) error {
	if cfg.MetricsAddr != "" {
		shutdown := serveMetrics(cfg.MetricsAddr, logger)
		defer shutdown()
	}

	fetcher, closeFetcher := newFetcher(cfg, logger)
	defer closeFetcher()

	store, closeStore, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	summary, err := crawlAndPersist(ctx, cfg.Crawler(), fetcher, store, logger)
	if err != nil {
		return err
	}
	logger.Info("schedule crawl complete",
		zap.Int("events", summary.Events),
		zap.Int("speakers", summary.Speakers))
	return nil
}

// crawlAndPersist clears the store, runs the crawl, logs the result, then
// writes it. A failed write leaves the logged result as the only record.
func crawlAndPersist(
	ctx context.Context,
	crawlCfg crawler.Config,
	fetcher schedule.PageFetcher,
	store schedule.Store,
	logger *zap.Logger,
) (persist.Summary, error) {
	mapper := persist.NewMapper(store, logger.Named("persist"))
	if err := mapper.Reset(ctx); err != nil {
		return persist.Summary{}, err
	}

	profiles := crawler.NewProfileFetcher(fetcher, crawlCfg.ProfileTimeout)
	speakers := reconcile.New(profiles, logger.Named("reconcile"))
	orchestrator, err := crawler.NewOrchestrator(crawlCfg, fetcher, speakers, logger.Named("crawler"))
	if err != nil {
		return persist.Summary{}, err
	}

	result, err := orchestrator.Run(ctx)
	if err != nil {
		return persist.Summary{}, err
	}
	logging.JSON(logger, zapcore.InfoLevel, "crawl result", result)

	return mapper.Persist(ctx, result.Events, result.Speakers)
}

func newFetcher(cfg config.Config, logger *zap.Logger) (schedule.PageFetcher, func()) {
	if cfg.Fetcher == config.FetcherStatic {
		logger.Info("using static fetcher")
		return collyfetcher.New(cfg.Static()), func() {}
	}
	logger.Info("using chromedp fetcher", zap.Bool("headless", cfg.Headless))
	f := headlessfetcher.NewChromedp(cfg.Chromedp(), logger.Named("chromedp"))
	return f, f.Close
}

func newStore(ctx context.Context, cfg config.Config) (schedule.Store, func(), error) {
	if cfg.Store == config.StoreMemory {
		return memory.NewStore(), func() {}, nil
	}
	store, err := postgres.NewStore(ctx, cfg.Postgres())
	if err != nil {
		return nil, nil, fmt.Errorf("%w: %w", schedule.ErrPersist, err)
	}
	if err := store.EnsureSchema(ctx); err != nil {
		store.Close()
		return nil, nil, fmt.Errorf("%w: %w", schedule.ErrPersist, err)
	}
	return store, store.Close, nil
}

func serveMetrics(addr string, logger *zap.Logger) func() {
	srv := &http.Server{
		Addr:              addr,
		Handler:           metrics.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("metrics server started", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("metrics server error", zap.Error(err))
		}
	}()
	return func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			logger.Error("metrics server shutdown error", zap.Error(err))
		}
	}
}
