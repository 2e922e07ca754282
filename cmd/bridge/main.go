// Command bridge runs the local trading automation bridge: it drives the
// broker's Windows GUI client with synthetic input and exposes the results
// over a loopback HTTP and WebSocket API.
//
// Startup sequence:
//  1. Load configuration from environment (.env supported)
//  2. Initialize the structured logger
//  3. Build the automation stack over the OS backend
//  4. Open the task history database
//  5. Start the single-worker automation queue
//  6. Start the periodic export retention sweep
//  7. Serve HTTP until SIGINT/SIGTERM, then shut down gracefully
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"

	"github.com/dongwu-tools/tradebridge/internal/automation"
	"github.com/dongwu-tools/tradebridge/internal/config"
	"github.com/dongwu-tools/tradebridge/internal/exportstore"
	"github.com/dongwu-tools/tradebridge/internal/history"
	"github.com/dongwu-tools/tradebridge/internal/queue"
	"github.com/dongwu-tools/tradebridge/internal/server"
	"github.com/dongwu-tools/tradebridge/pkg/logger"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		fallbackLog := logger.New(logger.Config{
			Level:  "info",
			Pretty: true,
		})
		fallbackLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: cfg.DevMode,
	})

	log.Info().
		Str("listen_addr", cfg.ListenAddr).
		Str("export_dir", cfg.ExportDir).
		Strs("target_titles", cfg.TargetTitleSubstrings).
		Msg("Starting trading bridge")

	// Automation stack. Everything that touches the OS goes through the
	// backend; on non-Windows hosts it is a stub and the bridge only
	// serves /health.
	backend := automation.NewWindowsBackend()
	delays := automation.DefaultDelays()
	input := automation.NewInput(backend, delays, log)
	windows := automation.NewWindowController(backend, delays, cfg.TargetTitleSubstrings, cfg.TargetProcessNames, log)
	nav := automation.NewNavigator(input, windows, delays, log)
	store := exportstore.New(cfg.ExportDir, cfg.RetentionCutoffHour, log)
	exports := automation.NewExportOrchestrator(nav, input, windows, store, delays, log)
	scraper := automation.NewBalanceScraper(nav, windows, log)
	trader := automation.NewTradeExecutor(nav, input, log)

	hist, err := history.New(cfg.DataDir, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open task history database")
	}
	defer hist.Close()

	// Single worker: one keyboard, one mouse, one foreground window.
	q := queue.NewManager(cfg.QueueCapacity, func(ctx context.Context) {
		automation.DismissDialogs(ctx, input)
	}, log)
	q.AddListener(hist)
	go q.Run()
	log.Info().Int("capacity", cfg.QueueCapacity).Msg("Automation queue started")

	// Periodic retention sweep; exports also sweep on demand before
	// producing a new file.
	sweeper := cron.New()
	if _, err := sweeper.AddFunc("@every "+cfg.RetentionSweepInterval.String(), func() {
		if _, err := store.Sweep(time.Now()); err != nil {
			log.Warn().Err(err).Msg("Scheduled retention sweep failed")
		}
	}); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule retention sweep")
	}
	sweeper.Start()

	srv := server.New(server.Deps{
		Log:     log,
		Config:  cfg,
		Queue:   q,
		Windows: windows,
		Scraper: scraper,
		Exports: exports,
		Trader:  trader,
		Store:   store,
		History: hist,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("HTTP server failed")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	sweeperCtx := sweeper.Stop()
	<-sweeperCtx.Done()

	// Stop the queue first so no new automation starts; the in-flight
	// task finishes under its own deadline.
	q.Stop()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	log.Info().Msg("Bridge stopped")
}
