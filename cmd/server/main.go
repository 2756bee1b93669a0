// Package main is the entry point for the Sentinel portfolio compliance
// monitor. It joins document facts with live market data, evaluates the
// compliance rule set over the joined stream, and runs every admitted
// violation through the alert workflow.
package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/alerts"
	"github.com/wealthsentinel/sentinel/internal/clients/marketfeed"
	"github.com/wealthsentinel/sentinel/internal/clients/textgen"
	"github.com/wealthsentinel/sentinel/internal/config"
	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/dedup"
	"github.com/wealthsentinel/sentinel/internal/doclog"
	"github.com/wealthsentinel/sentinel/internal/engine"
	"github.com/wealthsentinel/sentinel/internal/events"
	"github.com/wealthsentinel/sentinel/internal/marketdata"
	"github.com/wealthsentinel/sentinel/internal/notify"
	"github.com/wealthsentinel/sentinel/internal/portfolio"
	"github.com/wealthsentinel/sentinel/internal/reliability"
	"github.com/wealthsentinel/sentinel/internal/rules"
	"github.com/wealthsentinel/sentinel/internal/server"
	"github.com/wealthsentinel/sentinel/internal/stream"
	"github.com/wealthsentinel/sentinel/internal/workflow"
	"github.com/wealthsentinel/sentinel/pkg/logger"
)

func main() {
	// Load configuration first; everything else depends on it.
	cfg, err := config.Load()
	if err != nil {
		// Logger isn't configured yet, use a basic one for this error
		basicLog := logger.New(logger.Config{Level: "info", Pretty: true})
		basicLog.Fatal().Err(err).Msg("Failed to load configuration")
	}

	log := logger.New(logger.Config{
		Level:  cfg.LogLevel,
		Pretty: true,
	})

	log.Info().Msg("Starting Sentinel compliance monitor")

	// Databases. The alert ledger carries the audit trail and gets the
	// durable profile; portfolio snapshots can tolerate standard settings.
	ledgerDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "alerts.db"),
		Profile: database.ProfileLedger,
		Name:    "alerts",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open alert ledger database")
	}
	defer ledgerDB.Close()

	snapshotDB, err := database.New(database.Config{
		Path:    filepath.Join(cfg.DataDir, "snapshots.db"),
		Profile: database.ProfileStandard,
		Name:    "snapshots",
	})
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to open snapshot database")
	}
	defer snapshotDB.Close()

	// Repositories and state providers.
	alertRepo, err := alerts.NewRepository(ledgerDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize alert repository")
	}

	docLog, err := doclog.NewRepository(ledgerDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize document processing log")
	}

	snapshotRepo, err := portfolio.NewRepository(snapshotDB)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to initialize snapshot repository")
	}

	snapshots, err := portfolio.NewProvider(snapshotRepo, log)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to restore portfolio snapshot")
	}

	registry := rules.NewRegistry(cfg.RulesPath, log)

	// Detection pipeline components.
	join := stream.New(cfg.FreshnessWindow, log)
	deduplicator := dedup.New(cfg.CooldownWindow, log)
	stats := marketdata.NewStatsRegistry()
	eventManager := events.NewManager(log)

	// Notifier: email when a destination is configured, otherwise log-only.
	// The SMTP password is read from the environment at send time.
	var notifier notify.Notifier = notify.NewLogNotifier(log)
	if cfg.Notifier.AlertEmail != "" && cfg.Notifier.SMTPUser != "" {
		notifier = notify.NewSMTPNotifier(
			cfg.Notifier.SMTPHost,
			cfg.Notifier.SMTPPort,
			cfg.Notifier.SMTPUser,
			cfg.Notifier.AlertEmail,
			cfg.SMTPPassword,
			log,
		)
		log.Info().Str("to", cfg.Notifier.AlertEmail).Msg("Email notifications enabled")
	} else {
		log.Info().Msg("Email notifications not configured, alerts will be logged only")
	}

	textgenClient := textgen.NewClient(textgen.Config{
		BaseURL: cfg.TextGen.BaseURL,
		APIKey:  cfg.TextGen.APIKey,
		Model:   cfg.TextGen.Model,
		Timeout: cfg.TextGen.Timeout,
	}, log)
	if !textgenClient.Enabled() {
		log.Info().Msg("Text generation not configured, workflows will use template output")
	}

	// Alert workflow: staged enrichment with durable delivery at the end.
	sink := alerts.NewSink(alertRepo, notifier, eventManager, log)
	stages := workflow.NewStages(textgenClient, cfg.EscalationOverride, log)
	runner := workflow.NewRunner(stages, snapshots, sink, cfg.WorkflowWorkers, log)

	runnerCtx, runnerCancel := context.WithCancel(context.Background())
	defer runnerCancel()
	runner.Start(runnerCtx)

	pipeline := engine.NewPipeline(join, registry, deduplicator, runner, snapshots, stats, eventManager, log)

	// Market data source: live WebSocket feed when configured, otherwise the
	// simulated feed keeps the pipeline exercised in development.
	feedCtx, feedCancel := context.WithCancel(context.Background())
	defer feedCancel()

	ingestTick := func(tick marketdata.RawTick) {
		if _, err := pipeline.IngestTick(feedCtx, tick); err != nil {
			log.Error().Err(err).Str("symbol", tick.Symbol).Msg("Tick ingestion failed")
		}
	}

	var feedClient *marketfeed.Client
	if cfg.MarketFeedURL != "" {
		feedClient = marketfeed.New(cfg.MarketFeedURL, cfg.Watchlist, ingestTick, log)
		if err := feedClient.Start(); err != nil {
			log.Warn().Err(err).Msg("Market feed not yet connected, reconnecting in background")
		}
	} else if cfg.DevMode {
		simulator := marketdata.NewSimulator(cfg.Watchlist, cfg.MarketPollInterval, log)
		go simulator.Run(feedCtx, ingestTick)
	} else {
		log.Warn().Msg("No market feed configured, detection runs on documents and API ticks only")
	}

	// Off-site ledger backups, optional.
	var backupService *reliability.BackupService
	monitoredDBs := map[string]*database.DB{
		"alerts":    ledgerDB,
		"snapshots": snapshotDB,
	}
	if cfg.Backup.Enabled {
		s3Client, err := reliability.NewS3Client(
			cfg.Backup.Endpoint,
			cfg.Backup.AccessKey,
			cfg.Backup.SecretKey,
			cfg.Backup.Bucket,
			log,
		)
		if err != nil {
			log.Fatal().Err(err).Msg("Failed to initialize backup storage")
		}
		backupService = reliability.NewBackupService(s3Client, monitoredDBs, cfg.DataDir, log)
		log.Info().Str("bucket", cfg.Backup.Bucket).Msg("Off-site backups enabled")
	}

	maintenance := reliability.NewMaintenanceJob(
		monitoredDBs,
		deduplicator,
		snapshotRepo,
		backupService,
		90*24*time.Hour,
		cfg.Backup.RetentionDays,
		log,
	)

	scheduler := cron.New()
	if _, err := scheduler.AddFunc("*/10 * * * *", maintenance.RunHousekeeping); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule housekeeping")
	}
	if _, err := scheduler.AddFunc("30 2 * * *", maintenance.RunDaily); err != nil {
		log.Fatal().Err(err).Msg("Failed to schedule daily maintenance")
	}
	scheduler.Start()

	srv := server.New(server.Config{
		Log:       log,
		Cfg:       cfg,
		Pipeline:  pipeline,
		Join:      join,
		Alerts:    alertRepo,
		DocLog:    docLog,
		Rules:     registry,
		Portfolio: snapshots,
		Stats:     stats,
		Dedup:     deduplicator,
		Events:    eventManager,
		LedgerDB:  ledgerDB,
		Port:      cfg.Port,
		DevMode:   cfg.DevMode,
	})

	go func() {
		if err := srv.Start(); err != nil {
			log.Fatal().Err(err).Msg("Failed to start server")
		}
	}()

	log.Info().Int("port", cfg.Port).Msg("Server started successfully")

	// Block until SIGINT or SIGTERM.
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	log.Info().Msg("Shutting down...")

	// Stop intake first so no new work enters the pipeline: feed, cron, then
	// the HTTP surface. Only once all submitters are gone is the workflow
	// queue drained.
	feedCancel()
	if feedClient != nil {
		if err := feedClient.Stop(); err != nil {
			log.Error().Err(err).Msg("Error stopping market feed")
		}
	}

	cronCtx := scheduler.Stop()
	<-cronCtx.Done()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Server forced to shutdown")
	}

	runner.Stop()
	log.Info().Msg("Workflow runner drained")

	flushWAL(monitoredDBs, log)
	log.Info().Msg("Shutdown complete")
}

// flushWAL checkpoints each database so the main file is current on disk.
func flushWAL(databases map[string]*database.DB, log zerolog.Logger) {
	for name, db := range databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			log.Warn().Err(err).Str("database", name).Msg("Final WAL checkpoint failed")
		}
	}
}
