package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/wealthsentinel/sentinel/internal/database"
	"github.com/wealthsentinel/sentinel/internal/dedup"
	"github.com/wealthsentinel/sentinel/internal/portfolio"
)

// MaintenanceJob bundles the recurring housekeeping the monitor needs:
// WAL checkpoints, dedup cooldown sweeps, snapshot pruning, and the
// off-site backup cycle. Scheduled via cron from main.
type MaintenanceJob struct {
	databases map[string]*database.DB
	dedup     *dedup.Deduplicator
	snapshots *portfolio.Repository
	backup    *BackupService

	snapshotRetention time.Duration
	backupRetention   int
	log               zerolog.Logger
}

func NewMaintenanceJob(
	databases map[string]*database.DB,
	dd *dedup.Deduplicator,
	snapshots *portfolio.Repository,
	backup *BackupService,
	snapshotRetention time.Duration,
	backupRetentionDays int,
	log zerolog.Logger,
) *MaintenanceJob {
	return &MaintenanceJob{
		databases:         databases,
		dedup:             dd,
		snapshots:         snapshots,
		backup:            backup,
		snapshotRetention: snapshotRetention,
		backupRetention:   backupRetentionDays,
		log:               log.With().Str("service", "maintenance").Logger(),
	}
}

// RunHousekeeping performs the frequent cycle: cooldown sweep and WAL
// checkpoints. Cheap enough to run every few minutes.
func (j *MaintenanceJob) RunHousekeeping() {
	removed := j.dedup.Sweep()
	if removed > 0 {
		j.log.Debug().Int("removed", removed).Msg("Swept expired cooldowns")
	}

	for name, db := range j.databases {
		if err := db.WALCheckpoint("TRUNCATE"); err != nil {
			j.log.Warn().Err(err).Str("database", name).Msg("WAL checkpoint failed")
		}
	}
}

// RunDaily performs the daily cycle: snapshot pruning, health checks, and
// the off-site backup with rotation.
func (j *MaintenanceJob) RunDaily() {
	j.log.Info().Msg("Starting daily maintenance")
	start := time.Now()

	if j.snapshots != nil && j.snapshotRetention > 0 {
		cutoff := time.Now().Add(-j.snapshotRetention)
		if removed, err := j.snapshots.Prune(cutoff); err != nil {
			j.log.Warn().Err(err).Msg("Snapshot pruning failed")
		} else if removed > 0 {
			j.log.Info().Int64("removed", removed).Msg("Pruned old portfolio snapshots")
		}
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	for name, db := range j.databases {
		if err := db.HealthCheck(ctx); err != nil {
			j.log.Error().Err(err).Str("database", name).Msg("Database integrity check failed")
		}
	}

	if j.backup != nil {
		if err := j.backup.CreateAndUpload(ctx); err != nil {
			j.log.Error().Err(err).Msg("Off-site backup failed")
		} else if err := j.backup.RotateOldBackups(ctx, j.backupRetention); err != nil {
			j.log.Warn().Err(err).Msg("Backup rotation failed")
		}
	}

	j.log.Info().Dur("duration_ms", time.Since(start)).Msg("Daily maintenance completed")
}
