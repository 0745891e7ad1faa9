// Package maintenance runs the recurring housekeeping jobs: expired cache
// cleanup, history retention trimming, WAL checkpoints, weekly VACUUM and the
// optional cloud backup.
package maintenance

import (
	"context"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog"

	"marketpulse/internal/database"
)

// Cron schedules. Minute-precision crontab syntax.
const (
	dailyCleanupSpec = "0 2 * * *" // 02:00 every day
	dailyBackupSpec  = "30 2 * * *"
	weeklyVacuumSpec = "0 3 * * 0" // 03:00 Sunday
)

// CacheCleaner removes expired rows from the cache tables.
type CacheCleaner interface {
	DeleteAllExpired() (map[string]int64, error)
}

// HistoryCleaner trims history rows past the retention window.
type HistoryCleaner interface {
	Cleanup(retention time.Duration) (int64, error)
}

// Backupper creates and rotates cloud backups. Nil disables the backup job.
type Backupper interface {
	CreateAndUpload(ctx context.Context) error
	Rotate(ctx context.Context, retentionDays int) error
}

// Jobs owns the cron runner and its registered maintenance work.
type Jobs struct {
	cron             *cron.Cron
	cache            CacheCleaner
	history          HistoryCleaner
	historyRetention time.Duration
	databases        []*database.DB
	backup           Backupper
	backupRetention  int // days
	log              zerolog.Logger
}

// New builds the maintenance jobs. backup may be nil.
func New(
	cache CacheCleaner,
	historyRepo HistoryCleaner,
	historyRetention time.Duration,
	databases []*database.DB,
	backup Backupper,
	backupRetentionDays int,
	log zerolog.Logger,
) *Jobs {
	return &Jobs{
		cron:             cron.New(),
		cache:            cache,
		history:          historyRepo,
		historyRetention: historyRetention,
		databases:        databases,
		backup:           backup,
		backupRetention:  backupRetentionDays,
		log:              log.With().Str("component", "maintenance").Logger(),
	}
}

// Start registers the cron entries and begins scheduling.
func (j *Jobs) Start() error {
	if _, err := j.cron.AddFunc(dailyCleanupSpec, j.runDailyCleanup); err != nil {
		return err
	}
	if _, err := j.cron.AddFunc(weeklyVacuumSpec, j.runWeeklyVacuum); err != nil {
		return err
	}
	if j.backup != nil {
		if _, err := j.cron.AddFunc(dailyBackupSpec, j.runBackup); err != nil {
			return err
		}
	}

	j.cron.Start()
	j.log.Info().Bool("backup", j.backup != nil).Msg("Maintenance jobs scheduled")
	return nil
}

// Stop halts the cron runner and waits for a running job to finish.
func (j *Jobs) Stop() {
	ctx := j.cron.Stop()
	<-ctx.Done()
	j.log.Info().Msg("Maintenance jobs stopped")
}

// runDailyCleanup purges expired cache rows, trims history and checkpoints
// each database's WAL. Failures are logged per step, never fatal.
func (j *Jobs) runDailyCleanup() {
	j.log.Info().Msg("Starting daily cleanup")
	start := time.Now()

	if j.cache != nil {
		deleted, err := j.cache.DeleteAllExpired()
		if err != nil {
			j.log.Error().Err(err).Msg("Cache cleanup failed")
		} else {
			total := int64(0)
			for _, n := range deleted {
				total += n
			}
			j.log.Info().Int64("rows", total).Msg("Expired cache entries removed")
		}
	}

	if j.history != nil {
		if _, err := j.history.Cleanup(j.historyRetention); err != nil {
			j.log.Error().Err(err).Msg("History cleanup failed")
		}
	}

	for _, db := range j.databases {
		if _, err := db.Conn().Exec("PRAGMA wal_checkpoint(TRUNCATE)"); err != nil {
			j.log.Warn().Err(err).Str("database", db.Name()).Msg("WAL checkpoint failed")
		}
	}

	j.log.Info().Dur("took", time.Since(start)).Msg("Daily cleanup completed")
}

// runWeeklyVacuum compacts each database.
func (j *Jobs) runWeeklyVacuum() {
	j.log.Info().Msg("Starting weekly vacuum")

	for _, db := range j.databases {
		sizeBefore := dbSizeMB(db)
		if _, err := db.Conn().Exec("VACUUM"); err != nil {
			j.log.Error().Err(err).Str("database", db.Name()).Msg("VACUUM failed")
			continue
		}
		j.log.Info().
			Str("database", db.Name()).
			Float64("size_before_mb", sizeBefore).
			Float64("size_after_mb", dbSizeMB(db)).
			Msg("VACUUM completed")
	}
}

// runBackup uploads a fresh backup and rotates old ones.
func (j *Jobs) runBackup() {
	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Minute)
	defer cancel()

	if err := j.backup.CreateAndUpload(ctx); err != nil {
		j.log.Error().Err(err).Msg("Backup failed")
		return
	}
	if err := j.backup.Rotate(ctx, j.backupRetention); err != nil {
		j.log.Error().Err(err).Msg("Backup rotation failed")
	}
}

func dbSizeMB(db *database.DB) float64 {
	var pageCount, pageSize int
	_ = db.Conn().QueryRow("PRAGMA page_count").Scan(&pageCount)
	_ = db.Conn().QueryRow("PRAGMA page_size").Scan(&pageSize)
	return float64(pageCount*pageSize) / 1024 / 1024
}
