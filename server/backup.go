package server

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Daskott/haven/server/gstorage"
	"github.com/Daskott/haven/server/models"
	"github.com/Daskott/haven/shared"
	"github.com/Daskott/haven/utils"
	"github.com/go-co-op/gocron"
)

const BACKUP_TIMEOUT = 50 * time.Second

type objectStore interface {
	UploadFile(ctx context.Context, bucket, object, filePath string) error
	DownloadFile(ctx context.Context, bucket, object, destFileName string) error
}

// sqliteBackup keeps a copy of the local db in a storage bucket.
type sqliteBackup struct {
	store     objectStore
	config    shared.StorageConfig
	dbRootDir string
	scheduler *gocron.Scheduler

	// checkpoint flushes pending writes into the db file before it's copied
	checkpoint func() error
}

func newSqliteBackup(store objectStore, config shared.StorageConfig, dbRootDir string, scheduler *gocron.Scheduler) *sqliteBackup {
	return &sqliteBackup{
		store:      store,
		config:     config,
		dbRootDir:  dbRootDir,
		scheduler:  scheduler,
		checkpoint: models.Checkpoint,
	}
}

func (b *sqliteBackup) objectName() string {
	return path.Join(b.config.Prefix, models.DB_NAME)
}

// Restore downloads the last backup when there is no local db yet.
func (b *sqliteBackup) Restore(ctx context.Context) error {
	dbFilePath, err := models.DbFilePath(b.dbRootDir)
	if err != nil {
		return err
	}

	exists, err := utils.FileExist(dbFilePath)
	if err != nil {
		return err
	}

	if exists {
		logg.Infof("Using existing sqlite db at %v", dbFilePath)
		return nil
	}

	ctx, cancel := context.WithTimeout(ctx, BACKUP_TIMEOUT)
	defer cancel()

	err = b.store.DownloadFile(ctx, b.config.Bucket, b.objectName(), dbFilePath)
	if errors.Is(err, gstorage.ErrObjectNotExist) {
		logg.Infof("No sqlite backup found in bucket %v, starting with an empty db", b.config.Bucket)
		return nil
	}

	return err
}

// Run uploads a snapshot of the db.
func (b *sqliteBackup) Run(ctx context.Context) error {
	if err := b.checkpoint(); err != nil {
		return err
	}

	dbFilePath, err := models.DbFilePath(b.dbRootDir)
	if err != nil {
		return err
	}

	// Upload a copy so writes during the upload can't tear the file
	snapshot := filepath.Join(os.TempDir(), "haven-backup-"+models.DB_NAME)
	if err = utils.CopyFile(dbFilePath, snapshot); err != nil {
		return err
	}
	defer os.Remove(snapshot)

	ctx, cancel := context.WithTimeout(ctx, BACKUP_TIMEOUT)
	defer cancel()

	return b.store.UploadFile(ctx, b.config.Bucket, b.objectName(), snapshot)
}

// Schedule runs the backup on the configured cron schedule.
func (b *sqliteBackup) Schedule() error {
	_, err := b.scheduler.Cron(b.config.SqliteBackupSchedule).Tag("backupSqliteDb").Do(func() {
		if err := b.Run(context.Background()); err != nil {
			logg.Errorf("sqlite backup failed: %v", err)
		}
	})
	if err != nil {
		return err
	}

	b.scheduler.StartAsync()
	return nil
}

func (b *sqliteBackup) Stop() {
	b.scheduler.Stop()
}
