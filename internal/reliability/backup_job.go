package reliability

import (
	"context"
	"time"

	"github.com/rs/zerolog"
)

// BackupJob runs the offsite backup cycle on a schedule: create and upload
// an archive, then rotate old ones.
type BackupJob struct {
	service *OffsiteBackupService
	timeout time.Duration
	log     zerolog.Logger
}

func NewBackupJob(service *OffsiteBackupService, log zerolog.Logger) *BackupJob {
	return &BackupJob{
		service: service,
		timeout: 15 * time.Minute,
		log:     log.With().Str("job", "offsite_backup").Logger(),
	}
}

func (j *BackupJob) Name() string {
	return "offsite_backup"
}

func (j *BackupJob) Run() error {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	if err := j.service.CreateAndUploadBackup(ctx); err != nil {
		return err
	}

	if err := j.service.RotateOldBackups(ctx); err != nil {
		// The backup itself succeeded; rotation can catch up next cycle
		j.log.Warn().Err(err).Msg("Backup rotation failed")
	}

	return nil
}
