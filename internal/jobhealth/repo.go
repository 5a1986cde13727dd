package jobhealth

import (
	"context"
	"time"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
)

// RunReport is one finished job run as recorded by the scheduler.
type RunReport struct {
	JobName  string
	RanAt    time.Time
	Duration time.Duration
	Err      error
}

// Repository keeps the last-run snapshot per background job.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Record(ctx context.Context, report RunReport) error
	Find(ctx context.Context, jobName string) (*models.JobHealth, error)
	List(ctx context.Context) ([]models.JobHealth, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository builds a job health repository bound to the provided DB.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// Record upserts the snapshot row for one job run, bumping the success or
// failure counter and overwriting the last-run fields.
func (r *repository) Record(ctx context.Context, report RunReport) error {
	snapshot := models.JobHealth{
		JobName:        report.JobName,
		LastRunAt:      report.RanAt.UTC(),
		LastDurationMS: report.Duration.Milliseconds(),
	}
	success := 1
	failure := 0
	if report.Err != nil {
		msg := report.Err.Error()
		snapshot.LastError = &msg
		success = 0
		failure = 1
	}
	snapshot.SuccessCount = int64(success)
	snapshot.FailureCount = int64(failure)

	return r.db.WithContext(ctx).
		Clauses(clause.OnConflict{
			Columns: []clause.Column{{Name: "job_name"}},
			DoUpdates: clause.Assignments(map[string]any{
				"last_run_at":      snapshot.LastRunAt,
				"last_duration_ms": snapshot.LastDurationMS,
				"last_error":       snapshot.LastError,
				"success_count":    gorm.Expr("success_count + ?", success),
				"failure_count":    gorm.Expr("failure_count + ?", failure),
				"updated_at":       time.Now().UTC(),
			}),
		}).
		Create(&snapshot).Error
}

func (r *repository) Find(ctx context.Context, jobName string) (*models.JobHealth, error) {
	var snapshot models.JobHealth
	err := r.db.WithContext(ctx).
		Where("job_name = ?", jobName).
		First(&snapshot).Error
	if err != nil {
		return nil, err
	}
	return &snapshot, nil
}

func (r *repository) List(ctx context.Context) ([]models.JobHealth, error) {
	var rows []models.JobHealth
	err := r.db.WithContext(ctx).
		Order("job_name ASC").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	return rows, nil
}
