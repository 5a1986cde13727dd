package models

import "time"

// JobHealth is the last-run snapshot of a background job, read by the
// monitoring endpoint. It is overwritten on every run, never queued.
type JobHealth struct {
	JobName        string    `gorm:"column:job_name;primaryKey"`
	LastRunAt      time.Time `gorm:"column:last_run_at;not null"`
	LastDurationMS int64     `gorm:"column:last_duration_ms;not null;default:0"`
	SuccessCount   int64     `gorm:"column:success_count;not null;default:0"`
	FailureCount   int64     `gorm:"column:failure_count;not null;default:0"`
	LastError      *string   `gorm:"column:last_error"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
