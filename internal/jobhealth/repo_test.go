package jobhealth

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

func setupJobHealthTestDB(t *testing.T) *gorm.DB {
	t.Helper()

	conn, err := gorm.Open(sqlite.Open("file::memory:?cache=shared"), &gorm.Config{})
	require.NoError(t, err)

	schema := `
CREATE TABLE IF NOT EXISTS job_healths (
  job_name TEXT PRIMARY KEY,
  last_run_at DATETIME NOT NULL,
  last_duration_ms INTEGER NOT NULL DEFAULT 0,
  success_count INTEGER NOT NULL DEFAULT 0,
  failure_count INTEGER NOT NULL DEFAULT 0,
  last_error TEXT,
  updated_at DATETIME
);`
	require.NoError(t, conn.Exec(schema).Error)
	require.NoError(t, conn.Exec("DELETE FROM job_healths").Error)
	return conn
}

func TestRecordAccumulatesCounters(t *testing.T) {
	conn := setupJobHealthTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	first := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.Record(ctx, RunReport{
		JobName:  "deposit-reauthorize",
		RanAt:    first,
		Duration: 120 * time.Millisecond,
	}))
	require.NoError(t, repo.Record(ctx, RunReport{
		JobName:  "deposit-reauthorize",
		RanAt:    first.Add(time.Hour),
		Duration: 80 * time.Millisecond,
		Err:      errors.New("processor unavailable"),
	}))

	snapshot, err := repo.Find(ctx, "deposit-reauthorize")
	require.NoError(t, err)
	assert.EqualValues(t, 1, snapshot.SuccessCount)
	assert.EqualValues(t, 1, snapshot.FailureCount)
	assert.EqualValues(t, 80, snapshot.LastDurationMS)
	require.NotNil(t, snapshot.LastError)
	assert.Equal(t, "processor unavailable", *snapshot.LastError)
	assert.WithinDuration(t, first.Add(time.Hour), snapshot.LastRunAt, time.Second)
}

func TestRecordCleanRunClearsLastError(t *testing.T) {
	conn := setupJobHealthTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Record(ctx, RunReport{
		JobName:  "webhook-retry",
		RanAt:    now,
		Duration: 40 * time.Millisecond,
		Err:      errors.New("boom"),
	}))
	require.NoError(t, repo.Record(ctx, RunReport{
		JobName:  "webhook-retry",
		RanAt:    now.Add(time.Minute),
		Duration: 35 * time.Millisecond,
	}))

	snapshot, err := repo.Find(ctx, "webhook-retry")
	require.NoError(t, err)
	assert.EqualValues(t, 1, snapshot.SuccessCount)
	assert.EqualValues(t, 1, snapshot.FailureCount)
	// A clean run clears the recorded error.
	assert.Nil(t, snapshot.LastError)
}

func TestListOrdersByJobName(t *testing.T) {
	conn := setupJobHealthTestDB(t)
	repo := NewRepository(conn)
	ctx := context.Background()

	now := time.Now().UTC()
	require.NoError(t, repo.Record(ctx, RunReport{JobName: "webhook-retry", RanAt: now}))
	require.NoError(t, repo.Record(ctx, RunReport{JobName: "deposit-reauthorize", RanAt: now}))

	rows, err := repo.List(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, "deposit-reauthorize", rows[0].JobName)
	assert.Equal(t, "webhook-retry", rows[1].JobName)
}
