package cron

import (
	"context"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"

	"github.com/angelmondragon/cardhold-backend/pkg/db/models"
	"github.com/angelmondragon/cardhold-backend/pkg/logger"
)

const (
	reauthorizeJobName     = "deposit-reauthorize"
	defaultReauthBatchSize = 100
	defaultReauthThreshold = 144 * time.Hour
)

// Reauthorizer renews the hold on a single deposit.
type Reauthorizer interface {
	Reauthorize(ctx context.Context, id uuid.UUID) (*models.Deposit, error)
}

// ReauthorizableSource lists authorized deposits whose hold is near expiry.
type ReauthorizableSource interface {
	FindReauthorizable(ctx context.Context, cutoff time.Time, limit int) ([]models.Deposit, error)
}

// ReauthorizeJobParams configure the reauthorization sweep.
type ReauthorizeJobParams struct {
	Logger  *logger.Logger
	Source  ReauthorizableSource
	Service Reauthorizer
	// Threshold is the authorization age past which a deposit is renewed.
	Threshold time.Duration
	BatchSize int
	Now       func() time.Time
}

// ReauthorizeJob sweeps authorized deposits with aging holds and renews each
// one. A failure on one deposit never stops the rest of the batch; failures
// are collected and reported together.
type ReauthorizeJob struct {
	logg      *logger.Logger
	source    ReauthorizableSource
	service   Reauthorizer
	threshold time.Duration
	batchSize int
	now       func() time.Time
}

// NewReauthorizeJob builds the reauthorization sweep job.
func NewReauthorizeJob(params ReauthorizeJobParams) *ReauthorizeJob {
	threshold := params.Threshold
	if threshold <= 0 {
		threshold = defaultReauthThreshold
	}
	batchSize := params.BatchSize
	if batchSize <= 0 {
		batchSize = defaultReauthBatchSize
	}
	now := params.Now
	if now == nil {
		now = func() time.Time { return time.Now().UTC() }
	}
	return &ReauthorizeJob{
		logg:      params.Logger,
		source:    params.Source,
		service:   params.Service,
		threshold: threshold,
		batchSize: batchSize,
		now:       now,
	}
}

func (j *ReauthorizeJob) Name() string { return reauthorizeJobName }

// Run renews every deposit in the current batch.
func (j *ReauthorizeJob) Run(ctx context.Context) error {
	cutoff := j.now().Add(-j.threshold)
	deposits, err := j.source.FindReauthorizable(ctx, cutoff, j.batchSize)
	if err != nil {
		return err
	}
	if len(deposits) == 0 {
		j.logg.Info(ctx, "no deposits due for reauthorization")
		return nil
	}

	j.logg.Info(j.logg.WithField(ctx, "count", len(deposits)), "renewing deposit holds")

	var errs error
	renewed := 0
	for _, deposit := range deposits {
		depositCtx := j.logg.WithDepositID(ctx, deposit.ID.String())
		if _, err := j.service.Reauthorize(depositCtx, deposit.ID); err != nil {
			j.logg.Error(depositCtx, "reauthorization failed", err)
			errs = multierr.Append(errs, err)
			continue
		}
		renewed++
	}

	j.logg.Info(j.logg.WithField(ctx, "renewed", renewed), "reauthorization sweep done")
	return errs
}
