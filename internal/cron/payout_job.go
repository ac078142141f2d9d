package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/marketloop/settlements-backend/internal/payouts"
	"github.com/marketloop/settlements-backend/pkg/logger"
)

type payoutSweeper interface {
	RunSweep(ctx context.Context) (payouts.SweepResult, error)
}

// PayoutJobParams configure the payout sweep.
type PayoutJobParams struct {
	Logger   *logger.Logger
	Batcher  payoutSweeper
	Interval time.Duration
}

// NewPayoutJob builds the job that drives the payout batcher.
func NewPayoutJob(params PayoutJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Batcher == nil {
		return nil, fmt.Errorf("payout batcher required")
	}
	return &payoutJob{
		logg:     params.Logger,
		batcher:  params.Batcher,
		interval: params.Interval,
	}, nil
}

type payoutJob struct {
	logg     *logger.Logger
	batcher  payoutSweeper
	interval time.Duration
}

func (j *payoutJob) Name() string { return "payout-sweep" }

func (j *payoutJob) Interval() time.Duration { return j.interval }

func (j *payoutJob) Run(ctx context.Context) error {
	result, err := j.batcher.RunSweep(ctx)
	logCtx := j.logg.WithFields(ctx, map[string]any{
		"batches_sent":      result.BatchesSent,
		"batches_failed":    result.BatchesFailed,
		"batches_reclaimed": result.BatchesReclaimed,
		"owners_skipped":    result.OwnersSkipped,
	})
	if err != nil {
		return fmt.Errorf("payout sweep: %w", err)
	}
	j.logg.Info(logCtx, "payout sweep complete")
	return nil
}
