package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/marketloop/settlements-backend/pkg/logger"
)

const leadExpiryBatchSize = 200

type leadExpirer interface {
	ExpireStaleLeads(ctx context.Context, ttl time.Duration, limit int) (int, error)
}

// LeadExpiryJobParams configure the referral lead expiry sweep.
type LeadExpiryJobParams struct {
	Logger      *logger.Logger
	Attribution leadExpirer
	LeadTTL     time.Duration
	Interval    time.Duration
}

// NewLeadExpiryJob builds the job that ages out unconverted referral leads.
func NewLeadExpiryJob(params LeadExpiryJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.Attribution == nil {
		return nil, fmt.Errorf("attribution service required")
	}
	if params.LeadTTL <= 0 {
		return nil, fmt.Errorf("lead ttl must be positive")
	}
	return &leadExpiryJob{
		logg:        params.Logger,
		attribution: params.Attribution,
		ttl:         params.LeadTTL,
		interval:    params.Interval,
	}, nil
}

type leadExpiryJob struct {
	logg        *logger.Logger
	attribution leadExpirer
	ttl         time.Duration
	interval    time.Duration
}

func (j *leadExpiryJob) Name() string { return "lead-expiry" }

func (j *leadExpiryJob) Interval() time.Duration { return j.interval }

func (j *leadExpiryJob) Run(ctx context.Context) error {
	expired := 0
	for {
		n, err := j.attribution.ExpireStaleLeads(ctx, j.ttl, leadExpiryBatchSize)
		if err != nil {
			return fmt.Errorf("expire leads: %w", err)
		}
		expired += n
		if n < leadExpiryBatchSize {
			break
		}
	}
	logCtx := j.logg.WithField(ctx, "expired", expired)
	j.logg.Info(logCtx, "lead expiry sweep complete")
	return nil
}
