package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/internal/ledger"
	"github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/logger"
)

const clearingBatchSize = 500

// ClearingJobParams configure the clearing sweep.
type ClearingJobParams struct {
	Logger   *logger.Logger
	DB       *db.Client
	Entries  ledger.Repository
	Wallets  ledger.WalletRefresher
	Interval time.Duration
}

// NewClearingJob builds the job that releases matured clearing entries.
func NewClearingJob(params ClearingJobParams) (Job, error) {
	if params.Logger == nil {
		return nil, fmt.Errorf("logger required")
	}
	if params.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if params.Entries == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if params.Wallets == nil {
		return nil, fmt.Errorf("wallet refresher required")
	}
	return &clearingJob{
		logg:     params.Logger,
		db:       params.DB,
		entries:  params.Entries,
		wallets:  params.Wallets,
		interval: params.Interval,
		now:      time.Now,
	}, nil
}

type clearingJob struct {
	logg     *logger.Logger
	db       *db.Client
	entries  ledger.Repository
	wallets  ledger.WalletRefresher
	interval time.Duration
	now      func() time.Time
}

func (j *clearingJob) Name() string { return "clearing-release" }

func (j *clearingJob) Interval() time.Duration { return j.interval }

// Run flips clearing entries whose hold window has passed to available,
// batch by batch, and refreshes each touched owner's wallet in the same
// transaction as the flip.
func (j *clearingJob) Run(ctx context.Context) error {
	now := j.now().UTC()
	released := 0

	for {
		mature, err := j.entries.ListMatureClearing(ctx, now, clearingBatchSize)
		if err != nil {
			return fmt.Errorf("list matured entries: %w", err)
		}
		if len(mature) == 0 {
			break
		}

		ids := make([]uuid.UUID, 0, len(mature))
		owners := make(map[uuid.UUID]struct{})
		for _, entry := range mature {
			ids = append(ids, entry.ID)
			if entry.OwnerID != nil {
				owners[*entry.OwnerID] = struct{}{}
			}
		}

		var flipped int64
		err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
			repo := j.entries.WithTx(tx)
			n, err := repo.UpdateStatus(ctx, ids, enums.EntryStatusClearing, enums.EntryStatusAvailable)
			if err != nil {
				return err
			}
			flipped = n
			for owner := range owners {
				if err := j.wallets.Recompute(ctx, tx, owner); err != nil {
					return err
				}
			}
			return nil
		})
		if err != nil {
			return fmt.Errorf("release batch: %w", err)
		}
		released += int(flipped)

		if len(mature) < clearingBatchSize {
			break
		}
	}

	logCtx := j.logg.WithField(ctx, "released", released)
	j.logg.Info(logCtx, "clearing sweep complete")
	return nil
}
