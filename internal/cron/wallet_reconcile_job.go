package cron

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/logger"
)

type walletVerifier interface {
	Verify(ctx context.Context, db *gorm.DB, ownerID uuid.UUID) (bool, error)
	Recompute(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) error
}

type ownerLister interface {
	OwnerIDsWithEntries(ctx context.Context) ([]uuid.UUID, error)
}

// WalletReconcileJobParams configure the wallet drift sweep.
type WalletReconcileJobParams struct {
	Logger   *logger.Logger
	DB       *db.Client
	Entries  ownerLister
	Wallets  walletVerifier
	Interval time.Duration
}

// NewWalletReconcileJob builds the job that verifies every wallet against
// its ledger entries and rebuilds any that drifted.
func NewWalletReconcileJob(params WalletReconcileJobParams) (Job, error) {
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
		return nil, fmt.Errorf("wallet projector required")
	}
	return &walletReconcileJob{
		logg:     params.Logger,
		db:       params.DB,
		entries:  params.Entries,
		wallets:  params.Wallets,
		interval: params.Interval,
	}, nil
}

type walletReconcileJob struct {
	logg     *logger.Logger
	db       *db.Client
	entries  ownerLister
	wallets  walletVerifier
	interval time.Duration
}

func (j *walletReconcileJob) Name() string { return "wallet-reconcile" }

func (j *walletReconcileJob) Interval() time.Duration { return j.interval }

func (j *walletReconcileJob) Run(ctx context.Context) error {
	owners, err := j.entries.OwnerIDsWithEntries(ctx)
	if err != nil {
		return fmt.Errorf("list owners: %w", err)
	}

	drifted := 0
	var errs []error
	for _, owner := range owners {
		ok, err := j.wallets.Verify(ctx, j.db.DB(), owner)
		if err != nil {
			errs = append(errs, fmt.Errorf("verify wallet %s: %w", owner, err))
			continue
		}
		if ok {
			continue
		}
		drifted++
		logCtx := j.logg.WithOwnerID(ctx, owner.String())
		j.logg.Warn(logCtx, "wallet drifted from ledger, rebuilding")
		err = j.db.WithTx(ctx, func(tx *gorm.DB) error {
			return j.wallets.Recompute(ctx, tx, owner)
		})
		if err != nil {
			errs = append(errs, fmt.Errorf("rebuild wallet %s: %w", owner, err))
		}
	}

	logCtx := j.logg.WithFields(ctx, map[string]any{
		"owners":  len(owners),
		"drifted": drifted,
	})
	j.logg.Info(logCtx, "wallet reconcile sweep complete")
	return multierr.Combine(errs...)
}
