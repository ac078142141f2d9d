package payouts

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/multierr"
	"golang.org/x/sync/errgroup"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/internal/accounts"
	"github.com/marketloop/settlements-backend/internal/ledger"
	"github.com/marketloop/settlements-backend/pkg/config"
	"github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/db/models"
	dbtypes "github.com/marketloop/settlements-backend/pkg/db/types"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/errors"
	"github.com/marketloop/settlements-backend/pkg/logger"
	"github.com/marketloop/settlements-backend/pkg/outbox"
	"github.com/marketloop/settlements-backend/pkg/outbox/payloads"
)

// SweepResult summarizes one payout sweep.
type SweepResult struct {
	BatchesSent      int
	BatchesFailed    int
	BatchesReclaimed int
	OwnersSkipped    int
}

// Claims left in created state this long belong to a sweep that died
// before finalizing. The reclaim cutoff never drops below twice the send
// timeout, so in-flight rail calls are never pulled out from under a live
// sweep.
const staleClaimAge = time.Hour

// Batcher bundles each owner's available balance into a payout batch and
// hands it to the external rail.
type Batcher struct {
	db       *db.Client
	ledger   ledger.Repository
	accounts accounts.Repository
	batches  Repository
	outbox   *outbox.Service
	wallets  ledger.WalletRefresher
	provider Provider
	cfg      config.PayoutConfig
	currency string
	logg     *logger.Logger
}

// Params collects the dependencies for NewBatcher.
type Params struct {
	DB       *db.Client
	Ledger   ledger.Repository
	Accounts accounts.Repository
	Batches  Repository
	Outbox   *outbox.Service
	Wallets  ledger.WalletRefresher
	Provider Provider
	Config   config.PayoutConfig
	Currency string
	Logger   *logger.Logger
}

// NewBatcher wires a payout batcher with the provided dependencies.
func NewBatcher(p Params) (*Batcher, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if p.Accounts == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if p.Batches == nil {
		return nil, fmt.Errorf("payout batch repository required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if p.Wallets == nil {
		return nil, fmt.Errorf("wallet refresher required")
	}
	if p.Provider == nil {
		return nil, fmt.Errorf("payout provider required")
	}
	if p.Config.MinPayoutCents <= 0 {
		return nil, fmt.Errorf("minimum payout must be positive")
	}
	if p.Config.MaxParallel <= 0 {
		p.Config.MaxParallel = 1
	}
	currency := p.Currency
	if currency == "" {
		currency = string(enums.CurrencyUSD)
	}
	return &Batcher{
		db:       p.DB,
		ledger:   p.Ledger,
		accounts: p.Accounts,
		batches:  p.Batches,
		outbox:   p.Outbox,
		wallets:  p.Wallets,
		provider: p.Provider,
		cfg:      p.Config,
		currency: currency,
		logg:     p.Logger,
	}, nil
}

// RunSweep pays out every owner whose available balance meets the
// threshold. Owners are independent: one owner's rail failure is recorded
// on their batch and never blocks the others.
func (b *Batcher) RunSweep(ctx context.Context) (SweepResult, error) {
	reclaimed, err := b.reclaimAbandoned(ctx)
	if err != nil {
		return SweepResult{}, err
	}

	totals, err := b.ledger.AvailableTotalsByOwner(ctx, b.cfg.MinPayoutCents)
	if err != nil {
		return SweepResult{BatchesReclaimed: reclaimed}, err
	}
	if len(totals) == 0 {
		return SweepResult{BatchesReclaimed: reclaimed}, nil
	}

	ownerIDs := make([]uuid.UUID, 0, len(totals))
	for _, total := range totals {
		ownerIDs = append(ownerIDs, total.OwnerID)
	}
	accountsByID, err := b.accounts.FindByIDs(ctx, ownerIDs)
	if err != nil {
		return SweepResult{BatchesReclaimed: reclaimed}, err
	}

	var (
		mtx    sync.Mutex
		result = SweepResult{BatchesReclaimed: reclaimed}
		errs   []error
	)

	g, groupCtx := errgroup.WithContext(ctx)
	g.SetLimit(b.cfg.MaxParallel)

	for _, total := range totals {
		account, ok := accountsByID[total.OwnerID]
		if !ok || account.PayoutDestination == nil || *account.PayoutDestination == "" {
			mtx.Lock()
			result.OwnersSkipped++
			mtx.Unlock()
			b.logSkip(ctx, total.OwnerID)
			continue
		}

		destination := *account.PayoutDestination
		ownerID := total.OwnerID
		g.Go(func() error {
			sent, err := b.payOwner(groupCtx, ownerID, destination)
			mtx.Lock()
			defer mtx.Unlock()
			switch {
			case err != nil:
				errs = append(errs, fmt.Errorf("owner %s: %w", ownerID, err))
			case sent:
				result.BatchesSent++
			default:
				result.BatchesFailed++
			}
			return nil
		})
	}

	_ = g.Wait()
	return result, multierr.Combine(errs...)
}

// payOwner runs the three phases for one owner: claim entries in a
// transaction, call the rail outside any transaction, then finalize. The
// bool reports whether the rail accepted the batch.
func (b *Batcher) payOwner(ctx context.Context, ownerID uuid.UUID, destination string) (bool, error) {
	batch, err := b.claim(ctx, ownerID)
	if err != nil {
		return false, err
	}
	if batch == nil {
		return false, nil
	}

	sendCtx := ctx
	if b.cfg.SendTimeout > 0 {
		var cancel context.CancelFunc
		sendCtx, cancel = context.WithTimeout(ctx, b.cfg.SendTimeout)
		defer cancel()
	}

	receipt, sendErr := b.provider.Send(sendCtx, PayoutRequest{
		BatchID:     batch.ID,
		PayeeID:     ownerID,
		Destination: destination,
		AmountCents: batch.TotalCents,
		Currency:    b.currency,
	})
	if sendErr != nil {
		if err := b.finalizeFailure(ctx, batch, sendErr); err != nil {
			return false, err
		}
		return false, nil
	}

	if err := b.finalizeSuccess(ctx, batch, receipt); err != nil {
		return false, err
	}
	return true, nil
}

// reclaimAbandoned fails batches that a crashed sweep left in created
// state and returns their entries to the available pool, so the current
// sweep can pick the money back up.
func (b *Batcher) reclaimAbandoned(ctx context.Context) (int, error) {
	age := staleClaimAge
	if 2*b.cfg.SendTimeout > age {
		age = 2 * b.cfg.SendTimeout
	}
	stale, err := b.batches.ListStaleCreated(ctx, time.Now().UTC().Add(-age))
	if err != nil {
		return 0, err
	}

	reclaimed := 0
	for i := range stale {
		batch := stale[i]
		if err := b.finalizeFailure(ctx, &batch, fmt.Errorf("abandoned before the send completed")); err != nil {
			return reclaimed, err
		}
		reclaimed++
	}
	return reclaimed, nil
}

// claim atomically moves the owner's available entries into a new batch.
// The conditional flip aborts the whole claim when any entry was grabbed
// concurrently, so no entry can land in two batches. Returns nil when the
// balance dropped below the threshold since the sweep listed this owner.
func (b *Batcher) claim(ctx context.Context, ownerID uuid.UUID) (*models.PayoutBatch, error) {
	var batch *models.PayoutBatch
	err := b.db.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := b.ledger.WithTx(tx)

		entries, err := ledgerRepo.ListAvailableByOwner(ctx, ownerID)
		if err != nil {
			return err
		}

		var total int64
		ids := make(dbtypes.UUIDArray, 0, len(entries))
		for _, entry := range entries {
			total += entry.AmountCents
			ids = append(ids, entry.ID)
		}
		if total < b.cfg.MinPayoutCents {
			return nil
		}

		n, err := ledgerRepo.UpdateStatus(ctx, ids, enums.EntryStatusAvailable, enums.EntryStatusBatching)
		if err != nil {
			return err
		}
		if n != int64(len(ids)) {
			return errors.New(errors.CodeConflict, "entries claimed by a concurrent sweep")
		}

		row := &models.PayoutBatch{
			ID:         uuid.New(),
			PayeeID:    ownerID,
			TotalCents: total,
			EntryIDs:   ids,
			Status:     enums.BatchStatusCreated,
		}
		if err := b.batches.WithTx(tx).Create(ctx, row); err != nil {
			return err
		}
		if err := b.wallets.Recompute(ctx, tx, ownerID); err != nil {
			return err
		}
		batch = row
		return nil
	})
	if err != nil {
		return nil, err
	}
	return batch, nil
}

func (b *Batcher) finalizeSuccess(ctx context.Context, batch *models.PayoutBatch, receipt PayoutReceipt) error {
	return b.db.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := b.ledger.WithTx(tx)

		n, err := ledgerRepo.UpdateStatus(ctx, batch.EntryIDs, enums.EntryStatusBatching, enums.EntryStatusPaidOut)
		if err != nil {
			return err
		}
		if n != int64(len(batch.EntryIDs)) {
			return errors.New(errors.CodeStateConflict, "batch entries changed status mid-flight")
		}
		if err := b.batches.WithTx(tx).MarkSent(ctx, batch.ID, receipt.Reference); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutSent,
			AggregateType: enums.AggregatePayoutBatch,
			AggregateID:   batch.ID,
			Version:       1,
			Data: payloads.PayoutSentEvent{
				BatchID:    batch.ID,
				PayeeID:    batch.PayeeID,
				TotalCents: batch.TotalCents,
				EntryCount: len(batch.EntryIDs),
				PayoutRef:  receipt.Reference,
				SentAt:     time.Now().UTC(),
			},
		}
		if err := b.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return err
		}
		if err := b.wallets.Recompute(ctx, tx, batch.PayeeID); err != nil {
			return err
		}

		if b.logg != nil {
			logCtx := b.logg.WithFields(b.logg.WithBatchID(ctx, batch.ID.String()), map[string]any{
				"total_cents": batch.TotalCents,
				"entry_count": len(batch.EntryIDs),
				"payout_ref":  receipt.Reference,
			})
			b.logg.Info(logCtx, "payout batch sent")
		}
		return nil
	})
}

// finalizeFailure returns the claimed entries to the available pool so the
// next sweep retries them.
func (b *Batcher) finalizeFailure(ctx context.Context, batch *models.PayoutBatch, sendErr error) error {
	return b.db.WithTx(ctx, func(tx *gorm.DB) error {
		ledgerRepo := b.ledger.WithTx(tx)

		n, err := ledgerRepo.UpdateStatus(ctx, batch.EntryIDs, enums.EntryStatusBatching, enums.EntryStatusAvailable)
		if err != nil {
			return err
		}
		if n != int64(len(batch.EntryIDs)) {
			return errors.New(errors.CodeStateConflict, "batch entries changed status mid-flight")
		}
		if err := b.batches.WithTx(tx).MarkFailed(ctx, batch.ID, sendErr.Error()); err != nil {
			return err
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPayoutFailed,
			AggregateType: enums.AggregatePayoutBatch,
			AggregateID:   batch.ID,
			Version:       1,
			Data: payloads.PayoutFailedEvent{
				BatchID:    batch.ID,
				PayeeID:    batch.PayeeID,
				TotalCents: batch.TotalCents,
				Reason:     sendErr.Error(),
				FailedAt:   time.Now().UTC(),
			},
		}
		if err := b.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return err
		}
		if err := b.wallets.Recompute(ctx, tx, batch.PayeeID); err != nil {
			return err
		}

		if b.logg != nil {
			logCtx := b.logg.WithFields(b.logg.WithBatchID(ctx, batch.ID.String()), map[string]any{
				"total_cents": batch.TotalCents,
				"error":       sendErr.Error(),
			})
			b.logg.Warn(logCtx, "payout batch failed, entries returned to available")
		}
		return nil
	})
}

func (b *Batcher) logSkip(ctx context.Context, ownerID uuid.UUID) {
	if b.logg == nil {
		return
	}
	logCtx := b.logg.WithOwnerID(ctx, ownerID.String())
	b.logg.Warn(logCtx, "owner has no payout destination, skipping")
}
