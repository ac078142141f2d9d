package payments

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/internal/accounts"
	"github.com/marketloop/settlements-backend/internal/attribution"
	"github.com/marketloop/settlements-backend/internal/commission"
	"github.com/marketloop/settlements-backend/internal/ledger"
	"github.com/marketloop/settlements-backend/internal/orders"
	"github.com/marketloop/settlements-backend/pkg/config"
	"github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/errors"
	"github.com/marketloop/settlements-backend/pkg/logger"
	"github.com/marketloop/settlements-backend/pkg/outbox"
	"github.com/marketloop/settlements-backend/pkg/outbox/payloads"
)

// PaymentNotice is the distilled payment-rail notification: which payment
// it concerns and when the rail says it happened. Notifications are
// delivered at least once and may arrive concurrently.
type PaymentNotice struct {
	PaymentRef string
	OccurredAt time.Time
}

// Processor turns payment notifications into ledger entries.
type Processor interface {
	ProcessPaymentSuccess(ctx context.Context, notice PaymentNotice) error
	ProcessPaymentFailure(ctx context.Context, notice PaymentNotice) error
}

// Params collects the dependencies for NewProcessor.
type Params struct {
	DB          *db.Client
	Orders      orders.Repository
	Ledger      ledger.Repository
	Attribution attribution.Repository
	Accounts    accounts.Repository
	Outbox      *outbox.Service
	Wallets     ledger.WalletRefresher
	Settlement  config.SettlementConfig
	Logger      *logger.Logger
}

type processor struct {
	db           *db.Client
	orders       orders.Repository
	ledger       ledger.Repository
	attribution  attribution.Repository
	accounts     accounts.Repository
	outbox       *outbox.Service
	wallets      ledger.WalletRefresher
	cfg          config.SettlementConfig
	platformRate decimal.Decimal
	referrerRate decimal.Decimal
	logg         *logger.Logger
}

// NewProcessor validates the commission schedule once and wires a processor.
func NewProcessor(p Params) (Processor, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Orders == nil {
		return nil, fmt.Errorf("orders repository required")
	}
	if p.Ledger == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if p.Attribution == nil {
		return nil, fmt.Errorf("attribution repository required")
	}
	if p.Accounts == nil {
		return nil, fmt.Errorf("accounts repository required")
	}
	if p.Outbox == nil {
		return nil, fmt.Errorf("outbox service required")
	}
	if p.Wallets == nil {
		return nil, fmt.Errorf("wallet refresher required")
	}

	platformRate, referrerRate, err := p.Settlement.Rates()
	if err != nil {
		return nil, errors.Wrap(errors.CodeInvalidRate, err, "invalid commission schedule")
	}

	return &processor{
		db:           p.DB,
		orders:       p.Orders,
		ledger:       p.Ledger,
		attribution:  p.Attribution,
		accounts:     p.Accounts,
		outbox:       p.Outbox,
		wallets:      p.Wallets,
		cfg:          p.Settlement,
		platformRate: platformRate,
		referrerRate: referrerRate,
		logg:         p.Logger,
	}, nil
}

// ProcessPaymentSuccess settles one paid order. The order row is locked for
// the duration of the transaction, so concurrent redeliveries of the same
// notification serialize; whichever arrives second sees the order already
// paid and returns without writing anything.
func (p *processor) ProcessPaymentSuccess(ctx context.Context, notice PaymentNotice) error {
	if notice.PaymentRef == "" {
		return errors.New(errors.CodeValidation, "payment ref is required")
	}
	paidAt := notice.OccurredAt
	if paidAt.IsZero() {
		paidAt = time.Now().UTC()
	}

	return p.db.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := p.orders.WithTx(tx)
		ledgerRepo := p.ledger.WithTx(tx)
		attributionRepo := p.attribution.WithTx(tx)
		accountsRepo := p.accounts.WithTx(tx)

		order, err := ordersRepo.FindByPaymentRefForUpdate(ctx, notice.PaymentRef)
		if err != nil {
			if errors.HasCode(err, errors.CodeNotFound) {
				// notification for an order this system never created
				if p.logg != nil {
					logCtx := p.logg.WithField(ctx, "payment_ref", notice.PaymentRef)
					p.logg.Warn(logCtx, "payment notification for unknown order ignored")
				}
				return nil
			}
			return err
		}

		switch order.PaymentState {
		case enums.PaymentStatePaid:
			// duplicate notification, the first delivery won
			p.logDuplicate(ctx, order)
			return nil
		case enums.PaymentStateFailed:
			// a success after a recorded failure needs an operator, not an
			// automatic settle
			if p.logg != nil {
				logCtx := p.logg.WithField(p.logg.WithOrderID(ctx, order.ID.String()), "payment_ref", order.PaymentRef)
				p.logg.Warn(logCtx, "payment success for failed order ignored")
			}
			return nil
		}

		stamp, err := attributionRepo.FindByPayer(ctx, order.PayerID)
		if err != nil {
			return err
		}
		var referrerID *uuid.UUID
		if stamp != nil {
			id := stamp.ReferrerID
			referrerID = &id
		}

		split, err := commission.Compute(order.GrossCents, p.platformRate, p.referrerRate, referrerID != nil)
		if err != nil {
			return err
		}

		entries, err := p.buildEntries(ctx, accountsRepo, order, split, referrerID, paidAt)
		if err != nil {
			return err
		}
		if err := ledgerRepo.CreateAll(ctx, entries); err != nil {
			return err
		}

		if err := ordersRepo.MarkPaid(ctx, order.ID, referrerID, paidAt); err != nil {
			return err
		}

		if referrerID != nil && split.ReferrerCents > 0 {
			if _, err := attributionRepo.MarkLeadConverted(ctx, order.PayerID, paidAt); err != nil {
				return err
			}
		}

		event := outbox.DomainEvent{
			EventType:     enums.EventPaymentSettled,
			AggregateType: enums.AggregateOrder,
			AggregateID:   order.ID,
			Version:       1,
			OccurredAt:    paidAt,
			Data: payloads.PaymentSettledEvent{
				OrderID:       order.ID,
				PayerID:       order.PayerID,
				ProviderID:    order.ProviderID,
				ReferrerID:    referrerID,
				GrossCents:    order.GrossCents,
				ProviderCents: split.ProviderCents,
				ReferrerCents: split.ReferrerCents,
				PlatformCents: split.PlatformCents,
				Currency:      string(order.Currency),
				PaymentRef:    order.PaymentRef,
				SettledAt:     paidAt,
			},
		}
		if err := p.outbox.EmitIfNotExists(ctx, tx, event); err != nil {
			return err
		}

		if err := p.wallets.Recompute(ctx, tx, order.PayerID); err != nil {
			return err
		}
		if err := p.wallets.Recompute(ctx, tx, order.ProviderID); err != nil {
			return err
		}
		if referrerID != nil {
			if err := p.wallets.Recompute(ctx, tx, *referrerID); err != nil {
				return err
			}
		}

		if p.logg != nil {
			fields := map[string]any{
				"payment_ref":    order.PaymentRef,
				"gross_cents":    order.GrossCents,
				"provider_cents": split.ProviderCents,
				"referrer_cents": split.ReferrerCents,
				"platform_cents": split.PlatformCents,
			}
			logCtx := p.logg.WithFields(p.logg.WithOrderID(ctx, order.ID.String()), fields)
			p.logg.Info(logCtx, "payment settled")
		}
		return nil
	})
}

// buildEntries assembles the order's full entry set. The debit records the
// payer's charge as a negative amount; only the platform fee has no owner.
// Provider and referrer shares start clearing with a hold window picked by
// each party's own trust tier.
func (p *processor) buildEntries(ctx context.Context, accountsRepo accounts.Repository, order *models.Order, split commission.Split, referrerID *uuid.UUID, paidAt time.Time) ([]*models.LedgerEntry, error) {
	provider, err := accountsRepo.FindByID(ctx, order.ProviderID)
	if err != nil {
		return nil, err
	}
	providerAvailableAt := paidAt.Add(p.cfg.ClearingWindowFor(provider.TrustTier))

	payerID := order.PayerID
	providerID := order.ProviderID
	entries := []*models.LedgerEntry{
		{
			ID:          uuid.New(),
			OwnerID:     &payerID,
			OrderID:     order.ID,
			Kind:        enums.EntryKindDebit,
			AmountCents: -order.GrossCents,
			Status:      enums.EntryStatusAvailable,
		},
		{
			ID:          uuid.New(),
			OwnerID:     &providerID,
			OrderID:     order.ID,
			Kind:        enums.EntryKindProviderPayout,
			AmountCents: split.ProviderCents,
			Status:      enums.EntryStatusClearing,
			AvailableAt: &providerAvailableAt,
		},
	}

	if referrerID != nil && split.ReferrerCents > 0 {
		referrer, err := accountsRepo.FindByID(ctx, *referrerID)
		if err != nil {
			return nil, err
		}
		referrerAvailableAt := paidAt.Add(p.cfg.ClearingWindowFor(referrer.TrustTier))
		owner := *referrerID
		entries = append(entries, &models.LedgerEntry{
			ID:          uuid.New(),
			OwnerID:     &owner,
			OrderID:     order.ID,
			Kind:        enums.EntryKindReferralCommission,
			AmountCents: split.ReferrerCents,
			Status:      enums.EntryStatusClearing,
			AvailableAt: &referrerAvailableAt,
		})
	}

	entries = append(entries, &models.LedgerEntry{
		ID:          uuid.New(),
		OrderID:     order.ID,
		Kind:        enums.EntryKindPlatformFee,
		AmountCents: split.PlatformCents,
		Status:      enums.EntryStatusAvailable,
	})
	return entries, nil
}

// ProcessPaymentFailure marks a pending order failed. Failure after a
// successful settlement is a rail inconsistency and is rejected.
func (p *processor) ProcessPaymentFailure(ctx context.Context, notice PaymentNotice) error {
	if notice.PaymentRef == "" {
		return errors.New(errors.CodeValidation, "payment ref is required")
	}

	return p.db.WithTx(ctx, func(tx *gorm.DB) error {
		ordersRepo := p.orders.WithTx(tx)

		order, err := ordersRepo.FindByPaymentRefForUpdate(ctx, notice.PaymentRef)
		if err != nil {
			if errors.HasCode(err, errors.CodeNotFound) {
				if p.logg != nil {
					logCtx := p.logg.WithField(ctx, "payment_ref", notice.PaymentRef)
					p.logg.Warn(logCtx, "payment notification for unknown order ignored")
				}
				return nil
			}
			return err
		}

		switch order.PaymentState {
		case enums.PaymentStateFailed:
			return nil
		case enums.PaymentStatePaid:
			return errors.New(errors.CodeStateConflict, "order already settled")
		}

		return ordersRepo.MarkFailed(ctx, order.ID)
	})
}

func (p *processor) logDuplicate(ctx context.Context, order *models.Order) {
	if p.logg == nil {
		return
	}
	logCtx := p.logg.WithFields(p.logg.WithOrderID(ctx, order.ID.String()), map[string]any{
		"payment_ref": order.PaymentRef,
	})
	p.logg.Info(logCtx, "duplicate payment notification ignored")
}
