package ledger

import (
	"context"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/pkg/db"
	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/errors"
	"github.com/marketloop/settlements-backend/pkg/logger"
)

// WalletRefresher rebuilds one owner's wallet projection inside the
// caller's transaction.
type WalletRefresher interface {
	Recompute(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) error
}

// Service defines ledger operations above plain row access.
type Service interface {
	EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error)
	RecordReversal(ctx context.Context, orderID uuid.UUID, reason string) error
	RecordDispute(ctx context.Context, orderID uuid.UUID, reason string) error
}

// Params collects the dependencies for NewService.
type Params struct {
	DB      *db.Client
	Repo    Repository
	Wallets WalletRefresher
	Logger  *logger.Logger
}

type service struct {
	db      *db.Client
	repo    Repository
	wallets WalletRefresher
	logg    *logger.Logger
}

// NewService wires a ledger service with the provided dependencies.
func NewService(p Params) (Service, error) {
	if p.DB == nil {
		return nil, fmt.Errorf("db client required")
	}
	if p.Repo == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	if p.Wallets == nil {
		return nil, fmt.Errorf("wallet refresher required")
	}
	return &service{db: p.DB, repo: p.Repo, wallets: p.Wallets, logg: p.Logger}, nil
}

func (s *service) EntriesForOrder(ctx context.Context, orderID uuid.UUID) ([]models.LedgerEntry, error) {
	if orderID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "order id is required")
	}
	return s.repo.ListByOrderID(ctx, orderID)
}

// RecordReversal unwinds a settled order after a voluntary refund.
// Entries that never left the ledger are flipped to refunded; amounts that
// were already paid out get a negative clawback entry instead, since that
// money has left the building. The original entries themselves are never
// rewritten. Running it twice is a no-op.
func (s *service) RecordReversal(ctx context.Context, orderID uuid.UUID, reason string) error {
	return s.reverse(ctx, orderID, reason, enums.EntryStatusRefunded)
}

// RecordDispute unwinds a settled order after a chargeback. Same mechanics
// as RecordReversal, but the frozen entries carry the disputed status so a
// resolved dispute can be told apart from a plain refund.
func (s *service) RecordDispute(ctx context.Context, orderID uuid.UUID, reason string) error {
	return s.reverse(ctx, orderID, reason, enums.EntryStatusDisputed)
}

func (s *service) reverse(ctx context.Context, orderID uuid.UUID, reason string, terminal enums.EntryStatus) error {
	if orderID == uuid.Nil {
		return errors.New(errors.CodeValidation, "order id is required")
	}

	return s.db.WithTx(ctx, func(tx *gorm.DB) error {
		repo := s.repo.WithTx(tx)

		entries, err := repo.ListByOrderID(ctx, orderID)
		if err != nil {
			return err
		}
		if len(entries) == 0 {
			return errors.New(errors.CodeNotFound, "no ledger entries for order")
		}

		for _, entry := range entries {
			if entry.Kind == enums.EntryKindRefund {
				// already reversed
				return nil
			}
		}

		owners := map[uuid.UUID]struct{}{}
		var clawbacks []*models.LedgerEntry
		for _, entry := range entries {
			if entry.OwnerID == nil {
				continue
			}
			owners[*entry.OwnerID] = struct{}{}

			switch entry.Status {
			case enums.EntryStatusBatching:
				return errors.New(errors.CodeStateConflict, "entry is claimed by an in-flight payout batch")
			case enums.EntryStatusClearing, enums.EntryStatusAvailable:
				n, err := repo.UpdateStatus(ctx, []uuid.UUID{entry.ID}, entry.Status, terminal)
				if err != nil {
					return err
				}
				if n != 1 {
					return errors.New(errors.CodeStateConflict, "entry changed status during reversal")
				}
			case enums.EntryStatusPaidOut:
				owner := *entry.OwnerID
				clawbacks = append(clawbacks, &models.LedgerEntry{
					ID:          uuid.New(),
					OwnerID:     &owner,
					OrderID:     orderID,
					Kind:        enums.EntryKindRefund,
					AmountCents: -entry.AmountCents,
					Status:      enums.EntryStatusAvailable,
				})
			}
		}

		if err := repo.CreateAll(ctx, clawbacks); err != nil {
			return err
		}

		for owner := range owners {
			if err := s.wallets.Recompute(ctx, tx, owner); err != nil {
				return err
			}
		}

		if s.logg != nil {
			fields := map[string]any{"reason": reason, "clawbacks": len(clawbacks)}
			logCtx := s.logg.WithFields(s.logg.WithOrderID(ctx, orderID.String()), fields)
			s.logg.Info(logCtx, "order reversed")
		}
		return nil
	})
}
