package wallet

import (
	"context"
	stdErrors "errors"
	"fmt"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketloop/settlements-backend/internal/ledger"
	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/errors"
)

// Projector maintains the wallets table as a deterministic fold over the
// ledger. Pending covers clearing amounts plus anything claimed by an
// in-flight payout batch; total is always pending + available + paid out.
type Projector struct {
	entries ledger.Repository
}

// NewProjector returns a projector reading from the given ledger repository.
func NewProjector(entries ledger.Repository) (*Projector, error) {
	if entries == nil {
		return nil, fmt.Errorf("ledger repository required")
	}
	return &Projector{entries: entries}, nil
}

// Recompute rebuilds one owner's wallet row inside the caller's transaction.
func (p *Projector) Recompute(ctx context.Context, tx *gorm.DB, ownerID uuid.UUID) error {
	if tx == nil {
		return errors.New(errors.CodeValidation, "transaction required")
	}
	if ownerID == uuid.Nil {
		return errors.New(errors.CodeValidation, "owner id is required")
	}

	sums, err := p.entries.WithTx(tx).SumsByOwner(ctx, ownerID)
	if err != nil {
		return err
	}

	row := models.Wallet{
		OwnerID:        ownerID,
		PendingCents:   sums.ClearingCents + sums.BatchingCents,
		AvailableCents: sums.AvailableCents,
		PaidOutCents:   sums.PaidOutCents,
	}
	row.TotalCents = row.PendingCents + row.AvailableCents + row.PaidOutCents

	return tx.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "owner_id"}},
		DoUpdates: clause.AssignmentColumns([]string{
			"total_cents", "available_cents", "pending_cents", "paid_out_cents", "updated_at",
		}),
	}).Create(&row).Error
}

// Balance reads an owner's wallet row. Owners with no settled activity get
// a zero wallet rather than an error.
func (p *Projector) Balance(ctx context.Context, db *gorm.DB, ownerID uuid.UUID) (*models.Wallet, error) {
	if ownerID == uuid.Nil {
		return nil, errors.New(errors.CodeValidation, "owner id is required")
	}
	var row models.Wallet
	err := db.WithContext(ctx).Where("owner_id = ?", ownerID).First(&row).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return &models.Wallet{OwnerID: ownerID}, nil
		}
		return nil, err
	}
	return &row, nil
}

// Verify recomputes the fold and reports whether the stored row matches.
func (p *Projector) Verify(ctx context.Context, db *gorm.DB, ownerID uuid.UUID) (bool, error) {
	stored, err := p.Balance(ctx, db, ownerID)
	if err != nil {
		return false, err
	}

	sums, err := p.entries.SumsByOwner(ctx, ownerID)
	if err != nil {
		return false, err
	}

	pending := sums.ClearingCents + sums.BatchingCents
	ok := stored.PendingCents == pending &&
		stored.AvailableCents == sums.AvailableCents &&
		stored.PaidOutCents == sums.PaidOutCents &&
		stored.TotalCents == pending+sums.AvailableCents+sums.PaidOutCents
	return ok, nil
}
