package payouts

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/errors"
)

// Repository manages persistence for payout batches.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, batch *models.PayoutBatch) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error)
	ListStaleCreated(ctx context.Context, before time.Time) ([]models.PayoutBatch, error)
	MarkSent(ctx context.Context, id uuid.UUID, payoutRef string) error
	MarkFailed(ctx context.Context, id uuid.UUID, reason string) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns a payout batch repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, batch *models.PayoutBatch) error {
	return r.db.WithContext(ctx).Create(batch).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.PayoutBatch, error) {
	var batch models.PayoutBatch
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&batch).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "payout batch not found")
		}
		return nil, err
	}
	return &batch, nil
}

// ListStaleCreated returns batches still in created state from before the
// cutoff. A finalize transaction flips a batch to sent or failed in one
// step, so an old created batch means the sweep died mid-send.
func (r *repository) ListStaleCreated(ctx context.Context, before time.Time) ([]models.PayoutBatch, error) {
	var batches []models.PayoutBatch
	err := r.db.WithContext(ctx).
		Where("status = ? AND created_at < ?", enums.BatchStatusCreated, before).
		Order("created_at ASC").
		Find(&batches).Error
	if err != nil {
		return nil, err
	}
	return batches, nil
}

func (r *repository) MarkSent(ctx context.Context, id uuid.UUID, payoutRef string) error {
	res := r.db.WithContext(ctx).Model(&models.PayoutBatch{}).
		Where("id = ? AND status = ?", id, enums.BatchStatusCreated).
		Updates(map[string]any{
			"status":     enums.BatchStatusSent,
			"payout_ref": payoutRef,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.CodeStateConflict, "batch already finalized")
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID, reason string) error {
	res := r.db.WithContext(ctx).Model(&models.PayoutBatch{}).
		Where("id = ? AND status = ?", id, enums.BatchStatusCreated).
		Updates(map[string]any{
			"status":     enums.BatchStatusFailed,
			"last_error": reason,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.CodeStateConflict, "batch already finalized")
	}
	return nil
}
