package accounts

import (
	"context"
	stdErrors "errors"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/errors"
)

// Repository exposes the account reads the settlement engine needs.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error)
	FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Account, error)
	FindActiveByReferralCode(ctx context.Context, code string) (*models.Account, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an account repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Account, error) {
	var account models.Account
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&account).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "account not found")
		}
		return nil, err
	}
	return &account, nil
}

func (r *repository) FindByIDs(ctx context.Context, ids []uuid.UUID) (map[uuid.UUID]models.Account, error) {
	out := make(map[uuid.UUID]models.Account, len(ids))
	if len(ids) == 0 {
		return out, nil
	}
	var rows []models.Account
	if err := r.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, err
	}
	for _, row := range rows {
		out[row.ID] = row
	}
	return out, nil
}

// FindActiveByReferralCode resolves a referral code to its owner. Inactive
// owners are treated as not found so they stop earning attribution.
func (r *repository) FindActiveByReferralCode(ctx context.Context, code string) (*models.Account, error) {
	if code == "" {
		return nil, errors.New(errors.CodeValidation, "referral code is required")
	}
	var account models.Account
	err := r.db.WithContext(ctx).
		Where("referral_code = ? AND active = ?", code, true).
		First(&account).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "referral code not recognized")
		}
		return nil, err
	}
	return &account, nil
}
