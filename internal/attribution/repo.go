package attribution

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
)

// Repository manages attribution stamps and referral leads.
type Repository interface {
	WithTx(tx *gorm.DB) Repository

	FindByPayer(ctx context.Context, payerID uuid.UUID) (*models.Attribution, error)
	Stamp(ctx context.Context, stamp *models.Attribution) error

	FindLeadByTargetRef(ctx context.Context, targetRef string) (*models.ReferralLead, error)
	CreateLead(ctx context.Context, lead *models.ReferralLead) error
	MarkLeadSignedUp(ctx context.Context, targetRef string, payerID uuid.UUID) (int64, error)
	MarkLeadConverted(ctx context.Context, payerID uuid.UUID, at time.Time) (int64, error)
	ListStaleLeads(ctx context.Context, before time.Time, limit int) ([]models.ReferralLead, error)
	MarkLeadsExpired(ctx context.Context, ids []uuid.UUID) (int64, error)
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an attribution repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

// FindByPayer returns the payer's stamp, or nil when they have none.
func (r *repository) FindByPayer(ctx context.Context, payerID uuid.UUID) (*models.Attribution, error) {
	var stamp models.Attribution
	err := r.db.WithContext(ctx).Where("payer_id = ?", payerID).First(&stamp).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &stamp, nil
}

func (r *repository) Stamp(ctx context.Context, stamp *models.Attribution) error {
	return r.db.WithContext(ctx).Create(stamp).Error
}

func (r *repository) FindLeadByTargetRef(ctx context.Context, targetRef string) (*models.ReferralLead, error) {
	var lead models.ReferralLead
	err := r.db.WithContext(ctx).Where("target_ref = ?", targetRef).First(&lead).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, nil
		}
		return nil, err
	}
	return &lead, nil
}

func (r *repository) CreateLead(ctx context.Context, lead *models.ReferralLead) error {
	return r.db.WithContext(ctx).Create(lead).Error
}

func (r *repository) MarkLeadSignedUp(ctx context.Context, targetRef string, payerID uuid.UUID) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ReferralLead{}).
		Where("target_ref = ? AND stage = ?", targetRef, enums.LeadStageReferred).
		Updates(map[string]any{
			"stage":    enums.LeadStageSignedUp,
			"payer_id": payerID,
		})
	return res.RowsAffected, res.Error
}

// MarkLeadConverted advances the payer's lead to converted. The stage guard
// means repeated settlements for the same payer convert at most one lead,
// exactly once.
func (r *repository) MarkLeadConverted(ctx context.Context, payerID uuid.UUID, at time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.ReferralLead{}).
		Where("payer_id = ? AND stage IN ?", payerID, []enums.LeadStage{enums.LeadStageReferred, enums.LeadStageSignedUp}).
		Updates(map[string]any{
			"stage":        enums.LeadStageConverted,
			"converted_at": at,
		})
	return res.RowsAffected, res.Error
}

func (r *repository) ListStaleLeads(ctx context.Context, before time.Time, limit int) ([]models.ReferralLead, error) {
	var leads []models.ReferralLead
	q := r.db.WithContext(ctx).
		Where("stage = ? AND created_at < ?", enums.LeadStageReferred, before).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&leads).Error; err != nil {
		return nil, err
	}
	return leads, nil
}

func (r *repository) MarkLeadsExpired(ctx context.Context, ids []uuid.UUID) (int64, error) {
	if len(ids) == 0 {
		return 0, nil
	}
	res := r.db.WithContext(ctx).Model(&models.ReferralLead{}).
		Where("id IN ? AND stage = ?", ids, enums.LeadStageReferred).
		Update("stage", enums.LeadStageExpired)
	return res.RowsAffected, res.Error
}
