package orders

import (
	"context"
	stdErrors "errors"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/marketloop/settlements-backend/pkg/db/models"
	"github.com/marketloop/settlements-backend/pkg/enums"
	"github.com/marketloop/settlements-backend/pkg/errors"
)

// Repository manages persistence for orders.
type Repository interface {
	WithTx(tx *gorm.DB) Repository
	Create(ctx context.Context, order *models.Order) error
	FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error)
	FindByPaymentRefForUpdate(ctx context.Context, paymentRef string) (*models.Order, error)
	MarkPaid(ctx context.Context, id uuid.UUID, referrerID *uuid.UUID, paidAt time.Time) error
	MarkFailed(ctx context.Context, id uuid.UUID) error
}

type repository struct {
	db *gorm.DB
}

// NewRepository returns an order repository bound to the provided database.
func NewRepository(db *gorm.DB) Repository {
	return &repository{db: db}
}

func (r *repository) WithTx(tx *gorm.DB) Repository {
	if tx == nil {
		return r
	}
	return &repository{db: tx}
}

func (r *repository) Create(ctx context.Context, order *models.Order) error {
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *repository) FindByID(ctx context.Context, id uuid.UUID) (*models.Order, error) {
	var order models.Order
	err := r.db.WithContext(ctx).Where("id = ?", id).First(&order).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "order not found")
		}
		return nil, err
	}
	return &order, nil
}

// FindByPaymentRefForUpdate loads the order for a payment reference and
// takes a row lock so concurrent notifications for the same payment
// serialize. Must run inside a transaction. SQLite has no row locks; its
// single writer gives the same serialization in tests.
func (r *repository) FindByPaymentRefForUpdate(ctx context.Context, paymentRef string) (*models.Order, error) {
	if paymentRef == "" {
		return nil, errors.New(errors.CodeValidation, "payment ref is required")
	}

	q := r.db.WithContext(ctx)
	if q.Dialector.Name() == "postgres" {
		q = q.Clauses(clause.Locking{Strength: "UPDATE"})
	}

	var order models.Order
	err := q.Where("payment_ref = ?", paymentRef).First(&order).Error
	if err != nil {
		if stdErrors.Is(err, gorm.ErrRecordNotFound) {
			return nil, errors.New(errors.CodeNotFound, "order not found for payment ref")
		}
		return nil, err
	}
	return &order, nil
}

// MarkPaid transitions a pending order to paid and freezes its
// referrer-of-record. The conditional guard makes the flip happen at most
// once.
func (r *repository) MarkPaid(ctx context.Context, id uuid.UUID, referrerID *uuid.UUID, paidAt time.Time) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_state = ?", id, enums.PaymentStatePending).
		Updates(map[string]any{
			"payment_state": enums.PaymentStatePaid,
			"referrer_id":   referrerID,
			"paid_at":       paidAt,
		})
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.CodeStateConflict, "order is not pending")
	}
	return nil
}

func (r *repository) MarkFailed(ctx context.Context, id uuid.UUID) error {
	res := r.db.WithContext(ctx).Model(&models.Order{}).
		Where("id = ? AND payment_state = ?", id, enums.PaymentStatePending).
		Update("payment_state", enums.PaymentStateFailed)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return errors.New(errors.CodeStateConflict, "order is not pending")
	}
	return nil
}
