package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/settlements-backend/pkg/enums"
)

// Order represents one paid marketplace transaction. PaymentRef is the
// external payment reference and doubles as the idempotency key for
// payment notifications: it is unique, and the order transitions
// pending -> paid at most once.
type Order struct {
	ID           uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayerID      uuid.UUID          `gorm:"column:payer_id;type:uuid;not null"`
	ProviderID   uuid.UUID          `gorm:"column:provider_id;type:uuid;not null"`
	ReferrerID   *uuid.UUID         `gorm:"column:referrer_id;type:uuid"`
	GrossCents   int64              `gorm:"column:gross_cents;not null"`
	Currency     enums.Currency     `gorm:"column:currency;type:text;not null;default:'USD'"`
	PaymentRef   string             `gorm:"column:payment_ref;not null;uniqueIndex:ux_orders_payment_ref"`
	PaymentState enums.PaymentState `gorm:"column:payment_state;type:payment_state_enum;not null;default:'pending'"`
	PaidAt       *time.Time         `gorm:"column:paid_at"`
	CreatedAt    time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt    time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
