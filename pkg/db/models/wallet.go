package models

import (
	"time"

	"github.com/google/uuid"
)

// Wallet is the denormalized per-owner balance view. It is never the
// source of truth: every column is a fold over that owner's ledger
// entries and the row can be discarded and rebuilt at any time.
type Wallet struct {
	OwnerID        uuid.UUID `gorm:"column:owner_id;type:uuid;primaryKey"`
	TotalCents     int64     `gorm:"column:total_cents;not null;default:0"`
	AvailableCents int64     `gorm:"column:available_cents;not null;default:0"`
	PendingCents   int64     `gorm:"column:pending_cents;not null;default:0"`
	PaidOutCents   int64     `gorm:"column:paid_out_cents;not null;default:0"`
	UpdatedAt      time.Time `gorm:"column:updated_at;autoUpdateTime"`
}
