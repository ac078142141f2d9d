package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/settlements-backend/pkg/enums"
)

// LedgerEntry is one immutable signed-amount line in the ledger. Owner is
// nil for platform-revenue entries. Nothing on a persisted entry is ever
// updated in place except Status and AvailableAt; reversals append new
// entries instead of touching old ones.
type LedgerEntry struct {
	ID          uuid.UUID         `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	OwnerID     *uuid.UUID        `gorm:"column:owner_id;type:uuid;index:ix_ledger_entries_owner"`
	OrderID     uuid.UUID         `gorm:"column:order_id;type:uuid;not null;index:ix_ledger_entries_order"`
	Kind        enums.EntryKind   `gorm:"column:kind;type:entry_kind_enum;not null"`
	AmountCents int64             `gorm:"column:amount_cents;not null"`
	Status      enums.EntryStatus `gorm:"column:status;type:entry_status_enum;not null;default:'clearing'"`
	AvailableAt *time.Time        `gorm:"column:available_at"`
	CreatedAt   time.Time         `gorm:"column:created_at;autoCreateTime"`
}
