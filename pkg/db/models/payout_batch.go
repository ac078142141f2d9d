package models

import (
	"time"

	"github.com/google/uuid"

	dbtypes "github.com/marketloop/settlements-backend/pkg/db/types"
	"github.com/marketloop/settlements-backend/pkg/enums"
)

// PayoutBatch groups the available entries paid to one payee in one sweep.
// EntryIDs records exactly which ledger entries the batch settled;
// PayoutRef is the external rail's reference once the send succeeds.
type PayoutBatch struct {
	ID         uuid.UUID          `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayeeID    uuid.UUID          `gorm:"column:payee_id;type:uuid;not null;index:ix_payout_batches_payee"`
	TotalCents int64              `gorm:"column:total_cents;not null"`
	EntryIDs   dbtypes.UUIDArray  `gorm:"column:entry_ids;type:uuid[];not null"`
	PayoutRef  *string            `gorm:"column:payout_ref"`
	Status     enums.BatchStatus  `gorm:"column:status;type:batch_status_enum;not null;default:'created'"`
	LastError  *string            `gorm:"column:last_error"`
	CreatedAt  time.Time          `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt  time.Time          `gorm:"column:updated_at;autoUpdateTime"`
}
