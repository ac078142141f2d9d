package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/settlements-backend/pkg/enums"
)

// Attribution stamps a payer with their referrer-of-record for life. The
// unique index on payer_id enforces first-writer-wins: once stamped the
// row is never overwritten, whatever inputs later signups carry.
type Attribution struct {
	ID         uuid.UUID               `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	PayerID    uuid.UUID               `gorm:"column:payer_id;type:uuid;not null;uniqueIndex:ux_attributions_payer"`
	ReferrerID uuid.UUID               `gorm:"column:referrer_id;type:uuid;not null"`
	Source     enums.AttributionSource `gorm:"column:source;type:attribution_source_enum;not null"`
	CreatedAt  time.Time               `gorm:"column:created_at;autoCreateTime"`
}
