package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/settlements-backend/pkg/enums"
)

// ReferralLead tracks one referred prospect through the conversion funnel
// (referred -> signed_up -> converted, or expired). TargetRef is the
// cookie token handed out with the referral link.
type ReferralLead struct {
	ID          uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	ReferrerID  uuid.UUID       `gorm:"column:referrer_id;type:uuid;not null;index:ix_referral_leads_referrer"`
	TargetRef   string          `gorm:"column:target_ref;not null;uniqueIndex:ux_referral_leads_target_ref"`
	PayerID     *uuid.UUID      `gorm:"column:payer_id;type:uuid"`
	Stage       enums.LeadStage `gorm:"column:stage;type:lead_stage_enum;not null;default:'referred'"`
	ConvertedAt *time.Time      `gorm:"column:converted_at"`
	CreatedAt   time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt   time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
