package models

import (
	"time"

	"github.com/google/uuid"

	"github.com/marketloop/settlements-backend/pkg/enums"
)

// Account is the slice of a party's profile the settlement engine needs:
// the referral code it can be attributed by, whether it may still earn
// referral credit, its trust tier (clearing window selector) and its
// payout destination. Profile management proper lives elsewhere.
type Account struct {
	ID                uuid.UUID       `gorm:"column:id;type:uuid;default:gen_random_uuid();primaryKey"`
	DisplayName       string          `gorm:"column:display_name;not null"`
	ReferralCode      *string         `gorm:"column:referral_code;uniqueIndex:ux_accounts_referral_code"`
	Active            bool            `gorm:"column:active;not null;default:true"`
	TrustTier         enums.TrustTier `gorm:"column:trust_tier;type:trust_tier_enum;not null;default:'new'"`
	PayoutDestination *string         `gorm:"column:payout_destination"`
	CreatedAt         time.Time       `gorm:"column:created_at;autoCreateTime"`
	UpdatedAt         time.Time       `gorm:"column:updated_at;autoUpdateTime"`
}
