package payloads

import (
	"time"

	"github.com/google/uuid"
)

// PaymentSettledEvent is emitted once per order when its payment notification
// has been turned into ledger entries.
type PaymentSettledEvent struct {
	OrderID       uuid.UUID  `json:"order_id"`
	PayerID       uuid.UUID  `json:"payer_id"`
	ProviderID    uuid.UUID  `json:"provider_id"`
	ReferrerID    *uuid.UUID `json:"referrer_id,omitempty"`
	GrossCents    int64      `json:"gross_cents"`
	ProviderCents int64      `json:"provider_cents"`
	ReferrerCents int64      `json:"referrer_cents"`
	PlatformCents int64      `json:"platform_cents"`
	Currency      string     `json:"currency"`
	PaymentRef    string     `json:"payment_ref"`
	SettledAt     time.Time  `json:"settled_at"`
}

// PayoutSentEvent reports a successful payout batch.
type PayoutSentEvent struct {
	BatchID    uuid.UUID `json:"batch_id"`
	PayeeID    uuid.UUID `json:"payee_id"`
	TotalCents int64     `json:"total_cents"`
	EntryCount int       `json:"entry_count"`
	PayoutRef  string    `json:"payout_ref"`
	SentAt     time.Time `json:"sent_at"`
}

// PayoutFailedEvent reports a batch whose send was rejected; its entries
// have already been returned to the available pool.
type PayoutFailedEvent struct {
	BatchID    uuid.UUID `json:"batch_id"`
	PayeeID    uuid.UUID `json:"payee_id"`
	TotalCents int64     `json:"total_cents"`
	Reason     string    `json:"reason"`
	FailedAt   time.Time `json:"failed_at"`
}

// LeadExpiredEvent is emitted when a referral lead ages out unconverted.
type LeadExpiredEvent struct {
	LeadID     uuid.UUID `json:"lead_id"`
	ReferrerID uuid.UUID `json:"referrer_id"`
	TargetRef  string    `json:"target_ref"`
	ExpiredAt  time.Time `json:"expired_at"`
}
