package enums

import "fmt"

// EntryKind maps to the entry_kind_enum enum in Postgres.
type EntryKind string

const (
	EntryKindDebit              EntryKind = "debit"
	EntryKindProviderPayout     EntryKind = "provider_payout"
	EntryKindReferralCommission EntryKind = "referral_commission"
	EntryKindPlatformFee        EntryKind = "platform_fee"
	EntryKindRefund             EntryKind = "refund"
)

var validEntryKinds = []EntryKind{
	EntryKindDebit,
	EntryKindProviderPayout,
	EntryKindReferralCommission,
	EntryKindPlatformFee,
	EntryKindRefund,
}

// IsValid reports whether the value matches the canonical entry kind enum.
func (k EntryKind) IsValid() bool {
	for _, candidate := range validEntryKinds {
		if candidate == k {
			return true
		}
	}
	return false
}

// ParseEntryKind converts raw input into an EntryKind.
func ParseEntryKind(value string) (EntryKind, error) {
	for _, candidate := range validEntryKinds {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entry kind %q", value)
}
