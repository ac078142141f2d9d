package enums

import "fmt"

// EntryStatus maps to the entry_status_enum enum in Postgres.
//
// Clearing entries mature to available once their clearing window elapses.
// Batching is a transient claim state used by the payout sweep so that an
// entry can never land in two concurrently created batches.
type EntryStatus string

const (
	EntryStatusClearing  EntryStatus = "clearing"
	EntryStatusAvailable EntryStatus = "available"
	EntryStatusBatching  EntryStatus = "batching"
	EntryStatusPaidOut   EntryStatus = "paid_out"
	EntryStatusDisputed  EntryStatus = "disputed"
	EntryStatusRefunded  EntryStatus = "refunded"
)

var validEntryStatuses = []EntryStatus{
	EntryStatusClearing,
	EntryStatusAvailable,
	EntryStatusBatching,
	EntryStatusPaidOut,
	EntryStatusDisputed,
	EntryStatusRefunded,
}

// String implements fmt.Stringer.
func (s EntryStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known EntryStatus.
func (s EntryStatus) IsValid() bool {
	for _, candidate := range validEntryStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseEntryStatus converts raw input into an EntryStatus.
func ParseEntryStatus(value string) (EntryStatus, error) {
	for _, candidate := range validEntryStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid entry status %q", value)
}
