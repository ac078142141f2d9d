package enums

import "fmt"

// BatchStatus tracks the lifecycle of a payout batch.
type BatchStatus string

const (
	BatchStatusCreated BatchStatus = "created"
	BatchStatusSent    BatchStatus = "sent"
	BatchStatusFailed  BatchStatus = "failed"
)

var validBatchStatuses = []BatchStatus{
	BatchStatusCreated,
	BatchStatusSent,
	BatchStatusFailed,
}

// String implements fmt.Stringer.
func (s BatchStatus) String() string {
	return string(s)
}

// IsValid reports whether the value is a known BatchStatus.
func (s BatchStatus) IsValid() bool {
	for _, candidate := range validBatchStatuses {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseBatchStatus converts raw input into a BatchStatus.
func ParseBatchStatus(value string) (BatchStatus, error) {
	for _, candidate := range validBatchStatuses {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid batch status %q", value)
}
