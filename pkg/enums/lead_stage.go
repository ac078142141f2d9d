package enums

import "fmt"

// LeadStage tracks a referral lead through the conversion funnel.
type LeadStage string

const (
	LeadStageReferred  LeadStage = "referred"
	LeadStageSignedUp  LeadStage = "signed_up"
	LeadStageConverted LeadStage = "converted"
	LeadStageExpired   LeadStage = "expired"
)

var validLeadStages = []LeadStage{
	LeadStageReferred,
	LeadStageSignedUp,
	LeadStageConverted,
	LeadStageExpired,
}

// String implements fmt.Stringer.
func (s LeadStage) String() string {
	return string(s)
}

// IsValid reports whether the value is a known LeadStage.
func (s LeadStage) IsValid() bool {
	for _, candidate := range validLeadStages {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseLeadStage converts raw input into a LeadStage.
func ParseLeadStage(value string) (LeadStage, error) {
	for _, candidate := range validLeadStages {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid lead stage %q", value)
}
