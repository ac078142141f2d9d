package enums

import "fmt"

// TrustTier selects the clearing window applied to a provider's earnings.
type TrustTier string

const (
	TrustTierNew      TrustTier = "new"
	TrustTierStandard TrustTier = "standard"
	TrustTierTrusted  TrustTier = "trusted"
)

var validTrustTiers = []TrustTier{
	TrustTierNew,
	TrustTierStandard,
	TrustTierTrusted,
}

// String implements fmt.Stringer.
func (t TrustTier) String() string {
	return string(t)
}

// IsValid reports whether the value is a known TrustTier.
func (t TrustTier) IsValid() bool {
	for _, candidate := range validTrustTiers {
		if candidate == t {
			return true
		}
	}
	return false
}

// ParseTrustTier converts raw input into a TrustTier.
func ParseTrustTier(value string) (TrustTier, error) {
	for _, candidate := range validTrustTiers {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid trust tier %q", value)
}
