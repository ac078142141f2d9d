package enums

import "fmt"

// AttributionSource records how a payer was linked to their referrer.
type AttributionSource string

const (
	AttributionSourceExplicitCode   AttributionSource = "explicit_code"
	AttributionSourceImplicitCookie AttributionSource = "implicit_cookie"
)

var validAttributionSources = []AttributionSource{
	AttributionSourceExplicitCode,
	AttributionSourceImplicitCookie,
}

// IsValid reports whether the value is a known AttributionSource.
func (s AttributionSource) IsValid() bool {
	for _, candidate := range validAttributionSources {
		if candidate == s {
			return true
		}
	}
	return false
}

// ParseAttributionSource converts raw input into an AttributionSource.
func ParseAttributionSource(value string) (AttributionSource, error) {
	for _, candidate := range validAttributionSources {
		if string(candidate) == value {
			return candidate, nil
		}
	}
	return "", fmt.Errorf("invalid attribution source %q", value)
}
