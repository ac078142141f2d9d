package commission

import (
	"github.com/shopspring/decimal"

	"github.com/marketloop/settlements-backend/pkg/errors"
)

// Split is the cent-exact division of one order's gross amount.
// ProviderCents + ReferrerCents + PlatformCents always equals the gross.
type Split struct {
	ProviderCents int64
	ReferrerCents int64
	PlatformCents int64
}

var one = decimal.NewFromInt(1)

// Compute splits grossCents across provider, referrer and platform.
// Fee shares are floored to whole cents and the remainder stays with the
// provider, so no cent is ever minted or lost to rounding. When the order
// has no referrer-of-record the referrer share is zero and the provider
// absorbs it.
func Compute(grossCents int64, platformRate, referrerRate decimal.Decimal, hasReferrer bool) (Split, error) {
	if grossCents <= 0 {
		return Split{}, errors.New(errors.CodeValidation, "gross amount must be positive")
	}
	if platformRate.IsNegative() || referrerRate.IsNegative() {
		return Split{}, errors.New(errors.CodeInvalidRate, "commission rates must be non-negative")
	}
	effectiveReferrer := referrerRate
	if !hasReferrer {
		effectiveReferrer = decimal.Zero
	}
	if platformRate.Add(referrerRate).GreaterThan(one) {
		return Split{}, errors.New(errors.CodeInvalidRate, "commission rates sum above 1.0")
	}

	gross := decimal.NewFromInt(grossCents)
	platformCents := gross.Mul(platformRate).Floor().IntPart()
	referrerCents := gross.Mul(effectiveReferrer).Floor().IntPart()

	split := Split{
		ProviderCents: grossCents - platformCents - referrerCents,
		ReferrerCents: referrerCents,
		PlatformCents: platformCents,
	}
	if split.ProviderCents < 0 {
		return Split{}, errors.New(errors.CodeInvalidRate, "commission shares exceed gross amount")
	}
	if split.Total() != grossCents {
		return Split{}, errors.New(errors.CodeConservation, "split does not sum to gross amount")
	}
	return split, nil
}

// Total returns the sum of all three shares.
func (s Split) Total() int64 {
	return s.ProviderCents + s.ReferrerCents + s.PlatformCents
}
