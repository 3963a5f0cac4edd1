package fees

import (
	"errors"
	"math"
)

var ErrInvalidAmount = errors.New("invalid amount")

// RateBasis is the denominator for rates carried in basis points.
const RateBasis = 10000

// maxAmount bounds calculator inputs so the scaled intermediates stay within
// int64 for any rate pair up to RateBasis. Recompose scales its input by
// RateBasis*(RateBasis+vatRateBP), so amounts past this bound would overflow
// silently instead of failing.
const maxAmount = math.MaxInt64 / (4 * RateBasis * RateBasis)

const (
	DefaultVATRateBP = 1000 // 10%, inclusive
	DefaultFeeRateBP = 350  // 3.5% card processing fee
)

// Breakdown is one gross payment split into VAT, processing fee and spendable
// net credit. All amounts are integer minor currency units and always satisfy
// Gross == VAT + Fee + Net.
type Breakdown struct {
	Gross     int64 `json:"gross"`
	VAT       int64 `json:"vat"`
	Fee       int64 `json:"fee"`
	Net       int64 `json:"net"`
	VATRateBP int64 `json:"vat_rate_bp"`
	FeeRateBP int64 `json:"fee_rate_bp"`
}

// Calculator converts between gross amounts and their fee decomposition using
// two fixed rates. It is pure: no I/O, no state beyond the configured rates.
// Historical records store their own rates, so changing the configured rates
// never alters stored breakdowns.
type Calculator struct {
	vatRateBP int64
	feeRateBP int64
}

func NewCalculator(vatRateBP, feeRateBP int64) *Calculator {
	return &Calculator{vatRateBP: vatRateBP, feeRateBP: feeRateBP}
}

// Decompose splits a gross amount. VAT is computed on an inclusive basis, the
// fee on the full gross, both rounded half-up. Net is defined as the
// remainder, never rounded independently, so the parts sum to gross exactly.
func (c *Calculator) Decompose(gross int64) (Breakdown, error) {
	if gross <= 0 || gross > maxAmount {
		return Breakdown{}, ErrInvalidAmount
	}

	vat := divRoundHalfUp(gross*c.vatRateBP, RateBasis+c.vatRateBP)
	fee := divRoundHalfUp(gross*c.feeRateBP, RateBasis)

	return Breakdown{
		Gross:     gross,
		VAT:       vat,
		Fee:       fee,
		Net:       gross - vat - fee,
		VATRateBP: c.vatRateBP,
		FeeRateBP: c.feeRateBP,
	}, nil
}

// Recompose finds the gross amount whose decomposition yields approximately
// the given net, then returns Decompose of that gross so both directions
// share one code path. The round trip may differ from net by one minor unit
// because VAT and fee round independently of the estimate.
func (c *Calculator) Recompose(net int64) (Breakdown, error) {
	if net <= 0 || net > maxAmount {
		return Breakdown{}, ErrInvalidAmount
	}

	// net = gross * denom / (RateBasis * (RateBasis + vatRateBP)), where
	// denom = RateBasis^2 - feeRateBP * (RateBasis + vatRateBP).
	denom := int64(RateBasis)*RateBasis - c.feeRateBP*(RateBasis+c.vatRateBP)
	if denom <= 0 {
		return Breakdown{}, ErrInvalidAmount
	}
	gross := divRoundHalfUp(net*RateBasis*(RateBasis+c.vatRateBP), denom)

	return c.Decompose(gross)
}

// divRoundHalfUp divides a by b rounding halves up. Both arguments must be
// non-negative with b > 0; monetary inputs are validated before reaching
// this point.
func divRoundHalfUp(a, b int64) int64 {
	return (2*a + b) / (2 * b)
}
