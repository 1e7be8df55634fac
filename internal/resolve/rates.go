package resolve

import "github.com/shopspring/decimal"

// Canonical French VAT rates; extend here if a new rate shows up.
var canonicalRates = []decimal.Decimal{
	decimal.RequireFromString("2.1"),
	decimal.RequireFromString("5.5"),
	decimal.RequireFromString("10"),
	decimal.RequireFromString("20"),
}

var (
	hundred      = decimal.NewFromInt(100)
	snapDistance = decimal.RequireFromString("0.3")
	rateCeiling  = decimal.NewFromInt(60)
	fractionMax  = decimal.RequireFromString("1.5")
	amountEps    = decimal.RequireFromString("0.05")
)

// rateFromAmounts derives a percentage from base/tax when possible.
func rateFromAmounts(base, tax *decimal.Decimal) *decimal.Decimal {
	if base == nil || tax == nil || !base.IsPositive() {
		return nil
	}
	r := tax.Mul(hundred).Div(*base).Round(2)
	return &r
}

// snapRate pulls a raw rate onto the nearest canonical rate when close,
// otherwise rounds to a tenth (5.47 -> 5.5).
func snapRate(r *decimal.Decimal) *decimal.Decimal {
	if r == nil {
		return nil
	}
	for _, c := range canonicalRates {
		if r.Sub(c).Abs().LessThanOrEqual(snapDistance) {
			cc := c
			return &cc
		}
	}
	rr := r.Round(1)
	return &rr
}

// normalizeRate turns an OCR-read rate into a clean percentage:
// absent -> derived from base/tax; 0<r<=1.5 -> it was a fraction (0.1 -> 10);
// aberrant or equal to one of the amounts (a misread) -> prefer the derived
// rate; snapped to canonical rates last.
func normalizeRate(rate, base, tax *decimal.Decimal) *decimal.Decimal {
	derived := rateFromAmounts(base, tax)
	if rate == nil {
		return snapRate(derived)
	}
	r := *rate

	// misread: the "rate" is actually one of the amounts on the line
	if tax != nil && r.Sub(*tax).Abs().LessThanOrEqual(amountEps) {
		return snapRate(derived)
	}
	if base != nil && r.Sub(*base).Abs().LessThanOrEqual(amountEps) {
		return snapRate(derived)
	}

	if r.IsPositive() && r.LessThanOrEqual(fractionMax) {
		r = r.Mul(hundred)
	}
	if !r.IsPositive() || r.GreaterThanOrEqual(rateCeiling) {
		return snapRate(derived)
	}
	return snapRate(&r)
}

// rateKey buckets a normalized rate for duplicate-vs-distinct decisions.
func rateKey(r *decimal.Decimal) string {
	if r == nil {
		return "?"
	}
	return r.Round(1).String()
}
