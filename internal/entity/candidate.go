package entity

import "github.com/shopspring/decimal"

// Candidate is a single raw pattern match before resolution. Many candidates
// may exist for the same field; disambiguation happens in the resolver, never
// in the extractors.
type Candidate struct {
	Field    string
	Raw      string
	Amount   decimal.Decimal // monetary fields
	Text     string          // textual fields
	RuleID   string
	Priority int
	Line     int
}

// TaxRowCandidate is a raw tax-table row match. Any amount may be absent
// (rate-only rows exist); Line is the offset of the source line in the
// normalized text and drives duplicate-vs-distinct decisions downstream.
type TaxRowCandidate struct {
	Rate     *decimal.Decimal
	Base     *decimal.Decimal
	Tax      *decimal.Decimal
	Total    *decimal.Decimal
	RuleID   string
	Priority int
	Line     int
}
