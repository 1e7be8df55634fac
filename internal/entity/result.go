package entity

import (
	"github.com/shopspring/decimal"
)

// Source documents how a resolved field got its value.
type Source string

// Stable values (serialized in API responses and stored in DB).
const (
	SourceDirectMatch      Source = "DIRECT_MATCH"
	SourceAggregated       Source = "AGGREGATED"
	SourceFallbackComputed Source = "FALLBACK_COMPUTED"
	SourceUnresolved       Source = "UNRESOLVED"
)

// ResolvedField is a single extracted field with provenance. Monetary fields
// carry Amount, textual fields carry Text; an UNRESOLVED field carries neither.
type ResolvedField struct {
	Amount     *decimal.Decimal `json:"amount,omitempty"`
	Text       string           `json:"text,omitempty"`
	Confidence float64          `json:"confidence"`
	Source     Source           `json:"source"`
}

// Resolved reports whether the field holds a value.
func (f ResolvedField) Resolved() bool {
	return f.Source != SourceUnresolved && f.Source != ""
}

// TaxLine is one consolidated row of the receipt's tax table.
// When Base, Tax and Total are all present, Base + Tax should equal Total
// within the engine tolerance; violations are surfaced as warnings, the line
// itself is kept.
type TaxLine struct {
	Label string           `json:"label"`
	Rate  *float64         `json:"rate,omitempty"`
	Base  *decimal.Decimal `json:"base,omitempty"`
	Tax   *decimal.Decimal `json:"tax,omitempty"`
	Total *decimal.Decimal `json:"total,omitempty"`
}

// ExtractionResult is the full output of one engine run.
type ExtractionResult struct {
	Fields           map[string]ResolvedField `json:"fields"`
	TaxLines         []TaxLine                `json:"tax_lines"`
	GlobalConfidence float64                  `json:"global_confidence"`
	Coherent         bool                     `json:"coherent"`
	Warnings         []string                 `json:"warnings"`
}

// Field returns the named field, or an UNRESOLVED zero value when absent.
func (r ExtractionResult) Field(name string) ResolvedField {
	if f, ok := r.Fields[name]; ok {
		return f
	}
	return ResolvedField{Source: SourceUnresolved}
}
