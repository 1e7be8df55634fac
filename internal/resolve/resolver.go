// Package resolve merges raw candidates into resolved fields: tax-table
// consolidation, subtotal derivation, fallback arithmetic and conflict
// resolution by rule priority. Every discarded candidate and every broken
// invariant leaves a warning; nothing is dropped silently.
package resolve

import (
	"fmt"
	"sort"

	"github.com/shopspring/decimal"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/extract"
)

// Config carries the resolution policy knobs.
type Config struct {
	// Tolerance is the equality tolerance for all amount comparisons.
	Tolerance decimal.Decimal
	// TrustPriority is the cutoff at or below which a direct subtotal
	// candidate beats subtotal-by-summation (lower value = higher precedence).
	TrustPriority int
}

// DefaultConfig returns the stock policy: tolerance 0.01, trust cutoff 30.
func DefaultConfig() Config {
	return Config{
		Tolerance:     decimal.RequireFromString("0.01"),
		TrustPriority: 30,
	}
}

// Field is a resolved field before scoring. Priority is the best contributing
// rule priority and feeds the confidence scorer.
type Field struct {
	Amount   *decimal.Decimal
	Text     string
	Source   entity.Source
	Priority int
}

// Resolved reports whether the field holds a value.
func (f Field) Resolved() bool { return f.Source != entity.SourceUnresolved }

// Resolution is the resolver output handed to the scorer and assembler.
// InvariantViolated is set whenever an arithmetic check failed beyond
// tolerance (a tax line that does not add up, sums that disagree with the
// resolved totals, a distrusted direct subtotal); conflict warnings between
// candidates do not set it.
type Resolution struct {
	Fields            map[string]Field
	TaxLines          []entity.TaxLine
	Warnings          []string
	InvariantViolated bool
}

// Resolve runs the full resolution sequence over an extraction.
func Resolve(cfg Config, ex extract.Extraction) Resolution {
	res := Resolution{Fields: make(map[string]Field)}

	// arithmetic-check warnings flip the invariant flag; candidate
	// conflicts stay plain warnings
	arith := func(warns []string) {
		if len(warns) > 0 {
			res.InvariantViolated = true
		}
		res.Warnings = append(res.Warnings, warns...)
	}

	lines, lineWarnings := consolidateTaxRows(cfg, ex.TaxRows)
	res.TaxLines = lines
	arith(lineWarnings)

	byField := make(map[string][]entity.Candidate)
	for _, c := range ex.Candidates {
		byField[c.Field] = append(byField[c.Field], c)
	}

	for _, name := range []string{constants.FieldVendor, constants.FieldDate, constants.FieldPaymentMethod} {
		f, warns := resolveTextual(name, byField[name])
		res.Fields[name] = f
		res.Warnings = append(res.Warnings, warns...)
	}
	for _, name := range constants.MonetaryFields {
		f, warns := resolveMonetary(cfg, name, byField[name])
		res.Fields[name] = f
		res.Warnings = append(res.Warnings, warns...)
	}

	arith(deriveSubtotal(cfg, &res))
	res.Warnings = append(res.Warnings, aggregateMissing(&res)...)
	applyFallbackArithmetic(&res)
	arith(checkInvariants(cfg, res))
	return res
}

// consolidateTaxRows dedupes and merges raw tax rows. Same source line offset
// means a duplicate OCR detection (keep the highest-priority one); the same
// rate at different offsets means distinct items (sum them).
func consolidateTaxRows(cfg Config, rows []entity.TaxRowCandidate) ([]entity.TaxLine, []string) {
	if len(rows) == 0 {
		return nil, nil
	}

	// offset dedup
	byLine := make(map[int]entity.TaxRowCandidate)
	var order []int
	for _, r := range rows {
		prev, ok := byLine[r.Line]
		if !ok {
			byLine[r.Line] = r
			order = append(order, r.Line)
			continue
		}
		if r.Priority < prev.Priority {
			byLine[r.Line] = r
		}
	}
	sort.Ints(order)

	// normalize rates, split amount rows from rate-only rows
	type merged struct {
		line entity.TaxLine
		rate *decimal.Decimal
	}
	groups := make(map[string]*merged)
	var keys []string
	var rateOnly []entity.TaxRowCandidate
	for _, off := range order {
		r := byLine[off]
		if r.Base == nil && r.Tax == nil && r.Total == nil {
			rateOnly = append(rateOnly, r)
			continue
		}
		rate := normalizeRate(r.Rate, r.Base, r.Tax)
		key := rateKey(rate)
		g, ok := groups[key]
		if !ok {
			g = &merged{rate: rate}
			groups[key] = g
			keys = append(keys, key)
		}
		g.line.Base = addAmounts(g.line.Base, r.Base)
		g.line.Tax = addAmounts(g.line.Tax, r.Tax)
		g.line.Total = addAmounts(g.line.Total, r.Total)
	}

	// bare rate mentions only matter when no amount row was detected
	if len(keys) == 0 {
		for _, r := range rateOnly {
			rate := snapRate(r.Rate)
			key := rateKey(rate)
			if _, dup := groups[key]; dup {
				continue
			}
			groups[key] = &merged{rate: rate}
			keys = append(keys, key)
		}
	}

	var warnings []string
	out := make([]entity.TaxLine, 0, len(keys))
	for _, key := range keys {
		g := groups[key]
		g.line.Label = taxLabel(g.rate)
		if g.rate != nil {
			rf, _ := g.rate.Float64()
			g.line.Rate = &rf
		}
		if g.line.Base != nil && g.line.Tax != nil && g.line.Total != nil {
			diff := g.line.Base.Add(*g.line.Tax).Sub(*g.line.Total).Abs()
			if diff.GreaterThan(cfg.Tolerance) {
				warnings = append(warnings, fmt.Sprintf(
					"tax line %s: base %s + tax %s does not match total %s",
					g.line.Label, g.line.Base, g.line.Tax, g.line.Total))
			}
		}
		out = append(out, g.line)
	}

	// order by rate ascending, unrated lines last
	sort.SliceStable(out, func(i, j int) bool {
		switch {
		case out[i].Rate == nil:
			return false
		case out[j].Rate == nil:
			return true
		default:
			return *out[i].Rate < *out[j].Rate
		}
	})
	return out, warnings
}

func resolveTextual(name string, cands []entity.Candidate) (Field, []string) {
	if len(cands) == 0 {
		return Field{Source: entity.SourceUnresolved}, nil
	}
	sortCandidates(cands)
	best := cands[0]
	var warnings []string
	for _, c := range cands[1:] {
		if c.Text != best.Text {
			warnings = append(warnings, fmt.Sprintf(
				"conflicting %s candidates: keeping %q (rule %s, priority %d), discarding %q (rule %s, priority %d)",
				name, best.Text, best.RuleID, best.Priority, c.Text, c.RuleID, c.Priority))
		}
	}
	return Field{Text: best.Text, Source: entity.SourceDirectMatch, Priority: best.Priority}, warnings
}

func resolveMonetary(cfg Config, name string, cands []entity.Candidate) (Field, []string) {
	if len(cands) == 0 {
		return Field{Source: entity.SourceUnresolved}, nil
	}
	sortCandidates(cands)
	best := cands[0]
	var warnings []string
	for _, c := range cands[1:] {
		if c.Amount.Sub(best.Amount).Abs().GreaterThan(cfg.Tolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"conflicting %s candidates: keeping %s (rule %s, priority %d), discarding %s (rule %s, priority %d)",
				name, best.Amount, best.RuleID, best.Priority, c.Amount, c.RuleID, c.Priority))
		}
	}
	amt := best.Amount
	return Field{Amount: &amt, Source: entity.SourceDirectMatch, Priority: best.Priority}, warnings
}

// deriveSubtotal applies the trust-cutoff policy: a direct subtotal candidate
// holds only when its rule priority is at or below the configured cutoff;
// otherwise the sum of consolidated tax-line bases wins.
func deriveSubtotal(cfg Config, res *Resolution) []string {
	baseSum, sumOK := sumBases(res.TaxLines)
	ht := res.Fields[constants.FieldTotalHT]

	switch {
	case ht.Resolved() && ht.Priority <= cfg.TrustPriority:
		return nil
	case ht.Resolved() && sumOK:
		var warnings []string
		if ht.Amount.Sub(baseSum).Abs().GreaterThan(cfg.Tolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"subtotal: replacing low-trust direct value %s (priority %d) with tax-line sum %s",
				ht.Amount, ht.Priority, baseSum))
		}
		res.Fields[constants.FieldTotalHT] = Field{
			Amount:   &baseSum,
			Source:   entity.SourceAggregated,
			Priority: aggregatedPriority,
		}
		return warnings
	case !ht.Resolved() && sumOK:
		res.Fields[constants.FieldTotalHT] = Field{
			Amount:   &baseSum,
			Source:   entity.SourceAggregated,
			Priority: aggregatedPriority,
		}
		return nil
	default:
		return nil
	}
}

// aggregateMissing fills the tax total and grand total from consolidated
// tax-line sums when no direct candidate exists.
func aggregateMissing(res *Resolution) []string {
	fill := func(field string, sum decimal.Decimal, ok bool) {
		f := res.Fields[field]
		if f.Resolved() || !ok {
			return
		}
		res.Fields[field] = Field{
			Amount:   &sum,
			Source:   entity.SourceAggregated,
			Priority: aggregatedPriority,
		}
	}
	taxSum, taxOK := sumTaxes(res.TaxLines)
	totalSum, totalOK := sumTotals(res.TaxLines)
	fill(constants.FieldTVAAmount, taxSum, taxOK)
	fill(constants.FieldTotalTTC, totalSum, totalOK)
	return nil
}

// applyFallbackArithmetic fills the one missing member of the HT/TVA/TTC
// triple, in strict precedence order; when fewer than two members are
// resolved the field stays UNRESOLVED.
func applyFallbackArithmetic(res *Resolution) {
	ht := res.Fields[constants.FieldTotalHT]
	tva := res.Fields[constants.FieldTVAAmount]
	ttc := res.Fields[constants.FieldTotalTTC]

	set := func(field string, v decimal.Decimal, from1, from2 Field) {
		res.Fields[field] = Field{
			Amount:   &v,
			Source:   entity.SourceFallbackComputed,
			Priority: max(from1.Priority, from2.Priority),
		}
	}
	switch {
	case !ht.Resolved() && ttc.Resolved() && tva.Resolved():
		set(constants.FieldTotalHT, ttc.Amount.Sub(*tva.Amount), ttc, tva)
	case !tva.Resolved() && ttc.Resolved() && ht.Resolved():
		set(constants.FieldTVAAmount, ttc.Amount.Sub(*ht.Amount), ttc, ht)
	case !ttc.Resolved() && ht.Resolved() && tva.Resolved():
		set(constants.FieldTotalTTC, ht.Amount.Add(*tva.Amount), ht, tva)
	}
}

// checkInvariants records arithmetic inconsistencies across resolved fields
// and consolidated tax lines. Violations never abort extraction; they feed
// the coherence verdict.
func checkInvariants(cfg Config, res Resolution) []string {
	var warnings []string
	ht := res.Fields[constants.FieldTotalHT]
	tva := res.Fields[constants.FieldTVAAmount]
	ttc := res.Fields[constants.FieldTotalTTC]

	if ht.Resolved() && tva.Resolved() && ttc.Resolved() {
		diff := ht.Amount.Add(*tva.Amount).Sub(*ttc.Amount).Abs()
		if diff.GreaterThan(cfg.Tolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"totals do not reconcile: %s + %s != %s", ht.Amount, tva.Amount, ttc.Amount))
		}
	}

	check := func(f Field, sum decimal.Decimal, ok bool, what string) {
		if !ok || !f.Resolved() || f.Source == entity.SourceAggregated {
			return
		}
		if f.Amount.Sub(sum).Abs().GreaterThan(cfg.Tolerance) {
			warnings = append(warnings, fmt.Sprintf(
				"tax-line %s sum %s does not match %s", what, sum, f.Amount))
		}
	}
	baseSum, baseOK := sumBases(res.TaxLines)
	taxSum, taxOK := sumTaxes(res.TaxLines)
	totalSum, totalOK := sumTotals(res.TaxLines)
	check(ht, baseSum, baseOK, "base")
	check(tva, taxSum, taxOK, "tax")
	check(ttc, totalSum, totalOK, "total")
	return warnings
}

// sortCandidates orders by rule priority, then by line offset for stability.
func sortCandidates(cands []entity.Candidate) {
	sort.SliceStable(cands, func(i, j int) bool {
		if cands[i].Priority != cands[j].Priority {
			return cands[i].Priority < cands[j].Priority
		}
		return cands[i].Line < cands[j].Line
	})
}

func addAmounts(acc, v *decimal.Decimal) *decimal.Decimal {
	if v == nil {
		return acc
	}
	if acc == nil {
		c := *v
		return &c
	}
	s := acc.Add(*v)
	return &s
}

func sumBases(lines []entity.TaxLine) (decimal.Decimal, bool) {
	return sumLines(lines, func(l entity.TaxLine) *decimal.Decimal { return l.Base })
}

func sumTaxes(lines []entity.TaxLine) (decimal.Decimal, bool) {
	return sumLines(lines, func(l entity.TaxLine) *decimal.Decimal { return l.Tax })
}

func sumTotals(lines []entity.TaxLine) (decimal.Decimal, bool) {
	return sumLines(lines, func(l entity.TaxLine) *decimal.Decimal { return l.Total })
}

func sumLines(lines []entity.TaxLine, get func(entity.TaxLine) *decimal.Decimal) (decimal.Decimal, bool) {
	var sum decimal.Decimal
	found := false
	for _, l := range lines {
		v := get(l)
		if v == nil {
			continue
		}
		sum = sum.Add(*v)
		found = true
	}
	return sum, found
}

// Consolidated lines no longer carry rule identity; aggregated fields get a
// fixed midline priority for the scorer.
const aggregatedPriority = 30

func taxLabel(rate *decimal.Decimal) string {
	if rate == nil {
		return "TVA"
	}
	return "TVA " + rate.String() + "%"
}
