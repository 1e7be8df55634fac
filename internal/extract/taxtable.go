package extract

import (
	"slices"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/textnorm"
)

// Detection thresholds for noisy OCR rows. These are looser than the
// resolver's equality tolerance on purpose: they decide whether three numbers
// form a row at all, not whether the row is arithmetically clean.
var (
	detectTol = decimal.RequireFromString("0.02")
	minRatio  = decimal.RequireFromString("0.005")
	maxRatio  = decimal.RequireFromString("0.30")
	maxRate   = decimal.RequireFromString("60")
)

// extractTaxTable detects tax-table rows in all supported shapes:
// parenthetical summaries, inline column rows under a header, vertical blocks
// around anchors, and bare rate mentions.
func extractTaxTable(reg *registry.Registry, cfg Config, lines []string) []entity.TaxRowCandidate {
	var rows []entity.TaxRowCandidate
	rows = append(rows, parentheticalRows(reg, cfg, lines)...)
	rows = append(rows, columnRows(reg, cfg, lines)...)
	rows = append(rows, verticalRows(reg, cfg, lines)...)
	rows = append(rows, rateOnlyRows(reg, cfg, lines)...)
	return rows
}

// parentheticalRows matches summaries like "10% : 6,95 € (69,55 € HT / 76,50 € TTC)".
// Capture order: rate, tax, base, total.
func parentheticalRows(reg *registry.Registry, cfg Config, lines []string) []entity.TaxRowCandidate {
	var rows []entity.TaxRowCandidate
	for _, rule := range activeRules(reg, cfg, constants.RoleTaxRowParenthetical) {
		for i, ln := range lines {
			m := rule.Regexp().FindStringSubmatch(ln)
			if len(m) < 5 {
				continue
			}
			rate, rok := parseDec(m[1])
			tax, tok := parseDec(m[2])
			base, bok := parseDec(m[3])
			total, ook := parseDec(m[4])
			if !tok || !bok || !ook {
				continue
			}
			row := entity.TaxRowCandidate{
				Tax:      &tax,
				Base:     &base,
				Total:    &total,
				RuleID:   rule.ID,
				Priority: rule.Priority,
				Line:     i,
			}
			if rok {
				row.Rate = &rate
			}
			rows = append(rows, row)
		}
	}
	return rows
}

// columnRows reads an inline tax table:
//
//	CODE  Taux    TVA   HT     TTC
//	B     10.00%  2,44  24,36  26,80
//
// Row collection starts after a header trigger and stops on the first
// non-conforming line once at least one row was read.
func columnRows(reg *registry.Registry, cfg Config, lines []string) []entity.TaxRowCandidate {
	headers := activeRules(reg, cfg, constants.RoleTaxTableHeader)
	rowRules := activeRules(reg, cfg, constants.RoleTaxRowCols)
	if len(headers) == 0 || len(rowRules) == 0 {
		return nil
	}

	var rows []entity.TaxRowCandidate
	inTable := false
	for i, ln := range lines {
		if !inTable {
			if matchesAny(headers, ln) {
				inTable = true
			}
			continue
		}
		matched := false
		for _, rule := range rowRules {
			m := rule.Regexp().FindStringSubmatch(ln)
			if len(m) < 5 {
				continue
			}
			rate, rok := parseDec(m[1])
			tax, tok := parseDec(m[2])
			base, bok := parseDec(m[3])
			total, ook := parseDec(m[4])
			if !tok || !bok || !ook {
				continue
			}
			row := entity.TaxRowCandidate{
				Tax:      &tax,
				Base:     &base,
				Total:    &total,
				RuleID:   rule.ID,
				Priority: rule.Priority,
				Line:     i,
			}
			if rok {
				row.Rate = &rate
			}
			rows = append(rows, row)
			matched = true
			break
		}
		if !matched && len(rows) > 0 {
			break // table ended
		}
	}
	return rows
}

type numAt struct {
	line int
	val  decimal.Decimal
}

// verticalRows handles blocks where HT/TVA/TTC appear on separate OCR lines:
// anchors mark the block, number-only lines within the adjacency window are
// grouped by sliding windows of three, and header labels around the anchor
// fix the column order when present.
func verticalRows(reg *registry.Registry, cfg Config, lines []string) []entity.TaxRowCandidate {
	anchors := activeRules(reg, cfg, constants.RoleTaxAnchor)
	rateRules := activeRules(reg, cfg, constants.RoleTaxRateHint)
	numRules := activeRules(reg, cfg, constants.RoleAmountLine)
	if len(anchors) == 0 || len(numRules) == 0 {
		return nil
	}

	var rows []entity.TaxRowCandidate
	seen := make(map[[3]int]struct{})

	for idx, ln := range lines {
		anchorRule := firstMatching(anchors, ln)
		if anchorRule == nil {
			continue
		}
		order := headerOrder(lines, idx)

		var lastRate *decimal.Decimal
		var buf []numAt

		j0 := max(0, idx-2)
		j1 := min(len(lines), idx+cfg.window())
		for j := j0; j < j1; j++ {
			cur := lines[j]

			for _, rr := range rateRules {
				m := rr.Regexp().FindStringSubmatch(cur)
				if len(m) < 2 {
					continue
				}
				if r, ok := parseDec(m[1]); ok && r.IsPositive() && r.LessThan(maxRate) {
					lastRate = &r
				}
				break
			}

			num, ok := matchNumberLine(numRules, cur)
			if !ok {
				if cur == "" && len(buf) > 0 {
					buf = buf[:0] // blank line closes the series
				}
				continue
			}
			buf = append(buf, numAt{line: j, val: num})
			if len(buf) < 3 {
				continue
			}

			a, b, c := buf[len(buf)-3], buf[len(buf)-2], buf[len(buf)-1]
			key := [3]int{a.line, b.line, c.line}
			if _, dup := seen[key]; dup {
				continue
			}
			base, tax, total, ok := mapTriple(order, a.val, b.val, c.val)
			if !ok {
				continue
			}
			seen[key] = struct{}{}
			row := entity.TaxRowCandidate{
				Rate:     lastRate,
				Base:     &base,
				Tax:      &tax,
				Total:    &total,
				RuleID:   anchorRule.ID,
				Priority: anchorRule.Priority,
				Line:     a.line,
			}
			rows = append(rows, row)
			buf = buf[:0] // consume the triple
			lastRate = nil
		}
	}
	return rows
}

// rateOnlyRows emits one row per distinct bare rate mention ("TVA 10 %").
// These carry no amounts and only matter when nothing better was detected.
func rateOnlyRows(reg *registry.Registry, cfg Config, lines []string) []entity.TaxRowCandidate {
	var rows []entity.TaxRowCandidate
	seen := make(map[string]struct{})
	for _, rule := range activeRules(reg, cfg, constants.RoleTaxRateOnly) {
		for i, ln := range lines {
			m := rule.Regexp().FindStringSubmatch(ln)
			if len(m) < 2 {
				continue
			}
			r, ok := parseDec(m[1])
			if !ok {
				continue
			}
			if _, dup := seen[r.String()]; dup {
				continue
			}
			seen[r.String()] = struct{}{}
			rows = append(rows, entity.TaxRowCandidate{
				Rate:     &r,
				RuleID:   rule.ID,
				Priority: rule.Priority,
				Line:     i,
			})
		}
	}
	return rows
}

// headerOrder infers the HT/TVA/TTC column order from labels within two lines
// of the anchor, e.g. "Mt. TVA" then "Base HT Base TTC" -> [TVA HT TTC].
func headerOrder(lines []string, i int) []string {
	j0 := max(0, i-2)
	j1 := min(len(lines), i+3)
	txt := strings.ToLower(strings.Join(lines[j0:j1], " "))

	labels := []struct{ label, canon string }{
		{"mt. tva", "TVA"}, {"mt tva", "TVA"}, {"montant tva", "TVA"}, {"tva", "TVA"},
		{"base ht", "HT"}, {"ht", "HT"},
		{"base ttc", "TTC"}, {"ttc", "TTC"},
	}
	type posCanon struct {
		pos   int
		canon string
	}
	var found []posCanon
	for _, l := range labels {
		if pos := strings.Index(txt, l.label); pos != -1 {
			found = append(found, posCanon{pos, l.canon})
		}
	}
	// order by position, dedup canon
	for i := 1; i < len(found); i++ {
		for j := i; j > 0 && found[j].pos < found[j-1].pos; j-- {
			found[j], found[j-1] = found[j-1], found[j]
		}
	}
	var order []string
	for _, f := range found {
		if !slices.Contains(order, f.canon) {
			order = append(order, f.canon)
		}
	}
	return order
}

// mapTriple assigns three consecutive amounts to (base, tax, total). A header
// order is used when complete; otherwise the smaller of the first two values
// is read as the tax when the implied rate is plausible.
func mapTriple(order []string, v1, v2, v3 decimal.Decimal) (base, tax, total decimal.Decimal, ok bool) {
	if len(order) >= 3 {
		byCol := map[string]decimal.Decimal{order[0]: v1, order[1]: v2, order[2]: v3}
		ht, hok := byCol["HT"]
		tva, vok := byCol["TVA"]
		ttc, cok := byCol["TTC"]
		if hok && vok && cok && almostEq(ht.Add(tva), ttc) && ratioOK(tva, ht) {
			return ht, tva, ttc, true
		}
	}
	if !almostEq(v1.Add(v2), v3) {
		return base, tax, total, false
	}
	hi, lo := v1, v2
	if v2.GreaterThan(v1) {
		hi, lo = v2, v1
	}
	if ratioOK(lo, hi) {
		return hi, lo, v3, true
	}
	if ratioOK(hi, lo) {
		return lo, hi, v3, true
	}
	return v1, v2, v3, true
}

func matchNumberLine(rules []*registry.Rule, line string) (decimal.Decimal, bool) {
	for _, r := range rules {
		m := r.Regexp().FindStringSubmatch(line)
		if len(m) < 2 {
			continue
		}
		return parseDec(m[1])
	}
	return decimal.Decimal{}, false
}

func firstMatching(rules []*registry.Rule, line string) *registry.Rule {
	for _, r := range rules {
		if r.Regexp().MatchString(line) {
			return r
		}
	}
	return nil
}

func parseDec(raw string) (decimal.Decimal, bool) {
	d, err := textnorm.ParseAmount(raw)
	if err != nil {
		return decimal.Decimal{}, false
	}
	return d, true
}

func almostEq(a, b decimal.Decimal) bool {
	return a.Sub(b).Abs().LessThanOrEqual(detectTol)
}

// ratioOK checks that tax/base sits in the plausible VAT band.
func ratioOK(tax, base decimal.Decimal) bool {
	if base.IsZero() || base.IsNegative() {
		return false
	}
	r := tax.Div(base)
	return r.GreaterThanOrEqual(minRatio) && r.LessThanOrEqual(maxRatio)
}
