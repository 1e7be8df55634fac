package extract

import (
	"strings"
	"unicode"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/registry"
)

// vendor is a heuristic over the receipt head rather than a positive pattern;
// the candidate carries this synthetic rule identity.
const (
	vendorRuleID       = "vendor_heuristic"
	vendorRulePriority = 30
	vendorHeadLines    = 12
)

// extractHeader emits the vendor candidate and a payment method candidate.
// Vendor: first plausible line of the receipt head, skipping administrative
// noise (SIRET, addresses, URLs) via the registry skip pattern, preferring a
// reasonable all-caps line.
func extractHeader(reg *registry.Registry, cfg Config, lines []string) []entity.Candidate {
	var out []entity.Candidate

	skips := activeRules(reg, cfg, "vendor_skip")
	var cands []entity.Candidate
	seen := 0
	for i, ln := range lines {
		if ln == "" {
			continue
		}
		if seen++; seen > vendorHeadLines {
			break
		}
		if matchesAny(skips, ln) {
			continue
		}
		letters, digits := 0, 0
		for _, r := range ln {
			switch {
			case unicode.IsLetter(r):
				letters++
			case unicode.IsDigit(r):
				digits++
			}
		}
		if letters <= digits || len(ln) < 3 {
			continue
		}
		cands = append(cands, entity.Candidate{
			Field:    constants.FieldVendor,
			Raw:      ln,
			Text:     ln,
			RuleID:   vendorRuleID,
			Priority: vendorRulePriority,
			Line:     i,
		})
	}
	if v, ok := pickVendor(cands); ok {
		out = append(out, v)
	}

payment:
	for _, rule := range activeRules(reg, cfg, constants.FieldPaymentMethod) {
		for i, ln := range lines {
			m := rule.Regexp().FindStringSubmatch(ln)
			if len(m) < 2 {
				continue
			}
			out = append(out, entity.Candidate{
				Field:    constants.FieldPaymentMethod,
				Raw:      m[0],
				Text:     strings.ToUpper(strings.TrimSpace(m[1])),
				RuleID:   rule.ID,
				Priority: rule.Priority,
				Line:     i,
			})
			break payment // first match wins
		}
	}
	return out
}

// pickVendor prefers a reasonable all-caps line, else the first candidate.
func pickVendor(cands []entity.Candidate) (entity.Candidate, bool) {
	if len(cands) == 0 {
		return entity.Candidate{}, false
	}
	for _, c := range cands {
		ln := c.Text
		if strings.ToUpper(ln) == ln && len(ln) >= 2 && len(ln) <= 40 {
			return c, true
		}
	}
	return cands[0], true
}

func matchesAny(rules []*registry.Rule, line string) bool {
	for _, r := range rules {
		if r.Regexp().MatchString(line) {
			return true
		}
	}
	return false
}
