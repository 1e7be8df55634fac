package extract

import (
	"strings"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/textnorm"
)

// extractAmounts applies every amount-group rule to every line. A line
// matching several rules yields several candidates; the resolver decides.
func extractAmounts(reg *registry.Registry, cfg Config, lines []string) []entity.Candidate {
	var out []entity.Candidate
	for _, rule := range activeGroup(reg, cfg, constants.GroupAmount) {
		for i, ln := range lines {
			m := rule.Regexp().FindStringSubmatch(ln)
			if len(m) < 2 {
				continue
			}
			raw := strings.TrimSpace(m[1])
			val, err := textnorm.ParseAmount(raw)
			if err != nil {
				continue
			}
			out = append(out, entity.Candidate{
				Field:    rule.Field,
				Raw:      raw,
				Amount:   val,
				RuleID:   rule.ID,
				Priority: rule.Priority,
				Line:     i,
			})
		}
	}
	return out
}
