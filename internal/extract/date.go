package extract

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/registry"
)

// French month names and their common OCR abbreviations.
var frenchMonths = map[string]int{
	"janv": 1, "janvier": 1,
	"fev": 2, "fevr": 2, "fevrier": 2, "fév": 2, "févr": 2, "février": 2,
	"mars": 3,
	"avr": 4, "avril": 4,
	"mai": 5,
	"juin": 6,
	"juil": 7, "juillet": 7,
	"aout": 8, "août": 8,
	"sep": 9, "sept": 9, "septembre": 9,
	"oct": 10, "octobre": 10,
	"nov": 11, "novembre": 11,
	"dec": 12, "déc": 12, "decembre": 12, "décembre": 12,
}

// extractDate emits one candidate per matching line per date rule. Rules
// capture (day, month, year) where month may be numeric or a French month
// name.
func extractDate(reg *registry.Registry, cfg Config, lines []string) []entity.Candidate {
	var out []entity.Candidate
	for _, rule := range activeGroup(reg, cfg, constants.GroupDate) {
		for i, ln := range lines {
			m := rule.Regexp().FindStringSubmatch(ln)
			if len(m) < 4 {
				continue
			}
			date, ok := assembleDate(m[1], m[2], m[3])
			if !ok {
				continue
			}
			out = append(out, entity.Candidate{
				Field:    rule.Field,
				Raw:      m[0],
				Text:     date,
				RuleID:   rule.ID,
				Priority: rule.Priority,
				Line:     i,
			})
		}
	}
	return out
}

// assembleDate formats DD-MM-YYYY with light plausibility checks.
func assembleDate(day, month, year string) (string, bool) {
	d, err := strconv.Atoi(day)
	if err != nil || d < 1 || d > 31 {
		return "", false
	}
	m, err := strconv.Atoi(month)
	if err != nil {
		var ok bool
		m, ok = frenchMonths[strings.ToLower(month)]
		if !ok {
			return "", false
		}
	}
	if m < 1 || m > 12 {
		return "", false
	}
	y, err := strconv.Atoi(year)
	if err != nil {
		return "", false
	}
	if y < 100 {
		y += 2000
	}
	return fmt.Sprintf("%02d-%02d-%04d", d, m, y), true
}
