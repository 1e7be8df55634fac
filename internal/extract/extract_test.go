package extract

import (
	"reflect"
	"testing"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/textnorm"
)

func testRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("default registry: %v", err)
	}
	return reg
}

func runOn(t *testing.T, raw string) Extraction {
	t.Helper()
	reg := testRegistry(t)
	return RunSequential(reg, Config{}, textnorm.Lines(textnorm.Normalize(raw)))
}

func candidatesFor(ex Extraction, field string) []entity.Candidate {
	var out []entity.Candidate
	for _, c := range ex.Candidates {
		if c.Field == field {
			out = append(out, c)
		}
	}
	return out
}

func TestAmountCandidates(t *testing.T) {
	ex := runOn(t, "LE BISTROT\nTOTAL HT 45,45\nTOTAL TVA 4,55\nTOTAL TTC 50,00")

	for _, field := range constants.MonetaryFields {
		if len(candidatesFor(ex, field)) == 0 {
			t.Fatalf("no candidate for %s", field)
		}
	}
	ht := candidatesFor(ex, constants.FieldTotalHT)[0]
	if ht.Amount.String() != "45.45" || ht.RuleID != "amt_total_ht" {
		t.Fatalf("unexpected HT candidate: %+v", ht)
	}
	if ht.Line != 1 {
		t.Fatalf("HT line offset = %d, want 1", ht.Line)
	}
}

func TestMultipleRulesYieldMultipleCandidates(t *testing.T) {
	// "TOTAL TTC" matches both the labeled and the bare TTC rule; the
	// extractor must emit both and let the resolver disambiguate.
	ex := runOn(t, "TOTAL TTC 50,00")
	ttc := candidatesFor(ex, constants.FieldTotalTTC)
	if len(ttc) < 2 {
		t.Fatalf("want >=2 TTC candidates, got %d: %+v", len(ttc), ttc)
	}
}

func TestVendorAndDate(t *testing.T) {
	ex := runOn(t, "CHEZ MARCEL\n12 Rue de la Paix\n75002 Paris\nle 14/06/2025\nTOTAL TTC 20,00")

	vendor := candidatesFor(ex, constants.FieldVendor)
	if len(vendor) != 1 || vendor[0].Text != "CHEZ MARCEL" {
		t.Fatalf("vendor: %+v", vendor)
	}
	date := candidatesFor(ex, constants.FieldDate)
	if len(date) == 0 || date[0].Text != "14-06-2025" {
		t.Fatalf("date: %+v", date)
	}
}

func TestDateRuleEmitsEveryMatchingLine(t *testing.T) {
	// two date lines, same rule: both surface as candidates and the
	// resolver picks, not the extractor
	ex := runOn(t, "CHEZ MARCEL\n14/06/2025\nimprimé le 15/06/2025\nTOTAL TTC 20,00")
	date := candidatesFor(ex, constants.FieldDate)
	if len(date) < 2 {
		t.Fatalf("date candidates = %d, want one per matching line: %+v", len(date), date)
	}
	if date[0].Text != "14-06-2025" || date[1].Text != "15-06-2025" {
		t.Fatalf("dates out of line order: %+v", date)
	}
}

func TestFrenchMonthDate(t *testing.T) {
	ex := runOn(t, "SARL TRUC\n3 juillet 2025\nTOTAL TTC 5,00")
	date := candidatesFor(ex, constants.FieldDate)
	if len(date) == 0 || date[0].Text != "03-07-2025" {
		t.Fatalf("french month date: %+v", date)
	}
}

func TestColumnTaxTable(t *testing.T) {
	ex := runOn(t, `RESTO
CODE Taux TVA HT TTC
B 10.00% 2,44 24,36 26,80
C 20.00% 1,00 5,00 6,00
TOTAL TTC 32,80`)

	if len(ex.TaxRows) < 2 {
		t.Fatalf("want >=2 tax rows, got %+v", ex.TaxRows)
	}
	var found bool
	for _, r := range ex.TaxRows {
		if r.RuleID == "tax_row_cols" && r.Base != nil && r.Base.String() == "24.36" {
			found = true
			if r.Tax.String() != "2.44" || r.Total.String() != "26.8" {
				t.Fatalf("column row mismapped: %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("column row not detected: %+v", ex.TaxRows)
	}
}

func TestParentheticalRow(t *testing.T) {
	ex := runOn(t, "10% : 6,95 € (69,55 € HT / 76,50 € TTC)")
	var found bool
	for _, r := range ex.TaxRows {
		if r.RuleID == "tax_row_parenthetical" {
			found = true
			if r.Rate == nil || r.Rate.String() != "10" ||
				r.Base.String() != "69.55" || r.Tax.String() != "6.95" || r.Total.String() != "76.5" {
				t.Fatalf("parenthetical row: %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("parenthetical row not detected: %+v", ex.TaxRows)
	}
}

func TestVerticalTaxBlock(t *testing.T) {
	ex := runOn(t, `Mt. TVA Base HT Base TTC
TVA 10.00 %
4,55
45,45
50,00`)

	var found bool
	for _, r := range ex.TaxRows {
		if r.Base != nil && r.Base.String() == "45.45" && r.Tax != nil && r.Tax.String() == "4.55" {
			found = true
			if r.Total.String() != "50" {
				t.Fatalf("vertical row total: %+v", r)
			}
		}
	}
	if !found {
		t.Fatalf("vertical block not detected: %+v", ex.TaxRows)
	}
}

func TestConcurrentMatchesSequential(t *testing.T) {
	raw := `CHEZ MARCEL
14/06/2025
CODE Taux TVA HT TTC
B 10.00% 2,44 24,36 26,80
TOTAL HT 24,36
TOTAL TVA 2,44
TOTAL TTC 26,80
CB 26,80`
	reg := testRegistry(t)
	lines := textnorm.Lines(textnorm.Normalize(raw))
	for i := 0; i < 20; i++ {
		conc := Run(reg, Config{}, lines)
		seq := RunSequential(reg, Config{}, lines)
		if !reflect.DeepEqual(conc, seq) {
			t.Fatalf("run %d: concurrent and sequential extraction differ\nconc: %+v\nseq:  %+v", i, conc, seq)
		}
	}
}
