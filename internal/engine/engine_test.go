package engine

import (
	"context"
	"io"
	"log/slog"
	"strings"
	"testing"

	"github.com/shopspring/decimal"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/score"
)

func newTestEngine(t *testing.T) *Engine {
	t.Helper()
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("loading default registry: %v", err)
	}
	cfg := common.EngineConfig{
		Tolerance:          "0.01",
		TrustPriority:      30,
		AdjacencyWindow:    40,
		CoherenceThreshold: 0.60,
	}
	e, err := New(reg, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)))
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}
	return e
}

func wantAmount(t *testing.T, res entity.ExtractionResult, field, amount string, source entity.Source) {
	t.Helper()
	f := res.Field(field)
	if f.Source != source {
		t.Errorf("%s source = %s, want %s", field, f.Source, source)
	}
	if f.Amount == nil {
		t.Fatalf("%s amount is nil", field)
	}
	if !f.Amount.Equal(decimal.RequireFromString(amount)) {
		t.Errorf("%s = %s, want %s", field, f.Amount, amount)
	}
}

func TestExtractCoherentReceipt(t *testing.T) {
	e := newTestEngine(t)
	raw := "CARREFOUR MARKET\n" +
		"12/03/2024\n" +
		"TOTAL HT: 45,45 €\n" +
		"TOTAL TVA: 4,55 €\n" +
		"TOTAL TTC: 50,00 €\n"

	res := e.Extract(context.Background(), raw, "fr")

	wantAmount(t, res, constants.FieldTotalHT, "45.45", entity.SourceDirectMatch)
	wantAmount(t, res, constants.FieldTVAAmount, "4.55", entity.SourceDirectMatch)
	wantAmount(t, res, constants.FieldTotalTTC, "50", entity.SourceDirectMatch)

	if got := res.Field(constants.FieldVendor).Text; got != "CARREFOUR MARKET" {
		t.Errorf("vendor = %q", got)
	}
	if got := res.Field(constants.FieldDate).Text; got != "12-03-2024" {
		t.Errorf("date = %q, want 12-03-2024", got)
	}
	if !res.Coherent {
		t.Errorf("coherent = false, global = %v, warnings = %v", res.GlobalConfidence, res.Warnings)
	}
	if len(res.Warnings) != 0 {
		t.Errorf("unexpected warnings: %v", res.Warnings)
	}
}

func TestExtractFallbackSubtotal(t *testing.T) {
	e := newTestEngine(t)
	raw := "BOULANGERIE PAUL\n" +
		"TOTAL TTC: 50,00 €\n" +
		"TVA 10%: 4,55 €\n"

	res := e.Extract(context.Background(), raw, "fr")

	wantAmount(t, res, constants.FieldTotalHT, "45.45", entity.SourceFallbackComputed)
	wantAmount(t, res, constants.FieldTotalTTC, "50", entity.SourceDirectMatch)

	ht := res.Field(constants.FieldTotalHT)
	ttc := res.Field(constants.FieldTotalTTC)
	if ht.Confidence >= ttc.Confidence {
		t.Errorf("fallback confidence %v not below direct %v", ht.Confidence, ttc.Confidence)
	}
}

func TestExtractFallbackBelowDirectConfidence(t *testing.T) {
	e := newTestEngine(t)
	direct := e.Extract(context.Background(),
		"TOTAL HT: 45,45 €\nTOTAL TVA: 4,55 €\nTOTAL TTC: 50,00 €\n", "fr")
	fallback := e.Extract(context.Background(),
		"TOTAL TTC: 50,00 €\nTVA 10%: 4,55 €\n", "fr")

	d := direct.Field(constants.FieldTotalHT).Confidence
	f := fallback.Field(constants.FieldTotalHT).Confidence
	if f >= d {
		t.Errorf("fallback subtotal confidence %v, want below direct %v", f, d)
	}
}

func TestExtractTaxTableAggregation(t *testing.T) {
	e := newTestEngine(t)
	raw := "SUPER U\n" +
		"15/01/2024\n" +
		"TAUX TVA HT TTC\n" +
		"B 10,00% 2,44 24,36 26,80\n" +
		"TOTAL TTC: 26,80 €\n"

	res := e.Extract(context.Background(), raw, "fr")

	wantAmount(t, res, constants.FieldTotalHT, "24.36", entity.SourceAggregated)
	wantAmount(t, res, constants.FieldTVAAmount, "2.44", entity.SourceAggregated)
	wantAmount(t, res, constants.FieldTotalTTC, "26.80", entity.SourceDirectMatch)

	if len(res.TaxLines) != 1 {
		t.Fatalf("tax lines = %d, want 1", len(res.TaxLines))
	}
	line := res.TaxLines[0]
	if line.Rate == nil || *line.Rate != 10 {
		t.Errorf("tax line rate = %v, want 10", line.Rate)
	}
	if !res.Coherent {
		t.Errorf("coherent = false, warnings = %v", res.Warnings)
	}
}

func TestExtractBrokenTaxTableNotCoherent(t *testing.T) {
	// the direct triple reconciles, but the tax table contradicts it: the
	// verdict must not be coherent on triple arithmetic alone
	e := newTestEngine(t)
	raw := "CARREFOUR MARKET\n" +
		"12/03/2024\n" +
		"TAUX TVA HT TTC\n" +
		"B 10,00% 2,44 24,36 99,99\n" +
		"TOTAL HT: 45,45 €\n" +
		"TOTAL TVA: 4,55 €\n" +
		"TOTAL TTC: 50,00 €\n"

	res := e.Extract(context.Background(), raw, "fr")

	wantAmount(t, res, constants.FieldTotalHT, "45.45", entity.SourceDirectMatch)
	wantAmount(t, res, constants.FieldTotalTTC, "50", entity.SourceDirectMatch)
	if res.Coherent {
		t.Errorf("coherent = true despite a contradicting tax table, warnings = %v", res.Warnings)
	}
	if len(res.Warnings) == 0 {
		t.Fatal("contradicting tax table produced no warning")
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "99.99") {
			found = true
		}
	}
	if !found {
		t.Errorf("no warning names the bad total: %v", res.Warnings)
	}
}

func TestExtractCustomScoringPolicy(t *testing.T) {
	reg, err := registry.Default()
	if err != nil {
		t.Fatalf("loading default registry: %v", err)
	}
	cfg := common.EngineConfig{Tolerance: "0.01", TrustPriority: 30, AdjacencyWindow: 40}
	sc := score.DefaultConfig()
	sc.SourceBase[entity.SourceDirectMatch] = 0.40
	sc.CoherenceBonus = 0
	e, err := New(reg, cfg, slog.New(slog.NewTextHandler(io.Discard, nil)), WithScoring(sc))
	if err != nil {
		t.Fatalf("building engine: %v", err)
	}

	raw := "CARREFOUR MARKET\n" +
		"12/03/2024\n" +
		"TOTAL HT: 45,45 €\n" +
		"TOTAL TVA: 4,55 €\n" +
		"TOTAL TTC: 50,00 €\n"
	res := e.Extract(context.Background(), raw, "fr")

	// DIRECT_MATCH at priority 30 under the custom base: 0.40 * 0.85
	want := 0.34
	got := res.Field(constants.FieldTotalTTC).Confidence
	if diff := got - want; diff > 1e-9 || diff < -1e-9 {
		t.Errorf("ttc confidence = %v, want %v", got, want)
	}
}

func TestExtractDegradedNonReceipt(t *testing.T) {
	e := newTestEngine(t)
	res := e.Extract(context.Background(), "MERCI DE VOTRE VISITE\nA BIENTOT\n", "fr")

	for _, name := range constants.Fields {
		if res.Field(name).Resolved() {
			t.Errorf("%s resolved on a non-receipt document", name)
		}
	}
	if res.GlobalConfidence != 0 {
		t.Errorf("global confidence = %v, want 0", res.GlobalConfidence)
	}
	if res.Coherent {
		t.Error("non-receipt judged coherent")
	}
	if len(res.Warnings) == 0 {
		t.Error("degraded result carries no warning")
	}
}

func TestExtractEmptyInput(t *testing.T) {
	e := newTestEngine(t)
	for _, raw := range []string{"", "   \n\n\t"} {
		res := e.Extract(context.Background(), raw, "")
		if res.GlobalConfidence != 0 || res.Coherent {
			t.Errorf("empty input %q: confidence %v coherent %v", raw, res.GlobalConfidence, res.Coherent)
		}
		if len(res.Warnings) == 0 {
			t.Errorf("empty input %q: no warning", raw)
		}
	}
}

func TestExtractPaymentLineConflict(t *testing.T) {
	e := newTestEngine(t)
	raw := "TOTAL TTC: 50,00 €\n" +
		"TVA 10%: 4,55 €\n" +
		"CB: 60,00 €\n"

	res := e.Extract(context.Background(), raw, "fr")

	// the labeled total outranks the payment-line amount
	wantAmount(t, res, constants.FieldTotalTTC, "50", entity.SourceDirectMatch)
	if got := res.Field(constants.FieldPaymentMethod).Text; got != "CB" {
		t.Errorf("payment method = %q, want CB", got)
	}
	found := false
	for _, w := range res.Warnings {
		if strings.Contains(w, "60") {
			found = true
		}
	}
	if !found {
		t.Errorf("discarded payment amount not surfaced in warnings: %v", res.Warnings)
	}
}

func TestExtractDeterministicAcrossRuns(t *testing.T) {
	e := newTestEngine(t)
	raw := "MONOPRIX\n05/06/2024\nTAUX TVA HT TTC\n" +
		"B 10,00% 2,44 24,36 26,80\n" +
		"A 20,00% 5,00 25,00 30,00\n" +
		"TOTAL TTC: 56,80 €\n"

	first := e.Extract(context.Background(), raw, "fr")
	for i := 0; i < 20; i++ {
		again := e.Extract(context.Background(), raw, "fr")
		if again.GlobalConfidence != first.GlobalConfidence {
			t.Fatalf("run %d: confidence %v != %v", i, again.GlobalConfidence, first.GlobalConfidence)
		}
		if len(again.TaxLines) != len(first.TaxLines) {
			t.Fatalf("run %d: tax line count changed", i)
		}
	}
}
