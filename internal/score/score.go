// Package score turns a resolution into per-field confidences, a weighted
// global confidence and the coherence verdict. Scoring is deterministic:
// the same resolution always yields the same numbers.
package score

import (
	"math"
	"slices"

	"github.com/shopspring/decimal"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/resolve"
)

// Config carries the scoring policy.
type Config struct {
	// SourceBase is the starting confidence per resolution source.
	SourceBase map[entity.Source]float64
	// Weights drives the global weighted average; fields missing from the
	// map count with weight zero.
	Weights map[string]float64
	// CoherenceBonus is added to every resolved financial field when the
	// HT/TVA/TTC triple reconciles.
	CoherenceBonus float64
	// CoherenceThreshold is the minimum global confidence for a coherent
	// verdict.
	CoherenceThreshold float64
	// Tolerance mirrors the resolver tolerance for the triple check.
	Tolerance decimal.Decimal
}

// DefaultConfig returns the stock scoring policy. Financial fields dominate
// the global average; vendor and date are context.
func DefaultConfig() Config {
	return Config{
		SourceBase: map[entity.Source]float64{
			entity.SourceDirectMatch:      0.90,
			entity.SourceAggregated:       0.75,
			entity.SourceFallbackComputed: 0.55,
		},
		Weights: map[string]float64{
			constants.FieldVendor:        0.5,
			constants.FieldDate:          0.5,
			constants.FieldPaymentMethod: 0.25,
			constants.FieldTotalHT:       1.0,
			constants.FieldTVAAmount:     1.0,
			constants.FieldTotalTTC:      1.5,
		},
		CoherenceBonus:     0.10,
		CoherenceThreshold: 0.60,
		Tolerance:          decimal.RequireFromString("0.01"),
	}
}

// Verdict is the scorer output.
type Verdict struct {
	FieldConfidence map[string]float64
	Global          float64
	TripleOK        bool
	Coherent        bool
}

// Score computes per-field and global confidence for a resolution.
func Score(cfg Config, res resolve.Resolution) Verdict {
	v := Verdict{FieldConfidence: make(map[string]float64)}
	v.TripleOK = tripleReconciles(cfg, res)

	for name, f := range res.Fields {
		if !f.Resolved() {
			v.FieldConfidence[name] = 0
			continue
		}
		c := cfg.SourceBase[f.Source] * priorityFactor(f.Priority)
		if v.TripleOK && isMonetary(name) {
			c += cfg.CoherenceBonus
		}
		v.FieldConfidence[name] = clamp(c)
	}

	var sum, weight float64
	for name, w := range cfg.Weights {
		sum += v.FieldConfidence[name] * w
		weight += w
	}
	if weight > 0 {
		v.Global = round3(sum / weight)
	}
	v.Coherent = v.TripleOK && !res.InvariantViolated && v.Global >= cfg.CoherenceThreshold
	return v
}

// priorityFactor discounts confidence for weaker rules. Priority 0 keeps the
// full base; priority 100 halves it; never below half.
func priorityFactor(priority int) float64 {
	f := 1 - float64(priority)/200
	if f < 0.5 {
		return 0.5
	}
	if f > 1 {
		return 1
	}
	return f
}

func tripleReconciles(cfg Config, res resolve.Resolution) bool {
	ht := res.Fields[constants.FieldTotalHT]
	tva := res.Fields[constants.FieldTVAAmount]
	ttc := res.Fields[constants.FieldTotalTTC]
	if !ht.Resolved() || !tva.Resolved() || !ttc.Resolved() {
		return false
	}
	diff := ht.Amount.Add(*tva.Amount).Sub(*ttc.Amount).Abs()
	return diff.LessThanOrEqual(cfg.Tolerance)
}

func isMonetary(name string) bool {
	return slices.Contains(constants.MonetaryFields, name)
}

func clamp(v float64) float64 {
	if v < 0 {
		return 0
	}
	if v > 1 {
		return 1
	}
	return v
}

func round3(v float64) float64 {
	return math.Round(v*1000) / 1000
}
