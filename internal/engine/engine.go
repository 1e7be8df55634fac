// Package engine is the extraction pipeline: normalize, fan out the group
// extractors, resolve, score, assemble. One Engine instance is safe for
// concurrent use; the registry is loaded once and never mutated.
package engine

import (
	"context"
	"log/slog"
	"strings"

	"github.com/shopspring/decimal"

	"github.com/mehdidadah/scanzo/constants"
	"github.com/mehdidadah/scanzo/internal/common"
	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/extract"
	"github.com/mehdidadah/scanzo/internal/registry"
	"github.com/mehdidadah/scanzo/internal/resolve"
	"github.com/mehdidadah/scanzo/internal/score"
	"github.com/mehdidadah/scanzo/internal/textnorm"
)

type Engine struct {
	reg      *registry.Registry
	resolver resolve.Config
	scorer   score.Config
	window   int
	logger   *slog.Logger
}

// Option adjusts policy the flat application config does not reach.
type Option func(*Engine)

// WithScoring replaces the whole scoring policy: source bases, field
// weights, bonus, threshold and tolerance. It wins over the values derived
// from the application config.
func WithScoring(cfg score.Config) Option {
	return func(e *Engine) { e.scorer = cfg }
}

// WithResolution replaces the resolution policy the same way.
func WithResolution(cfg resolve.Config) Option {
	return func(e *Engine) { e.resolver = cfg }
}

// New builds an engine from the application config. A bad registry file is
// the caller's problem (fatal at startup); everything after New degrades
// instead of failing.
func New(reg *registry.Registry, cfg common.EngineConfig, logger *slog.Logger, opts ...Option) (*Engine, error) {
	tol, err := decimal.NewFromString(cfg.Tolerance)
	if err != nil {
		return nil, common.NewAppError(common.ErrCodeValidation, "invalid engine tolerance "+cfg.Tolerance, err)
	}
	resolver := resolve.DefaultConfig()
	resolver.Tolerance = tol
	if cfg.TrustPriority > 0 {
		resolver.TrustPriority = cfg.TrustPriority
	}
	scorer := score.DefaultConfig()
	scorer.Tolerance = tol
	if cfg.CoherenceThreshold > 0 {
		scorer.CoherenceThreshold = cfg.CoherenceThreshold
	}
	e := &Engine{
		reg:      reg,
		resolver: resolver,
		scorer:   scorer,
		window:   cfg.AdjacencyWindow,
		logger:   logger,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e, nil
}

// Extract runs the full pipeline over raw OCR text. It never returns an
// error for bad text; unusable input yields an all-UNRESOLVED result with
// zero confidence and an explanatory warning.
func (e *Engine) Extract(ctx context.Context, raw, localeHint string) entity.ExtractionResult {
	_ = ctx

	normalized := textnorm.Normalize(raw)
	if strings.TrimSpace(normalized) == "" {
		e.logger.Warn("engine.extract.empty_input")
		return degraded("empty input: nothing to extract")
	}
	lines := textnorm.Lines(normalized)

	ex := extract.Run(e.reg, extract.Config{Locale: localeHint, AdjacencyWindow: e.window}, lines)
	e.logger.Debug("engine.extract.candidates",
		"candidates", len(ex.Candidates), "tax_rows", len(ex.TaxRows))

	if !hasNumericContent(ex) {
		e.logger.Warn("engine.extract.no_numeric_content")
		return degraded("no numeric content detected: document is not a receipt")
	}

	res := resolve.Resolve(e.resolver, ex)
	verdict := score.Score(e.scorer, res)
	out := assemble(res, verdict)

	e.logger.Info("engine.extract.done",
		"global_confidence", out.GlobalConfidence,
		"coherent", out.Coherent,
		"warnings", len(out.Warnings))
	return out
}

// hasNumericContent gates the degraded path: without a single monetary
// candidate or tax row there is nothing financial to resolve, and textual
// matches alone (a vendor-looking header, a date) are noise.
func hasNumericContent(ex extract.Extraction) bool {
	if len(ex.TaxRows) > 0 {
		return true
	}
	monetary := make(map[string]bool, len(constants.MonetaryFields))
	for _, m := range constants.MonetaryFields {
		monetary[m] = true
	}
	for _, c := range ex.Candidates {
		if monetary[c.Field] {
			return true
		}
	}
	return false
}

func degraded(warning string) entity.ExtractionResult {
	fields := make(map[string]entity.ResolvedField, len(constants.Fields))
	for _, name := range constants.Fields {
		fields[name] = entity.ResolvedField{Source: entity.SourceUnresolved}
	}
	return entity.ExtractionResult{
		Fields:   fields,
		Warnings: []string{warning},
	}
}

// assemble maps the resolution and verdict onto the public result shape.
// Amounts are rounded half-up to cents exactly once, here.
func assemble(res resolve.Resolution, verdict score.Verdict) entity.ExtractionResult {
	out := entity.ExtractionResult{
		Fields:           make(map[string]entity.ResolvedField, len(res.Fields)),
		GlobalConfidence: verdict.Global,
		Coherent:         verdict.Coherent,
		Warnings:         res.Warnings,
	}
	for name, f := range res.Fields {
		rf := entity.ResolvedField{
			Text:       f.Text,
			Confidence: verdict.FieldConfidence[name],
			Source:     f.Source,
		}
		if f.Amount != nil {
			r := f.Amount.Round(2)
			rf.Amount = &r
		}
		out.Fields[name] = rf
	}
	for _, l := range res.TaxLines {
		out.TaxLines = append(out.TaxLines, entity.TaxLine{
			Label: l.Label,
			Rate:  l.Rate,
			Base:  roundPtr(l.Base),
			Tax:   roundPtr(l.Tax),
			Total: roundPtr(l.Total),
		})
	}
	return out
}

func roundPtr(d *decimal.Decimal) *decimal.Decimal {
	if d == nil {
		return nil
	}
	r := d.Round(2)
	return &r
}
