// Package extract applies registry rules to normalized text and emits raw
// candidates. Group extractors share nothing but the read-only registry and
// line array, so they fan out concurrently and merge after the join; all
// disambiguation between candidates is deferred to the resolver.
package extract

import (
	"sync"

	"github.com/mehdidadah/scanzo/internal/entity"
	"github.com/mehdidadah/scanzo/internal/registry"
)

// Config carries the extraction knobs owned by the calling product.
type Config struct {
	Locale          string // locale hint, empty = all rules active
	AdjacencyWindow int    // vertical tax-block scan depth in lines
}

// DefaultAdjacencyWindow bounds how far below an anchor the vertical
// tax-table detector looks.
const DefaultAdjacencyWindow = 40

func (c Config) window() int {
	if c.AdjacencyWindow <= 0 {
		return DefaultAdjacencyWindow
	}
	return c.AdjacencyWindow
}

// Extraction is the merged output of all group extractors.
type Extraction struct {
	Candidates []entity.Candidate
	TaxRows    []entity.TaxRowCandidate
}

type groupOut struct {
	candidates []entity.Candidate
	taxRows    []entity.TaxRowCandidate
}

// Run executes every group extractor concurrently (fork-join) and merges
// their private outputs in fixed group order, so results are identical to
// RunSequential.
func Run(reg *registry.Registry, cfg Config, lines []string) Extraction {
	runners := groupRunners(reg, cfg, lines)
	outs := make([]groupOut, len(runners))

	var wg sync.WaitGroup
	for i, fn := range runners {
		wg.Add(1)
		go func(i int, fn func() groupOut) {
			defer wg.Done()
			outs[i] = fn()
		}(i, fn)
	}
	wg.Wait()
	return mergeOuts(outs)
}

// RunSequential executes the same group extractors one by one. Used to verify
// the concurrent path and by callers that want to avoid goroutines.
func RunSequential(reg *registry.Registry, cfg Config, lines []string) Extraction {
	runners := groupRunners(reg, cfg, lines)
	outs := make([]groupOut, len(runners))
	for i, fn := range runners {
		outs[i] = fn()
	}
	return mergeOuts(outs)
}

func groupRunners(reg *registry.Registry, cfg Config, lines []string) []func() groupOut {
	return []func() groupOut{
		func() groupOut { return groupOut{candidates: extractHeader(reg, cfg, lines)} },
		func() groupOut { return groupOut{candidates: extractDate(reg, cfg, lines)} },
		func() groupOut { return groupOut{candidates: extractAmounts(reg, cfg, lines)} },
		func() groupOut { return groupOut{taxRows: extractTaxTable(reg, cfg, lines)} },
	}
}

func mergeOuts(outs []groupOut) Extraction {
	var ex Extraction
	for _, o := range outs {
		ex.Candidates = append(ex.Candidates, o.candidates...)
		ex.TaxRows = append(ex.TaxRows, o.taxRows...)
	}
	return ex
}

// activeRules filters a role's rules by locale.
func activeRules(reg *registry.Registry, cfg Config, role string) []*registry.Rule {
	all := reg.Field(role)
	out := make([]*registry.Rule, 0, len(all))
	for _, r := range all {
		if r.AppliesTo(cfg.Locale) {
			out = append(out, r)
		}
	}
	return out
}

// activeGroup filters a whole group's rules by locale.
func activeGroup(reg *registry.Registry, cfg Config, group string) []*registry.Rule {
	all := reg.Group(group)
	out := make([]*registry.Rule, 0, len(all))
	for _, r := range all {
		if r.AppliesTo(cfg.Locale) {
			out = append(out, r)
		}
	}
	return out
}
