// Package registry holds the ordered extraction rule catalogue. The registry
// is loaded once at startup, validated against a JSON Schema, compiled, and
// read-only afterwards; it is the single customization point for new receipt
// dialects.
package registry

import (
	_ "embed"
	"encoding/json"
	"fmt"
	"os"
	"regexp"
	"sort"

	"github.com/santhosh-tekuri/jsonschema/v5"
)

//go:embed rules.json
var defaultRules []byte

//go:embed schema.json
var schemaJSON string

// Rule is one extraction pattern. Priority orders candidates during
// resolution: lower value = higher precedence.
type Rule struct {
	ID       string `json:"id"`
	Group    string `json:"group"`
	Field    string `json:"field"`
	Pattern  string `json:"pattern"`
	Priority int    `json:"priority"`
	Locale   string `json:"locale"`

	re *regexp.Regexp
}

// Regexp returns the compiled pattern.
func (r *Rule) Regexp() *regexp.Regexp { return r.re }

// AppliesTo reports whether the rule is active for a locale hint. An empty
// hint activates every rule; locale "*" rules are always active.
func (r *Rule) AppliesTo(locale string) bool {
	return locale == "" || r.Locale == "*" || r.Locale == locale
}

// Registry is the immutable, priority-ordered rule catalogue. Safe for
// unlimited concurrent readers once built.
type Registry struct {
	rules   []*Rule
	byGroup map[string][]*Rule
	byField map[string][]*Rule
}

type document struct {
	Rules []*Rule `json:"rules"`
}

// Load parses, validates and compiles a registry document. Any schema
// violation or unparseable pattern is a fatal configuration error; this is
// the only fatal condition in the engine and it surfaces at startup, never
// per request.
func Load(data []byte) (*Registry, error) {
	sch, err := jsonschema.CompileString("registry/schema.json", schemaJSON)
	if err != nil {
		return nil, fmt.Errorf("compile registry schema: %w", err)
	}
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("parse registry document: %w", err)
	}
	if err := sch.Validate(raw); err != nil {
		return nil, fmt.Errorf("validate registry document: %w", err)
	}

	var doc document
	if err := json.Unmarshal(data, &doc); err != nil {
		return nil, fmt.Errorf("decode registry document: %w", err)
	}

	reg := &Registry{
		byGroup: make(map[string][]*Rule),
		byField: make(map[string][]*Rule),
	}
	seen := make(map[string]struct{}, len(doc.Rules))
	for _, r := range doc.Rules {
		if _, dup := seen[r.ID]; dup {
			return nil, fmt.Errorf("duplicate rule id %q", r.ID)
		}
		seen[r.ID] = struct{}{}
		r.re, err = regexp.Compile(r.Pattern)
		if err != nil {
			return nil, fmt.Errorf("rule %q: bad pattern: %w", r.ID, err)
		}
		reg.rules = append(reg.rules, r)
	}

	// order by priority, stable on document order
	sort.SliceStable(reg.rules, func(i, j int) bool {
		return reg.rules[i].Priority < reg.rules[j].Priority
	})
	for _, r := range reg.rules {
		reg.byGroup[r.Group] = append(reg.byGroup[r.Group], r)
		reg.byField[r.Field] = append(reg.byField[r.Field], r)
	}
	return reg, nil
}

// LoadFile loads a registry document from disk.
func LoadFile(path string) (*Registry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read registry file: %w", err)
	}
	return Load(data)
}

// Default loads the embedded rule catalogue.
func Default() (*Registry, error) {
	return Load(defaultRules)
}

// Group returns the active rules of a group in priority order. Callers must
// treat the slice as read-only.
func (reg *Registry) Group(name string) []*Rule { return reg.byGroup[name] }

// Field returns the active rules targeting a field or role, in priority order.
func (reg *Registry) Field(name string) []*Rule { return reg.byField[name] }

// Len returns the number of registered rules.
func (reg *Registry) Len() int { return len(reg.rules) }
