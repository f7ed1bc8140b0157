package supplement

import (
	"fmt"
	"sort"
)

// Registry holds supplement definitions and pairwise interaction rules.
// It is populated at load time and read-only afterwards.
type Registry struct {
	defs  map[string]Definition
	rules []Rule
}

func NewRegistry() *Registry {
	return &Registry{defs: make(map[string]Definition)}
}

func (r *Registry) Register(d Definition) error {
	if _, exists := r.defs[d.ID]; exists {
		return &DuplicateSupplementError{ID: d.ID}
	}
	if d.ID == "" {
		return fmt.Errorf("%w: empty supplement id", ErrMalformedRule)
	}
	r.defs[d.ID] = d
	return nil
}

func (r *Registry) AddRule(rule Rule) error {
	switch rule.Target {
	case TargetSynthesis, TargetCD38, TargetAbsorption:
	default:
		return fmt.Errorf("%w: %q targets unknown term %q", ErrMalformedRule, rule.ID, rule.Target)
	}
	switch rule.Kind {
	case KindSynergistic, KindAntagonistic, KindCaution:
	default:
		return fmt.Errorf("%w: %q has unknown kind %q", ErrMalformedRule, rule.ID, rule.Kind)
	}
	switch rule.Severity {
	case SeverityWarning, SeverityBlock:
	default:
		return fmt.Errorf("%w: %q has unknown severity %q", ErrMalformedRule, rule.ID, rule.Severity)
	}
	if rule.Supplements[0] == "" || rule.Supplements[1] == "" {
		return fmt.Errorf("%w: %q must name two supplements", ErrMalformedRule, rule.ID)
	}
	if rule.LowerBound > rule.UpperBound {
		return fmt.Errorf("%w: %q has inverted coefficient bounds", ErrMalformedRule, rule.ID)
	}
	// A quantitative rule with a collapsed interval would pin every
	// calibration override to a single value, so missing bounds are an
	// error rather than a silent [0, 0].
	if rule.Kind != KindCaution && rule.LowerBound == rule.UpperBound {
		return fmt.Errorf("%w: %q needs a non-degenerate bounds interval", ErrMalformedRule, rule.ID)
	}
	r.rules = append(r.rules, rule)
	return nil
}

func (r *Registry) Get(id string) (Definition, error) {
	d, ok := r.defs[id]
	if !ok {
		return Definition{}, &UnknownSupplementError{ID: id}
	}
	return d, nil
}

// Definitions lists every registered supplement sorted by id.
func (r *Registry) Definitions() []Definition {
	out := make([]Definition, 0, len(r.defs))
	for _, d := range r.defs {
		out = append(out, d)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (r *Registry) Rules() []Rule {
	out := make([]Rule, len(r.rules))
	copy(out, r.rules)
	return out
}

// RulesFor returns the rules whose supplement pair is fully contained in
// the selection, in a canonical order independent of input ordering.
func (r *Registry) RulesFor(ids []string) []Rule {
	selected := make(map[string]bool, len(ids))
	for _, id := range ids {
		selected[id] = true
	}

	var out []Rule
	for _, rule := range r.rules {
		if rule.Matches(selected) {
			out = append(out, rule)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// FittableRulesFor filters RulesFor down to calibratable rules.
func (r *Registry) FittableRulesFor(ids []string) []Rule {
	var out []Rule
	for _, rule := range r.RulesFor(ids) {
		if rule.FitEnabled && rule.Kind != KindCaution {
			out = append(out, rule)
		}
	}
	return out
}

// RuleByID looks up a single rule.
func (r *Registry) RuleByID(id string) (Rule, bool) {
	for _, rule := range r.rules {
		if rule.ID == id {
			return rule, true
		}
	}
	return Rule{}, false
}
