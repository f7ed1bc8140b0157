package supplement

import (
	"fmt"
	"sort"
)

// Issue codes attached to validation findings.
const (
	CodeUnknownSupplement  = "unknown_supplement"
	CodeRouteUnsupported   = "route_unsupported"
	CodeSupplementDisabled = "supplement_disabled"
	CodeBlockedCombination = "blocked_combination"
	CodeInvalidDose        = "invalid_dose"
	CodeDuplicateSelection = "duplicate_selection"
	CodeStackSize          = "stack_size"
	CodePrecursorOverlap   = "precursor_overlap"
	CodePlaceholderModel   = "placeholder_model"
	CodeCautionInteraction = "caution_interaction"
)

// Issue is one validation finding.
type Issue struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

// ValidationReport is the structured outcome of stack validation. A
// scenario is runnable iff Admissible; warnings never block a run.
type ValidationReport struct {
	Errors     []Issue `json:"errors"`
	Warnings   []Issue `json:"warnings"`
	Admissible bool    `json:"admissible"`
}

const maxRecommendedStack = 5

// Validate checks a requested stack against the registry. It is a pure
// function of (registry, route, selection, doses): deterministic output,
// independent of selection ordering.
func Validate(reg *Registry, route string, ids []string, doses map[string]float64) ValidationReport {
	var errs, warns []Issue

	ordered := append([]string(nil), ids...)
	sort.Strings(ordered)

	if len(ordered) > maxRecommendedStack {
		warns = append(warns, Issue{
			Code:    CodeStackSize,
			Message: fmt.Sprintf("%d supplements selected; calibration quality degrades beyond %d", len(ordered), maxRecommendedStack),
		})
	}

	seen := make(map[string]bool, len(ordered))
	classCounts := make(map[string]int)
	for _, id := range ordered {
		if seen[id] {
			warns = append(warns, Issue{
				Code:    CodeDuplicateSelection,
				Message: fmt.Sprintf("duplicate supplement %q ignored", id),
			})
			continue
		}
		seen[id] = true

		def, err := reg.Get(id)
		if err != nil {
			errs = append(errs, Issue{
				Code:    CodeUnknownSupplement,
				Message: err.Error(),
			})
			continue
		}

		if !def.Enabled {
			errs = append(errs, Issue{
				Code:    CodeSupplementDisabled,
				Message: fmt.Sprintf("supplement %q is disabled in the registry", def.Label),
			})
			continue
		}

		if !def.SupportsRoute(route) {
			errs = append(errs, Issue{
				Code:    CodeRouteUnsupported,
				Message: fmt.Sprintf("supplement %q does not support the %q route", def.Label, route),
			})
		}

		if dose, ok := doses[id]; ok && dose < 0 {
			errs = append(errs, Issue{
				Code:    CodeInvalidDose,
				Message: fmt.Sprintf("supplement %q has a negative dose", def.Label),
			})
		}

		if !def.ModelReady {
			warns = append(warns, Issue{
				Code:    CodePlaceholderModel,
				Message: fmt.Sprintf("%s: interaction model is placeholder only (%s)", def.Label, def.Notes),
			})
		}

		classCounts[def.MechanismClass]++
	}

	if classCounts["nad_precursor"] > 1 {
		warns = append(warns, Issue{
			Code:    CodePrecursorOverlap,
			Message: "multiple NAD precursor supplements selected; pairwise interaction calibration is incomplete",
		})
	}

	selection := make([]string, 0, len(seen))
	for id := range seen {
		selection = append(selection, id)
	}
	for _, rule := range reg.RulesFor(selection) {
		a, b := rule.Pair()
		switch {
		case rule.Severity == SeverityBlock:
			errs = append(errs, Issue{
				Code:    CodeBlockedCombination,
				Message: fmt.Sprintf("%s + %s: %s", a, b, rule.Message),
			})
		case rule.Kind == KindCaution:
			warns = append(warns, Issue{
				Code:    CodeCautionInteraction,
				Message: fmt.Sprintf("%s + %s: %s", a, b, rule.Message),
			})
		default:
			warns = append(warns, Issue{
				Code:    CodeCautionInteraction,
				Message: fmt.Sprintf("%s + %s: %s (coefficient %.3f)", a, b, rule.Message, rule.Coefficient),
			})
		}
	}

	return ValidationReport{
		Errors:     dedupe(errs),
		Warnings:   dedupe(warns),
		Admissible: len(errs) == 0,
	}
}

// dedupe removes repeated findings while preserving order.
func dedupe(issues []Issue) []Issue {
	seen := make(map[Issue]bool, len(issues))
	out := issues[:0]
	for _, is := range issues {
		if !seen[is] {
			seen[is] = true
			out = append(out, is)
		}
	}
	return out
}
