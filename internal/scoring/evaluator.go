package scoring

import (
	"strings"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
)

// Flag is one triggered rule.
type Flag struct {
	Field   string `json:"field"`
	Message string `json:"message"`
}

// Evaluator applies a validated RuleSet to lab reports. It holds no mutable
// state and is safe for concurrent use.
type Evaluator struct {
	rules []Rule
}

// NewEvaluator returns an Evaluator for rs. The rule set is copied, so later
// changes to rs do not affect the evaluator.
func NewEvaluator(rs RuleSet) *Evaluator {
	rules := make([]Rule, len(rs.Rules))
	copy(rules, rs.Rules)
	return &Evaluator{rules: rules}
}

// Default returns an Evaluator over the built-in rules.
func Default() *Evaluator {
	return NewEvaluator(defaultRuleSet)
}

// Rules returns the evaluator's rules in evaluation order.
func (e *Evaluator) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Evaluate runs every rule against the report and returns one Flag per
// triggered rule, in rule order. It never fails: a numeric field that is
// absent passes its check, and an empty text field matches nothing.
//
// The result is never nil so it encodes as [] rather than null.
func (e *Evaluator) Evaluate(r labs.Report) []Flag {
	flags := make([]Flag, 0, len(e.rules))
	for _, rule := range e.rules {
		if triggered(rule, r) {
			flags = append(flags, Flag{Field: rule.Field, Message: rule.Message})
		}
	}
	return flags
}

// Evaluate applies the built-in rules.
func Evaluate(r labs.Report) []Flag {
	return Default().Evaluate(r)
}

func triggered(rule Rule, r labs.Report) bool {
	switch rule.Op {
	case OpBelow:
		v, ok := r.Number(rule.Field)
		return ok && v < *rule.Threshold
	case OpAbove:
		v, ok := r.Number(rule.Field)
		return ok && v > *rule.Threshold
	case OpEqualsFold:
		return strings.EqualFold(r.Text(rule.Field), rule.Match)
	case OpContains:
		return strings.Contains(r.Text(rule.Field), rule.Match)
	default:
		// Validate rejects unknown ops, so this is unreachable for a loaded set.
		return false
	}
}

// ─── AGGREGATE HELPERS ────────────────────────────────────────────────────────

// Messages returns the plain risk strings in flag order.
func Messages(flags []Flag) []string {
	out := make([]string, len(flags))
	for i, f := range flags {
		out[i] = f.Message
	}
	return out
}

// CountByField returns how many flags each field raised. Used for metrics.
func CountByField(flags []Flag) map[string]int {
	counts := make(map[string]int, len(flags))
	for _, f := range flags {
		counts[f.Field]++
	}
	return counts
}

// Load returns an Evaluator over the rule file at path, or over the built-in
// rules when path is empty.
func Load(path string) (*Evaluator, error) {
	if path == "" {
		return Default(), nil
	}
	rs, err := LoadRuleSet(path)
	if err != nil {
		return nil, err
	}
	return NewEvaluator(rs), nil
}
