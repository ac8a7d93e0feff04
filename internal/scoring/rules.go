// Package scoring implements the rule-based risk flagging applied to every lab
// report before it is sent for narration. It imports only internal/labs and can
// be tested without a network or a model.
package scoring

import (
	"bytes"
	_ "embed"
	"errors"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/nyashahama/lab-diagnostic-assistant/internal/labs"
)

// Op is the comparison a rule applies to its field.
type Op string

const (
	OpBelow      Op = "below"       // numeric: value < threshold
	OpAbove      Op = "above"       // numeric: value > threshold
	OpEqualsFold Op = "equals_fold" // text: case-insensitive equality
	OpContains   Op = "contains"    // text: substring
)

func (o Op) numeric() bool { return o == OpBelow || o == OpAbove }
func (o Op) text() bool    { return o == OpEqualsFold || o == OpContains }

// Rule is one threshold check.
//
// File shape:
//
//	- field: hemoglobin
//	  op: below
//	  threshold: 12
//	  message: "Low Hemoglobin – anemia risk"
type Rule struct {
	Field     string   `yaml:"field" json:"field"`
	Op        Op       `yaml:"op" json:"op"`
	Threshold *float64 `yaml:"threshold,omitempty" json:"threshold,omitempty"`
	Match     string   `yaml:"match,omitempty" json:"match,omitempty"`
	Message   string   `yaml:"message" json:"message"`
}

// Validate checks the rule against the lab field catalog.
func (r Rule) Validate() error {
	f, ok := labs.Lookup(r.Field)
	if !ok {
		return fmt.Errorf("rule: unknown field %q", r.Field)
	}
	if r.Message == "" {
		return fmt.Errorf("rule %s/%s: message must not be empty", r.Field, r.Op)
	}

	switch {
	case r.Op.numeric():
		if f.Kind != labs.KindNumeric {
			return fmt.Errorf("rule %s/%s: numeric op on %s field", r.Field, r.Op, f.Kind)
		}
		if r.Threshold == nil {
			return fmt.Errorf("rule %s/%s: threshold is required", r.Field, r.Op)
		}
	case r.Op.text():
		if f.Kind != labs.KindText {
			return fmt.Errorf("rule %s/%s: text op on %s field", r.Field, r.Op, f.Kind)
		}
		if r.Match == "" {
			return fmt.Errorf("rule %s/%s: match is required", r.Field, r.Op)
		}
	default:
		return fmt.Errorf("rule %s: unknown op %q", r.Field, r.Op)
	}
	return nil
}

// RuleSet is an ordered list of rules. Order is significant: flags come out in
// the order their rules appear.
type RuleSet struct {
	Rules []Rule `yaml:"rules" json:"rules"`
}

// Validate checks every rule and reports all problems at once.
func (rs RuleSet) Validate() error {
	if len(rs.Rules) == 0 {
		return errors.New("rule set: no rules defined")
	}
	var errs []error
	for i, r := range rs.Rules {
		if err := r.Validate(); err != nil {
			errs = append(errs, fmt.Errorf("rules[%d]: %w", i, err))
		}
	}
	return errors.Join(errs...)
}

//go:embed rules.yaml
var defaultRulesYAML []byte

var defaultRuleSet = mustParse(defaultRulesYAML)

func mustParse(raw []byte) RuleSet {
	rs, err := ParseRuleSet(raw)
	if err != nil {
		panic(fmt.Sprintf("scoring: embedded rules.yaml is invalid: %v", err))
	}
	return rs
}

// DefaultRuleSet returns the built-in rules.
func DefaultRuleSet() RuleSet {
	out := RuleSet{Rules: make([]Rule, len(defaultRuleSet.Rules))}
	copy(out.Rules, defaultRuleSet.Rules)
	return out
}

// ParseRuleSet decodes a YAML rule document and validates it. Unknown keys are
// rejected.
func ParseRuleSet(raw []byte) (RuleSet, error) {
	if len(raw) == 0 {
		return RuleSet{}, errors.New("rule set: empty document")
	}

	dec := yaml.NewDecoder(bytes.NewReader(raw))
	dec.KnownFields(true)

	var rs RuleSet
	if err := dec.Decode(&rs); err != nil {
		return RuleSet{}, fmt.Errorf("rule set: decode: %w", err)
	}
	if err := rs.Validate(); err != nil {
		return RuleSet{}, err
	}
	return rs, nil
}

// LoadRuleSet reads and parses a rule file from disk.
func LoadRuleSet(path string) (RuleSet, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return RuleSet{}, fmt.Errorf("rule set: read %s: %w", path, err)
	}
	rs, err := ParseRuleSet(raw)
	if err != nil {
		return RuleSet{}, fmt.Errorf("%s: %w", path, err)
	}
	return rs, nil
}
