package escalation

import (
	"fmt"

	"github.com/google/cel-go/cel"
	"github.com/pkg/errors"
)

// Rule is a product-defined escalation trigger written in CEL. The expression
// sees tier, text, specialist and low_confidence_streak and must return a bool.
type Rule struct {
	Name   string `yaml:"name"`
	Expr   string `yaml:"expr"`
	Reason string `yaml:"reason"`
}

// RulesConfig is the YAML layout of the escalation rules file.
type RulesConfig struct {
	Rules []Rule `yaml:"rules"`
}

// Facts are the variables a rule can read.
type Facts struct {
	Tier                string
	Text                string
	Specialist          string
	LowConfidenceStreak int
}

func (f Facts) activation() map[string]any {
	return map[string]any{
		"tier":                  f.Tier,
		"text":                  f.Text,
		"specialist":            f.Specialist,
		"low_confidence_streak": int64(f.LowConfidenceStreak),
	}
}

type compiledRule struct {
	program cel.Program
	rule    Rule
}

// RuleSet evaluates compiled rules in order.
type RuleSet struct {
	rules []compiledRule
}

// NewRuleSet compiles rules. An expression that fails to compile or does not
// return a bool is an error.
func NewRuleSet(rules []Rule) (*RuleSet, error) {
	env, err := cel.NewEnv(
		cel.Variable("tier", cel.StringType),
		cel.Variable("text", cel.StringType),
		cel.Variable("specialist", cel.StringType),
		cel.Variable("low_confidence_streak", cel.IntType),
	)
	if err != nil {
		return nil, errors.Wrap(err, "failed to create CEL environment")
	}

	rs := &RuleSet{}
	for i, r := range rules {
		if r.Name == "" {
			r.Name = fmt.Sprintf("rule-%d", i+1)
		}
		ast, issues := env.Compile(r.Expr)
		if issues != nil && issues.Err() != nil {
			return nil, errors.Wrapf(issues.Err(), "invalid escalation rule %s", r.Name)
		}
		if !ast.OutputType().IsExactType(cel.BoolType) {
			return nil, errors.Errorf("escalation rule %s must return bool, got %s", r.Name, ast.OutputType())
		}
		prg, err := env.Program(ast)
		if err != nil {
			return nil, errors.Wrapf(err, "failed to build program for rule %s", r.Name)
		}
		rs.rules = append(rs.rules, compiledRule{rule: r, program: prg})
	}
	return rs, nil
}

// Len returns the number of compiled rules.
func (rs *RuleSet) Len() int {
	if rs == nil {
		return 0
	}
	return len(rs.rules)
}

// Evaluate returns the first rule that holds for facts. Evaluation errors are
// collected and the remaining rules still run.
func (rs *RuleSet) Evaluate(facts Facts) (Rule, bool, error) {
	if rs == nil {
		return Rule{}, false, nil
	}
	var errs error
	vars := facts.activation()
	for _, cr := range rs.rules {
		out, _, err := cr.program.Eval(vars)
		if err != nil {
			if errs == nil {
				errs = errors.Wrapf(err, "rule %s", cr.rule.Name)
			}
			continue
		}
		if matched, ok := out.Value().(bool); ok && matched {
			return cr.rule, true, errs
		}
	}
	return Rule{}, false, errs
}
