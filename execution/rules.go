package execution

import (
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/validator/core"
	"github.com/vektah/gqlparser/v2/validator/rules"

	"github.com/syssam/beacon/config"
)

// Names of the query safety rules.
const (
	RuleMaxQueryDepth        = "MaxQueryDepth"
	RuleMaxQueryComplexity   = "MaxQueryComplexity"
	RuleDisableIntrospection = "DisableIntrospection"
)

// ComplexityLookup returns the complexity function of a field, nil for the
// default cost of one plus the cost of the selection.
type ComplexityLookup func(typ, field string) ComplexityFunc

// ValidationRulesProvider builds the rule set every query is validated
// with: the standard GraphQL rules plus the safety rules enabled in the
// security configuration.
type ValidationRulesProvider struct {
	security   config.Security
	complexity ComplexityLookup
}

// NewValidationRulesProvider returns a provider for sec. A nil lookup
// prices every field with the default cost.
func NewValidationRulesProvider(sec config.Security, lookup ComplexityLookup) *ValidationRulesProvider {
	return &ValidationRulesProvider{security: sec, complexity: lookup}
}

// Rules returns the rules for a request without variables.
func (p *ValidationRulesProvider) Rules() *rules.Rules {
	return p.RulesWithVariables(nil)
}

// RulesWithVariables returns the rules for a request. Variables feed the
// arguments of complexity functions and @skip/@include.
func (p *ValidationRulesProvider) RulesWithVariables(vars map[string]any) *rules.Rules {
	r := rules.NewDefaultRules()
	if limit := p.security.MaxQueryComplexity; limit > 0 {
		r.AddRule(RuleMaxQueryComplexity, maxQueryComplexity(limit, p.complexity, vars))
	}
	if limit := p.security.MaxQueryDepth; limit > 0 {
		r.AddRule(RuleMaxQueryDepth, maxQueryDepth(limit))
	}
	if p.security.DisableIntrospection {
		r.AddRule(RuleDisableIntrospection, disableIntrospection)
	}
	return r
}

func maxQueryDepth(limit int) core.RuleFunc {
	return func(observers *core.Events, addError core.AddErrFunc) {
		observers.OnOperation(func(_ *core.Walker, op *ast.OperationDefinition) {
			depth := QueryDepth(op.SelectionSet)
			if depth > limit {
				addError(
					core.Message("Max query depth should be %d but got %d.", limit, depth),
					core.At(op.Position),
				)
			}
		})
	}
}

// QueryDepth returns the nesting depth of a selection set. Fields without
// a selection do not count, so { user { posts { id } } } has depth 1.
func QueryDepth(set ast.SelectionSet) int {
	return selectionDepth(set, 0, 0, map[string]bool{})
}

func selectionDepth(set ast.SelectionSet, depth, deepest int, visited map[string]bool) int {
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			if len(sel.SelectionSet) == 0 {
				continue
			}
			if depth > deepest {
				deepest = depth
			}
			deepest = selectionDepth(sel.SelectionSet, depth+1, deepest, visited)
		case *ast.InlineFragment:
			deepest = selectionDepth(sel.SelectionSet, depth, deepest, visited)
		case *ast.FragmentSpread:
			if sel.Definition == nil || visited[sel.Name] {
				continue
			}
			visited[sel.Name] = true
			deepest = selectionDepth(sel.Definition.SelectionSet, depth, deepest, visited)
			delete(visited, sel.Name)
		}
	}
	return deepest
}

func maxQueryComplexity(limit int, lookup ComplexityLookup, vars map[string]any) core.RuleFunc {
	return func(observers *core.Events, addError core.AddErrFunc) {
		observers.OnOperation(func(_ *core.Walker, op *ast.OperationDefinition) {
			c := &complexity{lookup: lookup, vars: vars, visited: map[string]bool{}}
			n := c.selection(op.SelectionSet)
			if n > limit {
				addError(
					core.Message("Max query complexity should be %d but got %d.", limit, n),
					core.At(op.Position),
				)
			}
		})
	}
}

type complexity struct {
	lookup  ComplexityLookup
	vars    map[string]any
	visited map[string]bool
}

func (c *complexity) selection(set ast.SelectionSet) int {
	total := 0
	for _, sel := range set {
		switch sel := sel.(type) {
		case *ast.Field:
			if !includedBy(sel.Directives, c.vars) {
				continue
			}
			total += c.field(sel)
		case *ast.InlineFragment:
			if includedBy(sel.Directives, c.vars) {
				total += c.selection(sel.SelectionSet)
			}
		case *ast.FragmentSpread:
			if sel.Definition == nil || c.visited[sel.Name] || !includedBy(sel.Directives, c.vars) {
				continue
			}
			c.visited[sel.Name] = true
			total += c.selection(sel.Definition.SelectionSet)
			delete(c.visited, sel.Name)
		}
	}
	return total
}

func (c *complexity) field(f *ast.Field) int {
	child := c.selection(f.SelectionSet)
	if c.lookup != nil && f.ObjectDefinition != nil {
		if fn := c.lookup(f.ObjectDefinition.Name, f.Name); fn != nil {
			return fn(child, f.ArgumentMap(c.vars))
		}
	}
	return child + 1
}

// includedBy evaluates @skip and @include with vars. Unresolvable
// conditions keep the selection.
func includedBy(dirs ast.DirectiveList, vars map[string]any) bool {
	for _, d := range dirs {
		if d.Name != "skip" && d.Name != "include" {
			continue
		}
		arg := d.Arguments.ForName("if")
		if arg == nil || arg.Value == nil {
			continue
		}
		v, err := arg.Value.Value(vars)
		if err != nil {
			continue
		}
		b, ok := v.(bool)
		if !ok {
			continue
		}
		if (d.Name == "skip") == b {
			return false
		}
	}
	return true
}

func disableIntrospection(observers *core.Events, addError core.AddErrFunc) {
	observers.OnField(func(_ *core.Walker, field *ast.Field) {
		if field.Name == "__schema" || field.Name == "__type" {
			addError(
				core.Message("GraphQL introspection is not allowed, but the query contained __schema or __type"),
				core.At(field.Position),
			)
		}
	})
}
