package execution_test

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
	"github.com/vektah/gqlparser/v2/validator"

	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/execution"
)

func TestValidationRulesProvider(t *testing.T) {
	t.Parallel()
	schema := loadSchema(t)
	lookup := func(typ, field string) execution.ComplexityFunc {
		if typ == "Query" && field == "users" {
			return func(child int, _ map[string]any) int { return 1 + child*10 }
		}
		return nil
	}

	tests := []struct {
		name     string
		security config.Security
		query    string
		vars     map[string]any
		want     string
	}{
		{
			name:     "DepthWithinLimit",
			security: config.Security{MaxQueryDepth: 1},
			query:    `{ users { posts { id } } }`,
		},
		{
			name:     "DepthExceeded",
			security: config.Security{MaxQueryDepth: 1},
			query:    `{ users { posts { author { id } } } }`,
			want:     "Max query depth should be 1 but got 2.",
		},
		{
			name:     "DepthThroughFragments",
			security: config.Security{MaxQueryDepth: 1},
			query:    `{ users { ...P } } fragment P on User { posts { ... on Post { author { id } } } }`,
			want:     "Max query depth should be 1 but got 2.",
		},
		{
			name:     "ComplexityDefault",
			security: config.Security{MaxQueryComplexity: 2},
			query:    `{ user(id: 1) { id name } }`,
			want:     "Max query complexity should be 2 but got 3.",
		},
		{
			name:     "ComplexityFunction",
			security: config.Security{MaxQueryComplexity: 20},
			query:    `{ users { id name } }`,
			want:     "Max query complexity should be 20 but got 21.",
		},
		{
			name:     "ComplexitySkipped",
			security: config.Security{MaxQueryComplexity: 2},
			query:    `query($skip: Boolean!) { user(id: 1) { id name @skip(if: $skip) } }`,
			vars:     map[string]any{"skip": true},
		},
		{
			name:     "IntrospectionDisabled",
			security: config.Security{DisableIntrospection: true},
			query:    `{ __schema { queryType { name } } }`,
			want:     "GraphQL introspection is not allowed, but the query contained __schema or __type",
		},
		{
			name:     "TypenameAllowed",
			security: config.Security{DisableIntrospection: true},
			query:    `{ __typename }`,
		},
		{
			name:  "Unlimited",
			query: `{ users { posts { author { posts { author { id } } } } } __type(name: "User") { name } }`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			doc, err := parser.ParseQuery(&ast.Source{Input: tt.query})
			require.NoError(t, err)
			p := execution.NewValidationRulesProvider(tt.security, lookup)
			errs := validator.ValidateWithRules(schema, doc, p.RulesWithVariables(tt.vars))
			if tt.want == "" {
				assert.Empty(t, errs)
				return
			}
			require.Len(t, errs, 1)
			assert.Equal(t, tt.want, errs[0].Message)
		})
	}
}

func TestValidationRulesProviderRules(t *testing.T) {
	t.Parallel()
	p := execution.NewValidationRulesProvider(config.Security{MaxQueryDepth: 3, DisableIntrospection: true}, nil)
	inner := p.Rules().GetInner()
	assert.Contains(t, inner, execution.RuleMaxQueryDepth)
	assert.Contains(t, inner, execution.RuleDisableIntrospection)
	assert.NotContains(t, inner, execution.RuleMaxQueryComplexity)
	assert.Contains(t, inner, "FieldsOnCorrectType")
}

func TestQueryDepth(t *testing.T) {
	t.Parallel()
	for query, want := range map[string]int{
		`{ count }`:                              0,
		`{ user(id: 1) { id } }`:                 0,
		`{ user(id: 1) { posts { id } } }`:       1,
		`{ users { posts { author { name } } } }`: 2,
	} {
		doc, err := parser.ParseQuery(&ast.Source{Input: query})
		require.NoError(t, err)
		assert.Equal(t, want, execution.QueryDepth(doc.Operations[0].SelectionSet), query)
	}
}

func TestExecuteWithRules(t *testing.T) {
	t.Parallel()
	e := newExecutor(t, execution.WithRules(execution.NewValidationRulesProvider(config.Security{DisableIntrospection: true}, nil)))
	resp := e.Execute(t.Context(), execution.Request{Query: `{ __type(name: "User") { name } }`})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "GraphQL introspection is not allowed, but the query contained __schema or __type", resp.Errors[0].Message)
	assert.Nil(t, resp.Data)
}
