package directives

import (
	"context"
	"errors"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/schema"
)

// ErrMultipleResults is returned by @find when more than one model
// matches.
var ErrMultipleResults = errors.New("The query returned more than one result.")

const queryArgs = `
  """
  The model to query, defaults to the model of the return type.
  """
  model: String
  """
  A callable returning the query, "Class@method".
  """
  builder: String
`

// AllDirective resolves a list field to every model matching its
// arguments.
type AllDirective struct{}

func (AllDirective) Name() string { return "all" }

func (AllDirective) Definition() string {
	return `
"""
Fetch all models matching the arguments of the field.
"""
directive @all(` + queryArgs + `) on FIELD_DEFINITION
`
}

func (AllDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (AllDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	query, err := queryFor(actx, parent, field, dir)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		q, err := query(ctx, p)
		if err != nil {
			return nil, err
		}
		return q.Get(ctx)
	}, nil
}

// FindDirective resolves a field to the single model matching its
// arguments, or null.
type FindDirective struct{}

func (FindDirective) Name() string { return "find" }

func (FindDirective) Definition() string {
	return `
"""
Find a model by the arguments of the field. Fails when more than one
model matches.
"""
directive @find(` + queryArgs + `) on FIELD_DEFINITION
`
}

func (FindDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (FindDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	query, err := queryFor(actx, parent, field, dir)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		q, err := query(ctx, p)
		if err != nil {
			return nil, err
		}
		ms, err := q.Limit(2).Get(ctx)
		switch {
		case err != nil:
			return nil, err
		case len(ms) > 1:
			return nil, ErrMultipleResults
		case len(ms) == 0:
			return nil, nil
		}
		return ms[0], nil
	}, nil
}

// FirstDirective resolves a field to the first model matching its
// arguments.
type FirstDirective struct{}

func (FirstDirective) Name() string { return "first" }

func (FirstDirective) Definition() string {
	return `
"""
Get the first model matching the arguments of the field.
"""
directive @first(` + queryArgs + `) on FIELD_DEFINITION
`
}

func (FirstDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (FirstDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	query, err := queryFor(actx, parent, field, dir)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		q, err := query(ctx, p)
		if err != nil {
			return nil, err
		}
		m, err := q.First(ctx)
		if err != nil || m == nil {
			return nil, err
		}
		return m, nil
	}, nil
}

// EqDirective narrows the query of a field to models whose column equals
// the argument. Null values are ignored.
type EqDirective struct{}

func (EqDirective) Name() string { return "eq" }

func (EqDirective) Definition() string {
	return `
"""
Filter the query by a column equal to the argument value.
"""
directive @eq(
  """
  The column to compare, defaults to the argument name.
  """
  key: String
) on ARGUMENT_DEFINITION | INPUT_FIELD_DEFINITION
`
}

func (EqDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{ArgBuilder: true}
}

// BuildQuery implements schema.ArgBuilder. List values match any of their
// elements.
func (EqDirective) BuildQuery(q model.Builder, arg schema.Arg, value any, dir *ast.Directive) model.Builder {
	if value == nil {
		return q
	}
	column := schema.StringArg(dir, "key", arg.Name)
	if list, ok := value.([]any); ok {
		return q.WhereIn(column, list...)
	}
	return q.Where(column, value)
}
