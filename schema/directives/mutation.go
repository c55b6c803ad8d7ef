package directives

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/execution/arguments"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/schema"
)

const modelArg = `(
  """
  The model to write, defaults to the model of the return type.
  """
  model: String
)`

// CreateDirective creates a model from the arguments of a mutation field,
// nested relation inputs included.
type CreateDirective struct{}

func (CreateDirective) Name() string { return "create" }

func (CreateDirective) Definition() string {
	return `
"""
Create a new model with the given arguments.
"""
directive @create` + modelArg + ` on FIELD_DEFINITION
`
}

func (CreateDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (CreateDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	typ, err := actx.ModelFor(parent, field, dir)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		repo, err := model.RepositoryFrom(ctx)
		if err != nil {
			return nil, err
		}
		m, err := repo.New(typ)
		if err != nil {
			return nil, err
		}
		if err := arguments.SaveModel(ctx, repo, m, p.ArgumentSet()); err != nil {
			return nil, err
		}
		return m, nil
	}, nil
}

// UpdateDirective updates the model identified by the id argument.
type UpdateDirective struct{}

func (UpdateDirective) Name() string { return "update" }

func (UpdateDirective) Definition() string {
	return `
"""
Update a model with the given arguments. The id argument identifies it.
"""
directive @update` + modelArg + ` on FIELD_DEFINITION
`
}

func (UpdateDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (UpdateDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	return writeResolver(actx, parent, field, dir, arguments.UpdateModel)
}

// UpsertDirective updates the model identified by the id argument, or
// creates it when it does not exist.
type UpsertDirective struct{}

func (UpsertDirective) Name() string { return "upsert" }

func (UpsertDirective) Definition() string {
	return `
"""
Create or update a model with the given arguments.
"""
directive @upsert` + modelArg + ` on FIELD_DEFINITION
`
}

func (UpsertDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (UpsertDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	return writeResolver(actx, parent, field, dir, arguments.UpsertModel)
}

type writeFunc func(ctx context.Context, repo model.Repository, typ string, set *arguments.ArgumentSet) (model.Model, error)

func writeResolver(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive, write writeFunc) (execution.ResolveFunc, error) {
	typ, err := actx.ModelFor(parent, field, dir)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		repo, err := model.RepositoryFrom(ctx)
		if err != nil {
			return nil, err
		}
		m, err := write(ctx, repo, typ, p.ArgumentSet().Spread())
		if err != nil {
			return nil, err
		}
		return m, nil
	}, nil
}

// DeleteDirective deletes the models whose keys are passed in the single
// argument of the field and returns them.
type DeleteDirective struct{}

func (DeleteDirective) Name() string { return "delete" }

func (DeleteDirective) Definition() string {
	return `
"""
Delete one or more models by their keys.
"""
directive @delete` + modelArg + ` on FIELD_DEFINITION
`
}

func (DeleteDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (DeleteDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	if len(field.Arguments) != 1 {
		return nil, beacon.NewDefinitionError(
			"The @%s directive requires the field %s.%s to have exactly one argument, holding the keys to delete.",
			dir.Name, parent.Name, field.Name,
		)
	}
	typ, err := actx.ModelFor(parent, field, dir)
	if err != nil {
		return nil, err
	}
	name := field.Arguments[0].Name
	list := field.Type.Elem != nil
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		repo, err := model.RepositoryFrom(ctx)
		if err != nil {
			return nil, err
		}
		keys := p.ArgumentSet().Value(name).Keys()
		if len(keys) == 0 {
			if list {
				return []model.Model{}, nil
			}
			return nil, nil
		}
		q, err := repo.Query(typ)
		if err != nil {
			return nil, err
		}
		ms, err := orderByKey(repo, q).WhereKey(keys...).Get(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range ms {
			if err := repo.Delete(ctx, m); err != nil {
				return nil, err
			}
		}
		if list {
			return ms, nil
		}
		if len(ms) == 0 {
			return nil, nil
		}
		return ms[0], nil
	}, nil
}
