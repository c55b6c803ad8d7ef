package directives

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/schema"
)

// SpreadDirective merges the fields of an input object argument into the
// arguments of its parent. The argument set does the merging; the
// directive checks the argument type.
type SpreadDirective struct{}

func (SpreadDirective) Name() string { return "spread" }

func (SpreadDirective) Definition() string {
	return `
"""
Merge the fields of a nested input object into the arguments of its parent.
"""
directive @spread on ARGUMENT_DEFINITION | INPUT_FIELD_DEFINITION
`
}

func (SpreadDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{ArgManipulator: true}
}

// ManipulateArg implements schema.ArgManipulator.
func (SpreadDirective) ManipulateArg(ctx *schema.ManipulateContext, arg schema.Arg, dir *ast.Directive) error {
	def := ctx.Doc.Definitions.ForName(arg.Type.Name())
	if arg.Type.Elem != nil || def == nil || def.Kind != ast.InputObject {
		return beacon.NewDefinitionError(
			"The @%s directive can only be used on arguments of an input object type, %s is of type %s.",
			dir.Name, arg.Path(), arg.Type.String(),
		)
	}
	return nil
}

// RenameDirective maps a field or argument to a differently named
// attribute. Arguments are renamed by the argument set.
type RenameDirective struct{}

func (RenameDirective) Name() string { return "rename" }

func (RenameDirective) Definition() string {
	return `
"""
Change the attribute a field reads or an argument writes.
"""
directive @rename(
  """
  The name of the attribute.
  """
  attribute: String!
) on FIELD_DEFINITION | ARGUMENT_DEFINITION | INPUT_FIELD_DEFINITION
`
}

func (RenameDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (RenameDirective) ResolveField(_ *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	attr := schema.StringArg(dir, "attribute", "")
	if attr == "" {
		return nil, beacon.NewDefinitionError("The @%s directive on %s.%s requires a non-empty attribute.", dir.Name, parent.Name, field.Name)
	}
	renamed := *field
	renamed.Name = attr
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		p.Definition = &renamed
		return execution.DefaultResolve(ctx, p)
	}, nil
}

// FieldDirective resolves a field with a registered callable.
type FieldDirective struct{}

func (FieldDirective) Name() string { return "field" }

func (FieldDirective) Definition() string {
	return `
"""
Resolve the field with a callable.
"""
directive @field(
  """
  The callable, "Class@method". The method defaults to Resolve.
  """
  resolver: String!
) on FIELD_DEFINITION
`
}

func (FieldDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (FieldDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, _ *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	return actx.Resolver(schema.StringArg(dir, "resolver", ""), parent, dir)
}
