package directives

import (
	"context"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/pagination"
	"github.com/syssam/beacon/schema"
)

// PaginateDirective turns a list field into a paginated field and resolves
// it from the field model, a builder or a resolver callable.
type PaginateDirective struct{}

func (PaginateDirective) Name() string { return "paginate" }

func (PaginateDirective) Definition() string {
	return `
"""
Query multiple models and return them in pages.
"""
directive @paginate(
  """
  The shape of the paginated result.
  """
  type: PaginateType = PAGINATOR
  """
  The model to query, defaults to the model of the return type.
  """
  model: String
  """
  A callable returning the query, "Class@method".
  """
  builder: String
  """
  A callable returning the paginated result itself, "Class@method".
  """
  resolver: String
  """
  The page size used when the client passes none. Set to null to make
  first required.
  """
  defaultCount: Int
  """
  The largest page size a client may request.
  """
  maxCount: Int
) on FIELD_DEFINITION

"""
The shape of a paginated result.
"""
enum PaginateType {
  """
  Offset pagination with the total number of items.
  """
  PAGINATOR
  """
  Offset pagination without counting the items.
  """
  SIMPLE
  """
  Relay cursor connection.
  """
  CONNECTION
}
`
}

func (PaginateDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldManipulator: true, FieldResolver: true}
}

func paginateType(parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (pagination.Type, error) {
	t, err := pagination.ParseType(schema.StringArg(dir, "type", ""))
	if err != nil {
		return 0, beacon.NewDefinitionError("Invalid type argument of @%s on %s.%s: %s.", dir.Name, parent.Name, field.Name, err)
	}
	return t, nil
}

// defaultCount returns the page size default of dir. An explicit null
// removes the configured default.
func defaultCount(cfg *config.Config, dir *ast.Directive) *int {
	if a := dir.Arguments.ForName("defaultCount"); a != nil {
		if a.Value == nil || a.Value.Kind == ast.NullValue {
			return nil
		}
		return schema.IntArg(dir, "defaultCount")
	}
	return cfg.Pagination.DefaultCount
}

func maxCount(cfg *config.Config, dir *ast.Directive) *int {
	return cfg.Pagination.ResolveMaxCount(schema.IntArg(dir, "maxCount"))
}

// ManipulateField implements schema.FieldManipulator.
func (PaginateDirective) ManipulateField(ctx *schema.ManipulateContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) error {
	return ensurePaginated(ctx, parent, field, dir)
}

func ensurePaginated(ctx *schema.ManipulateContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) error {
	typ, err := paginateType(parent, field, dir)
	if err != nil {
		return err
	}
	m := pagination.NewManipulator(ctx.Doc)
	m.Directive = dir.Name
	return m.EnsureType(parent, field, typ, defaultCount(ctx.Config, dir), maxCount(ctx.Config, dir))
}

// pageComplexity scales the cost of the selection by the page size.
func pageComplexity(child int, args map[string]any) int {
	first, _ := intValue(args["first"])
	return child * max(first, 1)
}

// ResolveField implements schema.FieldResolver.
func (PaginateDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	typ, err := paginateType(parent, field, dir)
	if err != nil {
		return nil, err
	}
	limit := maxCount(actx.Config, dir)
	actx.Resolvers.Field(parent.Name, field.Name).Complexity = pageComplexity

	if ref := schema.StringArg(dir, "resolver", ""); ref != "" {
		resolve, err := actx.Resolver(ref, parent, dir)
		if err != nil {
			return nil, err
		}
		return func(ctx context.Context, p execution.ResolveParams) (any, error) {
			if _, err := pagination.ResolveArgs(p.Args, typ, limit); err != nil {
				return nil, err
			}
			return resolve(ctx, p)
		}, nil
	}

	query, err := queryFor(actx, parent, field, dir)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		args, err := pagination.ResolveArgs(p.Args, typ, limit)
		if err != nil {
			return nil, err
		}
		q, err := query(ctx, p)
		if err != nil {
			return nil, err
		}
		return pagination.Paginate(ctx, q, args)
	}, nil
}
