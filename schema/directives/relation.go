package directives

import (
	"context"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/execution/arguments"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/pagination"
	"github.com/syssam/beacon/schema"
)

// RelationDirective is one of @belongsTo, @hasOne, @hasMany, @morphTo,
// @morphMany and @belongsToMany. On an object field it resolves the
// relation of the parent model, batched per request. On an argument or
// input field it marks a nested mutation of the relation.
//
// The to-many variants paginate the relation when given a type.
type RelationDirective struct {
	kind model.Kind
}

// BelongsTo returns the @belongsTo directive.
func BelongsTo() *RelationDirective { return &RelationDirective{kind: model.KindBelongsTo} }

// HasOne returns the @hasOne directive.
func HasOne() *RelationDirective { return &RelationDirective{kind: model.KindHasOne} }

// HasMany returns the @hasMany directive.
func HasMany() *RelationDirective { return &RelationDirective{kind: model.KindHasMany} }

// MorphTo returns the @morphTo directive.
func MorphTo() *RelationDirective { return &RelationDirective{kind: model.KindMorphTo} }

// MorphMany returns the @morphMany directive.
func MorphMany() *RelationDirective { return &RelationDirective{kind: model.KindMorphMany} }

// BelongsToMany returns the @belongsToMany directive.
func BelongsToMany() *RelationDirective { return &RelationDirective{kind: model.KindBelongsToMany} }

func (d *RelationDirective) Name() string { return d.kind.String() }

func (d *RelationDirective) toMany() bool { return !d.kind.ToOne() }

func (d *RelationDirective) Definition() string {
	paging := ""
	if d.toMany() {
		paging = `
  """
  Paginate the relation with the given shape.
  """
  type: PaginateType
  """
  The page size used when the client passes none.
  """
  defaultCount: Int
  """
  The largest page size a client may request.
  """
  maxCount: Int`
	}
	return fmt.Sprintf(`
"""
Resolve a field through a %[1]s relation of the parent model, or apply a
nested mutation to it when used on an argument.
"""
directive @%[1]s(
  """
  The relation name, defaults to the field name.
  """
  relation: String%[2]s
) on FIELD_DEFINITION | ARGUMENT_DEFINITION | INPUT_FIELD_DEFINITION
`, d.Name(), paging)
}

func (d *RelationDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldManipulator: true, FieldResolver: true, ArgResolver: true}
}

// RelationKind implements schema.ArgResolver.
func (d *RelationDirective) RelationKind() model.Kind { return d.kind }

// CheckArg implements schema.ArgResolver.
func (d *RelationDirective) CheckArg(actx *schema.AttachContext, arg schema.Arg, dir *ast.Directive) error {
	return arguments.CheckInput(d.kind, actx.Schema.Types[arg.Type.Name()], arg.Path(), dir.Name)
}

func (d *RelationDirective) paginated(dir *ast.Directive) bool {
	if !d.toMany() {
		return false
	}
	a := dir.Arguments.ForName("type")
	return a != nil && a.Value != nil && a.Value.Kind != ast.NullValue
}

// ManipulateField implements schema.FieldManipulator.
func (d *RelationDirective) ManipulateField(ctx *schema.ManipulateContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) error {
	if !d.paginated(dir) {
		return nil
	}
	return ensurePaginated(ctx, parent, field, dir)
}

// ResolveField implements schema.FieldResolver.
func (d *RelationDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	relation := schema.StringArg(dir, "relation", field.Name)
	if d.paginated(dir) {
		return d.resolvePaginated(actx, parent, field, dir, relation)
	}
	if d.toMany() && hasArgBuilders(actx, field) {
		apply := actx.QueryBuilder(parent, field)
		return func(ctx context.Context, p execution.ResolveParams) (any, error) {
			q, repo, err := d.relationQuery(ctx, p, relation)
			if err != nil {
				return nil, err
			}
			return orderByKey(repo, apply(q, p.Args)).Get(ctx)
		}, nil
	}

	actx.Resolvers.Field(parent.Name, field.Name).Prefetch = func(ctx context.Context, parents []any, _ execution.ResolveParams) error {
		repo, err := model.RepositoryFrom(ctx)
		if err != nil {
			return err
		}
		loader := model.LoaderFrom(ctx)
		if loader == nil {
			return nil
		}
		ms := make([]model.Model, 0, len(parents))
		for _, v := range parents {
			if m, ok := v.(model.Model); ok {
				ms = append(ms, m)
			}
		}
		return loader.Prefetch(ctx, repo, ms, relation)
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		m, err := parentModel(d.Name(), p)
		if err != nil {
			return nil, err
		}
		repo, err := model.RepositoryFrom(ctx)
		if err != nil {
			return nil, err
		}
		loader := model.LoaderFrom(ctx)
		if loader == nil {
			loader = model.NewLoader()
		}
		return loader.Load(ctx, repo, m, relation)
	}, nil
}

func (d *RelationDirective) resolvePaginated(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive, relation string) (execution.ResolveFunc, error) {
	typ, err := paginateType(parent, field, dir)
	if err != nil {
		return nil, err
	}
	limit := maxCount(actx.Config, dir)
	apply := actx.QueryBuilder(parent, field)
	actx.Resolvers.Field(parent.Name, field.Name).Complexity = pageComplexity
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		args, err := pagination.ResolveArgs(p.Args, typ, limit)
		if err != nil {
			return nil, err
		}
		q, repo, err := d.relationQuery(ctx, p, relation)
		if err != nil {
			return nil, err
		}
		return pagination.Paginate(ctx, orderByKey(repo, apply(q, p.Args)), args)
	}, nil
}

func (d *RelationDirective) relationQuery(ctx context.Context, p execution.ResolveParams, relation string) (model.Builder, model.Repository, error) {
	m, err := parentModel(d.Name(), p)
	if err != nil {
		return nil, nil, err
	}
	repo, err := model.RepositoryFrom(ctx)
	if err != nil {
		return nil, nil, err
	}
	rel, err := model.Relate(repo, m, relation)
	if err != nil {
		return nil, nil, err
	}
	var q model.Builder
	switch r := rel.(type) {
	case model.BelongsToManyRelation:
		q, err = r.Query(ctx)
	case model.HasManyRelation:
		q, err = r.Query()
	default:
		err = fmt.Errorf("directives: relation %s.%s of kind %s cannot be queried", m.TypeName(), relation, rel.Kind())
	}
	return q, repo, err
}
