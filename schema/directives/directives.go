// Package directives implements the schema directives of beacon: model
// binding, queries, pagination, mutations, relations, argument handling,
// validation and subscriptions.
//
// Register them all with the builder:
//
//	b, err := schema.NewBuilder(
//		schema.WithConfig(cfg),
//		schema.WithModels(registry),
//		schema.WithDirectives(directives.All()...),
//	)
//
// The relation directives reference the PaginateType enum declared by
// @paginate, which must therefore be registered with them.
package directives

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/schema"
)

// All returns every directive of the package.
func All() []schema.Directive {
	return []schema.Directive{
		ModelDirective{},
		PaginateDirective{},
		AllDirective{},
		FindDirective{},
		FirstDirective{},
		EqDirective{},
		CreateDirective{},
		UpdateDirective{},
		UpsertDirective{},
		DeleteDirective{},
		SpreadDirective{},
		RenameDirective{},
		FieldDirective{},
		NewRulesDirective(),
		BroadcastDirective{},
		SubscriptionDirective{},
		BelongsTo(),
		HasOne(),
		HasMany(),
		MorphTo(),
		MorphMany(),
		BelongsToMany(),
	}
}

// BuilderFunc returns the query of a field. Register it as a callable and
// reference it with the builder argument of @all, @find, @first or
// @paginate.
type BuilderFunc func(ctx context.Context, p execution.ResolveParams) (model.Builder, error)

type queryFunc func(ctx context.Context, p execution.ResolveParams) (model.Builder, error)

// queryFor returns the query of a field carrying dir: the builder callable
// when referenced, otherwise the query of the field model ordered by key.
// The argument builders of the field narrow either one.
func queryFor(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (queryFunc, error) {
	apply := actx.QueryBuilder(parent, field)
	if ref := schema.StringArg(dir, "builder", ""); ref != "" {
		fn, err := actx.Callables.Lookup(ref, actx.Namespaces(parent), dir.Name)
		if err != nil {
			return nil, err
		}
		var build BuilderFunc
		switch f := fn.(type) {
		case BuilderFunc:
			build = f
		case func(context.Context, execution.ResolveParams) (model.Builder, error):
			build = f
		default:
			return nil, beacon.NewDefinitionError(
				"The builder %s referenced in @%s on %s.%s must be a directives.BuilderFunc, got %T.",
				ref, dir.Name, parent.Name, field.Name, fn,
			)
		}
		return func(ctx context.Context, p execution.ResolveParams) (model.Builder, error) {
			q, err := build(ctx, p)
			if err != nil {
				return nil, err
			}
			return apply(q, p.Args), nil
		}, nil
	}
	typ, err := actx.ModelFor(parent, field, dir)
	if err != nil {
		return nil, err
	}
	return func(ctx context.Context, p execution.ResolveParams) (model.Builder, error) {
		repo, err := model.RepositoryFrom(ctx)
		if err != nil {
			return nil, err
		}
		q, err := repo.Query(typ)
		if err != nil {
			return nil, err
		}
		return orderByKey(repo, apply(q, p.Args)), nil
	}, nil
}

// orderByKey orders q by the first key column of its type so pages are
// stable.
func orderByKey(repo model.Repository, q model.Builder) model.Builder {
	info, ok := repo.Registry().Type(q.TypeName())
	if !ok || len(info.Keys) == 0 {
		return q
	}
	return q.OrderBy(info.Keys[0], false)
}

// hasArgBuilders reports whether an argument of field carries a directive
// narrowing queries.
func hasArgBuilders(actx *schema.AttachContext, field *ast.FieldDefinition) bool {
	for _, a := range field.Arguments {
		for _, d := range a.Directives {
			if dir, ok := actx.Directives.Lookup(d.Name); ok && dir.Capabilities().ArgBuilder {
				return true
			}
		}
	}
	return false
}

func intValue(v any) (int, bool) {
	switch n := v.(type) {
	case int:
		return n, true
	case int32:
		return int(n), true
	case int64:
		return int(n), true
	case float64:
		return int(n), true
	case json.Number:
		i, err := n.Int64()
		return int(i), err == nil
	}
	return 0, false
}

func parentModel(dir string, p execution.ResolveParams) (model.Model, error) {
	m, ok := p.Source.(model.Model)
	if !ok {
		return nil, fmt.Errorf("directives: @%s on %s.%s expects a model parent, got %T", dir, p.Parent.Name, p.Definition.Name, p.Source)
	}
	return m, nil
}
