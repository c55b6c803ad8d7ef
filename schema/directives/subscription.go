package directives

import (
	"context"
	"log/slog"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/schema"
)

// BroadcastDirective publishes the result of a mutation field to the
// subscribers of a subscription field once the mutation committed.
type BroadcastDirective struct{}

func (BroadcastDirective) Name() string { return "broadcast" }

func (BroadcastDirective) Definition() string {
	return `
"""
Broadcast the result of a mutation to a subscription.
"""
directive @broadcast(
  """
  The name of the subscription field to broadcast to.
  """
  subscription: String!
) repeatable on FIELD_DEFINITION
`
}

func (BroadcastDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldMiddleware: true}
}

// HandleField implements schema.FieldMiddleware.
func (BroadcastDirective) HandleField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.Middleware, error) {
	sub := schema.StringArg(dir, "subscription", "")
	if s := actx.Schema.Subscription; s == nil || s.Fields.ForName(sub) == nil {
		return nil, beacon.NewDefinitionError(
			"The @%s directive on %s.%s references the unknown subscription field %q.",
			dir.Name, parent.Name, field.Name, sub,
		)
	}
	publisher := actx.Publisher
	return func(next execution.ResolveFunc) execution.ResolveFunc {
		return func(ctx context.Context, p execution.ResolveParams) (any, error) {
			v, err := next(ctx, p)
			if err != nil {
				return v, err
			}
			if publisher == nil {
				slog.WarnContext(ctx, "broadcast dropped, no publisher configured", slog.String("subscription", sub))
				return v, nil
			}
			execution.AfterCommit(ctx, func(ctx context.Context) {
				publisher.Publish(ctx, sub, v)
			})
			return v, nil
		}
	}, nil
}

// FilterFunc decides whether a subscriber receives a broadcast.
type FilterFunc func(ctx context.Context, p execution.ResolveParams) (bool, error)

// SubscriptionDirective resolves a subscription field with the methods of
// a registered class: Resolve maps the broadcast payload (the payload
// itself by default), Filter withholds broadcasts from a subscriber.
type SubscriptionDirective struct{}

func (SubscriptionDirective) Name() string { return "subscription" }

func (SubscriptionDirective) Definition() string {
	return `
"""
Resolve a subscription field with a registered class.
"""
directive @subscription(
  """
  The class holding the Resolve and Filter methods.
  """
  class: String!
) on FIELD_DEFINITION
`
}

func (SubscriptionDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}

// ResolveField implements schema.FieldResolver.
func (SubscriptionDirective) ResolveField(actx *schema.AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	if s := actx.Schema.Subscription; s == nil || s.Name != parent.Name {
		return nil, beacon.NewDefinitionError("The @%s directive can only be used on fields of the subscription type, found on %s.%s.", dir.Name, parent.Name, field.Name)
	}
	class := schema.StringArg(dir, "class", "")
	methods, err := actx.Callables.Class(class, actx.Namespaces(parent), dir.Name)
	if err != nil {
		return nil, err
	}
	resolve := execution.ResolveFunc(execution.ResolveSource)
	switch fn := methods[schema.DefaultMethod].(type) {
	case nil:
	case execution.ResolveFunc:
		resolve = fn
	case func(context.Context, execution.ResolveParams) (any, error):
		resolve = fn
	default:
		return nil, beacon.NewDefinitionError("The %s method of %s referenced in @%s must be an execution.ResolveFunc, got %T.", schema.DefaultMethod, class, dir.Name, fn)
	}
	var filter FilterFunc
	switch fn := methods["Filter"].(type) {
	case nil:
	case FilterFunc:
		filter = fn
	case func(context.Context, execution.ResolveParams) (bool, error):
		filter = fn
	default:
		return nil, beacon.NewDefinitionError("The Filter method of %s referenced in @%s must be a directives.FilterFunc, got %T.", class, dir.Name, fn)
	}
	if filter == nil {
		return resolve, nil
	}
	return func(ctx context.Context, p execution.ResolveParams) (any, error) {
		ok, err := filter(ctx, p)
		if err != nil {
			return nil, err
		}
		if !ok {
			return nil, beacon.ErrSubscriptionFiltered
		}
		return resolve(ctx, p)
	}, nil
}
