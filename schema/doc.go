// Package schema builds executable GraphQL schemas from SDL annotated with
// directives.
//
// A Builder reads the SDL sources, prepends the definitions of every
// registered directive, lets directives rewrite the document, validates it
// and attaches the resolvers and middleware the directives provide:
//
//	b, err := schema.NewBuilder(
//	    schema.WithConfig(cfg),
//	    schema.WithModels(registry),
//	    schema.WithDirectives(directives.All()...),
//	)
//	s, err := b.Build(ctx)
//	e := execution.NewExecutor(s.AST, s.Resolvers)
//
// # Directives
//
// A Directive declares the hooks it takes part in with Capabilities. The
// builder dispatches on those flags only, and Register refuses a directive
// whose flags are not backed by the matching interface:
//
//   - TypeManipulator, TypeExtensionManipulator, FieldManipulator and
//     ArgManipulator rewrite the schema document before validation.
//   - TypeResolver, FieldResolver, TypeMiddleware and FieldMiddleware
//     attach execution behavior once the schema is valid.
//   - ArgBuilder narrows model queries, ArgResolver marks nested relation
//     mutations and ArgTransformer checks argument values.
//
// A field has at most one resolver directive. Middleware runs in the order
// the directives are listed, type middleware first; argument transforms
// run last, right before the resolver.
//
// # Callables
//
// Directive arguments such as resolver: "UserResolver@fullName" reference
// Go functions registered in Callables. References are looked up in the
// configured namespaces of the parent type, then by their bare name.
//
// # Caching and reloading
//
// With caching enabled the manipulated document is stored in a msgpack file
// keyed by a hash of the sources, and later builds of the same sources skip
// manipulation. Live keeps the current schema of a builder and rebuilds it
// when the schema files change.
package schema
