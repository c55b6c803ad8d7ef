// Package execution executes GraphQL requests against a schema built by
// package schema.
//
// Resolvers are attached per schema coordinate in a Resolvers registry.
// Fields without a resolver read the parent value: a map, a model or any
// FieldResolver. Mutation fields run one after the other, each inside its
// own repository transaction; callbacks registered with AfterCommit run
// once that transaction committed.
//
//	e := execution.NewExecutor(schema, resolvers,
//		execution.WithRepository(store),
//		execution.WithRules(execution.NewValidationRulesProvider(cfg.Security, resolvers.Complexity)),
//	)
//	resp := e.Execute(ctx, execution.Request{Query: `{ users { id } }`})
package execution
