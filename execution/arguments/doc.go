// Package arguments turns GraphQL field arguments into typed argument sets
// and applies nested mutation inputs to model relations.
//
// A set is built once per field and request:
//
//	set := arguments.Build(schema, field.Definition.Arguments, field.ArgumentMap(vars)).Spread()
//	err := arguments.SaveModel(ctx, repo, user, set)
//
// Arguments carrying a relation directive (@belongsTo, @hasMany, ...) hold
// an input object whose fields are operation keys (create, update, upsert,
// connect, sync, syncWithoutDetaching, disconnect, delete). SaveModel
// applies to-one relations before saving the model and the others after
// it, recursing into nested payloads.
package arguments
