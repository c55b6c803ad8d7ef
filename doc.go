// Package beacon is a schema-directive-driven GraphQL server layer.
//
// A schema written in SDL is annotated with directives such as @paginate,
// @create or @belongsTo. The schema builder (package schema) lets every
// directive rewrite the document and attach resolvers, the executor (package
// execution) validates and runs operations, nested mutation input is applied
// to model relations (package execution/arguments) and subscription payloads
// are delivered through a Broadcaster (package subscriptions).
//
// This package holds the error types shared by all of them.
package beacon
