// Package pagination synthesizes the paginator, simple paginator and Relay
// connection types of @paginate fields, validates their arguments and loads
// pages from a model.Builder.
package pagination
