package directives

import "github.com/syssam/beacon/schema"

// ModelDirective binds an object type to a model type. @paginate adds it
// to the wrapper types it generates so their items resolve to the right
// model.
type ModelDirective struct{}

func (ModelDirective) Name() string { return "model" }

func (ModelDirective) Definition() string {
	return `
"""
Map a type to the model type it represents.
"""
directive @model(
  """
  The model type name, resolved against the models namespaces.
  """
  class: String!
) on OBJECT
`
}

func (ModelDirective) Capabilities() schema.Capabilities { return schema.Capabilities{} }
