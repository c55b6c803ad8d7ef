package pagination

import (
	"fmt"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
)

// Descriptions of the injected arguments.
const (
	FirstDescription = "Limits number of fetched items."
	PageDescription  = "The offset from which items are returned."
	AfterDescription = "A cursor after which elements are returned."
)

// ModelDirective is the name of the directive that binds a generated
// wrapper type to the model of its items.
const ModelDirective = "model"

// Manipulator rewrites paginated fields of a schema document.
type Manipulator struct {
	doc *ast.SchemaDocument
	// Directive names the field directive in error messages.
	Directive string
}

// NewManipulator returns a manipulator over doc.
func NewManipulator(doc *ast.SchemaDocument) *Manipulator {
	return &Manipulator{doc: doc, Directive: "paginate"}
}

// EnsureType is shorthand for NewManipulator(doc).EnsureType.
func EnsureType(doc *ast.SchemaDocument, parent *ast.Definition, field *ast.FieldDefinition, typ Type, defaultCount, maxCount *int) error {
	return NewManipulator(doc).EnsureType(parent, field, typ, defaultCount, maxCount)
}

// EnsureType turns field of parent into a paginated field of the given type.
// It registers the wrapper type (and the edge type of connections) unless
// already present, injects the pagination arguments and makes the field
// return the non-null wrapper.
func (m *Manipulator) EnsureType(parent *ast.Definition, field *ast.FieldDefinition, typ Type, defaultCount, maxCount *int) error {
	base := field.Type.Name()
	if err := m.checkBase(parent, field, base); err != nil {
		return err
	}
	RegisterInfoTypes(m.doc)

	names := NamesFor(base, typ)
	wrapper, err := m.wrapper(names.Wrapper, field.Position)
	if err != nil {
		return err
	}
	addModelDirective(wrapper, base)

	pos := field.Position
	if typ.IsConnection() {
		edge, err := m.wrapper(names.Edge, pos)
		if err != nil {
			return err
		}
		if len(edge.Fields) == 0 {
			edge.Description = fmt.Sprintf("An edge that contains a node of type %s and a cursor.", base)
			edge.Fields = ast.FieldList{
				{Name: "node", Description: fmt.Sprintf("The %s node.", base), Type: ast.NonNullNamedType(base, pos), Position: pos},
				{Name: "cursor", Description: "A unique cursor that can be used for pagination.", Type: ast.NonNullNamedType("String", pos), Position: pos},
			}
		}
		if len(wrapper.Fields) == 0 {
			wrapper.Description = fmt.Sprintf("A paginated list of %s edges.", base)
			wrapper.Fields = ast.FieldList{
				{Name: "pageInfo", Description: "Pagination information about the list of edges.", Type: ast.NonNullNamedType(PageInfoType, pos), Position: pos},
				{Name: "edges", Description: fmt.Sprintf("A list of %s edges.", base), Type: ast.NonNullListType(ast.NonNullNamedType(names.Edge, pos), pos), Position: pos},
			}
		}
	} else if len(wrapper.Fields) == 0 {
		wrapper.Description = fmt.Sprintf("A paginated list of %s items.", base)
		wrapper.Fields = ast.FieldList{
			{Name: "paginatorInfo", Description: "Pagination information about the list of items.", Type: ast.NonNullNamedType(typ.InfoType(), pos), Position: pos},
			{Name: "data", Description: fmt.Sprintf("A list of %s items.", base), Type: ast.NonNullListType(ast.NonNullNamedType(base, pos), pos), Position: pos},
		}
	}

	setArgument(field, FirstArgument(defaultCount, maxCount, pos))
	if typ.IsConnection() {
		setArgument(field, &ast.ArgumentDefinition{Name: "after", Description: AfterDescription, Type: ast.NamedType("String", pos), Position: pos})
	} else {
		setArgument(field, &ast.ArgumentDefinition{Name: "page", Description: PageDescription, Type: ast.NamedType("Int", pos), Position: pos})
	}
	field.Type = ast.NonNullNamedType(names.Wrapper, pos)
	return nil
}

func (m *Manipulator) checkBase(parent *ast.Definition, field *ast.FieldDefinition, base string) error {
	def := m.doc.Definitions.ForName(base)
	if def != nil {
		switch def.Kind {
		case ast.Object, ast.Interface, ast.Union:
			return nil
		}
	}
	return beacon.NewDefinitionError(
		"Field %s.%s with directive @%s must return a list of an object, interface or union type, got %s.",
		parent.Name, field.Name, m.Directive, base,
	)
}

// wrapper returns the object type named name, adding an empty one when the
// document has none.
func (m *Manipulator) wrapper(name string, pos *ast.Position) (*ast.Definition, error) {
	def := m.doc.Definitions.ForName(name)
	if def == nil {
		def = &ast.Definition{Kind: ast.Object, Name: name, Position: pos}
		m.doc.Definitions = append(m.doc.Definitions, def)
		return def, nil
	}
	if def.Kind != ast.Object {
		return nil, beacon.NewDefinitionError(
			"Type %s generated by @%s already exists as %s, expected an object type.",
			name, m.Directive, def.Kind,
		)
	}
	return def, nil
}

func addModelDirective(def *ast.Definition, base string) {
	if def.Directives.ForName(ModelDirective) != nil {
		return
	}
	def.Directives = append(def.Directives, &ast.Directive{
		Name: ModelDirective,
		Arguments: ast.ArgumentList{{
			Name:  "class",
			Value: &ast.Value{Kind: ast.StringValue, Raw: base},
		}},
		Location: ast.LocationObject,
	})
}

// FirstArgument returns the definition of the page size argument. A nil
// defaultCount leaves the argument required.
func FirstArgument(defaultCount, maxCount *int, pos *ast.Position) *ast.ArgumentDefinition {
	arg := &ast.ArgumentDefinition{
		Name:        "first",
		Description: FirstDescription,
		Type:        ast.NonNullNamedType("Int", pos),
		Position:    pos,
	}
	if maxCount != nil && *maxCount > 0 {
		arg.Description += fmt.Sprintf(" Maximum allowed value: %d.", *maxCount)
	}
	if defaultCount != nil {
		arg.DefaultValue = &ast.Value{Kind: ast.IntValue, Raw: strconv.Itoa(*defaultCount), Position: pos}
	}
	return arg
}

// setArgument replaces the argument of the same name or appends arg.
func setArgument(field *ast.FieldDefinition, arg *ast.ArgumentDefinition) {
	for i, a := range field.Arguments {
		if a.Name == arg.Name {
			field.Arguments[i] = arg
			return
		}
	}
	field.Arguments = append(field.Arguments, arg)
}
