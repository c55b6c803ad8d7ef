package execution

import (
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"
)

// Introspection values resolve the fields of the __Schema, __Type, __Field,
// __InputValue, __EnumValue and __Directive meta types.

type schemaValue struct {
	schema *ast.Schema
}

func (v *schemaValue) resolveField(name string, _ map[string]any) any {
	s := v.schema
	switch name {
	case "description":
		return optional(s.Description)
	case "types":
		names := make([]string, 0, len(s.Types))
		for n := range s.Types {
			names = append(names, n)
		}
		slices.Sort(names)
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = &typeValue{schema: s, def: s.Types[n]}
		}
		return out
	case "queryType":
		return namedType(s, s.Query)
	case "mutationType":
		return namedType(s, s.Mutation)
	case "subscriptionType":
		return namedType(s, s.Subscription)
	case "directives":
		names := make([]string, 0, len(s.Directives))
		for n := range s.Directives {
			names = append(names, n)
		}
		slices.Sort(names)
		out := make([]any, len(names))
		for i, n := range names {
			out[i] = &directiveValue{schema: s, def: s.Directives[n]}
		}
		return out
	}
	return nil
}

func namedType(s *ast.Schema, def *ast.Definition) any {
	if def == nil {
		return nil
	}
	return &typeValue{schema: s, def: def}
}

func optional(s string) any {
	if s == "" {
		return nil
	}
	return s
}

// typeValue is a named type (def) or a wrapping type (typ).
type typeValue struct {
	schema *ast.Schema
	def    *ast.Definition
	typ    *ast.Type
}

func typeRef(s *ast.Schema, t *ast.Type) *typeValue {
	if t.NonNull || t.Elem != nil {
		return &typeValue{schema: s, typ: t}
	}
	return &typeValue{schema: s, def: s.Types[t.NamedType]}
}

func (v *typeValue) resolveField(name string, args map[string]any) any {
	if v.typ != nil {
		return v.wrapping(name)
	}
	d := v.def
	if d == nil {
		return nil
	}
	includeDeprecated, _ := args["includeDeprecated"].(bool)
	switch name {
	case "kind":
		return string(d.Kind)
	case "name":
		return d.Name
	case "description":
		return optional(d.Description)
	case "specifiedByURL":
		if dir := d.Directives.ForName("specifiedBy"); dir != nil {
			if arg := dir.Arguments.ForName("url"); arg != nil && arg.Value != nil {
				return arg.Value.Raw
			}
		}
		return nil
	case "fields":
		if d.Kind != ast.Object && d.Kind != ast.Interface {
			return nil
		}
		out := make([]any, 0, len(d.Fields))
		for _, f := range d.Fields {
			if strings.HasPrefix(f.Name, "__") || (!includeDeprecated && deprecated(f.Directives)) {
				continue
			}
			out = append(out, &fieldValue{schema: v.schema, def: f})
		}
		return out
	case "interfaces":
		if d.Kind != ast.Object && d.Kind != ast.Interface {
			return nil
		}
		out := make([]any, 0, len(d.Interfaces))
		for _, n := range d.Interfaces {
			out = append(out, &typeValue{schema: v.schema, def: v.schema.Types[n]})
		}
		return out
	case "possibleTypes":
		if !d.IsAbstractType() {
			return nil
		}
		possible := v.schema.GetPossibleTypes(d)
		out := make([]any, len(possible))
		for i, t := range possible {
			out[i] = &typeValue{schema: v.schema, def: t}
		}
		return out
	case "enumValues":
		if d.Kind != ast.Enum {
			return nil
		}
		out := make([]any, 0, len(d.EnumValues))
		for _, e := range d.EnumValues {
			if !includeDeprecated && deprecated(e.Directives) {
				continue
			}
			out = append(out, &enumValue{def: e})
		}
		return out
	case "inputFields":
		if d.Kind != ast.InputObject {
			return nil
		}
		return inputValues(v.schema, d.Fields, includeDeprecated)
	case "ofType":
		return nil
	case "isOneOf":
		if d.Kind != ast.InputObject {
			return nil
		}
		return d.Directives.ForName("oneOf") != nil
	}
	return nil
}

func (v *typeValue) wrapping(name string) any {
	switch name {
	case "kind":
		if v.typ.NonNull {
			return "NON_NULL"
		}
		return "LIST"
	case "ofType":
		if v.typ.NonNull {
			inner := *v.typ
			inner.NonNull = false
			return typeRef(v.schema, &inner)
		}
		return typeRef(v.schema, v.typ.Elem)
	}
	return nil
}

func deprecated(dirs ast.DirectiveList) bool {
	return dirs.ForName("deprecated") != nil
}

func deprecationReason(dirs ast.DirectiveList) any {
	d := dirs.ForName("deprecated")
	if d == nil {
		return nil
	}
	if arg := d.Arguments.ForName("reason"); arg != nil && arg.Value != nil {
		return arg.Value.Raw
	}
	return "No longer supported"
}

type fieldValue struct {
	schema *ast.Schema
	def    *ast.FieldDefinition
}

func (v *fieldValue) resolveField(name string, args map[string]any) any {
	switch name {
	case "name":
		return v.def.Name
	case "description":
		return optional(v.def.Description)
	case "args":
		includeDeprecated, _ := args["includeDeprecated"].(bool)
		return argumentValues(v.schema, v.def.Arguments, includeDeprecated)
	case "type":
		return typeRef(v.schema, v.def.Type)
	case "isDeprecated":
		return deprecated(v.def.Directives)
	case "deprecationReason":
		return deprecationReason(v.def.Directives)
	}
	return nil
}

type inputValue struct {
	schema       *ast.Schema
	name         string
	description  string
	typ          *ast.Type
	defaultValue *ast.Value
	directives   ast.DirectiveList
}

func inputValues(s *ast.Schema, fields ast.FieldList, includeDeprecated bool) []any {
	out := make([]any, 0, len(fields))
	for _, f := range fields {
		if !includeDeprecated && deprecated(f.Directives) {
			continue
		}
		out = append(out, &inputValue{schema: s, name: f.Name, description: f.Description, typ: f.Type, defaultValue: f.DefaultValue, directives: f.Directives})
	}
	return out
}

func argumentValues(s *ast.Schema, args ast.ArgumentDefinitionList, includeDeprecated bool) []any {
	out := make([]any, 0, len(args))
	for _, a := range args {
		if !includeDeprecated && deprecated(a.Directives) {
			continue
		}
		out = append(out, &inputValue{schema: s, name: a.Name, description: a.Description, typ: a.Type, defaultValue: a.DefaultValue, directives: a.Directives})
	}
	return out
}

func (v *inputValue) resolveField(name string, _ map[string]any) any {
	switch name {
	case "name":
		return v.name
	case "description":
		return optional(v.description)
	case "type":
		return typeRef(v.schema, v.typ)
	case "defaultValue":
		if v.defaultValue == nil {
			return nil
		}
		return v.defaultValue.String()
	case "isDeprecated":
		return deprecated(v.directives)
	case "deprecationReason":
		return deprecationReason(v.directives)
	}
	return nil
}

type enumValue struct {
	def *ast.EnumValueDefinition
}

func (v *enumValue) resolveField(name string, _ map[string]any) any {
	switch name {
	case "name":
		return v.def.Name
	case "description":
		return optional(v.def.Description)
	case "isDeprecated":
		return deprecated(v.def.Directives)
	case "deprecationReason":
		return deprecationReason(v.def.Directives)
	}
	return nil
}

type directiveValue struct {
	schema *ast.Schema
	def    *ast.DirectiveDefinition
}

func (v *directiveValue) resolveField(name string, args map[string]any) any {
	switch name {
	case "name":
		return v.def.Name
	case "description":
		return optional(v.def.Description)
	case "isRepeatable":
		return v.def.IsRepeatable
	case "locations":
		out := make([]any, len(v.def.Locations))
		for i, l := range v.def.Locations {
			out[i] = string(l)
		}
		return out
	case "args":
		includeDeprecated, _ := args["includeDeprecated"].(bool)
		return argumentValues(v.schema, v.def.Arguments, includeDeprecated)
	}
	return nil
}
