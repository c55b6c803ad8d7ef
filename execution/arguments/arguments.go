package arguments

import (
	"encoding/json"
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon/model"
)

// Directive names interpreted while building and partitioning sets.
const (
	DirectiveSpread = "spread"
	DirectiveRename = "rename"
)

// Argument is one named argument and the definition it was built from.
type Argument struct {
	Name       string
	Value      Value
	Type       *ast.Type
	Directives ast.DirectiveList
}

// Directive returns the named directive of the argument definition.
func (a *Argument) Directive(name string) *ast.Directive {
	return a.Directives.ForName(name)
}

// Column returns the model attribute the argument writes: the
// @rename(attribute:) target, or the argument name.
func (a *Argument) Column() string {
	if s := directiveString(a.Directive(DirectiveRename), "attribute"); s != "" {
		return s
	}
	return a.Name
}

// RelationKind returns the relation kind of a @belongsTo, @hasMany, ...
// directive on the argument.
func (a *Argument) RelationKind() (model.Kind, bool) {
	for _, d := range a.Directives {
		if k, ok := model.ParseKind(d.Name); ok {
			return k, true
		}
	}
	return model.KindInvalid, false
}

// RelationName returns the relation the argument mutates: the directive's
// relation argument, or the argument name.
func (a *Argument) RelationName() string {
	for _, d := range a.Directives {
		if _, ok := model.ParseKind(d.Name); ok {
			if s := directiveString(d, "relation"); s != "" {
				return s
			}
		}
	}
	return a.Name
}

func directiveString(d *ast.Directive, arg string) string {
	if d == nil {
		return ""
	}
	if a := d.Arguments.ForName(arg); a != nil && a.Value != nil && a.Value.Kind != ast.NullValue {
		return a.Value.Raw
	}
	return ""
}

// ArgumentSet is an ordered mapping of argument names to arguments.
type ArgumentSet struct {
	names []string
	args  map[string]*Argument
}

// New returns an empty set.
func New() *ArgumentSet {
	return &ArgumentSet{args: make(map[string]*Argument)}
}

// Add stores a, replacing an argument of the same name in place.
func (s *ArgumentSet) Add(a *Argument) *ArgumentSet {
	if _, ok := s.args[a.Name]; !ok {
		s.names = append(s.names, a.Name)
	}
	s.args[a.Name] = a
	return s
}

// Has reports whether name is present with a non-null value.
func (s *ArgumentSet) Has(name string) bool {
	a, ok := s.args[name]
	return ok && !a.Value.IsNull()
}

// Get returns the named argument.
func (s *ArgumentSet) Get(name string) (*Argument, bool) {
	a, ok := s.args[name]
	return a, ok
}

// Value returns the value of name, Null when absent.
func (s *ArgumentSet) Value(name string) Value {
	if a, ok := s.args[name]; ok {
		return a.Value
	}
	return Null()
}

// Names returns the argument names in declaration order.
func (s *ArgumentSet) Names() []string { return slices.Clone(s.names) }

// Len returns the number of arguments.
func (s *ArgumentSet) Len() int { return len(s.names) }

// Arguments returns the arguments in declaration order.
func (s *ArgumentSet) Arguments() []*Argument {
	out := make([]*Argument, len(s.names))
	for i, n := range s.names {
		out[i] = s.args[n]
	}
	return out
}

// ToMap converts the set to plain Go values keyed by argument name.
func (s *ArgumentSet) ToMap() map[string]any {
	m := make(map[string]any, len(s.names))
	for _, n := range s.names {
		m[n] = s.args[n].Value.Interface()
	}
	return m
}

// Attributes converts the set to plain Go values keyed by model column.
func (s *ArgumentSet) Attributes() map[string]any {
	m := make(map[string]any, len(s.names))
	for _, a := range s.Arguments() {
		m[a.Column()] = a.Value.Interface()
	}
	return m
}

// Spread returns a copy of s where every nested set whose argument carries
// @spread is replaced by its own arguments, recursively.
func (s *ArgumentSet) Spread() *ArgumentSet {
	out := New()
	for _, a := range s.Arguments() {
		switch a.Value.Kind() {
		case KindSet:
			inner := a.Value.Set().Spread()
			if a.Directive(DirectiveSpread) != nil {
				for _, ia := range inner.Arguments() {
					out.Add(ia)
				}
				continue
			}
			c := *a
			c.Value = Set(inner)
			out.Add(&c)
		case KindSetList:
			sets := a.Value.SetList()
			spread := make([]*ArgumentSet, len(sets))
			for i, ns := range sets {
				spread[i] = ns.Spread()
			}
			c := *a
			c.Value = SetList(spread)
			out.Add(&c)
		default:
			out.Add(a)
		}
	}
	return out
}

// Nested is an argument that mutates a relation of the model being saved.
type Nested struct {
	Argument *Argument
	Relation *model.RelationInfo
}

// Partition is the result of splitting a set for SaveModel.
type Partition struct {
	// Before holds relations whose foreign key lives on the model
	// (BelongsTo, MorphTo); they are applied before the model is saved.
	Before []Nested
	// Attributes holds the plain model attributes.
	Attributes *ArgumentSet
	// After holds relations that need the saved model's key.
	After []Nested
}

// Partition splits s into nested relation arguments and plain attributes.
// Arguments marked with a relation directive are looked up in info.
func (s *ArgumentSet) Partition(info *model.TypeInfo) (*Partition, error) {
	p := &Partition{Attributes: New()}
	for _, a := range s.Arguments() {
		if _, ok := a.RelationKind(); !ok {
			p.Attributes.Add(a)
			continue
		}
		rel, ok := info.Relation(a.RelationName())
		if !ok {
			return nil, fmt.Errorf("arguments: type %s has no relation %q", info.Name, a.RelationName())
		}
		n := Nested{Argument: a, Relation: rel}
		if rel.Kind.OwnsForeignKey() {
			p.Before = append(p.Before, n)
		} else {
			p.After = append(p.After, n)
		}
	}
	return p, nil
}

// Build creates the set for a field from its argument definitions and the
// coerced argument values, e.g. (*ast.Field).ArgumentMap(vars). Input
// objects become nested sets following the input types of schema.
func Build(schema *ast.Schema, defs ast.ArgumentDefinitionList, values map[string]any) *ArgumentSet {
	s := New()
	for _, def := range defs {
		v, ok := values[def.Name]
		if !ok {
			continue
		}
		s.Add(&Argument{
			Name:       def.Name,
			Type:       def.Type,
			Directives: def.Directives,
			Value:      buildValue(schema, def.Type, v),
		})
	}
	return s
}

func buildInput(schema *ast.Schema, def *ast.Definition, values map[string]any) *ArgumentSet {
	s := New()
	for _, f := range def.Fields {
		v, ok := values[f.Name]
		if !ok && f.DefaultValue != nil {
			v, ok = defaultValue(f.DefaultValue)
		}
		if !ok {
			continue
		}
		s.Add(&Argument{
			Name:       f.Name,
			Type:       f.Type,
			Directives: f.Directives,
			Value:      buildValue(schema, f.Type, v),
		})
	}
	return s
}

func defaultValue(v *ast.Value) (any, bool) {
	out, err := v.Value(nil)
	return out, err == nil
}

func buildValue(schema *ast.Schema, typ *ast.Type, v any) Value {
	if v == nil {
		return Null()
	}
	if typ.Elem != nil {
		items, ok := v.([]any)
		if !ok {
			// A single value is coerced to a one-element list.
			items = []any{v}
		}
		if isInputObject(schema, innerType(typ)) {
			sets := make([]*ArgumentSet, 0, len(items))
			for _, item := range items {
				if iv := buildValue(schema, typ.Elem, item); iv.Kind() == KindSet {
					sets = append(sets, iv.Set())
				}
			}
			return SetList(sets)
		}
		list := make([]any, len(items))
		for i, item := range items {
			list[i] = coerceScalar(innerType(typ), item)
		}
		return List(list)
	}
	if def := inputObject(schema, typ.NamedType); def != nil {
		m, ok := v.(map[string]any)
		if !ok {
			return Null()
		}
		return Set(buildInput(schema, def, m))
	}
	return Scalar(coerceScalar(typ.NamedType, v))
}

func innerType(t *ast.Type) string {
	for t.Elem != nil {
		t = t.Elem
	}
	return t.NamedType
}

func inputObject(schema *ast.Schema, name string) *ast.Definition {
	if schema == nil {
		return nil
	}
	if def := schema.Types[name]; def != nil && def.Kind == ast.InputObject {
		return def
	}
	return nil
}

func isInputObject(schema *ast.Schema, name string) bool {
	return inputObject(schema, name) != nil
}

// coerceScalar normalises the number representations produced by JSON
// decoding and literal parsing: Int becomes int64, Float float64 and ID a
// string.
func coerceScalar(typ string, v any) any {
	switch typ {
	case "Int":
		switch n := v.(type) {
		case json.Number:
			if i, err := n.Int64(); err == nil {
				return i
			}
		case float64:
			if n == math.Trunc(n) {
				return int64(n)
			}
		case int:
			return int64(n)
		case int32:
			return int64(n)
		}
	case "Float":
		switch n := v.(type) {
		case json.Number:
			if f, err := n.Float64(); err == nil {
				return f
			}
		case int64:
			return float64(n)
		case int:
			return float64(n)
		}
	case "ID":
		switch n := v.(type) {
		case json.Number:
			return n.String()
		case int64:
			return strconv.FormatInt(n, 10)
		case int:
			return strconv.Itoa(n)
		case float64:
			if n == math.Trunc(n) {
				return strconv.FormatInt(int64(n), 10)
			}
		}
	}
	return v
}

// FromMap builds a set without type information: maps become nested sets,
// slices of maps set lists and everything else scalars. Keys are sorted.
func FromMap(values map[string]any) *ArgumentSet {
	s := New()
	for _, k := range slices.Sorted(maps.Keys(values)) {
		s.Add(&Argument{Name: k, Value: untyped(values[k])})
	}
	return s
}

func untyped(v any) Value {
	switch x := v.(type) {
	case nil:
		return Null()
	case map[string]any:
		return Set(FromMap(x))
	case []any:
		if len(x) > 0 {
			if _, ok := x[0].(map[string]any); ok {
				sets := make([]*ArgumentSet, 0, len(x))
				for _, item := range x {
					if m, ok := item.(map[string]any); ok {
						sets = append(sets, FromMap(m))
					}
				}
				return SetList(sets)
			}
		}
		return List(x)
	default:
		return Scalar(x)
	}
}
