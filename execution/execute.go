package execution

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"reflect"
	"runtime/debug"
	"strconv"
	"time"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/gqlerror"
)

type state struct {
	e          *Executor
	schema     *ast.Schema
	doc        *ast.QueryDocument
	op         *ast.OperationDefinition
	vars       map[string]any
	req        *Request
	errs       gqlerror.List
	extensions map[string]any
	fragments  map[string]bool
}

// fieldGroup is the set of AST fields sharing one response key.
type fieldGroup struct {
	key    string
	parent *ast.Definition
	fields []*ast.Field
}

type wrapFunc func(ctx context.Context, resolve func(context.Context) (any, error)) (any, error)

// collectFields merges the selections of set that apply to typ into groups
// keyed by response name, in selection order.
func (s *state) collectFields(typ *ast.Definition, set ast.SelectionSet) []*fieldGroup {
	var groups []*fieldGroup
	index := make(map[string]*fieldGroup)
	visited := make(map[string]bool)
	var collect func(set ast.SelectionSet)
	collect = func(set ast.SelectionSet) {
		for _, sel := range set {
			switch sel := sel.(type) {
			case *ast.Field:
				if !s.included(sel.Directives) {
					continue
				}
				key := sel.Alias
				if key == "" {
					key = sel.Name
				}
				g, ok := index[key]
				if !ok {
					g = &fieldGroup{key: key, parent: typ}
					index[key] = g
					groups = append(groups, g)
				}
				g.fields = append(g.fields, sel)
			case *ast.InlineFragment:
				if !s.included(sel.Directives) || !s.applies(typ, sel.TypeCondition) {
					continue
				}
				collect(sel.SelectionSet)
			case *ast.FragmentSpread:
				if !s.included(sel.Directives) || visited[sel.Name] {
					continue
				}
				visited[sel.Name] = true
				frag := sel.Definition
				if frag == nil {
					frag = s.doc.Fragments.ForName(sel.Name)
				}
				if frag == nil || !s.applies(typ, frag.TypeCondition) {
					continue
				}
				collect(frag.SelectionSet)
			}
		}
	}
	collect(set)
	return groups
}

func (s *state) included(dirs ast.DirectiveList) bool {
	return includedBy(dirs, s.vars)
}

func (s *state) applies(typ *ast.Definition, cond string) bool {
	if cond == "" || cond == typ.Name {
		return true
	}
	def := s.schema.Types[cond]
	if def == nil || !def.IsAbstractType() {
		return false
	}
	for _, t := range s.schema.GetPossibleTypes(def) {
		if t.Name == typ.Name {
			return true
		}
	}
	return false
}

// executeFields resolves the selection of an object value. The second
// result is false when a non-null field failed and the object is null.
func (s *state) executeFields(ctx context.Context, typ *ast.Definition, source any, set ast.SelectionSet, path ast.Path, wrap wrapFunc) (*OrderedMap, bool) {
	groups := s.collectFields(typ, set)
	out := NewOrderedMap(len(groups))
	for _, g := range groups {
		v, ok := s.executeField(ctx, typ, source, g, appendPath(path, ast.PathName(g.key)), wrap)
		if !ok {
			return nil, false
		}
		out.Set(g.key, v)
	}
	return out, true
}

func appendPath(path ast.Path, el ast.PathElement) ast.Path {
	out := make(ast.Path, len(path), len(path)+1)
	copy(out, path)
	return append(out, el)
}

func (s *state) params(parent *ast.Definition, source any, g *fieldGroup, path ast.Path) (ResolveParams, error) {
	f := g.fields[0]
	def := parent.Fields.ForName(f.Name)
	if def == nil {
		return ResolveParams{}, fmt.Errorf("execution: unknown field %s.%s", parent.Name, f.Name)
	}
	args := f.ArgumentMap(s.vars)
	if f.Definition == nil {
		args = (&ast.Field{Definition: def, Arguments: f.Arguments}).ArgumentMap(s.vars)
	}
	return ResolveParams{
		Source:     source,
		Args:       args,
		Field:      f,
		Definition: def,
		Parent:     parent,
		Path:       path,
		Schema:     s.schema,
		Operation:  s.op,
		Variables:  s.vars,
		Request:    s.req,
	}, nil
}

func (s *state) executeField(ctx context.Context, parent *ast.Definition, source any, g *fieldGroup, path ast.Path, wrap wrapFunc) (any, bool) {
	f := g.fields[0]
	if f.Name == "__typename" {
		return parent.Name, true
	}
	if parent == s.schema.Query {
		switch f.Name {
		case "__schema":
			return s.completeValue(ctx, ast.NonNullNamedType("__Schema", nil), &schemaValue{schema: s.schema}, g, path)
		case "__type":
			name, _ := s.fieldArgs(f)["name"].(string)
			t := s.schema.Types[name]
			if t == nil {
				return nil, true
			}
			return s.completeValue(ctx, ast.NamedType("__Type", nil), &typeValue{schema: s.schema, def: t}, g, path)
		}
	}

	p, err := s.params(parent, source, g, path)
	if err != nil {
		s.fieldError(ctx, err, f, path)
		return nil, !isNonNull(f.Definition)
	}
	resolve := func(ctx context.Context) (any, error) { return s.resolve(ctx, p) }
	var v any
	if wrap != nil {
		v, err = wrap(ctx, resolve)
	} else {
		v, err = resolve(ctx)
	}
	if err != nil {
		s.fieldError(ctx, err, f, path)
		return nil, !p.Definition.Type.NonNull
	}
	return s.completeValue(ctx, p.Definition.Type, v, g, path)
}

func isNonNull(def *ast.FieldDefinition) bool {
	return def != nil && def.Type != nil && def.Type.NonNull
}

func (s *state) fieldArgs(f *ast.Field) map[string]any {
	if args := f.ArgumentMap(s.vars); args != nil {
		return args
	}
	out := make(map[string]any, len(f.Arguments))
	for _, a := range f.Arguments {
		if v, err := a.Value.Value(s.vars); err == nil {
			out[a.Name] = v
		}
	}
	return out
}

// resolve calls the field resolver, turning panics into field errors.
func (s *state) resolve(ctx context.Context, p ResolveParams) (v any, err error) {
	defer func() {
		if r := recover(); r != nil {
			s.e.logger.ErrorContext(ctx, "resolver panic",
				"field", p.Parent.Name+"."+p.Definition.Name,
				"panic", r,
				"stack", string(debug.Stack()))
			v, err = nil, fmt.Errorf("internal error resolving %s.%s", p.Parent.Name, p.Definition.Name)
		}
	}()
	fn := DefaultResolve
	if p.Parent == s.schema.Subscription {
		fn = ResolveSource
	}
	if f, ok := s.e.resolvers.Lookup(p.Parent.Name, p.Definition.Name); ok && f.Resolve != nil {
		fn = f.Resolve
	}
	return fn(ctx, p)
}

func (s *state) fieldError(ctx context.Context, err error, f *ast.Field, path ast.Path) {
	gerr := s.e.presenter(ctx, err, path)
	if gerr == nil {
		return
	}
	if len(gerr.Locations) == 0 && f != nil && f.Position != nil {
		gerr.Locations = []gqlerror.Location{{Line: f.Position.Line, Column: f.Position.Column}}
	}
	if gerr.Path == nil {
		gerr.Path = path
	}
	s.errs = append(s.errs, gerr)
}

// completeValue converts a resolved value to its result form according to
// typ. The second result is false when null must propagate to the parent.
func (s *state) completeValue(ctx context.Context, typ *ast.Type, v any, g *fieldGroup, path ast.Path) (any, bool) {
	if !typ.NonNull {
		out, ok := s.completeNullable(ctx, typ, v, g, path)
		if !ok {
			return nil, true
		}
		return out, true
	}
	out, ok := s.completeNullable(ctx, typ, v, g, path)
	if !ok {
		return nil, false
	}
	if out == nil {
		f := g.fields[0]
		s.fieldError(ctx, fmt.Errorf("Cannot return null for non-nullable field %s.%s.", g.parent.Name, f.Name), f, path)
		return nil, false
	}
	return out, true
}

// completeNullable completes v ignoring the non-null flag of typ. It reports
// false when completion failed with an error.
func (s *state) completeNullable(ctx context.Context, typ *ast.Type, v any, g *fieldGroup, path ast.Path) (any, bool) {
	f := g.fields[0]
	if isNil(v) {
		return nil, true
	}
	if typ.Elem != nil {
		return s.completeList(ctx, typ, v, g, path)
	}
	def := s.schema.Types[typ.NamedType]
	if def == nil {
		s.fieldError(ctx, fmt.Errorf("execution: unknown type %s", typ.NamedType), f, path)
		return nil, false
	}
	switch def.Kind {
	case ast.Scalar:
		out, err := serializeScalar(def.Name, v)
		if err != nil {
			s.fieldError(ctx, err, f, path)
			return nil, false
		}
		return out, true
	case ast.Enum:
		out, err := serializeEnum(def, v)
		if err != nil {
			s.fieldError(ctx, err, f, path)
			return nil, false
		}
		return out, true
	case ast.Interface, ast.Union:
		obj, err := s.resolveType(ctx, def, v)
		if err != nil {
			s.fieldError(ctx, err, f, path)
			return nil, false
		}
		return s.completeObject(ctx, obj, v, g, path)
	default:
		return s.completeObject(ctx, def, v, g, path)
	}
}

func (s *state) completeObject(ctx context.Context, typ *ast.Definition, v any, g *fieldGroup, path ast.Path) (any, bool) {
	out, ok := s.executeFields(ctx, typ, v, subSelection(g), path, nil)
	if !ok {
		return nil, false
	}
	return out, true
}

func subSelection(g *fieldGroup) ast.SelectionSet {
	if len(g.fields) == 1 {
		return g.fields[0].SelectionSet
	}
	var set ast.SelectionSet
	for _, f := range g.fields {
		set = append(set, f.SelectionSet...)
	}
	return set
}

func (s *state) completeList(ctx context.Context, typ *ast.Type, v any, g *fieldGroup, path ast.Path) (any, bool) {
	f := g.fields[0]
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		s.fieldError(ctx, fmt.Errorf("Expected Iterable, but did not find one for field %s.%s.", g.parent.Name, f.Name), f, path)
		return nil, false
	}
	items := make([]any, rv.Len())
	for i := range items {
		items[i] = rv.Index(i).Interface()
	}
	s.prefetch(ctx, typ.Elem, items, g, path)

	out := make([]any, len(items))
	for i, item := range items {
		c, ok := s.completeValue(ctx, typ.Elem, item, g, appendPath(path, ast.PathIndex(i)))
		if !ok {
			return nil, false
		}
		out[i] = c
	}
	return out, true
}

// prefetch runs the prefetch functions of the fields selected on the items
// of a list, once per concrete type.
func (s *state) prefetch(ctx context.Context, elem *ast.Type, items []any, g *fieldGroup, path ast.Path) {
	if elem.Elem != nil {
		return
	}
	def := s.schema.Types[elem.NamedType]
	if def == nil || !def.IsCompositeType() || len(items) == 0 {
		return
	}
	byType := make(map[string][]any)
	var order []*ast.Definition
	for _, item := range items {
		if isNil(item) {
			continue
		}
		obj := def
		if def.IsAbstractType() {
			var err error
			if obj, err = s.resolveType(ctx, def, item); err != nil {
				continue
			}
		}
		if _, ok := byType[obj.Name]; !ok {
			order = append(order, obj)
		}
		byType[obj.Name] = append(byType[obj.Name], item)
	}
	set := subSelection(g)
	for _, obj := range order {
		for _, sub := range s.collectFields(obj, set) {
			f, ok := s.e.resolvers.Lookup(obj.Name, sub.fields[0].Name)
			if !ok || f.Prefetch == nil {
				continue
			}
			p, err := s.params(obj, nil, sub, appendPath(path, ast.PathName(sub.key)))
			if err != nil {
				continue
			}
			if err := f.Prefetch(ctx, byType[obj.Name], p); err != nil {
				s.e.logger.WarnContext(ctx, "prefetch failed",
					"field", obj.Name+"."+p.Definition.Name,
					"error", err)
			}
		}
	}
}

// TypeNamer is implemented by values that know their GraphQL type.
type TypeNamer interface {
	TypeName() string
}

func (s *state) resolveType(ctx context.Context, abstract *ast.Definition, v any) (*ast.Definition, error) {
	var name string
	if fn, ok := s.e.resolvers.TypeResolver(abstract.Name); ok {
		n, err := fn(ctx, v)
		if err != nil {
			return nil, err
		}
		name = n
	} else if tn, ok := v.(TypeNamer); ok {
		name = tn.TypeName()
	} else if m, ok := v.(map[string]any); ok {
		name, _ = m["__typename"].(string)
	}
	possible := s.schema.GetPossibleTypes(abstract)
	if name == "" && len(possible) == 1 {
		return possible[0], nil
	}
	for _, t := range possible {
		if t.Name == name {
			return t, nil
		}
	}
	if name == "" {
		return nil, fmt.Errorf("Abstract type %s must resolve to an Object type at runtime, could not determine the type of %T.", abstract.Name, v)
	}
	return nil, fmt.Errorf("Runtime Object type %q is not a possible type for %q.", name, abstract.Name)
}

// ErrInvalidScalar is returned when a resolved value cannot be serialized.
var ErrInvalidScalar = errors.New("execution: cannot serialize value")

func serializeScalar(name string, v any) (any, error) {
	switch name {
	case "Int":
		i, ok := toInt(v)
		if !ok || i > math.MaxInt32 || i < math.MinInt32 {
			return nil, fmt.Errorf("%w %v as Int", ErrInvalidScalar, v)
		}
		return i, nil
	case "Float":
		if f, ok := toFloat(v); ok {
			return f, nil
		}
		return nil, fmt.Errorf("%w %v as Float", ErrInvalidScalar, v)
	case "String":
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
		if i, ok := toInt(v); ok {
			return strconv.FormatInt(i, 10), nil
		}
		return nil, fmt.Errorf("%w %v as String", ErrInvalidScalar, v)
	case "Boolean":
		if b, ok := v.(bool); ok {
			return b, nil
		}
		if i, ok := toInt(v); ok {
			return i != 0, nil
		}
		return nil, fmt.Errorf("%w %v as Boolean", ErrInvalidScalar, v)
	case "ID":
		switch v := v.(type) {
		case string:
			return v, nil
		case []byte:
			return string(v), nil
		case fmt.Stringer:
			return v.String(), nil
		}
		if i, ok := toInt(v); ok {
			return strconv.FormatInt(i, 10), nil
		}
		return nil, fmt.Errorf("%w %v as ID", ErrInvalidScalar, v)
	}
	switch v := v.(type) {
	case time.Time:
		return v.Format(time.RFC3339), nil
	case *time.Time:
		return v.Format(time.RFC3339), nil
	case []byte:
		return string(v), nil
	}
	return v, nil
}

func serializeEnum(def *ast.Definition, v any) (any, error) {
	var name string
	switch v := v.(type) {
	case string:
		name = v
	case []byte:
		name = string(v)
	case fmt.Stringer:
		name = v.String()
	default:
		return nil, fmt.Errorf("%w %v as %s", ErrInvalidScalar, v, def.Name)
	}
	if def.EnumValues.ForName(name) == nil {
		return nil, fmt.Errorf("Enum %q cannot represent value: %q", def.Name, name)
	}
	return name, nil
}

func toInt(v any) (int64, bool) {
	switch v := v.(type) {
	case int:
		return int64(v), true
	case int8:
		return int64(v), true
	case int16:
		return int64(v), true
	case int32:
		return int64(v), true
	case int64:
		return v, true
	case uint:
		return int64(v), true
	case uint8:
		return int64(v), true
	case uint16:
		return int64(v), true
	case uint32:
		return int64(v), true
	case uint64:
		if v > math.MaxInt64 {
			return 0, false
		}
		return int64(v), true
	case float64:
		if v != math.Trunc(v) {
			return 0, false
		}
		return int64(v), true
	case float32:
		if float64(v) != math.Trunc(float64(v)) {
			return 0, false
		}
		return int64(v), true
	case json.Number:
		i, err := v.Int64()
		return i, err == nil
	case string:
		i, err := strconv.ParseInt(v, 10, 64)
		return i, err == nil
	case []byte:
		i, err := strconv.ParseInt(string(v), 10, 64)
		return i, err == nil
	}
	return 0, false
}

func toFloat(v any) (float64, bool) {
	switch v := v.(type) {
	case float64:
		return v, true
	case float32:
		return float64(v), true
	case json.Number:
		f, err := v.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(v, 64)
		return f, err == nil
	case []byte:
		f, err := strconv.ParseFloat(string(v), 64)
		return f, err == nil
	}
	if i, ok := toInt(v); ok {
		return float64(i), true
	}
	return 0, false
}
