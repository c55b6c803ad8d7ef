package schema

import (
	"context"
	"strconv"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/model"
)

// ManipulateContext is passed to manipulator hooks. Manipulators may add,
// change or remove definitions of Doc.
type ManipulateContext struct {
	Doc    *ast.SchemaDocument
	Config *config.Config
}

// Publisher delivers the payload of a subscription field to its
// subscribers.
type Publisher interface {
	Publish(ctx context.Context, subscription string, root any)
}

// AttachContext is passed to resolver and middleware hooks once the schema
// is validated.
type AttachContext struct {
	Schema     *ast.Schema
	Resolvers  *execution.Resolvers
	Config     *config.Config
	Models     *model.Registry
	Callables  *Callables
	Directives *Registry
	Publisher  Publisher
}

// Namespaces returns the callable namespaces searched for resolvers of
// fields on parent.
func (c *AttachContext) Namespaces(parent *ast.Definition) []string {
	ns := c.Config.Namespaces
	switch {
	case c.Schema.Mutation != nil && parent.Name == c.Schema.Mutation.Name:
		return ns.Mutations
	case c.Schema.Subscription != nil && parent.Name == c.Schema.Subscription.Name:
		return ns.Subscriptions
	default:
		return ns.Queries
	}
}

// Resolver looks up the callable referenced by a directive argument.
func (c *AttachContext) Resolver(ref string, parent *ast.Definition, dir *ast.Directive) (execution.ResolveFunc, error) {
	return c.Callables.Resolver(ref, c.Namespaces(parent), dir.Name)
}

// ModelFor returns the model type of a field: the model argument of dir
// when present, otherwise the model bound to the return type with @model,
// otherwise the return type itself.
func (c *AttachContext) ModelFor(parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (string, error) {
	ref := StringArg(dir, "model", "")
	if ref == "" {
		ref = c.TypeModel(field.Type.Name())
	}
	if c.Models == nil {
		return ref, nil
	}
	name, ok := c.Models.ResolveType(trimNamespace(ref, c.Config.Namespaces.Models))
	if !ok {
		return "", beacon.NewDefinitionError(
			"Failed to find a model class %s in namespaces [%s] referenced in @%s on %s.%s.",
			ref, strings.Join(c.Config.Namespaces.Models, ", "), dir.Name, parent.Name, field.Name,
		)
	}
	return name, nil
}

// TypeModel returns the model bound to the named type with @model, or the
// type name itself.
func (c *AttachContext) TypeModel(typ string) string {
	if def := c.Schema.Types[typ]; def != nil {
		if d := def.Directives.ForName("model"); d != nil {
			if class := StringArg(d, "class", ""); class != "" {
				return class
			}
		}
	}
	return typ
}

func trimNamespace(ref string, namespaces []string) string {
	for _, ns := range namespaces {
		if rest, ok := strings.CutPrefix(ref, strings.TrimSuffix(ns, ".")+"."); ok {
			return rest
		}
	}
	return ref
}

// Args returns the arguments of field.
func Args(parent *ast.Definition, field *ast.FieldDefinition) []Arg {
	out := make([]Arg, len(field.Arguments))
	for i, a := range field.Arguments {
		out[i] = Arg{Parent: parent.Name + "." + field.Name, Name: a.Name, Type: a.Type, Directives: a.Directives}
	}
	return out
}

// InputFields returns the fields of an input object type.
func InputFields(def *ast.Definition) []Arg {
	out := make([]Arg, len(def.Fields))
	for i, f := range def.Fields {
		out[i] = Arg{Parent: def.Name, Name: f.Name, Type: f.Type, Directives: f.Directives}
	}
	return out
}

// QueryBuilder returns a function applying the ArgBuilder directives of
// the arguments of field to a query. Input objects marked with @spread
// contribute their fields.
func (c *AttachContext) QueryBuilder(parent *ast.Definition, field *ast.FieldDefinition) func(q model.Builder, args map[string]any) model.Builder {
	type step struct {
		arg     Arg
		path    []string
		builder ArgBuilder
		dir     *ast.Directive
	}
	var steps []step
	var collect func(args []Arg, path []string)
	collect = func(args []Arg, path []string) {
		for _, a := range args {
			p := append(append([]string(nil), path...), a.Name)
			for _, b := range c.Directives.matching(a.Directives, func(c Capabilities) bool { return c.ArgBuilder }) {
				steps = append(steps, step{arg: a, path: p, builder: b.Directive.(ArgBuilder), dir: b.node})
			}
			if a.Directives.ForName("spread") != nil {
				if def := c.Schema.Types[a.Type.Name()]; def != nil && def.Kind == ast.InputObject {
					collect(InputFields(def), p)
				}
			}
		}
	}
	collect(Args(parent, field), nil)
	return func(q model.Builder, args map[string]any) model.Builder {
		for _, s := range steps {
			v, ok := lookupPath(args, s.path)
			if !ok {
				continue
			}
			q = s.builder.BuildQuery(q, s.arg, v, s.dir)
		}
		return q
	}
}

func lookupPath(args map[string]any, path []string) (any, bool) {
	var cur any = args
	for _, p := range path {
		m, ok := cur.(map[string]any)
		if !ok {
			return nil, false
		}
		if cur, ok = m[p]; !ok {
			return nil, false
		}
	}
	return cur, true
}

// StringArg returns a string argument of a directive usage.
func StringArg(dir *ast.Directive, name, def string) string {
	if v, ok := argValue(dir, name).(string); ok {
		return v
	}
	return def
}

// IntArg returns an integer argument of a directive usage, nil when absent.
func IntArg(dir *ast.Directive, name string) *int {
	switch v := argValue(dir, name).(type) {
	case int64:
		n := int(v)
		return &n
	case string:
		if n, err := strconv.Atoi(v); err == nil {
			return &n
		}
	}
	return nil
}

// BoolArg returns a boolean argument of a directive usage.
func BoolArg(dir *ast.Directive, name string, def bool) bool {
	if v, ok := argValue(dir, name).(bool); ok {
		return v
	}
	return def
}

// ListArg returns a list of strings argument of a directive usage. A single
// string is a list of one.
func ListArg(dir *ast.Directive, name string) []string {
	switch v := argValue(dir, name).(type) {
	case string:
		return []string{v}
	case []any:
		out := make([]string, 0, len(v))
		for _, e := range v {
			if s, ok := e.(string); ok {
				out = append(out, s)
			}
		}
		return out
	}
	return nil
}

// MapArg returns an input object argument of a directive usage.
func MapArg(dir *ast.Directive, name string) map[string]any {
	m, _ := argValue(dir, name).(map[string]any)
	return m
}

func argValue(dir *ast.Directive, name string) any {
	if dir == nil {
		return nil
	}
	arg := dir.Arguments.ForName(name)
	if arg == nil || arg.Value == nil {
		if dir.Definition != nil {
			if d := dir.Definition.Arguments.ForName(name); d != nil && d.DefaultValue != nil {
				v, _ := d.DefaultValue.Value(nil)
				return v
			}
		}
		return nil
	}
	v, err := arg.Value.Value(nil)
	if err != nil {
		return nil
	}
	return v
}
