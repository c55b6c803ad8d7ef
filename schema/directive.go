package schema

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/model"
)

// Capabilities declares the hooks a directive takes part in. The builder
// dispatches on these flags only; Register checks that every declared flag
// is backed by the matching hook interface.
type Capabilities struct {
	TypeManipulator          bool
	TypeMiddleware           bool
	TypeResolver             bool
	TypeExtensionManipulator bool
	FieldManipulator         bool
	FieldResolver            bool
	FieldMiddleware          bool
	ArgManipulator           bool
	ArgBuilder               bool
	ArgResolver              bool
	ArgTransformer           bool
}

// Directive is a schema directive known to the builder.
type Directive interface {
	// Name is the directive name without the leading @.
	Name() string
	// Definition is the SDL of the directive definition.
	Definition() string
	Capabilities() Capabilities
}

// TypeManipulator rewrites the schema document for a type carrying the
// directive.
type TypeManipulator interface {
	ManipulateType(ctx *ManipulateContext, def *ast.Definition, dir *ast.Directive) error
}

// TypeExtensionManipulator rewrites a type extension before it is merged
// into its type.
type TypeExtensionManipulator interface {
	ManipulateTypeExtension(ctx *ManipulateContext, ext *ast.Definition, dir *ast.Directive) error
}

// TypeMiddleware attaches behavior to every field of a type.
type TypeMiddleware interface {
	HandleType(ctx *AttachContext, def *ast.Definition, dir *ast.Directive) (execution.Middleware, error)
}

// TypeResolver resolves the concrete type of interface or union values.
type TypeResolver interface {
	ResolveType(ctx *AttachContext, def *ast.Definition, dir *ast.Directive) (execution.TypeResolveFunc, error)
}

// FieldManipulator rewrites the schema document for a field carrying the
// directive.
type FieldManipulator interface {
	ManipulateField(ctx *ManipulateContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) error
}

// FieldResolver provides the resolver of a field. A field has at most one.
type FieldResolver interface {
	ResolveField(ctx *AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error)
}

// FieldMiddleware wraps the resolver of a field. Middleware of directives
// listed first runs first.
type FieldMiddleware interface {
	HandleField(ctx *AttachContext, parent *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.Middleware, error)
}

// Arg is an argument definition or an input object field.
type Arg struct {
	// Parent is the field or input type owning the argument.
	Parent string
	Name   string
	Type   *ast.Type
	// Directives of the argument.
	Directives ast.DirectiveList
}

// Path returns Parent.Name.
func (a Arg) Path() string { return a.Parent + "." + a.Name }

// ArgManipulator rewrites the schema document for an argument or input
// field carrying the directive.
type ArgManipulator interface {
	ManipulateArg(ctx *ManipulateContext, arg Arg, dir *ast.Directive) error
}

// ArgBuilder narrows the query of a field resolver with the value of an
// argument.
type ArgBuilder interface {
	BuildQuery(q model.Builder, arg Arg, value any, dir *ast.Directive) model.Builder
}

// ArgResolver marks an argument or input field as a nested mutation of a
// model relation. CheckArg verifies the argument type at build time.
type ArgResolver interface {
	RelationKind() model.Kind
	CheckArg(ctx *AttachContext, arg Arg, dir *ast.Directive) error
}

// ArgTransformer checks or transforms an argument value before the field is
// resolved.
type ArgTransformer interface {
	TransformArg(ctx *AttachContext, arg Arg, dir *ast.Directive) (Transform, error)
}

// Transform maps an argument value. path is the dotted argument path.
type Transform func(path string, value any) (any, error)

// Registry holds the directives of a builder.
type Registry struct {
	mu         sync.RWMutex
	directives map[string]Directive
}

// NewRegistry returns a registry holding dirs.
func NewRegistry(dirs ...Directive) (*Registry, error) {
	r := &Registry{directives: make(map[string]Directive)}
	for _, d := range dirs {
		if err := r.Register(d); err != nil {
			return nil, err
		}
	}
	return r, nil
}

// Register adds d, replacing a directive of the same name.
func (r *Registry) Register(d Directive) error {
	if err := checkCapabilities(d); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.directives[d.Name()] = d
	return nil
}

func checkCapabilities(d Directive) error {
	c := d.Capabilities()
	var missing []string
	check := func(declared bool, name string, ok bool) {
		if declared && !ok {
			missing = append(missing, name)
		}
	}
	_, ok := d.(TypeManipulator)
	check(c.TypeManipulator, "TypeManipulator", ok)
	_, ok = d.(TypeMiddleware)
	check(c.TypeMiddleware, "TypeMiddleware", ok)
	_, ok = d.(TypeResolver)
	check(c.TypeResolver, "TypeResolver", ok)
	_, ok = d.(TypeExtensionManipulator)
	check(c.TypeExtensionManipulator, "TypeExtensionManipulator", ok)
	_, ok = d.(FieldManipulator)
	check(c.FieldManipulator, "FieldManipulator", ok)
	_, ok = d.(FieldResolver)
	check(c.FieldResolver, "FieldResolver", ok)
	_, ok = d.(FieldMiddleware)
	check(c.FieldMiddleware, "FieldMiddleware", ok)
	_, ok = d.(ArgManipulator)
	check(c.ArgManipulator, "ArgManipulator", ok)
	_, ok = d.(ArgBuilder)
	check(c.ArgBuilder, "ArgBuilder", ok)
	_, ok = d.(ArgResolver)
	check(c.ArgResolver, "ArgResolver", ok)
	_, ok = d.(ArgTransformer)
	check(c.ArgTransformer, "ArgTransformer", ok)
	if len(missing) > 0 {
		return fmt.Errorf("schema: directive @%s declares %s without implementing it", d.Name(), strings.Join(missing, ", "))
	}
	return nil
}

// Lookup returns the directive called name.
func (r *Registry) Lookup(name string) (Directive, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	d, ok := r.directives[name]
	return d, ok
}

// Names returns the registered names in alphabetical order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.directives))
	for n := range r.directives {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// Definitions returns the SDL defining every registered directive.
func (r *Registry) Definitions() string {
	var b strings.Builder
	for _, n := range r.Names() {
		d, _ := r.Lookup(n)
		b.WriteString(strings.TrimSpace(d.Definition()))
		b.WriteString("\n")
	}
	return b.String()
}

// matching returns the directives of dirs that are registered and declare
// a capability, in the order they appear.
func (r *Registry) matching(dirs ast.DirectiveList, has func(Capabilities) bool) []bound {
	var out []bound
	for _, dir := range dirs {
		d, ok := r.Lookup(dir.Name)
		if !ok || !has(d.Capabilities()) {
			continue
		}
		out = append(out, bound{Directive: d, node: dir})
	}
	return out
}

// bound is a registered directive together with its usage in the schema.
type bound struct {
	Directive
	node *ast.Directive
}
