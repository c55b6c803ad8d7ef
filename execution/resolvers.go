package execution

import (
	"context"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon/execution/arguments"
)

// ResolveParams describe one field invocation.
type ResolveParams struct {
	// Source is the resolved value of the parent object.
	Source any
	// Args are the coerced arguments, defaults applied.
	Args map[string]any
	// Field is the first AST field of the merged field group.
	Field *ast.Field
	// Definition is the field definition on the concrete parent type.
	Definition *ast.FieldDefinition
	// Parent is the concrete object type the field belongs to.
	Parent    *ast.Definition
	Path      ast.Path
	Schema    *ast.Schema
	Operation *ast.OperationDefinition
	Variables map[string]any
	// Request is the request being executed.
	Request *Request
}

// ArgumentSet builds the typed argument set of the invocation.
func (p ResolveParams) ArgumentSet() *arguments.ArgumentSet {
	return arguments.Build(p.Schema, p.Definition.Arguments, p.Args)
}

// ReturnType returns the named type the field resolves to.
func (p ResolveParams) ReturnType() *ast.Definition {
	return p.Schema.Types[p.Definition.Type.Name()]
}

// ResolveFunc resolves the value of a field.
type ResolveFunc func(ctx context.Context, p ResolveParams) (any, error)

// PrefetchFunc loads data for a field of many parents at once, before the
// field is resolved for each of them.
type PrefetchFunc func(ctx context.Context, parents []any, p ResolveParams) error

// ComplexityFunc computes the cost of a field from the cost of its
// selection and its arguments.
type ComplexityFunc func(childComplexity int, args map[string]any) int

// Middleware wraps a resolver.
type Middleware func(next ResolveFunc) ResolveFunc

// TypeResolveFunc returns the concrete object type name of a value of an
// abstract type.
type TypeResolveFunc func(ctx context.Context, v any) (string, error)

// Field is the execution behavior attached to a schema field.
type Field struct {
	Resolve    ResolveFunc
	Prefetch   PrefetchFunc
	Complexity ComplexityFunc
}

// Resolvers maps schema coordinates to execution behavior. It is filled
// while the schema is built and read concurrently afterwards.
type Resolvers struct {
	mu     sync.RWMutex
	fields map[string]map[string]*Field
	types  map[string]TypeResolveFunc
}

// NewResolvers returns an empty registry.
func NewResolvers() *Resolvers {
	return &Resolvers{
		fields: make(map[string]map[string]*Field),
		types:  make(map[string]TypeResolveFunc),
	}
}

// Field returns the entry of typ.name, creating it when missing.
func (r *Resolvers) Field(typ, name string) *Field {
	r.mu.Lock()
	defer r.mu.Unlock()
	fs, ok := r.fields[typ]
	if !ok {
		fs = make(map[string]*Field)
		r.fields[typ] = fs
	}
	f, ok := fs[name]
	if !ok {
		f = &Field{}
		fs[name] = f
	}
	return f
}

// Lookup returns the entry of typ.name.
func (r *Resolvers) Lookup(typ, name string) (*Field, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	f, ok := r.fields[typ][name]
	return f, ok
}

// SetResolve sets the resolver of typ.name.
func (r *Resolvers) SetResolve(typ, name string, fn ResolveFunc) {
	r.Field(typ, name).Resolve = fn
}

// Use wraps the resolver of typ.name, falling back to DefaultResolve when
// none is set yet. Middleware added later runs first.
func (r *Resolvers) Use(typ, name string, mw Middleware) {
	f := r.Field(typ, name)
	next := f.Resolve
	if next == nil {
		next = DefaultResolve
	}
	f.Resolve = mw(next)
}

// SetTypeResolver sets the type resolver of an interface or union.
func (r *Resolvers) SetTypeResolver(typ string, fn TypeResolveFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.types[typ] = fn
}

// TypeResolver returns the type resolver of an abstract type.
func (r *Resolvers) TypeResolver(typ string) (TypeResolveFunc, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.types[typ]
	return fn, ok
}

// Complexity returns the complexity function of typ.name.
func (r *Resolvers) Complexity(typ, name string) ComplexityFunc {
	if f, ok := r.Lookup(typ, name); ok {
		return f.Complexity
	}
	return nil
}
