package schema

import (
	"context"
	"fmt"
	"maps"
	"strings"
	"sync"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/execution"
)

// DefaultMethod is the method used by references without "@method".
const DefaultMethod = "Resolve"

// Callables maps class references used by directive arguments such as
// @field(resolver: "UserResolver@fullName") to Go functions. Classes are
// registered under their qualified name, e.g. "queries.UserResolver", and
// looked up through the configured namespaces.
type Callables struct {
	mu      sync.RWMutex
	classes map[string]map[string]any
}

// NewCallables returns an empty registry.
func NewCallables() *Callables {
	return &Callables{classes: make(map[string]map[string]any)}
}

// Register adds the methods of class. Methods are execution.ResolveFunc
// values or other function types a directive expects.
func (c *Callables) Register(class string, methods map[string]any) {
	c.mu.Lock()
	defer c.mu.Unlock()
	m, ok := c.classes[class]
	if !ok {
		m = make(map[string]any, len(methods))
		c.classes[class] = m
	}
	for name, fn := range methods {
		m[name] = fn
	}
}

// RegisterFunc registers fn as the default method of class.
func (c *Callables) RegisterFunc(class string, fn execution.ResolveFunc) {
	c.Register(class, map[string]any{DefaultMethod: fn})
}

// ParseReference splits "Class@method". The method defaults to
// DefaultMethod.
func ParseReference(ref string) (class, method string) {
	class, method, ok := strings.Cut(ref, "@")
	if !ok || method == "" {
		method = DefaultMethod
	}
	return class, method
}

// Lookup finds the method of a class reference, trying every namespace
// prefix in order and then the bare class name.
func (c *Callables) Lookup(ref string, namespaces []string, directive string) (any, error) {
	class, method := ParseReference(ref)
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range candidates(class, namespaces) {
		methods, ok := c.classes[name]
		if !ok {
			continue
		}
		fn, ok := methods[method]
		if !ok {
			return nil, beacon.NewDefinitionError("Method %s does not exist on class %s referenced in @%s.", method, name, directive)
		}
		return fn, nil
	}
	return nil, beacon.NewDefinitionError("Failed to find class %s in namespaces [%s] for directive @%s.", class, strings.Join(namespaces, ", "), directive)
}

// Class returns the methods of class, found like Lookup does. The map is a
// copy.
func (c *Callables) Class(class string, namespaces []string, directive string) (map[string]any, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	for _, name := range candidates(class, namespaces) {
		if methods, ok := c.classes[name]; ok {
			return maps.Clone(methods), nil
		}
	}
	return nil, beacon.NewDefinitionError("Failed to find class %s in namespaces [%s] for directive @%s.", class, strings.Join(namespaces, ", "), directive)
}

func candidates(class string, namespaces []string) []string {
	out := make([]string, 0, len(namespaces)+1)
	for _, ns := range namespaces {
		out = append(out, strings.TrimSuffix(ns, ".")+"."+class)
	}
	return append(out, class)
}

// Resolver looks up a method usable as a field resolver.
func (c *Callables) Resolver(ref string, namespaces []string, directive string) (execution.ResolveFunc, error) {
	fn, err := c.Lookup(ref, namespaces, directive)
	if err != nil {
		return nil, err
	}
	switch fn := fn.(type) {
	case execution.ResolveFunc:
		return fn, nil
	case func(context.Context, execution.ResolveParams) (any, error):
		return fn, nil
	}
	return nil, fmt.Errorf("schema: %s referenced in @%s is a %T, not a resolver", ref, directive, fn)
}
