package execution

import (
	"context"
	"reflect"

	"github.com/syssam/beacon/model"
)

// FieldResolver is implemented by values that expose their own fields to
// DefaultResolve.
type FieldResolver interface {
	ResolveField(name string) (any, bool)
}

// argResolver is implemented by introspection values whose fields take
// arguments.
type argResolver interface {
	resolveField(name string, args map[string]any) any
}

// DefaultResolve reads the field from the source value: a FieldResolver,
// a map keyed by field name, or a model attribute. Anything else resolves
// to null.
func DefaultResolve(_ context.Context, p ResolveParams) (any, error) {
	return resolveFrom(p.Source, p.Definition.Name, p.Args), nil
}

// ResolveSource resolves a field to its parent value. It is the default
// resolver of subscription fields, whose parent is the broadcast payload.
func ResolveSource(_ context.Context, p ResolveParams) (any, error) {
	return p.Source, nil
}

func resolveFrom(source any, name string, args map[string]any) any {
	switch src := source.(type) {
	case nil:
		return nil
	case argResolver:
		return src.resolveField(name, args)
	case FieldResolver:
		v, _ := src.ResolveField(name)
		return v
	case map[string]any:
		return src[name]
	case model.Model:
		return src.Get(name)
	}
	rv := reflect.ValueOf(source)
	if rv.Kind() == reflect.Map && rv.Type().Key().Kind() == reflect.String {
		if v := rv.MapIndex(reflect.ValueOf(name).Convert(rv.Type().Key())); v.IsValid() {
			return v.Interface()
		}
	}
	return nil
}

// isNil reports whether v is nil or a typed nil. Nil slices are empty
// lists, not null.
func isNil(v any) bool {
	if v == nil {
		return true
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Ptr, reflect.Map, reflect.Interface, reflect.Func, reflect.Chan:
		return rv.IsNil()
	}
	return false
}
