// Package model defines the capability interfaces the GraphQL layer consumes
// from a persistence backend: models, query builders, relations and a
// repository, together with the type registry describing them.
//
// The reference backend lives in model/sqlstore.
package model

import (
	"maps"
	"reflect"
	"slices"
)

// Model is a persisted or to-be-persisted record.
type Model interface {
	// TypeName is the GraphQL/registry type name, e.g. "User".
	TypeName() string
	// KeyNames lists the primary key columns in declaration order.
	KeyNames() []string
	// Get returns an attribute value, nil when unset.
	Get(attr string) any
	// Set assigns an attribute value.
	Set(attr string, v any)
	// Attributes returns a copy of all attributes.
	Attributes() map[string]any
	// Exists reports whether the model was loaded from or saved to the store.
	Exists() bool
}

// KeyValues returns the primary key values of m in declaration order.
func KeyValues(m Model) []any {
	names := m.KeyNames()
	values := make([]any, len(names))
	for i, n := range names {
		values[i] = m.Get(n)
	}
	return values
}

// Entity is the attribute-map Model used by the reference store.
type Entity struct {
	typ       string
	keys      []string
	attrs     map[string]any
	original  map[string]any
	exists    bool
	relations map[string]any
}

var _ Model = (*Entity)(nil)

// NewEntity returns a new, not yet persisted entity.
func NewEntity(typ string, keys ...string) *Entity {
	if len(keys) == 0 {
		keys = []string{"id"}
	}
	return &Entity{
		typ:   typ,
		keys:  keys,
		attrs: make(map[string]any),
	}
}

// Hydrate returns an entity loaded from the store with the given attributes.
func Hydrate(typ string, keys []string, attrs map[string]any) *Entity {
	e := NewEntity(typ, keys...)
	maps.Copy(e.attrs, attrs)
	e.SyncOriginal()
	return e
}

// TypeName implements Model.
func (e *Entity) TypeName() string { return e.typ }

// KeyNames implements Model.
func (e *Entity) KeyNames() []string { return e.keys }

// Get implements Model.
func (e *Entity) Get(attr string) any { return e.attrs[attr] }

// Set implements Model.
func (e *Entity) Set(attr string, v any) { e.attrs[attr] = v }

// Attributes implements Model.
func (e *Entity) Attributes() map[string]any { return maps.Clone(e.attrs) }

// Exists implements Model.
func (e *Entity) Exists() bool { return e.exists }

// Fill assigns every attribute in attrs.
func (e *Entity) Fill(attrs map[string]any) *Entity {
	maps.Copy(e.attrs, attrs)
	return e
}

// Dirty returns the attributes changed since the entity was last synced.
// A new entity reports all attributes.
func (e *Entity) Dirty() map[string]any {
	dirty := make(map[string]any)
	for k, v := range e.attrs {
		if o, ok := e.original[k]; !ok || !equalValue(o, v) {
			dirty[k] = v
		}
	}
	return dirty
}

// DirtyColumns returns the dirty attribute names, sorted.
func (e *Entity) DirtyColumns() []string {
	return slices.Sorted(maps.Keys(e.Dirty()))
}

// SyncOriginal marks the current attributes as persisted.
func (e *Entity) SyncOriginal() {
	e.original = maps.Clone(e.attrs)
	e.exists = true
}

// MarkDeleted flags the entity as no longer present in the store.
func (e *Entity) MarkDeleted() {
	e.exists = false
}

// SetRelation caches a loaded relation value.
func (e *Entity) SetRelation(name string, v any) {
	if e.relations == nil {
		e.relations = make(map[string]any)
	}
	e.relations[name] = v
}

// Relation returns a cached relation value.
func (e *Entity) Relation(name string) (any, bool) {
	v, ok := e.relations[name]
	return v, ok
}

// UnsetRelation drops a cached relation value.
func (e *Entity) UnsetRelation(name string) {
	delete(e.relations, name)
}

// String returns the model key.
func (e *Entity) String() string {
	return Key(e)
}

// ResolveField exposes attributes to the default GraphQL field resolver.
func (e *Entity) ResolveField(name string) (any, bool) {
	v, ok := e.attrs[name]
	return v, ok
}

func equalValue(a, b any) bool {
	return reflect.DeepEqual(a, b)
}
