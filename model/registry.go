package model

import (
	"fmt"
	"slices"
	"strings"
	"sync"

	"github.com/go-openapi/inflect"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"
)

// TypeInfo describes a model type: its table, key columns and relations.
type TypeInfo struct {
	Name  string
	Table string
	Keys  []string

	relations map[string]*RelationInfo
	order     []string
}

// Relation returns the named relation.
func (t *TypeInfo) Relation(name string) (*RelationInfo, bool) {
	r, ok := t.relations[name]
	return r, ok
}

// Relations returns the relations in declaration order.
func (t *TypeInfo) Relations() []*RelationInfo {
	out := make([]*RelationInfo, 0, len(t.order))
	for _, n := range t.order {
		out = append(out, t.relations[n])
	}
	return out
}

// Pivot describes the join table of a BelongsToMany relation.
type Pivot struct {
	Table      string
	ForeignKey string // column referencing the parent
	RelatedKey string // column referencing the related model
}

// RelationInfo describes a relation declared on a model type.
type RelationInfo struct {
	Name string
	Kind Kind
	// Related is the related type name. It is empty for MorphTo relations.
	Related string
	// ForeignKey is the column on the parent for BelongsTo and MorphTo, and
	// the column on the related table otherwise.
	ForeignKey string
	// OwnerKey is the column the foreign key points at.
	OwnerKey string
	// MorphType is the column holding the type name of a polymorphic relation.
	MorphType string
	Pivot     *Pivot
}

// RelationOption configures a RelationInfo.
type RelationOption func(*RelationInfo)

// ForeignKey overrides the foreign key column.
func ForeignKey(column string) RelationOption {
	return func(r *RelationInfo) { r.ForeignKey = column }
}

// OwnerKey overrides the column the foreign key points at.
func OwnerKey(column string) RelationOption {
	return func(r *RelationInfo) { r.OwnerKey = column }
}

// MorphName sets the prefix of the morph columns ("<name>_type", "<name>_id").
func MorphName(name string) RelationOption {
	return func(r *RelationInfo) {
		r.MorphType = name + "_type"
		r.ForeignKey = name + "_id"
	}
}

// PivotTable overrides the join table of a BelongsToMany relation.
func PivotTable(table string) RelationOption {
	return func(r *RelationInfo) {
		if r.Pivot == nil {
			r.Pivot = &Pivot{}
		}
		r.Pivot.Table = table
	}
}

// TypeOption configures a TypeInfo.
type TypeOption func(*TypeInfo)

// Table overrides the table name.
func Table(name string) TypeOption {
	return func(t *TypeInfo) { t.Table = name }
}

// Keys overrides the primary key columns.
func Keys(columns ...string) TypeOption {
	return func(t *TypeInfo) { t.Keys = columns }
}

// Registry holds the model types known to the store. It is filled while the
// schema is built and read concurrently afterwards.
type Registry struct {
	mu    sync.RWMutex
	types map[string]*TypeInfo
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{types: make(map[string]*TypeInfo)}
}

// Register declares a model type, or updates an existing declaration with
// the given options. Unset fields default to the tableized type name and a
// single "id" key.
func (r *Registry) Register(name string, opts ...TypeOption) *TypeInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.types[name]
	if !ok {
		t = &TypeInfo{Name: name, relations: make(map[string]*RelationInfo)}
		r.types[name] = t
	}
	for _, opt := range opts {
		opt(t)
	}
	if t.Table == "" {
		t.Table = TableName(name)
	}
	if len(t.Keys) == 0 {
		t.Keys = []string{"id"}
	}
	return t
}

// Type returns the named type.
func (r *Registry) Type(name string) (*TypeInfo, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	t, ok := r.types[name]
	return t, ok
}

// MustType returns the named type or an error naming it.
func (r *Registry) MustType(name string) (*TypeInfo, error) {
	t, ok := r.Type(name)
	if !ok {
		return nil, fmt.Errorf("model: unknown type %q", name)
	}
	return t, nil
}

// Types returns the registered type names, sorted.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.types))
	for n := range r.types {
		names = append(names, n)
	}
	slices.Sort(names)
	return names
}

// AddRelation declares a relation on the parent type, registering the parent
// (and the related type) when needed. Conventional column names are derived
// from the type and relation names.
func (r *Registry) AddRelation(parent, name string, kind Kind, related string, opts ...RelationOption) (*RelationInfo, error) {
	if kind == KindInvalid || int(kind) >= len(kindNames) {
		return nil, fmt.Errorf("model: invalid relation kind %d for %s.%s", kind, parent, name)
	}
	if kind != KindMorphTo && related == "" {
		return nil, fmt.Errorf("model: relation %s.%s needs a related type", parent, name)
	}
	p := r.Register(parent)
	if related != "" {
		r.Register(related)
	}
	info := &RelationInfo{Name: name, Kind: kind, Related: related}
	for _, opt := range opts {
		opt(info)
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	fillRelationDefaults(p, info, r.types[related])
	if _, ok := p.relations[name]; !ok {
		p.order = append(p.order, name)
	}
	p.relations[name] = info
	return info, nil
}

// Relation returns the relation declared on the parent type.
func (r *Registry) Relation(parent, name string) (*RelationInfo, error) {
	t, err := r.MustType(parent)
	if err != nil {
		return nil, err
	}
	info, ok := t.Relation(name)
	if !ok {
		return nil, fmt.Errorf("model: type %s has no relation %q", parent, name)
	}
	return info, nil
}

// ResolveType maps a user-supplied type reference ("Post", "post",
// "blog_post") to a registered type name.
func (r *Registry) ResolveType(ref string) (string, bool) {
	if _, ok := r.Type(ref); ok {
		return ref, true
	}
	words := strings.NewReplacer("_", " ", "-", " ").Replace(ref)
	name := strings.ReplaceAll(cases.Title(language.English, cases.NoLower).String(words), " ", "")
	if _, ok := r.Type(name); ok {
		return name, true
	}
	return "", false
}

func fillRelationDefaults(parent *TypeInfo, info *RelationInfo, related *TypeInfo) {
	relatedKey := "id"
	if related != nil {
		relatedKey = related.Keys[0]
	}
	switch info.Kind {
	case KindBelongsTo:
		if info.ForeignKey == "" {
			info.ForeignKey = inflect.Underscore(info.Name) + "_id"
		}
		if info.OwnerKey == "" {
			info.OwnerKey = relatedKey
		}
	case KindMorphTo:
		if info.MorphType == "" {
			info.MorphType = inflect.Underscore(info.Name) + "_type"
		}
		if info.ForeignKey == "" {
			info.ForeignKey = inflect.Underscore(info.Name) + "_id"
		}
	case KindHasOne, KindHasMany:
		if info.ForeignKey == "" {
			info.ForeignKey = ForeignKeyName(parent.Name)
		}
		if info.OwnerKey == "" {
			info.OwnerKey = parent.Keys[0]
		}
	case KindMorphMany:
		if info.MorphType == "" {
			morph := inflect.Underscore(parent.Name) + "able"
			info.MorphType, info.ForeignKey = morph+"_type", morph+"_id"
		}
		if info.OwnerKey == "" {
			info.OwnerKey = parent.Keys[0]
		}
	case KindBelongsToMany:
		if info.Pivot == nil {
			info.Pivot = &Pivot{}
		}
		if info.Pivot.Table == "" {
			info.Pivot.Table = PivotTableName(parent.Name, info.Related)
		}
		if info.Pivot.ForeignKey == "" {
			info.Pivot.ForeignKey = ForeignKeyName(parent.Name)
		}
		if info.Pivot.RelatedKey == "" {
			info.Pivot.RelatedKey = ForeignKeyName(info.Related)
		}
		if info.OwnerKey == "" {
			info.OwnerKey = relatedKey
		}
	}
}

// TableName returns the conventional table of a type: "User" -> "users",
// "OrderLine" -> "order_lines".
func TableName(typ string) string {
	return inflect.Tableize(typ)
}

// ForeignKeyName returns the conventional foreign key referencing a type:
// "User" -> "user_id".
func ForeignKeyName(typ string) string {
	return inflect.ForeignKey(typ)
}

// PivotTableName joins the singular table names of both sides in
// alphabetical order: ("User", "Role") -> "role_user".
func PivotTableName(a, b string) string {
	names := []string{inflect.Underscore(a), inflect.Underscore(b)}
	slices.Sort(names)
	return strings.Join(names, "_")
}
