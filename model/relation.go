package model

import (
	"context"
	"fmt"
)

// Kind is the cardinality and polymorphism of a relation.
type Kind uint8

// Relation kinds.
const (
	KindInvalid Kind = iota
	KindBelongsTo
	KindHasOne
	KindHasMany
	KindMorphTo
	KindMorphMany
	KindBelongsToMany
)

var kindNames = [...]string{
	KindInvalid:       "invalid",
	KindBelongsTo:     "belongsTo",
	KindHasOne:        "hasOne",
	KindHasMany:       "hasMany",
	KindMorphTo:       "morphTo",
	KindMorphMany:     "morphMany",
	KindBelongsToMany: "belongsToMany",
}

// String returns the directive name of the kind, e.g. "belongsTo".
func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// ParseKind maps a directive name to its kind.
func ParseKind(name string) (Kind, bool) {
	for k, n := range kindNames {
		if k != int(KindInvalid) && n == name {
			return Kind(k), true
		}
	}
	return KindInvalid, false
}

// ToOne reports whether the relation resolves to at most one model.
func (k Kind) ToOne() bool {
	return k == KindBelongsTo || k == KindHasOne || k == KindMorphTo
}

// OwnsForeignKey reports whether the foreign key lives on the parent, so the
// relation must be applied before the parent is saved.
func (k Kind) OwnsForeignKey() bool {
	return k == KindBelongsTo || k == KindMorphTo
}

// Relation is the common part of every relation capability.
type Relation interface {
	Kind() Kind
	Name() string
	Parent() Model
	Info() *RelationInfo
}

// BelongsToRelation is the inverse side of a one-to-one or one-to-many
// relation. The foreign key lives on the parent.
type BelongsToRelation interface {
	Relation
	// Make returns a new, unsaved instance of the related type.
	Make() (Model, error)
	// Get loads the associated model, nil when none is set.
	Get(ctx context.Context) (Model, error)
	// Associate points the parent's foreign key at m.
	Associate(m Model)
	// AssociateKey points the parent's foreign key at the given key.
	AssociateKey(key any)
	// Dissociate clears the parent's foreign key.
	Dissociate()
}

// MorphToRelation is a polymorphic BelongsTo: the parent stores the related
// type next to the foreign key.
type MorphToRelation interface {
	Relation
	// CreateModelByType returns a new instance of the named type.
	CreateModelByType(typ string) (Model, error)
	Get(ctx context.Context) (Model, error)
	Associate(m Model)
	Dissociate()
}

// HasOneRelation owns at most one related model holding the foreign key.
type HasOneRelation interface {
	Relation
	// Make returns a new related instance with its foreign key set.
	Make() (Model, error)
	// Query returns a builder scoped to the related model.
	Query() (Builder, error)
	Get(ctx context.Context) (Model, error)
	// Save points m at the parent and persists it.
	Save(ctx context.Context, m Model) error
}

// HasManyRelation owns any number of related models holding the foreign key.
// MorphMany relations implement it as well.
type HasManyRelation interface {
	Relation
	Make() (Model, error)
	Query() (Builder, error)
	Save(ctx context.Context, m Model) error
	// Connect points the foreign key of the models with the given keys at
	// the parent.
	Connect(ctx context.Context, keys []any) error
	// Disconnect clears the foreign key of the given related models.
	// Models not currently related are left untouched.
	Disconnect(ctx context.Context, keys []any) error
}

// BelongsToManyRelation links models through a pivot table.
type BelongsToManyRelation interface {
	Relation
	Make() (Model, error)
	// Query returns a builder scoped to the currently attached models.
	Query(ctx context.Context) (Builder, error)
	// Attach inserts pivot rows, optionally with extra pivot attributes.
	Attach(ctx context.Context, keys []any, attrs map[string]any) error
	// Detach removes pivot rows. A nil keys slice detaches everything.
	Detach(ctx context.Context, keys []any) error
	// Sync attaches the missing keys and, when detaching is set, detaches
	// every key not listed.
	Sync(ctx context.Context, keys []any, detaching bool) error
}
