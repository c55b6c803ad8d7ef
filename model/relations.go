package model

import (
	"context"
	"fmt"
)

// Relate returns the relation capability for the named relation of parent.
// The concrete value implements the interface matching the relation kind,
// e.g. BelongsToRelation for KindBelongsTo.
func Relate(repo Repository, parent Model, name string) (Relation, error) {
	info, err := repo.Registry().Relation(parent.TypeName(), name)
	if err != nil {
		return nil, err
	}
	base := relation{repo: repo, parent: parent, info: info}
	switch info.Kind {
	case KindBelongsTo:
		return &belongsTo{base}, nil
	case KindMorphTo:
		return &morphTo{base}, nil
	case KindHasOne:
		return &hasOne{hasMany{base}}, nil
	case KindHasMany, KindMorphMany:
		return &hasMany{base}, nil
	case KindBelongsToMany:
		return &belongsToMany{base}, nil
	default:
		return nil, fmt.Errorf("model: relation %s.%s has invalid kind %s", parent.TypeName(), name, info.Kind)
	}
}

type relation struct {
	repo   Repository
	parent Model
	info   *RelationInfo
}

func (r relation) Kind() Kind          { return r.info.Kind }
func (r relation) Name() string        { return r.info.Name }
func (r relation) Parent() Model       { return r.parent }
func (r relation) Info() *RelationInfo { return r.info }

// remember caches a resolved relation value on entities.
func (r relation) remember(v any) {
	if e, ok := r.parent.(*Entity); ok {
		if v == nil {
			e.UnsetRelation(r.info.Name)
			return
		}
		e.SetRelation(r.info.Name, v)
	}
}

type belongsTo struct{ relation }

var _ BelongsToRelation = (*belongsTo)(nil)

func (r *belongsTo) Make() (Model, error) { return r.repo.New(r.info.Related) }

func (r *belongsTo) Get(ctx context.Context) (Model, error) {
	fk := r.parent.Get(r.info.ForeignKey)
	if fk == nil {
		return nil, nil
	}
	q, err := r.repo.Query(r.info.Related)
	if err != nil {
		return nil, err
	}
	return q.Where(r.info.OwnerKey, fk).First(ctx)
}

func (r *belongsTo) Associate(m Model) {
	r.parent.Set(r.info.ForeignKey, m.Get(r.info.OwnerKey))
	r.remember(m)
}

func (r *belongsTo) AssociateKey(key any) {
	r.parent.Set(r.info.ForeignKey, key)
	r.remember(nil)
}

func (r *belongsTo) Dissociate() {
	r.parent.Set(r.info.ForeignKey, nil)
	r.remember(nil)
}

type morphTo struct{ relation }

var _ MorphToRelation = (*morphTo)(nil)

func (r *morphTo) CreateModelByType(typ string) (Model, error) {
	name, ok := r.repo.Registry().ResolveType(typ)
	if !ok {
		return nil, fmt.Errorf("model: morphTo %s.%s: unknown type %q", r.parent.TypeName(), r.info.Name, typ)
	}
	return r.repo.New(name)
}

func (r *morphTo) Get(ctx context.Context) (Model, error) {
	typ, id := r.parent.Get(r.info.MorphType), r.parent.Get(r.info.ForeignKey)
	if typ == nil || id == nil {
		return nil, nil
	}
	name, ok := r.repo.Registry().ResolveType(KeyString(typ))
	if !ok {
		return nil, fmt.Errorf("model: morphTo %s.%s: unknown type %q", r.parent.TypeName(), r.info.Name, typ)
	}
	q, err := r.repo.Query(name)
	if err != nil {
		return nil, err
	}
	return q.WhereKey(id).First(ctx)
}

func (r *morphTo) Associate(m Model) {
	r.parent.Set(r.info.MorphType, m.TypeName())
	r.parent.Set(r.info.ForeignKey, KeyValues(m)[0])
	r.remember(m)
}

func (r *morphTo) Dissociate() {
	r.parent.Set(r.info.MorphType, nil)
	r.parent.Set(r.info.ForeignKey, nil)
	r.remember(nil)
}

type hasMany struct{ relation }

var _ HasManyRelation = (*hasMany)(nil)

func (r *hasMany) parentKey() any { return r.parent.Get(r.info.OwnerKey) }

func (r *hasMany) morph() bool { return r.info.Kind == KindMorphMany }

func (r *hasMany) point(m Model) {
	m.Set(r.info.ForeignKey, r.parentKey())
	if r.morph() {
		m.Set(r.info.MorphType, r.parent.TypeName())
	}
}

func (r *hasMany) Make() (Model, error) {
	m, err := r.repo.New(r.info.Related)
	if err != nil {
		return nil, err
	}
	r.point(m)
	return m, nil
}

func (r *hasMany) Query() (Builder, error) {
	q, err := r.repo.Query(r.info.Related)
	if err != nil {
		return nil, err
	}
	q = q.Where(r.info.ForeignKey, r.parentKey())
	if r.morph() {
		q = q.Where(r.info.MorphType, r.parent.TypeName())
	}
	return q, nil
}

func (r *hasMany) Save(ctx context.Context, m Model) error {
	r.point(m)
	return r.repo.Save(ctx, m)
}

func (r *hasMany) Connect(ctx context.Context, keys []any) error {
	if len(keys) == 0 {
		return nil
	}
	q, err := r.repo.Query(r.info.Related)
	if err != nil {
		return err
	}
	children, err := q.WhereKey(keys...).Get(ctx)
	if err != nil {
		return err
	}
	for _, c := range children {
		if err := r.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

func (r *hasMany) Disconnect(ctx context.Context, keys []any) error {
	if len(keys) == 0 {
		return nil
	}
	q, err := r.Query()
	if err != nil {
		return err
	}
	children, err := q.WhereKey(keys...).Get(ctx)
	if err != nil {
		return err
	}
	for _, c := range children {
		c.Set(r.info.ForeignKey, nil)
		if r.morph() {
			c.Set(r.info.MorphType, nil)
		}
		if err := r.repo.Save(ctx, c); err != nil {
			return err
		}
	}
	return nil
}

type hasOne struct{ hasMany }

var _ HasOneRelation = (*hasOne)(nil)

func (r *hasOne) Get(ctx context.Context) (Model, error) {
	q, err := r.Query()
	if err != nil {
		return nil, err
	}
	return q.First(ctx)
}

type belongsToMany struct{ relation }

var _ BelongsToManyRelation = (*belongsToMany)(nil)

func (r *belongsToMany) parentKey() any { return KeyValues(r.parent)[0] }

func (r *belongsToMany) Make() (Model, error) { return r.repo.New(r.info.Related) }

func (r *belongsToMany) attached(ctx context.Context) ([]any, error) {
	rows, err := r.repo.PivotRows(ctx, r.info.Pivot, []any{r.parentKey()})
	if err != nil {
		return nil, err
	}
	keys := make([]any, len(rows))
	for i, row := range rows {
		keys[i] = row.Related
	}
	return keys, nil
}

func (r *belongsToMany) Query(ctx context.Context) (Builder, error) {
	keys, err := r.attached(ctx)
	if err != nil {
		return nil, err
	}
	q, err := r.repo.Query(r.info.Related)
	if err != nil {
		return nil, err
	}
	return q.WhereIn(r.info.OwnerKey, keys...), nil
}

func (r *belongsToMany) Attach(ctx context.Context, keys []any, attrs map[string]any) error {
	if len(keys) == 0 {
		return nil
	}
	return r.repo.Attach(ctx, r.info.Pivot, r.parentKey(), keys, attrs)
}

func (r *belongsToMany) Detach(ctx context.Context, keys []any) error {
	if keys != nil && len(keys) == 0 {
		return nil
	}
	return r.repo.Detach(ctx, r.info.Pivot, r.parentKey(), keys)
}

func (r *belongsToMany) Sync(ctx context.Context, keys []any, detaching bool) error {
	current, err := r.attached(ctx)
	if err != nil {
		return err
	}
	have := make(map[string]bool, len(current))
	for _, k := range current {
		have[KeyString(k)] = true
	}
	want := make(map[string]bool, len(keys))
	var attach []any
	for _, k := range keys {
		s := KeyString(k)
		if want[s] {
			continue
		}
		want[s] = true
		if !have[s] {
			attach = append(attach, k)
		}
	}
	if detaching {
		var detach []any
		for _, k := range current {
			if !want[KeyString(k)] {
				detach = append(detach, k)
			}
		}
		if len(detach) > 0 {
			if err := r.Detach(ctx, detach); err != nil {
				return err
			}
		}
	}
	return r.Attach(ctx, attach, nil)
}
