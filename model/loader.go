package model

import (
	"context"
	"fmt"
	"sync"

	"github.com/syssam/beacon/contrib/dataloader"
)

// Loader caches relation loads for the lifetime of one request. Prefetch
// loads a relation for many parents with one query per relation, so
// resolving `posts { author { name } }` costs two queries, not N+1.
type Loader struct {
	mu     sync.Mutex
	values map[string]any
}

// NewLoader returns an empty loader.
func NewLoader() *Loader {
	return &Loader{values: make(map[string]any)}
}

// WithLoader returns a context carrying l.
func WithLoader(ctx context.Context, l *Loader) context.Context {
	return dataloader.NewContext(ctx, l)
}

// LoaderFrom returns the loader stored in ctx, nil when there is none.
func LoaderFrom(ctx context.Context) *Loader {
	l, _ := dataloader.FromContext[*Loader](ctx)
	return l
}

// LoaderKey is the cache key of a relation of parent.
func LoaderKey(parent Model, relation string) string {
	return Key(parent) + "." + relation
}

// Prime stores a loaded relation value: a Model (or nil) for to-one
// relations, a []Model for to-many relations.
func (l *Loader) Prime(key string, v any) {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.values[key] = v
}

// Clear drops a cached relation value.
func (l *Loader) Clear(key string) {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.values, key)
}

// Reset drops every cached value. Mutations call it before reading back.
func (l *Loader) Reset() {
	l.mu.Lock()
	defer l.mu.Unlock()
	clear(l.values)
}

// Forget drops the cached relation of the given parents.
func (l *Loader) Forget(relation string, parents ...Model) {
	keys := make([]string, len(parents))
	for i, p := range parents {
		keys[i] = LoaderKey(p, relation)
	}
	dataloader.ClearAll[string, any](l, keys)
}

func (l *Loader) cached(key string) (any, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()
	v, ok := l.values[key]
	return v, ok
}

// Load returns the relation value of parent, loading it when not cached.
func (l *Loader) Load(ctx context.Context, repo Repository, parent Model, relation string) (any, error) {
	key := LoaderKey(parent, relation)
	if v, ok := l.cached(key); ok {
		return v, nil
	}
	if err := l.Prefetch(ctx, repo, []Model{parent}, relation); err != nil {
		return nil, err
	}
	v, _ := l.cached(key)
	return v, nil
}

type loaded struct {
	key   string
	value any
}

// Prefetch loads the relation for every parent not cached yet. Parents may
// be of different types; each type is loaded separately.
func (l *Loader) Prefetch(ctx context.Context, repo Repository, parents []Model, relation string) error {
	byType := make(map[string][]Model)
	var order []string
	seen := make(map[string]bool)
	for _, p := range parents {
		key := LoaderKey(p, relation)
		if _, ok := l.cached(key); ok || seen[key] {
			continue
		}
		seen[key] = true
		typ := p.TypeName()
		if _, ok := byType[typ]; !ok {
			order = append(order, typ)
		}
		byType[typ] = append(byType[typ], p)
	}
	for _, typ := range order {
		info, err := repo.Registry().Relation(typ, relation)
		if err != nil {
			return err
		}
		entries, err := loadRelation(ctx, repo, info, byType[typ])
		if err != nil {
			return err
		}
		dataloader.PrimeAll[string, loaded, any](l, entries,
			func(e loaded) string { return e.key },
			func(e loaded) any { return e.value },
		)
	}
	return nil
}

func loadRelation(ctx context.Context, repo Repository, info *RelationInfo, parents []Model) ([]loaded, error) {
	switch info.Kind {
	case KindBelongsTo:
		return loadBelongsTo(ctx, repo, info, parents)
	case KindMorphTo:
		return loadMorphTo(ctx, repo, info, parents)
	case KindHasOne, KindHasMany, KindMorphMany:
		return loadHasMany(ctx, repo, info, parents)
	case KindBelongsToMany:
		return loadBelongsToMany(ctx, repo, info, parents)
	default:
		return nil, fmt.Errorf("model: cannot load relation %s of kind %s", info.Name, info.Kind)
	}
}

// distinct returns the non-nil values, deduplicated by KeyString.
func distinct(values []any) []any {
	present := make([]any, 0, len(values))
	for _, v := range values {
		if v != nil {
			present = append(present, v)
		}
	}
	return dataloader.Distinct(present, KeyString)
}

func loadBelongsTo(ctx context.Context, repo Repository, info *RelationInfo, parents []Model) ([]loaded, error) {
	fks := make([]any, len(parents))
	fkStrings := make([]string, len(parents))
	for i, p := range parents {
		fks[i] = p.Get(info.ForeignKey)
		fkStrings[i] = KeyString(fks[i])
	}
	var related []Model
	if ids := distinct(fks); len(ids) > 0 {
		q, err := repo.Query(info.Related)
		if err != nil {
			return nil, err
		}
		if related, err = q.WhereIn(info.OwnerKey, ids...).Get(ctx); err != nil {
			return nil, err
		}
	}
	matched, found := dataloader.Match(fkStrings, related, func(m Model) string {
		return KeyString(m.Get(info.OwnerKey))
	})
	out := make([]loaded, len(parents))
	for i, p := range parents {
		var v any
		if fks[i] != nil && found[i] {
			v = matched[i]
		}
		out[i] = loaded{key: LoaderKey(p, info.Name), value: v}
	}
	return out, nil
}

func loadMorphTo(ctx context.Context, repo Repository, info *RelationInfo, parents []Model) ([]loaded, error) {
	ids := make(map[string][]any)
	for _, p := range parents {
		typ, id := p.Get(info.MorphType), p.Get(info.ForeignKey)
		if typ == nil || id == nil {
			continue
		}
		name, ok := repo.Registry().ResolveType(KeyString(typ))
		if !ok {
			return nil, fmt.Errorf("model: morphTo %s: unknown type %q", info.Name, typ)
		}
		ids[name] = append(ids[name], id)
	}
	found := make(map[string]Model)
	for name, keys := range ids {
		q, err := repo.Query(name)
		if err != nil {
			return nil, err
		}
		models, err := q.WhereKey(distinct(keys)...).Get(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range models {
			found[Key(m)] = m
		}
	}
	out := make([]loaded, len(parents))
	for i, p := range parents {
		out[i] = loaded{key: LoaderKey(p, info.Name)}
		typ, id := p.Get(info.MorphType), p.Get(info.ForeignKey)
		if typ == nil || id == nil {
			continue
		}
		name, _ := repo.Registry().ResolveType(KeyString(typ))
		if m, ok := found[name+KeySeparator+KeyString(id)]; ok {
			out[i].value = m
		}
	}
	return out, nil
}

func loadHasMany(ctx context.Context, repo Repository, info *RelationInfo, parents []Model) ([]loaded, error) {
	keys := make([]any, len(parents))
	keyStrings := make([]string, len(parents))
	for i, p := range parents {
		keys[i] = p.Get(info.OwnerKey)
		keyStrings[i] = KeyString(keys[i])
	}
	var children []Model
	if ids := distinct(keys); len(ids) > 0 {
		q, err := repo.Query(info.Related)
		if err != nil {
			return nil, err
		}
		q = q.WhereIn(info.ForeignKey, ids...)
		if info.Kind == KindMorphMany {
			q = q.Where(info.MorphType, parents[0].TypeName())
		}
		if children, err = q.Get(ctx); err != nil {
			return nil, err
		}
	}
	groups := dataloader.Gather(keyStrings, dataloader.Buckets(children, func(m Model) string {
		return KeyString(m.Get(info.ForeignKey))
	}))
	out := make([]loaded, len(parents))
	for i, p := range parents {
		out[i] = loaded{key: LoaderKey(p, info.Name)}
		switch {
		case keys[i] == nil && info.Kind == KindHasOne:
		case keys[i] == nil:
			out[i].value = []Model{}
		case info.Kind == KindHasOne:
			if len(groups[i]) > 0 {
				out[i].value = groups[i][0]
			}
		default:
			out[i].value = append([]Model{}, groups[i]...)
		}
	}
	return out, nil
}

func loadBelongsToMany(ctx context.Context, repo Repository, info *RelationInfo, parents []Model) ([]loaded, error) {
	keys := make([]any, len(parents))
	for i, p := range parents {
		keys[i] = KeyValues(p)[0]
	}
	rows, err := repo.PivotRows(ctx, info.Pivot, distinct(keys))
	if err != nil {
		return nil, err
	}
	relatedKeys := make([]any, len(rows))
	for i, r := range rows {
		relatedKeys[i] = r.Related
	}
	found := make(map[string]Model)
	if ids := distinct(relatedKeys); len(ids) > 0 {
		q, err := repo.Query(info.Related)
		if err != nil {
			return nil, err
		}
		models, err := q.WhereIn(info.OwnerKey, ids...).Get(ctx)
		if err != nil {
			return nil, err
		}
		for _, m := range models {
			found[KeyString(m.Get(info.OwnerKey))] = m
		}
	}
	byParent := dataloader.Buckets(rows, func(r PivotRow) string { return KeyString(r.Parent) })
	out := make([]loaded, len(parents))
	for i, p := range parents {
		list := []Model{}
		for _, r := range byParent[KeyString(keys[i])] {
			if m, ok := found[KeyString(r.Related)]; ok {
				list = append(list, m)
			}
		}
		out[i] = loaded{key: LoaderKey(p, info.Name), value: list}
	}
	return out, nil
}
