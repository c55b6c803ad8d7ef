package arguments

import (
	"context"
	"fmt"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/model"
)

// NestedResolver applies the operations of a nested mutation input to one
// relation. The implementations form a closed set, one per relation kind;
// ResolverFor selects it.
type NestedResolver interface {
	Kind() model.Kind
	Apply(ctx context.Context, repo model.Repository, rel model.Relation, set *ArgumentSet) error
	nested()
}

type (
	// NestedBelongsTo resolves inputs of @belongsTo arguments.
	NestedBelongsTo struct{}
	// NestedHasOne resolves inputs of @hasOne arguments.
	NestedHasOne struct{}
	// NestedHasMany resolves inputs of @hasMany arguments.
	NestedHasMany struct{}
	// NestedMorphMany resolves inputs of @morphMany arguments.
	NestedMorphMany struct{}
	// NestedMorphTo resolves inputs of @morphTo arguments. Only connect,
	// disconnect and delete are supported.
	NestedMorphTo struct{}
	// NestedBelongsToMany resolves inputs of @belongsToMany arguments.
	NestedBelongsToMany struct{}
)

// ResolverFor returns the resolver of a relation kind.
func ResolverFor(kind model.Kind) (NestedResolver, error) {
	switch kind {
	case model.KindBelongsTo:
		return NestedBelongsTo{}, nil
	case model.KindHasOne:
		return NestedHasOne{}, nil
	case model.KindHasMany:
		return NestedHasMany{}, nil
	case model.KindMorphMany:
		return NestedMorphMany{}, nil
	case model.KindMorphTo:
		return NestedMorphTo{}, nil
	case model.KindBelongsToMany:
		return NestedBelongsToMany{}, nil
	default:
		return nil, fmt.Errorf("arguments: no nested resolver for relation kind %s", kind)
	}
}

func (NestedBelongsTo) Kind() model.Kind     { return model.KindBelongsTo }
func (NestedHasOne) Kind() model.Kind        { return model.KindHasOne }
func (NestedHasMany) Kind() model.Kind       { return model.KindHasMany }
func (NestedMorphMany) Kind() model.Kind     { return model.KindMorphMany }
func (NestedMorphTo) Kind() model.Kind       { return model.KindMorphTo }
func (NestedBelongsToMany) Kind() model.Kind { return model.KindBelongsToMany }

func (NestedBelongsTo) nested()     {}
func (NestedHasOne) nested()        {}
func (NestedHasMany) nested()       {}
func (NestedMorphMany) nested()     {}
func (NestedMorphTo) nested()       {}
func (NestedBelongsToMany) nested() {}

// each calls fn for every operation present in set, in application order.
func each(kind model.Kind, rel model.Relation, set *ArgumentSet, fn func(Op, Value) error) error {
	for _, name := range set.Names() {
		if _, ok := ParseOp(name); !ok {
			return fmt.Errorf("arguments: unknown nested operation %q on relation %s", name, rel.Name())
		}
	}
	for _, op := range Ops() {
		if !set.Has(op.String()) {
			continue
		}
		if kind == model.KindMorphTo && (op == OpCreate || op == OpUpdate || op == OpUpsert) {
			return beacon.ErrMorphToNotImplemented
		}
		if !Allowed(kind, op) {
			return fmt.Errorf("arguments: %s relation %s does not support %s", kind, rel.Name(), op)
		}
		if err := fn(op, set.Value(op.String())); err != nil {
			return err
		}
	}
	return nil
}

func relationAs[R model.Relation](rel model.Relation) (R, error) {
	r, ok := rel.(R)
	if !ok {
		return r, fmt.Errorf("arguments: relation %s of kind %s has unexpected type %T", rel.Name(), rel.Kind(), rel)
	}
	return r, nil
}

// Apply implements NestedResolver.
func (n NestedBelongsTo) Apply(ctx context.Context, repo model.Repository, rel model.Relation, set *ArgumentSet) error {
	r, err := relationAs[model.BelongsToRelation](rel)
	if err != nil {
		return err
	}
	related := r.Info().Related
	return each(n.Kind(), rel, set, func(op Op, v Value) error {
		switch op {
		case OpCreate:
			m, err := r.Make()
			if err != nil {
				return err
			}
			if err := SaveModel(ctx, repo, m, v.Set()); err != nil {
				return err
			}
			r.Associate(m)
		case OpUpdate:
			m, err := UpdateModel(ctx, repo, related, v.Set())
			if err != nil {
				return err
			}
			r.Associate(m)
		case OpUpsert:
			m, err := UpsertModel(ctx, repo, related, v.Set())
			if err != nil {
				return err
			}
			r.Associate(m)
		case OpConnect:
			r.AssociateKey(v.Scalar())
		case OpDisconnect:
			if v.Bool() {
				r.Dissociate()
			}
		case OpDelete:
			if v.Bool() {
				return dissociateAndDelete(ctx, repo, r)
			}
		}
		return nil
	})
}

type toOne interface {
	Get(ctx context.Context) (model.Model, error)
	Dissociate()
}

// dissociateAndDelete clears the association and deletes its target. A
// relation without a target is left as is.
func dissociateAndDelete(ctx context.Context, repo model.Repository, r toOne) error {
	m, err := r.Get(ctx)
	if err != nil {
		return err
	}
	r.Dissociate()
	if m == nil {
		return nil
	}
	return repo.Delete(ctx, m)
}

// Apply implements NestedResolver.
func (n NestedMorphTo) Apply(ctx context.Context, repo model.Repository, rel model.Relation, set *ArgumentSet) error {
	r, err := relationAs[model.MorphToRelation](rel)
	if err != nil {
		return err
	}
	return each(n.Kind(), rel, set, func(op Op, v Value) error {
		switch op {
		case OpConnect:
			ref := v.Set()
			if ref == nil || !ref.Has("type") || !ref.Has("id") {
				return fmt.Errorf("arguments: connecting morphTo relation %s requires type and id", rel.Name())
			}
			m, err := r.CreateModelByType(model.KeyString(ref.Value("type").Scalar()))
			if err != nil {
				return err
			}
			m.Set(m.KeyNames()[0], ref.Value("id").Scalar())
			r.Associate(m)
		case OpDisconnect:
			if v.Bool() {
				r.Dissociate()
			}
		case OpDelete:
			if v.Bool() {
				return dissociateAndDelete(ctx, repo, r)
			}
		}
		return nil
	})
}

// Apply implements NestedResolver.
func (n NestedHasOne) Apply(ctx context.Context, repo model.Repository, rel model.Relation, set *ArgumentSet) error {
	r, err := relationAs[model.HasOneRelation](rel)
	if err != nil {
		return err
	}
	related := r.Info().Related
	return each(n.Kind(), rel, set, func(op Op, v Value) error {
		switch op {
		case OpCreate:
			m, err := r.Make()
			if err != nil {
				return err
			}
			return saveModel(ctx, repo, m, v.Set(), r.Save)
		case OpUpdate:
			_, err := updateModel(ctx, repo, related, v.Set(), r.Save)
			return err
		case OpUpsert:
			_, err := upsertModel(ctx, repo, related, v.Set(), r.Save)
			return err
		case OpDelete:
			q, err := r.Query()
			if err != nil {
				return err
			}
			return DeleteModels(ctx, repo, q, v.Keys())
		}
		return nil
	})
}

// Apply implements NestedResolver.
func (n NestedHasMany) Apply(ctx context.Context, repo model.Repository, rel model.Relation, set *ArgumentSet) error {
	return applyToMany(ctx, repo, n.Kind(), rel, set)
}

// Apply implements NestedResolver.
func (n NestedMorphMany) Apply(ctx context.Context, repo model.Repository, rel model.Relation, set *ArgumentSet) error {
	return applyToMany(ctx, repo, n.Kind(), rel, set)
}

func applyToMany(ctx context.Context, repo model.Repository, kind model.Kind, rel model.Relation, set *ArgumentSet) error {
	r, err := relationAs[model.HasManyRelation](rel)
	if err != nil {
		return err
	}
	related := r.Info().Related
	return each(kind, rel, set, func(op Op, v Value) error {
		switch op {
		case OpCreate:
			for _, s := range v.SetList() {
				m, err := r.Make()
				if err != nil {
					return err
				}
				if err := saveModel(ctx, repo, m, s, r.Save); err != nil {
					return err
				}
			}
		case OpUpdate:
			for _, s := range v.SetList() {
				if _, err := updateModel(ctx, repo, related, s, r.Save); err != nil {
					return err
				}
			}
		case OpUpsert:
			for _, s := range v.SetList() {
				if _, err := upsertModel(ctx, repo, related, s, r.Save); err != nil {
					return err
				}
			}
		case OpConnect:
			return r.Connect(ctx, v.Keys())
		case OpDisconnect:
			return r.Disconnect(ctx, v.Keys())
		case OpDelete:
			q, err := r.Query()
			if err != nil {
				return err
			}
			return DeleteModels(ctx, repo, q, v.Keys())
		}
		return nil
	})
}

// Apply implements NestedResolver.
func (n NestedBelongsToMany) Apply(ctx context.Context, repo model.Repository, rel model.Relation, set *ArgumentSet) error {
	r, err := relationAs[model.BelongsToManyRelation](rel)
	if err != nil {
		return err
	}
	related := r.Info().Related
	keyOf := func(m model.Model) any { return m.Get(r.Info().OwnerKey) }
	return each(n.Kind(), rel, set, func(op Op, v Value) error {
		switch op {
		case OpCreate:
			for _, s := range v.SetList() {
				m, err := r.Make()
				if err != nil {
					return err
				}
				if err := SaveModel(ctx, repo, m, s); err != nil {
					return err
				}
				if err := r.Attach(ctx, []any{keyOf(m)}, nil); err != nil {
					return err
				}
			}
		case OpUpdate, OpUpsert:
			for _, s := range v.SetList() {
				save := UpdateModel
				if op == OpUpsert {
					save = UpsertModel
				}
				m, err := save(ctx, repo, related, s)
				if err != nil {
					return err
				}
				if err := r.Sync(ctx, []any{keyOf(m)}, false); err != nil {
					return err
				}
			}
		case OpConnect:
			return connectPivot(ctx, r, v)
		case OpSync, OpSyncWithoutDetaching:
			keys, _ := pivotEntries(v)
			return r.Sync(ctx, keys, op == OpSync)
		case OpDisconnect:
			return r.Detach(ctx, nonNil(v.Keys()))
		case OpDelete:
			keys := nonNil(v.Keys())
			if err := r.Detach(ctx, keys); err != nil {
				return err
			}
			q, err := repo.Query(related)
			if err != nil {
				return err
			}
			return DeleteModels(ctx, repo, q, keys)
		}
		return nil
	})
}

func nonNil(keys []any) []any {
	if keys == nil {
		return []any{}
	}
	return keys
}

// pivotEntries reads a connect/sync payload: a list of keys, or a list of
// sets holding an id and extra pivot attributes.
func pivotEntries(v Value) ([]any, []map[string]any) {
	if v.Kind() != KindSet && v.Kind() != KindSetList {
		return v.Keys(), nil
	}
	sets := v.SetList()
	keys := make([]any, 0, len(sets))
	attrs := make([]map[string]any, 0, len(sets))
	for _, s := range sets {
		if !s.Has("id") {
			continue
		}
		keys = append(keys, s.Value("id").Scalar())
		attrs = append(attrs, without(s, "id").Attributes())
	}
	return keys, attrs
}

func connectPivot(ctx context.Context, r model.BelongsToManyRelation, v Value) error {
	keys, attrs := pivotEntries(v)
	if attrs == nil {
		return r.Attach(ctx, keys, nil)
	}
	for i, k := range keys {
		if err := r.Attach(ctx, []any{k}, attrs[i]); err != nil {
			return err
		}
	}
	return nil
}
