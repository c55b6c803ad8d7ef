package arguments

import (
	"context"
	"errors"
	"fmt"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/model"
)

// ErrMissingKey is returned when an update payload carries no key.
var ErrMissingKey = errors.New("arguments: missing primary key for update")

type saveFunc func(context.Context, model.Model) error

// SaveModel fills m from set and saves it. BelongsTo and MorphTo arguments
// are applied before the save so their foreign keys are written with it;
// the remaining relations are applied afterwards, once m has a key.
func SaveModel(ctx context.Context, repo model.Repository, m model.Model, set *ArgumentSet) error {
	return saveModel(ctx, repo, m, set, repo.Save)
}

func saveModel(ctx context.Context, repo model.Repository, m model.Model, set *ArgumentSet, save saveFunc) error {
	info, err := repo.Registry().MustType(m.TypeName())
	if err != nil {
		return err
	}
	p, err := set.Spread().Partition(info)
	if err != nil {
		return err
	}
	for _, n := range p.Before {
		if err := ApplyNested(ctx, repo, m, n); err != nil {
			return err
		}
	}
	for col, v := range p.Attributes.Attributes() {
		m.Set(col, v)
	}
	if err := save(ctx, m); err != nil {
		return err
	}
	for _, n := range p.After {
		if err := ApplyNested(ctx, repo, m, n); err != nil {
			return err
		}
	}
	return nil
}

// ApplyNested dispatches a nested relation argument of parent to the
// resolver matching the relation kind. A null payload is a no-op.
func ApplyNested(ctx context.Context, repo model.Repository, parent model.Model, n Nested) error {
	set := n.Argument.Value.Set()
	if set == nil {
		return nil
	}
	rel, err := model.Relate(repo, parent, n.Relation.Name)
	if err != nil {
		return err
	}
	r, err := ResolverFor(rel.Kind())
	if err != nil {
		return err
	}
	return r.Apply(ctx, repo, rel, set)
}

// keyArgument returns the key value of set: the "id" argument or the
// argument named after the first key column.
func keyArgument(info *model.TypeInfo, set *ArgumentSet) (string, any) {
	for _, name := range []string{"id", info.Keys[0]} {
		if set.Has(name) {
			return name, set.Value(name).Scalar()
		}
	}
	return "", nil
}

func without(set *ArgumentSet, name string) *ArgumentSet {
	out := New()
	for _, a := range set.Arguments() {
		if a.Name != name {
			out.Add(a)
		}
	}
	return out
}

// UpdateModel loads the model of type typ identified by the key argument of
// set and saves the remaining arguments into it.
func UpdateModel(ctx context.Context, repo model.Repository, typ string, set *ArgumentSet) (model.Model, error) {
	return updateModel(ctx, repo, typ, set, repo.Save)
}

func updateModel(ctx context.Context, repo model.Repository, typ string, set *ArgumentSet, save saveFunc) (model.Model, error) {
	info, err := repo.Registry().MustType(typ)
	if err != nil {
		return nil, err
	}
	name, key := keyArgument(info, set)
	if key == nil {
		return nil, fmt.Errorf("%w of %s", ErrMissingKey, typ)
	}
	m, err := repo.Find(ctx, typ, key)
	if err != nil {
		return nil, err
	}
	if err := saveModel(ctx, repo, m, without(set, name), save); err != nil {
		return nil, err
	}
	return m, nil
}

// UpsertModel updates the model identified by the key argument of set when
// it exists and creates it otherwise.
func UpsertModel(ctx context.Context, repo model.Repository, typ string, set *ArgumentSet) (model.Model, error) {
	return upsertModel(ctx, repo, typ, set, repo.Save)
}

func upsertModel(ctx context.Context, repo model.Repository, typ string, set *ArgumentSet, save saveFunc) (model.Model, error) {
	info, err := repo.Registry().MustType(typ)
	if err != nil {
		return nil, err
	}
	if _, key := keyArgument(info, set); key != nil {
		m, err := updateModel(ctx, repo, typ, set, save)
		if !beacon.IsNotFound(err) {
			return m, err
		}
	}
	m, err := repo.New(typ)
	if err != nil {
		return nil, err
	}
	if set.Has("id") && info.Keys[0] != "id" {
		set = renameArgument(set, "id", info.Keys[0])
	}
	if err := saveModel(ctx, repo, m, set, save); err != nil {
		return nil, err
	}
	return m, nil
}

func renameArgument(set *ArgumentSet, from, to string) *ArgumentSet {
	out := New()
	for _, a := range set.Arguments() {
		if a.Name == from {
			c := *a
			c.Name = to
			a = &c
		}
		out.Add(a)
	}
	return out
}

// DeleteModels deletes the models of q with the given keys. Keys without a
// matching model are ignored.
func DeleteModels(ctx context.Context, repo model.Repository, q model.Builder, keys []any) error {
	if len(keys) == 0 {
		return nil
	}
	ms, err := q.WhereKey(keys...).Get(ctx)
	if err != nil {
		return err
	}
	for _, m := range ms {
		if err := repo.Delete(ctx, m); err != nil {
			return err
		}
	}
	return nil
}
