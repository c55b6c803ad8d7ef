package model

import (
	"context"
	"fmt"
)

// Builder is an immutable query over one model type. Every method returning
// a Builder leaves the receiver untouched.
type Builder interface {
	TypeName() string
	Where(column string, v any) Builder
	WhereIn(column string, vs ...any) Builder
	// WhereKey constrains the first key column to the given values.
	WhereKey(vs ...any) Builder
	OrderBy(column string, desc bool) Builder
	Limit(n int) Builder
	Offset(n int) Builder
	Count(ctx context.Context) (int, error)
	Get(ctx context.Context) ([]Model, error)
	// First returns the first matching model, nil when there is none.
	First(ctx context.Context) (Model, error)
}

// PivotRow links a parent key to a related key in a join table.
type PivotRow struct {
	Parent  any
	Related any
	Attrs   map[string]any
}

// Repository is the persistence capability consumed by resolvers.
type Repository interface {
	Registry() *Registry
	// New returns an unsaved model of the named type.
	New(typ string) (Model, error)
	// Query starts a builder over the named type.
	Query(typ string) (Builder, error)
	// Find loads a model by its first key column. A missing row is reported
	// as a *beacon.NotFoundError.
	Find(ctx context.Context, typ string, key any) (Model, error)
	// Save inserts or updates m and marks it as existing.
	Save(ctx context.Context, m Model) error
	// Delete removes m. Deleting a model that does not exist is a no-op.
	Delete(ctx context.Context, m Model) error
	// PivotRows loads the join rows of the given parents.
	PivotRows(ctx context.Context, p *Pivot, parentKeys []any) ([]PivotRow, error)
	// Attach inserts join rows for parentKey and each related key.
	Attach(ctx context.Context, p *Pivot, parentKey any, relatedKeys []any, attrs map[string]any) error
	// Detach deletes join rows for parentKey. A nil relatedKeys deletes
	// every row of the parent.
	Detach(ctx context.Context, p *Pivot, parentKey any, relatedKeys []any) error
	// Transact runs fn inside a transaction. The repository passed to fn
	// (and stored in its context) is bound to the transaction. Nested calls
	// join the running transaction.
	Transact(ctx context.Context, fn func(ctx context.Context, repo Repository) error) error
}

// Op is the kind of a store write.
type Op uint8

// Write operations.
const (
	OpCreate Op = iota + 1
	OpUpdate
	OpDelete
)

// String returns the operation name.
func (op Op) String() string {
	switch op {
	case OpCreate:
		return "create"
	case OpUpdate:
		return "update"
	case OpDelete:
		return "delete"
	default:
		return fmt.Sprintf("Op(%d)", op)
	}
}

// Mutation is a pending store write, evaluated by privacy policies before it
// reaches the database.
type Mutation struct {
	Op    Op
	Model Model
}

// Type returns the model type the mutation writes.
func (m Mutation) Type() string { return m.Model.TypeName() }

type repoKey struct{}

// NewContext returns a context carrying repo.
func NewContext(ctx context.Context, repo Repository) context.Context {
	return context.WithValue(ctx, repoKey{}, repo)
}

// FromContext returns the repository stored in ctx.
func FromContext(ctx context.Context) (Repository, bool) {
	repo, ok := ctx.Value(repoKey{}).(Repository)
	return repo, ok
}

// RepositoryFrom returns the repository stored in ctx or an error.
func RepositoryFrom(ctx context.Context) (Repository, error) {
	repo, ok := FromContext(ctx)
	if !ok {
		return nil, fmt.Errorf("model: no repository in context")
	}
	return repo, nil
}
