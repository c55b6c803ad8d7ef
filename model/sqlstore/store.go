// Package sqlstore implements model.Repository on top of dialect/sql.
//
//	drv, err := sql.Open(dialect.SQLite, "file:app.db")
//	store := sqlstore.New(drv, registry, sqlstore.WithPolicy(policy))
//	ctx = model.NewContext(ctx, store)
package sqlstore

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/dialect"
	"github.com/syssam/beacon/dialect/sql"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/privacy"
)

// Store is a model.Repository over a SQL driver.
type Store struct {
	drv      dialect.Driver
	tx       dialect.Tx
	registry *model.Registry
	policy   privacy.MutationRule
	logger   *slog.Logger
}

var _ model.Repository = (*Store)(nil)

// Option configures a Store.
type Option func(*Store)

// WithPolicy evaluates rule before every insert, update and delete.
func WithPolicy(rule privacy.MutationRule) Option {
	return func(s *Store) { s.policy = rule }
}

// WithLogger sets the logger used for transaction failures.
func WithLogger(logger *slog.Logger) Option {
	return func(s *Store) { s.logger = logger }
}

// New returns a store writing the types of registry through drv.
func New(drv dialect.Driver, registry *model.Registry, opts ...Option) *Store {
	s := &Store{drv: drv, registry: registry, logger: slog.Default()}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// Registry implements model.Repository.
func (s *Store) Registry() *model.Registry { return s.registry }

// Driver returns the underlying driver.
func (s *Store) Driver() dialect.Driver { return s.drv }

func (s *Store) conn() dialect.ExecQuerier {
	if s.tx != nil {
		return s.tx
	}
	return s.drv
}

func (s *Store) stmt() *sql.DialectBuilder {
	return sql.Dialect(s.drv.Dialect())
}

// New implements model.Repository.
func (s *Store) New(typ string) (model.Model, error) {
	info, err := s.registry.MustType(typ)
	if err != nil {
		return nil, err
	}
	return model.NewEntity(info.Name, info.Keys...), nil
}

// Query implements model.Repository.
func (s *Store) Query(typ string) (model.Builder, error) {
	info, err := s.registry.MustType(typ)
	if err != nil {
		return nil, err
	}
	return &builder{store: s, info: info}, nil
}

// Find implements model.Repository.
func (s *Store) Find(ctx context.Context, typ string, key any) (model.Model, error) {
	q, err := s.Query(typ)
	if err != nil {
		return nil, err
	}
	m, err := q.WhereKey(key).First(ctx)
	if err != nil {
		return nil, err
	}
	if m == nil {
		return nil, beacon.NewNotFoundError(typ, key)
	}
	return m, nil
}

// Transact implements model.Repository.
func (s *Store) Transact(ctx context.Context, fn func(context.Context, model.Repository) error) error {
	if s.tx != nil {
		return fn(model.NewContext(ctx, s), s)
	}
	tx, err := s.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("sqlstore: starting a transaction: %w", err)
	}
	txs := *s
	txs.tx = tx
	if err := fn(model.NewContext(ctx, &txs), &txs); err != nil {
		if rerr := tx.Rollback(); rerr != nil {
			s.logger.ErrorContext(ctx, "transaction rollback failed", slog.Any("error", rerr))
			return fmt.Errorf("%w: %w", err, &beacon.RollbackError{Err: rerr})
		}
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("sqlstore: committing transaction: %w", err)
	}
	return nil
}

func (s *Store) checkPolicy(ctx context.Context, op model.Op, m model.Model) error {
	if s.policy == nil {
		return nil
	}
	if err := s.policy.EvalMutation(ctx, model.Mutation{Op: op, Model: m}); err != nil {
		return beacon.NewPrivacyError(m.TypeName(), op.String(), err.Error())
	}
	return nil
}

type syncer interface {
	Dirty() map[string]any
	SyncOriginal()
}

type deleter interface {
	MarkDeleted()
}

// Save implements model.Repository.
func (s *Store) Save(ctx context.Context, m model.Model) error {
	info, err := s.registry.MustType(m.TypeName())
	if err != nil {
		return err
	}
	if m.Exists() {
		return s.update(ctx, info, m)
	}
	return s.insert(ctx, info, m)
}

func changes(m model.Model) map[string]any {
	if d, ok := m.(syncer); ok {
		return d.Dirty()
	}
	return m.Attributes()
}

func synced(m model.Model) {
	if d, ok := m.(syncer); ok {
		d.SyncOriginal()
	}
}

func (s *Store) insert(ctx context.Context, info *model.TypeInfo, m model.Model) error {
	if err := s.checkPolicy(ctx, model.OpCreate, m); err != nil {
		return err
	}
	key := info.Keys[0]
	generated := len(info.Keys) == 1 && m.Get(key) == nil
	ins := s.stmt().Insert(info.Table)
	for _, col := range sortedColumns(changes(m)) {
		if generated && col == key {
			continue
		}
		ins.Set(col, m.Get(col))
	}
	if generated && s.drv.Dialect() == dialect.Postgres {
		query, args := ins.Returning(key).Query()
		var rows sql.Rows
		if err := s.conn().Query(ctx, query, args, &rows); err != nil {
			return writeError(info.Name, "create", err)
		}
		id, err := sql.ScanInt(rows)
		if err != nil {
			return writeError(info.Name, "create", err)
		}
		m.Set(key, int64(id))
		synced(m)
		return nil
	}
	query, args := ins.Query()
	var res sql.Result
	if err := s.conn().Exec(ctx, query, args, &res); err != nil {
		return writeError(info.Name, "create", err)
	}
	if generated {
		id, err := res.LastInsertId()
		if err != nil {
			return writeError(info.Name, "create", err)
		}
		m.Set(key, id)
	}
	synced(m)
	return nil
}

func (s *Store) update(ctx context.Context, info *model.TypeInfo, m model.Model) error {
	dirty := changes(m)
	for _, k := range info.Keys {
		delete(dirty, k)
	}
	if len(dirty) == 0 {
		return nil
	}
	if err := s.checkPolicy(ctx, model.OpUpdate, m); err != nil {
		return err
	}
	upd := s.stmt().Update(info.Table).Where(keyPredicates(info, m)...)
	for _, col := range sortedColumns(dirty) {
		upd.Set(col, dirty[col])
	}
	query, args := upd.Query()
	if err := s.conn().Exec(ctx, query, args, nil); err != nil {
		return writeError(info.Name, "update", err)
	}
	synced(m)
	return nil
}

// Delete implements model.Repository.
func (s *Store) Delete(ctx context.Context, m model.Model) error {
	if !m.Exists() {
		return nil
	}
	info, err := s.registry.MustType(m.TypeName())
	if err != nil {
		return err
	}
	if err := s.checkPolicy(ctx, model.OpDelete, m); err != nil {
		return err
	}
	query, args := s.stmt().Delete(info.Table).Where(keyPredicates(info, m)...).Query()
	if err := s.conn().Exec(ctx, query, args, nil); err != nil {
		return writeError(info.Name, "delete", err)
	}
	if d, ok := m.(deleter); ok {
		d.MarkDeleted()
	}
	return nil
}

func keyPredicates(info *model.TypeInfo, m model.Model) []*sql.Predicate {
	ps := make([]*sql.Predicate, len(info.Keys))
	for i, k := range info.Keys {
		ps[i] = sql.EQ(k, m.Get(k))
	}
	return ps
}

// PivotRows implements model.Repository.
func (s *Store) PivotRows(ctx context.Context, p *model.Pivot, parentKeys []any) ([]model.PivotRow, error) {
	if len(parentKeys) == 0 {
		return nil, nil
	}
	query, args := s.stmt().Select().From(p.Table).Where(sql.In(p.ForeignKey, parentKeys...)).Query()
	var rows sql.Rows
	if err := s.conn().Query(ctx, query, args, &rows); err != nil {
		return nil, beacon.NewQueryError(p.Table, "pivot", err)
	}
	maps, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, beacon.NewQueryError(p.Table, "pivot", err)
	}
	out := make([]model.PivotRow, len(maps))
	for i, row := range maps {
		out[i] = model.PivotRow{Parent: row[p.ForeignKey], Related: row[p.RelatedKey], Attrs: row}
		delete(row, p.ForeignKey)
		delete(row, p.RelatedKey)
	}
	return out, nil
}

// Attach implements model.Repository.
func (s *Store) Attach(ctx context.Context, p *model.Pivot, parentKey any, relatedKeys []any, attrs map[string]any) error {
	extra := sortedColumns(attrs)
	for _, rk := range relatedKeys {
		ins := s.stmt().Insert(p.Table).Set(p.ForeignKey, parentKey).Set(p.RelatedKey, rk)
		for _, col := range extra {
			ins.Set(col, attrs[col])
		}
		query, args := ins.Query()
		if err := s.conn().Exec(ctx, query, args, nil); err != nil {
			return writeError(p.Table, "attach", err)
		}
	}
	return nil
}

// Detach implements model.Repository.
func (s *Store) Detach(ctx context.Context, p *model.Pivot, parentKey any, relatedKeys []any) error {
	del := s.stmt().Delete(p.Table).Where(sql.EQ(p.ForeignKey, parentKey))
	if relatedKeys != nil {
		del.Where(sql.In(p.RelatedKey, relatedKeys...))
	}
	query, args := del.Query()
	if err := s.conn().Exec(ctx, query, args, nil); err != nil {
		return writeError(p.Table, "detach", err)
	}
	return nil
}
