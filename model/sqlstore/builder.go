package sqlstore

import (
	"context"
	"maps"
	"slices"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/dialect/sql"
	"github.com/syssam/beacon/model"
)

type order struct {
	column string
	desc   bool
}

// builder is an immutable SELECT over one model type.
type builder struct {
	store  *Store
	info   *model.TypeInfo
	where  []*sql.Predicate
	orders []order
	limit  *int
	offset *int
}

var _ model.Builder = (*builder)(nil)

func (b *builder) clone() *builder {
	c := *b
	c.where = slices.Clone(b.where)
	c.orders = slices.Clone(b.orders)
	return &c
}

func (b *builder) TypeName() string { return b.info.Name }

func (b *builder) Where(column string, v any) model.Builder {
	c := b.clone()
	c.where = append(c.where, sql.EQ(column, v))
	return c
}

func (b *builder) WhereIn(column string, vs ...any) model.Builder {
	c := b.clone()
	c.where = append(c.where, sql.In(column, vs...))
	return c
}

func (b *builder) WhereKey(vs ...any) model.Builder {
	if len(vs) == 1 {
		return b.Where(b.info.Keys[0], vs[0])
	}
	return b.WhereIn(b.info.Keys[0], vs...)
}

func (b *builder) OrderBy(column string, desc bool) model.Builder {
	c := b.clone()
	c.orders = append(c.orders, order{column: column, desc: desc})
	return c
}

func (b *builder) Limit(n int) model.Builder {
	c := b.clone()
	c.limit = &n
	return c
}

func (b *builder) Offset(n int) model.Builder {
	c := b.clone()
	c.offset = &n
	return c
}

func (b *builder) selector(s *sql.Selector) *sql.Selector {
	s.From(b.info.Table).Where(b.where...)
	return s
}

func (b *builder) Count(ctx context.Context) (int, error) {
	query, args := b.selector(b.store.stmt().Count()).Query()
	var rows sql.Rows
	if err := b.store.conn().Query(ctx, query, args, &rows); err != nil {
		return 0, beacon.NewQueryError(b.info.Name, "count", err)
	}
	n, err := sql.ScanInt(rows)
	if err != nil {
		return 0, beacon.NewQueryError(b.info.Name, "count", err)
	}
	return n, nil
}

func (b *builder) Get(ctx context.Context) ([]model.Model, error) {
	sel := b.selector(b.store.stmt().Select())
	orders := b.orders
	if len(orders) == 0 {
		orders = []order{{column: b.info.Keys[0]}}
	}
	for _, o := range orders {
		sel.OrderBy(o.column, o.desc)
	}
	if b.limit != nil {
		sel.Limit(*b.limit)
	}
	if b.offset != nil {
		sel.Offset(*b.offset)
	}
	query, args := sel.Query()
	var rows sql.Rows
	if err := b.store.conn().Query(ctx, query, args, &rows); err != nil {
		return nil, beacon.NewQueryError(b.info.Name, "", err)
	}
	records, err := sql.ScanMaps(rows)
	if err != nil {
		return nil, beacon.NewQueryError(b.info.Name, "", err)
	}
	out := make([]model.Model, len(records))
	for i, r := range records {
		out[i] = model.Hydrate(b.info.Name, b.info.Keys, r)
	}
	return out, nil
}

func (b *builder) First(ctx context.Context) (model.Model, error) {
	ms, err := b.Limit(1).Get(ctx)
	if err != nil || len(ms) == 0 {
		return nil, err
	}
	return ms[0], nil
}

func sortedColumns(m map[string]any) []string {
	return slices.Sorted(maps.Keys(m))
}
