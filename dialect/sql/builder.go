package sql

import (
	"strconv"
	"strings"

	"github.com/syssam/beacon/dialect"
)

// Builder is the low-level statement writer. It quotes identifiers and
// numbers placeholders for its dialect.
type Builder struct {
	sb      strings.Builder
	dialect string
	args    []any
}

// Ident writes a quoted identifier. Dotted names are quoted per segment.
func (b *Builder) Ident(name string) *Builder {
	if name == "*" {
		b.sb.WriteString(name)
		return b
	}
	q := `"`
	if b.dialect == dialect.MySQL {
		q = "`"
	}
	for i, part := range strings.Split(name, ".") {
		if i > 0 {
			b.sb.WriteByte('.')
		}
		b.sb.WriteString(q)
		b.sb.WriteString(strings.ReplaceAll(part, q, q+q))
		b.sb.WriteString(q)
	}
	return b
}

// IdentList writes a comma separated list of quoted identifiers.
func (b *Builder) IdentList(names ...string) *Builder {
	for i, n := range names {
		if i > 0 {
			b.sb.WriteString(", ")
		}
		b.Ident(n)
	}
	return b
}

// WriteString writes raw SQL.
func (b *Builder) WriteString(s string) *Builder {
	b.sb.WriteString(s)
	return b
}

// Arg writes a placeholder and records its argument.
func (b *Builder) Arg(v any) *Builder {
	b.args = append(b.args, v)
	if b.dialect == dialect.Postgres {
		b.sb.WriteByte('$')
		b.sb.WriteString(strconv.Itoa(len(b.args)))
		return b
	}
	b.sb.WriteByte('?')
	return b
}

// Query returns the statement and its arguments.
func (b *Builder) Query() (string, []any) {
	return b.sb.String(), b.args
}

// Predicate is a boolean SQL expression.
type Predicate struct {
	fn func(*Builder)
}

// EQ returns a "column = value" predicate. A nil value becomes IS NULL.
func EQ(column string, v any) *Predicate {
	if v == nil {
		return IsNull(column)
	}
	return &Predicate{fn: func(b *Builder) {
		b.Ident(column).WriteString(" = ").Arg(v)
	}}
}

// In returns a "column IN (...)" predicate. An empty list matches nothing.
func In(column string, vs ...any) *Predicate {
	return &Predicate{fn: func(b *Builder) {
		if len(vs) == 0 {
			b.WriteString("1 = 0")
			return
		}
		b.Ident(column).WriteString(" IN (")
		for i, v := range vs {
			if i > 0 {
				b.WriteString(", ")
			}
			b.Arg(v)
		}
		b.WriteString(")")
	}}
}

// IsNull returns a "column IS NULL" predicate.
func IsNull(column string) *Predicate {
	return &Predicate{fn: func(b *Builder) {
		b.Ident(column).WriteString(" IS NULL")
	}}
}

// And joins predicates with AND.
func And(ps ...*Predicate) *Predicate {
	return &Predicate{fn: func(b *Builder) {
		for i, p := range ps {
			if i > 0 {
				b.WriteString(" AND ")
			}
			if len(ps) > 1 {
				b.WriteString("(")
			}
			p.fn(b)
			if len(ps) > 1 {
				b.WriteString(")")
			}
		}
	}}
}

// DialectBuilder creates statements for one dialect.
type DialectBuilder struct {
	dialect string
}

// Dialect returns a DialectBuilder for the given dialect name.
func Dialect(name string) *DialectBuilder {
	return &DialectBuilder{dialect: name}
}

func (d *DialectBuilder) builder() *Builder {
	return &Builder{dialect: d.dialect}
}

// Selector builds SELECT statements.
type Selector struct {
	d       *DialectBuilder
	columns []string
	count   bool
	table   string
	where   []*Predicate
	order   []orderTerm
	limit   *int
	offset  *int
}

type orderTerm struct {
	column string
	desc   bool
}

// Select starts a SELECT of the given columns ("*" when empty).
func (d *DialectBuilder) Select(columns ...string) *Selector {
	if len(columns) == 0 {
		columns = []string{"*"}
	}
	return &Selector{d: d, columns: columns}
}

// Count starts a SELECT COUNT(*) statement.
func (d *DialectBuilder) Count() *Selector {
	return &Selector{d: d, count: true}
}

// From sets the table.
func (s *Selector) From(table string) *Selector {
	s.table = table
	return s
}

// Where appends predicates joined with AND.
func (s *Selector) Where(ps ...*Predicate) *Selector {
	s.where = append(s.where, ps...)
	return s
}

// OrderBy appends an order term.
func (s *Selector) OrderBy(column string, desc bool) *Selector {
	s.order = append(s.order, orderTerm{column: column, desc: desc})
	return s
}

// Limit sets the row limit.
func (s *Selector) Limit(n int) *Selector {
	s.limit = &n
	return s
}

// Offset sets the row offset.
func (s *Selector) Offset(n int) *Selector {
	s.offset = &n
	return s
}

// Query returns the statement and its arguments.
func (s *Selector) Query() (string, []any) {
	b := s.d.builder()
	b.WriteString("SELECT ")
	if s.count {
		b.WriteString("COUNT(*)")
	} else {
		b.IdentList(s.columns...)
	}
	b.WriteString(" FROM ").Ident(s.table)
	writeWhere(b, s.where)
	for i, o := range s.order {
		if i == 0 {
			b.WriteString(" ORDER BY ")
		} else {
			b.WriteString(", ")
		}
		b.Ident(o.column)
		if o.desc {
			b.WriteString(" DESC")
		}
	}
	switch {
	case s.limit != nil:
		b.WriteString(" LIMIT ").WriteString(strconv.Itoa(*s.limit))
	case s.offset != nil && s.d.dialect == dialect.MySQL:
		// MySQL and SQLite reject OFFSET without LIMIT.
		b.WriteString(" LIMIT 18446744073709551615")
	case s.offset != nil && s.d.dialect == dialect.SQLite:
		b.WriteString(" LIMIT -1")
	}
	if s.offset != nil {
		b.WriteString(" OFFSET ").WriteString(strconv.Itoa(*s.offset))
	}
	return b.Query()
}

func writeWhere(b *Builder, ps []*Predicate) {
	if len(ps) == 0 {
		return
	}
	b.WriteString(" WHERE ")
	if len(ps) == 1 {
		ps[0].fn(b)
		return
	}
	And(ps...).fn(b)
}

// InsertBuilder builds INSERT statements.
type InsertBuilder struct {
	d         *DialectBuilder
	table     string
	columns   []string
	values    []any
	returning string
}

// Insert starts an INSERT into table.
func (d *DialectBuilder) Insert(table string) *InsertBuilder {
	return &InsertBuilder{d: d, table: table}
}

// Set adds a column value.
func (i *InsertBuilder) Set(column string, v any) *InsertBuilder {
	i.columns = append(i.columns, column)
	i.values = append(i.values, v)
	return i
}

// Returning sets the RETURNING column. It is only rendered for Postgres,
// the other dialects report generated keys through LastInsertId.
func (i *InsertBuilder) Returning(column string) *InsertBuilder {
	i.returning = column
	return i
}

// Query returns the statement and its arguments.
func (i *InsertBuilder) Query() (string, []any) {
	b := i.d.builder()
	b.WriteString("INSERT INTO ").Ident(i.table)
	if len(i.columns) == 0 {
		b.WriteString(" DEFAULT VALUES")
		if i.d.dialect == dialect.MySQL {
			b = i.d.builder()
			b.WriteString("INSERT INTO ").Ident(i.table).WriteString(" () VALUES ()")
		}
	} else {
		b.WriteString(" (").IdentList(i.columns...).WriteString(") VALUES (")
		for n, v := range i.values {
			if n > 0 {
				b.WriteString(", ")
			}
			b.Arg(v)
		}
		b.WriteString(")")
	}
	if i.returning != "" && i.d.dialect == dialect.Postgres {
		b.WriteString(" RETURNING ").Ident(i.returning)
	}
	return b.Query()
}

// UpdateBuilder builds UPDATE statements.
type UpdateBuilder struct {
	d       *DialectBuilder
	table   string
	columns []string
	values  []any
	where   []*Predicate
}

// Update starts an UPDATE of table.
func (d *DialectBuilder) Update(table string) *UpdateBuilder {
	return &UpdateBuilder{d: d, table: table}
}

// Set adds a column assignment.
func (u *UpdateBuilder) Set(column string, v any) *UpdateBuilder {
	u.columns = append(u.columns, column)
	u.values = append(u.values, v)
	return u
}

// Where appends predicates joined with AND.
func (u *UpdateBuilder) Where(ps ...*Predicate) *UpdateBuilder {
	u.where = append(u.where, ps...)
	return u
}

// Empty reports whether no assignments were added.
func (u *UpdateBuilder) Empty() bool {
	return len(u.columns) == 0
}

// Query returns the statement and its arguments.
func (u *UpdateBuilder) Query() (string, []any) {
	b := u.d.builder()
	b.WriteString("UPDATE ").Ident(u.table).WriteString(" SET ")
	for i, c := range u.columns {
		if i > 0 {
			b.WriteString(", ")
		}
		b.Ident(c).WriteString(" = ").Arg(u.values[i])
	}
	writeWhere(b, u.where)
	return b.Query()
}

// DeleteBuilder builds DELETE statements.
type DeleteBuilder struct {
	d     *DialectBuilder
	table string
	where []*Predicate
}

// Delete starts a DELETE from table.
func (d *DialectBuilder) Delete(table string) *DeleteBuilder {
	return &DeleteBuilder{d: d, table: table}
}

// Where appends predicates joined with AND.
func (d *DeleteBuilder) Where(ps ...*Predicate) *DeleteBuilder {
	d.where = append(d.where, ps...)
	return d
}

// Query returns the statement and its arguments.
func (d *DeleteBuilder) Query() (string, []any) {
	b := d.d.builder()
	b.WriteString("DELETE FROM ").Ident(d.table)
	writeWhere(b, d.where)
	return b.Query()
}
