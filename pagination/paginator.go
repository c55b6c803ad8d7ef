package pagination

import (
	"context"

	"github.com/syssam/beacon/model"
)

// Result is the value a paginated field resolves to. Its fields are read by
// the default field resolver through ResolveField.
type Result interface {
	ResolveField(name string) (any, bool)
	// Items returns the models of the current page.
	Items() []model.Model
}

// PaginatorInfo describes a page of a length-aware paginator.
type PaginatorInfo struct {
	Count        int
	CurrentPage  int
	FirstItem    *int
	LastItem     *int
	HasMorePages bool
	LastPage     int
	PerPage      int
	Total        int
}

// ResolveField implements Result for PaginatorInfo and SimplePaginatorInfo
// selections.
func (i *PaginatorInfo) ResolveField(name string) (any, bool) {
	switch name {
	case "count":
		return i.Count, true
	case "currentPage":
		return i.CurrentPage, true
	case "firstItem":
		return optional(i.FirstItem), true
	case "lastItem":
		return optional(i.LastItem), true
	case "hasMorePages":
		return i.HasMorePages, true
	case "lastPage":
		return i.LastPage, true
	case "perPage":
		return i.PerPage, true
	case "total":
		return i.Total, true
	}
	return nil, false
}

// PageInfo describes a page of a Relay connection.
type PageInfo struct {
	HasNextPage     bool
	HasPreviousPage bool
	StartCursor     *string
	EndCursor       *string
	Total           int
	Count           int
	CurrentPage     int
	LastPage        int
}

// ResolveField exposes PageInfo fields.
func (p *PageInfo) ResolveField(name string) (any, bool) {
	switch name {
	case "hasNextPage":
		return p.HasNextPage, true
	case "hasPreviousPage":
		return p.HasPreviousPage, true
	case "startCursor":
		return optional(p.StartCursor), true
	case "endCursor":
		return optional(p.EndCursor), true
	case "total":
		return p.Total, true
	case "count":
		return p.Count, true
	case "currentPage":
		return p.CurrentPage, true
	case "lastPage":
		return p.LastPage, true
	}
	return nil, false
}

func optional[T any](p *T) any {
	if p == nil {
		return nil
	}
	return *p
}

// Paginator is the result of PAGINATOR and SIMPLE fields.
type Paginator struct {
	Info *PaginatorInfo
	Data []model.Model
}

// ResolveField implements Result.
func (p *Paginator) ResolveField(name string) (any, bool) {
	switch name {
	case "paginatorInfo":
		return p.Info, true
	case "data":
		return p.Data, true
	}
	return nil, false
}

// Items implements Result.
func (p *Paginator) Items() []model.Model { return p.Data }

// Edge pairs a node with its cursor.
type Edge struct {
	Node   model.Model
	Cursor string
}

// ResolveField exposes the edge fields.
func (e *Edge) ResolveField(name string) (any, bool) {
	switch name {
	case "node":
		return e.Node, true
	case "cursor":
		return e.Cursor, true
	}
	return nil, false
}

// Connection is the result of CONNECTION fields.
type Connection struct {
	PageInfo *PageInfo
	Edges    []*Edge
}

// ResolveField implements Result.
func (c *Connection) ResolveField(name string) (any, bool) {
	switch name {
	case "pageInfo":
		return c.PageInfo, true
	case "edges":
		return c.Edges, true
	}
	return nil, false
}

// Items implements Result.
func (c *Connection) Items() []model.Model {
	items := make([]model.Model, len(c.Edges))
	for i, e := range c.Edges {
		items[i] = e.Node
	}
	return items
}

// Paginate loads the page described by args from q. The builder is expected
// to carry its ordering already.
func Paginate(ctx context.Context, q model.Builder, args Args) (Result, error) {
	if args.Type.IsSimple() {
		return simple(ctx, q, args)
	}
	total, err := q.Count(ctx)
	if err != nil {
		return nil, err
	}
	var items []model.Model
	if args.First > 0 {
		if items, err = q.Offset(args.Offset()).Limit(args.First).Get(ctx); err != nil {
			return nil, err
		}
	}
	info := lengthAware(args, total, len(items))
	if !args.Type.IsConnection() {
		return &Paginator{Info: info, Data: nonNil(items)}, nil
	}

	conn := &Connection{
		PageInfo: &PageInfo{
			HasNextPage:     info.HasMorePages,
			HasPreviousPage: info.CurrentPage > 1,
			Total:           info.Total,
			Count:           info.Count,
			CurrentPage:     info.CurrentPage,
			LastPage:        info.LastPage,
		},
		Edges: make([]*Edge, len(items)),
	}
	for i, m := range items {
		conn.Edges[i] = &Edge{Node: m, Cursor: EncodeCursor(args.Offset() + i + 1)}
	}
	if n := len(conn.Edges); n > 0 {
		conn.PageInfo.StartCursor = &conn.Edges[0].Cursor
		conn.PageInfo.EndCursor = &conn.Edges[n-1].Cursor
	}
	return conn, nil
}

func lengthAware(args Args, total, count int) *PaginatorInfo {
	info := &PaginatorInfo{
		Count:       count,
		CurrentPage: args.Page,
		PerPage:     args.First,
		Total:       total,
		LastPage:    1,
	}
	if args.First > 0 && total > 0 {
		info.LastPage = (total + args.First - 1) / args.First
	}
	info.HasMorePages = info.CurrentPage < info.LastPage
	info.FirstItem, info.LastItem = itemRange(args, count)
	return info
}

// simple fetches one extra row to tell whether another page follows and
// never counts.
func simple(ctx context.Context, q model.Builder, args Args) (Result, error) {
	items, err := q.Offset(args.Offset()).Limit(args.First + 1).Get(ctx)
	if err != nil {
		return nil, err
	}
	more := len(items) > args.First
	if more {
		items = items[:args.First]
	}
	info := &PaginatorInfo{
		Count:        len(items),
		CurrentPage:  args.Page,
		PerPage:      args.First,
		HasMorePages: more,
	}
	info.FirstItem, info.LastItem = itemRange(args, len(items))
	return &Paginator{Info: info, Data: nonNil(items)}, nil
}

func itemRange(args Args, count int) (*int, *int) {
	if count == 0 {
		return nil, nil
	}
	first := args.Offset() + 1
	last := first + count - 1
	return &first, &last
}

func nonNil(items []model.Model) []model.Model {
	if items == nil {
		return []model.Model{}
	}
	return items
}
