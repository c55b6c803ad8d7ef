package pagination

import "github.com/vektah/gqlparser/v2/ast"

// Names of the pagination information types.
const (
	PageInfoType            = "PageInfo"
	PaginatorInfoType       = "PaginatorInfo"
	SimplePaginatorInfoType = "SimplePaginatorInfo"
)

const (
	descCount        = "Number of items in the current page."
	descCurrentPage  = "Index of the current page."
	descFirstItem    = "Index of the first item in the current page."
	descHasMorePages = "Are there more pages after this one?"
	descLastItem     = "Index of the last item in the current page."
	descLastPage     = "Index of the last available page."
	descPerPage      = "Number of items per page."
)

type fieldSpec struct {
	name, desc, typ string
	nonNull         bool
}

func object(name, desc string, fields ...fieldSpec) *ast.Definition {
	def := &ast.Definition{Kind: ast.Object, Name: name, Description: desc}
	for _, f := range fields {
		typ := ast.NamedType(f.typ, nil)
		if f.nonNull {
			typ = ast.NonNullNamedType(f.typ, nil)
		}
		def.Fields = append(def.Fields, &ast.FieldDefinition{
			Name:        f.name,
			Description: f.desc,
			Type:        typ,
		})
	}
	return def
}

// InfoTypes returns fresh definitions of PageInfo, PaginatorInfo and
// SimplePaginatorInfo.
func InfoTypes() []*ast.Definition {
	return []*ast.Definition{
		object(PageInfoType, "Information about pagination using a Relay style cursor connection.",
			fieldSpec{"hasNextPage", "When paginating forwards, are there more items?", "Boolean", true},
			fieldSpec{"hasPreviousPage", "When paginating backwards, are there more items?", "Boolean", true},
			fieldSpec{"startCursor", "The cursor to continue paginating backwards.", "String", false},
			fieldSpec{"endCursor", "The cursor to continue paginating forwards.", "String", false},
			fieldSpec{"total", "Total number of nodes in the paginated connection.", "Int", true},
			fieldSpec{"count", "Number of nodes in the current page.", "Int", true},
			fieldSpec{"currentPage", descCurrentPage, "Int", true},
			fieldSpec{"lastPage", descLastPage, "Int", true},
		),
		object(PaginatorInfoType, "Information about pagination using a fully featured paginator.",
			fieldSpec{"count", descCount, "Int", true},
			fieldSpec{"currentPage", descCurrentPage, "Int", true},
			fieldSpec{"firstItem", descFirstItem, "Int", false},
			fieldSpec{"hasMorePages", descHasMorePages, "Boolean", true},
			fieldSpec{"lastItem", descLastItem, "Int", false},
			fieldSpec{"lastPage", descLastPage, "Int", true},
			fieldSpec{"perPage", descPerPage, "Int", true},
			fieldSpec{"total", "Number of total available items.", "Int", true},
		),
		object(SimplePaginatorInfoType, "Information about pagination using a simple paginator.",
			fieldSpec{"count", descCount, "Int", true},
			fieldSpec{"currentPage", descCurrentPage, "Int", true},
			fieldSpec{"firstItem", descFirstItem, "Int", false},
			fieldSpec{"lastItem", descLastItem, "Int", false},
			fieldSpec{"perPage", descPerPage, "Int", true},
			fieldSpec{"hasMorePages", descHasMorePages, "Boolean", true},
		),
	}
}

// RegisterInfoTypes adds the pagination information types to doc unless a
// definition with the same name exists.
func RegisterInfoTypes(doc *ast.SchemaDocument) {
	for _, def := range InfoTypes() {
		if doc.Definitions.ForName(def.Name) == nil {
			doc.Definitions = append(doc.Definitions, def)
		}
	}
}
