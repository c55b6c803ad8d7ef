package pagination

import (
	"fmt"
	"strings"
)

// Type selects the shape of a paginated field.
type Type uint8

// Pagination types.
const (
	TypePaginator Type = iota + 1
	TypeSimple
	TypeConnection
)

// ParseType parses the value of the type argument of @paginate. Matching is
// case-insensitive and "relay" is accepted as an alias of CONNECTION. An
// empty string selects the paginator.
func ParseType(s string) (Type, error) {
	switch strings.ToUpper(s) {
	case "", "PAGINATOR":
		return TypePaginator, nil
	case "SIMPLE":
		return TypeSimple, nil
	case "CONNECTION", "RELAY":
		return TypeConnection, nil
	default:
		return 0, fmt.Errorf("pagination: unknown type %q, expected one of PAGINATOR, SIMPLE, CONNECTION", s)
	}
}

// String returns the enum value name used in the schema.
func (t Type) String() string {
	switch t {
	case TypePaginator:
		return "PAGINATOR"
	case TypeSimple:
		return "SIMPLE"
	case TypeConnection:
		return "CONNECTION"
	default:
		return fmt.Sprintf("Type(%d)", t)
	}
}

// Suffix is appended to the base type name to form the wrapper type name.
func (t Type) Suffix() string {
	switch t {
	case TypeSimple:
		return "SimplePaginator"
	case TypeConnection:
		return "Connection"
	default:
		return "Paginator"
	}
}

// IsConnection reports whether t is the Relay connection type.
func (t Type) IsConnection() bool { return t == TypeConnection }

// IsSimple reports whether t is the simple paginator, which never counts.
func (t Type) IsSimple() bool { return t == TypeSimple }

// InfoType returns the name of the pagination information type of t.
func (t Type) InfoType() string {
	switch t {
	case TypeSimple:
		return SimplePaginatorInfoType
	case TypeConnection:
		return PageInfoType
	default:
		return PaginatorInfoType
	}
}

// Names holds the generated type names for a base type.
type Names struct {
	Base    string
	Wrapper string
	Edge    string
}

// NamesFor returns the type names t generates for base.
func NamesFor(base string, t Type) Names {
	n := Names{Base: base, Wrapper: base + t.Suffix()}
	if t.IsConnection() {
		n.Edge = base + "Edge"
	}
	return n
}
