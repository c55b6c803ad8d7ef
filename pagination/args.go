package pagination

import (
	"encoding/json"
	"fmt"
	"math"
)

// Args are the validated pagination arguments of one field invocation.
type Args struct {
	Type Type
	// First is the page size.
	First int
	// Page is the 1-based page index.
	Page int
}

// Offset returns the number of items preceding the page.
func (a Args) Offset() int {
	return (a.Page - 1) * a.First
}

// ResolveArgs reads first and page (or after, for connections) from the
// coerced field arguments. A negative first, or one exceeding a positive
// maxCount, is rejected. A missing first is reported by query validation
// before resolvers run, so it is read as 0 here.
func ResolveArgs(args map[string]any, typ Type, maxCount *int) (Args, error) {
	first, err := intArg(args, "first")
	if err != nil {
		return Args{}, err
	}
	if first < 0 {
		return Args{}, fmt.Errorf("Requested pagination amount must be non-negative, got %d.", first)
	}
	if maxCount != nil && *maxCount > 0 && first > *maxCount {
		return Args{}, fmt.Errorf("Maximum items to be requested: %d, requested items: %d.", *maxCount, first)
	}

	out := Args{Type: typ, First: first, Page: 1}
	if typ.IsConnection() {
		after, _ := args["after"].(string)
		offset, err := DecodeCursor(after)
		if err != nil {
			return Args{}, err
		}
		if first > 0 {
			out.Page = offset/first + 1
		}
		return out, nil
	}
	page, err := intArg(args, "page")
	if err != nil {
		return Args{}, err
	}
	if page > 1 {
		out.Page = page
	}
	return out, nil
}

func intArg(args map[string]any, name string) (int, error) {
	switch v := args[name].(type) {
	case nil:
		return 0, nil
	case int:
		return v, nil
	case int32:
		return int(v), nil
	case int64:
		return int(v), nil
	case float64:
		if v != math.Trunc(v) {
			return 0, fmt.Errorf("pagination: argument %s must be an integer, got %v", name, v)
		}
		return int(v), nil
	case json.Number:
		n, err := v.Int64()
		if err != nil {
			return 0, fmt.Errorf("pagination: argument %s must be an integer: %w", name, err)
		}
		return int(n), nil
	default:
		return 0, fmt.Errorf("pagination: argument %s must be an integer, got %T", name, v)
	}
}
