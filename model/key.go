package model

import (
	"fmt"
	"strings"
)

// KeySeparator joins the type name and key components of a model key.
const KeySeparator = ":"

// Key derives a stable identity string for m: its type name followed by each
// primary key value in declaration order, e.g. "User:1" or "OrderLine:7:3".
// A model whose only key is unset renders as its bare type name; unset
// components of a composite key render as empty strings.
func Key(m Model) string {
	values := KeyValues(m)
	if len(values) == 1 && values[0] == nil {
		return m.TypeName()
	}
	var sb strings.Builder
	sb.WriteString(m.TypeName())
	for _, v := range values {
		sb.WriteString(KeySeparator)
		if v != nil {
			sb.WriteString(KeyString(v))
		}
	}
	return sb.String()
}

// KeyString renders a single key value. Values that compare equal in the
// store render identically regardless of the Go type the driver or the
// GraphQL layer produced (int64 7, "7" and []byte("7") all become "7").
func KeyString(v any) string {
	switch v := v.(type) {
	case nil:
		return ""
	case string:
		return v
	case []byte:
		return string(v)
	case fmt.Stringer:
		return v.String()
	default:
		return fmt.Sprint(v)
	}
}
