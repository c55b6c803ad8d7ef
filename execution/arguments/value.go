package arguments

import "fmt"

// Kind discriminates the shapes a Value can take.
type Kind uint8

const (
	KindNull Kind = iota
	KindScalar
	KindList
	KindSet
	KindSetList
)

var kindNames = [...]string{
	KindNull:    "null",
	KindScalar:  "scalar",
	KindList:    "list",
	KindSet:     "set",
	KindSetList: "setList",
}

func (k Kind) String() string {
	if int(k) < len(kindNames) {
		return kindNames[k]
	}
	return fmt.Sprintf("Kind(%d)", k)
}

// Value is the value of one argument: a scalar, a list of scalars, a nested
// ArgumentSet, a list of nested sets, or null.
type Value struct {
	kind   Kind
	scalar any
	list   []any
	set    *ArgumentSet
	sets   []*ArgumentSet
}

// Null returns the null value.
func Null() Value { return Value{} }

// Scalar returns a scalar value. A nil v yields Null.
func Scalar(v any) Value {
	if v == nil {
		return Null()
	}
	return Value{kind: KindScalar, scalar: v}
}

// List returns a list of scalars.
func List(vs []any) Value {
	if vs == nil {
		vs = []any{}
	}
	return Value{kind: KindList, list: vs}
}

// Set returns a nested argument set.
func Set(s *ArgumentSet) Value {
	if s == nil {
		return Null()
	}
	return Value{kind: KindSet, set: s}
}

// SetList returns a list of nested argument sets.
func SetList(ss []*ArgumentSet) Value {
	if ss == nil {
		ss = []*ArgumentSet{}
	}
	return Value{kind: KindSetList, sets: ss}
}

// Kind returns the shape of v.
func (v Value) Kind() Kind { return v.kind }

// IsNull reports whether v is null.
func (v Value) IsNull() bool { return v.kind == KindNull }

// Scalar returns the scalar, nil for other kinds.
func (v Value) Scalar() any { return v.scalar }

// List returns the scalar list, nil for other kinds.
func (v Value) List() []any { return v.list }

// Set returns the nested set, nil for other kinds.
func (v Value) Set() *ArgumentSet { return v.set }

// SetList returns the nested sets. A single set is returned as a
// one-element list so to-many operations accept both shapes.
func (v Value) SetList() []*ArgumentSet {
	switch v.kind {
	case KindSetList:
		return v.sets
	case KindSet:
		return []*ArgumentSet{v.set}
	default:
		return nil
	}
}

// Keys returns the scalars of v as a list: the list itself, or a
// one-element list for a scalar.
func (v Value) Keys() []any {
	switch v.kind {
	case KindList:
		return v.list
	case KindScalar:
		return []any{v.scalar}
	default:
		return nil
	}
}

// Bool reports whether v is the scalar true.
func (v Value) Bool() bool {
	b, _ := v.scalar.(bool)
	return v.kind == KindScalar && b
}

// Interface returns v as plain Go values: maps for sets, slices for lists.
func (v Value) Interface() any {
	switch v.kind {
	case KindScalar:
		return v.scalar
	case KindList:
		return v.list
	case KindSet:
		return v.set.ToMap()
	case KindSetList:
		out := make([]any, len(v.sets))
		for i, s := range v.sets {
			out[i] = s.ToMap()
		}
		return out
	default:
		return nil
	}
}
