package arguments

import (
	"fmt"
	"slices"
	"strings"

	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/model"
)

// Op is a nested mutation operation key. The constant order is the order
// in which operations are applied.
type Op uint8

const (
	OpCreate Op = iota
	OpUpdate
	OpUpsert
	OpConnect
	OpSync
	OpSyncWithoutDetaching
	OpDisconnect
	OpDelete
)

var opNames = [...]string{
	OpCreate:               "create",
	OpUpdate:               "update",
	OpUpsert:               "upsert",
	OpConnect:              "connect",
	OpSync:                 "sync",
	OpSyncWithoutDetaching: "syncWithoutDetaching",
	OpDisconnect:           "disconnect",
	OpDelete:               "delete",
}

func (op Op) String() string {
	if int(op) < len(opNames) {
		return opNames[op]
	}
	return fmt.Sprintf("Op(%d)", op)
}

// Ops returns every operation in application order.
func Ops() []Op {
	return []Op{OpCreate, OpUpdate, OpUpsert, OpConnect, OpSync, OpSyncWithoutDetaching, OpDisconnect, OpDelete}
}

// ParseOp returns the operation with the given input field name.
func ParseOp(name string) (Op, bool) {
	for op, n := range opNames {
		if n == name {
			return Op(op), true
		}
	}
	return 0, false
}

var allowedOps = map[model.Kind][]Op{
	model.KindBelongsTo:     {OpCreate, OpUpdate, OpUpsert, OpConnect, OpDisconnect, OpDelete},
	model.KindHasOne:        {OpCreate, OpUpdate, OpUpsert, OpDelete},
	model.KindHasMany:       {OpCreate, OpUpdate, OpUpsert, OpConnect, OpDisconnect, OpDelete},
	model.KindMorphMany:     {OpCreate, OpUpdate, OpUpsert, OpConnect, OpDisconnect, OpDelete},
	model.KindMorphTo:       {OpConnect, OpDisconnect, OpDelete},
	model.KindBelongsToMany: {OpCreate, OpUpdate, OpUpsert, OpConnect, OpSync, OpSyncWithoutDetaching, OpDisconnect, OpDelete},
}

// AllowedOps returns the operations a relation kind supports.
func AllowedOps(kind model.Kind) []Op {
	return slices.Clone(allowedOps[kind])
}

// Allowed reports whether kind supports op.
func Allowed(kind model.Kind, op Op) bool {
	return slices.Contains(allowedOps[kind], op)
}

// CheckInput verifies that the nested input type def of a relation
// argument only declares operations the relation kind supports. It runs
// while the schema is built.
func CheckInput(kind model.Kind, def *ast.Definition, field, directive string) error {
	if _, ok := allowedOps[kind]; !ok {
		return beacon.NewDefinitionError("Unknown relation kind %s for directive @%s on %s.", kind, directive, field)
	}
	if def == nil || def.Kind != ast.InputObject {
		return beacon.NewDefinitionError("The argument %s with directive @%s must be of an input object type.", field, directive)
	}
	for _, f := range def.Fields {
		op, ok := ParseOp(f.Name)
		if !ok {
			return beacon.NewDefinitionError(
				"Input %s of %s with directive @%s declares unknown nested operation %q, expected one of: %s.",
				def.Name, field, directive, f.Name, joinOps(AllowedOps(kind)),
			)
		}
		if kind == model.KindMorphTo && (op == OpCreate || op == OpUpdate || op == OpUpsert) {
			return beacon.NewDefinitionError(
				"Input %s of %s with directive @%s declares %s: %s.",
				def.Name, field, directive, op, beacon.ErrMorphToNotImplemented,
			)
		}
		if !Allowed(kind, op) {
			return beacon.NewDefinitionError(
				"Input %s of %s with directive @%s declares %s, which %s relations do not support.",
				def.Name, field, directive, op, kind,
			)
		}
	}
	return nil
}

func joinOps(ops []Op) string {
	names := make([]string, len(ops))
	for i, op := range ops {
		names[i] = op.String()
	}
	return strings.Join(names, ", ")
}
