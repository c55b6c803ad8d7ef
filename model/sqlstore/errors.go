package sqlstore

import (
	"errors"
	"strings"

	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"

	"github.com/syssam/beacon"
)

// Constraint kinds reported in beacon.ConstraintError.
const (
	ConstraintUnique     = "unique"
	ConstraintForeignKey = "foreign key"
	ConstraintCheck      = "check"
)

// PostgreSQL SQLSTATE codes of class 23.
const (
	pgUniqueViolation     = "23505"
	pgForeignKeyViolation = "23503"
	pgCheckViolation      = "23514"
)

// MySQL error numbers.
const (
	mysqlDuplicateEntry   = 1062
	mysqlForeignKeyParent = 1451
	mysqlForeignKeyChild  = 1452
	mysqlCheckViolation   = 3819
)

// sqlStateError is implemented by drivers reporting SQLSTATE codes.
type sqlStateError interface {
	SQLState() string
}

// constraint classifies err. It returns "" for errors that are not
// constraint violations.
func constraint(err error) string {
	if err == nil {
		return ""
	}
	var pqErr *pq.Error
	if errors.As(err, &pqErr) {
		return pgConstraint(string(pqErr.Code))
	}
	var myErr *mysql.MySQLError
	if errors.As(err, &myErr) {
		switch myErr.Number {
		case mysqlDuplicateEntry:
			return ConstraintUnique
		case mysqlForeignKeyParent, mysqlForeignKeyChild:
			return ConstraintForeignKey
		case mysqlCheckViolation:
			return ConstraintCheck
		}
		return ""
	}
	var stateErr sqlStateError
	if errors.As(err, &stateErr) {
		if c := pgConstraint(stateErr.SQLState()); c != "" {
			return c
		}
	}
	// SQLite reports constraints in the message only.
	msg := err.Error()
	switch {
	case strings.Contains(msg, "UNIQUE constraint failed"):
		return ConstraintUnique
	case strings.Contains(msg, "FOREIGN KEY constraint failed"):
		return ConstraintForeignKey
	case strings.Contains(msg, "CHECK constraint failed"):
		return ConstraintCheck
	}
	return ""
}

func pgConstraint(code string) string {
	switch code {
	case pgUniqueViolation:
		return ConstraintUnique
	case pgForeignKeyViolation:
		return ConstraintForeignKey
	case pgCheckViolation:
		return ConstraintCheck
	}
	return ""
}

// writeError wraps a failed write of entity.
func writeError(entity, op string, err error) error {
	if c := constraint(err); c != "" {
		err = &beacon.ConstraintError{Constraint: c, Err: err}
	}
	return beacon.NewMutationError(entity, op, err)
}
