// Package testdb opens in-memory SQLite databases holding a small blog
// schema that exercises every relation kind.
package testdb

import (
	stdsql "database/sql"
	"strings"
	"testing"

	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	"github.com/syssam/beacon/dialect"
	"github.com/syssam/beacon/dialect/sql"
	"github.com/syssam/beacon/model"
)

// Schema creates the blog tables.
const Schema = `
CREATE TABLE teams (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE users (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL, email TEXT, team_id INTEGER REFERENCES teams(id));
CREATE TABLE profiles (id INTEGER PRIMARY KEY AUTOINCREMENT, bio TEXT, user_id INTEGER REFERENCES users(id));
CREATE TABLE posts (id INTEGER PRIMARY KEY AUTOINCREMENT, title TEXT NOT NULL, body TEXT, user_id INTEGER REFERENCES users(id));
CREATE TABLE roles (id INTEGER PRIMARY KEY AUTOINCREMENT, name TEXT NOT NULL);
CREATE TABLE role_user (user_id INTEGER NOT NULL, role_id INTEGER NOT NULL, meta TEXT, PRIMARY KEY (user_id, role_id));
CREATE TABLE images (id INTEGER PRIMARY KEY AUTOINCREMENT, url TEXT NOT NULL, imageable_type TEXT, imageable_id INTEGER);
`

// Open returns a driver over a fresh in-memory database with Schema applied.
// The pool is limited to one connection so every statement sees the same
// database; code under test must run transactional work through the
// transaction it was handed.
func Open(t testing.TB) *sql.Driver {
	t.Helper()
	db, err := stdsql.Open("sqlite", ":memory:")
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	for _, stmt := range strings.Split(Schema, ";") {
		if stmt = strings.TrimSpace(stmt); stmt != "" {
			_, err := db.Exec(stmt)
			require.NoError(t, err, stmt)
		}
	}
	return sql.OpenDB(dialect.SQLite, db)
}

// Registry returns the model registry matching Schema.
func Registry(t testing.TB) *model.Registry {
	t.Helper()
	r := model.NewRegistry()
	for _, rel := range []struct {
		parent, name string
		kind         model.Kind
		related      string
		opts         []model.RelationOption
	}{
		{parent: "User", name: "team", kind: model.KindBelongsTo, related: "Team"},
		{parent: "Team", name: "users", kind: model.KindHasMany, related: "User"},
		{parent: "User", name: "profile", kind: model.KindHasOne, related: "Profile"},
		{parent: "User", name: "posts", kind: model.KindHasMany, related: "Post"},
		{parent: "Post", name: "user", kind: model.KindBelongsTo, related: "User"},
		{parent: "User", name: "roles", kind: model.KindBelongsToMany, related: "Role"},
		{parent: "Role", name: "users", kind: model.KindBelongsToMany, related: "User"},
		{parent: "Image", name: "imageable", kind: model.KindMorphTo},
		{parent: "Post", name: "images", kind: model.KindMorphMany, related: "Image", opts: []model.RelationOption{model.MorphName("imageable")}},
		{parent: "User", name: "images", kind: model.KindMorphMany, related: "Image", opts: []model.RelationOption{model.MorphName("imageable")}},
	} {
		_, err := r.AddRelation(rel.parent, rel.name, rel.kind, rel.related, rel.opts...)
		require.NoError(t, err)
	}
	return r
}

// Exec runs raw statements against drv, failing the test on error.
func Exec(t testing.TB, drv *sql.Driver, stmts ...string) {
	t.Helper()
	for _, s := range stmts {
		_, err := drv.DB().Exec(s)
		require.NoError(t, err, s)
	}
}

// Count returns the number of rows in table matching the optional where clause.
func Count(t testing.TB, drv *sql.Driver, table, where string, args ...any) int {
	t.Helper()
	q := "SELECT COUNT(*) FROM " + table
	if where != "" {
		q += " WHERE " + where
	}
	var n int
	require.NoError(t, drv.DB().QueryRow(q, args...).Scan(&n))
	return n
}
