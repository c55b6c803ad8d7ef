// Package sql implements dialect.Driver on top of database/sql, together with
// a small statement builder used by the reference model store.
//
// Statements are built per dialect so that identifiers are quoted and
// placeholders numbered correctly:
//
//	query, args := sql.Dialect(dialect.Postgres).
//	    Select("id", "name").
//	    From("users").
//	    Where(sql.EQ("status", "active")).
//	    OrderBy("id", false).
//	    Limit(10).
//	    Query()
//	// SELECT "id", "name" FROM "users" WHERE "status" = $1 ORDER BY "id" LIMIT 10
//
// StatsDriver and DebugDriver wrap a Driver with query statistics and slog
// based statement logging.
package sql
