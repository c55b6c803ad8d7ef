// Package dialect defines the storage driver contract used by the reference
// model store.
//
// A Driver executes statements and opens transactions; dialect/sql provides
// the database/sql backed implementation for the three supported databases:
//
//	dialect.Postgres = "postgres"
//	dialect.MySQL    = "mysql"
//	dialect.SQLite   = "sqlite"
//
// Opening a connection:
//
//	drv, err := sql.Open(dialect.SQLite, "file:beacon.db?_pragma=foreign_keys(1)")
//	if err != nil {
//	    log.Fatal(err)
//	}
//	defer drv.Close()
//
//	repo := sqlstore.New(drv, registry)
//
// Mutation resolvers run inside Driver.Tx so that a failing nested write
// rolls back the whole mutation.
package dialect
