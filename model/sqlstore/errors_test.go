package sqlstore_test

import (
	"context"
	"errors"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/go-sql-driver/mysql"
	"github.com/lib/pq"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/dialect"
	"github.com/syssam/beacon/dialect/sql"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/model/sqlstore"
)

func TestStoreConstraintErrors(t *testing.T) {
	tests := []struct {
		name       string
		dialect    string
		expect     func(sqlmock.Sqlmock, error)
		err        error
		constraint string
	}{
		{
			name:    "PostgresUnique",
			dialect: dialect.Postgres,
			expect: func(m sqlmock.Sqlmock, err error) {
				m.ExpectQuery(`INSERT INTO "users"`).WillReturnError(err)
			},
			err:        &pq.Error{Code: "23505", Message: "duplicate key value"},
			constraint: sqlstore.ConstraintUnique,
		},
		{
			name:    "PostgresCheck",
			dialect: dialect.Postgres,
			expect: func(m sqlmock.Sqlmock, err error) {
				m.ExpectQuery(`INSERT INTO "users"`).WillReturnError(err)
			},
			err:        &pq.Error{Code: "23514", Message: "new row violates check constraint"},
			constraint: sqlstore.ConstraintCheck,
		},
		{
			name:    "MySQLForeignKey",
			dialect: dialect.MySQL,
			expect: func(m sqlmock.Sqlmock, err error) {
				m.ExpectExec("INSERT INTO `users`").WillReturnError(err)
			},
			err:        &mysql.MySQLError{Number: 1452, Message: "Cannot add or update a child row"},
			constraint: sqlstore.ConstraintForeignKey,
		},
		{
			name:    "Other",
			dialect: dialect.MySQL,
			expect: func(m sqlmock.Sqlmock, err error) {
				m.ExpectExec("INSERT INTO `users`").WillReturnError(err)
			},
			err: errors.New("connection reset"),
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			db, mock, err := sqlmock.New()
			require.NoError(t, err)
			defer db.Close()
			reg := model.NewRegistry()
			reg.Register("User")
			store := sqlstore.New(sql.OpenDB(tt.dialect, db), reg)
			tt.expect(mock, tt.err)

			u, err := store.New("User")
			require.NoError(t, err)
			u.Set("name", "foo")
			err = store.Save(context.Background(), u)
			require.Error(t, err)
			assert.True(t, beacon.IsMutationError(err))
			assert.ErrorIs(t, err, tt.err)
			var ce *beacon.ConstraintError
			if tt.constraint == "" {
				assert.False(t, errors.As(err, &ce))
				return
			}
			require.True(t, errors.As(err, &ce))
			assert.Equal(t, tt.constraint, ce.Constraint)
		})
	}
}

func TestStoreAttachDuplicate(t *testing.T) {
	ctx := context.Background()
	store, _ := newStore(t)
	u := create(t, store, "User", map[string]any{"name": "foo"})
	r := create(t, store, "Role", map[string]any{"name": "admin"})
	rel, err := store.Registry().Relation("User", "roles")
	require.NoError(t, err)

	require.NoError(t, store.Attach(ctx, rel.Pivot, u.Get("id"), []any{r.Get("id")}, nil))
	err = store.Attach(ctx, rel.Pivot, u.Get("id"), []any{r.Get("id")}, nil)
	require.Error(t, err)
	assert.True(t, beacon.IsConstraintError(err))
	assert.Contains(t, err.Error(), "beacon: attach role_user: beacon: unique constraint violated")
}
