package execution_test

import (
	"context"
	"errors"
	"fmt"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/internal/testdb"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/model/sqlstore"
)

const testSDL = `
interface Node { id: ID! }
type User implements Node { id: ID! name: String! email: String posts: [Post!]! }
type Post implements Node { id: ID! title: String! author: User }
type Wrapper { strict: String! }
union SearchResult = User | Post
enum Role { ADMIN MEMBER }

type Query {
  user(id: ID!): User
  users: [User!]!
  node(id: ID!): Node
  search: [SearchResult!]!
  boom: String
  panics: String
  nested: Wrapper
  strictList: [String!]
  role(name: String!): Role
  count: Int
  notList: [Int]
  invalid: String
}

type Mutation {
  createUser(name: String!): User!
  failUser(name: String!): User
}
`

func loadSchema(t *testing.T) *ast.Schema {
	t.Helper()
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: testSDL})
	require.NoError(t, err)
	return schema
}

func user(id int64, name string) *model.Entity {
	return model.Hydrate("User", nil, map[string]any{"id": id, "name": name})
}

func post(id int64, title string) *model.Entity {
	return model.Hydrate("Post", nil, map[string]any{"id": id, "title": title})
}

func newExecutor(t *testing.T, opts ...execution.Option) *execution.Executor {
	t.Helper()
	r := execution.NewResolvers()
	users := map[string]*model.Entity{"1": user(1, "ann"), "2": user(2, "bob")}
	r.SetResolve("Query", "user", func(_ context.Context, p execution.ResolveParams) (any, error) {
		if u, ok := users[fmt.Sprint(p.Args["id"])]; ok {
			return u, nil
		}
		return nil, nil
	})
	r.SetResolve("Query", "users", func(context.Context, execution.ResolveParams) (any, error) {
		return []*model.Entity{users["1"], users["2"]}, nil
	})
	r.SetResolve("Query", "node", func(_ context.Context, p execution.ResolveParams) (any, error) {
		if p.Args["id"] == "p1" {
			return post(1, "hello"), nil
		}
		return users["1"], nil
	})
	r.SetResolve("Query", "search", func(context.Context, execution.ResolveParams) (any, error) {
		return []any{
			users["2"],
			map[string]any{"__typename": "Post", "id": 9, "title": "from map"},
		}, nil
	})
	r.SetResolve("Query", "boom", func(context.Context, execution.ResolveParams) (any, error) {
		return nil, errors.New("boom failed")
	})
	r.SetResolve("Query", "panics", func(context.Context, execution.ResolveParams) (any, error) {
		panic("kaboom")
	})
	r.SetResolve("Query", "nested", func(context.Context, execution.ResolveParams) (any, error) {
		return map[string]any{"strict": nil}, nil
	})
	r.SetResolve("Query", "strictList", func(context.Context, execution.ResolveParams) (any, error) {
		return []any{"a", nil}, nil
	})
	r.SetResolve("Query", "role", func(_ context.Context, p execution.ResolveParams) (any, error) {
		return p.Args["name"], nil
	})
	r.SetResolve("Query", "count", func(context.Context, execution.ResolveParams) (any, error) {
		return int64(42), nil
	})
	r.SetResolve("Query", "notList", func(context.Context, execution.ResolveParams) (any, error) {
		return 7, nil
	})
	r.SetResolve("Query", "invalid", func(context.Context, execution.ResolveParams) (any, error) {
		return nil, errors.Join(
			beacon.NewValidationError("input.email", "The email must be a valid email address."),
			beacon.NewValidationError("input.name", "The name field is required."),
		)
	})
	r.SetResolve("User", "posts", func(_ context.Context, p execution.ResolveParams) (any, error) {
		u := p.Source.(*model.Entity)
		return []*model.Entity{post(u.Get("id").(int64)*10, "by "+u.Get("name").(string))}, nil
	})
	return execution.NewExecutor(loadSchema(t), r, opts...)
}

func TestExecuteQuery(t *testing.T) {
	t.Parallel()
	e := newExecutor(t)
	ctx := context.Background()

	tests := []struct {
		name  string
		query string
		vars  map[string]any
		want  string
	}{
		{
			name:  "AliasesKeepSelectionOrder",
			query: `{ b: user(id: 2) { name id } a: user(id: 1) { __typename name } }`,
			want:  `{"b":{"name":"bob","id":"2"},"a":{"__typename":"User","name":"ann"}}`,
		},
		{
			name:  "Fragments",
			query: `query { user(id: 1) { ...F ... on User { email } } } fragment F on User { id name }`,
			want:  `{"user":{"id":"1","name":"ann","email":null}}`,
		},
		{
			name:  "MergedFields",
			query: `{ user(id: 1) { posts { id } posts { title } } }`,
			want:  `{"user":{"posts":[{"id":"10","title":"by ann"}]}}`,
		},
		{
			name:  "SkipInclude",
			query: `query($skip: Boolean!) { user(id: 1) { id @skip(if: $skip) name @include(if: false) email @include(if: true) } }`,
			vars:  map[string]any{"skip": true},
			want:  `{"user":{"email":null}}`,
		},
		{
			name:  "Lists",
			query: `{ users { id posts { title } } }`,
			want:  `{"users":[{"id":"1","posts":[{"title":"by ann"}]},{"id":"2","posts":[{"title":"by bob"}]}]}`,
		},
		{
			name:  "Interface",
			query: `{ n1: node(id: "p1") { __typename id ... on Post { title } } n2: node(id: "u1") { __typename ... on User { name } } }`,
			want:  `{"n1":{"__typename":"Post","id":"1","title":"hello"},"n2":{"__typename":"User","name":"ann"}}`,
		},
		{
			name:  "Union",
			query: `{ search { __typename ... on User { name } ... on Post { title } } }`,
			want:  `{"search":[{"__typename":"User","name":"bob"},{"__typename":"Post","title":"from map"}]}`,
		},
		{
			name:  "Scalars",
			query: `{ count role(name: "ADMIN") missing: user(id: 3) { id } }`,
			want:  `{"count":42,"role":"ADMIN","missing":null}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := e.Execute(ctx, execution.Request{Query: tt.query, Variables: tt.vars})
			require.Empty(t, resp.Errors)
			assert.Equal(t, tt.want, string(resp.Data))
		})
	}
}

func TestExecuteFieldErrors(t *testing.T) {
	t.Parallel()
	e := newExecutor(t)
	ctx := context.Background()

	tests := []struct {
		name    string
		query   string
		want    string
		message string
		path    ast.Path
	}{
		{
			name:    "ResolverError",
			query:   `{ boom count }`,
			want:    `{"boom":null,"count":42}`,
			message: "boom failed",
			path:    ast.Path{ast.PathName("boom")},
		},
		{
			name:    "Panic",
			query:   `{ panics count }`,
			want:    `{"panics":null,"count":42}`,
			message: "internal error resolving Query.panics",
			path:    ast.Path{ast.PathName("panics")},
		},
		{
			name:    "NonNullPropagates",
			query:   `{ nested { strict } count }`,
			want:    `{"nested":null,"count":42}`,
			message: "Cannot return null for non-nullable field Wrapper.strict.",
			path:    ast.Path{ast.PathName("nested"), ast.PathName("strict")},
		},
		{
			name:    "NonNullListItem",
			query:   `{ strictList }`,
			want:    `{"strictList":null}`,
			message: "Cannot return null for non-nullable field Query.strictList.",
			path:    ast.Path{ast.PathName("strictList"), ast.PathIndex(1)},
		},
		{
			name:    "NotIterable",
			query:   `{ notList }`,
			want:    `{"notList":null}`,
			message: "Expected Iterable, but did not find one for field Query.notList.",
			path:    ast.Path{ast.PathName("notList")},
		},
		{
			name:    "InvalidEnum",
			query:   `{ role(name: "OWNER") }`,
			want:    `{"role":null}`,
			message: `Enum "Role" cannot represent value: "OWNER"`,
			path:    ast.Path{ast.PathName("role")},
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			resp := e.Execute(ctx, execution.Request{Query: tt.query})
			assert.Equal(t, tt.want, string(resp.Data))
			require.Len(t, resp.Errors, 1)
			assert.Equal(t, tt.message, resp.Errors[0].Message)
			assert.Equal(t, tt.path, resp.Errors[0].Path)
			assert.NotEmpty(t, resp.Errors[0].Locations)
		})
	}
}

func TestExecuteValidationErrors(t *testing.T) {
	t.Parallel()
	e := newExecutor(t)
	resp := e.Execute(context.Background(), execution.Request{Query: `{ invalid }`})
	require.Len(t, resp.Errors, 1)
	err := resp.Errors[0]
	assert.Equal(t, "Validation failed for the field [invalid].", err.Message)
	assert.Equal(t, map[string][]string{
		"input.email": {"The email must be a valid email address."},
		"input.name":  {"The name field is required."},
	}, err.Extensions["validation"])
	assert.Equal(t, `{"invalid":null}`, string(resp.Data))
}

func TestExecuteRequestErrors(t *testing.T) {
	t.Parallel()
	e := newExecutor(t)
	ctx := context.Background()

	t.Run("Syntax", func(t *testing.T) {
		resp := e.Execute(ctx, execution.Request{Query: `{ user(id: 1) `})
		require.Len(t, resp.Errors, 1)
		assert.Nil(t, resp.Data)
	})
	t.Run("UnknownField", func(t *testing.T) {
		resp := e.Execute(ctx, execution.Request{Query: `{ nope }`})
		require.Len(t, resp.Errors, 1)
		assert.Contains(t, resp.Errors[0].Message, `Cannot query field "nope" on type "Query".`)
		assert.Nil(t, resp.Data)
	})
	t.Run("MissingVariable", func(t *testing.T) {
		resp := e.Execute(ctx, execution.Request{Query: `query($id: ID!) { user(id: $id) { id } }`})
		require.Len(t, resp.Errors, 1)
		assert.Nil(t, resp.Data)
	})
	t.Run("UnknownOperation", func(t *testing.T) {
		resp := e.Execute(ctx, execution.Request{Query: `query A { count }`, OperationName: "B"})
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, `Unknown operation named "B".`, resp.Errors[0].Message)
	})
}

func TestExecuteIntrospection(t *testing.T) {
	t.Parallel()
	e := newExecutor(t)
	resp := e.Execute(context.Background(), execution.Request{Query: `{
		__schema { queryType { name } mutationType { name } subscriptionType { name } }
		__type(name: "Wrapper") { kind name fields { name type { kind ofType { kind name } } } }
		role: __type(name: "Role") { enumValues { name } }
		missing: __type(name: "Nope") { name }
	}`})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{
		"__schema": {"queryType": {"name": "Query"}, "mutationType": {"name": "Mutation"}, "subscriptionType": null},
		"__type": {"kind": "OBJECT", "name": "Wrapper", "fields": [
			{"name": "strict", "type": {"kind": "NON_NULL", "ofType": {"kind": "SCALAR", "name": "String"}}}
		]},
		"role": {"enumValues": [{"name": "ADMIN"}, {"name": "MEMBER"}]},
		"missing": null
	}`, string(resp.Data))
}

func TestExecutePrefetch(t *testing.T) {
	t.Parallel()
	e := newExecutor(t)
	var calls, parents atomic.Int32
	e.Resolvers().Field("User", "posts").Prefetch = func(_ context.Context, ps []any, p execution.ResolveParams) error {
		calls.Add(1)
		parents.Add(int32(len(ps)))
		assert.Equal(t, "posts", p.Definition.Name)
		return nil
	}
	resp := e.Execute(context.Background(), execution.Request{Query: `{ users { posts { id } } }`})
	require.Empty(t, resp.Errors)
	assert.Equal(t, int32(1), calls.Load())
	assert.Equal(t, int32(2), parents.Load())
}

func TestExecuteMiddleware(t *testing.T) {
	t.Parallel()
	e := newExecutor(t)
	e.Resolvers().Use("User", "name", func(next execution.ResolveFunc) execution.ResolveFunc {
		return func(ctx context.Context, p execution.ResolveParams) (any, error) {
			v, err := next(ctx, p)
			if err != nil {
				return nil, err
			}
			return "<" + v.(string) + ">", nil
		}
	})
	resp := e.Execute(context.Background(), execution.Request{Query: `{ user(id: 1) { name } }`})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"user":{"name":"<ann>"}}`, string(resp.Data))
}

func TestExecuteMutation(t *testing.T) {
	t.Parallel()
	drv := testdb.Open(t)
	store := sqlstore.New(drv, testdb.Registry(t))

	var committed []string
	r := execution.NewResolvers()
	create := func(ctx context.Context, p execution.ResolveParams) (model.Model, error) {
		repo, err := model.RepositoryFrom(ctx)
		if err != nil {
			return nil, err
		}
		u, err := repo.New("User")
		if err != nil {
			return nil, err
		}
		u.Set("name", p.Args["name"])
		if err := repo.Save(ctx, u); err != nil {
			return nil, err
		}
		execution.AfterCommit(ctx, func(context.Context) {
			committed = append(committed, p.Args["name"].(string))
		})
		return u, nil
	}
	r.SetResolve("Mutation", "createUser", func(ctx context.Context, p execution.ResolveParams) (any, error) {
		return create(ctx, p)
	})
	r.SetResolve("Mutation", "failUser", func(ctx context.Context, p execution.ResolveParams) (any, error) {
		if _, err := create(ctx, p); err != nil {
			return nil, err
		}
		return nil, errors.New("rejected")
	})
	e := execution.NewExecutor(loadSchema(t), r, execution.WithRepository(store))

	resp := e.Execute(context.Background(), execution.Request{Query: `mutation {
		a: createUser(name: "ann") { id name }
		b: failUser(name: "bob") { id }
		c: createUser(name: "cid") { name }
	}`})
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "rejected", resp.Errors[0].Message)
	assert.Equal(t, `{"a":{"id":"1","name":"ann"},"b":null,"c":{"name":"cid"}}`, string(resp.Data))
	assert.Equal(t, []string{"ann", "cid"}, committed)
	assert.Equal(t, 0, testdb.Count(t, drv, "users", "name = ?", "bob"), "failed field rolled back")
	assert.Equal(t, 2, testdb.Count(t, drv, "users", ""))
}

func TestAfterCommitOutsideMutation(t *testing.T) {
	t.Parallel()
	ran := false
	execution.AfterCommit(context.Background(), func(context.Context) { ran = true })
	assert.True(t, ran)
}

type subscriptions struct {
	fields []string
}

func (s *subscriptions) Subscribe(_ context.Context, p execution.ResolveParams) (map[string]any, error) {
	s.fields = append(s.fields, p.Definition.Name)
	return map[string]any{"beacon_subscriptions": map[string]any{"version": 2, "channel": "private-beacon-1"}}, nil
}

func TestExecuteSubscription(t *testing.T) {
	t.Parallel()
	schema, err := gqlparser.LoadSchema(&ast.Source{Name: "schema.graphql", Input: `
		type Query { ping: Boolean }
		type Post { id: ID! title: String! }
		type Subscription { postUpdated: Post }
	`})
	require.NoError(t, err)
	h := &subscriptions{}
	e := execution.NewExecutor(schema, nil, execution.WithSubscriptions(h))
	ctx := context.Background()

	t.Run("Register", func(t *testing.T) {
		resp := e.Execute(ctx, execution.Request{Query: `subscription { postUpdated { id } }`})
		require.Empty(t, resp.Errors)
		assert.Equal(t, `{"postUpdated":null}`, string(resp.Data))
		assert.Equal(t, map[string]any{"version": 2, "channel": "private-beacon-1"}, resp.Extensions["beacon_subscriptions"])
		assert.Equal(t, []string{"postUpdated"}, h.fields)
	})
	t.Run("Root", func(t *testing.T) {
		resp := e.Execute(ctx, execution.Request{
			Query: `subscription { postUpdated { id title } }`,
			Root:  post(3, "fresh"),
		})
		require.Empty(t, resp.Errors)
		assert.Equal(t, `{"postUpdated":{"id":"3","title":"fresh"}}`, string(resp.Data))
	})
}
