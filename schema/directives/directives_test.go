package directives_test

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/dialect/sql"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/internal/testdb"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/model/sqlstore"
	"github.com/syssam/beacon/pagination"
	"github.com/syssam/beacon/schema"
	"github.com/syssam/beacon/schema/directives"
)

const sdl = `
type User {
  id: ID!
  name: String!
  mail: String @rename(attribute: "email")
  team: Team @belongsTo
  posts: [Post!]! @hasMany
  postsTitled(title: String @eq): [Post!]! @hasMany(relation: "posts")
  pagedPosts: [Post!]! @hasMany(relation: "posts", type: PAGINATOR, defaultCount: 10)
  roles: [Role!]! @belongsToMany
}

type Team { id: ID!, name: String!, users: [User!]! @hasMany }
type Post { id: ID!, title: String!, user: User @belongsTo }
type Role { id: ID!, name: String! }

type Query {
  users: [User!]! @paginate(defaultCount: 10)
  limited: [User!]! @paginate(maxCount: 5, defaultCount: 2)
  connection: [User!]! @paginate(type: CONNECTION, defaultCount: 10)
  required: [User!]! @paginate(defaultCount: null, model: "User")
  allUsers(name: String @eq): [User!]! @all
  user(id: ID @eq): User @find
  firstUser: User @first(model: "User")
  byBuilder: [User!]! @all(builder: "UserQueries@named")
  greeting(name: String!): String! @field(resolver: "Greeter")
}

input CreateUserInput {
  name: String! @rules(apply: ["required", "min:2"])
  mail: String @rename(attribute: "email") @rules(apply: ["email"])
  team: CreateTeamBelongsTo @belongsTo
  posts: CreatePostsHasMany @hasMany
}
input CreateTeamBelongsTo { connect: ID, create: CreateTeamInput }
input CreateTeamInput { name: String! }
input CreatePostsHasMany { create: [CreatePostInput!] }
input CreatePostInput { title: String! }
input UpdateUserInput { id: ID!, name: String }

type Mutation {
  createUser(input: CreateUserInput! @spread): User @create @broadcast(subscription: "userCreated")
  updateUser(input: UpdateUserInput! @spread): User @update
  upsertUser(id: ID, name: String!): User @upsert
  deleteUser(id: ID!): User @delete
  deleteUsers(ids: [ID!]!): [User!]! @delete(model: "User")
}

type Subscription {
  userCreated: User
  userRenamed: User @subscription(class: "UserRenamed")
}
`

type publication struct {
	subscription string
	root         any
}

type recorder struct {
	mu   sync.Mutex
	sent []publication
}

func (r *recorder) Publish(_ context.Context, subscription string, root any) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.sent = append(r.sent, publication{subscription, root})
}

func (r *recorder) published() []publication {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]publication(nil), r.sent...)
}

type env struct {
	drv       *sql.Driver
	executor  *execution.Executor
	publisher *recorder
}

func callables() *schema.Callables {
	c := schema.NewCallables()
	c.Register("UserQueries", map[string]any{
		"named": directives.BuilderFunc(func(ctx context.Context, _ execution.ResolveParams) (model.Builder, error) {
			repo, err := model.RepositoryFrom(ctx)
			if err != nil {
				return nil, err
			}
			q, err := repo.Query("User")
			if err != nil {
				return nil, err
			}
			return q.Where("name", "ann"), nil
		}),
	})
	c.RegisterFunc("Greeter", func(_ context.Context, p execution.ResolveParams) (any, error) {
		return fmt.Sprintf("hello %s", p.Args["name"]), nil
	})
	c.Register("UserRenamed", map[string]any{
		"Filter": directives.FilterFunc(func(_ context.Context, p execution.ResolveParams) (bool, error) {
			m, ok := p.Source.(model.Model)
			return ok && m.Get("name") != "bob", nil
		}),
	})
	return c
}

func build(t *testing.T, src string, opts ...schema.Option) (*schema.Schema, error) {
	t.Helper()
	b, err := schema.NewBuilder(append([]schema.Option{
		schema.WithConfig(config.Default()),
		schema.WithModels(testdb.Registry(t)),
		schema.WithDirectives(directives.All()...),
		schema.WithCallables(callables()),
		schema.WithSource("schema.graphql", src),
	}, opts...)...)
	require.NoError(t, err)
	return b.Build(t.Context())
}

func setup(t *testing.T) *env {
	t.Helper()
	pub := &recorder{}
	s, err := build(t, sdl, schema.WithPublisher(pub))
	require.NoError(t, err)

	drv := testdb.Open(t)
	testdb.Exec(t, drv,
		`INSERT INTO teams (id, name) VALUES (1, 'red')`,
		`INSERT INTO users (id, name, email, team_id) VALUES (1, 'ann', 'ann@example.com', 1), (2, 'bob', NULL, NULL), (3, 'cid', NULL, 1)`,
		`INSERT INTO posts (id, title, user_id) VALUES (1, 'hello', 1), (2, 'world', 1), (3, 'bye', 2)`,
		`INSERT INTO roles (id, name) VALUES (1, 'admin')`,
		`INSERT INTO role_user (user_id, role_id) VALUES (1, 1)`,
	)
	store := sqlstore.New(drv, testdb.Registry(t))
	e := execution.NewExecutor(s.AST, s.Resolvers,
		execution.WithRepository(store),
		execution.WithRules(execution.NewValidationRulesProvider(config.Security{}, s.Resolvers.Complexity)),
	)
	return &env{drv: drv, executor: e, publisher: pub}
}

func (e *env) exec(t *testing.T, query string, vars map[string]any) *execution.Response {
	t.Helper()
	return e.executor.Execute(t.Context(), execution.Request{Query: query, Variables: vars})
}

func (e *env) data(t *testing.T, query string, vars map[string]any) string {
	t.Helper()
	resp := e.exec(t, query, vars)
	require.Empty(t, resp.Errors)
	return string(resp.Data)
}

func TestQueryDirectives(t *testing.T) {
	t.Parallel()
	e := setup(t)
	tests := []struct {
		name  string
		query string
		want  string
	}{
		{
			name:  "Paginate",
			query: `{ users(first: 2) { paginatorInfo { total currentPage lastPage hasMorePages } data { id name } } }`,
			want:  `{"users":{"paginatorInfo":{"total":3,"currentPage":1,"lastPage":2,"hasMorePages":true},"data":[{"id":"1","name":"ann"},{"id":"2","name":"bob"}]}}`,
		},
		{
			name:  "PaginateSecondPage",
			query: `{ users(first: 2, page: 2) { paginatorInfo { currentPage hasMorePages } data { name } } }`,
			want:  `{"users":{"paginatorInfo":{"currentPage":2,"hasMorePages":false},"data":[{"name":"cid"}]}}`,
		},
		{
			name:  "PaginateZero",
			query: `{ users(first: 0) { data { name } } }`,
			want:  `{"users":{"data":[]}}`,
		},
		{
			name:  "DefaultCount",
			query: `{ limited { paginatorInfo { perPage } data { name } } }`,
			want:  `{"limited":{"paginatorInfo":{"perPage":2},"data":[{"name":"ann"},{"name":"bob"}]}}`,
		},
		{
			name:  "Connection",
			query: `{ connection(first: 2) { pageInfo { hasNextPage endCursor } edges { cursor node { name } } } }`,
			want: fmt.Sprintf(`{"connection":{"pageInfo":{"hasNextPage":true,"endCursor":%q},"edges":[{"cursor":%q,"node":{"name":"ann"}},{"cursor":%q,"node":{"name":"bob"}}]}}`,
				pagination.EncodeCursor(2), pagination.EncodeCursor(1), pagination.EncodeCursor(2)),
		},
		{
			name:  "ConnectionAfter",
			query: fmt.Sprintf(`{ connection(first: 2, after: %q) { edges { node { name } } } }`, pagination.EncodeCursor(2)),
			want:  `{"connection":{"edges":[{"node":{"name":"cid"}}]}}`,
		},
		{
			name:  "All",
			query: `{ allUsers { name } }`,
			want:  `{"allUsers":[{"name":"ann"},{"name":"bob"},{"name":"cid"}]}`,
		},
		{
			name:  "Eq",
			query: `{ allUsers(name: "bob") { id } }`,
			want:  `{"allUsers":[{"id":"2"}]}`,
		},
		{
			name:  "Find",
			query: `{ user(id: 2) { name mail } }`,
			want:  `{"user":{"name":"bob","mail":null}}`,
		},
		{
			name:  "FindMissing",
			query: `{ user(id: 42) { name } }`,
			want:  `{"user":null}`,
		},
		{
			name:  "First",
			query: `{ firstUser { name mail } }`,
			want:  `{"firstUser":{"name":"ann","mail":"ann@example.com"}}`,
		},
		{
			name:  "Builder",
			query: `{ byBuilder { name } }`,
			want:  `{"byBuilder":[{"name":"ann"}]}`,
		},
		{
			name:  "Field",
			query: `{ greeting(name: "dave") }`,
			want:  `{"greeting":"hello dave"}`,
		},
		{
			name:  "Relations",
			query: `{ allUsers { name team { name } posts { title } roles { name } } }`,
			want: `{"allUsers":[
				{"name":"ann","team":{"name":"red"},"posts":[{"title":"hello"},{"title":"world"}],"roles":[{"name":"admin"}]},
				{"name":"bob","team":null,"posts":[{"title":"bye"}],"roles":[]},
				{"name":"cid","team":{"name":"red"},"posts":[],"roles":[]}
			]}`,
		},
		{
			name:  "RelationWithArguments",
			query: `{ user(id: 1) { postsTitled(title: "world") { id } } }`,
			want:  `{"user":{"postsTitled":[{"id":"2"}]}}`,
		},
		{
			name:  "PaginatedRelation",
			query: `{ user(id: 1) { pagedPosts(first: 1) { paginatorInfo { total } data { title user { name } } } } }`,
			want:  `{"user":{"pagedPosts":{"paginatorInfo":{"total":2},"data":[{"title":"hello","user":{"name":"ann"}}]}}}`,
		},
		{
			name:  "InverseRelation",
			query: `{ allUsers(name: "ann") { team { users { name } } } }`,
			want:  `{"allUsers":[{"team":{"users":[{"name":"ann"},{"name":"cid"}]}}]}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.JSONEq(t, tt.want, e.data(t, tt.query, nil))
		})
	}
}

func TestPaginateErrors(t *testing.T) {
	t.Parallel()
	e := setup(t)
	tests := []struct {
		name  string
		query string
		err   string
	}{
		{
			name:  "MaxCount",
			query: `{ limited(first: 10) { data { id } } }`,
			err:   "Maximum items to be requested: 5, requested items: 10.",
		},
		{
			name:  "Negative",
			query: `{ users(first: -1) { data { id } } }`,
			err:   "Requested pagination amount must be non-negative, got -1.",
		},
		{
			name:  "FirstRequired",
			query: `{ required { data { id } } }`,
			err:   `Field "required" argument "first" of type "Int!" is required, but it was not provided.`,
		},
		{
			name:  "FirstNull",
			query: `{ users(first: null) { data { id } } }`,
			err:   `Expected value of type "Int!", found null.`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			resp := e.exec(t, tt.query, nil)
			require.NotEmpty(t, resp.Errors)
			assert.Equal(t, tt.err, resp.Errors[0].Message)
		})
	}
}

func TestMutationDirectives(t *testing.T) {
	t.Parallel()

	t.Run("Create", func(t *testing.T) {
		e := setup(t)
		got := e.data(t, `mutation($input: CreateUserInput!) {
			createUser(input: $input) { id name mail team { name } posts { title } }
		}`, map[string]any{"input": map[string]any{
			"name":  "dave",
			"mail":  "dave@example.com",
			"team":  map[string]any{"create": map[string]any{"name": "blue"}},
			"posts": map[string]any{"create": []any{map[string]any{"title": "first"}}},
		}})
		assert.JSONEq(t, `{"createUser":{"id":"4","name":"dave","mail":"dave@example.com","team":{"name":"blue"},"posts":[{"title":"first"}]}}`, got)
		assert.Equal(t, 2, testdb.Count(t, e.drv, "teams", ""))

		sent := e.publisher.published()
		require.Len(t, sent, 1)
		assert.Equal(t, "userCreated", sent[0].subscription)
		m, ok := sent[0].root.(model.Model)
		require.True(t, ok)
		assert.Equal(t, "dave", m.Get("name"))
	})

	t.Run("Rules", func(t *testing.T) {
		e := setup(t)
		resp := e.exec(t, `mutation { createUser(input: {name: "d", mail: "nope"}) { id } }`, nil)
		require.Len(t, resp.Errors, 1)
		assert.Equal(t, "Validation failed for the field [createUser].", resp.Errors[0].Message)
		assert.Equal(t, map[string][]string{
			"input.name": {"The input.name must be at least 2 characters."},
			"input.mail": {"The input.mail must be a valid email address."},
		}, resp.Errors[0].Extensions["validation"])
		assert.Equal(t, 3, testdb.Count(t, e.drv, "users", ""))
		assert.Empty(t, e.publisher.published(), "nothing broadcast for a failed mutation")
	})

	t.Run("Update", func(t *testing.T) {
		e := setup(t)
		got := e.data(t, `mutation { updateUser(input: {id: 2, name: "bobby"}) { id name } }`, nil)
		assert.JSONEq(t, `{"updateUser":{"id":"2","name":"bobby"}}`, got)
		assert.Equal(t, 1, testdb.Count(t, e.drv, "users", "name = ?", "bobby"))

		resp := e.exec(t, `mutation { updateUser(input: {id: 42, name: "x"}) { id } }`, nil)
		require.Len(t, resp.Errors, 1)
		assert.True(t, errors.Is(resp.Errors[0], beacon.ErrNotFound))
	})

	t.Run("Upsert", func(t *testing.T) {
		e := setup(t)
		got := e.data(t, `mutation { a: upsertUser(id: 2, name: "bo") { name } b: upsertUser(id: 99, name: "zed") { id name } }`, nil)
		assert.JSONEq(t, `{"a":{"name":"bo"},"b":{"id":"99","name":"zed"}}`, got)
		assert.Equal(t, 4, testdb.Count(t, e.drv, "users", ""))
	})

	t.Run("Delete", func(t *testing.T) {
		e := setup(t)
		got := e.data(t, `mutation { deleteUser(id: 3) { name } }`, nil)
		assert.JSONEq(t, `{"deleteUser":{"name":"cid"}}`, got)
		got = e.data(t, `mutation { deleteUsers(ids: [1, 2, 42]) { name } }`, nil)
		assert.JSONEq(t, `{"deleteUsers":[{"name":"ann"},{"name":"bob"}]}`, got)
		assert.Equal(t, 0, testdb.Count(t, e.drv, "users", ""))
		got = e.data(t, `mutation { deleteUser(id: 3) { name } }`, nil)
		assert.JSONEq(t, `{"deleteUser":null}`, got)
	})
}

func TestSubscriptionDirective(t *testing.T) {
	t.Parallel()
	e := setup(t)
	ann := model.Hydrate("User", []string{"id"}, map[string]any{"id": int64(1), "name": "ann"})
	bob := model.Hydrate("User", []string{"id"}, map[string]any{"id": int64(2), "name": "bob"})

	resp := e.executor.Execute(t.Context(), execution.Request{Query: `subscription { userRenamed { name } }`, Root: ann})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"userRenamed":{"name":"ann"}}`, string(resp.Data))

	resp = e.executor.Execute(t.Context(), execution.Request{Query: `subscription { userRenamed { name } }`, Root: bob})
	require.Len(t, resp.Errors, 1)
	assert.True(t, errors.Is(resp.Errors[0], beacon.ErrSubscriptionFiltered))

	resp = e.executor.Execute(t.Context(), execution.Request{Query: `subscription { userCreated { name } }`, Root: bob})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"userCreated":{"name":"bob"}}`, string(resp.Data))
}

func TestDefinitionErrors(t *testing.T) {
	t.Parallel()
	const types = `
type User { id: ID!, name: String! }
type Subscription { userCreated: User }
`
	tests := []struct {
		name string
		sdl  string
		err  string
	}{
		{
			name: "PaginateScalar",
			sdl:  `type Query { names: [String!]! @paginate }`,
			err:  "Field Query.names with directive @paginate must return a list of an object, interface or union type, got String.",
		},
		{
			name: "MissingClass",
			sdl:  `type Query { x: String @field(resolver: "Missing@run") }`,
			err:  "Failed to find class Missing in namespaces [] for directive @field.",
		},
		{
			name: "MissingMethod",
			sdl:  `type Query { x: String @field(resolver: "Greeter@run") }`,
			err:  "Method run does not exist on class Greeter referenced in @field.",
		},
		{
			name: "MultipleResolvers",
			sdl:  `type Query { users: [User!]! @all @find }`,
			err:  "Field Query.users has more than one resolver directive: @all, @find.",
		},
		{
			name: "UnknownModel",
			sdl:  `type Query { users: [User!]! @all(model: "Ghost") }`,
			err:  "Failed to find a model class Ghost in namespaces [] referenced in @all on Query.users.",
		},
		{
			name: "DeleteArguments",
			sdl:  `type Query { x: Int } type Mutation { deleteUser(id: ID!, force: Boolean): User @delete }`,
			err:  "The @delete directive requires the field Mutation.deleteUser to have exactly one argument, holding the keys to delete.",
		},
		{
			name: "BroadcastUnknown",
			sdl:  `type Query { x: Int } type Mutation { createUser(name: String): User @create @broadcast(subscription: "nope") }`,
			err:  `The @broadcast directive on Mutation.createUser references the unknown subscription field "nope".`,
		},
		{
			name: "SpreadScalar",
			sdl:  `type Query { user(id: ID @spread): User @find }`,
			err:  "The @spread directive can only be used on arguments of an input object type, Query.user.id is of type ID.",
		},
		{
			name: "NestedOperation",
			sdl: `type Query { x: Int }
type Mutation { createUser(posts: PostsInput @hasMany): User @create }
input PostsInput { sync: [ID!] }`,
			err: "Input PostsInput of Mutation.createUser.posts with directive @hasMany declares sync, which hasMany relations do not support.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := build(t, types+tt.sdl)
			require.Error(t, err)
			assert.True(t, beacon.IsDefinitionError(err), "%v", err)
			assert.EqualError(t, err, tt.err)
		})
	}

	t.Run("UnknownRule", func(t *testing.T) {
		t.Parallel()
		_, err := build(t, types+`type Query { user(name: String @rules(apply: ["bogus"])): User @find }`)
		require.Error(t, err)
		assert.True(t, beacon.IsDefinitionError(err))
		assert.Contains(t, err.Error(), `Invalid rules ["bogus"] of @rules on Query.user.name`)
	})
}

func TestPrintPaginatedSchema(t *testing.T) {
	t.Parallel()
	s, err := build(t, sdl)
	require.NoError(t, err)
	out := schema.Print(s.AST)
	assert.Contains(t, out, "type UserPaginator")
	assert.Contains(t, out, "type UserConnection")
	assert.Contains(t, out, "type PostPaginator")
	assert.Contains(t, out, "paginatorInfo: PaginatorInfo!")
	assert.NotContains(t, out, "UserPaginatorPaginator")
	assert.Equal(t, "UserPaginator", s.AST.Query.Fields.ForName("users").Type.Name())
}
