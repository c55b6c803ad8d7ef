package schema_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vektah/gqlparser/v2/ast"

	"github.com/syssam/beacon"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/schema"
)

// upper resolves a field to the upper-cased value of an attribute.
type upper struct{}

func (upper) Name() string { return "upper" }
func (upper) Definition() string {
	return `directive @upper(attribute: String) on FIELD_DEFINITION`
}
func (upper) Capabilities() schema.Capabilities { return schema.Capabilities{FieldResolver: true} }
func (upper) ResolveField(_ *schema.AttachContext, _ *ast.Definition, field *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	attr := schema.StringArg(dir, "attribute", field.Name)
	return func(_ context.Context, p execution.ResolveParams) (any, error) {
		m, _ := p.Source.(map[string]any)
		s, _ := m[attr].(string)
		return strings.ToUpper(s), nil
	}, nil
}

// constant resolves a field to a fixed string.
type constant struct{}

func (constant) Name() string { return "constant" }
func (constant) Definition() string {
	return `directive @constant(value: String = "fixed") on FIELD_DEFINITION`
}
func (constant) Capabilities() schema.Capabilities { return schema.Capabilities{FieldResolver: true} }
func (constant) ResolveField(_ *schema.AttachContext, _ *ast.Definition, _ *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	v := schema.StringArg(dir, "value", "")
	return func(context.Context, execution.ResolveParams) (any, error) { return v, nil }, nil
}

// suffix appends a marker to string results.
type suffix struct{}

func (suffix) Name() string { return "suffix" }
func (suffix) Definition() string {
	return `directive @suffix(with: String!) repeatable on FIELD_DEFINITION | OBJECT`
}
func (suffix) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldMiddleware: true, TypeMiddleware: true}
}
func (suffix) wrap(with string) execution.Middleware {
	return func(next execution.ResolveFunc) execution.ResolveFunc {
		return func(ctx context.Context, p execution.ResolveParams) (any, error) {
			v, err := next(ctx, p)
			if s, ok := v.(string); ok {
				return s + with, err
			}
			return v, err
		}
	}
}
func (d suffix) HandleField(_ *schema.AttachContext, _ *ast.Definition, _ *ast.FieldDefinition, dir *ast.Directive) (execution.Middleware, error) {
	return d.wrap(schema.StringArg(dir, "with", "")), nil
}
func (d suffix) HandleType(_ *schema.AttachContext, _ *ast.Definition, dir *ast.Directive) (execution.Middleware, error) {
	return d.wrap(schema.StringArg(dir, "with", "")), nil
}

// trim trims string arguments and rejects empty ones.
type trim struct{}

func (trim) Name() string { return "trim" }
func (trim) Definition() string {
	return `directive @trim on ARGUMENT_DEFINITION | INPUT_FIELD_DEFINITION`
}
func (trim) Capabilities() schema.Capabilities { return schema.Capabilities{ArgTransformer: true} }
func (trim) TransformArg(*schema.AttachContext, schema.Arg, *ast.Directive) (schema.Transform, error) {
	return func(path string, v any) (any, error) {
		s, ok := v.(string)
		if !ok {
			return v, nil
		}
		if s = strings.TrimSpace(s); s == "" {
			return nil, beacon.NewValidationError(path, "must not be blank")
		}
		return s, nil
	}, nil
}

// listed adds a field to the type it is placed on.
type listed struct{}

func (listed) Name() string { return "listed" }
func (listed) Definition() string {
	return `directive @listed on OBJECT`
}
func (listed) Capabilities() schema.Capabilities { return schema.Capabilities{TypeManipulator: true} }
func (listed) ManipulateType(_ *schema.ManipulateContext, def *ast.Definition, _ *ast.Directive) error {
	def.Fields = append(def.Fields, &ast.FieldDefinition{
		Name: "listed",
		Type: ast.NonNullNamedType("String", def.Position),
		Directives: ast.DirectiveList{{
			Name:      "constant",
			Arguments: ast.ArgumentList{{Name: "value", Value: &ast.Value{Kind: ast.StringValue, Raw: "yes"}}},
		}},
	})
	return nil
}

// broken declares a hook it does not implement.
type broken struct{}

func (broken) Name() string                      { return "broken" }
func (broken) Definition() string                { return `directive @broken on FIELD_DEFINITION` }
func (broken) Capabilities() schema.Capabilities { return schema.Capabilities{FieldResolver: true, ArgBuilder: true} }

func testDirectives() []schema.Directive {
	return []schema.Directive{upper{}, constant{}, suffix{}, trim{}, listed{}}
}

func newBuilder(t *testing.T, opts ...schema.Option) *schema.Builder {
	t.Helper()
	b, err := schema.NewBuilder(append([]schema.Option{schema.WithDirectives(testDirectives()...)}, opts...)...)
	require.NoError(t, err)
	return b
}

func execute(t *testing.T, s *schema.Schema, query string, root any) *execution.Response {
	t.Helper()
	e := execution.NewExecutor(s.AST, s.Resolvers)
	return e.Execute(t.Context(), execution.Request{Query: query, Root: root})
}

func TestRegistry(t *testing.T) {
	t.Parallel()
	r, err := schema.NewRegistry(testDirectives()...)
	require.NoError(t, err)
	assert.Equal(t, []string{"constant", "listed", "suffix", "trim", "upper"}, r.Names())
	d, ok := r.Lookup("trim")
	require.True(t, ok)
	assert.True(t, d.Capabilities().ArgTransformer)
	assert.Contains(t, r.Definitions(), "directive @upper(attribute: String) on FIELD_DEFINITION\n")

	err = r.Register(broken{})
	assert.EqualError(t, err, "schema: directive @broken declares FieldResolver, ArgBuilder without implementing it")
	_, ok = r.Lookup("broken")
	assert.False(t, ok)
}

func TestBuild(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, schema.WithSource("schema.graphql", `
type Query @suffix(with: "!") {
  name: String @upper
  nick: String @upper(attribute: "name") @suffix(with: "?")
  fixed: String @constant
  plain: String
  echo(text: String @trim): String @upper(attribute: "none")
  item: Item
}
type Item @listed { id: ID! }
`))
	s, err := b.Build(t.Context())
	require.NoError(t, err)
	assert.False(t, s.Cached)
	assert.Len(t, s.Hash, 64)
	assert.Contains(t, s.SDL, "listed: String!")

	resp := execute(t, s, `{ name nick fixed plain item { id listed } }`, map[string]any{
		"name":  "ann",
		"plain": "p",
		"item":  map[string]any{"id": "1"},
	})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"name":"ANN!","nick":"ANN?!","fixed":"fixed!","plain":"p!","item":{"id":"1","listed":"yes"}}`, string(resp.Data))
}

func TestBuildTransforms(t *testing.T) {
	t.Parallel()
	var seen map[string]any
	c := schema.NewCallables()
	c.RegisterFunc("Echo", func(_ context.Context, p execution.ResolveParams) (any, error) {
		seen = p.Args
		return "ok", nil
	})
	fieldDirective := &resolverDirective{}
	b := newBuilder(t, schema.WithCallables(c), schema.WithDirectives(fieldDirective), schema.WithSource("schema.graphql", `
type Query {
  echo(text: String @trim, input: EchoInput, list: [EchoInput!]): String @call(resolver: "Echo")
}
input EchoInput { name: String @trim, other: String }
`))
	s, err := b.Build(t.Context())
	require.NoError(t, err)

	resp := execute(t, s, `{ echo(text: "  hi ", input: {name: " a ", other: " b "}, list: [{name: "x "}]) }`, nil)
	require.Empty(t, resp.Errors)
	assert.Equal(t, map[string]any{
		"text":  "hi",
		"input": map[string]any{"name": "a", "other": " b "},
		"list":  []any{map[string]any{"name": "x"}},
	}, seen)

	resp = execute(t, s, `{ echo(text: " ", list: [{name: "ok"}, {name: "  "}]) }`, nil)
	require.Len(t, resp.Errors, 1)
	assert.Equal(t, "Validation failed for the field [echo].", resp.Errors[0].Message)
	assert.Equal(t, map[string][]string{
		"text":        {"must not be blank"},
		"list.1.name": {"must not be blank"},
	}, resp.Errors[0].Extensions["validation"])
}

// resolverDirective resolves a field with a callable.
type resolverDirective struct{}

func (*resolverDirective) Name() string { return "call" }
func (*resolverDirective) Definition() string {
	return `directive @call(resolver: String!) on FIELD_DEFINITION`
}
func (*resolverDirective) Capabilities() schema.Capabilities {
	return schema.Capabilities{FieldResolver: true}
}
func (*resolverDirective) ResolveField(ctx *schema.AttachContext, parent *ast.Definition, _ *ast.FieldDefinition, dir *ast.Directive) (execution.ResolveFunc, error) {
	return ctx.Resolver(schema.StringArg(dir, "resolver", ""), parent, dir)
}

func TestBuildErrors(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		sdl  string
		err  string
	}{
		{
			name: "MultipleResolvers",
			sdl:  `type Query { name: String @upper @constant }`,
			err:  "Field Query.name has more than one resolver directive: @upper, @constant.",
		},
		{
			name: "ExtendMissingKind",
			sdl:  `type Query { a: Int } input Item { id: ID } extend type Item { name: String }`,
			err:  "Cannot extend type Item because the base type is a INPUT_OBJECT, not OBJECT.",
		},
		{
			name: "Invalid",
			sdl:  `type Query { a: Missing }`,
			err:  "Undefined type Missing.",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := newBuilder(t, schema.WithSource("schema.graphql", tt.sdl)).Build(t.Context())
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}

	t.Run("UnknownFile", func(t *testing.T) {
		t.Parallel()
		_, err := newBuilder(t, schema.WithFiles(filepath.Join(t.TempDir(), "missing.graphql"))).Build(t.Context())
		assert.ErrorIs(t, err, os.ErrNotExist)
	})
}

func TestBuildExtensions(t *testing.T) {
	t.Parallel()
	b := newBuilder(t, schema.WithSource("schema.graphql", `
type Query { a: String @constant }
type Item @listed { id: ID! }
`), schema.WithSource("extensions.graphql", `
extend type Query { b: String @constant(value: "ext") }
extend type Item { name: String }
`))
	s, err := b.Build(t.Context())
	require.NoError(t, err)
	fields := s.AST.Types["Item"].Fields
	assert.NotNil(t, fields.ForName("name"))
	assert.NotNil(t, fields.ForName("listed"), "manipulators see extension fields once merged")
	resp := execute(t, s, `{ a b }`, nil)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"a":"fixed","b":"ext"}`, string(resp.Data))
}

func TestCallables(t *testing.T) {
	t.Parallel()
	c := schema.NewCallables()
	c.RegisterFunc("queries.Users", func(context.Context, execution.ResolveParams) (any, error) { return "users", nil })
	c.Register("Posts", map[string]any{"count": 3})

	class, method := schema.ParseReference("Users@all")
	assert.Equal(t, "Users", class)
	assert.Equal(t, "all", method)
	_, method = schema.ParseReference("Users")
	assert.Equal(t, schema.DefaultMethod, method)

	fn, err := c.Resolver("Users", []string{"mutations", "queries"}, "field")
	require.NoError(t, err)
	v, err := fn(t.Context(), execution.ResolveParams{})
	require.NoError(t, err)
	assert.Equal(t, "users", v)

	v2, err := c.Lookup("Posts@count", []string{"queries"}, "field")
	require.NoError(t, err)
	assert.Equal(t, 3, v2)

	_, err = c.Resolver("Posts@count", nil, "field")
	assert.EqualError(t, err, "schema: Posts@count referenced in @field is a int, not a resolver")

	_, err = c.Lookup("Users@missing", []string{"queries"}, "field")
	assert.EqualError(t, err, "Method missing does not exist on class queries.Users referenced in @field.")
	assert.True(t, beacon.IsDefinitionError(err))

	_, err = c.Lookup("Missing", []string{"queries", "app.queries"}, "paginate")
	assert.EqualError(t, err, "Failed to find class Missing in namespaces [queries, app.queries] for directive @paginate.")

	methods, err := c.Class("Users", []string{"queries"}, "subscription")
	require.NoError(t, err)
	assert.Contains(t, methods, schema.DefaultMethod)
}

func TestCache(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "cache", "schema.cache")
	src := schema.WithSource("schema.graphql", `type Query { name: String @constant(value: "x") } type Item @listed { id: ID! }`)

	first, err := newBuilder(t, src, schema.WithCache(path)).Build(t.Context())
	require.NoError(t, err)
	assert.False(t, first.Cached)
	require.FileExists(t, path)

	second, err := newBuilder(t, src, schema.WithCache(path)).Build(t.Context())
	require.NoError(t, err)
	assert.True(t, second.Cached)
	assert.Equal(t, first.Hash, second.Hash)
	assert.Equal(t, first.SDL, second.SDL)
	assert.Len(t, second.AST.Types["Item"].Fields, 2, "cached document is not manipulated again")
	resp := execute(t, second, `{ name }`, nil)
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"name":"x"}`, string(resp.Data))

	other, err := newBuilder(t, schema.WithSource("schema.graphql", `type Query { name: String }`), schema.WithCache(path)).Build(t.Context())
	require.NoError(t, err)
	assert.False(t, other.Cached, "a different source misses")

	c := schema.NewCache(path)
	_, ok, err := c.Load(other.Hash)
	require.NoError(t, err)
	assert.True(t, ok)
	require.NoError(t, c.Clear())
	require.NoError(t, c.Clear(), "clearing twice succeeds")
	_, ok, err = c.Load(other.Hash)
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, os.WriteFile(path, []byte("not msgpack"), 0o644))
	_, _, err = c.Load(other.Hash)
	assert.Error(t, err)
	s, err := newBuilder(t, src, schema.WithCache(path)).Build(t.Context())
	require.NoError(t, err, "an unreadable cache is rebuilt")
	assert.False(t, s.Cached)
}

func TestPrint(t *testing.T) {
	t.Parallel()
	s, err := newBuilder(t, schema.WithSource("schema.graphql", `type Query { name: String @constant }`)).Build(t.Context())
	require.NoError(t, err)
	out := schema.Print(s.AST)
	assert.Contains(t, out, "directive @constant")
	assert.Contains(t, out, "type Query")
	assert.NotContains(t, out, "__schema")
}

func TestLive(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(`type Query { a: String @constant }`), 0o644))
	b := newBuilder(t, schema.WithFiles(path))

	live, err := schema.NewLive(t.Context(), b)
	require.NoError(t, err)
	first := live.Load()
	var swapped []*schema.Schema
	live.OnSwap(func(s *schema.Schema) { swapped = append(swapped, s) })

	require.NoError(t, os.WriteFile(path, []byte(`type Query { a: String @constant b: Int }`), 0o644))
	s, err := live.Reload(t.Context())
	require.NoError(t, err)
	assert.NotEqual(t, first.Hash, s.Hash)
	assert.Same(t, s, live.Load())
	assert.NotNil(t, live.Load().AST.Query.Fields.ForName("b"))
	require.Len(t, swapped, 1)

	require.NoError(t, os.WriteFile(path, []byte(`type Query { a: Missing }`), 0o644))
	kept, err := live.Reload(t.Context())
	require.Error(t, err)
	assert.Same(t, s, kept, "a failed rebuild keeps the current schema")
	assert.Same(t, s, live.Load())
	assert.Len(t, swapped, 1)
}

func TestLiveWatch(t *testing.T) {
	t.Parallel()
	path := filepath.Join(t.TempDir(), "schema.graphql")
	require.NoError(t, os.WriteFile(path, []byte(`type Query { a: String }`), 0o644))
	live, err := schema.NewLive(t.Context(), newBuilder(t, schema.WithFiles(path)))
	require.NoError(t, err)

	swapped := make(chan *schema.Schema, 1)
	live.OnSwap(func(s *schema.Schema) {
		select {
		case swapped <- s:
		default:
		}
	})
	ctx, cancel := context.WithCancel(t.Context())
	done := make(chan error, 1)
	go func() { done <- live.Watch(ctx) }()

	// The watcher registers asynchronously; keep writing until it reacts.
	require.Eventually(t, func() bool {
		_ = os.WriteFile(path, []byte(`type Query { a: String b: Int }`), 0o644)
		select {
		case s := <-swapped:
			return s.AST.Query.Fields.ForName("b") != nil
		default:
			return false
		}
	}, 5*time.Second, 200*time.Millisecond)

	cancel()
	assert.NoError(t, <-done)
}
