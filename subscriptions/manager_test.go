package subscriptions_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"net/url"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/execution"
	"github.com/syssam/beacon/schema"
	"github.com/syssam/beacon/schema/directives"
	"github.com/syssam/beacon/subscriptions"
)

const sdl = `
type Query { ping: String }

type User { id: ID! name: String! }

type Mutation {
  renameUser(id: ID!, name: String!): User
    @field(resolver: "Rename")
    @broadcast(subscription: "userRenamed")
}

type Subscription {
  userRenamed(id: ID): User @subscription(class: "UserRenamed")
  userDeleted: User
}
`

type viewerKey struct{}

// viewerSerializer carries the viewer of the subscribing request over to
// broadcasts.
type viewerSerializer struct{}

func (viewerSerializer) Serialize(ctx context.Context) map[string]any {
	v, _ := ctx.Value(viewerKey{}).(string)
	return map[string]any{"viewer": v}
}

func (viewerSerializer) Unserialize(ctx context.Context, snapshot map[string]any) context.Context {
	return context.WithValue(ctx, viewerKey{}, snapshot["viewer"])
}

type env struct {
	manager     *subscriptions.Manager
	broadcaster *subscriptions.LogBroadcaster
	executor    *execution.Executor
}

func setup(t *testing.T, b subscriptions.Broadcaster, opts ...subscriptions.Option) env {
	t.Helper()
	lb, _ := b.(*subscriptions.LogBroadcaster)
	if b == nil {
		lb = subscriptions.NewLogBroadcaster(nil)
		b = lb
	}
	m := subscriptions.NewManager(b, append([]subscriptions.Option{subscriptions.WithContextSerializer(viewerSerializer{})}, opts...)...)

	c := schema.NewCallables()
	c.RegisterFunc("Rename", func(_ context.Context, p execution.ResolveParams) (any, error) {
		return map[string]any{"id": p.Args["id"], "name": p.Args["name"]}, nil
	})
	c.Register("UserRenamed", map[string]any{
		"Filter": directives.FilterFunc(func(ctx context.Context, p execution.ResolveParams) (bool, error) {
			if ctx.Value(viewerKey{}) == "blocked" {
				return false, nil
			}
			id, ok := p.Args["id"]
			if !ok || id == nil {
				return true, nil
			}
			return id == p.Source.(map[string]any)["id"], nil
		}),
	})
	builder, err := schema.NewBuilder(
		schema.WithDirectives(directives.All()...),
		schema.WithCallables(c),
		schema.WithPublisher(m),
		schema.WithSource("schema.graphql", sdl),
	)
	require.NoError(t, err)
	s, err := builder.Build(t.Context())
	require.NoError(t, err)
	e := execution.NewExecutor(s.AST, s.Resolvers, execution.WithSubscriptions(m))
	m.Bind(e)
	return env{manager: m, broadcaster: lb, executor: e}
}

func (e env) subscribe(t *testing.T, ctx context.Context, query string) string {
	t.Helper()
	resp := e.executor.Execute(ctx, execution.Request{Query: query})
	require.Empty(t, resp.Errors)
	ext, ok := resp.Extensions[subscriptions.ExtensionKey].(map[string]any)
	require.True(t, ok)
	ch, ok := ext["channel"].(string)
	require.True(t, ok)
	return ch
}

func TestManagerSubscribe(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)
	resp := e.executor.Execute(t.Context(), execution.Request{Query: `subscription { userRenamed { id } }`})
	require.Empty(t, resp.Errors)
	assert.JSONEq(t, `{"userRenamed":null}`, string(resp.Data))
	ext := resp.Extensions[subscriptions.ExtensionKey].(map[string]any)
	assert.Equal(t, 2, ext["version"])

	sub, ok := e.manager.Storage().ByChannel(ext["channel"].(string))
	require.True(t, ok)
	assert.Equal(t, "USER_RENAMED", sub.Topic)
	assert.Equal(t, `subscription { userRenamed { id } }`, sub.Query)
}

func TestManagerSubscribeVersion1(t *testing.T) {
	t.Parallel()
	e := setup(t, nil, subscriptions.WithVersion(1))
	resp := e.executor.Execute(t.Context(), execution.Request{Query: `subscription { renamed: userRenamed { id } }`})
	require.Empty(t, resp.Errors)
	ext := resp.Extensions[subscriptions.ExtensionKey].(map[string]any)
	assert.Equal(t, 1, ext["version"])
	channels := ext["channels"].(map[string]any)
	assert.Contains(t, channels, "renamed")
}

func TestManagerBroadcast(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)
	ctx := t.Context()
	all := e.subscribe(t, ctx, `subscription { userRenamed { id name } }`)
	one := e.subscribe(t, ctx, `subscription { userRenamed(id: "1") { name } }`)
	two := e.subscribe(t, ctx, `subscription { userRenamed(id: "2") { name } }`)
	blocked := e.subscribe(t, context.WithValue(ctx, viewerKey{}, "blocked"), `subscription { userRenamed { id } }`)
	other := e.subscribe(t, ctx, `subscription { userDeleted { id } }`)

	resp := e.executor.Execute(ctx, execution.Request{Query: `mutation { renameUser(id: "1", name: "ann") { id } }`})
	require.Empty(t, resp.Errors)
	e.manager.Wait()

	v, ok := e.broadcaster.Broadcasts(all)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"data": map[string]any{"userRenamed": map[string]any{"id": "1", "name": "ann"}}}, v)
	v, ok = e.broadcaster.Broadcasts(one)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"data": map[string]any{"userRenamed": map[string]any{"name": "ann"}}}, v)

	_, ok = e.broadcaster.Broadcasts(two)
	assert.False(t, ok, "filtered by the subscription arguments")
	_, ok = e.broadcaster.Broadcasts(blocked)
	assert.False(t, ok, "the subscriber context is restored")
	_, ok = e.broadcaster.Broadcasts(other)
	assert.False(t, ok)
}

func TestManagerBroadcastVariables(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)
	resp := e.executor.Execute(t.Context(), execution.Request{
		Query:     `subscription Two($id: ID) { userRenamed(id: $id) { name } }`,
		Variables: map[string]any{"id": "2"},
	})
	require.Empty(t, resp.Errors)
	ch := resp.Extensions[subscriptions.ExtensionKey].(map[string]any)["channel"].(string)

	require.NoError(t, e.manager.Broadcast(t.Context(), "userRenamed", map[string]any{"id": "1", "name": "a"}))
	_, ok := e.broadcaster.Broadcasts(ch)
	assert.False(t, ok)
	require.NoError(t, e.manager.Broadcast(t.Context(), "userRenamed", map[string]any{"id": "2", "name": "b"}))
	v, ok := e.broadcaster.Broadcasts(ch)
	require.True(t, ok)
	assert.Equal(t, map[string]any{"data": map[string]any{"userRenamed": map[string]any{"name": "b"}}}, v)
}

// failing rejects every delivery.
type failing struct{ *subscriptions.LogBroadcaster }

func (failing) Broadcast(context.Context, *subscriptions.Subscriber, any) error {
	return errors.New("push service down")
}

func TestManagerBroadcastFailure(t *testing.T) {
	t.Parallel()
	e := setup(t, failing{subscriptions.NewLogBroadcaster(nil)}, subscriptions.WithWorkers(1))
	e.subscribe(t, t.Context(), `subscription { userRenamed { id } }`)
	e.subscribe(t, t.Context(), `subscription { userRenamed { name } }`)

	err := e.manager.Broadcast(t.Context(), "userRenamed", map[string]any{"id": "1", "name": "a"})
	require.Error(t, err)
	assert.Equal(t, 2, strings.Count(err.Error(), "push service down"))

	resp := e.executor.Execute(t.Context(), execution.Request{Query: `mutation { renameUser(id: "1", name: "ann") { id } }`})
	assert.Empty(t, resp.Errors, "delivery failures never fail the mutation")
	e.manager.Wait()
}

func TestManagerUnbound(t *testing.T) {
	t.Parallel()
	m := subscriptions.NewManager(subscriptions.NewLogBroadcaster(nil))
	assert.EqualError(t, m.Broadcast(t.Context(), "userRenamed", nil), "subscriptions: no executor bound")
}

func TestFromConfig(t *testing.T) {
	t.Parallel()
	m, err := subscriptions.FromConfig(config.Default().Subscriptions)
	require.NoError(t, err)
	assert.IsType(t, &subscriptions.LogBroadcaster{}, m.Broadcaster())

	cfg := config.Default().Subscriptions
	cfg.Broadcaster = config.BroadcasterWebhook
	cfg.WebhookURL = "http://push.invalid/deliver"
	m, err = subscriptions.FromConfig(cfg)
	require.NoError(t, err)
	assert.IsType(t, &subscriptions.WebhookBroadcaster{}, m.Broadcaster())

	cfg.Broadcaster = "pigeon"
	_, err = subscriptions.FromConfig(cfg)
	assert.EqualError(t, err, `subscriptions: unknown broadcaster "pigeon"`)
}

func TestAuthHandler(t *testing.T) {
	t.Parallel()
	e := setup(t, nil)
	ch := e.subscribe(t, t.Context(), `subscription { userRenamed { id } }`)
	mux := http.NewServeMux()
	e.manager.Routes(mux, "/graphql")

	post := func(form url.Values) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, "/graphql/subscriptions/auth", strings.NewReader(form.Encode()))
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
		rec := httptest.NewRecorder()
		mux.ServeHTTP(rec, req)
		return rec
	}
	tests := []struct {
		name   string
		form   url.Values
		status int
		body   string
	}{
		{
			name:   "Registered",
			form:   url.Values{"channel_name": {ch}, "socket_id": {"1.2"}},
			status: http.StatusOK,
			body:   `{"message":"ok"}`,
		},
		{
			name:   "UnknownChannel",
			form:   url.Values{"channel_name": {"private-beacon-missing"}, "socket_id": {"1.2"}},
			status: http.StatusForbidden,
			body:   `{"error":"unauthorized"}`,
		},
		{
			name:   "MissingSocket",
			form:   url.Values{"channel_name": {ch}},
			status: http.StatusForbidden,
			body:   `{"error":"unauthorized"}`,
		},
		{
			name:   "ForeignChannel",
			form:   url.Values{"channel_name": {"presence-room"}, "socket_id": {"1.2"}},
			status: http.StatusForbidden,
			body:   `{"error":"unauthorized"}`,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rec := post(tt.form)
			assert.Equal(t, tt.status, rec.Code)
			assert.JSONEq(t, tt.body, rec.Body.String())
		})
	}

	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/graphql/subscriptions/auth", nil))
	assert.Equal(t, http.StatusMethodNotAllowed, rec.Code)

	rec = httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql/subscriptions/webhook", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"message":"okay"}`, rec.Body.String())
}

func TestWebhookVacatesSubscribers(t *testing.T) {
	t.Parallel()
	cfg := config.Default().Subscriptions
	cfg.Broadcaster = config.BroadcasterWebhook
	cfg.WebhookURL = "http://push.invalid/deliver"
	m, err := subscriptions.FromConfig(cfg)
	require.NoError(t, err)
	sub := subscriptions.NewSubscriber("USER_RENAMED", "subscription { userRenamed { id } }", "", nil)
	m.Storage().Add(sub)

	mux := http.NewServeMux()
	m.Routes(mux, "/graphql")
	body := `{"events":[{"name":"channel_vacated","channel":"` + sub.Channel + `"}]}`
	rec := httptest.NewRecorder()
	mux.ServeHTTP(rec, httptest.NewRequest(http.MethodPost, "/graphql/subscriptions/webhook", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, rec.Code)
	_, ok := m.Storage().ByChannel(sub.Channel)
	assert.False(t, ok)
}
