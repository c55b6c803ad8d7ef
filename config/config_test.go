package config_test

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/syssam/beacon/config"
)

func TestDefault(t *testing.T) {
	t.Parallel()
	cfg := config.Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, config.StringList{"schema.graphql"}, cfg.Schema.Path)
	assert.Equal(t, "/graphql", cfg.Route.URI)
	assert.Equal(t, config.BroadcasterLog, cfg.Subscriptions.Broadcaster)
	assert.Zero(t, cfg.Security.MaxQueryDepth)
	assert.Nil(t, cfg.Pagination.DefaultCount)
}

func TestParse(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse([]byte(`
schema:
  path: graphql/schema.graphql
  watch: true
pagination:
  default_count: 15
  max_count: 50
security:
  max_query_depth: 3
  max_query_complexity: 100
  disable_introspection: true
subscriptions:
  broadcaster: webhook
  webhook_url: https://push.example.com/hook
  timeout: 2s
  workers: 8
log:
  format: json
`))
	require.NoError(t, err)
	assert.Equal(t, config.StringList{"graphql/schema.graphql"}, cfg.Schema.Path)
	assert.True(t, cfg.Schema.Watch)
	require.NotNil(t, cfg.Pagination.DefaultCount)
	assert.Equal(t, 15, *cfg.Pagination.DefaultCount)
	assert.Equal(t, config.Security{MaxQueryComplexity: 100, MaxQueryDepth: 3, DisableIntrospection: true}, cfg.Security)
	assert.Equal(t, 2*time.Second, cfg.Subscriptions.Timeout)
	assert.Equal(t, 8, cfg.Subscriptions.Workers)
	assert.Equal(t, "json", cfg.Log.Format)
	assert.Equal(t, "info", cfg.Log.Level, "defaults survive partial documents")

	cfg, err = config.Parse([]byte("schema:\n  path: [a.graphql, b.graphql]\n"))
	require.NoError(t, err)
	assert.Equal(t, config.StringList{"a.graphql", "b.graphql"}, cfg.Schema.Path)
}

func TestParseModels(t *testing.T) {
	t.Parallel()
	cfg, err := config.Parse([]byte(`
models:
  User:
    table: people
    relations:
      posts: {kind: hasMany, related: Post, foreign_key: author_id}
      image: {kind: morphTo, morph: imageable}
    policy:
      require_viewer: true
      deny: delete
      admin_roles: [admin]
      owner_column: id
  Post:
    keys: [id, revision]
`))
	require.NoError(t, err)
	require.Len(t, cfg.Models, 2)
	assert.Equal(t, "people", cfg.Models["User"].Table)
	assert.Equal(t, config.Relation{Kind: "hasMany", Related: "Post", ForeignKey: "author_id"}, cfg.Models["User"].Relations["posts"])
	assert.Equal(t, config.Relation{Kind: "morphTo", Morph: "imageable"}, cfg.Models["User"].Relations["image"])
	assert.Equal(t, config.StringList{"id", "revision"}, cfg.Models["Post"].Keys)
	assert.Equal(t, &config.Policy{
		RequireViewer: true,
		Deny:          config.StringList{"delete"},
		AdminRoles:    config.StringList{"admin"},
		OwnerColumn:   "id",
	}, cfg.Models["User"].Policy)
	assert.Nil(t, cfg.Models["Post"].Policy)
}

func TestParseInvalid(t *testing.T) {
	t.Parallel()
	tests := []struct {
		name string
		yaml string
		err  string
	}{
		{
			name: "Syntax",
			yaml: "schema: [",
			err:  "parse config:",
		},
		{
			name: "NegativeDepth",
			yaml: "security:\n  max_query_depth: -1\n",
			err:  "security.max_query_depth: must be at least 0",
		},
		{
			name: "WebhookWithoutURL",
			yaml: "subscriptions:\n  broadcaster: webhook\n",
			err:  "subscriptions.webhook_url: required",
		},
		{
			name: "UnknownBroadcaster",
			yaml: "subscriptions:\n  broadcaster: pusher\n",
			err:  "subscriptions.broadcaster: must be one of: log webhook",
		},
		{
			name: "Route",
			yaml: "route:\n  uri: graphql\n",
			err:  `route.uri: must start with "/"`,
		},
		{
			name: "CacheWithoutPath",
			yaml: "schema:\n  cache:\n    enable: true\n    path: \"\"\n",
			err:  "schema.cache.path: required",
		},
		{
			name: "RelationKind",
			yaml: "models:\n  User:\n    relations:\n      posts: {kind: hasLots, related: Post}\n",
			err:  "models[User].relations[posts].kind: must be one of:",
		},
		{
			name: "RelationWithoutRelated",
			yaml: "models:\n  User:\n    relations:\n      posts: {kind: hasMany}\n",
			err:  "models[User].relations[posts].related: required",
		},
		{
			name: "PolicyOperation",
			yaml: "models:\n  User:\n    policy:\n      deny: [drop]\n",
			err:  "models[User].policy.deny[0]: must be one of: create update delete",
		},
		{
			name: "EmptyPath",
			yaml: "schema:\n  path: []\n",
			err:  "schema.path:",
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			_, err := config.Parse([]byte(tt.yaml))
			require.Error(t, err)
			assert.Contains(t, err.Error(), tt.err)
		})
	}
}

func TestLoadSave(t *testing.T) {
	t.Parallel()
	dir := t.TempDir()

	cfg, err := config.Load(filepath.Join(dir, "missing.yml"))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)

	path := filepath.Join(dir, "nested", "beacon.yml")
	cfg.Security.MaxQueryDepth = 7
	require.NoError(t, config.Save(path, cfg))
	_, err = os.Stat(path)
	require.NoError(t, err)

	loaded, err := config.Load(path)
	require.NoError(t, err)
	assert.Equal(t, 7, loaded.Security.MaxQueryDepth)
	assert.Equal(t, cfg.Schema.Path, loaded.Schema.Path)
}

func TestResolveMaxCount(t *testing.T) {
	t.Parallel()
	six := 6
	assert.Nil(t, config.Pagination{}.ResolveMaxCount(nil))
	assert.Equal(t, 5, *config.Pagination{MaxCount: 5}.ResolveMaxCount(nil))
	assert.Equal(t, 6, *config.Pagination{MaxCount: 5}.ResolveMaxCount(&six))
}
