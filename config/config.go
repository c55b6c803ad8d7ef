// Package config loads the beacon configuration file.
package config

import (
	"fmt"
	"os"
	"path/filepath"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root of beacon.yml.
type Config struct {
	// Schema configures where the SDL lives and how it is cached.
	Schema Schema `yaml:"schema"`

	// Route configures the HTTP endpoint.
	Route Route `yaml:"route"`

	// Namespaces lists the prefixes searched when resolving resolver and
	// builder references of directives.
	Namespaces Namespaces `yaml:"namespaces"`

	Pagination    Pagination    `yaml:"pagination"`
	Security      Security      `yaml:"security"`
	Subscriptions Subscriptions `yaml:"subscriptions"`
	Database      Database      `yaml:"database"`
	Log           Log           `yaml:"log"`

	// Models declares the model types of the store by type name.
	Models map[string]Model `yaml:"models,omitempty" validate:"dive"`
}

// Schema configures schema loading.
type Schema struct {
	// Path is one or more SDL files.
	Path StringList `yaml:"path" validate:"required,min=1,dive,required"`

	// Cache stores the manipulated schema between runs.
	Cache Cache `yaml:"cache"`

	// Watch rebuilds the schema when a source file changes.
	Watch bool `yaml:"watch,omitempty"`
}

// Cache configures the schema AST cache.
type Cache struct {
	Enable bool   `yaml:"enable"`
	Path   string `yaml:"path" validate:"required_if=Enable true"`
}

// Route configures the HTTP server.
type Route struct {
	Addr       string `yaml:"addr" validate:"required"`
	URI        string `yaml:"uri" validate:"required,startswith=/"`
	Playground string `yaml:"playground,omitempty" validate:"omitempty,startswith=/"`
}

// Namespaces holds callable lookup prefixes per root type.
type Namespaces struct {
	Models        StringList `yaml:"models,omitempty"`
	Queries       StringList `yaml:"queries,omitempty"`
	Mutations     StringList `yaml:"mutations,omitempty"`
	Subscriptions StringList `yaml:"subscriptions,omitempty"`
}

// Pagination holds schema-wide @paginate defaults.
type Pagination struct {
	// DefaultCount is used when @paginate sets none. Nil keeps first
	// required.
	DefaultCount *int `yaml:"default_count,omitempty" validate:"omitempty,gte=0"`

	// MaxCount caps first unless @paginate overrides it. Zero is unlimited.
	MaxCount int `yaml:"max_count,omitempty" validate:"gte=0"`
}

// Security configures the query safety rules. Zero values disable a rule.
type Security struct {
	MaxQueryComplexity   int  `yaml:"max_query_complexity,omitempty" validate:"gte=0"`
	MaxQueryDepth        int  `yaml:"max_query_depth,omitempty" validate:"gte=0"`
	DisableIntrospection bool `yaml:"disable_introspection,omitempty"`
}

// Broadcaster names.
const (
	BroadcasterLog     = "log"
	BroadcasterWebhook = "webhook"
)

// Subscriptions configures subscription broadcasting.
type Subscriptions struct {
	Broadcaster string        `yaml:"broadcaster" validate:"oneof=log webhook"`
	WebhookURL  string        `yaml:"webhook_url,omitempty" validate:"required_if=Broadcaster webhook,omitempty,url"`
	Timeout     time.Duration `yaml:"timeout,omitempty" validate:"gte=0"`
	// Workers bounds concurrent deliveries of one broadcast.
	Workers int `yaml:"workers" validate:"gte=1"`
	// Version is reported in the subscription response extension.
	Version int `yaml:"version" validate:"oneof=1 2"`
}

// Database selects the store backend.
type Database struct {
	Driver string `yaml:"driver" validate:"oneof=sqlite postgres mysql"`
	DSN    string `yaml:"dsn" validate:"required"`
}

// Model declares a model type. Unset fields follow the naming
// conventions of the store.
type Model struct {
	Table     string              `yaml:"table,omitempty"`
	Keys      StringList          `yaml:"keys,omitempty"`
	Relations map[string]Relation `yaml:"relations,omitempty" validate:"dive"`
	Policy    *Policy             `yaml:"policy,omitempty"`
}

// Policy restricts writes to a model type. The rules run in field order;
// writes no rule decides are allowed.
type Policy struct {
	// RequireViewer denies writes without an authenticated viewer.
	RequireViewer bool `yaml:"require_viewer,omitempty"`
	// Deny lists operations nobody may perform.
	Deny StringList `yaml:"deny,omitempty" validate:"dive,oneof=create update delete"`
	// TenantColumn denies writes to rows of another tenant.
	TenantColumn string `yaml:"tenant_column,omitempty"`
	// AdminRoles allow every remaining write.
	AdminRoles StringList `yaml:"admin_roles,omitempty"`
	// OwnerColumn restricts updates and deletes to the viewer whose ID it
	// holds.
	OwnerColumn string `yaml:"owner_column,omitempty"`
}

// Relation declares a relation of a model type.
type Relation struct {
	Kind       string `yaml:"kind" validate:"oneof=belongsTo hasOne hasMany morphTo morphMany belongsToMany"`
	Related    string `yaml:"related,omitempty" validate:"required_unless=Kind morphTo"`
	ForeignKey string `yaml:"foreign_key,omitempty"`
	OwnerKey   string `yaml:"owner_key,omitempty"`
	// Morph is the prefix of the columns of a polymorphic relation.
	Morph string `yaml:"morph,omitempty"`
	// Pivot is the join table of a belongsToMany relation.
	Pivot string `yaml:"pivot,omitempty"`
}

// Log configures the process logger.
type Log struct {
	Level  string `yaml:"level" validate:"oneof=debug info warn error"`
	Format string `yaml:"format" validate:"oneof=text json"`
}

// Default returns a configuration with every default applied.
func Default() *Config {
	return &Config{
		Schema: Schema{
			Path:  StringList{"schema.graphql"},
			Cache: Cache{Path: filepath.Join(".beacon", "schema.cache")},
		},
		Route: Route{
			Addr:       ":8080",
			URI:        "/graphql",
			Playground: "/playground",
		},
		Subscriptions: Subscriptions{
			Broadcaster: BroadcasterLog,
			Timeout:     5 * time.Second,
			Workers:     4,
			Version:     2,
		},
		Database: Database{
			Driver: "sqlite",
			DSN:    "file:beacon.db?_pragma=foreign_keys(1)",
		},
		Log: Log{
			Level:  "info",
			Format: "text",
		},
	}
}

// Load reads and validates the configuration at path. A missing file
// yields the defaults.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Default(), nil
		}
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data)
}

// Parse decodes YAML over the defaults and validates the result.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse config: %w", err)
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Save writes cfg as YAML to path.
func Save(path string, cfg *Config) error {
	data, err := yaml.Marshal(cfg)
	if err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	if dir := filepath.Dir(path); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return fmt.Errorf("create directory: %w", err)
		}
	}
	return os.WriteFile(path, data, 0o644)
}

// ResolveMaxCount resolves the page size cap of a field: the directive value when
// set, the configured cap otherwise. Nil means unlimited.
func (p Pagination) ResolveMaxCount(directive *int) *int {
	if directive != nil {
		return directive
	}
	if p.MaxCount > 0 {
		n := p.MaxCount
		return &n
	}
	return nil
}

// StringList is a YAML value holding either one string or a list.
type StringList []string

// UnmarshalYAML implements yaml.Unmarshaler.
func (s *StringList) UnmarshalYAML(node *yaml.Node) error {
	switch node.Kind {
	case yaml.ScalarNode:
		*s = StringList{node.Value}
		return nil
	case yaml.SequenceNode:
		var list []string
		if err := node.Decode(&list); err != nil {
			return err
		}
		*s = list
		return nil
	default:
		return fmt.Errorf("expected string or list, got %v", node.Kind)
	}
}

// MarshalYAML implements yaml.Marshaler.
func (s StringList) MarshalYAML() (any, error) {
	if len(s) == 1 {
		return s[0], nil
	}
	return []string(s), nil
}
