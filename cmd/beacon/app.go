package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"slices"
	"strings"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "modernc.org/sqlite"

	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/dialect"
	"github.com/syssam/beacon/dialect/sql"
	"github.com/syssam/beacon/model"
	"github.com/syssam/beacon/model/sqlstore"
	"github.com/syssam/beacon/privacy"
	"github.com/syssam/beacon/schema"
	"github.com/syssam/beacon/schema/directives"
	"github.com/syssam/beacon/subscriptions"
)

const slowQueryThreshold = 200 * time.Millisecond

// load reads the configuration. Relative schema and cache paths are
// resolved against the directory of the configuration file.
func (cli *CLI) load() (*config.Config, error) {
	cfg, err := config.Load(cli.Config)
	if err != nil {
		return nil, err
	}
	dir := filepath.Dir(cli.Config)
	for i, p := range cfg.Schema.Path {
		cfg.Schema.Path[i] = rebase(dir, p)
	}
	cfg.Schema.Cache.Path = rebase(dir, cfg.Schema.Cache.Path)
	return cfg, nil
}

func rebase(dir, path string) string {
	if path == "" || filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(dir, path)
}

// build builds the schema without a store, for the offline commands.
func (cli *CLI) build() (*schema.Schema, error) {
	cfg, err := cli.load()
	if err != nil {
		return nil, err
	}
	registry, err := registryFromConfig(cfg.Models)
	if err != nil {
		return nil, err
	}
	b, err := schema.NewBuilder(
		schema.WithConfig(cfg),
		schema.WithDirectives(directives.All()...),
		schema.WithModels(registry),
		schema.WithLogger(slog.New(slog.DiscardHandler)),
	)
	if err != nil {
		return nil, err
	}
	return b.Build(context.Background())
}

// newLogger returns the process logger described by cfg.
func newLogger(cfg config.Log, w io.Writer) (*slog.Logger, error) {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		return nil, fmt.Errorf("log level: %w", err)
	}
	opts := &slog.HandlerOptions{Level: level}
	switch strings.ToLower(cfg.Format) {
	case "json":
		return slog.New(slog.NewJSONHandler(w, opts)), nil
	case "", "text":
		return slog.New(slog.NewTextHandler(w, opts)), nil
	}
	return nil, fmt.Errorf("log format %q is not supported", cfg.Format)
}

// registryFromConfig declares the configured models. Types are registered
// before relations so relation defaults see the table and keys of the
// related type.
func registryFromConfig(models map[string]config.Model) (*model.Registry, error) {
	r := model.NewRegistry()
	names := make([]string, 0, len(models))
	for name := range models {
		names = append(names, name)
	}
	slices.Sort(names)
	for _, name := range names {
		m := models[name]
		var opts []model.TypeOption
		if m.Table != "" {
			opts = append(opts, model.Table(m.Table))
		}
		if len(m.Keys) > 0 {
			opts = append(opts, model.Keys(m.Keys...))
		}
		r.Register(name, opts...)
	}
	for _, name := range names {
		relations := models[name].Relations
		rels := make([]string, 0, len(relations))
		for rel := range relations {
			rels = append(rels, rel)
		}
		slices.Sort(rels)
		for _, rel := range rels {
			if err := addRelation(r, name, rel, relations[rel]); err != nil {
				return nil, err
			}
		}
	}
	return r, nil
}

func addRelation(r *model.Registry, parent, name string, rel config.Relation) error {
	kind, ok := model.ParseKind(rel.Kind)
	if !ok {
		return fmt.Errorf("models: %s.%s: unknown relation kind %q", parent, name, rel.Kind)
	}
	var opts []model.RelationOption
	if rel.ForeignKey != "" {
		opts = append(opts, model.ForeignKey(rel.ForeignKey))
	}
	if rel.OwnerKey != "" {
		opts = append(opts, model.OwnerKey(rel.OwnerKey))
	}
	if rel.Morph != "" {
		opts = append(opts, model.MorphName(rel.Morph))
	}
	if rel.Pivot != "" {
		opts = append(opts, model.PivotTable(rel.Pivot))
	}
	_, err := r.AddRelation(parent, name, kind, rel.Related, opts...)
	return err
}

// app holds what serve wires together.
type app struct {
	driver        *sql.Driver
	stats         *sql.StatsDriver
	store         *sqlstore.Store
	subscriptions *subscriptions.Manager
	builder       *schema.Builder
	logger        *slog.Logger
}

func newApp(cfg *config.Config, logger *slog.Logger) (*app, error) {
	registry, err := registryFromConfig(cfg.Models)
	if err != nil {
		return nil, err
	}
	drv, err := sql.Open(cfg.Database.Driver, cfg.Database.DSN)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	a := &app{driver: drv, logger: logger}
	var base dialect.Driver = drv
	if cfg.Log.Level == "debug" {
		base = sql.NewDebugDriver(drv, logger)
	}
	a.stats = sql.NewStatsDriver(base,
		sql.WithSlowThreshold(slowQueryThreshold),
		sql.WithSlowQueryLog(logger),
	)
	storeOpts := []sqlstore.Option{sqlstore.WithLogger(logger)}
	if policy := privacy.FromConfig(cfg.Models); policy != nil {
		storeOpts = append(storeOpts, sqlstore.WithPolicy(policy))
	}
	a.store = sqlstore.New(a.stats, registry, storeOpts...)

	a.subscriptions, err = subscriptions.FromConfig(cfg.Subscriptions, subscriptions.WithLogger(logger))
	if err != nil {
		drv.Close()
		return nil, err
	}
	a.builder, err = schema.NewBuilder(
		schema.WithConfig(cfg),
		schema.WithDirectives(directives.All()...),
		schema.WithModels(registry),
		schema.WithPublisher(a.subscriptions),
		schema.WithLogger(logger),
	)
	if err != nil {
		drv.Close()
		return nil, err
	}
	return a, nil
}

// Close logs the statement statistics and closes the database.
func (a *app) Close() error {
	a.logger.Info("database statistics", slog.Any("stats", a.stats.QueryStats().Stats()))
	return a.driver.Close()
}
