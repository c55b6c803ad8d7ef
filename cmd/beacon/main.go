// Command beacon serves a GraphQL schema annotated with beacon directives.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	"github.com/alecthomas/kong"

	"github.com/syssam/beacon/config"
	"github.com/syssam/beacon/schema"
	"github.com/syssam/beacon/server"
)

// CLI is the command line of beacon.
type CLI struct {
	Config string `help:"Path of the configuration file." default:"beacon.yml" short:"c" type:"path"`

	Init        InitCmd        `cmd:"" help:"Write a default configuration file."`
	Serve       ServeCmd       `cmd:"" help:"Serve the schema over HTTP."`
	PrintSchema PrintSchemaCmd `cmd:"" help:"Print the built schema as SDL."`
	Validate    ValidateCmd    `cmd:"" help:"Validate the configuration and the schema."`
	ClearCache  ClearCacheCmd  `cmd:"" help:"Remove the cached schema."`
}

// InitCmd writes config.Default to the configuration path.
type InitCmd struct {
	Force bool `help:"Overwrite an existing file." short:"f"`
}

func (c *InitCmd) Run(cli *CLI, kctx *kong.Context) error {
	if _, err := os.Stat(cli.Config); err == nil && !c.Force {
		return fmt.Errorf("%s already exists, use --force to overwrite it", cli.Config)
	}
	if err := config.Save(cli.Config, config.Default()); err != nil {
		return err
	}
	fmt.Fprintf(kctx.Stdout, "wrote %s\n", cli.Config)
	return nil
}

// ServeCmd serves the schema until interrupted.
type ServeCmd struct {
	Addr  string `help:"Listen address, overriding route.addr."`
	Watch bool   `help:"Rebuild the schema when its files change." short:"w"`
}

func (c *ServeCmd) Run(cli *CLI, kctx *kong.Context) error {
	cfg, err := cli.load()
	if err != nil {
		return err
	}
	if c.Addr != "" {
		cfg.Route.Addr = c.Addr
	}
	logger, err := newLogger(cfg.Log, kctx.Stderr)
	if err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	a, err := newApp(cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	live, err := schema.NewLive(ctx, a.builder)
	if err != nil {
		return err
	}
	srv := server.New(cfg, live.Load(),
		server.WithLogger(logger),
		server.WithRepository(a.store),
		server.WithSubscriptions(a.subscriptions),
	)
	if cfg.Schema.Watch || c.Watch {
		live.OnSwap(srv.Swap)
		go func() {
			if err := live.Watch(ctx); err != nil && !errors.Is(err, context.Canceled) {
				logger.ErrorContext(ctx, "schema watcher stopped", "error", err)
			}
		}()
	}
	return srv.ListenAndServe(ctx)
}

// PrintSchemaCmd prints the schema.
type PrintSchemaCmd struct {
	Write string `help:"Write the schema to this file instead of stdout." type:"path"`
}

func (c *PrintSchemaCmd) Run(cli *CLI, kctx *kong.Context) error {
	s, err := cli.build()
	if err != nil {
		return err
	}
	sdl := schema.Print(s.AST)
	if c.Write == "" {
		_, err := fmt.Fprint(kctx.Stdout, sdl)
		return err
	}
	if err := os.WriteFile(c.Write, []byte(sdl), 0o644); err != nil {
		return err
	}
	fmt.Fprintf(kctx.Stdout, "wrote %s\n", c.Write)
	return nil
}

// ValidateCmd builds the schema and reports the result.
type ValidateCmd struct{}

func (c *ValidateCmd) Run(cli *CLI, kctx *kong.Context) error {
	s, err := cli.build()
	if err != nil {
		return err
	}
	fmt.Fprintf(kctx.Stdout, "schema is valid: %d types, hash %s\n", len(s.AST.Types), s.Hash[:12])
	return nil
}

// ClearCacheCmd removes the schema cache file.
type ClearCacheCmd struct{}

func (c *ClearCacheCmd) Run(cli *CLI, kctx *kong.Context) error {
	cfg, err := cli.load()
	if err != nil {
		return err
	}
	if !cfg.Schema.Cache.Enable {
		fmt.Fprintln(kctx.Stdout, "schema cache is disabled")
		return nil
	}
	if err := schema.NewCache(cfg.Schema.Cache.Path).Clear(); err != nil {
		return err
	}
	fmt.Fprintf(kctx.Stdout, "cleared %s\n", cfg.Schema.Cache.Path)
	return nil
}

func newParser(cli *CLI, opts ...kong.Option) (*kong.Kong, error) {
	return kong.New(cli, append([]kong.Option{
		kong.Name("beacon"),
		kong.Description("Directive-driven GraphQL server."),
		kong.UsageOnError(),
	}, opts...)...)
}

func main() {
	cli := &CLI{}
	parser, err := newParser(cli)
	if err != nil {
		panic(err)
	}
	ctx, err := parser.Parse(os.Args[1:])
	parser.FatalIfErrorf(err)
	err = ctx.Run()
	ctx.FatalIfErrorf(err)
}
